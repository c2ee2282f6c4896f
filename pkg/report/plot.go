package report

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/klausv/battopt/pkg/controller"
)

// SavePowerPlot draws the realized grid and battery power flows over the run.
func SavePowerPlot(path string, traj controller.Trajectory) error {
	if len(traj.Steps) == 0 {
		return fmt.Errorf("trajectory has no steps")
	}

	p := plot.New()
	p.Title.Text = "Power flows"
	p.X.Label.Text = "hours"
	p.Y.Label.Text = "kW"

	series := []struct {
		name   string
		values func(i int) float64
	}{
		{"import", func(i int) float64 { return traj.Steps[i].ImportKW }},
		{"export", func(i int) float64 { return -traj.Steps[i].ExportKW }},
		{"battery", func(i int) float64 { return traj.Steps[i].SetpointKW }},
		{"load", func(i int) float64 { return traj.Steps[i].LoadKW }},
		{"pv", func(i int) float64 { return traj.Steps[i].PVKW }},
	}

	start := traj.Steps[0].Timestamp
	for _, s := range series {
		pts := make(plotter.XYs, len(traj.Steps))
		for i := range traj.Steps {
			pts[i].X = traj.Steps[i].Timestamp.Sub(start).Hours()
			pts[i].Y = s.values(i)
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("plot %s series: %w", s.name, err)
		}
		p.Add(line)
		p.Legend.Add(s.name, line)
	}
	p.Legend.Top = true

	return p.Save(10*vg.Inch, 4*vg.Inch, path)
}

// SaveEnergyPlot draws the battery energy level and the realized monthly peak.
func SaveEnergyPlot(path string, traj controller.Trajectory) error {
	if len(traj.Steps) == 0 {
		return fmt.Errorf("trajectory has no steps")
	}

	p := plot.New()
	p.Title.Text = "Battery energy and monthly peak"
	p.X.Label.Text = "hours"
	p.Y.Label.Text = "kWh / kW"

	start := traj.Steps[0].Timestamp
	energy := make(plotter.XYs, len(traj.Steps))
	peak := make(plotter.XYs, len(traj.Steps))
	for i, rec := range traj.Steps {
		x := rec.Timestamp.Sub(start).Hours()
		energy[i] = plotter.XY{X: x, Y: rec.EnergyKWH}
		peak[i] = plotter.XY{X: x, Y: rec.PeakKW}
	}

	energyLine, err := plotter.NewLine(energy)
	if err != nil {
		return fmt.Errorf("plot energy series: %w", err)
	}
	peakLine, err := plotter.NewLine(peak)
	if err != nil {
		return fmt.Errorf("plot peak series: %w", err)
	}
	p.Add(energyLine, peakLine)
	p.Legend.Add("energy", energyLine)
	p.Legend.Add("peak", peakLine)
	p.Legend.Top = true

	return p.Save(10*vg.Inch, 4*vg.Inch, path)
}
