// Package report renders a finished rolling run as CSV files and plots.
package report

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"github.com/klausv/battopt/pkg/controller"
)

// WriteTrajectoryCSV writes one row per applied step.
func WriteTrajectoryCSV(path string, traj controller.Trajectory) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{
		"timestamp",
		"pv_kw",
		"load_kw",
		"price_kwh",
		"setpoint_kw",
		"charge_kw",
		"discharge_kw",
		"import_kw",
		"export_kw",
		"curtail_kw",
		"energy_kwh",
		"peak_kw",
		"energy_cost",
		"tariff_cost",
		"objective",
		"success",
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, r := range traj.Steps {
		row := []string{
			fmtTime(r.Timestamp),
			fmtFloat(r.PVKW),
			fmtFloat(r.LoadKW),
			fmtFloat(r.PriceKWH),
			fmtFloat(r.SetpointKW),
			fmtFloat(r.ChargeKW),
			fmtFloat(r.DischargeKW),
			fmtFloat(r.ImportKW),
			fmtFloat(r.ExportKW),
			fmtFloat(r.CurtailKW),
			fmtFloat(r.EnergyKWH),
			fmtFloat(r.PeakKW),
			fmtFloat(r.EnergyCost),
			fmtFloat(r.TariffCost),
			fmtFloat(r.Objective),
			strconv.FormatBool(r.Success),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	return w.Error()
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func fmtFloat(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
