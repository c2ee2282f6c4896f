package report

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klausv/battopt/pkg/controller"
	"github.com/klausv/battopt/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTrajectory() controller.Trajectory {
	base := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	var traj controller.Trajectory
	for i := 0; i < 6; i++ {
		traj.Steps = append(traj.Steps, types.StepRecord{
			Timestamp:  base.Add(time.Duration(i) * time.Hour),
			SetpointKW: float64(i%3) - 1,
			ImportKW:   4 + float64(i),
			EnergyKWH:  2 + float64(i)*0.5,
			PeakKW:     4 + float64(i),
			LoadKW:     4,
			PriceKWH:   1,
			EnergyCost: 5.5,
			Success:    true,
		})
	}
	traj.FinalState = types.BatteryState{EnergyKWH: 5}
	return traj
}

func TestWriteTrajectoryCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trajectory.csv")
	traj := testTrajectory()
	require.NoError(t, WriteTrajectoryCSV(path, traj))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 7, "header plus one row per step")

	assert.Equal(t, "timestamp", rows[0][0])
	assert.Equal(t, "2026-03-04T00:00:00Z", rows[1][0])
	assert.Equal(t, "4.000000", rows[1][7], "import_kw column")
	assert.Equal(t, "true", rows[1][15])
}

func TestSavePlots(t *testing.T) {
	dir := t.TempDir()
	traj := testTrajectory()

	for name, save := range map[string]func(string, controller.Trajectory) error{
		"power.png":  SavePowerPlot,
		"energy.png": SaveEnergyPlot,
	} {
		path := filepath.Join(dir, name)
		require.NoError(t, save(path, traj))

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Greater(t, info.Size(), int64(0), name)
	}

	t.Run("empty trajectory", func(t *testing.T) {
		err := SavePowerPlot(filepath.Join(dir, "nope.png"), controller.Trajectory{})
		assert.Error(t, err)
	})
}
