package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxboard/fluxboard/pkg/types"
)

func TestDecomposePeriod(t *testing.T) {
	tuning := DefaultTuning()

	t.Run("Surplus Solar Charges Battery", func(t *testing.T) {
		// 5 kWh solar, 3 kWh consumed at home, 2 kWh charged: nothing
		// touches the grid.
		f, err := decomposePeriod(types.PeriodInput{
			SolarProductionKWH: 5,
			HomeConsumptionKWH: 3,
			BatteryActionKWH:   2,
		}, tuning)
		require.NoError(t, err)
		assert.InDelta(t, 3, f.SolarToHomeKWH, 1e-9)
		assert.InDelta(t, 2, f.SolarToBatteryKWH, 1e-9)
		assert.InDelta(t, 0, f.SolarToGridKWH, 1e-9)
		assert.InDelta(t, 0, f.GridToHomeKWH, 1e-9)
		assert.InDelta(t, 0, f.GridToBatteryKWH, 1e-9)
		assert.InDelta(t, 0, f.BatteryToHomeKWH, 1e-9)
		assert.InDelta(t, 0, f.BatteryToGridKWH, 1e-9)
	})

	t.Run("Discharge Covers Deficit", func(t *testing.T) {
		// No solar, 4 kWh demand, 2 kWh discharged: battery covers half,
		// the grid the rest.
		f, err := decomposePeriod(types.PeriodInput{
			HomeConsumptionKWH: 4,
			BatteryActionKWH:   -2,
			GridImportedKWH:    2,
		}, tuning)
		require.NoError(t, err)
		assert.InDelta(t, 0, f.SolarToHomeKWH, 1e-9)
		assert.InDelta(t, 2, f.BatteryToHomeKWH, 1e-9)
		assert.InDelta(t, 2, f.GridToHomeKWH, 1e-9)
		assert.InDelta(t, 0, f.BatteryToGridKWH, 1e-9)
	})

	t.Run("Grid Tops Up Charge", func(t *testing.T) {
		// Charging 3 kWh with only 1 kWh of surplus solar pulls the
		// remaining 2 kWh from the grid on top of the home's needs.
		f, err := decomposePeriod(types.PeriodInput{
			SolarProductionKWH: 3,
			HomeConsumptionKWH: 2,
			BatteryActionKWH:   3,
			GridImportedKWH:    2,
		}, tuning)
		require.NoError(t, err)
		assert.InDelta(t, 2, f.SolarToHomeKWH, 1e-9)
		assert.InDelta(t, 1, f.SolarToBatteryKWH, 1e-9)
		assert.InDelta(t, 2, f.GridToBatteryKWH, 1e-9)
		assert.InDelta(t, 0, f.SolarToGridKWH, 1e-9)
		assert.InDelta(t, 0, f.GridToHomeKWH, 1e-9)
	})

	t.Run("Excess Discharge Exports", func(t *testing.T) {
		// 3 kWh discharged into 1 kWh of demand: the extra 2 kWh sell to
		// the grid.
		f, err := decomposePeriod(types.PeriodInput{
			HomeConsumptionKWH: 1,
			BatteryActionKWH:   -3,
			GridExportedKWH:    2,
		}, tuning)
		require.NoError(t, err)
		assert.InDelta(t, 1, f.BatteryToHomeKWH, 1e-9)
		assert.InDelta(t, 2, f.BatteryToGridKWH, 1e-9)
		assert.InDelta(t, 0, f.GridToHomeKWH, 1e-9)
	})

	t.Run("Idle Battery Has No Battery Flows", func(t *testing.T) {
		f, err := decomposePeriod(types.PeriodInput{
			SolarProductionKWH: 2,
			HomeConsumptionKWH: 5,
			GridImportedKWH:    3,
		}, tuning)
		require.NoError(t, err)
		assert.Zero(t, f.SolarToBatteryKWH)
		assert.Zero(t, f.GridToBatteryKWH)
		assert.Zero(t, f.BatteryToHomeKWH)
		assert.Zero(t, f.BatteryToGridKWH)
		assert.InDelta(t, 3, f.GridToHomeKWH, 1e-9)
	})

	t.Run("Conservation Violation Surfaces", func(t *testing.T) {
		// 2 kWh of surplus solar must have been exported, but the meter
		// says nothing left the house.
		_, err := decomposePeriod(types.PeriodInput{
			SolarProductionKWH: 5,
			HomeConsumptionKWH: 3,
		}, tuning)
		var derr *DecompositionError
		require.ErrorAs(t, err, &derr)
		assert.Equal(t, KindConservationViolation, derr.Kind)
		assert.Equal(t, "gridExported", derr.Invariant)
		assert.InDelta(t, 2, derr.Delta, 1e-9)
	})

	t.Run("Import Mismatch Surfaces", func(t *testing.T) {
		_, err := decomposePeriod(types.PeriodInput{
			HomeConsumptionKWH: 4,
			GridImportedKWH:    1, // meter disagrees: the home needed 4
		}, tuning)
		var derr *DecompositionError
		require.ErrorAs(t, err, &derr)
		assert.Equal(t, "gridImported", derr.Invariant)
		assert.InDelta(t, 3, derr.Delta, 1e-9)
	})

	t.Run("No Negative Flows From Rounding", func(t *testing.T) {
		// 0.1+0.2 != 0.3 in floats. Whatever the subtraction noise, no
		// flow may come out below zero.
		f, err := decomposePeriod(types.PeriodInput{
			SolarProductionKWH: 0.3,
			HomeConsumptionKWH: 0.1 + 0.2,
			BatteryActionKWH:   -0.1,
			GridExportedKWH:    0.1,
		}, tuning)
		require.NoError(t, err)
		for _, v := range []float64{
			f.SolarToHomeKWH, f.SolarToBatteryKWH, f.SolarToGridKWH,
			f.GridToHomeKWH, f.GridToBatteryKWH,
			f.BatteryToHomeKWH, f.BatteryToGridKWH,
		} {
			assert.GreaterOrEqual(t, v, 0.0)
		}
	})
}

func TestDecomposeConservation(t *testing.T) {
	tuning := DefaultTuning()

	// Sweep a grid of charge/discharge/solar/demand combinations with
	// consistent metered values and check every balance holds.
	for _, solar := range []float64{0, 0.5, 2, 6} {
		for _, cons := range []float64{0, 1, 3.3, 8} {
			for _, battery := range []float64{-4, -1.5, 0, 1.5, 4} {
				p := consistentPeriod(0, "actual", 0.3, solar, cons, battery, 50, 50)
				f, err := decomposePeriod(p, tuning)
				require.NoError(t, err)

				assert.InDelta(t, p.SolarProductionKWH, f.SolarToHomeKWH+f.SolarToBatteryKWH+f.SolarToGridKWH, 1e-3)
				assert.InDelta(t, p.HomeConsumptionKWH, f.SolarToHomeKWH+f.GridToHomeKWH+f.BatteryToHomeKWH, 1e-3)
				assert.InDelta(t, p.GridImportedKWH, f.GridToHomeKWH+f.GridToBatteryKWH, 1e-3)
				assert.InDelta(t, p.GridExportedKWH, f.SolarToGridKWH+f.BatteryToGridKWH, 1e-3)
				assert.InDelta(t, p.ChargedKWH(), f.SolarToBatteryKWH+f.GridToBatteryKWH, 1e-3)
				assert.InDelta(t, p.DischargedKWH(), f.BatteryToHomeKWH+f.BatteryToGridKWH, 1e-3)
			}
		}
	}
}
