package engine

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxboard/fluxboard/pkg/types"
)

func TestNormalizePeriod(t *testing.T) {
	tuning := DefaultTuning()

	t.Run("Alias Resolution", func(t *testing.T) {
		// Same record spelled three different ways.
		for name, raw := range map[string]types.RawPeriod{
			"camelCase": {
				"index": 3, "dataSource": "actual",
				"buyPrice": 0.32, "sellPrice": 0.12,
				"solarProduction": 4.0, "homeConsumption": 2.5,
				"gridImported": 0.0, "gridExported": 1.5,
				"batteryAction": 0.0, "batterySocStart": 40.0, "batterySocEnd": 40.0,
			},
			"snake_case": {
				"index": 3, "data_source": "actual",
				"buy_price": 0.32, "sell_price": 0.12,
				"solar_production": 4.0, "home_consumption": 2.5,
				"grid_imported": 0.0, "grid_exported": 1.5,
				"battery_action": 0.0, "battery_soc_start": 40.0, "battery_soc_end": 40.0,
			},
			"legacy": {
				"hour": 3, "source": "actual",
				"price": 0.32, "exportPrice": 0.12,
				"solar": 4.0, "consumption": 2.5,
				"imported": 0.0, "exported": 1.5,
				"battery": 0.0, "socStart": 40.0, "socEnd": 40.0,
			},
		} {
			t.Run(name, func(t *testing.T) {
				p, err := normalizePeriod(raw, 9, tuning)
				require.NoError(t, err)
				assert.Equal(t, 3, p.Index)
				assert.Equal(t, types.DataSourceActual, p.DataSource)
				assert.InDelta(t, 0.32, p.BuyPrice, 1e-9)
				assert.InDelta(t, 0.12, p.SellPrice, 1e-9)
				assert.InDelta(t, 4.0, p.SolarProductionKWH, 1e-9)
				assert.InDelta(t, 2.5, p.HomeConsumptionKWH, 1e-9)
				assert.InDelta(t, 1.5, p.GridExportedKWH, 1e-9)
				assert.InDelta(t, 40.0, p.BatterySOCStart, 1e-9)
			})
		}
	})

	t.Run("Precedence First Present Wins", func(t *testing.T) {
		p, err := normalizePeriod(types.RawPeriod{
			"buyPrice": 0.5,
			"price":    0.9,
		}, 0, tuning)
		require.NoError(t, err)
		assert.InDelta(t, 0.5, p.BuyPrice, 1e-9)
	})

	t.Run("Defaults", func(t *testing.T) {
		p, err := normalizePeriod(types.RawPeriod{"buyPrice": 1.0}, 7, tuning)
		require.NoError(t, err)
		// No explicit index, so the slice position is used.
		assert.Equal(t, 7, p.Index)
		assert.Equal(t, types.DataSourcePredicted, p.DataSource)
		// sellPrice defaults to buyPrice * 0.6, everything else to 0.
		assert.InDelta(t, 0.6, p.SellPrice, 1e-9)
		assert.Zero(t, p.SolarProductionKWH)
		assert.Zero(t, p.HomeConsumptionKWH)
		assert.Zero(t, p.BatteryActionKWH)
	})

	t.Run("Sell Default Stays Under Negative Buy", func(t *testing.T) {
		p, err := normalizePeriod(types.RawPeriod{"buyPrice": -0.05}, 0, tuning)
		require.NoError(t, err)
		// -0.05 * 0.6 = -0.03 would exceed the buy price, so the default
		// is pinned to the buy price itself.
		assert.InDelta(t, -0.05, p.SellPrice, 1e-9)
	})

	t.Run("Numeric Coercion", func(t *testing.T) {
		p, err := normalizePeriod(types.RawPeriod{
			"index":           int64(4),
			"buyPrice":        json.Number("0.25"),
			"solarProduction": "3.5",
			"homeConsumption": 2, // plain int
		}, 0, tuning)
		require.NoError(t, err)
		assert.Equal(t, 4, p.Index)
		assert.InDelta(t, 0.25, p.BuyPrice, 1e-9)
		assert.InDelta(t, 3.5, p.SolarProductionKWH, 1e-9)
		assert.InDelta(t, 2.0, p.HomeConsumptionKWH, 1e-9)
	})

	t.Run("Null Counts As Absent", func(t *testing.T) {
		p, err := normalizePeriod(types.RawPeriod{
			"buyPrice":  1.0,
			"sellPrice": nil,
		}, 0, tuning)
		require.NoError(t, err)
		assert.InDelta(t, 0.6, p.SellPrice, 1e-9)
	})

	t.Run("Data Source Variants", func(t *testing.T) {
		for s, want := range map[string]types.DataSource{
			"actual":   types.DataSourceActual,
			"Actual":   types.DataSourceActual,
			"measured": types.DataSourceActual,
			"forecast": types.DataSourcePredicted,
		} {
			p, err := normalizePeriod(types.RawPeriod{"dataSource": s}, 0, tuning)
			require.NoError(t, err)
			assert.Equal(t, want, p.DataSource, s)
		}
	})

	t.Run("Rejects Sell Above Buy", func(t *testing.T) {
		_, err := normalizePeriod(types.RawPeriod{
			"buyPrice":  0.2,
			"sellPrice": 0.5,
		}, 0, tuning)
		var nerr *NormalizationError
		require.ErrorAs(t, err, &nerr)
		assert.Equal(t, KindInvalidValue, nerr.Kind)
		assert.Equal(t, "sellPrice", nerr.Field)
	})

	t.Run("Rejects Negative Energy", func(t *testing.T) {
		for _, field := range []string{"solarProduction", "homeConsumption", "gridImported", "gridExported"} {
			_, err := normalizePeriod(types.RawPeriod{field: -1.0}, 0, tuning)
			var nerr *NormalizationError
			require.ErrorAs(t, err, &nerr, field)
			assert.Equal(t, KindInvalidValue, nerr.Kind)
			assert.Equal(t, field, nerr.Field)
		}
	})

	t.Run("Rejects SOC Out Of Range", func(t *testing.T) {
		_, err := normalizePeriod(types.RawPeriod{"batterySocStart": 101.0}, 0, tuning)
		var nerr *NormalizationError
		require.ErrorAs(t, err, &nerr)
		assert.Equal(t, "batterySocStart", nerr.Field)

		_, err = normalizePeriod(types.RawPeriod{"batterySocEnd": -0.5}, 0, tuning)
		require.ErrorAs(t, err, &nerr)
		assert.Equal(t, "batterySocEnd", nerr.Field)
	})

	t.Run("Rejects Non Finite", func(t *testing.T) {
		_, err := normalizePeriod(types.RawPeriod{"buyPrice": math.NaN()}, 0, tuning)
		var nerr *NormalizationError
		require.ErrorAs(t, err, &nerr)
		assert.Equal(t, KindInvalidValue, nerr.Kind)
		assert.Equal(t, "buyPrice", nerr.Field)
	})

	t.Run("Rejects Garbage Types", func(t *testing.T) {
		_, err := normalizePeriod(types.RawPeriod{"homeConsumption": "lots"}, 0, tuning)
		var nerr *NormalizationError
		require.ErrorAs(t, err, &nerr)
		assert.Equal(t, "homeConsumption", nerr.Field)

		_, err = normalizePeriod(types.RawPeriod{"dataSource": "guess"}, 0, tuning)
		require.ErrorAs(t, err, &nerr)
		assert.Equal(t, "dataSource", nerr.Field)
	})

	t.Run("Rejects Nil Record", func(t *testing.T) {
		_, err := normalizePeriod(nil, 0, tuning)
		var nerr *NormalizationError
		require.ErrorAs(t, err, &nerr)
		assert.Equal(t, KindMissingRequiredField, nerr.Kind)
	})

	t.Run("Sell Price Ratio Is Tunable", func(t *testing.T) {
		custom := tuning
		custom.DefaultSellPriceRatio = 0.8
		p, err := normalizePeriod(types.RawPeriod{"buyPrice": 1.0}, 0, custom)
		require.NoError(t, err)
		assert.InDelta(t, 0.8, p.SellPrice, 1e-9)
	})
}

func TestFoldKeys(t *testing.T) {
	folded := foldKeys(types.RawPeriod{
		"Battery_SOC_Start": 10.0,
		"grid-imported":     1.0,
		"home consumption":  2.0,
	})
	assert.Equal(t, 10.0, folded["batterysocstart"])
	assert.Equal(t, 1.0, folded["gridimported"])
	assert.Equal(t, 2.0, folded["homeconsumption"])

	// Colliding spellings resolve to the lexicographically first raw key
	// ("buyPrice" sorts before "buy_price") no matter the map iteration
	// order.
	for i := 0; i < 20; i++ {
		folded := foldKeys(types.RawPeriod{
			"buyPrice":  0.1,
			"buy_price": 0.2,
		})
		assert.Equal(t, 0.1, folded["buyprice"])
	}
}
