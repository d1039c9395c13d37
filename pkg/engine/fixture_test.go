package engine

import (
	"math"

	"github.com/fluxboard/fluxboard/pkg/types"
)

const testDayCapacityKWH = 10.0

// meteredGrid derives the grid import/export a meter would have recorded for
// the given solar/consumption/battery story, so fixtures reconcile.
func meteredGrid(solar, cons, battery float64) (imported, exported float64) {
	solarToHome := math.Min(solar, cons)
	need := cons - solarToHome
	surplus := solar - solarToHome
	charge := math.Max(battery, 0)
	discharge := math.Max(-battery, 0)

	batteryToHome := math.Min(discharge, need)
	need -= batteryToHome
	solarToBattery := math.Min(surplus, charge)

	imported = need + (charge - solarToBattery)
	exported = (surplus - solarToBattery) + (discharge - batteryToHome)
	return imported, exported
}

func consistentPeriod(index int, source types.DataSource, buy, solar, cons, battery, socStart, socEnd float64) types.PeriodInput {
	imported, exported := meteredGrid(solar, cons, battery)
	return types.PeriodInput{
		Index:              index,
		DataSource:         source,
		BuyPrice:           buy,
		SellPrice:          buy * 0.6,
		SolarProductionKWH: solar,
		HomeConsumptionKWH: cons,
		GridImportedKWH:    imported,
		GridExportedKWH:    exported,
		BatteryActionKWH:   battery,
		BatterySOCStart:    socStart,
		BatterySOCEnd:      socEnd,
		BatteryCapacityKWH: testDayCapacityKWH,
	}
}

func consistentRaw(index int, source types.DataSource, buy, solar, cons, battery, socStart, socEnd float64) types.RawPeriod {
	imported, exported := meteredGrid(solar, cons, battery)
	return types.RawPeriod{
		"index":           index,
		"dataSource":      string(source),
		"buyPrice":        buy,
		"sellPrice":       buy * 0.6,
		"solarProduction": solar,
		"homeConsumption": cons,
		"gridImported":    imported,
		"gridExported":    exported,
		"batteryAction":   battery,
		"batterySocStart": socStart,
		"batterySocEnd":   socEnd,
	}
}

// syntheticDay is 24 hours of plausible telemetry: cheap nights, a solar
// bell over midday, an expensive evening ramp, and a schedule that charges
// cheap, stores the midday surplus, and discharges into the peak. Hours
// before noon are actuals, the rest predictions.
func syntheticDay() []types.RawPeriod {
	raws := make([]types.RawPeriod, 0, 24)
	soc := 25.0
	for h := 0; h < 24; h++ {
		var buy float64
		switch {
		case h <= 5:
			buy = 0.10
		case h <= 8:
			buy = 0.25
		case h <= 15:
			buy = 0.15
		case h <= 20:
			buy = 0.45
		default:
			buy = 0.20
		}

		var solar float64
		if h >= 7 && h <= 19 {
			solar = 5 * math.Exp(-math.Pow(float64(h)-13, 2)/12)
		}

		cons := 0.8
		if h >= 7 && h <= 9 {
			cons += 0.7
		}
		if h >= 17 && h <= 21 {
			cons += 1.5
		}

		var battery float64
		switch {
		case h == 1 || h == 2:
			battery = 1.5
		case h >= 11 && h <= 13:
			battery = 1.2
		case h >= 17 && h <= 19:
			battery = -2.0
		}

		source := types.DataSourcePredicted
		if h < 12 {
			source = types.DataSourceActual
		}

		end := soc + battery*100/testDayCapacityKWH
		raws = append(raws, consistentRaw(h, source, buy, solar, cons, battery, soc, end))
		soc = end
	}
	return raws
}
