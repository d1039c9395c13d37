package engine

import (
	"math"

	"github.com/fluxboard/fluxboard/pkg/types"
)

// scenarioCosts prices the period under three scenarios: buying everything
// from the grid, solar with no battery, and the optimized system as metered.
// The optimized cost is computed from the decomposed flows rather than the
// raw grid totals so that total savings always equal solar plus battery
// savings exactly. A negative cost is revenue and is reported as-is.
func scenarioCosts(p types.PeriodInput, f types.FlowDecomposition) types.ScenarioCosts {
	importNeeded := math.Max(p.HomeConsumptionKWH-math.Min(p.SolarProductionKWH, p.HomeConsumptionKWH), 0)
	solarExcess := math.Max(p.SolarProductionKWH-p.HomeConsumptionKWH, 0)

	imported := f.GridToHomeKWH + f.GridToBatteryKWH
	exported := f.SolarToGridKWH + f.BatteryToGridKWH

	c := types.ScenarioCosts{
		GridOnlyCost:  p.HomeConsumptionKWH * p.BuyPrice,
		SolarOnlyCost: importNeeded*p.BuyPrice - solarExcess*p.SellPrice,
		OptimizedCost: imported*p.BuyPrice - exported*p.SellPrice,
	}
	c.SolarSavings = c.GridOnlyCost - c.SolarOnlyCost
	c.BatterySavings = c.SolarOnlyCost - c.OptimizedCost
	c.TotalSavings = c.GridOnlyCost - c.OptimizedCost
	return c
}
