package engine

import (
	"math"

	"github.com/fluxboard/fluxboard/pkg/types"
)

// decomposePeriod splits the period's energy across source-to-destination
// flows, preferring self-consumption: solar serves the home first, then the
// battery covers any shortfall, then the grid. Surplus solar charges the
// battery before exporting. The result is checked against the metered grid
// totals; a mismatch beyond tolerance means the upstream telemetry is
// inconsistent and the period must be surfaced as skipped, not patched.
func decomposePeriod(p types.PeriodInput, tuning Tuning) (types.FlowDecomposition, error) {
	var f types.FlowDecomposition

	f.SolarToHomeKWH = math.Min(p.SolarProductionKWH, p.HomeConsumptionKWH)
	need := p.HomeConsumptionKWH - f.SolarToHomeKWH
	if p.BatteryActionKWH < 0 {
		f.BatteryToHomeKWH = math.Min(-p.BatteryActionKWH, need)
		need -= f.BatteryToHomeKWH
	}
	f.GridToHomeKWH = need

	surplus := p.SolarProductionKWH - f.SolarToHomeKWH
	if p.BatteryActionKWH > 0 {
		f.SolarToBatteryKWH = math.Min(surplus, p.BatteryActionKWH)
		f.GridToBatteryKWH = p.BatteryActionKWH - f.SolarToBatteryKWH
	}
	f.SolarToGridKWH = surplus - f.SolarToBatteryKWH
	f.BatteryToGridKWH = math.Max(-p.BatteryActionKWH-f.BatteryToHomeKWH, 0)

	// Tiny negatives left over from float subtraction are rounding noise,
	// not allocation failures.
	for _, v := range []*float64{
		&f.SolarToHomeKWH, &f.SolarToBatteryKWH, &f.SolarToGridKWH,
		&f.GridToHomeKWH, &f.GridToBatteryKWH,
		&f.BatteryToHomeKWH, &f.BatteryToGridKWH,
	} {
		if *v < 0 && *v > -tuning.ClampEpsilonKWH {
			*v = 0
		}
	}

	for _, check := range []struct {
		invariant string
		computed  float64
		metered   float64
	}{
		{"solarProduction", f.SolarToHomeKWH + f.SolarToBatteryKWH + f.SolarToGridKWH, p.SolarProductionKWH},
		{"homeConsumption", f.SolarToHomeKWH + f.GridToHomeKWH + f.BatteryToHomeKWH, p.HomeConsumptionKWH},
		{"gridImported", f.GridToHomeKWH + f.GridToBatteryKWH, p.GridImportedKWH},
		{"gridExported", f.SolarToGridKWH + f.BatteryToGridKWH, p.GridExportedKWH},
	} {
		delta := check.computed - check.metered
		if math.Abs(delta) > tuning.ConservationEpsilonKWH {
			return types.FlowDecomposition{}, &DecompositionError{
				Kind:      KindConservationViolation,
				Invariant: check.invariant,
				Delta:     delta,
			}
		}
	}
	return f, nil
}
