// Package engine reconciles one day of battery telemetry into consistent
// energy flows, comparable cost scenarios, and per-period decision
// rationales. It is the single place these numbers are derived; consumers
// read PeriodResult and DaySummary and never recompute them.
package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/levenlabs/go-lflag"

	"github.com/fluxboard/fluxboard/pkg/log"
	"github.com/fluxboard/fluxboard/pkg/types"
)

// Engine computes daily views. It holds only tuning values, so it is safe to
// share across requests and call concurrently.
type Engine struct {
	tuning Tuning
}

// New returns an Engine using the given tuning. The tuning is assumed to have
// passed Validate.
func New(tuning Tuning) *Engine {
	return &Engine{tuning: tuning}
}

// Configured returns an Engine configured via lflag.
func Configured() *Engine {
	tuningFile := lflag.String("engine-tuning-file", "", "Optional YAML file overriding the engine tuning defaults")
	e := New(DefaultTuning())
	lflag.Do(func() {
		if *tuningFile == "" {
			return
		}
		t, err := LoadTuning(*tuningFile)
		if err != nil {
			panic("loading engine tuning: " + err.Error())
		}
		e.tuning = t
	})
	return e
}

// WithSellPriceRatio returns an Engine whose missing-sell-price default uses
// the given ratio. Ratios outside (0,1] leave the engine unchanged.
func (e *Engine) WithSellPriceRatio(ratio float64) *Engine {
	if ratio <= 0 || ratio > 1 {
		return e
	}
	t := e.tuning
	t.DefaultSellPriceRatio = ratio
	return New(t)
}

// ComputeDailyView runs the full pipeline over one day of raw telemetry:
// normalize each period, build the day's price-percentile table, decompose
// flows, price the three scenarios, and classify every battery action, then
// fold the results into a DaySummary.
//
// dayStart is the day's midnight in the site's timezone and now is the
// current wall clock; together they locate the period boundary that separates
// measured history from predictions. Periods that fail normalization or
// decomposition are excluded from the summary and reported in
// SkippedPeriods. An error is returned only when no period at all survives,
// or when capacityKWH is unusable.
func (e *Engine) ComputeDailyView(ctx context.Context, dayStart time.Time, raws []types.RawPeriod,
	capacityKWH float64, now time.Time) (*types.DailyView, error) {

	if capacityKWH <= 0 || !isFinite(capacityKWH) {
		return nil, &Error{
			Kind: KindInvalidCapacity,
			Msg:  fmt.Sprintf("battery capacity must be a positive number of kWh, got %v", capacityKWH),
		}
	}
	if len(raws) == 0 {
		return nil, &Error{Kind: KindNoValidPeriods, Msg: "day contains no periods"}
	}

	// Pass 1: normalize what we can and collect the day's prices.
	inputs := make([]types.PeriodInput, 0, len(raws))
	var skipped []types.SkippedPeriod
	for i, raw := range raws {
		p, err := normalizePeriod(raw, i, e.tuning)
		if err != nil {
			log.Ctx(ctx).Debug("skipping period", "index", i, "stage", types.SkipStageNormalize, "error", err)
			skipped = append(skipped, types.SkippedPeriod{
				Index: i,
				Stage: types.SkipStageNormalize,
				Error: err.Error(),
			})
			continue
		}
		p.BatteryCapacityKWH = capacityKWH
		inputs = append(inputs, p)
	}

	percentiles := pricePercentiles(inputs)
	points := make([]pricePoint, len(inputs))
	for i, p := range inputs {
		points[i] = pricePoint{index: p.Index, price: p.BuyPrice, percentile: percentiles[i]}
	}

	// Pass 2: decompose, cost, and classify each surviving period.
	results := make([]types.PeriodResult, 0, len(inputs))
	for i, p := range inputs {
		flows, err := decomposePeriod(p, e.tuning)
		if err != nil {
			log.Ctx(ctx).Debug("skipping period", "index", p.Index, "stage", types.SkipStageDecompose, "error", err)
			skipped = append(skipped, types.SkippedPeriod{
				Index: p.Index,
				Stage: types.SkipStageDecompose,
				Error: err.Error(),
			})
			continue
		}
		costs := scenarioCosts(p, flows)
		decision := explainPeriod(p, flows, costs, percentiles[i], points[i+1:], e.tuning)
		results = append(results, types.PeriodResult{
			Input:           p,
			Flows:           flows,
			Costs:           costs,
			Decision:        decision,
			PricePercentile: percentiles[i],
		})
	}
	if len(results) == 0 {
		return nil, &Error{
			Kind: KindNoValidPeriods,
			Msg:  fmt.Sprintf("all %d periods failed validation", len(raws)),
		}
	}

	sort.Slice(skipped, func(i, j int) bool {
		if skipped[i].Index != skipped[j].Index {
			return skipped[i].Index < skipped[j].Index
		}
		return skipped[i].Stage < skipped[j].Stage
	})

	current := currentPeriodIndex(dayStart, now, len(raws))
	return &types.DailyView{
		Periods:        results,
		Summary:        summarize(results, capacityKWH, current),
		SkippedPeriods: skipped,
	}, nil
}

// pricePercentiles ranks each period's buy price within the day, 0 being the
// cheapest period and 100 the most expensive. Ties share the mean of the
// ranks they span, so a flat tariff puts every period at 50.
func pricePercentiles(inputs []types.PeriodInput) []float64 {
	out := make([]float64, len(inputs))
	if len(inputs) <= 1 {
		for i := range out {
			out[i] = 50
		}
		return out
	}
	span := float64(len(inputs) - 1)
	for i, p := range inputs {
		var less, equal float64
		for j, q := range inputs {
			if j == i {
				continue
			}
			switch {
			case q.BuyPrice < p.BuyPrice:
				less++
			case q.BuyPrice == p.BuyPrice:
				equal++
			}
		}
		out[i] = (less + equal/2) / span * 100
	}
	return out
}

// currentPeriodIndex locates the period whose wall-clock boundary contains
// now. Days are treated as a nominal 24 hours split evenly across the
// supplied period count. Before the day starts the index is -1; after it
// ends, the period count.
func currentPeriodIndex(dayStart, now time.Time, periods int) int {
	elapsed := now.Sub(dayStart)
	if elapsed < 0 {
		return -1
	}
	idx := int(elapsed / (24 * time.Hour / time.Duration(periods)))
	if idx > periods {
		idx = periods
	}
	return idx
}

func summarize(results []types.PeriodResult, capacityKWH float64, currentPeriod int) types.DaySummary {
	s := types.DaySummary{
		ValidPeriods:  len(results),
		CurrentPeriod: currentPeriod,
	}
	for _, r := range results {
		s.TotalSolarProductionKWH += r.Input.SolarProductionKWH
		s.TotalHomeConsumptionKWH += r.Input.HomeConsumptionKWH
		s.TotalGridImportedKWH += r.Input.GridImportedKWH
		s.TotalGridExportedKWH += r.Input.GridExportedKWH
		s.TotalBatteryChargedKWH += r.Input.ChargedKWH()
		s.TotalBatteryDischargedKWH += r.Input.DischargedKWH()
		s.AverageBuyPrice += r.Input.BuyPrice
		s.Flows.Add(r.Flows)
		s.Costs.Add(r.Costs)

		if r.Input.DataSource == types.DataSourceActual {
			s.ActualPeriods++
		} else {
			s.PredictedPeriods++
		}
		// Periods behind the clock should be measurements and periods
		// ahead of it predictions. A mismatch is a data-quality flag,
		// not an error.
		expectActual := r.Input.Index < currentPeriod
		if (r.Input.DataSource == types.DataSourceActual) != expectActual {
			s.MisclassifiedPeriods = append(s.MisclassifiedPeriods, r.Input.Index)
		}
	}
	s.AverageBuyPrice /= float64(len(results))
	s.CycleCount = (s.TotalBatteryChargedKWH + s.TotalBatteryDischargedKWH) / (2 * capacityKWH)
	s.TotalSavingsPercent = pct(s.Costs.TotalSavings, s.Costs.GridOnlyCost)
	s.SolarSavingsPercent = pct(s.Costs.SolarSavings, s.Costs.GridOnlyCost)
	s.BatterySavingsPercent = pct(s.Costs.BatterySavings, s.Costs.GridOnlyCost)
	s.SelfSufficiencyPercent = pct(s.TotalHomeConsumptionKWH-s.Flows.GridToHomeKWH, s.TotalHomeConsumptionKWH)
	sort.Ints(s.MisclassifiedPeriods)
	return s
}

// pct is a division-by-zero guarded percentage: part of a zero whole is 0%.
func pct(part, whole float64) float64 {
	if whole == 0 {
		return 0
	}
	return part / whole * 100
}
