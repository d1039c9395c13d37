package engine

import (
	"fmt"
	"math"

	"github.com/fluxboard/fluxboard/pkg/types"
)

// pricePoint is one valid period's place in the day's price distribution.
type pricePoint struct {
	index      int
	price      float64
	percentile float64
}

// reasonLabels are the display names for the decision taxonomy.
var reasonLabels = map[types.DecisionReason]string{
	types.DecisionReasonOptimalCharge:        "Optimal: low price + excess solar",
	types.DecisionReasonPriceArbitrageCharge: "Price arbitrage",
	types.DecisionReasonSolarExcessStorage:   "Solar excess storage",
	types.DecisionReasonScheduledCharge:      "Scheduled charging",
	types.DecisionReasonHighPriceArbitrage:   "High price arbitrage",
	types.DecisionReasonSolarDeficitCoverage: "Solar deficit coverage",
	types.DecisionReasonScheduledDischarge:   "Scheduled discharge",
	types.DecisionReasonConstrainedHold:      "Constrained hold",
	types.DecisionReasonOptimalHold:          "Optimal hold",
}

// explainPeriod classifies the battery action, scores how well it exploited
// the period's economic context, and builds the narrative chain a user sees
// when they ask why the battery did what it did. later holds the still-ahead
// valid periods so charges can point at upcoming resale opportunities.
func explainPeriod(p types.PeriodInput, f types.FlowDecomposition, c types.ScenarioCosts,
	percentile float64, later []pricePoint, tuning Tuning) types.Decision {

	action := classifyAction(p.BatteryActionKWH, tuning)
	excess := math.Max(p.SolarProductionKWH-p.HomeConsumptionKWH, 0)
	deficit := math.Max(p.HomeConsumptionKWH-p.SolarProductionKWH, 0)

	// First matching rule wins.
	var reason types.DecisionReason
	var score float64
	switch action {
	case types.DecisionActionCharge:
		switch {
		case excess >= tuning.SolarMarginKWH && percentile <= tuning.LowPricePercentile:
			reason, score = types.DecisionReasonOptimalCharge, 0.9
		case percentile <= tuning.LowPricePercentile:
			reason, score = types.DecisionReasonPriceArbitrageCharge, 0.8
		case excess >= tuning.SolarMarginKWH:
			reason, score = types.DecisionReasonSolarExcessStorage, 0.7
		default:
			reason, score = types.DecisionReasonScheduledCharge, 0.3
		}
	case types.DecisionActionDischarge:
		switch {
		case percentile >= tuning.HighPricePercentile:
			reason, score = types.DecisionReasonHighPriceArbitrage, 0.9
		case deficit >= tuning.SolarMarginKWH:
			reason, score = types.DecisionReasonSolarDeficitCoverage, 0.8
		default:
			reason, score = types.DecisionReasonScheduledDischarge, 0.4
		}
	default:
		constrained := (p.BatterySOCStart < tuning.LowSOC && percentile >= tuning.HighPricePercentile) ||
			(p.BatterySOCStart > tuning.HighSOC && percentile <= tuning.LowPricePercentile)
		if constrained {
			reason, score = types.DecisionReasonConstrainedHold, 0.3
		} else {
			reason, score = types.DecisionReasonOptimalHold, 0.8
		}
	}

	d := types.Decision{
		Action:           action,
		Reason:           reason,
		PrimaryReason:    reasonLabels[reason],
		OpportunityScore: score,
	}
	if action == types.DecisionActionCharge {
		d.FutureOpportunity = futureOpportunity(p, later, tuning)
	}

	chain := []string{triggerSegment(p, reason, percentile, excess, deficit, tuning)}
	if action != types.DecisionActionHold {
		chain = append(chain, actionSegment(p, f, action))
	}
	chain = append(chain, fmt.Sprintf(
		"Period cost lands at $%.2f against a $%.2f grid-only baseline",
		c.OptimizedCost, c.GridOnlyCost))
	if d.FutureOpportunity != nil {
		chain = append(chain, fmt.Sprintf(
			"%d expensive period(s) remain, worth an estimated $%.2f after efficiency and cycle cost",
			len(d.FutureOpportunity.TargetPeriods), d.FutureOpportunity.ExpectedValue))
	}
	d.EconomicChain = chain
	return d
}

func classifyAction(actionKWH float64, tuning Tuning) types.DecisionAction {
	switch {
	case actionKWH > tuning.HoldBandKWH:
		return types.DecisionActionCharge
	case actionKWH < -tuning.HoldBandKWH:
		return types.DecisionActionDischarge
	}
	return types.DecisionActionHold
}

// triggerSegment narrates what prompted the classification, embedding the
// numbers that justified it so the explanation is auditable against the raw
// telemetry.
func triggerSegment(p types.PeriodInput, reason types.DecisionReason,
	percentile, excess, deficit float64, tuning Tuning) string {

	switch reason {
	case types.DecisionReasonOptimalCharge:
		return fmt.Sprintf(
			"Buy price $%.3f/kWh sits at percentile %.0f of the day while solar exceeds home demand by %.1f kWh",
			p.BuyPrice, percentile, excess)
	case types.DecisionReasonPriceArbitrageCharge:
		return fmt.Sprintf(
			"Buy price $%.3f/kWh sits at percentile %.0f, within the cheapest %.0f%% of the day",
			p.BuyPrice, percentile, tuning.LowPricePercentile)
	case types.DecisionReasonSolarExcessStorage:
		return fmt.Sprintf(
			"Solar exceeds home demand by %.1f kWh at a mid-range price of $%.3f/kWh (percentile %.0f)",
			excess, p.BuyPrice, percentile)
	case types.DecisionReasonScheduledCharge:
		return fmt.Sprintf(
			"Schedule calls for charging at $%.3f/kWh (percentile %.0f) without a price or solar trigger",
			p.BuyPrice, percentile)
	case types.DecisionReasonHighPriceArbitrage:
		return fmt.Sprintf(
			"Buy price $%.3f/kWh sits at percentile %.0f, within the most expensive %.0f%% of the day",
			p.BuyPrice, percentile, 100-tuning.HighPricePercentile)
	case types.DecisionReasonSolarDeficitCoverage:
		return fmt.Sprintf(
			"Home demand exceeds solar by %.1f kWh at $%.3f/kWh (percentile %.0f)",
			deficit, p.BuyPrice, percentile)
	case types.DecisionReasonScheduledDischarge:
		return fmt.Sprintf(
			"Schedule calls for discharging at $%.3f/kWh (percentile %.0f) without a price or deficit trigger",
			p.BuyPrice, percentile)
	case types.DecisionReasonConstrainedHold:
		if p.BatterySOCStart < tuning.LowSOC {
			return fmt.Sprintf(
				"SOC %.0f%% is under the %.0f%% floor, so the high price (percentile %.0f) cannot be sold into",
				p.BatterySOCStart, tuning.LowSOC, percentile)
		}
		return fmt.Sprintf(
			"SOC %.0f%% is over the %.0f%% ceiling, so the low price (percentile %.0f) cannot be bought",
			p.BatterySOCStart, tuning.HighSOC, percentile)
	default:
		return fmt.Sprintf(
			"No profitable move at $%.3f/kWh (percentile %.0f) with solar and demand roughly balanced",
			p.BuyPrice, percentile)
	}
}

func actionSegment(p types.PeriodInput, f types.FlowDecomposition, action types.DecisionAction) string {
	if action == types.DecisionActionCharge {
		return fmt.Sprintf(
			"Battery charges %.1f kWh (%.1f solar, %.1f grid), raising SOC from %.0f%% to %.0f%%",
			p.BatteryActionKWH, f.SolarToBatteryKWH, f.GridToBatteryKWH,
			p.BatterySOCStart, p.BatterySOCEnd)
	}
	return fmt.Sprintf(
		"Battery discharges %.1f kWh (%.1f to home, %.1f to grid), dropping SOC from %.0f%% to %.0f%%",
		-p.BatteryActionKWH, f.BatteryToHomeKWH, f.BatteryToGridKWH,
		p.BatterySOCStart, p.BatterySOCEnd)
}

// futureOpportunity estimates what charging now is worth against the
// expensive periods still ahead of this one. Nil when no later period sits at
// or above the high price percentile.
func futureOpportunity(p types.PeriodInput, later []pricePoint, tuning Tuning) *types.FutureOpportunity {
	var targets []int
	best := math.Inf(-1)
	for _, pt := range later {
		if pt.percentile < tuning.HighPricePercentile {
			continue
		}
		targets = append(targets, pt.index)
		if pt.price > best {
			best = pt.price
		}
	}
	if len(targets) == 0 {
		return nil
	}

	headroomKWH := (100 - p.BatterySOCStart) / 100 * p.BatteryCapacityKWH
	storedKWH := math.Min(p.BatteryActionKWH, headroomKWH)
	return &types.FutureOpportunity{
		ExpectedValue: (best-p.BuyPrice)*storedKWH*tuning.RoundTripEfficiency - tuning.CycleCostDollars,
		TargetPeriods: targets,
	}
}
