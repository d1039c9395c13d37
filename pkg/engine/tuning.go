package engine

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Tuning holds the thresholds and heuristic constants behind flow
// reconciliation and decision classification. The defaults are the values the
// scheduler shipped with. They are heuristic tuning values with no documented
// derivation, so they are kept configurable rather than hard-coded.
type Tuning struct {
	// HoldBandKWH is the battery action magnitude at or below which a
	// period counts as a hold instead of a charge or discharge.
	HoldBandKWH float64 `yaml:"hold_band_kwh"`

	// SolarMarginKWH is how far solar production must exceed (or trail)
	// home consumption before the surplus (or deficit) is considered
	// significant for classification.
	SolarMarginKWH float64 `yaml:"solar_margin_kwh"`

	// LowPricePercentile and HighPricePercentile bound the cheap and
	// expensive ends of the day's price distribution.
	LowPricePercentile  float64 `yaml:"low_price_percentile"`
	HighPricePercentile float64 `yaml:"high_price_percentile"`

	// LowSOC and HighSOC mark the state-of-charge levels below/above which
	// the battery is considered constrained from discharging/charging.
	LowSOC  float64 `yaml:"low_soc"`
	HighSOC float64 `yaml:"high_soc"`

	// RoundTripEfficiency discounts energy stored now and sold later.
	RoundTripEfficiency float64 `yaml:"round_trip_efficiency"`

	// CycleCostDollars is the wear cost charged against a future resale
	// opportunity.
	CycleCostDollars float64 `yaml:"cycle_cost_dollars"`

	// DefaultSellPriceRatio fills in a missing sell price as a fraction of
	// the buy price. Telemetry sources disagree on this ratio, so it is a
	// setting rather than a constant.
	DefaultSellPriceRatio float64 `yaml:"default_sell_price_ratio"`

	// ConservationEpsilonKWH is the tolerance when checking decomposed
	// flows against metered totals.
	ConservationEpsilonKWH float64 `yaml:"conservation_epsilon_kwh"`

	// ClampEpsilonKWH is the magnitude below which a negative flow left
	// over from float rounding is clamped to zero.
	ClampEpsilonKWH float64 `yaml:"clamp_epsilon_kwh"`
}

// DefaultTuning returns the shipped tuning values.
func DefaultTuning() Tuning {
	return Tuning{
		HoldBandKWH:            0.1,
		SolarMarginKWH:         1.0,
		LowPricePercentile:     30,
		HighPricePercentile:    70,
		LowSOC:                 20,
		HighSOC:                90,
		RoundTripEfficiency:    0.85,
		CycleCostDollars:       0.08,
		DefaultSellPriceRatio:  0.6,
		ConservationEpsilonKWH: 1e-3,
		ClampEpsilonKWH:        1e-6,
	}
}

// LoadTuning reads a YAML file and overlays it on the defaults. Fields absent
// from the file keep their default values.
func LoadTuning(path string) (Tuning, error) {
	t := DefaultTuning()
	raw, err := os.ReadFile(path)
	if err != nil {
		return Tuning{}, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return Tuning{}, fmt.Errorf("parsing tuning file %s: %w", path, err)
	}
	if err := t.Validate(); err != nil {
		return Tuning{}, fmt.Errorf("tuning file %s: %w", path, err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.HoldBandKWH < 0 || !isFinite(t.HoldBandKWH) {
		return fmt.Errorf("hold_band_kwh must be non-negative, got %v", t.HoldBandKWH)
	}
	if t.SolarMarginKWH < 0 || !isFinite(t.SolarMarginKWH) {
		return fmt.Errorf("solar_margin_kwh must be non-negative, got %v", t.SolarMarginKWH)
	}
	if t.LowPricePercentile < 0 || t.LowPricePercentile > 100 {
		return fmt.Errorf("low_price_percentile must be within [0,100], got %v", t.LowPricePercentile)
	}
	if t.HighPricePercentile < 0 || t.HighPricePercentile > 100 {
		return fmt.Errorf("high_price_percentile must be within [0,100], got %v", t.HighPricePercentile)
	}
	if t.LowPricePercentile >= t.HighPricePercentile {
		return fmt.Errorf("low_price_percentile (%v) must be below high_price_percentile (%v)",
			t.LowPricePercentile, t.HighPricePercentile)
	}
	if t.LowSOC < 0 || t.LowSOC > 100 {
		return fmt.Errorf("low_soc must be within [0,100], got %v", t.LowSOC)
	}
	if t.HighSOC < 0 || t.HighSOC > 100 {
		return fmt.Errorf("high_soc must be within [0,100], got %v", t.HighSOC)
	}
	if t.LowSOC >= t.HighSOC {
		return fmt.Errorf("low_soc (%v) must be below high_soc (%v)", t.LowSOC, t.HighSOC)
	}
	if t.RoundTripEfficiency <= 0 || t.RoundTripEfficiency > 1 {
		return fmt.Errorf("round_trip_efficiency must be within (0,1], got %v", t.RoundTripEfficiency)
	}
	if t.CycleCostDollars < 0 || !isFinite(t.CycleCostDollars) {
		return fmt.Errorf("cycle_cost_dollars must be non-negative, got %v", t.CycleCostDollars)
	}
	if t.DefaultSellPriceRatio < 0 || t.DefaultSellPriceRatio > 1 {
		return fmt.Errorf("default_sell_price_ratio must be within [0,1], got %v", t.DefaultSellPriceRatio)
	}
	if t.ConservationEpsilonKWH <= 0 {
		return fmt.Errorf("conservation_epsilon_kwh must be positive, got %v", t.ConservationEpsilonKWH)
	}
	if t.ClampEpsilonKWH <= 0 {
		return fmt.Errorf("clamp_epsilon_kwh must be positive, got %v", t.ClampEpsilonKWH)
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
