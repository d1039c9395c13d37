package types

import "time"

// DateFormat is the civil-date form used for telemetry day keys and API
// day parameters.
const DateFormat = "2006-01-02"

// Stages at which a period can be dropped from the daily view.
const (
	SkipStageNormalize = "normalize"
	SkipStageDecompose = "decompose"
)

// SkippedPeriod records one period excluded from the daily view and why.
type SkippedPeriod struct {
	Index int    `json:"index"`
	Stage string `json:"stage"`
	Error string `json:"error"`
}

// DaySummary folds the valid periods of one day into totals.
type DaySummary struct {
	TotalSolarProductionKWH   float64 `json:"totalSolarProductionKWH"`
	TotalHomeConsumptionKWH   float64 `json:"totalHomeConsumptionKWH"`
	TotalGridImportedKWH      float64 `json:"totalGridImportedKWH"`
	TotalGridExportedKWH      float64 `json:"totalGridExportedKWH"`
	TotalBatteryChargedKWH    float64 `json:"totalBatteryChargedKWH"`
	TotalBatteryDischargedKWH float64 `json:"totalBatteryDischargedKWH"`

	// Flows and Costs are the per-period fields summed over valid periods.
	Flows FlowDecomposition `json:"flows"`
	Costs ScenarioCosts     `json:"costs"`

	// AverageBuyPrice is the unweighted mean buy price across valid periods.
	AverageBuyPrice float64 `json:"averageBuyPrice"`

	// CycleCount is (charged + discharged) / (2 * capacity): full
	// equivalent battery cycles for the day.
	CycleCount float64 `json:"cycleCount"`

	// Percentages against the grid-only baseline, 0 when the baseline is 0.
	TotalSavingsPercent   float64 `json:"totalSavingsPercent"`
	SolarSavingsPercent   float64 `json:"solarSavingsPercent"`
	BatterySavingsPercent float64 `json:"batterySavingsPercent"`
	// SelfSufficiencyPercent is the share of home consumption not served
	// by the grid, 0 when there was no consumption.
	SelfSufficiencyPercent float64 `json:"selfSufficiencyPercent"`

	ActualPeriods    int `json:"actualPeriods"`
	PredictedPeriods int `json:"predictedPeriods"`
	ValidPeriods     int `json:"validPeriods"`

	// CurrentPeriod is the index whose wall-clock boundary contains "now":
	// -1 before the day starts, the period count once it has ended.
	CurrentPeriod int `json:"currentPeriod"`
	// MisclassifiedPeriods are periods whose actual/predicted label
	// disagrees with their position relative to CurrentPeriod. A
	// data-quality flag, not an error.
	MisclassifiedPeriods []int `json:"misclassifiedPeriods,omitempty"`
}

// DailyView is the engine's complete output for one day: every consumer
// reads derived values from here and nowhere else.
type DailyView struct {
	Periods        []PeriodResult  `json:"periods"`
	Summary        DaySummary      `json:"summary"`
	SkippedPeriods []SkippedPeriod `json:"skippedPeriods,omitempty"`
}

// TelemetryDay is one day of raw telemetry as stored: the periods are
// kept verbatim as received and normalized on every read.
type TelemetryDay struct {
	Date               string      `json:"date"` // YYYY-MM-DD
	BatteryCapacityKWH float64     `json:"batteryCapacityKWH"`
	Periods            []RawPeriod `json:"periods"`
	UpdatedAt          time.Time   `json:"updatedAt"`
}

// StartIn returns the day's period-0 boundary, midnight of Date in loc.
func (d *TelemetryDay) StartIn(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateFormat, d.Date, loc)
}
