package types

// DataSource tells whether a period's telemetry was measured or forecast.
type DataSource string

const (
	DataSourceActual    DataSource = "actual"
	DataSourcePredicted DataSource = "predicted"
)

// RawPeriod is one period of telemetry exactly as the upstream
// data/optimization system sent it. Producers disagree on field names
// (camelCase, snake_case, legacy aliases), so the engine resolves them
// through a fixed precedence list once at the boundary.
type RawPeriod map[string]any

// PeriodInput is one normalized, validated period of telemetry.
type PeriodInput struct {
	Index      int        `json:"index"`
	DataSource DataSource `json:"dataSource"`

	// Prices in $/kWh. SellPrice never exceeds BuyPrice.
	BuyPrice  float64 `json:"buyPrice"`
	SellPrice float64 `json:"sellPrice"`

	SolarProductionKWH float64 `json:"solarProductionKWH"`
	HomeConsumptionKWH float64 `json:"homeConsumptionKWH"`
	GridImportedKWH    float64 `json:"gridImportedKWH"`
	GridExportedKWH    float64 `json:"gridExportedKWH"`

	// BatteryActionKWH is positive when charging, negative when discharging.
	BatteryActionKWH float64 `json:"batteryActionKWH"`

	BatterySOCStart float64 `json:"batterySOCStart"` // 0-100
	BatterySOCEnd   float64 `json:"batterySOCEnd"`   // 0-100

	BatteryCapacityKWH float64 `json:"batteryCapacityKWH"`
}

// ChargedKWH returns the energy put into the battery this period.
func (p PeriodInput) ChargedKWH() float64 {
	if p.BatteryActionKWH > 0 {
		return p.BatteryActionKWH
	}
	return 0
}

// DischargedKWH returns the energy drawn from the battery this period.
func (p PeriodInput) DischargedKWH() float64 {
	if p.BatteryActionKWH < 0 {
		return -p.BatteryActionKWH
	}
	return 0
}

// FlowDecomposition is the physically consistent split of a period's
// energy across destinations. Solar flows always sum to the period's
// solar production and home flows to its consumption.
type FlowDecomposition struct {
	SolarToHomeKWH    float64 `json:"solarToHomeKWH"`
	SolarToBatteryKWH float64 `json:"solarToBatteryKWH"`
	SolarToGridKWH    float64 `json:"solarToGridKWH"`
	GridToHomeKWH     float64 `json:"gridToHomeKWH"`
	GridToBatteryKWH  float64 `json:"gridToBatteryKWH"`
	BatteryToHomeKWH  float64 `json:"batteryToHomeKWH"`
	BatteryToGridKWH  float64 `json:"batteryToGridKWH"`
}

// Add accumulates other into f, field by field.
func (f *FlowDecomposition) Add(other FlowDecomposition) {
	f.SolarToHomeKWH += other.SolarToHomeKWH
	f.SolarToBatteryKWH += other.SolarToBatteryKWH
	f.SolarToGridKWH += other.SolarToGridKWH
	f.GridToHomeKWH += other.GridToHomeKWH
	f.GridToBatteryKWH += other.GridToBatteryKWH
	f.BatteryToHomeKWH += other.BatteryToHomeKWH
	f.BatteryToGridKWH += other.BatteryToGridKWH
}

// ScenarioCosts compares what the period cost under three scenarios:
// buying everything from the grid, solar without a battery, and the
// actual solar+battery operation. Savings attribute the difference to
// solar vs the battery and always satisfy
// TotalSavings == SolarSavings + BatterySavings.
type ScenarioCosts struct {
	GridOnlyCost  float64 `json:"gridOnlyCost"`
	SolarOnlyCost float64 `json:"solarOnlyCost"`
	OptimizedCost float64 `json:"optimizedCost"`

	SolarSavings   float64 `json:"solarSavings"`
	BatterySavings float64 `json:"batterySavings"`
	TotalSavings   float64 `json:"totalSavings"`
}

// Add accumulates other into c, field by field.
func (c *ScenarioCosts) Add(other ScenarioCosts) {
	c.GridOnlyCost += other.GridOnlyCost
	c.SolarOnlyCost += other.SolarOnlyCost
	c.OptimizedCost += other.OptimizedCost
	c.SolarSavings += other.SolarSavings
	c.BatterySavings += other.BatterySavings
	c.TotalSavings += other.TotalSavings
}

// DecisionAction classifies the battery's behavior for a period.
type DecisionAction string

const (
	DecisionActionCharge    DecisionAction = "charge"
	DecisionActionDischarge DecisionAction = "discharge"
	DecisionActionHold      DecisionAction = "hold"
)

// DecisionReason is the machine-readable key for why the battery acted.
type DecisionReason string

const (
	DecisionReasonOptimalCharge        DecisionReason = "optimalCharge"
	DecisionReasonPriceArbitrageCharge DecisionReason = "priceArbitrageCharge"
	DecisionReasonSolarExcessStorage   DecisionReason = "solarExcessStorage"
	DecisionReasonScheduledCharge      DecisionReason = "scheduledCharge"
	DecisionReasonHighPriceArbitrage   DecisionReason = "highPriceArbitrage"
	DecisionReasonSolarDeficitCoverage DecisionReason = "solarDeficitCoverage"
	DecisionReasonScheduledDischarge   DecisionReason = "scheduledDischarge"
	DecisionReasonConstrainedHold      DecisionReason = "constrainedHold"
	DecisionReasonOptimalHold          DecisionReason = "optimalHold"
)

// FutureOpportunity points a charging period at the later high-price
// periods its stored energy can serve.
type FutureOpportunity struct {
	// ExpectedValue is the estimated $ benefit of discharging the energy
	// stored this period at the best later high-price period, after
	// round-trip losses and cycle cost.
	ExpectedValue float64 `json:"expectedValue"`
	// TargetPeriods are the indexes of later periods whose price ranks in
	// the day's high band.
	TargetPeriods []int `json:"targetPeriods"`
}

// Decision explains a period's battery action.
type Decision struct {
	Action DecisionAction `json:"action"`
	Reason DecisionReason `json:"reason"`
	// PrimaryReason is the display form of Reason.
	PrimaryReason string `json:"primaryReason"`
	// OpportunityScore rates, in [0,1], how well the action exploited the
	// period's economic context.
	OpportunityScore float64 `json:"opportunityScore"`
	// EconomicChain is the ordered causal narrative
	// (trigger, action, consequence, and optionally future benefit), with
	// the numbers that justified the classification embedded in the text.
	EconomicChain     []string           `json:"economicChain"`
	FutureOpportunity *FutureOpportunity `json:"futureOpportunity,omitempty"`
}

// PeriodResult bundles everything derived for one period. Consumers
// (tables, flow charts, the decision explorer, reports) read from it
// and never recompute a derived field themselves.
type PeriodResult struct {
	Input           PeriodInput       `json:"input"`
	Flows           FlowDecomposition `json:"flows"`
	Costs           ScenarioCosts     `json:"costs"`
	Decision        Decision          `json:"decision"`
	PricePercentile float64           `json:"pricePercentile"`
}
