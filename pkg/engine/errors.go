package engine

import "fmt"

// ErrorKind classifies engine failures so callers can branch without string
// matching.
type ErrorKind string

const (
	// KindInvalidValue means a field was present but unusable (wrong type,
	// out of range, or non-finite).
	KindInvalidValue ErrorKind = "invalidValue"
	// KindMissingRequiredField means a field the engine cannot default was
	// absent.
	KindMissingRequiredField ErrorKind = "missingRequiredField"
	// KindConservationViolation means the decomposed flows do not reconcile
	// with the metered grid totals.
	KindConservationViolation ErrorKind = "conservationViolation"
	// KindNoValidPeriods means every period of the day failed normalization
	// or decomposition.
	KindNoValidPeriods ErrorKind = "noValidPeriods"
	// KindInvalidCapacity means the day-level battery capacity was missing,
	// non-positive, or non-finite.
	KindInvalidCapacity ErrorKind = "invalidCapacity"
)

// NormalizationError reports why a single raw period could not be turned into
// a PeriodInput. The period is skipped, not the day.
type NormalizationError struct {
	Kind  ErrorKind
	Field string
	Value any
}

func (e *NormalizationError) Error() string {
	if e.Kind == KindMissingRequiredField {
		return fmt.Sprintf("missing required field %q", e.Field)
	}
	return fmt.Sprintf("invalid value for %q: %v", e.Field, e.Value)
}

// DecompositionError reports a conservation check that failed after flow
// allocation. Delta is how far the computed total landed from the metered
// value, in kWh.
type DecompositionError struct {
	Kind      ErrorKind
	Invariant string
	Delta     float64
}

func (e *DecompositionError) Error() string {
	return fmt.Sprintf("%s does not reconcile, off by %.4f kWh", e.Invariant, e.Delta)
}

// Error is a day-level failure. Per-period failures never produce one, they
// are reported as skipped periods on the DailyView instead.
type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }
