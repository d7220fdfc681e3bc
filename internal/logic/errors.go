package logic

import "fmt"

// DataIntegrityError means the input game set cannot be trusted (duplicate
// keys, out-of-order dates inside a group). It is fatal to a pipeline run:
// aggregating over corrupt input silently poisons every downstream average.
type DataIntegrityError struct {
	Reason string
}

func (e *DataIntegrityError) Error() string {
	return "data integrity: " + e.Reason
}

func integrityErrorf(format string, args ...any) error {
	return &DataIntegrityError{Reason: fmt.Sprintf(format, args...)}
}

// MissingDataError marks an absent snapshot or aggregate. At training time the
// affected row is excluded; at inference time the caller substitutes the
// documented default instead of failing.
type MissingDataError struct {
	What string
}

func (e *MissingDataError) Error() string {
	return "missing data: " + e.What
}

// InvalidInputError is a malformed prediction request. It is always surfaced
// to the caller, never silently defaulted or clamped.
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string {
	return "invalid input: " + e.Reason
}

func invalidInputf(format string, args ...any) error {
	return &InvalidInputError{Reason: fmt.Sprintf(format, args...)}
}

// ModelUnavailableError means the scorer could not load or apply a model.
// Callers get it alongside the fallback value so a failed prediction is never
// mistaken for a genuine 50/50 call.
type ModelUnavailableError struct {
	Reason string
}

func (e *ModelUnavailableError) Error() string {
	return "model unavailable: " + e.Reason
}

func modelUnavailablef(format string, args ...any) error {
	return &ModelUnavailableError{Reason: fmt.Sprintf(format, args...)}
}
