package tariff

import "fmt"

// FetchError reports a failed upstream request. Exactly one of Timeout,
// Status or the wrapped error describes the cause.
type FetchError struct {
	Op      string // "rates", "standing-charge", "consumption", "region"
	Status  int    // non-zero when the API answered with a bad HTTP status
	Timeout bool
	Err     error
}

func (e *FetchError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("%s: request timed out", e.Op)
	case e.Status != 0:
		return fmt.Sprintf("%s: API returned status %d", e.Op, e.Status)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// IncompleteDataError reports a rate or consumption table whose record count
// does not match what a full day requires. The stale table is kept and the
// fetch retried on the next eligible cycle.
type IncompleteDataError struct {
	Date string
	Got  int
	Want int
}

func (e *IncompleteDataError) Error() string {
	return fmt.Sprintf("incomplete data for %s: got %d records, want %d", e.Date, e.Got, e.Want)
}

// AlignmentError reports consumption and rate sequences of different lengths.
// Reconciling misaligned sequences silently produces wrong costs, so the
// caller must retry instead.
type AlignmentError struct {
	Consumption int
	Rates       int
}

func (e *AlignmentError) Error() string {
	return fmt.Sprintf("consumption/rate misalignment: %d consumption records vs %d rates", e.Consumption, e.Rates)
}

// ConfigurationError reports an invalid or missing entity setting. These are
// surfaced every cycle until corrected rather than retried automatically.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Reason)
}
