package tariff

import "time"

// PeriodID identifies a half-hour tariff period by its UTC start instant,
// formatted 2006-01-02T15:04:05Z. Upstream rate records are anchored to UTC,
// so identifiers stay correct across daylight saving transitions.
type PeriodID string

const periodLayout = "2006-01-02T15:04:05Z"

// PeriodOf returns the identifier of the period containing t.
func PeriodOf(t time.Time) PeriodID {
	return PeriodID(t.UTC().Truncate(30 * time.Minute).Format(periodLayout))
}

// CurrentPeriod returns the identifier of the period containing now.
func CurrentPeriod(now time.Time) PeriodID { return PeriodOf(now) }

// CrossedBoundary reports whether now falls in a different period than prev.
// An empty prev means no period has been observed yet and always counts as
// crossed, forcing initial population.
func CrossedBoundary(prev PeriodID, now time.Time) bool {
	if prev == "" {
		return true
	}
	return CurrentPeriod(now) != prev
}

// PeriodTime parses a period identifier back into its UTC start instant.
func PeriodTime(id PeriodID) (time.Time, error) {
	return time.Parse(periodLayout, string(id))
}
