package tariff

import (
	"context"
	"time"
)

// RatePeriod is a single half-hour tariff record. Start is the UTC instant
// the rate becomes valid, Rate is the price including tax in pence per kWh.
type RatePeriod struct {
	Start time.Time `json:"start"`
	Rate  float64   `json:"rate"`
}

// DayRateTable is the ordered sequence of half-hour rates published for one
// local calendar day. A full table holds 46, 47 or 48 records depending on
// daylight saving; anything shorter must not be used for whole-day decisions.
type DayRateTable struct {
	Date    string       `json:"date"` // local calendar day, 2006-01-02
	Periods []RatePeriod `json:"periods"`
}

// Len returns the number of rate records in the table.
func (t DayRateTable) Len() int { return len(t.Periods) }

// RateFor returns the rate whose period covers the given period identifier.
func (t DayRateTable) RateFor(id PeriodID) (float64, bool) {
	for _, p := range t.Periods {
		if PeriodOf(p.Start) == id {
			return p.Rate, true
		}
	}
	return 0, false
}

// ConsumptionRecord is one metered half-hour reading. Quantity is kWh for
// electricity meters and cubic metres for gas meters.
type ConsumptionRecord struct {
	IntervalStart time.Time `json:"interval_start"`
	Quantity      float64   `json:"quantity"`
}

// MeterRef identifies a meter at the upstream source.
type MeterRef struct {
	Fuel   string // "electricity" or "gas"
	Point  string // MPAN / MPRN
	Serial string
}

// RateSource is the upstream tariff and consumption data source. All calls
// are expected to honour context cancellation and return a *FetchError on
// transport or decoding failure.
type RateSource interface {
	// Rates returns the half-hourly unit rates for the given local calendar
	// day (2006-01-02), sorted ascending by start time.
	Rates(ctx context.Context, region, date string) (DayRateTable, error)
	// StandingCharge returns the current daily standing charge in pence.
	StandingCharge(ctx context.Context, region string) (float64, error)
	// Consumption returns metered half-hour readings for the given window,
	// sorted ascending by interval start.
	Consumption(ctx context.Context, meter MeterRef, from, to time.Time) ([]ConsumptionRecord, error)
	// ResolveRegion maps a postcode to its grid supply point region letter.
	ResolveRegion(ctx context.Context, postcode string) (string, error)
}

// LocalDay returns the calendar date of now in the given zone, formatted
// 2006-01-02. This is the only date format used as a cache key.
func LocalDay(now time.Time, loc *time.Location) string {
	return now.In(loc).Format("2006-01-02")
}
