package charge

import (
	"sort"
	"time"

	"github.com/neilk/octowatch/internal/tariff"
)

// Config are the validated settings for one charge-decision entity.
type Config struct {
	Band         Band
	DesiredHours int     // hours of charge wanted per cycle
	PriceCeiling float64 // pence per kWh; no charging above this, inclusive
}

// Validate rejects malformed settings before they reach the decision logic.
func (c Config) Validate() error {
	if !c.Band.Valid() {
		return &tariff.ConfigurationError{Field: "band", Reason: "must be night, day or evening"}
	}
	if c.DesiredHours < 1 || c.DesiredHours > 10 {
		return &tariff.ConfigurationError{Field: "desired_hours", Reason: "must be between 1 and 10"}
	}
	if c.PriceCeiling <= 0 {
		return &tariff.ConfigurationError{Field: "price_ceiling", Reason: "must be a positive rate"}
	}
	return nil
}

// State is the per-entity controller state. DeliveredHours accumulates 0.5
// per period the load was switched on and resets once per day at the band's
// cycle boundary; it is never decremented elsewhere.
type State struct {
	CurrentPeriod    tariff.PeriodID
	DeliveredHours   float64
	RatesAvailable   bool
	On               bool
	LastResetDay     string // UTC day the counter last reset
	PreferredPeriods []tariff.PeriodID
	PreferredRates   []float64
}

// Engine derives the on/off charging signal for one deferrable load from
// the owning tariff entity's cached day table. Decisions are a pure
// function of current inputs; there is no hysteresis, so the load may
// toggle every half hour when prices cross the ceiling repeatedly.
type Engine struct {
	cfg Config
}

// New builds an engine from validated configuration.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg}, nil
}

// Evaluate advances the state for the period containing now. Re-evaluating
// within the same period is a no-op, which guarantees the delivered-hours
// increment fires at most once per period. Returns whether the state
// changed.
func (e *Engine) Evaluate(st *State, table tariff.DayRateTable, now time.Time) bool {
	if !tariff.CrossedBoundary(st.CurrentPeriod, now) {
		return false
	}
	current := tariff.CurrentPeriod(now)
	utc := now.UTC()
	spec := e.cfg.Band.spec()

	// Reset the cycle counter before evaluating the new period.
	day := utc.Format("2006-01-02")
	if utc.Hour() == spec.resetHour && st.LastResetDay != day {
		st.DeliveredHours = 0
		st.LastResetDay = day
	}

	st.PreferredPeriods, st.PreferredRates = e.preferredSet(table)
	st.RatesAvailable = !spec.blackout(utc.Hour())

	on := false
	if rate, ok := table.RateFor(current); ok && rate <= e.cfg.PriceCeiling {
		for _, id := range st.PreferredPeriods {
			if id == current {
				on = true
				break
			}
		}
	}
	st.On = on
	if on {
		st.DeliveredHours += 0.5
	}
	st.CurrentPeriod = current
	return true
}

// preferredSet filters today's table to the band's clock slots, sorts them
// ascending by rate and keeps the cheapest desiredHours*2, returned in the
// sorted order.
func (e *Engine) preferredSet(table tariff.DayRateTable) ([]tariff.PeriodID, []float64) {
	spec := e.cfg.Band.spec()
	var slots []tariff.RatePeriod
	for _, p := range table.Periods {
		if spec.contains(p) {
			slots = append(slots, p)
		}
	}
	sort.SliceStable(slots, func(i, j int) bool { return slots[i].Rate < slots[j].Rate })

	want := e.cfg.DesiredHours * 2
	if want > len(slots) {
		want = len(slots)
	}
	ids := make([]tariff.PeriodID, 0, want)
	rates := make([]float64, 0, want)
	for _, p := range slots[:want] {
		ids = append(ids, tariff.PeriodOf(p.Start))
		rates = append(rates, p.Rate)
	}
	return ids, rates
}
