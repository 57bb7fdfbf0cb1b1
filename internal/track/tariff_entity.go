package track

import (
	"context"
	"strconv"
	"time"

	"github.com/neilk/octowatch/internal/metrics"
	"github.com/neilk/octowatch/internal/tariff"
)

// windowLabels names each lowest-cost window length in derived state keys.
var windowLabels = map[int]string{1: "30m", 2: "1h", 4: "2h", 6: "3h", 8: "4h"}

func fmtRate(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// TariffEntity tracks one tariff: it owns the rate cache for a region and
// publishes the current rate plus daily aggregates as derived state. Charge
// and consumption entities link to it by id and read its cache.
type TariffEntity struct {
	cfg        TariffConfig
	cache      *tariff.RateCache
	entry      tariff.TariffCacheEntry
	lastPeriod tariff.PeriodID
}

// NewTariffEntity builds a tariff entity, resolving the region from the
// postcode when not configured directly.
func NewTariffEntity(ctx context.Context, cfg TariffConfig, source tariff.RateSource, loc *time.Location, timeout time.Duration) (*TariffEntity, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Region == "" {
		region, err := source.ResolveRegion(ctx, cfg.Postcode)
		if err != nil {
			return nil, err
		}
		cfg.Region = region
	}
	return &TariffEntity{
		cfg: cfg,
		cache: &tariff.RateCache{
			Source:   source,
			Region:   cfg.Region,
			Location: loc,
			Timeout:  timeout,
		},
	}, nil
}

// ID returns the entity id.
func (e *TariffEntity) ID() string { return e.cfg.ID }

// Region returns the resolved grid supply point region letter.
func (e *TariffEntity) Region() string { return e.cfg.Region }

// Entry exposes the cached tables for linked entities and the HTTP API.
func (e *TariffEntity) Entry() *tariff.TariffCacheEntry { return &e.entry }

// restore rebuilds the in-memory cache from persisted state so a restart
// does not trigger an immediate upstream fetch.
func (e *TariffEntity) restore(st StateStore) error {
	lastDay, err := st.Get(e.cfg.ID, "api_today")
	if err != nil {
		return err
	}
	if lastDay == "" {
		return nil
	}
	e.entry.LastRefreshed = lastDay

	if v, err := st.Get(e.cfg.ID, "api_afternoon_refresh"); err == nil {
		e.entry.AfternoonRefreshDone = v == "true"
	}
	if v, err := st.Get(e.cfg.ID, "standing_charge"); err == nil && v != "" {
		e.entry.StandingCharge, _ = strconv.ParseFloat(v, 64)
	}
	if v, err := st.Get(e.cfg.ID, "yesterday_standing_charge"); err == nil && v != "" {
		e.entry.YesterdayStandingCharge, _ = strconv.ParseFloat(v, 64)
	}
	if v, err := st.Get(e.cfg.ID, "current_period"); err == nil {
		if _, perr := tariff.PeriodTime(tariff.PeriodID(v)); perr == nil {
			e.lastPeriod = tariff.PeriodID(v)
		}
	}

	day, err := time.Parse("2006-01-02", lastDay)
	if err != nil {
		return nil
	}
	if table, err := st.DayTable(e.cfg.ID, lastDay); err == nil && table.Len() > 0 {
		e.entry.Today = table
	}
	prev := day.AddDate(0, 0, -1).Format("2006-01-02")
	if table, err := st.DayTable(e.cfg.ID, prev); err == nil && table.Len() > 0 {
		e.entry.Yesterday = table
	}
	return nil
}

// forceRefresh discards the cached day marker so the next tick re-fetches
// everything.
func (e *TariffEntity) forceRefresh() {
	e.entry.LastRefreshed = ""
	e.lastPeriod = ""
}

// update advances the entity for the period containing now. Nothing happens
// until a period boundary is crossed; crossing one may trigger a cache
// refresh and always republishes the current rate. If the current rate
// cannot be determined the boundary is left uncrossed so the next tick
// retries.
func (e *TariffEntity) update(ctx context.Context, now time.Time, st StateStore) error {
	if !tariff.CrossedBoundary(e.lastPeriod, now) {
		return nil
	}
	current := tariff.CurrentPeriod(now)

	attempted, refreshErr := e.cache.RefreshIfNeeded(ctx, &e.entry, now)

	states := map[string]string{}
	if attempted {
		metrics.RefreshesTotal.WithLabelValues(e.cfg.ID).Inc()
		e.deriveStates(states)
		if e.entry.Today.Len() > 0 {
			if err := st.SaveDayTable(e.cfg.ID, e.entry.Today); err != nil {
				return err
			}
		}
		if e.entry.Yesterday.Len() > 0 {
			if err := st.SaveDayTable(e.cfg.ID, e.entry.Yesterday); err != nil {
				return err
			}
		}
		if e.entry.Yesterday.Date != "" {
			if err := st.PruneDayTables(e.entry.Yesterday.Date); err != nil {
				return err
			}
		}
	}

	fresh := !e.entry.NeedsDailyRefresh(tariff.LocalDay(now, e.cache.Location))
	if rate, ok := e.entry.Today.RateFor(current); ok && fresh {
		states["current_period"] = string(current)
		states["current_rate"] = fmtRate(rate)
		e.lastPeriod = current
		metrics.CurrentRate.WithLabelValues(e.cfg.ID).Set(rate)
	}

	if err := st.SetAll(e.cfg.ID, states); err != nil {
		return err
	}
	return refreshErr
}

// deriveStates recomputes every aggregate published for this tariff from
// the cached tables. Aggregates are cheap to rebuild, so they are derived
// on each refresh and never read back.
func (e *TariffEntity) deriveStates(states map[string]string) {
	states["api_today"] = e.entry.LastRefreshed
	states["api_afternoon_refresh"] = strconv.FormatBool(e.entry.AfternoonRefreshDone)
	states["standing_charge"] = fmtRate(e.entry.StandingCharge)
	states["yesterday_standing_charge"] = fmtRate(e.entry.YesterdayStandingCharge)

	if s, err := tariff.Stats(e.entry.Today); err == nil {
		states["daily_min"] = fmtRate(s.Min)
		states["daily_max"] = fmtRate(s.Max)
		states["daily_average"] = fmtRate(s.Average)
	}
	if s, err := tariff.Stats(e.entry.Yesterday); err == nil {
		states["yesterday_min"] = fmtRate(s.Min)
		states["yesterday_max"] = fmtRate(s.Max)
		states["yesterday_average"] = fmtRate(s.Average)
	}
	for n, w := range tariff.LowestCostWindows(e.entry.Today, tariff.WindowLengths) {
		label := windowLabels[n]
		states["lowest_"+label+"_rate"] = fmtRate(w.AverageRate)
		states["lowest_"+label+"_from"] = string(w.Start)
	}
}
