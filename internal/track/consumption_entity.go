package track

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/neilk/octowatch/internal/export"
	"github.com/neilk/octowatch/internal/octopus"
	"github.com/neilk/octowatch/internal/tariff"
)

// consumptionRetryInterval spaces out repeat fetch attempts after a failure
// or an incomplete day. Readings publish upstream with next-day lag and no
// fixed time, so polling faster than this just burns requests.
const consumptionRetryInterval = 30 * time.Minute

// ConsumptionEntity fetches yesterday's metered readings once per local day
// and, for electricity meters with cost calculation enabled, reconciles
// them against the linked tariff entity's yesterday table.
type ConsumptionEntity struct {
	cfg         ConsumptionConfig
	source      tariff.RateSource
	loc         *time.Location
	timeout     time.Duration
	lastDay     string // local day the readings were last fetched successfully
	lastAttempt time.Time
}

// NewConsumptionEntity builds a consumption entity from validated
// configuration.
func NewConsumptionEntity(cfg ConsumptionConfig, source tariff.RateSource, loc *time.Location, timeout time.Duration) (*ConsumptionEntity, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &ConsumptionEntity{cfg: cfg, source: source, loc: loc, timeout: timeout}, nil
}

// ID returns the entity id.
func (e *ConsumptionEntity) ID() string { return e.cfg.ID }

func (e *ConsumptionEntity) restore(st StateStore) error {
	v, err := st.Get(e.cfg.ID, "api_today")
	if err != nil {
		return err
	}
	if _, perr := time.Parse("2006-01-02", v); perr == nil {
		e.lastDay = v
	}
	return nil
}

func (e *ConsumptionEntity) forceRefresh() {
	e.lastDay = ""
	e.lastAttempt = time.Time{}
}

// update fetches yesterday's readings if they have not been fetched today.
// An incomplete day is not recorded as done; the fetch is retried on a
// later tick once the backoff interval has passed.
func (e *ConsumptionEntity) update(ctx context.Context, now time.Time, reg *Registry, st StateStore, exportDir string) error {
	today := tariff.LocalDay(now, e.loc)
	if e.lastDay == today {
		return nil
	}
	if !e.lastAttempt.IsZero() && now.Sub(e.lastAttempt) < consumptionRetryInterval {
		return nil
	}
	e.lastAttempt = now

	fctx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	from, to := octopus.ConsumptionWindow(now, e.loc, e.cfg.SMETS2)
	records, err := e.source.Consumption(fctx, e.cfg.meter(), from, to)
	if err != nil {
		return err
	}

	yesterday := tariff.LocalDay(now.AddDate(0, 0, -1), e.loc)
	if len(records) != 48 {
		if serr := st.SetAll(e.cfg.ID, map[string]string{"api_today": "meter data not available"}); serr != nil {
			return serr
		}
		return &tariff.IncompleteDataError{Date: yesterday, Got: len(records), Want: 48}
	}

	states := map[string]string{
		"api_today":               today,
		"total_daily_consumption": fmtRate(tariff.TotalQuantity(records)),
	}

	if e.cfg.CalcCosts {
		te, ok := reg.Tariff(e.cfg.TariffEntity)
		if !ok {
			return &tariff.ConfigurationError{
				Field:  "tariff",
				Reason: "linked tariff entity " + strconv.Quote(e.cfg.TariffEntity) + " is not registered",
			}
		}
		entry := te.Entry()
		// The cache keeps a stale yesterday table when its fetch fails, and
		// stale rates still line up ordinally with the readings. Reconciling
		// them would silently price the day with the wrong rates, so wait
		// until the linked tariff has yesterday's actual table.
		if entry.Yesterday.Date != yesterday {
			return fmt.Errorf("rates for %s not cached yet (have %q), deferring cost calculation", yesterday, entry.Yesterday.Date)
		}
		res, err := tariff.Reconcile(records, entry.Yesterday)
		if err != nil {
			return err
		}
		states["total_daily_cost"] = fmtRate(res.TotalCost + entry.YesterdayStandingCharge)
		if e.cfg.ExportCSV && exportDir != "" {
			if _, err := export.CostsFile(exportDir, e.cfg.ID, yesterday, res); err != nil {
				return err
			}
		}
	}

	e.lastDay = today
	return st.SetAll(e.cfg.ID, states)
}
