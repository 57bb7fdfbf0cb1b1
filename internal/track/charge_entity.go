package track

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/neilk/octowatch/internal/charge"
	"github.com/neilk/octowatch/internal/metrics"
	"github.com/neilk/octowatch/internal/tariff"
)

// staleMarker prefixes the published preferred set while the band is in its
// blackout window, where the set still reflects the previous cycle's prices.
const staleMarker = "expired/incomplete-"

// ChargeEntity drives the on/off signal for one deferrable load from a
// linked tariff entity's cached tables.
type ChargeEntity struct {
	cfg    ChargeConfig
	engine *charge.Engine
	state  charge.State
}

// NewChargeEntity builds a charge entity from validated configuration.
func NewChargeEntity(cfg ChargeConfig) (*ChargeEntity, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	eng, err := charge.New(cfg.engineConfig())
	if err != nil {
		return nil, err
	}
	return &ChargeEntity{cfg: cfg, engine: eng}, nil
}

// ID returns the entity id.
func (e *ChargeEntity) ID() string { return e.cfg.ID }

// On reports the current switching signal.
func (e *ChargeEntity) On() bool { return e.state.On }

// restore rebuilds the controller state from persisted scalars so the
// delivered-hours counter survives a restart mid-cycle.
func (e *ChargeEntity) restore(st StateStore) error {
	if v, err := st.Get(e.cfg.ID, "delivered_hours"); err != nil {
		return err
	} else if v != "" {
		e.state.DeliveredHours, _ = strconv.ParseFloat(v, 64)
	}
	if v, err := st.Get(e.cfg.ID, "current_period"); err == nil {
		e.state.CurrentPeriod = tariff.PeriodID(v)
	}
	if v, err := st.Get(e.cfg.ID, "last_reset_day"); err == nil {
		e.state.LastResetDay = v
	}
	if v, err := st.Get(e.cfg.ID, "on"); err == nil {
		e.state.On = v == "true"
	}
	return nil
}

// update advances the decision for the period containing now. A broken
// tariff link suspends the decision: the previous signal is retained,
// flagged unavailable, and the configuration error is surfaced every cycle
// until fixed.
func (e *ChargeEntity) update(ctx context.Context, now time.Time, reg *Registry, st StateStore) error {
	te, ok := reg.Tariff(e.cfg.TariffEntity)
	if !ok {
		err := &tariff.ConfigurationError{
			Field:  "tariff",
			Reason: "linked tariff entity " + strconv.Quote(e.cfg.TariffEntity) + " is not registered",
		}
		if serr := st.SetAll(e.cfg.ID, map[string]string{
			"rates_available": "false",
			"config_error":    err.Error(),
		}); serr != nil {
			return serr
		}
		return err
	}

	if !e.engine.Evaluate(&e.state, te.Entry().Today, now) {
		return nil
	}

	preferred := make([]string, len(e.state.PreferredPeriods))
	for i, id := range e.state.PreferredPeriods {
		preferred[i] = string(id)
	}
	rates := make([]string, len(e.state.PreferredRates))
	for i, r := range e.state.PreferredRates {
		rates[i] = fmtRate(r)
	}
	periodsValue := strings.Join(preferred, ",")
	ratesValue := strings.Join(rates, ",")
	if !e.state.RatesAvailable {
		periodsValue = staleMarker + periodsValue
		ratesValue = staleMarker + ratesValue
	}

	on := "false"
	var gauge float64
	if e.state.On {
		on = "true"
		gauge = 1
	}
	metrics.ChargeOn.WithLabelValues(e.cfg.ID).Set(gauge)

	return st.SetAll(e.cfg.ID, map[string]string{
		"on":                on,
		"delivered_hours":   strconv.FormatFloat(e.state.DeliveredHours, 'f', 1, 64),
		"charge_hours":      strconv.Itoa(e.cfg.DesiredHours),
		"no_charge_above":   fmtRate(e.cfg.MaxRate),
		"current_period":    string(e.state.CurrentPeriod),
		"last_reset_day":    e.state.LastResetDay,
		"rates_available":   strconv.FormatBool(e.state.RatesAvailable),
		"preferred_periods": periodsValue,
		"preferred_rates":   ratesValue,
		"config_error":      "",
	})
}
