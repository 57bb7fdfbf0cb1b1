package track

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/neilk/octowatch/internal/export"
	"github.com/neilk/octowatch/internal/metrics"
	"github.com/neilk/octowatch/internal/tariff"
)

// Tracker drives the registry: every interval it updates each entity in
// order, tariffs before the charge and consumption entities linked to them.
// Updates are sequential; a cancelled context stops between entities, never
// mid-write.
type Tracker struct {
	Registry  *Registry
	Source    tariff.RateSource
	Store     StateStore
	Location  *time.Location
	Log       *zap.Logger
	Interval  time.Duration
	Timeout   time.Duration
	ExportDir string
}

// AddTariff creates, restores and registers a tariff entity.
func (t *Tracker) AddTariff(ctx context.Context, cfg TariffConfig) error {
	e, err := NewTariffEntity(ctx, cfg, t.Source, t.Location, t.Timeout)
	if err != nil {
		return err
	}
	if err := e.restore(t.Store); err != nil {
		return err
	}
	return t.Registry.AddTariff(e)
}

// AddCharge creates, restores and registers a charge entity.
func (t *Tracker) AddCharge(cfg ChargeConfig) error {
	e, err := NewChargeEntity(cfg)
	if err != nil {
		return err
	}
	if err := e.restore(t.Store); err != nil {
		return err
	}
	return t.Registry.AddCharge(e)
}

// AddConsumption creates, restores and registers a consumption entity.
func (t *Tracker) AddConsumption(cfg ConsumptionConfig) error {
	e, err := NewConsumptionEntity(cfg, t.Source, t.Location, t.Timeout)
	if err != nil {
		return err
	}
	if err := e.restore(t.Store); err != nil {
		return err
	}
	return t.Registry.AddConsumption(e)
}

// Run ticks the registry until the context is cancelled. The first tick
// fires immediately so a fresh start does not wait a full interval for
// rates.
func (t *Tracker) Run(ctx context.Context) error {
	interval := t.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	t.Tick(ctx, time.Now())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			t.Tick(ctx, now)
		}
	}
}

// Tick runs one update pass over every entity. Per-entity failures are
// logged and counted but never stop the pass; one broken meter must not
// stall rate tracking.
func (t *Tracker) Tick(ctx context.Context, now time.Time) {
	defer metrics.ObserveTick(time.Now())

	for _, e := range t.Registry.tariffs {
		if ctx.Err() != nil {
			return
		}
		if err := e.update(ctx, now, t.Store); err != nil {
			metrics.EntityErrorsTotal.WithLabelValues(e.cfg.ID, "tariff").Inc()
			t.Log.Warn("tariff update failed", zap.String("entity", e.cfg.ID), zap.Error(err))
		}
	}
	for _, e := range t.Registry.charges {
		if ctx.Err() != nil {
			return
		}
		if err := e.update(ctx, now, t.Registry, t.Store); err != nil {
			metrics.EntityErrorsTotal.WithLabelValues(e.cfg.ID, "charge").Inc()
			t.Log.Warn("charge update failed", zap.String("entity", e.cfg.ID), zap.Error(err))
		}
	}
	for _, e := range t.Registry.consumptions {
		if ctx.Err() != nil {
			return
		}
		if err := e.update(ctx, now, t.Registry, t.Store, t.ExportDir); err != nil {
			metrics.EntityErrorsTotal.WithLabelValues(e.cfg.ID, "consumption").Inc()
			t.Log.Warn("consumption update failed", zap.String("entity", e.cfg.ID), zap.Error(err))
		}
	}
}

// ForceRefresh discards every entity's cached day markers so the next tick
// re-fetches from source.
func (t *Tracker) ForceRefresh() {
	for _, e := range t.Registry.tariffs {
		e.forceRefresh()
	}
	for _, e := range t.Registry.consumptions {
		e.forceRefresh()
	}
	t.Log.Info("forced refresh of all entities")
}

// ExportRates writes every tariff entity's cached today table to the export
// directory as CSV. Entities that opted out or have no table yet are
// skipped.
func (t *Tracker) ExportRates() {
	if t.ExportDir == "" {
		return
	}
	for _, e := range t.Registry.tariffs {
		if !e.cfg.ExportCSV || e.entry.Today.Len() == 0 {
			continue
		}
		path, err := export.RatesFile(t.ExportDir, e.cfg.ID, e.entry.Today)
		if err != nil {
			t.Log.Warn("rates export failed", zap.String("entity", e.cfg.ID), zap.Error(err))
			continue
		}
		t.Log.Info("exported rates", zap.String("entity", e.cfg.ID), zap.String("path", path))
	}
}
