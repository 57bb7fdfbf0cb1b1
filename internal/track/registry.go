package track

import (
	"fmt"

	"github.com/neilk/octowatch/internal/tariff"
)

// StateStore is the persistence surface entities write derived state
// through. *store.Store satisfies it; tests substitute an in-memory map.
type StateStore interface {
	Get(entityID, key string) (string, error)
	SetAll(entityID string, states map[string]string) error
	SaveDayTable(entityID string, t tariff.DayRateTable) error
	DayTable(entityID, day string) (tariff.DayRateTable, error)
	PruneDayTables(before string) error
}

// Registry holds the live entities in insertion order. Tariff entities are
// always updated before the charge and consumption entities that read their
// caches, so a linked read within one tick never sees last tick's data.
type Registry struct {
	tariffs      []*TariffEntity
	charges      []*ChargeEntity
	consumptions []*ConsumptionEntity
	byID         map[string]any
}

func NewRegistry() *Registry {
	return &Registry{byID: map[string]any{}}
}

func (r *Registry) has(id string) error {
	if _, ok := r.byID[id]; ok {
		return fmt.Errorf("duplicate entity id %q", id)
	}
	return nil
}

func (r *Registry) AddTariff(e *TariffEntity) error {
	if err := r.has(e.cfg.ID); err != nil {
		return err
	}
	r.tariffs = append(r.tariffs, e)
	r.byID[e.cfg.ID] = e
	return nil
}

func (r *Registry) AddCharge(e *ChargeEntity) error {
	if err := r.has(e.cfg.ID); err != nil {
		return err
	}
	r.charges = append(r.charges, e)
	r.byID[e.cfg.ID] = e
	return nil
}

func (r *Registry) AddConsumption(e *ConsumptionEntity) error {
	if err := r.has(e.cfg.ID); err != nil {
		return err
	}
	r.consumptions = append(r.consumptions, e)
	r.byID[e.cfg.ID] = e
	return nil
}

// Remove drops an entity from the registry. Persisted state stays in the
// store so a re-added entity resumes where it left off.
func (r *Registry) Remove(id string) {
	if _, ok := r.byID[id]; !ok {
		return
	}
	delete(r.byID, id)
	for i, e := range r.tariffs {
		if e.cfg.ID == id {
			r.tariffs = append(r.tariffs[:i], r.tariffs[i+1:]...)
			return
		}
	}
	for i, e := range r.charges {
		if e.cfg.ID == id {
			r.charges = append(r.charges[:i], r.charges[i+1:]...)
			return
		}
	}
	for i, e := range r.consumptions {
		if e.cfg.ID == id {
			r.consumptions = append(r.consumptions[:i], r.consumptions[i+1:]...)
			return
		}
	}
}

// Tariff looks up a tariff entity by id, for charge and consumption
// entities resolving their link.
func (r *Registry) Tariff(id string) (*TariffEntity, bool) {
	e, ok := r.byID[id].(*TariffEntity)
	return e, ok
}

// IDs returns every registered entity id with its kind, tariffs first.
func (r *Registry) IDs() []EntityInfo {
	out := make([]EntityInfo, 0, len(r.byID))
	for _, e := range r.tariffs {
		out = append(out, EntityInfo{ID: e.cfg.ID, Kind: "tariff"})
	}
	for _, e := range r.charges {
		out = append(out, EntityInfo{ID: e.cfg.ID, Kind: "charge"})
	}
	for _, e := range r.consumptions {
		out = append(out, EntityInfo{ID: e.cfg.ID, Kind: "consumption"})
	}
	return out
}

// EntityInfo is the id/kind pair reported over the HTTP API.
type EntityInfo struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}
