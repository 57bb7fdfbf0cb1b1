package track

import (
	"github.com/neilk/octowatch/internal/charge"
	"github.com/neilk/octowatch/internal/tariff"
)

// TariffConfig configures one tariff-tracking entity. Either Region or
// Postcode must be set; a postcode is resolved to its region at creation.
type TariffConfig struct {
	ID        string `mapstructure:"id"`
	Postcode  string `mapstructure:"postcode"`
	Region    string `mapstructure:"region"`
	ExportCSV bool   `mapstructure:"export_csv"`
}

func (c TariffConfig) Validate() error {
	if c.ID == "" {
		return &tariff.ConfigurationError{Field: "id", Reason: "must not be empty"}
	}
	if c.Region == "" && c.Postcode == "" {
		return &tariff.ConfigurationError{Field: "region", Reason: "set region or postcode"}
	}
	return nil
}

// ChargeConfig configures one charge-decision entity. TariffEntity names
// the tariff entity whose cache the decision reads; many charge entities
// may share one tariff entity but never write to its cache.
type ChargeConfig struct {
	ID           string  `mapstructure:"id"`
	TariffEntity string  `mapstructure:"tariff"`
	Band         string  `mapstructure:"band"`
	DesiredHours int     `mapstructure:"hours"`
	MaxRate      float64 `mapstructure:"max_rate"`
}

func (c ChargeConfig) Validate() error {
	if c.ID == "" {
		return &tariff.ConfigurationError{Field: "id", Reason: "must not be empty"}
	}
	if c.TariffEntity == "" {
		return &tariff.ConfigurationError{Field: "tariff", Reason: "a linked tariff entity is required"}
	}
	band, err := charge.ParseBand(c.Band)
	if err != nil {
		return err
	}
	return charge.Config{Band: band, DesiredHours: c.DesiredHours, PriceCeiling: c.MaxRate}.Validate()
}

// engineConfig converts to the validated engine configuration.
func (c ChargeConfig) engineConfig() charge.Config {
	return charge.Config{Band: charge.Band(c.Band), DesiredHours: c.DesiredHours, PriceCeiling: c.MaxRate}
}

// ConsumptionConfig configures one metering entity. CalcCosts reconciles
// yesterday's electricity readings against the linked tariff entity's
// cached yesterday table; gas meters report raw quantity totals only.
type ConsumptionConfig struct {
	ID           string `mapstructure:"id"`
	TariffEntity string `mapstructure:"tariff"`
	MeterPoint   string `mapstructure:"meter_point"`
	MeterSerial  string `mapstructure:"meter_serial"`
	Fuel         string `mapstructure:"fuel"`
	SMETS2       bool   `mapstructure:"smets2"`
	CalcCosts    bool   `mapstructure:"calc_costs"`
	ExportCSV    bool   `mapstructure:"export_csv"`
}

func (c ConsumptionConfig) Validate() error {
	if c.ID == "" {
		return &tariff.ConfigurationError{Field: "id", Reason: "must not be empty"}
	}
	if c.MeterPoint == "" || c.MeterSerial == "" {
		return &tariff.ConfigurationError{Field: "meter", Reason: "meter point and serial are required"}
	}
	if c.Fuel != "electricity" && c.Fuel != "gas" {
		return &tariff.ConfigurationError{Field: "fuel", Reason: "must be electricity or gas"}
	}
	if c.CalcCosts && c.Fuel != "electricity" {
		return &tariff.ConfigurationError{Field: "calc_costs", Reason: "cost reconciliation requires an electricity meter"}
	}
	if c.CalcCosts && c.TariffEntity == "" {
		return &tariff.ConfigurationError{Field: "tariff", Reason: "cost reconciliation requires a linked tariff entity"}
	}
	return nil
}

func (c ConsumptionConfig) meter() tariff.MeterRef {
	return tariff.MeterRef{Fuel: c.Fuel, Point: c.MeterPoint, Serial: c.MeterSerial}
}
