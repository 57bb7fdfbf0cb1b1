package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/neilk/octowatch/internal/tariff"
)

// WriteRates writes a day rate table as a two-column CSV: period start and
// rate, one row per half-hour slot, ascending by time.
func WriteRates(w io.Writer, t tariff.DayRateTable) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Period", "Tariff"}); err != nil {
		return err
	}
	for _, p := range t.Periods {
		row := []string{
			string(tariff.PeriodOf(p.Start)),
			strconv.FormatFloat(p.Rate, 'f', 4, 64),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCosts writes a reconciled consumption day as period/cost rows.
func WriteCosts(w io.Writer, res tariff.ReconcileResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Period", "Cost"}); err != nil {
		return err
	}
	for _, pc := range res.PerPeriod {
		row := []string{
			string(tariff.PeriodOf(pc.IntervalStart)),
			strconv.FormatFloat(pc.Cost, 'f', 4, 64),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// CostsFile writes a reconciled day to dir as {day}-{entity}-Costs.csv and
// returns the path written.
func CostsFile(dir, entityID, day string, res tariff.ReconcileResult) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-%s-Costs.csv", day, entityID))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := WriteCosts(f, res); err != nil {
		return "", err
	}
	return path, nil
}

// RatesFile writes the table to dir as {day}-{entity}-Rates.csv and returns
// the path written.
func RatesFile(dir, entityID string, t tariff.DayRateTable) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-%s-Rates.csv", t.Date, entityID))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := WriteRates(f, t); err != nil {
		return "", err
	}
	return path, nil
}
