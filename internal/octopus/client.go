package octopus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/neilk/octowatch/internal/metrics"
	"github.com/neilk/octowatch/internal/tariff"
)

const (
	defaultBaseURL = "https://api.octopus.energy/v1"
	// Agile product code; the half-hourly tariff this tracker follows.
	defaultProduct = "AGILE-18-02-21"
)

// Config holds the client settings. APIKey is only required for
// consumption queries; tariff data is public.
type Config struct {
	BaseURL string
	Product string
	APIKey  string
	Timeout time.Duration
}

// Client fetches Agile tariff and consumption data from the Octopus Energy
// API. It implements tariff.RateSource.
type Client struct {
	httpClient *http.Client
	baseURL    string
	product    string
	apiKey     string
}

// NewClient creates a client for the Octopus API.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Product == "" {
		cfg.Product = defaultProduct
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		product:    cfg.Product,
		apiKey:     cfg.APIKey,
	}
}

// listResponse is the paged envelope every Octopus list endpoint uses.
type listResponse struct {
	Count   int          `json:"count"`
	Results []resultItem `json:"results"`
}

type resultItem struct {
	ValueIncVAT   float64   `json:"value_inc_vat"`
	ValidFrom     time.Time `json:"valid_from"`
	IntervalStart time.Time `json:"interval_start"`
	Consumption   float64   `json:"consumption"`
	GroupID       string    `json:"group_id"`
}

// tariffCode builds the single-rate electricity tariff code for a region:
// E-1R-{PRODUCT}-{REGION}.
func (c *Client) tariffCode(region string) string {
	return fmt.Sprintf("E-1R-%s-%s", c.product, region)
}

// Rates fetches the half-hourly unit rates for one calendar day, sorted
// ascending by start time. The API returns newest first.
func (c *Client) Rates(ctx context.Context, region, date string) (tariff.DayRateTable, error) {
	endpoint := fmt.Sprintf("%s/products/%s/electricity-tariffs/%s/standard-unit-rates/",
		c.baseURL, c.product, c.tariffCode(region))

	params := url.Values{}
	params.Add("period_from", date+"T00:00")
	params.Add("period_to", date+"T23:59")

	var resp listResponse
	if err := c.getJSON(ctx, "rates", endpoint+"?"+params.Encode(), false, &resp); err != nil {
		return tariff.DayRateTable{}, err
	}

	table := tariff.DayRateTable{Date: date}
	for _, r := range resp.Results {
		table.Periods = append(table.Periods, tariff.RatePeriod{
			Start: r.ValidFrom,
			Rate:  r.ValueIncVAT,
		})
	}
	sort.Slice(table.Periods, func(i, j int) bool {
		return table.Periods[i].Start.Before(table.Periods[j].Start)
	})
	return table, nil
}

// StandingCharge fetches the current daily standing charge in pence. The
// charge rarely changes, so callers refresh it alongside the rate tables.
func (c *Client) StandingCharge(ctx context.Context, region string) (float64, error) {
	endpoint := fmt.Sprintf("%s/products/%s/electricity-tariffs/%s/standing-charges/",
		c.baseURL, c.product, c.tariffCode(region))

	var resp listResponse
	if err := c.getJSON(ctx, "standing-charge", endpoint, false, &resp); err != nil {
		return 0, err
	}
	if len(resp.Results) == 0 {
		return 0, &tariff.FetchError{Op: "standing-charge", Err: errors.New("empty results")}
	}
	return resp.Results[0].ValueIncVAT, nil
}

// Consumption fetches metered half-hour readings for the given window,
// sorted ascending. Requires the API key; readings publish with next-day
// lag, so an out-of-range window simply returns fewer records and the
// caller retries later.
func (c *Client) Consumption(ctx context.Context, meter tariff.MeterRef, from, to time.Time) ([]tariff.ConsumptionRecord, error) {
	kind := "electricity-meter-points"
	if meter.Fuel == "gas" {
		kind = "gas-meter-points"
	}
	endpoint := fmt.Sprintf("%s/%s/%s/meters/%s/consumption/", c.baseURL, kind, meter.Point, meter.Serial)

	params := url.Values{}
	params.Add("period_from", from.Format("2006-01-02T15:04:05"))
	params.Add("period_to", to.Format("2006-01-02T15:04:05"))

	var resp listResponse
	if err := c.getJSON(ctx, "consumption", endpoint+"?"+params.Encode(), true, &resp); err != nil {
		return nil, err
	}

	records := make([]tariff.ConsumptionRecord, 0, len(resp.Results))
	for _, r := range resp.Results {
		records = append(records, tariff.ConsumptionRecord{
			IntervalStart: r.IntervalStart,
			Quantity:      r.Consumption,
		})
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].IntervalStart.Before(records[j].IntervalStart)
	})
	return records, nil
}

// ResolveRegion maps a postcode to its grid supply point region letter via
// the industry lookup. The region is the second character of the group id
// (e.g. "_C" -> "C").
func (c *Client) ResolveRegion(ctx context.Context, postcode string) (string, error) {
	endpoint := fmt.Sprintf("%s/industry/grid-supply-points/?postcode=%s", c.baseURL, url.QueryEscape(postcode))

	var resp listResponse
	if err := c.getJSON(ctx, "region", endpoint, false, &resp); err != nil {
		return "", err
	}
	if resp.Count == 0 || len(resp.Results) == 0 || len(resp.Results[0].GroupID) < 2 {
		return "", &tariff.FetchError{Op: "region", Err: fmt.Errorf("no grid supply point for postcode %q", postcode)}
	}
	return resp.Results[0].GroupID[1:2], nil
}

// ConsumptionWindow returns the query window covering yesterday's readings
// for the given local day. SMETS2 meters outside daylight saving publish
// the final slot under the previous day, so the window shifts back to
// 23:30 of the day before yesterday to keep 48 records.
func ConsumptionWindow(now time.Time, loc *time.Location, smets2 bool) (from, to time.Time) {
	local := now.In(loc)
	yesterday := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, -1)
	to = yesterday.Add(23*time.Hour + 59*time.Minute)
	from = yesterday
	noon := yesterday.Add(12 * time.Hour)
	if smets2 && !noon.IsDST() {
		from = yesterday.AddDate(0, 0, -1).Add(23*time.Hour + 30*time.Minute)
	}
	return from, to
}

// getJSON performs a GET and decodes the paged response, translating
// transport, status and body failures into typed fetch errors.
func (c *Client) getJSON(ctx context.Context, op, fullURL string, auth bool, out *listResponse) error {
	metrics.APIRequestsTotal.WithLabelValues(op).Inc()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		metrics.APIErrorsTotal.WithLabelValues(op).Inc()
		return &tariff.FetchError{Op: op, Err: err}
	}
	if auth {
		req.SetBasicAuth(c.apiKey, "")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.APIErrorsTotal.WithLabelValues(op).Inc()
		return &tariff.FetchError{Op: op, Timeout: isTimeout(err), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.APIErrorsTotal.WithLabelValues(op).Inc()
		return &tariff.FetchError{Op: op, Status: resp.StatusCode}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		metrics.APIErrorsTotal.WithLabelValues(op).Inc()
		return &tariff.FetchError{Op: op, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}

func isTimeout(err error) bool {
	var nerr interface{ Timeout() bool }
	if errors.As(err, &nerr) {
		return nerr.Timeout()
	}
	return errors.Is(err, context.DeadlineExceeded)
}
