// Package dashboard loads branch sales records from the sales dashboard API or
// from JSON files.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/rewired-gh/bizalert/internal/models"
)

// Client provides access to the sales dashboard API
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
}

// Filter selects the reporting window requested from the dashboard.
type Filter struct {
	TimeType  string // week, month or quarter
	TimeValue string
	Branch    string // empty or "all" for every branch
	Year      int
}

// branchEntry is one value of the branchAnalysis object
type branchEntry struct {
	Revenue float64 `json:"revenue"`
	Profit  float64 `json:"profit"`
	ROI     float64 `json:"roi"`
	Growth  float64 `json:"growth"`
	AdCost  float64 `json:"adCost"`
}

type dashboardResponse struct {
	BranchAnalysis map[string]branchEntry `json:"branchAnalysis"`
}

// NewClient creates a new dashboard client
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		maxRetries: 3,
		backoff:    time.Second,
	}
}

// FetchRecords retrieves the per-branch aggregates for filter, one record per
// branch sorted by branch name. The record period is the filter's time value.
func (c *Client) FetchRecords(ctx context.Context, filter Filter) ([]models.SalesRecord, error) {
	u, err := url.Parse(c.baseURL + "/api/sales-dashboard")
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	q := u.Query()
	if filter.TimeType != "" {
		q.Set("timeType", filter.TimeType)
	}
	if filter.TimeValue != "" {
		q.Set("timeValue", filter.TimeValue)
	}
	branch := filter.Branch
	if branch == "" {
		branch = "all"
	}
	q.Set("branch", branch)
	if filter.Year > 0 {
		q.Set("year", strconv.Itoa(filter.Year))
	}
	u.RawQuery = q.Encode()

	resp, err := c.doRequest(ctx, u.String())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch dashboard: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dashboard returned status %d", resp.StatusCode)
	}

	var body dashboardResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode dashboard: %w", err)
	}

	records := make([]models.SalesRecord, 0, len(body.BranchAnalysis))
	for name, b := range body.BranchAnalysis {
		r := models.SalesRecord{
			Branch:  name,
			Revenue: b.Revenue,
			Profit:  b.Profit,
			ROI:     b.ROI,
			Growth:  b.Growth,
			Period:  filter.TimeValue,
		}
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("invalid record for branch %q: %w", name, err)
		}
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Branch < records[j].Branch })

	return records, nil
}

// doRequest performs HTTP request with retry logic
func (c *Client) doRequest(ctx context.Context, urlStr string) (*http.Response, error) {
	var lastErr error

	for i := 0; i < c.maxRetries; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return nil, err
		}

		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
		} else {
			return resp, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(i+1) * c.backoff):
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// ReadRecords decodes a JSON array of sales records and validates each one.
func ReadRecords(r io.Reader) ([]models.SalesRecord, error) {
	var records []models.SalesRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to decode records: %w", err)
	}
	for i := range records {
		if err := records[i].Validate(); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}
	return records, nil
}

// LoadRecordsFile reads records from a JSON file.
func LoadRecordsFile(path string) ([]models.SalesRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open records file: %w", err)
	}
	defer f.Close()
	return ReadRecords(f)
}

// FillGrowth returns a copy of records where zero growth is replaced by the
// percentage change against previous revenue for the same branch. Branches
// without a positive previous revenue keep their growth.
func FillGrowth(records []models.SalesRecord, previous map[string]float64) []models.SalesRecord {
	out := make([]models.SalesRecord, len(records))
	copy(out, records)
	for i := range out {
		prev, ok := previous[out[i].Branch]
		if out[i].Growth != 0 || !ok || prev <= 0 {
			continue
		}
		out[i].Growth = (out[i].Revenue - prev) / prev * 100
	}
	return out
}

// Source fetches records from the API with a fixed filter.
type Source struct {
	Client *Client
	Filter Filter
}

func (s Source) Records(ctx context.Context) ([]models.SalesRecord, error) {
	return s.Client.FetchRecords(ctx, s.Filter)
}

// FileSource reads records from a JSON file on every call.
type FileSource string

func (f FileSource) Records(context.Context) ([]models.SalesRecord, error) {
	return LoadRecordsFile(string(f))
}
