package upstream

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"

	"github.com/campwatch/campwatch/internal/httpx"
	"github.com/campwatch/campwatch/internal/metrics"
)

// ClientConfig carries the upstream endpoints. Tests point both at an
// httptest server.
type ClientConfig struct {
	// InternalBaseURL serves the monthly availability endpoint.
	InternalBaseURL string
	// RIDBBaseURL serves the facility search/detail endpoints.
	RIDBBaseURL string
	// APIKey is appended as apikey= on RIDB requests when set.
	APIKey string
}

// DefaultClientConfig returns the production endpoints.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		InternalBaseURL: "https://www.recreation.gov/api",
		RIDBBaseURL:     "https://ridb.recreation.gov/api/v1",
	}
}

// Client is a typed client for the recreation.gov APIs. It shares the
// session's cookie-jar HTTP client and its rotating user agent.
type Client struct {
	http    *http.Client
	session *Session
	cfg     ClientConfig
	logger  *slog.Logger
}

func NewClient(client *http.Client, session *Session, cfg ClientConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{http: client, session: session, cfg: cfg, logger: logger}
}

// monthlyResponse mirrors the internal availability endpoint: campsite id
// to a mapping of ISO date-time to status string.
type monthlyResponse struct {
	Campsites map[string]struct {
		Availabilities map[string]string `json:"availabilities"`
		CampsiteType   string            `json:"campsite_type"`
		Loop           string            `json:"loop"`
	} `json:"campsites"`
}

// FetchMonthlyAvailability fetches availability for [from, to] (day
// granularity, inclusive). The endpoint only accepts first-of-month
// anchors, so the client walks every month the range touches and filters
// the union back down to the requested window.
func (c *Client) FetchMonthlyAvailability(ctx context.Context, campgroundID string, from, to time.Time) (CampgroundAvailability, error) {
	from = normalizeDay(from)
	to = normalizeDay(to)

	snap := CampgroundAvailability{
		CampgroundID: campgroundID,
		CheckedAt:    time.Now().UTC(),
	}

	totalSites := map[string]struct{}{}
	for _, anchor := range monthAnchors(from, to) {
		parsed, err := c.fetchMonth(ctx, campgroundID, anchor)
		if err != nil {
			return CampgroundAvailability{}, err
		}
		for siteID, data := range parsed.Campsites {
			totalSites[siteID] = struct{}{}
			for dateStr, status := range data.Availabilities {
				d, err := parseAvailabilityDate(dateStr)
				if err != nil {
					c.logger.Warn("bad date in availability payload", slog.String("date", dateStr))
					continue
				}
				if d.Before(from) || d.After(to) {
					continue
				}
				available, price := DecodeStatus(status)
				snap.Sites = append(snap.Sites, SiteAvailability{
					SiteID:    siteID,
					SiteName:  siteID,
					Available: available,
					Date:      d,
					Price:     price,
				})
			}
		}
	}
	snap.TotalSites = len(totalSites)
	return snap, nil
}

func (c *Client) fetchMonth(ctx context.Context, campgroundID string, anchor time.Time) (monthlyResponse, error) {
	var parsed monthlyResponse

	u, err := url.Parse(fmt.Sprintf("%s/camps/availability/campground/%s/month", c.cfg.InternalBaseURL, campgroundID))
	if err != nil {
		return parsed, fmt.Errorf("invalid availability url: %w", err)
	}
	q := u.Query()
	// The endpoint wants RFC3339 with milliseconds and Zulu time.
	q.Set("start_date", anchor.UTC().Format("2006-01-02T15:04:05.000Z"))
	u.RawQuery = q.Encode()

	body, err := c.get(ctx, "availability", u.String())
	if err != nil {
		return parsed, err
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return parsed, fmt.Errorf("availability JSON decode failed: %w; body: %s", err, clipBody(body))
	}
	return parsed, nil
}

// SearchFacilities searches RIDB facilities by free-text query, with
// optional state and activity filters.
func (c *Client) SearchFacilities(ctx context.Context, query, state, activity string) ([]Facility, error) {
	u, err := url.Parse(c.cfg.RIDBBaseURL + "/facilities")
	if err != nil {
		return nil, fmt.Errorf("invalid facilities url: %w", err)
	}
	q := u.Query()
	q.Set("limit", "50")
	q.Set("offset", "0")
	q.Set("query", query)
	if state != "" {
		q.Set("state", state)
	}
	if activity != "" {
		q.Set("activity", activity)
	}
	if c.cfg.APIKey != "" {
		q.Set("apikey", c.cfg.APIKey)
	}
	u.RawQuery = q.Encode()

	body, err := c.get(ctx, "facility_search", u.String())
	if err != nil {
		return nil, err
	}
	var parsed struct {
		RecData []Facility `json:"RECDATA"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("facility search JSON decode failed: %w; body: %s", err, clipBody(body))
	}
	return parsed.RecData, nil
}

// GetFacility fetches detail for one facility.
func (c *Client) GetFacility(ctx context.Context, facilityID string) (Facility, error) {
	u, err := url.Parse(fmt.Sprintf("%s/facilities/%s", c.cfg.RIDBBaseURL, facilityID))
	if err != nil {
		return Facility{}, fmt.Errorf("invalid facility url: %w", err)
	}
	if c.cfg.APIKey != "" {
		q := u.Query()
		q.Set("apikey", c.cfg.APIKey)
		u.RawQuery = q.Encode()
	}

	body, err := c.get(ctx, "facility_detail", u.String())
	if err != nil {
		return Facility{}, err
	}
	var facility Facility
	if err := json.Unmarshal(body, &facility); err != nil {
		return Facility{}, fmt.Errorf("facility JSON decode failed: %w; body: %s", err, clipBody(body))
	}
	return facility, nil
}

// get performs one upstream GET with browser headers, records the request
// metric, and maps non-2xx statuses onto the error taxonomy.
func (c *Client) get(ctx context.Context, endpoint, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	ua := ""
	if c.session != nil {
		ua = c.session.UserAgent()
	}
	if ua == "" {
		ua = DefaultSessionConfig().UserAgents[0]
	}
	httpx.APIHeaders(req, ua)

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.IncUpstreamRequest(endpoint, -1)
		return nil, fmt.Errorf("upstream GET failed: %w", err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		metrics.IncUpstreamRequest(endpoint, -1)
		return nil, fmt.Errorf("upstream read body failed: %w", err)
	}
	metrics.IncUpstreamRequest(endpoint, resp.StatusCode)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("upstream request failed",
			slog.String("endpoint", endpoint),
			slog.Int("status", resp.StatusCode),
			slog.String("body", clipBody(body)))
		return nil, statusError(resp.StatusCode, clipBody(body))
	}
	return body, nil
}

// monthAnchors returns the first-of-month dates covering [from, to].
func monthAnchors(from, to time.Time) []time.Time {
	var anchors []time.Time
	cur := time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(to.Year(), to.Month(), 1, 0, 0, 0, 0, time.UTC)
	for !cur.After(end) {
		anchors = append(anchors, cur)
		cur = cur.AddDate(0, 1, 0)
	}
	return anchors
}

// parseAvailabilityDate accepts the "2024-01-15T00:00:00Z" keys the
// endpoint uses, falling back to a bare date prefix.
func parseAvailabilityDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return normalizeDay(t), nil
	}
	if len(s) >= 10 {
		if t, err := time.Parse("2006-01-02", s[:10]); err == nil {
			return normalizeDay(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}

// normalizeDay truncates to 00:00:00 UTC.
func normalizeDay(t time.Time) time.Time {
	tt := t.UTC()
	return time.Date(tt.Year(), tt.Month(), tt.Day(), 0, 0, 0, 0, time.UTC)
}

// clipBody limits response bodies embedded in error messages.
func clipBody(b []byte) string {
	const max = 2048
	if len(b) == 0 {
		return ""
	}
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
