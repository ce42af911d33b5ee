// Package discovery implements the client for the external influencer
// discovery API. It translates a search filter into a single paginated
// GET request and normalizes the heterogeneous response payload into
// canonical influencer records. The client never retries on its own;
// page iteration and pacing belong to the caller.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/finderhq/influencer-finder/internal/influencer"
)

// Config controls the discovery client.
type Config struct {
	// BaseURL is the full discovery endpoint, e.g.
	// "https://ylytic-influencers-api.p.rapidapi.com/ylytic/admin/api/v1/discovery".
	BaseURL string
	// Host is the value sent in the x-rapidapi-host header.
	Host string
	// Timeout bounds one page request end to end.
	Timeout time.Duration
}

// TransportError reports a network failure or a non-success HTTP status
// for one page fetch.
type TransportError struct {
	Page       int
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("discovery page %d: unexpected status %d", e.Page, e.StatusCode)
	}
	return fmt.Sprintf("discovery page %d: %v", e.Page, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ParseError reports a response body that is not valid JSON.
type ParseError struct {
	Page int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("discovery page %d: malformed response: %v", e.Page, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Client issues discovery page requests.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// New builds a Client. A zero Timeout defaults to 15 seconds.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// creatorPayload mirrors one element of the API's creators array.
// Every field except handle/connector is routinely absent.
type creatorPayload struct {
	HandleLink string  `json:"handle_link"`
	Handle     string  `json:"handle"`
	Connector  string  `json:"connector"`
	Followers  int64   `json:"followers"`
	Engagement float64 `json:"engagement"`
	Bio        string  `json:"bio"`
	City       string  `json:"city"`
	Country    string  `json:"country"`
	Category   string  `json:"category"`
}

type pagePayload struct {
	Creators    []creatorPayload `json:"creators"`
	PageMaximum int              `json:"page_maximum"`
}

// FetchPage requests exactly one discovery page for the given filter and
// returns its normalized records plus the page-maximum reported by the
// API. Page numbers below 1 are treated as page 1. The credential is
// passed through as the x-rapidapi-key header.
func (c *Client) FetchPage(ctx context.Context, filter influencer.Filter, apiKey string) (influencer.Page, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}

	q := url.Values{}
	q.Set("current_page", strconv.Itoa(page))
	if filter.HasCity() {
		q.Set("city", strings.ToLower(filter.City))
	}
	if filter.Category != "" {
		q.Set("category", filter.Category)
	}
	if filter.HasPlatform() {
		q.Set("connector", strings.ToLower(filter.Platform))
	}
	if filter.Bio != "" {
		q.Set("bio", filter.Bio)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return influencer.Page{}, &TransportError{Page: page, Err: err}
	}
	req.Header.Set("x-rapidapi-key", apiKey)
	req.Header.Set("x-rapidapi-host", c.cfg.Host)

	resp, err := c.http.Do(req)
	if err != nil {
		return influencer.Page{}, &TransportError{Page: page, Err: err}
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Warn("close discovery response body", zap.Error(cerr))
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return influencer.Page{}, &TransportError{Page: page, StatusCode: resp.StatusCode}
	}

	var payload pagePayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return influencer.Page{}, &ParseError{Page: page, Err: err}
	}

	totalPages := payload.PageMaximum
	if totalPages < 1 {
		totalPages = 1
	}

	records := make([]influencer.Influencer, 0, len(payload.Creators))
	for _, creator := range payload.Creators {
		records = append(records, normalizeCreator(creator))
	}

	c.logger.Debug("discovery page fetched",
		zap.Int("page", page),
		zap.Int("total_pages", totalPages),
		zap.Int("creators", len(records)),
	)

	return influencer.Page{Records: records, TotalPages: totalPages, Number: page}, nil
}

// normalizeCreator maps one API creator element onto the canonical
// record. The handle link is the stable identifier; when the API omits
// it the platform/handle composite stands in, which at least stays
// stable across pages of the same search.
func normalizeCreator(c creatorPayload) influencer.Influencer {
	id := c.HandleLink
	if id == "" {
		id = strings.ToLower(c.Connector) + "/" + c.Handle
	}
	return influencer.Influencer{
		ID:             id,
		Handle:         c.Handle,
		Platform:       capitalize(c.Connector),
		Followers:      maxInt64(c.Followers, 0),
		EngagementRate: c.Engagement,
		Bio:            c.Bio,
		City:           orNA(c.City),
		Country:        orNA(c.Country),
		Category:       orNA(c.Category),
	}
}

// capitalize upper-cases the first letter and lower-cases the rest,
// turning "tiktok" into "Tiktok" the same way the upstream UI did.
func capitalize(s string) string {
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func maxInt64(v, floor int64) int64 {
	if v < floor {
		return floor
	}
	return v
}
