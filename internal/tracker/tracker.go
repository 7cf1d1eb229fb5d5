// Package tracker implements the external tracker client (spec.md C6):
// an abstract lookup/post-result contract, with an HTTP implementation of
// the asset-search and QC-post verbs. Grounded on original_source's
// trak_client.py (body shape, timeout, 401/403-as-unauthorized mapping)
// and the teacher's internal/services/makemkv client (Option-pattern
// construction, an injectable interface for tests instead of a live HTTP
// round trip).
package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"qc-crawl/internal/qclog"
)

// Status values for LookupResult/PostResult (spec.md §4.6).
const (
	StatusOK           = "ok"
	StatusUnauthorized = "unauthorized"
	StatusNotFound     = "not_found"
	StatusError        = "error"
)

// LookupResult is the outcome of a single asset-path lookup.
type LookupResult struct {
	AssetID  string
	Status   string
	HTTPCode int
}

// PostResult is the outcome of posting a QC verdict.
type PostResult struct {
	Status   string
	HTTPCode int
}

// Tracker is the abstract contract spec.md C6 describes. The crawl engine
// depends only on this interface, never on Client directly, so tests can
// supply a fake.
type Tracker interface {
	Lookup(ctx context.Context, assetPath string) (LookupResult, error)
	PostResult(ctx context.Context, payload any) (PostResult, error)
	Enabled() bool
}

// Doer abstracts *http.Client for injection in tests.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is the HTTP-backed Tracker implementation.
type Client struct {
	baseURL string
	apiKey  string
	http    Doer
	timeout time.Duration
	logger  *slog.Logger
	dedupe  *qclog.Deduper
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient injects a custom Doer (primarily for tests).
func WithHTTPClient(d Doer) Option {
	return func(c *Client) {
		if d != nil {
			c.http = d
		}
	}
}

// WithTimeout overrides the default 10s per-request timeout (spec.md §5).
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger attaches a logger for dedup'd warning output.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = qclog.Component(l, "tracker")
	}
}

// New constructs a Client. baseURL == "" means the tracker is disabled;
// callers should check Enabled() before using it (spec.md §4.8: "tracker
// enable: presence of tracker config").
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{},
		timeout: 10 * time.Second,
		dedupe:  qclog.NewDeduper(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = qclog.Component(nil, "tracker")
	}
	return c
}

// Enabled reports whether a base URL was configured.
func (c *Client) Enabled() bool {
	return c.baseURL != ""
}

type lookupRequestBody struct {
	SearchPage struct {
		PageSize int `json:"pageSize"`
	} `json:"searchPage"`
	AssetSearchType int      `json:"assetSearchType"`
	IncludeCustomer bool     `json:"includeCustomer"`
	AssetPath       string   `json:"assetPath"`
	TagIDs          []string `json:"tagIds"`
}

type lookupResponseBody struct {
	AssetID string `json:"asset_id"`
	Items   []struct {
		AssetID string `json:"asset_id"`
	} `json:"items"`
}

// Lookup calls at most once per asset per run (enforced by the caller);
// network/timeout errors and HTTP failure statuses are all folded into a
// LookupResult rather than a Go error, since a tracker outage must never
// fail the crawl (spec.md §4.6, §7).
func (c *Client) Lookup(ctx context.Context, assetPath string) (LookupResult, error) {
	body := lookupRequestBody{AssetSearchType: 2, AssetPath: assetPath}
	body.SearchPage.PageSize = 100

	data, err := json.Marshal(body)
	if err != nil {
		return LookupResult{Status: StatusError}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/asset/asset-search", bytes.NewReader(data))
	if err != nil {
		return LookupResult{Status: StatusError}, nil
	}
	c.applyHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return LookupResult{Status: StatusError}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		c.warnAuthFailure(resp.StatusCode)
		return LookupResult{Status: StatusUnauthorized, HTTPCode: resp.StatusCode}, nil
	}
	if resp.StatusCode == http.StatusNotFound {
		return LookupResult{Status: StatusNotFound, HTTPCode: resp.StatusCode}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return LookupResult{Status: StatusError, HTTPCode: resp.StatusCode}, nil
	}

	var parsed lookupResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return LookupResult{Status: StatusError, HTTPCode: resp.StatusCode}, nil
	}

	assetID := parsed.AssetID
	if assetID == "" && len(parsed.Items) > 0 {
		assetID = parsed.Items[0].AssetID
	}
	return LookupResult{AssetID: assetID, Status: StatusOK, HTTPCode: resp.StatusCode}, nil
}

// PostResult posts a QC verdict. Callers must only invoke this when
// qc_result != "pending" and an asset_id is resolved (spec.md §4.6).
func (c *Client) PostResult(ctx context.Context, payload any) (PostResult, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return PostResult{Status: StatusError}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/asset/qc", bytes.NewReader(data))
	if err != nil {
		return PostResult{Status: StatusError}, nil
	}
	c.applyHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return PostResult{Status: StatusError}, nil
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		c.warnAuthFailure(resp.StatusCode)
		return PostResult{Status: StatusUnauthorized, HTTPCode: resp.StatusCode}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return PostResult{Status: StatusError, HTTPCode: resp.StatusCode}, nil
	}
	return PostResult{Status: StatusOK, HTTPCode: resp.StatusCode}, nil
}

func (c *Client) applyHeaders(req *http.Request) {
	req.Header.Set("content-type", "application/json")
	req.Header.Set("cache-control", "no-cache")
	req.Header.Set("accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// warnAuthFailure logs the first 401/403 per run only; repeats are
// suppressed (spec.md §4.6: "duplicate 401/403 warnings are suppressed
// after the first within a run").
func (c *Client) warnAuthFailure(code int) {
	if c.dedupe.First(fmt.Sprintf("auth-%d", code)) {
		c.logger.Warn("tracker rejected request", qclog.Int("http_code", code))
	}
}
