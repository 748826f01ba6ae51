// Package client provides a typed Go client for the chainledger HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/EmilyTench10/prueba-tecnica-lite-thinking/pkg/api"
	"github.com/EmilyTench10/prueba-tecnica-lite-thinking/pkg/ledger"
	"github.com/EmilyTench10/prueba-tecnica-lite-thinking/pkg/query"
	"github.com/EmilyTench10/prueba-tecnica-lite-thinking/pkg/recorder"
)

// APIError is returned when the API responds with a non-2xx status.
type APIError struct {
	Status     int
	Title      string
	Detail     string
	RequestID  string
	RetryAfter int
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("chainledger api %d: %s", e.Status, e.Title)
	}
	return fmt.Sprintf("chainledger api %d: %s: %s", e.Status, e.Title, e.Detail)
}

// Client is a typed client for the ledger API.
type Client struct {
	BaseURL    string
	Token      string
	APIKey     string
	HTTPClient *http.Client
}

// Option configures the client.
type Option func(*Client)

// WithToken sets the bearer token.
func WithToken(token string) Option {
	return func(c *Client) { c.Token = token }
}

// WithAPIKey sets the X-API-Key credential ("<id>.<secret>").
func WithAPIKey(key string) Option {
	return func(c *Client) { c.APIKey = key }
}

// WithTimeout sets the HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.HTTPClient.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.HTTPClient = hc }
}

// New creates a Client for baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("X-API-Key", c.APIKey)
	} else if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{
			Status:    resp.StatusCode,
			Title:     http.StatusText(resp.StatusCode),
			RequestID: resp.Header.Get("X-Request-ID"),
		}
		if ra, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			apiErr.RetryAfter = ra
		}
		var problem api.ProblemDetail
		if err := json.NewDecoder(resp.Body).Decode(&problem); err == nil && problem.Title != "" {
			apiErr.Title = problem.Title
			apiErr.Detail = problem.Detail
		}
		return apiErr
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// ListOptions narrows ListRecords.
type ListOptions struct {
	Type   string
	Filter string
	Limit  int
	Offset int
}

// ListRecords calls GET /api/v1/ledger/records.
func (c *Client) ListRecords(ctx context.Context, opts ListOptions) (*query.Page, error) {
	q := url.Values{}
	if opts.Type != "" {
		q.Set("type", opts.Type)
	}
	if opts.Filter != "" {
		q.Set("filter", opts.Filter)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}
	path := "/api/v1/ledger/records"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out query.Page
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetRecord calls GET /api/v1/ledger/records/{index}.
func (c *Client) GetRecord(ctx context.Context, index int64) (*ledger.Record, error) {
	var out ledger.Record
	if err := c.do(ctx, http.MethodGet, "/api/v1/ledger/records/"+strconv.FormatInt(index, 10), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Register calls POST /api/v1/ledger/records. The credential must carry the admin role.
func (c *Client) Register(ctx context.Context, recordType string, payload map[string]any) (*ledger.Record, error) {
	body := map[string]any{"type": recordType, "payload": payload}
	var out ledger.Record
	if err := c.do(ctx, http.MethodPost, "/api/v1/ledger/records", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Verify calls GET /api/v1/ledger/verify.
func (c *Client) Verify(ctx context.Context) (*ledger.VerificationResult, error) {
	var out ledger.VerificationResult
	if err := c.do(ctx, http.MethodGet, "/api/v1/ledger/verify", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Stats calls GET /api/v1/ledger/stats.
func (c *Client) Stats(ctx context.Context) (*ledger.Stats, error) {
	var out ledger.Stats
	if err := c.do(ctx, http.MethodGet, "/api/v1/ledger/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Types calls GET /api/v1/ledger/types.
func (c *Client) Types(ctx context.Context) ([]recorder.RecordType, error) {
	var out []recorder.RecordType
	err := c.do(ctx, http.MethodGet, "/api/v1/ledger/types", nil, &out)
	return out, err
}

// Health calls GET /health.
func (c *Client) Health(ctx context.Context) (map[string]string, error) {
	var out map[string]string
	err := c.do(ctx, http.MethodGet, "/health", nil, &out)
	return out, err
}
