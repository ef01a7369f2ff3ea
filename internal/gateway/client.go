// Package gateway is the HTTP client for the upstream pass API, the system of
// record for visitor passes. Responses are normalized before anything reaches
// the in-memory store, so the rest of the console never sees the upstream's
// wire quirks.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/go-querystring/query"

	"github.com/securelane/gatepass/internal/domain"
	"github.com/securelane/gatepass/internal/filter"
	"github.com/securelane/gatepass/pkg/logger"
)

type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

func New(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

// ListQuery carries the filter state to list and count endpoints.
type ListQuery struct {
	Search    string `url:"search,omitempty"`
	Status    string `url:"status,omitempty"`
	PassType  string `url:"pass_type,omitempty"`
	Category  string `url:"category,omitempty"`
	CountOnly bool   `url:"count_only,omitempty"`
}

// QueryFromFilters maps the console filter state onto upstream query
// parameters, dropping the "all" sentinels.
func QueryFromFilters(f filter.Filters) ListQuery {
	f = f.Normalized()
	q := ListQuery{Search: f.Search}
	if f.Status != filter.All {
		q.Status = f.Status
	}
	if f.PassType != filter.All {
		q.PassType = f.PassType
	}
	if f.Category != filter.All {
		q.Category = f.Category
	}
	return q
}

func (c *Client) ListPasses(ctx context.Context, q ListQuery) ([]domain.VisitorPass, error) {
	body, err := c.do(ctx, http.MethodGet, "/passes", q, nil)
	if err != nil {
		return nil, err
	}
	return normalizePasses(body)
}

func (c *Client) ListRecurringPasses(ctx context.Context, q ListQuery) ([]domain.VisitorPass, error) {
	body, err := c.do(ctx, http.MethodGet, "/passes/recurring", q, nil)
	if err != nil {
		return nil, err
	}
	return normalizePasses(body)
}

func (c *Client) ListCategories(ctx context.Context) ([]domain.Category, error) {
	body, err := c.do(ctx, http.MethodGet, "/categories", ListQuery{}, nil)
	if err != nil {
		return nil, err
	}
	return normalizeCategories(body)
}

// CreatePass registers a one-time or permanent pass. Recurring registrations
// must go through CreateRecurringPass; the two endpoints are distinct upstream.
func (c *Client) CreatePass(ctx context.Context, reg *domain.Registration) (*domain.VisitorPass, error) {
	body, err := c.do(ctx, http.MethodPost, "/passes", ListQuery{}, reg)
	if err != nil {
		return nil, err
	}
	return normalizePass(body)
}

func (c *Client) CreateRecurringPass(ctx context.Context, reg *domain.Registration) (*domain.VisitorPass, error) {
	body, err := c.do(ctx, http.MethodPost, "/passes/recurring", ListQuery{}, reg)
	if err != nil {
		return nil, err
	}
	return normalizePass(body)
}

func (c *Client) Approve(ctx context.Context, id string) error {
	return c.act(ctx, id, "approve", nil)
}

func (c *Client) Reject(ctx context.Context, id string) error {
	return c.act(ctx, id, "reject", nil)
}

func (c *Client) CheckIn(ctx context.Context, id string) error {
	return c.act(ctx, id, "checkin", nil)
}

func (c *Client) CheckOut(ctx context.Context, id string) error {
	return c.act(ctx, id, "checkout", nil)
}

func (c *Client) Reschedule(ctx context.Context, id, newDate, newTime string) error {
	payload := map[string]string{"new_date": newDate, "new_time": newTime}
	return c.act(ctx, id, "reschedule", payload)
}

// CountByFilter issues a count-only query used by the recurring view, where
// the working set is not fully materialized client-side.
func (c *Client) CountByFilter(ctx context.Context, q ListQuery) (int, error) {
	q.CountOnly = true
	body, err := c.do(ctx, http.MethodGet, "/passes/recurring", q, nil)
	if err != nil {
		return 0, err
	}
	return normalizeCount(body)
}

func (c *Client) act(ctx context.Context, id, verb string, payload any) error {
	body, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/passes/%s/%s", id, verb), ListQuery{}, payload)
	if err != nil {
		return err
	}
	return checkActionStatus(body)
}

// do performs one upstream call. Any non-2xx result becomes an *APIError with
// a best-effort server message and field-error map.
func (c *Client) do(ctx context.Context, method, path string, q ListQuery, payload any) ([]byte, error) {
	url := c.baseURL + path
	if vals, err := query.Values(q); err == nil && len(vals) > 0 {
		if enc := vals.Encode(); enc != "" {
			url += "?" + enc
		}
	}

	var bodyReader io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if requestID := ctx.Value(logger.RequestIDKey); requestID != nil {
		if rid, ok := requestID.(string); ok {
			req.Header.Set("X-Request-ID", rid)
		}
	}

	logger.DebugContext(ctx, "Calling pass gateway", "method", method, "url", url)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pass gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newAPIError(resp.StatusCode, raw)
	}
	return raw, nil
}
