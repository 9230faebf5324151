// Package provisioner talks to the database platform that owns the
// authoritative list of per-user databases.
package provisioner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Priya8975/userdb-provisioner/internal/domain"
)

// maxPages caps cursor following so a misbehaving backend cannot loop forever.
const maxPages = 100

// RetryConfig defines the retry behavior for idempotent calls.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Client is an HTTP client for the provisioning API, scoped to one
// organization and authenticated with a static bearer token.
type Client struct {
	baseURL    string
	scope      string
	token      string
	httpClient *http.Client
	retry      RetryConfig
	logger     *slog.Logger
}

// NewClient creates a provisioning API client.
func NewClient(baseURL, scope, token string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		scope:   scope,
		token:   token,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		retry: RetryConfig{
			MaxRetries:     2,
			InitialBackoff: 100 * time.Millisecond,
			MaxBackoff:     2 * time.Second,
		},
		logger: logger,
	}
}

// WithRetry overrides the retry policy for list calls.
func (c *Client) WithRetry(rc RetryConfig) *Client {
	c.retry = rc
	return c
}

// Scope returns the organization this client provisions into.
func (c *Client) Scope() string {
	return c.scope
}

type databaseJSON struct {
	Name   string `json:"name"`
	Region string `json:"region"`
}

type listResponse struct {
	Databases  []databaseJSON `json:"databases"`
	NextCursor string         `json:"next_cursor"`
}

type createRequest struct {
	Name   string `json:"name"`
	Region string `json:"region"`
}

type createResponse struct {
	Database databaseJSON `json:"database"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ListDatabases returns every database in the scope, following pagination
// cursors until the backend reports no more pages.
func (c *Client) ListDatabases(ctx context.Context) ([]domain.ResourceRecord, error) {
	records := []domain.ResourceRecord{}
	cursor := ""

	for page := 0; page < maxPages; page++ {
		var resp listResponse
		err := c.executeWithRetry(ctx, func() error {
			return c.do(ctx, http.MethodGet, c.databasesURL(cursor), nil, &resp)
		})
		if err != nil {
			return nil, fmt.Errorf("listing databases: %w", err)
		}

		for _, db := range resp.Databases {
			records = append(records, domain.ResourceRecord{Name: db.Name, Region: db.Region})
		}

		if resp.NextCursor == "" {
			return records, nil
		}
		cursor = resp.NextCursor
	}

	return nil, fmt.Errorf("listing databases: exceeded %d pages", maxPages)
}

// Exists reports whether a database named exactly name is present.
func (c *Client) Exists(ctx context.Context, name string) (bool, error) {
	records, err := c.ListDatabases(ctx)
	if err != nil {
		return false, err
	}
	for _, r := range records {
		if r.Name == name {
			return true, nil
		}
	}
	return false, nil
}

// CreateDatabase issues a single create call. A name collision is reported
// as ErrAlreadyExists.
func (c *Client) CreateDatabase(ctx context.Context, name, region string) (domain.ResourceRecord, error) {
	body, err := json.Marshal(createRequest{Name: name, Region: region})
	if err != nil {
		return domain.ResourceRecord{}, fmt.Errorf("encoding create request: %w", err)
	}

	var resp createResponse
	if err := c.do(ctx, http.MethodPost, c.databasesURL(""), body, &resp); err != nil {
		return domain.ResourceRecord{}, fmt.Errorf("creating database %s: %w", name, err)
	}

	rec := domain.ResourceRecord{Name: resp.Database.Name, Region: resp.Database.Region}
	if rec.Name == "" {
		rec.Name = name
	}
	if rec.Region == "" {
		rec.Region = region
	}
	return rec, nil
}

func (c *Client) databasesURL(cursor string) string {
	u := fmt.Sprintf("%s/v1/organizations/%s/databases", c.baseURL, url.PathEscape(c.scope))
	if cursor != "" {
		u += "?cursor=" + url.QueryEscape(cursor)
	}
	return u
}

func (c *Client) do(ctx context.Context, method, target string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// Limit to 1MB; list pages are small.
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := errorMessage(data)
		if isAlreadyExists(resp.StatusCode, msg) {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, msg)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func errorMessage(data []byte) string {
	var e errorResponse
	if err := json.Unmarshal(data, &e); err == nil {
		if e.Error != "" {
			return e.Error
		}
		if e.Message != "" {
			return e.Message
		}
	}
	s := strings.TrimSpace(string(data))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

// executeWithRetry retries transient failures with exponential backoff.
func (c *Client) executeWithRetry(ctx context.Context, operation func() error) error {
	var lastErr error

	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		lastErr = operation()
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) || attempt == c.retry.MaxRetries {
			break
		}

		backoff := c.calculateBackoff(attempt)
		c.logger.Debug("retrying provisioning api call",
			"attempt", attempt+1,
			"backoff_ms", backoff.Milliseconds(),
			"error", lastErr,
		)

		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(backoff):
		}
	}

	return lastErr
}

// calculateBackoff doubles per attempt with ±20% jitter, capped at MaxBackoff.
func (c *Client) calculateBackoff(attempt int) time.Duration {
	base := float64(c.retry.InitialBackoff) * float64(int(1)<<uint(attempt))
	jitter := (rand.Float64() * 0.4) - 0.2
	backoff := time.Duration(base * (1 + jitter))
	if backoff > c.retry.MaxBackoff {
		backoff = c.retry.MaxBackoff
	}
	return backoff
}
