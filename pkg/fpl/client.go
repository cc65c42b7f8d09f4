// Package fpl is a client for the Fantasy Premier League public API.
package fpl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	DefaultBaseURL = "https://fantasy.premierleague.com/api"

	defaultTimeout  = 30 * time.Second
	defaultMaxTries = 4
	userAgent       = "sportsql/1.0"
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fpl: %s returned status %d", e.URL, e.StatusCode)
}

type Config struct {
	Logger     *slog.Logger
	BaseURL    string
	HTTPClient *http.Client
	MaxTries   uint
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: defaultTimeout}
	}
	if c.MaxTries == 0 {
		c.MaxTries = defaultMaxTries
	}
	return nil
}

type Client struct {
	log *slog.Logger
	cfg Config
}

func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate fpl config: %w", err)
	}
	return &Client{log: cfg.Logger, cfg: cfg}, nil
}

func (c *Client) Bootstrap(ctx context.Context) (*Bootstrap, error) {
	var out Bootstrap
	if err := c.get(ctx, "/bootstrap-static/", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Fixtures(ctx context.Context) ([]Fixture, error) {
	var out []Fixture
	if err := c.get(ctx, "/fixtures/", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ElementSummary(ctx context.Context, playerID int) (*ElementSummary, error) {
	var out ElementSummary
	if err := c.get(ctx, fmt.Sprintf("/element-summary/%d/", playerID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// get fetches path and decodes the JSON body into out, retrying transport
// errors, 429 and 5xx with exponential backoff.
func (c *Client) get(ctx context.Context, path string, out any) error {
	url := c.cfg.BaseURL + path
	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		if attempt > 1 {
			c.log.Warn("fpl: retrying request", "url", url, "attempt", attempt)
		}
		return struct{}{}, c.fetch(ctx, url, out)
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(c.cfg.MaxTries))
	if err != nil {
		MetricRequestsTotal.WithLabelValues(endpoint(path), "error").Inc()
		return fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	MetricRequestsTotal.WithLabelValues(endpoint(path), "success").Inc()
	return nil
}

func (c *Client) fetch(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		statusErr := &StatusError{URL: url, StatusCode: resp.StatusCode}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return statusErr
		}
		return backoff.Permanent(statusErr)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return backoff.Permanent(fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

func endpoint(path string) string {
	switch {
	case strings.HasPrefix(path, "/element-summary/"):
		return "element-summary"
	default:
		return strings.Trim(path, "/")
	}
}
