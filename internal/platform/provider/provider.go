// Package provider fetches configuration and schedule data from the booking
// provider's public appointments API. The Source interface keeps the data
// origin injectable: the HTTP client talks to the live system, FileSource
// replays captured payloads. The aggregation engine never knows which one is
// behind it.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/vaxwatch/vaxwatch/internal/domain/schedule"
)

// Source supplies already-parsed provider data for one scrape cycle.
type Source interface {
	FetchConfiguration(ctx context.Context) (*schedule.ProviderConfig, error)
	FetchSchedule(ctx context.Context, from, to time.Time) (*schedule.Schedule, error)
}

const (
	configurationPath = "/public/appointments/configuration"
	schedulesPath     = "/public/appointments/schedules"
)

// Client is the live HTTP Source.
type Client struct {
	baseURL string
	http    *http.Client
	logger  zerolog.Logger
}

// NewClient builds a Client against the given provider base URL.
func NewClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// FetchConfiguration retrieves and validates the provider's configuration
// document.
func (c *Client) FetchConfiguration(ctx context.Context) (*schedule.ProviderConfig, error) {
	var cfg schedule.ProviderConfig
	if err := c.getJSON(ctx, c.baseURL+configurationPath, &cfg); err != nil {
		return nil, fmt.Errorf("fetch configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("fetch configuration: %w", err)
	}
	return &cfg, nil
}

// FetchSchedule retrieves and validates the schedule window [from, to].
func (c *Client) FetchSchedule(ctx context.Context, from, to time.Time) (*schedule.Schedule, error) {
	q := url.Values{}
	q.Set("from", from.Format("2006-01-02"))
	q.Set("to", to.Format("2006-01-02"))
	q.Set("practitioner_id", "")

	var sched schedule.Schedule
	if err := c.getJSON(ctx, c.baseURL+schedulesPath+"?"+q.Encode(), &sched); err != nil {
		return nil, fmt.Errorf("fetch schedule: %w", err)
	}
	if err := sched.Validate(); err != nil {
		return nil, fmt.Errorf("fetch schedule: %w", err)
	}
	return &sched, nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("url", rawURL).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("provider request")

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("provider returned %d: %s", resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", schedule.ErrInvalidData, err)
	}
	return nil
}
