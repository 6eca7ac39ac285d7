// Package closures fetches the shop closure calendar. The calendar is
// advisory only: it pre-filters date pickers, but the authoritative
// availability check still runs even for dates the calendar marks open.
package closures

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/seekerVs/kasal-atbp-avenue-management-system-sub001/internal/models"
)

// Config holds configuration for the closure calendar client
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client fetches closure dates from the calendar service
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a new closure calendar client
func NewClient(config Config) *Client {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: config.BaseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type closureResponse struct {
	ClosedDates []string `json:"closed_dates"` // "2006-01-02"
}

// FetchClosedDates returns the currently configured closure dates
func (c *Client) FetchClosedDates(ctx context.Context) ([]time.Time, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/closures", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build closures request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("closures request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read closures response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("closures service returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed closureResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse closures response: %w", err)
	}

	dates := make([]time.Time, 0, len(parsed.ClosedDates))
	for _, raw := range parsed.ClosedDates {
		d, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return nil, fmt.Errorf("closures service returned malformed date %q: %w", raw, err)
		}
		dates = append(dates, d)
	}
	return dates, nil
}

// Calendar caches closure dates and answers IsClosed without a network call.
// Refresh failures keep the previous cache; an empty cache treats every day
// as open, which is safe because the check is advisory.
type Calendar struct {
	client *Client
	logger *logrus.Logger

	mu     sync.RWMutex
	closed map[string]struct{}
}

// NewCalendar creates a calendar backed by the given client
func NewCalendar(client *Client, logger *logrus.Logger) *Calendar {
	return &Calendar{
		client: client,
		logger: logger,
		closed: make(map[string]struct{}),
	}
}

// Refresh reloads the closure dates from the calendar service
func (c *Calendar) Refresh(ctx context.Context) error {
	dates, err := c.client.FetchClosedDates(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh closure calendar: %w", err)
	}

	next := make(map[string]struct{}, len(dates))
	for _, d := range dates {
		next[models.TruncateToDay(d).Format("2006-01-02")] = struct{}{}
	}

	c.mu.Lock()
	c.closed = next
	c.mu.Unlock()

	c.logger.WithField("closed_dates", len(next)).Debug("Closure calendar refreshed")
	return nil
}

// IsClosed reports whether the shop is closed on the given day
func (c *Calendar) IsClosed(date time.Time) bool {
	key := models.TruncateToDay(date).Format("2006-01-02")
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.closed[key]
	return ok
}
