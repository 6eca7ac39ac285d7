// Package availability wraps the external availability service: "check
// availability for window X given items Y, excluding booking Z". It is a
// stateless request/response client with no retry policy of its own;
// failures propagate to the caller, and a cancelled context aborts the
// request without surfacing the settlement.
package availability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/seekerVs/kasal-atbp-avenue-management-system-sub001/internal/models"
)

// Config holds configuration for the availability client
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client calls the availability service
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient creates a new availability client
func NewClient(config Config) *Client {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: config.BaseURL,
		apiKey:  config.APIKey,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// checkItem is one requested line in the availability query
type checkItem struct {
	ResourceID   string `json:"resource_id"`
	VariationKey string `json:"variation_key"`
	Quantity     int    `json:"quantity"`
}

// checkRequest is the availability query payload
type checkRequest struct {
	StartDate       string      `json:"start_date"`
	EndDate         string      `json:"end_date"`
	Items           []checkItem `json:"items"`
	ExcludeEntityID *string     `json:"exclude_entity_id,omitempty"`
}

// checkResponse is the availability query result. An empty unavailable list
// means the request is fully satisfiable.
type checkResponse struct {
	Unavailable []models.UnavailableLine `json:"unavailable"`
}

// Check asks the availability service whether every requested item is
// simultaneously satisfiable for the window. excludeEntityID carries the
// booking being rescheduled so its own holds don't count against it.
func (c *Client) Check(
	ctx context.Context,
	window models.CandidateWindow,
	items []models.LineItem,
	excludeEntityID *string,
) ([]models.UnavailableLine, error) {
	reqItems := make([]checkItem, len(items))
	for i, li := range items {
		reqItems[i] = checkItem{
			ResourceID:   li.ResourceID,
			VariationKey: li.VariationKey,
			Quantity:     li.Quantity,
		}
	}

	payload := checkRequest{
		StartDate:       models.TruncateToDay(window.StartDate).Format("2006-01-02"),
		EndDate:         models.TruncateToDay(window.EndDate).Format("2006-01-02"),
		Items:           reqItems,
		ExcludeEntityID: excludeEntityID,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal availability request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/availability/check", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build availability request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		// Surface cancellation as-is so the caller can tell an aborted
		// cycle apart from a real transport failure.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("availability request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to read availability response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("availability service returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed checkResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse availability response: %w", err)
	}

	return parsed.Unavailable, nil
}
