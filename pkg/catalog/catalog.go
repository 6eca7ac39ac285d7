// Package catalog resolves variation descriptors to display names and
// prices. It plays no part in availability; line items are priced from here
// so the client can never submit its own prices.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds configuration for the catalog client
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Variation is one resolvable catalog entry
type Variation struct {
	ResourceID   string          `json:"resource_id"`
	VariationKey string          `json:"variation_key"`
	Label        string          `json:"label"`
	Kind         string          `json:"kind"` // "garment" or "package"
	UnitPrice    decimal.Decimal `json:"unit_price"`
}

// Client resolves variations against the catalog service
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a new catalog client
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

// ErrNotFound is returned when the catalog has no such variation
var ErrNotFound = fmt.Errorf("variation not found in catalog")

// Resolve looks up a resource variation
func (c *Client) Resolve(ctx context.Context, resourceID, variationKey string) (*Variation, error) {
	endpoint := fmt.Sprintf("%s/catalog/%s/variations/%s",
		c.baseURL, url.PathEscape(resourceID), url.PathEscape(variationKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build catalog request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog service returned status %d: %s", resp.StatusCode, string(body))
	}

	var variation Variation
	if err := json.Unmarshal(body, &variation); err != nil {
		return nil, fmt.Errorf("failed to parse catalog response: %w", err)
	}
	return &variation, nil
}
