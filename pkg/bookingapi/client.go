// Package bookingapi wraps the authoritative write endpoints for
// reservations, rental orders and appointments. The server re-checks
// availability inside the same transaction as the write, so this client is
// where the pipeline's client-side verification is finally overruled or
// confirmed. Conflict responses arrive in two legacy shapes and are
// normalized to one internal type here.
package bookingapi

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

// Config holds configuration for the booking API client
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client calls the booking write endpoints
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient creates a new booking API client
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

// CommitItem is one line in a commit payload
type CommitItem struct {
	ResourceID   string `json:"resource_id"`
	VariationKey string `json:"variation_key"`
	Quantity     int    `json:"quantity"`
}

// CommitCustomer is the customer block of a commit payload
type CommitCustomer struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
	Notes   string `json:"notes,omitempty"`
}

// CommitPayment is the payment block of a commit payload
type CommitPayment struct {
	Method    string `json:"method"`
	Amount    string `json:"amount"`
	Reference string `json:"reference,omitempty"`
}

// CommitRequest is the full draft sent to a write endpoint
type CommitRequest struct {
	StartDate string         `json:"start_date"`
	EndDate   string         `json:"end_date"`
	Items     []CommitItem   `json:"items"`
	Customer  CommitCustomer `json:"customer"`
	Payment   CommitPayment  `json:"payment"`
}

// CommittedEntity is the canonical entity the server returns on success.
// The server is the source of truth for computed financial fields and
// generated identifiers; Raw preserves the full document.
type CommittedEntity struct {
	ID        string          `json:"id"`
	Reference string          `json:"reference"`
	Status    string          `json:"status"`
	Raw       json.RawMessage `json:"-"`
}

// legacyConflictItem is the older conflict shape: {name, variation}
type legacyConflictItem struct {
	Name      string `json:"name"`
	Variation string `json:"variation"`
}

// conflictBody accepts both legacy 409 shapes
type conflictBody struct {
	ConflictingItems []legacyConflictItem     `json:"conflictingItems"`
	UnavailableItems []models.UnavailableLine `json:"unavailableItems"`
}

// endpoint paths per entity kind
func createPath(kind models.EntityKind) (string, error) {
	switch kind {
	case models.EntityReservation:
		return "/reservations", nil
	case models.EntityRental:
		return "/rentals", nil
	case models.EntityAppointment:
		return "/appointments", nil
	default:
		return "", fmt.Errorf("unknown entity kind: %s", kind)
	}
}

// Create commits a new booking of the given kind
func (c *Client) Create(ctx context.Context, kind models.EntityKind, req *CommitRequest) (*CommittedEntity, error) {
	path, err := createPath(kind)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, http.MethodPost, path, req)
}

// Reschedule commits a window/item change for an existing booking
func (c *Client) Reschedule(ctx context.Context, kind models.EntityKind, entityID string, req *CommitRequest) (*CommittedEntity, error) {
	path, err := createPath(kind)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, http.MethodPut, fmt.Sprintf("%s/%s/reschedule", path, entityID), req)
}

func (c *Client) send(ctx context.Context, method, path string, payload *CommitRequest) (*CommittedEntity, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal commit request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build commit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("commit request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read commit response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		entity := &CommittedEntity{Raw: respBody}
		if err := json.Unmarshal(respBody, entity); err != nil {
			return nil, fmt.Errorf("failed to parse committed entity: %w", err)
		}
		if entity.ID == "" {
			return nil, fmt.Errorf("committed entity is missing an id")
		}
		return entity, nil

	case resp.StatusCode == http.StatusConflict:
		return nil, normalizeConflict(respBody)

	default:
		return nil, fmt.Errorf("commit endpoint returned status %d: %s", resp.StatusCode, string(respBody))
	}
}

// normalizeConflict folds both legacy 409 body shapes into one ConflictError.
// The older endpoints report {conflictingItems:[{name,variation}]} with no
// quantities; the newer ones report unavailableItems with full lines.
func normalizeConflict(body []byte) error {
	var parsed conflictBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return fmt.Errorf("commit endpoint returned malformed conflict body: %w", err)
	}

	lines := parsed.UnavailableItems
	for _, item := range parsed.ConflictingItems {
		lines = append(lines, models.UnavailableLine{
			ResourceID:     item.Name,
			VariationLabel: item.Variation,
			RequestedQty:   0,
			AvailableQty:   0,
		})
	}

	if len(lines) == 0 {
		return fmt.Errorf("commit endpoint returned a conflict with no items: %s", string(body))
	}

	return &models.ConflictError{Lines: lines}
}
