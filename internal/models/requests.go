package models

import (
	"fmt"
	"time"
)

// CreateDraftSessionRequest opens a new booking wizard session
type CreateDraftSessionRequest struct {
	EntityKind EntityKind `json:"entity_kind" binding:"required"`
	// EntityID makes this a reschedule session for an existing booking
	EntityID  *string    `json:"entity_id,omitempty"`
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
}

// Validate validates the request
func (r *CreateDraftSessionRequest) Validate() error {
	switch r.EntityKind {
	case EntityReservation, EntityRental, EntityAppointment:
	default:
		return fmt.Errorf("entity_kind must be one of reservation, rental, appointment")
	}
	if r.EntityID != nil && *r.EntityID == "" {
		return fmt.Errorf("entity_id cannot be empty when provided")
	}
	if r.StartDate == nil && r.EndDate != nil {
		return fmt.Errorf("start_date is required when end_date is provided")
	}
	return nil
}

// Window builds the initial candidate window, if any was supplied
func (r *CreateDraftSessionRequest) Window() CandidateWindow {
	if r.StartDate == nil {
		return CandidateWindow{}
	}
	end := *r.StartDate
	if r.EndDate != nil {
		end = *r.EndDate
	}
	return CandidateWindow{StartDate: TruncateToDay(*r.StartDate), EndDate: TruncateToDay(end)}
}

// UpdateWindowRequest changes the draft's candidate window. When the cart is
// non-empty the change is destructive and must carry Confirm=true, otherwise
// the service refuses it and the window stays as it was.
type UpdateWindowRequest struct {
	StartDate time.Time `json:"start_date" binding:"required"`
	EndDate   time.Time `json:"end_date"`
	Confirm   bool      `json:"confirm"`
}

// Validate validates the request
func (r *UpdateWindowRequest) Validate() error {
	if r.StartDate.IsZero() {
		return fmt.Errorf("start_date is required")
	}
	if !r.EndDate.IsZero() && r.EndDate.Before(r.StartDate) {
		return fmt.Errorf("end_date cannot be before start_date")
	}
	return nil
}

// Window builds the candidate window from the request
func (r *UpdateWindowRequest) Window() CandidateWindow {
	end := r.EndDate
	if end.IsZero() {
		end = r.StartDate
	}
	return CandidateWindow{StartDate: TruncateToDay(r.StartDate), EndDate: TruncateToDay(end)}
}

// AddLineItemRequest adds a resource variation to the cart. Price and label
// are resolved server-side through the catalog, never trusted from the client.
type AddLineItemRequest struct {
	ResourceID   string `json:"resource_id" binding:"required"`
	VariationKey string `json:"variation_key" binding:"required"`
	Quantity     int    `json:"quantity" binding:"required"`
}

// Validate validates the request
func (r *AddLineItemRequest) Validate() error {
	if r.ResourceID == "" {
		return fmt.Errorf("resource_id is required")
	}
	if r.VariationKey == "" {
		return fmt.Errorf("variation_key is required")
	}
	if r.Quantity < 1 {
		return fmt.Errorf("quantity must be at least 1")
	}
	return nil
}

// SetCustomerRequest records customer details on the draft
type SetCustomerRequest struct {
	Name    string `json:"name" binding:"required"`
	Phone   string `json:"phone" binding:"required"`
	Email   string `json:"email"`
	Address string `json:"address"`
	Notes   string `json:"notes"`
}

// StagePaymentRequest stages the deposit payment on the draft
type StagePaymentRequest struct {
	Method    PaymentMethod `json:"method" binding:"required"`
	Amount    string        `json:"amount" binding:"required"` // decimal string
	Reference string        `json:"reference"`
}

// Validate validates the request
func (r *StagePaymentRequest) Validate() error {
	switch r.Method {
	case PaymentMethodCash, PaymentMethodGCash, PaymentMethodBankTxn:
	default:
		return fmt.Errorf("method must be one of cash, gcash, bank_transfer")
	}
	if r.Amount == "" {
		return fmt.Errorf("amount is required")
	}
	return nil
}

// NavigateRequest moves the wizard forward or backward
type NavigateRequest struct {
	Direction string `json:"direction" binding:"required"` // "forward" or "back"
}

// Validate validates the request
func (r *NavigateRequest) Validate() error {
	if r.Direction != "forward" && r.Direction != "back" {
		return fmt.Errorf("direction must be 'forward' or 'back'")
	}
	return nil
}
