package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EntityKind is the kind of booking a draft session produces
type EntityKind string

const (
	EntityReservation EntityKind = "reservation"  // single-day garment/package reservation
	EntityRental      EntityKind = "rental"       // multi-day rental order
	EntityAppointment EntityKind = "appointment"  // custom-tailoring slot
)

// ReservationStatus lifecycle states for reservations
type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "pending"
	ReservationConfirmed ReservationStatus = "confirmed"
	ReservationCompleted ReservationStatus = "completed"
	ReservationCancelled ReservationStatus = "cancelled"
)

// RentalStatus lifecycle states for rental orders
type RentalStatus string

const (
	RentalPending   RentalStatus = "pending"
	RentalConfirmed RentalStatus = "confirmed"
	RentalToPickup  RentalStatus = "to_pickup"
	RentalPickedUp  RentalStatus = "picked_up"
	RentalReturned  RentalStatus = "returned"
	RentalCompleted RentalStatus = "completed"
	RentalCancelled RentalStatus = "cancelled"
)

// WizardStep is one screen of the booking wizard
type WizardStep string

const (
	StepSchedule WizardStep = "schedule" // pick the date / date range
	StepItems    WizardStep = "items"    // build the cart
	StepCustomer WizardStep = "customer" // customer details
	StepPayment  WizardStep = "payment"  // deposit / payment staging
)

// StepOrder is the forward order of wizard steps
var StepOrder = []WizardStep{StepSchedule, StepItems, StepCustomer, StepPayment}

// StepIndex returns the position of a step in the wizard, or -1
func StepIndex(s WizardStep) int {
	for i, step := range StepOrder {
		if step == s {
			return i
		}
	}
	return -1
}

// CustomerInfo holds the customer details entered on the customer step
type CustomerInfo struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
	Notes   string `json:"notes,omitempty"`
}

// IsZero reports whether no customer details have been entered yet
func (c CustomerInfo) IsZero() bool {
	return c.Name == "" && c.Phone == "" && c.Email == "" && c.Address == "" && c.Notes == ""
}

// DraftSessionStatus lifecycle of a draft session itself
type DraftSessionStatus string

const (
	DraftActive    DraftSessionStatus = "active"
	DraftCommitted DraftSessionStatus = "committed"
	DraftCancelled DraftSessionStatus = "cancelled"
)

// DraftSession is the in-progress, not-yet-committed booking being edited
// across wizard steps. One session has exactly one editor; multi-actor
// contention over the underlying inventory is resolved only by the
// authoritative commit endpoint.
type DraftSession struct {
	ID         uuid.UUID          `json:"id"`
	EntityKind EntityKind         `json:"entity_kind"`
	// EntityID is set when the session reschedules an existing booking; the
	// availability check then excludes that booking's own holds.
	EntityID *string            `json:"entity_id,omitempty"`
	Status   DraftSessionStatus `json:"status"`
	Step     WizardStep         `json:"step"`

	Window CandidateWindow `json:"window"`
	Items  []LineItem      `json:"items"`

	Customer   CustomerInfo      `json:"customer"`
	Payment    PaymentDetails    `json:"payment"`
	Financials FinancialSnapshot `json:"financials"`

	Verification VerificationResult `json:"verification"`

	// ConfirmedFingerprint identifies the last server-confirmed window plus
	// item set. A draft whose fingerprint matches needs no re-verification.
	ConfirmedFingerprint string `json:"confirmed_fingerprint,omitempty"`

	// CommittedEntityID is set once the commit endpoint accepted the draft
	CommittedEntityID *string `json:"committed_entity_id,omitempty"`

	DeviceSummary string    `json:"device_summary,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// FindItem returns the index of the line item with the given identity, or -1
func (d *DraftSession) FindItem(resourceID, variationKey string) int {
	for i, li := range d.Items {
		if li.ResourceID == resourceID && li.VariationKey == variationKey {
			return i
		}
	}
	return -1
}

// Fingerprint returns the identity of the draft's current window + item set
func (d *DraftSession) Fingerprint() string {
	return Fingerprint(d.Window, d.Items)
}

// IsExpired reports whether the session has passed its TTL
func (d *DraftSession) IsExpired() bool {
	return time.Now().After(d.ExpiresAt)
}

// ValidateKind checks the entity kind and its window shape agreement
func (d *DraftSession) ValidateKind() error {
	switch d.EntityKind {
	case EntityReservation, EntityAppointment:
		if !d.Window.IsZero() && !d.Window.IsSingleDay() {
			return fmt.Errorf("%s bookings cover a single day", d.EntityKind)
		}
	case EntityRental:
		// rentals may span multiple days
	default:
		return fmt.Errorf("unknown entity kind: %s", d.EntityKind)
	}
	return nil
}
