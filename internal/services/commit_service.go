package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/seekerVs/kasal-atbp-avenue-management-system-sub001/internal/models"
	"github.com/seekerVs/kasal-atbp-avenue-management-system-sub001/pkg/bookingapi"
	"github.com/seekerVs/kasal-atbp-avenue-management-system-sub001/pkg/validator"
)

// CommitClient is the slice of the booking API client the coordinator needs
type CommitClient interface {
	Create(ctx context.Context, kind models.EntityKind, req *bookingapi.CommitRequest) (*bookingapi.CommittedEntity, error)
	Reschedule(ctx context.Context, kind models.EntityKind, entityID string, req *bookingapi.CommitRequest) (*bookingapi.CommittedEntity, error)
}

// CommitService performs the authoritative re-check + write at the moment of
// submission. The client-side verifier is an optimization only; the write
// endpoint re-checks availability in the same transaction as the write, so
// time that passed since the last client-side check cannot cause a silent
// double booking.
type CommitService struct {
	client CommitClient
	phones *validator.PhoneValidator
	emails *validator.EmailValidator
	logger *logrus.Logger
}

// NewCommitService creates a new commit service
func NewCommitService(client CommitClient, logger *logrus.Logger) *CommitService {
	return &CommitService{
		client: client,
		phones: validator.NewPhoneValidator(),
		emails: validator.NewEmailValidator(),
		logger: logger,
	}
}

// Commit validates the draft locally, then sends it to the authoritative
// write endpoint. Errors are one of:
//   - *models.ValidationError: structural failure, no network call was made
//   - *models.ConflictError: the server rejected specific line items
//   - anything else: transport or server failure, safe to retry as-is
func (s *CommitService) Commit(ctx context.Context, d *models.DraftSession) (*bookingapi.CommittedEntity, error) {
	if vErr := s.validateDraft(d); vErr != nil {
		return nil, vErr
	}

	req := buildCommitRequest(d)

	var entity *bookingapi.CommittedEntity
	var err error
	if d.EntityID != nil {
		entity, err = s.client.Reschedule(ctx, d.EntityKind, *d.EntityID, req)
	} else {
		entity, err = s.client.Create(ctx, d.EntityKind, req)
	}
	if err != nil {
		var conflict *models.ConflictError
		if errors.As(err, &conflict) {
			s.logger.WithFields(logrus.Fields{
				"session_id":     d.ID,
				"entity_kind":    d.EntityKind,
				"conflict_lines": len(conflict.Lines),
			}).Info("Commit rejected with conflicts")
			return nil, conflict
		}
		return nil, fmt.Errorf("commit failed: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"session_id":  d.ID,
		"entity_kind": d.EntityKind,
		"entity_id":   entity.ID,
		"reference":   entity.Reference,
	}).Info("Draft committed")

	return entity, nil
}

// validateDraft runs every structural check before any network round trip
func (s *CommitService) validateDraft(d *models.DraftSession) *models.ValidationError {
	vErr := models.NewValidationError()

	if err := d.Window.Validate(time.Now()); err != nil {
		vErr.Addf("window", "%s", err.Error())
	}
	if err := d.ValidateKind(); err != nil {
		vErr.Addf("window", "%s", err.Error())
	}

	if len(d.Items) == 0 {
		vErr.Addf("items", "at least one item is required")
	}
	for i, li := range d.Items {
		if err := li.Validate(); err != nil {
			vErr.Addf(fmt.Sprintf("items[%d]", i), "%s", err.Error())
		}
	}

	if d.Customer.Name == "" {
		vErr.Addf("customer.name", "name is required")
	}
	if _, err := s.phones.Validate(d.Customer.Phone); err != nil {
		vErr.Addf("customer.phone", "%s", err.Error())
	}
	if d.Customer.Email != "" {
		if _, err := s.emails.Validate(d.Customer.Email); err != nil {
			vErr.Addf("customer.email", "%s", err.Error())
		}
	}

	if d.Payment.Method == "" {
		vErr.Addf("payment.method", "payment method is required")
	}
	if !d.Payment.Amount.IsPositive() {
		vErr.Addf("payment.amount", "payment amount must be positive")
	} else if d.Payment.Amount.GreaterThan(d.Financials.GrandTotal) {
		vErr.Addf("payment.amount", "payment amount cannot exceed the grand total")
	}

	if vErr.HasErrors() {
		return vErr
	}
	return nil
}

func buildCommitRequest(d *models.DraftSession) *bookingapi.CommitRequest {
	items := make([]bookingapi.CommitItem, len(d.Items))
	for i, li := range d.Items {
		items[i] = bookingapi.CommitItem{
			ResourceID:   li.ResourceID,
			VariationKey: li.VariationKey,
			Quantity:     li.Quantity,
		}
	}

	return &bookingapi.CommitRequest{
		StartDate: models.TruncateToDay(d.Window.StartDate).Format("2006-01-02"),
		EndDate:   models.TruncateToDay(d.Window.EndDate).Format("2006-01-02"),
		Items:     items,
		Customer: bookingapi.CommitCustomer{
			Name:    d.Customer.Name,
			Phone:   d.Customer.Phone,
			Email:   d.Customer.Email,
			Address: d.Customer.Address,
			Notes:   d.Customer.Notes,
		},
		Payment: bookingapi.CommitPayment{
			Method:    string(d.Payment.Method),
			Amount:    d.Payment.Amount.StringFixed(2),
			Reference: d.Payment.Reference,
		},
	}
}
