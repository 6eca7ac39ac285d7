package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mssola/user_agent"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/seekerVs/kasal-atbp-avenue-management-system-sub001/internal/models"
	"github.com/seekerVs/kasal-atbp-avenue-management-system-sub001/pkg/bookingapi"
	"github.com/seekerVs/kasal-atbp-avenue-management-system-sub001/pkg/catalog"
	"github.com/seekerVs/kasal-atbp-avenue-management-system-sub001/pkg/notify"
	"github.com/seekerVs/kasal-atbp-avenue-management-system-sub001/pkg/validator"
)

// DraftStore persists draft sessions so an in-progress wizard survives a
// desk restart. Get returns (nil, nil) when the id is unknown.
type DraftStore interface {
	Save(d *models.DraftSession) error
	Get(id uuid.UUID) (*models.DraftSession, error)
	Delete(id uuid.UUID) error
	DeleteExpired(before time.Time) (int64, error)
}

// ClosureCalendar answers whether the shop is closed on a given day
type ClosureCalendar interface {
	IsClosed(date time.Time) bool
}

// CatalogResolver resolves a variation descriptor to its label and price
type CatalogResolver interface {
	Resolve(ctx context.Context, resourceID, variationKey string) (*catalog.Variation, error)
}

// SessionConfig holds configuration for the session service
type SessionConfig struct {
	TTL time.Duration // how long an untouched draft survives
}

// DefaultSessionConfig returns default configuration
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{TTL: 2 * time.Hour}
}

// SessionSnapshot is the full state handed back to the caller after every
// operation, so the front end never has to reassemble it
type SessionSnapshot struct {
	Draft   models.DraftSession `json:"draft"`
	Notices []notify.Notice     `json:"notices"`
}

// SessionService owns the active draft sessions and enforces the wizard's
// step gating. Each session has exactly one editor; the per-session lock
// only serializes the HTTP handlers against the background sweeper.
type SessionService struct {
	store     DraftStore
	verifier  *VerifierService
	financial *FinancialService
	commit    *CommitService
	closures  ClosureCalendar
	catalog   CatalogResolver
	config    SessionConfig
	logger    *logrus.Logger

	phones *validator.PhoneValidator
	emails *validator.EmailValidator

	mu       sync.Mutex
	sessions map[uuid.UUID]*sessionEntry
}

type sessionEntry struct {
	mu      sync.Mutex
	draft   *models.DraftSession
	notices *notify.List
}

// NewSessionService creates a new session service
func NewSessionService(
	store DraftStore,
	verifier *VerifierService,
	financial *FinancialService,
	commit *CommitService,
	closures ClosureCalendar,
	catalogResolver CatalogResolver,
	config SessionConfig,
	logger *logrus.Logger,
) *SessionService {
	if config.TTL <= 0 {
		config.TTL = DefaultSessionConfig().TTL
	}
	return &SessionService{
		store:     store,
		verifier:  verifier,
		financial: financial,
		commit:    commit,
		closures:  closures,
		catalog:   catalogResolver,
		config:    config,
		logger:    logger,
		phones:    validator.NewPhoneValidator(),
		emails:    validator.NewEmailValidator(),
		sessions:  make(map[uuid.UUID]*sessionEntry),
	}
}

// Create opens a new draft session
func (s *SessionService) Create(req *models.CreateDraftSessionRequest, rawUserAgent string) (*SessionSnapshot, error) {
	if err := req.Validate(); err != nil {
		vErr := models.NewValidationError()
		vErr.Addf("entity_kind", "%s", err.Error())
		return nil, vErr
	}

	now := time.Now()
	draft := &models.DraftSession{
		ID:            uuid.New(),
		EntityKind:    req.EntityKind,
		EntityID:      req.EntityID,
		Status:        models.DraftActive,
		Step:          models.StepSchedule,
		Window:        req.Window(),
		Financials:    models.ZeroFinancialSnapshot(),
		Payment:       models.PaymentDetails{Amount: decimal.Zero},
		Verification:  models.VerificationResult{Status: models.VerificationUnchecked},
		DeviceSummary: summarizeDevice(rawUserAgent),
		CreatedAt:     now,
		UpdatedAt:     now,
		ExpiresAt:     now.Add(s.config.TTL),
	}

	if !draft.Window.IsZero() {
		if vErr := s.validateWindow(draft.EntityKind, draft.Window); vErr != nil {
			return nil, vErr
		}
	}

	entry := &sessionEntry{draft: draft, notices: notify.NewList(20)}

	s.mu.Lock()
	s.sessions[draft.ID] = entry
	s.mu.Unlock()

	if err := s.store.Save(draft); err != nil {
		return nil, fmt.Errorf("failed to persist draft session: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"session_id":  draft.ID,
		"entity_kind": draft.EntityKind,
		"reschedule":  draft.EntityID != nil,
		"device":      draft.DeviceSummary,
	}).Info("Draft session created")

	return s.snapshotLocked(entry), nil
}

// Get returns the current state of a session
func (s *SessionService) Get(id uuid.UUID) (*SessionSnapshot, error) {
	entry, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return s.snapshotLocked(entry), nil
}

// UpdateWindow changes the candidate window. With items already in the cart
// the change is destructive: availability was computed for the old window,
// so the whole item set is invalidated. Without Confirm the request is
// refused and both window and items stay exactly as they were.
func (s *SessionService) UpdateWindow(id uuid.UUID, req *models.UpdateWindowRequest) (*SessionSnapshot, error) {
	entry, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	d := entry.draft
	if err := s.requireActive(d); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		vErr := models.NewValidationError()
		vErr.Addf("window", "%s", err.Error())
		return nil, vErr
	}

	window := req.Window()
	if vErr := s.validateWindow(d.EntityKind, window); vErr != nil {
		return nil, vErr
	}

	if window.Equal(d.Window) {
		return s.snapshotLocked(entry), nil
	}

	if len(d.Items) > 0 && !req.Confirm {
		return nil, ErrConfirmRequired
	}

	if len(d.Items) > 0 {
		entry.notices.Add(
			fmt.Sprintf("Date changed; %d selected item(s) were removed and must be re-added.", len(d.Items)),
			notify.KindWarning,
		)
		d.Items = nil
		s.financial.ApplyToDraft(d)
	}

	d.Window = window
	s.touch(d)
	s.verifier.NoteMutation(d)

	if err := s.store.Save(d); err != nil {
		return nil, fmt.Errorf("failed to persist draft session: %w", err)
	}
	return s.snapshotLocked(entry), nil
}

// AddItem resolves the variation against the catalog and adds it to the
// cart, merging quantities for an already-present variation
func (s *SessionService) AddItem(ctx context.Context, id uuid.UUID, req *models.AddLineItemRequest) (*SessionSnapshot, error) {
	entry, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	d := entry.draft
	if err := s.requireActive(d); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		vErr := models.NewValidationError()
		vErr.Addf("items", "%s", err.Error())
		return nil, vErr
	}
	if d.Window.IsZero() {
		vErr := models.NewValidationError()
		vErr.Addf("window", "choose a booking date before adding items")
		return nil, vErr
	}

	variation, err := s.catalog.Resolve(ctx, req.ResourceID, req.VariationKey)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			vErr := models.NewValidationError()
			vErr.Addf("items", "unknown item or variation")
			return nil, vErr
		}
		return nil, fmt.Errorf("failed to resolve catalog variation: %w", err)
	}

	if idx := d.FindItem(req.ResourceID, req.VariationKey); idx >= 0 {
		d.Items[idx].Quantity += req.Quantity
	} else {
		d.Items = append(d.Items, models.LineItem{
			ResourceID:     variation.ResourceID,
			VariationKey:   variation.VariationKey,
			VariationLabel: variation.Label,
			Kind:           models.LineItemKind(variation.Kind),
			Quantity:       req.Quantity,
			UnitPrice:      variation.UnitPrice,
		})
	}

	s.financial.ApplyToDraft(d)
	s.touch(d)
	s.verifier.NoteMutation(d)

	if err := s.store.Save(d); err != nil {
		return nil, fmt.Errorf("failed to persist draft session: %w", err)
	}
	return s.snapshotLocked(entry), nil
}

// RemoveItem deletes a line item from the cart
func (s *SessionService) RemoveItem(id uuid.UUID, resourceID, variationKey string) (*SessionSnapshot, error) {
	entry, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	d := entry.draft
	if err := s.requireActive(d); err != nil {
		return nil, err
	}

	idx := d.FindItem(resourceID, variationKey)
	if idx < 0 {
		vErr := models.NewValidationError()
		vErr.Addf("items", "item is not in the cart")
		return nil, vErr
	}
	d.Items = append(d.Items[:idx], d.Items[idx+1:]...)

	s.financial.ApplyToDraft(d)
	s.touch(d)
	s.verifier.NoteMutation(d)

	if err := s.store.Save(d); err != nil {
		return nil, fmt.Errorf("failed to persist draft session: %w", err)
	}
	return s.snapshotLocked(entry), nil
}

// SetCustomer records customer details, validating formats inline
func (s *SessionService) SetCustomer(id uuid.UUID, req *models.SetCustomerRequest) (*SessionSnapshot, error) {
	entry, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	d := entry.draft
	if err := s.requireActive(d); err != nil {
		return nil, err
	}

	vErr := models.NewValidationError()
	if req.Name == "" {
		vErr.Addf("customer.name", "name is required")
	}
	phone, err := s.phones.Validate(req.Phone)
	if err != nil {
		vErr.Addf("customer.phone", "%s", err.Error())
	}
	email := ""
	if req.Email != "" {
		email, err = s.emails.Validate(req.Email)
		if err != nil {
			vErr.Addf("customer.email", "%s", err.Error())
		}
	}
	if vErr.HasErrors() {
		return nil, vErr
	}

	d.Customer = models.CustomerInfo{
		Name:    req.Name,
		Phone:   phone,
		Email:   email,
		Address: req.Address,
		Notes:   req.Notes,
	}
	s.touch(d)

	if err := s.store.Save(d); err != nil {
		return nil, fmt.Errorf("failed to persist draft session: %w", err)
	}
	return s.snapshotLocked(entry), nil
}

// StagePayment stages the deposit payment on the draft. An explicitly
// staged amount counts as a manual override until it matches the default.
func (s *SessionService) StagePayment(id uuid.UUID, req *models.StagePaymentRequest) (*SessionSnapshot, error) {
	entry, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	d := entry.draft
	if err := s.requireActive(d); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		vErr := models.NewValidationError()
		vErr.Addf("payment", "%s", err.Error())
		return nil, vErr
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		vErr := models.NewValidationError()
		vErr.Addf("payment.amount", "amount must be a decimal number")
		return nil, vErr
	}

	vErr := models.NewValidationError()
	if !amount.IsPositive() {
		vErr.Addf("payment.amount", "amount must be positive")
	} else if amount.GreaterThan(d.Financials.GrandTotal) {
		vErr.Addf("payment.amount", "amount cannot exceed the grand total")
	}
	if vErr.HasErrors() {
		return nil, vErr
	}

	d.Payment = models.PaymentDetails{
		Method:         req.Method,
		Amount:         amount,
		Reference:      req.Reference,
		ManualOverride: !amount.Equal(d.Financials.DefaultPaymentAmount),
	}
	s.touch(d)

	if err := s.store.Save(d); err != nil {
		return nil, fmt.Errorf("failed to persist draft session: %w", err)
	}
	return s.snapshotLocked(entry), nil
}

// Navigate moves the wizard one step forward or backward. Forward movement
// is gated on the current step's local invariants; the item step further
// requires a satisfiable verification result, not just a non-empty cart.
func (s *SessionService) Navigate(id uuid.UUID, req *models.NavigateRequest) (*SessionSnapshot, error) {
	entry, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	d := entry.draft
	if err := s.requireActive(d); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		vErr := models.NewValidationError()
		vErr.Addf("direction", "%s", err.Error())
		return nil, vErr
	}

	idx := models.StepIndex(d.Step)
	if req.Direction == "back" {
		if idx > 0 {
			// Leaving the payment step backward discards the staged
			// reference and re-pins the amount to the current default:
			// totals may change again before the user returns.
			if d.Step == models.StepPayment {
				d.Payment = models.PaymentDetails{
					Amount: d.Financials.DefaultPaymentAmount,
				}
			}
			d.Step = models.StepOrder[idx-1]
			s.touch(d)
			if err := s.store.Save(d); err != nil {
				return nil, fmt.Errorf("failed to persist draft session: %w", err)
			}
		}
		return s.snapshotLocked(entry), nil
	}

	if idx >= len(models.StepOrder)-1 {
		vErr := models.NewValidationError()
		vErr.Addf("direction", "already at the final step; submit instead")
		return nil, vErr
	}

	if err := s.gateForward(d); err != nil {
		return nil, err
	}

	d.Step = models.StepOrder[idx+1]
	s.touch(d)
	if err := s.store.Save(d); err != nil {
		return nil, fmt.Errorf("failed to persist draft session: %w", err)
	}
	return s.snapshotLocked(entry), nil
}

// gateForward enforces the current step's exit conditions
func (s *SessionService) gateForward(d *models.DraftSession) error {
	switch d.Step {
	case models.StepSchedule:
		if vErr := s.validateWindow(d.EntityKind, d.Window); vErr != nil {
			return vErr
		}

	case models.StepItems:
		if len(d.Items) == 0 {
			vErr := models.NewValidationError()
			vErr.Addf("items", "at least one item is required")
			return vErr
		}
		result := s.verifier.Result(d.ID)
		if !result.Satisfiable() {
			return &StepBlockedError{Verification: result}
		}

	case models.StepCustomer:
		vErr := models.NewValidationError()
		if d.Customer.Name == "" {
			vErr.Addf("customer.name", "name is required")
		}
		if !s.phones.IsValid(d.Customer.Phone) {
			vErr.Addf("customer.phone", "a valid mobile number is required")
		}
		if vErr.HasErrors() {
			return vErr
		}
	}
	return nil
}

// SubmitResult is returned by Submit on success
type SubmitResult struct {
	Snapshot *SessionSnapshot            `json:"snapshot"`
	Entity   *bookingapi.CommittedEntity `json:"entity"`
}

// Submit runs the authoritative commit for the draft. On conflict the
// session is routed back to the item step with the conflicting lines
// applied, and everything else the user entered stays exactly as it was.
func (s *SessionService) Submit(ctx context.Context, id uuid.UUID) (*SubmitResult, error) {
	entry, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	d := entry.draft
	if err := s.requireActive(d); err != nil {
		return nil, err
	}

	result := s.verifier.Result(d.ID)
	if !result.Satisfiable() {
		return nil, &StepBlockedError{Verification: result}
	}

	entity, err := s.commit.Commit(ctx, d)
	if err != nil {
		var conflict *models.ConflictError
		if errors.As(err, &conflict) {
			d.Step = models.StepItems
			s.verifier.ApplyConflicts(d.ID, conflict.Lines)
			entry.notices.Add(
				fmt.Sprintf("%d item(s) were taken while you were booking; please adjust your selection.", len(conflict.Lines)),
				notify.KindWarning,
			)
			s.touch(d)
			if saveErr := s.store.Save(d); saveErr != nil {
				s.logger.WithError(saveErr).WithField("session_id", d.ID).Error("Failed to persist draft after conflict")
			}
		}
		// Validation and transport failures leave the draft untouched so
		// the user can retry without re-entering anything.
		return nil, err
	}

	d.Status = models.DraftCommitted
	d.CommittedEntityID = &entity.ID
	d.ConfirmedFingerprint = d.Fingerprint()
	s.touch(d)
	s.verifier.Release(d.ID)
	entry.notices.Add(fmt.Sprintf("Booking %s confirmed.", entity.Reference), notify.KindInfo)

	if err := s.store.Save(d); err != nil {
		s.logger.WithError(err).WithField("session_id", d.ID).Error("Failed to persist committed draft")
	}

	return &SubmitResult{Snapshot: s.snapshotLocked(entry), Entity: entity}, nil
}

// Cancel abandons a draft session
func (s *SessionService) Cancel(id uuid.UUID) error {
	entry, err := s.entry(id)
	if err != nil {
		return err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	// Committed sessions keep their stored row for the audit trail and
	// cannot be cancelled through the wizard.
	if err := s.requireActive(entry.draft); err != nil {
		return err
	}

	entry.draft.Status = models.DraftCancelled
	s.verifier.Release(id)

	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()

	if err := s.store.Delete(id); err != nil {
		return fmt.Errorf("failed to delete draft session: %w", err)
	}
	s.logger.WithField("session_id", id).Info("Draft session cancelled")
	return nil
}

// SweepExpired drops sessions past their TTL, both in memory and in the
// store. Returns how many were removed.
func (s *SessionService) SweepExpired() int {
	now := time.Now()

	s.mu.Lock()
	live := make(map[uuid.UUID]*sessionEntry, len(s.sessions))
	for id, entry := range s.sessions {
		live[id] = entry
	}
	s.mu.Unlock()

	// ExpiresAt is written under the entry lock, so it must be read under
	// the entry lock too; the service lock only guards the session map.
	var expired []uuid.UUID
	for id, entry := range live {
		entry.mu.Lock()
		if now.After(entry.draft.ExpiresAt) {
			expired = append(expired, id)
		}
		entry.mu.Unlock()
	}

	s.mu.Lock()
	for _, id := range expired {
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	for _, id := range expired {
		s.verifier.Release(id)
	}

	removed, err := s.store.DeleteExpired(now)
	if err != nil {
		s.logger.WithError(err).Error("Failed to sweep expired draft sessions")
	}

	total := len(expired)
	if int(removed) > total {
		total = int(removed)
	}
	if total > 0 {
		s.logger.WithField("count", total).Info("Expired draft sessions swept")
	}
	return total
}

// entry finds a live session, rehydrating from the store if the service
// restarted since the session was created
func (s *SessionService) entry(id uuid.UUID) (*sessionEntry, error) {
	s.mu.Lock()
	if entry, ok := s.sessions[id]; ok {
		s.mu.Unlock()
		return entry, nil
	}
	s.mu.Unlock()

	draft, err := s.store.Get(id)
	if err != nil {
		return nil, fmt.Errorf("failed to load draft session: %w", err)
	}
	if draft == nil || draft.IsExpired() {
		return nil, ErrSessionNotFound
	}

	// Verification does not survive a restart; the draft starts unchecked
	// and the next mutation or explicit re-check verifies it again.
	draft.Verification = models.VerificationResult{Status: models.VerificationUnchecked}
	entry := &sessionEntry{draft: draft, notices: notify.NewList(20)}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[id]; ok {
		return existing, nil
	}
	s.sessions[id] = entry
	return entry, nil
}

func (s *SessionService) requireActive(d *models.DraftSession) error {
	if d.Status != models.DraftActive {
		return ErrSessionClosed
	}
	if d.IsExpired() {
		return ErrSessionNotFound
	}
	return nil
}

// validateWindow applies structural and closure checks. Closure dates are
// advisory but rejected eagerly so staff see the problem before building a
// cart; the authoritative check at commit still runs regardless.
func (s *SessionService) validateWindow(kind models.EntityKind, window models.CandidateWindow) *models.ValidationError {
	vErr := models.NewValidationError()
	if err := window.Validate(time.Now()); err != nil {
		vErr.Addf("window", "%s", err.Error())
		return vErr
	}
	if (kind == models.EntityReservation || kind == models.EntityAppointment) && !window.IsSingleDay() {
		vErr.Addf("window", "%s bookings cover a single day", kind)
		return vErr
	}
	for _, day := range window.Days() {
		if s.closures.IsClosed(day) {
			vErr.Addf("window", "the shop is closed on %s", day.Format("2006-01-02"))
			return vErr
		}
	}
	return nil
}

func (s *SessionService) touch(d *models.DraftSession) {
	d.UpdatedAt = time.Now()
	d.ExpiresAt = d.UpdatedAt.Add(s.config.TTL)
}

// snapshotLocked builds a snapshot; callers hold the entry lock
func (s *SessionService) snapshotLocked(entry *sessionEntry) *SessionSnapshot {
	d := *entry.draft
	d.Items = make([]models.LineItem, len(entry.draft.Items))
	copy(d.Items, entry.draft.Items)
	d.Verification = s.verifier.Result(d.ID)
	return &SessionSnapshot{
		Draft:   d,
		Notices: entry.notices.Snapshot(),
	}
}

// summarizeDevice condenses a User-Agent header for the session audit trail
func summarizeDevice(rawUserAgent string) string {
	if rawUserAgent == "" {
		return ""
	}
	ua := user_agent.New(rawUserAgent)
	name, version := ua.Browser()
	if name == "" {
		return ua.OS()
	}
	return fmt.Sprintf("%s %s on %s", name, version, ua.OS())
}
