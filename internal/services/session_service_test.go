package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seekerVs/kasal-atbp-avenue-management-system-sub001/internal/models"
	"github.com/seekerVs/kasal-atbp-avenue-management-system-sub001/pkg/bookingapi"
	"github.com/seekerVs/kasal-atbp-avenue-management-system-sub001/pkg/catalog"
)

// memoryStore is an in-memory DraftStore for service tests
type memoryStore struct {
	mu     sync.Mutex
	drafts map[uuid.UUID]models.DraftSession
}

func newMemoryStore() *memoryStore {
	return &memoryStore{drafts: make(map[uuid.UUID]models.DraftSession)}
}

func (m *memoryStore) Save(d *models.DraftSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drafts[d.ID] = *d
	return nil
}

func (m *memoryStore) Get(id uuid.UUID) (*models.DraftSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[id]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (m *memoryStore) Delete(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.drafts, id)
	return nil
}

func (m *memoryStore) DeleteExpired(before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, d := range m.drafts {
		if d.ExpiresAt.Before(before) {
			delete(m.drafts, id)
			n++
		}
	}
	return n, nil
}

type fakeClosures struct {
	closed map[string]bool
}

func (f *fakeClosures) IsClosed(date time.Time) bool {
	return f.closed[models.TruncateToDay(date).Format("2006-01-02")]
}

type fakeCatalog struct {
	variations map[string]*catalog.Variation
}

func (f *fakeCatalog) Resolve(_ context.Context, resourceID, variationKey string) (*catalog.Variation, error) {
	v, ok := f.variations[resourceID+"|"+variationKey]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return v, nil
}

type sessionFixture struct {
	svc    *SessionService
	sched  *manualScheduler
	check  *blockingChecker
	commit *fakeCommitClient
	store  *memoryStore
}

func newSessionFixture() *sessionFixture {
	logger := logrus.New()
	sched := &manualScheduler{}
	checker := newBlockingChecker()
	verifier := NewVerifierService(checker, sched, VerifierConfig{QuietPeriod: 500 * time.Millisecond}, logger)
	financial := NewFinancialService(DefaultDepositPolicy(), logger)
	commitClient := &fakeCommitClient{}
	commitSvc := NewCommitService(commitClient, logger)
	store := newMemoryStore()

	catalogResolver := &fakeCatalog{variations: map[string]*catalog.Variation{
		"gown-001|Champagne,M": {
			ResourceID:   "gown-001",
			VariationKey: "Champagne,M",
			Label:        "Champagne / M",
			Kind:         "garment",
			UnitPrice:    decimal.NewFromInt(500),
		},
		"pkg-rustic|Classic A,Rustic": {
			ResourceID:   "pkg-rustic",
			VariationKey: "Classic A,Rustic",
			Label:        "Classic A / Rustic",
			Kind:         "package",
			UnitPrice:    decimal.NewFromInt(800),
		},
	}}

	svc := NewSessionService(
		store,
		verifier,
		financial,
		commitSvc,
		&fakeClosures{closed: map[string]bool{}},
		catalogResolver,
		SessionConfig{TTL: time.Hour},
		logger,
	)
	return &sessionFixture{svc: svc, sched: sched, check: checker, commit: commitClient, store: store}
}

func futureDate() time.Time {
	return models.TruncateToDay(time.Now().AddDate(0, 1, 0))
}

// startSession creates a reservation session with a window already chosen
func (f *sessionFixture) startSession(t *testing.T) uuid.UUID {
	t.Helper()
	date := futureDate()
	snap, err := f.svc.Create(&models.CreateDraftSessionRequest{
		EntityKind: models.EntityReservation,
		StartDate:  &date,
	}, "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 Chrome/120.0 Safari/537.36")
	require.NoError(t, err)
	return snap.Draft.ID
}

// addGown adds the sample gown and settles its availability check
func (f *sessionFixture) addGown(t *testing.T, id uuid.UUID, qty int, unavailable []models.UnavailableLine) {
	t.Helper()
	_, err := f.svc.AddItem(context.Background(), id, &models.AddLineItemRequest{
		ResourceID:   "gown-001",
		VariationKey: "Champagne,M",
		Quantity:     qty,
	})
	require.NoError(t, err)

	f.sched.fireLatest(t)
	f.check.waitCall(t).result <- checkSettlement{unavailable: unavailable}

	want := models.VerificationSatisfiable
	if len(unavailable) > 0 {
		want = models.VerificationConflicts
	}
	require.Eventually(t, func() bool {
		snap, err := f.svc.Get(id)
		return err == nil && snap.Draft.Verification.Status == want
	}, 2*time.Second, 5*time.Millisecond)
}

// advanceTo walks the wizard forward to the target step
func (f *sessionFixture) advanceTo(t *testing.T, id uuid.UUID, target models.WizardStep) {
	t.Helper()
	for {
		snap, err := f.svc.Get(id)
		require.NoError(t, err)
		if snap.Draft.Step == target {
			return
		}
		_, err = f.svc.Navigate(id, &models.NavigateRequest{Direction: "forward"})
		require.NoError(t, err)
	}
}

func TestSession_CreateRecordsDevice(t *testing.T) {
	f := newSessionFixture()
	id := f.startSession(t)

	snap, err := f.svc.Get(id)
	require.NoError(t, err)
	assert.Equal(t, models.StepSchedule, snap.Draft.Step)
	assert.Contains(t, snap.Draft.DeviceSummary, "Chrome")
}

func TestSession_AddItemRequiresWindow(t *testing.T) {
	f := newSessionFixture()
	snap, err := f.svc.Create(&models.CreateDraftSessionRequest{EntityKind: models.EntityReservation}, "")
	require.NoError(t, err)

	_, err = f.svc.AddItem(context.Background(), snap.Draft.ID, &models.AddLineItemRequest{
		ResourceID:   "gown-001",
		VariationKey: "Champagne,M",
		Quantity:     1,
	})
	var vErr *models.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Contains(t, vErr.Fields, "window")
}

func TestSession_ClosedDateRejected(t *testing.T) {
	f := newSessionFixture()
	id := f.startSession(t)

	closedDate := futureDate().AddDate(0, 0, 3)
	f.svc.closures.(*fakeClosures).closed[closedDate.Format("2006-01-02")] = true

	_, err := f.svc.UpdateWindow(id, &models.UpdateWindowRequest{StartDate: closedDate})
	var vErr *models.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Contains(t, vErr.Fields["window"], "closed")
}

func TestSession_WindowChangePromptDeclined(t *testing.T) {
	f := newSessionFixture()
	id := f.startSession(t)
	f.addGown(t, id, 2, nil)

	before, err := f.svc.Get(id)
	require.NoError(t, err)

	// Changing the date with items in the cart and no confirmation must be
	// refused, leaving window and items both untouched
	_, err = f.svc.UpdateWindow(id, &models.UpdateWindowRequest{StartDate: futureDate().AddDate(0, 0, 7)})
	require.ErrorIs(t, err, ErrConfirmRequired)

	after, err := f.svc.Get(id)
	require.NoError(t, err)
	assert.True(t, after.Draft.Window.Equal(before.Draft.Window))
	assert.Len(t, after.Draft.Items, 1)
	assert.Equal(t, models.VerificationSatisfiable, after.Draft.Verification.Status)
}

func TestSession_WindowChangeConfirmedClearsItems(t *testing.T) {
	f := newSessionFixture()
	id := f.startSession(t)
	f.addGown(t, id, 2, nil)

	snap, err := f.svc.UpdateWindow(id, &models.UpdateWindowRequest{
		StartDate: futureDate().AddDate(0, 0, 7),
		Confirm:   true,
	})
	require.NoError(t, err)

	assert.Empty(t, snap.Draft.Items)
	assert.Equal(t, models.VerificationUnchecked, snap.Draft.Verification.Status)
	assert.True(t, snap.Draft.Financials.GrandTotal.IsZero())
	assert.True(t, snap.Draft.Payment.Amount.IsZero())
	require.NotEmpty(t, snap.Notices)
	assert.Contains(t, snap.Notices[len(snap.Notices)-1].Message, "removed")
}

func TestSession_SameWindowIsNoOp(t *testing.T) {
	f := newSessionFixture()
	id := f.startSession(t)
	f.addGown(t, id, 2, nil)

	snap, err := f.svc.Get(id)
	require.NoError(t, err)

	// Re-submitting the identical window must not prompt or clear anything
	same, err := f.svc.UpdateWindow(id, &models.UpdateWindowRequest{StartDate: snap.Draft.Window.StartDate})
	require.NoError(t, err)
	assert.Len(t, same.Draft.Items, 1)
	assert.Equal(t, models.VerificationSatisfiable, same.Draft.Verification.Status)
}

func TestSession_GateBlocksWhilePending(t *testing.T) {
	f := newSessionFixture()
	id := f.startSession(t)
	f.advanceTo(t, id, models.StepItems)

	_, err := f.svc.AddItem(context.Background(), id, &models.AddLineItemRequest{
		ResourceID:   "gown-001",
		VariationKey: "Champagne,M",
		Quantity:     2,
	})
	require.NoError(t, err)

	// Still debouncing: not an error state, but forward movement is gated
	_, err = f.svc.Navigate(id, &models.NavigateRequest{Direction: "forward"})
	var blocked *StepBlockedError
	require.True(t, errors.As(err, &blocked))
	assert.Equal(t, models.VerificationDebouncing, blocked.Verification.Status)
}

func TestSession_GateReportsExactConflictLines(t *testing.T) {
	f := newSessionFixture()
	id := f.startSession(t)
	f.advanceTo(t, id, models.StepItems)
	f.addGown(t, id, 2, []models.UnavailableLine{
		{ResourceID: "gown-001", VariationLabel: "Champagne / M", RequestedQty: 2, AvailableQty: 1},
	})

	_, err := f.svc.Navigate(id, &models.NavigateRequest{Direction: "forward"})
	var blocked *StepBlockedError
	require.True(t, errors.As(err, &blocked))
	assert.Equal(t, models.VerificationConflicts, blocked.Verification.Status)
	require.Len(t, blocked.Verification.Unavailable, 1)
	assert.Equal(t, "Champagne / M", blocked.Verification.Unavailable[0].VariationLabel)
	assert.Equal(t, 2, blocked.Verification.Unavailable[0].RequestedQty)
	assert.Equal(t, 1, blocked.Verification.Unavailable[0].AvailableQty)
}

func TestSession_BackFromPaymentResetsStagedPayment(t *testing.T) {
	f := newSessionFixture()
	id := f.startSession(t)
	f.addGown(t, id, 2, nil)
	f.advanceTo(t, id, models.StepCustomer)
	_, err := f.svc.SetCustomer(id, &models.SetCustomerRequest{Name: "Maria Santos", Phone: "0917 123 4567"})
	require.NoError(t, err)
	f.advanceTo(t, id, models.StepPayment)

	_, err = f.svc.StagePayment(id, &models.StagePaymentRequest{
		Method: models.PaymentMethodGCash, Amount: "900", Reference: "GC-999",
	})
	require.NoError(t, err)

	snap, err := f.svc.Navigate(id, &models.NavigateRequest{Direction: "back"})
	require.NoError(t, err)
	assert.Equal(t, models.StepCustomer, snap.Draft.Step)
	assert.True(t, snap.Draft.Payment.Amount.Equal(snap.Draft.Financials.DefaultPaymentAmount))
	assert.Empty(t, snap.Draft.Payment.Reference)
	assert.False(t, snap.Draft.Payment.ManualOverride)
}

func TestSession_SubmitHappyPath(t *testing.T) {
	f := newSessionFixture()
	id := f.startSession(t)
	f.addGown(t, id, 2, nil)
	f.advanceTo(t, id, models.StepCustomer)
	_, err := f.svc.SetCustomer(id, &models.SetCustomerRequest{Name: "Maria Santos", Phone: "09171234567"})
	require.NoError(t, err)
	f.advanceTo(t, id, models.StepPayment)
	_, err = f.svc.StagePayment(id, &models.StagePaymentRequest{
		Method: models.PaymentMethodCash, Amount: "600",
	})
	require.NoError(t, err)

	f.commit.entity = &bookingapi.CommittedEntity{ID: "res-1", Reference: "KA-2026-0001", Status: "pending"}

	result, err := f.svc.Submit(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "res-1", result.Entity.ID)
	assert.Equal(t, models.DraftCommitted, result.Snapshot.Draft.Status)
	require.NotNil(t, result.Snapshot.Draft.CommittedEntityID)
	assert.Equal(t, "res-1", *result.Snapshot.Draft.CommittedEntityID)
	assert.Equal(t, 1, f.commit.createCalls)

	// The committed session no longer accepts edits
	_, err = f.svc.StagePayment(id, &models.StagePaymentRequest{
		Method: models.PaymentMethodCash, Amount: "10",
	})
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestSession_SubmitBlockedWhileUnresolved(t *testing.T) {
	f := newSessionFixture()
	id := f.startSession(t)

	_, err := f.svc.AddItem(context.Background(), id, &models.AddLineItemRequest{
		ResourceID:   "gown-001",
		VariationKey: "Champagne,M",
		Quantity:     2,
	})
	require.NoError(t, err)

	_, err = f.svc.Submit(context.Background(), id)
	var blocked *StepBlockedError
	require.True(t, errors.As(err, &blocked))
	assert.Equal(t, 0, f.commit.createCalls)
}

func TestSession_ConflictPreservesCustomerAndPayment(t *testing.T) {
	f := newSessionFixture()
	id := f.startSession(t)
	f.addGown(t, id, 2, nil)
	f.advanceTo(t, id, models.StepCustomer)
	_, err := f.svc.SetCustomer(id, &models.SetCustomerRequest{
		Name: "Maria Santos", Phone: "09171234567", Email: "maria@example.com", Notes: "pickup after 5pm",
	})
	require.NoError(t, err)
	f.advanceTo(t, id, models.StepPayment)
	_, err = f.svc.StagePayment(id, &models.StagePaymentRequest{
		Method: models.PaymentMethodGCash, Amount: "900", Reference: "GC-777",
	})
	require.NoError(t, err)

	f.commit.err = &models.ConflictError{Lines: []models.UnavailableLine{
		{ResourceID: "gown-001", VariationLabel: "Champagne / M", RequestedQty: 2, AvailableQty: 0},
	}}

	_, err = f.svc.Submit(context.Background(), id)
	var conflict *models.ConflictError
	require.True(t, errors.As(err, &conflict))

	snap, err := f.svc.Get(id)
	require.NoError(t, err)
	assert.Equal(t, models.StepItems, snap.Draft.Step, "conflict routes back to the item step")
	assert.Equal(t, models.VerificationConflicts, snap.Draft.Verification.Status)
	require.Len(t, snap.Draft.Verification.Unavailable, 1)

	// The central partial-failure contract: nothing else is lost
	assert.Equal(t, "Maria Santos", snap.Draft.Customer.Name)
	assert.Equal(t, "09171234567", snap.Draft.Customer.Phone)
	assert.Equal(t, "pickup after 5pm", snap.Draft.Customer.Notes)
	assert.Equal(t, models.PaymentMethodGCash, snap.Draft.Payment.Method)
	assert.Equal(t, "GC-777", snap.Draft.Payment.Reference)
	assert.True(t, snap.Draft.Payment.Amount.Equal(decimal.NewFromInt(900)))
	assert.Len(t, snap.Draft.Items, 1)
}

func TestSession_TransportFailureLeavesDraftUntouched(t *testing.T) {
	f := newSessionFixture()
	id := f.startSession(t)
	f.addGown(t, id, 2, nil)
	f.advanceTo(t, id, models.StepCustomer)
	_, err := f.svc.SetCustomer(id, &models.SetCustomerRequest{Name: "Maria Santos", Phone: "09171234567"})
	require.NoError(t, err)
	f.advanceTo(t, id, models.StepPayment)
	_, err = f.svc.StagePayment(id, &models.StagePaymentRequest{
		Method: models.PaymentMethodCash, Amount: "600",
	})
	require.NoError(t, err)

	f.commit.err = errors.New("upstream unavailable")

	_, err = f.svc.Submit(context.Background(), id)
	require.Error(t, err)

	snap, getErr := f.svc.Get(id)
	require.NoError(t, getErr)
	assert.Equal(t, models.StepPayment, snap.Draft.Step, "generic failures do not move the wizard")
	assert.Equal(t, models.DraftActive, snap.Draft.Status)

	// Retry succeeds with the draft exactly as it was
	f.commit.err = nil
	f.commit.entity = &bookingapi.CommittedEntity{ID: "res-2", Reference: "KA-2026-0002", Status: "pending"}
	result, err := f.svc.Submit(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "res-2", result.Entity.ID)
}

func TestSession_StagePaymentValidation(t *testing.T) {
	f := newSessionFixture()
	id := f.startSession(t)
	f.addGown(t, id, 2, nil) // grand total 1200

	_, err := f.svc.StagePayment(id, &models.StagePaymentRequest{
		Method: models.PaymentMethodCash, Amount: "5000",
	})
	var vErr *models.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Contains(t, vErr.Fields, "payment.amount")

	_, err = f.svc.StagePayment(id, &models.StagePaymentRequest{
		Method: models.PaymentMethodCash, Amount: "not-a-number",
	})
	require.True(t, errors.As(err, &vErr))
}

func TestSession_RehydratesFromStore(t *testing.T) {
	f := newSessionFixture()
	id := f.startSession(t)
	f.addGown(t, id, 2, nil)

	// Simulate a restart: the in-memory entry and verifier state are gone,
	// the store copy is not
	f.svc.mu.Lock()
	delete(f.svc.sessions, id)
	f.svc.mu.Unlock()
	f.svc.verifier.Release(id)

	snap, err := f.svc.Get(id)
	require.NoError(t, err)
	assert.Len(t, snap.Draft.Items, 1)
	assert.Equal(t, models.VerificationUnchecked, snap.Draft.Verification.Status,
		"verification does not survive a restart")
}

func TestSession_SweepExpired(t *testing.T) {
	f := newSessionFixture()
	id := f.startSession(t)

	f.svc.mu.Lock()
	f.svc.sessions[id].draft.ExpiresAt = time.Now().Add(-time.Minute)
	f.svc.mu.Unlock()
	// Store copy expires too
	d, _ := f.store.Get(id)
	d.ExpiresAt = time.Now().Add(-time.Minute)
	f.store.Save(d)

	removed := f.svc.SweepExpired()
	assert.GreaterOrEqual(t, removed, 1)

	_, err := f.svc.Get(id)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSession_SweepRunsConcurrentlyWithEdits(t *testing.T) {
	f := newSessionFixture()
	id := f.startSession(t)

	// The sweeper reads ExpiresAt while handlers rewrite it on every edit;
	// both must go through the entry lock (run with -race)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			f.svc.SweepExpired()
		}
	}()
	for i := 0; i < 200; i++ {
		_, err := f.svc.SetCustomer(id, &models.SetCustomerRequest{
			Name: "Maria Santos", Phone: "09171234567",
		})
		require.NoError(t, err)
	}
	<-done

	_, err := f.svc.Get(id)
	assert.NoError(t, err, "a live session must survive concurrent sweeps")
}

func TestSession_CancelAfterCommitRejected(t *testing.T) {
	f := newSessionFixture()
	id := f.startSession(t)
	f.addGown(t, id, 1, nil)
	f.advanceTo(t, id, models.StepCustomer)
	_, err := f.svc.SetCustomer(id, &models.SetCustomerRequest{Name: "Maria Santos", Phone: "09171234567"})
	require.NoError(t, err)
	f.advanceTo(t, id, models.StepPayment)
	_, err = f.svc.StagePayment(id, &models.StagePaymentRequest{
		Method: models.PaymentMethodCash, Amount: "300",
	})
	require.NoError(t, err)

	f.commit.entity = &bookingapi.CommittedEntity{ID: "res-5", Reference: "KA-2026-0005", Status: "pending"}
	_, err = f.svc.Submit(context.Background(), id)
	require.NoError(t, err)

	// The committed row stays in the store for the audit trail
	assert.ErrorIs(t, f.svc.Cancel(id), ErrSessionClosed)
	d, err := f.store.Get(id)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, models.DraftCommitted, d.Status)
}
