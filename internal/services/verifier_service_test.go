package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seekerVs/kasal-atbp-avenue-management-system-sub001/internal/models"
	"github.com/seekerVs/kasal-atbp-avenue-management-system-sub001/pkg/scheduler"
)

// manualScheduler lets tests fire or drop quiet-period timers by hand
type manualScheduler struct {
	mu      sync.Mutex
	pending []*manualTimer
}

type manualTimer struct {
	fn        func()
	cancelled bool
	fired     bool
}

func (m *manualScheduler) Schedule(_ time.Duration, fn func()) scheduler.CancelFunc {
	m.mu.Lock()
	defer m.mu.Unlock()
	timer := &manualTimer{fn: fn}
	m.pending = append(m.pending, timer)
	return func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		if timer.cancelled || timer.fired {
			return false
		}
		timer.cancelled = true
		return true
	}
}

// fireLatest runs the most recent non-cancelled timer
func (m *manualScheduler) fireLatest(t *testing.T) {
	t.Helper()
	m.mu.Lock()
	var target *manualTimer
	for i := len(m.pending) - 1; i >= 0; i-- {
		if !m.pending[i].cancelled && !m.pending[i].fired {
			target = m.pending[i]
			break
		}
	}
	require.NotNil(t, target, "no live timer to fire")
	target.fired = true
	m.mu.Unlock()
	target.fn()
}

func (m *manualScheduler) liveTimers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, timer := range m.pending {
		if !timer.cancelled && !timer.fired {
			n++
		}
	}
	return n
}

// blockingChecker parks every Check call until the test settles it
type blockingChecker struct {
	started chan *blockedCheck
}

type blockedCheck struct {
	ctx    context.Context
	items  []models.LineItem
	result chan checkSettlement
}

type checkSettlement struct {
	unavailable []models.UnavailableLine
	err         error
}

func newBlockingChecker() *blockingChecker {
	return &blockingChecker{started: make(chan *blockedCheck, 10)}
}

func (c *blockingChecker) Check(ctx context.Context, _ models.CandidateWindow, items []models.LineItem, _ *string) ([]models.UnavailableLine, error) {
	call := &blockedCheck{ctx: ctx, items: items, result: make(chan checkSettlement, 1)}
	c.started <- call
	select {
	case settlement := <-call.result:
		return settlement.unavailable, settlement.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *blockingChecker) waitCall(t *testing.T) *blockedCheck {
	t.Helper()
	select {
	case call := <-c.started:
		return call
	case <-time.After(2 * time.Second):
		t.Fatal("availability check never started")
		return nil
	}
}

func verifierFixture() (*VerifierService, *manualScheduler, *blockingChecker, *models.DraftSession) {
	sched := &manualScheduler{}
	checker := newBlockingChecker()
	svc := NewVerifierService(checker, sched, VerifierConfig{QuietPeriod: 500 * time.Millisecond}, logrus.New())

	draft := &models.DraftSession{
		ID:         uuid.New(),
		EntityKind: models.EntityReservation,
		Window:     models.NewSingleDayWindow(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)),
		Items: []models.LineItem{
			{
				ResourceID:   "gown-001",
				VariationKey: "Champagne,M",
				Kind:         models.LineItemGarment,
				Quantity:     2,
				UnitPrice:    decimal.NewFromInt(500),
			},
		},
	}
	return svc, sched, checker, draft
}

func waitForStatus(t *testing.T, svc *VerifierService, id uuid.UUID, want models.VerificationStatus) models.VerificationResult {
	t.Helper()
	var result models.VerificationResult
	require.Eventually(t, func() bool {
		result = svc.Result(id)
		return result.Status == want
	}, 2*time.Second, 5*time.Millisecond, "expected status %s, last was %s", want, result.Status)
	return result
}

func TestVerifier_ResolvesSatisfiable(t *testing.T) {
	svc, sched, checker, draft := verifierFixture()

	svc.NoteMutation(draft)
	assert.Equal(t, models.VerificationDebouncing, svc.Result(draft.ID).Status)

	sched.fireLatest(t)
	assert.Equal(t, models.VerificationChecking, svc.Result(draft.ID).Status)

	checker.waitCall(t).result <- checkSettlement{}
	result := waitForStatus(t, svc, draft.ID, models.VerificationSatisfiable)
	assert.Empty(t, result.Unavailable)
}

func TestVerifier_ResolvesConflicts(t *testing.T) {
	svc, sched, checker, draft := verifierFixture()

	svc.NoteMutation(draft)
	sched.fireLatest(t)

	lines := []models.UnavailableLine{
		{ResourceID: "gown-001", VariationLabel: "Champagne / M", RequestedQty: 2, AvailableQty: 1},
	}
	checker.waitCall(t).result <- checkSettlement{unavailable: lines}

	result := waitForStatus(t, svc, draft.ID, models.VerificationConflicts)
	require.Len(t, result.Unavailable, 1)
	assert.Equal(t, 2, result.Unavailable[0].RequestedQty)
	assert.Equal(t, 1, result.Unavailable[0].AvailableQty)
	assert.True(t, result.Blocking())
}

func TestVerifier_RapidMutationsCoalesce(t *testing.T) {
	svc, sched, _, draft := verifierFixture()

	for i := 0; i < 5; i++ {
		draft.Items[0].Quantity = i + 1
		svc.NoteMutation(draft)
	}

	// Each mutation restarted the quiet period: one live timer remains
	assert.Equal(t, 1, sched.liveTimers())
	assert.Equal(t, models.VerificationDebouncing, svc.Result(draft.ID).Status)
}

func TestVerifier_StaleResponseDiscarded(t *testing.T) {
	svc, sched, checker, draft := verifierFixture()

	svc.NoteMutation(draft)
	sched.fireLatest(t)
	stale := checker.waitCall(t)

	// A new mutation supersedes the in-flight generation and aborts it
	draft.Items[0].Quantity = 3
	svc.NoteMutation(draft)
	assert.Error(t, stale.ctx.Err(), "superseded request must be aborted")

	// Even if the stale call had settled with conflicts, nothing may land
	stale.result <- checkSettlement{unavailable: []models.UnavailableLine{{ResourceID: "gown-001"}}}

	// The new generation proceeds normally
	sched.fireLatest(t)
	fresh := checker.waitCall(t)
	assert.Equal(t, 3, fresh.items[0].Quantity)
	fresh.result <- checkSettlement{}

	result := waitForStatus(t, svc, draft.ID, models.VerificationSatisfiable)
	assert.Empty(t, result.Unavailable)
}

func TestVerifier_LateArrivalAfterNewerResolution(t *testing.T) {
	svc, sched, checker, draft := verifierFixture()

	svc.NoteMutation(draft)
	sched.fireLatest(t)
	first := checker.waitCall(t)

	draft.Items[0].Quantity = 4
	svc.NoteMutation(draft)
	sched.fireLatest(t)
	second := checker.waitCall(t)

	// The newer generation resolves first
	second.result <- checkSettlement{}
	waitForStatus(t, svc, draft.ID, models.VerificationSatisfiable)

	// The older one settles afterward with conflicts; discard by
	// generation, not by arrival order
	first.result <- checkSettlement{unavailable: []models.UnavailableLine{{ResourceID: "gown-001"}}}
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, models.VerificationSatisfiable, svc.Result(draft.ID).Status)
}

func TestVerifier_TransportFailureIsDistinct(t *testing.T) {
	svc, sched, checker, draft := verifierFixture()

	svc.NoteMutation(draft)
	sched.fireLatest(t)
	checker.waitCall(t).result <- checkSettlement{err: context.DeadlineExceeded}

	result := waitForStatus(t, svc, draft.ID, models.VerificationCheckFailed)
	assert.True(t, result.Blocking())
	assert.NotEqual(t, models.VerificationConflicts, result.Status)
	assert.Empty(t, result.Unavailable)
}

func TestVerifier_RevertToConfirmedStateSkipsNetwork(t *testing.T) {
	svc, sched, checker, draft := verifierFixture()

	// First pass settles satisfiable and confirms the current state
	svc.NoteMutation(draft)
	sched.fireLatest(t)
	checker.waitCall(t).result <- checkSettlement{}
	waitForStatus(t, svc, draft.ID, models.VerificationSatisfiable)

	// Edit away, then revert before the quiet period elapses
	draft.Items[0].Quantity = 5
	svc.NoteMutation(draft)
	draft.Items[0].Quantity = 2
	svc.NoteMutation(draft)

	assert.Equal(t, models.VerificationSatisfiable, svc.Result(draft.ID).Status)
	assert.Equal(t, 0, sched.liveTimers(), "no check may be scheduled for an unchanged draft")
}

func TestVerifier_CommitConflictInvalidatesConfirmedState(t *testing.T) {
	svc, sched, checker, draft := verifierFixture()

	svc.NoteMutation(draft)
	sched.fireLatest(t)
	checker.waitCall(t).result <- checkSettlement{}
	waitForStatus(t, svc, draft.ID, models.VerificationSatisfiable)

	// The commit endpoint rejected the same state the client-side check
	// had confirmed, so reverting to it must re-check over the network
	svc.ApplyConflicts(draft.ID, []models.UnavailableLine{
		{ResourceID: "gown-001", RequestedQty: 2, AvailableQty: 1},
	})

	svc.NoteMutation(draft)
	assert.Equal(t, models.VerificationDebouncing, svc.Result(draft.ID).Status)
	assert.Equal(t, 1, sched.liveTimers())
}

func TestVerifier_EmptyCartIsUnchecked(t *testing.T) {
	svc, sched, _, draft := verifierFixture()

	draft.Items = nil
	svc.NoteMutation(draft)

	assert.Equal(t, models.VerificationUnchecked, svc.Result(draft.ID).Status)
	assert.Equal(t, 0, sched.liveTimers())
}

func TestVerifier_ApplyConflictsSupersedesInFlight(t *testing.T) {
	svc, sched, checker, draft := verifierFixture()

	svc.NoteMutation(draft)
	sched.fireLatest(t)
	inflight := checker.waitCall(t)

	lines := []models.UnavailableLine{{ResourceID: "gown-001", RequestedQty: 2, AvailableQty: 0}}
	svc.ApplyConflicts(draft.ID, lines)

	// The in-flight client-side check settles satisfiable, but the
	// authoritative conflict owns the newer generation
	inflight.result <- checkSettlement{}
	time.Sleep(50 * time.Millisecond)

	result := svc.Result(draft.ID)
	assert.Equal(t, models.VerificationConflicts, result.Status)
	require.Len(t, result.Unavailable, 1)
}

func TestVerifier_ReleaseAborts(t *testing.T) {
	svc, sched, checker, draft := verifierFixture()

	svc.NoteMutation(draft)
	sched.fireLatest(t)
	inflight := checker.waitCall(t)

	svc.Release(draft.ID)
	assert.Error(t, inflight.ctx.Err())
	assert.Equal(t, models.VerificationUnchecked, svc.Result(draft.ID).Status)
}
