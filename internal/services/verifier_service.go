package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/seekerVs/kasal-atbp-avenue-management-system-sub001/internal/models"
	"github.com/seekerVs/kasal-atbp-avenue-management-system-sub001/pkg/scheduler"
)

// AvailabilityChecker is the slice of the availability client the verifier
// needs. A cancelled context must surface as context.Canceled, never as a
// transport failure.
type AvailabilityChecker interface {
	Check(ctx context.Context, window models.CandidateWindow, items []models.LineItem, excludeEntityID *string) ([]models.UnavailableLine, error)
}

// VerifierConfig holds configuration for the verifier
type VerifierConfig struct {
	// QuietPeriod is how long a draft must sit unmutated before a check
	// fires. Every mutation during the quiet period restarts it.
	QuietPeriod time.Duration
}

// DefaultVerifierConfig returns default configuration
func DefaultVerifierConfig() VerifierConfig {
	return VerifierConfig{QuietPeriod: 500 * time.Millisecond}
}

// VerifierService owns the "is this draft valid for its current window"
// question while the user is still editing. Rapid edits are coalesced by a
// quiet-period timer; each edit starts a new verification generation, and
// only the outcome belonging to the newest generation is ever applied.
// Responses from superseded generations are discarded unconditionally,
// whatever order they arrive in.
type VerifierService struct {
	checker AvailabilityChecker
	sched   scheduler.Scheduler
	config  VerifierConfig
	logger  *logrus.Logger

	mu     sync.Mutex
	drafts map[uuid.UUID]*draftVerification
}

// draftVerification is the verifier's per-draft state
type draftVerification struct {
	generation  uint64
	result      models.VerificationResult
	cancelTimer scheduler.CancelFunc
	cancelCheck context.CancelFunc

	// confirmedFingerprint identifies the last window + item set a check
	// settled satisfiable for. A mutation that lands the draft back on it
	// resolves immediately without another round trip.
	confirmedFingerprint string
}

// NewVerifierService creates a new verifier service
func NewVerifierService(
	checker AvailabilityChecker,
	sched scheduler.Scheduler,
	config VerifierConfig,
	logger *logrus.Logger,
) *VerifierService {
	if config.QuietPeriod <= 0 {
		config.QuietPeriod = DefaultVerifierConfig().QuietPeriod
	}
	return &VerifierService{
		checker: checker,
		sched:   sched,
		config:  config,
		logger:  logger,
		drafts:  make(map[uuid.UUID]*draftVerification),
	}
}

// NoteMutation records that the draft's window or item set changed. Any
// displayed result is reset immediately and the in-flight check for the
// previous generation is aborted.
func (s *VerifierService) NoteMutation(d *models.DraftSession) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.ensureLocked(d.ID)
	st.supersede()
	gen := st.generation

	if len(d.Items) == 0 || d.Window.IsZero() {
		// Nothing to verify until there is a window and at least one item
		st.result = models.VerificationResult{Status: models.VerificationUnchecked, Generation: gen}
		return
	}

	if st.confirmedFingerprint != "" && d.Fingerprint() == st.confirmedFingerprint {
		// The draft is back at its last server-confirmed state; skip the
		// round trip so reopening and closing a picker doesn't flicker.
		now := time.Now()
		st.result = models.VerificationResult{
			Status:     models.VerificationSatisfiable,
			Generation: gen,
			CheckedAt:  &now,
		}
		return
	}

	st.result = models.VerificationResult{Status: models.VerificationDebouncing, Generation: gen}

	// Snapshot the inputs now; the draft may mutate again before the timer
	// fires, in which case that later mutation supersedes this generation.
	window := d.Window
	items := make([]models.LineItem, len(d.Items))
	copy(items, d.Items)
	exclude := d.EntityID

	sessionID := d.ID
	st.cancelTimer = s.sched.Schedule(s.config.QuietPeriod, func() {
		s.beginCheck(sessionID, gen, window, items, exclude)
	})
}

// beginCheck fires when a quiet period elapsed for the given generation
func (s *VerifierService) beginCheck(
	sessionID uuid.UUID,
	gen uint64,
	window models.CandidateWindow,
	items []models.LineItem,
	exclude *string,
) {
	s.mu.Lock()
	st, ok := s.drafts[sessionID]
	if !ok || st.generation != gen {
		s.mu.Unlock()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	st.cancelCheck = cancel
	st.result = models.VerificationResult{Status: models.VerificationChecking, Generation: gen}
	s.mu.Unlock()

	go s.runCheck(ctx, sessionID, gen, window, items, exclude)
}

// runCheck performs the network call and applies the outcome if, and only
// if, its generation is still the current one.
func (s *VerifierService) runCheck(
	ctx context.Context,
	sessionID uuid.UUID,
	gen uint64,
	window models.CandidateWindow,
	items []models.LineItem,
	exclude *string,
) {
	unavailable, err := s.checker.Check(ctx, window, items, exclude)
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.drafts[sessionID]
	if !ok || st.generation != gen {
		// Superseded while in flight; discard whatever this settled to.
		return
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			// Aborted cycle. The newer generation owns the state now.
			return
		}
		s.logger.WithError(err).WithFields(logrus.Fields{
			"session_id": sessionID,
			"generation": gen,
		}).Warn("Availability check failed")
		st.result = models.VerificationResult{
			Status:     models.VerificationCheckFailed,
			Generation: gen,
			CheckedAt:  &now,
		}
		return
	}

	status := models.VerificationSatisfiable
	if len(unavailable) > 0 {
		status = models.VerificationConflicts
	} else {
		st.confirmedFingerprint = models.Fingerprint(window, items)
	}
	st.result = models.VerificationResult{
		Status:      status,
		Generation:  gen,
		Unavailable: unavailable,
		CheckedAt:   &now,
	}
}

// Result returns the current verification result for a session
func (s *VerifierService) Result(sessionID uuid.UUID) models.VerificationResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.drafts[sessionID]
	if !ok {
		return models.VerificationResult{Status: models.VerificationUnchecked}
	}
	return st.result
}

// ApplyConflicts records a conflict outcome decided elsewhere (the
// authoritative commit check). It starts a new generation so any in-flight
// client-side check cannot overwrite it.
func (s *VerifierService) ApplyConflicts(sessionID uuid.UUID, lines []models.UnavailableLine) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.ensureLocked(sessionID)
	st.supersede()
	// The authoritative check just rejected this state; a client-side
	// confirmation for it is no longer trustworthy.
	st.confirmedFingerprint = ""
	now := time.Now()
	st.result = models.VerificationResult{
		Status:      models.VerificationConflicts,
		Generation:  st.generation,
		Unavailable: lines,
		CheckedAt:   &now,
	}
}

// Release drops all verifier state for a session and aborts any in-flight
// work. Called when a session is committed, cancelled or expired.
func (s *VerifierService) Release(sessionID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.drafts[sessionID]; ok {
		st.supersede()
		delete(s.drafts, sessionID)
	}
}

func (s *VerifierService) ensureLocked(sessionID uuid.UUID) *draftVerification {
	st, ok := s.drafts[sessionID]
	if !ok {
		st = &draftVerification{
			result: models.VerificationResult{Status: models.VerificationUnchecked},
		}
		s.drafts[sessionID] = st
	}
	return st
}

// supersede starts a new generation: the pending timer is stopped and the
// in-flight request aborted, so nothing from the old generation can land.
func (st *draftVerification) supersede() {
	st.generation++
	if st.cancelTimer != nil {
		st.cancelTimer()
		st.cancelTimer = nil
	}
	if st.cancelCheck != nil {
		st.cancelCheck()
		st.cancelCheck = nil
	}
}
