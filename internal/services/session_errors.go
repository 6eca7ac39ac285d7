package services

import (
	"errors"
	"fmt"

	"github.com/seekerVs/kasal-atbp-avenue-management-system-sub001/internal/models"
)

var (
	// ErrSessionNotFound indicates no active draft session with that id
	ErrSessionNotFound = errors.New("draft session not found")

	// ErrSessionClosed indicates the session was already committed or cancelled
	ErrSessionClosed = errors.New("draft session is no longer active")

	// ErrConfirmRequired indicates a destructive window change was attempted
	// without confirmation. The window and items are left untouched.
	ErrConfirmRequired = errors.New("changing the date clears the selected items; confirmation is required")
)

// StepBlockedError indicates forward navigation or submission is blocked by
// the current verification state. It is not a validation failure: the cart
// may be fine and the check simply unfinished.
type StepBlockedError struct {
	Verification models.VerificationResult
}

func (e *StepBlockedError) Error() string {
	switch e.Verification.Status {
	case models.VerificationConflicts:
		return fmt.Sprintf("%d item(s) are not available for the selected date", len(e.Verification.Unavailable))
	case models.VerificationCheckFailed:
		return "availability could not be verified; please retry"
	default:
		return "availability has not been verified yet"
	}
}
