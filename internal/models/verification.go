package models

import "time"

// VerificationStatus tracks the availability verification state machine for a
// draft. A draft starts unchecked, moves to debouncing on any window or cart
// mutation, to checking when the quiet period elapses, and resolves to one of
// the terminal states when a response for the current generation arrives.
type VerificationStatus string

const (
	VerificationUnchecked   VerificationStatus = "unchecked"
	VerificationDebouncing  VerificationStatus = "debouncing"
	VerificationChecking    VerificationStatus = "checking"
	VerificationSatisfiable VerificationStatus = "satisfiable"
	VerificationConflicts   VerificationStatus = "conflicts"
	// VerificationCheckFailed means the availability service could not be
	// reached. It blocks progression like a conflict but is reported
	// separately so the UI offers a retry instead of a cart edit.
	VerificationCheckFailed VerificationStatus = "check_failed"
)

// UnavailableLine describes one line item the availability check rejected
type UnavailableLine struct {
	ResourceID     string `json:"resource_id"`
	VariationLabel string `json:"variation_label"`
	RequestedQty   int    `json:"requested_qty"`
	AvailableQty   int    `json:"available_qty"`
}

// VerificationResult is the current outcome of availability verification for
// a draft. Generation identifies the verification cycle the result belongs
// to; results from superseded generations are never applied.
type VerificationResult struct {
	Status      VerificationStatus `json:"status"`
	Generation  uint64             `json:"generation"`
	Unavailable []UnavailableLine  `json:"unavailable,omitempty"`
	CheckedAt   *time.Time         `json:"checked_at,omitempty"`
}

// Satisfiable reports whether the latest verification confirmed the draft
func (r VerificationResult) Satisfiable() bool {
	return r.Status == VerificationSatisfiable
}

// Pending reports whether a verification cycle is still in flight
func (r VerificationResult) Pending() bool {
	return r.Status == VerificationDebouncing || r.Status == VerificationChecking
}

// Blocking reports whether the wizard must hold the user at the item step
func (r VerificationResult) Blocking() bool {
	return !r.Satisfiable()
}
