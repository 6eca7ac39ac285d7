package models

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// LineItemKind distinguishes individually priced garments from package deals
type LineItemKind string

const (
	LineItemGarment LineItemKind = "garment" // single garment variation (color + size)
	LineItemPackage LineItemKind = "package" // bundled package (package + motif)
)

// LineItem represents one requested resource within a draft booking
type LineItem struct {
	ResourceID     string          `json:"resource_id"`
	VariationKey   string          `json:"variation_key"` // e.g. "Champagne,M" or "Classic A,Rustic"
	VariationLabel string          `json:"variation_label"`
	Kind           LineItemKind    `json:"kind"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
}

// Validate validates a line item
func (li *LineItem) Validate() error {
	if li.ResourceID == "" {
		return fmt.Errorf("resource_id is required")
	}
	if li.VariationKey == "" {
		return fmt.Errorf("variation_key is required")
	}
	if li.Kind != LineItemGarment && li.Kind != LineItemPackage {
		return fmt.Errorf("kind must be 'garment' or 'package'")
	}
	if li.Quantity < 1 {
		return fmt.Errorf("quantity must be at least 1")
	}
	if li.UnitPrice.IsNegative() {
		return fmt.Errorf("unit_price cannot be negative")
	}
	return nil
}

// Key returns the identity of a line item within a cart
func (li *LineItem) Key() string {
	return li.ResourceID + "|" + li.VariationKey
}

// LineTotal returns unit price multiplied by quantity
func (li *LineItem) LineTotal() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// CandidateWindow is the date or date range a draft booking applies to.
// Single-day bookings have StartDate == EndDate.
type CandidateWindow struct {
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

// NewSingleDayWindow builds a window covering one day
func NewSingleDayWindow(date time.Time) CandidateWindow {
	d := TruncateToDay(date)
	return CandidateWindow{StartDate: d, EndDate: d}
}

// TruncateToDay normalizes a timestamp to midnight UTC
func TruncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// IsZero reports whether no window has been chosen yet
func (w CandidateWindow) IsZero() bool {
	return w.StartDate.IsZero() && w.EndDate.IsZero()
}

// IsSingleDay reports whether the window covers exactly one day
func (w CandidateWindow) IsSingleDay() bool {
	return w.StartDate.Equal(w.EndDate)
}

// Equal compares two windows by calendar day
func (w CandidateWindow) Equal(other CandidateWindow) bool {
	return TruncateToDay(w.StartDate).Equal(TruncateToDay(other.StartDate)) &&
		TruncateToDay(w.EndDate).Equal(TruncateToDay(other.EndDate))
}

// Days returns every calendar day the window covers, in order
func (w CandidateWindow) Days() []time.Time {
	var days []time.Time
	for d := TruncateToDay(w.StartDate); !d.After(TruncateToDay(w.EndDate)); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// Validate checks structural window invariants against the given clock time
func (w CandidateWindow) Validate(now time.Time) error {
	if w.IsZero() {
		return fmt.Errorf("a booking date is required")
	}
	if w.EndDate.Before(w.StartDate) {
		return fmt.Errorf("end date cannot be before start date")
	}
	if TruncateToDay(w.StartDate).Before(TruncateToDay(now)) {
		return fmt.Errorf("date cannot be in the past")
	}
	return nil
}

// Fingerprint returns a stable identity for a window plus item set, used to
// detect whether a draft has actually diverged from its last server-confirmed
// state before spending a network round trip on re-verification.
func Fingerprint(w CandidateWindow, items []LineItem) string {
	keys := make([]string, 0, len(items)+1)
	for _, li := range items {
		keys = append(keys, fmt.Sprintf("%s|%s|%d", li.ResourceID, li.VariationKey, li.Quantity))
	}
	sort.Strings(keys)
	return fmt.Sprintf("%s..%s/%s",
		TruncateToDay(w.StartDate).Format("2006-01-02"),
		TruncateToDay(w.EndDate).Format("2006-01-02"),
		strings.Join(keys, ";"))
}
