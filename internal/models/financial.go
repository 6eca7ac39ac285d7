package models

import "github.com/shopspring/decimal"

// FinancialSnapshot holds the totals derived from the current line-item set.
// It is recomputed synchronously on every cart mutation and never persisted
// on its own; the committed entity carries the server-computed final figures.
type FinancialSnapshot struct {
	Subtotal             decimal.Decimal `json:"subtotal"`
	RequiredDeposit      decimal.Decimal `json:"required_deposit"`
	GrandTotal           decimal.Decimal `json:"grand_total"`
	DefaultPaymentAmount decimal.Decimal `json:"default_payment_amount"`
}

// ZeroFinancialSnapshot returns a snapshot with all amounts at zero
func ZeroFinancialSnapshot() FinancialSnapshot {
	return FinancialSnapshot{
		Subtotal:             decimal.Zero,
		RequiredDeposit:      decimal.Zero,
		GrandTotal:           decimal.Zero,
		DefaultPaymentAmount: decimal.Zero,
	}
}

// PaymentMethod is how the customer settles the staged payment
type PaymentMethod string

const (
	PaymentMethodCash     PaymentMethod = "cash"
	PaymentMethodGCash    PaymentMethod = "gcash"
	PaymentMethodBankTxn  PaymentMethod = "bank_transfer"
)

// PaymentDetails is the payment staged on a draft. Amount follows the
// default (half the grand total) until the staff member overrides it; an
// overridden amount survives recalculation unless it happened to equal the
// previous default, in which case it tracks the new one.
type PaymentDetails struct {
	Method         PaymentMethod   `json:"method,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	Reference      string          `json:"reference,omitempty"`
	ManualOverride bool            `json:"manual_override"`
}

// IsZero reports whether no payment has been staged
func (p PaymentDetails) IsZero() bool {
	return p.Method == "" && p.Amount.IsZero() && p.Reference == ""
}
