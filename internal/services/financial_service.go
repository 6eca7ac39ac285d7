package services

import (
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/seekerVs/kasal-atbp-avenue-management-system-sub001/internal/models"
)

// DepositPolicy computes the required deposit for one line item
type DepositPolicy interface {
	LineDeposit(item models.LineItem) decimal.Decimal
}

// StandardDepositPolicy is the shop's default rule: garments owe a
// percentage of the unit price capped per item, packages a flat fee each.
type StandardDepositPolicy struct {
	GarmentRate    decimal.Decimal // e.g. 0.20
	GarmentCapEach decimal.Decimal // upper bound per garment
	PackageFeeEach decimal.Decimal // flat fee per package
}

// DefaultDepositPolicy returns the shop's standard deposit rule
func DefaultDepositPolicy() StandardDepositPolicy {
	return StandardDepositPolicy{
		GarmentRate:    decimal.NewFromFloat(0.20),
		GarmentCapEach: decimal.NewFromInt(1500),
		PackageFeeEach: decimal.NewFromInt(150),
	}
}

// LineDeposit computes the deposit owed for one line
func (p StandardDepositPolicy) LineDeposit(item models.LineItem) decimal.Decimal {
	qty := decimal.NewFromInt(int64(item.Quantity))
	if item.Kind == models.LineItemPackage {
		return p.PackageFeeEach.Mul(qty)
	}
	perItem := item.UnitPrice.Mul(p.GarmentRate)
	if perItem.GreaterThan(p.GarmentCapEach) {
		perItem = p.GarmentCapEach
	}
	return perItem.Mul(qty)
}

// FinancialService derives totals from the current line-item set and keeps
// the draft's default payment amount synchronized as the cart changes.
type FinancialService struct {
	policy DepositPolicy
	logger *logrus.Logger
}

// NewFinancialService creates a new financial service
func NewFinancialService(policy DepositPolicy, logger *logrus.Logger) *FinancialService {
	return &FinancialService{
		policy: policy,
		logger: logger,
	}
}

// Recalculate derives a snapshot from the item set. Pure: the same items
// always produce an identical snapshot, however often it runs.
func (s *FinancialService) Recalculate(items []models.LineItem) models.FinancialSnapshot {
	subtotal := decimal.Zero
	deposit := decimal.Zero
	for _, li := range items {
		subtotal = subtotal.Add(li.LineTotal())
		deposit = deposit.Add(s.policy.LineDeposit(li))
	}

	grandTotal := subtotal.Add(deposit)

	return models.FinancialSnapshot{
		Subtotal:             subtotal,
		RequiredDeposit:      deposit,
		GrandTotal:           grandTotal,
		DefaultPaymentAmount: grandTotal.Div(decimal.NewFromInt(2)).Round(2),
	}
}

// ApplyToDraft recomputes the draft's financials and resyncs the staged
// payment. A payment that still equals the previous default follows the new
// default; a manually overridden amount is left alone. A zero grand total
// clears any staged payment entirely.
func (s *FinancialService) ApplyToDraft(d *models.DraftSession) {
	previousDefault := d.Financials.DefaultPaymentAmount
	d.Financials = s.Recalculate(d.Items)

	if d.Financials.GrandTotal.IsZero() {
		if !d.Payment.IsZero() {
			s.logger.WithField("session_id", d.ID).Debug("Grand total reached zero, clearing staged payment")
		}
		d.Payment = models.PaymentDetails{Amount: decimal.Zero}
		return
	}

	followsDefault := !d.Payment.ManualOverride ||
		d.Payment.Amount.Equal(previousDefault)
	if d.Payment.Amount.IsZero() || followsDefault {
		d.Payment.Amount = d.Financials.DefaultPaymentAmount
		d.Payment.ManualOverride = false
	}
}
