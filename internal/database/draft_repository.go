package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/seekerVs/kasal-atbp-avenue-management-system-sub001/internal/models"
)

// DraftSessionRepository persists draft sessions so an in-progress wizard
// survives a process restart. The verification result is deliberately not
// stored: it is only meaningful while the verifier that produced it is alive.
type DraftSessionRepository struct {
	db DB
}

// NewDraftSessionRepository creates a new DraftSessionRepository
func NewDraftSessionRepository(db DB) *DraftSessionRepository {
	return &DraftSessionRepository{db: db}
}

// Save upserts a draft session
func (r *DraftSessionRepository) Save(d *models.DraftSession) error {
	itemsJSON, err := json.Marshal(d.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal items: %w", err)
	}
	customerJSON, err := json.Marshal(d.Customer)
	if err != nil {
		return fmt.Errorf("failed to marshal customer: %w", err)
	}
	paymentJSON, err := json.Marshal(d.Payment)
	if err != nil {
		return fmt.Errorf("failed to marshal payment: %w", err)
	}
	financialsJSON, err := json.Marshal(d.Financials)
	if err != nil {
		return fmt.Errorf("failed to marshal financials: %w", err)
	}

	var startDate, endDate *time.Time
	if !d.Window.IsZero() {
		startDate = &d.Window.StartDate
		endDate = &d.Window.EndDate
	}

	query := `
		INSERT INTO draft_sessions (
			id, entity_kind, entity_id, status, step,
			start_date, end_date, items, customer, payment, financials,
			confirmed_fingerprint, committed_entity_id, device_summary,
			created_at, updated_at, expires_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			step = EXCLUDED.step,
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date,
			items = EXCLUDED.items,
			customer = EXCLUDED.customer,
			payment = EXCLUDED.payment,
			financials = EXCLUDED.financials,
			confirmed_fingerprint = EXCLUDED.confirmed_fingerprint,
			committed_entity_id = EXCLUDED.committed_entity_id,
			updated_at = EXCLUDED.updated_at,
			expires_at = EXCLUDED.expires_at`

	_, err = r.db.Exec(query,
		d.ID, d.EntityKind, d.EntityID, d.Status, d.Step,
		startDate, endDate, itemsJSON, customerJSON, paymentJSON, financialsJSON,
		d.ConfirmedFingerprint, d.CommittedEntityID, d.DeviceSummary,
		d.CreatedAt, d.UpdatedAt, d.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save draft session: %w", err)
	}
	return nil
}

// Get retrieves a draft session by ID. Returns (nil, nil) when not found.
func (r *DraftSessionRepository) Get(id uuid.UUID) (*models.DraftSession, error) {
	query := `
		SELECT
			id, entity_kind, entity_id, status, step,
			start_date, end_date, items, customer, payment, financials,
			confirmed_fingerprint, committed_entity_id, device_summary,
			created_at, updated_at, expires_at
		FROM draft_sessions
		WHERE id = $1`

	var d models.DraftSession
	var entityID, committedEntityID sql.NullString
	var startDate, endDate sql.NullTime
	var itemsJSON, customerJSON, paymentJSON, financialsJSON []byte

	err := r.db.QueryRow(query, id).Scan(
		&d.ID, &d.EntityKind, &entityID, &d.Status, &d.Step,
		&startDate, &endDate, &itemsJSON, &customerJSON, &paymentJSON, &financialsJSON,
		&d.ConfirmedFingerprint, &committedEntityID, &d.DeviceSummary,
		&d.CreatedAt, &d.UpdatedAt, &d.ExpiresAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch draft session: %w", err)
	}

	if entityID.Valid {
		d.EntityID = &entityID.String
	}
	if committedEntityID.Valid {
		d.CommittedEntityID = &committedEntityID.String
	}
	if startDate.Valid && endDate.Valid {
		d.Window = models.CandidateWindow{
			StartDate: startDate.Time,
			EndDate:   endDate.Time,
		}
	}

	if len(itemsJSON) > 0 {
		if err := json.Unmarshal(itemsJSON, &d.Items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal items: %w", err)
		}
	}
	if len(customerJSON) > 0 {
		if err := json.Unmarshal(customerJSON, &d.Customer); err != nil {
			return nil, fmt.Errorf("failed to unmarshal customer: %w", err)
		}
	}
	if len(paymentJSON) > 0 {
		if err := json.Unmarshal(paymentJSON, &d.Payment); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payment: %w", err)
		}
	}
	if len(financialsJSON) > 0 {
		if err := json.Unmarshal(financialsJSON, &d.Financials); err != nil {
			return nil, fmt.Errorf("failed to unmarshal financials: %w", err)
		}
	}

	d.Verification = models.VerificationResult{Status: models.VerificationUnchecked}
	return &d, nil
}

// Delete removes a draft session
func (r *DraftSessionRepository) Delete(id uuid.UUID) error {
	query := `DELETE FROM draft_sessions WHERE id = $1`
	if _, err := r.db.Exec(query, id); err != nil {
		return fmt.Errorf("failed to delete draft session: %w", err)
	}
	return nil
}

// DeleteExpired removes sessions whose TTL passed before the cutoff.
// Committed sessions are kept for the audit trail.
func (r *DraftSessionRepository) DeleteExpired(before time.Time) (int64, error) {
	query := `DELETE FROM draft_sessions WHERE expires_at < $1 AND status = 'active'`
	result, err := r.db.Exec(query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired draft sessions: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows, nil
}
