package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vaultstage/rights-engine/internal/model"
)

// UnlockRepository performs the unlock and refund transactions. Both follow
// the same shape: lock the rows that will be mutated, verify preconditions
// under the lock, apply delta writes, append the audit entry, commit.
type UnlockRepository struct {
	db *pgxpool.Pool
}

// NewUnlockRepository constructs an UnlockRepository.
func NewUnlockRepository(db *pgxpool.Pool) *UnlockRepository {
	return &UnlockRepository{db: db}
}

// UnlockParams carries a fully evaluated unlock into the store. The service
// decides tier, price, and grant source beforehand; ExpectedVersion is the
// experience version those decisions were computed from.
type UnlockParams struct {
	ExperienceID    string
	UserID          string
	Territory       string
	Tier            model.AccessTier
	AmountCents     int64
	GrantedBy       model.GrantSource
	PromoID         string
	ExpectedVersion int64
}

// UnlockResult reports what the transaction produced. AlreadyUnlocked means
// an ACTIVE entitlement existed and the prior attendance was returned
// untouched: nothing was written.
type UnlockResult struct {
	Attendance      *model.Attendance
	Entitlement     *model.Entitlement
	Receipt         *model.Receipt
	AlreadyUnlocked bool
}

// Unlock grants access atomically.
//
// The experience row lock serialises concurrent unlocks, refunds, and
// revenue-rule rewrites on the same experience. Two guards run under it:
// the version check (rejects decisions computed from stale revenue rules
// with ErrVersionConflict) and the ACTIVE-entitlement check (makes a repeat
// unlock idempotent). The partial unique index on entitlements backstops the
// latter; if the insert still conflicts the loser returns the winner's
// attendance rather than double-granting.
func (r *UnlockRepository) Unlock(ctx context.Context, p UnlockParams) (*UnlockResult, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	// Ensure the transaction is always resolved.
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	// Lock the experience row; everything below sees a stable experience.
	var version int64
	err = tx.QueryRow(ctx,
		`SELECT version FROM experiences WHERE id = $1 FOR UPDATE`,
		p.ExperienceID,
	).Scan(&version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = ErrNotFound
			return nil, err
		}
		return nil, fmt.Errorf("lock experience row: %w", err)
	}
	if version != p.ExpectedVersion {
		err = ErrVersionConflict
		return nil, err
	}

	// Idempotency: a prior ACTIVE grant wins; return its attendance as-is.
	existing, err := r.findActiveGrant(ctx, tx, p)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if err = tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit transaction: %w", err)
		}
		return existing, nil
	}

	now := time.Now().UTC()

	receipt := &model.Receipt{
		ID:           uuid.New().String(),
		UserID:       p.UserID,
		ExperienceID: p.ExperienceID,
		AmountCents:  p.AmountCents,
		Status:       model.ReceiptCompleted,
		CreatedAt:    now,
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO receipts (id, user_id, experience_id, amount_cents, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		receipt.ID, receipt.UserID, receipt.ExperienceID, receipt.AmountCents, receipt.Status, receipt.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert receipt: %w", err)
	}

	// Conditional insert: the partial unique index rejects a second ACTIVE
	// grant. No returned id means a concurrent writer beat us to it.
	ent := &model.Entitlement{
		ID:           uuid.New().String(),
		UserID:       p.UserID,
		ExperienceID: p.ExperienceID,
		Type:         model.EntitlementUnlock,
		Status:       model.EntitlementActive,
		GrantedBy:    p.GrantedBy,
		ReceiptID:    receipt.ID,
		CreatedAt:    now,
	}
	var insertedID string
	err = tx.QueryRow(ctx,
		`INSERT INTO entitlements (id, user_id, experience_id, type, status, granted_by, receipt_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (user_id, experience_id, type) WHERE status = 'ACTIVE' DO NOTHING
		 RETURNING id`,
		ent.ID, ent.UserID, ent.ExperienceID, ent.Type, ent.Status, ent.GrantedBy, ent.ReceiptID, ent.CreatedAt,
	).Scan(&insertedID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = ErrConflict
			return nil, err
		}
		return nil, fmt.Errorf("insert entitlement: %w", err)
	}

	attendance := &model.Attendance{
		ID:              uuid.New().String(),
		ExperienceID:    p.ExperienceID,
		UserID:          p.UserID,
		Tier:            p.Tier,
		AmountPaidCents: p.AmountCents,
		Territory:       p.Territory,
		AttendedAt:      now,
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO attendances (id, experience_id, user_id, tier, amount_paid_cents, territory, attended_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		attendance.ID, attendance.ExperienceID, attendance.UserID, attendance.Tier,
		attendance.AmountPaidCents, attendance.Territory, attendance.AttendedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert attendance: %w", err)
	}

	// Delta writes, never read-modify-write.
	_, err = tx.Exec(ctx,
		`UPDATE experiences
		 SET total_revenue_cents = total_revenue_cents + $1,
		     attendance_count = attendance_count + 1
		 WHERE id = $2`,
		p.AmountCents, p.ExperienceID,
	)
	if err != nil {
		return nil, fmt.Errorf("increment experience counters: %w", err)
	}

	// Redemption happens here, at commit time, bounded by max_uses. An
	// abandoned checkout never consumes a slot; a full code aborts the
	// whole unlock.
	if p.PromoID != "" {
		tag, execErr := tx.Exec(ctx,
			`UPDATE promo_codes
			 SET used_count = used_count + 1
			 WHERE id = $1 AND active AND (max_uses IS NULL OR used_count < max_uses)`,
			p.PromoID,
		)
		if execErr != nil {
			err = fmt.Errorf("redeem promo code: %w", execErr)
			return nil, err
		}
		if tag.RowsAffected() == 0 {
			err = ErrPromoExhausted
			return nil, err
		}
	}

	err = insertAudit(ctx, tx, model.AuditEntry{
		ActorID:    p.UserID,
		Action:     model.ActionUnlock,
		EntityType: "Experience",
		EntityID:   p.ExperienceID,
		Metadata: map[string]any{
			"tier":         string(p.Tier),
			"amount_cents": p.AmountCents,
			"territory":    p.Territory,
			"receipt_id":   receipt.ID,
			"promo_id":     p.PromoID,
		},
	})
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return &UnlockResult{Attendance: attendance, Entitlement: ent, Receipt: receipt}, nil
}

// findActiveGrant looks for an existing ACTIVE entitlement and its most
// recent attendance inside the transaction.
func (r *UnlockRepository) findActiveGrant(ctx context.Context, tx pgx.Tx, p UnlockParams) (*UnlockResult, error) {
	var ent model.Entitlement
	var receiptID *string
	err := tx.QueryRow(ctx,
		`SELECT id, user_id, experience_id, type, status, granted_by, receipt_id, expires_at, created_at
		 FROM entitlements
		 WHERE user_id = $1 AND experience_id = $2 AND type = $3 AND status = 'ACTIVE'`,
		p.UserID, p.ExperienceID, model.EntitlementUnlock,
	).Scan(&ent.ID, &ent.UserID, &ent.ExperienceID, &ent.Type, &ent.Status,
		&ent.GrantedBy, &receiptID, &ent.ExpiresAt, &ent.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("check existing entitlement: %w", err)
	}
	if receiptID != nil {
		ent.ReceiptID = *receiptID
	}

	var att model.Attendance
	err = tx.QueryRow(ctx,
		`SELECT id, experience_id, user_id, tier, amount_paid_cents, territory, attended_at
		 FROM attendances
		 WHERE experience_id = $1 AND user_id = $2
		 ORDER BY attended_at DESC LIMIT 1`,
		p.ExperienceID, p.UserID,
	).Scan(&att.ID, &att.ExperienceID, &att.UserID, &att.Tier,
		&att.AmountPaidCents, &att.Territory, &att.AttendedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Grant without attendance: admin/invite grant. Report the
			// entitlement alone; nothing new is written either way.
			return &UnlockResult{Entitlement: &ent, AlreadyUnlocked: true}, nil
		}
		return nil, fmt.Errorf("read existing attendance: %w", err)
	}

	return &UnlockResult{Attendance: &att, Entitlement: &ent, AlreadyUnlocked: true}, nil
}

// RefundParams identifies the receipt to reverse and who ordered it.
type RefundParams struct {
	ReceiptID string
	ActorID   string
	Reason    string
}

// Refund reverses a completed unlock: receipt to REFUNDED, every linked
// ACTIVE entitlement to REFUNDED, counters decremented (floored at zero),
// one audit entry. All-or-nothing. A receipt that is not COMPLETED fails
// with ErrNotRefundable so double-refund bugs surface immediately.
func (r *UnlockRepository) Refund(ctx context.Context, p RefundParams) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var experienceID string
	var amountCents int64
	var status model.ReceiptStatus
	err = tx.QueryRow(ctx,
		`SELECT experience_id, amount_cents, status FROM receipts WHERE id = $1 FOR UPDATE`,
		p.ReceiptID,
	).Scan(&experienceID, &amountCents, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = ErrNotFound
			return err
		}
		return fmt.Errorf("lock receipt row: %w", err)
	}
	if status != model.ReceiptCompleted {
		err = fmt.Errorf("%w: receipt status is %s", ErrNotRefundable, status)
		return err
	}

	// Serialise against concurrent unlocks on the same experience.
	_, err = tx.Exec(ctx,
		`SELECT 1 FROM experiences WHERE id = $1 FOR UPDATE`, experienceID)
	if err != nil {
		return fmt.Errorf("lock experience row: %w", err)
	}

	now := time.Now().UTC()
	_, err = tx.Exec(ctx,
		`UPDATE receipts SET status = $1, refunded_at = $2, refund_reason = $3 WHERE id = $4`,
		model.ReceiptRefunded, now, p.Reason, p.ReceiptID,
	)
	if err != nil {
		return fmt.Errorf("update receipt: %w", err)
	}

	// Entitlements leave ACTIVE first; an unlock racing this refund will
	// block on the experience lock and then see the REFUNDED rows.
	_, err = tx.Exec(ctx,
		`UPDATE entitlements SET status = $1 WHERE receipt_id = $2 AND status = 'ACTIVE'`,
		model.EntitlementRefunded, p.ReceiptID,
	)
	if err != nil {
		return fmt.Errorf("revoke entitlements: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE experiences
		 SET total_revenue_cents = GREATEST(0, total_revenue_cents - $1),
		     attendance_count = GREATEST(0, attendance_count - 1)
		 WHERE id = $2`,
		amountCents, experienceID,
	)
	if err != nil {
		return fmt.Errorf("decrement experience counters: %w", err)
	}

	err = insertAudit(ctx, tx, model.AuditEntry{
		ActorID:    p.ActorID,
		Action:     model.ActionRefund,
		EntityType: "Receipt",
		EntityID:   p.ReceiptID,
		Metadata: map[string]any{
			"reason":        p.Reason,
			"experience_id": experienceID,
			"amount_cents":  amountCents,
		},
	})
	if err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
