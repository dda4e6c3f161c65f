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

// ExperienceRepository handles persistence for experiences and the read side
// of entitlements, attendances, and receipts.
type ExperienceRepository struct {
	db *pgxpool.Pool
}

// NewExperienceRepository constructs an ExperienceRepository.
func NewExperienceRepository(db *pgxpool.Pool) *ExperienceRepository {
	return &ExperienceRepository{db: db}
}

const experienceColumns = `id, title, type, state, owner_id, access_rules,
	revenue_rules, contributors, total_revenue_cents, attendance_count,
	version, created_at`

func scanExperience(row pgx.Row) (*model.Experience, error) {
	var e model.Experience
	err := row.Scan(
		&e.ID, &e.Title, &e.Type, &e.State, &e.OwnerID, &e.AccessRules,
		&e.RevenueRules, &e.Contributors, &e.TotalRevenueCents,
		&e.AttendanceCount, &e.Version, &e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan experience: %w", err)
	}
	return &e, nil
}

// Create inserts a new draft experience and returns it with a generated UUID.
func (r *ExperienceRepository) Create(ctx context.Context, req model.CreateExperienceRequest) (*model.Experience, error) {
	exp := &model.Experience{
		ID:           uuid.New().String(),
		Title:        req.Title,
		Type:         req.Type,
		State:        model.StateDraft,
		OwnerID:      req.OwnerID,
		AccessRules:  req.AccessRules,
		RevenueRules: req.RevenueRules,
		Contributors: req.Contributors,
		Version:      1,
		CreatedAt:    time.Now().UTC(),
	}
	if exp.AccessRules == nil {
		exp.AccessRules = []model.AccessRule{}
	}
	if exp.Contributors == nil {
		exp.Contributors = []model.Contributor{}
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO experiences (id, title, type, state, owner_id, access_rules,
		   revenue_rules, contributors, total_revenue_cents, attendance_count, version, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, 0, $9, $10)`,
		exp.ID, exp.Title, exp.Type, exp.State, exp.OwnerID, exp.AccessRules,
		exp.RevenueRules, exp.Contributors, exp.Version, exp.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert experience: %w", err)
	}
	return exp, nil
}

// GetByID returns a single experience or ErrNotFound.
func (r *ExperienceRepository) GetByID(ctx context.Context, id string) (*model.Experience, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+experienceColumns+` FROM experiences WHERE id = $1`, id)
	return scanExperience(row)
}

// GetActiveEntitlement returns the user's ACTIVE entitlement of the given
// type for an experience, or nil when none exists.
func (r *ExperienceRepository) GetActiveEntitlement(ctx context.Context, userID, experienceID string, typ model.EntitlementType) (*model.Entitlement, error) {
	var ent model.Entitlement
	var receiptID *string
	err := r.db.QueryRow(ctx,
		`SELECT id, user_id, experience_id, type, status, granted_by, receipt_id, expires_at, created_at
		 FROM entitlements
		 WHERE user_id = $1 AND experience_id = $2 AND type = $3 AND status = 'ACTIVE'`,
		userID, experienceID, typ,
	).Scan(&ent.ID, &ent.UserID, &ent.ExperienceID, &ent.Type, &ent.Status,
		&ent.GrantedBy, &receiptID, &ent.ExpiresAt, &ent.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get entitlement: %w", err)
	}
	if receiptID != nil {
		ent.ReceiptID = *receiptID
	}
	return &ent, nil
}

// GetReceipt returns a receipt or ErrNotFound.
func (r *ExperienceRepository) GetReceipt(ctx context.Context, id string) (*model.Receipt, error) {
	var rec model.Receipt
	var reason *string
	err := r.db.QueryRow(ctx,
		`SELECT id, user_id, experience_id, amount_cents, status, refunded_at, refund_reason, created_at
		 FROM receipts WHERE id = $1`, id,
	).Scan(&rec.ID, &rec.UserID, &rec.ExperienceID, &rec.AmountCents,
		&rec.Status, &rec.RefundedAt, &reason, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get receipt: %w", err)
	}
	if reason != nil {
		rec.RefundReason = *reason
	}
	return &rec, nil
}

// ListAttendances returns all attendances for an experience, oldest first.
func (r *ExperienceRepository) ListAttendances(ctx context.Context, experienceID string) ([]model.Attendance, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, experience_id, user_id, tier, amount_paid_cents, territory, attended_at
		 FROM attendances WHERE experience_id = $1
		 ORDER BY attended_at ASC`, experienceID)
	if err != nil {
		return nil, fmt.Errorf("list attendances: %w", err)
	}
	defer rows.Close()

	var out []model.Attendance
	for rows.Next() {
		var a model.Attendance
		if err := rows.Scan(&a.ID, &a.ExperienceID, &a.UserID, &a.Tier,
			&a.AmountPaidCents, &a.Territory, &a.AttendedAt); err != nil {
			return nil, fmt.Errorf("scan attendance: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
