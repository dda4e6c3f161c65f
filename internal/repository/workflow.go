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

// ApprovalRepository handles persistence for experience approvals.
type ApprovalRepository struct {
	db *pgxpool.Pool
}

// NewApprovalRepository constructs an ApprovalRepository.
func NewApprovalRepository(db *pgxpool.Pool) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

const approvalColumns = `id, experience_id, org_id, status, reviewed_by,
	review_notes, version, submitted_at, reviewed_at`

func scanApproval(row pgx.Row) (*model.ExperienceApproval, error) {
	var a model.ExperienceApproval
	var orgID, reviewedBy, notes *string
	err := row.Scan(&a.ID, &a.ExperienceID, &orgID, &a.Status, &reviewedBy,
		&notes, &a.Version, &a.SubmittedAt, &a.ReviewedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan approval: %w", err)
	}
	if orgID != nil {
		a.OrgID = *orgID
	}
	if reviewedBy != nil {
		a.ReviewedBy = *reviewedBy
	}
	if notes != nil {
		a.ReviewNotes = *notes
	}
	return &a, nil
}

// Create opens a review request for an experience. At most one open
// (non-terminal) approval may exist per experience; a second submission
// fails with ErrApprovalOpen.
func (r *ApprovalRepository) Create(ctx context.Context, experienceID, orgID, actorID string) (*model.ExperienceApproval, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	// Lock the experience row so two submissions serialise.
	var state model.ExperienceState
	err = tx.QueryRow(ctx,
		`SELECT state FROM experiences WHERE id = $1 FOR UPDATE`, experienceID,
	).Scan(&state)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = ErrNotFound
			return nil, err
		}
		return nil, fmt.Errorf("lock experience row: %w", err)
	}

	var open bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM experience_approvals
		   WHERE experience_id = $1 AND status NOT IN ('APPROVED', 'REJECTED')
		 )`, experienceID,
	).Scan(&open)
	if err != nil {
		return nil, fmt.Errorf("check open approvals: %w", err)
	}
	if open {
		err = ErrApprovalOpen
		return nil, err
	}

	approval := &model.ExperienceApproval{
		ID:           uuid.New().String(),
		ExperienceID: experienceID,
		OrgID:        orgID,
		Status:       model.ApprovalSubmitted,
		Version:      1,
		SubmittedAt:  time.Now().UTC(),
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO experience_approvals (id, experience_id, org_id, status, version, submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		approval.ID, approval.ExperienceID, approval.OrgID, approval.Status,
		approval.Version, approval.SubmittedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert approval: %w", err)
	}

	err = insertAudit(ctx, tx, model.AuditEntry{
		ActorID:    actorID,
		Action:     model.ActionSubmitApproval,
		EntityType: "ExperienceApproval",
		EntityID:   approval.ID,
		Metadata:   map[string]any{"experience_id": experienceID, "org_id": orgID},
	})
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return approval, nil
}

// GetByID returns a single approval or ErrNotFound.
func (r *ApprovalRepository) GetByID(ctx context.Context, id string) (*model.ExperienceApproval, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+approvalColumns+` FROM experience_approvals WHERE id = $1`, id)
	return scanApproval(row)
}

// ReviewParams carries one approval transition.
type ReviewParams struct {
	ApprovalID string
	ActorID    string
	Target     model.ApprovalStatus
	Notes      string
}

// Review moves an approval through its state graph. The legality check runs
// under the row lock so concurrent reviewers cannot both land. Transitioning
// to APPROVED additionally flips the experience from draft to live — the
// only place that happens.
func (r *ApprovalRepository) Review(ctx context.Context, p ReviewParams) (*model.ExperienceApproval, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var current model.ApprovalStatus
	var experienceID string
	err = tx.QueryRow(ctx,
		`SELECT status, experience_id FROM experience_approvals WHERE id = $1 FOR UPDATE`,
		p.ApprovalID,
	).Scan(&current, &experienceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = ErrNotFound
			return nil, err
		}
		return nil, fmt.Errorf("lock approval row: %w", err)
	}
	if !current.CanTransitionTo(p.Target) {
		err = fmt.Errorf("%w: %s → %s", ErrIllegalTransition, current, p.Target)
		return nil, err
	}

	now := time.Now().UTC()
	row := tx.QueryRow(ctx,
		`UPDATE experience_approvals
		 SET status = $1, reviewed_by = $2, review_notes = $3, reviewed_at = $4, version = version + 1
		 WHERE id = $5
		 RETURNING `+approvalColumns,
		p.Target, p.ActorID, p.Notes, now, p.ApprovalID,
	)
	approval, err := scanApproval(row)
	if err != nil {
		return nil, err
	}

	if p.Target == model.ApprovalApproved {
		_, err = tx.Exec(ctx,
			`UPDATE experiences SET state = $1 WHERE id = $2 AND state = $3`,
			model.StateLive, experienceID, model.StateDraft,
		)
		if err != nil {
			return nil, fmt.Errorf("publish experience: %w", err)
		}
	}

	err = insertAudit(ctx, tx, model.AuditEntry{
		ActorID:    p.ActorID,
		Action:     model.ActionReview,
		EntityType: "ExperienceApproval",
		EntityID:   p.ApprovalID,
		Metadata: map[string]any{
			"experience_id": experienceID,
			"status":        string(p.Target),
			"notes":         p.Notes,
		},
	})
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return approval, nil
}

// DisputeRepository handles persistence for credit disputes.
type DisputeRepository struct {
	db *pgxpool.Pool
}

// NewDisputeRepository constructs a DisputeRepository.
func NewDisputeRepository(db *pgxpool.Pool) *DisputeRepository {
	return &DisputeRepository{db: db}
}

const disputeColumns = `id, experience_id, disputed_by, dispute_type, status,
	description, resolution, version, created_at, resolved_at`

func scanDispute(row pgx.Row) (*model.CreditDispute, error) {
	var d model.CreditDispute
	var resolution *string
	err := row.Scan(&d.ID, &d.ExperienceID, &d.DisputedBy, &d.DisputeType,
		&d.Status, &d.Description, &resolution, &d.Version, &d.CreatedAt, &d.ResolvedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan dispute: %w", err)
	}
	if resolution != nil {
		d.Resolution = *resolution
	}
	return &d, nil
}

// Create files a new PENDING dispute against an experience.
func (r *DisputeRepository) Create(ctx context.Context, experienceID string, req model.FileDisputeRequest) (*model.CreditDispute, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var exists bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM experiences WHERE id = $1)`, experienceID,
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check experience: %w", err)
	}
	if !exists {
		err = ErrNotFound
		return nil, err
	}

	dispute := &model.CreditDispute{
		ID:           uuid.New().String(),
		ExperienceID: experienceID,
		DisputedBy:   req.UserID,
		DisputeType:  req.DisputeType,
		Status:       model.DisputePending,
		Description:  req.Description,
		Version:      1,
		CreatedAt:    time.Now().UTC(),
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO credit_disputes (id, experience_id, disputed_by, dispute_type, status, description, version, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		dispute.ID, dispute.ExperienceID, dispute.DisputedBy, dispute.DisputeType,
		dispute.Status, dispute.Description, dispute.Version, dispute.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert dispute: %w", err)
	}

	err = insertAudit(ctx, tx, model.AuditEntry{
		ActorID:    req.UserID,
		Action:     model.ActionFileDispute,
		EntityType: "CreditDispute",
		EntityID:   dispute.ID,
		Metadata:   map[string]any{"experience_id": experienceID, "type": string(req.DisputeType)},
	})
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return dispute, nil
}

// GetByID returns a single dispute or ErrNotFound.
func (r *DisputeRepository) GetByID(ctx context.Context, id string) (*model.CreditDispute, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+disputeColumns+` FROM credit_disputes WHERE id = $1`, id)
	return scanDispute(row)
}

// DisputeTransitionParams carries one dispute transition. NewRules, when
// set, is the already-validated revenue-split rewrite to commit with a
// SPLIT_DISPUTE resolution.
type DisputeTransitionParams struct {
	DisputeID  string
	ActorID    string
	Target     model.DisputeStatus
	Resolution string
	NewRules   *model.RevenueRules
}

// Transition moves a dispute through its state graph. A revenue-rule
// rewrite locks the experience row, replaces the rules, and bumps the
// experience version so in-flight unlocks evaluated against the old rules
// fail their version check instead of committing stale payouts.
func (r *DisputeRepository) Transition(ctx context.Context, p DisputeTransitionParams) (*model.CreditDispute, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var current model.DisputeStatus
	var experienceID string
	err = tx.QueryRow(ctx,
		`SELECT status, experience_id FROM credit_disputes WHERE id = $1 FOR UPDATE`,
		p.DisputeID,
	).Scan(&current, &experienceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = ErrNotFound
			return nil, err
		}
		return nil, fmt.Errorf("lock dispute row: %w", err)
	}
	if !current.CanTransitionTo(p.Target) {
		err = fmt.Errorf("%w: %s → %s", ErrIllegalTransition, current, p.Target)
		return nil, err
	}

	if p.NewRules != nil {
		_, err = tx.Exec(ctx,
			`SELECT 1 FROM experiences WHERE id = $1 FOR UPDATE`, experienceID)
		if err != nil {
			return nil, fmt.Errorf("lock experience row: %w", err)
		}
		_, err = tx.Exec(ctx,
			`UPDATE experiences SET revenue_rules = $1, version = version + 1 WHERE id = $2`,
			p.NewRules, experienceID,
		)
		if err != nil {
			return nil, fmt.Errorf("rewrite revenue rules: %w", err)
		}
	}

	var resolvedAt *time.Time
	if p.Target.Terminal() {
		now := time.Now().UTC()
		resolvedAt = &now
	}
	row := tx.QueryRow(ctx,
		`UPDATE credit_disputes
		 SET status = $1, resolution = $2, resolved_at = $3, version = version + 1
		 WHERE id = $4
		 RETURNING `+disputeColumns,
		p.Target, p.Resolution, resolvedAt, p.DisputeID,
	)
	dispute, err := scanDispute(row)
	if err != nil {
		return nil, err
	}

	err = insertAudit(ctx, tx, model.AuditEntry{
		ActorID:    p.ActorID,
		Action:     model.ActionDispute,
		EntityType: "CreditDispute",
		EntityID:   p.DisputeID,
		Metadata: map[string]any{
			"experience_id":   experienceID,
			"status":          string(p.Target),
			"resolution":      p.Resolution,
			"rules_rewritten": p.NewRules != nil,
		},
	})
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return dispute, nil
}
