package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vaultstage/rights-engine/internal/model"
)

// AuditRepository reads the append-only audit log. Writes happen inside the
// mutating transactions via insertAudit so an entry lands iff its operation
// commits.
type AuditRepository struct {
	db *pgxpool.Pool
}

// NewAuditRepository constructs an AuditRepository.
func NewAuditRepository(db *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{db: db}
}

// insertAudit appends one audit entry within tx.
func insertAudit(ctx context.Context, tx pgx.Tx, entry model.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.Metadata == nil {
		entry.Metadata = map[string]any{}
	}
	_, err := tx.Exec(ctx,
		`INSERT INTO audit_log (id, actor_id, action, entity_type, entity_id, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.ActorID, entry.Action, entry.EntityType, entry.EntityID, entry.Metadata, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// ListByEntity returns entries for one entity, newest first.
func (r *AuditRepository) ListByEntity(ctx context.Context, entityID string, limit int) ([]model.AuditEntry, error) {
	return r.list(ctx,
		`SELECT id, actor_id, action, entity_type, entity_id, metadata, created_at
		 FROM audit_log WHERE entity_id = $1
		 ORDER BY created_at DESC LIMIT $2`,
		entityID, limit)
}

// ListByActor returns entries produced by one actor, newest first.
func (r *AuditRepository) ListByActor(ctx context.Context, actorID string, limit int) ([]model.AuditEntry, error) {
	return r.list(ctx,
		`SELECT id, actor_id, action, entity_type, entity_id, metadata, created_at
		 FROM audit_log WHERE actor_id = $1
		 ORDER BY created_at DESC LIMIT $2`,
		actorID, limit)
}

func (r *AuditRepository) list(ctx context.Context, query string, args ...any) ([]model.AuditEntry, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &e.EntityType, &e.EntityID, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
