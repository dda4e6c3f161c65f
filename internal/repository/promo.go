package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vaultstage/rights-engine/internal/model"
)

// PromoRepository handles persistence for promo codes. Redemption is not
// here: the unlock transaction owns the bounded used_count increment so a
// code is only consumed when an unlock commits.
type PromoRepository struct {
	db *pgxpool.Pool
}

// NewPromoRepository constructs a PromoRepository.
func NewPromoRepository(db *pgxpool.Pool) *PromoRepository {
	return &PromoRepository{db: db}
}

// GetByCode returns a promo code by its case-insensitive code value.
func (r *PromoRepository) GetByCode(ctx context.Context, code string) (*model.PromoCode, error) {
	var p model.PromoCode
	var experienceID *string
	err := r.db.QueryRow(ctx,
		`SELECT id, code, experience_id, discount_type, discount_value,
		        max_uses, used_count, expires_at, active, created_at
		 FROM promo_codes WHERE lower(code) = lower($1)`,
		code,
	).Scan(&p.ID, &p.Code, &experienceID, &p.DiscountType, &p.DiscountValue,
		&p.MaxUses, &p.UsedCount, &p.ExpiresAt, &p.Active, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get promo code: %w", err)
	}
	if experienceID != nil {
		p.ExperienceID = *experienceID
	}
	return &p, nil
}
