package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vaultstage/rights-engine/internal/model"
	"github.com/vaultstage/rights-engine/internal/repository"
)

// Promo denial reasons, surfaced as user-facing text.
const (
	PromoReasonInvalid         = "invalid promo code"
	PromoReasonWrongExperience = "code not valid for this experience"
	PromoReasonExpired         = "promo code expired"
	PromoReasonLimitReached    = "promo code limit reached"
)

// PromoResolver validates a discount code against an experience and computes
// the final price. It never redeems: used_count moves only when the unlock
// transaction commits, so an abandoned checkout cannot consume a code.
type PromoResolver struct {
	promos PromoStore
}

// NewPromoResolver constructs a PromoResolver.
func NewPromoResolver(promos PromoStore) *PromoResolver {
	return &PromoResolver{promos: promos}
}

// PromoResolution is a successfully applied code.
type PromoResolution struct {
	PromoID         string `json:"promo_id"`
	FinalPriceCents int64  `json:"final_price_cents"`
}

// Resolve checks a code and returns the discounted price, or a
// PromoDeniedError explaining why the code did not apply.
//
// The bound check here is advisory — a code near its limit is decided for
// real by the bounded increment at unlock commit time.
func (r *PromoResolver) Resolve(ctx context.Context, code, experienceID string, originalPriceCents int64, now time.Time) (*PromoResolution, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, &PromoDeniedError{Reason: PromoReasonInvalid}
	}

	promo, err := r.promos.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &PromoDeniedError{Reason: PromoReasonInvalid}
		}
		return nil, fmt.Errorf("look up promo code: %w", err)
	}

	switch {
	case !promo.Active:
		return nil, &PromoDeniedError{Reason: PromoReasonInvalid}
	case promo.ExperienceID != "" && promo.ExperienceID != experienceID:
		return nil, &PromoDeniedError{Reason: PromoReasonWrongExperience}
	case promo.ExpiresAt != nil && promo.ExpiresAt.Before(now):
		return nil, &PromoDeniedError{Reason: PromoReasonExpired}
	case promo.MaxUses != nil && promo.UsedCount >= *promo.MaxUses:
		return nil, &PromoDeniedError{Reason: PromoReasonLimitReached}
	}

	return &PromoResolution{
		PromoID:         promo.ID,
		FinalPriceCents: discountedPrice(originalPriceCents, promo),
	}, nil
}

// discountedPrice applies one uniform rounding rule: the final price is
// floored, matching the payout calculator's floor-then-remainder policy.
func discountedPrice(original int64, promo *model.PromoCode) int64 {
	switch promo.DiscountType {
	case model.DiscountFree:
		return 0
	case model.DiscountPercentage:
		pct := promo.DiscountValue
		if pct >= 100 {
			return 0
		}
		if pct < 0 {
			pct = 0
		}
		return original * (100 - pct) / 100
	case model.DiscountFixed:
		if promo.DiscountValue >= original {
			return 0
		}
		return original - promo.DiscountValue
	}
	return original
}
