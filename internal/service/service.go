// Package service implements the rights & revenue core: unlocking, refunds,
// promo resolution, and the approval/dispute workflows. Services validate
// inputs, run the pure decision functions, and delegate each atomic effect
// to the store; HTTP handlers are thin callers of this package.
package service

import (
	"context"

	"github.com/vaultstage/rights-engine/internal/model"
	"github.com/vaultstage/rights-engine/internal/repository"
)

// ExperienceStore is the read surface services need around experiences and
// their grant records.
type ExperienceStore interface {
	GetByID(ctx context.Context, id string) (*model.Experience, error)
	GetActiveEntitlement(ctx context.Context, userID, experienceID string, typ model.EntitlementType) (*model.Entitlement, error)
	GetReceipt(ctx context.Context, id string) (*model.Receipt, error)
	ListAttendances(ctx context.Context, experienceID string) ([]model.Attendance, error)
}

// UnlockStore performs the atomic unlock and refund transactions.
type UnlockStore interface {
	Unlock(ctx context.Context, p repository.UnlockParams) (*repository.UnlockResult, error)
	Refund(ctx context.Context, p repository.RefundParams) error
}

// PromoStore looks up promo codes. Redemption belongs to UnlockStore.
type PromoStore interface {
	GetByCode(ctx context.Context, code string) (*model.PromoCode, error)
}

// ApprovalStore persists experience approvals and their transitions.
type ApprovalStore interface {
	Create(ctx context.Context, experienceID, orgID, actorID string) (*model.ExperienceApproval, error)
	GetByID(ctx context.Context, id string) (*model.ExperienceApproval, error)
	Review(ctx context.Context, p repository.ReviewParams) (*model.ExperienceApproval, error)
}

// DisputeStore persists credit disputes and their transitions.
type DisputeStore interface {
	Create(ctx context.Context, experienceID string, req model.FileDisputeRequest) (*model.CreditDispute, error)
	GetByID(ctx context.Context, id string) (*model.CreditDispute, error)
	Transition(ctx context.Context, p repository.DisputeTransitionParams) (*model.CreditDispute, error)
}

// AccessDeniedError carries the rights decision that denied access; its
// reason is safe to surface as user-facing text.
type AccessDeniedError struct {
	Decision model.Decision
}

func (e *AccessDeniedError) Error() string {
	return "access denied: " + e.Decision.Reason
}

// PromoDeniedError explains why a promo code did not apply.
type PromoDeniedError struct {
	Reason string
}

func (e *PromoDeniedError) Error() string {
	return "promo code rejected: " + e.Reason
}
