package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/vaultstage/rights-engine/internal/model"
	"github.com/vaultstage/rights-engine/internal/notify"
	"github.com/vaultstage/rights-engine/internal/repository"
	"github.com/vaultstage/rights-engine/internal/rights"
)

// UnlockService orchestrates a permanent unlock: rights evaluation, promo
// resolution, and the atomic grant. A user unlocks an experience once; a
// repeat call returns the existing attendance unchanged.
type UnlockService struct {
	experiences ExperienceStore
	unlocks     UnlockStore
	promos      *PromoResolver
	dispatcher  notify.Dispatcher
}

// NewUnlockService constructs an UnlockService with its dependencies.
func NewUnlockService(
	experiences ExperienceStore,
	unlocks UnlockStore,
	promos *PromoResolver,
	dispatcher notify.Dispatcher,
) *UnlockService {
	return &UnlockService{
		experiences: experiences,
		unlocks:     unlocks,
		promos:      promos,
		dispatcher:  dispatcher,
	}
}

// Unlock grants user access to an experience, charging the matched rule's
// price (after an optional promo code) and splitting it into the revenue
// pool. All reads and validations run before the first write; the store
// transaction re-checks its premises under lock and the whole cycle is
// retried once on conflict.
func (s *UnlockService) Unlock(ctx context.Context, experienceID string, user model.Requester, promoCode string) (*model.Attendance, error) {
	if experienceID == "" {
		return nil, fmt.Errorf("experience id is required")
	}
	if user.ID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if user.Territory == "" {
		user.Territory = rights.DefaultTerritory
	}

	result, err := s.attempt(ctx, experienceID, user, promoCode)
	if errors.Is(err, repository.ErrConflict) {
		// A concurrent unlock, refund, or rule rewrite moved the ground
		// under us; one re-read settles who won.
		result, err = s.attempt(ctx, experienceID, user, promoCode)
	}
	if err != nil {
		return nil, err
	}

	if !result.AlreadyUnlocked {
		s.notifySale(ctx, result)
	}
	return result.Attendance, nil
}

// attempt runs one read-evaluate-write cycle.
func (s *UnlockService) attempt(ctx context.Context, experienceID string, user model.Requester, promoCode string) (*repository.UnlockResult, error) {
	exp, err := s.experiences.GetByID(ctx, experienceID)
	if err != nil {
		return nil, err
	}
	ent, err := s.experiences.GetActiveEntitlement(ctx, user.ID, experienceID, model.EntitlementUnlock)
	if err != nil {
		return nil, err
	}

	decision := rights.Evaluate(exp, user, ent, time.Now().UTC())

	params := repository.UnlockParams{
		ExperienceID:    experienceID,
		UserID:          user.ID,
		Territory:       user.Territory,
		Tier:            decision.MatchedTier,
		GrantedBy:       model.GrantPurchase,
		ExpectedVersion: exp.Version,
	}

	switch {
	case decision.Allowed:
		// Free tier, ownership, or an existing grant: nothing to charge.
	case decision.RequiresPayment:
		params.AmountCents = decision.PriceCents
		if code := strings.TrimSpace(promoCode); code != "" {
			res, err := s.promos.Resolve(ctx, code, experienceID, decision.PriceCents, time.Now().UTC())
			if err != nil {
				return nil, err
			}
			params.AmountCents = res.FinalPriceCents
			params.PromoID = res.PromoID
			params.GrantedBy = model.GrantPromotion
		}
	default:
		return nil, &AccessDeniedError{Decision: decision}
	}

	return s.unlocks.Unlock(ctx, params)
}

// notifySale tells the owner about a completed unlock. Dispatch failures
// are logged, never propagated: the grant has already landed.
func (s *UnlockService) notifySale(ctx context.Context, result *repository.UnlockResult) {
	exp, err := s.experiences.GetByID(ctx, result.Attendance.ExperienceID)
	if err != nil {
		log.Printf("sale notification skipped: %v", err)
		return
	}
	err = s.dispatcher.Notify(ctx, notify.Notification{
		UserID:  exp.OwnerID,
		Type:    notify.TypeSale,
		Title:   "Experience unlocked",
		Message: fmt.Sprintf("%q was unlocked for %d cents", exp.Title, result.Attendance.AmountPaidCents),
		Metadata: map[string]any{
			"experience_id": exp.ID,
			"receipt_id":    result.Receipt.ID,
		},
	})
	if err != nil {
		log.Printf("sale notification failed: %v", err)
	}
}
