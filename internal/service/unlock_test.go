package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultstage/rights-engine/internal/model"
	"github.com/vaultstage/rights-engine/internal/notify"
	"github.com/vaultstage/rights-engine/internal/rights"
)

func newUnlockFixture(t *testing.T) (*memStore, *recordingDispatcher, *UnlockService) {
	t.Helper()
	store := newMemStore()
	dispatcher := &recordingDispatcher{}
	svc := NewUnlockService(store, store, NewPromoResolver(store), dispatcher)
	return store, dispatcher, svc
}

func paidExperience(store *memStore, priceCents int64) *model.Experience {
	return store.addExperience(&model.Experience{
		Title:   "Midnight Sessions",
		OwnerID: "owner-1",
		State:   model.StateLive,
		AccessRules: []model.AccessRule{
			{Tier: model.TierPaid, PriceCents: priceCents},
		},
	})
}

func TestUnlockFreeTier(t *testing.T) {
	store, dispatcher, svc := newUnlockFixture(t)
	exp := store.addExperience(&model.Experience{
		OwnerID:     "owner-1",
		State:       model.StateLive,
		AccessRules: []model.AccessRule{{Tier: model.TierFree}},
	})

	att, err := svc.Unlock(context.Background(), exp.ID, model.Requester{ID: "user-1"}, "")
	require.NoError(t, err)

	assert.Zero(t, att.AmountPaidCents)
	assert.Equal(t, model.TierFree, att.Tier)
	assert.Equal(t, rights.DefaultTerritory, att.Territory)

	// Even a free unlock leaves a completed zero-amount receipt behind, so
	// the refund path has something to revoke.
	require.Len(t, store.receipts, 1)
	for _, rec := range store.receipts {
		assert.Zero(t, rec.AmountCents)
		assert.Equal(t, model.ReceiptCompleted, rec.Status)
	}

	assert.Equal(t, 1, store.experiences[exp.ID].AttendanceCount)
	assert.Zero(t, store.experiences[exp.ID].TotalRevenueCents)
	require.Len(t, dispatcher.sent, 1)
	assert.Equal(t, notify.TypeSale, dispatcher.sent[0].Type)
	assert.Equal(t, "owner-1", dispatcher.sent[0].UserID)
}

func TestUnlockPaidTier(t *testing.T) {
	store, _, svc := newUnlockFixture(t)
	exp := paidExperience(store, 1999)

	att, err := svc.Unlock(context.Background(), exp.ID, model.Requester{ID: "user-1", Territory: "DE"}, "")
	require.NoError(t, err)

	assert.Equal(t, int64(1999), att.AmountPaidCents)
	assert.Equal(t, "DE", att.Territory)
	assert.Equal(t, int64(1999), store.experiences[exp.ID].TotalRevenueCents)
	assert.Equal(t, 1, store.experiences[exp.ID].AttendanceCount)

	require.Len(t, store.entitlements, 1)
	assert.Equal(t, model.GrantPurchase, store.entitlements[0].GrantedBy)
	assert.Equal(t, model.EntitlementActive, store.entitlements[0].Status)
}

func TestUnlockWithPromo(t *testing.T) {
	store, _, svc := newUnlockFixture(t)
	exp := paidExperience(store, 1999)
	promo := store.addPromo(&model.PromoCode{
		Code:          "HALF",
		DiscountType:  model.DiscountPercentage,
		DiscountValue: 50,
		MaxUses:       intPtr(5),
		Active:        true,
	})

	att, err := svc.Unlock(context.Background(), exp.ID, model.Requester{ID: "user-1"}, "HALF")
	require.NoError(t, err)

	assert.Equal(t, int64(999), att.AmountPaidCents)
	assert.Equal(t, int64(999), store.experiences[exp.ID].TotalRevenueCents)
	assert.Equal(t, 1, promo.UsedCount)
	require.Len(t, store.entitlements, 1)
	assert.Equal(t, model.GrantPromotion, store.entitlements[0].GrantedBy)
}

func TestUnlockIdempotent(t *testing.T) {
	store, dispatcher, svc := newUnlockFixture(t)
	exp := paidExperience(store, 500)
	user := model.Requester{ID: "user-1"}

	first, err := svc.Unlock(context.Background(), exp.ID, user, "")
	require.NoError(t, err)
	second, err := svc.Unlock(context.Background(), exp.ID, user, "")
	require.NoError(t, err)

	// The repeat call returns the original attendance and charges nothing.
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(500), store.experiences[exp.ID].TotalRevenueCents)
	assert.Equal(t, 1, store.experiences[exp.ID].AttendanceCount)
	assert.Len(t, store.attendances, 1)
	assert.Len(t, store.receipts, 1)

	// No second sale notification either.
	assert.Len(t, dispatcher.sent, 1)
}

func TestUnlockDeniedOnDraft(t *testing.T) {
	store, dispatcher, svc := newUnlockFixture(t)
	exp := store.addExperience(&model.Experience{
		OwnerID:     "owner-1",
		State:       model.StateDraft,
		AccessRules: []model.AccessRule{{Tier: model.TierFree}},
	})

	_, err := svc.Unlock(context.Background(), exp.ID, model.Requester{ID: "user-1"}, "")

	var denied *AccessDeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, rights.ReasonNotPublished, denied.Decision.Reason)

	// Nothing was written.
	assert.Empty(t, store.attendances)
	assert.Empty(t, store.receipts)
	assert.Empty(t, dispatcher.sent)
}

func TestUnlockPromoDeniedWritesNothing(t *testing.T) {
	store, _, svc := newUnlockFixture(t)
	exp := paidExperience(store, 1000)
	store.addPromo(&model.PromoCode{Code: "SPENT", DiscountType: model.DiscountFree, Active: true, MaxUses: intPtr(1), UsedCount: 1})

	_, err := svc.Unlock(context.Background(), exp.ID, model.Requester{ID: "user-1"}, "SPENT")

	var denied *PromoDeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, PromoReasonLimitReached, denied.Reason)
	assert.Empty(t, store.attendances)
	assert.Zero(t, store.experiences[exp.ID].TotalRevenueCents)
}

func TestUnlockRetriesOnceOnConflict(t *testing.T) {
	store, _, svc := newUnlockFixture(t)
	exp := paidExperience(store, 750)
	store.conflictsToFail = 1

	att, err := svc.Unlock(context.Background(), exp.ID, model.Requester{ID: "user-1"}, "")
	require.NoError(t, err)

	assert.Equal(t, int64(750), att.AmountPaidCents)
	assert.Equal(t, 2, store.unlockCalls)
}

func TestUnlockGivesUpAfterSecondConflict(t *testing.T) {
	store, _, svc := newUnlockFixture(t)
	exp := paidExperience(store, 750)
	store.conflictsToFail = 2

	_, err := svc.Unlock(context.Background(), exp.ID, model.Requester{ID: "user-1"}, "")

	assert.Error(t, err)
	assert.Equal(t, 2, store.unlockCalls)
}

func TestUnlockSurvivesDispatcherFailure(t *testing.T) {
	store := newMemStore()
	svc := NewUnlockService(store, store, NewPromoResolver(store), failingDispatcher{})
	exp := paidExperience(store, 300)

	att, err := svc.Unlock(context.Background(), exp.ID, model.Requester{ID: "user-1"}, "")

	// The grant already landed; a broken dispatcher must not undo it.
	require.NoError(t, err)
	assert.Equal(t, int64(300), att.AmountPaidCents)
	assert.Equal(t, 1, store.experiences[exp.ID].AttendanceCount)
}

func TestUnlockValidatesInput(t *testing.T) {
	_, _, svc := newUnlockFixture(t)

	_, err := svc.Unlock(context.Background(), "", model.Requester{ID: "user-1"}, "")
	assert.Error(t, err)

	_, err = svc.Unlock(context.Background(), "exp-1", model.Requester{}, "")
	assert.Error(t, err)
}
