package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultstage/rights-engine/internal/model"
	"github.com/vaultstage/rights-engine/internal/revenue"
	"github.com/vaultstage/rights-engine/internal/rights"
)

func newExperienceFixture(t *testing.T) (*memStore, *ExperienceService) {
	t.Helper()
	store := newMemStore()
	return store, NewExperienceService(store, store)
}

func TestExperienceCreate(t *testing.T) {
	_, svc := newExperienceFixture(t)

	exp, err := svc.Create(context.Background(), model.CreateExperienceRequest{
		Title:   "Live at the Loft",
		Type:    model.TypeEvent,
		OwnerID: "owner-1",
		AccessRules: []model.AccessRule{
			{Tier: model.TierPaid, PriceCents: 2500},
			{Tier: model.TierFree},
		},
		RevenueRules: &model.RevenueRules{Artist: 80, Platform: 20},
	})
	require.NoError(t, err)

	assert.Equal(t, model.StateDraft, exp.State)
	assert.Equal(t, int64(1), exp.Version)
}

func TestExperienceCreateValidation(t *testing.T) {
	_, svc := newExperienceFixture(t)

	cases := []model.CreateExperienceRequest{
		{Type: model.TypeAlbum, OwnerID: "o"},                    // no title
		{Title: "t", Type: model.TypeAlbum},                      // no owner
		{Title: "t", Type: "mixtape", OwnerID: "o"},              // bad type
		{Title: "t", Type: model.TypeAlbum, OwnerID: "o",         // bad tier
			AccessRules: []model.AccessRule{{Tier: "vip"}}},
		{Title: "t", Type: model.TypeAlbum, OwnerID: "o",         // paid without price
			AccessRules: []model.AccessRule{{Tier: model.TierPaid}}},
		{Title: "t", Type: model.TypeAlbum, OwnerID: "o",         // bad split
			RevenueRules: &model.RevenueRules{Artist: 90}},
	}
	for i, req := range cases {
		_, err := svc.Create(context.Background(), req)
		assert.Error(t, err, "case %d", i)
	}
}

func TestExperienceAccessPreview(t *testing.T) {
	store, svc := newExperienceFixture(t)
	exp := store.addExperience(&model.Experience{
		OwnerID: "owner-1",
		State:   model.StateLive,
		AccessRules: []model.AccessRule{
			{Tier: model.TierPaid, PriceCents: 999, Territories: []string{"US"}},
		},
	})

	// Territory defaults to US, so the paid rule matches.
	d, err := svc.Access(context.Background(), exp.ID, model.Requester{ID: "user-1"})
	require.NoError(t, err)
	assert.True(t, d.RequiresPayment)
	assert.Equal(t, int64(999), d.PriceCents)

	// Previewing never grants anything.
	assert.Empty(t, store.attendances)
	assert.Empty(t, store.entitlements)

	d, err = svc.Access(context.Background(), exp.ID, model.Requester{ID: "user-1", Territory: "JP"})
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, rights.ReasonNoRuleMatched, d.Reason)
}

func TestExperienceSplits(t *testing.T) {
	store, svc := newExperienceFixture(t)
	exp := store.addExperience(&model.Experience{
		OwnerID:           "owner-1",
		State:             model.StateLive,
		RevenueRules:      &model.RevenueRules{Artist: 50, Label: 25, Platform: 25},
		TotalRevenueCents: 1001,
	})

	res, err := svc.Splits(context.Background(), exp.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(1001), res.Payouts.Sum())
	assert.Equal(t, int64(501), res.Payouts.Artist)
	assert.Equal(t, int64(250), res.Payouts.Label)
	assert.Equal(t, int64(250), res.Payouts.Platform)
}

func TestExperienceAttendances(t *testing.T) {
	store, svc := newExperienceFixture(t)
	exp := store.addExperience(&model.Experience{
		OwnerID:     "owner-1",
		State:       model.StateLive,
		AccessRules: []model.AccessRule{{Tier: model.TierFree}},
	})
	unlockSvc := NewUnlockService(store, store, NewPromoResolver(store), &recordingDispatcher{})
	_, err := unlockSvc.Unlock(context.Background(), exp.ID, model.Requester{ID: "user-1"}, "")
	require.NoError(t, err)

	list, err := svc.Attendances(context.Background(), exp.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "user-1", list[0].UserID)

	_, err = svc.Attendances(context.Background(), "exp-missing")
	assert.Error(t, err)
}

func TestExperienceSplitsWithoutRules(t *testing.T) {
	store, svc := newExperienceFixture(t)
	exp := store.addExperience(&model.Experience{
		OwnerID:           "owner-1",
		State:             model.StateLive,
		TotalRevenueCents: 1000,
	})

	_, err := svc.Splits(context.Background(), exp.ID)
	assert.ErrorIs(t, err, revenue.ErrInvalidSplit)
}
