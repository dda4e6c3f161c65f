package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vaultstage/rights-engine/internal/model"
	"github.com/vaultstage/rights-engine/internal/revenue"
	"github.com/vaultstage/rights-engine/internal/rights"
)

// ExperienceWriter creates experiences.
type ExperienceWriter interface {
	Create(ctx context.Context, req model.CreateExperienceRequest) (*model.Experience, error)
}

// ExperienceService covers the thin read/create surface around experiences:
// creation with invariant checks, access previews, and split reporting.
type ExperienceService struct {
	store  ExperienceStore
	writer ExperienceWriter
}

// NewExperienceService constructs an ExperienceService.
func NewExperienceService(store ExperienceStore, writer ExperienceWriter) *ExperienceService {
	return &ExperienceService{store: store, writer: writer}
}

// Create validates and stores a new draft experience. Revenue rules, when
// present, must already sum to 100%.
func (s *ExperienceService) Create(ctx context.Context, req model.CreateExperienceRequest) (*model.Experience, error) {
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return nil, fmt.Errorf("title is required")
	}
	if req.OwnerID == "" {
		return nil, fmt.Errorf("owner id is required")
	}
	if !validExperienceType(req.Type) {
		return nil, fmt.Errorf("unknown experience type %q", req.Type)
	}
	for i, rule := range req.AccessRules {
		if !validTier(rule.Tier) {
			return nil, fmt.Errorf("access rule %d: unknown tier %q", i, rule.Tier)
		}
		if rule.Tier == model.TierPaid && rule.PriceCents <= 0 {
			return nil, fmt.Errorf("access rule %d: paid tier requires a positive price", i)
		}
	}
	if req.RevenueRules != nil && !revenue.Validate(req.RevenueRules) {
		return nil, fmt.Errorf("%w: got %.2f%%", revenue.ErrInvalidSplit, req.RevenueRules.Total())
	}

	return s.writer.Create(ctx, req)
}

// Get returns a single experience by ID.
func (s *ExperienceService) Get(ctx context.Context, id string) (*model.Experience, error) {
	if id == "" {
		return nil, fmt.Errorf("experience id is required")
	}
	return s.store.GetByID(ctx, id)
}

// Access previews the rights decision for a requester without granting
// anything.
func (s *ExperienceService) Access(ctx context.Context, experienceID string, requester model.Requester) (model.Decision, error) {
	if experienceID == "" || requester.ID == "" {
		return model.Decision{}, fmt.Errorf("experience id and user id are required")
	}
	if requester.Territory == "" {
		requester.Territory = rights.DefaultTerritory
	}

	exp, err := s.store.GetByID(ctx, experienceID)
	if err != nil {
		return model.Decision{}, err
	}
	ent, err := s.store.GetActiveEntitlement(ctx, requester.ID, experienceID, model.EntitlementUnlock)
	if err != nil {
		return model.Decision{}, err
	}
	return rights.Evaluate(exp, requester, ent, time.Now().UTC()), nil
}

// Attendances returns the experience's unlock history, oldest first. Rows
// survive refunds; this is the permanent record, not the active grant list.
func (s *ExperienceService) Attendances(ctx context.Context, experienceID string) ([]model.Attendance, error) {
	if _, err := s.Get(ctx, experienceID); err != nil {
		return nil, err
	}
	return s.store.ListAttendances(ctx, experienceID)
}

// Splits divides the experience's current revenue pool per its rules.
func (s *ExperienceService) Splits(ctx context.Context, experienceID string) (*revenue.SplitResult, error) {
	exp, err := s.Get(ctx, experienceID)
	if err != nil {
		return nil, err
	}
	return revenue.Split(exp.TotalRevenueCents, exp.RevenueRules)
}

func validExperienceType(t model.ExperienceType) bool {
	switch t {
	case model.TypeAlbum, model.TypeSingle, model.TypeEvent, model.TypeSession, model.TypeArchive:
		return true
	}
	return false
}

func validTier(t model.AccessTier) bool {
	switch t {
	case model.TierFree, model.TierPaid, model.TierInvite, model.TierEvent:
		return true
	}
	return false
}
