package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/vaultstage/rights-engine/internal/model"
	"github.com/vaultstage/rights-engine/internal/repository"
	"github.com/vaultstage/rights-engine/internal/revenue"
)

// DisputeWorkflow handles contributor credit and revenue-split disputes.
// Resolving a split dispute is the one path that rewrites an experience's
// revenue rules.
type DisputeWorkflow struct {
	disputes    DisputeStore
	experiences ExperienceStore
}

// NewDisputeWorkflow constructs a DisputeWorkflow.
func NewDisputeWorkflow(disputes DisputeStore, experiences ExperienceStore) *DisputeWorkflow {
	return &DisputeWorkflow{disputes: disputes, experiences: experiences}
}

// File opens a PENDING dispute against an experience.
func (w *DisputeWorkflow) File(ctx context.Context, experienceID string, req model.FileDisputeRequest) (*model.CreditDispute, error) {
	if experienceID == "" {
		return nil, fmt.Errorf("experience id is required")
	}
	if req.UserID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if !validDisputeType(req.DisputeType) {
		return nil, fmt.Errorf("unknown dispute type %q", req.DisputeType)
	}
	req.Description = strings.TrimSpace(req.Description)
	if req.Description == "" {
		return nil, fmt.Errorf("description is required")
	}

	return w.disputes.Create(ctx, experienceID, req)
}

// Transition moves a dispute through its state graph.
//
// A revenue-rule rewrite rides along only when a SPLIT_DISPUTE resolves,
// and only after the 100%-sum check passes — an invalid rewrite is rejected
// before anything is written, leaving the original rules untouched.
func (w *DisputeWorkflow) Transition(ctx context.Context, disputeID string, req model.DisputeTransitionRequest) (*model.CreditDispute, error) {
	if disputeID == "" {
		return nil, fmt.Errorf("dispute id is required")
	}
	if req.ActorID == "" {
		return nil, fmt.Errorf("actor id is required")
	}
	if !validDisputeTarget(req.Status) {
		return nil, fmt.Errorf("unknown dispute status %q", req.Status)
	}
	req.Resolution = strings.TrimSpace(req.Resolution)
	if req.Resolution == "" && req.Status == model.DisputeResolved {
		return nil, fmt.Errorf("resolution is required to resolve a dispute")
	}

	var newRules *model.RevenueRules
	if req.RevenueRules != nil {
		dispute, err := w.disputes.GetByID(ctx, disputeID)
		if err != nil {
			return nil, err
		}
		if dispute.DisputeType != model.DisputeSplit || req.Status != model.DisputeResolved {
			return nil, fmt.Errorf("revenue rules can only be rewritten when resolving a split dispute")
		}
		if !revenue.Validate(req.RevenueRules) {
			return nil, fmt.Errorf("%w: got %.2f%%", revenue.ErrInvalidSplit, req.RevenueRules.Total())
		}
		newRules = req.RevenueRules
	}

	return w.disputes.Transition(ctx, repository.DisputeTransitionParams{
		DisputeID:  disputeID,
		ActorID:    req.ActorID,
		Target:     req.Status,
		Resolution: req.Resolution,
		NewRules:   newRules,
	})
}

// Get returns one dispute.
func (w *DisputeWorkflow) Get(ctx context.Context, id string) (*model.CreditDispute, error) {
	if id == "" {
		return nil, fmt.Errorf("dispute id is required")
	}
	return w.disputes.GetByID(ctx, id)
}

func validDisputeType(t model.DisputeType) bool {
	switch t {
	case model.DisputeMissingCredit, model.DisputeIncorrectRole,
		model.DisputeSplit, model.DisputeRemovalRequest:
		return true
	}
	return false
}

func validDisputeTarget(s model.DisputeStatus) bool {
	switch s {
	case model.DisputePending, model.DisputeUnderReview, model.DisputeResolved,
		model.DisputeRejected, model.DisputeEscalated:
		return true
	}
	return false
}
