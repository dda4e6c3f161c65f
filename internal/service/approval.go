package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/vaultstage/rights-engine/internal/model"
	"github.com/vaultstage/rights-engine/internal/repository"
)

// ApprovalWorkflow gates an experience's transition from draft to live
// through label review.
type ApprovalWorkflow struct {
	approvals   ApprovalStore
	experiences ExperienceStore
}

// NewApprovalWorkflow constructs an ApprovalWorkflow.
func NewApprovalWorkflow(approvals ApprovalStore, experiences ExperienceStore) *ApprovalWorkflow {
	return &ApprovalWorkflow{approvals: approvals, experiences: experiences}
}

// Submit opens a review request for a draft experience. The submitting
// actor must be the experience owner.
func (w *ApprovalWorkflow) Submit(ctx context.Context, experienceID, orgID, actorID string) (*model.ExperienceApproval, error) {
	if experienceID == "" {
		return nil, fmt.Errorf("experience id is required")
	}
	if actorID == "" {
		return nil, fmt.Errorf("actor id is required")
	}

	exp, err := w.experiences.GetByID(ctx, experienceID)
	if err != nil {
		return nil, err
	}
	if exp.OwnerID != actorID {
		return nil, fmt.Errorf("%w: only the owner submits for review", ErrForbidden)
	}
	if exp.State != model.StateDraft {
		return nil, fmt.Errorf("only draft experiences can be submitted, state is %s", exp.State)
	}

	return w.approvals.Create(ctx, experienceID, orgID, actorID)
}

// Review moves an approval through its state graph. Notes are required for
// every target except APPROVED. Approving also flips the experience from
// draft to live.
func (w *ApprovalWorkflow) Review(ctx context.Context, approvalID string, req model.ReviewRequest) (*model.ExperienceApproval, error) {
	if approvalID == "" {
		return nil, fmt.Errorf("approval id is required")
	}
	if req.ActorID == "" {
		return nil, fmt.Errorf("actor id is required")
	}
	if !validApprovalTarget(req.Status) {
		return nil, fmt.Errorf("unknown approval status %q", req.Status)
	}
	req.ReviewNotes = strings.TrimSpace(req.ReviewNotes)
	if req.ReviewNotes == "" && req.Status != model.ApprovalApproved {
		return nil, fmt.Errorf("review notes are required")
	}

	return w.approvals.Review(ctx, repository.ReviewParams{
		ApprovalID: approvalID,
		ActorID:    req.ActorID,
		Target:     req.Status,
		Notes:      req.ReviewNotes,
	})
}

// Get returns one approval.
func (w *ApprovalWorkflow) Get(ctx context.Context, id string) (*model.ExperienceApproval, error) {
	if id == "" {
		return nil, fmt.Errorf("approval id is required")
	}
	return w.approvals.GetByID(ctx, id)
}

func validApprovalTarget(s model.ApprovalStatus) bool {
	switch s {
	case model.ApprovalSubmitted, model.ApprovalUnderReview, model.ApprovalApproved,
		model.ApprovalRejected, model.ApprovalChangesRequested:
		return true
	}
	return false
}
