// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer. Handlers hold no
// business rules; every decision belongs to internal/service.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vaultstage/rights-engine/internal/model"
	"github.com/vaultstage/rights-engine/internal/repository"
	"github.com/vaultstage/rights-engine/internal/revenue"
	"github.com/vaultstage/rights-engine/internal/service"
)

// AuditLister reads the audit log for the admin surface.
type AuditLister interface {
	ListByEntity(ctx context.Context, entityID string, limit int) ([]model.AuditEntry, error)
	ListByActor(ctx context.Context, actorID string, limit int) ([]model.AuditEntry, error)
}

// Handler holds all HTTP handlers for the rights & revenue API.
type Handler struct {
	experiences *service.ExperienceService
	unlocks     *service.UnlockService
	refunds     *service.RefundService
	promos      *service.PromoResolver
	approvals   *service.ApprovalWorkflow
	disputes    *service.DisputeWorkflow
	audit       AuditLister
}

// New constructs a Handler.
func New(
	experiences *service.ExperienceService,
	unlocks *service.UnlockService,
	refunds *service.RefundService,
	promos *service.PromoResolver,
	approvals *service.ApprovalWorkflow,
	disputes *service.DisputeWorkflow,
	audit AuditLister,
) *Handler {
	return &Handler{
		experiences: experiences,
		unlocks:     unlocks,
		refunds:     refunds,
		promos:      promos,
		approvals:   approvals,
		disputes:    disputes,
		audit:       audit,
	}
}

// Routes mounts all API routes on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/health", HealthCheck)

	r.Route("/experiences", func(r chi.Router) {
		r.Post("/", h.CreateExperience)
		r.Get("/{id}", h.GetExperience)
		r.Get("/{id}/access", h.PreviewAccess)
		r.Get("/{id}/splits", h.GetSplits)
		r.Get("/{id}/attendances", h.ListAttendances)
		r.Post("/{id}/unlock", h.Unlock)
		r.Post("/{id}/approvals", h.SubmitApproval)
		r.Post("/{id}/disputes", h.FileDispute)
	})
	r.Post("/receipts/{id}/refund", h.Refund)
	r.Post("/promos/preview", h.PreviewPromo)
	r.Route("/approvals", func(r chi.Router) {
		r.Get("/{id}", h.GetApproval)
		r.Post("/{id}/review", h.Review)
	})
	r.Route("/disputes", func(r chi.Router) {
		r.Get("/{id}", h.GetDispute)
		r.Post("/{id}/transition", h.TransitionDispute)
	})
	r.Get("/audit", h.ListAudit)
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// writeServiceError maps core error kinds onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	var denied *service.AccessDeniedError
	var promoDenied *service.PromoDeniedError

	switch {
	case errors.As(err, &denied):
		writeError(w, http.StatusForbidden, denied.Decision.Reason)
	case errors.As(err, &promoDenied):
		writeError(w, http.StatusUnprocessableEntity, promoDenied.Reason)
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, repository.ErrNotRefundable),
		errors.Is(err, repository.ErrIllegalTransition),
		errors.Is(err, repository.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, revenue.ErrInvalidSplit):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

// ─── Experiences ──────────────────────────────────────────────────────────────

// CreateExperience handles POST /experiences
func (h *Handler) CreateExperience(w http.ResponseWriter, r *http.Request) {
	var req model.CreateExperienceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	exp, err := h.experiences.Create(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, exp)
}

// GetExperience handles GET /experiences/{id}
func (h *Handler) GetExperience(w http.ResponseWriter, r *http.Request) {
	exp, err := h.experiences.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

// PreviewAccess handles GET /experiences/{id}/access?user_id=&territory=
// Returns the rights Decision without granting anything.
func (h *Handler) PreviewAccess(w http.ResponseWriter, r *http.Request) {
	requester := model.Requester{
		ID:        r.URL.Query().Get("user_id"),
		Territory: r.URL.Query().Get("territory"),
	}
	decision, err := h.experiences.Access(r.Context(), chi.URLParam(r, "id"), requester)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

// GetSplits handles GET /experiences/{id}/splits
// Divides the experience's current revenue pool per its rules.
func (h *Handler) GetSplits(w http.ResponseWriter, r *http.Request) {
	result, err := h.experiences.Splits(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ListAttendances handles GET /experiences/{id}/attendances
func (h *Handler) ListAttendances(w http.ResponseWriter, r *http.Request) {
	attendances, err := h.experiences.Attendances(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if attendances == nil {
		attendances = []model.Attendance{}
	}
	writeJSON(w, http.StatusOK, attendances)
}

// ─── Unlock / refund ──────────────────────────────────────────────────────────

// Unlock handles POST /experiences/{id}/unlock
func (h *Handler) Unlock(w http.ResponseWriter, r *http.Request) {
	var req model.UnlockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	requester := model.Requester{ID: req.UserID, Territory: req.Territory}
	attendance, err := h.unlocks.Unlock(r.Context(), chi.URLParam(r, "id"), requester, req.PromoCode)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, attendance)
}

// Refund handles POST /receipts/{id}/refund
func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	var req model.RefundRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.refunds.Refund(r.Context(), chi.URLParam(r, "id"), req.Reason, req.ActorID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "refunded"})
}

// PreviewPromo handles POST /promos/preview
// Validates a code and returns the final price without redeeming it.
func (h *Handler) PreviewPromo(w http.ResponseWriter, r *http.Request) {
	var req model.PromoPreviewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	res, err := h.promos.Resolve(r.Context(), req.Code, req.ExperienceID, req.PriceCents, time.Now().UTC())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ─── Approvals ────────────────────────────────────────────────────────────────

// SubmitApproval handles POST /experiences/{id}/approvals
func (h *Handler) SubmitApproval(w http.ResponseWriter, r *http.Request) {
	var req model.SubmitApprovalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	actorID := r.URL.Query().Get("actor_id")
	approval, err := h.approvals.Submit(r.Context(), chi.URLParam(r, "id"), req.OrgID, actorID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, approval)
}

// GetApproval handles GET /approvals/{id}
func (h *Handler) GetApproval(w http.ResponseWriter, r *http.Request) {
	approval, err := h.approvals.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, approval)
}

// Review handles POST /approvals/{id}/review
func (h *Handler) Review(w http.ResponseWriter, r *http.Request) {
	var req model.ReviewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	approval, err := h.approvals.Review(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, approval)
}

// ─── Disputes ─────────────────────────────────────────────────────────────────

// FileDispute handles POST /experiences/{id}/disputes
func (h *Handler) FileDispute(w http.ResponseWriter, r *http.Request) {
	var req model.FileDisputeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	dispute, err := h.disputes.File(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dispute)
}

// GetDispute handles GET /disputes/{id}
func (h *Handler) GetDispute(w http.ResponseWriter, r *http.Request) {
	dispute, err := h.disputes.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dispute)
}

// TransitionDispute handles POST /disputes/{id}/transition
func (h *Handler) TransitionDispute(w http.ResponseWriter, r *http.Request) {
	var req model.DisputeTransitionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	dispute, err := h.disputes.Transition(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dispute)
}

// ─── Audit ────────────────────────────────────────────────────────────────────

// ListAudit handles GET /audit?entity_id=... | ?actor_id=...
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	const limit = 100
	var (
		entries []model.AuditEntry
		err     error
	)
	switch {
	case r.URL.Query().Get("entity_id") != "":
		entries, err = h.audit.ListByEntity(r.Context(), r.URL.Query().Get("entity_id"), limit)
	case r.URL.Query().Get("actor_id") != "":
		entries, err = h.audit.ListByActor(r.Context(), r.URL.Query().Get("actor_id"), limit)
	default:
		writeError(w, http.StatusBadRequest, "entity_id or actor_id is required")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list audit entries")
		return
	}
	if entries == nil {
		entries = []model.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
