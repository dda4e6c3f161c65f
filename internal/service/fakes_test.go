package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vaultstage/rights-engine/internal/model"
	"github.com/vaultstage/rights-engine/internal/notify"
	"github.com/vaultstage/rights-engine/internal/repository"
)

// memStore is an in-memory stand-in for the repository layer. It mirrors the
// store's transactional semantics — idempotent unlock, version check,
// bounded promo redemption, counter deltas — so service tests exercise the
// same contracts the real store provides.
type memStore struct {
	experiences  map[string]*model.Experience
	entitlements []*model.Entitlement
	attendances  []*model.Attendance
	receipts     map[string]*model.Receipt
	promos       map[string]*model.PromoCode
	audit        []model.AuditEntry

	seq             int
	unlockCalls     int
	conflictsToFail int // inject this many version conflicts before succeeding
}

func newMemStore() *memStore {
	return &memStore{
		experiences: map[string]*model.Experience{},
		receipts:    map[string]*model.Receipt{},
		promos:      map[string]*model.PromoCode{},
	}
}

func (m *memStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *memStore) addExperience(exp *model.Experience) *model.Experience {
	if exp.ID == "" {
		exp.ID = m.nextID("exp")
	}
	if exp.Version == 0 {
		exp.Version = 1
	}
	m.experiences[exp.ID] = exp
	return exp
}

func (m *memStore) addPromo(p *model.PromoCode) *model.PromoCode {
	if p.ID == "" {
		p.ID = m.nextID("promo")
	}
	m.promos[strings.ToLower(p.Code)] = p
	return p
}

// ─── ExperienceStore ─────────────────────────────────────────────────────────

func (m *memStore) GetByID(_ context.Context, id string) (*model.Experience, error) {
	exp, ok := m.experiences[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *exp
	return &cp, nil
}

func (m *memStore) GetActiveEntitlement(_ context.Context, userID, experienceID string, typ model.EntitlementType) (*model.Entitlement, error) {
	for _, e := range m.entitlements {
		if e.UserID == userID && e.ExperienceID == experienceID && e.Type == typ && e.Status == model.EntitlementActive {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) GetReceipt(_ context.Context, id string) (*model.Receipt, error) {
	rec, ok := m.receipts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *memStore) ListAttendances(_ context.Context, experienceID string) ([]model.Attendance, error) {
	var out []model.Attendance
	for _, a := range m.attendances {
		if a.ExperienceID == experienceID {
			out = append(out, *a)
		}
	}
	return out, nil
}

// ─── ExperienceWriter ────────────────────────────────────────────────────────

func (m *memStore) Create(_ context.Context, req model.CreateExperienceRequest) (*model.Experience, error) {
	exp := &model.Experience{
		ID:           m.nextID("exp"),
		Title:        req.Title,
		Type:         req.Type,
		State:        model.StateDraft,
		OwnerID:      req.OwnerID,
		AccessRules:  req.AccessRules,
		RevenueRules: req.RevenueRules,
		Contributors: req.Contributors,
		Version:      1,
		CreatedAt:    time.Now().UTC(),
	}
	m.experiences[exp.ID] = exp
	return exp, nil
}

// ─── PromoStore ──────────────────────────────────────────────────────────────

func (m *memStore) GetByCode(_ context.Context, code string) (*model.PromoCode, error) {
	p, ok := m.promos[strings.ToLower(strings.TrimSpace(code))]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// ─── UnlockStore ─────────────────────────────────────────────────────────────

func (m *memStore) Unlock(ctx context.Context, p repository.UnlockParams) (*repository.UnlockResult, error) {
	m.unlockCalls++
	if m.conflictsToFail > 0 {
		m.conflictsToFail--
		return nil, repository.ErrVersionConflict
	}

	exp, ok := m.experiences[p.ExperienceID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if exp.Version != p.ExpectedVersion {
		return nil, repository.ErrVersionConflict
	}

	if ent, _ := m.GetActiveEntitlement(ctx, p.UserID, p.ExperienceID, model.EntitlementUnlock); ent != nil {
		var latest *model.Attendance
		for _, a := range m.attendances {
			if a.UserID == p.UserID && a.ExperienceID == p.ExperienceID {
				latest = a
			}
		}
		return &repository.UnlockResult{Attendance: latest, Entitlement: ent, AlreadyUnlocked: true}, nil
	}

	if p.PromoID != "" {
		var promo *model.PromoCode
		for _, pc := range m.promos {
			if pc.ID == p.PromoID {
				promo = pc
			}
		}
		if promo == nil || !promo.Active || (promo.MaxUses != nil && promo.UsedCount >= *promo.MaxUses) {
			return nil, repository.ErrPromoExhausted
		}
		promo.UsedCount++
	}

	now := time.Now().UTC()
	receipt := &model.Receipt{
		ID:           m.nextID("rcpt"),
		UserID:       p.UserID,
		ExperienceID: p.ExperienceID,
		AmountCents:  p.AmountCents,
		Status:       model.ReceiptCompleted,
		CreatedAt:    now,
	}
	m.receipts[receipt.ID] = receipt

	ent := &model.Entitlement{
		ID:           m.nextID("ent"),
		UserID:       p.UserID,
		ExperienceID: p.ExperienceID,
		Type:         model.EntitlementUnlock,
		Status:       model.EntitlementActive,
		GrantedBy:    p.GrantedBy,
		ReceiptID:    receipt.ID,
		CreatedAt:    now,
	}
	m.entitlements = append(m.entitlements, ent)

	att := &model.Attendance{
		ID:              m.nextID("att"),
		ExperienceID:    p.ExperienceID,
		UserID:          p.UserID,
		Tier:            p.Tier,
		AmountPaidCents: p.AmountCents,
		Territory:       p.Territory,
		AttendedAt:      now,
	}
	m.attendances = append(m.attendances, att)

	exp.TotalRevenueCents += p.AmountCents
	exp.AttendanceCount++

	m.audit = append(m.audit, model.AuditEntry{
		ActorID:    p.UserID,
		Action:     model.ActionUnlock,
		EntityType: "Experience",
		EntityID:   p.ExperienceID,
	})

	return &repository.UnlockResult{Attendance: att, Entitlement: ent, Receipt: receipt}, nil
}

func (m *memStore) Refund(_ context.Context, p repository.RefundParams) error {
	rec, ok := m.receipts[p.ReceiptID]
	if !ok {
		return repository.ErrNotFound
	}
	if rec.Status != model.ReceiptCompleted {
		return fmt.Errorf("%w: receipt status is %s", repository.ErrNotRefundable, rec.Status)
	}

	now := time.Now().UTC()
	rec.Status = model.ReceiptRefunded
	rec.RefundedAt = &now
	rec.RefundReason = p.Reason

	for _, e := range m.entitlements {
		if e.ReceiptID == p.ReceiptID && e.Status == model.EntitlementActive {
			e.Status = model.EntitlementRefunded
		}
	}

	exp := m.experiences[rec.ExperienceID]
	exp.TotalRevenueCents -= rec.AmountCents
	if exp.TotalRevenueCents < 0 {
		exp.TotalRevenueCents = 0
	}
	if exp.AttendanceCount > 0 {
		exp.AttendanceCount--
	}

	m.audit = append(m.audit, model.AuditEntry{
		ActorID:    p.ActorID,
		Action:     model.ActionRefund,
		EntityType: "Receipt",
		EntityID:   p.ReceiptID,
	})
	return nil
}

// ─── ApprovalStore / DisputeStore ────────────────────────────────────────────

// fakeApprovalStore mirrors the store's transition semantics, including the
// draft→live flip on approval.
type fakeApprovalStore struct {
	store     *memStore
	approvals map[string]*model.ExperienceApproval
}

func newFakeApprovalStore(store *memStore) *fakeApprovalStore {
	return &fakeApprovalStore{store: store, approvals: map[string]*model.ExperienceApproval{}}
}

func (f *fakeApprovalStore) Create(_ context.Context, experienceID, orgID, actorID string) (*model.ExperienceApproval, error) {
	if _, ok := f.store.experiences[experienceID]; !ok {
		return nil, repository.ErrNotFound
	}
	for _, a := range f.approvals {
		if a.ExperienceID == experienceID && !a.Status.Terminal() {
			return nil, repository.ErrApprovalOpen
		}
	}
	a := &model.ExperienceApproval{
		ID:           f.store.nextID("appr"),
		ExperienceID: experienceID,
		OrgID:        orgID,
		Status:       model.ApprovalSubmitted,
		Version:      1,
		SubmittedAt:  time.Now().UTC(),
	}
	f.approvals[a.ID] = a
	return a, nil
}

func (f *fakeApprovalStore) GetByID(_ context.Context, id string) (*model.ExperienceApproval, error) {
	a, ok := f.approvals[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeApprovalStore) Review(_ context.Context, p repository.ReviewParams) (*model.ExperienceApproval, error) {
	a, ok := f.approvals[p.ApprovalID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if !a.Status.CanTransitionTo(p.Target) {
		return nil, fmt.Errorf("%w: %s → %s", repository.ErrIllegalTransition, a.Status, p.Target)
	}
	now := time.Now().UTC()
	a.Status = p.Target
	a.ReviewedBy = p.ActorID
	a.ReviewNotes = p.Notes
	a.ReviewedAt = &now
	a.Version++

	if p.Target == model.ApprovalApproved {
		if exp, ok := f.store.experiences[a.ExperienceID]; ok && exp.State == model.StateDraft {
			exp.State = model.StateLive
		}
	}
	cp := *a
	return &cp, nil
}

// fakeDisputeStore mirrors the store's transition semantics, including the
// revenue-rule rewrite and version bump.
type fakeDisputeStore struct {
	store    *memStore
	disputes map[string]*model.CreditDispute
}

func newFakeDisputeStore(store *memStore) *fakeDisputeStore {
	return &fakeDisputeStore{store: store, disputes: map[string]*model.CreditDispute{}}
}

func (f *fakeDisputeStore) Create(_ context.Context, experienceID string, req model.FileDisputeRequest) (*model.CreditDispute, error) {
	if _, ok := f.store.experiences[experienceID]; !ok {
		return nil, repository.ErrNotFound
	}
	d := &model.CreditDispute{
		ID:           f.store.nextID("disp"),
		ExperienceID: experienceID,
		DisputedBy:   req.UserID,
		DisputeType:  req.DisputeType,
		Status:       model.DisputePending,
		Description:  req.Description,
		Version:      1,
		CreatedAt:    time.Now().UTC(),
	}
	f.disputes[d.ID] = d
	return d, nil
}

func (f *fakeDisputeStore) GetByID(_ context.Context, id string) (*model.CreditDispute, error) {
	d, ok := f.disputes[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (f *fakeDisputeStore) Transition(_ context.Context, p repository.DisputeTransitionParams) (*model.CreditDispute, error) {
	d, ok := f.disputes[p.DisputeID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if !d.Status.CanTransitionTo(p.Target) {
		return nil, fmt.Errorf("%w: %s → %s", repository.ErrIllegalTransition, d.Status, p.Target)
	}
	if p.NewRules != nil {
		exp := f.store.experiences[d.ExperienceID]
		exp.RevenueRules = p.NewRules
		exp.Version++
	}
	d.Status = p.Target
	d.Resolution = p.Resolution
	d.Version++
	if p.Target.Terminal() {
		now := time.Now().UTC()
		d.ResolvedAt = &now
	}
	cp := *d
	return &cp, nil
}

// ─── Dispatcher fakes ────────────────────────────────────────────────────────

type recordingDispatcher struct {
	sent []notify.Notification
}

func (d *recordingDispatcher) Notify(_ context.Context, n notify.Notification) error {
	d.sent = append(d.sent, n)
	return nil
}

type failingDispatcher struct{}

func (failingDispatcher) Notify(context.Context, notify.Notification) error {
	return fmt.Errorf("dispatcher unavailable")
}
