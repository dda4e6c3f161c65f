// Package model defines the core domain types for the rights & revenue engine.
package model

import "time"

// ExperienceType classifies the unit of content a user unlocks.
type ExperienceType string

const (
	TypeAlbum   ExperienceType = "album"
	TypeSingle  ExperienceType = "single"
	TypeEvent   ExperienceType = "event"
	TypeSession ExperienceType = "session"
	TypeArchive ExperienceType = "archive"
)

// ExperienceState is the publish lifecycle of an experience.
type ExperienceState string

const (
	StateDraft     ExperienceState = "draft"
	StateScheduled ExperienceState = "scheduled"
	StateLive      ExperienceState = "live"
	StateArchived  ExperienceState = "archived"
	StateExpired   ExperienceState = "expired"
)

// AccessTier is the condition class of an access rule.
type AccessTier string

const (
	TierFree   AccessTier = "free"
	TierPaid   AccessTier = "paid"
	TierInvite AccessTier = "invite"
	TierEvent  AccessTier = "event"

	// TierOwner is never stored on a rule; it is the matched tier
	// reported when the requester owns the experience.
	TierOwner AccessTier = "owner"
)

// AccessRule is one condition under which an experience becomes available.
// Rules are evaluated in array order; the first non-skipped rule decides.
type AccessRule struct {
	Tier        AccessTier `json:"tier"`
	PriceCents  int64      `json:"price_cents,omitempty"`
	Territories []string   `json:"territories,omitempty"`
	StartTime   *time.Time `json:"start_time,omitempty"`
	EndTime     *time.Time `json:"end_time,omitempty"`
}

// RevenueRules is the percentage split of an unlock payment among the five
// stakeholder roles. Percentages must sum to 100 (±0.01) whenever present.
type RevenueRules struct {
	Artist    float64 `json:"artist"`
	Label     float64 `json:"label"`
	Publisher float64 `json:"publisher"`
	Producer  float64 `json:"producer"`
	Platform  float64 `json:"platform"`
}

// Total returns the sum of the five percentage fields.
func (r RevenueRules) Total() float64 {
	return r.Artist + r.Label + r.Publisher + r.Producer + r.Platform
}

// Contributor credits a collaborator on an experience.
type Contributor struct {
	Name   string `json:"name"`
	Role   string `json:"role"`
	UserID string `json:"user_id,omitempty"`
}

// Experience is the unit of content a user permanently unlocks.
//
// TotalRevenueCents and AttendanceCount are denormalized aggregates mutated
// only by the unlock and refund transactions. Version guards revenue-rule
// rewrites against in-flight unlocks: a dispute resolution that rewrites
// RevenueRules bumps it, and the unlock transaction re-checks it under lock.
type Experience struct {
	ID                string          `json:"id"`
	Title             string          `json:"title"`
	Type              ExperienceType  `json:"type"`
	State             ExperienceState `json:"state"`
	OwnerID           string          `json:"owner_id"`
	AccessRules       []AccessRule    `json:"access_rules"`
	RevenueRules      *RevenueRules   `json:"revenue_rules,omitempty"`
	Contributors      []Contributor   `json:"contributors,omitempty"`
	TotalRevenueCents int64           `json:"total_revenue_cents"`
	AttendanceCount   int             `json:"attendance_count"`
	Version           int64           `json:"version"`
	CreatedAt         time.Time       `json:"created_at"`
}

// Requester identifies who is asking for access. Territory must already be
// defaulted (unset ⇒ "US") before evaluation.
type Requester struct {
	ID        string `json:"id"`
	Territory string `json:"territory"`
}

// Decision is the outcome of a rights evaluation.
type Decision struct {
	Allowed         bool       `json:"allowed"`
	MatchedTier     AccessTier `json:"matched_tier,omitempty"`
	Reason          string     `json:"reason"`
	RequiresPayment bool       `json:"requires_payment"`
	PriceCents      int64      `json:"price_cents"`
}

// Attendance is the historical record of a single unlock event. It is kept
// distinct from Entitlement: refunds revoke the entitlement but never touch
// the attendance row.
type Attendance struct {
	ID              string     `json:"id"`
	ExperienceID    string     `json:"experience_id"`
	UserID          string     `json:"user_id"`
	Tier            AccessTier `json:"tier"`
	AmountPaidCents int64      `json:"amount_paid_cents"`
	Territory       string     `json:"territory"`
	AttendedAt      time.Time  `json:"attended_at"`
}

// EntitlementType distinguishes how broad a grant is.
type EntitlementType string

const (
	EntitlementUnlock     EntitlementType = "UNLOCK"
	EntitlementTicket     EntitlementType = "TICKET"
	EntitlementMembership EntitlementType = "MEMBERSHIP"
	EntitlementGrant      EntitlementType = "GRANT"
)

// EntitlementStatus is the lifecycle state of a grant.
type EntitlementStatus string

const (
	EntitlementActive   EntitlementStatus = "ACTIVE"
	EntitlementExpired  EntitlementStatus = "EXPIRED"
	EntitlementRevoked  EntitlementStatus = "REVOKED"
	EntitlementRefunded EntitlementStatus = "REFUNDED"
)

// GrantSource records what produced an entitlement.
type GrantSource string

const (
	GrantPurchase  GrantSource = "PURCHASE"
	GrantInvite    GrantSource = "INVITE"
	GrantAdmin     GrantSource = "ADMIN"
	GrantPromotion GrantSource = "PROMOTION"
)

// Entitlement is the authoritative record that a user has rights to an
// experience. Created ACTIVE; moves to REFUNDED only through a refund and is
// never resurrected.
type Entitlement struct {
	ID           string            `json:"id"`
	UserID       string            `json:"user_id"`
	ExperienceID string            `json:"experience_id"`
	Type         EntitlementType   `json:"type"`
	Status       EntitlementStatus `json:"status"`
	GrantedBy    GrantSource       `json:"granted_by"`
	ReceiptID    string            `json:"receipt_id,omitempty"`
	ExpiresAt    *time.Time        `json:"expires_at,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// ReceiptStatus is the payment lifecycle. REFUNDED is terminal.
type ReceiptStatus string

const (
	ReceiptPending   ReceiptStatus = "PENDING"
	ReceiptCompleted ReceiptStatus = "COMPLETED"
	ReceiptFailed    ReceiptStatus = "FAILED"
	ReceiptRefunded  ReceiptStatus = "REFUNDED"
)

// Receipt records a single payment event. Zero-amount unlocks (free tier,
// FREE promo) still produce a COMPLETED receipt so every unlock is
// refundable through the same path.
type Receipt struct {
	ID           string        `json:"id"`
	UserID       string        `json:"user_id"`
	ExperienceID string        `json:"experience_id"`
	AmountCents  int64         `json:"amount_cents"`
	Status       ReceiptStatus `json:"status"`
	RefundedAt   *time.Time    `json:"refunded_at,omitempty"`
	RefundReason string        `json:"refund_reason,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// DiscountType is how a promo code reduces the price.
type DiscountType string

const (
	DiscountFree       DiscountType = "FREE"
	DiscountPercentage DiscountType = "PERCENTAGE"
	DiscountFixed      DiscountType = "FIXED"
)

// PromoCode is a redeemable discount token bounded by usage count and expiry.
// UsedCount never exceeds MaxUses when MaxUses is set, and is incremented
// exactly once per successful redemption, at unlock commit time.
type PromoCode struct {
	ID            string       `json:"id"`
	Code          string       `json:"code"`
	ExperienceID  string       `json:"experience_id,omitempty"`
	DiscountType  DiscountType `json:"discount_type"`
	DiscountValue int64        `json:"discount_value"`
	MaxUses       *int         `json:"max_uses,omitempty"`
	UsedCount     int          `json:"used_count"`
	ExpiresAt     *time.Time   `json:"expires_at,omitempty"`
	Active        bool         `json:"active"`
	CreatedAt     time.Time    `json:"created_at"`
}

// ApprovalStatus is the review state of an experience submission.
type ApprovalStatus string

const (
	ApprovalSubmitted        ApprovalStatus = "SUBMITTED"
	ApprovalUnderReview      ApprovalStatus = "UNDER_REVIEW"
	ApprovalApproved         ApprovalStatus = "APPROVED"
	ApprovalRejected         ApprovalStatus = "REJECTED"
	ApprovalChangesRequested ApprovalStatus = "CHANGES_REQUESTED"
)

// approvalTransitions is the fixed state graph for experience approvals.
// APPROVED and REJECTED are terminal.
var approvalTransitions = map[ApprovalStatus][]ApprovalStatus{
	ApprovalSubmitted:        {ApprovalUnderReview, ApprovalApproved, ApprovalRejected, ApprovalChangesRequested},
	ApprovalUnderReview:      {ApprovalApproved, ApprovalRejected, ApprovalChangesRequested},
	ApprovalChangesRequested: {ApprovalSubmitted, ApprovalUnderReview, ApprovalApproved, ApprovalRejected},
}

// CanTransitionTo reports whether the approval graph allows moving to target.
func (s ApprovalStatus) CanTransitionTo(target ApprovalStatus) bool {
	for _, t := range approvalTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// Terminal reports whether no further approval transitions are allowed.
func (s ApprovalStatus) Terminal() bool {
	return len(approvalTransitions[s]) == 0
}

// ExperienceApproval is a label's review request for publishing an
// experience. At most one open (non-terminal) approval exists per experience.
type ExperienceApproval struct {
	ID           string         `json:"id"`
	ExperienceID string         `json:"experience_id"`
	OrgID        string         `json:"org_id,omitempty"`
	Status       ApprovalStatus `json:"status"`
	ReviewedBy   string         `json:"reviewed_by,omitempty"`
	ReviewNotes  string         `json:"review_notes,omitempty"`
	Version      int            `json:"version"`
	SubmittedAt  time.Time      `json:"submitted_at"`
	ReviewedAt   *time.Time     `json:"reviewed_at,omitempty"`
}

// DisputeType classifies a contributor's credit challenge.
type DisputeType string

const (
	DisputeMissingCredit  DisputeType = "MISSING_CREDIT"
	DisputeIncorrectRole  DisputeType = "INCORRECT_ROLE"
	DisputeSplit          DisputeType = "SPLIT_DISPUTE"
	DisputeRemovalRequest DisputeType = "REMOVAL_REQUEST"
)

// DisputeStatus is the review state of a credit dispute.
type DisputeStatus string

const (
	DisputePending     DisputeStatus = "PENDING"
	DisputeUnderReview DisputeStatus = "UNDER_REVIEW"
	DisputeResolved    DisputeStatus = "RESOLVED"
	DisputeRejected    DisputeStatus = "REJECTED"
	DisputeEscalated   DisputeStatus = "ESCALATED"
)

// disputeTransitions is the fixed state graph for credit disputes.
// RESOLVED, REJECTED, and ESCALATED are terminal.
var disputeTransitions = map[DisputeStatus][]DisputeStatus{
	DisputePending:     {DisputeUnderReview, DisputeResolved, DisputeRejected, DisputeEscalated},
	DisputeUnderReview: {DisputeResolved, DisputeRejected, DisputeEscalated},
}

// CanTransitionTo reports whether the dispute graph allows moving to target.
func (s DisputeStatus) CanTransitionTo(target DisputeStatus) bool {
	for _, t := range disputeTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// Terminal reports whether no further dispute transitions are allowed.
func (s DisputeStatus) Terminal() bool {
	return len(disputeTransitions[s]) == 0
}

// CreditDispute is a contributor's formal challenge to their credit or
// revenue share on an experience.
type CreditDispute struct {
	ID           string        `json:"id"`
	ExperienceID string        `json:"experience_id"`
	DisputedBy   string        `json:"disputed_by"`
	DisputeType  DisputeType   `json:"dispute_type"`
	Status       DisputeStatus `json:"status"`
	Description  string        `json:"description"`
	Resolution   string        `json:"resolution,omitempty"`
	Version      int           `json:"version"`
	CreatedAt    time.Time     `json:"created_at"`
	ResolvedAt   *time.Time    `json:"resolved_at,omitempty"`
}

// AuditEntry is one row of the append-only audit log. Every state-changing
// operation in the core appends exactly one.
type AuditEntry struct {
	ID         string         `json:"id"`
	ActorID    string         `json:"actor_id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Audit action names.
const (
	ActionUnlock         = "UNLOCK"
	ActionRefund         = "REFUND"
	ActionSubmitApproval = "SUBMIT_APPROVAL"
	ActionReview         = "REVIEW"
	ActionFileDispute    = "FILE_DISPUTE"
	ActionDispute        = "DISPUTE_TRANSITION"
)

// ─── Request / response payloads ─────────────────────────────────────────────

// CreateExperienceRequest is the payload for creating a draft experience.
type CreateExperienceRequest struct {
	Title        string         `json:"title"`
	Type         ExperienceType `json:"type"`
	OwnerID      string         `json:"owner_id"`
	AccessRules  []AccessRule   `json:"access_rules"`
	RevenueRules *RevenueRules  `json:"revenue_rules,omitempty"`
	Contributors []Contributor  `json:"contributors,omitempty"`
}

// UnlockRequest is the payload for unlocking an experience.
type UnlockRequest struct {
	UserID    string `json:"user_id"`
	Territory string `json:"territory"`
	PromoCode string `json:"promo_code,omitempty"`
}

// RefundRequest is the payload for refunding a receipt.
type RefundRequest struct {
	ActorID string `json:"actor_id"`
	Reason  string `json:"reason"`
}

// SubmitApprovalRequest is the payload for submitting an experience for
// label review.
type SubmitApprovalRequest struct {
	OrgID string `json:"org_id"`
}

// ReviewRequest is the payload for moving an approval through its graph.
type ReviewRequest struct {
	ActorID     string         `json:"actor_id"`
	Status      ApprovalStatus `json:"status"`
	ReviewNotes string         `json:"review_notes"`
}

// FileDisputeRequest is the payload for filing a credit dispute.
type FileDisputeRequest struct {
	UserID      string      `json:"user_id"`
	DisputeType DisputeType `json:"dispute_type"`
	Description string      `json:"description"`
}

// DisputeTransitionRequest is the payload for moving a dispute through its
// graph. RevenueRules is only consulted when resolving a SPLIT_DISPUTE.
type DisputeTransitionRequest struct {
	ActorID      string        `json:"actor_id"`
	Status       DisputeStatus `json:"status"`
	Resolution   string        `json:"resolution"`
	RevenueRules *RevenueRules `json:"revenue_rules,omitempty"`
}

// PromoPreviewRequest is the payload for previewing a promo code against a
// price without redeeming it.
type PromoPreviewRequest struct {
	Code         string `json:"code"`
	ExperienceID string `json:"experience_id"`
	PriceCents   int64  `json:"price_cents"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
