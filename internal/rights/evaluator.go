// Package rights implements the access decision function for experiences.
//
// Evaluate is pure and total: it never touches the store and decides from
// its arguments alone, so the matching order can be unit-tested directly.
package rights

import (
	"time"

	"github.com/vaultstage/rights-engine/internal/model"
)

// Decision reason strings surfaced to callers as user-facing text.
const (
	ReasonAlreadyUnlocked = "already unlocked"
	ReasonOwnerAccess     = "owner access"
	ReasonNotPublished    = "not yet published"
	ReasonExpired         = "experience expired"
	ReasonFreeAccess      = "free access available"
	ReasonPaymentRequired = "payment required"
	ReasonInviteRequired  = "invite required"
	ReasonEventRequired   = "event access required"
	ReasonNoRuleMatched   = "no access rules matched"
)

// DefaultTerritory is applied to a requester with no territory set. Callers
// default before evaluating; Evaluate itself never rewrites its inputs.
const DefaultTerritory = "US"

// Evaluate decides whether requester may access exp right now.
//
// Checks run in fixed order, first match wins: existing ACTIVE entitlement,
// ownership, draft/expired state, then the access rules in array order. A
// rule is skipped when its territory list excludes the requester or when now
// is outside its time window; the first non-skipped rule resolves by tier.
func Evaluate(exp *model.Experience, requester model.Requester, entitlement *model.Entitlement, now time.Time) model.Decision {
	if entitlement != nil && entitlement.Status == model.EntitlementActive {
		return model.Decision{
			Allowed:     true,
			MatchedTier: grantedTier(entitlement),
			Reason:      ReasonAlreadyUnlocked,
		}
	}

	if requester.ID == exp.OwnerID {
		return model.Decision{
			Allowed:     true,
			MatchedTier: model.TierOwner,
			Reason:      ReasonOwnerAccess,
		}
	}

	if exp.State == model.StateDraft {
		return model.Decision{Reason: ReasonNotPublished}
	}
	if exp.State == model.StateExpired {
		return model.Decision{Reason: ReasonExpired}
	}

	for _, rule := range exp.AccessRules {
		if skipRule(rule, requester.Territory, now) {
			continue
		}
		switch rule.Tier {
		case model.TierFree:
			return model.Decision{
				Allowed:     true,
				MatchedTier: model.TierFree,
				Reason:      ReasonFreeAccess,
			}
		case model.TierPaid:
			return model.Decision{
				MatchedTier:     model.TierPaid,
				Reason:          ReasonPaymentRequired,
				RequiresPayment: true,
				PriceCents:      rule.PriceCents,
			}
		case model.TierInvite:
			return model.Decision{
				MatchedTier: model.TierInvite,
				Reason:      ReasonInviteRequired,
			}
		case model.TierEvent:
			return model.Decision{
				MatchedTier: model.TierEvent,
				Reason:      ReasonEventRequired,
			}
		}
	}

	return model.Decision{Reason: ReasonNoRuleMatched}
}

// skipRule reports whether a rule does not apply to this requester right now.
func skipRule(rule model.AccessRule, territory string, now time.Time) bool {
	if len(rule.Territories) > 0 && !contains(rule.Territories, territory) {
		return true
	}
	if rule.StartTime != nil && now.Before(*rule.StartTime) {
		return true
	}
	if rule.EndTime != nil && now.After(*rule.EndTime) {
		return true
	}
	return false
}

// grantedTier maps an entitlement back to the tier it satisfies. Admin and
// invite grants carry no purchase tier; they read as free access.
func grantedTier(ent *model.Entitlement) model.AccessTier {
	switch ent.Type {
	case model.EntitlementTicket:
		return model.TierEvent
	case model.EntitlementUnlock, model.EntitlementMembership, model.EntitlementGrant:
		if ent.GrantedBy == model.GrantPurchase {
			return model.TierPaid
		}
		return model.TierFree
	}
	return model.TierFree
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
