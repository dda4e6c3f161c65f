package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/vaultstage/rights-engine/internal/notify"
	"github.com/vaultstage/rights-engine/internal/repository"
)

// ErrForbidden is returned when an actor lacks the privilege an operation
// requires.
var ErrForbidden = errors.New("actor lacks required privilege")

// RefundService reverses completed unlocks. Only the experience owner or a
// configured admin may refund.
type RefundService struct {
	experiences ExperienceStore
	unlocks     UnlockStore
	dispatcher  notify.Dispatcher
	admins      map[string]struct{}
}

// NewRefundService constructs a RefundService. adminIDs are user IDs with
// platform-wide refund privilege.
func NewRefundService(
	experiences ExperienceStore,
	unlocks UnlockStore,
	dispatcher notify.Dispatcher,
	adminIDs []string,
) *RefundService {
	admins := make(map[string]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}
	return &RefundService{
		experiences: experiences,
		unlocks:     unlocks,
		dispatcher:  dispatcher,
		admins:      admins,
	}
}

// Refund reverses the receipt's unlock: receipt to REFUNDED, linked ACTIVE
// entitlements to REFUNDED, experience counters rolled back, one audit
// entry. Refund is not idempotent by design: a second call fails with
// ErrNotRefundable so double-refund bugs surface immediately.
func (s *RefundService) Refund(ctx context.Context, receiptID, reason, actorID string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return fmt.Errorf("refund reason is required")
	}
	if actorID == "" {
		return fmt.Errorf("actor id is required")
	}

	receipt, err := s.experiences.GetReceipt(ctx, receiptID)
	if err != nil {
		return err
	}
	exp, err := s.experiences.GetByID(ctx, receipt.ExperienceID)
	if err != nil {
		return err
	}
	if _, admin := s.admins[actorID]; !admin && actorID != exp.OwnerID {
		return fmt.Errorf("%w: refund requires admin or owner", ErrForbidden)
	}

	err = s.unlocks.Refund(ctx, repository.RefundParams{
		ReceiptID: receiptID,
		ActorID:   actorID,
		Reason:    reason,
	})
	if err != nil {
		return err
	}

	s.notifyRefund(ctx, receipt.UserID, exp.Title, receipt.AmountCents, receiptID)
	return nil
}

// notifyRefund tells the buyer their access was revoked. Dispatch failures
// are logged, never propagated.
func (s *RefundService) notifyRefund(ctx context.Context, userID, title string, amountCents int64, receiptID string) {
	err := s.dispatcher.Notify(ctx, notify.Notification{
		UserID:   userID,
		Type:     notify.TypeRefund,
		Title:    "Purchase refunded",
		Message:  fmt.Sprintf("Your unlock of %q (%d cents) was refunded", title, amountCents),
		Metadata: map[string]any{"receipt_id": receiptID},
	})
	if err != nil {
		log.Printf("refund notification failed: %v", err)
	}
}
