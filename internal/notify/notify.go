// Package notify defines the fire-and-forget notification dispatcher
// collaborator. Dispatch failures are never fatal to the operation that
// triggered them; callers log and move on.
package notify

import (
	"context"
	"log"
)

// Notification is one message for one user.
type Notification struct {
	UserID   string         `json:"user_id"`
	Type     string         `json:"type"`
	Title    string         `json:"title"`
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Notification types emitted by the core.
const (
	TypeSale   = "SALE"
	TypeRefund = "REFUND"
)

// Dispatcher delivers notifications. Implementations are expected to honor
// ctx deadlines; the real dispatcher lives outside this service.
type Dispatcher interface {
	Notify(ctx context.Context, n Notification) error
}

// LogDispatcher writes notifications to the process log. It stands in for
// the hosted dispatcher in local development and tests.
type LogDispatcher struct{}

// Notify implements Dispatcher.
func (LogDispatcher) Notify(_ context.Context, n Notification) error {
	log.Printf("notify user=%s type=%s title=%q", n.UserID, n.Type, n.Title)
	return nil
}
