// Package repository implements all database access for the rights & revenue
// engine. It uses pgx directly (no ORM); every multi-record effect runs in a
// single transaction that locks the rows it will mutate before writing.
package repository

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a concurrent writer invalidated this
// operation's premise. Callers should retry the read-evaluate-write cycle
// once, then surface the failure.
var ErrConflict = errors.New("conflict")

// ErrNotRefundable is returned when refunding a receipt that is not in a
// refundable state. Re-refunding is an error, never a no-op.
var ErrNotRefundable = errors.New("receipt is not refundable")

// ErrIllegalTransition is returned when a workflow move is not in the
// allowed state graph. Fatal, never retried.
var ErrIllegalTransition = errors.New("illegal workflow transition")

// Conflict subtypes; all match errors.Is(err, ErrConflict).
var (
	ErrPromoExhausted  = fmt.Errorf("promo code limit reached: %w", ErrConflict)
	ErrVersionConflict = fmt.Errorf("experience version changed: %w", ErrConflict)
	ErrApprovalOpen    = fmt.Errorf("approval already open for experience: %w", ErrConflict)
)
