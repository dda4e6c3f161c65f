// Package revenue computes deterministic payout splits for unlock payments.
//
// Splits are explicit percentage pools, never per-play math. All amounts are
// integer cents; each role's payout is floored and the rounding remainder
// goes to the artist, so the payouts always sum to the pool exactly.
package revenue

import (
	"errors"
	"fmt"
	"math"

	"github.com/vaultstage/rights-engine/internal/model"
)

// ErrInvalidSplit is returned when the five percentages do not sum to 100.
var ErrInvalidSplit = errors.New("revenue splits must sum to 100%")

// sumTolerance absorbs float representation error in stored percentages.
const sumTolerance = 0.01

// Payouts holds the per-role amounts in cents.
type Payouts struct {
	Artist    int64 `json:"artist"`
	Label     int64 `json:"label"`
	Publisher int64 `json:"publisher"`
	Producer  int64 `json:"producer"`
	Platform  int64 `json:"platform"`
}

// Sum returns the total of all role payouts.
func (p Payouts) Sum() int64 {
	return p.Artist + p.Label + p.Publisher + p.Producer + p.Platform
}

// SplitResult is the full outcome of dividing a revenue pool.
type SplitResult struct {
	Splits     model.RevenueRules `json:"splits"`
	Payouts    Payouts            `json:"payouts"`
	TotalCents int64              `json:"total_cents"`
}

// Validate reports whether rules carry a usable split. It agrees exactly
// with the failure condition of Split, so it can be used as a cheap
// pre-check before expensive operations.
func Validate(rules *model.RevenueRules) bool {
	if rules == nil {
		return false
	}
	return math.Abs(rules.Total()-100) <= sumTolerance
}

// Split divides totalCents among the five roles per rules.
//
// Each payout is floor(totalCents * pct / 100); the positive remainder left
// by flooring is added to the artist. For every valid input the payouts sum
// to totalCents exactly.
func Split(totalCents int64, rules *model.RevenueRules) (*SplitResult, error) {
	if rules == nil {
		return nil, fmt.Errorf("%w: no rules present", ErrInvalidSplit)
	}
	if total := rules.Total(); math.Abs(total-100) > sumTolerance {
		return nil, fmt.Errorf("%w: got %.2f%%", ErrInvalidSplit, total)
	}
	if totalCents < 0 {
		return nil, fmt.Errorf("total amount must be non-negative, got %d", totalCents)
	}

	payouts := Payouts{
		Artist:    share(totalCents, rules.Artist),
		Label:     share(totalCents, rules.Label),
		Publisher: share(totalCents, rules.Publisher),
		Producer:  share(totalCents, rules.Producer),
		Platform:  share(totalCents, rules.Platform),
	}

	if remainder := totalCents - payouts.Sum(); remainder > 0 {
		payouts.Artist += remainder
	}

	return &SplitResult{
		Splits:     *rules,
		Payouts:    payouts,
		TotalCents: totalCents,
	}, nil
}

func share(totalCents int64, pct float64) int64 {
	return int64(math.Floor(float64(totalCents) * pct / 100))
}
