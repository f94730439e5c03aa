package services

import (
	"strings"
	"time"

	domain "github.com/hanko-field/handling-fee/internal/domain"
)

// FeeReconciliation reports what a reconcile pass did to the fee set.
type FeeReconciliation struct {
	// Removed is true when a stale handling fee line was dropped.
	Removed bool
	// Added is true when the set holds a handling fee line after the pass.
	Added bool
	Line  *domain.FeeLine
	// Changed is false when the pass left the fee set as it found it.
	Changed bool
}

// ReconcileHandlingFee rebuilds the handling fee line from the current decision. Any
// existing line under the reserved name is dropped, then a single line is added when
// decision holds and amount is positive. An existing line that already matches the
// amount and currency is left in place so repeated passes are no-ops.
func ReconcileHandlingFee(fees *domain.FeeSet, decision bool, amount int64, currency string, newID func() string, now time.Time) FeeReconciliation {
	if fees == nil {
		return FeeReconciliation{}
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	apply := decision && amount > 0

	if existing, ok := fees.Get(domain.HandlingFeeName); ok && apply &&
		existing.Amount == amount && existing.Currency == currency && existing.ID != "" {
		return FeeReconciliation{Added: true, Line: &existing}
	}

	removed := fees.Remove(domain.HandlingFeeName)
	if !apply {
		return FeeReconciliation{Removed: removed, Changed: removed}
	}

	line := domain.FeeLine{
		Name:     domain.HandlingFeeName,
		Amount:   amount,
		Currency: currency,
		AddedAt:  now.UTC(),
	}
	if newID != nil {
		line.ID = newID()
	}
	fees.Put(line)
	return FeeReconciliation{Removed: removed, Added: true, Line: &line, Changed: true}
}
