package services

import (
	"fmt"
	"testing"
	"time"

	domain "github.com/hanko-field/handling-fee/internal/domain"
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("fee-%d", n)
	}
}

func handlingLines(set domain.FeeSet) []domain.FeeLine {
	var out []domain.FeeLine
	for _, line := range set.Lines() {
		if line.Name == domain.HandlingFeeName {
			out = append(out, line)
		}
	}
	return out
}

func TestReconcileHandlingFee(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	stale := domain.FeeLine{ID: "old", Name: domain.HandlingFeeName, Amount: 300, Currency: "AUD"}

	cases := []struct {
		name        string
		existing    []domain.FeeLine
		decision    bool
		amount      int64
		wantAmount  int64
		wantLine    bool
		wantRemoved bool
		wantChanged bool
	}{
		{name: "adds line", decision: true, amount: 500, wantAmount: 500, wantLine: true, wantChanged: true},
		{name: "zero amount suppresses", decision: true, amount: 0},
		{name: "negative amount suppresses", decision: true, amount: -1},
		{name: "false decision adds nothing", decision: false, amount: 500},
		{name: "stale line removed on false", existing: []domain.FeeLine{stale}, decision: false, amount: 500, wantRemoved: true, wantChanged: true},
		{name: "stale line replaced", existing: []domain.FeeLine{stale}, decision: true, amount: 500, wantAmount: 500, wantLine: true, wantRemoved: true, wantChanged: true},
		{name: "stale line removed on zero amount", existing: []domain.FeeLine{stale}, decision: true, amount: 0, wantRemoved: true, wantChanged: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fees := domain.NewFeeSet(tc.existing...)
			fees.Put(domain.FeeLine{ID: "gw", Name: "Gift Wrap", Amount: 100, Currency: "AUD"})

			result := ReconcileHandlingFee(&fees, tc.decision, tc.amount, "aud", sequentialIDs(), now)

			lines := handlingLines(fees)
			if tc.wantLine {
				if len(lines) != 1 || lines[0].Amount != tc.wantAmount || lines[0].Currency != "AUD" {
					t.Fatalf("expected one line of %d AUD, got %+v", tc.wantAmount, lines)
				}
				if result.Line == nil || result.Line.ID != "fee-1" || !result.Line.AddedAt.Equal(now) {
					t.Fatalf("unexpected reported line %+v", result.Line)
				}
			} else if len(lines) != 0 {
				t.Fatalf("expected no handling fee line, got %+v", lines)
			}
			if result.Added != tc.wantLine || result.Removed != tc.wantRemoved || result.Changed != tc.wantChanged {
				t.Fatalf("unexpected result %+v", result)
			}
			if _, ok := fees.Get("Gift Wrap"); !ok {
				t.Fatalf("expected unrelated fee to survive")
			}
		})
	}
}

func TestReconcileHandlingFeeIsIdempotent(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	ids := sequentialIDs()
	var fees domain.FeeSet

	first := ReconcileHandlingFee(&fees, true, 500, "AUD", ids, now)
	snapshot := fees.Lines()
	second := ReconcileHandlingFee(&fees, true, 500, "AUD", ids, now.Add(time.Minute))

	if !first.Changed || second.Changed {
		t.Fatalf("expected only the first pass to change state, got %+v then %+v", first, second)
	}
	after := fees.Lines()
	if len(after) != len(snapshot) || after[0] != snapshot[0] {
		t.Fatalf("expected identical fee state, got %+v then %+v", snapshot, after)
	}
	if second.Line == nil || second.Line.ID != "fee-1" {
		t.Fatalf("expected reaffirmed line to keep its id, got %+v", second.Line)
	}

	third := ReconcileHandlingFee(&fees, false, 500, "AUD", ids, now)
	fourth := ReconcileHandlingFee(&fees, false, 500, "AUD", ids, now)
	if !third.Changed || fourth.Changed || fees.Len() != 0 {
		t.Fatalf("expected removal once, got %+v then %+v with %d lines", third, fourth, fees.Len())
	}
}

func TestReconcileHandlingFeeAmountChangeReplacesLine(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	ids := sequentialIDs()
	var fees domain.FeeSet

	ReconcileHandlingFee(&fees, true, 500, "AUD", ids, now)
	result := ReconcileHandlingFee(&fees, true, 700, "AUD", ids, now)

	lines := handlingLines(fees)
	if len(lines) != 1 || lines[0].Amount != 700 || lines[0].ID != "fee-2" {
		t.Fatalf("expected a single replaced line, got %+v", lines)
	}
	if !result.Removed || !result.Changed {
		t.Fatalf("expected replacement to be reported, got %+v", result)
	}
}

func TestReconcileHandlingFeeNilSet(t *testing.T) {
	if result := ReconcileHandlingFee(nil, true, 500, "AUD", nil, time.Now()); result.Added || result.Changed {
		t.Fatalf("expected nil set to be a no-op, got %+v", result)
	}
}
