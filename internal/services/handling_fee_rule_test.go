package services

import (
	"testing"

	domain "github.com/hanko-field/handling-fee/internal/domain"
)

func pkg(index int, rates ...domain.ShippingRate) domain.ShippingPackage {
	p := domain.ShippingPackage{Index: index, Rates: map[string]domain.ShippingRate{}}
	for _, rate := range rates {
		p.Rates[rate.ID] = rate
	}
	return p
}

func rate(id, method string) domain.ShippingRate {
	return domain.ShippingRate{ID: id, MethodID: method}
}

func TestHandlingFeeRuleEvaluate(t *testing.T) {
	cases := []struct {
		name       string
		packages   []domain.ShippingPackage
		selections domain.ChosenSelections
		want       bool
		wantSteps  int
		stoppedAt  int
	}{
		{
			name:       "inclusion method applies the fee",
			packages:   []domain.ShippingPackage{pkg(0, rate("r1", "interparcel"))},
			selections: domain.ChosenSelections{0: "r1"},
			want:       true,
			wantSteps:  1,
			stoppedAt:  -1,
		},
		{
			name:       "exclusion after inclusion vetoes",
			packages:   []domain.ShippingPackage{pkg(0, rate("r1", "interparcel")), pkg(1, rate("r2", "ds_local_pickup"))},
			selections: domain.ChosenSelections{0: "r1", 1: "r2"},
			want:       false,
			wantSteps:  2,
			stoppedAt:  1,
		},
		{
			name:       "exclusion first stops before later packages",
			packages:   []domain.ShippingPackage{pkg(0, rate("r1", "ds_local_pickup")), pkg(1, rate("r2", "interparcel"))},
			selections: domain.ChosenSelections{0: "r1", 1: "r2"},
			want:       false,
			wantSteps:  1,
			stoppedAt:  0,
		},
		{
			name:       "empty selections",
			packages:   []domain.ShippingPackage{pkg(0, rate("r1", "interparcel"))},
			selections: domain.ChosenSelections{},
			want:       false,
			stoppedAt:  -1,
		},
		{
			name:      "nil selections",
			packages:  []domain.ShippingPackage{pkg(0, rate("r1", "interparcel"))},
			want:      false,
			stoppedAt: -1,
		},
		{
			name:       "unresolved selection is skipped",
			packages:   []domain.ShippingPackage{pkg(0, rate("r1", "ds_local_pickup")), pkg(1, rate("r2", "interparcel"))},
			selections: domain.ChosenSelections{0: "missing", 1: "r2"},
			want:       true,
			wantSteps:  1,
			stoppedAt:  -1,
		},
		{
			name:       "rate ids are scoped to their package",
			packages:   []domain.ShippingPackage{pkg(0, rate("r1", "flat_rate")), pkg(1, rate("r1", "interparcel"))},
			selections: domain.ChosenSelections{0: "r1"},
			want:       false,
			wantSteps:  1,
			stoppedAt:  -1,
		},
		{
			name:       "packages are walked in index order",
			packages:   []domain.ShippingPackage{pkg(1, rate("r2", "interparcel")), pkg(0, rate("r1", "ds_local_pickup"))},
			selections: domain.ChosenSelections{0: "r1", 1: "r2"},
			want:       false,
			wantSteps:  1,
			stoppedAt:  0,
		},
		{
			name:       "other methods leave the decision alone",
			packages:   []domain.ShippingPackage{pkg(0, rate("r1", "interparcel")), pkg(1, rate("r2", "flat_rate"))},
			selections: domain.ChosenSelections{0: "r1", 1: "r2"},
			want:       true,
			wantSteps:  2,
			stoppedAt:  -1,
		},
		{
			name:       "no packages",
			selections: domain.ChosenSelections{0: "r1"},
			want:       false,
			stoppedAt:  -1,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var traces []RuleTrace
			rule := NewHandlingFeeRule("", "", func(trace RuleTrace) { traces = append(traces, trace) })

			got := rule.Evaluate(tc.packages, tc.selections)
			if got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
			if len(traces) != 1 {
				t.Fatalf("expected one trace, got %d", len(traces))
			}
			trace := traces[0]
			if trace.Decision != got {
				t.Fatalf("trace decision %v differs from result %v", trace.Decision, got)
			}
			if len(trace.Steps) != tc.wantSteps {
				t.Fatalf("expected %d steps, got %+v", tc.wantSteps, trace.Steps)
			}
			if trace.StoppedAt != tc.stoppedAt {
				t.Fatalf("expected stoppedAt %d, got %d", tc.stoppedAt, trace.StoppedAt)
			}
		})
	}
}

func TestHandlingFeeRuleDoesNotReorderCallerPackages(t *testing.T) {
	packages := []domain.ShippingPackage{pkg(1, rate("r2", "interparcel")), pkg(0, rate("r1", "interparcel"))}
	NewHandlingFeeRule("", "", nil).Evaluate(packages, domain.ChosenSelections{0: "r1", 1: "r2"})
	if packages[0].Index != 1 || packages[1].Index != 0 {
		t.Fatalf("expected caller slice untouched, got %+v", packages)
	}
}

func TestHandlingFeeRuleCustomMethods(t *testing.T) {
	rule := NewHandlingFeeRule("auspost", "click_collect", nil)
	if rule.InclusionMethodID() != "auspost" || rule.ExclusionMethodID() != "click_collect" {
		t.Fatalf("unexpected methods %q %q", rule.InclusionMethodID(), rule.ExclusionMethodID())
	}
	packages := []domain.ShippingPackage{pkg(0, rate("r1", "interparcel")), pkg(1, rate("r2", "auspost"))}
	if !rule.Evaluate(packages, domain.ChosenSelections{0: "r1", 1: "r2"}) {
		t.Fatalf("expected custom inclusion method to apply")
	}
}

func TestHandlingFeeRuleObserverCannotChangeDecision(t *testing.T) {
	packages := []domain.ShippingPackage{pkg(0, rate("r1", "interparcel"))}
	selections := domain.ChosenSelections{0: "r1"}

	rule := NewHandlingFeeRule("", "", func(trace RuleTrace) {
		trace.Decision = false
		trace.Steps = nil
	})
	if !rule.Evaluate(packages, selections) {
		t.Fatalf("expected observer mutation to be ignored")
	}

	var first, second bool
	chained := rule.WithObserver(func(RuleTrace) { first = true }).WithObserver(func(RuleTrace) { second = true })
	if !chained.Evaluate(packages, selections) || !first || !second {
		t.Fatalf("expected chained observers to run, got %v %v", first, second)
	}
}
