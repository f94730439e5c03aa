package services

import (
	"sort"
	"strings"

	domain "github.com/hanko-field/handling-fee/internal/domain"
)

const (
	// DefaultInclusionMethodID is the carrier code that attracts the handling fee.
	DefaultInclusionMethodID = "interparcel"
	// DefaultExclusionMethodID is the local pickup code that vetoes the handling fee.
	DefaultExclusionMethodID = "ds_local_pickup"
)

// RuleStep records one package the rule examined.
type RuleStep struct {
	PackageIndex int
	RateID       string
	MethodID     string
}

// RuleTrace describes a single evaluation for diagnostics.
type RuleTrace struct {
	Steps []RuleStep
	// StoppedAt is the package index where an exclusion ended iteration, or -1.
	StoppedAt int
	Decision  bool
}

// RuleObserver receives the trace of each evaluation. It cannot alter the decision.
type RuleObserver func(RuleTrace)

// HandlingFeeRule decides whether the handling fee applies to a set of chosen shipping rates.
type HandlingFeeRule struct {
	inclusion string
	exclusion string
	observer  RuleObserver
}

// NewHandlingFeeRule builds a rule. Blank method IDs fall back to the defaults.
func NewHandlingFeeRule(inclusionMethodID, exclusionMethodID string, observer RuleObserver) HandlingFeeRule {
	inclusion := strings.TrimSpace(inclusionMethodID)
	if inclusion == "" {
		inclusion = DefaultInclusionMethodID
	}
	exclusion := strings.TrimSpace(exclusionMethodID)
	if exclusion == "" {
		exclusion = DefaultExclusionMethodID
	}
	return HandlingFeeRule{inclusion: inclusion, exclusion: exclusion, observer: observer}
}

// InclusionMethodID returns the method that triggers the fee.
func (r HandlingFeeRule) InclusionMethodID() string { return r.inclusion }

// ExclusionMethodID returns the method that vetoes the fee.
func (r HandlingFeeRule) ExclusionMethodID() string { return r.exclusion }

// WithObserver returns a copy of the rule that also reports to observer.
func (r HandlingFeeRule) WithObserver(observer RuleObserver) HandlingFeeRule {
	if observer == nil {
		return r
	}
	existing := r.observer
	r.observer = func(trace RuleTrace) {
		if existing != nil {
			existing(trace)
		}
		observer(trace)
	}
	return r
}

// Evaluate walks the packages in index order. An inclusion method sets the decision,
// and the first exclusion method clears it and ends the walk. Packages without a
// resolvable selection are skipped. Evaluate never fails.
func (r HandlingFeeRule) Evaluate(packages []domain.ShippingPackage, selections domain.ChosenSelections) bool {
	trace := RuleTrace{StoppedAt: -1}
	defer func() {
		if r.observer != nil {
			r.observer(trace)
		}
	}()

	if len(selections) == 0 {
		return false
	}

	ordered := make([]domain.ShippingPackage, len(packages))
	copy(ordered, packages)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	apply := false
	for _, pkg := range ordered {
		rateID, ok := selections.RateFor(pkg.Index)
		if !ok {
			continue
		}
		rate, ok := pkg.Rate(rateID)
		if !ok {
			continue
		}
		trace.Steps = append(trace.Steps, RuleStep{PackageIndex: pkg.Index, RateID: rateID, MethodID: rate.MethodID})

		if rate.MethodID == r.inclusion {
			apply = true
		}
		if rate.MethodID == r.exclusion {
			apply = false
			trace.StoppedAt = pkg.Index
			break
		}
	}
	trace.Decision = apply
	return apply
}
