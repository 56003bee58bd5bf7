// Package anchors implements counterfactual anchor detection (CTF-01..04):
// given a shadow simulation that changed a case's verdict relative to
// base, find the minimal subset of shadow components whose removal
// restores the base verdict. Search is budget-bounded; on exhaustion the
// result is marked incomplete rather than left to run unbounded.
package anchors

import (
	"context"
	"sort"
	"time"

	"github.com/decisiongraph/ledger/internal/canon"
)

// ExecutionBudget bounds an anchor search. A zero field means unbounded
// on that axis.
type ExecutionBudget struct {
	MaxAnchorAttempts int
	MaxRuntimeMS      int64
	MaxCellsTouched   int
}

// VerdictFunc evaluates the verdict produced when exactly the shadow
// components in active are applied (every id not in active is treated
// as removed). It must be a pure function of active (§5 determinism
// requirement): anchors itself holds no engine-specific knowledge of
// how a verdict is computed.
type VerdictFunc func(active map[string]struct{}) (string, error)

// AnchorResult is detect_counterfactual_anchors's output.
type AnchorResult struct {
	// Anchors holds every minimal (smallest-size) subset of shadow
	// component ids found whose removal reproduces baseVerdict, each
	// sorted. Multiple subsets of the same minimal size are all
	// reported, since the search has no basis for preferring one.
	Anchors [][]string
	// AnchorHashes[i] is ComputeAnchorHash(Anchors[i]).
	AnchorHashes      []string
	AttemptsUsed      int
	CellsTouched      int
	ElapsedMS         int64
	AnchorsIncomplete bool
}

// ComputeAnchorHash deterministically hashes a subset of shadow component
// ids (CTF-01): components are sorted before hashing so two subsets
// differing only in discovery order hash identically.
func ComputeAnchorHash(componentIDs []string) (string, error) {
	sorted := append([]string(nil), componentIDs...)
	sort.Strings(sorted)
	values := make([]canon.Value, len(sorted))
	for i, id := range sorted {
		values[i] = id
	}
	return canon.Hash(map[string]canon.Value{"components": values})
}

// DetectCounterfactualAnchors searches for the minimal subset(s) of
// components whose removal makes verdict(active) report baseVerdict
// again. It tries subset sizes in increasing order (1, 2, 3, ...),
// stopping at the first size that yields any match — that size is
// minimal by construction, since every smaller size was exhausted
// first. Removing every component is always eventually tried and,
// assuming baseVerdict is genuinely the no-shadow verdict, always
// succeeds, so the search terminates unless the budget is exhausted
// first (CTF-02/CTF-04).
func DetectCounterfactualAnchors(ctx context.Context, components []string, baseVerdict string, verdict VerdictFunc, budget ExecutionBudget) (AnchorResult, error) {
	start := time.Now()
	sorted := append([]string(nil), components...)
	sort.Strings(sorted)
	if budget.MaxCellsTouched > 0 && len(sorted) > budget.MaxCellsTouched {
		sorted = sorted[:budget.MaxCellsTouched]
	}

	result := AnchorResult{}
	attempts := 0

	exceeded := func() bool {
		if budget.MaxAnchorAttempts > 0 && attempts >= budget.MaxAnchorAttempts {
			return true
		}
		if budget.MaxRuntimeMS > 0 && time.Since(start).Milliseconds() >= budget.MaxRuntimeMS {
			return true
		}
		select {
		case <-ctx.Done():
			return true
		default:
			return false
		}
	}

	finish := func(found [][]string) (AnchorResult, error) {
		result.AttemptsUsed = attempts
		result.CellsTouched = len(sorted)
		result.ElapsedMS = time.Since(start).Milliseconds()
		if len(found) > 0 {
			result.Anchors = found
			hashes := make([]string, len(found))
			for i, combo := range found {
				h, err := ComputeAnchorHash(combo)
				if err != nil {
					return AnchorResult{}, err
				}
				hashes[i] = h
			}
			result.AnchorHashes = hashes
		}
		return result, nil
	}

	n := len(sorted)
	for k := 1; k <= n; k++ {
		var foundAtK [][]string
		for _, combo := range combinations(sorted, k) {
			if exceeded() {
				result.AnchorsIncomplete = true
				return finish(foundAtK)
			}
			attempts++
			active := activeSet(sorted, combo)
			got, err := verdict(active)
			if err != nil {
				return AnchorResult{}, err
			}
			if got == baseVerdict {
				foundAtK = append(foundAtK, append([]string(nil), combo...))
			}
		}
		if len(foundAtK) > 0 {
			return finish(foundAtK)
		}
	}
	return finish(nil)
}

// activeSet returns all members of sorted except those in remove, as a
// set suitable for VerdictFunc.
func activeSet(sorted, remove []string) map[string]struct{} {
	removed := make(map[string]struct{}, len(remove))
	for _, id := range remove {
		removed[id] = struct{}{}
	}
	active := make(map[string]struct{}, len(sorted)-len(remove))
	for _, id := range sorted {
		if _, ok := removed[id]; !ok {
			active[id] = struct{}{}
		}
	}
	return active
}

// combinations returns every k-element subset of items, in deterministic
// lexicographic index order (items itself must already be sorted for the
// output to be lexicographic in value too).
func combinations(items []string, k int) [][]string {
	n := len(items)
	if k == 0 {
		return [][]string{{}}
	}
	if k > n {
		return nil
	}
	idx := make([]int, k)
	for i := range idx {
		idx[i] = i
	}
	var out [][]string
	for {
		combo := make([]string, k)
		for i, ix := range idx {
			combo[i] = items[ix]
		}
		out = append(out, combo)

		i := k - 1
		for i >= 0 && idx[i] == i+n-k {
			i--
		}
		if i < 0 {
			break
		}
		idx[i]++
		for j := i + 1; j < k; j++ {
			idx[j] = idx[j-1] + 1
		}
	}
	return out
}
