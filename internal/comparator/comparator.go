// Package comparator implements the five domain-agnostic field
// comparison primitives of Layer 2 (§4.7) and the dispatcher that routes
// a FieldDefinition's declared comparison function to the right one.
package comparator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/decisiongraph/ledger/internal/domainmodel"
	"github.com/decisiongraph/ledger/internal/ledgererr"
)

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func toStr(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		if x {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprint(v)
	}
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Exact returns 1.0 iff caseVal and precVal are equal (case-insensitive
// for strings); 0.0 otherwise. Either side absent returns 0.0.
func Exact(caseVal, precVal any) float64 {
	if caseVal == nil || precVal == nil {
		return 0.0
	}
	if cb, ok := caseVal.(bool); ok {
		if pb, ok := precVal.(bool); ok {
			if cb == pb {
				return 1.0
			}
			return 0.0
		}
	}
	if cs, ok := caseVal.(string); ok {
		if ps, ok := precVal.(string); ok {
			if normalize(cs) == normalize(ps) {
				return 1.0
			}
			return 0.0
		}
	}
	if caseVal == precVal {
		return 1.0
	}
	return 0.0
}

// EquivalenceClass returns 1.0 iff caseVal and precVal fall in the same
// declared class. A value that matches no declared class falls back to
// an exact string comparison.
func EquivalenceClass(caseVal, precVal any, classes map[string][]string) float64 {
	if caseVal == nil || precVal == nil {
		return 0.0
	}
	caseStr := normalize(toStr(caseVal))
	precStr := normalize(toStr(precVal))

	var caseClass, precClass string
	var caseFound, precFound bool
	for className, members := range classes {
		for _, m := range members {
			if normalize(toStr(m)) == caseStr {
				caseClass, caseFound = className, true
			}
			if normalize(toStr(m)) == precStr {
				precClass, precFound = className, true
			}
		}
	}
	if !caseFound || !precFound {
		if caseStr == precStr {
			return 1.0
		}
		return 0.0
	}
	if caseClass == precClass {
		return 1.0
	}
	return 0.0
}

// DistanceDecay returns max(0, 1 - |a-b|/maxDistance) for numeric
// fields. maxDistance <= 0 degenerates to an exact-equality check.
func DistanceDecay(caseVal, precVal any, maxDistance int) float64 {
	if caseVal == nil || precVal == nil {
		return 0.0
	}
	a, ok1 := toFloat(caseVal)
	b, ok2 := toFloat(precVal)
	if !ok1 || !ok2 {
		return 0.0
	}
	if maxDistance <= 0 {
		if a == b {
			return 1.0
		}
		return 0.0
	}
	d := a - b
	if d < 0 {
		d = -d
	}
	score := 1.0 - d/float64(maxDistance)
	if score < 0 {
		return 0.0
	}
	return score
}

// Step returns 1 - |idx(a)-idx(b)|/(len(orderedValues)-1) for an ordered
// categorical field. A value absent from orderedValues falls back to an
// exact string comparison.
func Step(caseVal, precVal any, orderedValues []string) float64 {
	if caseVal == nil || precVal == nil {
		return 0.0
	}
	if len(orderedValues) == 0 {
		if toStr(caseVal) == toStr(precVal) {
			return 1.0
		}
		return 0.0
	}
	caseStr := normalize(toStr(caseVal))
	precStr := normalize(toStr(precVal))

	caseIdx, precIdx := -1, -1
	for i, v := range orderedValues {
		nv := normalize(v)
		if nv == caseStr {
			caseIdx = i
		}
		if nv == precStr {
			precIdx = i
		}
	}
	if caseIdx == -1 || precIdx == -1 {
		if caseStr == precStr {
			return 1.0
		}
		return 0.0
	}
	maxSteps := len(orderedValues) - 1
	if maxSteps <= 0 {
		return 1.0
	}
	d := caseIdx - precIdx
	if d < 0 {
		d = -d
	}
	score := 1.0 - float64(d)/float64(maxSteps)
	if score < 0 {
		return 0.0
	}
	return score
}

// Jaccard returns |intersection|/|union| for set-valued fields; both
// empty returns 1.0 (identical).
func Jaccard(caseVal, precVal []string) float64 {
	caseSet := toSet(caseVal)
	precSet := toSet(precVal)
	if len(caseSet) == 0 && len(precSet) == 0 {
		return 1.0
	}
	union := make(map[string]struct{}, len(caseSet)+len(precSet))
	for k := range caseSet {
		union[k] = struct{}{}
	}
	for k := range precSet {
		union[k] = struct{}{}
	}
	if len(union) == 0 {
		return 0.0
	}
	intersect := 0
	for k := range caseSet {
		if _, ok := precSet[k]; ok {
			intersect++
		}
	}
	return float64(intersect) / float64(len(union))
}

func toSet(vals []string) map[string]struct{} {
	s := make(map[string]struct{}, len(vals))
	for _, v := range vals {
		s[v] = struct{}{}
	}
	return s
}

// Compare routes to the comparison primitive named by fd.Comparison,
// returning a similarity in [0.0, 1.0]. Either value nil returns 0.0
// without dispatching.
func Compare(fd domainmodel.FieldDefinition, caseVal, precVal any) (float64, error) {
	if caseVal == nil || precVal == nil {
		return 0.0, nil
	}
	switch fd.Comparison {
	case domainmodel.ComparisonExact:
		return Exact(caseVal, precVal), nil
	case domainmodel.ComparisonEquivalenceClass:
		return EquivalenceClass(caseVal, precVal, fd.EquivalenceClasses), nil
	case domainmodel.ComparisonDistanceDecay:
		return DistanceDecay(caseVal, precVal, fd.MaxDistance), nil
	case domainmodel.ComparisonStep:
		return Step(caseVal, precVal, fd.OrderedValues), nil
	case domainmodel.ComparisonJaccard:
		cs, ok1 := toStringSlice(caseVal)
		ps, ok2 := toStringSlice(precVal)
		if !ok1 || !ok2 {
			return 0.0, nil
		}
		return Jaccard(cs, ps), nil
	default:
		return 0, ledgererr.New(ledgererr.CodeInternal, "unknown comparison function").
			WithDetails(map[string]any{"field": fd.Name, "comparison": fd.Comparison})
	}
}

func toStringSlice(v any) ([]string, bool) {
	switch x := v.(type) {
	case []string:
		return x, true
	case []any:
		out := make([]string, len(x))
		for i, e := range x {
			out[i] = toStr(e)
		}
		return out, true
	default:
		return nil, false
	}
}
