package flags

import (
	"errors"
)

// IsInconclusive reports whether err signals an inconclusive local match.
func IsInconclusive(err error) bool {
	var inconclusive *InconclusiveMatchError
	return errors.As(err, &inconclusive)
}

// matchCohort resolves the cohort id carried in the clause value and
// evaluates its property group. An unknown cohort id is inconclusive: the
// server has the definition even if our snapshot does not.
func (e *LocalEvaluator) matchCohort(filter PropertyFilter, properties Properties) (bool, error) {
	cohortID := propertyString(filter.Value)
	group, ok := e.Cohorts[cohortID]
	if !ok {
		return false, &InconclusiveMatchError{Reason: "can't match cohort " + cohortID + " without a cached definition"}
	}
	return e.matchPropertyGroup(&group, properties)
}

// matchPropertyGroup recursively evaluates a nested AND/OR group.
//
// Short-circuiting is decisive: an AND group returns false on the first
// failing child and an OR group returns true on the first passing child,
// even when a later child would be inconclusive. If the loop completes
// without a decisive break and any child was inconclusive, the whole group
// is inconclusive rather than the aggregate value.
func (e *LocalEvaluator) matchPropertyGroup(group *PropertyGroup, properties Properties) (bool, error) {
	if group == nil {
		return true, nil
	}
	if len(group.Groups) == 0 && len(group.Leaves) == 0 {
		return true, nil
	}
	isAnd := group.Type == GroupAND
	sawInconclusive := false

	if len(group.Groups) > 0 {
		for i := range group.Groups {
			matches, err := e.matchPropertyGroup(&group.Groups[i], properties)
			if err != nil {
				if !IsInconclusive(err) {
					return false, err
				}
				e.warn("Failed to compute property group locally", "error", err.Error())
				sawInconclusive = true
				continue
			}
			if isAnd && !matches {
				return false, nil
			}
			if !isAnd && matches {
				return true, nil
			}
		}
	} else {
		for _, leaf := range group.Leaves {
			var matches bool
			var err error
			if leaf.Operator == OpCohort {
				matches, err = e.matchCohort(leaf, properties)
			} else {
				matches, err = e.matchProperty(leaf, properties)
			}
			if err != nil {
				if !IsInconclusive(err) {
					return false, err
				}
				e.warn("Failed to compute property locally", "key", leaf.Key, "error", err.Error())
				sawInconclusive = true
				continue
			}
			// A clause passes when negation XOR matches is true.
			if isAnd {
				if matches == leaf.Negation {
					return false, nil
				}
			} else {
				if matches != leaf.Negation {
					return true, nil
				}
			}
		}
	}

	if sawInconclusive {
		return false, &InconclusiveMatchError{Reason: "can't evaluate all conditions of the property group locally"}
	}
	// All AND children passed, or no OR child passed.
	return isAnd, nil
}
