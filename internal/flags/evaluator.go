package flags

import (
	"sort"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/pulsekit/pulsekit-go/internal/types"
)

// LocalEvaluator evaluates flag definitions against a single immutable
// snapshot of cohorts and group-type mappings. It only reads; the poller is
// the sole writer of the data it is handed.
type LocalEvaluator struct {
	Cohorts          map[string]PropertyGroup
	GroupTypeMapping map[string]string
	Logger           types.Logger
}

func (e *LocalEvaluator) warn(msg string, keysAndValues ...any) {
	if e.Logger != nil {
		e.Logger.Warn(msg, keysAndValues...)
	}
}

// ComputeFlagLocally evaluates one flag definition without a network round
// trip. It returns an InconclusiveMatchError when the flag requires
// server-side person lookup (experience continuity), when the aggregation
// group type is unknown, or when no condition matched definitively and at
// least one could not be decided.
func (e *LocalEvaluator) ComputeFlagLocally(
	flag FlagDefinition,
	distinctID string,
	groups Groups,
	personProperties Properties,
	groupProperties map[string]Properties,
) (FlagValue, error) {
	if flag.EnsureExperienceContinuity {
		return nil, &InconclusiveMatchError{Reason: "flag has experience continuity enabled"}
	}
	if !flag.Active {
		return false, nil
	}

	if flag.AggregationGroupTypeIndex != nil {
		index := strconv.Itoa(*flag.AggregationGroupTypeIndex)
		groupName, ok := e.GroupTypeMapping[index]
		if !ok {
			e.warn("Unknown group type index, failing back to server", "index", index, "flag", flag.Key)
			return nil, &InconclusiveMatchError{Reason: "flag is based on an unknown group type index"}
		}
		groupKey, ok := groups[groupName]
		if !ok {
			e.warn("Can't compute group flag without group names passed in", "flag", flag.Key, "group_type", groupName)
			return false, nil
		}
		return e.matchFlagConditions(flag, groupKey, groupProperties[groupName])
	}

	return e.matchFlagConditions(flag, distinctID, personProperties)
}

// matchFlagConditions walks the flag's conditions in sorted order and
// returns the value of the first condition that matches. Conditions with a
// variant override are evaluated first; ties keep their original order.
func (e *LocalEvaluator) matchFlagConditions(flag FlagDefinition, hashID string, properties Properties) (FlagValue, error) {
	conditions := sortedConditions(flag.Conditions)
	sawInconclusive := false

	for i := range conditions {
		match, err := e.isConditionMatch(flag, hashID, &conditions[i], properties)
		if err != nil {
			if !IsInconclusive(err) {
				return nil, err
			}
			sawInconclusive = true
			continue
		}
		if !match {
			continue
		}
		if override := conditions[i].VariantOverride; override != "" && flagHasVariant(flag, override) {
			return override, nil
		}
		if variant, ok := matchingVariant(flag, hashID); ok {
			return variant, nil
		}
		return true, nil
	}

	if sawInconclusive {
		return nil, &InconclusiveMatchError{Reason: "can't determine if the flag is enabled with the given properties"}
	}
	return false, nil
}

// isConditionMatch checks every property filter of the condition and then
// the rollout gate. An absent rollout percentage means the condition passes
// unconditionally once its properties match.
func (e *LocalEvaluator) isConditionMatch(flag FlagDefinition, hashID string, condition *FlagCondition, properties Properties) (bool, error) {
	for _, filter := range condition.Properties {
		var matches bool
		var err error
		if filter.Operator == OpCohort {
			matches, err = e.matchCohort(filter, properties)
		} else {
			matches, err = e.matchProperty(filter, properties)
		}
		if err != nil {
			return false, err
		}
		if !matches {
			return false, nil
		}
	}
	if condition.RolloutPercentage != nil && flagHash(flag.Key, hashID, "") > *condition.RolloutPercentage/100 {
		return false, nil
	}
	return true, nil
}

// sortedConditions returns a copy of conditions with variant-override
// conditions moved to the front, preserving relative order otherwise.
func sortedConditions(conditions []FlagCondition) []FlagCondition {
	sorted := make([]FlagCondition, len(conditions))
	copy(sorted, conditions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].VariantOverride != "" && sorted[j].VariantOverride == ""
	})
	return sorted
}

func flagHasVariant(flag FlagDefinition, key string) bool {
	for _, variant := range flag.Variants {
		if variant.Key == key {
			return true
		}
	}
	return false
}

type variantRange struct {
	key      string
	min, max float64
}

// variantLookupTable builds cumulative [min, max) ranges over the variants
// in their declared order. Declared order is authoritative; the table is
// never sorted by percentage.
func variantLookupTable(flag FlagDefinition) []variantRange {
	table := make([]variantRange, 0, len(flag.Variants))
	min := 0.0
	for _, variant := range flag.Variants {
		max := min + variant.RolloutPercentage/100
		table = append(table, variantRange{key: variant.Key, min: min, max: max})
		min = max
	}
	return table
}

// matchingVariant buckets the hash id into the flag's variant table using
// the "variant" salt, so rollout gating and variant selection use
// independent hashes.
func matchingVariant(flag FlagDefinition, hashID string) (string, bool) {
	hash := flagHash(flag.Key, hashID, "variant")
	for _, r := range variantLookupTable(flag) {
		if hash >= r.min && hash < r.max {
			return r.key, true
		}
	}
	return "", false
}

// DecodePayload looks up the payload stored for matchValue. JSON payloads
// are decoded; anything that does not parse is returned as the raw string.
// A nil return means the flag evaluated but carries no payload.
func DecodePayload(flag FlagDefinition, matchValue FlagValue) any {
	raw, ok := flag.Payloads[payloadKey(matchValue)]
	if !ok {
		return nil
	}
	if gjson.Valid(raw) {
		return gjson.Parse(raw).Value()
	}
	return raw
}

// payloadKey stringifies a match value the way payload maps are keyed:
// booleans as "true"/"false", variants by their key.
func payloadKey(matchValue FlagValue) string {
	switch v := matchValue.(type) {
	case bool:
		return strconv.FormatBool(v)
	case string:
		return v
	default:
		return propertyString(v)
	}
}
