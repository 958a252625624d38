package flags

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(i int) *int { return &i }

func simpleFlag(key string, rollout float64) FlagDefinition {
	return FlagDefinition{
		Key:    key,
		Active: true,
		Conditions: []FlagCondition{
			{RolloutPercentage: floatPtr(rollout)},
		},
	}
}

func TestComputeFlagLocallyFullRollout(t *testing.T) {
	e := newEvaluator()
	flag := simpleFlag("always-on", 100)

	for i := 0; i < 50; i++ {
		value, err := e.ComputeFlagLocally(flag, fmt.Sprintf("user-%d", i), nil, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, true, value)
	}
}

func TestComputeFlagLocallyInactive(t *testing.T) {
	e := newEvaluator()
	flag := simpleFlag("switched-off", 100)
	flag.Active = false

	value, err := e.ComputeFlagLocally(flag, "user-1", nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, false, value)
}

func TestComputeFlagLocallyExperienceContinuity(t *testing.T) {
	// Continuity needs server-side person lookup regardless of any other
	// field on the flag.
	e := newEvaluator()
	flag := simpleFlag("sticky", 100)
	flag.EnsureExperienceContinuity = true
	flag.Active = false

	_, err := e.ComputeFlagLocally(flag, "user-1", nil, nil, nil)
	assert.True(t, IsInconclusive(err))
}

func TestComputeFlagLocallyZeroRollout(t *testing.T) {
	e := newEvaluator()
	flag := simpleFlag("nobody", 0)

	enabled := 0
	for i := 0; i < 100; i++ {
		value, err := e.ComputeFlagLocally(flag, fmt.Sprintf("user-%d", i), nil, nil, nil)
		require.NoError(t, err)
		if value == true {
			enabled++
		}
	}
	// flagHash can land exactly on 0 for some id in theory, but never for
	// effectively all of them.
	assert.LessOrEqual(t, enabled, 1)
}

func TestComputeFlagLocallyNoRolloutGate(t *testing.T) {
	// A condition without a rollout percentage passes unconditionally once
	// its properties match.
	e := newEvaluator()
	flag := FlagDefinition{
		Key:    "ungated",
		Active: true,
		Conditions: []FlagCondition{
			{Properties: []PropertyFilter{{Key: "plan", Operator: OpExact, Value: "premium"}}},
		},
	}

	value, err := e.ComputeFlagLocally(flag, "user-1", nil, Properties{"plan": "premium"}, nil)
	require.NoError(t, err)
	assert.Equal(t, true, value)

	value, err = e.ComputeFlagLocally(flag, "user-1", nil, Properties{"plan": "free"}, nil)
	require.NoError(t, err)
	assert.Equal(t, false, value)
}

func TestComputeFlagLocallyInconclusiveProperties(t *testing.T) {
	e := newEvaluator()
	flag := FlagDefinition{
		Key:    "needs-props",
		Active: true,
		Conditions: []FlagCondition{
			{
				Properties:        []PropertyFilter{{Key: "plan", Operator: OpExact, Value: "premium"}},
				RolloutPercentage: floatPtr(100),
			},
		},
	}

	_, err := e.ComputeFlagLocally(flag, "user-1", nil, nil, nil)
	assert.True(t, IsInconclusive(err))
}

func TestComputeFlagLocallyFirstMatchWins(t *testing.T) {
	e := newEvaluator()
	flag := FlagDefinition{
		Key:    "layered",
		Active: true,
		Conditions: []FlagCondition{
			{
				Properties:        []PropertyFilter{{Key: "plan", Operator: OpExact, Value: "premium"}},
				RolloutPercentage: floatPtr(100),
			},
			{RolloutPercentage: floatPtr(0)},
		},
	}

	// Premium users hit the first condition; everyone else falls through
	// to the 0% catch-all and gets false.
	value, err := e.ComputeFlagLocally(flag, "user-1", nil, Properties{"plan": "premium"}, nil)
	require.NoError(t, err)
	assert.Equal(t, true, value)
}

func TestComputeFlagLocallyVariantOverrideOrdering(t *testing.T) {
	e := newEvaluator()
	flag := FlagDefinition{
		Key:    "experiment",
		Active: true,
		Conditions: []FlagCondition{
			{RolloutPercentage: floatPtr(100)},
			{
				Properties:        []PropertyFilter{{Key: "beta", Operator: OpExact, Value: "true"}},
				RolloutPercentage: floatPtr(100),
				VariantOverride:   "treatment",
			},
		},
		Variants: []FlagVariant{
			{Key: "control", RolloutPercentage: 100},
			{Key: "treatment", RolloutPercentage: 0},
		},
	}

	// The override condition is evaluated first even though it is declared
	// second, so beta users are forced into treatment.
	value, err := e.ComputeFlagLocally(flag, "user-1", nil, Properties{"beta": true}, nil)
	require.NoError(t, err)
	assert.Equal(t, "treatment", value)

	// Non-beta users fall through to the catch-all and bucket normally,
	// which with a 100% control table is always control.
	value, err = e.ComputeFlagLocally(flag, "user-2", nil, Properties{"beta": false}, nil)
	require.NoError(t, err)
	assert.Equal(t, "control", value)
}

func TestComputeFlagLocallyOverrideForUnknownVariantIgnored(t *testing.T) {
	e := newEvaluator()
	flag := FlagDefinition{
		Key:    "experiment",
		Active: true,
		Conditions: []FlagCondition{
			{RolloutPercentage: floatPtr(100), VariantOverride: "deleted-variant"},
		},
		Variants: []FlagVariant{
			{Key: "control", RolloutPercentage: 100},
		},
	}

	value, err := e.ComputeFlagLocally(flag, "user-1", nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "control", value)
}

func TestComputeFlagLocallyGroupFlag(t *testing.T) {
	e := newEvaluator()
	e.GroupTypeMapping["0"] = "organization"

	flag := FlagDefinition{
		Key:                       "org-feature",
		Active:                    true,
		AggregationGroupTypeIndex: intPtr(0),
		Conditions: []FlagCondition{
			{
				Properties:        []PropertyFilter{{Key: "tier", Operator: OpExact, Value: "enterprise"}},
				RolloutPercentage: floatPtr(100),
			},
		},
	}

	value, err := e.ComputeFlagLocally(flag, "user-1",
		Groups{"organization": "acme"},
		Properties{"tier": "free"},
		map[string]Properties{"organization": {"tier": "enterprise"}},
	)
	require.NoError(t, err)
	assert.Equal(t, true, value)
}

func TestComputeFlagLocallyGroupFlagWithoutGroupIsFalse(t *testing.T) {
	// Missing the caller's group key is a hard false, not inconclusive:
	// the server would not know the group either.
	e := newEvaluator()
	e.GroupTypeMapping["0"] = "organization"

	flag := FlagDefinition{
		Key:                       "org-feature",
		Active:                    true,
		AggregationGroupTypeIndex: intPtr(0),
		Conditions:                []FlagCondition{{RolloutPercentage: floatPtr(100)}},
	}

	value, err := e.ComputeFlagLocally(flag, "user-1", nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, false, value)
}

func TestComputeFlagLocallyUnknownGroupIndexIsInconclusive(t *testing.T) {
	e := newEvaluator()

	flag := FlagDefinition{
		Key:                       "org-feature",
		Active:                    true,
		AggregationGroupTypeIndex: intPtr(3),
		Conditions:                []FlagCondition{{RolloutPercentage: floatPtr(100)}},
	}

	_, err := e.ComputeFlagLocally(flag, "user-1", Groups{"organization": "acme"}, nil, nil)
	assert.True(t, IsInconclusive(err))
}

func TestComputeFlagLocallyCohortCondition(t *testing.T) {
	e := newEvaluator()
	e.Cohorts["5"] = PropertyGroup{
		Type:   GroupAND,
		Leaves: []PropertyFilter{{Key: "plan", Operator: OpExact, Value: "premium"}},
	}

	flag := FlagDefinition{
		Key:    "cohort-gated",
		Active: true,
		Conditions: []FlagCondition{
			{
				Properties:        []PropertyFilter{{Key: "id", Operator: OpCohort, Value: "5"}},
				RolloutPercentage: floatPtr(100),
			},
		},
	}

	value, err := e.ComputeFlagLocally(flag, "user-1", nil, Properties{"plan": "premium"}, nil)
	require.NoError(t, err)
	assert.Equal(t, true, value)

	value, err = e.ComputeFlagLocally(flag, "user-1", nil, Properties{"plan": "free"}, nil)
	require.NoError(t, err)
	assert.Equal(t, false, value)
}

func TestVariantLookupTableDeclaredOrder(t *testing.T) {
	flag := FlagDefinition{
		Key: "experiment",
		Variants: []FlagVariant{
			{Key: "a", RolloutPercentage: 25},
			{Key: "b", RolloutPercentage: 50},
			{Key: "c", RolloutPercentage: 25},
		},
	}

	table := variantLookupTable(flag)
	require.Len(t, table, 3)
	assert.Equal(t, variantRange{key: "a", min: 0, max: 0.25}, table[0])
	assert.Equal(t, variantRange{key: "b", min: 0.25, max: 0.75}, table[1])
	assert.Equal(t, variantRange{key: "c", min: 0.75, max: 1.0}, table[2])
}

func TestMatchingVariantCoversEveryID(t *testing.T) {
	flag := FlagDefinition{
		Key: "experiment",
		Variants: []FlagVariant{
			{Key: "a", RolloutPercentage: 50},
			{Key: "b", RolloutPercentage: 50},
		},
	}

	seen := map[string]int{}
	for i := 0; i < 500; i++ {
		variant, ok := matchingVariant(flag, fmt.Sprintf("user-%d", i))
		require.True(t, ok)
		seen[variant]++
	}
	// Both variants get traffic.
	assert.Positive(t, seen["a"])
	assert.Positive(t, seen["b"])
	assert.Equal(t, 500, seen["a"]+seen["b"])
}

func TestDecodePayload(t *testing.T) {
	flag := FlagDefinition{
		Key: "payloads",
		Payloads: map[string]string{
			"true":    `{"limit": 10, "tags": ["x"]}`,
			"variant": "plain text",
			"false":   "123",
		},
	}

	payload := DecodePayload(flag, true)
	assert.Equal(t, map[string]any{"limit": float64(10), "tags": []any{"x"}}, payload)

	// Not valid JSON: handed back verbatim.
	assert.Equal(t, "plain text", DecodePayload(flag, "variant"))

	// Bare JSON scalars decode too.
	assert.Equal(t, float64(123), DecodePayload(flag, false))

	// No payload stored for this value.
	assert.Nil(t, DecodePayload(flag, "other"))
}
