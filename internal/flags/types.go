// Package flags implements local feature flag evaluation: deterministic
// bucketing, property and cohort matching, and the background poller that
// keeps flag definitions fresh.
package flags

import (
	"encoding/json"
)

// FlagValue is the result of a flag evaluation: a bool for plain flags or a
// string naming a multivariate variant.
type FlagValue any

// Properties is a bag of request-time property values keyed by name.
type Properties map[string]any

// Groups maps a group type name (e.g. "organization") to the key of the
// group instance being evaluated.
type Groups map[string]string

// Operator is the closed set of property matching operators.
type Operator string

const (
	OpExact        Operator = "exact"
	OpIsNot        Operator = "is_not"
	OpIsSet        Operator = "is_set"
	OpIsNotSet     Operator = "is_not_set"
	OpIContains    Operator = "icontains"
	OpNotIContains Operator = "not_icontains"
	OpRegex        Operator = "regex"
	OpNotRegex     Operator = "not_regex"
	OpGT           Operator = "gt"
	OpGTE          Operator = "gte"
	OpLT           Operator = "lt"
	OpLTE          Operator = "lte"
	OpDateBefore   Operator = "is_date_before"
	OpDateAfter    Operator = "is_date_after"
	OpCohort       Operator = "cohort"
)

// PropertyFilter is a single predicate clause. For OpCohort, Value holds the
// cohort id to delegate to.
type PropertyFilter struct {
	Key      string   `json:"key"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
	Negation bool     `json:"negation,omitempty"`
}

// FlagCondition is one condition group of a flag: a conjunction of property
// filters plus an optional rollout gate and variant override.
type FlagCondition struct {
	Properties        []PropertyFilter `json:"properties"`
	RolloutPercentage *float64         `json:"rollout_percentage,omitempty"`
	VariantOverride   string           `json:"variant,omitempty"`
}

// FlagVariant is one entry of a multivariate rollout table.
type FlagVariant struct {
	Key               string  `json:"key"`
	RolloutPercentage float64 `json:"rollout_percentage"`
}

// FlagDefinition is one feature flag's server-authored configuration.
type FlagDefinition struct {
	Key                        string            `json:"key"`
	Active                     bool              `json:"active"`
	EnsureExperienceContinuity bool              `json:"ensure_experience_continuity,omitempty"`
	Conditions                 []FlagCondition   `json:"conditions"`
	AggregationGroupTypeIndex  *int              `json:"aggregation_group_type_index,omitempty"`
	Variants                   []FlagVariant     `json:"variants,omitempty"`
	Payloads                   map[string]string `json:"payloads,omitempty"`
}

// GroupOperator is the boolean combinator of a property group.
type GroupOperator string

const (
	GroupAND GroupOperator = "AND"
	GroupOR  GroupOperator = "OR"
)

// PropertyGroup is a recursively nested AND/OR combination of predicate
// clauses, used for cohort definitions. The children are either nested
// groups or leaf clauses; the distinction is decided once when the JSON is
// parsed, never re-inspected during evaluation.
type PropertyGroup struct {
	Type   GroupOperator
	Groups []PropertyGroup
	Leaves []PropertyFilter
}

// UnmarshalJSON decodes the wire form `{"type": "AND"|"OR", "values": [...]}`
// where each element of values is either a nested group (it carries its own
// "values" field) or a leaf predicate clause.
func (g *PropertyGroup) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type   GroupOperator     `json:"type"`
		Values []json.RawMessage `json:"values"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	g.Type = raw.Type
	g.Groups = nil
	g.Leaves = nil

	for _, child := range raw.Values {
		var probe struct {
			Values json.RawMessage `json:"values"`
		}
		if err := json.Unmarshal(child, &probe); err != nil {
			return err
		}
		if probe.Values != nil {
			var nested PropertyGroup
			if err := json.Unmarshal(child, &nested); err != nil {
				return err
			}
			g.Groups = append(g.Groups, nested)
		} else {
			var leaf PropertyFilter
			if err := json.Unmarshal(child, &leaf); err != nil {
				return err
			}
			g.Leaves = append(g.Leaves, leaf)
		}
	}
	return nil
}

// MarshalJSON re-encodes the group into its wire form.
func (g PropertyGroup) MarshalJSON() ([]byte, error) {
	values := make([]any, 0, len(g.Groups)+len(g.Leaves))
	for _, nested := range g.Groups {
		values = append(values, nested)
	}
	for _, leaf := range g.Leaves {
		values = append(values, leaf)
	}
	return json.Marshal(map[string]any{
		"type":   g.Type,
		"values": values,
	})
}

// InconclusiveMatchError signals that a flag cannot be decided locally and
// the caller should fall back to a server-side evaluation. It is always
// caught before the public API boundary.
type InconclusiveMatchError struct {
	Reason string
}

// Error implements the error interface.
func (e *InconclusiveMatchError) Error() string {
	return "inconclusive match: " + e.Reason
}

// LocalEvaluationResponse is the payload of the definitions endpoint.
type LocalEvaluationResponse struct {
	Flags            []FlagDefinition         `json:"flags"`
	GroupTypeMapping map[string]string        `json:"group_type_mapping,omitempty"`
	Cohorts          map[string]PropertyGroup `json:"cohorts,omitempty"`
}
