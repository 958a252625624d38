package pulsekit

import (
	"github.com/pulsekit/pulsekit-go/internal/flags"
)

// Re-export flag evaluation types for the public API

// FlagValue is the result of a flag evaluation: a bool for plain flags or a
// string naming a multivariate variant.
type FlagValue = flags.FlagValue

// Properties is a bag of property values keyed by name.
type Properties = flags.Properties

// Groups maps a group type name to the key of the group instance being
// evaluated.
type Groups = flags.Groups

// Operator is the closed set of property matching operators.
type Operator = flags.Operator

// FlagDefinition is one feature flag's server-authored configuration.
type FlagDefinition = flags.FlagDefinition

// FlagCondition is one condition group of a flag.
type FlagCondition = flags.FlagCondition

// FlagVariant is one entry of a multivariate rollout table.
type FlagVariant = flags.FlagVariant

// PropertyFilter is a single predicate clause.
type PropertyFilter = flags.PropertyFilter

// PropertyGroup is a recursively nested AND/OR combination of predicate
// clauses, used for cohort definitions.
type PropertyGroup = flags.PropertyGroup
