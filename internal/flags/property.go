package flags

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// matchProperty evaluates a single predicate clause against the supplied
// property bag. A missing key is inconclusive (the server may know the
// value even though we don't), with the exception of is_set, which asks
// precisely whether the key is present. is_not_set can never be decided
// locally. A present-but-nil value fails the match outright for every
// operator except is_not, which still compares against the nil value.
func (e *LocalEvaluator) matchProperty(filter PropertyFilter, properties Properties) (bool, error) {
	key := filter.Key
	operator := filter.Operator
	if operator == "" {
		operator = OpExact
	}

	overrideValue, present := properties[key]
	if operator == OpIsNotSet {
		return false, &InconclusiveMatchError{Reason: "operator is_not_set is not supported locally"}
	}
	if !present {
		if operator == OpIsSet {
			return false, nil
		}
		return false, &InconclusiveMatchError{Reason: "no value for property " + key}
	}
	if overrideValue == nil && operator != OpIsNot {
		e.warn("Property value is nil, treating as non-match", "key", key, "operator", operator)
		return false, nil
	}

	switch operator {
	case OpExact, OpIsNot:
		matches := computeExactMatch(filter.Value, overrideValue)
		if operator == OpIsNot {
			return !matches, nil
		}
		return matches, nil

	case OpIsSet:
		return true, nil

	case OpIContains, OpNotIContains:
		contains := strings.Contains(
			strings.ToLower(propertyString(overrideValue)),
			strings.ToLower(propertyString(filter.Value)),
		)
		if operator == OpNotIContains {
			return !contains, nil
		}
		return contains, nil

	case OpRegex, OpNotRegex:
		// An invalid pattern silently fails both regex and not_regex.
		re, err := regexp.Compile(propertyString(filter.Value))
		if err != nil {
			return false, nil
		}
		matched := re.MatchString(propertyString(overrideValue))
		if operator == OpNotRegex {
			return !matched, nil
		}
		return matched, nil

	case OpGT, OpGTE, OpLT, OpLTE:
		return compareOrdered(filter.Value, overrideValue, operator)

	case OpDateBefore, OpDateAfter:
		target, ok := relativeDate(propertyString(filter.Value), time.Now().UTC())
		if !ok {
			var err error
			target, err = parseDate(filter.Value)
			if err != nil {
				return false, &InconclusiveMatchError{Reason: "the date set on the flag is not a valid format"}
			}
		}
		override, err := parseDate(overrideValue)
		if err != nil {
			return false, &InconclusiveMatchError{Reason: "the date provided for property " + key + " is not a valid format"}
		}
		if operator == OpDateBefore {
			return override.Before(target), nil
		}
		return override.After(target), nil

	default:
		return false, &InconclusiveMatchError{Reason: "unknown operator " + string(operator)}
	}
}

// computeExactMatch compares case-insensitively, treating an array-valued
// clause as a membership test.
func computeExactMatch(value, overrideValue any) bool {
	if list, ok := value.([]any); ok {
		for _, item := range list {
			if strings.EqualFold(propertyString(item), propertyString(overrideValue)) {
				return true
			}
		}
		return false
	}
	return strings.EqualFold(propertyString(value), propertyString(overrideValue))
}

// compareOrdered implements gt/gte/lt/lte. When the clause value parses as a
// number, a string-typed override is still compared lexicographically against
// the stringified clause value. This mirrors server-side semantics exactly
// and must not be "fixed" locally.
func compareOrdered(value, overrideValue any, operator Operator) (bool, error) {
	parsed, numeric := propertyFloat(value)
	if numeric && overrideValue != nil {
		if s, isString := overrideValue.(string); isString {
			return compareStrings(s, propertyString(value), operator)
		}
		if override, ok := propertyFloat(overrideValue); ok {
			return compareFloats(override, parsed, operator)
		}
	}
	return compareStrings(propertyString(overrideValue), propertyString(value), operator)
}

func compareFloats(a, b float64, operator Operator) (bool, error) {
	switch operator {
	case OpGT:
		return a > b, nil
	case OpGTE:
		return a >= b, nil
	case OpLT:
		return a < b, nil
	case OpLTE:
		return a <= b, nil
	default:
		return false, fmt.Errorf("invalid ordering operator: %s", operator)
	}
}

func compareStrings(a, b string, operator Operator) (bool, error) {
	switch operator {
	case OpGT:
		return a > b, nil
	case OpGTE:
		return a >= b, nil
	case OpLT:
		return a < b, nil
	case OpLTE:
		return a <= b, nil
	default:
		return false, fmt.Errorf("invalid ordering operator: %s", operator)
	}
}

var relativeDatePattern = regexp.MustCompile(`^-?([0-9]+)([a-z])$`)

// relativeDate parses expressions like "-30d" or "1h" into the instant that
// far in the past from now. Quantities of 10000 or more are rejected.
func relativeDate(value string, now time.Time) (time.Time, bool) {
	match := relativeDatePattern.FindStringSubmatch(value)
	if match == nil {
		return time.Time{}, false
	}
	n, err := strconv.Atoi(match[1])
	if err != nil || n >= 10000 {
		return time.Time{}, false
	}
	switch match[2] {
	case "h":
		return now.Add(-time.Duration(n) * time.Hour), true
	case "d":
		return now.AddDate(0, 0, -n), true
	case "w":
		return now.AddDate(0, 0, -n*7), true
	case "m":
		return now.AddDate(0, -n, 0), true
	case "y":
		return now.AddDate(-n, 0, 0), true
	default:
		return time.Time{}, false
	}
}

// dateLayouts are tried in order when parsing absolute dates.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseDate converts a property value into a time. Strings are tried against
// the known layouts; numbers are treated as millisecond epochs.
func parseDate(value any) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case string:
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("unparseable date: %q", v)
	case float64:
		return time.UnixMilli(int64(v)).UTC(), nil
	case int:
		return time.UnixMilli(int64(v)).UTC(), nil
	case int64:
		return time.UnixMilli(v).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unparseable date value of type %T", value)
	}
}

// propertyString stringifies a property value the way the server does:
// numbers without exponent notation, booleans as "true"/"false".
func propertyString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// propertyFloat reports the numeric value of a property, accepting numeric
// strings.
func propertyFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
