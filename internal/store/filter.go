package store

import "strings"

// Filter is a boolean predicate in the store's filter syntax.
type Filter string

// Eq matches a field against a quoted string value.
func Eq(field, value string) Filter {
	return Filter(field + " = " + quote(value))
}

// In matches a field against any of the values.
func In(field string, values ...string) Filter {
	parts := make([]Filter, 0, len(values))
	for _, v := range values {
		parts = append(parts, Eq(field, v))
	}
	return Or(parts...)
}

// And joins predicates with &&. Compound operands are parenthesized.
func And(filters ...Filter) Filter {
	return join(" && ", filters)
}

// Or joins predicates with ||. Compound operands are parenthesized.
func Or(filters ...Filter) Filter {
	return join(" || ", filters)
}

func (f Filter) String() string {
	return string(f)
}

func join(op string, filters []Filter) Filter {
	parts := make([]string, 0, len(filters))
	for _, f := range filters {
		if f == "" {
			continue
		}
		s := string(f)
		if len(filters) > 1 && (strings.Contains(s, " && ") || strings.Contains(s, " || ")) {
			s = "(" + s + ")"
		}
		parts = append(parts, s)
	}
	return Filter(strings.Join(parts, op))
}

func quote(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	return `"` + v + `"`
}
