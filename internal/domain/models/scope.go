package models

import "strings"

// Scope is an ordered set of attribute names.
type Scope []string

// ParseScope splits a whitespace-delimited scope string, dropping duplicates
// while keeping first-seen order.
func ParseScope(raw string) Scope {
	fields := strings.Fields(raw)
	seen := make(map[string]struct{}, len(fields))
	scope := make(Scope, 0, len(fields))
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		scope = append(scope, f)
	}
	return scope
}

// String joins the scope back into its wire form.
func (s Scope) String() string {
	return strings.Join(s, " ")
}

// Contains reports whether name is part of the scope.
func (s Scope) Contains(name string) bool {
	for _, v := range s {
		if v == name {
			return true
		}
	}
	return false
}
