package rules

import "fmt"

// Behavior selects how a principal's rule list combines with the global
// one.
type Behavior string

const (
	// BehaviorAppend places global rules before principal rules, so the
	// principal's rules take precedence under the last-registered-wins
	// scan order.
	BehaviorAppend Behavior = "append"

	// BehaviorOverwrite replaces the global list with the principal's.
	// A principal that supplies no rules keeps the global list.
	BehaviorOverwrite Behavior = "overwrite"
)

// ParseBehavior parses a rules-inheritance mode ("" means append).
func ParseBehavior(s string) (Behavior, error) {
	switch Behavior(s) {
	case "", BehaviorAppend:
		return BehaviorAppend, nil
	case BehaviorOverwrite:
		return BehaviorOverwrite, nil
	default:
		return "", fmt.Errorf("invalid rules behavior %q", s)
	}
}

// RuleSet is an ordered rule sequence plus a default permission deciding
// paths no rule matches. Built once at configuration load and never
// mutated afterwards.
type RuleSet struct {
	Rules   []Rule
	Default Permissions
}

// PermissionsFor returns the permissions governing a logical path.
//
// The scan runs from the last-registered rule to the first and the first
// match decides: a rule appended later silently overrides an earlier,
// possibly broader rule matching the same path. This is
// "last-registered wins", NOT "most specific wins": a rule like
// {"/pub", "R"} followed by {"/pub/secret", "none"} denies
// /pub/secret/doc even though the first rule also matches it. Operators
// ordering rules broad-to-narrow get the intuitive outcome; the reverse
// order silently shadows the narrow rule.
func (rs *RuleSet) PermissionsFor(path string) Permissions {
	for i := len(rs.Rules) - 1; i >= 0; i-- {
		if rs.Rules[i].Matches(path) {
			return rs.Rules[i].Permissions
		}
	}
	return rs.Default
}

// MergeRules resolves the effective rule list for a principal from the
// global list and the principal's own, under the given inheritance mode.
// Pure function, computed once at load time and cached on the principal.
func MergeRules(global, principal []Rule, behavior Behavior) []Rule {
	switch behavior {
	case BehaviorOverwrite:
		if len(principal) == 0 {
			return append([]Rule(nil), global...)
		}
		return append([]Rule(nil), principal...)
	default:
		merged := make([]Rule, 0, len(global)+len(principal))
		merged = append(merged, global...)
		merged = append(merged, principal...)
		return merged
	}
}
