package rules

import (
	"regexp"
	"strings"
)

// Rule binds a path matcher to a permission set. The matcher is either a
// literal path prefix (Path) or a compiled regular expression (Regex);
// Regex takes effect when non-nil.
type Rule struct {
	Path        string
	Regex       *regexp.Regexp
	Permissions Permissions
}

// Matches reports whether the rule applies to the given logical path.
func (r *Rule) Matches(path string) bool {
	if r.Regex != nil {
		return r.Regex.MatchString(path)
	}
	return strings.HasPrefix(path, r.Path)
}
