// Package rules implements the per-principal authorization rule engine.
//
// A principal carries an ordered rule set over its logical path space.
// Evaluation scans rules from the most recently registered one backwards
// and the first match decides; when nothing matches, the set's default
// permission decides. Any fault during evaluation denies.
package rules

import (
	"fmt"
	"strings"
)

// Permissions is the capability set a rule grants: four independent
// booleans over create, read, update and delete.
type Permissions struct {
	Create bool
	Read   bool
	Update bool
	Delete bool
}

// ParsePermissions parses a permission string over the C, R, U and D
// flags (case-insensitive). The special value "none" (or the empty
// string) grants nothing.
func ParsePermissions(s string) (Permissions, error) {
	var p Permissions

	if s == "" || strings.EqualFold(s, "none") {
		return p, nil
	}

	for _, c := range strings.ToUpper(s) {
		switch c {
		case 'C':
			p.Create = true
		case 'R':
			p.Read = true
		case 'U':
			p.Update = true
		case 'D':
			p.Delete = true
		default:
			return Permissions{}, fmt.Errorf("invalid permission flag %q in %q", string(c), s)
		}
	}

	return p, nil
}

// String renders the set in CRUD order ("none" when empty).
func (p Permissions) String() string {
	var b strings.Builder
	if p.Create {
		b.WriteByte('C')
	}
	if p.Read {
		b.WriteByte('R')
	}
	if p.Update {
		b.WriteByte('U')
	}
	if p.Delete {
		b.WriteByte('D')
	}
	if b.Len() == 0 {
		return "none"
	}
	return b.String()
}
