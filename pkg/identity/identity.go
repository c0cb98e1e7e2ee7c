// Package identity binds credentials to principals.
//
// A Principal is an authenticated identity bound to a root directory and
// a resolved rule set. Principals are built once at configuration load
// and are immutable for the process lifetime; requests never mutate them.
package identity

import (
	"crypto/subtle"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/covedav/covedav/pkg/rules"
	"github.com/covedav/covedav/pkg/store"
)

// BcryptPrefix marks a stored secret as a bcrypt hash rather than a
// literal.
const BcryptPrefix = "{bcrypt}"

// ErrDenied is returned for unknown identities and bad secrets alike so
// callers cannot distinguish the two.
var ErrDenied = errors.New("identity: invalid credentials")

// Principal is an identity bound to a root directory and a rule set.
type Principal struct {
	Username string
	Root     string
	Rules    rules.RuleSet
	Store    store.Store

	secret string
}

// NewPrincipal builds an immutable principal. secret is either a literal
// or a BcryptPrefix-marked hash; indirection markers must already be
// resolved (see ResolveIndirect).
func NewPrincipal(username, secret, root string, ruleSet rules.RuleSet, st store.Store) *Principal {
	return &Principal{
		Username: username,
		Root:     root,
		Rules:    ruleSet,
		Store:    st,
		secret:   secret,
	}
}

// checkSecret verifies a presented secret against the stored one:
// adaptive bcrypt verification when the stored value carries the hash
// marker, constant-time literal comparison otherwise.
func (p *Principal) checkSecret(presented string) bool {
	if hash, ok := strings.CutPrefix(p.secret, BcryptPrefix); ok {
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(presented)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(p.secret), []byte(presented)) == 1
}

// Registry holds the principal table assembled at configuration load.
// Read-only after construction.
type Registry struct {
	realm      string
	noPassword bool
	principals map[string]*Principal
}

// NewRegistry creates an empty registry. When noPassword is set, secret
// verification is disabled entirely but a known identity is still
// required.
func NewRegistry(realm string, noPassword bool) *Registry {
	return &Registry{
		realm:      realm,
		noPassword: noPassword,
		principals: make(map[string]*Principal),
	}
}

// Realm returns the authentication realm presented in challenges.
func (r *Registry) Realm() string {
	return r.realm
}

// Add registers a principal. Meant for load time only.
func (r *Registry) Add(p *Principal) {
	r.principals[p.Username] = p
}

// Len returns the number of registered principals.
func (r *Registry) Len() int {
	return len(r.principals)
}

// Authenticate verifies a decoded Basic user/secret pair and returns the
// matching principal, or ErrDenied.
func (r *Registry) Authenticate(username, secret string) (*Principal, error) {
	p, ok := r.principals[username]
	if !ok {
		return nil, ErrDenied
	}

	if r.noPassword {
		return p, nil
	}

	if !p.checkSecret(secret) {
		return nil, ErrDenied
	}

	return p, nil
}
