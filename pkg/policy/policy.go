// Package policy implements role-based route authorization as a
// declarative rule table. Authorization logic that the platform
// originally scattered across per-route decorators lives here in one
// auditable place: a route is either public, covered by exactly one
// rule, or default-deny.
package policy

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/pragati-platform/identity/pkg/auth"
)

// DenyReason explains a negative authorization decision. Only logged
// and counted internally; external callers see a generic 403.
type DenyReason string

const (
	DenyInsufficientRole DenyReason = "insufficient_role"
	DenyScopeMismatch    DenyReason = "scope_mismatch"
	DenyNoRule           DenyReason = "no_rule"
)

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed bool
	Reason  DenyReason
	// Rule is the matched rule path, empty for default-deny.
	Rule string
}

// Allow is the positive decision.
func Allow(rule string) Decision { return Decision{Allowed: true, Rule: rule} }

// Deny builds a negative decision with a reason.
func Deny(reason DenyReason, rule string) Decision {
	return Decision{Allowed: false, Reason: reason, Rule: rule}
}

// Rule grants a set of roles access to one route template. A route
// with multiple acceptable roles allows any one of them (logical OR).
type Rule struct {
	// Path is the mux route template, e.g. "/api/ideas/{id}".
	Path string `yaml:"path"`
	// Methods restricts the rule to the listed HTTP methods. Empty
	// means all methods.
	Methods []string `yaml:"methods,omitempty"`
	// Roles permitted on this route.
	Roles []auth.Role `yaml:"roles,omitempty"`
	// Public marks the route reachable without authentication
	// (login, college directory). Roles are ignored.
	Public bool `yaml:"public,omitempty"`
	// ExcludeAdmin removes the implicit admin override for this
	// route. The exclusion is explicit per rule so the full override
	// surface stays auditable.
	ExcludeAdmin bool `yaml:"exclude_admin,omitempty"`
}

func (r Rule) allowsMethod(method string) bool {
	if len(r.Methods) == 0 {
		return true
	}
	for _, m := range r.Methods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

func (r Rule) allowsRole(role auth.Role) bool {
	for _, allowed := range r.Roles {
		if allowed == role {
			return true
		}
	}
	return false
}

// validate rejects rules that would silently never match.
func (r Rule) validate() error {
	if r.Path == "" {
		return fmt.Errorf("rule has empty path")
	}
	if !r.Public && len(r.Roles) == 0 && !r.ExcludeAdmin {
		return fmt.Errorf("rule %s grants no roles and is not public", r.Path)
	}
	for _, role := range r.Roles {
		if !role.Valid() {
			return fmt.Errorf("rule %s references unknown role %q", r.Path, role)
		}
	}
	return nil
}

// Table holds the active rule set. Reads are lock-free apart from an
// RWMutex read lock; reloads swap the whole map atomically so a
// half-parsed file can never be observed.
type Table struct {
	mu    sync.RWMutex
	rules map[string]Rule
}

// NewTable builds a table from a rule list. Each route template must
// appear exactly once; duplicates are a configuration error, not a
// merge.
func NewTable(rules []Rule) (*Table, error) {
	index := make(map[string]Rule, len(rules))
	for _, rule := range rules {
		if err := rule.validate(); err != nil {
			return nil, err
		}
		if _, dup := index[rule.Path]; dup {
			return nil, fmt.Errorf("duplicate rule for path %s", rule.Path)
		}
		index[rule.Path] = rule
	}
	return &Table{rules: index}, nil
}

// Replace atomically installs a new rule set.
func (t *Table) Replace(other *Table) {
	other.mu.RLock()
	rules := other.rules
	other.mu.RUnlock()

	t.mu.Lock()
	t.rules = rules
	t.mu.Unlock()
}

// Lookup returns the rule for a route template.
func (t *Table) Lookup(path string) (Rule, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rule, ok := t.rules[path]
	return rule, ok
}

// IsPublic reports whether the route is reachable unauthenticated.
func (t *Table) IsPublic(path, method string) bool {
	rule, ok := t.Lookup(path)
	return ok && rule.Public && rule.allowsMethod(method)
}

// Paths returns the registered route templates, sorted. Used for
// policy dumps and exhaustiveness tests.
func (t *Table) Paths() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	paths := make([]string, 0, len(t.rules))
	for p := range t.rules {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Authorize decides whether the identity may call method on the route.
// Default deny: a route with no rule is inaccessible to everyone but
// admin. Admin is implicitly authorized everywhere except on rules
// that explicitly exclude it.
func (t *Table) Authorize(id *auth.Identity, path, method string) Decision {
	rule, ok := t.Lookup(path)
	if !ok {
		if id != nil && id.Role == auth.RoleAdmin {
			return Allow("")
		}
		return Deny(DenyNoRule, "")
	}
	if rule.Public && rule.allowsMethod(method) {
		return Allow(rule.Path)
	}
	if id == nil {
		return Deny(DenyInsufficientRole, rule.Path)
	}
	// Admin's implicit grant is checked before the method filter: a
	// method the rule does not cover is uncovered ground, the same as
	// an unlisted route.
	if id.Role == auth.RoleAdmin && !rule.ExcludeAdmin {
		return Allow(rule.Path)
	}
	if !rule.allowsMethod(method) {
		return Deny(DenyNoRule, rule.Path)
	}
	if rule.allowsRole(id.Role) {
		return Allow(rule.Path)
	}
	return Deny(DenyInsufficientRole, rule.Path)
}

// AuthorizeScope checks the institutional boundary: an identity whose
// role is college-scoped may only touch resources of its own college.
// Admin and service callers are unscoped; roles without a scope
// (mentor, user) are bounded by ownership checks in the handlers, not
// here.
func AuthorizeScope(id *auth.Identity, resourceCollegeID string) Decision {
	if id == nil {
		return Deny(DenyScopeMismatch, "")
	}
	if !id.Role.Scoped() {
		return Allow("")
	}
	if id.CollegeID != "" && id.CollegeID == resourceCollegeID {
		return Allow("")
	}
	return Deny(DenyScopeMismatch, "")
}
