package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pragati-platform/identity/pkg/auth"
)

// ruleFile is the on-disk shape of a policy file.
type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadFile parses a YAML rule file into a table. The file must be
// valid as a whole; one bad rule rejects the entire file so a partial
// policy is never installed.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return Parse(data)
}

// Parse builds a table from raw YAML.
func Parse(data []byte) (*Table, error) {
	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}
	if len(file.Rules) == 0 {
		return nil, fmt.Errorf("policy file declares no rules")
	}
	return NewTable(file.Rules)
}

// DefaultRules is the built-in policy for the platform's route groups.
// Deployments override it with a rules file; the built-in set keeps a
// fresh checkout runnable and documents the intended shape.
func DefaultRules() []Rule {
	all := []auth.Role{auth.RoleCoordinator, auth.RolePrincipal, auth.RoleMentor, auth.RoleUser}
	return []Rule{
		// Authentication surface.
		{Path: "/api/auth/login", Methods: []string{"POST"}, Public: true},
		{Path: "/api/auth/refresh", Methods: []string{"POST"}, Public: true},
		{Path: "/api/auth/logout", Methods: []string{"POST"}, Roles: append(all, auth.RoleService)},
		{Path: "/api/auth/validate-token", Methods: []string{"GET"}, Roles: append(all, auth.RoleService)},
		{Path: "/api/auth/colleges", Methods: []string{"GET"}, Public: true},
		{Path: "/api/auth/sso/login", Methods: []string{"GET"}, Public: true},
		{Path: "/api/auth/sso/callback", Methods: []string{"GET"}, Public: true},

		// Domain route groups. Handlers are external collaborators;
		// the table is what gates them.
		{Path: "/api/ideas", Roles: all},
		{Path: "/api/ideas/{id}", Roles: all},
		{Path: "/api/teams", Roles: all},
		{Path: "/api/teams/{id}", Roles: all},
		{Path: "/api/reports", Roles: []auth.Role{auth.RoleCoordinator, auth.RolePrincipal}},
		{Path: "/api/reports/{id}", Roles: []auth.Role{auth.RoleCoordinator, auth.RolePrincipal}},
		{Path: "/api/mentors", Roles: []auth.Role{auth.RoleCoordinator, auth.RolePrincipal, auth.RoleMentor}},
		{Path: "/api/mentors/{id}", Roles: []auth.Role{auth.RoleCoordinator, auth.RolePrincipal, auth.RoleMentor}},
		{Path: "/api/psychometric", Roles: []auth.Role{auth.RoleUser}},
		{Path: "/api/psychometric/{id}/results", Roles: []auth.Role{auth.RoleCoordinator, auth.RolePrincipal, auth.RoleUser}},
		{Path: "/api/credits", Roles: []auth.Role{auth.RoleCoordinator, auth.RolePrincipal, auth.RoleUser}},
		{Path: "/api/notifications", Roles: append(all, auth.RoleService)},
		{Path: "/api/notifications/dispatch", Methods: []string{"POST"}, Roles: []auth.Role{auth.RoleService}},

		// Coordinator/principal administrative surface.
		{Path: "/api/coordinator/students", Roles: []auth.Role{auth.RoleCoordinator}},
		{Path: "/api/principal/overview", Roles: []auth.Role{auth.RolePrincipal}},

		// Student-owned data admins must not browse: the exclusion is
		// explicit so the override surface stays auditable.
		{Path: "/api/psychometric/{id}/raw-responses", Roles: []auth.Role{auth.RoleUser}, ExcludeAdmin: true},
	}
}

// DefaultTable builds the built-in policy. Panics on error: the
// default set is compile-time data and a mistake in it is a bug.
func DefaultTable() *Table {
	table, err := NewTable(DefaultRules())
	if err != nil {
		panic(fmt.Sprintf("invalid built-in policy: %v", err))
	}
	return table
}
