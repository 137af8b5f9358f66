package access

import (
	"slices"

	"github.com/avatarctic/herdbook/go/internal/core/domain/user"
)

// RolePolicy is the security baseline a role imposes regardless of profile contents.
type RolePolicy struct {
	// Bypass grants every verb on every resource without consulting a profile.
	Bypass bool
	// Ceilings lists verbs the role may never exercise on a resource.
	Ceilings map[Resource][]Verb
}

// rolePolicies is fixed at build time. Changing it is a deployment, not an operation.
var rolePolicies = map[user.Role]RolePolicy{
	user.RoleOwner: {Bypass: true},
	user.RoleAdmin: {},
	user.RoleStaff: {
		Ceilings: map[Resource][]Verb{
			ResourceUsers:    {VerbDelete},
			ResourceSettings: {VerbDelete},
		},
	},
}

// PolicyFor returns the policy row for role. Unknown roles get an empty row,
// which grants nothing beyond the profile.
func PolicyFor(role user.Role) RolePolicy {
	return rolePolicies[role]
}

// Exceeds reports whether verb on resource is above the role's ceiling.
func (p RolePolicy) Exceeds(r Resource, v Verb) bool {
	return slices.Contains(p.Ceilings[r], v)
}
