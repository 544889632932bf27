// Package authz evaluates a single, declarative authorization predicate
// over a subject's role and authorities. The same predicate gates UI
// surfaces on the client and handlers on the reference backend.
package authz

import "slices"

// Roles and authorities issued by the backend.
const (
	RoleAdmin = "ADMIN"
	RoleUser  = "USER"

	AuthorityAdmin     = "ADMIN"
	AuthorityRoleAdmin = "ROLE_ADMIN"

	ChallengeCreate  = "CHALLENGE_CREATE"
	ChallengeUpdate  = "CHALLENGE_UPDATE"
	ChallengeDelete  = "CHALLENGE_DELETE"
	ChallengeViewAll = "CHALLENGE_VIEW_ALL"
	UserCreate       = "USER_CREATE"
	UserUpdate       = "USER_UPDATE"
	UserDelete       = "USER_DELETE"
	UserViewAll      = "USER_VIEW_ALL"
)

// Subject is whatever is known about the caller.
type Subject struct {
	Role        string
	Authorities []string
}

// Policy describes what a protected surface requires. The zero Policy
// admits any authenticated subject. When both fields are set, satisfying
// either one is enough.
type Policy struct {
	RequireRole         string
	RequireAnyAuthority []string
}

// Admin is the policy for administrative surfaces.
var Admin = Policy{
	RequireRole:         RoleAdmin,
	RequireAnyAuthority: []string{AuthorityAdmin, AuthorityRoleAdmin},
}

// IsZero reports whether p imposes no requirement.
func (p Policy) IsZero() bool {
	return p.RequireRole == "" && len(p.RequireAnyAuthority) == 0
}

// Satisfied evaluates p against s without any environment override.
func (p Policy) Satisfied(s Subject) bool {
	if p.IsZero() {
		return true
	}
	if p.RequireRole != "" && s.Role == p.RequireRole {
		return true
	}
	for _, a := range p.RequireAnyAuthority {
		if slices.Contains(s.Authorities, a) {
			return true
		}
	}
	return false
}

// Evaluator applies policies under an explicit environment setting.
type Evaluator struct {
	// DevelopmentBypass admits every authenticated subject regardless of
	// policy. It must be switched on deliberately through configuration.
	DevelopmentBypass bool
}

// Allows reports whether s may use a surface guarded by p.
func (e Evaluator) Allows(p Policy, s Subject) bool {
	if e.DevelopmentBypass {
		return true
	}
	return p.Satisfied(s)
}
