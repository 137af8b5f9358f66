package services

import (
	"github.com/avatarctic/herdbook/go/internal/core/domain/access"
	"github.com/avatarctic/herdbook/go/internal/core/domain/user"
	"github.com/avatarctic/herdbook/go/internal/core/ports"
)

// AuthorizationService implements ports.AuthorizationEngine.
// It is stateless; every input arrives on the principal.
type AuthorizationService struct{}

func NewAuthorizationService() ports.AuthorizationEngine {
	return &AuthorizationService{}
}

// Decide answers whether principal may perform verb on resource.
func (s *AuthorizationService) Decide(p access.Principal, resource access.Resource, verb access.Verb) access.Decision {
	id := p.Identity
	if !resource.IsValid() || !verb.IsValid() || !id.Role.IsValid() {
		return access.Deny(access.ReasonNoGrant)
	}

	policy := access.PolicyFor(id.Role)
	if policy.Bypass {
		return access.Allow()
	}

	// A profile only counts when it is the one bound to this identity, in this org.
	prof := p.Profile
	if prof == nil || id.AccessProfileID == nil ||
		prof.OrgID != id.OrgID || prof.ID != *id.AccessProfileID {
		return access.Deny(access.ReasonNoGrant)
	}
	grant, ok := prof.Grant(resource)
	if !ok {
		return access.Deny(access.ReasonNoGrant)
	}
	if !grant.Allows(verb) {
		return access.Deny(access.ReasonVerbNotGranted)
	}

	if policy.Exceeds(resource, verb) {
		return access.Deny(access.ReasonRoleCeiling)
	}
	return access.Allow()
}

// EffectiveAccess evaluates Decide for every resource and verb in the registry.
func (s *AuthorizationService) EffectiveAccess(p access.Principal) map[access.Resource]access.VerbSet {
	out := make(map[access.Resource]access.VerbSet, len(access.Resources()))
	for _, r := range access.Resources() {
		var set access.VerbSet
		for _, v := range access.Verbs() {
			s.Decide(p, r, v).RecordVerb(&set, v)
		}
		out[r] = set
	}
	return out
}

// isOwner is used where the profile lookup can be skipped entirely.
func isOwner(role user.Role) bool {
	return access.PolicyFor(role).Bypass
}
