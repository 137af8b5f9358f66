package access

import "github.com/avatarctic/herdbook/go/internal/core/domain/auth"

// Principal is a verified identity together with its already-loaded profile.
// Profile is nil for owners, for users without a binding, and when the bound
// profile could not be found inside the identity's org.
type Principal struct {
	Identity auth.Identity
	Profile  *AccessProfile
}
