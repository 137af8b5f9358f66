package ports

import (
	"context"

	"github.com/avatarctic/herdbook/go/internal/core/domain/access"
	"github.com/google/uuid"
)

// ProfileRepository defines the interface for access profile data operations.
// Every method is scoped by org; a profile in another org is reported as not found.
// Writes are atomic: uniqueness and in-use checks happen inside the same transaction.
type ProfileRepository interface {
	List(ctx context.Context, orgID uuid.UUID) ([]*access.AccessProfile, error)
	GetByID(ctx context.Context, orgID, id uuid.UUID) (*access.AccessProfile, error)
	Create(ctx context.Context, p *access.AccessProfile) error
	// Update applies patch to the stored profile inside the write transaction and
	// returns the result. It reports changed=false and writes nothing when the
	// patched content matches what is stored.
	Update(ctx context.Context, orgID, id uuid.UUID, patch access.ProfilePatch) (p *access.AccessProfile, changed bool, err error)
	// Delete removes the profile. Users still bound to it are moved to reassignTo
	// when given; otherwise the delete fails with in_use.
	Delete(ctx context.Context, orgID, id uuid.UUID, reassignTo *uuid.UUID) (reassigned []uuid.UUID, err error)
	BindUser(ctx context.Context, orgID, userID, profileID uuid.UUID) error
}

// ProfileService is the profile administration surface. Every method gates
// itself through the authorization engine using the acting principal.
type ProfileService interface {
	ListProfiles(ctx context.Context, actor access.Principal) ([]*access.AccessProfile, error)
	GetProfile(ctx context.Context, actor access.Principal, id uuid.UUID) (*access.AccessProfile, error)
	CreateProfile(ctx context.Context, actor access.Principal, req *access.CreateProfileRequest) (*access.AccessProfile, error)
	UpdateProfile(ctx context.Context, actor access.Principal, id uuid.UUID, req *access.UpdateProfileRequest) (*access.AccessProfile, error)
	DeleteProfile(ctx context.Context, actor access.Principal, id uuid.UUID, reassignTo *uuid.UUID) error
	BindUser(ctx context.Context, actor access.Principal, userID, profileID uuid.UUID) error
}
