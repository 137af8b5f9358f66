package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	impl "github.com/avatarctic/herdbook/go/internal/application/services"
	"github.com/avatarctic/herdbook/go/internal/core/domain/access"
	"github.com/avatarctic/herdbook/go/internal/core/domain/audit"
	"github.com/avatarctic/herdbook/go/internal/core/domain/auth"
	"github.com/avatarctic/herdbook/go/internal/core/domain/user"
	"github.com/avatarctic/herdbook/go/internal/core/ports"
	"github.com/avatarctic/herdbook/go/internal/mocks"
)

func ownerPrincipal() access.Principal {
	return access.Principal{Identity: auth.Identity{UserID: uuid.New(), OrgID: uuid.New(), Role: user.RoleOwner, ExpiresAt: time.Now().Add(time.Hour)}}
}

func newProfileService(repo ports.ProfileRepository, hook ports.AuditHook) ports.ProfileService {
	return impl.NewProfileService(repo, impl.NewAuthorizationService(), hook, nil)
}

func TestProfileService_GatedOnUsersResource(t *testing.T) {
	repo := &mocks.ProfileRepositoryMock{
		ListFn: func(ctx context.Context, orgID uuid.UUID) ([]*access.AccessProfile, error) {
			t.Fatal("store must not be touched when denied")
			return nil, nil
		},
	}
	svc := newProfileService(repo, nil)

	viewer := boundPrincipal(user.RoleStaff, access.AccessControl{Resource: access.ResourceUsers, CanView: true})
	_, err := svc.CreateProfile(context.Background(), viewer, &access.CreateProfileRequest{Name: "x"})
	require.Error(t, err)
	assert.Equal(t, ports.KindAuthorization, ports.KindOf(err))
	reason, ok := ports.DenyReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, access.ReasonVerbNotGranted, reason)

	noGrant := boundPrincipal(user.RoleAdmin)
	_, err = svc.ListProfiles(context.Background(), noGrant)
	assert.Equal(t, ports.KindAuthorization, ports.KindOf(err))

	staffFull := boundPrincipal(user.RoleStaff, access.AccessControl{Resource: access.ResourceUsers, CanView: true, CanEdit: true, CanDelete: true})
	err = svc.DeleteProfile(context.Background(), staffFull, uuid.New(), nil)
	reason, _ = ports.DenyReasonOf(err)
	assert.Equal(t, access.ReasonRoleCeiling, reason)
}

func TestProfileService_CreateScopesToActorOrg(t *testing.T) {
	actor := ownerPrincipal()
	var stored *access.AccessProfile
	repo := &mocks.ProfileRepositoryMock{CreateFn: func(ctx context.Context, p *access.AccessProfile) error {
		stored = p
		return nil
	}}
	hook := &mocks.AuditHookMock{}
	svc := newProfileService(repo, hook)

	prof, err := svc.CreateProfile(context.Background(), actor, &access.CreateProfileRequest{
		Name: "  Staff - Basic ",
		AccessControls: []access.AccessControl{
			{Resource: access.ResourceSales, CanView: true},
			{Resource: access.ResourceFeeding, CanView: true, CanEdit: true},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, actor.Identity.OrgID, prof.OrgID)
	assert.Equal(t, "Staff - Basic", prof.Name)
	assert.NotEqual(t, uuid.Nil, prof.ID)
	assert.Equal(t, access.ResourceFeeding, prof.AccessControls[0].Resource, "grants are kept in registry order")

	require.Len(t, hook.Changes, 1)
	assert.Equal(t, audit.ActionProfileCreate, hook.Changes[0].Action)
	assert.Equal(t, actor.Identity.UserID, hook.Changes[0].ActorID)
}

func TestProfileService_CreateValidation(t *testing.T) {
	svc := newProfileService(&mocks.ProfileRepositoryMock{}, nil)
	actor := ownerPrincipal()

	_, err := svc.CreateProfile(context.Background(), actor, &access.CreateProfileRequest{Name: "   "})
	assert.True(t, ports.HasCode(err, ports.CodeInvalidRequest))

	_, err = svc.CreateProfile(context.Background(), actor, &access.CreateProfileRequest{
		Name:           "bad",
		AccessControls: []access.AccessControl{{Resource: access.ResourceAnimals, CanEdit: true}},
	})
	assert.True(t, ports.HasCode(err, ports.CodeInvalidGrant))

	_, err = svc.CreateProfile(context.Background(), actor, &access.CreateProfileRequest{
		Name:           "bad",
		AccessControls: []access.AccessControl{{Resource: "reports", CanView: true}},
	})
	assert.True(t, ports.HasCode(err, ports.CodeInvalidGrant))
}

func TestProfileService_DuplicateNamePassesThrough(t *testing.T) {
	repo := &mocks.ProfileRepositoryMock{CreateFn: func(ctx context.Context, p *access.AccessProfile) error {
		return ports.NewValidationError(ports.CodeDuplicateName, "profile name already exists")
	}}
	_, err := newProfileService(repo, nil).CreateProfile(context.Background(), ownerPrincipal(), &access.CreateProfileRequest{Name: "Staff"})
	assert.True(t, ports.HasCode(err, ports.CodeDuplicateName))
}

func TestProfileService_RetriesTransientOnce(t *testing.T) {
	calls := 0
	repo := &mocks.ProfileRepositoryMock{CreateFn: func(ctx context.Context, p *access.AccessProfile) error {
		calls++
		if calls == 1 {
			return ports.NewStoreError("serialization failure", nil, true)
		}
		return nil
	}}
	_, err := newProfileService(repo, nil).CreateProfile(context.Background(), ownerPrincipal(), &access.CreateProfileRequest{Name: "Staff"})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	calls = 0
	repo.CreateFn = func(ctx context.Context, p *access.AccessProfile) error {
		calls++
		return ports.NewStoreError("serialization failure", nil, true)
	}
	_, err = newProfileService(repo, nil).CreateProfile(context.Background(), ownerPrincipal(), &access.CreateProfileRequest{Name: "Staff"})
	require.Error(t, err)
	assert.Equal(t, ports.KindStore, ports.KindOf(err))
	assert.Equal(t, 2, calls, "retried exactly once")

	calls = 0
	repo.CreateFn = func(ctx context.Context, p *access.AccessProfile) error {
		calls++
		return ports.NewStoreError("disk full", nil, false)
	}
	_, err = newProfileService(repo, nil).CreateProfile(context.Background(), ownerPrincipal(), &access.CreateProfileRequest{Name: "Staff"})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "permanent errors are not retried")
}

// patchingStore merges patches into stored the way the profile store does.
func patchingStore(stored *access.AccessProfile, patches *[]access.ProfilePatch) *mocks.ProfileRepositoryMock {
	return &mocks.ProfileRepositoryMock{
		GetByIDFn: func(ctx context.Context, orgID, id uuid.UUID) (*access.AccessProfile, error) {
			return nil, ports.NewStoreError("update read the profile outside the write", nil, false)
		},
		UpdateFn: func(ctx context.Context, orgID, id uuid.UUID, patch access.ProfilePatch) (*access.AccessProfile, bool, error) {
			if orgID != stored.OrgID || id != stored.ID {
				return nil, false, ports.NewNotFoundError("access profile not found")
			}
			if patches != nil {
				*patches = append(*patches, patch)
			}
			next := patch.Apply(stored)
			if stored.SameContent(next) {
				return stored, false, nil
			}
			*stored = *next
			return next, true, nil
		},
	}
}

func TestProfileService_UpdateIsIdempotent(t *testing.T) {
	actor := ownerPrincipal()
	stored := &access.AccessProfile{
		ID: uuid.New(), OrgID: actor.Identity.OrgID, Name: "Staff",
		AccessControls: []access.AccessControl{{Resource: access.ResourceAnimals, CanView: true}},
	}
	hook := &mocks.AuditHookMock{}
	svc := newProfileService(patchingStore(stored, nil), hook)
	req := &access.UpdateProfileRequest{AccessControls: []access.AccessControl{
		{Resource: access.ResourceAnimals, CanView: true, CanEdit: true},
	}}

	first, err := svc.UpdateProfile(context.Background(), actor, stored.ID, req)
	require.NoError(t, err)
	assert.True(t, first.AccessControls[0].CanEdit)
	second, err := svc.UpdateProfile(context.Background(), actor, stored.ID, req)
	require.NoError(t, err)
	assert.Equal(t, first.AccessControls, second.AccessControls)
	assert.Len(t, hook.Changes, 1, "a repeated update records no change")
}

func TestProfileService_UpdateNilGrantsKeepsExisting(t *testing.T) {
	actor := ownerPrincipal()
	stored := &access.AccessProfile{
		ID: uuid.New(), OrgID: actor.Identity.OrgID, Name: "Old",
		AccessControls: []access.AccessControl{{Resource: access.ResourceSales, CanView: true}},
	}
	var patches []access.ProfilePatch
	svc := newProfileService(patchingStore(stored, &patches), nil)

	name := "  New "
	got, err := svc.UpdateProfile(context.Background(), actor, stored.ID, &access.UpdateProfileRequest{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "New", got.Name)
	assert.Len(t, got.AccessControls, 1)
	require.Len(t, patches, 1)
	assert.False(t, patches[0].ReplaceGrants, "a rename carries no grants")
	assert.Nil(t, patches[0].AccessControls)

	got, err = svc.UpdateProfile(context.Background(), actor, stored.ID, &access.UpdateProfileRequest{AccessControls: []access.AccessControl{}})
	require.NoError(t, err)
	assert.Empty(t, got.AccessControls)
	assert.True(t, patches[1].ReplaceGrants)
}

func TestProfileService_RenameKeepsGrantsRevokedMeanwhile(t *testing.T) {
	actor := ownerPrincipal()
	stored := &access.AccessProfile{
		ID: uuid.New(), OrgID: actor.Identity.OrgID, Name: "Feeders",
		AccessControls: []access.AccessControl{{Resource: access.ResourceFeeding, CanView: true, CanEdit: true}},
	}
	svc := newProfileService(patchingStore(stored, nil), nil)

	_, err := svc.UpdateProfile(context.Background(), actor, stored.ID, &access.UpdateProfileRequest{
		AccessControls: []access.AccessControl{{Resource: access.ResourceFeeding, CanView: true}},
	})
	require.NoError(t, err)
	name := "Feeding crew"
	got, err := svc.UpdateProfile(context.Background(), actor, stored.ID, &access.UpdateProfileRequest{Name: &name})
	require.NoError(t, err)

	assert.Equal(t, "Feeding crew", stored.Name)
	assert.False(t, stored.AccessControls[0].CanEdit)
	assert.False(t, got.AccessControls[0].CanEdit)
}

func TestProfileService_UpdateRetriesTransientOnce(t *testing.T) {
	calls := 0
	repo := &mocks.ProfileRepositoryMock{UpdateFn: func(ctx context.Context, orgID, id uuid.UUID, patch access.ProfilePatch) (*access.AccessProfile, bool, error) {
		calls++
		if calls == 1 {
			return nil, false, ports.NewStoreError("serialization failure", nil, true)
		}
		return &access.AccessProfile{ID: id, OrgID: orgID, Name: *patch.Name}, true, nil
	}}
	name := "Night shift"
	got, err := newProfileService(repo, nil).UpdateProfile(context.Background(), ownerPrincipal(), uuid.New(), &access.UpdateProfileRequest{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Night shift", got.Name)
	assert.Equal(t, 2, calls)
}

func TestProfileService_DeleteInUse(t *testing.T) {
	repo := &mocks.ProfileRepositoryMock{DeleteFn: func(ctx context.Context, orgID, id uuid.UUID, reassignTo *uuid.UUID) ([]uuid.UUID, error) {
		assert.Nil(t, reassignTo)
		return nil, ports.NewValidationError(ports.CodeInUse, "profile is bound to 1 user(s)")
	}}
	hook := &mocks.AuditHookMock{}
	err := newProfileService(repo, hook).DeleteProfile(context.Background(), ownerPrincipal(), uuid.New(), nil)
	assert.True(t, ports.HasCode(err, ports.CodeInUse))
	assert.Empty(t, hook.Changes)
}

func TestProfileService_DeleteWithReassignment(t *testing.T) {
	actor := ownerPrincipal()
	id, target := uuid.New(), uuid.New()
	repo := &mocks.ProfileRepositoryMock{DeleteFn: func(ctx context.Context, orgID, pid uuid.UUID, reassignTo *uuid.UUID) ([]uuid.UUID, error) {
		assert.Equal(t, actor.Identity.OrgID, orgID)
		require.NotNil(t, reassignTo)
		assert.Equal(t, target, *reassignTo)
		return []uuid.UUID{uuid.New()}, nil
	}}
	hook := &mocks.AuditHookMock{}
	require.NoError(t, newProfileService(repo, hook).DeleteProfile(context.Background(), actor, id, &target))
	require.Len(t, hook.Changes, 1)
	assert.Equal(t, audit.ActionProfileDelete, hook.Changes[0].Action)
	assert.Equal(t, &target, hook.Changes[0].ReassignTo)

	err := newProfileService(repo, hook).DeleteProfile(context.Background(), actor, id, &id)
	assert.True(t, ports.HasCode(err, ports.CodeInvalidReassignment))
}

func TestProfileService_BindUser(t *testing.T) {
	actor := ownerPrincipal()
	userID, profileID := uuid.New(), uuid.New()
	var gotOrg uuid.UUID
	repo := &mocks.ProfileRepositoryMock{BindUserFn: func(ctx context.Context, orgID, uid, pid uuid.UUID) error {
		gotOrg = orgID
		return nil
	}}
	hook := &mocks.AuditHookMock{}
	require.NoError(t, newProfileService(repo, hook).BindUser(context.Background(), actor, userID, profileID))
	assert.Equal(t, actor.Identity.OrgID, gotOrg)
	require.Len(t, hook.Changes, 1)
	assert.Equal(t, &userID, hook.Changes[0].UserID)

	err := newProfileService(repo, hook).BindUser(context.Background(), actor, uuid.Nil, profileID)
	assert.True(t, ports.HasCode(err, ports.CodeInvalidRequest))
}

func TestProfileService_CrossTenantLookupIsNotFound(t *testing.T) {
	owned := uuid.New()
	repo := &mocks.ProfileRepositoryMock{GetByIDFn: func(ctx context.Context, orgID, id uuid.UUID) (*access.AccessProfile, error) {
		if orgID != owned {
			return nil, ports.NewNotFoundError("access profile not found")
		}
		return &access.AccessProfile{ID: id, OrgID: orgID}, nil
	}}
	_, err := newProfileService(repo, nil).GetProfile(context.Background(), ownerPrincipal(), uuid.New())
	assert.Equal(t, ports.KindNotFound, ports.KindOf(err))
}
