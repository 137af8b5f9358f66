package repositories_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avatarctic/herdbook/go/internal/core/domain/access"
	"github.com/avatarctic/herdbook/go/internal/core/domain/user"
	"github.com/avatarctic/herdbook/go/internal/core/ports"
	"github.com/avatarctic/herdbook/go/internal/infrastructure/redis"
	"github.com/avatarctic/herdbook/go/internal/infrastructure/repositories"
	"github.com/avatarctic/herdbook/go/internal/mocks"
)

type countingStore struct {
	mocks.ProfileRepositoryMock
	profiles map[uuid.UUID]*access.AccessProfile
	gets     int
}

func newCountingStore() *countingStore {
	s := &countingStore{profiles: map[uuid.UUID]*access.AccessProfile{}}
	s.GetByIDFn = func(ctx context.Context, orgID, id uuid.UUID) (*access.AccessProfile, error) {
		s.gets++
		p, ok := s.profiles[id]
		if !ok || p.OrgID != orgID {
			return nil, ports.NewNotFoundError("access profile not found")
		}
		cp := *p
		return &cp, nil
	}
	s.UpdateFn = func(ctx context.Context, orgID, id uuid.UUID, patch access.ProfilePatch) (*access.AccessProfile, bool, error) {
		stored, ok := s.profiles[id]
		if !ok || stored.OrgID != orgID {
			return nil, false, ports.NewNotFoundError("access profile not found")
		}
		next := patch.Apply(stored)
		if stored.SameContent(next) {
			return stored, false, nil
		}
		s.profiles[id] = next
		return next, true, nil
	}
	return s
}

func newRedisCache(t *testing.T) (*miniredis.Miniredis, *redis.RedisCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, redis.NewRedisCache(client, "test")
}

func newCachingRepo(store ports.ProfileRepository, cache ports.Cache, bus ports.InvalidationBus, lookups *prometheus.CounterVec) *repositories.CachingProfileRepository {
	return repositories.NewCachingProfileRepository(store, cache, bus,
		repositories.ProfileCacheConfig{LocalSize: 16, LocalTTL: time.Minute, RemoteTTL: time.Minute}, lookups, nil)
}

func seedProfile(store *countingStore, grants ...access.AccessControl) *access.AccessProfile {
	p := &access.AccessProfile{ID: uuid.New(), OrgID: uuid.New(), Name: "Staff", AccessControls: grants}
	store.profiles[p.ID] = p
	return p
}

func TestCachingProfileRepository_ServesRepeatsFromCache(t *testing.T) {
	store := newCountingStore()
	p := seedProfile(store, access.AccessControl{Resource: access.ResourceAnimals, CanView: true})
	_, cache := newRedisCache(t)
	lookups := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_profile_lookups"}, []string{"layer", "result"})
	repo := newCachingRepo(store, cache, &mocks.InvalidationBusMock{}, lookups)

	for i := 0; i < 3; i++ {
		got, err := repo.GetByID(context.Background(), p.OrgID, p.ID)
		require.NoError(t, err)
		assert.Equal(t, p.Name, got.Name)
	}
	assert.Equal(t, 1, store.gets)
	assert.Equal(t, 2.0, testutil.ToFloat64(lookups.WithLabelValues("local", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(lookups.WithLabelValues("store", "hit")))
}

func TestCachingProfileRepository_CallerMutationDoesNotLeak(t *testing.T) {
	store := newCountingStore()
	p := seedProfile(store, access.AccessControl{Resource: access.ResourceAnimals, CanView: true})
	_, cache := newRedisCache(t)
	repo := newCachingRepo(store, cache, nil, nil)

	got, err := repo.GetByID(context.Background(), p.OrgID, p.ID)
	require.NoError(t, err)
	got.AccessControls[0].CanDelete = true

	again, err := repo.GetByID(context.Background(), p.OrgID, p.ID)
	require.NoError(t, err)
	assert.False(t, again.AccessControls[0].CanDelete)
}

func TestCachingProfileRepository_OtherOrgMisses(t *testing.T) {
	store := newCountingStore()
	p := seedProfile(store)
	_, cache := newRedisCache(t)
	repo := newCachingRepo(store, cache, nil, nil)

	_, err := repo.GetByID(context.Background(), p.OrgID, p.ID)
	require.NoError(t, err)
	_, err = repo.GetByID(context.Background(), uuid.New(), p.ID)
	assert.Equal(t, ports.KindNotFound, ports.KindOf(err))
}

func TestCachingProfileRepository_LoadOutlivesCancelledCaller(t *testing.T) {
	store := newCountingStore()
	p := seedProfile(store, access.AccessControl{Resource: access.ResourceAnimals, CanView: true})
	load := store.GetByIDFn
	var hasDeadline bool
	store.GetByIDFn = func(ctx context.Context, orgID, id uuid.UUID) (*access.AccessProfile, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		_, hasDeadline = ctx.Deadline()
		return load(ctx, orgID, id)
	}
	_, cache := newRedisCache(t)
	repo := newCachingRepo(store, cache, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got, err := repo.GetByID(ctx, p.OrgID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Name, got.Name)
	assert.True(t, hasDeadline)

	_, err = repo.GetByID(context.Background(), p.OrgID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, store.gets)
}

func TestCachingProfileRepository_UpdateInvalidatesEveryInstance(t *testing.T) {
	store := newCountingStore()
	p := seedProfile(store, access.AccessControl{Resource: access.ResourceAnimals, CanView: true, CanEdit: true})
	mr, cache := newRedisCache(t)
	bus := &mocks.InvalidationBusMock{}
	ctx := context.Background()

	reader := newCachingRepo(store, cache, bus, nil)
	writer := newCachingRepo(store, cache, bus, nil)
	require.NoError(t, reader.Listen(ctx))

	_, err := reader.GetByID(ctx, p.OrgID, p.ID)
	require.NoError(t, err)
	key := "test:" + repositories.ProfileCacheKey(p.OrgID, p.ID)
	assert.True(t, mr.Exists(key))

	_, changed, err := writer.Update(ctx, p.OrgID, p.ID, access.ProfilePatch{
		AccessControls: []access.AccessControl{{Resource: access.ResourceAnimals, CanView: true}},
		ReplaceGrants:  true,
	})
	require.NoError(t, err)
	require.True(t, changed)
	assert.False(t, mr.Exists(key))
	assert.Equal(t, []string{repositories.ProfileCacheKey(p.OrgID, p.ID)}, bus.Published)

	got, err := reader.GetByID(ctx, p.OrgID, p.ID)
	require.NoError(t, err)
	assert.False(t, got.AccessControls[0].CanEdit, "revoked grant is not served from the reader's local cache")
	assert.Equal(t, 2, store.gets)
}

func TestCachingProfileRepository_NoopUpdateKeepsCache(t *testing.T) {
	store := newCountingStore()
	p := seedProfile(store, access.AccessControl{Resource: access.ResourceAnimals, CanView: true})
	_, cache := newRedisCache(t)
	bus := &mocks.InvalidationBusMock{}
	repo := newCachingRepo(store, cache, bus, nil)

	name := p.Name
	_, changed, err := repo.Update(context.Background(), p.OrgID, p.ID, access.ProfilePatch{Name: &name})
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Empty(t, bus.Published)
}

func TestCachingProfileRepository_StaleInstanceRenameKeepsRevocation(t *testing.T) {
	store := newCountingStore()
	p := seedProfile(store, access.AccessControl{Resource: access.ResourceFeeding, CanView: true, CanEdit: true})
	_, cache := newRedisCache(t)
	ctx := context.Background()

	// No bus: the second instance keeps its local copy after the revocation.
	first := newCachingRepo(store, cache, nil, nil)
	second := newCachingRepo(store, cache, nil, nil)
	warm, err := second.GetByID(ctx, p.OrgID, p.ID)
	require.NoError(t, err)
	require.True(t, warm.AccessControls[0].CanEdit)

	_, changed, err := first.Update(ctx, p.OrgID, p.ID, access.ProfilePatch{
		AccessControls: []access.AccessControl{{Resource: access.ResourceFeeding, CanView: true}},
		ReplaceGrants:  true,
	})
	require.NoError(t, err)
	require.True(t, changed)

	name := "Feeding crew"
	renamed, changed, err := second.Update(ctx, p.OrgID, p.ID, access.ProfilePatch{Name: &name})
	require.NoError(t, err)
	require.True(t, changed)

	stored := store.profiles[p.ID]
	assert.Equal(t, "Feeding crew", stored.Name)
	assert.Equal(t, []access.AccessControl{{Resource: access.ResourceFeeding, CanView: true}}, stored.AccessControls)
	assert.False(t, renamed.AccessControls[0].CanEdit)
}

func TestCachingProfileRepository_BindAndDeleteDropUserEntries(t *testing.T) {
	store := newCountingStore()
	p := seedProfile(store)
	mr, cache := newRedisCache(t)
	repo := newCachingRepo(store, cache, &mocks.InvalidationBusMock{}, nil)

	bound, moved := uuid.New(), uuid.New()
	users := repositories.NewCachingUserRepository(&mocks.UserRepositoryMock{GetByIDFn: func(ctx context.Context, id uuid.UUID) (*user.User, error) {
		return &user.User{ID: id, OrgID: p.OrgID, Role: user.RoleStaff, Status: user.StatusActive}, nil
	}}, cache, time.Minute)
	for _, id := range []uuid.UUID{bound, moved} {
		_, err := users.GetByID(context.Background(), id)
		require.NoError(t, err)
		assert.True(t, mr.Exists("test:user:id:"+id.String()))
	}

	require.NoError(t, repo.BindUser(context.Background(), p.OrgID, bound, p.ID))
	assert.False(t, mr.Exists("test:user:id:"+bound.String()))

	store.DeleteFn = func(ctx context.Context, orgID, id uuid.UUID, reassignTo *uuid.UUID) ([]uuid.UUID, error) {
		return []uuid.UUID{moved}, nil
	}
	target := uuid.New()
	_, err := repo.Delete(context.Background(), p.OrgID, p.ID, &target)
	require.NoError(t, err)
	assert.False(t, mr.Exists("test:user:id:"+moved.String()))
}

func TestCachingProfileRepository_RedisDownFallsBackToStore(t *testing.T) {
	store := newCountingStore()
	p := seedProfile(store)
	mr, cache := newRedisCache(t)
	mr.Close()
	repo := newCachingRepo(store, cache, nil, nil)

	got, err := repo.GetByID(context.Background(), p.OrgID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
}
