package services_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	impl "github.com/avatarctic/herdbook/go/internal/application/services"
	"github.com/avatarctic/herdbook/go/internal/core/domain/tenant"
	"github.com/avatarctic/herdbook/go/internal/mocks"
)

func TestRateLimiter_UsesTenantAllowance(t *testing.T) {
	count := 0
	repo := &mocks.RateLimitRepositoryMock{IncrementWindowFn: func(ctx context.Context, orgID uuid.UUID, window time.Duration, prefix string, ttl time.Duration) (int, time.Time, error) {
		count++
		assert.Equal(t, "ratelimit:org", prefix)
		return count, time.Now().Truncate(window), nil
	}}
	tenants := &mocks.TenantRepositoryMock{GetByIDFn: func(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error) {
		return &tenant.Tenant{ID: id, RequestsPerMinute: 2}, nil
	}}
	rl := impl.NewRateLimiterService(repo, tenants, &impl.RateLimiterConfig{BurstMultiplier: 1}, nil)
	org := uuid.New()

	allowed, remaining, limit, _, err := rl.Allow(context.Background(), org)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 1, remaining)
	assert.Equal(t, 2, limit)

	allowed, _, _, _, _ = rl.Allow(context.Background(), org)
	assert.True(t, allowed)
	allowed, remaining, _, _, _ = rl.Allow(context.Background(), org)
	assert.False(t, allowed)
	assert.Equal(t, 0, remaining)
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	repo := &mocks.RateLimitRepositoryMock{IncrementWindowFn: func(ctx context.Context, orgID uuid.UUID, window time.Duration, prefix string, ttl time.Duration) (int, time.Time, error) {
		return 0, time.Now(), fmt.Errorf("redis down")
	}}
	rl := impl.NewRateLimiterService(repo, nil, nil, nil)
	allowed, _, limit, _, err := rl.Allow(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 120, limit)
}
