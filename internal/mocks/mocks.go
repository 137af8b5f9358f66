package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/avatarctic/herdbook/go/internal/core/domain/access"
	"github.com/avatarctic/herdbook/go/internal/core/domain/audit"
	"github.com/avatarctic/herdbook/go/internal/core/domain/auth"
	"github.com/avatarctic/herdbook/go/internal/core/domain/tenant"
	"github.com/avatarctic/herdbook/go/internal/core/domain/user"
	"github.com/avatarctic/herdbook/go/internal/core/ports"
	"github.com/google/uuid"
)

// ProfileRepositoryMock is a lightweight mock for ProfileRepository
type ProfileRepositoryMock struct {
	ListFn     func(ctx context.Context, orgID uuid.UUID) ([]*access.AccessProfile, error)
	GetByIDFn  func(ctx context.Context, orgID, id uuid.UUID) (*access.AccessProfile, error)
	CreateFn   func(ctx context.Context, p *access.AccessProfile) error
	UpdateFn   func(ctx context.Context, orgID, id uuid.UUID, patch access.ProfilePatch) (*access.AccessProfile, bool, error)
	DeleteFn   func(ctx context.Context, orgID, id uuid.UUID, reassignTo *uuid.UUID) ([]uuid.UUID, error)
	BindUserFn func(ctx context.Context, orgID, userID, profileID uuid.UUID) error
}

func (m *ProfileRepositoryMock) List(ctx context.Context, orgID uuid.UUID) ([]*access.AccessProfile, error) {
	if m.ListFn != nil {
		return m.ListFn(ctx, orgID)
	}
	return []*access.AccessProfile{}, nil
}
func (m *ProfileRepositoryMock) GetByID(ctx context.Context, orgID, id uuid.UUID) (*access.AccessProfile, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, orgID, id)
	}
	return nil, ports.NewNotFoundError("access profile not found")
}
func (m *ProfileRepositoryMock) Create(ctx context.Context, p *access.AccessProfile) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, p)
	}
	return nil
}
func (m *ProfileRepositoryMock) Update(ctx context.Context, orgID, id uuid.UUID, patch access.ProfilePatch) (*access.AccessProfile, bool, error) {
	if m.UpdateFn != nil {
		return m.UpdateFn(ctx, orgID, id, patch)
	}
	return nil, false, ports.NewNotFoundError("access profile not found")
}
func (m *ProfileRepositoryMock) Delete(ctx context.Context, orgID, id uuid.UUID, reassignTo *uuid.UUID) ([]uuid.UUID, error) {
	if m.DeleteFn != nil {
		return m.DeleteFn(ctx, orgID, id, reassignTo)
	}
	return nil, nil
}
func (m *ProfileRepositoryMock) BindUser(ctx context.Context, orgID, userID, profileID uuid.UUID) error {
	if m.BindUserFn != nil {
		return m.BindUserFn(ctx, orgID, userID, profileID)
	}
	return nil
}

// UserRepositoryMock
type UserRepositoryMock struct {
	GetByIDFn func(ctx context.Context, id uuid.UUID) (*user.User, error)
}

func (m *UserRepositoryMock) GetByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, id)
	}
	return nil, ports.NewNotFoundError("user not found")
}

// TenantRepositoryMock
type TenantRepositoryMock struct {
	GetByIDFn func(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error)
}

func (m *TenantRepositoryMock) GetByID(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, id)
	}
	return nil, fmt.Errorf("tenant not found")
}

// SessionRepositoryMock keeps sessions in memory unless a func field overrides it.
type SessionRepositoryMock struct {
	mu       sync.Mutex
	Sessions map[string]*auth.Session

	StoreFn  func(ctx context.Context, s *auth.Session, ttl time.Duration) error
	GetFn    func(ctx context.Context, sessionID string) (*auth.Session, error)
	TouchFn  func(ctx context.Context, sessionID string, ipAddress, userAgent string, ttl time.Duration) error
	DeleteFn func(ctx context.Context, sessionID string) error
}

func (m *SessionRepositoryMock) Store(ctx context.Context, s *auth.Session, ttl time.Duration) error {
	if m.StoreFn != nil {
		return m.StoreFn(ctx, s, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Sessions == nil {
		m.Sessions = map[string]*auth.Session{}
	}
	cp := *s
	m.Sessions[s.ID] = &cp
	return nil
}
func (m *SessionRepositoryMock) Get(ctx context.Context, sessionID string) (*auth.Session, error) {
	if m.GetFn != nil {
		return m.GetFn(ctx, sessionID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.Sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session not found")
	}
	cp := *s
	return &cp, nil
}
func (m *SessionRepositoryMock) Touch(ctx context.Context, sessionID string, ipAddress, userAgent string, ttl time.Duration) error {
	if m.TouchFn != nil {
		return m.TouchFn(ctx, sessionID, ipAddress, userAgent, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.Sessions[sessionID]
	if !ok {
		return fmt.Errorf("session not found")
	}
	s.LastActivity = time.Now()
	s.IPAddress = ipAddress
	s.UserAgent = userAgent
	return nil
}
func (m *SessionRepositoryMock) Delete(ctx context.Context, sessionID string) error {
	if m.DeleteFn != nil {
		return m.DeleteFn(ctx, sessionID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Sessions, sessionID)
	return nil
}

// SessionServiceMock
type SessionServiceMock struct {
	ResolveSessionFn func(ctx context.Context, token string, ipAddress, userAgent string) (*auth.Identity, *auth.SessionRefresh, error)
	IssueSessionFn   func(ctx context.Context, u *user.User, ipAddress, userAgent string) (*auth.SessionRefresh, error)
	RevokeSessionFn  func(ctx context.Context, sessionID string) error
}

func (m *SessionServiceMock) ResolveSession(ctx context.Context, token string, ipAddress, userAgent string) (*auth.Identity, *auth.SessionRefresh, error) {
	if m.ResolveSessionFn != nil {
		return m.ResolveSessionFn(ctx, token, ipAddress, userAgent)
	}
	return nil, nil, ports.NewAuthenticationError("invalid session", nil)
}
func (m *SessionServiceMock) IssueSession(ctx context.Context, u *user.User, ipAddress, userAgent string) (*auth.SessionRefresh, error) {
	if m.IssueSessionFn != nil {
		return m.IssueSessionFn(ctx, u, ipAddress, userAgent)
	}
	return nil, fmt.Errorf("not implemented")
}
func (m *SessionServiceMock) RevokeSession(ctx context.Context, sessionID string) error {
	if m.RevokeSessionFn != nil {
		return m.RevokeSessionFn(ctx, sessionID)
	}
	return nil
}

// ProfileServiceMock
type ProfileServiceMock struct {
	ListProfilesFn  func(ctx context.Context, actor access.Principal) ([]*access.AccessProfile, error)
	GetProfileFn    func(ctx context.Context, actor access.Principal, id uuid.UUID) (*access.AccessProfile, error)
	CreateProfileFn func(ctx context.Context, actor access.Principal, req *access.CreateProfileRequest) (*access.AccessProfile, error)
	UpdateProfileFn func(ctx context.Context, actor access.Principal, id uuid.UUID, req *access.UpdateProfileRequest) (*access.AccessProfile, error)
	DeleteProfileFn func(ctx context.Context, actor access.Principal, id uuid.UUID, reassignTo *uuid.UUID) error
	BindUserFn      func(ctx context.Context, actor access.Principal, userID, profileID uuid.UUID) error
}

func (m *ProfileServiceMock) ListProfiles(ctx context.Context, actor access.Principal) ([]*access.AccessProfile, error) {
	if m.ListProfilesFn != nil {
		return m.ListProfilesFn(ctx, actor)
	}
	return []*access.AccessProfile{}, nil
}
func (m *ProfileServiceMock) GetProfile(ctx context.Context, actor access.Principal, id uuid.UUID) (*access.AccessProfile, error) {
	if m.GetProfileFn != nil {
		return m.GetProfileFn(ctx, actor, id)
	}
	return nil, ports.NewNotFoundError("access profile not found")
}
func (m *ProfileServiceMock) CreateProfile(ctx context.Context, actor access.Principal, req *access.CreateProfileRequest) (*access.AccessProfile, error) {
	if m.CreateProfileFn != nil {
		return m.CreateProfileFn(ctx, actor, req)
	}
	return nil, fmt.Errorf("not implemented")
}
func (m *ProfileServiceMock) UpdateProfile(ctx context.Context, actor access.Principal, id uuid.UUID, req *access.UpdateProfileRequest) (*access.AccessProfile, error) {
	if m.UpdateProfileFn != nil {
		return m.UpdateProfileFn(ctx, actor, id, req)
	}
	return nil, fmt.Errorf("not implemented")
}
func (m *ProfileServiceMock) DeleteProfile(ctx context.Context, actor access.Principal, id uuid.UUID, reassignTo *uuid.UUID) error {
	if m.DeleteProfileFn != nil {
		return m.DeleteProfileFn(ctx, actor, id, reassignTo)
	}
	return nil
}
func (m *ProfileServiceMock) BindUser(ctx context.Context, actor access.Principal, userID, profileID uuid.UUID) error {
	if m.BindUserFn != nil {
		return m.BindUserFn(ctx, actor, userID, profileID)
	}
	return nil
}

// PrincipalLoaderMock returns the identity with Profile unless LoadFn is set.
type PrincipalLoaderMock struct {
	Profile *access.AccessProfile
	LoadFn  func(ctx context.Context, identity auth.Identity) (*access.Principal, error)
	Calls   int
}

func (m *PrincipalLoaderMock) Load(ctx context.Context, identity auth.Identity) (*access.Principal, error) {
	m.Calls++
	if m.LoadFn != nil {
		return m.LoadFn(ctx, identity)
	}
	return &access.Principal{Identity: identity, Profile: m.Profile}, nil
}

// AuditHookMock records every event it receives.
type AuditHookMock struct {
	mu        sync.Mutex
	Decisions []*audit.DecisionEvent
	Changes   []*audit.ProfileChangeEvent
}

func (m *AuditHookMock) RecordDecision(ctx context.Context, ev *audit.DecisionEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Decisions = append(m.Decisions, ev)
}
func (m *AuditHookMock) RecordProfileChange(ctx context.Context, ev *audit.ProfileChangeEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Changes = append(m.Changes, ev)
}

// RateLimiterServiceMock
type RateLimiterServiceMock struct {
	AllowFn func(ctx context.Context, orgID uuid.UUID) (bool, int, int, time.Time, error)
}

func (m *RateLimiterServiceMock) Allow(ctx context.Context, orgID uuid.UUID) (bool, int, int, time.Time, error) {
	if m.AllowFn != nil {
		return m.AllowFn(ctx, orgID)
	}
	return true, 100, 100, time.Now().Add(time.Minute), nil
}

// RateLimitRepositoryMock
type RateLimitRepositoryMock struct {
	IncrementWindowFn func(ctx context.Context, orgID uuid.UUID, window time.Duration, keyPrefix string, ttl time.Duration) (int, time.Time, error)
}

func (m *RateLimitRepositoryMock) IncrementWindow(ctx context.Context, orgID uuid.UUID, window time.Duration, keyPrefix string, ttl time.Duration) (int, time.Time, error) {
	if m.IncrementWindowFn != nil {
		return m.IncrementWindowFn(ctx, orgID, window, keyPrefix, ttl)
	}
	return 1, time.Now().Truncate(window), nil
}

// InvalidationBusMock delivers published keys to subscribers synchronously.
type InvalidationBusMock struct {
	mu        sync.Mutex
	Published []string
	handlers  []func(string)
}

func (m *InvalidationBusMock) Publish(ctx context.Context, key string) error {
	m.mu.Lock()
	m.Published = append(m.Published, key)
	hs := append([]func(string){}, m.handlers...)
	m.mu.Unlock()
	for _, h := range hs {
		h(key)
	}
	return nil
}
func (m *InvalidationBusMock) Subscribe(ctx context.Context, onEvict func(key string)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, onEvict)
	return nil
}

var (
	_ ports.ProfileRepository   = (*ProfileRepositoryMock)(nil)
	_ ports.UserRepository      = (*UserRepositoryMock)(nil)
	_ ports.TenantRepository    = (*TenantRepositoryMock)(nil)
	_ ports.SessionRepository   = (*SessionRepositoryMock)(nil)
	_ ports.SessionService      = (*SessionServiceMock)(nil)
	_ ports.ProfileService      = (*ProfileServiceMock)(nil)
	_ ports.PrincipalLoader     = (*PrincipalLoaderMock)(nil)
	_ ports.AuditHook           = (*AuditHookMock)(nil)
	_ ports.RateLimiterService  = (*RateLimiterServiceMock)(nil)
	_ ports.RateLimitRepository = (*RateLimitRepositoryMock)(nil)
	_ ports.InvalidationBus     = (*InvalidationBusMock)(nil)
)
