package services

import (
	"context"
	"errors"
	"time"

	"github.com/avatarctic/herdbook/go/internal/core/domain/access"
	"github.com/avatarctic/herdbook/go/internal/core/domain/audit"
	"github.com/avatarctic/herdbook/go/internal/core/ports"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/avatarctic/herdbook/go/internal/application/services"

// ProfileService implements ports.ProfileService. Profile administration is
// itself gated on the users resource.
type ProfileService struct {
	repo   ports.ProfileRepository
	engine ports.AuthorizationEngine
	audit  ports.AuditHook
	logger *logrus.Logger
	tracer trace.Tracer
	now    func() time.Time
}

func NewProfileService(repo ports.ProfileRepository, engine ports.AuthorizationEngine, auditHook ports.AuditHook, logger *logrus.Logger) ports.ProfileService {
	return &ProfileService{
		repo:   repo,
		engine: engine,
		audit:  auditHook,
		logger: logger,
		tracer: otel.Tracer(tracerName),
		now:    time.Now,
	}
}

func (s *ProfileService) ListProfiles(ctx context.Context, actor access.Principal) ([]*access.AccessProfile, error) {
	ctx, span := s.start(ctx, "profile.list", actor)
	defer span.End()

	if err := s.authorize(actor, access.VerbView); err != nil {
		return nil, spanError(span, err)
	}
	var profiles []*access.AccessProfile
	err := s.withRetry(ctx, "list", func() error {
		var err error
		profiles, err = s.repo.List(ctx, actor.Identity.OrgID)
		return err
	})
	if err != nil {
		return nil, spanError(span, err)
	}
	return profiles, nil
}

func (s *ProfileService) GetProfile(ctx context.Context, actor access.Principal, id uuid.UUID) (*access.AccessProfile, error) {
	ctx, span := s.start(ctx, "profile.get", actor, attribute.String("profile.id", id.String()))
	defer span.End()

	if err := s.authorize(actor, access.VerbView); err != nil {
		return nil, spanError(span, err)
	}
	var prof *access.AccessProfile
	err := s.withRetry(ctx, "get", func() error {
		var err error
		prof, err = s.repo.GetByID(ctx, actor.Identity.OrgID, id)
		return err
	})
	if err != nil {
		return nil, spanError(span, err)
	}
	return prof, nil
}

func (s *ProfileService) CreateProfile(ctx context.Context, actor access.Principal, req *access.CreateProfileRequest) (*access.AccessProfile, error) {
	ctx, span := s.start(ctx, "profile.create", actor)
	defer span.End()

	if err := s.authorize(actor, access.VerbEdit); err != nil {
		return nil, spanError(span, err)
	}
	if req == nil {
		return nil, spanError(span, ports.NewValidationError(ports.CodeInvalidRequest, "request body is required"))
	}
	name := access.NormalizeName(req.Name)
	if name == "" {
		return nil, spanError(span, ports.NewValidationError(ports.CodeInvalidRequest, "profile name is required"))
	}
	grants, err := normalizeGrants(req.AccessControls)
	if err != nil {
		return nil, spanError(span, err)
	}

	now := s.now().UTC()
	prof := &access.AccessProfile{
		ID:             uuid.New(),
		OrgID:          actor.Identity.OrgID,
		Name:           name,
		Description:    req.Description,
		AccessControls: grants,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.withRetry(ctx, "create", func() error { return s.repo.Create(ctx, prof) }); err != nil {
		s.logFailure("create", actor, prof.ID, err)
		return nil, spanError(span, err)
	}

	s.recordChange(ctx, actor, audit.ActionProfileCreate, prof.ID, func(ev *audit.ProfileChangeEvent) {
		ev.Details = map[string]any{"name": prof.Name, "grants": len(prof.AccessControls)}
	})
	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{"org_id": prof.OrgID, "profile_id": prof.ID, "name": prof.Name}).Info("access profile created")
	}
	return prof, nil
}

// UpdateProfile patches the profile. A nil AccessControls keeps the current
// grants; an empty, non-nil list clears them. The patch is merged with the
// stored row inside the write transaction, so fields the request omits are
// never written from a stale copy. Repeating an update is a no-op.
func (s *ProfileService) UpdateProfile(ctx context.Context, actor access.Principal, id uuid.UUID, req *access.UpdateProfileRequest) (*access.AccessProfile, error) {
	ctx, span := s.start(ctx, "profile.update", actor, attribute.String("profile.id", id.String()))
	defer span.End()

	if err := s.authorize(actor, access.VerbEdit); err != nil {
		return nil, spanError(span, err)
	}
	if req == nil {
		return nil, spanError(span, ports.NewValidationError(ports.CodeInvalidRequest, "request body is required"))
	}

	var grants []access.AccessControl
	if req.AccessControls != nil {
		var err error
		if grants, err = normalizeGrants(req.AccessControls); err != nil {
			return nil, spanError(span, err)
		}
	}
	var name *string
	if req.Name != nil {
		n := access.NormalizeName(*req.Name)
		if n == "" {
			return nil, spanError(span, ports.NewValidationError(ports.CodeInvalidRequest, "profile name cannot be empty"))
		}
		name = &n
	}

	patch := access.ProfilePatch{
		Name:           name,
		Description:    req.Description,
		AccessControls: grants,
		ReplaceGrants:  req.AccessControls != nil,
		UpdatedAt:      s.now().UTC(),
	}
	var (
		prof    *access.AccessProfile
		changed bool
	)
	err := s.withRetry(ctx, "update", func() error {
		var err error
		prof, changed, err = s.repo.Update(ctx, actor.Identity.OrgID, id, patch)
		return err
	})
	if err != nil {
		s.logFailure("update", actor, id, err)
		return nil, spanError(span, err)
	}
	span.SetAttributes(attribute.Bool("profile.changed", changed))

	if changed {
		s.recordChange(ctx, actor, audit.ActionProfileUpdate, id, func(ev *audit.ProfileChangeEvent) {
			ev.Details = map[string]any{"name": prof.Name, "grants": len(prof.AccessControls)}
		})
	}
	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{"org_id": prof.OrgID, "profile_id": id, "changed": changed}).Info("access profile updated")
	}
	return prof, nil
}

// DeleteProfile removes a profile. Users still bound to it must be moved to
// reassignTo; without a target the delete fails with in_use and nothing changes.
func (s *ProfileService) DeleteProfile(ctx context.Context, actor access.Principal, id uuid.UUID, reassignTo *uuid.UUID) error {
	ctx, span := s.start(ctx, "profile.delete", actor, attribute.String("profile.id", id.String()))
	defer span.End()

	if err := s.authorize(actor, access.VerbDelete); err != nil {
		return spanError(span, err)
	}
	if reassignTo != nil && *reassignTo == id {
		return spanError(span, ports.NewValidationError(ports.CodeInvalidReassignment, "cannot reassign users to the profile being deleted"))
	}

	var reassigned []uuid.UUID
	err := s.withRetry(ctx, "delete", func() error {
		var err error
		reassigned, err = s.repo.Delete(ctx, actor.Identity.OrgID, id, reassignTo)
		return err
	})
	if err != nil {
		s.logFailure("delete", actor, id, err)
		return spanError(span, err)
	}

	s.recordChange(ctx, actor, audit.ActionProfileDelete, id, func(ev *audit.ProfileChangeEvent) {
		ev.ReassignTo = reassignTo
		ev.Details = map[string]any{"reassigned_users": len(reassigned)}
	})
	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{"org_id": actor.Identity.OrgID, "profile_id": id, "reassigned_users": len(reassigned)}).Info("access profile deleted")
	}
	return nil
}

func (s *ProfileService) BindUser(ctx context.Context, actor access.Principal, userID, profileID uuid.UUID) error {
	ctx, span := s.start(ctx, "profile.bind_user", actor,
		attribute.String("profile.id", profileID.String()),
		attribute.String("user.id", userID.String()))
	defer span.End()

	if err := s.authorize(actor, access.VerbEdit); err != nil {
		return spanError(span, err)
	}
	if userID == uuid.Nil || profileID == uuid.Nil {
		return spanError(span, ports.NewValidationError(ports.CodeInvalidRequest, "user id and profile id are required"))
	}
	err := s.withRetry(ctx, "bind_user", func() error {
		return s.repo.BindUser(ctx, actor.Identity.OrgID, userID, profileID)
	})
	if err != nil {
		s.logFailure("bind_user", actor, profileID, err)
		return spanError(span, err)
	}

	s.recordChange(ctx, actor, audit.ActionUserBind, profileID, func(ev *audit.ProfileChangeEvent) {
		ev.UserID = &userID
	})
	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{"org_id": actor.Identity.OrgID, "profile_id": profileID, "user_id": userID}).Info("user bound to access profile")
	}
	return nil
}

func (s *ProfileService) authorize(actor access.Principal, verb access.Verb) error {
	d := s.engine.Decide(actor, access.ResourceUsers, verb)
	if d.Allowed {
		return nil
	}
	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{
			"org_id":   actor.Identity.OrgID,
			"user_id":  actor.Identity.UserID,
			"resource": access.ResourceUsers,
			"verb":     verb,
			"reason":   d.Reason,
		}).Info("profile administration denied")
	}
	return ports.NewAuthorizationError(d.Reason)
}

// withRetry runs fn again once when it fails with a transient store error.
func (s *ProfileService) withRetry(ctx context.Context, op string, fn func() error) error {
	err := fn()
	if !ports.IsTransient(err) || ctx.Err() != nil {
		return err
	}
	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{"op": op}).WithError(err).Warn("transient store error; retrying once")
	}
	return fn()
}

func (s *ProfileService) recordChange(ctx context.Context, actor access.Principal, action audit.ProfileAction, profileID uuid.UUID, fill func(*audit.ProfileChangeEvent)) {
	if s.audit == nil {
		return
	}
	ev := &audit.ProfileChangeEvent{
		OrgID:     actor.Identity.OrgID,
		ActorID:   actor.Identity.UserID,
		Action:    action,
		ProfileID: profileID,
		Timestamp: s.now().UTC(),
	}
	if fill != nil {
		fill(ev)
	}
	s.audit.RecordProfileChange(ctx, ev)
}

func (s *ProfileService) logFailure(op string, actor access.Principal, profileID uuid.UUID, err error) {
	if s.logger == nil {
		return
	}
	entry := s.logger.WithFields(logrus.Fields{"op": op, "org_id": actor.Identity.OrgID, "profile_id": profileID, "kind": ports.KindOf(err).String()}).WithError(err)
	if ports.KindOf(err) == ports.KindStore {
		entry.Error("access profile operation failed")
		return
	}
	entry.Debug("access profile operation rejected")
}

func (s *ProfileService) start(ctx context.Context, name string, actor access.Principal, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs,
		attribute.String("org.id", actor.Identity.OrgID.String()),
		attribute.String("actor.role", actor.Identity.Role.String()))
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func spanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, ports.KindOf(err).String())
	return err
}

func normalizeGrants(grants []access.AccessControl) ([]access.AccessControl, error) {
	out, err := access.NormalizeGrants(grants)
	if err != nil {
		if errors.Is(err, access.ErrInvalidGrant) {
			return nil, ports.NewValidationError(ports.CodeInvalidGrant, err.Error())
		}
		return nil, err
	}
	return out, nil
}
