package services

import (
	"context"

	"github.com/avatarctic/herdbook/go/internal/core/domain/access"
	"github.com/avatarctic/herdbook/go/internal/core/domain/auth"
	"github.com/avatarctic/herdbook/go/internal/core/ports"
	"github.com/sirupsen/logrus"
)

type PrincipalLoaderService struct {
	profiles ports.ProfileRepository
	logger   *logrus.Logger
}

func NewPrincipalLoader(profiles ports.ProfileRepository, logger *logrus.Logger) ports.PrincipalLoader {
	return &PrincipalLoaderService{profiles: profiles, logger: logger}
}

// Load attaches the identity's bound profile. A binding that no longer resolves
// inside the identity's org yields a nil profile rather than an error.
func (l *PrincipalLoaderService) Load(ctx context.Context, identity auth.Identity) (*access.Principal, error) {
	p := &access.Principal{Identity: identity}
	if isOwner(identity.Role) || identity.AccessProfileID == nil {
		return p, nil
	}

	prof, err := l.profiles.GetByID(ctx, identity.OrgID, *identity.AccessProfileID)
	if err != nil {
		if ports.KindOf(err) == ports.KindNotFound {
			if l.logger != nil {
				l.logger.WithFields(logrus.Fields{"org_id": identity.OrgID, "user_id": identity.UserID, "profile_id": *identity.AccessProfileID}).Warn("bound access profile not found")
			}
			return p, nil
		}
		if l.logger != nil {
			l.logger.WithFields(logrus.Fields{"org_id": identity.OrgID, "user_id": identity.UserID}).WithError(err).Error("failed to load access profile")
		}
		if ports.KindOf(err) == ports.KindStore {
			return nil, err
		}
		return nil, ports.NewStoreError("failed to load access profile", err, false)
	}
	p.Profile = prof
	return p, nil
}
