package services

import (
	"context"

	config "github.com/avatarctic/herdbook/go/configs"
	"github.com/avatarctic/herdbook/go/internal/core/domain/audit"
	"github.com/avatarctic/herdbook/go/internal/core/ports"
	"github.com/sirupsen/logrus"
)

// AuditService is the default ports.AuditHook. It writes structured log lines
// and keeps nothing.
type AuditService struct {
	enabled      bool
	recordAllows bool
	logger       *logrus.Logger
}

func NewAuditService(cfg *config.AuditConfig, logger *logrus.Logger) ports.AuditHook {
	s := &AuditService{enabled: true, logger: logger}
	if cfg != nil {
		s.enabled = cfg.Enabled
		s.recordAllows = cfg.AllowedDecisions
	}
	return s
}

func (s *AuditService) RecordDecision(ctx context.Context, ev *audit.DecisionEvent) {
	if !s.enabled || s.logger == nil || ev == nil {
		return
	}
	if ev.Outcome == "allow" && !s.recordAllows {
		return
	}
	fields := logrus.Fields{
		"audit":    true,
		"event":    "access.decision",
		"org_id":   ev.OrgID,
		"user_id":  ev.UserID,
		"role":     ev.Role,
		"method":   ev.Method,
		"route":    ev.Route,
		"resource": ev.Resource,
		"verb":     ev.Verb,
		"outcome":  ev.Outcome,
		"ip":       ev.IPAddress,
	}
	if ev.Reason != "" {
		fields["reason"] = ev.Reason
	}
	if ev.ProfileID != nil {
		fields["profile_id"] = *ev.ProfileID
	}
	s.logger.WithContext(ctx).WithFields(fields).WithTime(ev.Timestamp).Info("access decision")
}

func (s *AuditService) RecordProfileChange(ctx context.Context, ev *audit.ProfileChangeEvent) {
	if !s.enabled || s.logger == nil || ev == nil {
		return
	}
	fields := logrus.Fields{
		"audit":      true,
		"event":      string(ev.Action),
		"org_id":     ev.OrgID,
		"actor_id":   ev.ActorID,
		"profile_id": ev.ProfileID,
	}
	if ev.UserID != nil {
		fields["user_id"] = *ev.UserID
	}
	if ev.ReassignTo != nil {
		fields["reassign_to"] = *ev.ReassignTo
	}
	if ev.Details != nil {
		fields["details"] = ev.Details
	}
	s.logger.WithContext(ctx).WithFields(fields).WithTime(ev.Timestamp).Info("access profile changed")
}
