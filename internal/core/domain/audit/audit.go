package audit

import (
	"time"

	"github.com/avatarctic/herdbook/go/internal/core/domain/access"
	"github.com/google/uuid"
)

// DecisionEvent is emitted by the enforcement layer for every denial, and for
// allows when configured.
type DecisionEvent struct {
	OrgID     uuid.UUID         `json:"org_id"`
	UserID    uuid.UUID         `json:"user_id"`
	Role      string            `json:"role"`
	ProfileID *uuid.UUID        `json:"profile_id,omitempty"`
	Method    string            `json:"method"`
	Route     string            `json:"route"`
	Resource  access.Resource   `json:"resource,omitempty"`
	Verb      access.Verb       `json:"verb,omitempty"`
	Outcome   string            `json:"outcome"`
	Reason    access.DenyReason `json:"reason,omitempty"`
	IPAddress string            `json:"ip_address"`
	UserAgent string            `json:"user_agent"`
	Timestamp time.Time         `json:"timestamp"`
}

type ProfileAction string

const (
	ActionProfileCreate ProfileAction = "profile.create"
	ActionProfileUpdate ProfileAction = "profile.update"
	ActionProfileDelete ProfileAction = "profile.delete"
	ActionUserBind      ProfileAction = "user.bind"
)

// ProfileChangeEvent is emitted after a committed profile mutation.
type ProfileChangeEvent struct {
	OrgID      uuid.UUID     `json:"org_id"`
	ActorID    uuid.UUID     `json:"actor_id"`
	Action     ProfileAction `json:"action"`
	ProfileID  uuid.UUID     `json:"profile_id"`
	UserID     *uuid.UUID    `json:"user_id,omitempty"`
	ReassignTo *uuid.UUID    `json:"reassign_to,omitempty"`
	Details    any           `json:"details,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
}
