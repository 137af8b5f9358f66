package ports

import (
	"context"

	"github.com/avatarctic/herdbook/go/internal/core/domain/audit"
)

// AuditHook receives access-control events. Persisting them is up to the
// implementation; hooks must not block the request path and never fail it.
type AuditHook interface {
	RecordDecision(ctx context.Context, ev *audit.DecisionEvent)
	RecordProfileChange(ctx context.Context, ev *audit.ProfileChangeEvent)
}
