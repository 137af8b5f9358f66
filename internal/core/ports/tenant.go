package ports

import (
	"context"

	"github.com/avatarctic/herdbook/go/internal/core/domain/tenant"
	"github.com/google/uuid"
)

// TenantRepository defines the interface for tenant data operations
type TenantRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error)
}
