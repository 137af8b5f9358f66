package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/avatarctic/herdbook/go/internal/core/domain/tenant"
	"github.com/avatarctic/herdbook/go/internal/core/ports"
	"github.com/avatarctic/herdbook/go/internal/infrastructure/db"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// TenantRepository implements the tenant repository interface
type TenantRepository struct {
	db     *db.Database
	logger *logrus.Logger
}

// NewTenantRepository creates a new tenant repository
func NewTenantRepository(database *db.Database, logger *logrus.Logger) ports.TenantRepository {
	return &TenantRepository{
		db:     database,
		logger: logger,
	}
}

// GetByID retrieves a tenant by ID
func (r *TenantRepository) GetByID(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	var t tenant.Tenant
	query := `
		SELECT id, name, slug, status, requests_per_minute, created_at, updated_at
		FROM tenants
		WHERE id = $1`

	if err := r.db.DB.GetContext(ctx, &t, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ports.NewNotFoundError("tenant not found")
		}
		if r.logger != nil {
			r.logger.WithFields(logrus.Fields{"tenant_id": id}).WithError(err).Error("db: failed to get tenant by ID")
		}
		return nil, classify("failed to get tenant", err)
	}
	return &t, nil
}
