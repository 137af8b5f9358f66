package tenant

import (
	"time"

	"github.com/google/uuid"
)

// Tenant is an organization. Tenants are provisioned outside this service;
// it only reads them to gate sessions and size rate limits.
type Tenant struct {
	ID                uuid.UUID    `json:"id" db:"id"`
	Name              string       `json:"name" db:"name"`
	Slug              string       `json:"slug" db:"slug"`
	Status            TenantStatus `json:"status" db:"status"`
	RequestsPerMinute int          `json:"requests_per_minute" db:"requests_per_minute"`
	CreatedAt         time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at" db:"updated_at"`
}

type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "active"
	TenantStatusSuspended TenantStatus = "suspended"
	TenantStatusCanceled  TenantStatus = "canceled"
)

// CanAccess returns true if the tenant can access the application
func (t *Tenant) CanAccess() bool {
	return t.Status == TenantStatusActive
}
