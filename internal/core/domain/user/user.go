package user

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID              uuid.UUID  `json:"id" db:"id"`
	OrgID           uuid.UUID  `json:"org_id" db:"org_id"`
	AccessProfileID *uuid.UUID `json:"access_profile_id" db:"access_profile_id"`
	FullName        string     `json:"full_name" db:"full_name"`
	Role            Role       `json:"role" db:"role"`
	Status          Status     `json:"status" db:"status"`
	Email           *string    `json:"email,omitempty" db:"email"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// Role is a coarse classifier independent of profile grants.
type Role string

const (
	RoleOwner Role = "owner"
	RoleAdmin Role = "admin"
	RoleStaff Role = "staff"
)

func (r Role) String() string {
	return string(r)
}

func (r Role) IsValid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleStaff:
		return true
	default:
		return false
	}
}

type Status string

const (
	StatusActive    Status = "active"
	StatusInvited   Status = "invited"
	StatusSuspended Status = "suspended"
)

// CanSignIn is true only for active users; invited users have not completed provisioning.
func (u *User) CanSignIn() bool {
	return u.Status == StatusActive
}
