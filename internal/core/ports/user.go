package ports

import (
	"context"

	"github.com/avatarctic/herdbook/go/internal/core/domain/user"
	"github.com/google/uuid"
)

// UserRepository defines the read side of user data needed for authorization.
// Users are provisioned by the identity provider; bindings change through
// ProfileRepository.BindUser.
type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
}
