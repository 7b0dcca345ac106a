// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/retail-desk/internal/model"
)

// UserRepository provides access to accounts and their role profiles.
type UserRepository interface {
	// Create inserts the user and its role profile atomically, filling generated ids.
	Create(ctx context.Context, u *model.User, p *model.Profile) error
	// GetByEmail loads a user by (lowercased) email.
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	// ExistsByEmail reports whether an account with the email exists.
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	// GetProfile loads the role profile of a user; an empty Profile for roles without one.
	GetProfile(ctx context.Context, userID int64, role model.Role) (model.Profile, error)
}
