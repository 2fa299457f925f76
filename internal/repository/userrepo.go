package repository

import (
	"time"

	"github.com/Lucius-40/lanshop/internal/model"
)

// UserRepository provides file-backed access to account records.
type UserRepository interface {
	// Load replaces the in-memory map from the backing file, creating the
	// file if it does not exist.
	Load() error
	// Create inserts a new user and persists. Returns errs.ErrAlreadyExists
	// on a duplicate username and errs.ErrEmailTaken on a duplicate email
	// (both case-insensitive).
	Create(u *model.User) error
	// Get loads a user by username (case-insensitive).
	Get(username string) (*model.User, error)
	// Exists reports whether the username is taken.
	Exists(username string) bool
	// EmailExists reports whether the email is taken.
	EmailExists(email string) bool
	// Count returns the number of users loaded.
	Count() int
}

// OrderLog is the append-only audit trail of confirmed purchases.
type OrderLog interface {
	// Append writes one human-readable order block.
	Append(at time.Time, customer model.CustomerInfo, items []model.OrderItem) error
}
