package auth

import (
	"context"

	"github.com/go-faster/errors"
)

var (
	// ErrUnauthenticated is returned when an operation requires a user or
	// actor and none was supplied.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden is returned when the actor lacks rights on the resource.
	ErrForbidden = errors.New("forbidden")
)

// APIKeyInfo holds the identity bound to a validated API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	UserID  string
	Scopes  []string
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}

// StaffRepository answers restaurant staff membership questions.
type StaffRepository interface {
	IsStaff(ctx context.Context, userID, restaurantID string) (bool, error)
}
