// Package auth holds the API key identity used to resolve the acting user.
package auth

import (
	"context"
	"fmt"
	"time"
)

// APIKey is a stored, HMAC-hashed API key bound to a user.
type APIKey struct {
	ID        string
	KeyHash   string
	Name      string
	UserID    string
	CreatedAt time.Time
}

// ErrNotFound indicates no API key matches the given hash.
var ErrNotFound = fmt.Errorf("api key not found")

// Repository provides lookup of API keys by their HMAC-SHA256 hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKey, error)
	Create(ctx context.Context, key *APIKey) error
}
