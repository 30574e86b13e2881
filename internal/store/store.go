// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/sqlchat/internal/domain"
)

// Repository persists anonymous identities and the exchange audit trail.
// Chat transcripts and agent memory are deliberately absent: they live only
// in the in-memory session.
type Repository interface {
	// GetUser retrieves a user by their user ID. Returns nil, nil when absent.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpdateLastSeen updates the last_seen_at timestamp for a user.
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error

	// RecordExchange appends one submission to the audit trail.
	RecordExchange(ctx context.Context, ex *domain.Exchange) error

	// ListExchanges returns the most recent exchanges for a user, newest first.
	ListExchanges(ctx context.Context, userID string, limit int) ([]*domain.Exchange, error)

	// PruneExchanges removes audit records older than ttl.
	PruneExchanges(ctx context.Context, ttl time.Duration) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
