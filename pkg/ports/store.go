package ports

import (
	"context"

	"github.com/aretw0/feelflow/pkg/domain"
)

// SessionStore defines the interface for holding Sessions between turns.
type SessionStore interface {
	// Save stores the session under its ID, replacing any previous version.
	Save(ctx context.Context, session *domain.Session) error

	// Load retrieves the session for a given ID.
	// Returns domain.ErrSessionNotFound if the session does not exist.
	Load(ctx context.Context, sessionID string) (*domain.Session, error)

	// Delete removes the session for a given ID.
	Delete(ctx context.Context, sessionID string) error

	// List returns the IDs of all stored sessions, oldest first.
	List(ctx context.Context) ([]string, error)
}
