// Package store keeps one game session per browser for as long as the
// session lives. Implementations are backed by memory or Redis.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/jaminalder/timetravel-tic-tac-toe/internal/domain"
)

var (
	// ErrNotFound is returned for unknown or expired sessions.
	ErrNotFound = errors.New("session not found")
	// ErrCorrupt is returned when a stored session cannot be decoded.
	ErrCorrupt = errors.New("corrupt session")
)

// Session is the stored state of one player's page.
type Session struct {
	ID    string       `json:"id"`
	State domain.State `json:"state"`
	// Rev counts applied operations; 1 for a fresh session.
	Rev     uint64    `json:"rev"`
	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`
}

// Store persists sessions keyed by ID.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
	Close() error
}
