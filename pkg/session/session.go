// Package session persists conversation logs across runs.
//
// A session ties an agent and a principal to the ordered entry log the
// agent loop accumulates. The loop is the single writer for any live
// session; stores only need to keep appends ordered per session.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/drover-ai/drover/pkg/config"
	"github.com/drover-ai/drover/pkg/memory"
)

// ErrNotFound is returned when a session id does not resolve.
var ErrNotFound = errors.New("session not found")

// Session is the stored metadata for one conversation.
type Session struct {
	ID        string    `json:"id"`
	Agent     string    `json:"agent"`
	Principal string    `json:"principal"`
	Created   time.Time `json:"created"`
	Updated   time.Time `json:"updated"`
}

// Store persists sessions and their entry logs.
type Store interface {
	// Create registers a new session for an agent and principal.
	Create(ctx context.Context, agent, principal string) (Session, error)

	// Get returns the session metadata or ErrNotFound.
	Get(ctx context.Context, id string) (Session, error)

	// List returns sessions, newest first. A non-empty principal
	// restricts the result to that principal's sessions.
	List(ctx context.Context, principal string) ([]Session, error)

	// Delete removes a session and its entries. Deleting an unknown id
	// is not an error.
	Delete(ctx context.Context, id string) error

	// AppendEntry adds one log entry to the session.
	AppendEntry(ctx context.Context, id string, e memory.Entry) error

	// Entries returns the session's log in append order.
	Entries(ctx context.Context, id string) ([]memory.Entry, error)

	// Close releases store resources.
	Close() error
}

// New builds the store selected by the configuration.
func New(cfg config.SessionConfig) (Store, error) {
	switch cfg.Store {
	case config.SessionStoreMemory, "":
		return NewMemoryStore(), nil
	case config.SessionStoreSQL:
		return NewSQLStore(cfg.SQL)
	default:
		return nil, fmt.Errorf("unsupported session store: %s (supported: memory, sql)", cfg.Store)
	}
}
