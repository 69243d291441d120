package core

import (
	"context"
	"time"

	"medtriage/pkg"
)

// Store is the durable persistence contract for sessions and their
// transcripts. Implementations must make each method atomic: in particular
// Mutate wraps "update session + append messages" in a single transaction so
// a message is never recorded without its state change, or vice versa.
//
// There are two implementations: the Postgres repository in internal/db,
// and an in-memory store for tests and local development.
type Store interface {
	// CreateSession persists a new session together with its first
	// transcript entry, atomically.
	CreateSession(ctx context.Context, s *pkg.Session, first pkg.Message) error

	// Session loads a session by id. Returns ErrNotFound if absent.
	Session(ctx context.Context, id string) (*pkg.Session, error)

	// Messages returns the full transcript ordered by (timestamp, id).
	Messages(ctx context.Context, id string) ([]pkg.Message, error)

	// Mutate performs a read-modify-write against the persisted session
	// under a row lock: fn receives the current state, mutates it in place,
	// and returns messages to append. A non-nil error from fn rolls the
	// whole transaction back and is returned unchanged.
	Mutate(ctx context.Context, id string, fn func(s *pkg.Session) ([]pkg.Message, error)) error

	// ListActionable returns every session a nurse can act on: all
	// non-terminal sessions except those still in intake. Ordering is the
	// caller's concern.
	ListActionable(ctx context.Context) ([]pkg.Session, error)

	// OwnerSessions returns all sessions started by owner, newest first.
	OwnerSessions(ctx context.Context, owner string) ([]pkg.Session, error)

	// DemoteIdle moves every sweepable session whose last activity is
	// before cutoff to inactive, appending a system message to each. The
	// update is conditional on the current state so redundant sweeps are
	// no-ops. Returns the number of sessions demoted.
	DemoteIdle(ctx context.Context, cutoff time.Time, note string, at time.Time) (int, error)

	// ExpireDormant permanently closes every inactive session whose last
	// activity is before cutoff, appending a system message to each.
	// Returns the number of sessions closed.
	ExpireDormant(ctx context.Context, cutoff time.Time, note string, at time.Time) (int, error)
}
