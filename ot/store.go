/*
store.go - Collaborator interfaces

PURPOSE:
  The engine persists nothing itself. It talks to three narrow collaborators:

  Store     request records + submission policy, with compare-and-swap on status
  AuditLog  append-only record of who moved what (optional)
  Notifier  fire-and-forget notification hook (optional)

COMPARE-AND-SWAP:
  SaveRequest(req, expectedPrior) only writes when the stored status still
  equals expectedPrior. An empty expectedPrior means "create". A mismatch is
  ErrConcurrentModification; the caller re-reads and retries. The engine does
  not retry on its own.

IMPLEMENTATIONS:
  - store/memory: in-memory, for tests and development
  - store/sqlite: SQLite, also implements AuditLog and Notifier (outbox)
*/
package ot

import (
	"context"
	"time"
)

// =============================================================================
// STORE
// =============================================================================

type Store interface {
	LoadRequest(ctx context.Context, id string) (*Request, error)

	// SaveRequest creates (expectedPrior == "") or updates a request.
	SaveRequest(ctx context.Context, req *Request, expectedPrior Status) error

	// LoadRequestsByIDs returns the requests that exist, in no particular order.
	LoadRequestsByIDs(ctx context.Context, ids []string) ([]Request, error)

	LoadPolicy(ctx context.Context) (Policy, error)

	// ApproveBatch moves every listed request still in hr_certified to
	// management_approved in one set-based update and returns how many matched.
	ApproveBatch(ctx context.Context, ids []string, stamp Review) (int, error)
}

// =============================================================================
// AUDIT LOG
// =============================================================================

type AuditEntry struct {
	ID        string
	RequestID string
	ActorID   string
	Role      Role
	From      Status
	To        Status
	Remarks   string
	At        time.Time
}

type AuditLog interface {
	Append(ctx context.Context, entry AuditEntry) error
}

// =============================================================================
// NOTIFIER
// =============================================================================

type Notification struct {
	RequestID string
	Type      NotificationType
}

// Notifier failures are logged by the service and never undo a transition.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
