// Package memory holds the client-side contract for the managed
// conversational memory store. Persistence itself is an external
// collaborator; this package validates the session scope and provides the
// Store interface the request handler uses to thread recent turns into the
// model request.
package memory

import (
	"context"
	"fmt"
)

// MinSessionIDLength is the memory store's key-space requirement for session
// identifiers. The value is imposed by the external collaborator, not
// derived here.
const MinSessionIDLength = 33

// Scope identifies one conversation in the memory store.
type Scope struct {
	MemoryID  string
	SessionID string
	ActorID   string
}

// Validate checks the scope against the store's key constraints.
func (s Scope) Validate() error {
	if s.MemoryID == "" {
		return fmt.Errorf("memory id is required")
	}
	if len(s.SessionID) < MinSessionIDLength {
		return fmt.Errorf("session id too short (%d chars, need at least %d)", len(s.SessionID), MinSessionIDLength)
	}
	if s.ActorID == "" {
		return fmt.Errorf("actor id is required")
	}
	return nil
}

// Role tags a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one conversation turn within a scope.
type Turn struct {
	Role    Role
	Content string
}

// Store reads and appends conversation turns for a scope. Implementations
// own durability; callers treat every method as a network call.
type Store interface {
	// Recent returns up to limit most recent turns, oldest first.
	Recent(ctx context.Context, scope Scope, limit int) ([]Turn, error)

	// Append records a completed turn.
	Append(ctx context.Context, scope Scope, turn Turn) error
}
