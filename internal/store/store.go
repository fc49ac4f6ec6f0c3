// Package store provides the durable persistence backends for Practica.
//
// It holds two independently-lifecycled concerns behind one interface:
// dialogue-machine state (what step a user is on) and the append-only
// conversation turn log (what was said on which provider channel), plus
// the lease table backing the scheduler singleton. Backends: in-memory
// (non-durable, for tests and explicitly configured non-production use),
// SQLite, and PostgreSQL.
package store

import (
	"time"

	"github.com/practica-ai/practica/internal/models"
)

// Lease names used across the application.
const (
	// SchedulerLease guards periodic maintenance so exactly one process
	// instance runs scheduled jobs in a horizontally scaled deployment.
	SchedulerLease = "scheduler"
)

// Store is the persistence contract consumed by the dialogue core.
//
// Dialogue-state lookups return (nil, nil) when no row exists; callers on
// the critical path must treat a non-nil error as fatal for the current
// event rather than degrading to "absent".
type Store interface {
	// Dialogue-machine state, keyed by (bot, chat, user). SaveDialogueState
	// is an atomic upsert: step name and payload are always written (and
	// therefore observed) together, and the payload replaces the previous
	// document wholesale.
	GetDialogueState(key models.StateKey) (*models.DialogueState, error)
	SaveDialogueState(state models.DialogueState) error
	DeleteDialogueState(key models.StateKey) error
	PruneDialogueStates(olderThan time.Time) (int, error)

	// Conversation turn log. AppendTurn adds to the open session for the
	// turn's (user, channel) pair, implicitly opening one if none exists,
	// and returns the store-assigned sequence number. ActiveTurns returns
	// the open session's turns in strict append order. Close operations
	// are idempotent and only ever touch rows that are currently open.
	AppendTurn(turn models.ConversationTurn) (int64, error)
	ActiveTurns(userID int64, channelID string) ([]models.ConversationTurn, error)
	CloseSession(userID int64, channelID string) error
	CloseSessions(userID int64, channelIDs ...string) error
	CloseAllSessions(userID int64) error
	PruneClosedSessions(olderThan time.Time) (int, error)

	// Scheduler lease. AcquireLease succeeds when the lease is free,
	// expired, or already held by the same holder; RenewLease only
	// succeeds for the current holder.
	AcquireLease(name, holder string, ttl time.Duration) (bool, error)
	RenewLease(name, holder string, ttl time.Duration) (bool, error)
	ReleaseLease(name, holder string) error

	Close() error
}
