// Package recovery rebuilds a user's working context from the store.
// Nothing dialogue-related is cached in memory between events: every
// inbound event loads a fresh snapshot, so a process restart (or a
// second replica taking over) resumes exactly where the store says the
// user is.
package recovery

import (
	"fmt"
	"log/slog"

	"github.com/practica-ai/practica/internal/models"
	"github.com/practica-ai/practica/internal/store"
)

// ChannelResolver maps a loaded dialogue state to the conversation
// channels whose open histories belong in the snapshot.
type ChannelResolver func(state *models.DialogueState) []string

// DefaultChannelResolver returns the case channels when the state sits
// inside a case, and nothing for top-level steps, which hold no
// provider conversations.
func DefaultChannelResolver(state *models.DialogueState) []string {
	if state.CaseID() == "" {
		return nil
	}
	return models.CaseChannels()
}

// Snapshot is the complete working context for one inbound event: the
// dialogue state plus the open session history of every relevant
// channel. Channels without an open session map to an empty slice, so
// consumers can index without existence checks.
type Snapshot struct {
	State     *models.DialogueState
	Histories map[string][]models.ConversationTurn
}

// Loader loads snapshots. It holds no per-user state of its own.
type Loader struct {
	store   store.Store
	resolve ChannelResolver
}

// NewLoader creates a snapshot loader. A nil resolver falls back to
// DefaultChannelResolver.
func NewLoader(st store.Store, resolve ChannelResolver) *Loader {
	if resolve == nil {
		resolve = DefaultChannelResolver
	}
	return &Loader{store: st, resolve: resolve}
}

// Load returns the snapshot for one inbound event. A user the store has
// never seen yields a nil State and empty Histories; the dialogue engine
// treats that as the entry step.
func (l *Loader) Load(key models.StateKey) (*Snapshot, error) {
	state, err := l.store.GetDialogueState(key)
	if err != nil {
		return nil, fmt.Errorf("load dialogue state for %s: %w", key, err)
	}
	snap := &Snapshot{State: state, Histories: make(map[string][]models.ConversationTurn)}
	if state == nil {
		slog.Debug("Recovery.Load no prior state", "key", key.String())
		return snap, nil
	}
	for _, channelID := range l.resolve(state) {
		turns, err := l.store.ActiveTurns(key.UserID, channelID)
		if err != nil {
			return nil, fmt.Errorf("load active history for user %d channel %s: %w", key.UserID, channelID, err)
		}
		snap.Histories[channelID] = turns
	}
	slog.Debug("Recovery.Load snapshot loaded", "key", key.String(), "step", state.StepName, "channels", len(snap.Histories))
	return snap, nil
}
