// Package retention prunes data past its retention window: closed
// conversation sessions and dialogue states that have gone stale. Open
// sessions and live states are never touched, so pruning can run
// concurrently with traffic.
package retention

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/practica-ai/practica/internal/metrics"
	"github.com/practica-ai/practica/internal/store"
)

// DefaultMaxAge keeps closed sessions and stale states for 90 days.
const DefaultMaxAge = 90 * 24 * time.Hour

// Pruner removes rows older than the retention window.
type Pruner struct {
	store  store.Store
	maxAge time.Duration
}

// NewPruner creates a pruner. A non-positive maxAge falls back to
// DefaultMaxAge.
func NewPruner(st store.Store, maxAge time.Duration) *Pruner {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Pruner{store: st, maxAge: maxAge}
}

// RunOnce performs one pruning pass and returns the number of removed
// session turns and dialogue states.
func (p *Pruner) RunOnce() (sessions int, states int, err error) {
	cutoff := time.Now().UTC().Add(-p.maxAge)

	sessions, err = p.store.PruneClosedSessions(cutoff)
	if err != nil {
		return 0, 0, fmt.Errorf("prune closed sessions: %w", err)
	}
	metrics.RetentionPrunedTotal.WithLabelValues("session_turns").Add(float64(sessions))

	states, err = p.store.PruneDialogueStates(cutoff)
	if err != nil {
		return sessions, 0, fmt.Errorf("prune dialogue states: %w", err)
	}
	metrics.RetentionPrunedTotal.WithLabelValues("dialogue_states").Add(float64(states))

	slog.Info("Retention pass completed", "cutoff", cutoff, "sessionTurns", sessions, "dialogueStates", states)
	return sessions, states, nil
}
