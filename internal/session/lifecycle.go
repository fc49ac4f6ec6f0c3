// Package session applies the domain rules that decide when a provider
// conversation session ends and a fresh one begins. It is the only
// writer that flips the open/closed session boundary; the gateway only
// ever appends.
package session

import (
	"fmt"
	"log/slog"

	"github.com/practica-ai/practica/internal/metrics"
	"github.com/practica-ai/practica/internal/models"
	"github.com/practica-ai/practica/internal/store"
)

// Close reasons reported to metrics.
const (
	reasonCaseStart      = "case_start"
	reasonCaseRestart    = "case_restart"
	reasonReturnToTop    = "return_to_top"
	reasonReviewComplete = "review_complete"
)

// Manager encodes the session lifecycle policy. All close operations are
// synchronous: when a method returns nil the closes are durably visible,
// so a caller that appends afterwards can never reach a session that
// should have been considered closed.
type Manager struct {
	store store.Store
}

// NewManager creates a lifecycle manager on top of a store.
func NewManager(st store.Store) *Manager {
	return &Manager{store: st}
}

// BeginCase closes every channel bound to the case before a new run
// starts, guaranteeing a clean history even if a previous run of the
// same case was abandoned mid-flight.
func (m *Manager) BeginCase(userID int64, caseID string) error {
	return m.closeCaseChannels(userID, caseID, reasonCaseStart)
}

// RestartCase closes the case channels for an in-flight restart. Same
// effect as BeginCase, tracked separately for observability.
func (m *Manager) RestartCase(userID int64, caseID string) error {
	return m.closeCaseChannels(userID, caseID, reasonCaseRestart)
}

func (m *Manager) closeCaseChannels(userID int64, caseID string, reason string) error {
	if caseID == "" {
		return fmt.Errorf("lifecycle %s: missing case ID", reason)
	}
	if err := m.store.CloseSessions(userID, models.CaseChannels()...); err != nil {
		slog.Error("Lifecycle case close failed", "error", err, "userID", userID, "caseID", caseID, "reason", reason)
		return fmt.Errorf("close case channels for user %d case %s: %w", userID, caseID, err)
	}
	metrics.SessionsClosedTotal.WithLabelValues(reason).Inc()
	slog.Debug("Lifecycle case channels closed", "userID", userID, "caseID", caseID, "reason", reason)
	return nil
}

// ReturnToTop closes every open session for the user so no stale
// provider context can leak into an unrelated future case. Channels the
// user never touched are left absent, not spuriously created.
func (m *Manager) ReturnToTop(userID int64) error {
	if err := m.store.CloseAllSessions(userID); err != nil {
		slog.Error("Lifecycle return-to-top close failed", "error", err, "userID", userID)
		return fmt.Errorf("close all sessions for user %d: %w", userID, err)
	}
	metrics.SessionsClosedTotal.WithLabelValues(reasonReturnToTop).Inc()
	slog.Debug("Lifecycle all sessions closed", "userID", userID)
	return nil
}

// CompleteReview closes only the reviewer channels after a finished
// review turn; the dialogue channels stay open so the user can keep
// chatting with the case persona.
func (m *Manager) CompleteReview(userID int64, caseID string) error {
	if err := m.store.CloseSessions(userID, models.ReviewerChannels()...); err != nil {
		slog.Error("Lifecycle reviewer close failed", "error", err, "userID", userID, "caseID", caseID)
		return fmt.Errorf("close reviewer channels for user %d case %s: %w", userID, caseID, err)
	}
	metrics.SessionsClosedTotal.WithLabelValues(reasonReviewComplete).Inc()
	slog.Debug("Lifecycle reviewer channels closed", "userID", userID, "caseID", caseID)
	return nil
}
