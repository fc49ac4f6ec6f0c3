package dialogue

import (
	"context"
	"sort"

	"github.com/practica-ai/practica/internal/models"
	"github.com/practica-ai/practica/internal/provider"
	"github.com/practica-ai/practica/internal/session"
)

// Actions is the facade handlers use for side effects. Lifecycle methods
// complete durably before returning, so a handler can close sessions and
// immediately send on the same channels without racing itself.
type Actions struct {
	lifecycle *session.Manager
	gateway   *provider.Gateway
}

// NewActions creates the handler facade.
func NewActions(lifecycle *session.Manager, gateway *provider.Gateway) *Actions {
	return &Actions{lifecycle: lifecycle, gateway: gateway}
}

// BeginCase starts a fresh case run, closing any leftover case sessions.
func (a *Actions) BeginCase(userID int64, caseID string) error {
	return a.lifecycle.BeginCase(userID, caseID)
}

// RestartCase restarts the current case run with clean histories.
func (a *Actions) RestartCase(userID int64, caseID string) error {
	return a.lifecycle.RestartCase(userID, caseID)
}

// ReturnToTop closes every open session for the user.
func (a *Actions) ReturnToTop(userID int64) error {
	return a.lifecycle.ReturnToTop(userID)
}

// CompleteReview closes the reviewer sessions after a finished review.
func (a *Actions) CompleteReview(userID int64, caseID string) error {
	return a.lifecycle.CompleteReview(userID, caseID)
}

// SendDialogue routes a user message to the case's dialogue persona.
func (a *Actions) SendDialogue(ctx context.Context, userID int64, caseID, systemPrompt, text string, audio []byte) (*provider.Response, error) {
	return a.gateway.Send(ctx, provider.Call{
		UserID:       userID,
		CaseID:       caseID,
		Role:         models.RoleDialogue,
		SystemPrompt: systemPrompt,
		Message:      text,
		Audio:        audio,
	})
}

// SendReviewer routes a message to the case's reviewer.
func (a *Actions) SendReviewer(ctx context.Context, userID int64, caseID, systemPrompt, text string) (*provider.Response, error) {
	return a.gateway.Send(ctx, provider.Call{
		UserID:       userID,
		CaseID:       caseID,
		Role:         models.RoleReviewer,
		SystemPrompt: systemPrompt,
		Message:      text,
	})
}

// DialogueTranscript renders the open dialogue history from a snapshot
// as reviewer input, merged across tiers in append order.
func DialogueTranscript(histories map[string][]models.ConversationTurn) string {
	var turns []models.ConversationTurn
	for _, channelID := range []string{
		models.ChannelID(models.RoleDialogue, models.TierPrimary),
		models.ChannelID(models.RoleDialogue, models.TierFallback),
	} {
		turns = append(turns, histories[channelID]...)
	}
	sort.Slice(turns, func(i, j int) bool { return turns[i].Seq < turns[j].Seq })
	out := ""
	for _, t := range turns {
		out += string(t.Speaker) + ": " + t.Content + "\n"
	}
	return out
}
