package session

import (
	"testing"

	"github.com/practica-ai/practica/internal/models"
	"github.com/practica-ai/practica/internal/store"
)

func seedChannels(t *testing.T, st store.Store, userID int64, channels []string) {
	t.Helper()
	for _, ch := range channels {
		if _, err := st.AppendTurn(models.ConversationTurn{
			ID: ch, UserID: userID, ChannelID: ch,
			Speaker: models.SpeakerUser, Content: "seed",
		}); err != nil {
			t.Fatalf("AppendTurn failed: %v", err)
		}
	}
}

func openCount(t *testing.T, st store.Store, userID int64, channel string) int {
	t.Helper()
	turns, err := st.ActiveTurns(userID, channel)
	if err != nil {
		t.Fatalf("ActiveTurns failed: %v", err)
	}
	return len(turns)
}

func TestBeginCaseClosesCaseChannels(t *testing.T) {
	st := store.NewMemoryStore()
	m := NewManager(st)
	seedChannels(t, st, 7, models.CaseChannels())

	if err := m.BeginCase(7, models.CaseCareerDialog); err != nil {
		t.Fatalf("BeginCase failed: %v", err)
	}
	for _, ch := range models.CaseChannels() {
		if n := openCount(t, st, 7, ch); n != 0 {
			t.Errorf("channel %s: expected closed, %d turns open", ch, n)
		}
	}
}

func TestBeginCaseRequiresCaseID(t *testing.T) {
	m := NewManager(store.NewMemoryStore())
	if err := m.BeginCase(7, ""); err == nil {
		t.Fatal("expected error for empty case ID")
	}
}

func TestRestartCaseIsIdempotent(t *testing.T) {
	st := store.NewMemoryStore()
	m := NewManager(st)
	seedChannels(t, st, 7, models.CaseChannels())

	if err := m.RestartCase(7, models.CaseFeedbackToPeer); err != nil {
		t.Fatalf("RestartCase failed: %v", err)
	}
	// Restarting with nothing open must not fail.
	if err := m.RestartCase(7, models.CaseFeedbackToPeer); err != nil {
		t.Fatalf("second RestartCase failed: %v", err)
	}
}

func TestCompleteReviewClosesOnlyReviewerChannels(t *testing.T) {
	st := store.NewMemoryStore()
	m := NewManager(st)
	seedChannels(t, st, 7, models.CaseChannels())

	if err := m.CompleteReview(7, models.CaseCareerDialog); err != nil {
		t.Fatalf("CompleteReview failed: %v", err)
	}
	for _, ch := range models.ReviewerChannels() {
		if n := openCount(t, st, 7, ch); n != 0 {
			t.Errorf("reviewer channel %s: expected closed, %d open", ch, n)
		}
	}
	// Dialogue channels keep their open sessions.
	for _, ch := range []string{"dialogue.primary", "dialogue.fallback"} {
		if n := openCount(t, st, 7, ch); n != 1 {
			t.Errorf("dialogue channel %s: expected 1 open turn, got %d", ch, n)
		}
	}
}

func TestReturnToTopClosesEverythingForUserOnly(t *testing.T) {
	st := store.NewMemoryStore()
	m := NewManager(st)
	seedChannels(t, st, 7, models.CaseChannels())
	seedChannels(t, st, 8, []string{"dialogue.primary"})

	if err := m.ReturnToTop(7); err != nil {
		t.Fatalf("ReturnToTop failed: %v", err)
	}
	for _, ch := range models.CaseChannels() {
		if n := openCount(t, st, 7, ch); n != 0 {
			t.Errorf("channel %s: expected closed for user 7, %d open", ch, n)
		}
	}
	if n := openCount(t, st, 8, "dialogue.primary"); n != 1 {
		t.Errorf("user 8 session must be untouched, got %d open", n)
	}
}
