package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/practica-ai/practica/internal/models"
)

func testKey() models.StateKey {
	return models.StateKey{BotID: "bot-1", ChatID: 100, UserID: 7}
}

func TestMemoryStoreDialogueStateRoundTrip(t *testing.T) {
	st := NewMemoryStore()
	key := testKey()

	got, err := st.GetDialogueState(key)
	if err != nil {
		t.Fatalf("GetDialogueState failed: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil state for unknown key, got %+v", got)
	}

	state := models.DialogueState{
		Key:      key,
		StepName: "career_dialog:chatting",
		Payload:  map[string]any{"case_id": "career_dialog", "attempts": 2},
	}
	if err := st.SaveDialogueState(state); err != nil {
		t.Fatalf("SaveDialogueState failed: %v", err)
	}

	got, err = st.GetDialogueState(key)
	if err != nil {
		t.Fatalf("GetDialogueState failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected state, got nil")
	}
	if got.StepName != state.StepName {
		t.Errorf("expected step %q, got %q", state.StepName, got.StepName)
	}
	if got.Payload["case_id"] != "career_dialog" {
		t.Errorf("expected payload case_id, got %v", got.Payload)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Errorf("expected timestamps to be set, got created=%v updated=%v", got.CreatedAt, got.UpdatedAt)
	}

	// Saving again must replace the payload wholesale, not merge.
	state.Payload = map[string]any{"other": true}
	state.StepName = "career_dialog:done"
	if err := st.SaveDialogueState(state); err != nil {
		t.Fatalf("SaveDialogueState failed: %v", err)
	}
	got, err = st.GetDialogueState(key)
	if err != nil {
		t.Fatalf("GetDialogueState failed: %v", err)
	}
	if _, ok := got.Payload["case_id"]; ok {
		t.Errorf("expected old payload keys to be gone, got %v", got.Payload)
	}
	if got.StepName != "career_dialog:done" {
		t.Errorf("expected replaced step, got %q", got.StepName)
	}

	if err := st.DeleteDialogueState(key); err != nil {
		t.Fatalf("DeleteDialogueState failed: %v", err)
	}
	got, err = st.GetDialogueState(key)
	if err != nil {
		t.Fatalf("GetDialogueState failed: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil state after delete, got %+v", got)
	}
}

func TestMemoryStoreSaveRejectsIncompleteKey(t *testing.T) {
	st := NewMemoryStore()
	err := st.SaveDialogueState(models.DialogueState{Key: models.StateKey{BotID: "bot-1"}, StepName: "menu"})
	if err == nil {
		t.Fatal("expected error for incomplete key")
	}
}

func TestMemoryStoreAppendOrderAndSeq(t *testing.T) {
	st := NewMemoryStore()
	channel := models.ChannelID(models.RoleDialogue, models.TierPrimary)

	// Identical timestamps: order must still be recoverable via seq.
	now := time.Now()
	var lastSeq int64
	for i, content := range []string{"first", "second", "third"} {
		seq, err := st.AppendTurn(models.ConversationTurn{
			ID: "t" + string(rune('0'+i)), UserID: 7, ChannelID: channel,
			Speaker: models.SpeakerUser, Content: content, CreatedAt: now,
		})
		if err != nil {
			t.Fatalf("AppendTurn failed: %v", err)
		}
		if seq <= lastSeq {
			t.Errorf("expected strictly increasing seq, got %d after %d", seq, lastSeq)
		}
		lastSeq = seq
	}

	turns, err := st.ActiveTurns(7, channel)
	if err != nil {
		t.Fatalf("ActiveTurns failed: %v", err)
	}
	if len(turns) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(turns))
	}
	for i, want := range []string{"first", "second", "third"} {
		if turns[i].Content != want {
			t.Errorf("turn %d: expected %q, got %q", i, want, turns[i].Content)
		}
	}
}

func TestMemoryStoreSessionBoundary(t *testing.T) {
	st := NewMemoryStore()
	channel := models.ChannelID(models.RoleDialogue, models.TierPrimary)

	if _, err := st.AppendTurn(models.ConversationTurn{ID: "a", UserID: 7, ChannelID: channel, Speaker: models.SpeakerUser, Content: "old"}); err != nil {
		t.Fatalf("AppendTurn failed: %v", err)
	}
	if err := st.CloseSession(7, channel); err != nil {
		t.Fatalf("CloseSession failed: %v", err)
	}

	turns, err := st.ActiveTurns(7, channel)
	if err != nil {
		t.Fatalf("ActiveTurns failed: %v", err)
	}
	if len(turns) != 0 {
		t.Fatalf("expected no active turns after close, got %d", len(turns))
	}

	// New appends start a fresh session not containing closed turns.
	if _, err := st.AppendTurn(models.ConversationTurn{ID: "b", UserID: 7, ChannelID: channel, Speaker: models.SpeakerUser, Content: "new"}); err != nil {
		t.Fatalf("AppendTurn failed: %v", err)
	}
	turns, err = st.ActiveTurns(7, channel)
	if err != nil {
		t.Fatalf("ActiveTurns failed: %v", err)
	}
	if len(turns) != 1 || turns[0].Content != "new" {
		t.Fatalf("expected only the new turn, got %+v", turns)
	}

	// Closing twice is a no-op, not an error, and leaves the current
	// session's close time intact for the already-closed turns.
	if err := st.CloseSession(7, channel); err != nil {
		t.Fatalf("second CloseSession failed: %v", err)
	}
	if err := st.CloseSession(7, channel); err != nil {
		t.Fatalf("third CloseSession failed: %v", err)
	}
}

func TestMemoryStoreSessionsAreIndependent(t *testing.T) {
	st := NewMemoryStore()
	primary := models.ChannelID(models.RoleDialogue, models.TierPrimary)
	fallback := models.ChannelID(models.RoleDialogue, models.TierFallback)

	if _, err := st.AppendTurn(models.ConversationTurn{ID: "a", UserID: 7, ChannelID: primary, Speaker: models.SpeakerUser, Content: "p"}); err != nil {
		t.Fatalf("AppendTurn failed: %v", err)
	}
	if _, err := st.AppendTurn(models.ConversationTurn{ID: "b", UserID: 7, ChannelID: fallback, Speaker: models.SpeakerUser, Content: "f"}); err != nil {
		t.Fatalf("AppendTurn failed: %v", err)
	}
	if _, err := st.AppendTurn(models.ConversationTurn{ID: "c", UserID: 8, ChannelID: primary, Speaker: models.SpeakerUser, Content: "other user"}); err != nil {
		t.Fatalf("AppendTurn failed: %v", err)
	}

	if err := st.CloseSession(7, primary); err != nil {
		t.Fatalf("CloseSession failed: %v", err)
	}

	turns, _ := st.ActiveTurns(7, fallback)
	if len(turns) != 1 {
		t.Errorf("expected fallback channel untouched, got %d turns", len(turns))
	}
	turns, _ = st.ActiveTurns(8, primary)
	if len(turns) != 1 {
		t.Errorf("expected other user's session untouched, got %d turns", len(turns))
	}
}

func TestMemoryStoreCloseSessionsCaseScenario(t *testing.T) {
	st := NewMemoryStore()

	for _, ch := range models.CaseChannels() {
		if _, err := st.AppendTurn(models.ConversationTurn{ID: ch, UserID: 7, ChannelID: ch, Speaker: models.SpeakerUser, Content: "x"}); err != nil {
			t.Fatalf("AppendTurn failed: %v", err)
		}
	}

	if err := st.CloseSessions(7, models.CaseChannels()...); err != nil {
		t.Fatalf("CloseSessions failed: %v", err)
	}
	for _, ch := range models.CaseChannels() {
		turns, err := st.ActiveTurns(7, ch)
		if err != nil {
			t.Fatalf("ActiveTurns failed: %v", err)
		}
		if len(turns) != 0 {
			t.Errorf("channel %s: expected closed session, got %d active turns", ch, len(turns))
		}
	}
}

func TestMemoryStoreCloseAllSessionsOnlyTouchesExisting(t *testing.T) {
	st := NewMemoryStore()
	primary := models.ChannelID(models.RoleDialogue, models.TierPrimary)
	reviewer := models.ChannelID(models.RoleReviewer, models.TierPrimary)

	if _, err := st.AppendTurn(models.ConversationTurn{ID: "a", UserID: 7, ChannelID: primary, Speaker: models.SpeakerUser, Content: "x"}); err != nil {
		t.Fatalf("AppendTurn failed: %v", err)
	}
	if _, err := st.AppendTurn(models.ConversationTurn{ID: "b", UserID: 7, ChannelID: reviewer, Speaker: models.SpeakerAssistant, Content: "y"}); err != nil {
		t.Fatalf("AppendTurn failed: %v", err)
	}

	if err := st.CloseAllSessions(7); err != nil {
		t.Fatalf("CloseAllSessions failed: %v", err)
	}

	for _, ch := range []string{primary, reviewer} {
		turns, _ := st.ActiveTurns(7, ch)
		if len(turns) != 0 {
			t.Errorf("channel %s: expected closed, got %d active turns", ch, len(turns))
		}
	}
	// Channels never written to have no sessions at all, open or closed.
	if n := len(st.turns); n != 2 {
		t.Errorf("expected exactly 2 session keys, got %d", n)
	}
}

func TestMemoryStoreConcurrentAppendClose(t *testing.T) {
	st := NewMemoryStore()
	users := []int64{1, 2, 3, 4}
	channels := []string{
		models.ChannelID(models.RoleDialogue, models.TierPrimary),
		models.ChannelID(models.RoleReviewer, models.TierPrimary),
	}
	const rounds = 50

	var wg sync.WaitGroup
	for _, userID := range users {
		for _, channelID := range channels {
			wg.Add(1)
			go func(userID int64, channelID string) {
				defer wg.Done()
				for i := 0; i < rounds; i++ {
					_, err := st.AppendTurn(models.ConversationTurn{
						ID:        fmt.Sprintf("%d-%s-%d", userID, channelID, i),
						UserID:    userID,
						ChannelID: channelID,
						Speaker:   models.SpeakerUser,
						Content:   "x",
					})
					if err != nil {
						t.Errorf("AppendTurn(%d, %s) failed: %v", userID, channelID, err)
						return
					}
					if i%5 == 4 {
						if err := st.CloseSession(userID, channelID); err != nil {
							t.Errorf("CloseSession(%d, %s) failed: %v", userID, channelID, err)
							return
						}
					}
				}
			}(userID, channelID)
		}
	}
	wg.Wait()

	for _, userID := range users {
		for _, channelID := range channels {
			key := sessionKey{userID: userID, channelID: channelID}
			if n := len(st.turns[key]); n != rounds {
				t.Errorf("user %d channel %s: expected %d turns, got %d", userID, channelID, rounds, n)
			}

			// At most one open session per pair: the open turns must form
			// a single trailing run. A closed turn following an open one
			// would mean a close skipped part of the live session.
			open := false
			var lastSeq int64
			for _, turn := range st.turns[key] {
				if turn.Seq <= lastSeq {
					t.Errorf("user %d channel %s: seq not increasing, %d after %d", userID, channelID, turn.Seq, lastSeq)
				}
				lastSeq = turn.Seq
				if turn.ClosedAt == nil {
					open = true
				} else if open {
					t.Errorf("user %d channel %s: closed turn %s after an open turn", userID, channelID, turn.ID)
				}
			}

			// Each pair converges independently to a single fresh session.
			if err := st.CloseSession(userID, channelID); err != nil {
				t.Fatalf("CloseSession failed: %v", err)
			}
			if _, err := st.AppendTurn(models.ConversationTurn{
				ID:        fmt.Sprintf("%d-%s-fresh", userID, channelID),
				UserID:    userID,
				ChannelID: channelID,
				Speaker:   models.SpeakerUser,
				Content:   "fresh",
			}); err != nil {
				t.Fatalf("AppendTurn failed: %v", err)
			}
			turns, err := st.ActiveTurns(userID, channelID)
			if err != nil {
				t.Fatalf("ActiveTurns failed: %v", err)
			}
			if len(turns) != 1 || turns[0].Content != "fresh" {
				t.Errorf("user %d channel %s: expected one fresh turn, got %+v", userID, channelID, turns)
			}
		}
	}
}

func TestMemoryStorePruneClosedSessions(t *testing.T) {
	st := NewMemoryStore()
	channel := models.ChannelID(models.RoleDialogue, models.TierPrimary)

	if _, err := st.AppendTurn(models.ConversationTurn{ID: "old", UserID: 7, ChannelID: channel, Speaker: models.SpeakerUser, Content: "old"}); err != nil {
		t.Fatalf("AppendTurn failed: %v", err)
	}
	if err := st.CloseSession(7, channel); err != nil {
		t.Fatalf("CloseSession failed: %v", err)
	}
	if _, err := st.AppendTurn(models.ConversationTurn{ID: "live", UserID: 7, ChannelID: channel, Speaker: models.SpeakerUser, Content: "live"}); err != nil {
		t.Fatalf("AppendTurn failed: %v", err)
	}

	n, err := st.PruneClosedSessions(time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("PruneClosedSessions failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 pruned turn, got %d", n)
	}
	turns, _ := st.ActiveTurns(7, channel)
	if len(turns) != 1 || turns[0].Content != "live" {
		t.Errorf("expected open session to survive pruning, got %+v", turns)
	}
}

func TestMemoryStorePruneDialogueStates(t *testing.T) {
	st := NewMemoryStore()
	if err := st.SaveDialogueState(models.DialogueState{Key: testKey(), StepName: "menu"}); err != nil {
		t.Fatalf("SaveDialogueState failed: %v", err)
	}

	n, err := st.PruneDialogueStates(time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("PruneDialogueStates failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected fresh state to survive, pruned %d", n)
	}

	n, err = st.PruneDialogueStates(time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("PruneDialogueStates failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected stale state pruned, got %d", n)
	}
}

func TestMemoryStoreLeases(t *testing.T) {
	st := NewMemoryStore()

	ok, err := st.AcquireLease(SchedulerLease, "holder-a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected first acquire to succeed, ok=%v err=%v", ok, err)
	}
	ok, err = st.AcquireLease(SchedulerLease, "holder-b", time.Minute)
	if err != nil || ok {
		t.Fatalf("expected competing acquire to fail, ok=%v err=%v", ok, err)
	}
	// Re-acquire by the same holder succeeds.
	ok, err = st.AcquireLease(SchedulerLease, "holder-a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected same-holder acquire to succeed, ok=%v err=%v", ok, err)
	}
	ok, err = st.RenewLease(SchedulerLease, "holder-a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected renew by holder to succeed, ok=%v err=%v", ok, err)
	}
	ok, err = st.RenewLease(SchedulerLease, "holder-b", time.Minute)
	if err != nil || ok {
		t.Fatalf("expected renew by non-holder to fail, ok=%v err=%v", ok, err)
	}
	if err := st.ReleaseLease(SchedulerLease, "holder-b"); err != nil {
		t.Fatalf("ReleaseLease by non-holder failed: %v", err)
	}
	// Non-holder release must not free the lease.
	ok, _ = st.AcquireLease(SchedulerLease, "holder-b", time.Minute)
	if ok {
		t.Fatal("expected lease still held after non-holder release")
	}
	if err := st.ReleaseLease(SchedulerLease, "holder-a"); err != nil {
		t.Fatalf("ReleaseLease failed: %v", err)
	}
	ok, err = st.AcquireLease(SchedulerLease, "holder-b", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected acquire after release to succeed, ok=%v err=%v", ok, err)
	}
}

func TestMemoryStoreExpiredLeaseTakeover(t *testing.T) {
	st := NewMemoryStore()
	ok, err := st.AcquireLease(SchedulerLease, "holder-a", -time.Second)
	if err != nil || !ok {
		t.Fatalf("acquire failed: ok=%v err=%v", ok, err)
	}
	ok, err = st.AcquireLease(SchedulerLease, "holder-b", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected takeover of expired lease, ok=%v err=%v", ok, err)
	}
}
