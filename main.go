package main

import (
	"fmt"
	"log"

	"github.com/practica-ai/practica/internal/models"
	"github.com/practica-ai/practica/internal/recovery"
	"github.com/practica-ai/practica/internal/session"
	"github.com/practica-ai/practica/internal/store"
)

// Minimal demonstration of the state and session layers against the
// in-memory store. The real service lives in cmd/practica.
func main() {
	st := store.NewMemoryStore()
	defer st.Close()

	key := models.StateKey{BotID: "demo-bot", ChatID: 1, UserID: 1}
	if err := st.SaveDialogueState(models.DialogueState{
		Key:      key,
		StepName: models.CaseCareerDialog + ":chatting",
		Payload:  map[string]any{"case_id": models.CaseCareerDialog},
	}); err != nil {
		log.Fatalf("Failed to save dialogue state: %v", err)
	}

	lifecycle := session.NewManager(st)
	if err := lifecycle.BeginCase(key.UserID, models.CaseCareerDialog); err != nil {
		log.Fatalf("Failed to begin case: %v", err)
	}

	channel := models.ChannelID(models.RoleDialogue, models.TierPrimary)
	for _, turn := range []models.ConversationTurn{
		{ID: "t1", UserID: key.UserID, ChannelID: channel, Speaker: models.SpeakerUser, Content: "I want to talk about my growth."},
		{ID: "t2", UserID: key.UserID, ChannelID: channel, Speaker: models.SpeakerAssistant, Content: "Sure. What role do you see yourself in next year?"},
	} {
		if _, err := st.AppendTurn(turn); err != nil {
			log.Fatalf("Failed to append turn: %v", err)
		}
	}

	snap, err := recovery.NewLoader(st, nil).Load(key)
	if err != nil {
		log.Fatalf("Failed to load snapshot: %v", err)
	}
	fmt.Printf("step=%s open turns on %s: %d\n", snap.State.StepName, channel, len(snap.Histories[channel]))
}
