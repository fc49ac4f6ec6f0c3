// Package models defines the core data structures shared across Practica:
// dialogue-machine state, conversation turns, and channel identities.
package models

import (
	"fmt"
	"time"
)

// StateKey is the composite identity of a dialogue-machine state row.
// One bot instance can serve many chats; one chat can host many users.
type StateKey struct {
	BotID  string `json:"bot_id"`
	ChatID int64  `json:"chat_id"`
	UserID int64  `json:"user_id"`
}

// Validate checks that all key components are present.
func (k StateKey) Validate() error {
	if k.BotID == "" {
		return fmt.Errorf("state key missing bot ID")
	}
	if k.ChatID == 0 {
		return fmt.Errorf("state key missing chat ID")
	}
	if k.UserID == 0 {
		return fmt.Errorf("state key missing user ID")
	}
	return nil
}

// String renders the key in "bot:chat:user" form for logging.
func (k StateKey) String() string {
	return fmt.Sprintf("%s:%d:%d", k.BotID, k.ChatID, k.UserID)
}

// DialogueState is the durable state of one user's dialogue machine:
// the current step plus an open payload document. The payload is
// replaced wholesale on every save; it is never field-patched, so a
// reader always observes step and payload from the same write.
type DialogueState struct {
	Key       StateKey       `json:"key"`
	StepName  string         `json:"step_name"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// CaseID extracts the case identifier from the step name. Step names
// follow the "case:step" convention ("career_dialog:awaiting_answer");
// a step without a case prefix yields an empty case ID.
func (s *DialogueState) CaseID() string {
	if s == nil {
		return ""
	}
	return CaseFromStep(s.StepName)
}

// Shipped practice case identifiers. They prefix step names and key the
// per-case provider chain configuration.
const (
	CaseCareerDialog       = "career_dialog"
	CaseFeedbackToEmployee = "fb_employee"
	CaseFeedbackToPeer     = "fb_peer"
)

// Cases lists the shipped practice cases.
func Cases() []string {
	return []string{CaseCareerDialog, CaseFeedbackToEmployee, CaseFeedbackToPeer}
}

// CaseFromStep returns the case prefix of a step name, or "".
func CaseFromStep(stepName string) string {
	for i := 0; i < len(stepName); i++ {
		if stepName[i] == ':' {
			return stepName[:i]
		}
	}
	return ""
}

// Speaker identifies who produced a conversation turn.
type Speaker string

const (
	SpeakerSystem    Speaker = "system"
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// Validate checks that the speaker is one of the known values.
func (s Speaker) Validate() error {
	switch s {
	case SpeakerSystem, SpeakerUser, SpeakerAssistant:
		return nil
	}
	return fmt.Errorf("unknown speaker %q", s)
}

// ConversationTurn is one entry in the append-only turn log. A session
// is the maximal run of turns for a (user, channel) pair that share
// ClosedAt == nil, ordered by Seq. Seq is assigned by the store and is
// strictly increasing per backend, so ordering never depends on the
// persisted clock resolution.
type ConversationTurn struct {
	Seq       int64          `json:"seq"`
	ID        string         `json:"id"`
	UserID    int64          `json:"user_id"`
	ChannelID string         `json:"channel_id"`
	Speaker   Speaker        `json:"speaker"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	ClosedAt  *time.Time     `json:"closed_at,omitempty"`
}

// Validate checks the invariants a turn must satisfy before it may be
// appended. A violation is a programming-contract failure, not user input.
func (t ConversationTurn) Validate() error {
	if t.UserID == 0 {
		return fmt.Errorf("turn missing user ID")
	}
	if t.ChannelID == "" {
		return fmt.Errorf("turn missing channel ID")
	}
	return t.Speaker.Validate()
}
