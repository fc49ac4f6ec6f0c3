package dialogue

import (
	"context"
	"fmt"
	"strings"

	"github.com/practica-ai/practica/internal/models"
	"github.com/practica-ai/practica/internal/recovery"
	"github.com/practica-ai/practica/internal/tone"
)

// StepTopMenu is the entry step. It carries no case prefix, so no
// provider channels are attached to it.
const StepTopMenu = "menu"

// Commands understood inside a running case.
const (
	cmdRestart = "/restart"
	cmdReview  = "/review"
	cmdMenu    = "/menu"
	cmdTone    = "/tone"
)

func chattingStep(caseID string) string { return caseID + ":chatting" }

type caseDef struct {
	ID            string
	Title         string
	PersonaPrompt string
	ReviewPrompt  string
}

var caseDefs = []caseDef{
	{
		ID:    models.CaseCareerDialog,
		Title: "Career consultation",
		PersonaPrompt: "You are an employee discussing your career growth with your manager. " +
			"Answer naturally and concisely, share your goals and doubts, and react to how the manager leads the conversation.",
		ReviewPrompt: "You are a leadership communication coach. Review the manager's side of this career conversation: " +
			"note what worked, what to improve, and give two concrete suggestions. Be brief and specific.",
	},
	{
		ID:    models.CaseFeedbackToEmployee,
		Title: "Feedback to an employee",
		PersonaPrompt: "You are an employee receiving structured feedback from your manager. " +
			"React realistically: ask clarifying questions, push back when feedback is vague, accept it when it is specific.",
		ReviewPrompt: "You are a feedback coach. Review how the manager delivered feedback in this conversation " +
			"against the model of specific, behavioral, actionable feedback. Name strengths, gaps, and two improvements.",
	},
	{
		ID:    models.CaseFeedbackToPeer,
		Title: "Feedback to a peer",
		PersonaPrompt: "You are a peer colleague receiving feedback. You have no reporting line to the speaker, " +
			"so respond as an equal: open to input but ready to disagree.",
		ReviewPrompt: "You are a feedback coach. Review this peer feedback conversation: assess tone, specificity " +
			"and whether the speaker preserved the peer relationship. Give two concrete improvements.",
	},
}

func caseByID(id string) (caseDef, bool) {
	for _, c := range caseDefs {
		if c.ID == id {
			return c, true
		}
	}
	return caseDef{}, false
}

func menuText() string {
	var b strings.Builder
	b.WriteString("Choose a practice case:\n")
	for i, c := range caseDefs {
		fmt.Fprintf(&b, "%d. %s (%s)\n", i+1, c.Title, c.ID)
	}
	b.WriteString("Reply with a number or case ID.")
	return b.String()
}

// RegisterDefaultSteps wires the shipped step machine into an engine:
// the top menu plus one chatting step per case.
func RegisterDefaultSteps(e *Engine) {
	e.Register(StepTopMenu, HandlerFunc(handleMenu))
	for _, c := range caseDefs {
		c := c
		e.Register(chattingStep(c.ID), HandlerFunc(func(ctx context.Context, ev Event, snap *recovery.Snapshot, acts *Actions) (*Result, error) {
			return handleChatting(ctx, ev, snap, acts, c)
		}))
	}
}

// handleMenu resolves a case selection and starts the case: sessions
// closed first, then the opening persona message, then the step commit.
func handleMenu(ctx context.Context, ev Event, _ *recovery.Snapshot, acts *Actions) (*Result, error) {
	choice := strings.TrimSpace(strings.ToLower(ev.Text))
	var selected caseDef
	found := false
	for i, c := range caseDefs {
		if choice == c.ID || choice == fmt.Sprintf("%d", i+1) {
			selected = c
			found = true
			break
		}
	}
	if !found {
		return &Result{StepName: StepTopMenu, Replies: []string{menuText()}}, nil
	}

	if err := acts.BeginCase(ev.UserID, selected.ID); err != nil {
		return nil, err
	}
	resp, err := acts.SendDialogue(ctx, ev.UserID, selected.ID, selected.PersonaPrompt,
		"Start the conversation with a short opening line in character.", nil)
	if err != nil {
		return nil, err
	}
	return &Result{
		StepName: chattingStep(selected.ID),
		Payload:  map[string]any{"case_id": selected.ID},
		Replies: []string{
			fmt.Sprintf("Starting: %s. Send /review for coach feedback, /restart to start over, /menu to leave.", selected.Title),
			resp.Content,
		},
	}, nil
}

// handleChatting is the in-case loop: free text (or voice) goes to the
// persona, commands drive the lifecycle.
func handleChatting(ctx context.Context, ev Event, snap *recovery.Snapshot, acts *Actions, c caseDef) (*Result, error) {
	text := strings.TrimSpace(strings.ToLower(ev.Text))
	if strings.HasPrefix(text, cmdTone) {
		return handleTone(text, snap, c)
	}
	personaPrompt := c.PersonaPrompt + tone.BuildToneGuide(toneTags(snap))

	switch text {
	case cmdMenu:
		if err := acts.ReturnToTop(ev.UserID); err != nil {
			return nil, err
		}
		return &Result{StepName: StepTopMenu, Replies: []string{menuText()}}, nil

	case cmdRestart:
		if err := acts.RestartCase(ev.UserID, c.ID); err != nil {
			return nil, err
		}
		resp, err := acts.SendDialogue(ctx, ev.UserID, c.ID, personaPrompt,
			"Start the conversation over with a short opening line in character.", nil)
		if err != nil {
			return nil, err
		}
		return &Result{
			StepName: chattingStep(c.ID),
			Payload:  snapPayload(snap),
			Replies:  []string{"Restarted.", resp.Content},
		}, nil

	case cmdReview:
		transcript := DialogueTranscript(snap.Histories)
		if transcript == "" {
			return &Result{StepName: chattingStep(c.ID), Payload: snapPayload(snap), Replies: []string{"Nothing to review yet. Say something to the persona first."}}, nil
		}
		resp, err := acts.SendReviewer(ctx, ev.UserID, c.ID, c.ReviewPrompt, transcript)
		if err != nil {
			return nil, err
		}
		if err := acts.CompleteReview(ev.UserID, c.ID); err != nil {
			return nil, err
		}
		return &Result{StepName: chattingStep(c.ID), Payload: snapPayload(snap), Replies: []string{resp.Content}}, nil
	}

	resp, err := acts.SendDialogue(ctx, ev.UserID, c.ID, personaPrompt, ev.Text, ev.Audio)
	if err != nil {
		return nil, err
	}
	return &Result{StepName: chattingStep(c.ID), Payload: snapPayload(snap), Replies: []string{resp.Content}}, nil
}

// handleTone updates the style tags stored in the state payload. The
// tags survive restarts and reviews; only leaving for the menu keeps
// them (they belong to the user, not the case run).
func handleTone(text string, snap *recovery.Snapshot, c caseDef) (*Result, error) {
	args := strings.TrimSpace(strings.TrimPrefix(text, cmdTone))
	payload := snapPayload(snap)
	if payload == nil {
		payload = map[string]any{"case_id": c.ID}
	}
	if args == "" {
		current := strings.Join(toneTags(snap), ", ")
		if current == "" {
			current = "none"
		}
		return &Result{
			StepName: chattingStep(c.ID),
			Payload:  payload,
			Replies:  []string{fmt.Sprintf("Active style tags: %s. Set with /tone tag1,tag2.", current)},
		}, nil
	}
	tags := tone.ValidateTags(strings.FieldsFunc(args, func(r rune) bool { return r == ',' || r == ' ' }))
	payload["tone_tags"] = tags
	return &Result{
		StepName: chattingStep(c.ID),
		Payload:  payload,
		Replies:  []string{fmt.Sprintf("Style updated: %s", strings.Join(tags, ", "))},
	}, nil
}

// toneTags reads the style tags out of the state payload, tolerating
// the []any shape a JSON round-trip produces.
func toneTags(snap *recovery.Snapshot) []string {
	if snap.State == nil {
		return nil
	}
	switch v := snap.State.Payload["tone_tags"].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, x := range v {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// snapPayload carries the existing payload forward unchanged for steps
// that do not rewrite it. Saves always replace the document wholesale.
func snapPayload(snap *recovery.Snapshot) map[string]any {
	if snap.State == nil {
		return nil
	}
	return snap.State.Payload
}
