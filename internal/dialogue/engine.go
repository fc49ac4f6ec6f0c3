// Package dialogue drives the step machine that turns inbound user
// events into provider calls and state transitions. One inbound event is
// one logical unit of work: load a fresh snapshot, dispatch to the step
// handler, commit the resulting state. The state write is the commit
// point; everything before it may be retried by redelivery.
package dialogue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/practica-ai/practica/internal/metrics"
	"github.com/practica-ai/practica/internal/models"
	"github.com/practica-ai/practica/internal/recovery"
	"github.com/practica-ai/practica/internal/store"
)

// Event is one inbound user message.
type Event struct {
	BotID  string
	ChatID int64
	UserID int64
	Text   string
	Audio  []byte
}

// Key returns the dialogue state identity for the event.
func (e Event) Key() models.StateKey {
	return models.StateKey{BotID: e.BotID, ChatID: e.ChatID, UserID: e.UserID}
}

// Result is a handler's outcome: the step to persist, the replacement
// payload document, and the replies to deliver to the user.
type Result struct {
	StepName string
	Payload  map[string]any
	Replies  []string
}

// Handler processes events for one step of the dialogue machine.
type Handler interface {
	Handle(ctx context.Context, ev Event, snap *recovery.Snapshot, acts *Actions) (*Result, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, ev Event, snap *recovery.Snapshot, acts *Actions) (*Result, error)

func (f HandlerFunc) Handle(ctx context.Context, ev Event, snap *recovery.Snapshot, acts *Actions) (*Result, error) {
	return f(ctx, ev, snap, acts)
}

// Engine dispatches events to step handlers and owns the state commit.
type Engine struct {
	store     store.Store
	loader    *recovery.Loader
	actions   *Actions
	handlers  map[string]Handler
	entryStep string
}

// NewEngine creates an engine. entryStep receives events from users with
// no persisted state and events whose persisted step has no handler.
func NewEngine(st store.Store, loader *recovery.Loader, acts *Actions, entryStep string) *Engine {
	return &Engine{
		store:     st,
		loader:    loader,
		actions:   acts,
		handlers:  make(map[string]Handler),
		entryStep: entryStep,
	}
}

// Register binds a handler to a step name, replacing any previous binding.
func (e *Engine) Register(step string, h Handler) {
	e.handlers[step] = h
}

// Process handles one inbound event end to end and returns the replies
// to deliver. Errors from handlers and from the state commit propagate;
// the caller decides whether redelivery applies.
func (e *Engine) Process(ctx context.Context, ev Event) ([]string, error) {
	start := time.Now()
	replies, err := e.process(ctx, ev)
	metrics.EventLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.EventsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.EventsTotal.WithLabelValues("success").Inc()
	return replies, nil
}

func (e *Engine) process(ctx context.Context, ev Event) ([]string, error) {
	key := ev.Key()
	if err := key.Validate(); err != nil {
		return nil, err
	}
	snap, err := e.loader.Load(key)
	if err != nil {
		return nil, err
	}

	step := e.entryStep
	if snap.State != nil {
		step = snap.State.StepName
	}
	h, ok := e.handlers[step]
	if !ok {
		// A step left behind by an older deployment routes to the entry
		// step rather than wedging the user.
		slog.Warn("Engine no handler for step, routing to entry", "step", step, "key", key.String())
		step = e.entryStep
		if h, ok = e.handlers[step]; !ok {
			return nil, fmt.Errorf("no handler registered for entry step %q", e.entryStep)
		}
	}

	slog.Debug("Engine dispatching event", "key", key.String(), "step", step, "audio", len(ev.Audio) > 0)
	res, err := h.Handle(ctx, ev, snap, e.actions)
	if err != nil {
		return nil, fmt.Errorf("handle step %s for %s: %w", step, key, err)
	}
	if res == nil || res.StepName == "" {
		return nil, fmt.Errorf("handler for step %s returned no next step", step)
	}

	if err := e.store.SaveDialogueState(models.DialogueState{
		Key:      key,
		StepName: res.StepName,
		Payload:  res.Payload,
	}); err != nil {
		return nil, fmt.Errorf("commit state for %s: %w", key, err)
	}
	slog.Debug("Engine event committed", "key", key.String(), "from", step, "to", res.StepName)
	return res.Replies, nil
}
