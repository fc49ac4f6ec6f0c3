// Package provider routes AI calls to interchangeable model providers.
//
// Providers are normalized behind one request/response shape regardless
// of native API differences. The Gateway selects providers from a fixed
// per-case, per-role chain, falls back on transient failures, enforces a
// hard per-attempt timeout, and adapts audio input to each provider's
// capabilities.
package provider

import (
	"context"

	"github.com/practica-ai/practica/internal/models"
)

// Request is the normalized provider request. History holds the open
// session's prior turns for the channel being called; Audio carries raw
// voice bytes and is only populated for audio-capable providers.
type Request struct {
	Model        string
	SystemPrompt string
	Message      string
	History      []models.ConversationTurn
	Audio        []byte
}

// Usage reports token accounting when the provider exposes it.
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
}

// Response is the normalized provider response.
type Response struct {
	Content  string
	Provider string
	Model    string
	Usage    Usage
}

// Provider is a capability-tagged model backend. The gateway queries
// SupportsAudio rather than branching on provider identity.
type Provider interface {
	Name() string
	SupportsAudio() bool
	Send(ctx context.Context, req Request) (*Response, error)
}

// Transcriber converts voice audio to text for providers without native
// audio understanding. The gateway itself never transcribes.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}
