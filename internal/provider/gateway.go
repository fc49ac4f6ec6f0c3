package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/practica-ai/practica/internal/metrics"
	"github.com/practica-ai/practica/internal/models"
	"github.com/practica-ai/practica/internal/store"
)

// DefaultAttemptTimeout caps each individual provider attempt. The
// budget is per attempt, not per chain, so a hung primary cannot starve
// the fallback.
const DefaultAttemptTimeout = 60 * time.Second

// GatewayOpts holds configuration options for the gateway.
type GatewayOpts struct {
	Configs     map[string]CaseConfig
	Transcriber Transcriber
	Recorder    metrics.Recorder
	Timeout     time.Duration
}

// GatewayOption configures a Gateway.
type GatewayOption func(*GatewayOpts)

// WithCaseConfigs overrides the per-case provider chains.
func WithCaseConfigs(configs map[string]CaseConfig) GatewayOption {
	return func(o *GatewayOpts) { o.Configs = configs }
}

// WithTranscriber sets the transcription service used to adapt audio
// for providers without native audio understanding.
func WithTranscriber(t Transcriber) GatewayOption {
	return func(o *GatewayOpts) { o.Transcriber = t }
}

// WithRecorder sets the observability sink for per-attempt events.
func WithRecorder(r metrics.Recorder) GatewayOption {
	return func(o *GatewayOpts) { o.Recorder = r }
}

// WithAttemptTimeout overrides the per-attempt hard timeout.
func WithAttemptTimeout(d time.Duration) GatewayOption {
	return func(o *GatewayOpts) { o.Timeout = d }
}

// Gateway routes calls through per-case provider chains. For each
// attempt it loads the open session history of the attempt's own tier
// channel, adapts audio to the provider's capability, enforces the hard
// timeout, and emits exactly one observability event. Turns are only
// appended after a successful attempt, so failed attempts leave no
// trace in any conversation history.
type Gateway struct {
	store       store.Store
	providers   map[string]Provider
	configs     map[string]CaseConfig
	transcriber Transcriber
	recorder    metrics.Recorder
	timeout     time.Duration
}

// NewGateway creates a gateway over the given store. Providers are added
// with Register; calls to chains that name an unregistered provider fall
// through to the next attempt.
func NewGateway(st store.Store, opts ...GatewayOption) *Gateway {
	o := GatewayOpts{
		Configs:  DefaultCaseConfigs(),
		Recorder: metrics.PromRecorder{},
		Timeout:  DefaultAttemptTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Gateway{
		store:       st,
		providers:   make(map[string]Provider),
		configs:     o.Configs,
		transcriber: o.Transcriber,
		recorder:    o.Recorder,
		timeout:     o.Timeout,
	}
}

// Register adds a provider under its own name, replacing any previous
// registration.
func (g *Gateway) Register(p Provider) {
	g.providers[p.Name()] = p
	slog.Debug("Gateway registered provider", "provider", p.Name(), "audio", p.SupportsAudio())
}

// Call is one gateway invocation: a user message (text, audio, or both)
// addressed to a role of a case.
type Call struct {
	UserID       int64
	CaseID       string
	Role         models.Role
	SystemPrompt string
	Message      string
	Audio        []byte
}

// Send walks the provider chain for the call's case and role. Transient
// failures advance to the next provider; permanent failures are returned
// immediately. On success the user turn and the assistant turn are
// appended to the winning attempt's channel, in that order, and the
// normalized response is returned.
func (g *Gateway) Send(ctx context.Context, call Call) (*Response, error) {
	if err := call.Role.Validate(); err != nil {
		return nil, err
	}
	cfg, ok := g.configs[call.CaseID]
	if !ok {
		return nil, fmt.Errorf("no provider chain configured for case %q", call.CaseID)
	}
	chain, err := cfg.chain(call.Role)
	if err != nil {
		return nil, err
	}

	// Transcribed at most once per call, shared across attempts.
	transcript := ""
	var failures []string
	for _, attempt := range chain.Attempts() {
		channelID := models.ChannelID(call.Role, attempt.Tier)
		p, registered := g.providers[attempt.Provider]
		if !registered {
			g.recorder.ProviderCall(attempt.Provider, string(attempt.Tier), metrics.OutcomeUnavailable, 0)
			failures = append(failures, fmt.Sprintf("%s: not registered", attempt.Provider))
			slog.Warn("Gateway provider not registered, skipping", "provider", attempt.Provider, "tier", attempt.Tier)
			continue
		}

		req := Request{
			Model:        attempt.Model,
			SystemPrompt: call.SystemPrompt,
			Message:      call.Message,
		}
		userContent := call.Message
		if len(call.Audio) > 0 {
			if p.SupportsAudio() {
				req.Audio = call.Audio
			} else {
				if transcript == "" {
					transcript, err = g.transcribe(ctx, call.Audio)
					if err != nil {
						g.recorder.ProviderCall(p.Name(), string(attempt.Tier), metrics.OutcomeTransient, 0)
						failures = append(failures, fmt.Sprintf("%s: transcription: %v", p.Name(), err))
						slog.Warn("Gateway transcription failed, skipping text-only provider", "error", err, "provider", p.Name(), "tier", attempt.Tier)
						continue
					}
				}
				req.Message = joinMessage(call.Message, transcript)
				userContent = req.Message
			}
		}

		req.History, err = g.store.ActiveTurns(call.UserID, channelID)
		if err != nil {
			return nil, fmt.Errorf("load history for user %d channel %s: %w", call.UserID, channelID, err)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, g.timeout)
		start := time.Now()
		resp, sendErr := p.Send(attemptCtx, req)
		latency := time.Since(start)
		cancel()

		if sendErr != nil {
			if !IsTransient(sendErr) {
				g.recorder.ProviderCall(p.Name(), string(attempt.Tier), metrics.OutcomePermanent, latency)
				slog.Error("Gateway provider call failed permanently", "error", sendErr, "provider", p.Name(), "tier", attempt.Tier, "userID", call.UserID, "caseID", call.CaseID)
				return nil, sendErr
			}
			g.recorder.ProviderCall(p.Name(), string(attempt.Tier), metrics.OutcomeTransient, latency)
			failures = append(failures, fmt.Sprintf("%s/%s: %v", p.Name(), attempt.Model, sendErr))
			slog.Warn("Gateway provider call failed, trying next", "error", sendErr, "provider", p.Name(), "tier", attempt.Tier, "userID", call.UserID, "caseID", call.CaseID)
			continue
		}
		g.recorder.ProviderCall(p.Name(), string(attempt.Tier), metrics.OutcomeSuccess, latency)

		if err := g.appendExchange(call, channelID, userContent, len(call.Audio) > 0, resp); err != nil {
			return nil, err
		}
		slog.Debug("Gateway call succeeded", "provider", p.Name(), "tier", attempt.Tier, "model", resp.Model, "userID", call.UserID, "caseID", call.CaseID, "latency", latency)
		return resp, nil
	}
	return nil, fmt.Errorf("all providers failed for case %s role %s: %s", call.CaseID, call.Role, strings.Join(failures, "; "))
}

func (g *Gateway) transcribe(ctx context.Context, audio []byte) (string, error) {
	if g.transcriber == nil {
		return "", fmt.Errorf("no transcriber configured")
	}
	return g.transcriber.Transcribe(ctx, audio)
}

// appendExchange records the successful exchange on the winning channel:
// user turn first, assistant turn second, so replayed histories keep the
// prompt/response pairing.
func (g *Gateway) appendExchange(call Call, channelID, userContent string, audio bool, resp *Response) error {
	now := time.Now().UTC()
	userTurn := models.ConversationTurn{
		ID:        uuid.NewString(),
		UserID:    call.UserID,
		ChannelID: channelID,
		Speaker:   models.SpeakerUser,
		Content:   userContent,
		CreatedAt: now,
	}
	if audio {
		userTurn.Metadata = map[string]any{"audio": true}
	}
	if _, err := g.store.AppendTurn(userTurn); err != nil {
		return fmt.Errorf("append user turn: %w", err)
	}
	assistantTurn := models.ConversationTurn{
		ID:        uuid.NewString(),
		UserID:    call.UserID,
		ChannelID: channelID,
		Speaker:   models.SpeakerAssistant,
		Content:   resp.Content,
		Metadata: map[string]any{
			"provider":          resp.Provider,
			"model":             resp.Model,
			"prompt_tokens":     resp.Usage.PromptTokens,
			"completion_tokens": resp.Usage.CompletionTokens,
		},
		CreatedAt: now,
	}
	if _, err := g.store.AppendTurn(assistantTurn); err != nil {
		return fmt.Errorf("append assistant turn: %w", err)
	}
	return nil
}

func joinMessage(message, transcript string) string {
	if message == "" {
		return transcript
	}
	if transcript == "" {
		return message
	}
	return message + "\n" + transcript
}
