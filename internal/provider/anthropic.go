package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/practica-ai/practica/internal/models"
)

const anthropicMaxTokens = 4096

// Anthropic sends messages through the Anthropic API. It has no native
// audio understanding; the gateway substitutes a transcript before the
// request reaches this adapter.
type Anthropic struct {
	client anthropic.Client
}

var _ Provider = (*Anthropic)(nil)

// NewAnthropic creates an Anthropic provider with the given API key.
func NewAnthropic(apiKey string) (*Anthropic, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required")
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &Anthropic{client: client}, nil
}

func (p *Anthropic) Name() string { return "anthropic" }

func (p *Anthropic) SupportsAudio() bool { return false }

// Send issues one messages call. System-speaker history is folded into
// the system blocks since the Anthropic messages array only carries user
// and assistant roles.
func (p *Anthropic) Send(ctx context.Context, req Request) (*Response, error) {
	if len(req.Audio) > 0 {
		return nil, &Error{Provider: p.Name(), Kind: KindPermanent, Err: fmt.Errorf("audio input is not supported")}
	}

	var system []anthropic.TextBlockParam
	if req.SystemPrompt != "" {
		system = append(system, anthropic.TextBlockParam{Text: req.SystemPrompt})
	}
	messages := make([]anthropic.MessageParam, 0, len(req.History)+1)
	for _, turn := range req.History {
		switch turn.Speaker {
		case models.SpeakerAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(turn.Content)))
		case models.SpeakerSystem:
			system = append(system, anthropic.TextBlockParam{Text: turn.Content})
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(turn.Content)))
		}
	}
	messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(req.Message)))

	slog.Debug("Anthropic.Send calling messages API", "model", req.Model, "historyLen", len(req.History))
	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: anthropicMaxTokens,
		System:    system,
		Messages:  messages,
	})
	if err != nil {
		return nil, p.classify(err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.AsText().Text)
		}
	}
	return &Response{
		Content:  sb.String(),
		Provider: p.Name(),
		Model:    string(msg.Model),
		Usage: Usage{
			PromptTokens:     msg.Usage.InputTokens,
			CompletionTokens: msg.Usage.OutputTokens,
		},
	}, nil
}

func (p *Anthropic) classify(err error) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		return &Error{Provider: p.Name(), Status: apierr.StatusCode, Kind: classifyStatus(apierr.StatusCode), Err: err}
	}
	return &Error{Provider: p.Name(), Kind: KindTransient, Err: err}
}
