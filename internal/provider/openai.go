package provider

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/practica-ai/practica/internal/models"
)

// OpenAI sends chat completions through the OpenAI API. It is the one
// audio-capable provider: voice notes are passed inline as input_audio
// content parts instead of being transcribed first.
type OpenAI struct {
	client openai.Client
}

var _ Provider = (*OpenAI)(nil)

// NewOpenAI creates an OpenAI provider with the given API key.
func NewOpenAI(apiKey string) (*OpenAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAI{client: client}, nil
}

func (p *OpenAI) Name() string { return "openai" }

func (p *OpenAI) SupportsAudio() bool { return true }

// Send issues one chat completion call. History precedes the current
// message in API order; when audio is present the user message becomes a
// multi-part content block with the raw bytes base64-encoded.
func (p *OpenAI) Send(ctx context.Context, req Request) (*Response, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	for _, turn := range req.History {
		switch turn.Speaker {
		case models.SpeakerAssistant:
			messages = append(messages, openai.AssistantMessage(turn.Content))
		case models.SpeakerSystem:
			messages = append(messages, openai.SystemMessage(turn.Content))
		default:
			messages = append(messages, openai.UserMessage(turn.Content))
		}
	}
	if len(req.Audio) > 0 {
		parts := make([]openai.ChatCompletionContentPartUnionParam, 0, 2)
		if req.Message != "" {
			parts = append(parts, openai.TextContentPart(req.Message))
		}
		parts = append(parts, openai.InputAudioContentPart(openai.ChatCompletionContentPartInputAudioInputAudioParam{
			Data:   base64.StdEncoding.EncodeToString(req.Audio),
			Format: "mp3",
		}))
		messages = append(messages, openai.UserMessage(parts))
	} else {
		messages = append(messages, openai.UserMessage(req.Message))
	}

	slog.Debug("OpenAI.Send calling chat completion", "model", req.Model, "historyLen", len(req.History), "audio", len(req.Audio) > 0)
	completion, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: messages,
		Model:    req.Model,
	})
	if err != nil {
		return nil, p.classify(err)
	}
	if len(completion.Choices) == 0 {
		return nil, &Error{Provider: p.Name(), Kind: KindTransient, Err: fmt.Errorf("empty choices in completion response")}
	}
	return &Response{
		Content:  completion.Choices[0].Message.Content,
		Provider: p.Name(),
		Model:    completion.Model,
		Usage: Usage{
			PromptTokens:     completion.Usage.PromptTokens,
			CompletionTokens: completion.Usage.CompletionTokens,
		},
	}, nil
}

func (p *OpenAI) classify(err error) error {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		return &Error{Provider: p.Name(), Status: apierr.StatusCode, Kind: classifyStatus(apierr.StatusCode), Err: err}
	}
	return &Error{Provider: p.Name(), Kind: KindTransient, Err: err}
}
