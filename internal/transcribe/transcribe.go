// Package transcribe converts voice audio to text through the OpenAI
// transcription API. It backs the gateway's audio adaptation for
// providers without native audio understanding.
package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	// DefaultTimeout caps one transcription attempt.
	DefaultTimeout = 30 * time.Second
	// DefaultRetries is the number of attempts per model.
	DefaultRetries = 2
	// retryBackoff grows linearly with the attempt number.
	retryBackoff = 2 * time.Second
)

// Opts holds configuration options for the transcription service.
type Opts struct {
	Models  []openai.AudioModel
	Timeout time.Duration
	Retries int
}

// Option configures a Service.
type Option func(*Opts)

// WithModels overrides the transcription model ladder.
func WithModels(models ...openai.AudioModel) Option {
	return func(o *Opts) { o.Models = models }
}

// WithTimeout overrides the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// WithRetries overrides the per-model attempt count.
func WithRetries(n int) Option {
	return func(o *Opts) { o.Retries = n }
}

// Service transcribes audio with a model ladder: each model gets a
// bounded number of attempts with linear backoff, and the first
// non-empty transcript wins. An empty transcript counts as a failure so
// the ladder can fall through to the next model.
type Service struct {
	client  openai.Client
	models  []openai.AudioModel
	timeout time.Duration
	retries int
}

// NewService creates a transcription service with the given API key.
func NewService(apiKey string, opts ...Option) (*Service, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	o := Opts{
		Models:  []openai.AudioModel{openai.AudioModelGPT4oTranscribe, openai.AudioModelWhisper1},
		Timeout: DefaultTimeout,
		Retries: DefaultRetries,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if len(o.Models) == 0 {
		return nil, fmt.Errorf("transcription model ladder is empty")
	}
	if o.Retries < 1 {
		o.Retries = 1
	}
	return &Service{
		client:  openai.NewClient(option.WithAPIKey(apiKey)),
		models:  o.Models,
		timeout: o.Timeout,
		retries: o.Retries,
	}, nil
}

// Transcribe returns the text of the given voice audio, walking the
// model ladder until one attempt yields a non-empty transcript.
func (s *Service) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("empty audio payload")
	}
	var failures []string
	for _, model := range s.models {
		for attempt := 1; attempt <= s.retries; attempt++ {
			if attempt > 1 {
				select {
				case <-ctx.Done():
					return "", ctx.Err()
				case <-time.After(time.Duration(attempt-1) * retryBackoff):
				}
			}
			text, err := s.transcribeOnce(ctx, model, audio)
			if err != nil {
				failures = append(failures, fmt.Sprintf("%s: %v", model, err))
				slog.Warn("Transcribe attempt failed", "error", err, "model", model, "attempt", attempt)
				continue
			}
			if text == "" {
				failures = append(failures, fmt.Sprintf("%s: empty transcript", model))
				slog.Warn("Transcribe returned empty transcript", "model", model, "attempt", attempt)
				continue
			}
			slog.Debug("Transcribe succeeded", "model", model, "attempt", attempt, "chars", len(text))
			return text, nil
		}
	}
	return "", fmt.Errorf("all transcription models failed: %s", strings.Join(failures, "; "))
}

func (s *Service) transcribeOnce(ctx context.Context, model openai.AudioModel, audio []byte) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	transcription, err := s.client.Audio.Transcriptions.New(attemptCtx, openai.AudioTranscriptionNewParams{
		Model: model,
		File:  openai.File(bytes.NewReader(audio), "voice.mp3", "audio/mpeg"),
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(transcription.Text), nil
}
