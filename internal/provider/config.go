package provider

import (
	"fmt"

	"github.com/practica-ai/practica/internal/models"
)

// Ref names one provider/model pair in a chain.
type Ref struct {
	Provider string
	Model    string
}

// Chain is the ordered provider list for one role: a mandatory primary
// and an optional fallback used only after a transient primary failure.
type Chain struct {
	Primary  Ref
	Fallback *Ref
}

// Attempt is one resolved slot of a chain, tagged with the tier that
// determines which conversation channel the attempt talks on.
type Attempt struct {
	Ref
	Tier models.Tier
}

// Attempts expands the chain in fallback order.
func (c Chain) Attempts() []Attempt {
	attempts := []Attempt{{Ref: c.Primary, Tier: models.TierPrimary}}
	if c.Fallback != nil {
		attempts = append(attempts, Attempt{Ref: *c.Fallback, Tier: models.TierFallback})
	}
	return attempts
}

// CaseConfig binds provider chains to the two roles of a practice case.
type CaseConfig struct {
	Dialogue Chain
	Reviewer Chain
}

func (c CaseConfig) chain(role models.Role) (Chain, error) {
	switch role {
	case models.RoleDialogue:
		return c.Dialogue, nil
	case models.RoleReviewer:
		return c.Reviewer, nil
	default:
		return Chain{}, fmt.Errorf("unknown provider role %q", role)
	}
}

// Default models per role. The dialogue persona runs on a fast
// audio-capable model; the reviewer runs on a stronger model with an
// OpenAI fallback for Anthropic outages.
const (
	DefaultDialogueModel         = "gpt-4o-mini"
	DefaultReviewerModel         = "claude-3-5-sonnet-20241022"
	DefaultReviewerFallbackModel = "gpt-4o"
)

func defaultConfig() CaseConfig {
	return CaseConfig{
		Dialogue: Chain{
			Primary: Ref{Provider: "openai", Model: DefaultDialogueModel},
		},
		Reviewer: Chain{
			Primary:  Ref{Provider: "anthropic", Model: DefaultReviewerModel},
			Fallback: &Ref{Provider: "openai", Model: DefaultReviewerFallbackModel},
		},
	}
}

// DefaultCaseConfigs returns the built-in chain configuration for the
// shipped practice cases. Every case currently shares one chain layout;
// the per-case map exists so individual cases can pin different models
// without touching the gateway.
func DefaultCaseConfigs() map[string]CaseConfig {
	return map[string]CaseConfig{
		models.CaseCareerDialog:       defaultConfig(),
		models.CaseFeedbackToEmployee: defaultConfig(),
		models.CaseFeedbackToPeer:     defaultConfig(),
	}
}
