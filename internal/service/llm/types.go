package llm

import (
	"context"
	"errors"

	"github.com/kapu/pitch-coach-go/internal/constants"
	"github.com/kapu/pitch-coach-go/internal/domain"
)

// Completer is the narrow boundary every caller of a language model goes
// through: messages in, reply text out.
type Completer interface {
	Complete(ctx context.Context, messages []domain.ChatMessage) (string, error)
}

// Provider is one concrete backend behind the Manager.
type Provider interface {
	Name() string
	Generate(ctx context.Context, messages []domain.ChatMessage, opts *GenerateOptions) (ProviderResult, error)
	Ping(ctx context.Context) bool
}

type ProviderResult struct {
	Text  string
	Model string
}

// GenerateMetadata describes which backend produced a reply.
type GenerateMetadata struct {
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	UsedFallback bool   `json:"usedFallback"`
}

// SamplingConfig mirrors the chat-completion knobs shared by the providers.
type SamplingConfig struct {
	Temperature      float64
	MaxTokens        int
	PresencePenalty  float64
	FrequencyPenalty float64
}

// DefaultSampling matches the coaching endpoint's settings.
func DefaultSampling() SamplingConfig {
	return SamplingConfig{
		Temperature:      constants.CompletionDefaults.Temperature,
		MaxTokens:        constants.CompletionDefaults.MaxTokens,
		PresencePenalty:  constants.CompletionDefaults.PresencePenalty,
		FrequencyPenalty: constants.CompletionDefaults.FrequencyPenalty,
	}
}

type GenerateOptions struct {
	Model     string
	Overrides *SamplingConfig
}

func (o *GenerateOptions) sampling(base SamplingConfig) SamplingConfig {
	if o == nil || o.Overrides == nil {
		return base
	}
	out := base
	if o.Overrides.Temperature > 0 {
		out.Temperature = o.Overrides.Temperature
	}
	if o.Overrides.MaxTokens > 0 {
		out.MaxTokens = o.Overrides.MaxTokens
	}
	if o.Overrides.PresencePenalty != 0 {
		out.PresencePenalty = o.Overrides.PresencePenalty
	}
	if o.Overrides.FrequencyPenalty != 0 {
		out.FrequencyPenalty = o.Overrides.FrequencyPenalty
	}
	return out
}

func (o *GenerateOptions) model(def string) string {
	if o != nil && o.Model != "" {
		return o.Model
	}
	return def
}

var (
	// ErrCompletionDisabled is returned by the offline provider; roleplay falls
	// back to canned replies and the feedback path reports the failure.
	ErrCompletionDisabled = errors.New("language model completion is disabled")
	ErrEmptyResponse      = errors.New("empty response from language model")
	ErrCircuitOpen        = errors.New("language model temporarily unavailable")
)

// splitSystem separates system prompts from the conversational turns, which
// is how Gemini and Anthropic expect them.
func splitSystem(messages []domain.ChatMessage) (system string, turns []domain.ChatMessage) {
	turns = make([]domain.ChatMessage, 0, len(messages))
	for _, m := range messages {
		if m.Role == domain.RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		turns = append(turns, m)
	}
	return system, turns
}
