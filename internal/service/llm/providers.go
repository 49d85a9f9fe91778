package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/kapu/pitch-coach-go/internal/domain"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

// OpenAIProvider wraps the OpenAI chat completion client.
type OpenAIProvider struct {
	client       *openai.Client
	defaultModel string
	sampling     SamplingConfig
	logger       *zap.Logger
}

// NewOpenAIProvider returns nil when apiKey is empty so callers can treat the
// provider as optional.
func NewOpenAIProvider(apiKey, defaultModel string, sampling SamplingConfig, logger *zap.Logger) *OpenAIProvider {
	if apiKey == "" {
		return nil
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIProvider{
		client:       &client,
		defaultModel: defaultModel,
		sampling:     sampling,
		logger:       logger,
	}
}

func (o *OpenAIProvider) Name() string {
	return "OpenAI"
}

func (o *OpenAIProvider) Generate(ctx context.Context, messages []domain.ChatMessage, opts *GenerateOptions) (ProviderResult, error) {
	if o == nil || o.client == nil {
		return ProviderResult{}, fmt.Errorf("OpenAI client not initialized")
	}

	modelName := opts.model(o.defaultModel)
	cfg := opts.sampling(o.sampling)

	params := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case domain.RoleSystem:
			params = append(params, openai.SystemMessage(m.Content))
		case domain.RoleAssistant:
			params = append(params, openai.AssistantMessage(m.Content))
		default:
			params = append(params, openai.UserMessage(m.Content))
		}
	}

	o.logger.Debug("Generating with OpenAI",
		zap.String("model", modelName),
		zap.Int("messages", len(messages)),
	)

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:            openai.ChatModel(modelName),
		Messages:         params,
		MaxTokens:        openai.Int(int64(cfg.MaxTokens)),
		Temperature:      openai.Float(cfg.Temperature),
		PresencePenalty:  openai.Float(cfg.PresencePenalty),
		FrequencyPenalty: openai.Float(cfg.FrequencyPenalty),
	})
	if err != nil {
		o.logger.Warn("OpenAI generation failed", zap.Error(err))
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return ProviderResult{}, &StatusError{Provider: o.Name(), StatusCode: apiErr.StatusCode, Err: err}
		}
		return ProviderResult{}, err
	}

	if len(resp.Choices) == 0 {
		return ProviderResult{}, fmt.Errorf("no choices in OpenAI response")
	}

	text := resp.Choices[0].Message.Content
	o.logger.Debug("OpenAI response received",
		zap.Int("length", len(text)),
		zap.Int64("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int64("completion_tokens", resp.Usage.CompletionTokens),
	)

	return ProviderResult{Text: text, Model: modelName}, nil
}

func (o *OpenAIProvider) Ping(ctx context.Context) bool {
	if o == nil || o.client == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(o.defaultModel),
		Messages:    []openai.ChatCompletionMessageParamUnion{openai.UserMessage("ping")},
		MaxTokens:   openai.Int(5),
		Temperature: openai.Float(0),
	})
	if err != nil {
		o.logger.Debug("OpenAI ping failed", zap.Error(err))
		return false
	}
	return len(resp.Choices) > 0
}

// GeminiProvider wraps the Gemini client. System messages become the system
// instruction and assistant turns use the "model" role.
type GeminiProvider struct {
	client       *genai.Client
	defaultModel string
	sampling     SamplingConfig
	logger       *zap.Logger
}

func NewGeminiProvider(ctx context.Context, apiKey, defaultModel string, sampling SamplingConfig, logger *zap.Logger) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiProvider{
		client:       client,
		defaultModel: defaultModel,
		sampling:     sampling,
		logger:       logger,
	}, nil
}

func (g *GeminiProvider) Name() string {
	return "Gemini"
}

func (g *GeminiProvider) Generate(ctx context.Context, messages []domain.ChatMessage, opts *GenerateOptions) (ProviderResult, error) {
	if g == nil || g.client == nil {
		return ProviderResult{}, fmt.Errorf("gemini client not initialized")
	}

	modelName := opts.model(g.defaultModel)
	cfg := opts.sampling(g.sampling)
	system, turns := splitSystem(messages)

	contents := make([]*genai.Content, 0, len(turns)+1)
	for _, m := range turns {
		role := "user"
		if m.Role == domain.RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}
	if len(contents) == 0 {
		contents = append(contents, &genai.Content{Role: "user", Parts: []*genai.Part{{Text: "Begin."}}})
	}

	temperature := float32(cfg.Temperature)
	genConfig := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: int32(cfg.MaxTokens),
	}
	if system != "" {
		genConfig.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}

	g.logger.Debug("Generating with Gemini",
		zap.String("model", modelName),
		zap.Int("messages", len(contents)),
	)

	resp, err := g.client.Models.GenerateContent(ctx, modelName, contents, genConfig)
	if err != nil {
		g.logger.Warn("Gemini generation failed", zap.Error(err))
		return ProviderResult{}, err
	}

	text := extractTextFromGeminiResponse(resp)
	if text == "" {
		return ProviderResult{}, fmt.Errorf("%w: Gemini", ErrEmptyResponse)
	}
	return ProviderResult{Text: text, Model: modelName}, nil
}

func (g *GeminiProvider) Ping(ctx context.Context) bool {
	if g == nil || g.client == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	temp := float32(0)
	resp, err := g.client.Models.GenerateContent(ctx, g.defaultModel, []*genai.Content{
		{Role: "user", Parts: []*genai.Part{{Text: "ping"}}},
	}, &genai.GenerateContentConfig{Temperature: &temp, MaxOutputTokens: 10})
	if err != nil {
		g.logger.Debug("Gemini ping failed", zap.Error(err))
		return false
	}
	return extractTextFromGeminiResponse(resp) != ""
}

func extractTextFromGeminiResponse(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return ""
	}

	var texts []string
	for _, part := range candidate.Content.Parts {
		if part.Text != "" {
			texts = append(texts, part.Text)
		}
	}
	return strings.Join(texts, "")
}

// AnthropicProvider wraps the Anthropic Messages API.
type AnthropicProvider struct {
	client       anthropic.Client
	defaultModel string
	sampling     SamplingConfig
	logger       *zap.Logger
}

func NewAnthropicProvider(apiKey, defaultModel string, sampling SamplingConfig, logger *zap.Logger) *AnthropicProvider {
	if apiKey == "" {
		return nil
	}
	return &AnthropicProvider{
		client:       anthropic.NewClient(anthropicoption.WithAPIKey(apiKey)),
		defaultModel: defaultModel,
		sampling:     sampling,
		logger:       logger,
	}
}

func (a *AnthropicProvider) Name() string {
	return "Anthropic"
}

func (a *AnthropicProvider) Generate(ctx context.Context, messages []domain.ChatMessage, opts *GenerateOptions) (ProviderResult, error) {
	if a == nil {
		return ProviderResult{}, fmt.Errorf("anthropic client not initialized")
	}

	modelName := opts.model(a.defaultModel)
	cfg := opts.sampling(a.sampling)
	system, turns := splitSystem(messages)

	params := make([]anthropic.MessageParam, 0, len(turns)+1)
	for _, m := range turns {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == domain.RoleAssistant {
			params = append(params, anthropic.NewAssistantMessage(block))
		} else {
			params = append(params, anthropic.NewUserMessage(block))
		}
	}
	if len(params) == 0 {
		params = append(params, anthropic.NewUserMessage(anthropic.NewTextBlock("Begin.")))
	}

	req := anthropic.MessageNewParams{
		Model:       anthropic.Model(modelName),
		MaxTokens:   int64(cfg.MaxTokens),
		Temperature: anthropic.Float(cfg.Temperature),
		Messages:    params,
	}
	if system != "" {
		req.System = []anthropic.TextBlockParam{{Text: system}}
	}

	a.logger.Debug("Generating with Anthropic",
		zap.String("model", modelName),
		zap.Int("messages", len(params)),
	)

	msg, err := a.client.Messages.New(ctx, req)
	if err != nil {
		a.logger.Warn("Anthropic generation failed", zap.Error(err))
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return ProviderResult{}, &StatusError{Provider: a.Name(), StatusCode: apiErr.StatusCode, Err: err}
		}
		return ProviderResult{}, err
	}

	var parts []string
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			parts = append(parts, tb.Text)
		}
	}
	text := strings.Join(parts, "")
	if text == "" {
		return ProviderResult{}, fmt.Errorf("%w: Anthropic", ErrEmptyResponse)
	}
	return ProviderResult{Text: text, Model: modelName}, nil
}

func (a *AnthropicProvider) Ping(ctx context.Context) bool {
	if a == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.defaultModel),
		MaxTokens: 5,
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock("ping"))},
	})
	if err != nil {
		a.logger.Debug("Anthropic ping failed", zap.Error(err))
		return false
	}
	return true
}

// OfflineProvider never reaches a model. It lets the service run without
// credentials: roleplay uses canned replies and feedback reports the failure.
type OfflineProvider struct{}

func (OfflineProvider) Name() string {
	return "Offline"
}

func (OfflineProvider) Generate(context.Context, []domain.ChatMessage, *GenerateOptions) (ProviderResult, error) {
	return ProviderResult{}, ErrCompletionDisabled
}

func (OfflineProvider) Ping(context.Context) bool {
	return true
}

// Complete lets OfflineProvider stand in for a Completer directly.
func (OfflineProvider) Complete(context.Context, []domain.ChatMessage) (string, error) {
	return "", ErrCompletionDisabled
}
