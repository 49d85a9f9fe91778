package llm

import (
	"encoding/json"
	"strings"

	"github.com/kapu/pitch-coach-go/internal/domain"
	apperrors "github.com/kapu/pitch-coach-go/pkg/errors"
)

// NormalizeReply turns a completion endpoint body into reply text. Three JSON
// shapes are accepted: a bare string, {"content": "..."} and the OpenAI style
// {"choices":[{"message":{"content":"..."}}]}. Anything that is not JSON is
// used as plain text.
func NormalizeReply(body []byte) (string, error) {
	raw := strings.TrimSpace(string(body))
	if raw == "" {
		return "", ErrEmptyResponse
	}

	var asString string
	if err := json.Unmarshal([]byte(raw), &asString); err == nil {
		return nonEmpty(asString)
	}

	var shaped struct {
		Content *string `json:"content"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal([]byte(raw), &shaped); err != nil {
		return raw, nil
	}
	if shaped.Content != nil {
		return nonEmpty(*shaped.Content)
	}
	if len(shaped.Choices) > 0 {
		return nonEmpty(shaped.Choices[0].Message.Content)
	}

	// Valid JSON in an unknown shape; callers such as the feedback path parse
	// it themselves.
	return raw, nil
}

func nonEmpty(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrEmptyResponse
	}
	return s, nil
}

// ValidateMessages checks a chat request before it reaches a provider.
func ValidateMessages(messages []domain.ChatMessage) error {
	if len(messages) == 0 {
		return apperrors.NewValidationError("messages array is required", "messages", nil)
	}
	for i, m := range messages {
		if !m.Role.IsValid() {
			return apperrors.NewValidationError("invalid message role", "messages.role", map[string]any{
				"index": i,
				"role":  string(m.Role),
			})
		}
		if strings.TrimSpace(m.Content) == "" {
			return apperrors.NewValidationError("message content is required", "messages.content", map[string]any{
				"index": i,
			})
		}
	}
	return nil
}
