package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/kapu/pitch-coach-go/internal/constants"
	"github.com/kapu/pitch-coach-go/internal/domain"
	"github.com/kapu/pitch-coach-go/internal/util"
	"github.com/kapu/pitch-coach-go/pkg/errors"
	"go.uber.org/zap"
)

// HTTPCompleter posts {"messages": [...]} to an external completion endpoint,
// such as a relay that holds the model credentials.
type HTTPCompleter struct {
	url        string
	httpClient *http.Client
	logger     *zap.Logger
}

type completionRequest struct {
	Messages []domain.ChatMessage `json:"messages"`
}

func NewHTTPCompleter(url string, logger *zap.Logger) *HTTPCompleter {
	return &HTTPCompleter{
		url: url,
		httpClient: &http.Client{
			Timeout: constants.CompletionDefaults.HTTPTimeout,
		},
		logger: logger,
	}
}

func (c *HTTPCompleter) Name() string {
	return "HTTP"
}

func (c *HTTPCompleter) Complete(ctx context.Context, messages []domain.ChatMessage) (string, error) {
	res, err := c.Generate(ctx, messages, nil)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// Generate ignores opts: the endpoint owns its sampling settings.
func (c *HTTPCompleter) Generate(ctx context.Context, messages []domain.ChatMessage, _ *GenerateOptions) (ProviderResult, error) {
	body, err := c.doRequest(ctx, completionRequest{Messages: messages})
	if err != nil {
		c.logger.Warn("Completion endpoint request failed", zap.String("url", c.url), zap.Error(err))
		return ProviderResult{}, err
	}

	text, err := NormalizeReply(body)
	if err != nil {
		return ProviderResult{}, err
	}
	return ProviderResult{Text: text, Model: c.url}, nil
}

func (c *HTTPCompleter) Ping(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.url, nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < 500
}

func (c *HTTPCompleter) doRequest(ctx context.Context, reqBody any) ([]byte, error) {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, errors.NewAPIError("failed to marshal request", 400, map[string]any{
			"url": c.url,
		}).WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, errors.NewAPIError("failed to create request", 500, map[string]any{
			"url": c.url,
		}).WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, readErr := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{
			Provider:   c.Name(),
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("completion endpoint error: %s: %s", resp.Status, util.TruncateString(string(bodyBytes), 200)),
		}
	}
	if readErr != nil {
		return nil, errors.NewAPIError("failed to read response", 500, map[string]any{
			"url": c.url,
		}).WithCause(readErr)
	}
	return bodyBytes, nil
}
