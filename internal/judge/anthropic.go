package judge

import (
	"context"
	"fmt"
	"time"

	"github.com/rub-lamp/oracle_layer/internal/httputil"
)

const (
	DefaultAnthropicURL   = "https://api.anthropic.com/v1"
	DefaultAnthropicModel = "claude-sonnet-4-20250514"
	anthropicVersion      = "2023-06-01"
	maxJudgeTokens        = 256
)

// AnthropicConfig configures the Messages API backend.
type AnthropicConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	Retry   httputil.RetryConfig
}

// AnthropicJudge judges wishes with the Anthropic Messages API.
type AnthropicJudge struct {
	client *httputil.Client
	model  string
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// NewAnthropicJudge returns a judge backed by the Messages API.
func NewAnthropicJudge(cfg AnthropicConfig) (*AnthropicJudge, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is not configured")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultAnthropicURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultAnthropicModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	client := httputil.NewClient(httputil.ClientConfig{
		BaseURL: cfg.BaseURL,
		Timeout: cfg.Timeout,
		Retry:   cfg.Retry,
		Headers: map[string]string{
			"x-api-key":         cfg.APIKey,
			"anthropic-version": anthropicVersion,
		},
		Breaker: httputil.NewCircuitBreaker(httputil.DefaultCircuitBreakerConfig()),
	})
	return &AnthropicJudge{client: client, model: cfg.Model}, nil
}

func (a *AnthropicJudge) Name() string { return "anthropic:" + a.model }

func (a *AnthropicJudge) Judge(ctx context.Context, wish string, recentWinners []string) (Judgment, error) {
	req := anthropicRequest{
		Model:     a.model,
		MaxTokens: maxJudgeTokens,
		System:    SystemPrompt(recentWinners),
		Messages:  []anthropicMessage{{Role: "user", Content: UserPrompt(wish)}},
	}

	var resp anthropicResponse
	if err := a.client.PostJSON(ctx, "/messages", req, &resp); err != nil {
		return Judgment{}, fmt.Errorf("anthropic messages: %w", err)
	}

	var content string
	if len(resp.Content) > 0 {
		content = resp.Content[0].Text
	}
	return ParseJudgment(content), nil
}
