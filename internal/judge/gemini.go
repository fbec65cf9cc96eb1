package judge

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiJudge judges wishes with Google's Gemini API.
type GeminiJudge struct {
	client *genai.Client
	model  string
}

// NewGeminiJudge creates a Gemini backed judge.
func NewGeminiJudge(ctx context.Context, apiKey, model string) (*GeminiJudge, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is not configured")
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiJudge{client: client, model: model}, nil
}

func (g *GeminiJudge) Name() string { return "gemini:" + g.model }

func (g *GeminiJudge) Judge(ctx context.Context, wish string, recentWinners []string) (Judgment, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(SystemPrompt(recentWinners), genai.RoleUser),
		MaxOutputTokens:   maxJudgeTokens,
		ResponseMIMEType:  "application/json",
	}
	contents := []*genai.Content{genai.NewContentFromText(UserPrompt(wish), genai.RoleUser)}

	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return Judgment{}, fmt.Errorf("gemini generate: %w", err)
	}
	return ParseJudgment(result.Text()), nil
}
