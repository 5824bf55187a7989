package productmgmt

import (
	"context"
	"fmt"
	"net/http"

	"google.golang.org/genai"
)

// GeminiChat is a ChatModel backed by the Gemini API.
type GeminiChat struct {
	client *genai.Client
	model  string
}

// NewGeminiChat creates a Gemini chat client.
func NewGeminiChat(ctx context.Context, apiKey, model string, httpClient *http.Client) (*GeminiChat, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiChat{client: client, model: model}, nil
}

func geminiRequest(system string, messages []Message, opts ChatOptions) ([]*genai.Content, *genai.GenerateContentConfig) {
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		var role genai.Role = genai.RoleUser
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(opts.Temperature)),
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if opts.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(opts.MaxTokens)
	}
	return contents, cfg
}

// Complete implements ChatModel.
func (g *GeminiChat) Complete(ctx context.Context, system string, messages []Message, opts ChatOptions) (string, error) {
	contents, cfg := geminiRequest(system, messages, opts)
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate failed: %w", err)
	}
	return resp.Text(), nil
}

// Stream implements ChatModel.
func (g *GeminiChat) Stream(ctx context.Context, system string, messages []Message, opts ChatOptions, onDelta func(string) error) (string, error) {
	contents, cfg := geminiRequest(system, messages, opts)
	var full string
	for resp, err := range g.client.Models.GenerateContentStream(ctx, g.model, contents, cfg) {
		if err != nil {
			return full, fmt.Errorf("gemini stream failed: %w", err)
		}
		delta := resp.Text()
		if delta == "" {
			continue
		}
		full += delta
		if err := onDelta(delta); err != nil {
			return full, err
		}
	}
	return full, nil
}
