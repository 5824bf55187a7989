package productmgmt

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ChatOptions tune one completion.
type ChatOptions struct {
	Temperature float64
	MaxTokens   int
}

// ChatModel is a conversational model backend.
type ChatModel interface {
	// Complete returns the full reply to messages under the system prompt.
	Complete(ctx context.Context, system string, messages []Message, opts ChatOptions) (string, error)
	// Stream calls onDelta for every chunk of the reply and returns the
	// concatenated reply.
	Stream(ctx context.Context, system string, messages []Message, opts ChatOptions, onDelta func(string) error) (string, error)
}

// NewChatModel builds the backend selected by cfg.Provider. It returns
// nil, nil when no API key is configured.
func NewChatModel(ctx context.Context, cfg *Config, client *http.Client) (ChatModel, error) {
	cfg.withDefaults()
	if cfg.APIKey == "" {
		return nil, nil
	}
	switch cfg.Provider {
	case ProviderOpenAI:
		return NewOpenAIChat(cfg.BaseURL, cfg.APIKey, cfg.Model, client), nil
	case ProviderGemini:
		return NewGeminiChat(ctx, cfg.APIKey, cfg.Model, client)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Provider)
}

// OpenAIChat talks to an OpenAI compatible chat completions endpoint.
type OpenAIChat struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewOpenAIChat creates an OpenAI chat client.
func NewOpenAIChat(baseURL, apiKey, model string, client *http.Client) *OpenAIChat {
	if client == nil {
		client = http.DefaultClient
	}
	return &OpenAIChat{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, model: model, client: client}
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message *openAIMessage `json:"message"`
		Delta   *openAIMessage `json:"delta"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *OpenAIChat) do(ctx context.Context, system string, messages []Message, opts ChatOptions, stream bool) (*http.Response, error) {
	body := openAIRequest{
		Model:       c.model,
		Messages:    make([]openAIMessage, 0, len(messages)+1),
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Stream:      stream,
	}
	body.Messages = append(body.Messages, openAIMessage{Role: RoleSystem, Content: system})
	for _, m := range messages {
		body.Messages = append(body.Messages, openAIMessage{Role: m.Role, Content: m.Content})
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("chat completions returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return resp, nil
}

// Complete implements ChatModel.
func (c *OpenAIChat) Complete(ctx context.Context, system string, messages []Message, opts ChatOptions) (string, error) {
	resp, err := c.do(ctx, system, messages, opts, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	var out openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode chat response: %w", err)
	}
	if out.Error != nil {
		return "", errors.New(out.Error.Message)
	}
	if len(out.Choices) == 0 || out.Choices[0].Message == nil {
		return "", errors.New("chat response has no choices")
	}
	return out.Choices[0].Message.Content, nil
}

// Stream implements ChatModel by reading the server-sent event stream.
func (c *OpenAIChat) Stream(ctx context.Context, system string, messages []Message, opts ChatOptions, onDelta func(string) error) (string, error) {
	resp, err := c.do(ctx, system, messages, opts, true)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var full strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		data, ok := strings.CutPrefix(scanner.Text(), "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			break
		}
		var chunk openAIResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if chunk.Error != nil {
			return full.String(), errors.New(chunk.Error.Message)
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta == nil || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		full.WriteString(delta)
		if err := onDelta(delta); err != nil {
			return full.String(), err
		}
	}
	if err := scanner.Err(); err != nil {
		return full.String(), fmt.Errorf("stream error: %w", err)
	}
	return full.String(), nil
}
