package productmgmt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOpenAIServer(t *testing.T, handle func(w http.ResponseWriter, req openAIRequest)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" || r.Header.Get("Authorization") != "Bearer sk-test" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"bad key"}}`))
			return
		}
		var req openAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		handle(w, req)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIChat_Complete(t *testing.T) {
	var got openAIRequest
	srv := newOpenAIServer(t, func(w http.ResponseWriter, req openAIRequest) {
		got = req
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Who are your users?"}}]}`))
	})

	chat := NewOpenAIChat(srv.URL+"/v1/", "sk-test", "gpt-4", srv.Client())
	reply, err := chat.Complete(context.Background(), "be helpful", []Message{
		{Role: RoleUser, Content: "I want a vision"},
		{Role: RoleAssistant, Content: "Sure"},
	}, ChatOptions{Temperature: 0.7, MaxTokens: 1000})
	require.NoError(t, err)
	assert.Equal(t, "Who are your users?", reply)

	assert.Equal(t, "gpt-4", got.Model)
	assert.False(t, got.Stream)
	assert.Equal(t, 1000, got.MaxTokens)
	assert.InDelta(t, 0.7, got.Temperature, 1e-9)
	assert.Equal(t, []openAIMessage{
		{Role: RoleSystem, Content: "be helpful"},
		{Role: RoleUser, Content: "I want a vision"},
		{Role: RoleAssistant, Content: "Sure"},
	}, got.Messages)
}

func TestOpenAIChat_Errors(t *testing.T) {
	srv := newOpenAIServer(t, func(w http.ResponseWriter, _ openAIRequest) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	})

	_, err := NewOpenAIChat(srv.URL+"/v1", "sk-wrong", "gpt-4", srv.Client()).
		Complete(context.Background(), "", nil, ChatOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "bad key")

	_, err = NewOpenAIChat(srv.URL+"/v1", "sk-test", "gpt-4", srv.Client()).
		Complete(context.Background(), "", nil, ChatOptions{})
	assert.EqualError(t, err, "chat response has no choices")
}

func TestOpenAIChat_Stream(t *testing.T) {
	srv := newOpenAIServer(t, func(w http.ResponseWriter, req openAIRequest) {
		assert.True(t, req.Stream)
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"Vis", "ion", " set"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", part)
		}
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"ignored\"}}]}\n\n")
	})

	var deltas []string
	reply, err := NewOpenAIChat(srv.URL+"/v1", "sk-test", "gpt-4", srv.Client()).Stream(context.Background(), "sys",
		[]Message{{Role: RoleUser, Content: "go"}}, ChatOptions{}, func(d string) error {
			deltas = append(deltas, d)
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, "Vision set", reply)
	assert.Equal(t, []string{"Vis", "ion", " set"}, deltas)
}

func TestOpenAIChat_StreamStopsWhenConsumerFails(t *testing.T) {
	srv := newOpenAIServer(t, func(w http.ResponseWriter, _ openAIRequest) {
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"one\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"two\"}}]}\n\n")
	})

	stop := errors.New("client went away")
	reply, err := NewOpenAIChat(srv.URL+"/v1", "sk-test", "gpt-4", srv.Client()).Stream(context.Background(), "", nil,
		ChatOptions{}, func(string) error { return stop })
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, "one", reply)
}

func TestNewChatModel(t *testing.T) {
	ctx := context.Background()

	chat, err := NewChatModel(ctx, &Config{}, nil)
	require.NoError(t, err)
	assert.Nil(t, chat)

	chat, err = NewChatModel(ctx, &Config{APIKey: "sk-test"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &OpenAIChat{}, chat)

	_, err = NewChatModel(ctx, &Config{APIKey: "sk-test", Provider: "claude"}, nil)
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestGeminiRequest(t *testing.T) {
	contents, cfg := geminiRequest("system prompt", []Message{
		{Role: RoleUser, Content: "hello"},
		{Role: RoleAssistant, Content: "hi"},
	}, ChatOptions{Temperature: 0.5, MaxTokens: 2000})

	require.Len(t, contents, 2)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "model", contents[1].Role)
	assert.Equal(t, "hi", contents[1].Parts[0].Text)
	require.NotNil(t, cfg.SystemInstruction)
	assert.Equal(t, "system prompt", cfg.SystemInstruction.Parts[0].Text)
	assert.Equal(t, int32(2000), cfg.MaxOutputTokens)
	assert.InDelta(t, 0.5, *cfg.Temperature, 1e-6)
}

func TestLoadPrompts(t *testing.T) {
	p, err := LoadPrompts("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPrompts(), p)
	assert.Equal(t, p.Steps[StepVision], p.System("epic"))

	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
steps:
  feature: "Write crisp user stories."
readme_system: "You write release notes."
readme_request: "Summarize this %s."
`), 0o600))
	p, err = LoadPrompts(path)
	require.NoError(t, err)
	assert.Equal(t, "Write crisp user stories.", p.System(StepFeature))
	assert.Equal(t, DefaultPrompts().Steps[StepProduct], p.System(StepProduct))
	assert.Equal(t, "You write release notes.", p.ReadmeSystem)
	assert.Equal(t, "Summarize this Feature.", p.ReadmeRequest("Feature"))
	assert.Equal(t, DefaultPrompts().GuidedTemplate, p.GuidedTemplate)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("steps:\n  epic: nope\n"), 0o600))
	_, err = LoadPrompts(bad)
	assert.ErrorIs(t, err, ErrInvalidStepType)

	_, err = LoadPrompts(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
