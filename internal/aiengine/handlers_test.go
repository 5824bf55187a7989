package aiengine

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hadibuxm/jadeed/internal/platform/authctx"
	"github.com/hadibuxm/jadeed/internal/platform/httpx"
)

type headerAuth struct{}

func (headerAuth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-User")
		if id == "" {
			httpx.WriteError(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
			return
		}
		next.ServeHTTP(w, r.WithContext(authctx.WithUser(r.Context(), &authctx.User{ID: id})))
	})
}

func serve(t *testing.T, h http.Handler, method, target, userID string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	if userID != "" {
		req.Header.Set("X-User", userID)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	out := map[string]any{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec.Code, out
}

func newRouter(s Sessions) http.Handler {
	r := chi.NewRouter()
	(&handlers{sessions: s, auth: headerAuth{}}).routes(r)
	return r
}

func TestSessionAPI(t *testing.T) {
	c, api := newTestClient(t, "k-test")
	h := newRouter(c)

	code, _ := serve(t, h, http.MethodGet, "/api/aiengine/sessions", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, body := serve(t, h, http.MethodGet, "/api/aiengine/sessions", "u1", nil)
	require.Equal(t, http.StatusOK, code, body)
	sessions := body["sessions"].([]any)
	require.Len(t, sessions, 1)
	assert.Equal(t, "s-1", sessions[0].(map[string]any)["session_id"])

	code, body = serve(t, h, http.MethodGet, "/api/aiengine/sessions?limit=abc", "u1", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body["errors"], "limit")

	code, body = serve(t, h, http.MethodPost, "/api/aiengine/sessions", "u1", map[string]any{"prompt": ""})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Prompt is required.", body["error"])

	code, body = serve(t, h, http.MethodPost, "/api/aiengine/sessions", "u1", map[string]any{
		"prompt": "Add dark mode", "title": "Dark mode", "tags": "ui, frontend,",
	})
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, "s-2", body["session_id"])
	require.Len(t, api.created, 1)
	assert.Equal(t, []string{"ui", "frontend"}, api.created[0].Tags)

	code, body = serve(t, h, http.MethodGet, "/api/aiengine/sessions/s-1", "u1", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]any{"ok": true}, body["structured_output"])

	code, body = serve(t, h, http.MethodGet, "/api/aiengine/sessions/nope", "u1", nil)
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, "failed to fetch session details: 404", body["error"])
}

func TestSessionAPI_NotConfigured(t *testing.T) {
	c, _ := newTestClient(t, "")
	code, body := serve(t, newRouter(c), http.MethodGet, "/api/aiengine/sessions", "u1", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "AI engine is not configured.", body["error"])
}
