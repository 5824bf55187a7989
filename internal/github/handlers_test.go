package github

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hadibuxm/jadeed/internal/platform/authctx"
	"github.com/hadibuxm/jadeed/internal/platform/httpx"
	"github.com/hadibuxm/jadeed/internal/platform/store/storetest"
)

// headerAuth trusts the X-User header.
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

func (f *githubFixture) router(t *testing.T) (http.Handler, *CodeChanges) {
	t.Helper()
	changes := NewCodeChanges(f.svc, agentFunc(func(context.Context, string, string) (AgentResult, error) {
		return AgentResult{}, nil
	}), nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = changes.Shutdown(ctx)
	})
	r := chi.NewRouter()
	(&handlers{svc: f.svc, changes: changes, auth: headerAuth{}, logger: storetest.Logger{}}).routes(r)
	return r, changes
}

func do(t *testing.T, h http.Handler, method, target, userID string, body any) *httptest.ResponseRecorder {
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
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	out := map[string]any{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestGitHubAPI_CallbackRedirects(t *testing.T) {
	f := newGitHubFixture(t)
	h, _ := f.router(t)

	cases := []struct {
		name  string
		query string
		want  string
	}{
		{"no state", "?code=good-code", "https://app.example.com/github?error=no_state"},
		{"no code", "?state=abc", "https://app.example.com/github?error=no_code"},
		{"forged state", "?state=abc&code=good-code", "https://app.example.com/github?error=invalid_state"},
		{"bad code", "?state=" + url.QueryEscape(f.state(t)) + "&code=bad", "https://app.example.com/github?error=server_error"},
		{"connected", "?state=" + url.QueryEscape(f.state(t)) + "&code=good-code", "https://app.example.com/github?connected=true"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, "/api/github/callback"+tc.query, "", nil)
			assert.Equal(t, http.StatusFound, rec.Code)
			assert.Equal(t, tc.want, rec.Header().Get("Location"))
		})
	}

	conn, err := f.svc.Connection(context.Background(), f.userID)
	require.NoError(t, err)
	assert.Equal(t, "octo", conn.Username)
}

func TestGitHubAPI_ConnectRedirectsToGitHub(t *testing.T) {
	f := newGitHubFixture(t)
	h, _ := f.router(t)

	rec := do(t, h, http.MethodGet, "/api/github/connect", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/github/connect", f.userID, nil)
	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/login/oauth/authorize", loc.Path)
	assert.Equal(t, "client-id", loc.Query().Get("client_id"))
}

func TestGitHubAPI_RepositoriesFlow(t *testing.T) {
	f := newGitHubFixture(t)
	h, _ := f.router(t)

	rec := do(t, h, http.MethodPost, "/api/github/sync", f.userID, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "GitHub account not connected", decode(t, rec)["error"])

	rec = do(t, h, http.MethodGet, "/api/github/status", f.userID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["has_connection"])

	f.connect(t)

	rec = do(t, h, http.MethodPost, "/api/github/sync", f.userID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.EqualValues(t, 3, body["synced_count"])
	assert.Len(t, body["repositories"], 3)

	rec = do(t, h, http.MethodGet, "/api/github/repositories", f.userID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["data"], 3)

	rec = do(t, h, http.MethodPost, "/api/github/repositories", f.userID, map[string]any{"name": " "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["errors"], "name")

	rec = do(t, h, http.MethodPost, "/api/github/repositories", f.userID, map[string]any{"name": "fresh", "private": true})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "octo/fresh", decode(t, rec)["data"].(map[string]any)["full_name"])
	assert.Equal(t, true, f.fake.created[0]["auto_init"])

	rec = do(t, h, http.MethodDelete, "/api/github/connection", f.userID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, h, http.MethodPost, "/api/github/disconnect", f.userID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "No GitHub connection found", decode(t, rec)["error"])
}

func TestGitHubAPI_CodeChangeRequests(t *testing.T) {
	f := newGitHubFixture(t)
	f.connect(t)
	h, changes := f.router(t)
	repos, err := f.svc.Repositories(context.Background(), f.userID)
	require.NoError(t, err)
	_, err = f.st.DB().Exec(`UPDATE github_repositories SET clone_url = $1 WHERE id = $2`,
		filepath.Join(t.TempDir(), "missing"), repos[0].ID)
	require.NoError(t, err)
	target := "/api/github/repositories/" + repos[0].ID + "/code-changes"

	rec := do(t, h, http.MethodPost, target, f.userID, map[string]string{"prompt": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["errors"], "prompt")

	rec = do(t, h, http.MethodPost, "/api/github/repositories/missing/code-changes", f.userID, map[string]string{"prompt": "Fix it"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPost, target, f.userID, map[string]string{"prompt": "Fix it"})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	data := decode(t, rec)["data"].(map[string]any)
	assert.Equal(t, "pending", data["status"])
	id := data["id"].(string)

	// The clone URL does not exist, so the run fails.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, changes.Shutdown(ctx))

	rec = do(t, h, http.MethodGet, "/api/github/code-changes/"+id, f.userID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "failed", decode(t, rec)["data"].(map[string]any)["status"])

	other := storetest.CreateUser(t, f.st, "intruder")
	rec = do(t, h, http.MethodGet, "/api/github/code-changes/"+id, other, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
