package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hadibuxm/jadeed/internal/platform/store"
	"github.com/hadibuxm/jadeed/internal/platform/store/storetest"
)

// fakeGitHub serves the OAuth token endpoint and the REST endpoints the
// service uses.
type fakeGitHub struct {
	mu      sync.Mutex
	srv     *httptest.Server
	repos   []map[string]any
	files   map[string]string
	puts    []map[string]string
	created []map[string]any
}

func repoJSON(id int, name string) map[string]any {
	return map[string]any{
		"id": id, "name": name, "full_name": "octo/" + name, "description": nil,
		"html_url": "https://github.com/octo/" + name, "clone_url": "https://github.com/octo/" + name + ".git",
		"ssh_url": "git@github.com:octo/" + name + ".git", "private": id%2 == 0, "fork": false,
		"language": "Go", "stargazers_count": id, "watchers_count": 1, "forks_count": 2, "open_issues_count": 0,
		"default_branch": "main", "created_at": "2024-01-02T03:04:05Z", "updated_at": fmt.Sprintf("2025-01-%02dT00:00:00Z", id),
		"pushed_at": nil,
	}
}

func newFakeGitHub(t *testing.T) *fakeGitHub {
	f := &fakeGitHub{
		repos: []map[string]any{repoJSON(1, "api"), repoJSON(2, "web"), repoJSON(3, "docs")},
		files: map[string]string{"product_discovery/README.md": "sha-existing"},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.PostForm.Get("code") != "good-code" {
			writeTestJSON(w, http.StatusOK, map[string]string{"error": "bad_verification_code"})
			return
		}
		writeTestJSON(w, http.StatusOK, map[string]string{"access_token": "gho_token", "token_type": "bearer", "scope": "repo,user"})
	})
	mux.HandleFunc("GET /user", f.authorized(func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(w, http.StatusOK, map[string]any{"id": 4242, "login": "octo", "avatar_url": "https://avatars/octo"})
	}))
	mux.HandleFunc("GET /user/repos", f.authorized(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		// Two repositories per page so paging is exercised.
		start := (page - 1) * 2
		batch := []map[string]any{}
		for i := start; i < start+2 && i < len(f.repos); i++ {
			batch = append(batch, f.repos[i])
		}
		writeTestJSON(w, http.StatusOK, batch)
	}))
	mux.HandleFunc("POST /user/repos", f.authorized(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.created = append(f.created, body)
		writeTestJSON(w, http.StatusCreated, repoJSON(99, body["name"].(string)))
	}))
	mux.HandleFunc("GET /repos/{owner}/{repo}/contents/{path...}", f.authorized(func(w http.ResponseWriter, r *http.Request) {
		sha, ok := f.files[r.PathValue("path")]
		if !ok {
			writeTestJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
			return
		}
		writeTestJSON(w, http.StatusOK, map[string]string{"sha": sha})
	}))
	mux.HandleFunc("PUT /repos/{owner}/{repo}/contents/{path...}", f.authorized(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		body["path"] = r.PathValue("owner") + "/" + r.PathValue("repo") + ":" + r.PathValue("path")
		f.puts = append(f.puts, body)
		writeTestJSON(w, http.StatusCreated, map[string]any{"content": map[string]string{
			"html_url": "https://github.com/" + r.PathValue("owner") + "/" + r.PathValue("repo") + "/blob/main/" + r.PathValue("path"),
		}})
	}))
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func writeTestJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeGitHub) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if r.Header.Get("Authorization") != "Bearer gho_token" {
			writeTestJSON(w, http.StatusUnauthorized, map[string]string{"message": "Bad credentials"})
			return
		}
		next(w, r)
	}
}

func (f *fakeGitHub) config() *Config {
	return &Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURI:  "https://api.example.com/api/github/callback",
		Scopes:       "repo user",
		FrontendURL:  "https://app.example.com",
		AuthURL:      f.srv.URL + "/login/oauth/authorize",
		TokenURL:     f.srv.URL + "/login/oauth/access_token",
		APIBase:      f.srv.URL,
	}
}

type githubFixture struct {
	svc    *Service
	st     *store.Store
	fake   *fakeGitHub
	userID string
}

func newGitHubFixture(t *testing.T) *githubFixture {
	t.Helper()
	st := storetest.New(t)
	fake := newFakeGitHub(t)
	return &githubFixture{
		svc:    NewService(st, fake.config(), fake.srv.Client(), storetest.Logger{}),
		st:     st,
		fake:   fake,
		userID: storetest.CreateUser(t, st, "octo-user"),
	}
}

func (f *githubFixture) state(t *testing.T) string {
	t.Helper()
	raw, err := f.svc.AuthorizeURL(f.userID)
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u.Query().Get("state")
}

func (f *githubFixture) connect(t *testing.T) *Connection {
	t.Helper()
	conn, err := f.svc.CompleteAuth(context.Background(), f.state(t), "good-code")
	require.NoError(t, err)
	return conn
}

func TestOAuthState_RoundTripAndTamper(t *testing.T) {
	o := NewOAuth(&Config{ClientSecret: "s3cret"}, nil)

	state := o.EncodeState("user-1")
	userID, err := o.DecodeState(state)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)

	raw, err := base64.URLEncoding.DecodeString(state)
	require.NoError(t, err)
	var st oauthState
	require.NoError(t, json.Unmarshal(raw, &st))
	assert.NotEmpty(t, st.Random)

	st.UserID = "user-2"
	forged, _ := json.Marshal(st)
	_, err = o.DecodeState(base64.URLEncoding.EncodeToString(forged))
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = o.DecodeState("%%%")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestAuthorizeURL(t *testing.T) {
	f := newGitHubFixture(t)
	raw, err := f.svc.AuthorizeURL(f.userID)
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "client-id", u.Query().Get("client_id"))
	assert.Equal(t, "repo user", u.Query().Get("scope"))
	assert.Equal(t, "https://api.example.com/api/github/callback", u.Query().Get("redirect_uri"))

	unconfigured := NewService(f.st, &Config{}, http.DefaultClient, storetest.Logger{})
	_, err = unconfigured.AuthorizeURL(f.userID)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestCompleteAuth_StoresConnectionAndSyncs(t *testing.T) {
	f := newGitHubFixture(t)
	conn := f.connect(t)

	assert.Equal(t, "octo", conn.Username)
	assert.EqualValues(t, 4242, conn.GitHubUserID)
	assert.Equal(t, "gho_token", conn.AccessToken)
	assert.Equal(t, "repo,user", conn.Scope)

	status, err := f.svc.Status(context.Background(), f.userID)
	require.NoError(t, err)
	assert.True(t, status.HasConnection)
	require.Len(t, status.Repositories, 3)
	// Most recently updated first.
	assert.Equal(t, "octo/docs", status.Repositories[0].FullName)
	assert.Equal(t, "", status.Repositories[0].Description)
	assert.Equal(t, "main", status.Repositories[0].DefaultBranch)
	require.NotNil(t, status.Repositories[0].UpdatedAt)
	assert.Equal(t, 3, status.Repositories[0].UpdatedAt.Day())
}

func TestCompleteAuth_BadCode(t *testing.T) {
	f := newGitHubFixture(t)
	_, err := f.svc.CompleteAuth(context.Background(), f.state(t), "bad-code")
	assert.ErrorIs(t, err, ErrTokenExchange)

	_, err = f.svc.CompleteAuth(context.Background(), "not-a-state", "good-code")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestSyncRepositories_UpsertsWithoutDuplicates(t *testing.T) {
	f := newGitHubFixture(t)
	conn := f.connect(t)

	f.fake.mu.Lock()
	f.fake.repos[0]["stargazers_count"] = 500
	f.fake.mu.Unlock()

	n, err := f.svc.SyncRepositories(context.Background(), conn)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	repos, err := f.svc.Repositories(context.Background(), f.userID)
	require.NoError(t, err)
	require.Len(t, repos, 3)
	for _, r := range repos {
		if r.FullName == "octo/api" {
			assert.Equal(t, 500, r.StarsCount)
		}
	}
}

func TestStatus_NoConnection(t *testing.T) {
	f := newGitHubFixture(t)
	status, err := f.svc.Status(context.Background(), f.userID)
	require.NoError(t, err)
	assert.False(t, status.HasConnection)
	assert.Nil(t, status.Connection)
	assert.Empty(t, status.Repositories)
}

func TestSyncAll(t *testing.T) {
	f := newGitHubFixture(t)
	f.connect(t)
	require.NoError(t, f.svc.SyncAll(context.Background()))
}

func TestDisconnect_RemovesRepositories(t *testing.T) {
	f := newGitHubFixture(t)
	f.connect(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Disconnect(ctx, f.userID))
	assert.ErrorIs(t, f.svc.Disconnect(ctx, f.userID), ErrNotConnected)

	repos, err := f.svc.Repositories(ctx, f.userID)
	require.NoError(t, err)
	assert.Empty(t, repos)
}

func TestCreateRepository_StoresLocally(t *testing.T) {
	f := newGitHubFixture(t)
	f.connect(t)
	ctx := context.Background()

	_, err := f.svc.CreateRepository(ctx, f.userID, CreateRepoRequest{Name: "  "})
	assert.ErrorIs(t, err, ErrInvalidRepoName)

	repo, err := f.svc.CreateRepository(ctx, f.userID, CreateRepoRequest{Name: "fresh", Private: true, AutoInit: true})
	require.NoError(t, err)
	assert.Equal(t, "octo/fresh", repo.FullName)

	require.Len(t, f.fake.created, 1)
	assert.Equal(t, true, f.fake.created[0]["auto_init"])

	owned, err := f.svc.OwnsAll(ctx, f.userID, []string{repo.ID})
	require.NoError(t, err)
	assert.True(t, owned)
	owned, err = f.svc.OwnsAll(ctx, f.userID, []string{repo.ID, "missing"})
	require.NoError(t, err)
	assert.False(t, owned)
}

func TestPushFile_UsesExistingSHA(t *testing.T) {
	f := newGitHubFixture(t)
	f.connect(t)
	ctx := context.Background()
	repos, err := f.svc.Repositories(ctx, f.userID)
	require.NoError(t, err)
	repoID := repos[0].ID

	fileURL, err := f.svc.PushFile(ctx, repoID, "product_discovery/README.md", "# Hello", "Update README")
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/octo/docs/blob/main/product_discovery/README.md", fileURL)
	_, err = f.svc.PushFile(ctx, repoID, "product_discovery/new/README.md", "# New", "Add README")
	require.NoError(t, err)

	require.Len(t, f.fake.puts, 2)
	assert.Equal(t, "sha-existing", f.fake.puts[0]["sha"])
	assert.Equal(t, "main", f.fake.puts[0]["branch"])
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("# Hello")), f.fake.puts[0]["content"])
	assert.Equal(t, "octo/docs:product_discovery/README.md", f.fake.puts[0]["path"])
	_, hasSHA := f.fake.puts[1]["sha"]
	assert.False(t, hasSHA)

	_, err = f.svc.PushFile(ctx, "missing", "a.md", "x", "m")
	assert.ErrorIs(t, err, ErrRepositoryNotFound)
}
