package jira

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hadibuxm/jadeed/internal/platform/store"
	"github.com/hadibuxm/jadeed/internal/platform/store/storetest"
)

// fakeAtlassian serves the token, accessible-resources and Jira issue
// endpoints the service calls.
type fakeAtlassian struct {
	mu        sync.Mutex
	srv       *httptest.Server
	issued    int
	access    string
	refresh   string
	verifier  string
	grants    []string
	resources []Resource
	liveCloud string
	updates   []map[string]any
	deleted   []string
}

func newFakeAtlassian(t *testing.T) *fakeAtlassian {
	f := &fakeAtlassian{
		resources: []Resource{
			{ID: "conf-1", Name: "Wiki", ResourceType: "confluence"},
			{ID: "cloud-1", Name: "Acme", ResourceType: "jira", URL: "https://acme.atlassian.net"},
		},
		liveCloud: "cloud-1",
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth/token", f.token)
	mux.HandleFunc("GET /oauth/token/accessible-resources", f.authorized(func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(w, http.StatusOK, f.resources)
	}))
	mux.HandleFunc("GET /ex/jira/{cloud}/rest/api/3/search/jql", f.authorized(f.search))
	mux.HandleFunc("GET /ex/jira/{cloud}/rest/api/3/issue/{key}", f.authorized(f.issue))
	mux.HandleFunc("PUT /ex/jira/{cloud}/rest/api/3/issue/{key}", f.authorized(f.update))
	mux.HandleFunc("DELETE /ex/jira/{cloud}/rest/api/3/issue/{key}", f.authorized(f.delete))
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func writeTestJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeAtlassian) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if r.Header.Get("Authorization") != "Bearer "+f.access {
			writeTestJSON(w, http.StatusUnauthorized, map[string]string{"message": "bad token"})
			return
		}
		next(w, r)
	}
}

func (f *fakeAtlassian) token(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_ = r.ParseForm()
	grant := r.PostForm.Get("grant_type")
	f.grants = append(f.grants, grant)
	switch grant {
	case "authorization_code":
		if r.PostForm.Get("code") != "good-code" {
			writeTestJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			return
		}
		f.verifier = r.PostForm.Get("code_verifier")
	case "refresh_token":
		if r.PostForm.Get("refresh_token") != f.refresh {
			writeTestJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			return
		}
	}
	f.issued++
	f.access = fmt.Sprintf("access-%d", f.issued)
	f.refresh = fmt.Sprintf("refresh-%d", f.issued)
	writeTestJSON(w, http.StatusOK, map[string]any{
		"access_token":  f.access,
		"refresh_token": f.refresh,
		"token_type":    "Bearer",
		"expires_in":    3600,
	})
}

func (f *fakeAtlassian) search(w http.ResponseWriter, r *http.Request) {
	if r.PathValue("cloud") != f.liveCloud {
		writeTestJSON(w, http.StatusGone, map[string]string{"message": "site moved"})
		return
	}
	q := r.URL.Query()
	if q.Get("jql") != searchJQL || q.Get("maxResults") != "50" {
		writeTestJSON(w, http.StatusBadRequest, map[string]string{"message": "unexpected query"})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"issues": [
		{"key": "PRJ-1", "fields": {"summary": "Fix login", "status": {"name": "To Do"}, "issuetype": {"name": "Bug"}, "updated": "2025-04-01T09:00:00.000+0000"}},
		{"key": "PRJ-2", "fields": {"summary": "Add export", "status": {"name": "To Do"}, "issuetype": {"name": "Story"}, "assignee": {"displayName": "Me"}}}
	]}`))
}

func (f *fakeAtlassian) issue(w http.ResponseWriter, r *http.Request) {
	if r.PathValue("key") != "PRJ-1" {
		writeTestJSON(w, http.StatusNotFound, map[string]any{"errorMessages": []string{"Issue does not exist"}})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"key": "PRJ-1", "fields": {"summary": "Fix login", "description":
		{"type": "doc", "version": 1, "content": [{"type": "paragraph", "content": [{"type": "text", "text": "Users get logged out"}]}]}}}`))
}

func (f *fakeAtlassian) update(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Fields map[string]any `json:"fields"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.updates = append(f.updates, body.Fields)
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeAtlassian) delete(w http.ResponseWriter, r *http.Request) {
	if r.PathValue("key") != "PRJ-1" {
		writeTestJSON(w, http.StatusNotFound, map[string]any{})
		return
	}
	f.deleted = append(f.deleted, r.PathValue("key"))
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeAtlassian) moveSite(to string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.liveCloud = to
	f.resources = []Resource{{ID: to, Name: "Acme Moved", ResourceType: "jira"}}
}

func (f *fakeAtlassian) snapshot() (grants []string, updates []map[string]any, deleted []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.grants...), append([]map[string]any(nil), f.updates...), append([]string(nil), f.deleted...)
}

func (f *fakeAtlassian) config() *Config {
	return &Config{
		ClientID:      "client-id",
		RedirectURI:   "https://app.example.com/api/jira/callback",
		Scopes:        "read:jira-work write:jira-work offline_access",
		AuthURL:       f.srv.URL + "/authorize",
		TokenURL:      f.srv.URL + "/oauth/token",
		APIBase:       f.srv.URL,
		RefreshLeeway: time.Minute,
	}
}

type jiraFixture struct {
	svc    *Service
	st     *store.Store
	fake   *fakeAtlassian
	userID string
}

func newJiraFixture(t *testing.T) *jiraFixture {
	t.Helper()
	st := storetest.New(t)
	fake := newFakeAtlassian(t)
	return &jiraFixture{
		svc:    NewService(st, fake.config(), fake.srv.Client()),
		st:     st,
		fake:   fake,
		userID: storetest.CreateUser(t, st, "jira-user"),
	}
}

// connect runs the full consent round trip and returns the authorize URL.
func (f *jiraFixture) connect(t *testing.T) *url.URL {
	t.Helper()
	ctx := context.Background()
	raw, err := f.svc.BeginAuth(ctx, f.userID)
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	_, err = f.svc.CompleteAuth(ctx, u.Query().Get("state"), "good-code")
	require.NoError(t, err)
	return u
}

func TestBeginAuth_BuildsPKCEAuthorizeURL(t *testing.T) {
	f := newJiraFixture(t)
	raw, err := f.svc.BeginAuth(context.Background(), f.userID)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "/authorize", u.Path)
	assert.Equal(t, "api.atlassian.com", q.Get("audience"))
	assert.Equal(t, "consent", q.Get("prompt"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.NotEmpty(t, q.Get("state"))
	assert.NotEmpty(t, q.Get("code_challenge"))
}

func TestBeginAuth_RequiresClientID(t *testing.T) {
	st := storetest.New(t)
	svc := NewService(st, &Config{}, http.DefaultClient)
	_, err := svc.BeginAuth(context.Background(), storetest.CreateUser(t, st, "u"))
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestCompleteAuth_StoresConnection(t *testing.T) {
	f := newJiraFixture(t)
	u := f.connect(t)

	// The verifier sent with the code must hash to the challenge in the URL.
	grants, _, _ := f.fake.snapshot()
	assert.Equal(t, []string{"authorization_code"}, grants)
	sum := sha256.Sum256([]byte(f.fake.verifier))
	assert.Equal(t, u.Query().Get("code_challenge"), base64.RawURLEncoding.EncodeToString(sum[:]))

	conn, err := f.svc.Connection(context.Background(), f.userID)
	require.NoError(t, err)
	assert.Equal(t, "access-1", conn.AccessToken)
	assert.Equal(t, "refresh-1", conn.RefreshToken)
	assert.Equal(t, "cloud-1", conn.CloudID)
	assert.Equal(t, "Acme", conn.CloudName)
	require.NotNil(t, conn.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(time.Hour), *conn.ExpiresAt, time.Minute)

	// States are single use.
	_, err = f.svc.CompleteAuth(context.Background(), u.Query().Get("state"), "good-code")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestCompleteAuth_RejectsExpiredState(t *testing.T) {
	f := newJiraFixture(t)
	raw, err := f.svc.BeginAuth(context.Background(), f.userID)
	require.NoError(t, err)
	u, _ := url.Parse(raw)

	later := time.Now().UTC().Add(pendingAuthTTL + time.Minute)
	f.st.SetClock(func() time.Time { return later })

	_, err = f.svc.CompleteAuth(context.Background(), u.Query().Get("state"), "good-code")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestCompleteAuth_ExchangeFailure(t *testing.T) {
	f := newJiraFixture(t)
	raw, err := f.svc.BeginAuth(context.Background(), f.userID)
	require.NoError(t, err)
	u, _ := url.Parse(raw)

	_, err = f.svc.CompleteAuth(context.Background(), u.Query().Get("state"), "bad-code")
	assert.ErrorIs(t, err, ErrTokenExchange)
	_, err = f.svc.Connection(context.Background(), f.userID)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestListIssues_EnrichesAndSummarizes(t *testing.T) {
	f := newJiraFixture(t)
	f.connect(t)

	list, err := f.svc.ListIssues(context.Background(), f.userID)
	require.NoError(t, err)

	assert.Equal(t, "Acme", list.CloudName)
	require.Len(t, list.Issues, 2)
	assert.Equal(t, "PRJ-1", list.Issues[0].Key)
	assert.Equal(t, "Unassigned", list.Issues[0].Assignee)
	assert.Equal(t, "Me", list.Issues[1].Assignee)
	assert.Equal(t, 2, list.Summary.Total)
	assert.Equal(t, []Count{{Name: "To Do", Slug: "to-do", Count: 2}}, list.Summary.StatusCounts)
}

func TestListIssues_NotConnected(t *testing.T) {
	f := newJiraFixture(t)
	_, err := f.svc.ListIssues(context.Background(), f.userID)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestListIssues_RepicksMovedSite(t *testing.T) {
	f := newJiraFixture(t)
	f.connect(t)
	f.fake.moveSite("cloud-2")

	list, err := f.svc.ListIssues(context.Background(), f.userID)
	require.NoError(t, err)
	assert.Len(t, list.Issues, 2)
	assert.Equal(t, "Acme Moved", list.CloudName)

	conn, err := f.svc.Connection(context.Background(), f.userID)
	require.NoError(t, err)
	assert.Equal(t, "cloud-2", conn.CloudID)
}

func TestEnsureAccessToken_RefreshesNearExpiry(t *testing.T) {
	f := newJiraFixture(t)
	f.connect(t)

	// Tokens last an hour; jump to just inside the leeway.
	near := time.Now().UTC().Add(time.Hour - 30*time.Second)
	f.st.SetClock(func() time.Time { return near })

	_, err := f.svc.ListIssues(context.Background(), f.userID)
	require.NoError(t, err)

	grants, _, _ := f.fake.snapshot()
	assert.Equal(t, []string{"authorization_code", "refresh_token"}, grants)
	conn, err := f.svc.Connection(context.Background(), f.userID)
	require.NoError(t, err)
	assert.Equal(t, "access-2", conn.AccessToken)
	assert.Equal(t, "refresh-2", conn.RefreshToken)
}

func TestEnsureAccessToken_KeepsFreshToken(t *testing.T) {
	f := newJiraFixture(t)
	f.connect(t)

	conn, err := f.svc.Connection(context.Background(), f.userID)
	require.NoError(t, err)
	token, err := f.svc.EnsureAccessToken(context.Background(), conn)
	require.NoError(t, err)
	assert.Equal(t, "access-1", token)

	grants, _, _ := f.fake.snapshot()
	assert.Len(t, grants, 1)
}

func TestGetIssue_FlattensDescription(t *testing.T) {
	f := newJiraFixture(t)
	f.connect(t)

	issue, err := f.svc.GetIssue(context.Background(), f.userID, "PRJ-1")
	require.NoError(t, err)
	assert.Equal(t, "Fix login", issue.Summary)
	assert.Equal(t, "Users get logged out", issue.Description)

	_, err = f.svc.GetIssue(context.Background(), f.userID, "PRJ-404")
	assert.ErrorIs(t, err, ErrIssueNotFound)
}

func TestUpdateIssue_SendsADFAndNullDescription(t *testing.T) {
	f := newJiraFixture(t)
	f.connect(t)
	ctx := context.Background()

	summary, desc := "  New title  ", "line one\nline two"
	require.NoError(t, f.svc.UpdateIssue(ctx, f.userID, "PRJ-1", IssueUpdate{Summary: &summary, Description: &desc}))

	empty := ""
	require.NoError(t, f.svc.UpdateIssue(ctx, f.userID, "PRJ-1", IssueUpdate{Description: &empty}))

	// Nothing to change sends nothing.
	require.NoError(t, f.svc.UpdateIssue(ctx, f.userID, "PRJ-1", IssueUpdate{}))

	_, updates, _ := f.fake.snapshot()
	require.Len(t, updates, 2)
	assert.Equal(t, "New title", updates[0]["summary"])
	doc, ok := updates[0]["description"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "doc", doc["type"])
	encoded, _ := json.Marshal(doc)
	assert.True(t, strings.Contains(string(encoded), `"hardBreak"`))

	value, present := updates[1]["description"]
	assert.True(t, present)
	assert.Nil(t, value)
}

func TestDeleteIssueAndDisconnect(t *testing.T) {
	f := newJiraFixture(t)
	f.connect(t)
	ctx := context.Background()

	require.NoError(t, f.svc.DeleteIssue(ctx, f.userID, "PRJ-1"))
	assert.ErrorIs(t, f.svc.DeleteIssue(ctx, f.userID, "PRJ-9"), ErrIssueNotFound)
	_, _, deleted := f.fake.snapshot()
	assert.Equal(t, []string{"PRJ-1"}, deleted)

	require.NoError(t, f.svc.Disconnect(ctx, f.userID))
	assert.ErrorIs(t, f.svc.Disconnect(ctx, f.userID), ErrNotConnected)
}
