package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Repository listing parameters.
const (
	reposPerPage = 100
	maxRepoPages = 100
)

// APIError is a non-success response from the GitHub API.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// StatusOf returns the HTTP status carried by an *APIError in err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// User is the authenticated GitHub account.
type User struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	AvatarURL string `json:"avatar_url"`
}

// apiRepo is a repository as the REST API returns it.
type apiRepo struct {
	ID              int64   `json:"id"`
	Name            string  `json:"name"`
	FullName        string  `json:"full_name"`
	Description     *string `json:"description"`
	HTMLURL         string  `json:"html_url"`
	CloneURL        string  `json:"clone_url"`
	SSHURL          string  `json:"ssh_url"`
	Private         bool    `json:"private"`
	Fork            bool    `json:"fork"`
	Language        *string `json:"language"`
	StargazersCount int     `json:"stargazers_count"`
	WatchersCount   int     `json:"watchers_count"`
	ForksCount      int     `json:"forks_count"`
	OpenIssuesCount int     `json:"open_issues_count"`
	DefaultBranch   string  `json:"default_branch"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
	PushedAt        *string `json:"pushed_at"`
}

func parseGitHubTime(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// toRepository converts an API repository into the local model.
func (r *apiRepo) toRepository() Repository {
	branch := r.DefaultBranch
	if branch == "" {
		branch = "main"
	}
	return Repository{
		RepoID:          r.ID,
		Name:            r.Name,
		FullName:        r.FullName,
		Description:     deref(r.Description),
		HTMLURL:         r.HTMLURL,
		CloneURL:        r.CloneURL,
		SSHURL:          r.SSHURL,
		Private:         r.Private,
		Fork:            r.Fork,
		Language:        deref(r.Language),
		StarsCount:      r.StargazersCount,
		WatchersCount:   r.WatchersCount,
		ForksCount:      r.ForksCount,
		OpenIssuesCount: r.OpenIssuesCount,
		DefaultBranch:   branch,
		RepoCreatedAt:   parseGitHubTime(&r.CreatedAt),
		RepoUpdatedAt:   parseGitHubTime(&r.UpdatedAt),
		PushedAt:        parseGitHubTime(r.PushedAt),
	}
}

// Client calls the GitHub REST API.
type Client struct {
	oauth *OAuth
	base  string
}

// NewClient creates a client for the API at base. Requests are
// authenticated through oauth.
func NewClient(oauth *OAuth, base string) *Client {
	return &Client{oauth: oauth, base: strings.TrimRight(base, "/")}
}

func (c *Client) do(ctx context.Context, token, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.oauth.Client(ctx, token).Do(req)
	if err != nil {
		return fmt.Errorf("github %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var payload struct {
			Message string `json:"message"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &payload) != nil || payload.Message == "" {
			payload.Message = strings.TrimSpace(string(raw))
		}
		return &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Message: payload.Message}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode github response: %w", err)
	}
	return nil
}

// CurrentUser returns the account token belongs to.
func (c *Client) CurrentUser(ctx context.Context, token string) (*User, error) {
	var u User
	if err := c.do(ctx, token, http.MethodGet, "/user", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// ListRepositories returns every repository the token can see, most recently
// updated first. Paging stops at the first empty page.
func (c *Client) ListRepositories(ctx context.Context, token string) ([]apiRepo, error) {
	var all []apiRepo
	for page := 1; page <= maxRepoPages; page++ {
		q := url.Values{}
		q.Set("per_page", strconv.Itoa(reposPerPage))
		q.Set("sort", "updated")
		q.Set("page", strconv.Itoa(page))

		var batch []apiRepo
		if err := c.do(ctx, token, http.MethodGet, "/user/repos?"+q.Encode(), nil, &batch); err != nil {
			return all, err
		}
		if len(batch) == 0 {
			break
		}
		all = append(all, batch...)
	}
	return all, nil
}

// CreateRepoRequest describes a repository to create for the user.
type CreateRepoRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Private     bool   `json:"private"`
	AutoInit    bool   `json:"auto_init"`
}

// CreateRepository creates a repository owned by the token's account.
func (c *Client) CreateRepository(ctx context.Context, token string, req CreateRepoRequest) (*apiRepo, error) {
	var out apiRepo
	if err := c.do(ctx, token, http.MethodPost, "/user/repos", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func contentsPath(fullName, path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return "/repos/" + fullName + "/contents/" + strings.Join(segments, "/")
}

// FileSHA returns the blob sha of path on branch, or "" when it does not
// exist.
func (c *Client) FileSHA(ctx context.Context, token, fullName, path, branch string) (string, error) {
	endpoint := contentsPath(fullName, path)
	if branch != "" {
		endpoint += "?" + url.Values{"ref": {branch}}.Encode()
	}
	var out struct {
		SHA string `json:"sha"`
	}
	err := c.do(ctx, token, http.MethodGet, endpoint, nil, &out)
	if StatusOf(err) == http.StatusNotFound {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return out.SHA, nil
}

// PutFile creates or replaces path on branch with content and returns the
// html_url of the written file.
func (c *Client) PutFile(ctx context.Context, token, fullName, path, content, message, branch string) (string, error) {
	sha, err := c.FileSHA(ctx, token, fullName, path, branch)
	if err != nil {
		return "", err
	}
	body := map[string]string{
		"message": message,
		"content": base64.StdEncoding.EncodeToString([]byte(content)),
	}
	if branch != "" {
		body["branch"] = branch
	}
	if sha != "" {
		body["sha"] = sha
	}
	var out struct {
		Content struct {
			HTMLURL string `json:"html_url"`
		} `json:"content"`
	}
	if err := c.do(ctx, token, http.MethodPut, contentsPath(fullName, path), body, &out); err != nil {
		return "", err
	}
	return out.Content.HTMLURL, nil
}
