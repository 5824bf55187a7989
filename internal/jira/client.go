package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Issue search parameters.
const (
	searchJQL        = "assignee=currentUser() ORDER BY updated DESC"
	searchFields     = "summary,status,assignee,updated,issuetype,labels,reporter,development"
	searchMaxResults = "50"
)

// APIError is a non-success response from the Atlassian API.
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("atlassian %s %s: status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// StatusOf returns the HTTP status carried by an *APIError in err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// Resource is one site returned by accessible-resources.
type Resource struct {
	ID           string   `json:"id"`
	CloudID      string   `json:"cloudId"`
	Name         string   `json:"name"`
	URL          string   `json:"url"`
	ResourceType string   `json:"resourceType"`
	Scopes       []string `json:"scopes"`
}

// SiteID returns id, falling back to cloudId.
func (r Resource) SiteID() string {
	if r.ID != "" {
		return r.ID
	}
	return r.CloudID
}

// PickJiraResource returns the first Jira site that carries an id, or nil.
func PickJiraResource(resources []Resource) *Resource {
	for i, r := range resources {
		isJira := strings.EqualFold(r.ResourceType, "jira")
		for _, s := range r.Scopes {
			isJira = isJira || strings.Contains(s, "jira")
		}
		if isJira && r.SiteID() != "" {
			return &resources[i]
		}
	}
	return nil
}

// Client calls the Atlassian REST API with a user's bearer token.
type Client struct {
	http    *http.Client
	apiBase string
}

// NewClient creates a client for apiBase.
func NewClient(httpClient *http.Client, apiBase string) *Client {
	return &Client{http: httpClient, apiBase: strings.TrimRight(apiBase, "/")}
}

func (c *Client) issueURL(cloudID, key string) string {
	return fmt.Sprintf("%s/ex/jira/%s/rest/api/3/issue/%s", c.apiBase, url.PathEscape(cloudID), url.PathEscape(key))
}

// do sends the request and decodes a JSON body into out when out is non-nil.
// Statuses outside 2xx become *APIError.
func (c *Client) do(ctx context.Context, token, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("atlassian %s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Method: method, URL: endpoint, StatusCode: resp.StatusCode, Body: string(msg)}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode atlassian response: %w", err)
	}
	return nil
}

// AccessibleResources lists the sites the token grants access to.
func (c *Client) AccessibleResources(ctx context.Context, token string) ([]Resource, error) {
	var out []Resource
	if err := c.do(ctx, token, http.MethodGet, c.apiBase+"/oauth/token/accessible-resources", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RawIssue is an issue as returned by the search and issue endpoints.
type RawIssue struct {
	Key    string    `json:"key"`
	Fields RawFields `json:"fields"`
}

// RawFields holds the issue fields Jadeed reads.
type RawFields struct {
	Summary     string          `json:"summary"`
	Description json.RawMessage `json:"description"`
	Status      *struct {
		Name           string `json:"name"`
		StatusCategory *struct {
			Key string `json:"key"`
		} `json:"statusCategory"`
	} `json:"status"`
	IssueType *struct {
		Name string `json:"name"`
	} `json:"issuetype"`
	Assignee *struct {
		DisplayName string `json:"displayName"`
	} `json:"assignee"`
	Reporter *struct {
		DisplayName string `json:"displayName"`
	} `json:"reporter"`
	Labels      []string        `json:"labels"`
	Development json.RawMessage `json:"development"`
	Updated     string          `json:"updated"`
}

// SearchMine runs the assigned-to-me JQL search on a site.
func (c *Client) SearchMine(ctx context.Context, token, cloudID string) ([]RawIssue, error) {
	q := url.Values{}
	q.Set("jql", searchJQL)
	q.Set("fields", searchFields)
	q.Set("maxResults", searchMaxResults)
	endpoint := fmt.Sprintf("%s/ex/jira/%s/rest/api/3/search/jql?%s", c.apiBase, url.PathEscape(cloudID), q.Encode())

	var out struct {
		Issues []RawIssue `json:"issues"`
	}
	if err := c.do(ctx, token, http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, err
	}
	return out.Issues, nil
}

// GetIssue loads one issue with the given fields.
func (c *Client) GetIssue(ctx context.Context, token, cloudID, key, fields string) (*RawIssue, error) {
	endpoint := c.issueURL(cloudID, key) + "?" + url.Values{"fields": {fields}}.Encode()
	var out RawIssue
	if err := c.do(ctx, token, http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateIssue sends a field update.
func (c *Client) UpdateIssue(ctx context.Context, token, cloudID, key string, fields map[string]any) error {
	return c.do(ctx, token, http.MethodPut, c.issueURL(cloudID, key), map[string]any{"fields": fields}, nil)
}

// DeleteIssue removes an issue.
func (c *Client) DeleteIssue(ctx context.Context, token, cloudID, key string) error {
	return c.do(ctx, token, http.MethodDelete, c.issueURL(cloudID, key), nil, nil)
}
