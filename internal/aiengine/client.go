package aiengine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Listing defaults.
const (
	DefaultLimit  = 100
	DefaultOffset = 0
)

// APIError is a non-success response from the session API.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("failed to %s: %d", e.Op, e.StatusCode)
}

// IsAPIError reports whether err carries an *APIError.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

// Session is one agent session. Fields the API adds later are kept in Raw.
type Session struct {
	SessionID string          `json:"session_id"`
	Status    string          `json:"status,omitempty"`
	Title     string          `json:"title,omitempty"`
	CreatedAt string          `json:"created_at,omitempty"`
	UpdatedAt string          `json:"updated_at,omitempty"`
	Tags      []string        `json:"tags,omitempty"`
	Raw       json.RawMessage `json:"-"`
}

// UnmarshalJSON keeps the full upstream document next to the known fields.
func (s *Session) UnmarshalJSON(b []byte) error {
	type plain Session
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*s = Session(p)
	s.Raw = append(json.RawMessage(nil), b...)
	return nil
}

// MarshalJSON writes the upstream document when one was read.
func (s Session) MarshalJSON() ([]byte, error) {
	if len(s.Raw) > 0 {
		return s.Raw, nil
	}
	type plain Session
	return json.Marshal(plain(s))
}

// NewSession is the body of a create request.
type NewSession struct {
	Prompt     string   `json:"prompt"`
	Title      string   `json:"title,omitempty"`
	Idempotent bool     `json:"idempotent"`
	Tags       []string `json:"tags"`
}

// CreatedSession is the create response.
type CreatedSession struct {
	SessionID    string `json:"session_id"`
	URL          string `json:"url"`
	IsNewSession bool   `json:"is_new_session"`
}

// SplitTags turns a comma separated list into trimmed, non-empty tags.
func SplitTags(s string) []string {
	tags := []string{}
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// Client calls the session API with a bearer key.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

// NewClient creates a client. cfg defaults are applied.
func NewClient(httpClient *http.Client, cfg *Config) *Client {
	cfg.withDefaults()
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{http: httpClient, baseURL: cfg.BaseURL, apiKey: cfg.APIKey}
}

func (c *Client) do(ctx context.Context, op, method, endpoint string, body, out any) error {
	if c.apiKey == "" {
		return ErrNotConfigured
	}
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
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Op: op, StatusCode: resp.StatusCode, Body: string(msg)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode session response: %w", err)
	}
	return nil
}

// ListSessions returns one page of sessions.
func (c *Client) ListSessions(ctx context.Context, limit, offset int) ([]Session, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if offset < 0 {
		offset = DefaultOffset
	}
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))

	var out struct {
		Sessions []Session `json:"sessions"`
	}
	if err := c.do(ctx, "fetch sessions", http.MethodGet, c.baseURL+"/sessions?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	if out.Sessions == nil {
		out.Sessions = []Session{}
	}
	return out.Sessions, nil
}

// CreateSession starts a session. Sessions are always created idempotently.
func (c *Client) CreateSession(ctx context.Context, in NewSession) (*CreatedSession, error) {
	in.Prompt = strings.TrimSpace(in.Prompt)
	if in.Prompt == "" {
		return nil, ErrPromptRequired
	}
	in.Idempotent = true
	if in.Tags == nil {
		in.Tags = []string{}
	}
	var out CreatedSession
	if err := c.do(ctx, "create session", http.MethodPost, c.baseURL+"/sessions", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSession returns the details of one session.
func (c *Client) GetSession(ctx context.Context, id string) (*Session, error) {
	var out Session
	endpoint := c.baseURL + "/sessions/" + url.PathEscape(id)
	if err := c.do(ctx, "fetch session details", http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
