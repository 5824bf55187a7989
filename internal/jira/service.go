package jira

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/hadibuxm/jadeed/internal/platform/store"
)

// pendingAuthTTL bounds how long a consent round trip may take.
const pendingAuthTTL = 10 * time.Minute

var (
	ErrInvalidConfigType  = errors.New("invalid config type for jira module")
	ErrServiceUnavailable = errors.New("required service unavailable")
	ErrNotConnected       = errors.New("no jira connection found")
	ErrInvalidState       = errors.New("invalid or expired oauth state")
	ErrTokenExchange      = errors.New("token exchange failed")
	ErrTokenRefresh       = errors.New("token refresh failed")
	ErrIssueNotFound      = errors.New("issue not found")
)

// Connection is a user's link to one Jira site.
type Connection struct {
	UserID       string     `json:"-"`
	AccessToken  string     `json:"-"`
	RefreshToken string     `json:"-"`
	ExpiresAt    *time.Time `json:"expires_at"`
	Scope        string     `json:"scope"`
	TokenType    string     `json:"token_type"`
	CloudID      string     `json:"cloud_id"`
	CloudName    string     `json:"cloud_name"`
	CreatedAt    time.Time  `json:"connected_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Ready reports whether the connection can call the issue APIs.
func (c *Connection) Ready() bool {
	return c != nil && c.AccessToken != "" && c.CloudID != ""
}

// Service runs the OAuth flow and the issue operations for one user at a
// time.
type Service struct {
	store   *store.Store
	config  *Config
	oauth   *OAuth
	api     *Client
	refresh singleflight.Group
}

// NewService creates a service. httpClient carries every outbound call.
func NewService(st *store.Store, cfg *Config, httpClient *http.Client) *Service {
	cfg.withDefaults()
	return &Service{
		store:  st,
		config: cfg,
		oauth:  NewOAuth(cfg, httpClient),
		api:    NewClient(httpClient, cfg.APIBase),
	}
}

// BeginAuth records a fresh state and PKCE verifier for userID and returns
// the consent URL.
func (s *Service) BeginAuth(ctx context.Context, userID string) (string, error) {
	if !s.config.Configured() {
		return "", ErrNotConfigured
	}
	state := strings.ReplaceAll(store.NewID(), "-", "")
	verifier := oauth2.GenerateVerifier()
	now := s.store.Now()

	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.store.Q(ctx).ExecContext(ctx,
			`DELETE FROM jira_pending_auth WHERE created_at < $1 OR user_id = $2`, now.Add(-pendingAuthTTL), userID); err != nil {
			return fmt.Errorf("failed to purge pending auth: %w", err)
		}
		_, err := s.store.Q(ctx).ExecContext(ctx,
			`INSERT INTO jira_pending_auth (state, user_id, verifier, created_at) VALUES ($1, $2, $3, $4)`,
			state, userID, verifier, now)
		if err != nil {
			return fmt.Errorf("failed to store pending auth: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return s.oauth.AuthCodeURL(state, verifier), nil
}

// takePending consumes the pending auth row for state.
func (s *Service) takePending(ctx context.Context, state string) (userID, verifier string, err error) {
	var created time.Time
	err = s.store.WithTx(ctx, func(ctx context.Context) error {
		err := s.store.Q(ctx).QueryRowContext(ctx,
			`SELECT user_id, verifier, created_at FROM jira_pending_auth WHERE state = $1`, state).Scan(&userID, &verifier, &created)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrInvalidState
		}
		if err != nil {
			return fmt.Errorf("failed to load pending auth: %w", err)
		}
		_, err = s.store.Q(ctx).ExecContext(ctx, `DELETE FROM jira_pending_auth WHERE state = $1`, state)
		return err
	})
	if err != nil {
		return "", "", err
	}
	if s.store.Now().Sub(created) > pendingAuthTTL {
		return "", "", ErrInvalidState
	}
	return userID, verifier, nil
}

// CompleteAuth finishes the flow started by BeginAuth: it exchanges code,
// picks the user's Jira site and stores the connection.
func (s *Service) CompleteAuth(ctx context.Context, state, code string) (*Connection, error) {
	userID, verifier, err := s.takePending(ctx, state)
	if err != nil {
		return nil, err
	}
	tok, err := s.oauth.Exchange(ctx, code, verifier)
	if err != nil {
		return nil, err
	}
	resources, err := s.api.AccessibleResources(ctx, tok.AccessToken)
	if err != nil {
		return nil, err
	}

	conn := &Connection{
		UserID:       userID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Scope:        s.config.Scopes,
	}
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry.UTC()
		conn.ExpiresAt = &exp
	}
	site := PickJiraResource(resources)
	if site == nil && len(resources) > 0 {
		site = &resources[0]
	}
	if site != nil {
		conn.CloudID, conn.CloudName = site.SiteID(), site.Name
	}
	if err := s.saveConnection(ctx, conn); err != nil {
		return nil, err
	}
	return s.Connection(ctx, userID)
}

const connectionColumns = `user_id, access_token, refresh_token, expires_at, scope, token_type, cloud_id, cloud_name, created_at, updated_at`

func (s *Service) saveConnection(ctx context.Context, c *Connection) error {
	now := s.store.Now()
	var expires sql.NullTime
	if c.ExpiresAt != nil {
		expires = sql.NullTime{Time: *c.ExpiresAt, Valid: true}
	}
	_, err := s.store.Q(ctx).ExecContext(ctx, `INSERT INTO atlassian_connections (`+connectionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (user_id) DO UPDATE SET access_token = excluded.access_token,
			refresh_token = excluded.refresh_token, expires_at = excluded.expires_at, scope = excluded.scope,
			token_type = excluded.token_type, cloud_id = excluded.cloud_id, cloud_name = excluded.cloud_name,
			updated_at = excluded.updated_at`,
		c.UserID, c.AccessToken, c.RefreshToken, expires, c.Scope, c.TokenType, c.CloudID, c.CloudName, now)
	if err != nil {
		return fmt.Errorf("failed to save jira connection: %w", err)
	}
	return nil
}

// Connection loads the user's connection.
func (s *Service) Connection(ctx context.Context, userID string) (*Connection, error) {
	var c Connection
	var expires sql.NullTime
	err := s.store.Q(ctx).QueryRowContext(ctx, `SELECT `+connectionColumns+` FROM atlassian_connections WHERE user_id = $1`, userID).
		Scan(&c.UserID, &c.AccessToken, &c.RefreshToken, &expires, &c.Scope, &c.TokenType, &c.CloudID, &c.CloudName, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotConnected
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load jira connection: %w", err)
	}
	c.ExpiresAt = store.TimePtr(expires)
	return &c, nil
}

// Disconnect removes the user's connection.
func (s *Service) Disconnect(ctx context.Context, userID string) error {
	res, err := s.store.Q(ctx).ExecContext(ctx, `DELETE FROM atlassian_connections WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete jira connection: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotConnected
	}
	return nil
}

// EnsureAccessToken returns a usable access token, refreshing it first when
// it expires within the configured leeway. Concurrent refreshes for the same
// user share one token request.
func (s *Service) EnsureAccessToken(ctx context.Context, conn *Connection) (string, error) {
	if conn.ExpiresAt == nil || conn.RefreshToken == "" || conn.ExpiresAt.Sub(s.store.Now()) >= s.config.RefreshLeeway {
		return conn.AccessToken, nil
	}
	v, err, _ := s.refresh.Do(conn.UserID, func() (any, error) {
		tok, err := s.oauth.Refresh(ctx, conn.RefreshToken)
		if err != nil {
			return nil, err
		}
		updated := *conn
		updated.AccessToken = tok.AccessToken
		if tok.RefreshToken != "" {
			updated.RefreshToken = tok.RefreshToken
		}
		if !tok.Expiry.IsZero() {
			exp := tok.Expiry.UTC()
			updated.ExpiresAt = &exp
		}
		_, err = s.store.Q(ctx).ExecContext(ctx, `UPDATE atlassian_connections
			SET access_token = $1, refresh_token = $2, expires_at = $3, updated_at = $4 WHERE user_id = $5`,
			updated.AccessToken, updated.RefreshToken, store.NullTime(derefTime(updated.ExpiresAt)), s.store.Now(), updated.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to persist refreshed token: %w", err)
		}
		return &updated, nil
	})
	if err != nil {
		return "", err
	}
	fresh := v.(*Connection)
	conn.AccessToken, conn.RefreshToken, conn.ExpiresAt = fresh.AccessToken, fresh.RefreshToken, fresh.ExpiresAt
	return conn.AccessToken, nil
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// ready loads a connection that can call the issue APIs and a fresh token.
func (s *Service) ready(ctx context.Context, userID string) (*Connection, string, error) {
	conn, err := s.Connection(ctx, userID)
	if err != nil {
		return nil, "", err
	}
	if !conn.Ready() {
		return nil, "", ErrNotConnected
	}
	token, err := s.EnsureAccessToken(ctx, conn)
	if err != nil {
		return nil, "", err
	}
	return conn, token, nil
}

// IssueList is the user's assigned issues and their summary.
type IssueList struct {
	CloudName string  `json:"cloud_name"`
	Issues    []Issue `json:"issues"`
	Summary   Summary `json:"summary"`
}

// ListIssues returns the issues assigned to the user, most recently updated
// first. A 410 from the site means it moved; the site is picked again and the
// search retried once.
func (s *Service) ListIssues(ctx context.Context, userID string) (*IssueList, error) {
	conn, token, err := s.ready(ctx, userID)
	if err != nil {
		return nil, err
	}
	raw, err := s.api.SearchMine(ctx, token, conn.CloudID)
	if StatusOf(err) == http.StatusGone {
		moved, rerr := s.repickSite(ctx, conn, token)
		if rerr != nil {
			return nil, rerr
		}
		if moved {
			raw, err = s.api.SearchMine(ctx, token, conn.CloudID)
		}
	}
	if err != nil {
		return nil, err
	}

	issues := make([]Issue, 0, len(raw))
	for _, r := range raw {
		issues = append(issues, Enrich(r))
	}
	return &IssueList{CloudName: conn.CloudName, Issues: issues, Summary: Summarize(issues)}, nil
}

// repickSite refreshes conn's site from accessible-resources and reports
// whether it changed.
func (s *Service) repickSite(ctx context.Context, conn *Connection, token string) (bool, error) {
	resources, err := s.api.AccessibleResources(ctx, token)
	if err != nil {
		return false, err
	}
	site := PickJiraResource(resources)
	if site == nil || site.SiteID() == conn.CloudID {
		return false, nil
	}
	conn.CloudID = site.SiteID()
	if site.Name != "" {
		conn.CloudName = site.Name
	}
	_, err = s.store.Q(ctx).ExecContext(ctx,
		`UPDATE atlassian_connections SET cloud_id = $1, cloud_name = $2, updated_at = $3 WHERE user_id = $4`,
		conn.CloudID, conn.CloudName, s.store.Now(), conn.UserID)
	if err != nil {
		return false, fmt.Errorf("failed to update jira site: %w", err)
	}
	return true, nil
}

// IssueDetail is the editable part of an issue.
type IssueDetail struct {
	Key         string `json:"key"`
	Summary     string `json:"summary"`
	Description string `json:"description"`
}

// GetIssue loads an issue's summary and plaintext description.
func (s *Service) GetIssue(ctx context.Context, userID, key string) (*IssueDetail, error) {
	conn, token, err := s.ready(ctx, userID)
	if err != nil {
		return nil, err
	}
	raw, err := s.api.GetIssue(ctx, token, conn.CloudID, key, "summary,description")
	if StatusOf(err) == http.StatusNotFound {
		return nil, ErrIssueNotFound
	}
	if err != nil {
		return nil, err
	}
	return &IssueDetail{Key: key, Summary: raw.Fields.Summary, Description: DescriptionText(raw.Fields.Description)}, nil
}

// IssueUpdate carries the fields to change. Nil means unchanged; an empty
// description clears it.
type IssueUpdate struct {
	Summary     *string
	Description *string
}

// UpdateIssue applies u. An update with nothing to change is a no-op.
func (s *Service) UpdateIssue(ctx context.Context, userID, key string, u IssueUpdate) error {
	fields := map[string]any{}
	if u.Summary != nil {
		if summary := strings.TrimSpace(*u.Summary); summary != "" {
			fields["summary"] = summary
		}
	}
	if u.Description != nil {
		if text := strings.TrimSpace(*u.Description); text != "" {
			fields["description"] = PlaintextToADF(text)
		} else {
			fields["description"] = nil
		}
	}

	conn, token, err := s.ready(ctx, userID)
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}
	err = s.api.UpdateIssue(ctx, token, conn.CloudID, key, fields)
	if StatusOf(err) == http.StatusNotFound {
		return ErrIssueNotFound
	}
	return err
}

// DeleteIssue removes an issue from the user's site.
func (s *Service) DeleteIssue(ctx context.Context, userID, key string) error {
	conn, token, err := s.ready(ctx, userID)
	if err != nil {
		return err
	}
	err = s.api.DeleteIssue(ctx, token, conn.CloudID, key)
	if StatusOf(err) == http.StatusNotFound {
		return ErrIssueNotFound
	}
	return err
}
