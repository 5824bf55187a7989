package github

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/GoCodeAlone/modular"
	"golang.org/x/sync/errgroup"

	"github.com/hadibuxm/jadeed/internal/platform/store"
)

// syncConcurrency bounds parallel resyncs in SyncAll.
const syncConcurrency = 4

// Service stores GitHub connections and repositories and talks to the API on
// the user's behalf.
type Service struct {
	store  *store.Store
	config *Config
	oauth  *OAuth
	api    *Client
	logger modular.Logger
}

// NewService creates a service. httpClient carries every outbound call.
func NewService(st *store.Store, cfg *Config, httpClient *http.Client, logger modular.Logger) *Service {
	cfg.withDefaults()
	oauth := NewOAuth(cfg, httpClient)
	return &Service{
		store:  st,
		config: cfg,
		oauth:  oauth,
		api:    NewClient(oauth, cfg.APIBase),
		logger: logger,
	}
}

// AuthorizeURL returns the consent URL for userID.
func (s *Service) AuthorizeURL(userID string) (string, error) {
	if !s.config.Configured() {
		return "", ErrNotConfigured
	}
	return s.oauth.AuthCodeURL(userID), nil
}

// CompleteAuth exchanges code, stores the connection for the user named in
// state and syncs the user's repositories. A failed sync leaves the
// connection in place.
func (s *Service) CompleteAuth(ctx context.Context, state, code string) (*Connection, error) {
	userID, err := s.oauth.DecodeState(state)
	if err != nil {
		return nil, err
	}
	tok, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	gh, err := s.api.CurrentUser(ctx, tok.AccessToken)
	if err != nil {
		return nil, err
	}

	tokenType := strings.ToLower(tok.TokenType)
	if tokenType == "" {
		tokenType = "bearer"
	}
	scope, _ := tok.Extra("scope").(string)
	if scope == "" {
		scope = s.config.Scopes
	}
	now := s.store.Now()
	_, err = s.store.Q(ctx).ExecContext(ctx, `INSERT INTO github_connections
		(id, user_id, access_token, refresh_token, token_type, scope, github_user_id, username, avatar_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		ON CONFLICT (user_id) DO UPDATE SET access_token = excluded.access_token,
			refresh_token = excluded.refresh_token, token_type = excluded.token_type, scope = excluded.scope,
			github_user_id = excluded.github_user_id, username = excluded.username,
			avatar_url = excluded.avatar_url, updated_at = excluded.updated_at`,
		store.NewID(), userID, tok.AccessToken, tok.RefreshToken, tokenType, scope, gh.ID, gh.Login, gh.AvatarURL, now)
	if err != nil {
		return nil, fmt.Errorf("failed to save github connection: %w", err)
	}

	conn, err := s.Connection(ctx, userID)
	if err != nil {
		return nil, err
	}
	if n, err := s.SyncRepositories(ctx, conn); err != nil {
		s.logger.Warn("Repository sync after connect failed", "user", userID, "error", err)
	} else {
		s.logger.Info("Synced repositories after connect", "user", userID, "count", n)
	}
	return conn, nil
}

const connectionColumns = `id, user_id, access_token, refresh_token, token_type, scope, github_user_id, username, avatar_url, created_at, updated_at`

func scanConnection(row store.Scanner) (*Connection, error) {
	var c Connection
	err := row.Scan(&c.ID, &c.UserID, &c.AccessToken, &c.RefreshToken, &c.TokenType, &c.Scope,
		&c.GitHubUserID, &c.Username, &c.AvatarURL, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Connection loads the user's connection.
func (s *Service) Connection(ctx context.Context, userID string) (*Connection, error) {
	c, err := scanConnection(s.store.Q(ctx).QueryRowContext(ctx,
		`SELECT `+connectionColumns+` FROM github_connections WHERE user_id = $1`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotConnected
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load github connection: %w", err)
	}
	return c, nil
}

// Connections lists every stored connection.
func (s *Service) Connections(ctx context.Context) ([]*Connection, error) {
	rows, err := s.store.Q(ctx).QueryContext(ctx, `SELECT `+connectionColumns+` FROM github_connections ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list github connections: %w", err)
	}
	defer rows.Close()
	var out []*Connection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan github connection: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Disconnect deletes the user's connection and its repositories.
func (s *Service) Disconnect(ctx context.Context, userID string) error {
	res, err := s.store.Q(ctx).ExecContext(ctx, `DELETE FROM github_connections WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete github connection: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotConnected
	}
	return nil
}

// SyncRepositories fetches the connection's repositories and upserts them.
// Repositories fetched before a failing page are still stored.
func (s *Service) SyncRepositories(ctx context.Context, conn *Connection) (int, error) {
	repos, fetchErr := s.api.ListRepositories(ctx, conn.AccessToken)
	saved := 0
	for i := range repos {
		r := repos[i].toRepository()
		if _, err := s.upsertRepository(ctx, conn.ID, &r); err != nil {
			s.logger.Error("Failed to save repository", "repository", r.FullName, "error", err)
			continue
		}
		saved++
	}
	if fetchErr != nil {
		return saved, fetchErr
	}
	return saved, nil
}

// SyncAll resyncs every connection. Failures are logged per connection.
func (s *Service) SyncAll(ctx context.Context) error {
	conns, err := s.Connections(ctx)
	if err != nil {
		return err
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(syncConcurrency)
	for _, c := range conns {
		g.Go(func() error {
			n, err := s.SyncRepositories(ctx, c)
			if err != nil {
				s.logger.Warn("Scheduled repository sync failed", "user", c.UserID, "error", err)
				return nil
			}
			s.logger.Debug("Scheduled repository sync", "user", c.UserID, "count", n)
			return nil
		})
	}
	return g.Wait()
}

func (s *Service) upsertRepository(ctx context.Context, connectionID string, r *Repository) (string, error) {
	now := s.store.Now()
	var id string
	err := s.store.Q(ctx).QueryRowContext(ctx, `INSERT INTO github_repositories
		(id, connection_id, repo_id, name, full_name, description, html_url, clone_url, ssh_url, private, fork,
		 language, stars_count, watchers_count, forks_count, open_issues_count, default_branch,
		 repo_created_at, repo_updated_at, pushed_at, last_synced)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		ON CONFLICT (connection_id, repo_id) DO UPDATE SET name = excluded.name, full_name = excluded.full_name,
			description = excluded.description, html_url = excluded.html_url, clone_url = excluded.clone_url,
			ssh_url = excluded.ssh_url, private = excluded.private, fork = excluded.fork, language = excluded.language,
			stars_count = excluded.stars_count, watchers_count = excluded.watchers_count,
			forks_count = excluded.forks_count, open_issues_count = excluded.open_issues_count,
			default_branch = excluded.default_branch, repo_created_at = excluded.repo_created_at,
			repo_updated_at = excluded.repo_updated_at, pushed_at = excluded.pushed_at,
			last_synced = excluded.last_synced
		RETURNING id`,
		store.NewID(), connectionID, r.RepoID, r.Name, r.FullName, r.Description, r.HTMLURL, r.CloneURL, r.SSHURL,
		r.Private, r.Fork, r.Language, r.StarsCount, r.WatchersCount, r.ForksCount, r.OpenIssuesCount,
		r.DefaultBranch, nullTime(r.RepoCreatedAt), nullTime(r.RepoUpdatedAt), nullTime(r.PushedAt), now,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to upsert repository %s: %w", r.FullName, err)
	}
	return id, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

const repositoryColumns = `r.id, r.connection_id, r.repo_id, r.name, r.full_name, r.description, r.html_url,
	r.clone_url, r.ssh_url, r.private, r.fork, r.language, r.stars_count, r.watchers_count, r.forks_count,
	r.open_issues_count, r.default_branch, r.repo_created_at, r.repo_updated_at, r.pushed_at, r.last_synced`

func scanRepository(row store.Scanner) (*Repository, error) {
	var r Repository
	var created, updated, pushed sql.NullTime
	err := row.Scan(&r.ID, &r.ConnectionID, &r.RepoID, &r.Name, &r.FullName, &r.Description, &r.HTMLURL,
		&r.CloneURL, &r.SSHURL, &r.Private, &r.Fork, &r.Language, &r.StarsCount, &r.WatchersCount, &r.ForksCount,
		&r.OpenIssuesCount, &r.DefaultBranch, &created, &updated, &pushed, &r.LastSynced)
	if err != nil {
		return nil, err
	}
	r.RepoCreatedAt, r.RepoUpdatedAt, r.PushedAt = store.TimePtr(created), store.TimePtr(updated), store.TimePtr(pushed)
	return &r, nil
}

// Repositories lists the user's repositories, most recently updated first.
func (s *Service) Repositories(ctx context.Context, userID string) ([]Repository, error) {
	rows, err := s.store.Q(ctx).QueryContext(ctx, `SELECT `+repositoryColumns+`
		FROM github_repositories r JOIN github_connections c ON c.id = r.connection_id
		WHERE c.user_id = $1
		ORDER BY r.repo_updated_at DESC, r.full_name`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list repositories: %w", err)
	}
	defer rows.Close()
	var out []Repository
	for rows.Next() {
		r, err := scanRepository(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan repository: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// Repository loads one repository by its local id.
func (s *Service) Repository(ctx context.Context, id string) (*Repository, error) {
	r, err := scanRepository(s.store.Q(ctx).QueryRowContext(ctx,
		`SELECT `+repositoryColumns+` FROM github_repositories r WHERE r.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRepositoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load repository: %w", err)
	}
	return r, nil
}

// UserRepository loads a repository that belongs to userID's connection.
func (s *Service) UserRepository(ctx context.Context, userID, id string) (*Repository, error) {
	r, err := scanRepository(s.store.Q(ctx).QueryRowContext(ctx, `SELECT `+repositoryColumns+`
		FROM github_repositories r JOIN github_connections c ON c.id = r.connection_id
		WHERE r.id = $1 AND c.user_id = $2`, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRepositoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load repository: %w", err)
	}
	return r, nil
}

// OwnsAll reports whether every id is a repository of userID's connection.
func (s *Service) OwnsAll(ctx context.Context, userID string, ids []string) (bool, error) {
	for _, id := range ids {
		if _, err := s.UserRepository(ctx, userID, id); errors.Is(err, ErrRepositoryNotFound) {
			return false, nil
		} else if err != nil {
			return false, err
		}
	}
	return true, nil
}

// Status is the connection overview shown on the GitHub page.
type Status struct {
	HasConnection bool             `json:"has_connection"`
	Connection    *Connection      `json:"connection"`
	Repositories  []RepositoryView `json:"repositories"`
}

// Status returns the user's connection and repositories.
func (s *Service) Status(ctx context.Context, userID string) (*Status, error) {
	conn, err := s.Connection(ctx, userID)
	if errors.Is(err, ErrNotConnected) {
		return &Status{Repositories: []RepositoryView{}}, nil
	}
	if err != nil {
		return nil, err
	}
	repos, err := s.Repositories(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Status{HasConnection: true, Connection: conn, Repositories: Views(repos)}, nil
}

// CreateRepository creates a repository on GitHub and stores it locally.
func (s *Service) CreateRepository(ctx context.Context, userID string, req CreateRepoRequest) (*Repository, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, ErrInvalidRepoName
	}
	conn, err := s.Connection(ctx, userID)
	if err != nil {
		return nil, err
	}
	created, err := s.api.CreateRepository(ctx, conn.AccessToken, req)
	if err != nil {
		return nil, err
	}
	r := created.toRepository()
	id, err := s.upsertRepository(ctx, conn.ID, &r)
	if err != nil {
		return nil, err
	}
	return s.Repository(ctx, id)
}

// PushFile writes content to path on the repository's default branch with
// the owning connection's token. It returns the file's URL on GitHub.
func (s *Service) PushFile(ctx context.Context, repositoryID, path, content, message string) (string, error) {
	repo, err := s.Repository(ctx, repositoryID)
	if err != nil {
		return "", err
	}
	conn, err := scanConnection(s.store.Q(ctx).QueryRowContext(ctx,
		`SELECT `+connectionColumns+` FROM github_connections WHERE id = $1`, repo.ConnectionID))
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotConnected
	}
	if err != nil {
		return "", fmt.Errorf("failed to load github connection: %w", err)
	}
	return s.api.PutFile(ctx, conn.AccessToken, repo.FullName, path, content, message, repo.DefaultBranch)
}
