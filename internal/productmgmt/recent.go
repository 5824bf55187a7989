package productmgmt

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/hadibuxm/jadeed/internal/platform/store"
)

// recentLimit is the number of recent items returned.
const recentLimit = 5

// TrackRecent records that userID viewed an item. Tracking the same item
// again refreshes its title, url and viewed_at.
func (s *Service) TrackRecent(ctx context.Context, userID string, item RecentItem) (*RecentItem, error) {
	item.ItemType = strings.TrimSpace(item.ItemType)
	item.ItemID = strings.TrimSpace(item.ItemID)
	item.Title = strings.TrimSpace(item.Title)
	item.URL = strings.TrimSpace(item.URL)
	if item.ItemType == "" || item.ItemID == "" || item.Title == "" || item.URL == "" {
		return nil, ErrRecentItemFields
	}
	if !recentItemTypes[item.ItemType] {
		return nil, ErrInvalidItemType
	}
	item.UserID, item.ViewedAt = userID, s.store.Now()
	err := s.store.Q(ctx).QueryRowContext(ctx, `INSERT INTO recent_items (id, user_id, item_type, item_id, title, url, viewed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, item_type, item_id) DO UPDATE SET title = excluded.title, url = excluded.url, viewed_at = excluded.viewed_at
		RETURNING id`, store.NewID(), userID, item.ItemType, item.ItemID, item.Title, item.URL, item.ViewedAt).Scan(&item.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to track recent item: %w", err)
	}
	return &item, nil
}

// RecentItems returns the most recently viewed items of userID.
func (s *Service) RecentItems(ctx context.Context, userID string) ([]RecentItem, error) {
	rows, err := s.store.Q(ctx).QueryContext(ctx, `SELECT id, user_id, item_type, item_id, title, url, viewed_at
		FROM recent_items WHERE user_id = $1 ORDER BY viewed_at DESC, id LIMIT $2`, userID, recentLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent items: %w", err)
	}
	defer rows.Close()
	out := []RecentItem{}
	for rows.Next() {
		var it RecentItem
		if err := rows.Scan(&it.ID, &it.UserID, &it.ItemType, &it.ItemID, &it.Title, &it.URL, &it.ViewedAt); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func scanProject(row store.Scanner) (*Project, error) {
	var (
		p    Project
		repo sql.NullString
	)
	if err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.Description, &repo, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.GitHubRepositoryID = repo.String
	return &p, nil
}

const projectColumns = `id, user_id, name, description, github_repository_id, created_at, updated_at`

// CreateProject creates a project of userID, optionally bound to one of
// the user's repositories.
func (s *Service) CreateProject(ctx context.Context, userID, name, description, repositoryID string) (*Project, error) {
	name, description = strings.TrimSpace(name), strings.TrimSpace(description)
	if name == "" {
		return nil, ErrProjectNameRequired
	}
	if repositoryID != "" {
		if s.repos == nil {
			return nil, ErrProjectRepository
		}
		ok, err := s.repos.OwnsAll(ctx, userID, []string{repositoryID})
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrProjectRepository
		}
	}
	now := s.store.Now()
	p := &Project{ID: store.NewID(), UserID: userID, Name: name, Description: description,
		GitHubRepositoryID: repositoryID, CreatedAt: now, UpdatedAt: now}
	if _, err := s.store.Q(ctx).ExecContext(ctx, `INSERT INTO pm_projects (`+projectColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $6)`,
		p.ID, p.UserID, p.Name, p.Description, store.NullString(p.GitHubRepositoryID), now); err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	return p, nil
}

// Project returns a project of userID.
func (s *Service) Project(ctx context.Context, userID, id string) (*Project, error) {
	p, err := scanProject(s.store.Q(ctx).QueryRowContext(ctx, `SELECT `+projectColumns+` FROM pm_projects
		WHERE id = $1 AND user_id = $2`, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}
	return p, nil
}

// Projects lists the projects of userID, newest first.
func (s *Service) Projects(ctx context.Context, userID string) ([]*Project, error) {
	rows, err := s.store.Q(ctx).QueryContext(ctx, `SELECT `+projectColumns+` FROM pm_projects
		WHERE user_id = $1 ORDER BY created_at DESC, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()
	out := []*Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeleteProject removes a project with its steps and the recent items
// pointing at them.
func (s *Service) DeleteProject(ctx context.Context, userID, id string) (*Project, error) {
	p, err := s.Project(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	err = s.store.WithTx(ctx, func(ctx context.Context) error {
		q := s.store.Q(ctx)
		if _, err := q.ExecContext(ctx, `DELETE FROM recent_items WHERE user_id = $1 AND (
				(item_type = 'project' AND item_id = $2) OR
				(item_type IN ('product', 'feature', 'workflow') AND item_id IN (SELECT id FROM workflow_steps WHERE project_id = $2)))`,
			userID, p.ID); err != nil {
			return fmt.Errorf("failed to clear recent items: %w", err)
		}
		if _, err := q.ExecContext(ctx, `DELETE FROM pm_projects WHERE id = $1`, p.ID); err != nil {
			return fmt.Errorf("failed to delete project: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}
