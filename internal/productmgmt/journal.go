package productmgmt

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hadibuxm/jadeed/internal/platform/store"
)

// actionHistoryLimit caps the action log returned for a step.
const actionHistoryLimit = 100

// displayName of a users row, falling back to the username.
const displayName = `COALESCE(NULLIF(TRIM(u.first_name || ' ' || u.last_name), ''), u.username, '')`

// AddComment stores a comment and logs it.
func (s *Service) AddComment(ctx context.Context, userID, stepID, content string) (*Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyComment
	}
	st, err := s.visible(ctx, userID, stepID)
	if err != nil {
		return nil, err
	}
	c := &Comment{ID: store.NewID(), StepID: st.ID, UserID: userID, Content: content, CreatedAt: s.store.Now()}
	err = s.store.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.store.Q(ctx).ExecContext(ctx, `INSERT INTO workflow_comments (id, step_id, user_id, content, created_at)
			VALUES ($1, $2, $3, $4, $5)`, c.ID, c.StepID, c.UserID, c.Content, c.CreatedAt); err != nil {
			return fmt.Errorf("failed to add comment: %w", err)
		}
		_, err := s.LogAction(ctx, st.ID, userID, ActionCommentAdded,
			"Comment added: "+firstRunes(content, 100), map[string]any{"comment_id": c.ID})
		return err
	})
	if err != nil {
		return nil, err
	}
	c.User = s.userName(ctx, userID)
	return c, nil
}

// Comments lists the comments of a step, newest first.
func (s *Service) Comments(ctx context.Context, userID, stepID string) ([]Comment, error) {
	if _, err := s.visible(ctx, userID, stepID); err != nil {
		return nil, err
	}
	rows, err := s.store.Q(ctx).QueryContext(ctx, `SELECT c.id, c.step_id, c.user_id, `+displayName+`, c.content, c.created_at
		FROM workflow_comments c LEFT JOIN users u ON u.id = c.user_id
		WHERE c.step_id = $1 ORDER BY c.created_at DESC, c.id`, stepID)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer rows.Close()
	out := []Comment{}
	for rows.Next() {
		var (
			c    Comment
			user sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.StepID, &user, &c.User, &c.Content, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.UserID = user.String
		out = append(out, c)
	}
	return out, rows.Err()
}

// LogAction appends an entry to the action log of a step. It joins the
// caller's transaction when there is one.
func (s *Service) LogAction(ctx context.Context, stepID, userID string, action ActionType, description string, metadata map[string]any) (*ActionLog, error) {
	if !action.Valid() {
		return nil, ErrInvalidActionType
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return nil, err
	}
	a := &ActionLog{
		ID:          store.NewID(),
		StepID:      stepID,
		UserID:      userID,
		ActionType:  action,
		ActionLabel: actionLabels[action],
		Description: description,
		Metadata:    metadata,
		CreatedAt:   s.store.Now(),
	}
	if _, err := s.store.Q(ctx).ExecContext(ctx, `INSERT INTO workflow_action_logs
		(id, step_id, user_id, action_type, description, metadata, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.StepID, store.NullString(a.UserID), string(a.ActionType), a.Description, string(raw), a.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to log action: %w", err)
	}
	return a, nil
}

// CreateAction logs a client supplied action on a step.
func (s *Service) CreateAction(ctx context.Context, userID, stepID string, action ActionType, description string, metadata map[string]any) (*ActionLog, error) {
	if !action.Valid() {
		return nil, ErrInvalidActionType
	}
	st, err := s.visible(ctx, userID, stepID)
	if err != nil {
		return nil, err
	}
	a, err := s.LogAction(ctx, st.ID, userID, action, strings.TrimSpace(description), metadata)
	if err != nil {
		return nil, err
	}
	a.User = s.userName(ctx, userID)
	return a, nil
}

// Actions returns the latest action log entries of a step, newest first.
func (s *Service) Actions(ctx context.Context, userID, stepID string) ([]ActionLog, error) {
	if _, err := s.visible(ctx, userID, stepID); err != nil {
		return nil, err
	}
	rows, err := s.store.Q(ctx).QueryContext(ctx, `SELECT a.id, a.step_id, a.user_id, `+displayName+`, a.action_type,
			a.description, a.metadata, a.created_at
		FROM workflow_action_logs a LEFT JOIN users u ON u.id = a.user_id
		WHERE a.step_id = $1 ORDER BY a.created_at DESC, a.id LIMIT $2`, stepID, actionHistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list actions: %w", err)
	}
	defer rows.Close()
	out := []ActionLog{}
	for rows.Next() {
		var (
			a    ActionLog
			user sql.NullString
			meta string
		)
		if err := rows.Scan(&a.ID, &a.StepID, &user, &a.User, &a.ActionType, &a.Description, &meta, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.UserID = user.String
		a.ActionLabel = actionLabels[a.ActionType]
		if err := json.Unmarshal([]byte(meta), &a.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode action metadata: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// saveDocument inserts a document row and archives the content when an
// archive is configured. Archive failures are logged, not returned.
func (s *Service) saveDocument(ctx context.Context, st *WorkflowStep, userID string, kind DocumentType, title, content, source string) (*Document, error) {
	if !kind.Valid() {
		return nil, ErrInvalidDocumentType
	}
	if source == "" {
		source = "ai"
	}
	d := &Document{
		ID:           store.NewID(),
		StepID:       st.ID,
		DocumentType: kind,
		Title:        title,
		Content:      content,
		Source:       source,
		CreatedBy:    userID,
		CreatedAt:    s.store.Now(),
	}
	if _, err := s.store.Q(ctx).ExecContext(ctx, `INSERT INTO workflow_documents
		(id, step_id, document_type, title, content, source, created_by, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		d.ID, d.StepID, string(d.DocumentType), d.Title, d.Content, d.Source, store.NullString(d.CreatedBy), d.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to save document: %w", err)
	}
	if s.archive != nil {
		if err := s.archive.Archive(ctx, st, d); err != nil {
			s.logger.Warn("Failed to archive document", "document", d.ID, "step", st.ID, "error", err)
		}
	}
	return d, nil
}

// SaveDocument stores a user supplied document on a step.
func (s *Service) SaveDocument(ctx context.Context, userID, stepID string, kind DocumentType, title, content string) (*Document, error) {
	title, content = strings.TrimSpace(title), strings.TrimSpace(content)
	if title == "" {
		return nil, ErrEmptyTitle
	}
	if content == "" {
		return nil, ErrEmptyMessage
	}
	if !kind.Valid() {
		return nil, ErrInvalidDocumentType
	}
	st, err := s.visible(ctx, userID, stepID)
	if err != nil {
		return nil, err
	}
	var doc *Document
	err = s.store.WithTx(ctx, func(ctx context.Context) error {
		d, err := s.saveDocument(ctx, st, userID, kind, title, content, "user")
		if err != nil {
			return err
		}
		doc = d
		_, err = s.LogAction(ctx, st.ID, userID, ActionDocumentSaved, fmt.Sprintf("Document saved: %s", title),
			map[string]any{"document_id": d.ID})
		return err
	})
	if err != nil {
		return nil, err
	}
	doc.User = s.userName(ctx, userID)
	return doc, nil
}

// Documents lists the documents of a step, newest first.
func (s *Service) Documents(ctx context.Context, userID, stepID string) ([]Document, error) {
	if _, err := s.visible(ctx, userID, stepID); err != nil {
		return nil, err
	}
	rows, err := s.store.Q(ctx).QueryContext(ctx, `SELECT d.id, d.step_id, d.document_type, d.title, d.content, d.source,
			d.created_by, `+displayName+`, d.created_at
		FROM workflow_documents d LEFT JOIN users u ON u.id = d.created_by
		WHERE d.step_id = $1 ORDER BY d.created_at DESC, d.id`, stepID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()
	out := []Document{}
	for rows.Next() {
		var (
			d  Document
			by sql.NullString
		)
		if err := rows.Scan(&d.ID, &d.StepID, &d.DocumentType, &d.Title, &d.Content, &d.Source, &by, &d.User, &d.CreatedAt); err != nil {
			return nil, err
		}
		d.CreatedBy = by.String
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Service) userName(ctx context.Context, userID string) string {
	var name string
	err := s.store.Q(ctx).QueryRowContext(ctx, `SELECT `+displayName+` FROM users u WHERE u.id = $1`, userID).Scan(&name)
	if err != nil {
		return ""
	}
	return name
}
