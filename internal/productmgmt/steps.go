package productmgmt

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/hadibuxm/jadeed/internal/platform/store"
)

// referenceAttempts bounds retries when two inserts race for the same
// reference number.
const referenceAttempts = 3

const stepColumns = `s.id, s.project_id, s.user_id, s.organization_id, s.step_type, s.title, s.description,
	s.reference_id, s.parent_id, s.repository_id, s.details, s.conversation_history, s.readme_content,
	s.readme_generated_at, s.status, s.is_completed, s.created_at, s.updated_at, COALESCE(p.user_id, s.user_id, '')`

const stepFrom = ` FROM workflow_steps s LEFT JOIN pm_projects p ON p.id = s.project_id`

func scanStep(row store.Scanner) (*WorkflowStep, error) {
	var (
		s                               WorkflowStep
		project, user, org, parent, rep sql.NullString
		details, conversation           string
		readmeAt                        sql.NullTime
	)
	err := row.Scan(&s.ID, &project, &user, &org, &s.StepType, &s.Title, &s.Description,
		&s.ReferenceID, &parent, &rep, &details, &conversation, &s.ReadmeContent,
		&readmeAt, &s.Status, &s.IsCompleted, &s.CreatedAt, &s.UpdatedAt, &s.ownerID)
	if err != nil {
		return nil, err
	}
	s.ProjectID, s.UserID, s.OrganizationID = project.String, user.String, org.String
	s.ParentID, s.RepositoryID = parent.String, rep.String
	s.ReadmeGeneratedAt = store.TimePtr(readmeAt)
	if err := json.Unmarshal([]byte(details), &s.Details); err != nil {
		return nil, fmt.Errorf("failed to decode details of %s: %w", s.ID, err)
	}
	if err := json.Unmarshal([]byte(conversation), &s.Conversation); err != nil {
		return nil, fmt.Errorf("failed to decode conversation of %s: %w", s.ID, err)
	}
	if s.Conversation == nil {
		s.Conversation = []Message{}
	}
	return &s, nil
}

func (s *Service) queryStep(ctx context.Context, where string, args ...any) (*WorkflowStep, error) {
	st, err := scanStep(s.store.Q(ctx).QueryRowContext(ctx, `SELECT `+stepColumns+stepFrom+` WHERE `+where, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStepNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow step: %w", err)
	}
	return st, nil
}

func (s *Service) queryStepList(ctx context.Context, where string, args ...any) ([]*WorkflowStep, error) {
	rows, err := s.store.Q(ctx).QueryContext(ctx, `SELECT `+stepColumns+stepFrom+` WHERE `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow steps: %w", err)
	}
	defer rows.Close()
	var out []*WorkflowStep
	for rows.Next() {
		st, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// load returns a step regardless of owner.
func (s *Service) load(ctx context.Context, id string) (*WorkflowStep, error) {
	return s.queryStep(ctx, `s.id = $1`, id)
}

// owned returns the step when userID owns it and ErrNotOwner otherwise.
func (s *Service) owned(ctx context.Context, userID, id string) (*WorkflowStep, error) {
	st, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if st.ownerID != "" && st.ownerID != userID {
		return nil, ErrNotOwner
	}
	return st, nil
}

// visible is owned with foreign steps reported as missing.
func (s *Service) visible(ctx context.Context, userID, id string) (*WorkflowStep, error) {
	st, err := s.owned(ctx, userID, id)
	if errors.Is(err, ErrNotOwner) {
		return nil, ErrStepNotFound
	}
	return st, err
}

// ancestors returns the parents of st, nearest first.
func (s *Service) ancestors(ctx context.Context, st *WorkflowStep) ([]*WorkflowStep, error) {
	var chain []*WorkflowStep
	seen := map[string]bool{st.ID: true}
	for id := st.ParentID; id != ""; {
		if seen[id] {
			return nil, ErrCircularReference
		}
		seen[id] = true
		parent, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		chain = append(chain, parent)
		id = parent.ParentID
	}
	return chain, nil
}

// RootVision walks the parents of st and returns the root when it is a
// vision. A vision is its own root.
func (s *Service) RootVision(ctx context.Context, st *WorkflowStep) (*WorkflowStep, error) {
	chain, err := s.ancestors(ctx, st)
	if err != nil {
		return nil, err
	}
	if root := rootVision(chain); root != nil {
		return root, nil
	}
	if len(chain) == 0 && st.StepType == StepVision {
		return st, nil
	}
	return nil, nil
}

// lineage is the chain from the root down to st.
func (s *Service) lineage(ctx context.Context, st *WorkflowStep) ([]*WorkflowStep, error) {
	chain, err := s.ancestors(ctx, st)
	if err != nil {
		return nil, err
	}
	slices.Reverse(chain)
	return append(chain, st), nil
}

func (s *Service) repoRefs(ctx context.Context, query string, args ...any) ([]RepoRef, error) {
	rows, err := s.store.Q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load repositories: %w", err)
	}
	defer rows.Close()
	var out []RepoRef
	for rows.Next() {
		var r RepoRef
		if err := rows.Scan(&r.ID, &r.Name, &r.FullName); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// productRepositories lists the repositories linked to a product step.
func (s *Service) productRepositories(ctx context.Context, stepID string) ([]RepoRef, error) {
	return s.repoRefs(ctx, `SELECT r.id, r.name, r.full_name FROM product_repositories pr
		JOIN github_repositories r ON r.id = pr.repository_id
		WHERE pr.step_id = $1 ORDER BY r.full_name`, stepID)
}

// withRepositories fills the repository references of st.
func (s *Service) withRepositories(ctx context.Context, st *WorkflowStep) error {
	switch st.StepType {
	case StepProduct:
		repos, err := s.productRepositories(ctx, st.ID)
		if err != nil {
			return err
		}
		st.Repositories = repos
	case StepFeature:
		if st.RepositoryID == "" {
			return nil
		}
		repos, err := s.repoRefs(ctx, `SELECT id, name, full_name FROM github_repositories WHERE id = $1`, st.RepositoryID)
		if err != nil {
			return err
		}
		if len(repos) > 0 {
			st.Repository = &repos[0]
		}
	}
	return nil
}

// Step returns a step of userID with its repositories.
func (s *Service) Step(ctx context.Context, userID, id string) (*WorkflowStep, error) {
	st, err := s.visible(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := s.withRepositories(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}

// Steps lists the steps owned by userID, optionally of one type, newest
// first.
func (s *Service) Steps(ctx context.Context, userID string, t StepType) ([]*WorkflowStep, error) {
	where := `COALESCE(p.user_id, s.user_id) = $1`
	args := []any{userID}
	if t != "" {
		where += ` AND s.step_type = $2`
		args = append(args, string(t))
	}
	return s.queryStepList(ctx, where+` ORDER BY s.created_at DESC`, args...)
}

// NewStep is the input of CreateStep.
type NewStep struct {
	StepType       StepType `json:"step_type"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	ParentID       string   `json:"parent_step_id"`
	ProjectID      string   `json:"project_id"`
	Status         Status   `json:"status"`
	Details        Details  `json:"details"`
	RepositoryIDs  []string `json:"repository_ids"`
	RepositoryID   string   `json:"feature_repository_id"`
	OrganizationID string   `json:"-"`

	// features created through the step API must name a repository
	requireRepository bool
}

// CreateStep validates the placement of a new step, assigns its reference
// ID and stores it together with its details, repositories and guided
// steps.
func (s *Service) CreateStep(ctx context.Context, userID string, in NewStep) (*WorkflowStep, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.RepositoryID = strings.TrimSpace(in.RepositoryID)
	if in.StepType == "" || in.Title == "" {
		return nil, ErrTitleRequired
	}
	if !in.StepType.Valid() {
		return nil, ErrInvalidStepType
	}
	if in.Status == "" {
		in.Status = StatusBacklog
	}
	if !in.Status.Valid() {
		return nil, ErrInvalidStatus
	}

	if in.ProjectID != "" {
		if _, err := s.Project(ctx, userID, in.ProjectID); err != nil {
			return nil, err
		}
	}

	var parent *WorkflowStep
	if in.ParentID != "" {
		p, err := s.visible(ctx, userID, in.ParentID)
		if errors.Is(err, ErrStepNotFound) {
			return nil, ErrParentNotFound
		}
		if err != nil {
			return nil, err
		}
		parent = p
		if in.ProjectID == "" {
			in.ProjectID = parent.ProjectID
		}
	}
	in.requireRepository = true
	return s.createUnder(ctx, userID, in, parent)
}

// createUnder stores a validated step below an already resolved parent.
func (s *Service) createUnder(ctx context.Context, userID string, in NewStep, parent *WorkflowStep) (*WorkflowStep, error) {
	var chain []*WorkflowStep
	if err := ValidateParent(in.StepType, parent); err != nil {
		return nil, err
	}
	if parent != nil {
		above, err := s.ancestors(ctx, parent)
		if err != nil {
			return nil, err
		}
		chain = append([]*WorkflowStep{parent}, above...)
		if err := checkChain("", chain); err != nil {
			return nil, err
		}
	}

	repoIDs, err := s.checkRepositories(ctx, userID, in, parent)
	if err != nil {
		return nil, err
	}
	if in.StepType != StepFeature {
		in.RepositoryID = ""
	}

	title := in.Title
	if root := rootVision(chain); root != nil {
		title = root.Title
	}
	prefix := ReferencePrefix(title)

	now := s.store.Now()
	st := &WorkflowStep{
		ID:             store.NewID(),
		ProjectID:      in.ProjectID,
		UserID:         userID,
		OrganizationID: in.OrganizationID,
		StepType:       in.StepType,
		Title:          in.Title,
		Description:    in.Description,
		RepositoryID:   in.RepositoryID,
		Details:        in.Details.forType(in.StepType),
		Conversation:   []Message{},
		Status:         in.Status,
		IsCompleted:    in.Status == StatusCompleted,
		CreatedAt:      now,
		UpdatedAt:      now,
		ownerID:        userID,
	}
	if parent != nil {
		st.ParentID = parent.ID
	}

	for attempt := 1; ; attempt++ {
		err = s.store.WithTx(ctx, func(ctx context.Context) error {
			return s.insertStep(ctx, st, prefix, repoIDs)
		})
		if err == nil || !store.IsUniqueViolation(err) || attempt == referenceAttempts {
			break
		}
	}
	if err != nil {
		return nil, err
	}
	if err := s.withRepositories(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}

// checkRepositories validates the repositories of a new product or feature
// and returns the product repository ids.
func (s *Service) checkRepositories(ctx context.Context, userID string, in NewStep, parent *WorkflowStep) ([]string, error) {
	switch in.StepType {
	case StepProduct:
		var ids []string
		for _, id := range in.RepositoryIDs {
			id = strings.TrimSpace(id)
			if id != "" && !slices.Contains(ids, id) {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			return nil, ErrRepositoryRequired
		}
		if s.repos == nil {
			return nil, ErrInvalidRepositories
		}
		ok, err := s.repos.OwnsAll(ctx, userID, ids)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrInvalidRepositories
		}
		return ids, nil
	case StepFeature:
		if in.RepositoryID == "" {
			if in.requireRepository {
				return nil, ErrFeatureRepositoryRequired
			}
			return nil, nil
		}
		if in.requireRepository {
			if s.repos == nil {
				return nil, ErrInvalidRepositories
			}
			ok, err := s.repos.OwnsAll(ctx, userID, []string{in.RepositoryID})
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, ErrInvalidRepositories
			}
		}
		linked, err := s.productRepositories(ctx, parent.ID)
		if err != nil {
			return nil, err
		}
		if !slices.ContainsFunc(linked, func(r RepoRef) bool { return r.ID == in.RepositoryID }) {
			return nil, ErrFeatureRepository
		}
	}
	return nil, nil
}

func (s *Service) insertStep(ctx context.Context, st *WorkflowStep, prefix string, repoIDs []string) error {
	q := s.store.Q(ctx)
	rows, err := q.QueryContext(ctx, `SELECT reference_id FROM workflow_steps WHERE reference_id LIKE $1`, prefix+"-%")
	if err != nil {
		return fmt.Errorf("failed to read reference ids: %w", err)
	}
	var existing []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			rows.Close()
			return err
		}
		existing = append(existing, ref)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	st.ReferenceID = nextReference(prefix, existing)

	details, err := json.Marshal(st.Details)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `INSERT INTO workflow_steps
		(id, project_id, user_id, organization_id, step_type, title, description, reference_id, parent_id,
		 repository_id, details, status, is_completed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)`,
		st.ID, store.NullString(st.ProjectID), store.NullString(st.UserID), store.NullString(st.OrganizationID),
		string(st.StepType), st.Title, st.Description, st.ReferenceID, store.NullString(st.ParentID),
		store.NullString(st.RepositoryID), string(details), string(st.Status), st.IsCompleted, st.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create workflow step: %w", err)
	}
	for _, id := range repoIDs {
		if _, err := q.ExecContext(ctx, `INSERT INTO product_repositories (step_id, repository_id) VALUES ($1, $2)`, st.ID, id); err != nil {
			return fmt.Errorf("failed to link repository: %w", err)
		}
	}
	switch st.StepType {
	case StepProduct:
		return s.createGuidedSteps(ctx, st.ID, GuidedProduct)
	case StepFeature:
		return s.createGuidedSteps(ctx, st.ID, GuidedFeature)
	}
	return nil
}

// UpdateStep changes the title and/or description of a step and logs what
// actually changed.
func (s *Service) UpdateStep(ctx context.Context, userID, id string, title, description *string) (*WorkflowStep, error) {
	if title == nil && description == nil {
		return nil, ErrNoUpdates
	}
	st, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	var titleChanged, descChanged bool
	if title != nil {
		t := strings.TrimSpace(*title)
		if t == "" {
			return nil, ErrEmptyTitle
		}
		titleChanged = t != st.Title
		st.Title = t
	}
	if description != nil {
		d := strings.TrimSpace(*description)
		descChanged = d != st.Description
		st.Description = d
	}

	err = s.store.WithTx(ctx, func(ctx context.Context) error {
		st.UpdatedAt = s.store.Now()
		if _, err := s.store.Q(ctx).ExecContext(ctx, `UPDATE workflow_steps SET title = $1, description = $2, updated_at = $3 WHERE id = $4`,
			st.Title, st.Description, st.UpdatedAt, st.ID); err != nil {
			return fmt.Errorf("failed to update workflow step: %w", err)
		}
		if titleChanged {
			if _, err := s.LogAction(ctx, st.ID, userID, ActionTitleUpdated, fmt.Sprintf("Title updated to %q", st.Title), nil); err != nil {
				return err
			}
		}
		if descChanged {
			if _, err := s.LogAction(ctx, st.ID, userID, ActionDescriptionUpdated, "Description updated.", nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

// SetStatus moves a step to another board column. Only the owner may.
func (s *Service) SetStatus(ctx context.Context, userID, id string, status Status) (*WorkflowStep, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}
	st, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	st.Status, st.IsCompleted, st.UpdatedAt = status, status == StatusCompleted, s.store.Now()
	if _, err := s.store.Q(ctx).ExecContext(ctx, `UPDATE workflow_steps SET status = $1, is_completed = $2, updated_at = $3 WHERE id = $4`,
		string(st.Status), st.IsCompleted, st.UpdatedAt, st.ID); err != nil {
		return nil, fmt.Errorf("failed to update status: %w", err)
	}
	return st, nil
}

// Complete marks a step completed.
func (s *Service) Complete(ctx context.Context, userID, id string) (*WorkflowStep, error) {
	st, err := s.visible(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	err = s.store.WithTx(ctx, func(ctx context.Context) error {
		st.Status, st.IsCompleted, st.UpdatedAt = StatusCompleted, true, s.store.Now()
		if _, err := s.store.Q(ctx).ExecContext(ctx, `UPDATE workflow_steps SET status = $1, is_completed = $2, updated_at = $3 WHERE id = $4`,
			string(st.Status), true, st.UpdatedAt, st.ID); err != nil {
			return fmt.Errorf("failed to complete step: %w", err)
		}
		_, err := s.LogAction(ctx, st.ID, userID, ActionStepCompleted, "Step marked as completed.", nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

// DeleteStep removes a step and its descendants together with the recent
// items pointing at any of them.
func (s *Service) DeleteStep(ctx context.Context, userID, id string) (*WorkflowStep, error) {
	st, err := s.visible(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	err = s.store.WithTx(ctx, func(ctx context.Context) error {
		q := s.store.Q(ctx)
		if _, err := q.ExecContext(ctx, `DELETE FROM recent_items
			WHERE user_id = $1 AND item_type IN ('product', 'feature', 'workflow') AND item_id IN (
				WITH RECURSIVE tree(id) AS (
					SELECT CAST($2 AS TEXT)
					UNION
					SELECT w.id FROM workflow_steps w JOIN tree t ON w.parent_id = t.id
				)
				SELECT id FROM tree)`, userID, st.ID); err != nil {
			return fmt.Errorf("failed to clear recent items: %w", err)
		}
		if _, err := q.ExecContext(ctx, `DELETE FROM workflow_steps WHERE id = $1`, st.ID); err != nil {
			return fmt.Errorf("failed to delete workflow step: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

// appendMessages adds turns to the conversation of step id.
func (s *Service) appendMessages(ctx context.Context, id string, msgs ...Message) ([]Message, error) {
	var history []Message
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		st, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		history = append(st.Conversation, msgs...)
		raw, err := json.Marshal(history)
		if err != nil {
			return err
		}
		_, err = s.store.Q(ctx).ExecContext(ctx, `UPDATE workflow_steps SET conversation_history = $1, updated_at = $2 WHERE id = $3`,
			string(raw), s.store.Now(), id)
		if err != nil {
			return fmt.Errorf("failed to save conversation: %w", err)
		}
		return nil
	})
	return history, err
}

// TreeNode is a step with its children.
type TreeNode struct {
	ID          string      `json:"id"`
	StepType    StepType    `json:"step_type"`
	Title       string      `json:"title"`
	ReferenceID string      `json:"reference_id"`
	Status      Status      `json:"status"`
	IsCompleted bool        `json:"is_completed"`
	Children    []*TreeNode `json:"children"`
}

// Tree returns the subtree rooted at id.
func (s *Service) Tree(ctx context.Context, userID, id string) (*TreeNode, error) {
	root, err := s.visible(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	rows, err := s.store.Q(ctx).QueryContext(ctx, `WITH RECURSIVE tree(id) AS (
			SELECT id FROM workflow_steps WHERE parent_id = $1
			UNION
			SELECT w.id FROM workflow_steps w JOIN tree t ON w.parent_id = t.id
		)
		SELECT w.id, w.parent_id, w.step_type, w.title, w.reference_id, w.status, w.is_completed
		FROM workflow_steps w JOIN tree t ON t.id = w.id
		ORDER BY w.created_at, w.reference_id`, root.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load hierarchy: %w", err)
	}
	defer rows.Close()

	top := &TreeNode{ID: root.ID, StepType: root.StepType, Title: root.Title, ReferenceID: root.ReferenceID,
		Status: root.Status, IsCompleted: root.IsCompleted, Children: []*TreeNode{}}
	nodes := map[string]*TreeNode{root.ID: top}
	parents := map[string]string{}
	var order []string
	for rows.Next() {
		var n TreeNode
		var parent string
		if err := rows.Scan(&n.ID, &parent, &n.StepType, &n.Title, &n.ReferenceID, &n.Status, &n.IsCompleted); err != nil {
			return nil, err
		}
		n.Children = []*TreeNode{}
		nodes[n.ID] = &n
		parents[n.ID] = parent
		order = append(order, n.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, id := range order {
		if p, ok := nodes[parents[id]]; ok {
			p.Children = append(p.Children, nodes[id])
		}
	}
	return top, nil
}
