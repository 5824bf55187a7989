package productmgmt

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hadibuxm/jadeed/internal/platform/store"
)

// GuidedKind tells product sub-steps from feature sub-steps.
type GuidedKind string

// Guided step kinds.
const (
	GuidedProduct GuidedKind = "product"
	GuidedFeature GuidedKind = "feature"
)

type guidedTemplate struct {
	stepType string
	layer    string
	title    string
}

var guidedTemplates = map[GuidedKind][]guidedTemplate{
	GuidedProduct: {
		{"market_context", "strategic", "Market Context"},
		{"discovery_research", "strategic", "Discovery Research"},
		{"problem_definition", "strategic", "Problem Definition"},
		{"hypothesis_business_case", "strategic", "Hypothesis & Business Case"},
		{"success_metrics", "strategic", "Success Metrics & Guardrails"},
		{"stakeholder_buyin", "strategic", "Stakeholder Buy-In"},
		{"ideation_design", "tactical", "Ideation & Solution Design"},
		{"prd_requirements", "tactical", "PRD / Requirements Definition"},
		{"design_prototypes", "tactical", "Design Prototypes + Validation"},
		{"development", "tactical", "Development"},
		{"qa_uat", "tactical", "QA, UAT, and Staging"},
		{"gtm_planning", "release", "Go-to-Market Planning"},
		{"release_execution", "release", "Release Execution"},
		{"post_launch", "release", "Post-Launch Validation"},
		{"retrospective", "release", "Retrospective & Learnings"},
	},
	GuidedFeature: {
		{"requirements", "planning", "Requirements & Specifications"},
		{"user_story", "planning", "User Story Definition"},
		{"acceptance_criteria", "planning", "Acceptance Criteria"},
		{"technical_design", "development", "Technical Design"},
		{"implementation", "development", "Implementation"},
		{"testing", "development", "Testing & QA"},
		{"code_review", "development", "Code Review"},
		{"documentation", "delivery", "Documentation"},
		{"deployment", "delivery", "Deployment"},
		{"validation", "delivery", "User Validation"},
	},
}

// GuidedStep is one stage of a product or feature lifecycle.
type GuidedStep struct {
	ID              string     `json:"id"`
	ParentStepID    string     `json:"parent_step_id"`
	Kind            GuidedKind `json:"kind"`
	StepType        string     `json:"step_type"`
	Layer           string     `json:"layer"`
	Order           int        `json:"order"`
	Title           string     `json:"title"`
	Conversation    []Message  `json:"conversation_history"`
	DocumentContent string     `json:"document_content"`
	IsCompleted     bool       `json:"is_completed"`
	CompletedAt     *time.Time `json:"completed_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (s *Service) createGuidedSteps(ctx context.Context, parentID string, kind GuidedKind) error {
	now := s.store.Now()
	q := s.store.Q(ctx)
	for i, t := range guidedTemplates[kind] {
		if _, err := q.ExecContext(ctx, `INSERT INTO guided_steps
			(id, parent_step_id, kind, step_type, layer, step_order, title, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
			store.NewID(), parentID, string(kind), t.stepType, t.layer, i+1, t.title, now); err != nil {
			return fmt.Errorf("failed to create %s step %s: %w", kind, t.stepType, err)
		}
	}
	return nil
}

const guidedColumns = `id, parent_step_id, kind, step_type, layer, step_order, title, conversation_history,
	document_content, is_completed, completed_at, created_at, updated_at`

func scanGuided(row store.Scanner) (*GuidedStep, error) {
	var (
		g            GuidedStep
		conversation string
		completedAt  sql.NullTime
	)
	if err := row.Scan(&g.ID, &g.ParentStepID, &g.Kind, &g.StepType, &g.Layer, &g.Order, &g.Title, &conversation,
		&g.DocumentContent, &g.IsCompleted, &completedAt, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return nil, err
	}
	g.CompletedAt = store.TimePtr(completedAt)
	if err := json.Unmarshal([]byte(conversation), &g.Conversation); err != nil {
		return nil, fmt.Errorf("failed to decode conversation of %s: %w", g.ID, err)
	}
	if g.Conversation == nil {
		g.Conversation = []Message{}
	}
	return &g, nil
}

// GuidedSteps lists the sub-steps of a product or feature in order.
func (s *Service) GuidedSteps(ctx context.Context, userID, stepID string) ([]*GuidedStep, error) {
	if _, err := s.visible(ctx, userID, stepID); err != nil {
		return nil, err
	}
	rows, err := s.store.Q(ctx).QueryContext(ctx, `SELECT `+guidedColumns+` FROM guided_steps
		WHERE parent_step_id = $1 ORDER BY step_order, created_at`, stepID)
	if err != nil {
		return nil, fmt.Errorf("failed to list guided steps: %w", err)
	}
	defer rows.Close()
	out := []*GuidedStep{}
	for rows.Next() {
		g, err := scanGuided(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// GuidedStep returns a sub-step and the workflow step it belongs to.
func (s *Service) GuidedStep(ctx context.Context, userID, id string) (*GuidedStep, *WorkflowStep, error) {
	g, err := scanGuided(s.store.Q(ctx).QueryRowContext(ctx, `SELECT `+guidedColumns+` FROM guided_steps WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ErrGuidedStepNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load guided step: %w", err)
	}
	parent, err := s.visible(ctx, userID, g.ParentStepID)
	if errors.Is(err, ErrStepNotFound) {
		return nil, nil, ErrGuidedStepNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	return g, parent, nil
}

func (s *Service) saveGuidedConversation(ctx context.Context, id string, history []Message) error {
	raw, err := json.Marshal(history)
	if err != nil {
		return err
	}
	_, err = s.store.Q(ctx).ExecContext(ctx, `UPDATE guided_steps SET conversation_history = $1, updated_at = $2 WHERE id = $3`,
		string(raw), s.store.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	return nil
}

// GuidedChat sends a message within a sub-step and returns the reply.
func (s *Service) GuidedChat(ctx context.Context, userID, id, message string) (*GuidedStep, string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, "", ErrEmptyMessage
	}
	g, parent, err := s.GuidedStep(ctx, userID, id)
	if err != nil {
		return nil, "", err
	}
	chat, err := s.chatModel()
	if err != nil {
		return nil, "", err
	}
	user := Message{Role: RoleUser, Content: message, Timestamp: s.store.Now()}
	history := append(g.Conversation, user)
	reply, err := chat.Complete(ctx, s.prompts.Guided(parent, g.Title), history, s.chatOptions())
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrChatUpstream, err)
	}
	g.Conversation = append(history, Message{Role: RoleAssistant, Content: reply, Timestamp: s.store.Now()})
	if err := s.saveGuidedConversation(ctx, g.ID, g.Conversation); err != nil {
		return nil, "", err
	}
	return g, reply, nil
}

// GenerateGuidedDocument summarizes a sub-step conversation into its
// document.
func (s *Service) GenerateGuidedDocument(ctx context.Context, userID, id string) (*GuidedStep, error) {
	g, parent, err := s.GuidedStep(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if len(g.Conversation) == 0 {
		return nil, ErrNoConversation
	}
	chat, err := s.chatModel()
	if err != nil {
		return nil, err
	}
	history := append(g.Conversation, Message{Role: RoleUser, Content: s.prompts.ReadmeRequest(g.Title + " (" + parent.Title + ")")})
	doc, err := chat.Complete(ctx, s.prompts.ReadmeSystem, history, s.readmeOptions())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrChatUpstream, err)
	}
	g.DocumentContent, g.UpdatedAt = doc, s.store.Now()
	if _, err := s.store.Q(ctx).ExecContext(ctx, `UPDATE guided_steps SET document_content = $1, updated_at = $2 WHERE id = $3`,
		g.DocumentContent, g.UpdatedAt, g.ID); err != nil {
		return nil, fmt.Errorf("failed to save document: %w", err)
	}
	return g, nil
}

// CompleteGuided marks a sub-step completed.
func (s *Service) CompleteGuided(ctx context.Context, userID, id string) (*GuidedStep, error) {
	g, _, err := s.GuidedStep(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	now := s.store.Now()
	g.IsCompleted, g.CompletedAt, g.UpdatedAt = true, &now, now
	if _, err := s.store.Q(ctx).ExecContext(ctx, `UPDATE guided_steps SET is_completed = $1, completed_at = $2, updated_at = $2 WHERE id = $3`,
		true, now, g.ID); err != nil {
		return nil, fmt.Errorf("failed to complete guided step: %w", err)
	}
	return g, nil
}
