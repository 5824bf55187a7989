package productmgmt

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Static errors (err113).
var (
	ErrInvalidConfigType  = errors.New("invalid config type for productmgmt module")
	ErrServiceUnavailable = errors.New("productmgmt dependencies unavailable")

	ErrStepNotFound        = errors.New("workflow step not found")
	ErrParentNotFound      = errors.New("parent step not found")
	ErrInvalidStepType     = errors.New("invalid step type")
	ErrTitleRequired       = errors.New("step type and title are required")
	ErrFeatureNeedsProduct = errors.New("features must be associated with a product")
	ErrFeatureUnderProduct = errors.New("features can only be created under a product")
	ErrInvalidHierarchy    = errors.New("invalid hierarchy")
	ErrCircularReference   = errors.New("circular reference detected in hierarchy")
	ErrNotOwner            = errors.New("caller does not own the workflow step")
	ErrNoUpdates           = errors.New("no updates provided")
	ErrEmptyTitle          = errors.New("title cannot be empty")
	ErrInvalidStatus       = errors.New("invalid status")
	ErrEmptyComment        = errors.New("comment cannot be empty")
	ErrEmptyMessage        = errors.New("message cannot be empty")
	ErrInvalidActionType   = errors.New("invalid action type")
	ErrInvalidDocumentType = errors.New("invalid document type")
	ErrNoConversation      = errors.New("no conversation history to generate README from")
	ErrChatNotConfigured   = errors.New("chat API key not configured")
	ErrChatUpstream        = errors.New("chat backend request failed")

	ErrRepositoryRequired        = errors.New("select at least one repository for a product")
	ErrInvalidRepositories       = errors.New("one or more repositories are invalid")
	ErrFeatureRepository         = errors.New("selected repository is not linked to the parent product")
	ErrFeatureRepositoryRequired = errors.New("select a repository to use for this feature")
	ErrNoRepository              = errors.New("step has no linked repository")
	ErrProjectRepository         = errors.New("repository not found")
	ErrGuidedStepNotFound        = errors.New("guided step not found")
	ErrProjectNotFound           = errors.New("project not found")
	ErrProjectNameRequired       = errors.New("project name is required")
	ErrRecentItemFields          = errors.New("all fields are required")
	ErrInvalidItemType           = errors.New("invalid item type")

	ErrNoVision           = errors.New("no vision exists for this organization")
	ErrVisionExists       = errors.New("this organization already has a vision")
	ErrPortfolioNotFound  = errors.New("portfolio not found")
	ErrProductNotFound    = errors.New("product not found")
	ErrPortfolioNotLinked = errors.New("portfolio is not linked to the organization vision")
	ErrProductNotLinked   = errors.New("product is not linked to the organization vision")
	ErrDuplicatePortfolio = errors.New("a portfolio with this name already exists in this vision")
	ErrDuplicateProduct   = errors.New("a product with this name already exists in this portfolio")
	ErrDuplicateFeature   = errors.New("a feature with this name already exists in this product")
	ErrBlankName          = errors.New("name may not be blank")
)

// StepType is a level of the planning hierarchy.
type StepType string

// Hierarchy levels, top down.
const (
	StepVision     StepType = "vision"
	StepInitiative StepType = "initiative"
	StepPortfolio  StepType = "portfolio"
	StepProduct    StepType = "product"
	StepFeature    StepType = "feature"
)

var stepLevels = map[StepType]int{
	StepVision:     0,
	StepInitiative: 1,
	StepPortfolio:  2,
	StepProduct:    3,
	StepFeature:    4,
}

// Level is the depth of t in the hierarchy, or -1 for an unknown type.
func (t StepType) Level() int {
	if l, ok := stepLevels[t]; ok {
		return l
	}
	return -1
}

// Valid reports whether t is a known step type.
func (t StepType) Valid() bool {
	return t.Level() >= 0
}

// Label is the display name, "Vision" for vision.
func (t StepType) Label() string {
	s := string(t)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// HierarchyError reports a parent/child pair the hierarchy does not allow.
type HierarchyError struct {
	Child  StepType
	Parent StepType
}

func (e *HierarchyError) Error() string {
	return fmt.Sprintf("invalid hierarchy: %s cannot be a child of %s", e.Child, e.Parent)
}

// Is matches ErrInvalidHierarchy.
func (e *HierarchyError) Is(target error) bool {
	return target == ErrInvalidHierarchy
}

// Message is the user facing text.
func (e *HierarchyError) Message() string {
	return fmt.Sprintf("Invalid hierarchy: %s cannot be a child of %s. "+
		"Valid hierarchy: Vision → Initiative → Portfolio → Product → Feature", e.Child.Label(), e.Parent.Label())
}

// Status is the board column of a step.
type Status string

// Step statuses.
const (
	StatusBacklog    Status = "backlog"
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Statuses lists the valid statuses in board order.
var Statuses = []Status{StatusBacklog, StatusTodo, StatusInProgress, StatusCompleted}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// Feature priorities.
const (
	PriorityCritical = "critical"
	PriorityHigh     = "high"
	PriorityMedium   = "medium"
	PriorityLow      = "low"
)

// ActionType classifies an action log entry.
type ActionType string

// Logged actions.
const (
	ActionCommentAdded        ActionType = "comment_added"
	ActionDescriptionUpdated  ActionType = "description_updated"
	ActionTitleUpdated        ActionType = "title_updated"
	ActionReadmeGenerated     ActionType = "readme_generated"
	ActionStepCompleted       ActionType = "step_completed"
	ActionCodeChangeRequested ActionType = "code_change_requested"
	ActionDocumentSaved       ActionType = "document_saved"
)

var actionLabels = map[ActionType]string{
	ActionCommentAdded:        "Comment Added",
	ActionDescriptionUpdated:  "Description Updated",
	ActionTitleUpdated:        "Title Updated",
	ActionReadmeGenerated:     "README Generated",
	ActionStepCompleted:       "Step Completed",
	ActionCodeChangeRequested: "Code Change Requested",
	ActionDocumentSaved:       "Document Saved",
}

// Valid reports whether a is a known action type.
func (a ActionType) Valid() bool {
	_, ok := actionLabels[a]
	return ok
}

// DocumentType classifies a saved document.
type DocumentType string

// Document types.
const (
	DocumentReadme  DocumentType = "readme"
	DocumentSummary DocumentType = "summary"
	DocumentSpec    DocumentType = "spec"
	DocumentOther   DocumentType = "other"
)

// Valid reports whether d is a known document type.
func (d DocumentType) Valid() bool {
	switch d {
	case DocumentReadme, DocumentSummary, DocumentSpec, DocumentOther:
		return true
	}
	return false
}

// Message is one turn of a discovery conversation.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Details holds the type specific fields of a step. Only the fields of the
// step's own type are set.
type Details struct {
	// vision
	StrategicGoals string `json:"strategic_goals,omitempty"`
	TargetAudience string `json:"target_audience,omitempty"`
	SuccessMetrics string `json:"success_metrics,omitempty"`
	// initiative
	Objectives string `json:"objectives,omitempty"`
	KeyResults string `json:"key_results,omitempty"`
	Timeline   string `json:"timeline,omitempty"`
	// portfolio
	Scope              string `json:"scope,omitempty"`
	ResourceAllocation string `json:"resource_allocation,omitempty"`
	// product
	ValueProposition string `json:"value_proposition,omitempty"`
	UserPersonas     string `json:"user_personas,omitempty"`
	MarketAnalysis   string `json:"market_analysis,omitempty"`
	// feature
	UserStory          string `json:"user_story,omitempty"`
	AcceptanceCriteria string `json:"acceptance_criteria,omitempty"`
	Priority           string `json:"priority,omitempty"`
}

// forType keeps the fields that belong to t.
func (d Details) forType(t StepType) Details {
	switch t {
	case StepVision:
		return Details{StrategicGoals: d.StrategicGoals, TargetAudience: d.TargetAudience, SuccessMetrics: d.SuccessMetrics}
	case StepInitiative:
		return Details{Objectives: d.Objectives, KeyResults: d.KeyResults, Timeline: d.Timeline}
	case StepPortfolio:
		return Details{Scope: d.Scope, ResourceAllocation: d.ResourceAllocation}
	case StepProduct:
		return Details{ValueProposition: d.ValueProposition, UserPersonas: d.UserPersonas, MarketAnalysis: d.MarketAnalysis}
	case StepFeature:
		out := Details{UserStory: d.UserStory, AcceptanceCriteria: d.AcceptanceCriteria, Priority: d.Priority}
		switch out.Priority {
		case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		default:
			out.Priority = PriorityMedium
		}
		return out
	}
	return Details{}
}

// RepoRef is the short form of a linked GitHub repository.
type RepoRef struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"full_name"`
}

// WorkflowStep is one node of the hierarchy.
type WorkflowStep struct {
	ID                string     `json:"id"`
	ProjectID         string     `json:"project_id,omitempty"`
	UserID            string     `json:"user_id,omitempty"`
	OrganizationID    string     `json:"organization_id,omitempty"`
	StepType          StepType   `json:"step_type"`
	Title             string     `json:"title"`
	Description       string     `json:"description"`
	ReferenceID       string     `json:"reference_id"`
	ParentID          string     `json:"parent_step_id,omitempty"`
	RepositoryID      string     `json:"repository_id,omitempty"`
	Details           Details    `json:"details"`
	Conversation      []Message  `json:"conversation_history"`
	ReadmeContent     string     `json:"readme_content"`
	ReadmeGeneratedAt *time.Time `json:"readme_generated_at"`
	Status            Status     `json:"status"`
	IsCompleted       bool       `json:"is_completed"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`

	// Repositories is filled for products and Repository for features.
	Repositories []RepoRef `json:"repositories,omitempty"`
	Repository   *RepoRef  `json:"repository,omitempty"`

	ownerID string
}

// OwnerID is the user owning the step: the project owner for project steps,
// otherwise the creator.
func (s *WorkflowStep) OwnerID() string {
	return s.ownerID
}

// Comment is a user note on a step.
type Comment struct {
	ID        string    `json:"id"`
	StepID    string    `json:"step_id"`
	UserID    string    `json:"user_id,omitempty"`
	User      string    `json:"user"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ActionLog is an audit entry of a step.
type ActionLog struct {
	ID          string         `json:"id"`
	StepID      string         `json:"step_id"`
	UserID      string         `json:"user_id,omitempty"`
	User        string         `json:"user"`
	ActionType  ActionType     `json:"action_type"`
	ActionLabel string         `json:"action_label"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Document is a saved snapshot such as a generated README.
type Document struct {
	ID           string       `json:"id"`
	StepID       string       `json:"step_id"`
	DocumentType DocumentType `json:"document_type"`
	Title        string       `json:"title"`
	Content      string       `json:"content"`
	Source       string       `json:"source"`
	CreatedBy    string       `json:"created_by,omitempty"`
	User         string       `json:"user"`
	CreatedAt    time.Time    `json:"created_at"`
}

// RecentItem is a recently viewed entity of a user.
type RecentItem struct {
	ID       string    `json:"id"`
	UserID   string    `json:"-"`
	ItemType string    `json:"item_type"`
	ItemID   string    `json:"item_id"`
	Title    string    `json:"title"`
	URL      string    `json:"url"`
	ViewedAt time.Time `json:"viewed_at"`
}

// Recent item types.
var recentItemTypes = map[string]bool{"product": true, "feature": true, "project": true, "workflow": true}

// Project groups workflow steps of one user.
type Project struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"user_id"`
	Name               string    `json:"name"`
	Description        string    `json:"description"`
	GitHubRepositoryID string    `json:"github_repository_id,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}
