package github

import (
	"errors"
	"time"
)

var (
	ErrInvalidConfigType  = errors.New("invalid config type for github module")
	ErrServiceUnavailable = errors.New("required service unavailable")
	ErrNotConnected       = errors.New("github account not connected")
	ErrInvalidState       = errors.New("invalid oauth state")
	ErrTokenExchange      = errors.New("token exchange failed")
	ErrRepositoryNotFound = errors.New("repository not found")
	ErrRequestNotFound    = errors.New("code change request not found")
	ErrEmptyPrompt        = errors.New("prompt is required")
	ErrInvalidRepoName    = errors.New("repository name is required")
	ErrNoChanges          = errors.New("no changes were made")
	ErrShuttingDown       = errors.New("code change runner is shutting down")
)

// Connection is a user's GitHub account link.
type Connection struct {
	ID           string    `json:"id"`
	UserID       string    `json:"-"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	TokenType    string    `json:"token_type"`
	Scope        string    `json:"scope"`
	GitHubUserID int64     `json:"github_user_id"`
	Username     string    `json:"github_username"`
	AvatarURL    string    `json:"avatar_url"`
	CreatedAt    time.Time `json:"connected_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Repository is the local copy of one of the user's repositories.
type Repository struct {
	ID              string     `json:"id"`
	ConnectionID    string     `json:"-"`
	RepoID          int64      `json:"repo_id"`
	Name            string     `json:"name"`
	FullName        string     `json:"full_name"`
	Description     string     `json:"description"`
	HTMLURL         string     `json:"html_url"`
	CloneURL        string     `json:"clone_url"`
	SSHURL          string     `json:"ssh_url"`
	Private         bool       `json:"private"`
	Fork            bool       `json:"fork"`
	Language        string     `json:"language"`
	StarsCount      int        `json:"stars_count"`
	WatchersCount   int        `json:"watchers_count"`
	ForksCount      int        `json:"forks_count"`
	OpenIssuesCount int        `json:"open_issues_count"`
	DefaultBranch   string     `json:"default_branch"`
	RepoCreatedAt   *time.Time `json:"created_at"`
	RepoUpdatedAt   *time.Time `json:"updated_at"`
	PushedAt        *time.Time `json:"pushed_at"`
	LastSynced      time.Time  `json:"last_synced"`
}

// RepositoryView is the repository shape returned by status and sync.
type RepositoryView struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	FullName      string     `json:"full_name"`
	Description   string     `json:"description"`
	Private       bool       `json:"private"`
	HTMLURL       string     `json:"html_url"`
	DefaultBranch string     `json:"default_branch"`
	Language      string     `json:"language"`
	StarsCount    int        `json:"stars_count"`
	ForksCount    int        `json:"forks_count"`
	UpdatedAt     *time.Time `json:"updated_at"`
	Fork          bool       `json:"fork"`
}

// View returns the status view of r.
func (r *Repository) View() RepositoryView {
	return RepositoryView{
		ID:            r.ID,
		Name:          r.Name,
		FullName:      r.FullName,
		Description:   r.Description,
		Private:       r.Private,
		HTMLURL:       r.HTMLURL,
		DefaultBranch: r.DefaultBranch,
		Language:      r.Language,
		StarsCount:    r.StarsCount,
		ForksCount:    r.ForksCount,
		UpdatedAt:     r.RepoUpdatedAt,
		Fork:          r.Fork,
	}
}

// Views maps View over repos.
func Views(repos []Repository) []RepositoryView {
	out := make([]RepositoryView, 0, len(repos))
	for i := range repos {
		out = append(out, repos[i].View())
	}
	return out
}

// CodeChangeStatus is the lifecycle of a code change request.
type CodeChangeStatus string

const (
	StatusPending    CodeChangeStatus = "pending"
	StatusCloning    CodeChangeStatus = "cloning"
	StatusProcessing CodeChangeStatus = "processing"
	StatusPushing    CodeChangeStatus = "pushing"
	StatusCompleted  CodeChangeStatus = "completed"
	StatusFailed     CodeChangeStatus = "failed"
)

// Done reports whether the request reached a final status.
func (s CodeChangeStatus) Done() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CodeChangeRequest asks the coding agent to change a repository and push the
// result to a new branch.
type CodeChangeRequest struct {
	ID             string           `json:"id"`
	UserID         string           `json:"user_id"`
	RepositoryID   string           `json:"repository_id"`
	WorkflowStepID string           `json:"workflow_step_id,omitempty"`
	Prompt         string           `json:"prompt"`
	Status         CodeChangeStatus `json:"status"`
	BranchName     string           `json:"branch_name"`
	CommitSHA      string           `json:"commit_sha"`
	Logs           string           `json:"logs"`
	ErrorMessage   string           `json:"error_message"`
	Output         string           `json:"output"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	CompletedAt    *time.Time       `json:"completed_at"`
}
