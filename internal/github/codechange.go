package github

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/hadibuxm/jadeed/internal/platform/activity"
	"github.com/hadibuxm/jadeed/internal/platform/store"
)

var errEmptyAgentCommand = errors.New("agent command is empty")

// AgentResult is the captured output of one agent run.
type AgentResult struct {
	Stdout string
	Stderr string
}

// Agent edits the checked out repository in dir according to prompt.
type Agent interface {
	Run(ctx context.Context, dir, prompt string) (AgentResult, error)
}

// CommandAgent runs an external coding agent. The prompt is passed as the
// last argument.
type CommandAgent struct {
	Command string
}

// Run implements Agent.
func (a CommandAgent) Run(ctx context.Context, dir, prompt string) (AgentResult, error) {
	args := strings.Fields(a.Command)
	if len(args) == 0 {
		return AgentResult{}, errEmptyAgentCommand
	}
	cmd := exec.CommandContext(ctx, args[0], append(args[1:], prompt)...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout, cmd.Stderr = &stdout, &stderr

	err := cmd.Run()
	res := AgentResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if ctx.Err() != nil {
		return res, fmt.Errorf("agent timed out: %w", ctx.Err())
	}
	if err != nil {
		detail := strings.TrimSpace(res.Stderr)
		if detail == "" {
			detail = strings.TrimSpace(res.Stdout)
		}
		return res, fmt.Errorf("agent failed: %w: %s", err, truncate(detail, 500))
	}
	return res, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// CodeChanges runs code change requests in background workers.
type CodeChanges struct {
	svc    *Service
	agent  Agent
	events *activity.Emitter

	base    context.Context
	cancel  context.CancelFunc
	workers sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewCodeChanges creates a runner that edits repositories with agent.
func NewCodeChanges(svc *Service, agent Agent, events *activity.Emitter) *CodeChanges {
	base, cancel := context.WithCancel(context.Background())
	return &CodeChanges{svc: svc, agent: agent, events: events, base: base, cancel: cancel}
}

// Submit records a request for a repository of userID and starts working on
// it. stepID optionally links the request to a workflow step.
func (c *CodeChanges) Submit(ctx context.Context, userID, repositoryID, prompt, stepID string) (*CodeChangeRequest, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}
	// The worker slot is taken before anything is stored so Shutdown never
	// races a late Add.
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrShuttingDown
	}
	c.workers.Add(1)
	c.mu.Unlock()
	started := false
	defer func() {
		if !started {
			c.workers.Done()
		}
	}()

	repo, err := c.svc.UserRepository(ctx, userID, repositoryID)
	if err != nil {
		return nil, err
	}
	conn, err := c.svc.Connection(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := c.svc.store.Now()
	req := &CodeChangeRequest{
		ID:             store.NewID(),
		UserID:         userID,
		RepositoryID:   repo.ID,
		WorkflowStepID: stepID,
		Prompt:         prompt,
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	_, err = c.svc.store.Q(ctx).ExecContext(ctx, `INSERT INTO code_change_requests
		(id, user_id, repository_id, workflow_step_id, prompt, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
		req.ID, userID, repo.ID, store.NullString(stepID), prompt, string(req.Status), now)
	if err != nil {
		return nil, fmt.Errorf("failed to create code change request: %w", err)
	}

	started = true
	go func() {
		defer c.workers.Done()
		c.run(c.base, req.ID, repo, conn.AccessToken, prompt)
	}()
	return req, nil
}

// Shutdown waits for running requests. When ctx ends first the runs are
// cancelled and Shutdown still waits for them to record their failure.
func (c *CodeChanges) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.workers.Wait()
		close(done)
	}()
	select {
	case <-done:
		c.cancel()
		return nil
	case <-ctx.Done():
		c.cancel()
		<-done
		return ctx.Err()
	}
}

const requestColumns = `id, user_id, repository_id, workflow_step_id, prompt, status, branch_name, commit_sha,
	logs, error_message, output, created_at, updated_at, completed_at`

func scanRequest(row store.Scanner) (*CodeChangeRequest, error) {
	var r CodeChangeRequest
	var step sql.NullString
	var completed sql.NullTime
	err := row.Scan(&r.ID, &r.UserID, &r.RepositoryID, &step, &r.Prompt, &r.Status, &r.BranchName, &r.CommitSHA,
		&r.Logs, &r.ErrorMessage, &r.Output, &r.CreatedAt, &r.UpdatedAt, &completed)
	if err != nil {
		return nil, err
	}
	r.WorkflowStepID = step.String
	r.CompletedAt = store.TimePtr(completed)
	return &r, nil
}

// Get loads a request owned by userID.
func (c *CodeChanges) Get(ctx context.Context, userID, id string) (*CodeChangeRequest, error) {
	r, err := scanRequest(c.svc.store.Q(ctx).QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM code_change_requests WHERE id = $1 AND user_id = $2`, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load code change request: %w", err)
	}
	return r, nil
}

// job is one request's worker state. Each step is appended to the request log.
type job struct {
	c     *CodeChanges
	id    string
	repo  *Repository
	token string
	task  string
	dir   string
}

func (c *CodeChanges) run(ctx context.Context, id string, repo *Repository, token, task string) {
	r := &job{c: c, id: id, repo: repo, token: token, task: task}
	r.log(ctx, "Starting code change for %s", repo.FullName)

	err := r.execute(ctx)
	// The final writes must land even when the worker was cancelled.
	final := context.WithoutCancel(ctx)
	if r.dir != "" {
		r.log(final, "Cleaning up working copy")
		if rmErr := os.RemoveAll(r.dir); rmErr != nil {
			c.svc.logger.Warn("Failed to remove working copy", "dir", r.dir, "error", rmErr)
		}
	}

	now := c.svc.store.Now()
	if err != nil {
		msg := err.Error()
		if errors.Is(err, ErrNoChanges) {
			msg = "No changes were made"
		}
		r.log(final, "Failed: %s", msg)
		r.update(final, `status = $1, error_message = $2, completed_at = $3`, string(StatusFailed), msg, now)
		c.events.Emit(final, EventTypeCodeChangeFailed, id, map[string]any{"repository": repo.FullName, "error": msg})
		return
	}
	r.log(final, "Completed")
	r.update(final, `status = $1, completed_at = $2`, string(StatusCompleted), now)
	c.events.Emit(final, EventTypeCodeChangeCompleted, id, map[string]any{"repository": repo.FullName})
}

func (r *job) log(ctx context.Context, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	line := fmt.Sprintf("[%s] %s\n", r.c.svc.store.Now().Format(time.TimeOnly), msg)
	r.update(ctx, `logs = logs || $1`, line)
	r.c.svc.logger.Debug("Code change", "request", r.id, "message", msg)
}

// update applies set to the request row. Placeholders in set start at $1;
// updated_at and id are appended.
func (r *job) update(ctx context.Context, set string, args ...any) {
	n := len(args)
	query := fmt.Sprintf(`UPDATE code_change_requests SET %s, updated_at = $%d WHERE id = $%d`, set, n+1, n+2)
	args = append(args, r.c.svc.store.Now(), r.id)
	if _, err := r.c.svc.store.Q(ctx).ExecContext(ctx, query, args...); err != nil {
		r.c.svc.logger.Error("Failed to update code change request", "request", r.id, "error", err)
	}
}

func (r *job) auth() transport.AuthMethod {
	if strings.HasPrefix(r.repo.CloneURL, "https://") || strings.HasPrefix(r.repo.CloneURL, "http://") {
		return &githttp.BasicAuth{Username: "x-access-token", Password: r.token}
	}
	return nil
}

func (r *job) execute(ctx context.Context) error {
	cfg := r.c.svc.config
	prompt := r.agentPrompt()

	r.update(ctx, `status = $1`, string(StatusCloning))
	dir, err := os.MkdirTemp("", "jadeed-clone-")
	if err != nil {
		return fmt.Errorf("failed to create working directory: %w", err)
	}
	r.dir = dir
	r.log(ctx, "Cloning %s", r.repo.FullName)
	repo, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{URL: r.repo.CloneURL, Auth: r.auth()})
	if err != nil {
		return fmt.Errorf("failed to clone repository: %w", err)
	}

	branch := "ai-changes-" + r.c.svc.store.Now().Format("20060102-150405")
	head, err := repo.Head()
	if err != nil {
		return fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to open worktree: %w", err)
	}
	if err := wt.Checkout(&git.CheckoutOptions{Branch: plumbing.NewBranchReferenceName(branch), Hash: head.Hash(), Create: true}); err != nil {
		return fmt.Errorf("failed to create branch: %w", err)
	}
	r.update(ctx, `branch_name = $1`, branch)
	r.log(ctx, "Created branch %s", branch)

	r.update(ctx, `status = $1`, string(StatusProcessing))
	r.log(ctx, "Running agent (timeout %s)", cfg.AgentTimeout)
	agentCtx, cancel := context.WithTimeout(ctx, cfg.AgentTimeout)
	res, err := r.c.agent.Run(agentCtx, dir, prompt)
	cancel()
	output := strings.TrimSpace(res.Stdout)
	r.update(ctx, `output = $1`, truncate(output, 20000))
	if stderr := strings.TrimSpace(res.Stderr); stderr != "" {
		r.log(ctx, "Agent stderr: %s", truncate(stderr, 500))
	}
	if err != nil {
		return err
	}

	status, err := wt.Status()
	if err != nil {
		return fmt.Errorf("failed to read worktree status: %w", err)
	}
	if status.IsClean() {
		return ErrNoChanges
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return fmt.Errorf("failed to stage changes: %w", err)
	}
	message := "AI-generated changes: " + truncate(r.task, 80)
	if output != "" {
		message += "\n\nAgent output:\n" + truncate(output, 500)
	}
	hash, err := wt.Commit(message, &git.CommitOptions{Author: &object.Signature{
		Name:  cfg.CommitAuthorName,
		Email: cfg.CommitAuthorEmail,
		When:  r.c.svc.store.Now(),
	}})
	if err != nil {
		return fmt.Errorf("failed to commit changes: %w", err)
	}
	r.update(ctx, `commit_sha = $1`, hash.String())
	r.log(ctx, "Committed %s", hash.String()[:7])

	r.update(ctx, `status = $1`, string(StatusPushing))
	r.log(ctx, "Pushing %s", branch)
	refSpec := gitconfig.RefSpec(fmt.Sprintf("refs/heads/%s:refs/heads/%s", branch, branch))
	err = repo.PushContext(ctx, &git.PushOptions{RemoteName: "origin", RefSpecs: []gitconfig.RefSpec{refSpec}, Auth: r.auth()})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("failed to push changes: %w", err)
	}
	return nil
}

// agentPrompt is the instruction handed to the agent.
func (r *job) agentPrompt() string {
	return fmt.Sprintf("Repository: %s\nLanguage: %s\n\nTask: %s\n", r.repo.FullName, r.repo.Language, r.task)
}
