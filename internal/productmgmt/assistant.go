package productmgmt

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/hadibuxm/jadeed/internal/github"
)

const readmeTemperature = 0.5

func (s *Service) chatModel() (ChatModel, error) {
	if s.chat == nil {
		return nil, ErrChatNotConfigured
	}
	return s.chat, nil
}

func (s *Service) chatOptions() ChatOptions {
	return ChatOptions{Temperature: *s.config.Temperature, MaxTokens: s.config.MaxTokens}
}

func (s *Service) readmeOptions() ChatOptions {
	return ChatOptions{Temperature: readmeTemperature, MaxTokens: s.config.ReadmeMaxTokens}
}

// Conversation returns the discovery conversation of a step.
func (s *Service) Conversation(ctx context.Context, userID, id string) ([]Message, error) {
	st, err := s.visible(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return st.Conversation, nil
}

// beginTurn validates message and stores it as the next user turn.
func (s *Service) beginTurn(ctx context.Context, userID, id, message string) (*WorkflowStep, ChatModel, []Message, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, nil, nil, ErrEmptyMessage
	}
	st, err := s.visible(ctx, userID, id)
	if err != nil {
		return nil, nil, nil, err
	}
	chat, err := s.chatModel()
	if err != nil {
		return nil, nil, nil, err
	}
	history, err := s.appendMessages(ctx, st.ID, Message{Role: RoleUser, Content: message, Timestamp: s.store.Now()})
	if err != nil {
		return nil, nil, nil, err
	}
	return st, chat, history, nil
}

// SendMessage adds a user message to the conversation of a step and
// returns the assistant reply, which is stored as well.
func (s *Service) SendMessage(ctx context.Context, userID, id, message string) (string, []Message, error) {
	st, chat, history, err := s.beginTurn(ctx, userID, id, message)
	if err != nil {
		return "", nil, err
	}
	reply, err := chat.Complete(ctx, s.prompts.System(st.StepType), history, s.chatOptions())
	if err != nil {
		s.logger.Error("Chat completion failed", "step", st.ID, "error", err)
		return "", nil, fmt.Errorf("%w: %w", ErrChatUpstream, err)
	}
	history, err = s.appendMessages(ctx, st.ID, Message{Role: RoleAssistant, Content: reply, Timestamp: s.store.Now()})
	if err != nil {
		return "", nil, err
	}
	return reply, history, nil
}

// StreamMessage is SendMessage with the reply delivered chunk by chunk to
// onDelta. A non-empty reply is stored even when the stream breaks.
func (s *Service) StreamMessage(ctx context.Context, userID, id, message string, onDelta func(string) error) (string, error) {
	st, chat, history, err := s.beginTurn(ctx, userID, id, message)
	if err != nil {
		return "", err
	}
	reply, streamErr := chat.Stream(ctx, s.prompts.System(st.StepType), history, s.chatOptions(), onDelta)
	if reply != "" {
		// The request context may be gone when the client disconnected.
		if _, err := s.appendMessages(context.WithoutCancel(ctx), st.ID,
			Message{Role: RoleAssistant, Content: reply, Timestamp: s.store.Now()}); err != nil {
			return reply, err
		}
	}
	if streamErr != nil {
		s.logger.Error("Chat stream failed", "step", st.ID, "error", streamErr)
		return reply, fmt.Errorf("%w: %w", ErrChatUpstream, streamErr)
	}
	return reply, nil
}

// ReadmeResult is the outcome of GenerateReadme.
type ReadmeResult struct {
	Step      *WorkflowStep `json:"step"`
	Document  *Document     `json:"document"`
	Path      string        `json:"github_file_path,omitempty"`
	URL       string        `json:"github_url,omitempty"`
	PushError string        `json:"github_error,omitempty"`
}

// GenerateReadme summarizes the conversation of a step into its README,
// stores it as a document and pushes it to the linked repository when
// there is one.
func (s *Service) GenerateReadme(ctx context.Context, userID, id string) (*ReadmeResult, error) {
	st, err := s.visible(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if len(st.Conversation) == 0 {
		return nil, ErrNoConversation
	}
	chat, err := s.chatModel()
	if err != nil {
		return nil, err
	}
	history := append(st.Conversation, Message{Role: RoleUser, Content: s.prompts.ReadmeRequest(st.StepType.Label())})
	content, err := chat.Complete(ctx, s.prompts.ReadmeSystem, history, s.readmeOptions())
	if err != nil {
		s.logger.Error("README generation failed", "step", st.ID, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrChatUpstream, err)
	}

	res := &ReadmeResult{Step: st}
	err = s.store.WithTx(ctx, func(ctx context.Context) error {
		now := s.store.Now()
		st.ReadmeContent, st.ReadmeGeneratedAt, st.UpdatedAt = content, &now, now
		if st.Status == StatusBacklog || st.Status == StatusTodo {
			st.Status = StatusInProgress
		}
		if _, err := s.store.Q(ctx).ExecContext(ctx, `UPDATE workflow_steps
			SET readme_content = $1, readme_generated_at = $2, status = $3, updated_at = $2 WHERE id = $4`,
			content, now, string(st.Status), st.ID); err != nil {
			return fmt.Errorf("failed to save README: %w", err)
		}
		doc, err := s.saveDocument(ctx, st, userID, DocumentReadme, "README - "+now.Format("2006-01-02 15:04"), content, "ai")
		if err != nil {
			return err
		}
		res.Document = doc
		_, err = s.LogAction(ctx, st.ID, userID, ActionReadmeGenerated, "README generated from the conversation.",
			map[string]any{"document_id": doc.ID})
		return err
	})
	if err != nil {
		return nil, err
	}

	path, fileURL, pushErr := s.pushReadme(ctx, userID, st)
	switch {
	case pushErr != nil:
		s.logger.Warn("Failed to push README", "step", st.ID, "error", pushErr)
		res.PushError = pushErr.Error()
	case path != "":
		res.Path, res.URL = path, fileURL
	}
	return res, nil
}

// repositoryFor returns the repository of the nearest feature or product in
// lineage, searching from the step upwards. Steps of a project fall back to
// the project's repository.
func (s *Service) repositoryFor(ctx context.Context, lineage []*WorkflowStep) (string, error) {
	projectID := ""
	for i := len(lineage) - 1; i >= 0; i-- {
		step := lineage[i]
		if projectID == "" {
			projectID = step.ProjectID
		}
		switch step.StepType {
		case StepFeature:
			if step.RepositoryID != "" {
				return step.RepositoryID, nil
			}
		case StepProduct:
			repos, err := s.productRepositories(ctx, step.ID)
			if err != nil {
				return "", err
			}
			if len(repos) > 0 {
				return repos[0].ID, nil
			}
		}
	}
	if projectID == "" {
		return "", nil
	}
	var repoID sql.NullString
	err := s.store.Q(ctx).QueryRowContext(ctx,
		`SELECT github_repository_id FROM pm_projects WHERE id = $1`, projectID).Scan(&repoID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load project repository: %w", err)
	}
	return repoID.String, nil
}

// pushReadme commits the README of st when a repository is linked. It
// returns the file path and its URL, or "" when nothing was pushed.
func (s *Service) pushReadme(ctx context.Context, userID string, st *WorkflowStep) (string, string, error) {
	if s.repos == nil || st.ReadmeContent == "" {
		return "", "", nil
	}
	lineage, err := s.lineage(ctx, st)
	if err != nil {
		return "", "", err
	}
	repoID, err := s.repositoryFor(ctx, lineage)
	if err != nil || repoID == "" {
		return "", "", err
	}
	path := ReadmePath(lineage)
	message := fmt.Sprintf("Add/Update %s README: %s", st.StepType.Label(), st.Title)
	fileURL, err := s.repos.PushFile(ctx, repoID, path, st.ReadmeContent, message)
	if err != nil {
		return "", "", err
	}
	if _, err := s.LogAction(ctx, st.ID, userID, ActionDocumentSaved, fmt.Sprintf("README pushed to GitHub (%s)", path),
		map[string]any{"path": path, "repository_id": repoID, "github_url": fileURL}); err != nil {
		return path, fileURL, err
	}
	return path, fileURL, nil
}

// RequestCodeChange hands a coding task for a step to the code change
// worker of the linked repository.
func (s *Service) RequestCodeChange(ctx context.Context, userID, id, prompt string) (*github.CodeChangeRequest, error) {
	st, err := s.visible(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if s.changes == nil {
		return nil, ErrNoRepository
	}
	lineage, err := s.lineage(ctx, st)
	if err != nil {
		return nil, err
	}
	repoID, err := s.repositoryFor(ctx, lineage)
	if err != nil {
		return nil, err
	}
	if repoID == "" {
		return nil, ErrNoRepository
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		prompt = codeChangePrompt(st)
	}
	req, err := s.changes.Submit(ctx, userID, repoID, prompt, st.ID)
	if err != nil {
		return nil, err
	}
	if _, err := s.LogAction(ctx, st.ID, userID, ActionCodeChangeRequested, "Code change requested: "+firstRunes(prompt, 100),
		map[string]any{"request_id": req.ID, "repository_id": repoID}); err != nil {
		return nil, err
	}
	return req, nil
}

func codeChangePrompt(st *WorkflowStep) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Implement the %s %q.", strings.ToLower(st.StepType.Label()), st.Title)
	if st.Description != "" {
		b.WriteString("\n\n" + st.Description)
	}
	if st.Details.UserStory != "" {
		b.WriteString("\n\nUser story:\n" + st.Details.UserStory)
	}
	if st.Details.AcceptanceCriteria != "" {
		b.WriteString("\n\nAcceptance criteria:\n" + st.Details.AcceptanceCriteria)
	}
	if st.ReadmeContent != "" {
		b.WriteString("\n\nDiscovery notes:\n" + st.ReadmeContent)
	}
	return b.String()
}
