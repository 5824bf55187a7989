package productmgmt

import (
	"context"

	"github.com/GoCodeAlone/modular"

	"github.com/hadibuxm/jadeed/internal/github"
	"github.com/hadibuxm/jadeed/internal/platform/store"
)

// RepositoryHost is the part of the GitHub integration the workflow uses.
// *github.Service implements it.
type RepositoryHost interface {
	OwnsAll(ctx context.Context, userID string, ids []string) (bool, error)
	PushFile(ctx context.Context, repositoryID, path, content, message string) (string, error)
}

// CodeChanger starts AI code changes. *github.CodeChanges implements it.
type CodeChanger interface {
	Submit(ctx context.Context, userID, repositoryID, prompt, stepID string) (*github.CodeChangeRequest, error)
}

// Options are the optional collaborators of a Service.
type Options struct {
	Chat         ChatModel
	Prompts      *Prompts
	Repositories RepositoryHost
	CodeChanges  CodeChanger
	Archive      Archiver
	Logger       modular.Logger
}

// Service implements the workflow hierarchy on top of the store.
type Service struct {
	store   *store.Store
	config  *Config
	chat    ChatModel
	prompts *Prompts
	repos   RepositoryHost
	changes CodeChanger
	archive Archiver
	logger  modular.Logger
}

// NewService creates a Service. Missing options disable the features that
// need them.
func NewService(st *store.Store, cfg *Config, opts Options) *Service {
	cfg.withDefaults()
	if opts.Prompts == nil {
		opts.Prompts = DefaultPrompts()
	}
	if opts.Logger == nil {
		opts.Logger = nopLogger{}
	}
	return &Service{
		store:   st,
		config:  cfg,
		chat:    opts.Chat,
		prompts: opts.Prompts,
		repos:   opts.Repositories,
		changes: opts.CodeChanges,
		archive: opts.Archive,
		logger:  opts.Logger,
	}
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Debug(string, ...any) {}
