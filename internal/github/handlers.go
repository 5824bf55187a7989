package github

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/GoCodeAlone/modular"
	"github.com/go-chi/chi/v5"

	"github.com/hadibuxm/jadeed/internal/platform/activity"
	"github.com/hadibuxm/jadeed/internal/platform/authctx"
	"github.com/hadibuxm/jadeed/internal/platform/httpx"
)

type handlers struct {
	svc     *Service
	changes *CodeChanges
	auth    authctx.Authenticator
	events  *activity.Emitter
	logger  modular.Logger
}

func (h *handlers) routes(r chi.Router) {
	r.Get("/api/github/callback", h.callback)

	r.Group(func(r chi.Router) {
		r.Use(h.auth.Authenticate)
		r.Get("/api/github/connect", h.connect)
		r.Get("/api/github/status", h.status)
		r.Post("/api/github/sync", h.sync)
		r.Delete("/api/github/connection", h.disconnect)
		r.Post("/api/github/disconnect", h.disconnect)
		r.Get("/api/github/repositories", h.listRepositories)
		r.Post("/api/github/repositories", h.createRepository)
		r.Post("/api/github/repositories/{repoID}/code-changes", h.requestCodeChange)
		r.Get("/api/github/code-changes/{requestID}", h.getCodeChange)
	})
}

func writeData(w http.ResponseWriter, status int, v any) {
	httpx.WriteJSON(w, status, map[string]any{"success": true, "data": v})
}

func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotConfigured):
		httpx.WriteError(w, http.StatusServiceUnavailable, "GitHub integration is not configured.")
	case errors.Is(err, ErrNotConnected):
		httpx.WriteError(w, http.StatusBadRequest, "GitHub account not connected")
	case errors.Is(err, ErrRepositoryNotFound):
		httpx.WriteError(w, http.StatusNotFound, "Repository not found.")
	case errors.Is(err, ErrRequestNotFound):
		httpx.WriteError(w, http.StatusNotFound, "Code change request not found.")
	case errors.Is(err, ErrEmptyPrompt):
		httpx.WriteErrors(w, http.StatusBadRequest, map[string][]string{"prompt": {httpx.MsgRequired}})
	case errors.Is(err, ErrShuttingDown):
		httpx.WriteError(w, http.StatusServiceUnavailable, "Server is shutting down, try again shortly.")
	case errors.Is(err, ErrInvalidRepoName):
		httpx.WriteErrors(w, http.StatusBadRequest, map[string][]string{"name": {httpx.MsgRequired}})
	case StatusOf(err) == http.StatusUnprocessableEntity:
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
	case StatusOf(err) != 0, errors.Is(err, ErrTokenExchange):
		httpx.WriteError(w, http.StatusBadGateway, err.Error())
	default:
		httpx.WriteError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *handlers) connect(w http.ResponseWriter, r *http.Request) {
	target, err := h.svc.AuthorizeURL(authctx.UserFrom(r.Context()).ID)
	if err != nil {
		writeErr(w, err)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// callback always sends the browser back to the frontend.
func (h *handlers) callback(w http.ResponseWriter, r *http.Request) {
	back := func(key, value string) {
		http.Redirect(w, r, h.svc.config.FrontendURL+"/github?"+url.Values{key: {value}}.Encode(), http.StatusFound)
	}
	q := r.URL.Query()
	state, code := q.Get("state"), q.Get("code")
	switch {
	case state == "":
		back("error", "no_state")
		return
	case code == "":
		back("error", "no_code")
		return
	}

	conn, err := h.svc.CompleteAuth(r.Context(), state, code)
	if errors.Is(err, ErrInvalidState) {
		back("error", "invalid_state")
		return
	}
	if err != nil {
		h.logger.Error("GitHub callback failed", "error", err)
		back("error", "server_error")
		return
	}
	h.events.Emit(r.Context(), EventTypeConnected, conn.UserID, map[string]any{"github_username": conn.Username})
	back("connected", "true")
}

func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Status(r.Context(), authctx.UserFrom(r.Context()).ID)
	if err != nil {
		writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, st)
}

func (h *handlers) sync(w http.ResponseWriter, r *http.Request) {
	userID := authctx.UserFrom(r.Context()).ID
	conn, err := h.svc.Connection(r.Context(), userID)
	if err != nil {
		writeErr(w, err)
		return
	}
	n, err := h.svc.SyncRepositories(r.Context(), conn)
	if err != nil {
		writeErr(w, err)
		return
	}
	repos, err := h.svc.Repositories(r.Context(), userID)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.events.Emit(r.Context(), EventTypeRepositoriesSynced, userID, map[string]any{"count": n})
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "synced_count": n, "repositories": Views(repos)})
}

func (h *handlers) disconnect(w http.ResponseWriter, r *http.Request) {
	userID := authctx.UserFrom(r.Context()).ID
	err := h.svc.Disconnect(r.Context(), userID)
	if errors.Is(err, ErrNotConnected) {
		httpx.WriteError(w, http.StatusNotFound, "No GitHub connection found")
		return
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	h.events.Emit(r.Context(), EventTypeDisconnected, userID, nil)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "message": "GitHub account disconnected successfully"})
}

func (h *handlers) listRepositories(w http.ResponseWriter, r *http.Request) {
	repos, err := h.svc.Repositories(r.Context(), authctx.UserFrom(r.Context()).ID)
	if err != nil {
		writeErr(w, err)
		return
	}
	if repos == nil {
		repos = []Repository{}
	}
	writeData(w, http.StatusOK, repos)
}

func (h *handlers) createRepository(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Private     bool   `json:"private"`
		AutoInit    *bool  `json:"auto_init"`
	}
	if !httpx.DecodeOrReject(w, r, &body) {
		return
	}
	req := CreateRepoRequest{Name: body.Name, Description: body.Description, Private: body.Private, AutoInit: true}
	if body.AutoInit != nil {
		req.AutoInit = *body.AutoInit
	}
	userID := authctx.UserFrom(r.Context()).ID
	repo, err := h.svc.CreateRepository(r.Context(), userID, req)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.events.Emit(r.Context(), EventTypeRepositoryCreated, repo.ID, map[string]any{"full_name": repo.FullName, "user_id": userID})
	writeData(w, http.StatusCreated, repo)
}

func (h *handlers) requestCodeChange(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Prompt         string `json:"prompt"`
		WorkflowStepID string `json:"workflow_step_id"`
	}
	if !httpx.DecodeOrReject(w, r, &body) {
		return
	}
	userID := authctx.UserFrom(r.Context()).ID
	req, err := h.changes.Submit(r.Context(), userID, chi.URLParam(r, "repoID"), body.Prompt, body.WorkflowStepID)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.events.Emit(r.Context(), EventTypeCodeChangeRequested, req.ID, map[string]any{"repository_id": req.RepositoryID, "user_id": userID})
	writeData(w, http.StatusAccepted, req)
}

func (h *handlers) getCodeChange(w http.ResponseWriter, r *http.Request) {
	req, err := h.changes.Get(r.Context(), authctx.UserFrom(r.Context()).ID, chi.URLParam(r, "requestID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, req)
}
