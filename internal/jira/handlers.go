package jira

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hadibuxm/jadeed/internal/platform/activity"
	"github.com/hadibuxm/jadeed/internal/platform/authctx"
	"github.com/hadibuxm/jadeed/internal/platform/httpx"
)

type handlers struct {
	svc    *Service
	auth   authctx.Authenticator
	events *activity.Emitter
}

func (h *handlers) routes(r chi.Router) {
	// Atlassian redirects the browser here without our credentials; the
	// pending state row identifies the user.
	r.Get("/api/jira/callback", h.callback)

	r.Group(func(r chi.Router) {
		r.Use(h.auth.Authenticate)
		r.Get("/api/jira/connect", h.connect)
		r.Get("/api/jira/connection", h.getConnection)
		r.Delete("/api/jira/connection", h.disconnect)
		r.Get("/api/jira/issues", h.listIssues)
		r.Get("/api/jira/issues/{key}", h.getIssue)
		r.Put("/api/jira/issues/{key}", h.updateIssue)
		r.Delete("/api/jira/issues/{key}", h.deleteIssue)
	})
}

func writeData(w http.ResponseWriter, status int, v any) {
	httpx.WriteJSON(w, status, map[string]any{"success": true, "data": v})
}

func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotConfigured):
		httpx.WriteError(w, http.StatusServiceUnavailable, "Jira integration is not configured.")
	case errors.Is(err, ErrNotConnected):
		httpx.WriteError(w, http.StatusNotFound, "No Jira connection found.")
	case errors.Is(err, ErrIssueNotFound):
		httpx.WriteError(w, http.StatusNotFound, "Issue not found.")
	case errors.Is(err, ErrInvalidState):
		httpx.WriteError(w, http.StatusBadRequest, "Invalid state")
	case errors.Is(err, ErrTokenExchange), errors.Is(err, ErrTokenRefresh), StatusOf(err) != 0:
		httpx.WriteError(w, http.StatusBadGateway, err.Error())
	default:
		httpx.WriteError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *handlers) connect(w http.ResponseWriter, r *http.Request) {
	user := authctx.UserFrom(r.Context())
	url, err := h.svc.BeginAuth(r.Context(), user.ID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"authorize_url": url})
}

func (h *handlers) callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		httpx.WriteError(w, http.StatusBadRequest, e)
		return
	}
	state, code := q.Get("state"), q.Get("code")
	if state == "" || code == "" {
		httpx.WriteError(w, http.StatusBadRequest, "Missing state or code")
		return
	}
	conn, err := h.svc.CompleteAuth(r.Context(), state, code)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.events.Emit(r.Context(), EventTypeConnected, conn.UserID, map[string]any{"cloud_id": conn.CloudID, "cloud_name": conn.CloudName})
	writeData(w, http.StatusOK, conn)
}

func (h *handlers) getConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.svc.Connection(r.Context(), authctx.UserFrom(r.Context()).ID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, conn)
}

func (h *handlers) disconnect(w http.ResponseWriter, r *http.Request) {
	userID := authctx.UserFrom(r.Context()).ID
	if err := h.svc.Disconnect(r.Context(), userID); err != nil {
		writeErr(w, err)
		return
	}
	h.events.Emit(r.Context(), EventTypeDisconnected, userID, nil)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Jira disconnected."})
}

func (h *handlers) listIssues(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListIssues(r.Context(), authctx.UserFrom(r.Context()).ID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, list)
}

func (h *handlers) getIssue(w http.ResponseWriter, r *http.Request) {
	issue, err := h.svc.GetIssue(r.Context(), authctx.UserFrom(r.Context()).ID, chi.URLParam(r, "key"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, issue)
}

func (h *handlers) updateIssue(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Summary     *string `json:"summary"`
		Description *string `json:"description"`
	}
	if !httpx.DecodeOrReject(w, r, &body) {
		return
	}
	if body.Summary != nil && strings.TrimSpace(*body.Summary) == "" {
		httpx.WriteErrors(w, http.StatusBadRequest, map[string][]string{"summary": {httpx.MsgBlank}})
		return
	}
	userID, key := authctx.UserFrom(r.Context()).ID, chi.URLParam(r, "key")
	if err := h.svc.UpdateIssue(r.Context(), userID, key, IssueUpdate{Summary: body.Summary, Description: body.Description}); err != nil {
		writeErr(w, err)
		return
	}
	h.events.Emit(r.Context(), EventTypeIssueUpdated, key, map[string]any{"user_id": userID})
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Issue updated."})
}

func (h *handlers) deleteIssue(w http.ResponseWriter, r *http.Request) {
	userID, key := authctx.UserFrom(r.Context()).ID, chi.URLParam(r, "key")
	if err := h.svc.DeleteIssue(r.Context(), userID, key); err != nil {
		writeErr(w, err)
		return
	}
	h.events.Emit(r.Context(), EventTypeIssueDeleted, key, map[string]any{"user_id": userID})
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Issue deleted."})
}
