package aiengine

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hadibuxm/jadeed/internal/platform/activity"
	"github.com/hadibuxm/jadeed/internal/platform/authctx"
	"github.com/hadibuxm/jadeed/internal/platform/httpx"
)

// Sessions is the part of *Client the handlers use.
type Sessions interface {
	ListSessions(ctx context.Context, limit, offset int) ([]Session, error)
	CreateSession(ctx context.Context, in NewSession) (*CreatedSession, error)
	GetSession(ctx context.Context, id string) (*Session, error)
}

type handlers struct {
	sessions Sessions
	auth     authctx.Authenticator
	events   *activity.Emitter
}

func (h *handlers) routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.auth.Authenticate)
		r.Get("/api/aiengine/sessions", h.list)
		r.Post("/api/aiengine/sessions", h.create)
		r.Get("/api/aiengine/sessions/{id}", h.get)
	})
}

func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrPromptRequired):
		httpx.WriteError(w, http.StatusBadRequest, "Prompt is required.")
	case errors.Is(err, ErrNotConfigured):
		httpx.WriteError(w, http.StatusServiceUnavailable, "AI engine is not configured.")
	default:
		httpx.WriteError(w, http.StatusBadGateway, err.Error())
	}
}

func queryInt(r *http.Request, name string, def int, verr *httpx.ValidationError) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		verr.Add(name, "A valid non-negative integer is required.")
		return def
	}
	return n
}

func (h *handlers) list(w http.ResponseWriter, r *http.Request) {
	verr := httpx.NewValidationError()
	limit := queryInt(r, "limit", DefaultLimit, verr)
	offset := queryInt(r, "offset", DefaultOffset, verr)
	if httpx.WriteValidation(w, verr.Err()) {
		return
	}
	sessions, err := h.sessions.ListSessions(r.Context(), limit, offset)
	if err != nil {
		writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (h *handlers) create(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Prompt string `json:"prompt"`
		Title  string `json:"title"`
		Tags   string `json:"tags"`
	}
	if !httpx.DecodeOrReject(w, r, &body) {
		return
	}
	created, err := h.sessions.CreateSession(r.Context(), NewSession{
		Prompt: body.Prompt,
		Title:  body.Title,
		Tags:   SplitTags(body.Tags),
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	user := authctx.UserFrom(r.Context())
	h.events.Emit(r.Context(), EventTypeSessionCreated, created.SessionID, map[string]any{"user_id": user.ID, "title": body.Title})
	httpx.WriteJSON(w, http.StatusCreated, created)
}

func (h *handlers) get(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, session)
}
