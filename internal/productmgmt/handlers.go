package productmgmt

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hadibuxm/jadeed/internal/github"
	"github.com/hadibuxm/jadeed/internal/organizations"
	"github.com/hadibuxm/jadeed/internal/platform/activity"
	"github.com/hadibuxm/jadeed/internal/platform/authctx"
	"github.com/hadibuxm/jadeed/internal/platform/httpx"
)

// Error messages shown to API clients.
const (
	MsgStepNotFound  = "Workflow step not found."
	MsgNoPermission  = "You do not have permission to update this item."
	MsgInvalidStatus = "Invalid status. Must be one of: backlog, todo, in_progress, completed"
)

type handlers struct {
	svc    *Service
	auth   authctx.Authenticator
	orgs   *organizations.Service
	events *activity.Emitter
}

func (h *handlers) routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.auth.Authenticate)

		r.Get("/api/pm/steps", h.listSteps)
		r.Post("/api/pm/steps", h.createStep)
		r.Route("/api/pm/steps/{stepID}", func(r chi.Router) {
			r.Get("/", h.getStep)
			r.Patch("/", h.updateStep)
			r.Delete("/", h.deleteStep)
			r.Post("/status", h.setStatus)
			r.Post("/complete", h.complete)
			r.Get("/tree", h.tree)
			r.Get("/comments", h.listComments)
			r.Post("/comments", h.addComment)
			r.Get("/actions", h.listActions)
			r.Post("/actions", h.createAction)
			r.Get("/documents", h.listDocuments)
			r.Post("/documents", h.saveDocument)
			r.Get("/conversation", h.conversation)
			r.Post("/messages", h.sendMessage)
			r.Post("/readme", h.generateReadme)
			r.Post("/code-changes", h.requestCodeChange)
			r.Get("/guided-steps", h.listGuided)
		})
		r.Route("/api/pm/guided-steps/{guidedID}", func(r chi.Router) {
			r.Get("/", h.getGuided)
			r.Post("/messages", h.guidedMessage)
			r.Post("/document", h.guidedDocument)
			r.Post("/complete", h.completeGuided)
		})

		r.Get("/api/pm/recent", h.listRecent)
		r.Post("/api/pm/recent", h.trackRecent)
		r.Get("/api/pm/projects", h.listProjects)
		r.Post("/api/pm/projects", h.createProject)
		r.Delete("/api/pm/projects/{projectID}", h.deleteProject)

		if h.orgs != nil {
			r.Group(func(r chi.Router) {
				r.Use(h.orgs.RequireMember)
				h.orgRoutes(r)
			})
		}
	})
}

func writeData(w http.ResponseWriter, status int, v any) {
	httpx.WriteJSON(w, status, map[string]any{"success": true, "data": v})
}

var errorMessages = []struct {
	err    error
	status int
	msg    string
}{
	{ErrStepNotFound, http.StatusNotFound, MsgStepNotFound},
	{ErrNotOwner, http.StatusForbidden, MsgNoPermission},
	{ErrParentNotFound, http.StatusNotFound, "Parent step not found."},
	{ErrTitleRequired, http.StatusBadRequest, "Step type and title are required."},
	{ErrInvalidStepType, http.StatusBadRequest, "Invalid step type."},
	{ErrFeatureNeedsProduct, http.StatusBadRequest, "Features must be associated with a Product."},
	{ErrFeatureUnderProduct, http.StatusBadRequest, "Features can only be created under a Product."},
	{ErrCircularReference, http.StatusBadRequest, "Circular reference detected in hierarchy."},
	{ErrNoUpdates, http.StatusBadRequest, "No updates provided."},
	{ErrEmptyTitle, http.StatusBadRequest, "Title cannot be empty."},
	{ErrInvalidStatus, http.StatusBadRequest, MsgInvalidStatus},
	{ErrEmptyComment, http.StatusBadRequest, "Comment cannot be empty."},
	{ErrEmptyMessage, http.StatusBadRequest, "Message cannot be empty."},
	{ErrInvalidActionType, http.StatusBadRequest, "Invalid action type."},
	{ErrInvalidDocumentType, http.StatusBadRequest, "Invalid document type."},
	{ErrNoConversation, http.StatusBadRequest, "No conversation history to generate README from."},
	{ErrChatNotConfigured, http.StatusServiceUnavailable, "AI assistant is not configured."},
	{ErrRepositoryRequired, http.StatusBadRequest, "Select at least one repository for a product."},
	{ErrInvalidRepositories, http.StatusBadRequest, "One or more repositories are invalid."},
	{ErrFeatureRepository, http.StatusBadRequest, "Selected repository is not linked to the parent product."},
	{ErrFeatureRepositoryRequired, http.StatusBadRequest, "Select a repository to use for this feature."},
	{ErrNoRepository, http.StatusBadRequest, "No GitHub repository is linked to this step."},
	{ErrGuidedStepNotFound, http.StatusNotFound, "Step not found."},
	{ErrProjectNotFound, http.StatusNotFound, "Project not found."},
	{ErrProjectNameRequired, http.StatusBadRequest, "Project name is required."},
	{ErrProjectRepository, http.StatusNotFound, "Repository not found."},
	{ErrRecentItemFields, http.StatusBadRequest, "All fields are required."},
	{ErrInvalidItemType, http.StatusBadRequest, "Invalid item type."},
	{github.ErrRepositoryNotFound, http.StatusNotFound, "Repository not found."},
	{github.ErrShuttingDown, http.StatusServiceUnavailable, "Server is shutting down, try again shortly."},
}

func writeErr(w http.ResponseWriter, err error) {
	if httpx.WriteValidation(w, err) {
		return
	}
	var herr *HierarchyError
	if errors.As(err, &herr) {
		httpx.WriteError(w, http.StatusBadRequest, herr.Message())
		return
	}
	if errors.Is(err, github.ErrEmptyPrompt) {
		httpx.WriteErrors(w, http.StatusBadRequest, map[string][]string{"prompt": {httpx.MsgRequired}})
		return
	}
	for _, m := range errorMessages {
		if errors.Is(err, m.err) {
			httpx.WriteError(w, m.status, m.msg)
			return
		}
	}
	if errors.Is(err, ErrChatUpstream) {
		httpx.WriteError(w, http.StatusBadGateway, err.Error())
		return
	}
	httpx.WriteError(w, http.StatusInternalServerError, err.Error())
}

func userID(r *http.Request) string {
	return authctx.UserFrom(r.Context()).ID
}

func stepID(r *http.Request) string {
	return chi.URLParam(r, "stepID")
}

// Steps

func (h *handlers) listSteps(w http.ResponseWriter, r *http.Request) {
	t := StepType(r.URL.Query().Get("type"))
	if t != "" && !t.Valid() {
		writeErr(w, ErrInvalidStepType)
		return
	}
	steps, err := h.svc.Steps(r.Context(), userID(r), t)
	if err != nil {
		writeErr(w, err)
		return
	}
	if steps == nil {
		steps = []*WorkflowStep{}
	}
	writeData(w, http.StatusOK, steps)
}

func (h *handlers) createStep(w http.ResponseWriter, r *http.Request) {
	var in NewStep
	if !httpx.DecodeOrReject(w, r, &in) {
		return
	}
	st, err := h.svc.CreateStep(r.Context(), userID(r), in)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.events.Emit(r.Context(), EventTypeStepCreated, st.ID, map[string]any{
		"step_type":    st.StepType,
		"reference_id": st.ReferenceID,
	})
	writeData(w, http.StatusCreated, st)
}

func (h *handlers) getStep(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Step(r.Context(), userID(r), stepID(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, st)
}

type updateRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

func (h *handlers) updateStep(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if !httpx.DecodeOrReject(w, r, &req) {
		return
	}
	st, err := h.svc.UpdateStep(r.Context(), userID(r), stepID(r), req.Title, req.Description)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.events.Emit(r.Context(), EventTypeStepUpdated, st.ID, nil)
	writeData(w, http.StatusOK, st)
}

func (h *handlers) setStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status Status `json:"status"`
	}
	if !httpx.DecodeOrReject(w, r, &req) {
		return
	}
	st, err := h.svc.SetStatus(r.Context(), userID(r), stepID(r), req.Status)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.events.Emit(r.Context(), EventTypeStepUpdated, st.ID, map[string]any{"status": st.Status})
	writeData(w, http.StatusOK, st)
}

func (h *handlers) complete(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Complete(r.Context(), userID(r), stepID(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	h.events.Emit(r.Context(), EventTypeStepCompleted, st.ID, nil)
	writeData(w, http.StatusOK, st)
}

func (h *handlers) deleteStep(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.DeleteStep(r.Context(), userID(r), stepID(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	h.events.Emit(r.Context(), EventTypeStepDeleted, st.ID, map[string]any{"reference_id": st.ReferenceID})
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("%s %q deleted successfully!", st.StepType.Label(), st.Title),
	})
}

func (h *handlers) tree(w http.ResponseWriter, r *http.Request) {
	node, err := h.svc.Tree(r.Context(), userID(r), stepID(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, node)
}

// Journal

func (h *handlers) listComments(w http.ResponseWriter, r *http.Request) {
	comments, err := h.svc.Comments(r.Context(), userID(r), stepID(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, comments)
}

func (h *handlers) addComment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if !httpx.DecodeOrReject(w, r, &req) {
		return
	}
	c, err := h.svc.AddComment(r.Context(), userID(r), stepID(r), req.Content)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusCreated, c)
}

func (h *handlers) listActions(w http.ResponseWriter, r *http.Request) {
	actions, err := h.svc.Actions(r.Context(), userID(r), stepID(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, actions)
}

func (h *handlers) createAction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ActionType  ActionType     `json:"action_type"`
		Description string         `json:"description"`
		Metadata    map[string]any `json:"metadata"`
	}
	if !httpx.DecodeOrReject(w, r, &req) {
		return
	}
	a, err := h.svc.CreateAction(r.Context(), userID(r), stepID(r), req.ActionType, req.Description, req.Metadata)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusCreated, a)
}

func (h *handlers) listDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.svc.Documents(r.Context(), userID(r), stepID(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, docs)
}

func (h *handlers) saveDocument(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DocumentType DocumentType `json:"document_type"`
		Title        string       `json:"title"`
		Content      string       `json:"content"`
	}
	if !httpx.DecodeOrReject(w, r, &req) {
		return
	}
	verr := httpx.NewValidationError()
	verr.Require(map[string]string{"title": req.Title, "content": req.Content})
	if req.DocumentType == "" {
		req.DocumentType = DocumentOther
	}
	if httpx.WriteValidation(w, verr.Err()) {
		return
	}
	d, err := h.svc.SaveDocument(r.Context(), userID(r), stepID(r), req.DocumentType, req.Title, req.Content)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusCreated, d)
}

// Assistant

func (h *handlers) conversation(w http.ResponseWriter, r *http.Request) {
	history, err := h.svc.Conversation(r.Context(), userID(r), stepID(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "conversation": history})
}

type messageRequest struct {
	Message string `json:"message"`
	Stream  *bool  `json:"stream"`
}

// streaming defaults to true, as the chat page consumes the event stream.
func (m messageRequest) streaming() bool {
	return m.Stream == nil || *m.Stream
}

func (h *handlers) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if !httpx.DecodeOrReject(w, r, &req) {
		return
	}
	if req.streaming() {
		h.streamMessage(w, r, req.Message)
		return
	}
	reply, history, err := h.svc.SendMessage(r.Context(), userID(r), stepID(r), req.Message)
	if err != nil {
		writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "message": reply, "conversation": history})
}

// eventStream writes server-sent events.
type eventStream struct {
	w       http.ResponseWriter
	started bool
}

func (s *eventStream) send(v any) error {
	if !s.started {
		s.w.Header().Set("Content-Type", "text/event-stream")
		s.w.Header().Set("Cache-Control", "no-cache")
		s.w.Header().Set("X-Accel-Buffering", "no")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", raw); err != nil {
		return err
	}
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

func (h *handlers) streamMessage(w http.ResponseWriter, r *http.Request, message string) {
	id := stepID(r)
	es := &eventStream{w: w}
	_, err := h.svc.StreamMessage(r.Context(), userID(r), id, message, func(delta string) error {
		return es.send(map[string]string{"content": delta})
	})
	switch {
	case err == nil:
		// an empty reply still ends the stream
		_ = es.send(map[string]any{"done": true, "conversation_id": id})
	case errors.Is(err, ErrChatUpstream):
		cause := strings.TrimPrefix(err.Error(), ErrChatUpstream.Error()+": ")
		_ = es.send(map[string]string{"error": "Error communicating with the AI service: " + cause})
	case !es.started:
		writeErr(w, err)
	default:
		_ = es.send(map[string]string{"error": "Unexpected error: " + err.Error()})
	}
}

func (h *handlers) generateReadme(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.GenerateReadme(r.Context(), userID(r), stepID(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	h.events.Emit(r.Context(), EventTypeReadmeGenerated, res.Step.ID, map[string]any{
		"document_id": res.Document.ID,
		"pushed":      res.Path != "",
	})
	writeData(w, http.StatusOK, res)
}

func (h *handlers) requestCodeChange(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prompt string `json:"prompt"`
	}
	if !httpx.DecodeOrReject(w, r, &req) {
		return
	}
	cr, err := h.svc.RequestCodeChange(r.Context(), userID(r), stepID(r), req.Prompt)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.events.Emit(r.Context(), EventTypeCodeChangeRequested, stepID(r), map[string]any{"request_id": cr.ID})
	writeData(w, http.StatusAccepted, cr)
}

// Guided steps

func (h *handlers) listGuided(w http.ResponseWriter, r *http.Request) {
	steps, err := h.svc.GuidedSteps(r.Context(), userID(r), stepID(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, steps)
}

func guidedID(r *http.Request) string {
	return chi.URLParam(r, "guidedID")
}

func (h *handlers) getGuided(w http.ResponseWriter, r *http.Request) {
	g, _, err := h.svc.GuidedStep(r.Context(), userID(r), guidedID(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, g)
}

func (h *handlers) guidedMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if !httpx.DecodeOrReject(w, r, &req) {
		return
	}
	g, reply, err := h.svc.GuidedChat(r.Context(), userID(r), guidedID(r), req.Message)
	if err != nil {
		writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "message": reply, "conversation": g.Conversation})
}

func (h *handlers) guidedDocument(w http.ResponseWriter, r *http.Request) {
	g, err := h.svc.GenerateGuidedDocument(r.Context(), userID(r), guidedID(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, g)
}

func (h *handlers) completeGuided(w http.ResponseWriter, r *http.Request) {
	g, err := h.svc.CompleteGuided(r.Context(), userID(r), guidedID(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, g)
}

// Recent items and projects

func (h *handlers) listRecent(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.RecentItems(r.Context(), userID(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, items)
}

func (h *handlers) trackRecent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ItemType string `json:"item_type"`
		ItemID   string `json:"item_id"`
		Title    string `json:"item_title"`
		URL      string `json:"item_url"`
	}
	if !httpx.DecodeOrReject(w, r, &req) {
		return
	}
	item, err := h.svc.TrackRecent(r.Context(), userID(r), RecentItem{
		ItemType: req.ItemType,
		ItemID:   req.ItemID,
		Title:    req.Title,
		URL:      req.URL,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, item)
}

func (h *handlers) listProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.svc.Projects(r.Context(), userID(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, projects)
}

func (h *handlers) createProject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name         string `json:"name"`
		Description  string `json:"description"`
		RepositoryID string `json:"repo_id"`
	}
	if !httpx.DecodeOrReject(w, r, &req) {
		return
	}
	p, err := h.svc.CreateProject(r.Context(), userID(r), req.Name, req.Description, req.RepositoryID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusCreated, p)
}

func (h *handlers) deleteProject(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.DeleteProject(r.Context(), userID(r), chi.URLParam(r, "projectID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("Project %q deleted successfully!", p.Name),
	})
}
