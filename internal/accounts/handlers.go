package accounts

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hadibuxm/jadeed/internal/platform/httpx"
)

type handlers struct {
	svc  *Service
	auth *Authenticator
}

func (h *handlers) routes(r chi.Router) {
	// Opaque token API.
	r.Post("/accounts/api/login", h.tokenLogin)
	r.Post("/accounts/api/signup", h.tokenSignup)
	r.With(h.auth.Authenticate).Post("/accounts/api/logout", h.tokenLogout)

	// JWT API.
	r.Post("/api/login", h.jwtLogin)
	r.Post("/api/signup", h.jwtSignup)
	r.Post("/api/token/refresh", h.refresh)
	r.With(h.auth.Authenticate).Post("/api/logout", h.jwtLogout)
	r.With(h.auth.Authenticate).Get("/api/me", h.me)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// login runs the shared credential check and writes the failure response.
func (h *handlers) login(w http.ResponseWriter, r *http.Request) (*User, bool) {
	var req loginRequest
	if !httpx.DecodeOrReject(w, r, &req) {
		return nil, false
	}
	user, err := h.svc.Login(r.Context(), req.Username, req.Password)
	switch {
	case err == nil:
		return user, true
	case httpx.WriteValidation(w, err):
	case errors.Is(err, ErrInvalidCredentials):
		httpx.WriteErrors(w, http.StatusBadRequest, map[string][]string{httpx.NonFieldErrors: {MsgInvalidLogin}})
	case errors.Is(err, ErrInactiveUser):
		httpx.WriteErrors(w, http.StatusForbidden, map[string][]string{httpx.NonFieldErrors: {MsgInactive}})
	default:
		httpx.WriteError(w, http.StatusInternalServerError, err.Error())
	}
	return nil, false
}

func (h *handlers) signup(w http.ResponseWriter, r *http.Request) (*SignUpResult, bool) {
	var form SignUpForm
	if !httpx.DecodeOrReject(w, r, &form) {
		return nil, false
	}
	res, err := h.svc.SignUp(r.Context(), form)
	if err == nil {
		return res, true
	}
	if !httpx.WriteValidation(w, err) {
		httpx.WriteErrors(w, http.StatusBadRequest, map[string][]string{httpx.NonFieldErrors: {MsgSignupFailed}})
	}
	return nil, false
}

func (h *handlers) tokenLogin(w http.ResponseWriter, r *http.Request) {
	user, ok := h.login(w, r)
	if !ok {
		return
	}
	token, err := h.svc.users.GetOrCreateToken(r.Context(), user.ID)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	view, err := h.svc.Serialize(r.Context(), user, nil)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	message := "Welcome back! Please complete your organization setup."
	if view.Member != nil && view.Member.Role != nil {
		message = fmt.Sprintf("Welcome back! You are signed in as %s.", view.Member.Role.Label)
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": message,
		"token":   token.Key,
		"user":    view,
	})
}

func (h *handlers) tokenSignup(w http.ResponseWriter, r *http.Request) {
	res, ok := h.signup(w, r)
	if !ok {
		return
	}
	token, err := h.svc.users.GetOrCreateToken(r.Context(), res.User.ID)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	view, err := h.svc.Serialize(r.Context(), res.User, res.Membership)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": fmt.Sprintf("Account created and logged in for %q.", res.Organization.Name),
		"token":   token.Key,
		"user":    view,
	})
}

func (h *handlers) tokenLogout(w http.ResponseWriter, r *http.Request) {
	user := AccountFrom(r.Context())
	if err := h.svc.users.DeleteTokens(r.Context(), user.ID); err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.svc.events.Emit(r.Context(), EventTypeLoggedOut, user.ID, map[string]any{"method": "token"})
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Successfully logged out."})
}

func (h *handlers) jwtLogin(w http.ResponseWriter, r *http.Request) {
	user, ok := h.login(w, r)
	if !ok {
		return
	}
	pair, err := h.svc.tokens.Issue(user.ID)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	view, err := h.svc.Serialize(r.Context(), user, nil)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"refresh": pair.Refresh,
		"access":  pair.Access,
		"user":    view,
	})
}

func (h *handlers) jwtSignup(w http.ResponseWriter, r *http.Request) {
	res, ok := h.signup(w, r)
	if !ok {
		return
	}
	pair, err := h.svc.tokens.Issue(res.User.ID)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	view, err := h.svc.Serialize(r.Context(), res.User, res.Membership)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": fmt.Sprintf("Welcome to Jadeed! Your organization %q has been created successfully.", res.Organization.Name),
		"refresh": pair.Refresh,
		"access":  pair.Access,
		"user":    view,
	})
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

const msgRefreshInvalid = "Refresh token is invalid or expired."

func (h *handlers) jwtLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !httpx.DecodeOrReject(w, r, &req) {
		return
	}
	if req.Refresh == "" {
		httpx.WriteErrors(w, http.StatusBadRequest, map[string][]string{"refresh": {httpx.MsgRequired}})
		return
	}
	user := AccountFrom(r.Context())
	claims, err := h.svc.tokens.ParseRefresh(r.Context(), req.Refresh)
	if err == nil && claims.UserID != user.ID {
		err = ErrTokenInvalid
	}
	if err == nil {
		err = h.svc.tokens.Revoke(r.Context(), claims)
	}
	if err != nil {
		httpx.WriteErrors(w, http.StatusBadRequest, map[string][]string{"refresh": {msgRefreshInvalid}})
		return
	}

	view, err := h.svc.Serialize(r.Context(), user, nil)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.svc.events.Emit(r.Context(), EventTypeLoggedOut, user.ID, map[string]any{"method": "jwt"})
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Successfully logged out.",
		"user":    view,
	})
}

func (h *handlers) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !httpx.DecodeOrReject(w, r, &req) {
		return
	}
	if req.Refresh == "" {
		httpx.WriteErrors(w, http.StatusBadRequest, map[string][]string{"refresh": {httpx.MsgRequired}})
		return
	}
	pair, _, err := h.svc.tokens.Rotate(r.Context(), req.Refresh)
	if err != nil {
		httpx.WriteErrors(w, http.StatusUnauthorized, map[string][]string{"refresh": {msgRefreshInvalid}})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"access": pair.Access, "refresh": pair.Refresh})
}

func (h *handlers) me(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Serialize(r.Context(), AccountFrom(r.Context()), nil)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "user": view})
}
