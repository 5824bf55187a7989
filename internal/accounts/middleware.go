package accounts

import (
	"context"
	"net/http"
	"strings"

	"github.com/hadibuxm/jadeed/internal/platform/authctx"
	"github.com/hadibuxm/jadeed/internal/platform/httpx"
)

type userKey struct{}

func withAccount(ctx context.Context, u *User) context.Context {
	return context.WithValue(authctx.WithUser(ctx, u.Identity()), userKey{}, u)
}

// AccountFrom returns the full account placed by Authenticate, or nil.
func AccountFrom(ctx context.Context) *User {
	u, _ := ctx.Value(userKey{}).(*User)
	return u
}

// Authenticator accepts "Bearer <jwt>" and "Token <key>" credentials.
type Authenticator struct {
	svc *Service
}

// NewAuthenticator creates an authenticator backed by svc.
func NewAuthenticator(svc *Service) *Authenticator {
	return &Authenticator{svc: svc}
}

// Resolve returns the user for an Authorization header value.
func (a *Authenticator) Resolve(ctx context.Context, header string) (*User, error) {
	scheme, credential, ok := strings.Cut(strings.TrimSpace(header), " ")
	credential = strings.TrimSpace(credential)
	if !ok || credential == "" {
		return nil, ErrTokenInvalid
	}

	var user *User
	switch strings.ToLower(scheme) {
	case "bearer":
		claims, err := a.svc.tokens.Parse(credential, tokenTypeAccess)
		if err != nil {
			return nil, err
		}
		if user, err = a.svc.users.Get(ctx, claims.UserID); err != nil {
			return nil, ErrTokenInvalid
		}
	case "token":
		var err error
		if user, err = a.svc.users.TokenUser(ctx, credential, a.svc.config.TokenTTL); err != nil {
			return nil, err
		}
	default:
		return nil, ErrTokenInvalid
	}
	if !user.IsActive {
		return nil, ErrInactiveUser
	}
	return user, nil
}

// Authenticate implements authctx.Authenticator.
func (a *Authenticator) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			httpx.WriteError(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
			return
		}
		user, err := a.Resolve(r.Context(), header)
		if err != nil {
			httpx.WriteError(w, http.StatusUnauthorized, "Invalid or expired credentials.")
			return
		}
		next.ServeHTTP(w, r.WithContext(withAccount(r.Context(), user)))
	})
}
