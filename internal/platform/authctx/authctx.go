// Package authctx carries the authenticated user through request contexts.
package authctx

import (
	"context"
	"net/http"
)

// User is the identity every module sees for the current request.
type User struct {
	ID          string
	Username    string
	Email       string
	IsStaff     bool
	IsSuperuser bool
}

type userKey struct{}

// WithUser returns a copy of ctx carrying u.
func WithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// UserFrom returns the authenticated user, or nil.
func UserFrom(ctx context.Context) *User {
	u, _ := ctx.Value(userKey{}).(*User)
	return u
}

// AuthenticatorService is the service name the accounts module registers its
// Authenticator under.
const AuthenticatorService = "accounts.authenticator"

// Authenticator rejects unauthenticated requests and puts the User in the
// request context for the rest.
type Authenticator interface {
	Authenticate(next http.Handler) http.Handler
}
