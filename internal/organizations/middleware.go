package organizations

import (
	"context"
	"errors"
	"net/http"

	"github.com/hadibuxm/jadeed/internal/platform/authctx"
	"github.com/hadibuxm/jadeed/internal/platform/httpx"
)

// Messages returned by the access middleware.
const (
	MsgNoMembership = "No active organization membership found."
	MsgForbidden    = "You do not have permission to perform this action."
	MsgUnauthorized = "Authentication credentials were not provided."
)

type membershipKey struct{}

// WithMembership returns a copy of ctx carrying ms.
func WithMembership(ctx context.Context, ms *Membership) context.Context {
	return context.WithValue(ctx, membershipKey{}, ms)
}

// MembershipFrom returns the membership placed by RequireMember, or nil.
func MembershipFrom(ctx context.Context) *Membership {
	ms, _ := ctx.Value(membershipKey{}).(*Membership)
	return ms
}

// RequireMember loads the caller's active membership into the request
// context. Requests without one get a 403.
func (s *Service) RequireMember(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := authctx.UserFrom(r.Context())
		if user == nil {
			httpx.WriteError(w, http.StatusUnauthorized, MsgUnauthorized)
			return
		}
		ms, err := s.ActiveMember(r.Context(), user.ID, "")
		if errors.Is(err, ErrNoMembership) {
			httpx.WriteError(w, http.StatusForbidden, MsgNoMembership)
			return
		}
		if err != nil {
			httpx.WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(WithMembership(r.Context(), ms)))
	})
}

// RequirePermission lets the request through when the caller's role grants
// perm. Superusers always pass.
func (s *Service) RequirePermission(perm Permission) func(http.Handler) http.Handler {
	return s.require(func(ms *Membership) bool { return ms.Has(perm) })
}

// RequireAnyPermission lets the request through when the caller's role
// grants at least one of perms.
func (s *Service) RequireAnyPermission(perms ...Permission) func(http.Handler) http.Handler {
	return s.require(func(ms *Membership) bool { return ms.HasAny(perms...) })
}

// RequireRole lets the request through when the caller holds one of roles.
// Superusers always pass.
func (s *Service) RequireRole(roles ...RoleType) func(http.Handler) http.Handler {
	return s.require(func(ms *Membership) bool { return ms.IsRole(roles...) })
}

func (s *Service) require(allowed func(*Membership) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := authctx.UserFrom(r.Context())
			if user == nil {
				httpx.WriteError(w, http.StatusUnauthorized, MsgUnauthorized)
				return
			}
			if user.IsSuperuser {
				next.ServeHTTP(w, r)
				return
			}
			ms := MembershipFrom(r.Context())
			if ms == nil {
				var err error
				ms, err = s.ActiveMember(r.Context(), user.ID, "")
				if err != nil && !errors.Is(err, ErrNoMembership) {
					httpx.WriteError(w, http.StatusInternalServerError, err.Error())
					return
				}
			}
			if ms == nil || !allowed(ms) {
				httpx.WriteError(w, http.StatusForbidden, MsgForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
