package organizations

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hadibuxm/jadeed/internal/platform/authctx"
	"github.com/hadibuxm/jadeed/internal/platform/store/storetest"
)

func serve(h http.Handler, user *authctx.User) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if user != nil {
		req = req.WithContext(authctx.WithUser(req.Context(), user))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	msg, _ := body["error"].(string)
	return msg
}

func TestAccessMiddleware(t *testing.T) {
	st := storetest.New(t)
	svc := NewService(st)
	ctx := context.Background()

	org, err := svc.CreateOrganization(ctx, Organization{Name: "Guarded"})
	require.NoError(t, err)
	_, err = svc.CreateDefaultRoles(ctx, org.ID)
	require.NoError(t, err)
	manager, err := svc.RoleByType(ctx, org.ID, RoleManager)
	require.NoError(t, err)

	memberID := storetest.CreateUser(t, st, "manager")
	_, err = svc.AddMember(ctx, Member{UserID: memberID, OrganizationID: org.ID, RoleID: manager.ID})
	require.NoError(t, err)
	outsiderID := storetest.CreateUser(t, st, "outsider")

	var seen *Membership
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = MembershipFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	t.Run("member required", func(t *testing.T) {
		rec := serve(svc.RequireMember(ok), &authctx.User{ID: memberID})
		assert.Equal(t, http.StatusNoContent, rec.Code)
		require.NotNil(t, seen)
		assert.Equal(t, org.ID, seen.Organization.ID)

		rec = serve(svc.RequireMember(ok), &authctx.User{ID: outsiderID})
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, MsgNoMembership, errorMessage(t, rec))

		rec = serve(svc.RequireMember(ok), nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("permission", func(t *testing.T) {
		rec := serve(svc.RequirePermission(PermApproveExpenses)(ok), &authctx.User{ID: memberID})
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = serve(svc.RequirePermission(PermManageFinancial)(ok), &authctx.User{ID: memberID})
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, MsgForbidden, errorMessage(t, rec))

		rec = serve(svc.RequirePermission(PermManageFinancial)(ok), &authctx.User{ID: outsiderID, IsSuperuser: true})
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("role", func(t *testing.T) {
		rec := serve(svc.RequireRole(RoleAdmin, RoleManager)(ok), &authctx.User{ID: memberID})
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = serve(svc.RequireRole(RoleAdmin)(ok), &authctx.User{ID: memberID})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}
