package organizations

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hadibuxm/jadeed/internal/platform/authctx"
	"github.com/hadibuxm/jadeed/internal/platform/store/storetest"
)

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"Demo Tech Company":   "demo-tech-company",
		"  Acme, Inc.  ":      "acme-inc",
		"R&D -- Lab":          "r-d-lab",
		"Bob's Burgers":       "bobs-burgers",
		"already-slugged":     "already-slugged",
		"Ünïcode Name 42":     "ünïcode-name-42",
		"---":                 "",
	}
	for in, want := range tests {
		assert.Equal(t, want, Slugify(in), "Slugify(%q)", in)
	}
}

func newOrg(t *testing.T, svc *Service, name string) *Organization {
	t.Helper()
	org, err := svc.CreateOrganization(context.Background(), Organization{Name: name})
	require.NoError(t, err)
	return org
}

func TestCreateOrganization_DuplicateNameIgnoresCase(t *testing.T) {
	svc := NewService(storetest.New(t))
	org := newOrg(t, svc, "Acme Corp")
	assert.Equal(t, "acme-corp", org.Slug)
	assert.True(t, org.IsActive)

	_, err := svc.CreateOrganization(context.Background(), Organization{Name: "ACME corp"})
	assert.ErrorIs(t, err, ErrOrganizationExists)

	_, err = svc.CreateOrganization(context.Background(), Organization{Name: "   "})
	assert.ErrorIs(t, err, ErrNameRequired)

	bySlug, err := svc.GetOrganizationBySlug(context.Background(), "acme-corp")
	require.NoError(t, err)
	assert.Equal(t, org.ID, bySlug.ID)
}

func TestCreateDefaultRoles_IsIdempotent(t *testing.T) {
	svc := NewService(storetest.New(t))
	ctx := context.Background()
	org := newOrg(t, svc, "Roles Inc")

	first, err := svc.CreateDefaultRoles(ctx, org.ID)
	require.NoError(t, err)
	require.Len(t, first, 5)

	second, err := svc.CreateDefaultRoles(ctx, org.ID)
	require.NoError(t, err)
	require.Len(t, second, 5)
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}

	admin, err := svc.RoleByType(ctx, org.ID, RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, "Administrator", admin.Name)
	for _, p := range []Permission{PermManageUsers, PermManageRoles, PermViewAllFinancial, PermManageFinancial,
		PermApproveExpenses, PermManageDepartments, PermManageTeams, PermViewReports, PermExportData} {
		assert.True(t, admin.Permissions.Has(p), p)
	}

	manager, err := svc.RoleByType(ctx, org.ID, RoleManager)
	require.NoError(t, err)
	assert.True(t, manager.Permissions.Has(PermApproveExpenses))
	assert.True(t, manager.Permissions.Has(PermManageTeams))
	assert.True(t, manager.Permissions.Has(PermViewReports))
	assert.False(t, manager.Permissions.Has(PermManageFinancial))

	accountant, err := svc.RoleByType(ctx, org.ID, RoleAccountant)
	require.NoError(t, err)
	assert.True(t, accountant.Permissions.Has(PermManageFinancial))
	assert.True(t, accountant.Permissions.Has(PermExportData))
	assert.False(t, accountant.Permissions.Has(PermManageUsers))

	employee, err := svc.RoleByType(ctx, org.ID, RoleEmployee)
	require.NoError(t, err)
	assert.Equal(t, Permissions{}, employee.Permissions)

	viewer, err := svc.RoleByType(ctx, org.ID, RoleViewer)
	require.NoError(t, err)
	assert.Equal(t, Permissions{ViewReports: true}, viewer.Permissions)
}

func TestActiveMemberAndPermissions(t *testing.T) {
	st := storetest.New(t)
	svc := NewService(st)
	ctx := context.Background()

	org := newOrg(t, svc, "Members Ltd")
	_, err := svc.CreateDefaultRoles(ctx, org.ID)
	require.NoError(t, err)
	dept, err := svc.CreateDepartment(ctx, Department{OrganizationID: org.ID, Name: "Engineering", BudgetAllocated: 500000})
	require.NoError(t, err)
	assert.Equal(t, "engineering", dept.Slug)

	_, err = svc.CreateDepartment(ctx, Department{OrganizationID: org.ID, Name: "Engineering"})
	assert.ErrorIs(t, err, ErrDepartmentExists)

	viewerRole, err := svc.RoleByType(ctx, org.ID, RoleViewer)
	require.NoError(t, err)

	userID := storetest.CreateUser(t, st, "viewer")
	_, err = svc.ActiveMember(ctx, userID, "")
	assert.ErrorIs(t, err, ErrNoMembership)

	member, err := svc.AddMember(ctx, Member{UserID: userID, OrganizationID: org.ID, RoleID: viewerRole.ID, DepartmentID: dept.ID, EmployeeID: "EMP002"})
	require.NoError(t, err)
	_, err = svc.AddMember(ctx, Member{UserID: userID, OrganizationID: org.ID, RoleID: viewerRole.ID})
	assert.ErrorIs(t, err, ErrAlreadyMember)

	ms, err := svc.ActiveMember(ctx, userID, "")
	require.NoError(t, err)
	assert.Equal(t, org.ID, ms.Organization.ID)
	require.NotNil(t, ms.Role)
	assert.Equal(t, RoleViewer, ms.Role.Type)
	require.NotNil(t, ms.Department)
	assert.Equal(t, "Engineering", ms.Department.Name)
	assert.True(t, ms.IsRole(RoleViewer, RoleAdmin))
	assert.False(t, ms.IsRole(RoleAdmin))

	user := authctx.User{ID: userID}
	ok, err := svc.HasPermission(ctx, user, PermViewReports)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = svc.HasPermission(ctx, user, PermManageFinancial)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.HasPermission(ctx, authctx.User{ID: "nobody", IsSuperuser: true}, PermManageFinancial)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, svc.DeactivateMember(ctx, member.ID, st.Now()))
	_, err = svc.ActiveMember(ctx, userID, "")
	assert.ErrorIs(t, err, ErrNoMembership)

	orgs, err := svc.ListOrganizationsForUser(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, orgs)
}

func TestTeamsAndTeamMembers(t *testing.T) {
	st := storetest.New(t)
	svc := NewService(st)
	ctx := context.Background()

	org := newOrg(t, svc, "Teams Co")
	dept, err := svc.CreateDepartment(ctx, Department{OrganizationID: org.ID, Name: "Engineering"})
	require.NoError(t, err)
	team, err := svc.CreateTeam(ctx, Team{DepartmentID: dept.ID, Name: "Backend Team", ProjectKey: "BACKEND", Budget: 250000})
	require.NoError(t, err)
	assert.Equal(t, "backend-team", team.Slug)

	teams, err := svc.ListTeams(ctx, org.ID)
	require.NoError(t, err)
	require.Len(t, teams, 1)
	assert.Equal(t, int64(250000), teams[0].Budget)

	userID := storetest.CreateUser(t, st, "dev")
	member, err := svc.AddMember(ctx, Member{UserID: userID, OrganizationID: org.ID})
	require.NoError(t, err)

	_, err = svc.AddTeamMember(ctx, member.ID, team.ID, true)
	require.NoError(t, err)
	_, err = svc.AddTeamMember(ctx, member.ID, team.ID, false)
	assert.ErrorIs(t, err, ErrAlreadyMember)

	tms, err := svc.ListTeamMembers(ctx, team.ID)
	require.NoError(t, err)
	require.Len(t, tms, 1)
	assert.True(t, tms[0].IsLead)
}
