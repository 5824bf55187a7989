package productmgmt

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hadibuxm/jadeed/internal/organizations"
	"github.com/hadibuxm/jadeed/internal/platform/store/storetest"
)

type orgFixture struct {
	*fixture
	orgs *organizations.Service
	org  *organizations.Organization
	// member of org
	carol string
}

func newOrgFixture(t *testing.T) *orgFixture {
	t.Helper()
	ctx := context.Background()
	f := newFixture(t)
	orgs := organizations.NewService(f.st)
	org, err := orgs.CreateOrganization(ctx, organizations.Organization{Name: "Acme"})
	require.NoError(t, err)
	_, err = orgs.CreateDefaultRoles(ctx, org.ID)
	require.NoError(t, err)
	dept, err := orgs.CreateDepartment(ctx, organizations.Department{OrganizationID: org.ID, Name: "Product"})
	require.NoError(t, err)
	role, err := orgs.RoleByType(ctx, org.ID, organizations.RoleEmployee)
	require.NoError(t, err)

	carol := storetest.CreateUser(t, f.st, "carol")
	_, err = orgs.AddMember(ctx, organizations.Member{UserID: carol, OrganizationID: org.ID, DepartmentID: dept.ID, RoleID: role.ID})
	require.NoError(t, err)
	return &orgFixture{fixture: f, orgs: orgs, org: org, carol: carol}
}

func TestOrgHierarchy(t *testing.T) {
	f := newOrgFixture(t)
	ctx := context.Background()

	_, err := f.svc.OrgVision(ctx, f.org.ID)
	assert.ErrorIs(t, err, ErrNoVision)
	_, err = f.svc.CreatePortfolio(ctx, f.org.ID, f.carol, OrgStepInput{Name: "Consumer"})
	assert.ErrorIs(t, err, ErrNoVision)
	_, err = f.svc.CreateVision(ctx, f.org.ID, f.carol, OrgStepInput{Name: "  "})
	assert.ErrorIs(t, err, ErrBlankName)

	vision, err := f.svc.CreateVision(ctx, f.org.ID, f.carol, OrgStepInput{Name: "Acme Vision", Description: "Everything"})
	require.NoError(t, err)
	assert.Equal(t, "AVI-0001", vision.ReferenceID)
	assert.Equal(t, f.org.ID, vision.OrganizationID)
	_, err = f.svc.CreateVision(ctx, f.org.ID, f.carol, OrgStepInput{Name: "Another"})
	assert.ErrorIs(t, err, ErrVisionExists)

	portfolio, err := f.svc.CreatePortfolio(ctx, f.org.ID, f.carol, OrgStepInput{Name: "Consumer"})
	require.NoError(t, err)
	assert.Equal(t, vision.ID, portfolio.ParentID)
	assert.Equal(t, "AVI-0002", portfolio.ReferenceID)
	_, err = f.svc.CreatePortfolio(ctx, f.org.ID, f.carol, OrgStepInput{Name: "consumer"})
	assert.ErrorIs(t, err, ErrDuplicatePortfolio)

	_, err = f.svc.CreateProduct(ctx, f.org.ID, f.carol, OrgStepInput{Name: "Wallet", PortfolioID: vision.ID})
	assert.ErrorIs(t, err, ErrPortfolioNotFound)
	_, err = f.svc.CreateProduct(ctx, f.org.ID, f.carol, OrgStepInput{Name: "Wallet", PortfolioID: portfolio.ID})
	assert.ErrorIs(t, err, ErrRepositoryRequired)

	repo := f.repository(t, f.carol, "wallet")
	product, err := f.svc.CreateProduct(ctx, f.org.ID, f.carol, OrgStepInput{
		Name: "Wallet", PortfolioID: portfolio.ID, RepositoryIDs: []string{repo},
	})
	require.NoError(t, err)
	require.Len(t, product.Repositories, 1)

	feature, err := f.svc.CreateFeature(ctx, f.org.ID, f.carol, OrgStepInput{
		Name: "Tap to pay", ProductID: product.ID, RepositoryID: repo, Priority: PriorityHigh,
	})
	require.NoError(t, err)
	assert.Equal(t, PriorityHigh, feature.Details.Priority)
	require.NotNil(t, feature.Repository)
	_, err = f.svc.CreateFeature(ctx, f.org.ID, f.carol, OrgStepInput{Name: "TAP TO PAY", ProductID: product.ID})
	assert.ErrorIs(t, err, ErrDuplicateFeature)

	portfolios, err := f.svc.Portfolios(ctx, f.org.ID)
	require.NoError(t, err)
	require.Len(t, portfolios, 1)
	products, err := f.svc.Products(ctx, f.org.ID)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Len(t, products[0].Repositories, 1)
	features, err := f.svc.Features(ctx, f.org.ID)
	require.NoError(t, err)
	require.Len(t, features, 1)
	assert.Equal(t, "Tap to pay", features[0].Title)
}

func TestOrgHierarchy_RejectsForeignSteps(t *testing.T) {
	f := newOrgFixture(t)
	ctx := context.Background()
	_, err := f.svc.CreateVision(ctx, f.org.ID, f.carol, OrgStepInput{Name: "Acme Vision"})
	require.NoError(t, err)

	other, err := f.orgs.CreateOrganization(ctx, organizations.Organization{Name: "Globex"})
	require.NoError(t, err)
	_, err = f.svc.CreateVision(ctx, other.ID, f.alice, OrgStepInput{Name: "Globex Vision"})
	require.NoError(t, err)
	foreign, err := f.svc.CreatePortfolio(ctx, other.ID, f.alice, OrgStepInput{Name: "Enterprise"})
	require.NoError(t, err)

	_, err = f.svc.CreateProduct(ctx, f.org.ID, f.carol, OrgStepInput{Name: "Stolen", PortfolioID: foreign.ID})
	assert.ErrorIs(t, err, ErrPortfolioNotLinked)

	products, err := f.svc.Products(ctx, f.org.ID)
	require.NoError(t, err)
	assert.Empty(t, products)
}

func TestOrgAPI(t *testing.T) {
	f := newOrgFixture(t)
	h := newRouter(f.svc, f.orgs)

	code, body := serve(t, h, http.MethodGet, "/api/pm/vision", f.alice, nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, organizations.MsgNoMembership, body["error"])

	code, body = serve(t, h, http.MethodGet, "/api/pm/vision", f.carol, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, map[string]any{"vision": []any{"No vision exists for this organization. Create one first."}}, body["errors"])

	code, body = serve(t, h, http.MethodPost, "/api/pm/vision", f.carol, map[string]any{"name": "Acme Vision"})
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, "Vision created successfully.", body["message"])
	visionID := data(body)["vision_id"].(string)
	assert.Equal(t, f.org.ID, data(body)["organization_id"])

	code, body = serve(t, h, http.MethodPost, "/api/pm/portfolios", f.carol, map[string]any{"name": ""})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body["errors"], "name")

	code, body = serve(t, h, http.MethodPost, "/api/pm/portfolios", f.carol, map[string]any{"name": "Consumer"})
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, visionID, data(body)["vision_id"])
	portfolioID := data(body)["portfolio_id"].(string)

	code, body = serve(t, h, http.MethodPost, "/api/pm/products", f.carol, map[string]any{"name": "Wallet", "portfolio_id": "missing"})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, map[string]any{"portfolio_id": []any{"Portfolio not found."}}, body["errors"])

	repo := f.repository(t, f.carol, "wallet")
	code, body = serve(t, h, http.MethodPost, "/api/pm/products", f.carol, map[string]any{
		"name": "Wallet", "portfolio_id": portfolioID, "github_repository_ids": []string{repo},
	})
	require.Equal(t, http.StatusCreated, code, body)
	assert.Len(t, data(body)["github_repositories"], 1)

	code, body = serve(t, h, http.MethodGet, "/api/pm/portfolios", f.carol, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["data"], 1)
	code, body = serve(t, h, http.MethodGet, "/api/pm/features", f.carol, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["data"])
}
