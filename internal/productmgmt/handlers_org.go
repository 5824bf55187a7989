package productmgmt

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hadibuxm/jadeed/internal/organizations"
	"github.com/hadibuxm/jadeed/internal/platform/httpx"
)

func (h *handlers) orgRoutes(r chi.Router) {
	r.Get("/api/pm/vision", h.getVision)
	r.Post("/api/pm/vision", h.createVision)
	r.Get("/api/pm/portfolios", h.orgList(h.svc.Portfolios))
	r.Post("/api/pm/portfolios", h.orgCreate(h.svc.CreatePortfolio, "Portfolio created successfully."))
	r.Get("/api/pm/products", h.orgList(h.svc.Products))
	r.Post("/api/pm/products", h.orgCreate(h.svc.CreateProduct, "Product created successfully."))
	r.Get("/api/pm/features", h.orgList(h.svc.Features))
	r.Post("/api/pm/features", h.orgCreate(h.svc.CreateFeature, "Feature created successfully."))
}

var orgFieldErrors = []struct {
	err    error
	status int
	field  string
	msg    string
}{
	{ErrBlankName, http.StatusBadRequest, "name", httpx.MsgBlank},
	{ErrNoVision, http.StatusBadRequest, "vision", "No vision exists for this organization. Create one first."},
	{ErrVisionExists, http.StatusBadRequest, "organization", "This organization already has a vision."},
	{ErrPortfolioNotFound, http.StatusNotFound, "portfolio_id", "Portfolio not found."},
	{ErrPortfolioNotLinked, http.StatusForbidden, "portfolio_id", "This portfolio is not linked to your organization's vision."},
	{ErrProductNotFound, http.StatusNotFound, "product_id", "Product not found."},
	{ErrProductNotLinked, http.StatusForbidden, "product_id", "This product is not linked to your organization's vision."},
	{ErrDuplicatePortfolio, http.StatusBadRequest, "name", "A portfolio with this name already exists in this vision."},
	{ErrDuplicateProduct, http.StatusBadRequest, "name", "A product with this name already exists in this portfolio."},
	{ErrDuplicateFeature, http.StatusBadRequest, "name", "A feature with this name already exists in this product."},
	{ErrRepositoryRequired, http.StatusBadRequest, "github_repository_ids", "Select at least one repository for a product."},
	{ErrInvalidRepositories, http.StatusBadRequest, "github_repository_ids", "One or more repositories are invalid."},
	{ErrFeatureRepository, http.StatusBadRequest, "github_repository_id", "Selected repository is not linked to the parent product."},
}

func writeOrgErr(w http.ResponseWriter, err error) {
	for _, m := range orgFieldErrors {
		if errors.Is(err, m.err) {
			httpx.WriteErrors(w, m.status, map[string][]string{m.field: {m.msg}})
			return
		}
	}
	writeErr(w, err)
}

// orgPayload renders a step the way the organization API lists it.
func orgPayload(st *WorkflowStep, orgID string) map[string]any {
	out := map[string]any{
		"workflow_step_id": st.ID,
		"name":             st.Title,
		"description":      st.Description,
		"reference_id":     st.ReferenceID,
		"status":           st.Status,
		"created_at":       st.CreatedAt,
	}
	switch st.StepType {
	case StepVision:
		out["vision_id"] = st.ID
		out["organization_id"] = orgID
	case StepPortfolio:
		out["portfolio_id"] = st.ID
		out["vision_id"] = st.ParentID
		out["organization_id"] = orgID
	case StepProduct:
		out["product_id"] = st.ID
		out["portfolio_id"] = st.ParentID
		repos := st.Repositories
		if repos == nil {
			repos = []RepoRef{}
		}
		out["github_repositories"] = repos
	case StepFeature:
		out["feature_id"] = st.ID
		out["product_id"] = st.ParentID
		out["priority"] = st.Details.Priority
		out["github_repository"] = st.Repository
	}
	return out
}

func orgID(r *http.Request) string {
	return organizations.MembershipFrom(r.Context()).Organization.ID
}

func (h *handlers) getVision(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.OrgVision(r.Context(), orgID(r))
	if err != nil {
		writeOrgErr(w, err)
		return
	}
	writeData(w, http.StatusOK, orgPayload(v, orgID(r)))
}

func (h *handlers) createVision(w http.ResponseWriter, r *http.Request) {
	h.orgCreate(h.svc.CreateVision, "Vision created successfully.")(w, r)
}

type orgCreateFunc func(ctx context.Context, orgID, userID string, in OrgStepInput) (*WorkflowStep, error)

func (h *handlers) orgCreate(create orgCreateFunc, message string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in OrgStepInput
		if !httpx.DecodeOrReject(w, r, &in) {
			return
		}
		org := orgID(r)
		st, err := create(r.Context(), org, userID(r), in)
		if err != nil {
			writeOrgErr(w, err)
			return
		}
		h.events.Emit(r.Context(), EventTypeStepCreated, st.ID, map[string]any{
			"step_type":       st.StepType,
			"reference_id":    st.ReferenceID,
			"organization_id": org,
		})
		httpx.WriteJSON(w, http.StatusCreated, map[string]any{
			"success": true,
			"message": message,
			"data":    orgPayload(st, org),
		})
	}
}

func (h *handlers) orgList(list func(ctx context.Context, orgID string) ([]*WorkflowStep, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		org := orgID(r)
		steps, err := list(r.Context(), org)
		if err != nil {
			writeOrgErr(w, err)
			return
		}
		out := make([]map[string]any, 0, len(steps))
		for _, st := range steps {
			out = append(out, orgPayload(st, org))
		}
		writeData(w, http.StatusOK, out)
	}
}
