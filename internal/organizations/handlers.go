package organizations

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hadibuxm/jadeed/internal/platform/activity"
	"github.com/hadibuxm/jadeed/internal/platform/authctx"
	"github.com/hadibuxm/jadeed/internal/platform/httpx"
	"github.com/hadibuxm/jadeed/internal/platform/store"
)

type handlers struct {
	svc    *Service
	events *activity.Emitter
}

func (h *handlers) routes(r chi.Router) {
	r.Get("/api/organizations", h.listOrganizations)
	r.Group(func(r chi.Router) {
		r.Use(h.svc.RequireMember)
		r.Get("/api/organizations/context", h.context)
		r.Get("/api/organizations/roles", h.listRoles)
		r.Get("/api/organizations/departments", h.listDepartments)
		r.Get("/api/organizations/teams", h.listTeams)
		r.Get("/api/organizations/members", h.listMembers)
		r.With(h.svc.RequirePermission(PermManageDepartments)).Post("/api/organizations/departments", h.createDepartment)
		r.With(h.svc.RequirePermission(PermManageTeams)).Post("/api/organizations/teams", h.createTeam)
		r.With(h.svc.RequirePermission(PermManageTeams)).Post("/api/organizations/teams/{teamID}/members", h.addTeamMember)
		r.With(h.svc.RequirePermission(PermManageUsers)).Post("/api/organizations/members", h.addMember)
	})
}

func (h *handlers) listOrganizations(w http.ResponseWriter, r *http.Request) {
	user := authctx.UserFrom(r.Context())
	orgs, err := h.svc.ListOrganizationsForUser(r.Context(), user.ID)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if orgs == nil {
		orgs = []Organization{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "data": orgs})
}

// ContextSummary is the caller's membership as rendered by the API.
type ContextSummary struct {
	Member       Member       `json:"member"`
	Organization Organization `json:"organization"`
	Role         *Role        `json:"role"`
	Department   *Department  `json:"department"`
}

// Summary renders ms for the API.
func Summary(ms *Membership) ContextSummary {
	return ContextSummary{Member: ms.Member, Organization: ms.Organization, Role: ms.Role, Department: ms.Department}
}

func (h *handlers) context(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "data": Summary(MembershipFrom(r.Context()))})
}

func (h *handlers) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.svc.ListRoles(r.Context(), MembershipFrom(r.Context()).Organization.ID)
	writeList(w, roles, err)
}

func (h *handlers) listDepartments(w http.ResponseWriter, r *http.Request) {
	depts, err := h.svc.ListDepartments(r.Context(), MembershipFrom(r.Context()).Organization.ID)
	writeList(w, depts, err)
}

func (h *handlers) listTeams(w http.ResponseWriter, r *http.Request) {
	teams, err := h.svc.ListTeams(r.Context(), MembershipFrom(r.Context()).Organization.ID)
	writeList(w, teams, err)
}

func (h *handlers) listMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.svc.ListMembers(r.Context(), MembershipFrom(r.Context()).Organization.ID)
	writeList(w, members, err)
}

func writeList[T any](w http.ResponseWriter, items []T, err error) {
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if items == nil {
		items = []T{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "data": items})
}

type departmentRequest struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	ParentID        string `json:"parent_department"`
	HeadID          string `json:"head"`
	BudgetAllocated int64  `json:"budget_allocated"`
}

func (h *handlers) createDepartment(w http.ResponseWriter, r *http.Request) {
	var req departmentRequest
	if !httpx.DecodeOrReject(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		httpx.WriteErrors(w, http.StatusBadRequest, map[string][]string{"name": {httpx.MsgBlank}})
		return
	}
	ms := MembershipFrom(r.Context())
	dept, err := h.svc.CreateDepartment(r.Context(), Department{
		OrganizationID:  ms.Organization.ID,
		Name:            req.Name,
		Description:     req.Description,
		ParentID:        req.ParentID,
		HeadID:          req.HeadID,
		BudgetAllocated: req.BudgetAllocated,
	})
	if errors.Is(err, ErrDepartmentExists) {
		httpx.WriteErrors(w, http.StatusBadRequest, map[string][]string{"name": {"A department with this name already exists."}})
		return
	}
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.events.Emit(r.Context(), EventTypeDepartmentCreated, ms.Organization.ID, map[string]any{"department_id": dept.ID, "name": dept.Name})
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"success": true, "data": dept})
}

type teamRequest struct {
	DepartmentID string `json:"department"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	LeadID       string `json:"lead"`
	ProjectKey   string `json:"project_key"`
	Budget       int64  `json:"budget"`
}

func (h *handlers) createTeam(w http.ResponseWriter, r *http.Request) {
	var req teamRequest
	if !httpx.DecodeOrReject(w, r, &req) {
		return
	}
	verr := httpx.NewValidationError()
	verr.Require(map[string]string{"department": req.DepartmentID})
	if strings.TrimSpace(req.Name) == "" {
		verr.Add("name", httpx.MsgBlank)
	}
	if httpx.WriteValidation(w, verr.Err()) {
		return
	}

	ms := MembershipFrom(r.Context())
	dept, err := h.svc.GetDepartment(r.Context(), req.DepartmentID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && dept.OrganizationID != ms.Organization.ID) {
		httpx.WriteErrors(w, http.StatusBadRequest, map[string][]string{"department": {"Department not found."}})
		return
	}
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	team, err := h.svc.CreateTeam(r.Context(), Team{
		DepartmentID: dept.ID,
		Name:         req.Name,
		Description:  req.Description,
		LeadID:       req.LeadID,
		ProjectKey:   strings.ToUpper(strings.TrimSpace(req.ProjectKey)),
		Budget:       req.Budget,
	})
	if errors.Is(err, ErrTeamExists) {
		httpx.WriteErrors(w, http.StatusBadRequest, map[string][]string{"name": {"A team with this name already exists."}})
		return
	}
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.events.Emit(r.Context(), EventTypeTeamCreated, ms.Organization.ID, map[string]any{"team_id": team.ID, "name": team.Name})
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"success": true, "data": team})
}

type memberRequest struct {
	UserID       string   `json:"user"`
	RoleType     RoleType `json:"role_type"`
	DepartmentID string   `json:"department"`
	EmployeeID   string   `json:"employee_id"`
	JobTitle     string   `json:"job_title"`
	Phone        string   `json:"phone"`
	Salary       int64    `json:"salary"`
}

func (h *handlers) addMember(w http.ResponseWriter, r *http.Request) {
	var req memberRequest
	if !httpx.DecodeOrReject(w, r, &req) {
		return
	}
	verr := httpx.NewValidationError()
	verr.Require(map[string]string{"user": req.UserID, "role_type": string(req.RoleType)})
	if req.RoleType != "" && !req.RoleType.Valid() {
		verr.Add("role_type", ErrInvalidRoleType.Error())
	}
	if httpx.WriteValidation(w, verr.Err()) {
		return
	}

	ms := MembershipFrom(r.Context())
	role, err := h.svc.RoleByType(r.Context(), ms.Organization.ID, req.RoleType)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	member, err := h.svc.AddMember(r.Context(), Member{
		UserID:         req.UserID,
		OrganizationID: ms.Organization.ID,
		DepartmentID:   req.DepartmentID,
		RoleID:         role.ID,
		EmployeeID:     req.EmployeeID,
		JobTitle:       req.JobTitle,
		Phone:          req.Phone,
		Salary:         req.Salary,
	})
	if errors.Is(err, ErrAlreadyMember) {
		httpx.WriteErrors(w, http.StatusBadRequest, map[string][]string{"user": {"This user is already a member of the organization."}})
		return
	}
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.events.Emit(r.Context(), EventTypeMemberAdded, ms.Organization.ID, map[string]any{"member_id": member.ID, "user_id": member.UserID, "role": string(role.Type)})
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"success": true, "data": member})
}

type teamMemberRequest struct {
	MemberID string `json:"member"`
	IsLead   bool   `json:"is_lead"`
}

func (h *handlers) addTeamMember(w http.ResponseWriter, r *http.Request) {
	var req teamMemberRequest
	if !httpx.DecodeOrReject(w, r, &req) {
		return
	}
	if req.MemberID == "" {
		httpx.WriteErrors(w, http.StatusBadRequest, map[string][]string{"member": {httpx.MsgRequired}})
		return
	}
	ms := MembershipFrom(r.Context())
	team, err := h.svc.GetTeam(r.Context(), chi.URLParam(r, "teamID"))
	if errors.Is(err, store.ErrNotFound) {
		httpx.WriteError(w, http.StatusNotFound, "Team not found.")
		return
	}
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	dept, err := h.svc.GetDepartment(r.Context(), team.DepartmentID)
	if err != nil || dept.OrganizationID != ms.Organization.ID {
		httpx.WriteError(w, http.StatusNotFound, "Team not found.")
		return
	}

	member, err := h.svc.GetMember(r.Context(), req.MemberID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && member.OrganizationID != ms.Organization.ID) {
		httpx.WriteErrors(w, http.StatusBadRequest, map[string][]string{"member": {"Member not found."}})
		return
	}
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	tm, err := h.svc.AddTeamMember(r.Context(), member.ID, team.ID, req.IsLead)
	if errors.Is(err, ErrAlreadyMember) {
		httpx.WriteErrors(w, http.StatusBadRequest, map[string][]string{"member": {"This member is already on the team."}})
		return
	}
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"success": true, "data": tm})
}
