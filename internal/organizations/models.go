// Package organizations is the tenancy model: organizations, their
// departments and teams, roles with permission flags, and memberships.
package organizations

import "time"

// RoleType identifies one of the fixed organization roles.
type RoleType string

const (
	RoleAdmin      RoleType = "ADMIN"
	RoleManager    RoleType = "MANAGER"
	RoleAccountant RoleType = "ACCOUNTANT"
	RoleEmployee   RoleType = "EMPLOYEE"
	RoleViewer     RoleType = "VIEWER"
)

// Label is the human readable role name.
func (r RoleType) Label() string {
	switch r {
	case RoleAdmin:
		return "Administrator"
	case RoleManager:
		return "Manager"
	case RoleAccountant:
		return "Accountant"
	case RoleEmployee:
		return "Employee"
	case RoleViewer:
		return "Viewer"
	}
	return string(r)
}

// Valid reports whether r is a known role type.
func (r RoleType) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleAccountant, RoleEmployee, RoleViewer:
		return true
	}
	return false
}

// Permission names a role flag.
type Permission string

const (
	PermManageUsers       Permission = "can_manage_users"
	PermManageRoles       Permission = "can_manage_roles"
	PermViewAllFinancial  Permission = "can_view_all_financial"
	PermManageFinancial   Permission = "can_manage_financial"
	PermApproveExpenses   Permission = "can_approve_expenses"
	PermManageDepartments Permission = "can_manage_departments"
	PermManageTeams       Permission = "can_manage_teams"
	PermViewReports       Permission = "can_view_reports"
	PermExportData        Permission = "can_export_data"
)

// Permissions is the set of role flags.
type Permissions struct {
	ManageUsers       bool `json:"can_manage_users"`
	ManageRoles       bool `json:"can_manage_roles"`
	ViewAllFinancial  bool `json:"can_view_all_financial"`
	ManageFinancial   bool `json:"can_manage_financial"`
	ApproveExpenses   bool `json:"can_approve_expenses"`
	ManageDepartments bool `json:"can_manage_departments"`
	ManageTeams       bool `json:"can_manage_teams"`
	ViewReports       bool `json:"can_view_reports"`
	ExportData        bool `json:"can_export_data"`
}

// Has reports whether the flag named by p is set.
func (p Permissions) Has(perm Permission) bool {
	switch perm {
	case PermManageUsers:
		return p.ManageUsers
	case PermManageRoles:
		return p.ManageRoles
	case PermViewAllFinancial:
		return p.ViewAllFinancial
	case PermManageFinancial:
		return p.ManageFinancial
	case PermApproveExpenses:
		return p.ApproveExpenses
	case PermManageDepartments:
		return p.ManageDepartments
	case PermManageTeams:
		return p.ManageTeams
	case PermViewReports:
		return p.ViewReports
	case PermExportData:
		return p.ExportData
	}
	return false
}

// Address is an organization's postal address.
type Address struct {
	Line1      string `json:"address_line1"`
	Line2      string `json:"address_line2"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Organization is the top-level tenant.
type Organization struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Slug               string    `json:"slug"`
	Description        string    `json:"description"`
	ParentID           string    `json:"parent_organization,omitempty"`
	Email              string    `json:"email"`
	Phone              string    `json:"phone"`
	Website            string    `json:"website"`
	Address            Address   `json:"address"`
	TaxID              string    `json:"tax_id"`
	RegistrationNumber string    `json:"registration_number"`
	IsActive           bool      `json:"is_active"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Department belongs to an organization.
type Department struct {
	ID              string    `json:"id"`
	OrganizationID  string    `json:"organization"`
	Name            string    `json:"name"`
	Slug            string    `json:"slug"`
	Description     string    `json:"description"`
	ParentID        string    `json:"parent_department,omitempty"`
	HeadID          string    `json:"head,omitempty"`
	BudgetAllocated int64     `json:"budget_allocated"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
}

// Team belongs to a department.
type Team struct {
	ID           string    `json:"id"`
	DepartmentID string    `json:"department"`
	Name         string    `json:"name"`
	Slug         string    `json:"slug"`
	Description  string    `json:"description"`
	LeadID       string    `json:"lead,omitempty"`
	ProjectKey   string    `json:"project_key"`
	Budget       int64     `json:"budget"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// Role grants a set of permissions inside one organization.
type Role struct {
	ID             string      `json:"id"`
	OrganizationID string      `json:"organization"`
	Name           string      `json:"name"`
	Type           RoleType    `json:"role_type"`
	Description    string      `json:"description"`
	Permissions    Permissions `json:"permissions"`
}

// Member links a user to an organization.
type Member struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user"`
	OrganizationID string     `json:"organization"`
	DepartmentID   string     `json:"department,omitempty"`
	RoleID         string     `json:"role,omitempty"`
	EmployeeID     string     `json:"employee_id"`
	JobTitle       string     `json:"job_title"`
	Phone          string     `json:"phone"`
	Salary         int64      `json:"salary"`
	DateJoined     time.Time  `json:"date_joined"`
	DateLeft       *time.Time `json:"date_left,omitempty"`
	IsActive       bool       `json:"is_active"`
}

// TeamMember links a member to a team.
type TeamMember struct {
	ID       string     `json:"id"`
	MemberID string     `json:"member"`
	TeamID   string     `json:"team"`
	IsLead   bool       `json:"is_lead"`
	JoinedAt time.Time  `json:"joined_at"`
	LeftAt   *time.Time `json:"left_at,omitempty"`
	IsActive bool       `json:"is_active"`
}

// Membership is a member together with its organization, role and department.
type Membership struct {
	Member       Member
	Organization Organization
	Role         *Role
	Department   *Department
}

// Has reports whether the membership's role grants perm.
func (m *Membership) Has(perm Permission) bool {
	return m != nil && m.Role != nil && m.Role.Permissions.Has(perm)
}

// HasAny reports whether the membership's role grants any of perms.
func (m *Membership) HasAny(perms ...Permission) bool {
	for _, p := range perms {
		if m.Has(p) {
			return true
		}
	}
	return false
}

// IsRole reports whether the membership's role is one of types.
func (m *Membership) IsRole(types ...RoleType) bool {
	if m == nil || m.Role == nil {
		return false
	}
	for _, t := range types {
		if m.Role.Type == t {
			return true
		}
	}
	return false
}
