package organizations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hadibuxm/jadeed/internal/platform/authctx"
	"github.com/hadibuxm/jadeed/internal/platform/store"
)

var (
	ErrOrganizationExists = errors.New("an organization with this name already exists")
	ErrNameRequired       = errors.New("name is required")
	ErrNoMembership       = errors.New("no active organization membership found")
	ErrInvalidRoleType    = errors.New("invalid role type")
	ErrDepartmentExists   = errors.New("a department with this name already exists")
	ErrTeamExists         = errors.New("a team with this name already exists")
	ErrAlreadyMember      = errors.New("user is already a member of this organization")
)

// Service is the organizations data layer.
type Service struct {
	store *store.Store
}

// NewService creates a service over st.
func NewService(st *store.Store) *Service {
	return &Service{store: st}
}

// Store returns the underlying store.
func (s *Service) Store() *store.Store {
	return s.store
}

const orgColumns = `id, name, slug, description, parent_id, email, phone, website,
	address_line1, address_line2, city, state, postal_code, country,
	tax_id, registration_number, is_active, created_at, updated_at`

// qualify prefixes every column in a comma separated list with alias.
func qualify(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func scanOrganization(row store.Scanner) (*Organization, error) {
	var o Organization
	var parent sql.NullString
	err := row.Scan(&o.ID, &o.Name, &o.Slug, &o.Description, &parent, &o.Email, &o.Phone, &o.Website,
		&o.Address.Line1, &o.Address.Line2, &o.Address.City, &o.Address.State, &o.Address.PostalCode, &o.Address.Country,
		&o.TaxID, &o.RegistrationNumber, &o.IsActive, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.ParentID = parent.String
	return &o, nil
}

// OrganizationExists reports whether an organization with name exists,
// ignoring case.
func (s *Service) OrganizationExists(ctx context.Context, name string) (bool, error) {
	var n int
	err := s.store.Q(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM organizations WHERE LOWER(name) = LOWER($1)`, strings.TrimSpace(name)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check organization name: %w", err)
	}
	return n > 0, nil
}

// CreateOrganization inserts org. The slug is derived from the name when
// empty.
func (s *Service) CreateOrganization(ctx context.Context, org Organization) (*Organization, error) {
	org.Name = strings.TrimSpace(org.Name)
	if org.Name == "" {
		return nil, ErrNameRequired
	}
	exists, err := s.OrganizationExists(ctx, org.Name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrOrganizationExists
	}
	if org.Slug == "" {
		org.Slug = Slugify(org.Name)
	}

	now := s.store.Now()
	org.ID = store.NewID()
	org.IsActive = true
	org.CreatedAt, org.UpdatedAt = now, now
	_, err = s.store.Q(ctx).ExecContext(ctx, `INSERT INTO organizations (`+orgColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		org.ID, org.Name, org.Slug, org.Description, store.NullString(org.ParentID), org.Email, org.Phone, org.Website,
		org.Address.Line1, org.Address.Line2, org.Address.City, org.Address.State, org.Address.PostalCode, org.Address.Country,
		org.TaxID, org.RegistrationNumber, org.IsActive, org.CreatedAt, org.UpdatedAt)
	if store.IsUniqueViolation(err) {
		return nil, ErrOrganizationExists
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create organization: %w", err)
	}
	return &org, nil
}

// GetOrganization loads one organization by id.
func (s *Service) GetOrganization(ctx context.Context, id string) (*Organization, error) {
	org, err := scanOrganization(s.store.Q(ctx).QueryRowContext(ctx,
		`SELECT `+orgColumns+` FROM organizations WHERE id = $1`, id))
	if err != nil {
		return nil, store.NotFound(err, "organization")
	}
	return org, nil
}

// GetOrganizationBySlug loads one organization by slug.
func (s *Service) GetOrganizationBySlug(ctx context.Context, slug string) (*Organization, error) {
	org, err := scanOrganization(s.store.Q(ctx).QueryRowContext(ctx,
		`SELECT `+orgColumns+` FROM organizations WHERE slug = $1`, slug))
	if err != nil {
		return nil, store.NotFound(err, "organization")
	}
	return org, nil
}

// GetOrganizationByName loads one organization by name, ignoring case.
func (s *Service) GetOrganizationByName(ctx context.Context, name string) (*Organization, error) {
	org, err := scanOrganization(s.store.Q(ctx).QueryRowContext(ctx,
		`SELECT `+orgColumns+` FROM organizations WHERE LOWER(name) = LOWER($1)`, strings.TrimSpace(name)))
	if err != nil {
		return nil, store.NotFound(err, "organization")
	}
	return org, nil
}

func (s *Service) listOrganizations(ctx context.Context, query string, args ...any) ([]Organization, error) {
	rows, err := s.store.Q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	var orgs []Organization
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		orgs = append(orgs, *org)
	}
	return orgs, rows.Err()
}

// ListOrganizationsForUser returns the organizations userID is an active
// member of.
func (s *Service) ListOrganizationsForUser(ctx context.Context, userID string) ([]Organization, error) {
	return s.listOrganizations(ctx, `SELECT `+qualify("o", orgColumns)+`
		FROM organizations o JOIN members m ON m.organization_id = o.id
		WHERE m.user_id = $1 AND m.is_active = TRUE
		ORDER BY o.name`, userID)
}

// ListActiveOrganizations returns every active organization.
func (s *Service) ListActiveOrganizations(ctx context.Context) ([]Organization, error) {
	return s.listOrganizations(ctx, `SELECT `+orgColumns+` FROM organizations WHERE is_active = TRUE ORDER BY name`)
}

const roleColumns = `id, organization_id, name, role_type, description,
	can_manage_users, can_manage_roles, can_view_all_financial, can_manage_financial,
	can_approve_expenses, can_manage_departments, can_manage_teams, can_view_reports, can_export_data`

func scanRole(row store.Scanner) (*Role, error) {
	var r Role
	p := &r.Permissions
	err := row.Scan(&r.ID, &r.OrganizationID, &r.Name, &r.Type, &r.Description,
		&p.ManageUsers, &p.ManageRoles, &p.ViewAllFinancial, &p.ManageFinancial,
		&p.ApproveExpenses, &p.ManageDepartments, &p.ManageTeams, &p.ViewReports, &p.ExportData)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// RoleByType loads the role of the given type in orgID.
func (s *Service) RoleByType(ctx context.Context, orgID string, t RoleType) (*Role, error) {
	role, err := scanRole(s.store.Q(ctx).QueryRowContext(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE organization_id = $1 AND role_type = $2`, orgID, string(t)))
	if err != nil {
		return nil, store.NotFound(err, "role")
	}
	return role, nil
}

// GetRole loads one role by id.
func (s *Service) GetRole(ctx context.Context, id string) (*Role, error) {
	role, err := scanRole(s.store.Q(ctx).QueryRowContext(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id))
	if err != nil {
		return nil, store.NotFound(err, "role")
	}
	return role, nil
}

// CreateDefaultRoles makes sure orgID has one role of every type. Existing
// roles are left untouched.
func (s *Service) CreateDefaultRoles(ctx context.Context, orgID string) ([]Role, error) {
	roles := make([]Role, 0, len(defaultRoles))
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		for _, def := range defaultRoles {
			existing, err := s.RoleByType(ctx, orgID, def.Type)
			if err == nil {
				roles = append(roles, *existing)
				continue
			}
			if !errors.Is(err, store.ErrNotFound) {
				return err
			}

			role := Role{
				ID:             store.NewID(),
				OrganizationID: orgID,
				Name:           def.Type.Label(),
				Type:           def.Type,
				Description:    def.Description,
				Permissions:    def.Permissions,
			}
			p := role.Permissions
			_, err = s.store.Q(ctx).ExecContext(ctx, `INSERT INTO roles (`+roleColumns+`, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
				role.ID, role.OrganizationID, role.Name, string(role.Type), role.Description,
				p.ManageUsers, p.ManageRoles, p.ViewAllFinancial, p.ManageFinancial,
				p.ApproveExpenses, p.ManageDepartments, p.ManageTeams, p.ViewReports, p.ExportData,
				s.store.Now())
			if err != nil {
				return fmt.Errorf("failed to create %s role: %w", def.Type, err)
			}
			roles = append(roles, role)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return roles, nil
}

// ListRoles returns the roles of orgID.
func (s *Service) ListRoles(ctx context.Context, orgID string) ([]Role, error) {
	rows, err := s.store.Q(ctx).QueryContext(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE organization_id = $1 ORDER BY name`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, *role)
	}
	return roles, rows.Err()
}

const deptColumns = `id, organization_id, name, slug, description, parent_id, head_id, budget_allocated, is_active, created_at`

func scanDepartment(row store.Scanner) (*Department, error) {
	var d Department
	var parent, head sql.NullString
	if err := row.Scan(&d.ID, &d.OrganizationID, &d.Name, &d.Slug, &d.Description, &parent, &head,
		&d.BudgetAllocated, &d.IsActive, &d.CreatedAt); err != nil {
		return nil, err
	}
	d.ParentID, d.HeadID = parent.String, head.String
	return &d, nil
}

// CreateDepartment inserts dept. The slug is derived from the name when empty.
func (s *Service) CreateDepartment(ctx context.Context, dept Department) (*Department, error) {
	dept.Name = strings.TrimSpace(dept.Name)
	if dept.Name == "" {
		return nil, ErrNameRequired
	}
	if dept.Slug == "" {
		dept.Slug = Slugify(dept.Name)
	}
	now := s.store.Now()
	dept.ID = store.NewID()
	dept.IsActive = true
	dept.CreatedAt = now
	_, err := s.store.Q(ctx).ExecContext(ctx, `INSERT INTO departments (`+deptColumns+`, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		dept.ID, dept.OrganizationID, dept.Name, dept.Slug, dept.Description,
		store.NullString(dept.ParentID), store.NullString(dept.HeadID), dept.BudgetAllocated, dept.IsActive, now, now)
	if store.IsUniqueViolation(err) {
		return nil, ErrDepartmentExists
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create department: %w", err)
	}
	return &dept, nil
}

// GetDepartment loads one department by id.
func (s *Service) GetDepartment(ctx context.Context, id string) (*Department, error) {
	d, err := scanDepartment(s.store.Q(ctx).QueryRowContext(ctx, `SELECT `+deptColumns+` FROM departments WHERE id = $1`, id))
	if err != nil {
		return nil, store.NotFound(err, "department")
	}
	return d, nil
}

// ListDepartments returns the departments of orgID.
func (s *Service) ListDepartments(ctx context.Context, orgID string) ([]Department, error) {
	rows, err := s.store.Q(ctx).QueryContext(ctx,
		`SELECT `+deptColumns+` FROM departments WHERE organization_id = $1 ORDER BY name`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list departments: %w", err)
	}
	defer rows.Close()

	var out []Department
	for rows.Next() {
		d, err := scanDepartment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan department: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

const teamColumns = `t.id, t.department_id, t.name, t.slug, t.description, t.lead_id, t.project_key, t.budget, t.is_active, t.created_at`

func scanTeam(row store.Scanner) (*Team, error) {
	var t Team
	var lead sql.NullString
	if err := row.Scan(&t.ID, &t.DepartmentID, &t.Name, &t.Slug, &t.Description, &lead,
		&t.ProjectKey, &t.Budget, &t.IsActive, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.LeadID = lead.String
	return &t, nil
}

// CreateTeam inserts team under its department.
func (s *Service) CreateTeam(ctx context.Context, team Team) (*Team, error) {
	team.Name = strings.TrimSpace(team.Name)
	if team.Name == "" {
		return nil, ErrNameRequired
	}
	if team.Slug == "" {
		team.Slug = Slugify(team.Name)
	}
	now := s.store.Now()
	team.ID = store.NewID()
	team.IsActive = true
	team.CreatedAt = now
	_, err := s.store.Q(ctx).ExecContext(ctx, `INSERT INTO teams
		(id, department_id, name, slug, description, lead_id, project_key, budget, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		team.ID, team.DepartmentID, team.Name, team.Slug, team.Description, store.NullString(team.LeadID),
		team.ProjectKey, team.Budget, team.IsActive, now, now)
	if store.IsUniqueViolation(err) {
		return nil, ErrTeamExists
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create team: %w", err)
	}
	return &team, nil
}

// GetTeam loads one team by id.
func (s *Service) GetTeam(ctx context.Context, id string) (*Team, error) {
	t, err := scanTeam(s.store.Q(ctx).QueryRowContext(ctx, `SELECT `+teamColumns+` FROM teams t WHERE t.id = $1`, id))
	if err != nil {
		return nil, store.NotFound(err, "team")
	}
	return t, nil
}

// ListTeams returns every team in orgID's departments.
func (s *Service) ListTeams(ctx context.Context, orgID string) ([]Team, error) {
	rows, err := s.store.Q(ctx).QueryContext(ctx, `SELECT `+teamColumns+`
		FROM teams t JOIN departments d ON d.id = t.department_id
		WHERE d.organization_id = $1 ORDER BY t.name`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	defer rows.Close()

	var out []Team
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan team: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

const memberColumns = `m.id, m.user_id, m.organization_id, m.department_id, m.role_id, m.employee_id,
	m.job_title, m.phone, m.salary, m.date_joined, m.date_left, m.is_active`

func scanMember(row store.Scanner) (*Member, error) {
	var m Member
	var dept, role sql.NullString
	var left sql.NullTime
	if err := row.Scan(&m.ID, &m.UserID, &m.OrganizationID, &dept, &role, &m.EmployeeID,
		&m.JobTitle, &m.Phone, &m.Salary, &m.DateJoined, &left, &m.IsActive); err != nil {
		return nil, err
	}
	m.DepartmentID, m.RoleID = dept.String, role.String
	m.DateLeft = store.TimePtr(left)
	return &m, nil
}

// AddMember inserts member as an active membership.
func (s *Service) AddMember(ctx context.Context, member Member) (*Member, error) {
	now := s.store.Now()
	member.ID = store.NewID()
	member.IsActive = true
	if member.DateJoined.IsZero() {
		member.DateJoined = now
	}
	_, err := s.store.Q(ctx).ExecContext(ctx, `INSERT INTO members
		(id, user_id, organization_id, department_id, role_id, employee_id, job_title, phone, salary, date_joined, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		member.ID, member.UserID, member.OrganizationID, store.NullString(member.DepartmentID), store.NullString(member.RoleID),
		member.EmployeeID, member.JobTitle, member.Phone, member.Salary, member.DateJoined, member.IsActive, now)
	if store.IsUniqueViolation(err) {
		return nil, ErrAlreadyMember
	}
	if err != nil {
		return nil, fmt.Errorf("failed to add member: %w", err)
	}
	return &member, nil
}

// GetMember loads one member by id.
func (s *Service) GetMember(ctx context.Context, id string) (*Member, error) {
	m, err := scanMember(s.store.Q(ctx).QueryRowContext(ctx, `SELECT `+memberColumns+` FROM members m WHERE m.id = $1`, id))
	if err != nil {
		return nil, store.NotFound(err, "member")
	}
	return m, nil
}

// ListMembers returns every member of orgID.
func (s *Service) ListMembers(ctx context.Context, orgID string) ([]Member, error) {
	rows, err := s.store.Q(ctx).QueryContext(ctx,
		`SELECT `+memberColumns+` FROM members m WHERE m.organization_id = $1 ORDER BY m.employee_id, m.date_joined`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var out []Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// DeactivateMember marks a membership as left.
func (s *Service) DeactivateMember(ctx context.Context, memberID string, left time.Time) error {
	res, err := s.store.Q(ctx).ExecContext(ctx,
		`UPDATE members SET is_active = FALSE, date_left = $1 WHERE id = $2`, left, memberID)
	if err != nil {
		return fmt.Errorf("failed to deactivate member: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("member: %w", store.ErrNotFound)
	}
	return nil
}

// AddTeamMember puts memberID on teamID.
func (s *Service) AddTeamMember(ctx context.Context, memberID, teamID string, lead bool) (*TeamMember, error) {
	tm := TeamMember{
		ID:       store.NewID(),
		MemberID: memberID,
		TeamID:   teamID,
		IsLead:   lead,
		JoinedAt: s.store.Now(),
		IsActive: true,
	}
	_, err := s.store.Q(ctx).ExecContext(ctx, `INSERT INTO team_members (id, member_id, team_id, is_lead, joined_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)`, tm.ID, tm.MemberID, tm.TeamID, tm.IsLead, tm.JoinedAt, tm.IsActive)
	if store.IsUniqueViolation(err) {
		return nil, ErrAlreadyMember
	}
	if err != nil {
		return nil, fmt.Errorf("failed to add team member: %w", err)
	}
	return &tm, nil
}

// ListTeamMembers returns the active members of teamID.
func (s *Service) ListTeamMembers(ctx context.Context, teamID string) ([]TeamMember, error) {
	rows, err := s.store.Q(ctx).QueryContext(ctx, `SELECT id, member_id, team_id, is_lead, joined_at, left_at, is_active
		FROM team_members WHERE team_id = $1 AND is_active = TRUE ORDER BY joined_at`, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list team members: %w", err)
	}
	defer rows.Close()

	var out []TeamMember
	for rows.Next() {
		var tm TeamMember
		var left sql.NullTime
		if err := rows.Scan(&tm.ID, &tm.MemberID, &tm.TeamID, &tm.IsLead, &tm.JoinedAt, &left, &tm.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan team member: %w", err)
		}
		tm.LeftAt = store.TimePtr(left)
		out = append(out, tm)
	}
	return out, rows.Err()
}

// ActiveMember returns the first active membership of userID. When orgID is
// set only that organization is considered.
func (s *Service) ActiveMember(ctx context.Context, userID, orgID string) (*Membership, error) {
	query := `SELECT ` + memberColumns + ` FROM members m
		JOIN organizations o ON o.id = m.organization_id
		WHERE m.user_id = $1 AND m.is_active = TRUE AND o.is_active = TRUE`
	args := []any{userID}
	if orgID != "" {
		query += ` AND m.organization_id = $2`
		args = append(args, orgID)
	}
	query += ` ORDER BY m.date_joined LIMIT 1`

	member, err := scanMember(s.store.Q(ctx).QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoMembership
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load membership: %w", err)
	}
	return s.expand(ctx, member)
}

func (s *Service) expand(ctx context.Context, member *Member) (*Membership, error) {
	org, err := s.GetOrganization(ctx, member.OrganizationID)
	if err != nil {
		return nil, err
	}
	ms := &Membership{Member: *member, Organization: *org}
	if member.RoleID != "" {
		if ms.Role, err = s.GetRole(ctx, member.RoleID); err != nil {
			return nil, err
		}
	}
	if member.DepartmentID != "" {
		if ms.Department, err = s.GetDepartment(ctx, member.DepartmentID); err != nil {
			return nil, err
		}
	}
	return ms, nil
}

// HasPermission reports whether user may exercise perm in their active
// organization. Superusers always may.
func (s *Service) HasPermission(ctx context.Context, user authctx.User, perm Permission) (bool, error) {
	if user.IsSuperuser {
		return true, nil
	}
	ms, err := s.ActiveMember(ctx, user.ID, "")
	if errors.Is(err, ErrNoMembership) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return ms.Has(perm), nil
}
