package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/hadibuxm/jadeed/internal/accounting"
	"github.com/hadibuxm/jadeed/internal/accounts"
	"github.com/hadibuxm/jadeed/internal/organizations"
	"github.com/hadibuxm/jadeed/internal/platform/activity"
	"github.com/hadibuxm/jadeed/internal/platform/store"
)

var (
	errDemoOrgExists = errors.New("organization already exists")
	errAdminNotFound = errors.New("admin user does not exist")
)

// cents per currency unit
const unit = 100

type demoDepartment struct {
	name, description string
	budget            int64
}

var demoDepartments = []demoDepartment{
	{"Engineering", "Software development and technology", 500_000 * unit},
	{"Product", "Product management and design", 200_000 * unit},
	{"Finance", "Financial operations and accounting", 150_000 * unit},
}

var demoTeams = []organizations.Team{
	{Name: "Backend Team", Description: "Backend API development", ProjectKey: "BACKEND", Budget: 250_000 * unit},
	{Name: "Frontend Team", Description: "Frontend UI development", ProjectKey: "FRONTEND", Budget: 250_000 * unit},
}

// demoSummary counts what seedDemoOrganization created.
type demoSummary struct {
	Organization *organizations.Organization
	Departments  int
	Teams        int
	Roles        int
	Accounts     int
	Budgets      int
}

func newCreateDemoOrgCmd(opts *rootOptions) *cobra.Command {
	var orgName, adminUsername string
	cmd := &cobra.Command{
		Use:   "create-demo-org",
		Short: "Create a demo organization with departments, teams, roles and accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := opts.application(cmd.ErrOrStderr(), append(coreModules(), activity.NewModule()))
			if err != nil {
				return err
			}
			if err := app.Init(); err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			defer func() { _ = app.Stop() }()

			var st *store.Store
			if err := app.GetService(store.ServiceName, &st); err != nil {
				return fmt.Errorf("failed to get store service: %w", err)
			}

			out := cmd.OutOrStdout()
			events := activity.NewEmitter(app, organizations.ModuleName)
			summary, err := seedDemoOrganization(cmd.Context(), st, events, orgName, adminUsername)
			if errors.Is(err, errDemoOrgExists) {
				fmt.Fprintf(out, "Organization %q already exists\n", orgName)
				return nil
			}
			if errors.Is(err, errAdminNotFound) {
				return fmt.Errorf("user %q does not exist, create it first or pass --admin-username: %w", adminUsername, err)
			}
			if err != nil {
				return err
			}
			printDemoSummary(out, summary, adminUsername)
			return nil
		},
	}
	cmd.Flags().StringVar(&orgName, "org-name", "Demo Tech Company", "Name of the organization to create")
	cmd.Flags().StringVar(&adminUsername, "admin-username", "admin", "Username of the user to make admin")
	return cmd
}

// seedDemoOrganization creates the demo organization in one transaction and
// announces it like a signup does, so the server registers it as a tenant.
func seedDemoOrganization(ctx context.Context, st *store.Store, events *activity.Emitter, orgName, adminUsername string) (*demoSummary, error) {
	orgs := organizations.NewService(st)
	ledger := accounting.NewService(st)
	users := accounts.NewUsers(st, 0)

	exists, err := orgs.OrganizationExists(ctx, orgName)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, errDemoOrgExists
	}
	admin, err := users.GetByUsername(ctx, adminUsername)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errAdminNotFound
	}
	if err != nil {
		return nil, err
	}

	summary := &demoSummary{}
	err = st.WithTx(ctx, func(ctx context.Context) error {
		slug := organizations.Slugify(orgName)
		org, err := orgs.CreateOrganization(ctx, organizations.Organization{
			Name:        orgName,
			Slug:        slug,
			Description: "Demo organization for testing the accounting system",
			Email:       "info@" + slug + ".com",
			Phone:       "+1-555-0100",
			Address: organizations.Address{
				Line1:      "123 Tech Street",
				City:       "San Francisco",
				State:      "CA",
				PostalCode: "94105",
				Country:    "USA",
			},
			TaxID: "12-3456789",
		})
		if err != nil {
			return err
		}
		summary.Organization = org

		roles, err := orgs.CreateDefaultRoles(ctx, org.ID)
		if err != nil {
			return err
		}
		summary.Roles = len(roles)

		depts := make([]*organizations.Department, 0, len(demoDepartments))
		for _, d := range demoDepartments {
			dept := organizations.Department{
				OrganizationID:  org.ID,
				Name:            d.name,
				Description:     d.description,
				BudgetAllocated: d.budget,
			}
			if d.name == "Engineering" {
				dept.HeadID = admin.ID
			}
			created, err := orgs.CreateDepartment(ctx, dept)
			if err != nil {
				return err
			}
			depts = append(depts, created)
		}
		summary.Departments = len(depts)
		engineering := depts[0]

		var backend *organizations.Team
		for _, t := range demoTeams {
			t.DepartmentID = engineering.ID
			if t.ProjectKey == "BACKEND" {
				t.LeadID = admin.ID
			}
			created, err := orgs.CreateTeam(ctx, t)
			if err != nil {
				return err
			}
			if backend == nil {
				backend = created
			}
			summary.Teams++
		}

		adminRole, err := orgs.RoleByType(ctx, org.ID, organizations.RoleAdmin)
		if err != nil {
			return err
		}
		member, err := orgs.AddMember(ctx, organizations.Member{
			UserID:         admin.ID,
			OrganizationID: org.ID,
			DepartmentID:   engineering.ID,
			RoleID:         adminRole.ID,
			EmployeeID:     "EMP001",
			JobTitle:       "CTO",
			Salary:         150_000 * unit,
		})
		if err != nil {
			return err
		}
		if _, err := orgs.AddTeamMember(ctx, member.ID, backend.ID, true); err != nil {
			return err
		}

		if summary.Accounts, err = ledger.EnsureDefaultChart(ctx, org.ID); err != nil {
			return err
		}

		year := st.Now().Year()
		for _, dept := range depts {
			_, err := ledger.CreateBudget(ctx, accounting.Budget{
				OrganizationID: org.ID,
				DepartmentID:   dept.ID,
				Name:           fmt.Sprintf("%s %d Budget", dept.Name, year),
				Period:         accounting.PeriodAnnual,
				StartDate:      time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
				EndDate:        time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC),
				TotalBudget:    dept.BudgetAllocated,
			})
			if err != nil {
				return err
			}
			summary.Budgets++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create demo organization: %w", err)
	}
	org := summary.Organization
	events.Emit(ctx, organizations.EventTypeOrganizationCreated, org.ID,
		map[string]any{"name": org.Name, "slug": org.Slug, "owner": admin.ID})
	return summary, nil
}

func printDemoSummary(w io.Writer, s *demoSummary, adminUsername string) {
	fmt.Fprintf(w, "Demo organization created successfully!\n\n")
	fmt.Fprintf(w, "Organization: %s\n", s.Organization.Name)
	fmt.Fprintf(w, "Admin User: %s\n", adminUsername)
	fmt.Fprintf(w, "Departments: %d\n", s.Departments)
	fmt.Fprintf(w, "Teams: %d\n", s.Teams)
	fmt.Fprintf(w, "Roles: %d\n", s.Roles)
	fmt.Fprintf(w, "Accounts: %d\n", s.Accounts)
	fmt.Fprintf(w, "Budgets: %d\n", s.Budgets)
}
