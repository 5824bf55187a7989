package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/GoCodeAlone/modular"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hadibuxm/jadeed/internal/accounting"
	"github.com/hadibuxm/jadeed/internal/organizations"
	"github.com/hadibuxm/jadeed/internal/platform/activity"
	"github.com/hadibuxm/jadeed/internal/platform/store/storetest"
)

// recordingSubject keeps every event it is asked to deliver.
type recordingSubject struct {
	events []cloudevents.Event
}

func (s *recordingSubject) RegisterObserver(modular.Observer, ...string) error { return nil }
func (s *recordingSubject) UnregisterObserver(modular.Observer) error { return nil }
func (s *recordingSubject) GetObservers() []modular.ObserverInfo { return nil }

func (s *recordingSubject) NotifyObservers(_ context.Context, event cloudevents.Event) error {
	s.events = append(s.events, event)
	return nil
}

func TestSeedDemoOrganization(t *testing.T) {
	ctx := context.Background()
	st := storetest.New(t)
	adminID := storetest.CreateUser(t, st, "admin")

	subject := &recordingSubject{}
	events := activity.NewSubjectEmitter(subject, organizations.ModuleName, storetest.Logger{})

	_, err := seedDemoOrganization(ctx, st, events, "Demo Tech Company", "nobody")
	assert.ErrorIs(t, err, errAdminNotFound)
	assert.Empty(t, subject.events)

	summary, err := seedDemoOrganization(ctx, st, events, "Demo Tech Company", "admin")
	require.NoError(t, err)
	org := summary.Organization
	require.Len(t, subject.events, 1)
	created := subject.events[0]
	assert.Equal(t, organizations.EventTypeOrganizationCreated, created.Type())
	assert.Equal(t, org.ID, created.Subject())
	assert.Equal(t, "jadeed.organizations", created.Source())
	assert.Equal(t, "demo-tech-company", org.Slug)
	assert.Equal(t, "info@demo-tech-company.com", org.Email)
	assert.Equal(t, "San Francisco", org.Address.City)
	assert.Equal(t, 3, summary.Departments)
	assert.Equal(t, 2, summary.Teams)
	assert.Equal(t, 8, summary.Accounts)
	assert.Equal(t, 3, summary.Budgets)

	orgs := organizations.NewService(st)
	depts, err := orgs.ListDepartments(ctx, org.ID)
	require.NoError(t, err)
	budgets := map[string]int64{}
	for _, d := range depts {
		budgets[d.Name] = d.BudgetAllocated
	}
	assert.Equal(t, map[string]int64{"Engineering": 50_000_000, "Product": 20_000_000, "Finance": 15_000_000}, budgets)

	teams, err := orgs.ListTeams(ctx, org.ID)
	require.NoError(t, err)
	keys := []string{}
	for _, tm := range teams {
		keys = append(keys, tm.ProjectKey)
	}
	assert.ElementsMatch(t, []string{"BACKEND", "FRONTEND"}, keys)

	membership, err := orgs.ActiveMember(ctx, adminID, org.ID)
	require.NoError(t, err)
	assert.Equal(t, organizations.RoleAdmin, membership.Role.Type)

	ledger := accounting.NewService(st)
	cash, err := ledger.AccountByCode(ctx, org.ID, "1000")
	require.NoError(t, err)
	assert.Equal(t, "Cash", cash.Name)
	bs, err := ledger.ListBudgets(ctx, org.ID)
	require.NoError(t, err)
	assert.Len(t, bs, 3)

	_, err = seedDemoOrganization(ctx, st, events, "demo tech company", "admin")
	assert.ErrorIs(t, err, errDemoOrgExists)
	assert.Len(t, subject.events, 1)
}

func TestPrintDemoSummary(t *testing.T) {
	var out bytes.Buffer
	printDemoSummary(&out, &demoSummary{
		Organization: &organizations.Organization{Name: "Demo Tech Company"},
		Departments:  3,
		Teams:        2,
		Roles:        5,
		Accounts:     8,
		Budgets:      3,
	}, "admin")
	assert.Contains(t, out.String(), "Organization: Demo Tech Company")
	assert.Contains(t, out.String(), "Admin User: admin")
	assert.Contains(t, out.String(), "Accounts: 8")
}
