package organizations

import (
	"context"
	"testing"

	"github.com/GoCodeAlone/modular"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hadibuxm/jadeed/internal/platform/store/storetest"
)

func TestModule_SyncTenantsPicksUpNewOrganizations(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()
	tenants := modular.NewStandardTenantService(storetest.Logger{})
	m := &Module{svc: NewService(st), tenants: tenants, logger: storetest.Logger{}}

	first, err := m.svc.CreateOrganization(ctx, Organization{Name: "Initech"})
	require.NoError(t, err)
	added, err := m.syncTenants(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	added, err = m.syncTenants(ctx)
	require.NoError(t, err)
	assert.Zero(t, added)

	// created elsewhere, e.g. by create-demo-org
	second, err := NewService(st).CreateOrganization(ctx, Organization{Name: "Demo Tech Company"})
	require.NoError(t, err)
	added, err = m.syncTenants(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, added)
	assert.ElementsMatch(t, []modular.TenantID{modular.TenantID(first.ID), modular.TenantID(second.ID)}, tenants.GetTenants())
}

func TestModule_OnEventRegistersTenant(t *testing.T) {
	tenants := modular.NewStandardTenantService(storetest.Logger{})
	m := &Module{tenants: tenants, logger: storetest.Logger{}}

	event := modular.NewCloudEvent(EventTypeOrganizationCreated, "jadeed.organizations", nil, nil)
	event.SetSubject("org-1")
	require.NoError(t, m.OnEvent(context.Background(), event))
	assert.Equal(t, []modular.TenantID{"org-1"}, tenants.GetTenants())

	other := modular.NewCloudEvent(EventTypeTeamCreated, "jadeed.organizations", nil, nil)
	other.SetSubject("team-1")
	require.NoError(t, m.OnEvent(context.Background(), other))
	assert.Len(t, tenants.GetTenants(), 1)
}
