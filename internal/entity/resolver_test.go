package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	registry := NewRegistry()
	require.NoError(t, registry.Register(customerClass()))
	require.NoError(t, registry.Register(organizationClass()))
	return registry
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(customerClass()))

	err := registry.Register(customerClass())
	assert.Error(t, err)
}

func TestRegistryListSorted(t *testing.T) {
	registry := testRegistry(t)
	assert.Equal(t, []string{"Customer", "Organization"}, registry.List())
	assert.Equal(t, 2, registry.Count())
}

func TestResolveByTableID(t *testing.T) {
	resolver := NewResolver(testRegistry(t))

	class, err := resolver.ResolveByTableID("tbl-customer")
	require.NoError(t, err)
	assert.Equal(t, "Customer", class.Name)

	_, err = resolver.ResolveByTableID("tbl-missing")
	assert.ErrorIs(t, err, ErrClassNotFound)
}

func TestResolveByTableName(t *testing.T) {
	resolver := NewResolver(testRegistry(t))

	tests := []struct {
		name  string
		want  string
		table string
	}{
		{name: "exact", table: "crm_customer", want: "Customer"},
		{name: "case insensitive", table: "CRM_CUSTOMER", want: "Customer"},
		{name: "schema prefix", table: "public.crm_organization", want: "Organization"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			class, err := resolver.ResolveByTableName(tt.table)
			require.NoError(t, err)
			assert.Equal(t, tt.want, class.Name)
		})
	}

	_, err := resolver.ResolveByTableName("unknown_table")
	assert.ErrorIs(t, err, ErrClassNotFound)
}

func TestResolverInitPicksUpNewClasses(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(customerClass()))
	resolver := NewResolver(registry)

	_, err := resolver.ResolveByTableID("tbl-organization")
	require.ErrorIs(t, err, ErrClassNotFound)

	require.NoError(t, registry.Register(organizationClass()))
	resolver.Init()

	class, err := resolver.ResolveByTableID("tbl-organization")
	require.NoError(t, err)
	assert.Equal(t, "Organization", class.Name)
}

func TestPropertyAt(t *testing.T) {
	resolver := NewResolver(testRegistry(t))
	customer := customerClass()

	prop, err := resolver.PropertyAt(customer, "status")
	require.NoError(t, err)
	assert.Equal(t, "status", prop.Name)

	// A dotted path resolves through the reference target's metadata
	// without loading any relation.
	prop, err = resolver.PropertyAt(customer, "organization.name")
	require.NoError(t, err)
	assert.Equal(t, "name", prop.Name)

	prop, err = resolver.PropertyAt(customer, "organization")
	require.NoError(t, err)
	assert.Equal(t, PropReference, prop.Kind)

	_, err = resolver.PropertyAt(customer, "organization.missing")
	assert.ErrorIs(t, err, ErrUnknownProperty)

	_, err = resolver.PropertyAt(customer, "status.nested")
	assert.ErrorIs(t, err, ErrUnknownProperty)
}
