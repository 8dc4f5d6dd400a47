package fkregistry

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sqlkv/internal/ast"
	"sqlkv/internal/kv/memstore"
)

func TestAddAndLookupRoundTrip(t *testing.T) {
	store := memstore.New()
	tree, err := store.Tree(Tree)
	require.NoError(t, err)

	rec := Record{
		Name:            "fk_orders_users",
		Table:           "orders",
		Columns:         []string{"user_id"},
		ReferredTable:   "users",
		ReferredColumns: []string{"id"},
		OnDelete:        ast.Cascade,
		OnUpdate:        ast.NoAction,
	}
	require.NoError(t, Add(tree, rec))

	children, err := ChildConstraints(tree, "orders")
	require.NoError(t, err)
	require.Len(t, children, 1)
	require.Equal(t, rec, children[0])

	parents, err := ParentActions(tree, "users")
	require.NoError(t, err)
	require.Len(t, parents, 1)
	require.Equal(t, rec, parents[0])

	noChildren, err := ChildConstraints(tree, "users")
	require.NoError(t, err)
	require.Empty(t, noChildren)

	noParents, err := ParentActions(tree, "orders")
	require.NoError(t, err)
	require.Empty(t, noParents)
}

func TestReferencesTableDetectsDependency(t *testing.T) {
	store := memstore.New()
	tree, err := store.Tree(Tree)
	require.NoError(t, err)

	require.NoError(t, Add(tree, Record{
		Name: "fk_orders_users", Table: "orders", Columns: []string{"user_id"},
		ReferredTable: "users", ReferredColumns: []string{"id"},
	}))

	referenced, name, err := ReferencesTable(tree, "users")
	require.NoError(t, err)
	require.True(t, referenced)
	require.Equal(t, "fk_orders_users", name)

	referenced, _, err = ReferencesTable(tree, "orders")
	require.NoError(t, err)
	require.False(t, referenced)
}

func TestRemoveOwnedByDropsOutgoingKeys(t *testing.T) {
	store := memstore.New()
	tree, err := store.Tree(Tree)
	require.NoError(t, err)

	require.NoError(t, Add(tree, Record{
		Name: "fk_orders_users", Table: "orders", Columns: []string{"user_id"},
		ReferredTable: "users", ReferredColumns: []string{"id"},
	}))
	require.NoError(t, RemoveOwnedBy(tree, "orders"))

	all, err := All(tree)
	require.NoError(t, err)
	require.Empty(t, all)
}
