package testutil

import (
	"testing"

	"github.com/mesh-intelligence/relmap/pkg/types"
)

// ShopSchema returns a three table schema: customer, order (references
// customer) and item (references order). "order" is a reserved word, which
// keeps identifier quoting honest.
func ShopSchema() *types.Schema {
	return &types.Schema{
		Name:     "shop",
		Filename: "shop.db",
		Tables: []types.Table{
			{
				Name:       "customer",
				PrimaryKey: "id_customer",
				Columns: []types.Column{
					{Name: "id_customer", Type: types.TypeInteger},
					{Name: "name", Type: types.TypeText},
					{Name: "nick", Type: types.TypeText, Nullable: true},
				},
			},
			{
				Name:       "order",
				PrimaryKey: "id_order",
				Columns: []types.Column{
					{Name: "id_order", Type: types.TypeInteger},
					{Name: "id_customer", Type: types.TypeInteger, Nullable: true},
					{Name: "paid", Type: types.TypeBoolean},
				},
				ForeignKeys: []types.ForeignKey{{Column: "id_customer", RefTable: "customer", RefColumn: "id_customer"}},
			},
			{
				Name:       "item",
				PrimaryKey: "id_item",
				Columns: []types.Column{
					{Name: "id_item", Type: types.TypeInteger},
					{Name: "id_order", Type: types.TypeInteger, Nullable: true},
					{Name: "sku", Type: types.TypeText},
					{Name: "price", Type: types.TypeReal},
				},
				ForeignKeys: []types.ForeignKey{{Column: "id_order", RefTable: "order", RefColumn: "id_order"}},
			},
		},
	}
}

// ShopDefinitions returns object definitions for Customer, Order and Item
// over ShopSchema. Order carries its customer as a nested object and its
// items as a child list.
func ShopDefinitions() []types.ObjectDefinition {
	return []types.ObjectDefinition{
		{
			Name: "Customer", IDField: "id", Table: "customer",
			Sources: []types.PropertySource{
				{Name: "id", Kind: types.SourceScalar, Column: "id_customer"},
				{Name: "name", Kind: types.SourceScalar, Column: "name"},
				{Name: "nick", Kind: types.SourceScalar, Column: "nick"},
			},
		},
		{
			Name: "Order", IDField: "id", Table: "order",
			Sources: []types.PropertySource{
				{Name: "id", Kind: types.SourceScalar, Column: "id_order"},
				{Name: "paid", Kind: types.SourceScalar, Column: "paid"},
				{Name: "customer", Kind: types.SourceObject, Column: "id_customer", Object: "Customer"},
				{Name: "items", Kind: types.SourceList, Column: "id_order", Object: "Item"},
			},
		},
		{
			Name: "Item", IDField: "id", Table: "item",
			Sources: []types.PropertySource{
				{Name: "id", Kind: types.SourceScalar, Column: "id_item"},
				{Name: "order", Kind: types.SourceScalar, Column: "id_order"},
				{Name: "sku", Kind: types.SourceScalar, Column: "sku"},
				{Name: "price", Kind: types.SourceScalar, Column: "price"},
			},
		},
	}
}

// ShopMapping validates ShopDefinitions against ShopSchema.
func ShopMapping(t testing.TB) *types.Mapping {
	t.Helper()
	m, err := types.NewMapping(ShopDefinitions(), ShopSchema())
	if err != nil {
		t.Fatalf("shop mapping: %v", err)
	}
	return m
}
