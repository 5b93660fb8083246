package mapper

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/relmap/internal/sqlite"
	"github.com/mesh-intelligence/relmap/internal/testutil"
	"github.com/mesh-intelligence/relmap/pkg/types"
)

type Customer struct {
	ID   int64
	Name string
	Nick *string
}

type Order struct {
	ID       int64
	Paid     bool
	Customer *Customer
	Items    []*Item
}

type Item struct {
	ID    int64
	Order int64
	SKU   string
	Price float64
}

func shopRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	require.NoError(t, Register(reg, "Customer",
		Scalar("id", func(c *Customer) int64 { return c.ID }, func(c *Customer, v int64) { c.ID = v }),
		Scalar("name", func(c *Customer) string { return c.Name }, func(c *Customer, v string) { c.Name = v }),
		Scalar("nick", func(c *Customer) *string { return c.Nick }, func(c *Customer, v *string) { c.Nick = v }),
	))
	require.NoError(t, Register(reg, "Order",
		Scalar("id", func(o *Order) int64 { return o.ID }, func(o *Order, v int64) { o.ID = v }),
		Scalar("paid", func(o *Order) bool { return o.Paid }, func(o *Order, v bool) { o.Paid = v }),
		Object("customer", func(o *Order) *Customer { return o.Customer }, func(o *Order, c *Customer) { o.Customer = c }),
		List("items", func(o *Order, items []*Item) { o.Items = items }),
	))
	require.NoError(t, Register(reg, "Item",
		Scalar("id", func(i *Item) int64 { return i.ID }, func(i *Item, v int64) { i.ID = v }),
		Scalar("order", func(i *Item) int64 { return i.Order }, func(i *Item, v int64) { i.Order = v }),
		Scalar("sku", func(i *Item) string { return i.SKU }, func(i *Item, v string) { i.SKU = v }),
		Scalar("price", func(i *Item) float64 { return i.Price }, func(i *Item, v float64) { i.Price = v }),
	))
	return reg
}

func newShopMapper(t *testing.T) (*Mapper, *sqlite.Store) {
	t.Helper()
	logger := testutil.NewTestLogger(t)
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "shop.db"), testutil.ShopSchema(), sqlite.WithLogger(logger))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.CreateTables(context.Background()))

	m, err := New(store, testutil.ShopMapping(t), shopRegistry(t), WithLogger(logger))
	require.NoError(t, err)
	return m, store
}

func ptr[T any](v T) *T { return &v }

func TestObjectToRecordSet(t *testing.T) {
	m, _ := newShopMapper(t)
	order := &Order{
		ID:       10,
		Paid:     true,
		Customer: &Customer{ID: 1, Name: "ann", Nick: ptr("an")},
		Items:    []*Item{{ID: 100, Order: 10, SKU: "pen"}},
	}

	rs, err := m.ObjectToRecordSet(order)
	require.NoError(t, err)
	assert.Equal(t, []string{"customer", "order"}, rs.Tables(), "nested object staged first, list not written")

	og, _ := rs.Group("order")
	r, ok := og.Get(types.Int(10))
	require.True(t, ok)
	assert.Equal(t, []string{"id_order", "paid", "id_customer"}, r.Columns())
	link, _ := r.Get("id_customer")
	assert.Equal(t, types.Int(1), link)
	paid, _ := r.Get("paid")
	assert.Equal(t, types.Int(1), paid)

	cg, _ := rs.Group("customer")
	c, _ := cg.Get(types.Int(1))
	nick, _ := c.Get("nick")
	assert.Equal(t, types.Text("an"), nick)
}

func TestObjectToRecordSetNilNested(t *testing.T) {
	m, _ := newShopMapper(t)
	rs, err := m.ObjectToRecordSet(Order{ID: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"order"}, rs.Tables())
	g, _ := rs.Group("order")
	r, _ := g.Get(types.Int(3))
	link, ok := r.Get("id_customer")
	require.True(t, ok)
	assert.True(t, link.IsNull())
}

func TestSaveAndQueryOrderGraph(t *testing.T) {
	ctx := context.Background()
	m, _ := newShopMapper(t)

	order := &Order{ID: 10, Paid: true, Customer: &Customer{ID: 1, Name: "ann"}}
	items := []*Item{
		{ID: 100, Order: 10, SKU: "pen", Price: 1.5},
		{ID: 101, Order: 10, SKU: "ink", Price: 4},
	}
	other := &Item{ID: 102, Order: 11, SKU: "pad", Price: 2}
	require.NoError(t, m.Save(ctx, order, items[0], items[1], other))

	got, err := FindAs[Order](ctx, m, `"id_order" = ?`, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)

	o := got[0]
	assert.Equal(t, int64(10), o.ID)
	assert.True(t, o.Paid)
	assert.Equal(t, &Customer{ID: 1, Name: "ann"}, o.Customer)
	require.Len(t, o.Items, 2)
	assert.ElementsMatch(t, items, o.Items)
}

func TestSaveOverwritesByIdentity(t *testing.T) {
	ctx := context.Background()
	m, _ := newShopMapper(t)

	require.NoError(t, m.Save(ctx, &Customer{ID: 1, Name: "a"}))
	require.NoError(t, m.Save(ctx, &Customer{ID: 1, Name: "b", Nick: ptr("bee")}))

	found, err := m.FindByID(ctx, "Customer", 1)
	require.NoError(t, err)
	assert.Equal(t, &Customer{ID: 1, Name: "b", Nick: ptr("bee")}, found)

	_, err = m.FindByID(ctx, "Customer", 2)
	assert.ErrorIs(t, err, types.ErrRecordNotFound)
}

func TestQueryNestedLinks(t *testing.T) {
	ctx := context.Background()
	m, store := newShopMapper(t)

	// Order 1 has no customer; order 2 points at a customer that does not
	// exist.
	rs := types.NewRecordSet()
	o1 := types.NewRecord("order", types.Int(1))
	o1.Put("paid", types.Bool(false))
	o2 := types.NewRecord("order", types.Int(2))
	o2.Put("paid", types.Bool(false))
	o2.Put("id_customer", types.Int(99))
	rs.MergeRecord(o1)
	rs.MergeRecord(o2)
	require.NoError(t, store.Save(ctx, rs))

	err := store.WithConn(ctx, func(q types.Querier) error {
		orders, err := QueryAs[Order](ctx, m, q, `1 = 1 ORDER BY "id_order"`)
		require.NoError(t, err)
		require.Len(t, orders, 2)
		for _, o := range orders {
			assert.Nil(t, o.Customer, "order %d", o.ID)
			assert.Empty(t, o.Items, "order %d", o.ID)
		}
		return nil
	})
	require.NoError(t, err)
}

func TestQueryObjectsAll(t *testing.T) {
	ctx := context.Background()
	m, _ := newShopMapper(t)
	require.NoError(t, m.Save(ctx, &Customer{ID: 1, Name: "a"}, &Customer{ID: 2, Name: "b"}))

	found, err := m.Find(ctx, "Customer", "")
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.IsType(t, &Customer{}, found[0])
}

func TestUnregisteredTypes(t *testing.T) {
	ctx := context.Background()
	m, _ := newShopMapper(t)

	type stranger struct{ ID int }
	_, err := m.ObjectToRecordSet(&stranger{ID: 1})
	assert.ErrorIs(t, err, types.ErrTypeNotRegistered)

	_, err = m.Find(ctx, "Stranger", "")
	assert.ErrorIs(t, err, types.ErrTypeNotRegistered)

	_, err = FindAs[stranger](ctx, m, "")
	assert.ErrorIs(t, err, types.ErrTypeNotRegistered)

	_, err = m.ObjectToRecordSet(nil)
	assert.ErrorIs(t, err, types.ErrTypeMismatch)
	var none *Order
	_, err = m.ObjectToRecordSet(none)
	assert.ErrorIs(t, err, types.ErrTypeMismatch)
}

func TestNewRejectsMismatchedRegistry(t *testing.T) {
	mapping := testutil.ShopMapping(t)

	tests := []struct {
		name  string
		build func() *Registry
	}{
		{"missing accessor", func() *Registry {
			reg := shopRegistry(t)
			delete(reg.byName["Customer"].fields, "nick")
			return reg
		}},
		{"wrong kind", func() *Registry {
			reg := shopRegistry(t)
			reg.byName["Order"].fields["customer"] =
				Scalar("customer", func(o *Order) int64 { return 0 }, func(*Order, int64) {}).acc
			return reg
		}},
		{"wrong related type", func() *Registry {
			reg := shopRegistry(t)
			reg.byName["Order"].fields["items"] =
				List("items", func(*Order, []*Customer) {}).acc
			return reg
		}},
		{"extra accessor", func() *Registry {
			reg := shopRegistry(t)
			reg.byName["Item"].fields["colour"] =
				Scalar("colour", func(i *Item) string { return "" }, func(*Item, string) {}).acc
			return reg
		}},
		{"undefined type", func() *Registry {
			reg := shopRegistry(t)
			require.NoError(t, Register[struct{}](reg, "Ghost"))
			return reg
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(nil, mapping, tt.build())
			assert.Error(t, err)
		})
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	reg := shopRegistry(t)
	assert.ErrorIs(t, Register[Customer](reg, "Client"), types.ErrInvalidConfig)
	assert.ErrorIs(t, Register[struct{ X int }](reg, "Customer"), types.ErrInvalidConfig)
	assert.ErrorIs(t, Register[struct{ Y int }](reg, ""), types.ErrInvalidConfig)

	idField := Scalar("id", func(c *Item) int64 { return c.ID }, func(c *Item, v int64) { c.ID = v })
	assert.ErrorIs(t, Register(NewRegistry(), "Item", idField, idField), types.ErrInvalidConfig)

	name, err := reg.TypeName(Item{})
	require.NoError(t, err)
	assert.Equal(t, "Item", name)
	obj, err := reg.New("Order")
	require.NoError(t, err)
	assert.IsType(t, &Order{}, obj)
}
