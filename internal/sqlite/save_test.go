package sqlite

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/relmap/internal/testutil"
	"github.com/mesh-intelligence/relmap/pkg/types"
)

var nameColumn = types.Column{Name: "name", Type: types.TypeText}

func TestSaveUpsertsByIdentity(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, userSchema(nameColumn))

	require.NoError(t, s.Save(ctx, recordSet(userRecord(1, "a"))))
	require.NoError(t, s.Save(ctx, recordSet(userRecord(1, "b"))))

	rs, err := s.Query(ctx, s.DB(), "user", nil, nil)
	require.NoError(t, err)
	g, ok := rs.Group("user")
	require.True(t, ok)
	require.Equal(t, 1, g.Len())
	r, _ := g.Get(types.Int(1))
	name, _ := r.Get("name")
	assert.Equal(t, types.Text("b"), name)
}

func TestSaveCoercesIdentityToKeyType(t *testing.T) {
	tests := []struct {
		name          string
		keyType       types.LogicalType
		first, second types.Value
		stored        types.Value
	}{
		{"text on integer key", types.TypeInteger, types.Text("1"), types.Text("1"), types.Int(1)},
		{"text then integer on integer key", types.TypeInteger, types.Text("1"), types.Int(1), types.Int(1)},
		{"integral real on integer key", types.TypeInteger, types.Real(4), types.Int(4), types.Int(4)},
		{"integer on real key", types.TypeReal, types.Int(2), types.Int(2), types.Real(2)},
		{"integer on text key", types.TypeText, types.Int(3), types.Text("3"), types.Text("3")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s := openStore(t, &types.Schema{Tables: []types.Table{{
				Name: "m", PrimaryKey: "k",
				Columns: []types.Column{{Name: "k", Type: tt.keyType}, nameColumn},
			}}})

			first := types.NewRecord("m", tt.first)
			first.Put("name", types.Text("a"))
			require.NoError(t, s.Save(ctx, recordSet(first)))
			second := types.NewRecord("m", tt.second)
			second.Put("name", types.Text("b"))
			require.NoError(t, s.Save(ctx, recordSet(second)))

			rs, err := s.Query(ctx, s.DB(), "m", nil, nil)
			require.NoError(t, err)
			g, ok := rs.Group("m")
			require.True(t, ok)
			require.Equal(t, 1, g.Len())
			r, ok := g.Get(tt.stored)
			require.True(t, ok)
			name, _ := r.Get("name")
			assert.Equal(t, types.Text("b"), name)
		})
	}
}

func TestSaveDecodedTextIdentityUpdates(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, userSchema(nameColumn))
	table, err := s.Schema().Table("user")
	require.NoError(t, err)

	for _, line := range []string{`{"id_user": "1", "name": "a"}`, `{"id_user": "1", "name": "b"}`} {
		r, dropped, err := DecodeRecord(table, []byte(line))
		require.NoError(t, err)
		require.Empty(t, dropped)
		require.NoError(t, s.Save(ctx, recordSet(r)))
	}

	got, err := s.QueryRow(ctx, s.DB(), "user", types.Int(1))
	require.NoError(t, err)
	name, _ := got.Get("name")
	assert.Equal(t, types.Text("b"), name)
}

func TestSaveCollapsesIdentitiesEqualAfterCoercion(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, userSchema(nameColumn))

	a := types.NewRecord("user", types.Int(1))
	a.Put("name", types.Text("a"))
	b := types.NewRecord("user", types.Text("1"))
	b.Put("name", types.Text("b"))
	require.NoError(t, s.Save(ctx, recordSet(a, b)))

	got, err := s.QueryRow(ctx, s.DB(), "user", types.Int(1))
	require.NoError(t, err)
	name, _ := got.Get("name")
	assert.Equal(t, types.Text("a"), name)
}

func TestSavePartitionsInsertAndUpdate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// Two columns per row and four parameters per statement: the three new
	// records go out as inserts of two rows and one row.
	s := New(db, userSchema(nameColumn), WithMaxParams(4), WithLogger(testutil.NewTestLogger(t)))
	rs := recordSet(
		userRecord(1, "a"),
		userRecord(2, "b"),
		userRecord(3, "c"),
		userRecord(4, "d"),
		userRecord(5, "e"),
	)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "id_user" FROM "user" WHERE "id_user" IN (?, ?, ?, ?)`)).
		WithArgs(int64(1), int64(2), int64(3), int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"id_user"}).AddRow(int64(2)).AddRow(int64(4)))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "id_user" FROM "user" WHERE "id_user" IN (?)`)).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"id_user"}))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "user" ("id_user", "name") VALUES (?, ?), (?, ?)`)).
		WithArgs(int64(1), "a", int64(3), "c").
		WillReturnResult(sqlmock.NewResult(3, 2))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "user" ("id_user", "name") VALUES (?, ?)`)).
		WithArgs(int64(5), "e").
		WillReturnResult(sqlmock.NewResult(5, 1))
	update := mock.ExpectPrepare(regexp.QuoteMeta(`UPDATE "user" SET "name" = ? WHERE "id_user" = ?`))
	update.ExpectExec().WithArgs("b", int64(2)).WillReturnResult(sqlmock.NewResult(0, 1))
	update.ExpectExec().WithArgs("d", int64(4)).WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.SaveRecordSet(context.Background(), db, rs))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveBindsNullForMissingColumns(t *testing.T) {
	ctx := context.Background()
	nick := types.Column{Name: "nick", Type: types.TypeText, Nullable: true}
	s := openStore(t, userSchema(nameColumn, nick))

	r := userRecord(1, "a")
	r.Put("nick", types.Text("al"))
	require.NoError(t, s.Save(ctx, recordSet(r)))

	// The second save does not carry nick, so the update clears it.
	require.NoError(t, s.Save(ctx, recordSet(userRecord(1, "b"))))

	got, err := s.QueryRow(ctx, s.DB(), "user", types.Int(1))
	require.NoError(t, err)
	v, _ := got.Get("nick")
	assert.True(t, v.IsNull())
}

func TestSaveInChunks(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, userSchema(nameColumn), WithMaxParams(3))

	rs := types.NewRecordSet()
	for i := range int64(10) {
		rs.MergeRecord(userRecord(i, "n"))
	}
	require.NoError(t, s.Save(ctx, rs))

	for i := range int64(10) {
		rs.MergeRecord(userRecord(i+10, "m"))
	}
	require.NoError(t, s.Save(ctx, rs))

	got, err := s.Query(ctx, s.DB(), "user", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 20, got.Len())
}

func TestSaveTablesInSchemaOrder(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, testutil.ShopSchema())

	item := types.NewRecord("item", types.Int(1))
	item.Put("id_order", types.Int(10))
	item.Put("sku", types.Text("pen"))
	item.Put("price", types.Real(1.5))
	order := types.NewRecord("order", types.Int(10))
	order.Put("paid", types.Bool(true))

	// Staged child first; the store still writes order before item.
	rs := recordSet(item, order)
	assert.Equal(t, []string{"item", "order"}, rs.Tables())
	require.NoError(t, s.Save(ctx, rs))

	got, err := s.QueryRow(ctx, s.DB(), "item", types.Int(1))
	require.NoError(t, err)
	price, _ := got.Get("price")
	assert.Equal(t, types.Real(1.5), price)
}

func TestSaveRejectsUndeclared(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, userSchema(nameColumn))

	r := userRecord(1, "a")
	r.Put("age", types.Int(3))
	err := s.Save(ctx, recordSet(r))
	require.ErrorIs(t, err, types.ErrColumnNotFound)
	assert.Contains(t, err.Error(), "column not found")

	err = s.Save(ctx, recordSet(types.NewRecord("ghost", types.Int(1))))
	assert.ErrorIs(t, err, types.ErrTableNotFound)

	assert.NoError(t, s.Save(ctx, types.NewRecordSet()))
}

func TestSaveSurfacesStoreErrors(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, userSchema(nameColumn))

	// name is NOT NULL; the driver rejects the insert and its message comes
	// through.
	err := s.Save(ctx, recordSet(types.NewRecord("user", types.Int(1))))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOT NULL")
}
