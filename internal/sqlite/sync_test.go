package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/relmap/internal/testutil"
	"github.com/mesh-intelligence/relmap/pkg/types"
)

func synchronize(t *testing.T, s *Store) []SyncResult {
	t.Helper()
	res, err := s.Synchronize(context.Background(), s.DB())
	require.NoError(t, err)
	return res
}

func outcomes(res []SyncResult) map[string]Outcome {
	out := make(map[string]Outcome, len(res))
	for _, r := range res {
		out[r.Table] = r.Outcome
	}
	return out
}

func TestSynchronizeCreatesThenNoOp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shop.db")
	s := openAt(t, path, testutil.ShopSchema())

	first := synchronize(t, s)
	assert.Equal(t, map[string]Outcome{
		"customer": OutcomeCreated,
		"order":    OutcomeCreated,
		"item":     OutcomeCreated,
	}, outcomes(first))
	assert.Equal(t, []string{"customer", "order", "item"},
		[]string{first[0].Table, first[1].Table, first[2].Table}, "declaration order")

	second := synchronize(t, s)
	for _, r := range second {
		assert.Equal(t, OutcomeUnchanged, r.Outcome, r.Table)
	}
}

func TestSynchronizeAdditive(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "bot.db")
	name := types.Column{Name: "name", Type: types.TypeText}

	s := openAt(t, path, userSchema(name))
	synchronize(t, s)
	require.NoError(t, s.Save(ctx, recordSet(userRecord(1, "a"))))
	require.NoError(t, s.Close())

	evolved := userSchema(name,
		types.Column{Name: "nick", Type: types.TypeText, Nullable: true},
		types.Column{Name: "score", Type: types.TypeInteger})
	s = openAt(t, path, evolved)
	res := synchronize(t, s)
	require.Len(t, res, 1)
	assert.Equal(t, OutcomePatched, res[0].Outcome)
	assert.Equal(t, []string{"nick", "score"}, res[0].Added)

	r, err := s.QueryRow(ctx, s.DB(), "user", types.Int(1))
	require.NoError(t, err)
	got, _ := r.Get("name")
	assert.Equal(t, types.Text("a"), got)
	got, _ = r.Get("nick")
	assert.True(t, got.IsNull())
	got, _ = r.Get("score")
	assert.Equal(t, types.Int(0), got, "NOT NULL column added with zero default")

	physical, err := tableInfo(ctx, s.DB(), "user")
	require.NoError(t, err)
	assert.Len(t, physical, 4)
}

func TestSynchronizeDestructiveRebuild(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "t.db")

	before := &types.Schema{Tables: []types.Table{{
		Name: "t", PrimaryKey: "a",
		Columns: []types.Column{{Name: "a", Type: types.TypeInteger}, {Name: "b", Type: types.TypeText}},
	}}}
	s := openAt(t, path, before)
	synchronize(t, s)
	r := types.NewRecord("t", types.Int(1))
	r.Put("b", types.Text("x"))
	require.NoError(t, s.Save(ctx, recordSet(r)))
	require.NoError(t, s.Close())

	after := &types.Schema{Tables: []types.Table{{
		Name: "t", PrimaryKey: "a",
		Columns: []types.Column{{Name: "a", Type: types.TypeText}, {Name: "b", Type: types.TypeText}},
	}}}
	s = openAt(t, path, after)
	res := synchronize(t, s)
	require.Len(t, res, 1)
	assert.Equal(t, OutcomeRebuilt, res[0].Outcome)
	assert.Equal(t, "a", res[0].Mismatch)

	physical, err := tableInfo(ctx, s.DB(), "t")
	require.NoError(t, err)
	assert.Equal(t, "TEXT", physical["a"].typ)

	got, err := s.QueryRow(ctx, s.DB(), "t", types.Text("1"))
	require.NoError(t, err)
	b, _ := got.Get("b")
	assert.Equal(t, types.Text("x"), b)
	a, _ := got.Get("a")
	assert.Equal(t, types.Text("1"), a)

	assert.Equal(t, 0, countBackups(t, s))
}

func TestSynchronizeRebuildOnNullability(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "shop.db")

	s := openAt(t, path, testutil.ShopSchema())
	synchronize(t, s)
	c := types.NewRecord("customer", types.Int(7))
	c.Put("name", types.Text("ann"))
	require.NoError(t, s.Save(ctx, recordSet(c)))
	require.NoError(t, s.Close())

	relaxed := testutil.ShopSchema()
	relaxed.Tables[0].Columns[1].Nullable = true
	relaxed.Tables[0].Columns = append(relaxed.Tables[0].Columns,
		types.Column{Name: "tier", Type: types.TypeInteger})
	s = openAt(t, path, relaxed)
	assert.Equal(t, map[string]Outcome{
		"customer": OutcomeRebuilt,
		"order":    OutcomeUnchanged,
		"item":     OutcomeUnchanged,
	}, outcomes(synchronize(t, s)))

	got, err := s.QueryRow(ctx, s.DB(), "customer", types.Int(7))
	require.NoError(t, err)
	name, _ := got.Get("name")
	assert.Equal(t, types.Text("ann"), name)
	tier, _ := got.Get("tier")
	assert.Equal(t, types.Int(0), tier)

	// Renaming customer away must not drag the order foreign key with it.
	var ddl string
	require.NoError(t, s.DB().QueryRow(
		"SELECT sql FROM sqlite_master WHERE type = 'table' AND name = 'order'").Scan(&ddl))
	assert.Contains(t, ddl, `REFERENCES "customer"`)
	assert.NotContains(t, ddl, "_backup_")
	assert.Equal(t, 0, countBackups(t, s))
}

func TestSynchronizeRebuildFillsNullsOfTightenedColumn(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "bot.db")
	nick := types.Column{Name: "nick", Type: types.TypeText, Nullable: true}

	s := openAt(t, path, userSchema(nameColumn, nick))
	synchronize(t, s)
	require.NoError(t, s.Save(ctx, recordSet(userRecord(1, "ann"))))
	require.NoError(t, s.Close())

	nick.Nullable = false
	s = openAt(t, path, userSchema(nameColumn, nick))
	assert.Equal(t, map[string]Outcome{"user": OutcomeRebuilt}, outcomes(synchronize(t, s)))

	got, err := s.QueryRow(ctx, s.DB(), "user", types.Int(1))
	require.NoError(t, err)
	name, _ := got.Get("name")
	assert.Equal(t, types.Text("ann"), name)
	v, _ := got.Get("nick")
	assert.Equal(t, types.Text(""), v)
	assert.Equal(t, 0, countBackups(t, s))
}

func TestSynchronizeFailedRebuildKeepsTable(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "t.db")

	before := &types.Schema{Tables: []types.Table{{
		Name: "t", PrimaryKey: "a",
		Columns: []types.Column{{Name: "a", Type: types.TypeText}, {Name: "b", Type: types.TypeText}},
	}}}
	s := openAt(t, path, before)
	synchronize(t, s)
	r := types.NewRecord("t", types.Text("abc"))
	r.Put("b", types.Text("x"))
	require.NoError(t, s.Save(ctx, recordSet(r)))
	require.NoError(t, s.Close())

	// Text keys cannot be copied into an INTEGER PRIMARY KEY.
	after := &types.Schema{Tables: []types.Table{{
		Name: "t", PrimaryKey: "a",
		Columns: []types.Column{{Name: "a", Type: types.TypeInteger}, {Name: "b", Type: types.TypeText}},
	}}}
	s = openAt(t, path, after)
	for range 2 {
		_, err := s.Synchronize(ctx, s.DB())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "copy rows")
	}

	physical, err := tableInfo(ctx, s.DB(), "t")
	require.NoError(t, err)
	assert.Equal(t, "TEXT", physical["a"].typ)
	var n int
	require.NoError(t, s.DB().QueryRow(`SELECT count(*) FROM "t" WHERE "a" = 'abc' AND "b" = 'x'`).Scan(&n))
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, countBackups(t, s))
}

func TestSynchronizeStopsAtFirstFailure(t *testing.T) {
	ctx := context.Background()
	s := openAt(t, filepath.Join(t.TempDir(), "x.db"), testutil.ShopSchema())

	// An index named like the second table makes its CREATE TABLE fail.
	_, err := s.DB().ExecContext(ctx, `CREATE TABLE scratch (x INTEGER)`)
	require.NoError(t, err)
	_, err = s.DB().ExecContext(ctx, `CREATE INDEX "order" ON scratch (x)`)
	require.NoError(t, err)

	res, err := s.Synchronize(ctx, s.DB())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "synchronize order")
	require.Len(t, res, 1)
	assert.Equal(t, "customer", res[0].Table)

	exists, err := tableExists(ctx, s.DB(), "item")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestBackupNameIsUnique(t *testing.T) {
	a, b := backupName("user"), backupName("user")
	assert.NotEqual(t, a, b)
	assert.Regexp(t, `^user_backup_[0-9a-f]{32}$`, a)
}

func countBackups(t *testing.T, s *Store) int {
	t.Helper()
	var n int
	require.NoError(t, s.DB().QueryRow(
		"SELECT count(*) FROM sqlite_master WHERE name LIKE '%\\_backup\\_%' ESCAPE '\\'").Scan(&n))
	return n
}
