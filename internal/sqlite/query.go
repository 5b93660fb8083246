package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"slices"

	"github.com/mesh-intelligence/relmap/pkg/types"
)

// Query selects columns of table, restricted to one identity when id is not
// nil. The result holds a single group for table, in storage order.
func (s *Store) Query(ctx context.Context, q types.Querier, table string, columns []string, id *types.Value) (*types.RecordSet, error) {
	t, err := s.table(table)
	if err != nil {
		return nil, err
	}
	if id == nil {
		return s.selectRecords(ctx, q, t, columns, "")
	}
	where := types.QuoteIdent(t.PrimaryKey) + " = ?"
	return s.selectRecords(ctx, q, t, columns, where, *id)
}

// RawQuery selects columns of table filtered by where, which is inserted
// verbatim after WHERE and bound to args. An empty where selects every row.
func (s *Store) RawQuery(ctx context.Context, q types.Querier, table string, columns []string, where string, args ...any) (*types.RecordSet, error) {
	t, err := s.table(table)
	if err != nil {
		return nil, err
	}
	return s.selectRecords(ctx, q, t, columns, where, args...)
}

// QueryRow returns every declared column of the record with identity id.
func (s *Store) QueryRow(ctx context.Context, q types.Querier, table string, id types.Value) (*types.Record, error) {
	rs, err := s.Query(ctx, q, table, nil, &id)
	if err != nil {
		return nil, err
	}
	g, _ := rs.Group(table)
	records := g.Records()
	if len(records) == 0 {
		return nil, types.RecordNotFound(table, id)
	}
	return records[0], nil
}

// Projection returns the columns to select: all declared columns when columns
// is empty, otherwise columns with the primary key prepended when missing.
func Projection(t *types.Table, columns []string) ([]string, error) {
	if len(columns) == 0 {
		return t.ColumnNames(), nil
	}
	out := make([]string, 0, len(columns)+1)
	seen := make(map[string]bool, len(columns)+1)
	if !slices.Contains(columns, t.PrimaryKey) {
		out = append(out, t.PrimaryKey)
		seen[t.PrimaryKey] = true
	}
	for _, c := range columns {
		if !t.HasColumn(c) {
			return nil, types.ColumnNotFound(t.Name, c)
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out, nil
}

func (s *Store) selectRecords(ctx context.Context, q types.Querier, t *types.Table, columns []string, where string, args ...any) (*types.RecordSet, error) {
	cols, err := Projection(t, columns)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s FROM %s", types.QuoteIdents(cols), types.QuoteIdent(t.Name))
	if where != "" {
		query += " WHERE " + where
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", t.Name, err)
	}
	defer rows.Close()

	rs := types.NewRecordSet()
	g := rs.EnsureGroup(t.Name)
	if err := scanRecords(rows, t, cols, g); err != nil {
		return nil, fmt.Errorf("query %s: %w", t.Name, err)
	}
	s.logger.Debug("query", "table", t.Name, "columns", len(cols), "rows", g.Len())
	return rs, nil
}

// scanRecords reads every row into g before returning, so callers may issue
// further statements on the same connection.
func scanRecords(rows *sql.Rows, t *types.Table, cols []string, g *types.RecordGroup) error {
	vals := make([]types.Value, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	pk := slices.Index(cols, t.PrimaryKey)

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
		r := types.NewRecord(t.Name, vals[pk])
		for i, c := range cols {
			r.Put(c, vals[i])
		}
		g.Add(r)
	}
	return rows.Err()
}
