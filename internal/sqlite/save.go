package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/mesh-intelligence/relmap/pkg/types"
)

// SaveRecordSet writes rs through q. Tables are written in schema order. Per
// table, one query finds the identities already stored; new records go out as
// multi-row inserts and stored ones as a prepared update run once per record.
// Columns a record does not carry are written as NULL.
func (s *Store) SaveRecordSet(ctx context.Context, q types.Querier, rs *types.RecordSet) error {
	if rs == nil || rs.Len() == 0 {
		return nil
	}
	for _, name := range rs.Tables() {
		if _, err := s.table(name); err != nil {
			return err
		}
	}
	for i := range s.schema.Tables {
		t := &s.schema.Tables[i]
		g, ok := rs.Group(t.Name)
		if !ok || g.Len() == 0 {
			continue
		}
		if err := s.saveGroup(ctx, q, t, g); err != nil {
			return fmt.Errorf("save %s: %w", t.Name, err)
		}
	}
	return nil
}

func (s *Store) saveGroup(ctx context.Context, q types.Querier, t *types.Table, g *types.RecordGroup) error {
	records := g.Records()
	for _, r := range records {
		for _, c := range r.Columns() {
			if !t.HasColumn(c) {
				return types.ColumnNotFound(t.Name, c)
			}
		}
	}

	// Identities are compared in the key column's storage class, so "1" and 1
	// name the same row of an integer key.
	ids := make([]types.Value, 0, len(records))
	seen := make(map[types.Value]bool, len(records))
	unique := records[:0:0]
	for _, r := range records {
		id := identity(t, r)
		if seen[id] {
			s.logger.Warn("duplicate identity after coercion, first record kept",
				"table", t.Name, "id", id.String())
			continue
		}
		seen[id] = true
		ids = append(ids, id)
		unique = append(unique, r)
	}

	stored, err := s.existingIDs(ctx, q, t, ids)
	if err != nil {
		return err
	}
	var fresh, known []*types.Record
	for _, r := range unique {
		if stored[identity(t, r)] {
			known = append(known, r)
		} else {
			fresh = append(fresh, r)
		}
	}
	s.logger.Debug("saving records", "table", t.Name, "insert", len(fresh), "update", len(known))

	if err := s.insert(ctx, q, t, fresh); err != nil {
		return err
	}
	return s.update(ctx, q, t, known)
}

// existingIDs returns the subset of ids present in t.
func (s *Store) existingIDs(ctx context.Context, q types.Querier, t *types.Table, ids []types.Value) (map[types.Value]bool, error) {
	stored := make(map[types.Value]bool)
	pk := types.QuoteIdent(t.PrimaryKey)
	for start := 0; start < len(ids); start += s.maxParams {
		end := min(start+s.maxParams, len(ids))
		chunk := ids[start:end]

		query := fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (%s)",
			pk, types.QuoteIdent(t.Name), pk, placeholders(len(chunk)))
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}

		rows, err := q.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("find stored identities: %w", err)
		}
		for rows.Next() {
			var id types.Value
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, fmt.Errorf("find stored identities: %w", err)
			}
			stored[id] = true
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("find stored identities: %w", err)
		}
	}
	return stored, nil
}

// insert writes records as multi-row inserts, each within the parameter
// limit.
func (s *Store) insert(ctx context.Context, q types.Querier, t *types.Table, records []*types.Record) error {
	if len(records) == 0 {
		return nil
	}
	cols := t.ColumnNames()
	perStmt := max(1, s.maxParams/len(cols))
	row := "(" + placeholders(len(cols)) + ")"
	prefix := fmt.Sprintf("INSERT INTO %s (%s) VALUES ", types.QuoteIdent(t.Name), types.QuoteIdents(cols))

	for start := 0; start < len(records); start += perStmt {
		end := min(start+perStmt, len(records))
		chunk := records[start:end]

		var b strings.Builder
		b.WriteString(prefix)
		args := make([]any, 0, len(chunk)*len(cols))
		for i, r := range chunk {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(row)
			for _, c := range cols {
				args = append(args, columnValue(t, r, c))
			}
		}
		if _, err := q.ExecContext(ctx, b.String(), args...); err != nil {
			return fmt.Errorf("insert %d records: %w", len(chunk), err)
		}
	}
	return nil
}

// update rewrites every non-key column of records through one prepared
// statement.
func (s *Store) update(ctx context.Context, q types.Querier, t *types.Table, records []*types.Record) error {
	if len(records) == 0 {
		return nil
	}
	var set []string
	var cols []string
	for _, c := range t.Columns {
		if c.Name == t.PrimaryKey {
			continue
		}
		set = append(set, types.QuoteIdent(c.Name)+" = ?")
		cols = append(cols, c.Name)
	}
	if len(cols) == 0 {
		return nil
	}
	cols = append(cols, t.PrimaryKey)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?",
		types.QuoteIdent(t.Name), strings.Join(set, ", "), types.QuoteIdent(t.PrimaryKey))
	stmt, err := q.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare update: %w", err)
	}
	defer stmt.Close()

	args := make([]any, len(cols))
	for _, r := range records {
		for i, c := range cols {
			args[i] = columnValue(t, r, c)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("update %s: %w", r, err)
		}
	}
	return nil
}

// columnValue returns the value r binds for column c. The primary key always
// binds the record identity.
func columnValue(t *types.Table, r *types.Record, c string) types.Value {
	if c == t.PrimaryKey {
		return identity(t, r)
	}
	v, _ := r.Get(c)
	return v
}

// identity returns the id of r coerced to the primary key column's type.
func identity(t *types.Table, r *types.Record) types.Value {
	pk, ok := t.Column(t.PrimaryKey)
	if !ok {
		return r.ID
	}
	return r.ID.Coerce(pk.Type)
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}
