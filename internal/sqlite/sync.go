package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/relmap/pkg/types"
)

// Outcome is what synchronization did to one table.
type Outcome string

// Synchronization outcomes.
const (
	OutcomeCreated   Outcome = "created"
	OutcomePatched   Outcome = "patched"
	OutcomeRebuilt   Outcome = "rebuilt"
	OutcomeUnchanged Outcome = "unchanged"
)

// SyncResult reports the outcome for one declared table.
type SyncResult struct {
	Table   string  `json:"table"`
	Outcome Outcome `json:"outcome"`
	// Added lists the columns added by a patch.
	Added []string `json:"added,omitempty"`
	// Mismatch names the column whose type or nullability forced a rebuild.
	Mismatch string `json:"mismatch,omitempty"`
}

// physicalColumn is one row of PRAGMA table_info.
type physicalColumn struct {
	name    string
	typ     string
	notNull bool
}

// Synchronize brings every declared table in line with the physical store, in
// declaration order. The first failure stops the pass; tables already
// processed keep their new shape.
func (s *Store) Synchronize(ctx context.Context, q types.Querier) ([]SyncResult, error) {
	results := make([]SyncResult, 0, len(s.schema.Tables))
	for i := range s.schema.Tables {
		t := &s.schema.Tables[i]
		res, err := s.syncTable(ctx, q, t)
		if err != nil {
			return results, fmt.Errorf("synchronize %s: %w", t.Name, err)
		}
		s.logger.Info("table synchronized", "table", t.Name, "outcome", res.Outcome)
		results = append(results, res)
	}
	return results, nil
}

func (s *Store) syncTable(ctx context.Context, q types.Querier, t *types.Table) (SyncResult, error) {
	res := SyncResult{Table: t.Name}

	exists, err := tableExists(ctx, q, t.Name)
	if err != nil {
		return res, err
	}
	if !exists {
		if _, err := q.ExecContext(ctx, t.CreateStatement()); err != nil {
			return res, fmt.Errorf("create table: %w", err)
		}
		res.Outcome = OutcomeCreated
		return res, nil
	}

	physical, err := tableInfo(ctx, q, t.Name)
	if err != nil {
		return res, err
	}

	var missing []types.Column
	for _, c := range t.Columns {
		p, ok := physical[c.Name]
		if !ok {
			missing = append(missing, c)
			continue
		}
		if !strings.EqualFold(p.typ, c.Type.StorageType()) || p.notNull == c.Nullable {
			res.Mismatch = c.Name
			s.logger.Debug("column differs, rebuilding",
				"table", t.Name, "column", c.Name,
				"physical_type", p.typ, "physical_not_null", p.notNull)
			if err := s.rebuild(ctx, q, t, physical); err != nil {
				return res, err
			}
			res.Outcome = OutcomeRebuilt
			return res, nil
		}
	}

	if len(missing) == 0 {
		res.Outcome = OutcomeUnchanged
		return res, nil
	}
	for _, c := range missing {
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", types.QuoteIdent(t.Name), c.AddDefinition())
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return res, fmt.Errorf("add column %s: %w", c.Name, err)
		}
		res.Added = append(res.Added, c.Name)
	}
	res.Outcome = OutcomePatched
	return res, nil
}

// rebuildSavepoint scopes one table rebuild. A failed step rolls the table
// back to its shape and rows before the rebuild.
const rebuildSavepoint = "relmap_rebuild"

// rebuild renames the table to a backup, recreates it from the declaration,
// copies the columns both shapes share and drops the backup, all under one
// savepoint. NULLs bound for declared NOT NULL columns, and NOT NULL columns
// the backup lacks, are filled with their zero value.
func (s *Store) rebuild(ctx context.Context, q types.Querier, t *types.Table, physical map[string]physicalColumn) error {
	if _, err := q.ExecContext(ctx, "SAVEPOINT "+rebuildSavepoint); err != nil {
		return fmt.Errorf("begin rebuild: %w", err)
	}
	if err := s.rebuildSteps(ctx, q, t, physical); err != nil {
		if _, rerr := q.ExecContext(ctx, "ROLLBACK TO "+rebuildSavepoint); rerr != nil {
			return errors.Join(err, fmt.Errorf("roll back rebuild: %w", rerr))
		}
		if _, rerr := q.ExecContext(ctx, "RELEASE "+rebuildSavepoint); rerr != nil {
			return errors.Join(err, fmt.Errorf("release rebuild: %w", rerr))
		}
		return err
	}
	if _, err := q.ExecContext(ctx, "RELEASE "+rebuildSavepoint); err != nil {
		return fmt.Errorf("commit rebuild: %w", err)
	}
	return nil
}

func (s *Store) rebuildSteps(ctx context.Context, q types.Querier, t *types.Table, physical map[string]physicalColumn) error {
	backup := backupName(t.Name)

	// Without legacy_alter_table, RENAME rewrites foreign key clauses in other
	// tables to point at the backup, which is dropped below.
	if _, err := q.ExecContext(ctx, "PRAGMA legacy_alter_table=ON"); err != nil {
		return fmt.Errorf("enable legacy alter table: %w", err)
	}
	rename := fmt.Sprintf("ALTER TABLE %s RENAME TO %s", types.QuoteIdent(t.Name), types.QuoteIdent(backup))
	_, err := q.ExecContext(ctx, rename)
	if _, perr := q.ExecContext(ctx, "PRAGMA legacy_alter_table=OFF"); perr != nil && err == nil {
		err = fmt.Errorf("disable legacy alter table: %w", perr)
	}
	if err != nil {
		return fmt.Errorf("rename to %s: %w", backup, err)
	}

	if _, err := q.ExecContext(ctx, t.CreateStatement()); err != nil {
		return fmt.Errorf("recreate table: %w", err)
	}

	var target, source []string
	for _, c := range t.Columns {
		if _, ok := physical[c.Name]; ok {
			col := types.QuoteIdent(c.Name)
			target = append(target, col)
			if c.Nullable {
				source = append(source, col)
			} else {
				source = append(source, fmt.Sprintf("COALESCE(%s, %s)", col, c.Type.ZeroLiteral()))
			}
		} else if !c.Nullable {
			target = append(target, types.QuoteIdent(c.Name))
			source = append(source, c.Type.ZeroLiteral())
		}
	}
	if len(target) > 0 {
		copyRows := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
			types.QuoteIdent(t.Name), strings.Join(target, ", "),
			strings.Join(source, ", "), types.QuoteIdent(backup))
		if _, err := q.ExecContext(ctx, copyRows); err != nil {
			return fmt.Errorf("copy rows from %s: %w", backup, err)
		}
	}

	if _, err := q.ExecContext(ctx, "DROP TABLE "+types.QuoteIdent(backup)); err != nil {
		return fmt.Errorf("drop %s: %w", backup, err)
	}
	return nil
}

// backupName returns a table name that cannot collide with a declared table
// or a backup left behind by an interrupted rebuild.
func backupName(table string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return table + "_backup_" + strings.ReplaceAll(id.String(), "-", "")
}

func tableExists(ctx context.Context, q types.Querier, name string) (bool, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?", name)
	if err != nil {
		return false, fmt.Errorf("check table %s: %w", name, err)
	}
	defer rows.Close()
	found := rows.Next()
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("check table %s: %w", name, err)
	}
	return found, nil
}

// tableInfo returns the physical columns of a table keyed by name.
func tableInfo(ctx context.Context, q types.Querier, name string) (map[string]physicalColumn, error) {
	rows, err := q.QueryContext(ctx, `SELECT name, type, "notnull" FROM pragma_table_info(?)`, name)
	if err != nil {
		return nil, fmt.Errorf("inspect table %s: %w", name, err)
	}
	defer rows.Close()

	cols := make(map[string]physicalColumn)
	for rows.Next() {
		var c physicalColumn
		var notNull int64
		if err := rows.Scan(&c.name, &c.typ, &notNull); err != nil {
			return nil, fmt.Errorf("inspect table %s: %w", name, err)
		}
		c.notNull = notNull != 0
		cols[c.name] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("inspect table %s: %w", name, err)
	}
	return cols, nil
}
