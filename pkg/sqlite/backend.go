// Package sqlite exposes the SQLite store for callers that work with records
// directly, without mapping definitions. The implementation stays internal.
//
// Example:
//
//	store, err := sqlite.Open("shop.db", schema, nil)
//	defer store.Close()
//	err = store.CreateTables(ctx)
package sqlite

import (
	"log/slog"

	"github.com/mesh-intelligence/relmap/internal/sqlite"
	"github.com/mesh-intelligence/relmap/pkg/types"
)

// Open opens the database file at path for schema. A nil logger discards
// log output.
func Open(path string, schema *types.Schema, logger *slog.Logger) (types.Store, error) {
	var opts []sqlite.Option
	if logger != nil {
		opts = append(opts, sqlite.WithLogger(logger))
	}
	return sqlite.Open(path, schema, opts...)
}
