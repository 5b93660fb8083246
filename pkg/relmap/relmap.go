// Package relmap is the public entry point: it loads schema and mapping
// definitions, opens the SQLite store, synchronizes its tables and exposes
// record and object level persistence.
//
// Example:
//
//	reg := mapper.NewRegistry()
//	mapper.MustRegister(reg, "User", ...)
//	eng, err := relmap.Open(ctx, relmap.Config{
//	    SchemaFile:  "schema.json",
//	    MappingFile: "mapping.json",
//	    DataDir:     ".relmap-db",
//	}, reg)
//	defer eng.Close()
package relmap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mesh-intelligence/relmap/internal/config"
	"github.com/mesh-intelligence/relmap/internal/sqlite"
	"github.com/mesh-intelligence/relmap/pkg/mapper"
	"github.com/mesh-intelligence/relmap/pkg/types"
)

// DefaultFilename names the database file when the schema does not.
const DefaultFilename = "relmap.db"

// SyncResult reports what synchronization did to one table.
type SyncResult = sqlite.SyncResult

// ErrNoMapping is returned by object operations on an engine opened without
// mapping definitions.
var ErrNoMapping = errors.New("no mapping definitions loaded")

// Config says where definitions and data live. Schema and Mapping, when set,
// take precedence over SchemaFile and MappingFile.
type Config struct {
	SchemaFile  string
	MappingFile string
	Schema      *types.Schema
	Mapping     *types.Mapping

	// DataDir holds the database file named by the schema. DatabasePath,
	// when set, is used as is.
	DataDir      string
	DatabasePath string

	// SkipSync leaves the physical tables untouched on open.
	SkipSync bool

	Logger *slog.Logger
}

// Engine ties a store to its definitions.
type Engine struct {
	store   *sqlite.Store
	schema  *types.Schema
	mapping *types.Mapping
	mapper  *mapper.Mapper
	synced  []SyncResult
	logger  *slog.Logger
}

// Open loads the definitions in cfg, opens the store and, unless
// cfg.SkipSync is set, synchronizes every declared table. reg may be nil when
// only record level access is needed.
func Open(ctx context.Context, cfg Config, reg *mapper.Registry) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	schema := cfg.Schema
	if schema == nil {
		if cfg.SchemaFile == "" {
			return nil, types.ConfigErrorf("no schema given")
		}
		var err error
		if schema, err = config.LoadSchema(cfg.SchemaFile); err != nil {
			return nil, err
		}
	}

	mapping := cfg.Mapping
	if mapping == nil && cfg.MappingFile != "" {
		var err error
		if mapping, err = config.LoadMapping(cfg.MappingFile, schema); err != nil {
			return nil, err
		}
	}

	path, err := databasePath(cfg, schema)
	if err != nil {
		return nil, err
	}
	store, err := sqlite.Open(path, schema, sqlite.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	e := &Engine{store: store, schema: schema, mapping: mapping, logger: logger}
	if mapping != nil {
		if reg == nil {
			reg = mapper.NewRegistry()
		}
		if e.mapper, err = mapper.New(store, mapping, reg, mapper.WithLogger(logger)); err != nil {
			store.Close()
			return nil, err
		}
	}

	if !cfg.SkipSync {
		if e.synced, err = e.Sync(ctx); err != nil {
			store.Close()
			return nil, err
		}
	}
	logger.Debug("engine opened", "path", path, "schema", schema.Name)
	return e, nil
}

func databasePath(cfg Config, schema *types.Schema) (string, error) {
	if cfg.DatabasePath != "" {
		return cfg.DatabasePath, nil
	}
	name := schema.Filename
	if name == "" {
		name = DefaultFilename
	}
	if cfg.DataDir == "" {
		return name, nil
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return "", fmt.Errorf("creating data dir: %w", err)
	}
	return filepath.Join(cfg.DataDir, name), nil
}

// Store returns the record level store.
func (e *Engine) Store() types.Store { return e.store }

// Schema returns the declared schema.
func (e *Engine) Schema() *types.Schema { return e.schema }

// Mapping returns the mapping definitions, or nil.
func (e *Engine) Mapping() *types.Mapping { return e.mapping }

// Mapper returns the object mapper, or nil without mapping definitions.
func (e *Engine) Mapper() *mapper.Mapper { return e.mapper }

// Synced returns the results of the synchronization run by Open.
func (e *Engine) Synced() []SyncResult { return e.synced }

// Sync synchronizes every declared table.
func (e *Engine) Sync(ctx context.Context) ([]SyncResult, error) {
	var res []SyncResult
	err := e.store.WithConn(ctx, func(q types.Querier) error {
		var err error
		res, err = e.store.Synchronize(ctx, q)
		return err
	})
	return res, err
}

// Save writes rs.
func (e *Engine) Save(ctx context.Context, rs *types.RecordSet) error {
	return e.store.Save(ctx, rs)
}

// Query selects columns of table, optionally one identity, on its own
// connection.
func (e *Engine) Query(ctx context.Context, table string, columns []string, id *types.Value) (*types.RecordSet, error) {
	var rs *types.RecordSet
	err := e.store.WithConn(ctx, func(q types.Querier) error {
		var err error
		rs, err = e.store.Query(ctx, q, table, columns, id)
		return err
	})
	return rs, err
}

// RawQuery selects columns of table filtered by where on its own connection.
func (e *Engine) RawQuery(ctx context.Context, table string, columns []string, where string, args ...any) (*types.RecordSet, error) {
	var rs *types.RecordSet
	err := e.store.WithConn(ctx, func(q types.Querier) error {
		var err error
		rs, err = e.store.RawQuery(ctx, q, table, columns, where, args...)
		return err
	})
	return rs, err
}

// SaveObjects serializes and saves objs.
func (e *Engine) SaveObjects(ctx context.Context, objs ...any) error {
	if e.mapper == nil {
		return ErrNoMapping
	}
	return e.mapper.Save(ctx, objs...)
}

// QueryObjects reads objects of typeName matching where.
func (e *Engine) QueryObjects(ctx context.Context, typeName, where string, args ...any) ([]any, error) {
	if e.mapper == nil {
		return nil, ErrNoMapping
	}
	return e.mapper.Find(ctx, typeName, where, args...)
}

// Export writes every table to dir as JSONL.
func (e *Engine) Export(ctx context.Context, dir string) (int, error) {
	var n int
	err := e.store.WithConn(ctx, func(q types.Querier) error {
		var err error
		n, err = e.store.ExportJSONL(ctx, q, dir)
		return err
	})
	return n, err
}

// Import loads the JSONL table files in dir in one transaction.
func (e *Engine) Import(ctx context.Context, dir string) (int, error) {
	var n int
	err := e.store.WithTx(ctx, func(q types.Querier) error {
		var err error
		n, err = e.store.ImportJSONL(ctx, q, dir)
		return err
	})
	return n, err
}

// Close closes the store.
func (e *Engine) Close() error {
	return e.store.Close()
}
