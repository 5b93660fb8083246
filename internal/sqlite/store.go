// Package sqlite implements the relational store on SQLite.
//
// A Store owns a single-connection pool: SQLite allows one writer, and
// keeping one connection means connection-scoped pragmas set during schema
// synchronization stay in effect for the statements that follow them.
// Operations that take a types.Querier run on the handle they are given;
// the rest acquire a connection for the duration of the call.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"

	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/relmap/pkg/types"
)

// DriverName is the database/sql driver the store opens.
const DriverName = "sqlite"

// maxParams is the default bound-parameter limit per statement
// (SQLITE_MAX_VARIABLE_NUMBER).
const maxParams = 32766

// Store persists record sets into the tables of a schema.
type Store struct {
	db        *sql.DB
	schema    *types.Schema
	logger    *slog.Logger
	maxParams int
}

var _ types.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMaxParams lowers the number of bound parameters a single statement may
// carry. Multi-row inserts are split to respect it.
func WithMaxParams(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxParams = n
		}
	}
}

// Open opens the SQLite database at path for schema. The schema is validated
// first; tables are not touched until CreateTables is called.
func Open(path string, schema *types.Schema, opts ...Option) (*Store, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	db, err := sql.Open(DriverName, path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	s := New(db, schema, opts...)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", path, err)
	}
	s.logger.Debug("store opened", "path", path, "tables", len(schema.Tables))
	return s, nil
}

// New wraps an already open database handle. The pool is limited to one
// connection, which stays open between calls.
func New(db *sql.DB, schema *types.Schema, opts ...Option) *Store {
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	s := &Store{
		db:        db,
		schema:    schema,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		maxParams: maxParams,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schema returns the declared schema.
func (s *Store) Schema() *types.Schema { return s.schema }

// DB returns the underlying pool.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the pool.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// WithConn runs fn on a dedicated connection. The connection goes back to the
// pool on every exit path. fn must not call WithConn or WithTx itself: the
// pool holds one connection and a nested acquire blocks until ctx is done.
func (s *Store) WithConn(ctx context.Context, fn func(q types.Querier) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()
	return fn(conn)
}

// WithTx runs fn inside a transaction and commits when fn succeeds.
func (s *Store) WithTx(ctx context.Context, fn func(q types.Querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// CreateTables synchronizes every declared table on one connection.
func (s *Store) CreateTables(ctx context.Context) error {
	return s.WithConn(ctx, func(q types.Querier) error {
		_, err := s.Synchronize(ctx, q)
		return err
	})
}

// Save writes rs on one connection; see SaveRecordSet.
func (s *Store) Save(ctx context.Context, rs *types.RecordSet) error {
	return s.WithConn(ctx, func(q types.Querier) error {
		return s.SaveRecordSet(ctx, q, rs)
	})
}

// table resolves a declared table or returns a NotFoundError.
func (s *Store) table(name string) (*types.Table, error) {
	return s.schema.Table(name)
}
