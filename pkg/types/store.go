package types

import (
	"context"
	"database/sql"
)

// Querier is the part of a database handle the store needs. *sql.DB,
// *sql.Conn and *sql.Tx all satisfy it; passing one explicitly lets a caller
// share a single connection across many operations.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// Store persists RecordSets into the tables of a Schema.
//
// Methods without a Querier acquire their own connection and release it on
// return. Methods with a Querier run on the handle they are given.
type Store interface {
	// Schema returns the declared schema the store was opened with.
	Schema() *Schema

	// WithConn runs fn on a dedicated connection and releases it on every
	// exit path.
	WithConn(ctx context.Context, fn func(q Querier) error) error

	// WithTx runs fn inside a transaction. The transaction commits when fn
	// returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(q Querier) error) error

	// CreateTables synchronizes every declared table with the physical store.
	CreateTables(ctx context.Context) error

	// Save writes rs, inserting new identities and updating existing ones.
	Save(ctx context.Context, rs *RecordSet) error

	// SaveRecordSet is Save on an explicit connection.
	SaveRecordSet(ctx context.Context, q Querier, rs *RecordSet) error

	// Query selects columns of table, optionally restricted to one identity.
	// The primary key is always projected. An empty column list projects
	// every declared column.
	Query(ctx context.Context, q Querier, table string, columns []string, id *Value) (*RecordSet, error)

	// RawQuery selects columns of table filtered by a caller supplied where
	// clause and its parameters.
	RawQuery(ctx context.Context, q Querier, table string, columns []string, where string, args ...any) (*RecordSet, error)

	// QueryRow returns every declared column of one record, or a
	// NotFoundError.
	QueryRow(ctx context.Context, q Querier, table string, id Value) (*Record, error)

	// Close releases the store.
	Close() error
}
