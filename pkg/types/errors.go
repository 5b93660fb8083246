package types

import (
	"errors"
	"fmt"
)

// Sentinel errors. Typed errors below unwrap to one of these so callers can
// match with errors.Is.
var (
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrTableNotFound     = errors.New("table not defined")
	ErrColumnNotFound    = errors.New("column not found")
	ErrObjectNotDefined  = errors.New("object definition not found")
	ErrRecordNotFound    = errors.New("record not found")
	ErrTypeNotRegistered = errors.New("object type not registered")
	ErrTableMismatch     = errors.New("record group table mismatch")
	ErrTypeMismatch      = errors.New("value type mismatch")
	ErrCycle             = errors.New("object graph cycle")
)

// ConfigurationError reports a malformed or inconsistent schema or mapping
// definition. It is raised at load time, never at use time.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string { return "invalid configuration: " + e.Message }

func (e *ConfigurationError) Unwrap() error { return ErrInvalidConfig }

// ConfigErrorf creates a ConfigurationError with a formatted message.
func ConfigErrorf(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a reference to a table, column, object definition,
// record or registered type that does not exist.
type NotFoundError struct {
	Kind error  // one of the Err*NotFound / ErrObjectNotDefined sentinels
	Name string // what was looked up, e.g. "user.nick"
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%v: %s", e.Kind, e.Name) }

func (e *NotFoundError) Unwrap() error { return e.Kind }

// TableNotFound returns a NotFoundError for an undeclared table.
func TableNotFound(table string) *NotFoundError {
	return &NotFoundError{Kind: ErrTableNotFound, Name: table}
}

// ColumnNotFound returns a NotFoundError for a column missing from table.
func ColumnNotFound(table, column string) *NotFoundError {
	return &NotFoundError{Kind: ErrColumnNotFound, Name: table + "." + column}
}

// ObjectNotDefined returns a NotFoundError for an unknown object type.
func ObjectNotDefined(name string) *NotFoundError {
	return &NotFoundError{Kind: ErrObjectNotDefined, Name: name}
}

// RecordNotFound returns a NotFoundError for a missing identity.
func RecordNotFound(table string, id Value) *NotFoundError {
	return &NotFoundError{Kind: ErrRecordNotFound, Name: fmt.Sprintf("%s[%s]", table, id)}
}

// TypeNotRegistered returns a NotFoundError for an object type without a
// registry binding.
func TypeNotRegistered(name string) *NotFoundError {
	return &NotFoundError{Kind: ErrTypeNotRegistered, Name: name}
}
