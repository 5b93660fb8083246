package types

import (
	"fmt"
	"strings"
)

// LogicalType is the declared type of a column.
type LogicalType string

// Logical column types.
const (
	TypeInteger LogicalType = "integer"
	TypeReal    LogicalType = "real"
	TypeText    LogicalType = "text"
	TypeBlob    LogicalType = "blob"
	TypeBoolean LogicalType = "boolean"
)

// NullableMarker is the suffix on a type string that marks a column nullable,
// e.g. "text?".
const NullableMarker = "?"

// storageTypes maps logical types to SQLite column types.
var storageTypes = map[LogicalType]string{
	TypeInteger: "INTEGER",
	TypeReal:    "REAL",
	TypeText:    "TEXT",
	TypeBlob:    "BLOB",
	TypeBoolean: "INTEGER",
}

// zeroDefaults holds the DEFAULT used when a NOT NULL column is added to an
// existing table.
var zeroDefaults = map[LogicalType]string{
	TypeInteger: "0",
	TypeReal:    "0.0",
	TypeText:    "''",
	TypeBlob:    "x''",
	TypeBoolean: "0",
}

// StorageType returns the physical SQLite type for t.
func (t LogicalType) StorageType() string { return storageTypes[t] }

// ZeroLiteral returns the SQL literal of the zero value of t.
func (t LogicalType) ZeroLiteral() string { return zeroDefaults[t] }

// Valid reports whether t is one of the logical types.
func (t LogicalType) Valid() bool {
	_, ok := storageTypes[t]
	return ok
}

// ParseColumnType parses a type string such as "integer" or "text?".
func ParseColumnType(s string) (LogicalType, bool, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	nullable := strings.HasSuffix(s, NullableMarker)
	t := LogicalType(strings.TrimSuffix(s, NullableMarker))
	if t == "" {
		return "", false, ConfigErrorf("missing column type")
	}
	if !t.Valid() {
		return "", false, ConfigErrorf("unknown column type %q", s)
	}
	return t, nullable, nil
}

// QuoteIdent quotes a SQL identifier.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteIdents quotes each name and joins them with commas.
func QuoteIdents(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = QuoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}

// Column is a declared table column.
type Column struct {
	Name     string
	Type     LogicalType
	Nullable bool
}

// Definition renders the column for CREATE TABLE.
func (c Column) Definition(primaryKey bool) string {
	var b strings.Builder
	b.WriteString(QuoteIdent(c.Name))
	b.WriteString(" ")
	b.WriteString(c.Type.StorageType())
	if !c.Nullable {
		b.WriteString(" NOT NULL")
	}
	if primaryKey {
		b.WriteString(" PRIMARY KEY")
	}
	return b.String()
}

// AddDefinition renders the column for ALTER TABLE ADD COLUMN. SQLite rejects
// NOT NULL columns without a default there, so those get the zero value of
// their type.
func (c Column) AddDefinition() string {
	def := c.Definition(false)
	if !c.Nullable {
		def += " DEFAULT " + c.Type.ZeroLiteral()
	}
	return def
}

// ForeignKey links a column to a column of another table. It is declarative
// and not enforced by the store.
type ForeignKey struct {
	Column    string
	RefTable  string
	RefColumn string
}

// Table is a declared table.
type Table struct {
	Name        string
	Columns     []Column
	PrimaryKey  string
	ForeignKeys []ForeignKey
}

// Column returns the declared column with the given name.
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// HasColumn reports whether name is a declared column.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.Column(name)
	return ok
}

// ColumnNames returns the column names in declaration order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// CreateStatement renders CREATE TABLE IF NOT EXISTS for t.
func (t *Table) CreateStatement() string {
	defs := make([]string, 0, len(t.Columns)+len(t.ForeignKeys))
	for _, c := range t.Columns {
		defs = append(defs, c.Definition(c.Name == t.PrimaryKey))
	}
	for _, fk := range t.ForeignKeys {
		defs = append(defs, fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s)",
			QuoteIdent(fk.Column), QuoteIdent(fk.RefTable), QuoteIdent(fk.RefColumn)))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n    %s\n)",
		QuoteIdent(t.Name), strings.Join(defs, ",\n    "))
}

// validate checks the table on its own; references to other tables are
// checked by Schema.Validate.
func (t *Table) validate() error {
	if t.Name == "" {
		return ConfigErrorf("table without a name")
	}
	if len(t.Columns) == 0 {
		return ConfigErrorf("table %q declares no columns", t.Name)
	}
	seen := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		if c.Name == "" {
			return ConfigErrorf("table %q has a column without a name", t.Name)
		}
		if seen[c.Name] {
			return ConfigErrorf("table %q declares column %q twice", t.Name, c.Name)
		}
		seen[c.Name] = true
		if !c.Type.Valid() {
			return ConfigErrorf("column %s.%s has unknown type %q", t.Name, c.Name, c.Type)
		}
	}
	if !seen[t.PrimaryKey] {
		return ConfigErrorf("primary key %q of table %q is not a declared column", t.PrimaryKey, t.Name)
	}
	for _, fk := range t.ForeignKeys {
		if !seen[fk.Column] {
			return ConfigErrorf("foreign key column %s.%s is not declared", t.Name, fk.Column)
		}
	}
	return nil
}

// Schema is the declared logical schema of one store.
type Schema struct {
	Name     string
	Filename string
	Tables   []Table
}

// Table returns the declared table with the given name.
func (s *Schema) Table(name string) (*Table, error) {
	for i := range s.Tables {
		if s.Tables[i].Name == name {
			return &s.Tables[i], nil
		}
	}
	return nil, TableNotFound(name)
}

// TableNames returns the table names in declaration order.
func (s *Schema) TableNames() []string {
	names := make([]string, len(s.Tables))
	for i, t := range s.Tables {
		names[i] = t.Name
	}
	return names
}

// Validate checks every table and every foreign key reference.
func (s *Schema) Validate() error {
	seen := make(map[string]bool, len(s.Tables))
	for i := range s.Tables {
		t := &s.Tables[i]
		if err := t.validate(); err != nil {
			return err
		}
		if seen[t.Name] {
			return ConfigErrorf("table %q declared twice", t.Name)
		}
		seen[t.Name] = true
	}
	for i := range s.Tables {
		t := &s.Tables[i]
		for _, fk := range t.ForeignKeys {
			ref, err := s.Table(fk.RefTable)
			if err != nil {
				return ConfigErrorf("foreign key %s.%s references undeclared table %q", t.Name, fk.Column, fk.RefTable)
			}
			if !ref.HasColumn(fk.RefColumn) {
				return ConfigErrorf("foreign key %s.%s references undeclared column %s.%s", t.Name, fk.Column, fk.RefTable, fk.RefColumn)
			}
		}
	}
	return nil
}
