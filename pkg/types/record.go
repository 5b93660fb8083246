package types

import "fmt"

// Record is one row staged for, or read from, a store: a table name, the
// primary key value, and column values.
type Record struct {
	Table string
	ID    Value

	values  map[string]Value
	columns []string // put order
}

// NewRecord creates an empty record for table with the given identity.
func NewRecord(table string, id Value) *Record {
	return &Record{
		Table:  table,
		ID:     id,
		values: make(map[string]Value),
	}
}

// Put sets a column value, replacing any previous value for the column.
func (r *Record) Put(column string, v Value) {
	if _, ok := r.values[column]; !ok {
		r.columns = append(r.columns, column)
	}
	r.values[column] = v
}

// Get returns the value of a column and whether the record carries it.
func (r *Record) Get(column string) (Value, bool) {
	v, ok := r.values[column]
	return v, ok
}

// Columns returns the columns the record carries, in put order.
func (r *Record) Columns() []string {
	return append([]string(nil), r.columns...)
}

// Len returns the number of columns the record carries.
func (r *Record) Len() int { return len(r.columns) }

func (r *Record) String() string {
	return fmt.Sprintf("%s[%s]", r.Table, r.ID)
}

// RecordGroup holds records of one table keyed by identity. Records keep
// the order in which they were first added.
type RecordGroup struct {
	Table string

	records map[Value]*Record
	order   []Value
}

// NewRecordGroup creates an empty group for table.
func NewRecordGroup(table string) *RecordGroup {
	return &RecordGroup{
		Table:   table,
		records: make(map[Value]*Record),
	}
}

// Add stages r unless a record with the same identity is already present.
// It reports whether r was added; a false result is an identity conflict
// resolved in favour of the record that arrived first.
func (g *RecordGroup) Add(r *Record) bool {
	if _, ok := g.records[r.ID]; ok {
		return false
	}
	g.records[r.ID] = r
	g.order = append(g.order, r.ID)
	return true
}

// Get returns the record with the given identity.
func (g *RecordGroup) Get(id Value) (*Record, bool) {
	r, ok := g.records[id]
	return r, ok
}

// Len returns the number of staged records.
func (g *RecordGroup) Len() int { return len(g.order) }

// IDs returns the staged identities in insertion order.
func (g *RecordGroup) IDs() []Value {
	return append([]Value(nil), g.order...)
}

// Records returns the staged records in insertion order.
func (g *RecordGroup) Records() []*Record {
	out := make([]*Record, len(g.order))
	for i, id := range g.order {
		out[i] = g.records[id]
	}
	return out
}

// Merge adds every record of other. Identities already present keep their
// record. Both groups must belong to the same table.
func (g *RecordGroup) Merge(other *RecordGroup) error {
	if other.Table != g.Table {
		return fmt.Errorf("%w: merging %q into %q", ErrTableMismatch, other.Table, g.Table)
	}
	for _, r := range other.Records() {
		g.Add(r)
	}
	return nil
}

// RecordSet holds record groups keyed by table name.
type RecordSet struct {
	groups map[string]*RecordGroup
	order  []string
}

// NewRecordSet creates an empty set.
func NewRecordSet() *RecordSet {
	return &RecordSet{groups: make(map[string]*RecordGroup)}
}

// group returns the group for table, creating it when absent.
func (s *RecordSet) group(table string) *RecordGroup {
	g, ok := s.groups[table]
	if !ok {
		g = NewRecordGroup(table)
		s.groups[table] = g
		s.order = append(s.order, table)
	}
	return g
}

// EnsureGroup returns the group for table, creating an empty one if needed.
func (s *RecordSet) EnsureGroup(table string) *RecordGroup { return s.group(table) }

// Group returns the group for table.
func (s *RecordSet) Group(table string) (*RecordGroup, bool) {
	g, ok := s.groups[table]
	return g, ok
}

// MergeRecord stages r in the group of its table; see RecordGroup.Add.
func (s *RecordSet) MergeRecord(r *Record) bool {
	return s.group(r.Table).Add(r)
}

// Merge merges every group of other into s, table by table.
func (s *RecordSet) Merge(other *RecordSet) {
	for _, table := range other.order {
		// Same table name on both sides, so Merge cannot fail.
		_ = s.group(table).Merge(other.groups[table])
	}
}

// Tables returns the table names in the order they were first staged.
func (s *RecordSet) Tables() []string {
	return append([]string(nil), s.order...)
}

// Len returns the total number of staged records.
func (s *RecordSet) Len() int {
	n := 0
	for _, g := range s.groups {
		n += g.Len()
	}
	return n
}

// AddColumn puts column=v on every staged record of table. Callers use it to
// point list children at their parent before saving them.
func (s *RecordSet) AddColumn(table, column string, v Value) {
	g, ok := s.groups[table]
	if !ok {
		return
	}
	for _, r := range g.records {
		r.Put(column, v)
	}
}
