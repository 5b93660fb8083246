package types

import (
	"fmt"
	"strings"
)

// SourceKind says how a property of an object is stored.
type SourceKind string

// Property source kinds, spelled as in mapping documents.
const (
	SourceScalar SourceKind = "property" // column value
	SourceObject SourceKind = "object"   // nested object linked by a foreign key column
	SourceList   SourceKind = "list"     // child objects whose foreign key column points back
)

// Valid reports whether k is a known kind.
func (k SourceKind) Valid() bool {
	switch k {
	case SourceScalar, SourceObject, SourceList:
		return true
	}
	return false
}

// PropertySource maps one named field of an object type.
//
// For SourceScalar, Column holds the value. For SourceObject, Column in the
// object's own table holds the identity of the nested object. For
// SourceList, Column is the foreign key column in the related type's table
// that holds the parent identity.
type PropertySource struct {
	Name   string
	Kind   SourceKind
	Column string
	Object string // related object type for SourceObject and SourceList
}

// ObjectDefinition maps one object type to one table.
type ObjectDefinition struct {
	Name    string
	IDField string
	Table   string
	Sources []PropertySource
}

// Source returns the property source for a field.
func (d *ObjectDefinition) Source(field string) (PropertySource, bool) {
	for _, s := range d.Sources {
		if s.Name == field {
			return s, true
		}
	}
	return PropertySource{}, false
}

// IDColumn returns the column of the identity field.
func (d *ObjectDefinition) IDColumn() string {
	s, _ := d.Source(d.IDField)
	return s.Column
}

// ProjectedColumns returns the columns read for the object's own row: every
// scalar and object source column, in declaration order, without repeats.
func (d *ObjectDefinition) ProjectedColumns() []string {
	var cols []string
	seen := make(map[string]bool)
	for _, s := range d.Sources {
		if s.Kind == SourceList || seen[s.Column] {
			continue
		}
		seen[s.Column] = true
		cols = append(cols, s.Column)
	}
	return cols
}

// Mapping is a validated, read-only set of object definitions.
type Mapping struct {
	defs  []ObjectDefinition
	index map[string]int
}

// NewMapping validates defs against schema and returns the mapping. Every
// definition must map to a declared table, every source column must exist in
// the table that holds it, the identity field must be a scalar on the primary
// key, related types must be defined, and object/list references must not
// form a cycle.
func NewMapping(defs []ObjectDefinition, schema *Schema) (*Mapping, error) {
	m := &Mapping{
		defs:  append([]ObjectDefinition(nil), defs...),
		index: make(map[string]int, len(defs)),
	}
	for i, d := range m.defs {
		if d.Name == "" {
			return nil, ConfigErrorf("object definition without a name")
		}
		if _, dup := m.index[d.Name]; dup {
			return nil, ConfigErrorf("object %q defined twice", d.Name)
		}
		m.index[d.Name] = i
	}
	for i := range m.defs {
		if err := m.validateDefinition(&m.defs[i], schema); err != nil {
			return nil, err
		}
	}
	if err := m.checkAcyclic(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Mapping) validateDefinition(d *ObjectDefinition, schema *Schema) error {
	table, err := schema.Table(d.Table)
	if err != nil {
		return ConfigErrorf("object %q maps to undeclared table %q", d.Name, d.Table)
	}
	fields := make(map[string]bool, len(d.Sources))
	for _, s := range d.Sources {
		if s.Name == "" {
			return ConfigErrorf("object %q has a property source without a name", d.Name)
		}
		if fields[s.Name] {
			return ConfigErrorf("object %q maps field %q twice", d.Name, s.Name)
		}
		fields[s.Name] = true
		if !s.Kind.Valid() {
			return ConfigErrorf("field %s.%s has unknown source type %q", d.Name, s.Name, s.Kind)
		}
		holder := table
		if s.Kind != SourceScalar {
			related, ok := m.index[s.Object]
			if !ok {
				return ConfigErrorf("field %s.%s references undefined object %q", d.Name, s.Name, s.Object)
			}
			if s.Kind == SourceList {
				holder, err = schema.Table(m.defs[related].Table)
				if err != nil {
					return ConfigErrorf("field %s.%s: related object %q maps to undeclared table %q",
						d.Name, s.Name, s.Object, m.defs[related].Table)
				}
			}
		}
		if !holder.HasColumn(s.Column) {
			return ConfigErrorf("field %s.%s: column %q not in table %q", d.Name, s.Name, s.Column, holder.Name)
		}
	}
	id, ok := d.Source(d.IDField)
	if !ok {
		return ConfigErrorf("object %q: identity field %q is not mapped", d.Name, d.IDField)
	}
	if id.Kind != SourceScalar || id.Column != table.PrimaryKey {
		return ConfigErrorf("object %q: identity field %q must be a property on primary key %s.%s",
			d.Name, d.IDField, table.Name, table.PrimaryKey)
	}
	return nil
}

// checkAcyclic walks object and list references depth first.
func (m *Mapping) checkAcyclic() error {
	const (
		unvisited = iota
		onPath
		done
	)
	state := make([]int, len(m.defs))
	var path []string

	var visit func(i int) error
	visit = func(i int) error {
		state[i] = onPath
		path = append(path, m.defs[i].Name)
		for _, s := range m.defs[i].Sources {
			if s.Kind == SourceScalar {
				continue
			}
			j := m.index[s.Object]
			switch state[j] {
			case onPath:
				return fmt.Errorf("%w: %w", ConfigErrorf("object references form a cycle: %s -> %s",
					strings.Join(path, " -> "), s.Object), ErrCycle)
			case unvisited:
				if err := visit(j); err != nil {
					return err
				}
			}
		}
		path = path[:len(path)-1]
		state[i] = done
		return nil
	}

	for i := range m.defs {
		if state[i] == unvisited {
			if err := visit(i); err != nil {
				return err
			}
		}
	}
	return nil
}

// Definition returns the definition of an object type.
func (m *Mapping) Definition(name string) (*ObjectDefinition, error) {
	i, ok := m.index[name]
	if !ok {
		return nil, ObjectNotDefined(name)
	}
	return &m.defs[i], nil
}

// Names returns the defined object type names in declaration order.
func (m *Mapping) Names() []string {
	names := make([]string, len(m.defs))
	for i, d := range m.defs {
		names[i] = d.Name
	}
	return names
}
