// Package mapper converts between Go object graphs and record sets.
//
// A Mapper pairs a validated types.Mapping with a Registry of Go types.
// Serializing walks an object and its nested objects into a RecordSet;
// querying reads records and rebuilds objects, resolving nested objects and
// child lists with further queries on the same connection.
package mapper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"reflect"

	"github.com/mesh-intelligence/relmap/pkg/types"
)

// Mapper maps registered Go types onto a store.
type Mapper struct {
	store   types.Store
	mapping *types.Mapping
	reg     *Registry
	logger  *slog.Logger
}

// Option configures a Mapper.
type Option func(*Mapper)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(m *Mapper) {
		if l != nil {
			m.logger = l
		}
	}
}

// New checks every registered type against its object definition and
// returns a Mapper. Each property source needs an accessor of the same kind,
// and object or list accessors must point at the Go type registered for the
// related definition.
func New(store types.Store, mapping *types.Mapping, reg *Registry, opts ...Option) (*Mapper, error) {
	m := &Mapper{
		store:   store,
		mapping: mapping,
		reg:     reg,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(m)
	}
	for _, name := range reg.Names() {
		if err := m.check(name); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Mapper) check(name string) error {
	info, _ := m.reg.lookup(name)
	def, err := m.mapping.Definition(name)
	if err != nil {
		return err
	}
	for _, src := range def.Sources {
		acc, ok := info.fields[src.Name]
		if !ok {
			return types.ConfigErrorf("type %s: no accessor for field %q", name, src.Name)
		}
		if acc.kind != src.Kind {
			return types.ConfigErrorf("type %s: field %q is mapped as %s, accessor is %s", name, src.Name, src.Kind, acc.kind)
		}
		if src.Kind == types.SourceScalar {
			continue
		}
		related, ok := m.reg.byName[src.Object]
		if !ok {
			return types.ConfigErrorf("type %s: field %q relates to unregistered type %s", name, src.Name, src.Object)
		}
		if related.goType != acc.related {
			return types.ConfigErrorf("type %s: field %q holds %s, but %s is registered as %s",
				name, src.Name, acc.related, src.Object, related.goType)
		}
	}
	for field := range info.fields {
		if _, ok := def.Source(field); !ok {
			return types.ConfigErrorf("type %s: accessor %q has no property source", name, field)
		}
	}
	return nil
}

// Mapping returns the mapping definitions.
func (m *Mapper) Mapping() *types.Mapping { return m.mapping }

// Registry returns the type registry.
func (m *Mapper) Registry() *Registry { return m.reg }

// ObjectToRecordSet flattens obj and the objects it references into a record
// set. Nested objects are staged before the object that points at them.
// Child lists are not written; save children on their own with their
// foreign key field set.
func (m *Mapper) ObjectToRecordSet(obj any) (*types.RecordSet, error) {
	rs := types.NewRecordSet()
	if _, err := m.serialize(obj, rs); err != nil {
		return nil, err
	}
	return rs, nil
}

// serialize stages obj into rs and returns its identity. The mapping is
// acyclic, so the walk terminates.
func (m *Mapper) serialize(obj any, rs *types.RecordSet) (types.Value, error) {
	info, obj, err := m.reg.infoOf(obj)
	if err != nil {
		return types.Null(), err
	}

	def, err := m.mapping.Definition(info.name)
	if err != nil {
		return types.Null(), err
	}
	id, err := m.identity(info, def, obj)
	if err != nil {
		return types.Null(), err
	}

	r := types.NewRecord(def.Table, id)
	for _, src := range def.Sources {
		acc := info.fields[src.Name]
		switch src.Kind {
		case types.SourceScalar:
			v, err := acc.get(obj)
			if err != nil {
				return types.Null(), fmt.Errorf("%s.%s: %w", info.name, src.Name, err)
			}
			r.Put(src.Column, v.(types.Value))
		case types.SourceObject:
			nested, err := acc.get(obj)
			if err != nil {
				return types.Null(), fmt.Errorf("%s.%s: %w", info.name, src.Name, err)
			}
			if nested == nil {
				r.Put(src.Column, types.Null())
				continue
			}
			nid, err := m.serialize(nested, rs)
			if err != nil {
				return types.Null(), err
			}
			r.Put(src.Column, nid)
		}
	}
	rs.MergeRecord(r)
	return id, nil
}

func (m *Mapper) identity(info *typeInfo, def *types.ObjectDefinition, obj any) (types.Value, error) {
	v, err := info.fields[def.IDField].get(obj)
	if err != nil {
		return types.Null(), fmt.Errorf("%s identity: %w", info.name, err)
	}
	id := v.(types.Value)
	if id.IsNull() {
		return types.Null(), fmt.Errorf("%w: %s has a null identity", types.ErrTypeMismatch, info.name)
	}
	return id, nil
}

// SaveObjects serializes objs into one record set and saves it through q.
func (m *Mapper) SaveObjects(ctx context.Context, q types.Querier, objs ...any) error {
	rs, err := m.recordSet(objs)
	if err != nil {
		return err
	}
	return m.store.SaveRecordSet(ctx, q, rs)
}

// Save serializes objs and saves them on one connection.
func (m *Mapper) Save(ctx context.Context, objs ...any) error {
	rs, err := m.recordSet(objs)
	if err != nil {
		return err
	}
	return m.store.Save(ctx, rs)
}

func (m *Mapper) recordSet(objs []any) (*types.RecordSet, error) {
	rs := types.NewRecordSet()
	for _, obj := range objs {
		one, err := m.ObjectToRecordSet(obj)
		if err != nil {
			return nil, err
		}
		rs.Merge(one)
	}
	m.logger.Debug("objects serialized", "objects", len(objs), "records", rs.Len())
	return rs, nil
}

// QueryObjects reads objects of typeName matching where (empty for all) and
// rebuilds them, including nested objects and child lists, through q. Each
// result is a *T of the registered type.
func (m *Mapper) QueryObjects(ctx context.Context, q types.Querier, typeName, where string, args ...any) ([]any, error) {
	info, err := m.reg.lookup(typeName)
	if err != nil {
		return nil, err
	}
	def, err := m.mapping.Definition(typeName)
	if err != nil {
		return nil, err
	}

	rs, err := m.store.RawQuery(ctx, q, def.Table, def.ProjectedColumns(), where, args...)
	if err != nil {
		return nil, err
	}
	g, _ := rs.Group(def.Table)
	records := g.Records()

	out := make([]any, 0, len(records))
	for _, r := range records {
		obj, err := m.build(ctx, q, info, def, r)
		if err != nil {
			return nil, err
		}
		out = append(out, obj)
	}
	return out, nil
}

// build creates one object from r, resolving sources in declared order.
func (m *Mapper) build(ctx context.Context, q types.Querier, info *typeInfo, def *types.ObjectDefinition, r *types.Record) (any, error) {
	obj := info.new()
	for _, src := range def.Sources {
		acc := info.fields[src.Name]
		switch src.Kind {
		case types.SourceScalar:
			v, _ := r.Get(src.Column)
			if err := acc.set(obj, v); err != nil {
				return nil, fmt.Errorf("%s %s: %w", info.name, r.ID, err)
			}

		case types.SourceObject:
			link, _ := r.Get(src.Column)
			if link.IsNull() {
				continue
			}
			related, err := m.mapping.Definition(src.Object)
			if err != nil {
				return nil, err
			}
			where := types.QuoteIdent(related.IDColumn()) + " = ?"
			found, err := m.QueryObjects(ctx, q, src.Object, where, link)
			if err != nil {
				return nil, err
			}
			if len(found) == 0 {
				m.logger.Debug("dangling link", "type", info.name, "field", src.Name, "link", link)
				continue
			}
			if err := acc.set(obj, found[0]); err != nil {
				return nil, err
			}

		case types.SourceList:
			where := types.QuoteIdent(src.Column) + " = ?"
			found, err := m.QueryObjects(ctx, q, src.Object, where, r.ID)
			if err != nil {
				return nil, err
			}
			if err := acc.set(obj, found); err != nil {
				return nil, err
			}
		}
	}
	return obj, nil
}

// Find is QueryObjects on a connection acquired for the whole call, nested
// lookups included.
func (m *Mapper) Find(ctx context.Context, typeName, where string, args ...any) ([]any, error) {
	var out []any
	err := m.store.WithConn(ctx, func(q types.Querier) error {
		var err error
		out, err = m.QueryObjects(ctx, q, typeName, where, args...)
		return err
	})
	return out, err
}

// FindByID returns the object of typeName with the given identity, or a
// NotFoundError.
func (m *Mapper) FindByID(ctx context.Context, typeName string, id any) (any, error) {
	def, err := m.mapping.Definition(typeName)
	if err != nil {
		return nil, err
	}
	v, err := types.ValueOf(id)
	if err != nil {
		return nil, err
	}
	found, err := m.Find(ctx, typeName, types.QuoteIdent(def.IDColumn())+" = ?", v)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, types.RecordNotFound(def.Table, v)
	}
	return found[0], nil
}

// QueryAs is QueryObjects for the type registered for T.
func QueryAs[T any](ctx context.Context, m *Mapper, q types.Querier, where string, args ...any) ([]*T, error) {
	info, ok := m.reg.byType[reflect.TypeFor[T]()]
	if !ok {
		return nil, types.TypeNotRegistered(reflect.TypeFor[T]().String())
	}
	found, err := m.QueryObjects(ctx, q, info.name, where, args...)
	if err != nil {
		return nil, err
	}
	out := make([]*T, len(found))
	for i, obj := range found {
		out[i] = obj.(*T)
	}
	return out, nil
}

// FindAs is Find for the type registered for T.
func FindAs[T any](ctx context.Context, m *Mapper, where string, args ...any) ([]*T, error) {
	var out []*T
	err := m.store.WithConn(ctx, func(q types.Querier) error {
		var err error
		out, err = QueryAs[T](ctx, m, q, where, args...)
		return err
	})
	return out, err
}
