package mapper

import (
	"fmt"
	"reflect"

	"github.com/mesh-intelligence/relmap/pkg/types"
)

// Registry maps object type names to Go types. Each registration carries a
// factory and one typed accessor per mapped field, so the mapper never
// resolves types or fields by name through reflection.
type Registry struct {
	byName map[string]*typeInfo
	byType map[reflect.Type]*typeInfo
	order  []string
}

type typeInfo struct {
	name   string
	goType reflect.Type // the struct type T; objects are *T
	new    func() any
	fields map[string]*accessor
}

// accessor is a type-erased field accessor. obj is always a *T.
type accessor struct {
	name    string
	kind    types.SourceKind
	related reflect.Type // N for object and list fields

	// scalar: get returns a types.Value and set receives one.
	// object: get returns a *N (nil when unset) and set receives one.
	// list: set receives a []any of *N; get is nil.
	get func(obj any) (any, error)
	set func(obj any, v any) error
}

// Field describes how one field of T maps to a property source. Build one
// with Scalar, Object or List.
type Field[T any] struct {
	acc *accessor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*typeInfo),
		byType: make(map[reflect.Type]*typeInfo),
	}
}

// Register binds the object type name to *T with the given fields.
func Register[T any](r *Registry, name string, fields ...Field[T]) error {
	goType := reflect.TypeFor[T]()
	if name == "" {
		return types.ConfigErrorf("register %s: empty type name", goType)
	}
	if _, ok := r.byName[name]; ok {
		return types.ConfigErrorf("register %s: type name %q already registered", goType, name)
	}
	if prev, ok := r.byType[goType]; ok {
		return types.ConfigErrorf("register %s: already registered as %q", goType, prev.name)
	}

	info := &typeInfo{
		name:   name,
		goType: goType,
		new:    func() any { return new(T) },
		fields: make(map[string]*accessor, len(fields)),
	}
	for _, f := range fields {
		if f.acc == nil {
			return types.ConfigErrorf("register %s: zero Field", name)
		}
		if _, ok := info.fields[f.acc.name]; ok {
			return types.ConfigErrorf("register %s: field %q mapped twice", name, f.acc.name)
		}
		info.fields[f.acc.name] = f.acc
	}
	r.byName[name] = info
	r.byType[goType] = info
	r.order = append(r.order, name)
	return nil
}

// MustRegister is Register that panics on error, for package-level setup.
func MustRegister[T any](r *Registry, name string, fields ...Field[T]) {
	if err := Register(r, name, fields...); err != nil {
		panic(err)
	}
}

// Names returns the registered type names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// New returns a new zero *T for the registered type name.
func (r *Registry) New(name string) (any, error) {
	info, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	return info.new(), nil
}

// TypeName returns the type name *T or T was registered under.
func (r *Registry) TypeName(obj any) (string, error) {
	info, _, err := r.infoOf(obj)
	if err != nil {
		return "", err
	}
	return info.name, nil
}

func (r *Registry) lookup(name string) (*typeInfo, error) {
	info, ok := r.byName[name]
	if !ok {
		return nil, types.TypeNotRegistered(name)
	}
	return info, nil
}

// infoOf resolves the registration of obj and returns obj as a *T. A T value
// is copied into a fresh *T.
func (r *Registry) infoOf(obj any) (*typeInfo, any, error) {
	if obj == nil {
		return nil, nil, fmt.Errorf("%w: nil object", types.ErrTypeMismatch)
	}
	rv := reflect.ValueOf(obj)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, nil, fmt.Errorf("%w: nil %T", types.ErrTypeMismatch, obj)
		}
		info, ok := r.byType[rv.Type().Elem()]
		if !ok {
			return nil, nil, types.TypeNotRegistered(rv.Type().Elem().String())
		}
		return info, obj, nil
	}
	info, ok := r.byType[rv.Type()]
	if !ok {
		return nil, nil, types.TypeNotRegistered(rv.Type().String())
	}
	p := reflect.New(rv.Type())
	p.Elem().Set(rv)
	return info, p.Interface(), nil
}

// Scalar maps a field of T stored in a single column. Values cross the
// storage boundary as types.Value; see types.ValueOf and Value.AssignTo for
// the supported Go types.
func Scalar[T, V any](name string, get func(*T) V, set func(*T, V)) Field[T] {
	return Field[T]{acc: &accessor{
		name: name,
		kind: types.SourceScalar,
		get: func(obj any) (any, error) {
			return types.ValueOf(get(obj.(*T)))
		},
		set: func(obj any, v any) error {
			var out V
			if err := v.(types.Value).AssignTo(&out); err != nil {
				return fmt.Errorf("field %s: %w", name, err)
			}
			set(obj.(*T), out)
			return nil
		},
	}}
}

// Object maps a field of T holding a nested *N linked through a foreign key
// column.
func Object[T, N any](name string, get func(*T) *N, set func(*T, *N)) Field[T] {
	return Field[T]{acc: &accessor{
		name:    name,
		kind:    types.SourceObject,
		related: reflect.TypeFor[N](),
		get: func(obj any) (any, error) {
			n := get(obj.(*T))
			if n == nil {
				return nil, nil
			}
			return n, nil
		},
		set: func(obj any, v any) error {
			n, ok := v.(*N)
			if !ok {
				return fmt.Errorf("%w: field %s wants *%s, got %T", types.ErrTypeMismatch, name, reflect.TypeFor[N](), v)
			}
			set(obj.(*T), n)
			return nil
		},
	}}
}

// List maps a field of T holding the children whose foreign key column points
// at T. Lists are filled on read only, so there is no getter.
func List[T, N any](name string, set func(*T, []*N)) Field[T] {
	return Field[T]{acc: &accessor{
		name:    name,
		kind:    types.SourceList,
		related: reflect.TypeFor[N](),
		set: func(obj any, v any) error {
			items := v.([]any)
			out := make([]*N, 0, len(items))
			for _, it := range items {
				n, ok := it.(*N)
				if !ok {
					return fmt.Errorf("%w: field %s wants *%s, got %T", types.ErrTypeMismatch, name, reflect.TypeFor[N](), it)
				}
				out = append(out, n)
			}
			set(obj.(*T), out)
			return nil
		},
	}}
}
