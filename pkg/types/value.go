package types

import (
	"bytes"
	"database/sql"
	"database/sql/driver"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"
)

// Kind tags the variant held by a Value.
type Kind uint8

// Value kinds, matching SQLite storage classes.
const (
	KindNull Kind = iota
	KindInteger
	KindReal
	KindText
	KindBlob
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInteger:
		return "integer"
	case KindReal:
		return "real"
	case KindText:
		return "text"
	case KindBlob:
		return "blob"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is a column value at the storage boundary. It is comparable and may
// be used as a map key, which is how record identities are keyed. Blobs are
// held as strings internally to keep the struct comparable.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
}

// Null returns the NULL value. The zero Value is also NULL.
func Null() Value { return Value{} }

// Int returns an integer value.
func Int(i int64) Value { return Value{kind: KindInteger, i: i} }

// Real returns a floating point value.
func Real(f float64) Value { return Value{kind: KindReal, f: f} }

// Text returns a text value.
func Text(s string) Value { return Value{kind: KindText, s: s} }

// Blob returns a blob value holding a copy of b. A nil slice is NULL.
func Blob(b []byte) Value {
	if b == nil {
		return Null()
	}
	return Value{kind: KindBlob, s: string(b)}
}

// Bool returns 1 for true and 0 for false; booleans are stored as integers.
func Bool(b bool) Value {
	if b {
		return Int(1)
	}
	return Int(0)
}

// Kind reports the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is NULL.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsInt returns the integer held by v. ok is false for other kinds.
func (v Value) AsInt() (int64, bool) { return v.i, v.kind == KindInteger }

// AsReal returns the float held by v. Integers widen to float.
func (v Value) AsReal() (float64, bool) {
	switch v.kind {
	case KindReal:
		return v.f, true
	case KindInteger:
		return float64(v.i), true
	}
	return 0, false
}

// AsText returns the string held by a text value.
func (v Value) AsText() (string, bool) { return v.s, v.kind == KindText }

// AsBlob returns a copy of the bytes held by a blob value.
func (v Value) AsBlob() ([]byte, bool) {
	if v.kind != KindBlob {
		return nil, false
	}
	return []byte(v.s), true
}

// Any returns the driver representation: nil, int64, float64, string or []byte.
func (v Value) Any() any {
	switch v.kind {
	case KindInteger:
		return v.i
	case KindReal:
		return v.f
	case KindText:
		return v.s
	case KindBlob:
		return []byte(v.s)
	default:
		return nil
	}
}

// Value implements driver.Valuer.
func (v Value) Value() (driver.Value, error) { return v.Any(), nil }

// Scan implements sql.Scanner.
func (v *Value) Scan(src any) error {
	nv, err := ValueOf(src)
	if err != nil {
		return err
	}
	*v = nv
	return nil
}

func (v Value) String() string {
	switch v.kind {
	case KindInteger:
		return strconv.FormatInt(v.i, 10)
	case KindReal:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindText:
		return v.s
	case KindBlob:
		return "x'" + hex.EncodeToString([]byte(v.s)) + "'"
	default:
		return "NULL"
	}
}

// ValueOf converts a Go or driver value into a Value. Pointers are followed
// (nil is NULL), named basic types are converted by kind, time.Time becomes
// RFC 3339 text.
func ValueOf(x any) (Value, error) {
	switch x := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
	case *Value:
		if x == nil {
			return Null(), nil
		}
		return *x, nil
	case int64:
		return Int(x), nil
	case int:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case float64:
		return Real(x), nil
	case bool:
		return Bool(x), nil
	case string:
		return Text(x), nil
	case []byte:
		return Blob(x), nil
	case time.Time:
		return Text(x.UTC().Format(time.RFC3339Nano)), nil
	case driver.Valuer:
		dv, err := x.Value()
		if err != nil {
			return Null(), err
		}
		return ValueOf(dv)
	}

	rv := reflect.ValueOf(x)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return Null(), nil
		}
		return ValueOf(rv.Elem().Interface())
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return Null(), fmt.Errorf("%w: %d overflows int64", ErrTypeMismatch, u)
		}
		return Int(int64(u)), nil
	case reflect.Float32, reflect.Float64:
		return Real(rv.Float()), nil
	case reflect.String:
		return Text(rv.String()), nil
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return Blob(rv.Bytes()), nil
		}
	}
	return Null(), fmt.Errorf("%w: unsupported Go type %T", ErrTypeMismatch, x)
}

// AssignTo stores v into the variable dest points to, converting between
// storage classes where the conversion is lossless. NULL assigns the zero
// value, or nil for pointer destinations.
func (v Value) AssignTo(dest any) error {
	switch d := dest.(type) {
	case *Value:
		*d = v
		return nil
	case *time.Time:
		t, err := v.toTime()
		if err != nil {
			return err
		}
		*d = t
		return nil
	case sql.Scanner:
		return d.Scan(v.Any())
	}

	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("%w: destination %T is not a non-nil pointer", ErrTypeMismatch, dest)
	}
	return v.assign(rv.Elem())
}

func (v Value) assign(dst reflect.Value) error {
	if dst.Kind() == reflect.Pointer {
		if v.IsNull() {
			dst.SetZero()
			return nil
		}
		p := reflect.New(dst.Type().Elem())
		if err := v.AssignTo(p.Interface()); err != nil {
			return err
		}
		dst.Set(p)
		return nil
	}
	if v.IsNull() {
		dst.SetZero()
		return nil
	}

	switch dst.Kind() {
	case reflect.Bool:
		n, err := v.toInt()
		if err != nil {
			return err
		}
		dst.SetBool(n != 0)
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := v.toInt()
		if err != nil {
			return err
		}
		if dst.OverflowInt(n) {
			return fmt.Errorf("%w: %d overflows %s", ErrTypeMismatch, n, dst.Type())
		}
		dst.SetInt(n)
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := v.toInt()
		if err != nil {
			return err
		}
		if n < 0 || dst.OverflowUint(uint64(n)) {
			return fmt.Errorf("%w: %d overflows %s", ErrTypeMismatch, n, dst.Type())
		}
		dst.SetUint(uint64(n))
		return nil
	case reflect.Float32, reflect.Float64:
		f, err := v.toReal()
		if err != nil {
			return err
		}
		dst.SetFloat(f)
		return nil
	case reflect.String:
		s, err := v.toText()
		if err != nil {
			return err
		}
		dst.SetString(s)
		return nil
	case reflect.Slice:
		if dst.Type().Elem().Kind() == reflect.Uint8 {
			b, err := v.toBlob()
			if err != nil {
				return err
			}
			dst.SetBytes(b)
			return nil
		}
	case reflect.Interface:
		if dst.NumMethod() == 0 {
			dst.Set(reflect.ValueOf(v.Any()))
			return nil
		}
	}
	return fmt.Errorf("%w: cannot assign %s to %s", ErrTypeMismatch, v.kind, dst.Type())
}

// Coerce returns v in the storage class SQLite gives it in a column of type t.
// Integer and boolean columns take integral reals and integer text as
// integers, real columns take integers and numeric text as reals, and text
// columns take integers as text. Any other value is returned unchanged.
func (v Value) Coerce(t LogicalType) Value {
	switch t {
	case TypeInteger, TypeBoolean:
		if v.kind == KindReal || v.kind == KindText {
			if i, err := v.toInt(); err == nil {
				return Int(i)
			}
		}
	case TypeReal:
		if v.kind == KindInteger || v.kind == KindText {
			if f, err := v.toReal(); err == nil {
				return Real(f)
			}
		}
	case TypeText:
		if v.kind == KindInteger {
			return Text(v.String())
		}
	}
	return v
}

func (v Value) toInt() (int64, error) {
	switch v.kind {
	case KindInteger:
		return v.i, nil
	case KindReal:
		if v.f == math.Trunc(v.f) && v.f >= math.MinInt64 && v.f <= math.MaxInt64 {
			return int64(v.f), nil
		}
	case KindText:
		if n, err := strconv.ParseInt(v.s, 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, fmt.Errorf("%w: %s %q is not an integer", ErrTypeMismatch, v.kind, v.String())
}

func (v Value) toReal() (float64, error) {
	if f, ok := v.AsReal(); ok {
		return f, nil
	}
	if v.kind == KindText {
		if f, err := strconv.ParseFloat(v.s, 64); err == nil {
			return f, nil
		}
	}
	return 0, fmt.Errorf("%w: %s %q is not a number", ErrTypeMismatch, v.kind, v.String())
}

func (v Value) toText() (string, error) {
	switch v.kind {
	case KindText, KindBlob:
		return v.s, nil
	case KindInteger, KindReal:
		return v.String(), nil
	}
	return "", fmt.Errorf("%w: %s is not text", ErrTypeMismatch, v.kind)
}

func (v Value) toBlob() ([]byte, error) {
	switch v.kind {
	case KindText, KindBlob:
		return []byte(v.s), nil
	}
	return nil, fmt.Errorf("%w: %s is not a blob", ErrTypeMismatch, v.kind)
}

func (v Value) toTime() (time.Time, error) {
	switch v.kind {
	case KindNull:
		return time.Time{}, nil
	case KindText:
		t, err := time.Parse(time.RFC3339Nano, v.s)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: parsing time %q: %v", ErrTypeMismatch, v.s, err)
		}
		return t, nil
	case KindInteger:
		return time.Unix(v.i, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: %s is not a time", ErrTypeMismatch, v.kind)
}

// blobJSON is the JSON shape of a blob value.
type blobJSON struct {
	Blob string `json:"$blob"`
}

// MarshalJSON encodes NULL as null, numbers as numbers, text as a string and
// blobs as {"$blob": "<base64>"}.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindInteger:
		return []byte(strconv.FormatInt(v.i, 10)), nil
	case KindReal:
		return json.Marshal(v.f)
	case KindText:
		return json.Marshal(v.s)
	case KindBlob:
		return json.Marshal(blobJSON{Blob: base64.StdEncoding.EncodeToString([]byte(v.s))})
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON is the inverse of MarshalJSON. Numbers without a fraction or
// exponent decode as integers; booleans decode as 0/1.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	switch x := raw.(type) {
	case nil:
		*v = Null()
	case bool:
		*v = Bool(x)
	case json.Number:
		if n, err := x.Int64(); err == nil {
			*v = Int(n)
			return nil
		}
		f, err := x.Float64()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTypeMismatch, err)
		}
		*v = Real(f)
	case string:
		*v = Text(x)
	case map[string]any:
		s, ok := x["$blob"].(string)
		if !ok || len(x) != 1 {
			return fmt.Errorf("%w: object is not a blob", ErrTypeMismatch)
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return fmt.Errorf("%w: decoding blob: %v", ErrTypeMismatch, err)
		}
		*v = Blob(b)
	default:
		return fmt.Errorf("%w: unsupported JSON %T", ErrTypeMismatch, raw)
	}
	return nil
}
