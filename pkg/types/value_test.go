package types

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type status string

func TestValueOf(t *testing.T) {
	name := "ann"
	var nilName *string
	tests := []struct {
		name string
		in   any
		want Value
	}{
		{"nil", nil, Null()},
		{"int", 7, Int(7)},
		{"int64", int64(-3), Int(-3)},
		{"uint16", uint16(9), Int(9)},
		{"float", 1.5, Real(1.5)},
		{"float32", float32(0.5), Real(0.5)},
		{"bool true", true, Int(1)},
		{"bool false", false, Int(0)},
		{"string", "x", Text("x")},
		{"named string", status("open"), Text("open")},
		{"bytes", []byte{0, 1}, Blob([]byte{0, 1})},
		{"nil bytes", []byte(nil), Null()},
		{"pointer", &name, Text("ann")},
		{"nil pointer", nilName, Null()},
		{"value", Text("v"), Text("v")},
		{"time", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), Text("2024-01-02T03:04:05Z")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValueOf(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ValueOf(struct{}{})
	assert.ErrorIs(t, err, ErrTypeMismatch)
	_, err = ValueOf(uint64(1) << 63)
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestValueAssignTo(t *testing.T) {
	t.Run("integer into int types", func(t *testing.T) {
		var i int
		var i64 int64
		var u uint8
		require.NoError(t, Int(42).AssignTo(&i))
		require.NoError(t, Int(42).AssignTo(&i64))
		require.NoError(t, Int(42).AssignTo(&u))
		assert.Equal(t, 42, i)
		assert.Equal(t, int64(42), i64)
		assert.Equal(t, uint8(42), u)
		assert.ErrorIs(t, Int(300).AssignTo(&u), ErrTypeMismatch)
	})

	t.Run("integer into bool", func(t *testing.T) {
		var b bool
		require.NoError(t, Int(1).AssignTo(&b))
		assert.True(t, b)
		require.NoError(t, Int(0).AssignTo(&b))
		assert.False(t, b)
	})

	t.Run("null into pointer and value", func(t *testing.T) {
		s := new(string)
		*s = "old"
		n := 5
		require.NoError(t, Null().AssignTo(&s))
		require.NoError(t, Null().AssignTo(&n))
		assert.Nil(t, s)
		assert.Equal(t, 0, n)
	})

	t.Run("text into pointer", func(t *testing.T) {
		var s *string
		require.NoError(t, Text("hi").AssignTo(&s))
		require.NotNil(t, s)
		assert.Equal(t, "hi", *s)
	})

	t.Run("integer into text", func(t *testing.T) {
		var s string
		require.NoError(t, Int(1).AssignTo(&s))
		assert.Equal(t, "1", s)
	})

	t.Run("named string", func(t *testing.T) {
		var st status
		require.NoError(t, Text("closed").AssignTo(&st))
		assert.Equal(t, status("closed"), st)
	})

	t.Run("time round trip", func(t *testing.T) {
		want := time.Date(2024, 5, 6, 7, 8, 9, 10, time.UTC)
		v, err := ValueOf(want)
		require.NoError(t, err)
		var got time.Time
		require.NoError(t, v.AssignTo(&got))
		assert.True(t, want.Equal(got))
	})

	t.Run("mismatches", func(t *testing.T) {
		var n int
		var f float64
		assert.ErrorIs(t, Text("abc").AssignTo(&n), ErrTypeMismatch)
		assert.ErrorIs(t, Real(1.5).AssignTo(&n), ErrTypeMismatch)
		assert.ErrorIs(t, Blob([]byte{1}).AssignTo(&f), ErrTypeMismatch)
		assert.ErrorIs(t, Int(1).AssignTo(n), ErrTypeMismatch)
	})
}

func TestValueScan(t *testing.T) {
	var v Value
	require.NoError(t, v.Scan(int64(3)))
	assert.Equal(t, Int(3), v)
	require.NoError(t, v.Scan(nil))
	assert.True(t, v.IsNull())

	dv, err := Text("x").Value()
	require.NoError(t, err)
	assert.Equal(t, "x", dv)
}

func TestValueJSON(t *testing.T) {
	in := map[string]Value{
		"n":    Null(),
		"i":    Int(12),
		"r":    Real(2.5),
		"s":    Text("hello"),
		"b":    Blob([]byte("raw")),
		"bool": Bool(true),
	}
	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out map[string]Value
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)

	var v Value
	err = json.Unmarshal([]byte(`{"other": 1}`), &v)
	assert.True(t, errors.Is(err, ErrTypeMismatch))
}

func TestValueString(t *testing.T) {
	assert.Equal(t, "NULL", Null().String())
	assert.Equal(t, "-4", Int(-4).String())
	assert.Equal(t, "0.25", Real(0.25).String())
	assert.Equal(t, "x'0aff'", Blob([]byte{0x0a, 0xff}).String())
}

func TestValueCoerce(t *testing.T) {
	tests := []struct {
		name string
		in   Value
		typ  LogicalType
		want Value
	}{
		{"integer text to integer", Text("42"), TypeInteger, Int(42)},
		{"integral real to integer", Real(3), TypeInteger, Int(3)},
		{"fractional real stays on integer", Real(1.5), TypeInteger, Real(1.5)},
		{"word stays on integer", Text("abc"), TypeInteger, Text("abc")},
		{"integer text to boolean", Text("1"), TypeBoolean, Int(1)},
		{"integer to real", Int(2), TypeReal, Real(2)},
		{"numeric text to real", Text("2.5"), TypeReal, Real(2.5)},
		{"integer to text", Int(7), TypeText, Text("7")},
		{"real stays on text", Real(2), TypeText, Real(2)},
		{"blob unchanged", Blob([]byte("x")), TypeInteger, Blob([]byte("x"))},
		{"null unchanged", Null(), TypeInteger, Null()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Coerce(tt.typ))
		})
	}
}
