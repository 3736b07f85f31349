package masedb

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"

	"github.com/autom8ter/masedb/errors"
	"github.com/spf13/cast"
)

// Kind is the type tag of a Value
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt64
	KindFloat64
	KindString
	KindArray
	KindDocument
)

var kindNames = map[Kind]string{
	KindNull:     "null",
	KindBool:     "bool",
	KindInt64:    "long",
	KindFloat64:  "double",
	KindString:   "string",
	KindArray:    "array",
	KindDocument: "object",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Value is an immutable, dynamically typed document value
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	arr  []Value
	doc  *Document
}

// Null returns the null value
func Null() Value { return Value{} }

// Bool returns a boolean value
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int returns a 64 bit integer value
func Int(i int64) Value { return Value{kind: KindInt64, i: i} }

// Float returns a 64 bit floating point value
func Float(f float64) Value { return Value{kind: KindFloat64, f: f} }

// String returns a string value
func String(s string) Value { return Value{kind: KindString, s: s} }

// Array returns an array value holding a copy of the given elements
func Array(elems ...Value) Value {
	cp := make([]Value, len(elems))
	copy(cp, elems)
	return Value{kind: KindArray, arr: cp}
}

// Doc returns a document value. A nil document is treated as an empty one.
func Doc(d *Document) Value {
	if d == nil {
		d = NewDocument()
	}
	return Value{kind: KindDocument, doc: d}
}

func arrayOf(elems []Value) Value { return Value{kind: KindArray, arr: elems} }

// Kind returns the value's type tag
func (v Value) Kind() Kind { return v.kind }

// IsNull returns true if the value is null
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsNumber returns true if the value is an Int64 or a Float64
func (v Value) IsNumber() bool { return v.kind == KindInt64 || v.kind == KindFloat64 }

// Bool returns the boolean payload (false for other kinds)
func (v Value) Bool() bool { return v.b }

// Int64 returns the integer payload. Float64 values are truncated.
func (v Value) Int64() int64 {
	if v.kind == KindFloat64 {
		return int64(v.f)
	}
	return v.i
}

// Float64 returns the numeric payload as a float64
func (v Value) Float64() float64 {
	if v.kind == KindInt64 {
		return float64(v.i)
	}
	return v.f
}

// Str returns the string payload (empty for other kinds)
func (v Value) Str() string { return v.s }

// Len returns the number of array elements or document fields
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.arr)
	case KindDocument:
		return v.doc.Len()
	}
	return 0
}

// Index returns the i'th array element
func (v Value) Index(i int) Value { return v.arr[i] }

// Elements returns a copy of the array elements
func (v Value) Elements() []Value {
	cp := make([]Value, len(v.arr))
	copy(cp, v.arr)
	return cp
}

// Document returns the document payload (nil for other kinds)
func (v Value) Document() *Document { return v.doc }

// Interface converts the value to plain Go values: nil, bool, int64, float64, string, []any, map[string]any
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt64:
		return v.i
	case KindFloat64:
		return v.f
	case KindString:
		return v.s
	case KindArray:
		out := make([]any, len(v.arr))
		for i, e := range v.arr {
			out[i] = e.Interface()
		}
		return out
	case KindDocument:
		return v.doc.Map()
	}
	return nil
}

// MarshalJSON encodes the value. NaN and infinities encode as null.
func (v Value) MarshalJSON() ([]byte, error) {
	var sb strings.Builder
	v.writeJSON(&sb)
	return []byte(sb.String()), nil
}

func (v Value) writeJSON(sb *strings.Builder) {
	switch v.kind {
	case KindBool:
		if v.b {
			sb.WriteString("true")
		} else {
			sb.WriteString("false")
		}
	case KindInt64:
		sb.WriteString(cast.ToString(v.i))
	case KindFloat64:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			sb.WriteString("null")
			return
		}
		bits, _ := json.Marshal(v.f)
		sb.Write(bits)
	case KindString:
		bits, _ := json.Marshal(v.s)
		sb.Write(bits)
	case KindArray:
		sb.WriteByte('[')
		for i, e := range v.arr {
			if i > 0 {
				sb.WriteByte(',')
			}
			e.writeJSON(sb)
		}
		sb.WriteByte(']')
	case KindDocument:
		v.doc.writeJSON(sb)
	default:
		sb.WriteString("null")
	}
}

func (v Value) String() string {
	bits, _ := v.MarshalJSON()
	return string(bits)
}

// Equal reports whether two values are equal. Int64 and Float64 compare by numeric value, NaN is never equal,
// arrays compare element-wise and documents compare field-wise in order. Any other cross-kind pair is unequal.
func Equal(a, b Value) bool {
	if a.IsNumber() && b.IsNumber() {
		c, ok := compareNumbers(a, b)
		return ok && c == 0
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindString:
		return a.s == b.s
	case KindArray:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !Equal(a.arr[i], b.arr[i]) {
				return false
			}
		}
		return true
	case KindDocument:
		return a.doc.Equal(b.doc)
	}
	return false
}

// Compare orders two values. ok is false when the values are not ordered relative to each other: only numbers
// (Int64/Float64, NaN excluded) and strings (byte-lexicographic) are ordered, and only within their own group.
func Compare(a, b Value) (c int, ok bool) {
	switch {
	case a.IsNumber() && b.IsNumber():
		return compareNumbers(a, b)
	case a.kind == KindString && b.kind == KindString:
		return strings.Compare(a.s, b.s), true
	}
	return 0, false
}

func compareNumbers(a, b Value) (int, bool) {
	switch {
	case a.kind == KindInt64 && b.kind == KindInt64:
		return compareInts(a.i, b.i), true
	case a.kind == KindFloat64 && b.kind == KindFloat64:
		if math.IsNaN(a.f) || math.IsNaN(b.f) {
			return 0, false
		}
		switch {
		case a.f < b.f:
			return -1, true
		case a.f > b.f:
			return 1, true
		}
		return 0, true
	case a.kind == KindInt64:
		return compareIntFloat(a.i, b.f)
	default:
		c, ok := compareIntFloat(b.i, a.f)
		return -c, ok
	}
}

func compareInts(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// compareIntFloat compares without converting i to float64, which would lose precision beyond 2^53
func compareIntFloat(i int64, f float64) (int, bool) {
	if math.IsNaN(f) {
		return 0, false
	}
	if f >= math.MaxInt64 {
		return -1, true
	}
	if f < math.MinInt64 {
		return 1, true
	}
	t := math.Trunc(f)
	if c := compareInts(i, int64(t)); c != 0 {
		return c, true
	}
	switch frac := f - t; {
	case frac > 0:
		return -1, true
	case frac < 0:
		return 1, true
	}
	return 0, true
}

// ValueOf converts a Go value into a Value. Supported inputs are nil, bools, all integer and float kinds, strings,
// slices/arrays, maps with string keys (fields sorted by name), Value, *Document, json.Number and, as a fallback,
// anything that round trips through encoding/json.
func ValueOf(in any) (Value, error) {
	switch in := in.(type) {
	case nil:
		return Null(), nil
	case Value:
		return in, nil
	case *Document:
		return Doc(in), nil
	case bool:
		return Bool(in), nil
	case string:
		return String(in), nil
	case int:
		return Int(int64(in)), nil
	case int8:
		return Int(int64(in)), nil
	case int16:
		return Int(int64(in)), nil
	case int32:
		return Int(int64(in)), nil
	case int64:
		return Int(in), nil
	case uint8:
		return Int(int64(in)), nil
	case uint16:
		return Int(int64(in)), nil
	case uint32:
		return Int(int64(in)), nil
	case uint, uint64:
		u := cast.ToUint64(in)
		if u > math.MaxInt64 {
			return Float(float64(u)), nil
		}
		return Int(int64(u)), nil
	case float32:
		return Float(float64(in)), nil
	case float64:
		return Float(in), nil
	case json.Number:
		if i, err := in.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := in.Float64()
		if err != nil {
			return Null(), errors.Wrap(err, errors.Validation, "invalid number: %s", in.String())
		}
		return Float(f), nil
	case []any:
		elems := make([]Value, len(in))
		for i, e := range in {
			v, err := ValueOf(e)
			if err != nil {
				return Null(), err
			}
			elems[i] = v
		}
		return arrayOf(elems), nil
	case []Value:
		return Array(in...), nil
	case map[string]any:
		keys := make([]string, 0, len(in))
		for k := range in {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fields := make([]Field, 0, len(in))
		for _, k := range keys {
			v, err := ValueOf(in[k])
			if err != nil {
				return Null(), err
			}
			fields = append(fields, Field{Name: k, Value: v})
		}
		return Value{kind: KindDocument, doc: &Document{fields: fields}}, nil
	}
	return reflectValueOf(in)
}

func reflectValueOf(in any) (Value, error) {
	rv := reflect.ValueOf(in)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return Null(), nil
		}
		if rv.Type().Elem().Kind() != reflect.Uint8 {
			elems := make([]Value, rv.Len())
			for i := 0; i < rv.Len(); i++ {
				v, err := ValueOf(rv.Index(i).Interface())
				if err != nil {
					return Null(), err
				}
				elems[i] = v
			}
			return arrayOf(elems), nil
		}
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			m := make(map[string]any, rv.Len())
			iter := rv.MapRange()
			for iter.Next() {
				m[iter.Key().String()] = iter.Value().Interface()
			}
			return ValueOf(m)
		}
	case reflect.Pointer:
		if rv.IsNil() {
			return Null(), nil
		}
	}
	bits, err := json.Marshal(in)
	if err != nil {
		return Null(), errors.Wrap(err, errors.Validation, "failed to json encode value: %#v", in)
	}
	return ParseValue(bits)
}

// MustValue is like ValueOf but panics on unsupported input. It is intended for literals in tests.
func MustValue(in any) Value {
	v, err := ValueOf(in)
	if err != nil {
		panic(err)
	}
	return v
}
