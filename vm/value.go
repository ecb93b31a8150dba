package vm

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Value: the tagged sum of every runtime value
// ---------------------------------------------------------------------------

// Value is a Candy runtime value. The concrete variants are Null, Bool, Int,
// Double, String, *Array, *Tuple, *Map, *Range, *Module, *Class, *Instance,
// *ErrorObject, *Function, *BoundMethod and *NativeFunction.
type Value interface {
	candyValue()
}

type nullValue struct{}

// Null is the single null value.
var Null Value = nullValue{}

// Bool is a Candy boolean.
type Bool bool

// Int is a 64-bit Candy integer.
type Int int64

// Double is a 64-bit Candy float.
type Double float64

// String is an immutable Candy string.
type String string

const (
	True  = Bool(true)
	False = Bool(false)
)

func (nullValue) candyValue() {}
func (Bool) candyValue()      {}
func (Int) candyValue()       {}
func (Double) candyValue()    {}
func (String) candyValue()    {}

// IsNull reports whether v is null. A nil interface counts as null so natives
// may return nil for "no value".
func IsNull(v Value) bool {
	return v == nil || v == Null
}

// Truthy reports the boolean value of v: null and false are falsy,
// everything else is truthy.
func Truthy(v Value) bool {
	switch v := v.(type) {
	case nil, nullValue:
		return false
	case Bool:
		return bool(v)
	}
	return true
}

// orNull maps a nil Value to Null.
func orNull(v Value) Value {
	if v == nil {
		return Null
	}
	return v
}

// ---------------------------------------------------------------------------
// Collections
// ---------------------------------------------------------------------------

// Array is a mutable sequence.
type Array struct {
	Elems []Value
}

// NewArray creates an array holding elems.
func NewArray(elems ...Value) *Array {
	return &Array{Elems: elems}
}

func (*Array) candyValue() {}

// Append adds v to the end of the array.
func (a *Array) Append(v Value) {
	a.Elems = append(a.Elems, v)
}

// Tuple is an immutable sequence.
type Tuple struct {
	Elems []Value
}

func (*Tuple) candyValue() {}

// Range is the half-open integer interval [Left, Right).
type Range struct {
	Left, Right int64
}

func (*Range) candyValue() {}

// Len returns the number of integers the range covers.
func (r *Range) Len() int64 {
	if r.Right < r.Left {
		return r.Left - r.Right
	}
	return r.Right - r.Left
}

// Map is an insertion-ordered hash map.
type Map struct {
	keys   []Value
	values []Value
	hashes []any
	index  map[any]int
}

// NewMap creates an empty map with room for n entries.
func NewMap(n int) *Map {
	if n < 0 {
		n = 0
	}
	return &Map{
		keys:   make([]Value, 0, n),
		values: make([]Value, 0, n),
		hashes: make([]any, 0, n),
		index:  make(map[any]int, n),
	}
}

func (*Map) candyValue() {}

// Len returns the number of entries.
func (m *Map) Len() int {
	return len(m.keys)
}

// Get returns the value stored under key.
func (m *Map) Get(key Value) (Value, bool) {
	return m.get(hashKey(key))
}

// Put stores value under key, keeping the original position of an existing
// key.
func (m *Map) Put(key, value Value) {
	m.put(hashKey(key), key, value)
}

// Remove deletes key and returns its value.
func (m *Map) Remove(key Value) (Value, bool) {
	return m.remove(hashKey(key))
}

func (m *Map) get(h any) (Value, bool) {
	i, ok := m.index[h]
	if !ok {
		return nil, false
	}
	return m.values[i], true
}

func (m *Map) put(h any, key, value Value) {
	if i, ok := m.index[h]; ok {
		m.values[i] = value
		return
	}
	m.index[h] = len(m.keys)
	m.keys = append(m.keys, key)
	m.values = append(m.values, value)
	m.hashes = append(m.hashes, h)
}

func (m *Map) remove(h any) (Value, bool) {
	i, ok := m.index[h]
	if !ok {
		return nil, false
	}
	old := m.values[i]
	delete(m.index, h)
	m.keys = append(m.keys[:i], m.keys[i+1:]...)
	m.values = append(m.values[:i], m.values[i+1:]...)
	m.hashes = append(m.hashes[:i], m.hashes[i+1:]...)
	for j := i; j < len(m.hashes); j++ {
		m.index[m.hashes[j]] = j
	}
	return old, true
}

// Keys returns the keys in insertion order.
func (m *Map) Keys() []Value {
	return m.keys
}

// Each calls fn for every entry in insertion order.
func (m *Map) Each(fn func(k, v Value)) {
	for i, k := range m.keys {
		fn(k, m.values[i])
	}
}

type tupleKey string

// hashKey maps a value to a comparable Go key. Numbers that compare equal
// share a key; tuples hash by content; reference values hash by identity.
func hashKey(v Value) any {
	switch v := v.(type) {
	case nil:
		return Null
	case Double:
		f := float64(v)
		if f == math.Trunc(f) && math.Abs(f) < 1<<62 {
			return Int(f)
		}
		return v
	case *Tuple:
		parts := make([]string, len(v.Elems))
		for i, e := range v.Elems {
			parts[i] = fmt.Sprintf("%T:%v", hashKey(e), hashKey(e))
		}
		return tupleKey(strings.Join(parts, "\x00"))
	case *Range:
		return *v
	}
	return v
}

// ---------------------------------------------------------------------------
// Formatting
// ---------------------------------------------------------------------------

// FormatDouble renders a double the way Candy prints it: integral values keep
// a trailing ".0".
func FormatDouble(d float64) string {
	switch {
	case math.IsInf(d, 1):
		return "Infinity"
	case math.IsInf(d, -1):
		return "-Infinity"
	case math.IsNaN(d):
		return "NaN"
	}
	s := strconv.FormatFloat(d, 'g', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

// Repr returns the default string form of v without dispatching to user
// defined _str methods. Use (*VM).Str for the full conversion.
func Repr(v Value) string {
	switch v := v.(type) {
	case nil, nullValue:
		return "null"
	case Bool:
		if v {
			return "true"
		}
		return "false"
	case Int:
		return strconv.FormatInt(int64(v), 10)
	case Double:
		return FormatDouble(float64(v))
	case String:
		return string(v)
	case *Range:
		return fmt.Sprintf("[%d, %d)", v.Left, v.Right)
	case *Class:
		return fmt.Sprintf("<class %s>", v.Name)
	case *Module:
		return fmt.Sprintf("<module %s>", v.Name)
	case *Function:
		return fmt.Sprintf("<function %s(%d)>", v.FullName(), v.Arity())
	case *BoundMethod:
		return fmt.Sprintf("<method %s(%d)>", v.Method.FullName(), v.Arity())
	case *NativeFunction:
		return fmt.Sprintf("<builtin %s(%d)>", v.FullName(), v.Arity())
	case *ErrorObject:
		return v.Class.Name + ": " + v.Message
	case *Instance:
		return fmt.Sprintf("<%s object>", v.Class.Name)
	}
	return fmt.Sprintf("%v", v)
}
