// Package jsonpatch implements JSON Patch (RFC 6902) over a typed JSON value model.
//
// Documents are represented by the Value tagged union (Null, Bool, Number, String,
// *Array, *Object) instead of interface{} trees, which keeps path resolution and
// equality checks exhaustive.
//
// Basic usage example:
//
//	doc, _ := jsonpatch.ParseValue([]byte(`{"id":"1","note":"old"}`))
//	patch, _ := jsonpatch.DecodePatch([]byte(`[{"op":"replace","path":"/note","value":"new"}]`))
//
//	result, err := patch.Apply(doc)
//	switch {
//	case err != nil:
//	    // invalid patch, unresolved path or conflict; result.Document is the original
//	case result.Outcome == jsonpatch.NotApplied:
//	    // a test operation failed; result.Document is the original
//	default:
//	    // result.Document is the patched copy
//	}
package jsonpatch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strconv"
)

// Kind identifies the variant held by a Value.
type Kind int

const (
	NullKind Kind = iota
	BoolKind
	NumberKind
	StringKind
	ArrayKind
	ObjectKind
)

func (k Kind) String() string {
	switch k {
	case NullKind:
		return "null"
	case BoolKind:
		return "boolean"
	case NumberKind:
		return "number"
	case StringKind:
		return "string"
	case ArrayKind:
		return "array"
	case ObjectKind:
		return "object"
	default:
		return "<unknown kind>"
	}
}

// Value is a JSON value. The concrete type is one of Null, Bool, Number, String,
// *Array or *Object.
type Value interface {
	Kind() Kind
	MarshalJSON() ([]byte, error)
}

// Null is the JSON null literal.
type Null struct{}

func (Null) Kind() Kind { return NullKind }

func (Null) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

// Bool is a JSON boolean.
type Bool bool

func (Bool) Kind() Kind { return BoolKind }

func (b Bool) MarshalJSON() ([]byte, error) { return strconv.AppendBool(nil, bool(b)), nil }

// String is a JSON string.
type String string

func (String) Kind() Kind { return StringKind }

func (s String) MarshalJSON() ([]byte, error) { return json.Marshal(string(s)) }

// Number is a JSON number kept in its literal form so that integers of any size
// survive a round trip.
type Number string

func (Number) Kind() Kind { return NumberKind }

func (n Number) MarshalJSON() ([]byte, error) {
	if n == "" {
		return []byte("0"), nil
	}
	return []byte(n), nil
}

// NumberFromInt returns the Number for i.
func NumberFromInt(i int64) Number {
	return Number(strconv.FormatInt(i, 10))
}

// NumberFromFloat returns the Number for f. NaN and infinities have no JSON
// representation and are rejected.
func NumberFromFloat(f float64) (Number, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("jsonpatch: %v is not a valid JSON number", f)
	}
	return Number(strconv.FormatFloat(f, 'g', -1, 64)), nil
}

// Rat returns the exact rational value of n.
func (n Number) Rat() (*big.Rat, bool) {
	return new(big.Rat).SetString(string(n))
}

// Int64 returns n as an int64 if it is an integer in range.
func (n Number) Int64() (int64, bool) {
	if i, err := strconv.ParseInt(string(n), 10, 64); err == nil {
		return i, true
	}
	r, ok := n.Rat()
	if !ok || !r.IsInt() || !r.Num().IsInt64() {
		return 0, false
	}
	return r.Num().Int64(), true
}

// Float64 returns the nearest float64 to n.
func (n Number) Float64() (float64, error) {
	return strconv.ParseFloat(string(n), 64)
}

// Array is a JSON array.
type Array struct {
	items []Value
}

// NewArray returns an array holding items.
func NewArray(items ...Value) *Array {
	a := &Array{items: make([]Value, 0, len(items))}
	for _, item := range items {
		a.items = append(a.items, orNull(item))
	}
	return a
}

func (*Array) Kind() Kind { return ArrayKind }

// Len returns the number of elements.
func (a *Array) Len() int { return len(a.items) }

// Index returns the element at i. It panics if i is out of range.
func (a *Array) Index(i int) Value { return a.items[i] }

// Items returns a copy of the element slice.
func (a *Array) Items() []Value {
	out := make([]Value, len(a.items))
	copy(out, a.items)
	return out
}

// Append adds v to the end of the array.
func (a *Array) Append(v Value) {
	a.items = append(a.items, orNull(v))
}

// Insert places v at index i, shifting later elements. i may equal Len.
func (a *Array) Insert(i int, v Value) {
	a.items = append(a.items, nil)
	copy(a.items[i+1:], a.items[i:])
	a.items[i] = orNull(v)
}

// Set overwrites the element at index i.
func (a *Array) Set(i int, v Value) {
	a.items[i] = orNull(v)
}

// Remove deletes and returns the element at index i.
func (a *Array) Remove(i int) Value {
	v := a.items[i]
	a.items = append(a.items[:i], a.items[i+1:]...)
	return v
}

func (a *Array) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, item := range a.items {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := orNull(item).MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// Object is a JSON object. Member order is preserved for output; equality
// ignores it.
type Object struct {
	keys   []string
	fields map[string]Value
}

// NewObject returns an empty object.
func NewObject() *Object {
	return &Object{fields: make(map[string]Value)}
}

func (*Object) Kind() Kind { return ObjectKind }

// Len returns the number of members.
func (o *Object) Len() int { return len(o.keys) }

// Keys returns the member names in insertion order.
func (o *Object) Keys() []string {
	out := make([]string, len(o.keys))
	copy(out, o.keys)
	return out
}

// Get returns the member named key.
func (o *Object) Get(key string) (Value, bool) {
	v, ok := o.fields[key]
	return v, ok
}

// Has reports whether the object has a member named key.
func (o *Object) Has(key string) bool {
	_, ok := o.fields[key]
	return ok
}

// Set adds or overwrites the member named key. An overwritten member keeps its
// position.
func (o *Object) Set(key string, v Value) {
	if o.fields == nil {
		o.fields = make(map[string]Value)
	}
	if _, ok := o.fields[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.fields[key] = orNull(v)
}

// Delete removes the member named key and reports whether it existed.
func (o *Object) Delete(key string) (Value, bool) {
	v, ok := o.fields[key]
	if !ok {
		return nil, false
	}
	delete(o.fields, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
	return v, true
}

func (o *Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := orNull(o.fields[key]).MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func orNull(v Value) Value {
	if v == nil {
		return Null{}
	}
	return v
}

// Clone returns a deep copy of v. Scalars are immutable and returned as is.
func Clone(v Value) Value {
	switch t := orNull(v).(type) {
	case *Array:
		out := &Array{items: make([]Value, len(t.items))}
		for i, item := range t.items {
			out.items[i] = Clone(item)
		}
		return out
	case *Object:
		out := &Object{
			keys:   make([]string, len(t.keys)),
			fields: make(map[string]Value, len(t.fields)),
		}
		copy(out.keys, t.keys)
		for k, item := range t.fields {
			out.fields[k] = Clone(item)
		}
		return out
	default:
		return t
	}
}

// Equal reports whether a and b are the same JSON value. Numbers compare by
// numeric value and objects compare without regard to member order.
func Equal(a, b Value) bool {
	a, b = orNull(a), orNull(b)
	if a.Kind() != b.Kind() {
		return false
	}
	switch x := a.(type) {
	case Null:
		return true
	case Bool:
		return x == b.(Bool)
	case String:
		return x == b.(String)
	case Number:
		y := b.(Number)
		if x == y {
			return true
		}
		rx, okx := x.Rat()
		ry, oky := y.Rat()
		return okx && oky && rx.Cmp(ry) == 0
	case *Array:
		y := b.(*Array)
		if len(x.items) != len(y.items) {
			return false
		}
		for i := range x.items {
			if !Equal(x.items[i], y.items[i]) {
				return false
			}
		}
		return true
	case *Object:
		y := b.(*Object)
		if len(x.fields) != len(y.fields) {
			return false
		}
		for k, xv := range x.fields {
			yv, ok := y.fields[k]
			if !ok || !Equal(xv, yv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
