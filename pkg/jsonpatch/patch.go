package jsonpatch

import (
	"bytes"
	"encoding/json"
)

// OpType is the name of a patch operation.
type OpType string

const (
	OpAdd     OpType = "add"
	OpRemove  OpType = "remove"
	OpReplace OpType = "replace"
	OpMove    OpType = "move"
	OpCopy    OpType = "copy"
	OpTest    OpType = "test"
)

func (o OpType) valid() bool {
	switch o {
	case OpAdd, OpRemove, OpReplace, OpMove, OpCopy, OpTest:
		return true
	}
	return false
}

func (o OpType) needsValue() bool {
	return o == OpAdd || o == OpReplace || o == OpTest
}

func (o OpType) needsFrom() bool {
	return o == OpMove || o == OpCopy
}

// Operation is a single decoded patch operation.
type Operation struct {
	Op    OpType
	Path  Pointer
	From  Pointer
	Value Value
}

// MarshalJSON encodes the operation in its RFC 6902 form.
func (o Operation) MarshalJSON() ([]byte, error) {
	obj := NewObject()
	obj.Set("op", String(o.Op))
	if o.Op.needsFrom() {
		obj.Set("from", String(o.From.String()))
	}
	obj.Set("path", String(o.Path.String()))
	if o.Op.needsValue() {
		obj.Set("value", o.Value)
	}
	return obj.MarshalJSON()
}

// Patch is an ordered list of operations applied left to right.
type Patch []Operation

// MarshalJSON encodes the patch as a JSON array.
func (p Patch) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, op := range p {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := op.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// DecodePatch parses a JSON Patch document. Every failure is an *Error of kind
// InvalidPatch.
func DecodePatch(data []byte) (Patch, error) {
	v, err := ParseValue(data)
	if err != nil {
		return nil, newError(InvalidPatch, "malformed JSON: %v", err)
	}
	return PatchFromValue(v)
}

// PatchFromValue builds a Patch from an already decoded JSON array.
func PatchFromValue(v Value) (Patch, error) {
	arr, ok := v.(*Array)
	if !ok {
		return nil, newError(InvalidPatch, "patch must be a JSON array, got %s", orNull(v).Kind())
	}

	patch := make(Patch, 0, arr.Len())
	for i, item := range arr.items {
		op, e := decodeOperation(item)
		if e != nil {
			e.Index = i
			return nil, e
		}
		patch = append(patch, op)
	}
	return patch, nil
}

func decodeOperation(item Value) (Operation, *Error) {
	var op Operation

	obj, ok := item.(*Object)
	if !ok {
		return op, newError(InvalidPatch, "operation must be an object, got %s", item.Kind())
	}

	name, e := stringMember(obj, "op")
	if e != nil {
		return op, e
	}
	op.Op = OpType(name)
	if !op.Op.valid() {
		return op, newError(InvalidPatch, "unknown op %q", name)
	}

	path, e := stringMember(obj, "path")
	if e != nil {
		return op, e
	}
	if op.Path, e = parsePointer(path); e != nil {
		return op, e
	}

	if op.Op.needsValue() {
		v, ok := obj.Get("value")
		if !ok {
			return op, newError(InvalidPatch, "%s requires a value", op.Op)
		}
		op.Value = v
	}

	if op.Op.needsFrom() {
		from, e := stringMember(obj, "from")
		if e != nil {
			return op, e
		}
		if op.From, e = parsePointer(from); e != nil {
			return op, e
		}
	}

	return op, nil
}

func stringMember(obj *Object, name string) (string, *Error) {
	v, ok := obj.Get(name)
	if !ok {
		return "", newError(InvalidPatch, "missing %q", name)
	}
	s, ok := v.(String)
	if !ok {
		return "", newError(InvalidPatch, "%q must be a string, got %s", name, v.Kind())
	}
	return string(s), nil
}

func parsePointer(s string) (Pointer, *Error) {
	p, err := ParsePointer(s)
	if err != nil {
		return nil, err.(*Error)
	}
	return p, nil
}

// Marshal is a convenience wrapper around json.Marshal for any Value.
func Marshal(v Value) ([]byte, error) {
	return json.Marshal(orNull(v))
}
