package jsonpatch

// Outcome says whether a patch took effect.
type Outcome int

const (
	// Applied means every operation succeeded and Result.Document is the new
	// document.
	Applied Outcome = iota
	// NotApplied means the patch did not take effect and Result.Document is
	// the original document.
	NotApplied
)

func (o Outcome) String() string {
	if o == Applied {
		return "applied"
	}
	return "not applied"
}

// Result is what Apply produces when the patch is well formed.
type Result struct {
	Outcome  Outcome
	Document Value
	// Failure holds the failed test when Outcome is NotApplied because of a
	// test operation.
	Failure *Error
}

// Apply applies patch to doc. See Patch.Apply.
func Apply(doc Value, patch Patch) (Result, error) {
	return patch.Apply(doc)
}

// Apply runs the operations in order against a deep copy of doc; doc itself is
// never modified.
//
// If every operation succeeds the result is Applied with the new document. If
// a test operation fails the result is NotApplied with the original document
// and a nil error. Any other failure returns the original document and an
// *Error describing the failing operation.
func (p Patch) Apply(doc Value) (Result, error) {
	doc = orNull(doc)
	working := Clone(doc)

	for i, op := range p {
		next, e := op.apply(working)
		if e != nil {
			e.Index = i
			e.Op = op.Op
			e.Path = op.Path.String()
			if e.Kind == TestFailed {
				return Result{Outcome: NotApplied, Document: doc, Failure: e}, nil
			}
			return Result{Outcome: NotApplied, Document: doc}, e
		}
		working = next
	}

	return Result{Outcome: Applied, Document: working}, nil
}

func (o Operation) apply(doc Value) (Value, *Error) {
	switch o.Op {
	case OpAdd:
		return add(doc, o.Path, Clone(o.Value))
	case OpRemove:
		doc, _, e := remove(doc, o.Path)
		return doc, e
	case OpReplace:
		return replace(doc, o.Path, Clone(o.Value))
	case OpMove:
		return move(doc, o.From, o.Path)
	case OpCopy:
		v, e := resolve(doc, o.From)
		if e != nil {
			return nil, e
		}
		return add(doc, o.Path, Clone(v))
	case OpTest:
		return doc, test(doc, o.Path, o.Value)
	default:
		return nil, newError(InvalidPatch, "unknown op %q", o.Op)
	}
}

// resolve returns the value addressed by ptr.
func resolve(doc Value, ptr Pointer) (Value, *Error) {
	cur := doc
	for i, token := range ptr {
		switch c := cur.(type) {
		case *Object:
			v, ok := c.Get(token)
			if !ok {
				return nil, newError(PathNotFound, "member %q not found at %q", token, ptr[:i].String())
			}
			cur = v
		case *Array:
			idx, e := arrayIndex(token, c.Len(), false)
			if e != nil {
				return nil, e
			}
			cur = c.Index(idx)
		default:
			return nil, newError(PathNotFound, "cannot index %s at %q with %q", cur.Kind(), ptr[:i].String(), token)
		}
	}
	return cur, nil
}

// container resolves the parent of ptr and returns it with the final token.
func container(doc Value, ptr Pointer) (Value, string, *Error) {
	parentPtr, last := ptr.Parent()
	parent, e := resolve(doc, parentPtr)
	if e != nil {
		return nil, "", e
	}
	return parent, last, nil
}

func add(doc Value, ptr Pointer, v Value) (Value, *Error) {
	if ptr.IsRoot() {
		return v, nil
	}

	parent, last, e := container(doc, ptr)
	if e != nil {
		return nil, e
	}

	switch c := parent.(type) {
	case *Object:
		c.Set(last, v)
	case *Array:
		idx, e := arrayIndex(last, c.Len(), true)
		if e != nil {
			return nil, e
		}
		c.Insert(idx, v)
	default:
		return nil, newError(PathNotFound, "cannot add a member to %s at %q", parent.Kind(), ptr[:len(ptr)-1].String())
	}
	return doc, nil
}

func remove(doc Value, ptr Pointer) (Value, Value, *Error) {
	if ptr.IsRoot() {
		return nil, nil, newError(Conflict, "cannot remove the document root")
	}

	parent, last, e := container(doc, ptr)
	if e != nil {
		return nil, nil, e
	}

	switch c := parent.(type) {
	case *Object:
		v, ok := c.Delete(last)
		if !ok {
			return nil, nil, newError(PathNotFound, "member %q not found", last)
		}
		return doc, v, nil
	case *Array:
		idx, e := arrayIndex(last, c.Len(), false)
		if e != nil {
			return nil, nil, e
		}
		return doc, c.Remove(idx), nil
	default:
		return nil, nil, newError(PathNotFound, "cannot remove a member of %s", parent.Kind())
	}
}

func replace(doc Value, ptr Pointer, v Value) (Value, *Error) {
	if ptr.IsRoot() {
		return v, nil
	}

	parent, last, e := container(doc, ptr)
	if e != nil {
		return nil, e
	}

	switch c := parent.(type) {
	case *Object:
		if !c.Has(last) {
			return nil, newError(PathNotFound, "member %q not found", last)
		}
		c.Set(last, v)
	case *Array:
		idx, e := arrayIndex(last, c.Len(), false)
		if e != nil {
			return nil, e
		}
		c.Set(idx, v)
	default:
		return nil, newError(PathNotFound, "cannot replace a member of %s", parent.Kind())
	}
	return doc, nil
}

func move(doc Value, from, to Pointer) (Value, *Error) {
	if from.IsStrictPrefixOf(to) {
		return nil, newError(Conflict, "cannot move %q into its own child %q", from.String(), to.String())
	}
	if from.Equal(to) {
		if _, e := resolve(doc, from); e != nil {
			return nil, e
		}
		return doc, nil
	}

	doc, v, e := remove(doc, from)
	if e != nil {
		return nil, e
	}
	return add(doc, to, v)
}

func test(doc Value, ptr Pointer, want Value) *Error {
	got, e := resolve(doc, ptr)
	if e != nil {
		return newError(TestFailed, "%s", e.Message)
	}
	if !Equal(got, want) {
		gotJSON, _ := Marshal(got)
		wantJSON, _ := Marshal(want)
		return newError(TestFailed, "value %s does not equal %s", gotJSON, wantJSON)
	}
	return nil
}
