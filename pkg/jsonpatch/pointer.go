package jsonpatch

import (
	"strconv"
	"strings"
)

// Pointer is a parsed JSON Pointer (RFC 6901). The empty pointer addresses the
// whole document.
type Pointer []string

var (
	tokenEscaper   = strings.NewReplacer("~", "~0", "/", "~1")
	tokenUnescaper = strings.NewReplacer("~1", "/", "~0", "~")
)

// ParsePointer parses s. A non-empty pointer must start with '/' and may only
// use the escapes ~0 and ~1.
func ParsePointer(s string) (Pointer, error) {
	if s == "" {
		return Pointer{}, nil
	}
	if s[0] != '/' {
		return nil, newError(InvalidPatch, "pointer %q must be empty or start with '/'", s)
	}

	parts := strings.Split(s[1:], "/")
	for i, part := range parts {
		if err := checkEscapes(part); err != nil {
			return nil, newError(InvalidPatch, "pointer %q: %s", s, err.Message)
		}
		parts[i] = tokenUnescaper.Replace(part)
	}
	return Pointer(parts), nil
}

func checkEscapes(token string) *Error {
	for i := 0; i < len(token); i++ {
		if token[i] != '~' {
			continue
		}
		if i+1 >= len(token) || (token[i+1] != '0' && token[i+1] != '1') {
			return newError(InvalidPatch, "invalid escape in token %q", token)
		}
		i++
	}
	return nil
}

// String returns the pointer in its escaped textual form.
func (p Pointer) String() string {
	if len(p) == 0 {
		return ""
	}
	var b strings.Builder
	for _, token := range p {
		b.WriteByte('/')
		b.WriteString(tokenEscaper.Replace(token))
	}
	return b.String()
}

// IsRoot reports whether p addresses the whole document.
func (p Pointer) IsRoot() bool { return len(p) == 0 }

// Parent splits p into the pointer to its container and the final token.
// It must not be called on the root pointer.
func (p Pointer) Parent() (Pointer, string) {
	return p[:len(p)-1], p[len(p)-1]
}

// Equal reports whether p and q address the same location.
func (p Pointer) Equal(q Pointer) bool {
	if len(p) != len(q) {
		return false
	}
	for i := range p {
		if p[i] != q[i] {
			return false
		}
	}
	return true
}

// IsStrictPrefixOf reports whether q addresses a location strictly inside the
// one addressed by p.
func (p Pointer) IsStrictPrefixOf(q Pointer) bool {
	if len(p) >= len(q) {
		return false
	}
	for i := range p {
		if p[i] != q[i] {
			return false
		}
	}
	return true
}

// arrayIndex converts token into an index for an array of the given length.
// With forInsert the index may equal length and "-" means length.
func arrayIndex(token string, length int, forInsert bool) (int, *Error) {
	if token == "-" {
		if forInsert {
			return length, nil
		}
		return 0, newError(PathNotFound, "index '-' refers past the end of the array")
	}
	if token == "" || (len(token) > 1 && token[0] == '0') {
		return 0, newError(PathNotFound, "invalid array index %q", token)
	}
	for i := 0; i < len(token); i++ {
		if token[i] < '0' || token[i] > '9' {
			return 0, newError(PathNotFound, "invalid array index %q", token)
		}
	}

	idx, err := strconv.Atoi(token)
	if err != nil {
		return 0, newError(PathNotFound, "array index %q out of range", token)
	}
	if idx > length || (!forInsert && idx == length) {
		return 0, newError(PathNotFound, "array index %d out of range for length %d", idx, length)
	}
	return idx, nil
}
