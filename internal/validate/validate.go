// Package validate checks scholarship documents against the embedded JSON schemas.
package validate

import (
	"embed"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"scholarships/pkg/jsonpatch"
)

// Schema names
const (
	Scholarship       = "Scholarship"
	CreateScholarship = "CreateScholarship"
)

//go:embed schemas/*.json
var schemaFS embed.FS

var schemaFiles = map[string]string{
	Scholarship:       "schemas/scholarship.json",
	CreateScholarship: "schemas/create_scholarship.json",
}

// Error lists the schema violations of a document
type Error struct {
	Schema  string
	Details []string
}

func (e *Error) Error() string {
	return fmt.Sprintf("document does not match %s: %s", e.Schema, strings.Join(e.Details, "; "))
}

// Validator holds the compiled schemas. It is safe for concurrent use.
type Validator struct {
	schemas map[string]*gojsonschema.Schema
}

// New compiles the embedded schemas
func New() (*Validator, error) {
	v := &Validator{schemas: make(map[string]*gojsonschema.Schema, len(schemaFiles))}
	for name, file := range schemaFiles {
		data, err := schemaFS.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", name, err)
		}
		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, err)
		}
		v.schemas[name] = schema
	}
	return v, nil
}

// Validate checks doc against the named schema. Violations are returned as *Error.
func (v *Validator) Validate(schema string, doc jsonpatch.Value) error {
	s, ok := v.schemas[schema]
	if !ok {
		return fmt.Errorf("unknown schema %q", schema)
	}

	data, err := jsonpatch.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	result, err := s.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("validate against %s: %w", schema, err)
	}
	if result.Valid() {
		return nil
	}

	verr := &Error{Schema: schema}
	for _, desc := range result.Errors() {
		verr.Details = append(verr.Details, desc.String())
	}
	return verr
}
