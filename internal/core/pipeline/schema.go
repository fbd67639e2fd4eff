package pipeline

import (
	stderrors "errors"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	ierrors "github.com/hookgate/hookgate/internal/errors"
)

// Schema is a compiled JSON Schema document for one provider payload.
type Schema struct {
	name     string
	compiled *jsonschema.Schema
}

// CompileSchema compiles a JSON Schema document registered under name.
func CompileSchema(name, document string) (*Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	url := "hookgate://schemas/" + name + ".json"
	if err := compiler.AddResource(url, strings.NewReader(document)); err != nil {
		return nil, err
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return nil, err
	}
	return &Schema{name: name, compiled: compiled}, nil
}

// MustCompileSchema is CompileSchema for package-level schema tables.
func MustCompileSchema(name, document string) *Schema {
	s, err := CompileSchema(name, document)
	if err != nil {
		panic("compile schema " + name + ": " + err.Error())
	}
	return s
}

func (s *Schema) Name() string {
	if s == nil {
		return ""
	}
	return s.name
}

// Validate checks a decoded JSON value. It returns nil when v conforms.
func (s *Schema) Validate(v any) []ierrors.FieldError {
	if s == nil || s.compiled == nil {
		return nil
	}

	err := s.compiled.Validate(v)
	if err == nil {
		return nil
	}

	var verr *jsonschema.ValidationError
	if !stderrors.As(err, &verr) {
		return []ierrors.FieldError{{Path: "", Message: err.Error()}}
	}

	var fields []ierrors.FieldError
	collectLeaves(verr, &fields)
	sort.SliceStable(fields, func(i, j int) bool { return fields[i].Path < fields[j].Path })
	return dedupFields(fields)
}

// collectLeaves flattens the cause tree; only leaves name a concrete failure.
func collectLeaves(verr *jsonschema.ValidationError, out *[]ierrors.FieldError) {
	if len(verr.Causes) == 0 {
		*out = append(*out, ierrors.FieldError{
			Path:    pointerToPath(verr.InstanceLocation),
			Message: verr.Message,
		})
		return
	}
	for _, cause := range verr.Causes {
		collectLeaves(cause, out)
	}
}

// pointerToPath turns a JSON pointer such as /alerts/0/status into alerts.0.status.
func pointerToPath(pointer string) string {
	pointer = strings.TrimPrefix(pointer, "/")
	if pointer == "" {
		return ""
	}
	parts := strings.Split(pointer, "/")
	for i, p := range parts {
		p = strings.ReplaceAll(p, "~1", "/")
		parts[i] = strings.ReplaceAll(p, "~0", "~")
	}
	return strings.Join(parts, ".")
}

func dedupFields(fields []ierrors.FieldError) []ierrors.FieldError {
	out := fields[:0]
	seen := make(map[ierrors.FieldError]struct{}, len(fields))
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}
