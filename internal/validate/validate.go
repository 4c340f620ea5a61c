// Package validate checks upsert payloads against embedded CUE schemas
// before any aggregate is loaded.
package validate

import (
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/roach88/worldforge/internal/es"
)

// FieldError codes.
const (
	CodeRequired     = "required"
	CodeInvalid      = "invalid"
	CodeUnknownField = "unknown_field"
)

//go:embed schemas/*.cue
var schemaFS embed.FS

// definitions maps entity types to the schema file and definition that
// describe their payloads.
var definitions = map[string]struct{ file, def string }{
	"item":   {"schemas/item.cue", "#Item"},
	"talent": {"schemas/talent.cue", "#Talent"},
}

// Validator validates payloads with CUE.
//
// Thread-safety: a cue.Context is not safe for concurrent use, so Validate
// serializes callers.
type Validator struct {
	mu   sync.Mutex
	ctx  *cue.Context
	defs map[string]cue.Value
}

// New compiles the embedded schemas.
func New() (*Validator, error) {
	ctx := cuecontext.New()
	v := &Validator{ctx: ctx, defs: make(map[string]cue.Value, len(definitions))}
	for entityType, d := range definitions {
		src, err := schemaFS.ReadFile(d.file)
		if err != nil {
			return nil, fmt.Errorf("failed to read schema %s: %w", d.file, err)
		}
		file := ctx.CompileBytes(src, cue.Filename(d.file))
		if err := file.Err(); err != nil {
			return nil, fmt.Errorf("failed to compile schema %s: %w", d.file, err)
		}
		def := file.LookupPath(cue.ParsePath(d.def))
		if !def.Exists() {
			return nil, fmt.Errorf("schema %s has no definition %s", d.file, d.def)
		}
		v.defs[entityType] = def
	}
	return v, nil
}

// EntityTypes lists the entity types with a schema.
func (v *Validator) EntityTypes() []string {
	types := make([]string, 0, len(v.defs))
	for t := range v.defs {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Validate implements upsert.Validator. payload is either raw JSON
// ([]byte or json.RawMessage) or a value that encodes to JSON. All failing
// fields are reported in one CodeValidation error, ordered by field.
func (v *Validator) Validate(entityType string, payload any) error {
	op := entityType + ".validate"
	def, ok := v.defs[entityType]
	if !ok {
		return es.Errorf(es.CodeInternal, op, "no schema for entity type %q", entityType)
	}

	var data []byte
	switch p := payload.(type) {
	case json.RawMessage:
		data = p
	case []byte:
		data = p
	default:
		encoded, err := json.Marshal(payload)
		if err != nil {
			return es.Wrap(es.CodeInternal, op, err)
		}
		data = encoded
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	doc := v.ctx.CompileBytes(data, cue.Filename("payload.json"))
	if err := doc.Err(); err != nil {
		return es.Validation(op, []es.FieldError{{Field: "", Code: CodeInvalid, Message: "payload is not a JSON object"}})
	}
	if doc.IncompleteKind() != cue.StructKind {
		return es.Validation(op, []es.FieldError{{Field: "", Code: CodeInvalid, Message: "payload must be an object"}})
	}

	err := def.Unify(doc).Validate(cue.Concrete(true))
	if err == nil {
		return nil
	}
	fields := fieldErrors(err)
	if len(fields) == 0 {
		return es.Wrap(es.CodeInternal, op, err)
	}
	return es.Validation(op, fields)
}

// fieldErrors converts CUE errors to one FieldError per field.
func fieldErrors(err error) []es.FieldError {
	byField := make(map[string]es.FieldError)
	for _, e := range cueerrors.Errors(err) {
		field := fieldPath(e.Path())
		if _, seen := byField[field]; seen {
			continue
		}
		format, args := e.Msg()
		msg := fmt.Sprintf(format, args...)
		byField[field] = es.FieldError{Field: field, Code: classify(msg), Message: msg}
	}

	out := make([]es.FieldError, 0, len(byField))
	for _, fe := range byField {
		out = append(out, fe)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}

func classify(msg string) string {
	switch {
	case strings.Contains(msg, "field not allowed"):
		return CodeUnknownField
	case strings.Contains(msg, "incomplete value"):
		return CodeRequired
	default:
		return CodeInvalid
	}
}

// fieldPath renders a CUE path as "requirements[0].tier", dropping the
// definition selector.
func fieldPath(path []string) string {
	var b strings.Builder
	for _, p := range path {
		if strings.HasPrefix(p, "#") {
			continue
		}
		if _, err := strconv.Atoi(p); err == nil {
			b.WriteString("[" + p + "]")
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(p)
	}
	return b.String()
}
