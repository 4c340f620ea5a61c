package es

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Code categorizes kernel errors. Codes are stable strings used by the CLI
// and by scenario files.
type Code string

const (
	// CodeNotFound indicates a missing aggregate or reference version.
	CodeNotFound Code = "not_found"

	// CodeValidation indicates a payload rejected before any mutation.
	CodeValidation Code = "validation"

	// CodePermissionDenied indicates the actor may not perform the command.
	CodePermissionDenied Code = "permission_denied"

	// CodeConflict indicates a uniqueness constraint such as a duplicate slug.
	CodeConflict Code = "conflict"

	// CodeQuotaExceeded indicates the write would exceed the owner's storage allocation.
	CodeQuotaExceeded Code = "quota_exceeded"

	// CodeVersionConflict indicates another writer advanced the aggregate first.
	CodeVersionConflict Code = "version_conflict"

	// CodeInvariantViolation indicates a domain rule rejected a mutation.
	CodeInvariantViolation Code = "invariant_violation"

	// CodeInternal indicates a programming or storage fault.
	CodeInternal Code = "internal"
)

// FieldError describes one invalid payload field.
type FieldError struct {
	Field   string `json:"field" yaml:"field"`
	Code    string `json:"code" yaml:"code"`
	Message string `json:"message" yaml:"message"`
}

// Error is the structured error returned across package boundaries.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Op names the operation that failed, e.g. "item.upsert".
	Op string

	// Message is a human-readable description.
	Message string

	// Fields lists every failing field for CodeValidation.
	Fields []FieldError

	// Details carries identifiers of the conflicting or exhausted resource.
	Details map[string]string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Code))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+"="+e.Details[k])
		}
		b.WriteString(" (")
		b.WriteString(strings.Join(parts, ", "))
		b.WriteString(")")
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error { return e.Cause }

// Errorf builds an *Error with a formatted message.
func Errorf(code Code, op, format string, args ...any) *Error {
	return &Error{Code: code, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and operation to err. A nil err returns nil.
func Wrap(code Code, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Op: op, Cause: err}
}

// WithDetail returns e with one more detail entry.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// NotFound reports a missing aggregate.
func NotFound(op string, id AggregateID) *Error {
	return Errorf(CodeNotFound, op, "aggregate %s not found", id).WithDetail("id", id.String())
}

// Invariant reports a domain rule violation raised inside a mutator.
func Invariant(op, format string, args ...any) *Error {
	return Errorf(CodeInvariantViolation, op, format, args...)
}

// Validation bundles field errors into one CodeValidation error.
func Validation(op string, fields []FieldError) *Error {
	return &Error{
		Code:    CodeValidation,
		Op:      op,
		Message: fmt.Sprintf("%d invalid field(s)", len(fields)),
		Fields:  fields,
	}
}

// ErrUninitialized is returned when a mutator or the version accessor is
// called before the aggregate's creation event has been applied.
var ErrUninitialized = &Error{Code: CodeInternal, Message: "uninitialized aggregate"}

// CodeOf returns the code of the first *Error in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsCode reports whether err carries code.
// Uses errors.As to handle wrapped errors.
func IsCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsNotFound reports whether err is a CodeNotFound error.
func IsNotFound(err error) bool { return IsCode(err, CodeNotFound) }

// IsVersionConflict reports whether err is a CodeVersionConflict error.
func IsVersionConflict(err error) bool { return IsCode(err, CodeVersionConflict) }

// IsQuotaExceeded reports whether err is a CodeQuotaExceeded error.
func IsQuotaExceeded(err error) bool { return IsCode(err, CodeQuotaExceeded) }

// IsRetryable reports whether the caller may reload and try again.
// Only version conflicts qualify; the kernel itself never retries.
func IsRetryable(err error) bool { return IsVersionConflict(err) }
