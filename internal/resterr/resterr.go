// Package resterr defines the typed errors raised by the filter compiler, the
// relationship extractor and the pivot synchronizer. Every error carries a
// machine-readable kind plus the resource context it was raised for.
package resterr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error for callers (transport layers map it to a status).
type Kind string

const (
	// KindNotFound marks a referenced resource that does not exist.
	KindNotFound Kind = "not_found"
	// KindValidation marks malformed input: bad payload shape, disallowed type, bad operator arity.
	KindValidation Kind = "validation"
	// KindConfiguration marks a schema-authoring defect such as an unresolvable path segment.
	KindConfiguration Kind = "configuration"
	// KindUnsupported marks a request the compiler refuses rather than degrading silently.
	KindUnsupported Kind = "unsupported"
	// KindConflict marks a storage-level uniqueness violation.
	KindConflict Kind = "conflict"
)

// Error is the single error type surfaced by the core packages.
type Error struct {
	Kind         Kind
	Message      string
	ResourceType string
	ResourceID   string
	Relationship string
	Field        string
	Allowed      []string
	Err          error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind so callers can use errors.Is(err, resterr.NotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

// Extensions renders the error context as a flat map for API error documents.
func (e *Error) Extensions() map[string]interface{} {
	ext := map[string]interface{}{
		"code": string(e.Kind),
	}
	if e.ResourceType != "" {
		ext["resource_type"] = e.ResourceType
	}
	if e.ResourceID != "" {
		ext["resource_id"] = e.ResourceID
	}
	if e.Relationship != "" {
		ext["relationship"] = e.Relationship
	}
	if e.Field != "" {
		ext["field"] = e.Field
	}
	if len(e.Allowed) > 0 {
		ext["allowed"] = append([]string(nil), e.Allowed...)
	}
	return ext
}

// Sentinels for errors.Is comparisons.
var (
	NotFound      = &Error{Kind: KindNotFound}
	Validation    = &Error{Kind: KindValidation}
	Configuration = &Error{Kind: KindConfiguration}
	Unsupported   = &Error{Kind: KindUnsupported}
	Conflict      = &Error{Kind: KindConflict}
)

// New builds an error of the given kind with a formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Configurationf reports a schema-authoring defect.
func Configurationf(format string, args ...interface{}) *Error {
	return New(KindConfiguration, format, args...)
}

// Validationf reports malformed input.
func Validationf(format string, args ...interface{}) *Error {
	return New(KindValidation, format, args...)
}

// Unsupportedf reports a request the core refuses to compile.
func Unsupportedf(format string, args ...interface{}) *Error {
	return New(KindUnsupported, format, args...)
}

// NotFoundf reports a missing referenced resource.
func NotFoundf(format string, args ...interface{}) *Error {
	return New(KindNotFound, format, args...)
}

// WithResource attaches the owning resource context.
func (e *Error) WithResource(resourceType, resourceID string) *Error {
	e.ResourceType = resourceType
	e.ResourceID = resourceID
	return e
}

// WithRelationship attaches the relationship name.
func (e *Error) WithRelationship(name string) *Error {
	e.Relationship = name
	return e
}

// WithField attaches the offending field path.
func (e *Error) WithField(field string) *Error {
	e.Field = field
	return e
}

// WithAllowed attaches the enumerated allowed values.
func (e *Error) WithAllowed(values []string) *Error {
	e.Allowed = append([]string(nil), values...)
	return e
}

// Wrap attaches an underlying cause.
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

// KindOf returns the kind of the first *Error in err's chain, or "" when none.
func KindOf(err error) Kind {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr.Kind
	}
	return ""
}
