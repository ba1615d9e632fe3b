// Package errors provides the error taxonomy shared by the field codec.
//
// Every failure the codec reports belongs to exactly one Kind. Typed errors
// carry field-scoped context and unwrap to the sentinel for their kind, so
// callers can classify with errors.Is or KindOf.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for each failure kind
var (
	// ErrUnrepresentable indicates content cannot be encoded in the target charset
	ErrUnrepresentable = errors.New("unrepresentable content")
	// ErrInsufficientSpace indicates the sink accepted fewer units than produced
	ErrInsufficientSpace = errors.New("insufficient space")
	// ErrAmbiguousCollision indicates a pad or escape marker collides with a delimiter
	ErrAmbiguousCollision = errors.New("ambiguous delimiter collision")
	// ErrMalformedValue indicates a value incompatible with its expected representation
	ErrMalformedValue = errors.New("malformed value")
	// ErrInvalidInput indicates invalid configuration or input
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound indicates a named resource was not found
	ErrNotFound = errors.New("not found")
)

// Kind classifies an error into the codec taxonomy.
type Kind int

const (
	// KindUnknown is any error outside the taxonomy.
	KindUnknown Kind = iota
	// KindUnrepresentable is UnrepresentableContent.
	KindUnrepresentable
	// KindInsufficientSpace is InsufficientSpace.
	KindInsufficientSpace
	// KindAmbiguousCollision is AmbiguousDelimiterCollision.
	KindAmbiguousCollision
	// KindMalformedValue is MalformedValue.
	KindMalformedValue
	// KindInvalidInput covers configuration and layout errors.
	KindInvalidInput
)

var kindNames = map[Kind]string{
	KindUnknown:            "Unknown",
	KindUnrepresentable:    "UnrepresentableContent",
	KindInsufficientSpace:  "InsufficientSpace",
	KindAmbiguousCollision: "AmbiguousDelimiterCollision",
	KindMalformedValue:     "MalformedValue",
	KindInvalidInput:       "InvalidInput",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// KindOf returns the taxonomy kind of err, or KindUnknown.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrUnrepresentable):
		return KindUnrepresentable
	case errors.Is(err, ErrInsufficientSpace):
		return KindInsufficientSpace
	case errors.Is(err, ErrAmbiguousCollision):
		return KindAmbiguousCollision
	case errors.Is(err, ErrMalformedValue):
		return KindMalformedValue
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	}
	return KindUnknown
}

// Stage names where in the pipeline a failure was detected.
type Stage string

const (
	StageEscape Stage = "escape"
	StagePad    Stage = "pad"
	StageWrite  Stage = "write"
)

// UnrepresentableError reports content that cannot be encoded
type UnrepresentableError struct {
	Field   string // Field being serialized, if known
	Charset string // Target character set
	Char    rune   // Offending character
	Offset  int    // Offset of Char in the content, in characters
	Stage   Stage  // Where the failure was detected
	Reason  string // Set when the failure is not a charset failure
	Err     error  // Underlying error, if any
}

func (e *UnrepresentableError) Error() string {
	prefix := "unrepresentable content"
	if e.Field != "" {
		prefix = fmt.Sprintf("field %s: unrepresentable content", e.Field)
	}
	if e.Reason != "" {
		return fmt.Sprintf("%s at %s: %s", prefix, e.Stage, e.Reason)
	}
	return fmt.Sprintf("%s at %s: %U at offset %d not in %s", prefix, e.Stage, e.Char, e.Offset, e.Charset)
}

func (e *UnrepresentableError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrUnrepresentable, e.Err}
	}
	return []error{ErrUnrepresentable}
}

// InsufficientSpaceError reports a short write to the sink
type InsufficientSpaceError struct {
	Field    string // Field being serialized, if known
	Expected int    // Units produced
	Actual   int    // Units the sink accepted
	Position int64  // Sink position (in bits) after the short write
	Err      error  // Underlying sink error, if any
}

func (e *InsufficientSpaceError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("field %s: insufficient space: expected %d units, wrote %d (bit position %d)",
			e.Field, e.Expected, e.Actual, e.Position)
	}
	return fmt.Sprintf("insufficient space: expected %d units, wrote %d (bit position %d)",
		e.Expected, e.Actual, e.Position)
}

func (e *InsufficientSpaceError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrInsufficientSpace, e.Err}
	}
	return []error{ErrInsufficientSpace}
}

// CollisionError reports a pad or escape marker colliding with a delimiter
type CollisionError struct {
	Field     string // Field whose configuration collides, if known
	Marker    string // The pad or escape marker
	Delimiter string // The colliding delimiter or marker
	Reason    string // Human-readable description
}

func (e *CollisionError) Error() string {
	msg := fmt.Sprintf("ambiguous delimiter collision: %q vs %q: %s", e.Marker, e.Delimiter, e.Reason)
	if e.Field != "" {
		return "field " + e.Field + ": " + msg
	}
	return msg
}

func (e *CollisionError) Unwrap() error {
	return ErrAmbiguousCollision
}

// MalformedValueError reports content that does not fit its expected representation
type MalformedValueError struct {
	Field  string // Field being processed, if known
	Type   string // Expected representation (e.g., "int", "escaped text")
	Value  string // Offending value (may be truncated)
	Offset int    // Offset within Value, -1 when not applicable
	Reason string // Human-readable description
	Err    error  // Underlying error, if any
}

func (e *MalformedValueError) Error() string {
	msg := fmt.Sprintf("malformed %s value %q: %s", e.Type, truncate(e.Value, 40), e.Reason)
	if e.Offset >= 0 {
		msg = fmt.Sprintf("%s (offset %d)", msg, e.Offset)
	}
	if e.Field != "" {
		return "field " + e.Field + ": " + msg
	}
	return msg
}

func (e *MalformedValueError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrMalformedValue, e.Err}
	}
	return []error{ErrMalformedValue}
}

// ValidationError represents an input validation error with context
type ValidationError struct {
	Field   string // Field name that failed validation
	Message string // Human-readable error message
	Err     error  // Underlying error, if any
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrInvalidInput, e.Err}
	}
	return []error{ErrInvalidInput}
}

// ParseError represents a layout parsing error
type ParseError struct {
	Format  string // Format being parsed (e.g., "layout", "XML layout")
	Path    string // File path, if applicable
	Message string // Error details
	Err     error  // Underlying error, if any
}

func (e *ParseError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("failed to parse %s at %s: %s", e.Format, e.Path, e.Message)
	}
	return fmt.Sprintf("failed to parse %s: %s", e.Format, e.Message)
}

func (e *ParseError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrInvalidInput, e.Err}
	}
	return []error{ErrInvalidInput}
}

// NotFoundError represents a named resource that does not exist
type NotFoundError struct {
	Resource string // Type of resource (e.g., "field", "charset")
	ID       string // Identifier of the resource
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// Helper functions for creating common errors

// NewUnrepresentable creates an UnrepresentableError for a charset failure
func NewUnrepresentable(charset string, char rune, offset int, stage Stage) *UnrepresentableError {
	return &UnrepresentableError{
		Charset: charset,
		Char:    char,
		Offset:  offset,
		Stage:   stage,
	}
}

// NewInsufficientSpace creates an InsufficientSpaceError
func NewInsufficientSpace(expected, actual int, position int64) *InsufficientSpaceError {
	return &InsufficientSpaceError{
		Expected: expected,
		Actual:   actual,
		Position: position,
	}
}

// NewCollision creates a CollisionError
func NewCollision(marker, delimiter, reason string) *CollisionError {
	return &CollisionError{
		Marker:    marker,
		Delimiter: delimiter,
		Reason:    reason,
	}
}

// NewMalformed creates a MalformedValueError
func NewMalformed(typ, value, reason string) *MalformedValueError {
	return &MalformedValueError{
		Type:   typ,
		Value:  value,
		Offset: -1,
		Reason: reason,
	}
}

// NewValidation creates a ValidationError
func NewValidation(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// NewParse creates a ParseError
func NewParse(format, path, message string) *ParseError {
	return &ParseError{
		Format:  format,
		Path:    path,
		Message: message,
	}
}

// NewNotFound creates a NotFoundError
func NewNotFound(resource, id string) *NotFoundError {
	return &NotFoundError{
		Resource: resource,
		ID:       id,
	}
}

// WithField stamps the field name onto a taxonomy error that lacks one.
// Errors outside the taxonomy are returned unchanged.
func WithField(err error, field string) error {
	var (
		u *UnrepresentableError
		s *InsufficientSpaceError
		c *CollisionError
		m *MalformedValueError
	)
	switch {
	case errors.As(err, &u):
		if u.Field == "" {
			u.Field = field
		}
	case errors.As(err, &s):
		if s.Field == "" {
			s.Field = field
		}
	case errors.As(err, &c):
		if c.Field == "" {
			c.Field = field
		}
	case errors.As(err, &m):
		if m.Field == "" {
			m.Field = field
		}
	}
	return err
}

// Wrap adds context to an error. If err is nil, returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf adds formatted context to an error. If err is nil, returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// Is wraps errors.Is for convenience
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// Join wraps errors.Join for convenience
func Join(errs ...error) error {
	return errors.Join(errs...)
}
