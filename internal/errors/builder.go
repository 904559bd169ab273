package errors

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// InternalError carries a hint safe to surface to the caller and a bag of
// reportable details for logs and API responses. The underlying cause keeps
// its full chain (including the classification mark) for errors.Is checks.
type InternalError struct {
	err     error
	hint    string
	details map[string]interface{}
}

func (e *InternalError) Error() string {
	return e.err.Error()
}

func (e *InternalError) Unwrap() error {
	return e.err
}

func (e *InternalError) Hint() string {
	return e.hint
}

func (e *InternalError) Details() map[string]interface{} {
	return e.details
}

// ErrorBuilder accumulates context before the error is classified with Mark.
type ErrorBuilder struct {
	err     error
	hint    string
	details map[string]interface{}
}

// NewError starts a builder from a fresh message.
func NewError(msg string) *ErrorBuilder {
	return &ErrorBuilder{err: errors.NewWithDepth(1, msg)}
}

// NewErrorf starts a builder from a formatted message.
func NewErrorf(format string, args ...interface{}) *ErrorBuilder {
	return &ErrorBuilder{err: errors.NewWithDepthf(1, format, args...)}
}

// WithError starts a builder wrapping an existing cause.
func WithError(err error) *ErrorBuilder {
	if err == nil {
		err = errors.NewWithDepth(1, "unknown error")
	}
	return &ErrorBuilder{err: err}
}

// WithHint attaches a caller-facing hint.
func (b *ErrorBuilder) WithHint(hint string) *ErrorBuilder {
	b.hint = hint
	return b
}

// WithHintf attaches a formatted caller-facing hint.
func (b *ErrorBuilder) WithHintf(format string, args ...interface{}) *ErrorBuilder {
	b.hint = fmt.Sprintf(format, args...)
	return b
}

// WithReportableDetails attaches structured details for logs and responses.
func (b *ErrorBuilder) WithReportableDetails(details map[string]interface{}) *ErrorBuilder {
	b.details = details
	return b
}

// Mark classifies the error with one of the package sentinels and finalizes it.
func (b *ErrorBuilder) Mark(mark error) error {
	err := errors.Mark(b.err, mark)
	if b.hint != "" {
		err = errors.WithHint(err, b.hint)
	}
	return &InternalError{
		err:     err,
		hint:    b.hint,
		details: b.details,
	}
}

// Hint returns the caller-facing hint from anywhere in the chain, or the
// top-level message when none was attached.
func Hint(err error) string {
	var ie *InternalError
	if errors.As(err, &ie) && ie.hint != "" {
		return ie.hint
	}
	if hints := errors.GetAllHints(err); len(hints) > 0 {
		return hints[0]
	}
	return err.Error()
}

// ReportableDetails returns the structured details from anywhere in the chain.
func ReportableDetails(err error) map[string]interface{} {
	var ie *InternalError
	if errors.As(err, &ie) {
		return ie.details
	}
	return nil
}
