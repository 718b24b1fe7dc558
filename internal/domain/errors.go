package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies failures so callers can map them to responses.
type Kind string

const (
	KindValidation         Kind = "validation"
	KindEmbeddingFailure   Kind = "embedding_failure"
	KindIndexUnreachable   Kind = "index_unreachable"
	KindTimeout            Kind = "timeout"
	KindEmptyResult        Kind = "empty_result"
	KindGenerationFailure  Kind = "generation_failure"
	KindIngestionIntegrity Kind = "ingestion_integrity"
)

// ErrDimensionMismatch is returned by indexes when a query vector does not
// match the stored dimension.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Error is the error type surfaced by the retrieval and ingestion core.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	// CourseCode is set on empty results produced under a course filter.
	CourseCode string
	Err        error
}

func (e *Error) Error() string {
	if e == nil {
		return "operation failed"
	}
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s (op=%s kind=%s): %s: %v", "operation failed", e.Op, e.Kind, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s (op=%s kind=%s): %s", "operation failed", e.Op, e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s (op=%s kind=%s): %v", "operation failed", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("operation failed (op=%s kind=%s)", e.Op, e.Kind)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Errorf builds an *Error of the given kind.
func Errorf(kind Kind, op string, cause error, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...), Err: cause}
}

// Validation returns a validation error for user-supplied input.
func Validation(op, msg string) error {
	return &Error{Kind: KindValidation, Op: op, Message: msg}
}

// EmptyResult reports that a search found nothing. A non-empty course code
// marks the result as filtered.
func EmptyResult(op, courseCode string) error {
	msg := "the course index is empty"
	if courseCode != "" {
		msg = fmt.Sprintf("no information found for course %s", courseCode)
	}
	return &Error{Kind: KindEmptyResult, Op: op, Message: msg, CourseCode: courseCode}
}

// Integrity returns an ingestion integrity error.
func Integrity(op string, format string, args ...any) error {
	return &Error{Kind: KindIngestionIntegrity, Op: op, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind of err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsTimeout reports whether err was caused by a deadline or a network timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var timeouter interface{ Timeout() bool }
	return errors.As(err, &timeouter) && timeouter.Timeout()
}

// Classify wraps an adapter error into the given kind, promoting timeouts to
// KindTimeout. Errors that already carry a kind are returned unchanged.
func Classify(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != "" {
		return err
	}
	if IsTimeout(err) {
		return &Error{Kind: KindTimeout, Op: op, Err: err}
	}
	return &Error{Kind: kind, Op: op, Err: err}
}
