package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
)

var errEmptyCompletion = errors.New("empty completion from backend")

// isStreamEOF reports whether err marks normal stream termination. go-openai
// surfaces stream end as io.EOF, sometimes wrapped with message context.
func isStreamEOF(err error) bool {
	return errors.Is(err, io.EOF) || strings.Contains(err.Error(), "EOF")
}

// ErrorKind classifies a generation failure.
type ErrorKind string

const (
	// KindTimeout indicates the backend did not answer within the call deadline.
	KindTimeout ErrorKind = "timeout"

	// KindBackendUnavailable indicates a connection or transport failure.
	KindBackendUnavailable ErrorKind = "backend_unavailable"

	// KindMalformedOutput indicates the backend answered but the payload could
	// not be used (empty completion, unparsable structured decision).
	KindMalformedOutput ErrorKind = "malformed_output"

	// KindNoExpertsSucceeded indicates every dispatched expert failed.
	KindNoExpertsSucceeded ErrorKind = "no_experts_succeeded"
)

// Error tags a generation failure with its kind and the role whose call failed.
// It flows through return values instead of being thrown and caught, so callers
// branch on Kind explicitly.
type Error struct {
	Kind ErrorKind
	Role string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Role, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Role, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a tagged generation error.
func NewError(kind ErrorKind, role string, err error) *Error {
	return &Error{Kind: kind, Role: role, Err: err}
}

// KindOf extracts the ErrorKind from err. Untagged errors are treated as
// backend unavailability, the broadest transport-level failure.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var genErr *Error
	if errors.As(err, &genErr) {
		return genErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindBackendUnavailable
}

// Classify wraps err as a tagged Error for the given role. Context deadlines
// and timing-out net errors become KindTimeout, everything else at this layer
// is a transport failure. Parsers assign KindMalformedOutput themselves.
func Classify(role string, err error) *Error {
	if err == nil {
		return nil
	}
	var genErr *Error
	if errors.As(err, &genErr) {
		return genErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(KindTimeout, role, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewError(KindTimeout, role, err)
	}
	return NewError(KindBackendUnavailable, role, err)
}
