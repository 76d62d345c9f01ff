// Package engineerr provides the structured error taxonomy surfaced by the
// hybrid search engine kernel. Error codes follow the pattern
// ERR_ENG_XXX_DESCRIPTION where the numeric range identifies the Kind:
//   - 1XX: InvalidArgument
//   - 2XX: NotFound
//   - 3XX: Conflict
//   - 4XX: Io
//   - 5XX: Corruption
//   - 6XX: EmbedderFailure
//   - 9XX: Other
package engineerr

import (
	"errors"
	"fmt"
)

// Kind classifies an engine error into the taxonomy callers switch on.
type Kind string

const (
	KindInvalidArgument  Kind = "INVALID_ARGUMENT"
	KindNotFound         Kind = "NOT_FOUND"
	KindConflict         Kind = "CONFLICT"
	KindIO               Kind = "IO"
	KindCorruption       Kind = "CORRUPTION"
	KindEmbedderFailure  Kind = "EMBEDDER_FAILURE"
	KindOther            Kind = "OTHER"
)

// Error codes organized by Kind.
const (
	CodeBadSchema         = "ERR_ENG_101_BAD_SCHEMA"
	CodeBadQuery          = "ERR_ENG_102_BAD_QUERY"
	CodeDimensionMismatch = "ERR_ENG_103_DIMENSION_MISMATCH"
	CodeEmptyQuery        = "ERR_ENG_104_EMPTY_QUERY"

	CodeDocNotFound = "ERR_ENG_201_DOC_NOT_FOUND"

	CodeWriteConflict = "ERR_ENG_301_WRITE_CONFLICT"

	CodeStorageFailure = "ERR_ENG_401_STORAGE_FAILURE"
	CodeWALAppend      = "ERR_ENG_402_WAL_APPEND_FAILED"
	CodeSegmentFlush   = "ERR_ENG_403_SEGMENT_FLUSH_FAILED"

	CodeWALCorrupt     = "ERR_ENG_501_WAL_CORRUPT"
	CodeSegmentCorrupt = "ERR_ENG_502_SEGMENT_CORRUPT"
	CodeManifestCorrupt = "ERR_ENG_503_MANIFEST_CORRUPT"

	CodeEmbedderFailed = "ERR_ENG_601_EMBEDDER_FAILED"

	CodeInternal = "ERR_ENG_901_INTERNAL"
)

// EngineError is the structured error type returned by every engine
// component. It carries enough context for logging and for callers to
// branch on Kind without parsing the message.
type EngineError struct {
	Code      string
	Kind      Kind
	Message   string
	Details   map[string]any
	Cause     error
	Retryable bool
}

func (e *EngineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *EngineError) Unwrap() error { return e.Cause }

// Is matches by Kind, so errors.Is(err, engineerr.ErrCorruption) style
// sentinels can be built by comparing the Kind field through a helper
// rather than by exact code — callers typically care about the category,
// not the specific code.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	if t.Code != "" {
		return e.Code == t.Code
	}
	return e.Kind == t.Kind
}

// WithDetail attaches a key-value pair of context and returns the error for
// chaining.
func (e *EngineError) WithDetail(key string, value any) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func newErr(code string, kind Kind, message string, cause error, retryable bool) *EngineError {
	return &EngineError{Code: code, Kind: kind, Message: message, Cause: cause, Retryable: retryable}
}

func InvalidArgument(code, message string) *EngineError {
	return newErr(code, KindInvalidArgument, message, nil, false)
}

func NotFound(code, message string) *EngineError {
	return newErr(code, KindNotFound, message, nil, false)
}

func Conflict(code, message string) *EngineError {
	return newErr(code, KindConflict, message, nil, false)
}

func IO(code, message string, cause error) *EngineError {
	return newErr(code, KindIO, message, cause, true)
}

func Corruption(code, message string, cause error) *EngineError {
	return newErr(code, KindCorruption, message, cause, false)
}

func EmbedderFailure(message string, cause error) *EngineError {
	return newErr(CodeEmbedderFailed, KindEmbedderFailure, message, cause, true)
}

func Other(message string, cause error) *EngineError {
	return newErr(CodeInternal, KindOther, message, cause, false)
}

// DimensionMismatch is a convenience constructor for the most common
// InvalidArgument case the vector sub-store raises.
func DimensionMismatch(expected, got int) *EngineError {
	return InvalidArgument(CodeDimensionMismatch,
		fmt.Sprintf("vector dimension mismatch: expected %d, got %d", expected, got)).
		WithDetail("expected", expected).WithDetail("got", got)
}

// IsRetryable reports whether err is an *EngineError with Retryable set.
func IsRetryable(err error) bool {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Retryable
	}
	return false
}

// KindOf extracts the Kind of err, or KindOther if err is not an
// *EngineError.
func KindOf(err error) Kind {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return KindOther
}
