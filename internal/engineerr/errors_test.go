package engineerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEngineError_Error_IncludesCodeAndMessage(t *testing.T) {
	err := InvalidArgument(CodeBadQuery, "bad query")
	assert.Contains(t, err.Error(), CodeBadQuery)
	assert.Contains(t, err.Error(), "bad query")
}

func TestEngineError_Error_IncludesCauseWhenPresent(t *testing.T) {
	cause := errors.New("disk full")
	err := IO(CodeStorageFailure, "writing segment", cause)
	assert.Contains(t, err.Error(), "disk full")
}

func TestEngineError_Unwrap_ReturnsCause(t *testing.T) {
	cause := errors.New("root cause")
	err := Corruption(CodeSegmentCorrupt, "bad segment", cause)
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestEngineError_Is_MatchesByCode(t *testing.T) {
	err := InvalidArgument(CodeBadSchema, "schema invalid")
	target := &EngineError{Code: CodeBadSchema}
	assert.True(t, errors.Is(err, target))

	other := &EngineError{Code: CodeBadQuery}
	assert.False(t, errors.Is(err, other))
}

func TestEngineError_Is_FallsBackToKindWhenCodeEmpty(t *testing.T) {
	err := NotFound(CodeDocNotFound, "doc missing")
	target := &EngineError{Kind: KindNotFound}
	assert.True(t, errors.Is(err, target))
}

func TestWithDetail_AttachesAndChains(t *testing.T) {
	err := InvalidArgument(CodeBadQuery, "bad").WithDetail("field", "title").WithDetail("reason", "empty")
	assert.Equal(t, "title", err.Details["field"])
	assert.Equal(t, "empty", err.Details["reason"])
}

func TestDimensionMismatch_SetsExpectedAndGotDetails(t *testing.T) {
	err := DimensionMismatch(128, 64)
	assert.Equal(t, CodeDimensionMismatch, err.Code)
	assert.Equal(t, 128, err.Details["expected"])
	assert.Equal(t, 64, err.Details["got"])
}

func TestIsRetryable_TrueForIOFalseForCorruption(t *testing.T) {
	assert.True(t, IsRetryable(IO(CodeStorageFailure, "io failed", nil)))
	assert.False(t, IsRetryable(Corruption(CodeWALCorrupt, "corrupt", nil)))
}

func TestIsRetryable_FalseForNonEngineError(t *testing.T) {
	assert.False(t, IsRetryable(errors.New("plain error")))
}

func TestKindOf_ReturnsKindForEngineErrorAndOtherOtherwise(t *testing.T) {
	assert.Equal(t, KindEmbedderFailure, KindOf(EmbedderFailure("embed failed", nil)))
	assert.Equal(t, KindOther, KindOf(errors.New("plain error")))
}

func TestEmbedderFailure_UsesFixedCode(t *testing.T) {
	err := EmbedderFailure("timeout", nil)
	assert.Equal(t, CodeEmbedderFailed, err.Code)
	assert.True(t, err.Retryable)
}

func TestOther_UsesInternalCodeAndIsNotRetryable(t *testing.T) {
	err := Other("unexpected", nil)
	assert.Equal(t, CodeInternal, err.Code)
	assert.False(t, err.Retryable)
}
