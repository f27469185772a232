package apperr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorsIs_SameKindMatches(t *testing.T) {
	a := NotFound("candidate %d missing", 7)
	b := NotFound("something else entirely")
	assert.True(t, errors.Is(a, b))
}

func TestErrorsIs_DifferentKindDoesNotMatch(t *testing.T) {
	a := NotFound("x")
	b := Conflict("y")
	assert.False(t, errors.Is(a, b))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindFrozen, KindOf(Frozen("project frozen")))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
}

func TestWrap_PassesThroughTypedError(t *testing.T) {
	orig := Busy("sess-1")
	wrapped := Wrap(orig)
	require.Equal(t, KindBusy, wrapped.Kind)
	assert.Equal(t, "sess-1", wrapped.Details["session_id"])
}

func TestWrap_ClassifiesPlainErrorAsInternal(t *testing.T) {
	wrapped := Wrap(errors.New("boom"))
	assert.Equal(t, KindInternal, wrapped.Kind)
}

func TestWrap_Nil(t *testing.T) {
	assert.Nil(t, Wrap(nil))
}

func TestNotReady_CarriesBlockingReasons(t *testing.T) {
	err := NotReady([]string{"missing_code_id", "cycles_non_trivial"})
	assert.Equal(t, KindNotReady, err.Kind)
	assert.Equal(t, []string{"missing_code_id", "cycles_non_trivial"}, err.Details["blocking_reasons"])
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindNotFound:       404,
		KindConflict:       409,
		KindNotReady:       409,
		KindFrozen:         423,
		KindBusy:           409,
		KindDependency:     503,
		KindInvalidRequest: 400,
		KindInternal:       500,
	}
	for kind, want := range cases {
		assert.Equal(t, want, HTTPStatus(kind), "kind %s", kind)
	}
}

// TestRetryable mirrors spec section 7: clients can safely retry busy,
// dependency, and any 5xx using the provided idempotency key.
func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(KindBusy))
	assert.True(t, Retryable(KindDependency))
	assert.True(t, Retryable(KindInternal))
	assert.False(t, Retryable(KindNotFound))
	assert.False(t, Retryable(KindConflict))
	assert.False(t, Retryable(KindNotReady))
	assert.False(t, Retryable(KindFrozen))
	assert.False(t, Retryable(KindInvalidRequest))
}

func TestErrorMessage_IncludesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Dependency(cause, "graph store unreachable")
	assert.Contains(t, err.Error(), "connection refused")
	assert.Contains(t, err.Error(), "graph store unreachable")
	assert.Same(t, cause, errors.Unwrap(err))
}
