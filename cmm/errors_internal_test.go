package cmm

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

func TestErrorMessageIsBuiltOnce(t *testing.T) {
	calls := 0
	err := newError(OutOfRange, func() string {
		calls++
		return "window too small"
	})
	require.Equal(t, 0, calls)

	require.Equal(t, "OutOfRange: window too small", err.Error())
	require.Equal(t, "window too small", err.Message())
	require.Equal(t, "OutOfRange: window too small", err.Error())
	require.Equal(t, 1, calls)
}

func TestErrorWithoutMessage(t *testing.T) {
	err := newError(NoAllocation, nil)
	require.Equal(t, "NoAllocation", err.Error())
	require.Empty(t, err.Message())
	require.Nil(t, err.Unwrap())
}

func TestCombineKeepsFirstCode(t *testing.T) {
	cause := errors.New("munmap failed")
	first := wrapError(UnmapFailed, cause, func() string { return "unmap" })
	second := newError(MemFreeFailed, func() string { return "free" })

	err := combine(first, second, nil)
	require.Equal(t, UnmapFailed, CodeOf(err))
	require.ErrorIs(t, err, cause)

	require.Nil(t, combine(nil))
	require.Equal(t, MemFreeFailed, CodeOf(combine(nil, second)))
}
