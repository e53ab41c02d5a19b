package serrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWithCause_BothEndsUnwrap(t *testing.T) {
	base := NewError("SYNC_FETCH_FAILED", "fetch failed", "")
	cause := fmt.Errorf("dial tcp: connection refused")

	err := base.WithCause(cause)
	require.ErrorIs(t, err, base)
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "fetch failed")
	require.Contains(t, err.Error(), "connection refused")
}

func TestErrorIs_DistinctCodes(t *testing.T) {
	a := NewError("CODE_A", "a", "")
	b := NewError("CODE_B", "b", "")
	require.False(t, errors.Is(a, b))
}
