package scheduler

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func noopRun(ctx context.Context, dataSourceID uuid.UUID) error { return nil }

func TestRegister_RejectsBadExpression(t *testing.T) {
	s := New(logrus.New(), noopRun)
	err := s.Register(uuid.New(), "not a cron expr")
	require.Error(t, err)
}

func TestRegister_ReplacesExistingEntry(t *testing.T) {
	s := New(logrus.New(), noopRun)
	id := uuid.New()

	require.NoError(t, s.Register(id, "@hourly"))
	require.NoError(t, s.Register(id, "*/5 * * * *"))
	require.Len(t, s.entries, 1)
}

func TestUnregister(t *testing.T) {
	s := New(logrus.New(), noopRun)
	id := uuid.New()

	require.NoError(t, s.Register(id, "@daily"))
	s.Unregister(id)
	require.Empty(t, s.entries)

	// Unregistering an unknown id is a no-op.
	s.Unregister(uuid.New())
}
