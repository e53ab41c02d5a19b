package synctask

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/dirsync/modules/directory/domain/datasource"
)

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusRunning, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusSucceeded, false},
		{StatusRunning, StatusSucceeded, true},
		{StatusRunning, StatusFailed, true},
		{StatusRunning, StatusPending, false},
		{StatusSucceeded, StatusRunning, false},
		{StatusFailed, StatusPending, false},
	}
	for _, c := range cases {
		require.Equal(t, c.ok, c.from.CanTransition(c.to), "%s -> %s", c.from, c.to)
	}
}

func TestStatusTerminal(t *testing.T) {
	require.False(t, StatusPending.Terminal())
	require.False(t, StatusRunning.Terminal())
	require.True(t, StatusSucceeded.Terminal())
	require.True(t, StatusFailed.Terminal())
}

func TestNew(t *testing.T) {
	dsID := uuid.New()
	task := New(dsID, "ops", TriggerManual, datasource.ModeFull, datasource.PolicyOverwrite)

	require.NotEqual(t, uuid.Nil, task.ID)
	require.Equal(t, dsID, task.DataSourceID)
	require.Equal(t, StatusPending, task.Status)
	require.NotNil(t, task.Counters)
	require.Nil(t, task.FinishedAt)
}

func TestCounters(t *testing.T) {
	c := NewCounters()
	c.Add(ObjectUser, OpCreate, 3)
	c.Add(ObjectUser, OpDelete, 1)
	c.Skip(ObjectUser, 2)
	c.Skip(ObjectDepartment, 0)

	require.Equal(t, 3, c[ObjectUser].Created)
	require.Equal(t, 1, c[ObjectUser].Deleted)
	require.Equal(t, 2, c[ObjectUser].Skipped)
	require.NotContains(t, c, ObjectDepartment)
}
