package services

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/dirsync/modules/directory/domain/datasource"
	"github.com/iota-uz/dirsync/modules/directory/domain/events"
	"github.com/iota-uz/dirsync/modules/directory/domain/synctask"
	"github.com/iota-uz/dirsync/pkg/eventbus"
)

type orchestratorHarness struct {
	sources      *fakeDataSources
	tasks        *fakeTasks
	users        *fakeUsers
	departments  *fakeDepartments
	relations    *fakeRelations
	tenants      *fakeTenants
	bus          eventbus.EventBus
	orchestrator *Orchestrator
}

func newHarness(ds datasource.DataSource, fetcher staticFetcher) *orchestratorHarness {
	log := testLogger()
	h := &orchestratorHarness{
		sources:     newFakeDataSources(ds),
		tasks:       newFakeTasks(),
		users:       &fakeUsers{},
		departments: &fakeDepartments{},
		relations:   newFakeRelations(),
		tenants:     &fakeTenants{},
		bus:         eventbus.NewEventPublisher(log),
	}
	h.orchestrator = NewOrchestrator(
		h.sources,
		h.tasks,
		NewDepartmentSyncer(h.departments, h.relations, log),
		NewUserSyncer(h.users, log),
		NewRelationSyncer(h.relations, log),
		NewTenantProjector(h.tenants, h.users, h.departments, log),
		staticFetcherFactory{fetcher: fetcher},
		h.bus,
		log,
		OrchestratorOptions{},
	)
	return h
}

func (h *orchestratorHarness) register(t *testing.T, ds datasource.DataSource) synctask.SyncTask {
	t.Helper()
	taskID, err := h.orchestrator.RegisterTask(
		testCtx(), ds.ID(), "tester", synctask.TriggerManual, ds.Mode(), ds.Policy(),
	)
	require.NoError(t, err)
	task, err := h.tasks.GetByID(testCtx(), taskID)
	require.NoError(t, err)
	return task
}

func TestOrchestrator_FullRun(t *testing.T) {
	ds := testSource(datasource.TypeLDAP, datasource.ModeFull, datasource.PolicyOverwrite)
	h := newHarness(ds, staticFetcher{
		departments: []datasource.RawDepartment{
			{Code: "d1", Name: "Engineering"},
			{Code: "d2", Name: "Backend", ParentCode: "d1"},
		},
		users: []datasource.RawUser{
			{Code: "u1", Username: "alice", DepartmentCodes: []string{"d1"}},
			{Code: "u2", Username: "bob", DepartmentCodes: []string{"d2"}, LeaderCodes: []string{"u1"}},
		},
	})

	var credentials []events.UserCredentialIssued
	h.bus.Subscribe(func(ev events.UserCredentialIssued) {
		credentials = append(credentials, ev)
	})
	var completed []events.SyncCompleted
	h.bus.Subscribe(func(ev events.SyncCompleted) {
		completed = append(completed, ev)
	})

	task := h.register(t, ds)
	require.NoError(t, h.orchestrator.Run(testCtx(), task.ID))

	final, err := h.tasks.GetByID(testCtx(), task.ID)
	require.NoError(t, err)
	require.Equal(t, synctask.StatusSucceeded, final.Status)
	require.NotNil(t, final.FinishedAt)
	require.Empty(t, final.Error)

	require.Equal(t, 2, final.Counters[synctask.ObjectDepartment].Created)
	require.Equal(t, 2, final.Counters[synctask.ObjectUser].Created)
	require.Equal(t, 2, final.Counters[synctask.ObjectUserDepartment].Created)
	require.Equal(t, 1, final.Counters[synctask.ObjectUserLeader].Created)
	require.Equal(t, 4, final.Counters[synctask.ObjectTenantEntity].Created)

	require.Len(t, credentials, 2)
	for _, c := range credentials {
		require.NotEmpty(t, c.RawPassword)
	}
	require.Len(t, completed, 1)
	require.Equal(t, synctask.StatusSucceeded, completed[0].Task.Status)

	// The lock is released, so a new task can be registered.
	h.register(t, ds)
}

func TestOrchestrator_SecondIdenticalRunWritesNothing(t *testing.T) {
	ds := testSource(datasource.TypeLDAP, datasource.ModeFull, datasource.PolicyOverwrite)
	fetcher := staticFetcher{
		departments: []datasource.RawDepartment{{Code: "d1", Name: "Engineering"}},
		users:       []datasource.RawUser{{Code: "u1", Username: "alice", DepartmentCodes: []string{"d1"}}},
	}
	h := newHarness(ds, fetcher)

	task := h.register(t, ds)
	require.NoError(t, h.orchestrator.Run(testCtx(), task.ID))

	task = h.register(t, ds)
	require.NoError(t, h.orchestrator.Run(testCtx(), task.ID))

	final, err := h.tasks.GetByID(testCtx(), task.ID)
	require.NoError(t, err)
	require.Equal(t, synctask.StatusSucceeded, final.Status)
	require.Nil(t, final.Counters[synctask.ObjectUserDepartment])
	require.Equal(t, 1, final.Counters[synctask.ObjectDepartment].Skipped)
	require.Zero(t, final.Counters[synctask.ObjectDepartment].Created)
	require.Zero(t, final.Counters[synctask.ObjectUser].Created)
}

func TestOrchestrator_RegisterTask_RejectsLocalSource(t *testing.T) {
	ds := testSource(datasource.TypeLocal, datasource.ModeFull, datasource.PolicyOverwrite)
	h := newHarness(ds, staticFetcher{})

	_, err := h.orchestrator.RegisterTask(
		testCtx(), ds.ID(), "tester", synctask.TriggerManual, ds.Mode(), ds.Policy(),
	)
	require.ErrorIs(t, err, ErrLocalSourceNotSyncable)
}

func TestOrchestrator_RegisterTask_RejectsIncrementalAppend(t *testing.T) {
	ds := testSource(datasource.TypeLDAP, datasource.ModeFull, datasource.PolicyOverwrite)
	h := newHarness(ds, staticFetcher{})

	_, err := h.orchestrator.RegisterTask(
		testCtx(), ds.ID(), "tester", synctask.TriggerManual,
		datasource.ModeIncremental, datasource.PolicyAppend,
	)
	require.ErrorIs(t, err, ErrNoEffectiveOperation)
}

func TestOrchestrator_ConcurrentRegister_ExactlyOneWins(t *testing.T) {
	ds := testSource(datasource.TypeLDAP, datasource.ModeFull, datasource.PolicyOverwrite)
	h := newHarness(ds, staticFetcher{})

	const attempts = 16
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	wg.Add(attempts)
	for i := 0; i < attempts; i++ {
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.orchestrator.RegisterTask(
				testCtx(), ds.ID(), "tester", synctask.TriggerManual, ds.Mode(), ds.Policy(),
			)
		}(i)
	}
	wg.Wait()

	won := 0
	for _, err := range errs {
		if err == nil {
			won++
			continue
		}
		require.ErrorIs(t, err, ErrAlreadySyncing)
	}
	require.Equal(t, 1, won)
}

func TestOrchestrator_FetchFailureFailsTaskBeforeWrites(t *testing.T) {
	ds := testSource(datasource.TypeLDAP, datasource.ModeFull, datasource.PolicyOverwrite)
	h := newHarness(ds, staticFetcher{err: errors.New("connection refused")})

	task := h.register(t, ds)
	err := h.orchestrator.Run(testCtx(), task.ID)
	require.ErrorIs(t, err, ErrFetchFailed)

	final, getErr := h.tasks.GetByID(testCtx(), task.ID)
	require.NoError(t, getErr)
	require.Equal(t, synctask.StatusFailed, final.Status)
	require.NotEmpty(t, final.Error)
	require.Empty(t, h.departments.rows)
	require.Empty(t, h.users.rows)
}

func TestOrchestrator_CancelStopsRunBetweenSteps(t *testing.T) {
	ds := testSource(datasource.TypeLDAP, datasource.ModeFull, datasource.PolicyOverwrite)
	h := newHarness(ds, staticFetcher{
		departments: []datasource.RawDepartment{{Code: "d1", Name: "Engineering"}},
		users:       []datasource.RawUser{{Code: "u1", Username: "alice"}},
	})

	task := h.register(t, ds)
	require.NoError(t, h.orchestrator.Cancel(testCtx(), task.ID))

	err := h.orchestrator.Run(testCtx(), task.ID)
	require.ErrorIs(t, err, ErrTaskCanceled)

	final, getErr := h.tasks.GetByID(testCtx(), task.ID)
	require.NoError(t, getErr)
	require.Equal(t, synctask.StatusFailed, final.Status)
	// The department step had already committed when the flag was observed.
	require.Len(t, h.departments.rows, 1)
	require.Empty(t, h.users.rows)
}

func TestOrchestrator_RowErrorsCappedOnTask(t *testing.T) {
	ds := testSource(datasource.TypeLDAP, datasource.ModeFull, datasource.PolicyOverwrite)

	raw := make([]datasource.RawUser, 0, 30)
	for i := 0; i < 30; i++ {
		raw = append(raw, datasource.RawUser{Code: "bad", Username: "has spaces"})
	}
	h := newHarness(ds, staticFetcher{users: raw})

	task := h.register(t, ds)
	require.NoError(t, h.orchestrator.Run(testCtx(), task.ID))

	final, err := h.tasks.GetByID(testCtx(), task.ID)
	require.NoError(t, err)
	require.Equal(t, synctask.StatusSucceeded, final.Status)
	require.Len(t, final.RowErrors, 20)
	require.Equal(t, 30, final.Counters[synctask.ObjectUser].Skipped)
}
