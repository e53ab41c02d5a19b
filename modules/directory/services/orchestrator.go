package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/dirsync/modules/directory/domain/datasource"
	"github.com/iota-uz/dirsync/modules/directory/domain/events"
	"github.com/iota-uz/dirsync/modules/directory/domain/synctask"
	"github.com/iota-uz/dirsync/pkg/eventbus"
)

// Orchestrator sequences one sync run: fetch, department rebuild, user sync,
// edge sync, tenant projection. Each step owns its transaction; a failing
// step marks the run FAILED but leaves previously committed steps committed.
type Orchestrator struct {
	sources     DataSourceRepository
	tasks       SyncTaskRepository
	departments *DepartmentSyncer
	users       *UserSyncer
	relations   *RelationSyncer
	projector   *TenantProjector
	fetchers    FetcherFactory
	bus         eventbus.EventBus
	log         *logrus.Logger

	fetchTimeout  time.Duration
	rowErrorLimit int
}

type OrchestratorOptions struct {
	FetchTimeout  time.Duration
	RowErrorLimit int
}

func NewOrchestrator(
	sources DataSourceRepository,
	tasks SyncTaskRepository,
	departments *DepartmentSyncer,
	users *UserSyncer,
	relations *RelationSyncer,
	projector *TenantProjector,
	fetchers FetcherFactory,
	bus eventbus.EventBus,
	log *logrus.Logger,
	opts OrchestratorOptions,
) *Orchestrator {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 5 * time.Minute
	}
	if opts.RowErrorLimit <= 0 {
		opts.RowErrorLimit = 20
	}
	return &Orchestrator{
		sources:       sources,
		tasks:         tasks,
		departments:   departments,
		users:         users,
		relations:     relations,
		projector:     projector,
		fetchers:      fetchers,
		bus:           bus,
		log:           log,
		fetchTimeout:  opts.FetchTimeout,
		rowErrorLimit: opts.RowErrorLimit,
	}
}

// RegisterTask creates the pending task that acts as the per-data-source sync
// lock. It fails before any fetch or write when another non-terminal task
// exists, when the data source is local, or when the mode/policy pair can
// perform no operation.
func (o *Orchestrator) RegisterTask(
	ctx context.Context,
	dataSourceID uuid.UUID,
	operator string,
	trigger synctask.Trigger,
	mode datasource.SyncMode,
	policy datasource.SyncPolicy,
) (uuid.UUID, error) {
	ds, err := o.sources.GetByID(ctx, dataSourceID)
	if err != nil {
		return uuid.Nil, mapPgError(err)
	}
	if !ds.Syncable() {
		return uuid.Nil, ErrLocalSourceNotSyncable
	}
	if mode == datasource.ModeIncremental && policy == datasource.PolicyAppend {
		return uuid.Nil, ErrNoEffectiveOperation
	}

	task := synctask.New(dataSourceID, operator, trigger, mode, policy)
	if err := o.tasks.Claim(ctx, task); err != nil {
		return uuid.Nil, err
	}
	return task.ID, nil
}

// Cancel marks a running task for cooperative cancellation. The orchestrator
// observes the flag between transactions; a step already in flight completes.
func (o *Orchestrator) Cancel(ctx context.Context, taskID uuid.UUID) error {
	return o.tasks.MarkCanceled(ctx, taskID)
}

// Run executes a registered task to a terminal status. The returned error
// reports why the run failed; the task row carries the structured summary
// either way.
func (o *Orchestrator) Run(ctx context.Context, taskID uuid.UUID) error {
	task, err := o.tasks.GetByID(ctx, taskID)
	if err != nil {
		return mapPgError(err)
	}
	ds, err := o.sources.GetByID(ctx, task.DataSourceID)
	if err != nil {
		return mapPgError(err)
	}
	// Mode/policy on the task override the data source defaults for this run.
	ds = datasource.Hydrate(
		ds.ID(), ds.TenantID(), ds.Name(), ds.Type(), task.Mode, task.Policy,
		ds.Strategy(), ds.UsernameFrozen(), ds.CronExpr(), ds.Domain(),
		ds.Settings(), ds.CreatedAt(), ds.UpdatedAt(),
	)

	log := o.log.WithFields(logrus.Fields{
		"task_id":        task.ID,
		"data_source_id": ds.ID(),
		"mode":           task.Mode,
		"policy":         task.Policy,
	})

	if err := o.tasks.SetStatus(ctx, task.ID, synctask.StatusPending, synctask.StatusRunning); err != nil {
		return err
	}
	task.Status = synctask.StatusRunning
	task.StartedAt = time.Now().UTC()

	rawDepartments, rawUsers, err := o.fetch(ctx, ds)
	if err != nil {
		return o.finish(ctx, &task, log, ErrFetchFailed.WithCause(err))
	}
	log.WithFields(logrus.Fields{
		"raw_departments": len(rawDepartments),
		"raw_users":       len(rawUsers),
	}).Info("fetched raw records")

	deptRes, err := o.departments.Sync(ctx, ds, rawDepartments)
	if err != nil {
		return o.finish(ctx, &task, log, err)
	}
	o.recordEntityStep(&task, ds, synctask.ObjectDepartment, deptRes.Created, deptRes.Updated, deptRes.Deleted, deptRes.Unchanged)

	if err := o.checkCanceled(ctx, task.ID); err != nil {
		return o.finish(ctx, &task, log, err)
	}

	userRes, err := o.users.Sync(ctx, ds, rawUsers)
	if err != nil {
		return o.finish(ctx, &task, log, err)
	}
	o.recordEntityStep(&task, ds, synctask.ObjectUser, len(userRes.Created), userRes.Updated, userRes.Deleted, userRes.Unchanged)
	task.Counters.Skip(synctask.ObjectUser, len(userRes.Skipped))
	task.RowErrors = append(task.RowErrors, userRes.Skipped...)
	for _, cu := range userRes.Created {
		o.bus.Publish(events.UserCredentialIssued{
			TaskID:       task.ID,
			DataSourceID: ds.ID(),
			UserID:       cu.User.ID,
			Username:     cu.User.Username,
			Email:        cu.User.Email,
			Phone:        cu.User.Phone,
			RawPassword:  cu.RawPassword,
		})
	}

	if err := o.checkCanceled(ctx, task.ID); err != nil {
		return o.finish(ctx, &task, log, err)
	}

	membership := RelationSyncInput{
		Kind:           EdgeMembership,
		Desired:        make(map[string][]string, len(rawUsers)),
		BatchUserCodes: userRes.BatchCodes,
		UserIDByCode:   userRes.IDByCode,
		TargetIDByCode: deptRes.IDByCode,
		NewUserIDs:     userRes.NewIDs,
	}
	leadership := RelationSyncInput{
		Kind:           EdgeLeadership,
		Desired:        make(map[string][]string, len(rawUsers)),
		BatchUserCodes: userRes.BatchCodes,
		UserIDByCode:   userRes.IDByCode,
		TargetIDByCode: userRes.IDByCode,
		NewUserIDs:     userRes.NewIDs,
	}
	for _, r := range rawUsers {
		code := strings.TrimSpace(r.Code)
		if !userRes.BatchCodes[code] {
			continue
		}
		membership.Desired[code] = r.DepartmentCodes
		leadership.Desired[code] = r.LeaderCodes
	}

	for _, in := range []RelationSyncInput{membership, leadership} {
		objectType := synctask.ObjectUserDepartment
		if in.Kind == EdgeLeadership {
			objectType = synctask.ObjectUserLeader
		}
		relRes, err := o.relations.Sync(ctx, ds, in)
		if err != nil {
			return o.finish(ctx, &task, log, err)
		}
		o.recordStep(&task, ds, objectType, synctask.OpDelete, relRes.Removed)
		o.recordStep(&task, ds, objectType, synctask.OpCreate, relRes.Added)
		task.Counters.Skip(objectType, relRes.Dangling)

		if err := o.checkCanceled(ctx, task.ID); err != nil {
			return o.finish(ctx, &task, log, err)
		}
	}

	projRes, err := o.projector.Project(ctx, ds)
	if err != nil {
		return o.finish(ctx, &task, log, err)
	}
	o.recordStep(&task, ds, synctask.ObjectTenantEntity, synctask.OpDelete, projRes.Removed)
	o.recordStep(&task, ds, synctask.ObjectTenantEntity, synctask.OpCreate, projRes.Created)

	return o.finish(ctx, &task, log, nil)
}

func (o *Orchestrator) fetch(ctx context.Context, ds datasource.DataSource) ([]datasource.RawDepartment, []datasource.RawUser, error) {
	fetcher, err := o.fetchers.ForDataSource(ds)
	if err != nil {
		return nil, nil, err
	}
	fetchCtx, cancel := context.WithTimeout(ctx, o.fetchTimeout)
	defer cancel()
	return fetcher.Fetch(fetchCtx)
}

func (o *Orchestrator) checkCanceled(ctx context.Context, taskID uuid.UUID) error {
	canceled, err := o.tasks.IsCanceled(ctx, taskID)
	if err != nil {
		return err
	}
	if canceled {
		return ErrTaskCanceled
	}
	return nil
}

func (o *Orchestrator) recordEntityStep(task *synctask.SyncTask, ds datasource.DataSource, t synctask.ObjectType, created, updated, deleted, unchanged int) {
	o.recordStep(task, ds, t, synctask.OpDelete, deleted)
	o.recordStep(task, ds, t, synctask.OpUpdate, updated)
	o.recordStep(task, ds, t, synctask.OpCreate, created)
	task.Counters.Skip(t, unchanged)
}

// recordStep counts a committed batch and notifies the audit recorder sink.
func (o *Orchestrator) recordStep(task *synctask.SyncTask, ds datasource.DataSource, t synctask.ObjectType, op synctask.Operation, n int) {
	if n <= 0 {
		return
	}
	task.Counters.Add(t, op, n)
	recordRows(string(t), string(op), n)
	o.bus.Publish(events.SyncStepCommitted{
		TaskID:       task.ID,
		DataSourceID: ds.ID(),
		Operation:    op,
		ObjectType:   t,
		AffectedRows: n,
	})
}

func (o *Orchestrator) finish(ctx context.Context, task *synctask.SyncTask, log *logrus.Entry, runErr error) error {
	now := time.Now().UTC()
	task.FinishedAt = &now
	if runErr != nil {
		task.Status = synctask.StatusFailed
		task.Error = runErr.Error()
	} else {
		task.Status = synctask.StatusSucceeded
	}
	if len(task.RowErrors) > o.rowErrorLimit {
		task.RowErrors = task.RowErrors[:o.rowErrorLimit]
	}

	if err := o.tasks.Finish(ctx, *task); err != nil {
		log.WithError(err).Error("failed to persist terminal task state")
		if runErr == nil {
			runErr = err
		}
	}

	recordRun(string(task.Status))
	o.bus.Publish(events.SyncCompleted{Task: *task})

	if runErr != nil {
		log.WithError(runErr).Warn("sync run failed")
		return runErr
	}
	log.WithField("counters", task.Counters).Info("sync run succeeded")
	return nil
}
