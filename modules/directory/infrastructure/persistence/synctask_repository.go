package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iota-uz/dirsync/modules/directory/domain/datasource"
	"github.com/iota-uz/dirsync/modules/directory/domain/synctask"
	"github.com/iota-uz/dirsync/modules/directory/services"
	"github.com/iota-uz/dirsync/pkg/composables"
)

type SyncTaskRepository struct{}

func NewSyncTaskRepository() *SyncTaskRepository {
	return &SyncTaskRepository{}
}

// Claim inserts the pending task. The partial unique index on non-terminal
// tasks makes the one-active-run-per-data-source check atomic in the
// database, so it holds across processes and machines.
func (r *SyncTaskRepository) Claim(ctx context.Context, task synctask.SyncTask) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	counters, err := json.Marshal(task.Counters)
	if err != nil {
		return gerrors.Wrap(err, "encode counters")
	}

	_, err = tx.Exec(ctx, `
INSERT INTO sync_tasks (id, data_source_id, trigger_type, sync_mode, sync_policy, operator, status, counters)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		pgUUID(task.ID), pgUUID(task.DataSourceID), string(task.Trigger),
		string(task.Mode), string(task.Policy), task.Operator, string(task.Status), counters)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "sync_tasks_one_active" {
			return services.ErrAlreadySyncing
		}
		return err
	}
	return nil
}

func (r *SyncTaskRepository) GetByID(ctx context.Context, id uuid.UUID) (synctask.SyncTask, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return synctask.SyncTask{}, err
	}

	row := tx.QueryRow(ctx, `
SELECT id, data_source_id, trigger_type, sync_mode, sync_policy, operator, status,
       error, counters, row_errors, canceled, started_at, finished_at, created_at
FROM sync_tasks
WHERE id = $1`, pgUUID(id))

	var (
		taskID, dsID          pgtype.UUID
		trigger, mode, policy string
		operator, status      string
		errMsg                string
		countersJSON          []byte
		rowErrorsJSON         []byte
		canceled              bool
		startedAt, finishedAt *time.Time
		createdAt             time.Time
	)
	if err := row.Scan(
		&taskID, &dsID, &trigger, &mode, &policy, &operator, &status,
		&errMsg, &countersJSON, &rowErrorsJSON, &canceled, &startedAt, &finishedAt, &createdAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return synctask.SyncTask{}, services.ErrNotFound
		}
		return synctask.SyncTask{}, err
	}

	task := synctask.SyncTask{
		ID:           fromPgUUID(taskID),
		DataSourceID: fromPgUUID(dsID),
		Trigger:      synctask.Trigger(trigger),
		Mode:         datasource.SyncMode(mode),
		Policy:       datasource.SyncPolicy(policy),
		Operator:     operator,
		Status:       synctask.Status(status),
		Error:        errMsg,
		Counters:     synctask.NewCounters(),
		Canceled:     canceled,
		FinishedAt:   finishedAt,
		CreatedAt:    createdAt,
	}
	if startedAt != nil {
		task.StartedAt = *startedAt
	}
	if len(countersJSON) > 0 {
		if err := json.Unmarshal(countersJSON, &task.Counters); err != nil {
			return synctask.SyncTask{}, gerrors.Wrap(err, "decode counters")
		}
	}
	if len(rowErrorsJSON) > 0 {
		if err := json.Unmarshal(rowErrorsJSON, &task.RowErrors); err != nil {
			return synctask.SyncTask{}, gerrors.Wrap(err, "decode row errors")
		}
	}
	return task, nil
}

// SetStatus is a guarded transition: the update applies only when the stored
// status equals from. Moving to running stamps started_at.
func (r *SyncTaskRepository) SetStatus(ctx context.Context, id uuid.UUID, from, to synctask.Status) error {
	if !from.CanTransition(to) {
		return services.ErrStatusConflict
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
UPDATE sync_tasks
SET status = $3,
    started_at = CASE WHEN $3 = 'running' THEN now() ELSE started_at END
WHERE id = $1 AND status = $2`,
		pgUUID(id), string(from), string(to))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return services.ErrStatusConflict
	}
	return nil
}

func (r *SyncTaskRepository) Finish(ctx context.Context, task synctask.SyncTask) error {
	if !task.Status.Terminal() {
		return services.ErrStatusConflict
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	counters, err := json.Marshal(task.Counters)
	if err != nil {
		return gerrors.Wrap(err, "encode counters")
	}
	rowErrors, err := json.Marshal(task.RowErrors)
	if err != nil {
		return gerrors.Wrap(err, "encode row errors")
	}

	tag, err := tx.Exec(ctx, `
UPDATE sync_tasks
SET status = $2, error = $3, counters = $4, row_errors = $5, finished_at = now()
WHERE id = $1 AND status IN ('pending', 'running')`,
		pgUUID(task.ID), string(task.Status), task.Error, counters, rowErrors)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return services.ErrStatusConflict
	}
	return nil
}

func (r *SyncTaskRepository) MarkCanceled(ctx context.Context, id uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
UPDATE sync_tasks
SET canceled = true
WHERE id = $1 AND status IN ('pending', 'running')`, pgUUID(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return services.ErrStatusConflict
	}
	return nil
}

func (r *SyncTaskRepository) IsCanceled(ctx context.Context, id uuid.UUID) (bool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return false, err
	}

	var canceled bool
	if err := tx.QueryRow(ctx, `SELECT canceled FROM sync_tasks WHERE id = $1`, pgUUID(id)).Scan(&canceled); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, services.ErrNotFound
		}
		return false, err
	}
	return canceled, nil
}
