package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/iota-uz/dirsync/modules/directory/domain/datasource"
	"github.com/iota-uz/dirsync/modules/directory/domain/entity"
	"github.com/iota-uz/dirsync/modules/directory/domain/synctask"
	"github.com/iota-uz/dirsync/modules/directory/domain/tenant"
)

type DataSourceRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (datasource.DataSource, error)
	// ListScheduled returns data sources carrying a cron expression.
	ListScheduled(ctx context.Context) ([]datasource.DataSource, error)
}

type DepartmentRepository interface {
	ListByDataSource(ctx context.Context, dataSourceID uuid.UUID) ([]entity.Department, error)
	// BulkCreate returns the rows with database-assigned IDs, in input order.
	BulkCreate(ctx context.Context, rows []entity.Department) ([]entity.Department, error)
	BulkUpdate(ctx context.Context, rows []entity.Department) error
	BulkDeleteByCodes(ctx context.Context, dataSourceID uuid.UUID, codes []string) (int64, error)
}

type UserRepository interface {
	ListByDataSource(ctx context.Context, dataSourceID uuid.UUID) ([]entity.User, error)
	BulkCreate(ctx context.Context, rows []entity.User) ([]entity.User, error)
	// BulkUpdate rewrites syncable fields; the username column is left alone
	// when rewriteUsername is false.
	BulkUpdate(ctx context.Context, rows []entity.User, rewriteUsername bool) error
	BulkDeleteByCodes(ctx context.Context, dataSourceID uuid.UUID, codes []string) (int64, error)
}

type EdgeKind string

const (
	EdgeMembership EdgeKind = "user_department"
	EdgeLeadership EdgeKind = "user_leader"
)

type RelationRepository interface {
	ListDepartmentRelations(ctx context.Context, dataSourceID uuid.UUID) ([]entity.DepartmentRelation, error)
	// AllocateTreeIDs draws n fresh tree ids from the global sequence.
	AllocateTreeIDs(ctx context.Context, n int) ([]int64, error)
	// ReplaceDepartmentRelations deletes every relation row of the data source
	// and inserts the given rows. Callers run it inside one transaction with
	// the department entity writes.
	ReplaceDepartmentRelations(ctx context.Context, dataSourceID uuid.UUID, rows []entity.DepartmentRelation) error

	ListEdges(ctx context.Context, dataSourceID uuid.UUID, kind EdgeKind) ([]entity.Edge, error)
	AddEdges(ctx context.Context, dataSourceID uuid.UUID, kind EdgeKind, edges []entity.Edge) (int64, error)
	RemoveEdges(ctx context.Context, dataSourceID uuid.UUID, kind EdgeKind, edges []entity.Edge) (int64, error)
}

type SyncTaskRepository interface {
	// Claim inserts the task in pending state. It fails with ErrAlreadySyncing
	// when another non-terminal task exists for the same data source; the
	// check-and-insert is atomic at the database level so it holds across
	// processes.
	Claim(ctx context.Context, task synctask.SyncTask) error
	GetByID(ctx context.Context, id uuid.UUID) (synctask.SyncTask, error)
	// SetStatus performs a guarded transition and fails if the stored status
	// is not the expected one.
	SetStatus(ctx context.Context, id uuid.UUID, from, to synctask.Status) error
	// Finish records the terminal status together with counters, row errors
	// and the finish timestamp.
	Finish(ctx context.Context, task synctask.SyncTask) error
	MarkCanceled(ctx context.Context, id uuid.UUID) error
	IsCanceled(ctx context.Context, id uuid.UUID) (bool, error)
}

type TenantEntityRepository interface {
	ListByDataSource(ctx context.Context, tenantID, dataSourceID uuid.UUID) ([]tenant.Entity, error)
	BulkCreate(ctx context.Context, rows []tenant.Entity) (int64, error)
	BulkDelete(ctx context.Context, ids []int64) (int64, error)
}

// FetcherFactory selects a fetcher implementation by the data source type tag.
type FetcherFactory interface {
	ForDataSource(ds datasource.DataSource) (datasource.Fetcher, error)
}
