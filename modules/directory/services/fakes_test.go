package services

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/dirsync/modules/directory/domain/datasource"
	"github.com/iota-uz/dirsync/modules/directory/domain/entity"
	"github.com/iota-uz/dirsync/modules/directory/domain/synctask"
	"github.com/iota-uz/dirsync/modules/directory/domain/tenant"
	"github.com/iota-uz/dirsync/pkg/composables"
	"github.com/iota-uz/dirsync/pkg/logging"
)

// testCtx carries a no-op transaction so that InTx joins it instead of
// wanting a live pool.
func testCtx() context.Context {
	return composables.WithTx(context.Background(), noopTx{})
}

func testLogger() *logrus.Logger {
	return logging.ConsoleLogger(logrus.PanicLevel)
}

type noopTx struct{}

func (noopTx) Begin(ctx context.Context) (pgx.Tx, error) { return noopTx{}, nil }
func (noopTx) Commit(ctx context.Context) error          { return nil }
func (noopTx) Rollback(ctx context.Context) error        { return nil }
func (noopTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (noopTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (noopTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (noopTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (noopTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (noopTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, pgx.ErrNoRows
}
func (noopTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (noopTx) Conn() *pgx.Conn                                               { return nil }

type fakeDataSources struct {
	byID map[uuid.UUID]datasource.DataSource
}

func newFakeDataSources(sources ...datasource.DataSource) *fakeDataSources {
	f := &fakeDataSources{byID: make(map[uuid.UUID]datasource.DataSource)}
	for _, ds := range sources {
		f.byID[ds.ID()] = ds
	}
	return f
}

func (f *fakeDataSources) GetByID(_ context.Context, id uuid.UUID) (datasource.DataSource, error) {
	ds, ok := f.byID[id]
	if !ok {
		return datasource.DataSource{}, ErrNotFound
	}
	return ds, nil
}

func (f *fakeDataSources) ListScheduled(_ context.Context) ([]datasource.DataSource, error) {
	var out []datasource.DataSource
	for _, ds := range f.byID {
		if ds.CronExpr() != "" {
			out = append(out, ds)
		}
	}
	return out, nil
}

type fakeDepartments struct {
	rows   []entity.Department
	nextID int64
}

func (f *fakeDepartments) ListByDataSource(_ context.Context, dataSourceID uuid.UUID) ([]entity.Department, error) {
	var out []entity.Department
	for _, d := range f.rows {
		if d.DataSourceID == dataSourceID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeDepartments) BulkCreate(_ context.Context, rows []entity.Department) ([]entity.Department, error) {
	out := make([]entity.Department, 0, len(rows))
	for _, d := range rows {
		f.nextID++
		d.ID = f.nextID
		f.rows = append(f.rows, d)
		out = append(out, d)
	}
	return out, nil
}

func (f *fakeDepartments) BulkUpdate(_ context.Context, rows []entity.Department) error {
	for _, d := range rows {
		for i := range f.rows {
			if f.rows[i].ID == d.ID {
				d.CreatedAt = f.rows[i].CreatedAt
				f.rows[i] = d
			}
		}
	}
	return nil
}

func (f *fakeDepartments) BulkDeleteByCodes(_ context.Context, dataSourceID uuid.UUID, codes []string) (int64, error) {
	drop := make(map[string]bool, len(codes))
	for _, c := range codes {
		drop[c] = true
	}
	var kept []entity.Department
	var n int64
	for _, d := range f.rows {
		if d.DataSourceID == dataSourceID && drop[d.Code] {
			n++
			continue
		}
		kept = append(kept, d)
	}
	f.rows = kept
	return n, nil
}

type fakeUsers struct {
	rows   []entity.User
	nextID int64
}

func (f *fakeUsers) ListByDataSource(_ context.Context, dataSourceID uuid.UUID) ([]entity.User, error) {
	var out []entity.User
	for _, u := range f.rows {
		if u.DataSourceID == dataSourceID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeUsers) BulkCreate(_ context.Context, rows []entity.User) ([]entity.User, error) {
	out := make([]entity.User, 0, len(rows))
	for _, u := range rows {
		f.nextID++
		u.ID = f.nextID
		f.rows = append(f.rows, u)
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeUsers) BulkUpdate(_ context.Context, rows []entity.User, rewriteUsername bool) error {
	for _, u := range rows {
		for i := range f.rows {
			if f.rows[i].ID == u.ID {
				if !rewriteUsername {
					u.Username = f.rows[i].Username
				}
				u.PasswordHash = f.rows[i].PasswordHash
				u.CreatedAt = f.rows[i].CreatedAt
				f.rows[i] = u
			}
		}
	}
	return nil
}

func (f *fakeUsers) BulkDeleteByCodes(_ context.Context, dataSourceID uuid.UUID, codes []string) (int64, error) {
	drop := make(map[string]bool, len(codes))
	for _, c := range codes {
		drop[c] = true
	}
	var kept []entity.User
	var n int64
	for _, u := range f.rows {
		if u.DataSourceID == dataSourceID && drop[u.Code] {
			n++
			continue
		}
		kept = append(kept, u)
	}
	f.rows = kept
	return n, nil
}

func (f *fakeUsers) byCode(code string) (entity.User, bool) {
	for _, u := range f.rows {
		if u.Code == code {
			return u, true
		}
	}
	return entity.User{}, false
}

type fakeRelations struct {
	deptRels []entity.DepartmentRelation
	edges    map[EdgeKind][]entity.Edge
	treeSeq  int64
}

func newFakeRelations() *fakeRelations {
	return &fakeRelations{edges: make(map[EdgeKind][]entity.Edge)}
}

func (f *fakeRelations) ListDepartmentRelations(_ context.Context, dataSourceID uuid.UUID) ([]entity.DepartmentRelation, error) {
	var out []entity.DepartmentRelation
	for _, r := range f.deptRels {
		if r.DataSourceID == dataSourceID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRelations) AllocateTreeIDs(_ context.Context, n int) ([]int64, error) {
	out := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		f.treeSeq++
		out = append(out, f.treeSeq)
	}
	return out, nil
}

func (f *fakeRelations) ReplaceDepartmentRelations(_ context.Context, dataSourceID uuid.UUID, rows []entity.DepartmentRelation) error {
	var kept []entity.DepartmentRelation
	for _, r := range f.deptRels {
		if r.DataSourceID != dataSourceID {
			kept = append(kept, r)
		}
	}
	f.deptRels = append(kept, rows...)
	return nil
}

func (f *fakeRelations) ListEdges(_ context.Context, _ uuid.UUID, kind EdgeKind) ([]entity.Edge, error) {
	out := append([]entity.Edge(nil), f.edges[kind]...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].A != out[j].A {
			return out[i].A < out[j].A
		}
		return out[i].B < out[j].B
	})
	return out, nil
}

func (f *fakeRelations) AddEdges(_ context.Context, _ uuid.UUID, kind EdgeKind, edges []entity.Edge) (int64, error) {
	f.edges[kind] = append(f.edges[kind], edges...)
	return int64(len(edges)), nil
}

func (f *fakeRelations) RemoveEdges(_ context.Context, _ uuid.UUID, kind EdgeKind, edges []entity.Edge) (int64, error) {
	drop := make(map[entity.Edge]bool, len(edges))
	for _, e := range edges {
		drop[e] = true
	}
	var kept []entity.Edge
	var n int64
	for _, e := range f.edges[kind] {
		if drop[e] {
			n++
			continue
		}
		kept = append(kept, e)
	}
	f.edges[kind] = kept
	return n, nil
}

type fakeTasks struct {
	mu   sync.Mutex
	byID map[uuid.UUID]synctask.SyncTask
}

func newFakeTasks() *fakeTasks {
	return &fakeTasks{byID: make(map[uuid.UUID]synctask.SyncTask)}
}

func (f *fakeTasks) Claim(_ context.Context, task synctask.SyncTask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.byID {
		if t.DataSourceID == task.DataSourceID && !t.Status.Terminal() {
			return ErrAlreadySyncing
		}
	}
	f.byID[task.ID] = task
	return nil
}

func (f *fakeTasks) GetByID(_ context.Context, id uuid.UUID) (synctask.SyncTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byID[id]
	if !ok {
		return synctask.SyncTask{}, ErrNotFound
	}
	return t, nil
}

func (f *fakeTasks) SetStatus(_ context.Context, id uuid.UUID, from, to synctask.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byID[id]
	if !ok {
		return ErrNotFound
	}
	if t.Status != from || !from.CanTransition(to) {
		return ErrStatusConflict
	}
	t.Status = to
	f.byID[id] = t
	return nil
}

func (f *fakeTasks) Finish(_ context.Context, task synctask.SyncTask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.byID[task.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Status.Terminal() {
		return ErrStatusConflict
	}
	f.byID[task.ID] = task
	return nil
}

func (f *fakeTasks) MarkCanceled(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byID[id]
	if !ok {
		return ErrNotFound
	}
	t.Canceled = true
	f.byID[id] = t
	return nil
}

func (f *fakeTasks) IsCanceled(_ context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byID[id]
	if !ok {
		return false, ErrNotFound
	}
	return t.Canceled, nil
}

type fakeTenants struct {
	rows   []tenant.Entity
	nextID int64
}

func (f *fakeTenants) ListByDataSource(_ context.Context, tenantID, dataSourceID uuid.UUID) ([]tenant.Entity, error) {
	var out []tenant.Entity
	for _, e := range f.rows {
		if e.TenantID == tenantID && e.DataSourceID == dataSourceID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeTenants) BulkCreate(_ context.Context, rows []tenant.Entity) (int64, error) {
	for _, e := range rows {
		f.nextID++
		e.ID = f.nextID
		f.rows = append(f.rows, e)
	}
	return int64(len(rows)), nil
}

func (f *fakeTenants) BulkDelete(_ context.Context, ids []int64) (int64, error) {
	drop := make(map[int64]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	var kept []tenant.Entity
	var n int64
	for _, e := range f.rows {
		if drop[e.ID] {
			n++
			continue
		}
		kept = append(kept, e)
	}
	f.rows = kept
	return n, nil
}

type staticFetcher struct {
	departments []datasource.RawDepartment
	users       []datasource.RawUser
	err         error
}

func (f staticFetcher) Fetch(_ context.Context) ([]datasource.RawDepartment, []datasource.RawUser, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.departments, f.users, nil
}

type staticFetcherFactory struct {
	fetcher staticFetcher
}

func (f staticFetcherFactory) ForDataSource(datasource.DataSource) (datasource.Fetcher, error) {
	return f.fetcher, nil
}
