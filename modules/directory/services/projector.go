package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/dirsync/modules/directory/domain/datasource"
	"github.com/iota-uz/dirsync/modules/directory/domain/tenant"
	"github.com/iota-uz/dirsync/pkg/composables"
)

// TenantProjector maps data-source entities onto tenant-scoped rows. It
// creates projections for entities not yet visible, removes projections whose
// backing entity is gone, and never touches rows with a live backing entity.
// External IDs are generated once and survive every later sync.
type TenantProjector struct {
	tenants     TenantEntityRepository
	users       UserRepository
	departments DepartmentRepository
	log         *logrus.Logger
}

func NewTenantProjector(
	tenants TenantEntityRepository,
	users UserRepository,
	departments DepartmentRepository,
	log *logrus.Logger,
) *TenantProjector {
	return &TenantProjector{tenants: tenants, users: users, departments: departments, log: log}
}

type ProjectResult struct {
	Created int
	Removed int
}

func (p *TenantProjector) Project(ctx context.Context, ds datasource.DataSource) (ProjectResult, error) {
	return composables.InTxResult(ctx, func(txCtx context.Context) (ProjectResult, error) {
		return p.projectInTx(txCtx, ds)
	})
}

func (p *TenantProjector) projectInTx(ctx context.Context, ds datasource.DataSource) (ProjectResult, error) {
	var res ProjectResult

	existing, err := p.tenants.ListByDataSource(ctx, ds.TenantID(), ds.ID())
	if err != nil {
		return res, err
	}

	type key struct {
		typ tenant.EntityType
		id  int64
	}
	projected := make(map[key]tenant.Entity, len(existing))
	for _, e := range existing {
		projected[key{e.EntityType, e.EntityID}] = e
	}

	users, err := p.users.ListByDataSource(ctx, ds.ID())
	if err != nil {
		return res, err
	}
	departments, err := p.departments.ListByDataSource(ctx, ds.ID())
	if err != nil {
		return res, err
	}

	live := make(map[key]bool, len(users)+len(departments))
	var toCreate []tenant.Entity

	for _, u := range users {
		k := key{tenant.EntityUser, u.ID}
		live[k] = true
		if _, ok := projected[k]; ok {
			continue
		}
		toCreate = append(toCreate, tenant.Entity{
			TenantID:     ds.TenantID(),
			DataSourceID: ds.ID(),
			EntityType:   tenant.EntityUser,
			EntityID:     u.ID,
			ExternalID:   externalID(ds, u.Username),
		})
	}
	for _, d := range departments {
		k := key{tenant.EntityDepartment, d.ID}
		live[k] = true
		if _, ok := projected[k]; ok {
			continue
		}
		toCreate = append(toCreate, tenant.Entity{
			TenantID:     ds.TenantID(),
			DataSourceID: ds.ID(),
			EntityType:   tenant.EntityDepartment,
			EntityID:     d.ID,
			// Departments always get opaque IDs; the username strategies only
			// make sense for users.
			ExternalID: uuid.NewString(),
		})
	}

	var toRemove []int64
	for k, e := range projected {
		if !live[k] {
			toRemove = append(toRemove, e.ID)
		}
	}

	if len(toRemove) > 0 {
		n, err := p.tenants.BulkDelete(ctx, toRemove)
		if err != nil {
			return res, mapPgError(err)
		}
		res.Removed = int(n)
	}
	if len(toCreate) > 0 {
		n, err := p.tenants.BulkCreate(ctx, toCreate)
		if err != nil {
			return res, mapPgError(err)
		}
		res.Created = int(n)
	}
	return res, nil
}

func externalID(ds datasource.DataSource, username string) string {
	switch ds.Strategy() {
	case datasource.StrategyUsername:
		return username
	case datasource.StrategyUsernameDomain:
		return fmt.Sprintf("%s@%s", username, ds.Domain())
	default:
		return uuid.NewString()
	}
}
