package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iota-uz/dirsync/modules/directory/domain/tenant"
	"github.com/iota-uz/dirsync/pkg/composables"
)

type TenantEntityRepository struct{}

func NewTenantEntityRepository() *TenantEntityRepository {
	return &TenantEntityRepository{}
}

func (r *TenantEntityRepository) ListByDataSource(ctx context.Context, tenantID, dataSourceID uuid.UUID) ([]tenant.Entity, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
SELECT id, tenant_id, data_source_id, entity_type, entity_id, external_id, created_at
FROM tenant_entities
WHERE tenant_id = $1 AND data_source_id = $2
ORDER BY id`, pgUUID(tenantID), pgUUID(dataSourceID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []tenant.Entity
	for rows.Next() {
		var e tenant.Entity
		var tID, dsID pgtype.UUID
		var typ string
		if err := rows.Scan(&e.ID, &tID, &dsID, &typ, &e.EntityID, &e.ExternalID, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.TenantID = fromPgUUID(tID)
		e.DataSourceID = fromPgUUID(dsID)
		e.EntityType = tenant.EntityType(typ)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *TenantEntityRepository) BulkCreate(ctx context.Context, rows []tenant.Entity) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}

	return tx.CopyFrom(ctx,
		pgx.Identifier{"tenant_entities"},
		[]string{"tenant_id", "data_source_id", "entity_type", "entity_id", "external_id"},
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			e := rows[i]
			return []any{pgUUID(e.TenantID), pgUUID(e.DataSourceID), string(e.EntityType), e.EntityID, e.ExternalID}, nil
		}),
	)
}

func (r *TenantEntityRepository) BulkDelete(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}

	tag, err := tx.Exec(ctx, `DELETE FROM tenant_entities WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
