package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iota-uz/dirsync/modules/directory/domain/datasource"
	"github.com/iota-uz/dirsync/modules/directory/services"
	"github.com/iota-uz/dirsync/pkg/composables"
)

const dataSourceColumns = `
	id, tenant_id, name, type, sync_mode, sync_policy, id_strategy,
	username_frozen, cron_expr, domain, settings, created_at, updated_at`

type DataSourceRepository struct{}

func NewDataSourceRepository() *DataSourceRepository {
	return &DataSourceRepository{}
}

func (r *DataSourceRepository) GetByID(ctx context.Context, id uuid.UUID) (datasource.DataSource, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return datasource.DataSource{}, err
	}

	row := tx.QueryRow(ctx, `SELECT`+dataSourceColumns+` FROM data_sources WHERE id = $1`, pgUUID(id))
	ds, err := scanDataSource(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return datasource.DataSource{}, services.ErrNotFound
		}
		return datasource.DataSource{}, err
	}
	return ds, nil
}

func (r *DataSourceRepository) ListScheduled(ctx context.Context) ([]datasource.DataSource, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `SELECT`+dataSourceColumns+` FROM data_sources WHERE cron_expr <> '' AND type <> 'local' ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []datasource.DataSource
	for rows.Next() {
		ds, err := scanDataSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ds)
	}
	return out, rows.Err()
}

func scanDataSource(row pgx.Row) (datasource.DataSource, error) {
	var (
		id, tenantID                      pgtype.UUID
		name, typ, mode, policy, strategy string
		usernameFrozen                    bool
		cronExpr, domain                  string
		settingsJSON                      []byte
		createdAt, updatedAt              time.Time
	)
	if err := row.Scan(
		&id, &tenantID, &name, &typ, &mode, &policy, &strategy,
		&usernameFrozen, &cronExpr, &domain, &settingsJSON, &createdAt, &updatedAt,
	); err != nil {
		return datasource.DataSource{}, err
	}

	var settings datasource.Settings
	if len(settingsJSON) > 0 {
		if err := json.Unmarshal(settingsJSON, &settings); err != nil {
			return datasource.DataSource{}, gerrors.Wrap(err, "decode data source settings")
		}
	}

	return datasource.Hydrate(
		fromPgUUID(id),
		fromPgUUID(tenantID),
		name,
		datasource.Type(typ),
		datasource.SyncMode(mode),
		datasource.SyncPolicy(policy),
		datasource.ExternalIDStrategy(strategy),
		usernameFrozen,
		cronExpr,
		domain,
		settings,
		createdAt,
		updatedAt,
	), nil
}
