package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iota-uz/dirsync/modules/directory/domain/entity"
	"github.com/iota-uz/dirsync/pkg/composables"
)

const defaultBatchSize = 500

// chunk splits rows so a single SendBatch never carries more than size
// statements.
func chunk[T any](rows []T, size int) [][]T {
	if size <= 0 {
		size = defaultBatchSize
	}
	var parts [][]T
	for i := 0; i < len(rows); i += size {
		end := i + size
		if end > len(rows) {
			end = len(rows)
		}
		parts = append(parts, rows[i:end])
	}
	return parts
}

type DepartmentRepository struct {
	batchSize int
}

func NewDepartmentRepository(batchSize int) *DepartmentRepository {
	return &DepartmentRepository{batchSize: batchSize}
}

func (r *DepartmentRepository) ListByDataSource(ctx context.Context, dataSourceID uuid.UUID) ([]entity.Department, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
SELECT id, data_source_id, code, name, extras, created_at, updated_at
FROM directory_departments
WHERE data_source_id = $1
ORDER BY id`, pgUUID(dataSourceID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entity.Department
	for rows.Next() {
		var d entity.Department
		var dsID pgtype.UUID
		if err := rows.Scan(&d.ID, &dsID, &d.Code, &d.Name, &d.Extras, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		d.DataSourceID = fromPgUUID(dsID)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *DepartmentRepository) BulkCreate(ctx context.Context, rows []entity.Department) ([]entity.Department, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]entity.Department, 0, len(rows))
	for _, part := range chunk(rows, r.batchSize) {
		batch := &pgx.Batch{}
		for _, d := range part {
			batch.Queue(`
INSERT INTO directory_departments (data_source_id, code, name, extras)
VALUES ($1, $2, $3, $4)
RETURNING id, created_at, updated_at`,
				pgUUID(d.DataSourceID), d.Code, d.Name, emptyExtras(d.Extras))
		}

		results := tx.SendBatch(ctx, batch)
		for _, d := range part {
			if err := results.QueryRow().Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt); err != nil {
				_ = results.Close()
				return nil, err
			}
			out = append(out, d)
		}
		if err := results.Close(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *DepartmentRepository) BulkUpdate(ctx context.Context, rows []entity.Department) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	for _, part := range chunk(rows, r.batchSize) {
		batch := &pgx.Batch{}
		for _, d := range part {
			batch.Queue(`
UPDATE directory_departments
SET name = $2, extras = $3, updated_at = now()
WHERE id = $1`,
				d.ID, d.Name, emptyExtras(d.Extras))
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return err
		}
	}
	return nil
}

func (r *DepartmentRepository) BulkDeleteByCodes(ctx context.Context, dataSourceID uuid.UUID, codes []string) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}

	tag, err := tx.Exec(ctx, `
DELETE FROM directory_departments
WHERE data_source_id = $1 AND code = ANY($2)`, pgUUID(dataSourceID), codes)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

type UserRepository struct {
	batchSize int
}

func NewUserRepository(batchSize int) *UserRepository {
	return &UserRepository{batchSize: batchSize}
}

func (r *UserRepository) ListByDataSource(ctx context.Context, dataSourceID uuid.UUID) ([]entity.User, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
SELECT id, data_source_id, code, username, display_name, email, phone, extras, created_at, updated_at
FROM directory_users
WHERE data_source_id = $1
ORDER BY id`, pgUUID(dataSourceID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entity.User
	for rows.Next() {
		var u entity.User
		var dsID pgtype.UUID
		if err := rows.Scan(&u.ID, &dsID, &u.Code, &u.Username, &u.DisplayName, &u.Email, &u.Phone, &u.Extras, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		u.DataSourceID = fromPgUUID(dsID)
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *UserRepository) BulkCreate(ctx context.Context, rows []entity.User) ([]entity.User, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]entity.User, 0, len(rows))
	for _, part := range chunk(rows, r.batchSize) {
		batch := &pgx.Batch{}
		for _, u := range part {
			batch.Queue(`
INSERT INTO directory_users (data_source_id, code, username, display_name, email, phone, password_hash, extras)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id, created_at, updated_at`,
				pgUUID(u.DataSourceID), u.Code, u.Username, u.DisplayName, u.Email, u.Phone, u.PasswordHash, emptyExtras(u.Extras))
		}

		results := tx.SendBatch(ctx, batch)
		for _, u := range part {
			if err := results.QueryRow().Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt); err != nil {
				_ = results.Close()
				return nil, err
			}
			out = append(out, u)
		}
		if err := results.Close(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *UserRepository) BulkUpdate(ctx context.Context, rows []entity.User, rewriteUsername bool) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	for _, part := range chunk(rows, r.batchSize) {
		batch := &pgx.Batch{}
		for _, u := range part {
			if rewriteUsername {
				batch.Queue(`
UPDATE directory_users
SET username = $2, display_name = $3, email = $4, phone = $5, extras = $6, updated_at = now()
WHERE id = $1`,
					u.ID, u.Username, u.DisplayName, u.Email, u.Phone, emptyExtras(u.Extras))
			} else {
				batch.Queue(`
UPDATE directory_users
SET display_name = $2, email = $3, phone = $4, extras = $5, updated_at = now()
WHERE id = $1`,
					u.ID, u.DisplayName, u.Email, u.Phone, emptyExtras(u.Extras))
			}
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return err
		}
	}
	return nil
}

func (r *UserRepository) BulkDeleteByCodes(ctx context.Context, dataSourceID uuid.UUID, codes []string) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}

	tag, err := tx.Exec(ctx, `
DELETE FROM directory_users
WHERE data_source_id = $1 AND code = ANY($2)`, pgUUID(dataSourceID), codes)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// emptyExtras keeps NULLs out of the jsonb column.
func emptyExtras(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
