package persistence

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/dirsync/modules/directory/domain/entity"
	"github.com/iota-uz/dirsync/modules/directory/services"
	"github.com/iota-uz/dirsync/pkg/composables"
)

type RelationRepository struct{}

func NewRelationRepository() *RelationRepository {
	return &RelationRepository{}
}

func (r *RelationRepository) ListDepartmentRelations(ctx context.Context, dataSourceID uuid.UUID) ([]entity.DepartmentRelation, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
SELECT department_id, parent_id, tree_id, lft, rght, level
FROM department_relations
WHERE data_source_id = $1
ORDER BY tree_id, lft`, pgUUID(dataSourceID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entity.DepartmentRelation
	for rows.Next() {
		rel := entity.DepartmentRelation{DataSourceID: dataSourceID}
		if err := rows.Scan(&rel.DepartmentID, &rel.ParentID, &rel.TreeID, &rel.Lft, &rel.Rght, &rel.Level); err != nil {
			return nil, err
		}
		out = append(out, rel)
	}
	return out, rows.Err()
}

func (r *RelationRepository) AllocateTreeIDs(ctx context.Context, n int) ([]int64, error) {
	if n <= 0 {
		return nil, nil
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `SELECT nextval('department_tree_id_seq') FROM generate_series(1, $1)`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]int64, 0, n)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *RelationRepository) ReplaceDepartmentRelations(ctx context.Context, dataSourceID uuid.UUID, rows []entity.DepartmentRelation) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM department_relations WHERE data_source_id = $1`, pgUUID(dataSourceID)); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"department_relations"},
		[]string{"data_source_id", "department_id", "parent_id", "tree_id", "lft", "rght", "level"},
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			rel := rows[i]
			return []any{pgUUID(rel.DataSourceID), rel.DepartmentID, rel.ParentID, rel.TreeID, rel.Lft, rel.Rght, rel.Level}, nil
		}),
	)
	return err
}

func edgeTable(kind services.EdgeKind) (table, targetColumn string, err error) {
	switch kind {
	case services.EdgeMembership:
		return "user_department_edges", "department_id", nil
	case services.EdgeLeadership:
		return "user_leader_edges", "leader_id", nil
	default:
		return "", "", fmt.Errorf("unknown edge kind %q", kind)
	}
}

func (r *RelationRepository) ListEdges(ctx context.Context, dataSourceID uuid.UUID, kind services.EdgeKind) ([]entity.Edge, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	table, target, err := edgeTable(kind)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, fmt.Sprintf(`
SELECT user_id, %s FROM %s WHERE data_source_id = $1 ORDER BY user_id`, target, table), pgUUID(dataSourceID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entity.Edge
	for rows.Next() {
		var e entity.Edge
		if err := rows.Scan(&e.A, &e.B); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *RelationRepository) AddEdges(ctx context.Context, dataSourceID uuid.UUID, kind services.EdgeKind, edges []entity.Edge) (int64, error) {
	if len(edges) == 0 {
		return 0, nil
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}
	table, target, err := edgeTable(kind)
	if err != nil {
		return 0, err
	}

	return tx.CopyFrom(ctx,
		pgx.Identifier{table},
		[]string{"data_source_id", "user_id", target},
		pgx.CopyFromSlice(len(edges), func(i int) ([]any, error) {
			return []any{pgUUID(dataSourceID), edges[i].A, edges[i].B}, nil
		}),
	)
}

func (r *RelationRepository) RemoveEdges(ctx context.Context, dataSourceID uuid.UUID, kind services.EdgeKind, edges []entity.Edge) (int64, error) {
	if len(edges) == 0 {
		return 0, nil
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}
	table, target, err := edgeTable(kind)
	if err != nil {
		return 0, err
	}

	userIDs := make([]int64, len(edges))
	targetIDs := make([]int64, len(edges))
	for i, e := range edges {
		userIDs[i] = e.A
		targetIDs[i] = e.B
	}

	tag, err := tx.Exec(ctx, fmt.Sprintf(`
DELETE FROM %s
WHERE data_source_id = $1
  AND (user_id, %s) IN (SELECT unnest($2::bigint[]), unnest($3::bigint[]))`, table, target),
		pgUUID(dataSourceID), userIDs, targetIDs)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
