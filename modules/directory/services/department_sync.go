package services

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/dirsync/modules/directory/domain/datasource"
	"github.com/iota-uz/dirsync/modules/directory/domain/entity"
	"github.com/iota-uz/dirsync/pkg/composables"
)

// DepartmentSyncer applies one raw department batch: entity diff plus a full
// rebuild of the nested-set relation rows, in a single transaction.
type DepartmentSyncer struct {
	departments DepartmentRepository
	relations   RelationRepository
	log         *logrus.Logger
}

func NewDepartmentSyncer(departments DepartmentRepository, relations RelationRepository, log *logrus.Logger) *DepartmentSyncer {
	return &DepartmentSyncer{departments: departments, relations: relations, log: log}
}

type DepartmentSyncResult struct {
	Created   int
	Updated   int
	Deleted   int
	Unchanged int
	// IDByCode maps every surviving department code to its internal ID.
	IDByCode map[string]int64
	// NewIDs marks departments created by this run.
	NewIDs map[int64]bool
	// RelationRows is the size of the rebuilt forest.
	RelationRows int
}

func (s *DepartmentSyncer) Sync(ctx context.Context, ds datasource.DataSource, raw []datasource.RawDepartment) (DepartmentSyncResult, error) {
	engine, err := NewDiffEngine(
		ds.Mode(), ds.Policy(),
		func(d entity.Department) string { return d.Code },
		func(existing, incoming entity.Department) bool { return existing.FieldsEqual(incoming) },
	)
	if err != nil {
		return DepartmentSyncResult{}, err
	}

	incoming := make([]entity.Department, 0, len(raw))
	for _, r := range raw {
		incoming = append(incoming, entity.Department{
			DataSourceID: ds.ID(),
			Code:         strings.TrimSpace(r.Code),
			Name:         strings.TrimSpace(r.Name),
			Extras:       r.Extras,
		})
	}

	return composables.InTxResult(ctx, func(txCtx context.Context) (DepartmentSyncResult, error) {
		return s.syncInTx(txCtx, ds, raw, incoming, engine)
	})
}

func (s *DepartmentSyncer) syncInTx(
	ctx context.Context,
	ds datasource.DataSource,
	raw []datasource.RawDepartment,
	incoming []entity.Department,
	engine *DiffEngine[entity.Department],
) (DepartmentSyncResult, error) {
	existing, err := s.departments.ListByDataSource(ctx, ds.ID())
	if err != nil {
		return DepartmentSyncResult{}, err
	}
	existingByCode := make(map[string]entity.Department, len(existing))
	for _, d := range existing {
		existingByCode[d.Code] = d
	}

	diff, err := engine.Diff(existing, incoming)
	if err != nil {
		return DepartmentSyncResult{}, err
	}

	res := DepartmentSyncResult{
		Unchanged: diff.Unchanged,
		IDByCode:  make(map[string]int64),
		NewIDs:    make(map[int64]bool),
	}

	// Shrink first so soon-to-be-deleted rows cannot collide with created
	// rows that reuse a natural key.
	if len(diff.ToDelete) > 0 {
		n, err := s.departments.BulkDeleteByCodes(ctx, ds.ID(), diff.ToDelete)
		if err != nil {
			return DepartmentSyncResult{}, mapPgError(err)
		}
		res.Deleted = int(n)
		for _, code := range diff.ToDelete {
			delete(existingByCode, code)
		}
	}

	if len(diff.ToUpdate) > 0 {
		updates := make([]entity.Department, 0, len(diff.ToUpdate))
		for _, pair := range diff.ToUpdate {
			row := pair.Incoming
			row.ID = pair.Existing.ID
			updates = append(updates, row)
			existingByCode[row.Code] = row
		}
		if err := s.departments.BulkUpdate(ctx, updates); err != nil {
			return DepartmentSyncResult{}, mapPgError(err)
		}
		res.Updated = len(updates)
	}

	if len(diff.ToCreate) > 0 {
		created, err := s.departments.BulkCreate(ctx, diff.ToCreate)
		if err != nil {
			return DepartmentSyncResult{}, mapPgError(err)
		}
		res.Created = len(created)
		for _, d := range created {
			existingByCode[d.Code] = d
			res.NewIDs[d.ID] = true
		}
	}

	for code, d := range existingByCode {
		res.IDByCode[code] = d.ID
	}

	rows, err := s.rebuildForest(ctx, ds, raw, existing, existingByCode)
	if err != nil {
		return DepartmentSyncResult{}, err
	}
	res.RelationRows = len(rows)

	if err := s.relations.ReplaceDepartmentRelations(ctx, ds.ID(), rows); err != nil {
		return DepartmentSyncResult{}, mapPgError(err)
	}
	return res, nil
}

// rebuildForest recomputes nested-set rows for every surviving department.
// In incremental mode departments untouched by the batch keep their previous
// parent pointer.
func (s *DepartmentSyncer) rebuildForest(
	ctx context.Context,
	ds datasource.DataSource,
	raw []datasource.RawDepartment,
	before []entity.Department,
	survivingByCode map[string]entity.Department,
) ([]entity.DepartmentRelation, error) {
	parents := make(map[string]string, len(survivingByCode))

	if ds.Mode() == datasource.ModeIncremental {
		prev, err := s.relations.ListDepartmentRelations(ctx, ds.ID())
		if err != nil {
			return nil, err
		}
		codeByID := make(map[int64]string, len(before))
		for _, d := range before {
			codeByID[d.ID] = d.Code
		}
		for _, rel := range prev {
			code, ok := codeByID[rel.DepartmentID]
			if !ok {
				continue
			}
			parent := ""
			if rel.ParentID != nil {
				parent = codeByID[*rel.ParentID]
			}
			parents[code] = parent
		}
	}

	for _, r := range raw {
		parents[strings.TrimSpace(r.Code)] = strings.TrimSpace(r.ParentCode)
	}

	// Drop pointers of departments that no longer exist.
	for code := range parents {
		if _, ok := survivingByCode[code]; !ok {
			delete(parents, code)
		}
	}
	for code, parent := range parents {
		if parent == "" {
			continue
		}
		if _, ok := survivingByCode[parent]; !ok {
			s.log.WithFields(logrus.Fields{
				"data_source_id": ds.ID(),
				"code":           code,
				"parent_code":    parent,
			}).Warn("department parent not found, lifting to root")
			parents[code] = ""
		}
	}

	intervals, err := BuildForest(parents)
	if err != nil {
		return nil, err
	}
	if len(intervals) == 0 {
		return nil, nil
	}

	trees := 0
	for _, row := range intervals {
		if row.TreeOrdinal+1 > trees {
			trees = row.TreeOrdinal + 1
		}
	}
	treeIDs, err := s.relations.AllocateTreeIDs(ctx, trees)
	if err != nil {
		return nil, err
	}

	rows := make([]entity.DepartmentRelation, 0, len(intervals))
	for _, row := range intervals {
		rel := entity.DepartmentRelation{
			DataSourceID: ds.ID(),
			DepartmentID: survivingByCode[row.Code].ID,
			TreeID:       treeIDs[row.TreeOrdinal],
			Lft:          row.Lft,
			Rght:         row.Rght,
			Level:        row.Level,
		}
		if row.ParentCode != "" {
			parentID := survivingByCode[row.ParentCode].ID
			rel.ParentID = &parentID
		}
		rows = append(rows, rel)
	}
	return rows, nil
}
