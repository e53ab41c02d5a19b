package services

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/dirsync/modules/directory/domain/datasource"
	"github.com/iota-uz/dirsync/modules/directory/domain/entity"
	"github.com/iota-uz/dirsync/pkg/composables"
)

// RelationSyncer diffs and applies one kind of many-to-many edge. It runs
// after entity sync has committed, so every endpoint ID is final.
type RelationSyncer struct {
	relations RelationRepository
	log       *logrus.Logger
}

func NewRelationSyncer(relations RelationRepository, log *logrus.Logger) *RelationSyncer {
	return &RelationSyncer{relations: relations, log: log}
}

type RelationSyncInput struct {
	Kind EdgeKind
	// Desired maps user code to target codes as listed by the current batch.
	Desired map[string][]string
	// BatchUserCodes marks users present in the batch; in incremental mode
	// users outside it keep their previous edges.
	BatchUserCodes map[string]bool
	// UserIDByCode and TargetIDByCode resolve codes to internal IDs for every
	// currently existing entity. A code missing from its map is a dangling
	// reference and the single edge is dropped with a warning.
	UserIDByCode   map[string]int64
	TargetIDByCode map[string]int64
	// NewUserIDs marks users created by this run. In append mode only edges
	// touching these are added; pre-existing users keep their old edges even
	// if the batch implies a change.
	NewUserIDs map[int64]bool
}

type RelationSyncResult struct {
	Added    int
	Removed  int
	Dangling int
}

func (s *RelationSyncer) Sync(ctx context.Context, ds datasource.DataSource, in RelationSyncInput) (RelationSyncResult, error) {
	return composables.InTxResult(ctx, func(txCtx context.Context) (RelationSyncResult, error) {
		return s.syncInTx(txCtx, ds, in)
	})
}

func (s *RelationSyncer) syncInTx(ctx context.Context, ds datasource.DataSource, in RelationSyncInput) (RelationSyncResult, error) {
	var res RelationSyncResult

	existing, err := s.relations.ListEdges(ctx, ds.ID(), in.Kind)
	if err != nil {
		return res, err
	}
	existingSet := make(map[entity.Edge]bool, len(existing))
	for _, e := range existing {
		existingSet[e] = true
	}

	desired := make(map[entity.Edge]bool)
	for userCode, targetCodes := range in.Desired {
		userID, ok := in.UserIDByCode[userCode]
		if !ok {
			// The user row was skipped or never existed; its edges go with it.
			res.Dangling += len(targetCodes)
			s.logDangling(ds, in.Kind, userCode, "")
			continue
		}
		for _, targetCode := range targetCodes {
			targetID, ok := in.TargetIDByCode[targetCode]
			if !ok {
				res.Dangling++
				s.logDangling(ds, in.Kind, userCode, targetCode)
				continue
			}
			desired[entity.Edge{A: userID, B: targetID}] = true
		}
	}

	if ds.Mode() == datasource.ModeIncremental {
		// Untouched users keep their previous edges.
		batchUserIDs := make(map[int64]bool, len(in.BatchUserCodes))
		for code := range in.BatchUserCodes {
			if id, ok := in.UserIDByCode[code]; ok {
				batchUserIDs[id] = true
			}
		}
		for _, e := range existing {
			if !batchUserIDs[e.A] {
				desired[e] = true
			}
		}
	}

	var toAdd, toRemove []entity.Edge
	for e := range desired {
		if !existingSet[e] {
			toAdd = append(toAdd, e)
		}
	}
	for _, e := range existing {
		if !desired[e] {
			toRemove = append(toRemove, e)
		}
	}

	if ds.Policy() == datasource.PolicyAppend {
		toRemove = nil
		filtered := toAdd[:0]
		for _, e := range toAdd {
			if in.NewUserIDs[e.A] {
				filtered = append(filtered, e)
			}
		}
		toAdd = filtered
	}

	if len(toRemove) > 0 {
		n, err := s.relations.RemoveEdges(ctx, ds.ID(), in.Kind, toRemove)
		if err != nil {
			return res, mapPgError(err)
		}
		res.Removed = int(n)
	}
	if len(toAdd) > 0 {
		n, err := s.relations.AddEdges(ctx, ds.ID(), in.Kind, toAdd)
		if err != nil {
			return res, mapPgError(err)
		}
		res.Added = int(n)
	}
	return res, nil
}

func (s *RelationSyncer) logDangling(ds datasource.DataSource, kind EdgeKind, userCode, targetCode string) {
	s.log.WithFields(logrus.Fields{
		"data_source_id": ds.ID(),
		"kind":           kind,
		"user_code":      userCode,
		"target_code":    targetCode,
	}).Warn("dropping edge with dangling reference")
}
