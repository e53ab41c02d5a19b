package services

import (
	"fmt"

	"github.com/iota-uz/dirsync/modules/directory/domain/datasource"
	"github.com/iota-uz/dirsync/pkg/serrors"
)

var (
	// ErrNoEffectiveOperation rejects the mode/policy pair under which a run
	// could neither delete nor update anything.
	ErrNoEffectiveOperation = serrors.NewError(
		"SYNC_NO_EFFECTIVE_OPERATION",
		"incremental mode with append policy performs no deletes and no updates",
		"use full mode or overwrite policy",
	)
	ErrDuplicateCode = serrors.NewError(
		"SYNC_DUPLICATE_CODE",
		"duplicate code within one raw batch",
		"",
	)
)

// UpdatePair stages one overwrite: Existing carries the internal identity,
// Incoming the new field values.
type UpdatePair[R any] struct {
	Existing R
	Incoming R
}

type DiffResult[R any] struct {
	ToCreate []R
	ToUpdate []UpdatePair[R]
	// ToDelete lists codes of internal rows absent from the batch. Empty in
	// incremental mode.
	ToDelete []string
	// Unchanged counts rows present on both sides whose fields were equal.
	Unchanged int
}

// DiffEngine partitions existing internal rows against the incoming raw batch
// by natural code. It never touches storage; callers apply the result.
type DiffEngine[R any] struct {
	mode   datasource.SyncMode
	policy datasource.SyncPolicy
	code   func(R) string
	equal  func(existing, incoming R) bool
}

func NewDiffEngine[R any](
	mode datasource.SyncMode,
	policy datasource.SyncPolicy,
	code func(R) string,
	equal func(existing, incoming R) bool,
) (*DiffEngine[R], error) {
	if mode == datasource.ModeIncremental && policy == datasource.PolicyAppend {
		return nil, ErrNoEffectiveOperation
	}
	return &DiffEngine[R]{mode: mode, policy: policy, code: code, equal: equal}, nil
}

// Diff computes the disjoint create/update/delete sets. Identical rows are
// skipped so the second run of an identical batch stages zero writes.
func (e *DiffEngine[R]) Diff(existing, incoming []R) (DiffResult[R], error) {
	var res DiffResult[R]

	existingByCode := make(map[string]R, len(existing))
	for _, row := range existing {
		existingByCode[e.code(row)] = row
	}

	seen := make(map[string]struct{}, len(incoming))
	for _, row := range incoming {
		code := e.code(row)
		if _, dup := seen[code]; dup {
			return DiffResult[R]{}, ErrDuplicateCode.WithCause(fmt.Errorf("code %q", code))
		}
		seen[code] = struct{}{}

		old, ok := existingByCode[code]
		if !ok {
			res.ToCreate = append(res.ToCreate, row)
			continue
		}
		if e.policy != datasource.PolicyOverwrite {
			continue
		}
		if e.equal(old, row) {
			res.Unchanged++
			continue
		}
		res.ToUpdate = append(res.ToUpdate, UpdatePair[R]{Existing: old, Incoming: row})
	}

	if e.mode == datasource.ModeFull {
		for _, row := range existing {
			code := e.code(row)
			if _, ok := seen[code]; !ok {
				res.ToDelete = append(res.ToDelete, code)
			}
		}
	}

	return res, nil
}
