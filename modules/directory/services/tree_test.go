package services

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func rowsByCode(rows []IntervalRow) map[string]IntervalRow {
	out := make(map[string]IntervalRow, len(rows))
	for _, r := range rows {
		out[r.Code] = r
	}
	return out
}

func TestBuildForest_Chain(t *testing.T) {
	rows, err := BuildForest(map[string]string{
		"a": "",
		"b": "a",
		"c": "b",
	})
	require.NoError(t, err)
	require.Len(t, rows, 3)

	byCode := rowsByCode(rows)
	require.Equal(t, IntervalRow{Code: "a", ParentCode: "", TreeOrdinal: 0, Lft: 1, Rght: 6, Level: 0}, byCode["a"])
	require.Equal(t, IntervalRow{Code: "b", ParentCode: "a", TreeOrdinal: 0, Lft: 2, Rght: 5, Level: 1}, byCode["b"])
	require.Equal(t, IntervalRow{Code: "c", ParentCode: "b", TreeOrdinal: 0, Lft: 3, Rght: 4, Level: 2}, byCode["c"])
}

func TestBuildForest_NestedSetInvariants(t *testing.T) {
	parents := map[string]string{
		"root": "",
		"eng":  "root",
		"ops":  "root",
		"be":   "eng",
		"fe":   "eng",
		"sre":  "ops",
	}
	rows, err := BuildForest(parents)
	require.NoError(t, err)
	require.Len(t, rows, len(parents))

	byCode := rowsByCode(rows)
	for code, row := range byCode {
		require.Less(t, row.Lft, row.Rght, "code %s", code)
		require.Equal(t, 1, (row.Rght-row.Lft)%2, "interval width parity of %s", code)
	}

	// A parent's interval strictly contains each child's, one level up.
	for code, parent := range parents {
		if parent == "" {
			require.Equal(t, 0, byCode[code].Level)
			continue
		}
		p, c := byCode[parent], byCode[code]
		require.Greater(t, c.Lft, p.Lft)
		require.Less(t, c.Rght, p.Rght)
		require.Equal(t, p.Level+1, c.Level)
	}

	// Descendant count is recoverable from the interval width.
	require.Equal(t, 5, (byCode["root"].Rght-byCode["root"].Lft-1)/2)
	require.Equal(t, 2, (byCode["eng"].Rght-byCode["eng"].Lft-1)/2)
	require.Equal(t, 0, (byCode["be"].Rght-byCode["be"].Lft-1)/2)
}

func TestBuildForest_ParentsPrecedeChildren(t *testing.T) {
	rows, err := BuildForest(map[string]string{
		"a":  "",
		"b":  "a",
		"c":  "a",
		"b1": "b",
		"c1": "c",
	})
	require.NoError(t, err)

	pos := make(map[string]int, len(rows))
	for i, r := range rows {
		pos[r.Code] = i
	}
	for _, r := range rows {
		if r.ParentCode != "" {
			require.Less(t, pos[r.ParentCode], pos[r.Code])
		}
	}
}

func TestBuildForest_MultipleRoots(t *testing.T) {
	rows, err := BuildForest(map[string]string{
		"x":  "",
		"x1": "x",
		"y":  "",
	})
	require.NoError(t, err)

	byCode := rowsByCode(rows)
	require.Equal(t, byCode["x"].TreeOrdinal, byCode["x1"].TreeOrdinal)
	require.NotEqual(t, byCode["x"].TreeOrdinal, byCode["y"].TreeOrdinal)

	// Counters restart per tree.
	require.Equal(t, 1, byCode["x"].Lft)
	require.Equal(t, 1, byCode["y"].Lft)
	require.Equal(t, 2, byCode["y"].Rght)
}

func TestBuildForest_OrphanParentBecomesRoot(t *testing.T) {
	rows, err := BuildForest(map[string]string{
		"a": "",
		"b": "ghost",
	})
	require.NoError(t, err)

	byCode := rowsByCode(rows)
	require.Equal(t, "", byCode["b"].ParentCode)
	require.Equal(t, 0, byCode["b"].Level)
}

func TestBuildForest_CycleFails(t *testing.T) {
	_, err := BuildForest(map[string]string{
		"a": "b",
		"b": "c",
		"c": "a",
	})
	require.ErrorIs(t, err, ErrHierarchyCycle)

	_, err = BuildForest(map[string]string{"a": "a"})
	require.ErrorIs(t, err, ErrHierarchyCycle)
}

func TestBuildForest_Empty(t *testing.T) {
	rows, err := BuildForest(nil)
	require.NoError(t, err)
	require.Empty(t, rows)
}
