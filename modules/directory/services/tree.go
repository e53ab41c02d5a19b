package services

import (
	"fmt"
	"sort"

	"github.com/iota-uz/dirsync/pkg/serrors"
)

var ErrHierarchyCycle = serrors.NewError(
	"SYNC_HIERARCHY_CYCLE",
	"department appears among its own ancestors",
	"",
)

// IntervalRow is one computed nested-set row, identified by natural code.
// TreeOrdinal numbers the forest's trees 0..n-1; the repository maps each
// ordinal to a freshly allocated tree id at insert time.
type IntervalRow struct {
	Code        string
	ParentCode  string
	TreeOrdinal int
	Lft         int
	Rght        int
	Level       int
}

// BuildForest turns flat parent pointers (code -> parent code, "" meaning
// root) into nested-set rows. Codes whose parent is unknown are lifted to
// roots. Rows come out in breadth-first order per tree, so a parent always
// precedes its children.
func BuildForest(parents map[string]string) ([]IntervalRow, error) {
	if err := detectCycles(parents); err != nil {
		return nil, err
	}

	children := make(map[string][]string, len(parents))
	var roots []string
	for code, parent := range parents {
		if parent == "" {
			roots = append(roots, code)
			continue
		}
		if _, known := parents[parent]; !known {
			// Orphaned parent pointer: lift to top level rather than drop.
			roots = append(roots, code)
			continue
		}
		children[parent] = append(children[parent], code)
	}
	sort.Strings(roots)
	for _, c := range children {
		sort.Strings(c)
	}

	rows := make([]IntervalRow, 0, len(parents))
	for ordinal, root := range roots {
		rows = append(rows, buildTree(root, ordinal, parents, children)...)
	}
	return rows, nil
}

// buildTree assigns (lft, rght, level) with an iterative pre/post counter
// walk, then reorders the rows breadth-first.
func buildTree(root string, ordinal int, parents map[string]string, children map[string][]string) []IntervalRow {
	type frame struct {
		code  string
		level int
		// childIdx tracks how many children have been descended into.
		childIdx int
		lft      int
	}

	byCode := make(map[string]IntervalRow)
	counter := 1
	stack := []frame{{code: root, level: 0, lft: counter}}
	counter++

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		kids := children[top.code]
		if top.childIdx < len(kids) {
			next := kids[top.childIdx]
			top.childIdx++
			stack = append(stack, frame{code: next, level: top.level + 1, lft: counter})
			counter++
			continue
		}
		parent := parents[top.code]
		if _, known := parents[parent]; !known {
			parent = ""
		}
		byCode[top.code] = IntervalRow{
			Code:        top.code,
			ParentCode:  parent,
			TreeOrdinal: ordinal,
			Lft:         top.lft,
			Rght:        counter,
			Level:       top.level,
		}
		counter++
		stack = stack[:len(stack)-1]
	}

	// BFS order for materialization: parents before children.
	ordered := make([]IntervalRow, 0, len(byCode))
	queue := []string{root}
	for len(queue) > 0 {
		code := queue[0]
		queue = queue[1:]
		ordered = append(ordered, byCode[code])
		queue = append(queue, children[code]...)
	}
	return ordered
}

func detectCycles(parents map[string]string) error {
	const (
		unvisited = 0
		inPath    = 1
		done      = 2
	)
	state := make(map[string]int, len(parents))

	for start := range parents {
		if state[start] != unvisited {
			continue
		}
		var path []string
		code := start
		for {
			if _, known := parents[code]; !known {
				break
			}
			switch state[code] {
			case done:
			case inPath:
				return ErrHierarchyCycle.WithCause(fmt.Errorf("at code %q", code))
			default:
				state[code] = inPath
				path = append(path, code)
				code = parents[code]
				continue
			}
			break
		}
		for _, p := range path {
			state[p] = done
		}
	}
	return nil
}
