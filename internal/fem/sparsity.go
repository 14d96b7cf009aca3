package fem

import (
	"slices"
	"sort"
	"sync"
)

// Sparsity is the CSR nonzero pattern of a bilinear form.
type Sparsity struct {
	Rows, Cols int
	Indptr     []int
	Ind        []int
}

func (s *Sparsity) NNZ() int { return len(s.Ind) }

// Find returns the position of (row, col) in the CSR data array or -1.
func (s *Sparsity) Find(row, col int) int {
	lo, hi := s.Indptr[row], s.Indptr[row+1]
	k := lo + sort.SearchInts(s.Ind[lo:hi], col)
	if k < hi && s.Ind[k] == col {
		return k
	}
	return -1
}

type sparsityKey struct {
	test, trial Space
}

var (
	sparsityMu    sync.Mutex
	sparsityCache = map[sparsityKey]*Sparsity{}
)

// ClearSparsityCache drops every cached pattern so that the next assembly
// has to rebuild it.
func ClearSparsityCache() {
	sparsityMu.Lock()
	defer sparsityMu.Unlock()
	clear(sparsityCache)
}

// SparsityFor returns the cached pattern for (test, trial), building it on
// first use.
func SparsityFor(test, trial Space) *Sparsity {
	key := sparsityKey{test, trial}
	sparsityMu.Lock()
	if s, ok := sparsityCache[key]; ok {
		sparsityMu.Unlock()
		return s
	}
	sparsityMu.Unlock()

	s := buildSparsity(test, trial)

	sparsityMu.Lock()
	defer sparsityMu.Unlock()
	if cached, ok := sparsityCache[key]; ok {
		return cached
	}
	sparsityCache[key] = s
	return s
}

func buildSparsity(test, trial Space) *Sparsity {
	m := test.Mesh()
	rows := make([][]int, test.Dofs())
	var rd, cd []int
	for c := 0; c < m.NumCells(); c++ {
		rd = test.CellDofs(c, rd)
		cd = trial.CellDofs(c, cd)
		for _, r := range rd {
			rows[r] = append(rows[r], cd...)
		}
	}
	s := &Sparsity{Rows: test.Dofs(), Cols: trial.Dofs(), Indptr: make([]int, test.Dofs()+1)}
	for r, cols := range rows {
		slices.Sort(cols)
		cols = slices.Compact(cols)
		s.Ind = append(s.Ind, cols...)
		s.Indptr[r+1] = len(s.Ind)
		rows[r] = nil
	}
	return s
}
