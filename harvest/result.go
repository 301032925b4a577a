package harvest

import (
	"cmp"
	"slices"
	"sync"

	"github.com/Gaurav-Gosain/cfproblem/problem"
)

// Result is the outcome of harvesting one problem.
type Result struct {
	ID       problem.ID
	Doc      *problem.Document
	Attempts int
	Err      error
}

// Partial reports a result that only carries summary metadata.
func (r Result) Partial() bool {
	return r.Doc != nil && r.Doc.IsPartial()
}

// ResultStore is a thread-safe collection of results, one per problem.
type ResultStore struct {
	mu      sync.Mutex
	results []Result
	seen    map[string]bool
}

func NewResultStore() *ResultStore {
	return &ResultStore{
		seen: make(map[string]bool),
	}
}

// Add records r unless a result for the same problem is already stored.
func (rs *ResultStore) Add(r Result) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	key := r.ID.Key()
	if rs.seen[key] {
		return false
	}
	rs.seen[key] = true
	rs.results = append(rs.results, r)
	return true
}

func (rs *ResultStore) Count() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.results)
}

// Results returns the stored results ordered by contest, then index.
func (rs *ResultStore) Results() []Result {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	out := make([]Result, len(rs.results))
	copy(out, rs.results)
	slices.SortStableFunc(out, func(a, b Result) int {
		if c := cmp.Compare(a.ID.Contest, b.ID.Contest); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.Index, b.ID.Index)
	})
	return out
}
