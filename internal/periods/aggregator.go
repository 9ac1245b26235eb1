// Package periods merges heterogeneous partial simulation results keyed by
// period index into a coherent per-period result table.
package periods

import (
	"sort"
	"sync"

	"github.com/mentora-labs/mentora/internal/domain"
)

// Aggregator accumulates per-period facet records. Merge is commutative and
// idempotent with respect to re-delivery: a duplicate partial for an
// already-merged period overwrites that period's facets instead of appending,
// which tolerates retried polls returning overlapping snapshots.
type Aggregator struct {
	mu      sync.Mutex
	periods map[int]map[string][]domain.FacetRecord
	// trackedFacets and expectedPeriods feed the coverage half of the
	// completion heuristic.
	trackedFacets   []string
	expectedPeriods int
	explicitDone    bool
}

// New creates an aggregator tracking the given facets over expectedPeriods
// simulated periods.
func New(trackedFacets []string, expectedPeriods int) *Aggregator {
	return &Aggregator{
		periods:         make(map[int]map[string][]domain.FacetRecord),
		trackedFacets:   trackedFacets,
		expectedPeriods: expectedPeriods,
	}
}

// Merge folds one partial result in. Facet lists for the partial's period are
// replaced wholesale, so merging the same partial twice is a no-op.
func (a *Aggregator) Merge(partial domain.PeriodPartial) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if partial.Complete {
		a.explicitDone = true
	}
	if partial.Period < 1 || len(partial.Facets) == 0 {
		return
	}

	facets, ok := a.periods[partial.Period]
	if !ok {
		facets = make(map[string][]domain.FacetRecord)
		a.periods[partial.Period] = facets
	}
	for name, records := range partial.Facets {
		replaced := make([]domain.FacetRecord, len(records))
		copy(replaced, records)
		facets[name] = replaced
	}
}

// AvailablePeriods returns the sorted set of periods with data. It never
// returns an empty set: with no data it reports period 1, so period
// navigation always has something to stand on.
func (a *Aggregator) AvailablePeriods() []int {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.periods) == 0 {
		return []int{1}
	}
	out := make([]int, 0, len(a.periods))
	for p := range a.periods {
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

// Projection returns the facets for one period as a fresh copy; a render or
// export is always a pure projection and never mutates stored data.
func (a *Aggregator) Projection(period int) map[string][]domain.FacetRecord {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make(map[string][]domain.FacetRecord)
	facets, ok := a.periods[period]
	if !ok {
		return out
	}
	for name, records := range facets {
		cp := make([]domain.FacetRecord, len(records))
		copy(cp, records)
		out[name] = cp
	}
	return out
}

// Complete reports whether the simulation can be considered finished: either
// the worker explicitly said so, or every tracked facet has at least one
// record across the expected period range. Both checks exist because backends
// are inconsistent about emitting the explicit flag.
func (a *Aggregator) Complete() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.explicitDone {
		return true
	}
	if a.expectedPeriods <= 0 || len(a.trackedFacets) == 0 {
		return false
	}

	for p := 1; p <= a.expectedPeriods; p++ {
		facets, ok := a.periods[p]
		if !ok {
			return false
		}
		for _, name := range a.trackedFacets {
			if len(facets[name]) == 0 {
				return false
			}
		}
	}
	return true
}

// Reset discards all merged data, for explicit simulation restarts.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.periods = make(map[int]map[string][]domain.FacetRecord)
	a.explicitDone = false
}
