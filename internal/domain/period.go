package domain

// FacetRecord is one per-period data point within a facet, as delivered by the
// simulation backend. Field names vary between backends, so records stay
// schemaless until rendered.
type FacetRecord map[string]any

// PeriodPartial is an incremental slice of simulation output for one period.
// Backends deliver these out of order and may redeliver overlapping snapshots
// across retried polls.
type PeriodPartial struct {
	Period   int                      `json:"period"`
	Facets   map[string][]FacetRecord `json:"facets"`
	Complete bool                     `json:"complete,omitempty"`
}
