package cluster

import "sync/atomic"

// ClusterMetrics is a point-in-time snapshot of node counts by status,
// per spec.md §4.9's "Metrics counters: active, suspected, dead."
type ClusterMetrics struct {
	Active    int
	Suspected int
	Dead      int
}

// Metrics holds the live counters a Manager refreshes on every sweep
// tick and exposes as an immutable ClusterMetrics snapshot.
type Metrics struct {
	active    atomic.Int64
	suspected atomic.Int64
	dead      atomic.Int64
}

// NewMetrics constructs an empty Metrics.
func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) setCounts(active, suspected, dead int) {
	m.active.Store(int64(active))
	m.suspected.Store(int64(suspected))
	m.dead.Store(int64(dead))
}

func (m *Metrics) snapshot() ClusterMetrics {
	return ClusterMetrics{
		Active:    int(m.active.Load()),
		Suspected: int(m.suspected.Load()),
		Dead:      int(m.dead.Load()),
	}
}
