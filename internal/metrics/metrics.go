package metrics

import "sync"

// Event counter names. The relay is fire-and-forget, so drop counters are
// the only visibility into lost deliveries.
const (
	ConnectionsOpened = "connections_opened"
	ConnectionsClosed = "connections_closed"

	RoomJoins          = "room_joins"
	PresenceBroadcasts = "presence_broadcasts"

	EnvelopesRelayed  = "envelopes_relayed"
	EnvelopesIgnored  = "envelopes_ignored_non_signal"
	DeliveriesDropped = "deliveries_dropped_queue_full"

	EventsDroppedMalformed = "events_dropped_malformed"
	DropRateLimited        = "events_dropped_rate_limited"
	AuthFailures           = "auth_failures"
)

// Metrics is a minimal, concurrency-safe counter registry. It is scraped via
// the Prometheus text handler; keeping it in-process avoids coupling the
// relay's enforcement logic to a metrics backend.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

func (m *Metrics) Inc(name string) {
	m.mu.Lock()
	m.m[name]++
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
