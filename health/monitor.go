package health

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Provider reports the current health of one component.
type Provider interface {
	Health() Status
}

// Monitor holds the last known status of each component. Watched providers are
// polled on refresh; statuses set with Update stay until overwritten.
type Monitor struct {
	mu        sync.RWMutex
	statuses  map[string]Status
	providers map[string]Provider
}

// NewMonitor creates a new health monitor
func NewMonitor() *Monitor {
	return &Monitor{
		statuses:  make(map[string]Status),
		providers: make(map[string]Provider),
	}
}

// Update records the status of a component under name. A zero timestamp is set
// to now.
func (m *Monitor) Update(name string, status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status.Component = name
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}
	m.statuses[name] = status
}

// Get returns the last recorded status of a component.
func (m *Monitor) Get(name string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status, ok := m.statuses[name]
	return status, ok
}

// Watch registers a provider polled whenever the monitor is refreshed.
func (m *Monitor) Watch(name string, provider Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.providers[name] = provider
}

// AggregateHealth rolls every recorded status up under systemName, ordered by
// component name.
func (m *Monitor) AggregateHealth(systemName string) Status {
	m.mu.RLock()
	subStatuses := make([]Status, 0, len(m.statuses))
	for _, status := range m.statuses {
		subStatuses = append(subStatuses, status)
	}
	m.mu.RUnlock()

	sort.Slice(subStatuses, func(i, j int) bool {
		return subStatuses[i].Component < subStatuses[j].Component
	})
	return Aggregate(systemName, subStatuses)
}

// Handler serves the aggregated health as JSON, answering 503 when unhealthy.
// Providers registered with Watch are polled on every request.
func (m *Monitor) Handler(systemName string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		m.refresh()
		status := m.AggregateHealth(systemName)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status.HTTPStatus())
		_ = json.NewEncoder(w).Encode(status)
	})
}

func (m *Monitor) refresh() {
	m.mu.RLock()
	providers := make(map[string]Provider, len(m.providers))
	for name, p := range m.providers {
		providers[name] = p
	}
	m.mu.RUnlock()

	for name, p := range providers {
		m.Update(name, p.Health())
	}
}
