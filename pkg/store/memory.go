package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/gridroad/trafficd/pkg/network"
)

// Memory implements both repositories on in-process maps. It mirrors the
// SQLite store's contracts (occupancy reset on load, monotone session clock)
// and exists for tests and ephemeral runs.
type Memory struct {
	mu       sync.RWMutex
	networks map[string][]byte
	sessions map[string]*SessionRecord
	metrics  map[string][]*Metric
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		networks: make(map[string][]byte),
		sessions: make(map[string]*SessionRecord),
		metrics:  make(map[string][]*Metric),
	}
}

// GetNetwork loads a network by id. Round-tripping through JSON gives the
// same reset-occupancy semantics as the SQLite store.
func (m *Memory) GetNetwork(_ context.Context, id string) (*network.Network, error) {
	m.mu.RLock()
	data, ok := m.networks[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("network %s: %w", id, ErrNotFound)
	}
	var n network.Network
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("failed to unmarshal network %s: %w", id, err)
	}
	n.Reindex()
	return &n, nil
}

// SaveNetwork upserts a network.
func (m *Memory) SaveNetwork(_ context.Context, n *network.Network) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal network %s: %w", n.ID, err)
	}
	m.mu.Lock()
	m.networks[n.ID] = data
	m.mu.Unlock()
	return nil
}

// DeleteNetwork removes a network. Absent ids are a no-op.
func (m *Memory) DeleteNetwork(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.networks, id)
	m.mu.Unlock()
	return nil
}

// CloneNetwork persists a structural copy of the network under a new name.
func (m *Memory) CloneNetwork(ctx context.Context, n *network.Network, newName string) (*network.Network, error) {
	clone := n.Clone(newName)
	if err := m.SaveNetwork(ctx, clone); err != nil {
		return nil, err
	}
	return clone, nil
}

// GetSession loads a session record by id.
func (m *Memory) GetSession(_ context.Context, id string) (*SessionRecord, error) {
	m.mu.RLock()
	rec, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	cp := *rec
	return &cp, nil
}

// SaveSession upserts a session record, rejecting clock regressions.
func (m *Memory) SaveSession(_ context.Context, rec *SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.sessions[rec.ID]; ok {
		if rec.StepCount < prev.StepCount || rec.SimTime < prev.SimTime {
			return fmt.Errorf("session %s: refusing save moving clock backwards (step %d->%d, time %d->%d)",
				rec.ID, prev.StepCount, rec.StepCount, prev.SimTime, rec.SimTime)
		}
	}
	cp := *rec
	m.sessions[rec.ID] = &cp
	return nil
}

// ListSessionsByNetwork returns the session records bound to a network.
func (m *Memory) ListSessionsByNetwork(_ context.Context, networkID string) ([]*SessionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*SessionRecord
	for _, rec := range m.sessions {
		if rec.NetworkID == networkID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// DeleteSession removes a session and its metric history.
func (m *Memory) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	delete(m.metrics, id)
	m.mu.Unlock()
	return nil
}

// AppendMetric upserts one per-tick metric row, keyed session id + sim time
// like the sqlite store.
func (m *Memory) AppendMetric(_ context.Context, metric *Metric) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *metric
	for i, existing := range m.metrics[metric.SessionID] {
		if existing.SimTime == metric.SimTime {
			m.metrics[metric.SessionID][i] = &cp
			return nil
		}
	}
	m.metrics[metric.SessionID] = append(m.metrics[metric.SessionID], &cp)
	return nil
}

// MetricHistory returns the session's metrics ordered by simulation time.
func (m *Memory) MetricHistory(_ context.Context, sessionID string) ([]*Metric, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	history := m.metrics[sessionID]
	out := make([]*Metric, len(history))
	for i, metric := range history {
		cp := *metric
		out[i] = &cp
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SimTime < out[j].SimTime })
	return out, nil
}

var (
	_ NetworkRepository = (*Memory)(nil)
	_ SessionRepository = (*Memory)(nil)
	_ NetworkRepository = (*Store)(nil)
	_ SessionRepository = (*Store)(nil)
)
