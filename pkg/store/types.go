// Package store persists networks, session snapshots, and the append-only
// per-tick metric history. The engine treats these repositories as fallible
// I/O at the boundary; a persistence failure never corrupts in-memory state.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gridroad/trafficd/pkg/network"
)

// ErrNotFound is returned when a network or session id is absent.
var ErrNotFound = errors.New("not found")

// LeaseStore guards session ownership across engine instances: at most one
// holder runs the tick loop of a given session at a time.
type LeaseStore interface {
	// Acquire tries to take the lease. Returns true on success; if the lease
	// is already held by holderID it is renewed instead.
	Acquire(ctx context.Context, name, holderID string, ttl time.Duration) (bool, error)

	// Renew extends the expiry of a lease held by holderID. Returns an error
	// if the lease was lost or stolen.
	Renew(ctx context.Context, name, holderID string, ttl time.Duration) error

	// Release gives the lease up if held by holderID.
	Release(ctx context.Context, name, holderID string) error
}

// SessionRecord is the persisted form of a simulation session. Payload holds
// the full engine snapshot (agents, incidents, edge state) as an opaque blob;
// the envelope columns exist for querying.
type SessionRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	NetworkID string    `json:"network_id"`
	State     string    `json:"state"`
	StepCount int64     `json:"step_count"`
	SimTime   int64     `json:"sim_time"`
	UpdatedAt time.Time `json:"updated_at"`

	Payload json.RawMessage `json:"payload"`
}

// Metric is one per-tick snapshot of session-wide aggregates. Metrics are
// append-only, one per completed tick, keyed by session id + simulation time.
type Metric struct {
	SessionID string    `json:"session_id"`
	SimTime   int64     `json:"sim_time"`
	Step      int64     `json:"step"`
	CreatedAt time.Time `json:"created_at"`

	ActiveVehicles       int     `json:"active_vehicles"`
	ActivePedestrians    int     `json:"active_pedestrians"`
	CompletedVehicles    int     `json:"completed_vehicles"`
	CompletedPedestrians int     `json:"completed_pedestrians"`
	AvgVehicleSpeedKmh   float64 `json:"avg_vehicle_speed_kmh"`
	NetworkCongestion    float64 `json:"network_congestion"`
	CongestedEdges       int     `json:"congested_edges"`
	ActiveIncidents      int     `json:"active_incidents"`
	TotalIncidents       int     `json:"total_incidents"`
}

// NetworkRepository loads and saves road networks by id. Get after a prior
// Save with the same id must return a structurally equal graph with all
// occupancy state reset: occupancy is simulation-time-only and is not part of
// network identity.
type NetworkRepository interface {
	GetNetwork(ctx context.Context, id string) (*network.Network, error)
	SaveNetwork(ctx context.Context, n *network.Network) error
	DeleteNetwork(ctx context.Context, id string) error
	// CloneNetwork persists a structural copy of the network under a new name
	// and returns it.
	CloneNetwork(ctx context.Context, n *network.Network, newName string) (*network.Network, error)
}

// SessionRepository loads and saves session snapshots and owns the
// append-only metric history. Successive saves of the same session id must
// carry monotonically non-decreasing StepCount/SimTime.
type SessionRepository interface {
	GetSession(ctx context.Context, id string) (*SessionRecord, error)
	SaveSession(ctx context.Context, rec *SessionRecord) error
	ListSessionsByNetwork(ctx context.Context, networkID string) ([]*SessionRecord, error)
	DeleteSession(ctx context.Context, id string) error

	AppendMetric(ctx context.Context, m *Metric) error
	// MetricHistory returns the session's metrics ordered by simulation time.
	MetricHistory(ctx context.Context, sessionID string) ([]*Metric, error)
}
