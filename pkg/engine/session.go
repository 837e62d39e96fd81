package engine

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gridroad/trafficd/pkg/agent"
	"github.com/gridroad/trafficd/pkg/incident"
	"github.com/gridroad/trafficd/pkg/network"
	"github.com/gridroad/trafficd/pkg/simrand"
	"github.com/gridroad/trafficd/pkg/store"
)

// State is the session lifecycle state.
type State string

const (
	StateStopped State = "stopped"
	StateRunning State = "running"
	StatePaused  State = "paused"
)

// Session is one simulation run bound to a network snapshot and a parameter
// set. It is the sole unit of mutable shared state; while Running it is
// exclusively owned by the engine's tick loop. Agent slices keep insertion
// order so that a fixed seed replays identically.
type Session struct {
	ID        string
	Name      string
	NetworkID string
	Net       *network.Network
	Params    Params

	WallStart time.Time
	WallEnd   *time.Time

	// CurrentTime is the simulation clock in whole seconds.
	CurrentTime int64
	StepCount   int64
	State       State

	Vehicles    []*agent.Vehicle
	Pedestrians []*agent.Pedestrian

	CompletedVehicles    int
	CompletedPedestrians int

	// Incidents is the append-only incident log.
	Incidents []*incident.Incident

	rnd *simrand.Source
}

// pedestriansAt counts the pedestrians currently occupying each vertex.
func (s *Session) pedestriansAt() map[string]int {
	counts := make(map[string]int, len(s.Pedestrians))
	for _, p := range s.Pedestrians {
		counts[p.VertexID]++
	}
	return counts
}

// activeIncidents counts incidents still flagged active.
func (s *Session) activeIncidents() int {
	n := 0
	for _, inc := range s.Incidents {
		if inc.IsActive {
			n++
		}
	}
	return n
}

// edgeSimState is the per-edge simulation state carried inside the session
// payload; the network's persisted form deliberately drops it.
type edgeSimState struct {
	EdgeID        string `json:"edge_id"`
	Blocked       bool   `json:"blocked"`
	BlockedUntil  int64  `json:"blocked_until"`
	AccidentCount int    `json:"accident_count"`
}

// sessionPayload is the opaque blob stored in a store.SessionRecord.
type sessionPayload struct {
	Params               Params               `json:"params"`
	WallStart            time.Time            `json:"wall_start"`
	WallEnd              *time.Time           `json:"wall_end,omitempty"`
	Vehicles             []*agent.Vehicle     `json:"vehicles"`
	Pedestrians          []*agent.Pedestrian  `json:"pedestrians"`
	CompletedVehicles    int                  `json:"completed_vehicles"`
	CompletedPedestrians int                  `json:"completed_pedestrians"`
	Incidents            []*incident.Incident `json:"incidents"`
	EdgeStates           []edgeSimState       `json:"edge_states"`
}

// toRecord snapshots the session into its persisted form.
func (s *Session) toRecord() (*store.SessionRecord, error) {
	payload := sessionPayload{
		Params:               s.Params,
		WallStart:            s.WallStart,
		WallEnd:              s.WallEnd,
		Vehicles:             s.Vehicles,
		Pedestrians:          s.Pedestrians,
		CompletedVehicles:    s.CompletedVehicles,
		CompletedPedestrians: s.CompletedPedestrians,
		Incidents:            s.Incidents,
	}
	for _, e := range s.Net.Edges {
		if e.Blocked || e.AccidentCount > 0 {
			payload.EdgeStates = append(payload.EdgeStates, edgeSimState{
				EdgeID:        e.ID,
				Blocked:       e.Blocked,
				BlockedUntil:  e.BlockedUntil,
				AccidentCount: e.AccidentCount,
			})
		}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session payload: %w", err)
	}
	return &store.SessionRecord{
		ID:        s.ID,
		Name:      s.Name,
		NetworkID: s.NetworkID,
		State:     string(s.State),
		StepCount: s.StepCount,
		SimTime:   s.CurrentTime,
		UpdatedAt: time.Now().UTC(),
		Payload:   data,
	}, nil
}

// sessionFromRecord rebuilds a session from its persisted form plus its
// freshly loaded network. Edge occupancy is re-derived from the vehicles'
// positions; a loaded session always resumes in Stopped or Paused, never
// Running (the loop that owned it is gone).
func sessionFromRecord(rec *store.SessionRecord, net *network.Network) (*Session, error) {
	var payload sessionPayload
	if err := json.Unmarshal(rec.Payload, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session %s payload: %w", rec.ID, err)
	}

	s := &Session{
		ID:                   rec.ID,
		Name:                 rec.Name,
		NetworkID:            rec.NetworkID,
		Net:                  net,
		Params:               payload.Params,
		WallStart:            payload.WallStart,
		WallEnd:              payload.WallEnd,
		CurrentTime:          rec.SimTime,
		StepCount:            rec.StepCount,
		State:                State(rec.State),
		Vehicles:             payload.Vehicles,
		Pedestrians:          payload.Pedestrians,
		CompletedVehicles:    payload.CompletedVehicles,
		CompletedPedestrians: payload.CompletedPedestrians,
		Incidents:            payload.Incidents,
		rnd:                  simrand.New(payload.Params.Seed),
	}
	if s.State == StateRunning {
		s.State = StatePaused
	}

	for _, st := range payload.EdgeStates {
		if e, ok := net.Edge(st.EdgeID); ok {
			e.Blocked = st.Blocked
			e.BlockedUntil = st.BlockedUntil
			e.AccidentCount = st.AccidentCount
		}
	}
	for _, v := range s.Vehicles {
		if e, ok := net.Edge(v.EdgeID); ok {
			e.AddVehicle(v.ID)
		}
	}
	return s, nil
}
