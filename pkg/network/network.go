// Package network models the road network as a weighted directed graph of
// vertices (intersections, terminals) and road segments. The graph owns only
// structure plus per-edge simulation state; all movement logic lives in the
// engine.
package network

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// VertexKind classifies a vertex.
type VertexKind string

const (
	VertexIntersection VertexKind = "intersection"
	VertexTerminal     VertexKind = "terminal"
)

// RoadKind classifies a road segment.
type RoadKind string

const (
	RoadUrban   RoadKind = "urban"
	RoadHighway RoadKind = "highway"
)

// Edge speed limits enforced at graph-edit time (km/h).
const (
	MinSpeedKmh = 10
	MaxSpeedKmh = 120
)

var (
	ErrDuplicateID   = errors.New("duplicate id")
	ErrUnknownVertex = errors.New("unknown vertex")
	ErrInvalidEdge   = errors.New("invalid edge")
)

// Vertex is a node of the road network. Incoming/Outgoing hold edge ids in
// insertion order; they must always match the edges that actually end/start
// here (see Validate).
type Vertex struct {
	ID               string     `json:"id"`
	X                float64    `json:"x"`
	Y                float64    `json:"y"`
	Kind             VertexKind `json:"kind"`
	HasTrafficLights bool       `json:"has_traffic_lights"`
	GroupID          string     `json:"group_id,omitempty"`

	// Traffic light state, meaningful only when HasTrafficLights.
	LightPhase  int    `json:"light_phase"`
	GreenEdgeID string `json:"green_edge_id,omitempty"`

	Incoming []string `json:"incoming"`
	Outgoing []string `json:"outgoing"`
}

// RoadSegment is a directed edge. Density and Congestion are derived values,
// recomputed from the current occupants before every read within a tick; they
// are never authoritative.
type RoadSegment struct {
	ID            string   `json:"id"`
	FromID        string   `json:"from_id"`
	ToID          string   `json:"to_id"`
	LengthM       float64  `json:"length_m"`
	Lanes         int      `json:"lanes"`
	MaxSpeedKmh   float64  `json:"max_speed_kmh"`
	Kind          RoadKind `json:"kind"`
	HasCrosswalk  bool     `json:"has_crosswalk"`
	Bidirectional bool     `json:"bidirectional"`

	// Simulation state. Not part of network identity; reset on load/clone.
	Density       float64             `json:"-"`
	Congestion    float64             `json:"-"`
	Blocked       bool                `json:"-"`
	BlockedUntil  int64               `json:"-"`
	AccidentCount int                 `json:"-"`
	Vehicles      map[string]struct{} `json:"-"`
}

// AddVehicle records a vehicle as occupying this segment.
func (e *RoadSegment) AddVehicle(vehicleID string) {
	if e.Vehicles == nil {
		e.Vehicles = make(map[string]struct{})
	}
	e.Vehicles[vehicleID] = struct{}{}
}

// RemoveVehicle drops a vehicle from this segment's occupants.
func (e *RoadSegment) RemoveVehicle(vehicleID string) {
	delete(e.Vehicles, vehicleID)
}

// VehicleCount returns the number of occupants.
func (e *RoadSegment) VehicleCount() int {
	return len(e.Vehicles)
}

// ResetSimState clears all derived and per-run state.
func (e *RoadSegment) ResetSimState() {
	e.Density = 0
	e.Congestion = 0
	e.Blocked = false
	e.BlockedUntil = 0
	e.AccidentCount = 0
	e.Vehicles = make(map[string]struct{})
}

// Network owns the vertex and edge collections. Slices preserve insertion
// order so that spawn selection and routing tie-breaks are deterministic
// under a fixed seed; the id indexes are rebuilt on mutation and after
// unmarshalling.
type Network struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Vertices []*Vertex      `json:"vertices"`
	Edges    []*RoadSegment `json:"edges"`

	vertexIndex map[string]*Vertex
	edgeIndex   map[string]*RoadSegment
}

// New returns an empty named network with a fresh id.
func New(name string) *Network {
	return &Network{
		ID:          uuid.NewString(),
		Name:        name,
		vertexIndex: make(map[string]*Vertex),
		edgeIndex:   make(map[string]*RoadSegment),
	}
}

// Reindex rebuilds the id lookup maps and resets per-edge simulation state.
// Call it after unmarshalling a persisted network.
func (n *Network) Reindex() {
	n.vertexIndex = make(map[string]*Vertex, len(n.Vertices))
	for _, v := range n.Vertices {
		n.vertexIndex[v.ID] = v
	}
	n.edgeIndex = make(map[string]*RoadSegment, len(n.Edges))
	for _, e := range n.Edges {
		if e.Vehicles == nil {
			e.Vehicles = make(map[string]struct{})
		}
		n.edgeIndex[e.ID] = e
	}
}

// Vertex looks up a vertex by id.
func (n *Network) Vertex(id string) (*Vertex, bool) {
	v, ok := n.vertexIndex[id]
	return v, ok
}

// Edge looks up an edge by id.
func (n *Network) Edge(id string) (*RoadSegment, bool) {
	e, ok := n.edgeIndex[id]
	return e, ok
}

// AddVertex inserts a vertex. Fails with ErrDuplicateID if the id is taken.
func (n *Network) AddVertex(v *Vertex) error {
	if _, exists := n.vertexIndex[v.ID]; exists {
		return fmt.Errorf("vertex %s: %w", v.ID, ErrDuplicateID)
	}
	if v.Incoming == nil {
		v.Incoming = []string{}
	}
	if v.Outgoing == nil {
		v.Outgoing = []string{}
	}
	n.Vertices = append(n.Vertices, v)
	n.vertexIndex[v.ID] = v
	return nil
}

// AddEdge inserts a directed road segment and registers it on both endpoint
// adjacency lists. Fails with ErrDuplicateID, ErrUnknownVertex, or
// ErrInvalidEdge (length, lanes, or speed out of range).
func (n *Network) AddEdge(e *RoadSegment) error {
	if _, exists := n.edgeIndex[e.ID]; exists {
		return fmt.Errorf("edge %s: %w", e.ID, ErrDuplicateID)
	}
	if e.LengthM <= 0 {
		return fmt.Errorf("edge %s: length %.1f: %w", e.ID, e.LengthM, ErrInvalidEdge)
	}
	if e.Lanes < 1 {
		return fmt.Errorf("edge %s: lanes %d: %w", e.ID, e.Lanes, ErrInvalidEdge)
	}
	if e.MaxSpeedKmh < MinSpeedKmh || e.MaxSpeedKmh > MaxSpeedKmh {
		return fmt.Errorf("edge %s: max speed %.1f: %w", e.ID, e.MaxSpeedKmh, ErrInvalidEdge)
	}
	from, ok := n.vertexIndex[e.FromID]
	if !ok {
		return fmt.Errorf("edge %s: start %s: %w", e.ID, e.FromID, ErrUnknownVertex)
	}
	to, ok := n.vertexIndex[e.ToID]
	if !ok {
		return fmt.Errorf("edge %s: end %s: %w", e.ID, e.ToID, ErrUnknownVertex)
	}
	if e.Vehicles == nil {
		e.Vehicles = make(map[string]struct{})
	}
	n.Edges = append(n.Edges, e)
	n.edgeIndex[e.ID] = e
	from.Outgoing = append(from.Outgoing, e.ID)
	to.Incoming = append(to.Incoming, e.ID)
	return nil
}

// RemoveEdge deletes an edge, stripping its id from both endpoint adjacency
// lists first. Removing an absent edge is a no-op.
func (n *Network) RemoveEdge(id string) {
	e, ok := n.edgeIndex[id]
	if !ok {
		return
	}
	if from, ok := n.vertexIndex[e.FromID]; ok {
		from.Outgoing = removeID(from.Outgoing, id)
	}
	if to, ok := n.vertexIndex[e.ToID]; ok {
		to.Incoming = removeID(to.Incoming, id)
	}
	delete(n.edgeIndex, id)
	n.Edges = removeEdgeSlice(n.Edges, id)
}

// RemoveVertex deletes a vertex; every incident edge is removed first.
// Removing an absent vertex is a no-op.
func (n *Network) RemoveVertex(id string) {
	v, ok := n.vertexIndex[id]
	if !ok {
		return
	}
	// Copy before iterating: RemoveEdge mutates the adjacency lists.
	incident := make([]string, 0, len(v.Incoming)+len(v.Outgoing))
	incident = append(incident, v.Incoming...)
	incident = append(incident, v.Outgoing...)
	for _, edgeID := range incident {
		n.RemoveEdge(edgeID)
	}
	delete(n.vertexIndex, id)
	for i, cand := range n.Vertices {
		if cand.ID == id {
			n.Vertices = append(n.Vertices[:i], n.Vertices[i+1:]...)
			break
		}
	}
}

// OutgoingEdges returns the edges leaving a vertex, in adjacency-list order.
func (n *Network) OutgoingEdges(vertexID string) []*RoadSegment {
	v, ok := n.vertexIndex[vertexID]
	if !ok {
		return nil
	}
	out := make([]*RoadSegment, 0, len(v.Outgoing))
	for _, id := range v.Outgoing {
		if e, ok := n.edgeIndex[id]; ok {
			out = append(out, e)
		}
	}
	return out
}

// IncomingEdges returns the edges entering a vertex, in adjacency-list order.
func (n *Network) IncomingEdges(vertexID string) []*RoadSegment {
	v, ok := n.vertexIndex[vertexID]
	if !ok {
		return nil
	}
	in := make([]*RoadSegment, 0, len(v.Incoming))
	for _, id := range v.Incoming {
		if e, ok := n.edgeIndex[id]; ok {
			in = append(in, e)
		}
	}
	return in
}

// Clone produces a structurally identical network under a new name, with
// freshly minted ids, re-derived adjacency lists, and all simulation state
// reset to empty.
func (n *Network) Clone(newName string) *Network {
	out := New(newName)
	vertexIDs := make(map[string]string, len(n.Vertices))
	for _, v := range n.Vertices {
		nv := &Vertex{
			ID:               uuid.NewString(),
			X:                v.X,
			Y:                v.Y,
			Kind:             v.Kind,
			HasTrafficLights: v.HasTrafficLights,
			GroupID:          v.GroupID,
		}
		vertexIDs[v.ID] = nv.ID
		// AddVertex cannot fail: ids are fresh.
		_ = out.AddVertex(nv)
	}
	for _, e := range n.Edges {
		ne := &RoadSegment{
			ID:            uuid.NewString(),
			FromID:        vertexIDs[e.FromID],
			ToID:          vertexIDs[e.ToID],
			LengthM:       e.LengthM,
			Lanes:         e.Lanes,
			MaxSpeedKmh:   e.MaxSpeedKmh,
			Kind:          e.Kind,
			HasCrosswalk:  e.HasCrosswalk,
			Bidirectional: e.Bidirectional,
		}
		_ = out.AddEdge(ne)
	}
	return out
}

// Validate checks the structural invariants: at least one vertex, every edge
// endpoint exists, and every vertex's incoming/outgoing lists are exactly the
// edges whose endpoint matches. Returns the first violation found.
func (n *Network) Validate() error {
	if len(n.Vertices) == 0 {
		return errors.New("network has no vertices")
	}
	for _, e := range n.Edges {
		if _, ok := n.vertexIndex[e.FromID]; !ok {
			return fmt.Errorf("edge %s references missing start vertex %s", e.ID, e.FromID)
		}
		if _, ok := n.vertexIndex[e.ToID]; !ok {
			return fmt.Errorf("edge %s references missing end vertex %s", e.ID, e.ToID)
		}
	}
	for _, v := range n.Vertices {
		for _, id := range v.Outgoing {
			e, ok := n.edgeIndex[id]
			if !ok {
				return fmt.Errorf("vertex %s lists missing outgoing edge %s", v.ID, id)
			}
			if e.FromID != v.ID {
				return fmt.Errorf("vertex %s lists edge %s as outgoing but it starts at %s", v.ID, id, e.FromID)
			}
		}
		for _, id := range v.Incoming {
			e, ok := n.edgeIndex[id]
			if !ok {
				return fmt.Errorf("vertex %s lists missing incoming edge %s", v.ID, id)
			}
			if e.ToID != v.ID {
				return fmt.Errorf("vertex %s lists edge %s as incoming but it ends at %s", v.ID, id, e.ToID)
			}
		}
	}
	// The reverse direction: every edge must appear on its endpoints' lists.
	for _, e := range n.Edges {
		from := n.vertexIndex[e.FromID]
		if !containsID(from.Outgoing, e.ID) {
			return fmt.Errorf("edge %s missing from outgoing list of vertex %s", e.ID, e.FromID)
		}
		to := n.vertexIndex[e.ToID]
		if !containsID(to.Incoming, e.ID) {
			return fmt.Errorf("edge %s missing from incoming list of vertex %s", e.ID, e.ToID)
		}
	}
	return nil
}

// ResetSimState clears the simulation state of every edge.
func (n *Network) ResetSimState() {
	for _, e := range n.Edges {
		e.ResetSimState()
	}
}

func removeID(ids []string, id string) []string {
	for i, cand := range ids {
		if cand == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

func removeEdgeSlice(edges []*RoadSegment, id string) []*RoadSegment {
	for i, e := range edges {
		if e.ID == id {
			return append(edges[:i], edges[i+1:]...)
		}
	}
	return edges
}

func containsID(ids []string, id string) bool {
	for _, cand := range ids {
		if cand == id {
			return true
		}
	}
	return false
}
