// Package incident implements the stochastic incident model: accidents under
// high density, vehicle-pedestrian conflicts at crosswalks, and the expiry
// sweep that unblocks roads. Incidents are immutable once created except for
// the active flag.
package incident

import (
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/gridroad/trafficd/pkg/network"
	"github.com/gridroad/trafficd/pkg/simrand"
)

// Type classifies an incident.
type Type string

const (
	TypeAccident      Type = "accident"
	TypePedConflict   Type = "vehicle_pedestrian_conflict"
	TypeRoadBlocked   Type = "road_blocked"
	TypeRoadUnblocked Type = "road_unblocked"
)

// Severity grades an incident.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Incident is one logged event. The session's incident log is append-only:
// incidents are never deleted, only deactivated.
type Incident struct {
	ID          string   `json:"id"`
	Type        Type     `json:"type"`
	EdgeID      string   `json:"edge_id"`
	SimTime     int64    `json:"sim_time"`
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
	IsActive    bool     `json:"is_active"`
}

// Eligibility and probability constants.
const (
	accidentMinDensity     = 1.0
	accidentHighSeverity   = 1.5
	conflictMinDensity     = 0.3
	conflictHighSeverity   = 1.0
	conflictBaseProb       = 0.1
	conflictDensityWeight  = 0.3
	conflictPedWeight      = 0.1
	conflictMaxProbability = 0.8
)

// Model evaluates the per-edge incident rolls for one tick.
type Model struct {
	// AccidentFactor scales the accident probability.
	AccidentFactor float64
	// NoAccidentChance is the chance a would-be accident is avoided. The
	// accident roll deliberately uses two independent draws (rand < prob AND
	// rand > NoAccidentChance), matching the observed behavior of the model
	// this one reproduces.
	NoAccidentChance float64
	// BlockDurationS is how long an accident blocks its edge, in sim seconds.
	BlockDurationS int64
}

// Evaluate runs both event classes plus the unblock sweep over every edge of
// the network, in edge insertion order, and returns the incidents created
// this tick. pedsAt reports how many pedestrians currently occupy a vertex.
// Evaluate mutates edge block state and accident counters; zeroing the
// vehicles on a newly blocked edge is the caller's responsibility (the model
// does not own the vehicle collection).
func (m *Model) Evaluate(net *network.Network, now int64, pedsAt func(vertexID string) int, rnd *simrand.Source) []*Incident {
	var out []*Incident

	for _, e := range net.Edges {
		if inc := m.rollAccident(e, now, rnd); inc != nil {
			out = append(out, inc)
		}
		if inc := m.rollConflict(e, now, pedsAt, rnd); inc != nil {
			out = append(out, inc)
		}
	}

	out = append(out, m.unblockExpired(net, now)...)
	return out
}

func (m *Model) rollAccident(e *network.RoadSegment, now int64, rnd *simrand.Source) *Incident {
	if e.Blocked || e.Density <= accidentMinDensity {
		return nil
	}
	prob := m.AccidentFactor * e.Density * e.Density * (1 + 2*e.Congestion)
	// Two independent draws: bad luck, then not saved by luck.
	if rnd.Float64() >= prob {
		return nil
	}
	if rnd.Float64() <= m.NoAccidentChance {
		return nil
	}

	e.Blocked = true
	e.BlockedUntil = now + m.BlockDurationS
	e.AccidentCount++

	severity := SeverityMedium
	if e.Density > accidentHighSeverity {
		severity = SeverityHigh
	}
	return &Incident{
		ID:          uuid.NewString(),
		Type:        TypeAccident,
		EdgeID:      e.ID,
		SimTime:     now,
		Severity:    severity,
		Description: fmt.Sprintf("accident on %s at density %.2f, road blocked for %ds", e.ID, e.Density, m.BlockDurationS),
		IsActive:    true,
	}
}

func (m *Model) rollConflict(e *network.RoadSegment, now int64, pedsAt func(string) int, rnd *simrand.Source) *Incident {
	if !e.HasCrosswalk || e.Density <= conflictMinDensity {
		return nil
	}
	nearby := pedsAt(e.FromID) + pedsAt(e.ToID)
	if nearby == 0 {
		return nil
	}
	prob := math.Min(conflictMaxProbability,
		conflictBaseProb+conflictDensityWeight*e.Density+conflictPedWeight*float64(nearby))
	if rnd.Float64() >= prob {
		return nil
	}

	severity := SeverityMedium
	if e.Density > conflictHighSeverity {
		severity = SeverityHigh
	}
	return &Incident{
		ID:          uuid.NewString(),
		Type:        TypePedConflict,
		EdgeID:      e.ID,
		SimTime:     now,
		Severity:    severity,
		Description: fmt.Sprintf("vehicle-pedestrian conflict at crosswalk on %s, %d pedestrians nearby", e.ID, nearby),
		IsActive:    true,
	}
}

func (m *Model) unblockExpired(net *network.Network, now int64) []*Incident {
	var out []*Incident
	for _, e := range net.Edges {
		if !e.Blocked || e.BlockedUntil > now {
			continue
		}
		e.Blocked = false
		e.BlockedUntil = 0
		out = append(out, &Incident{
			ID:          uuid.NewString(),
			Type:        TypeRoadUnblocked,
			EdgeID:      e.ID,
			SimTime:     now,
			Severity:    SeverityLow,
			Description: fmt.Sprintf("road %s reopened", e.ID),
			IsActive:    false,
		})
	}
	return out
}

// Block is the operator action: blocks an edge for the given duration and
// returns the corresponding RoadBlocked incident.
func Block(e *network.RoadSegment, now, durationS int64) *Incident {
	e.Blocked = true
	e.BlockedUntil = now + durationS
	return &Incident{
		ID:          uuid.NewString(),
		Type:        TypeRoadBlocked,
		EdgeID:      e.ID,
		SimTime:     now,
		Severity:    SeverityMedium,
		Description: fmt.Sprintf("road %s blocked by operator for %ds", e.ID, durationS),
		IsActive:    true,
	}
}

// Resolve deactivates an incident early and, if its edge is still blocked,
// unblocks it.
func Resolve(inc *Incident, net *network.Network) {
	if inc == nil || !inc.IsActive {
		return
	}
	inc.IsActive = false
	if e, ok := net.Edge(inc.EdgeID); ok && e.Blocked {
		e.Blocked = false
		e.BlockedUntil = 0
	}
}
