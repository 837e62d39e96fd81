package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/gridroad/trafficd/pkg/agent"
	"github.com/gridroad/trafficd/pkg/flow"
	"github.com/gridroad/trafficd/pkg/incident"
	"github.com/gridroad/trafficd/pkg/network"
	"github.com/gridroad/trafficd/pkg/simrand"
)

const (
	// continueProbability is the chance a vehicle at the end of an edge keeps
	// driving instead of completing its trip.
	continueProbability = 0.8

	// pedArrivalChance is the flat per-tick chance a pedestrian reaches its
	// destination.
	pedArrivalChance = 0.02

	// pedRiskChance lets a pedestrian cross against an unsafe density.
	pedRiskChance = 0.1

	// Crossing safety threshold is randomized per attempt within this band.
	crossingThresholdBase = 0.3
	crossingThresholdSpan = 0.2

	// lightPhaseDurationS is how long each traffic light phase holds, and
	// lightPhases how many phases a signal group cycles through.
	lightPhaseDurationS = 30
	lightPhases         = 4
)

// performStep runs one complete simulation tick. The caller holds h.mu. A
// panic inside a stage is converted into an error so the loop can back off
// instead of dying; subscribers only ever observe fully completed ticks.
func (e *Engine) performStep(ctx context.Context, h *handle) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panicked: %v", r)
		}
	}()

	s := h.sess
	dt := float64(s.Params.TimeStepS)

	e.spawnVehicles(s)
	e.spawnPedestrians(s)
	e.moveVehicles(s, dt)
	e.movePedestrians(s, dt)

	pce := pceLookup(s)
	for _, edge := range s.Net.Edges {
		flow.Density(edge, pce)
	}

	advanceTrafficLights(s)
	fresh := e.runIncidents(s)

	metric := e.collectMetric(s)
	if err := e.sessions.AppendMetric(ctx, metric); err != nil {
		return err
	}

	s.StepCount++
	s.CurrentTime += s.Params.TimeStepS
	if err := e.persist(ctx, s); err != nil {
		return err
	}

	e.exportMetric(s, metric)
	e.publishStep(StepEvent{
		SessionID: s.ID,
		Step:      metric.Step,
		SimTime:   metric.SimTime,
		Metric:    metric,
	})
	for _, inc := range fresh {
		e.publishIncident(inc)
	}

	if s.CurrentTime >= s.Params.DurationS && s.State == StateRunning {
		now := time.Now().UTC()
		s.WallEnd = &now
		e.transitionLocked(ctx, h, StateStopped)
		e.cancelLoopLocked(h)
		e.releaseLease(ctx, s.ID)
	}
	return nil
}

// pceLookup builds the vehicle-id to passenger-car-equivalent resolver the
// flow model consumes. Unknown ids weigh as a plain car.
func pceLookup(s *Session) func(vehicleID string) float64 {
	byID := make(map[string]agent.VehicleType, len(s.Vehicles))
	for _, v := range s.Vehicles {
		byID[v.ID] = v.Type
	}
	return func(vehicleID string) float64 {
		if t, ok := byID[vehicleID]; ok {
			return agent.PCE(t)
		}
		return agent.PCE(agent.VehicleCar)
	}
}

// spawnCount converts an expected arrival rate into a whole count, carrying
// the fractional part as a probabilistic extra spawn.
func spawnCount(rnd *simrand.Source, expected float64) int {
	n := int(expected)
	if rnd.Float64() < expected-float64(n) {
		n++
	}
	return n
}

func (s *Session) hourMultiplier() float64 {
	hour := (s.CurrentTime / 3600) % 24
	return s.Params.TimeOfDayMultipliers[hour]
}

func (e *Engine) spawnVehicles(s *Session) {
	want := spawnCount(s.rnd, s.Params.VehicleSpawnIntensity*s.hourMultiplier())
	for i := 0; i < want; i++ {
		e.spawnVehicle(s)
	}
}

// spawnVehicle places one new vehicle on a random unblocked edge with free
// capacity. It silently does nothing at the population bound or when no edge
// can take another vehicle.
func (e *Engine) spawnVehicle(s *Session) {
	if len(s.Vehicles) >= MaxVehicles {
		return
	}
	edge, ok := pickSpawnEdge(s)
	if !ok {
		return
	}
	vtype, ok := simrand.WeightedChoice(s.rnd, s.Params.VehicleTypeWeights)
	if !ok {
		vtype = agent.VehicleCar
	}
	style, ok := simrand.WeightedChoice(s.rnd, s.Params.DriverStyleWeights)
	if !ok {
		style = agent.StyleNormal
	}
	v := agent.NewVehicle(s.rnd, vtype, style, edge.ID)
	edge.AddVehicle(v.ID)
	s.Vehicles = append(s.Vehicles, v)
}

func pickSpawnEdge(s *Session) (*network.RoadSegment, bool) {
	var candidates []*network.RoadSegment
	for _, edge := range s.Net.Edges {
		if !edge.Blocked && edge.VehicleCount() < MaxVehiclesPerEdge {
			candidates = append(candidates, edge)
		}
	}
	return simrand.Pick(s.rnd, candidates)
}

func (e *Engine) spawnPedestrians(s *Session) {
	want := spawnCount(s.rnd, s.Params.PedestrianSpawnIntensity*s.hourMultiplier())
	for i := 0; i < want; i++ {
		e.spawnPedestrian(s)
	}
}

func (e *Engine) spawnPedestrian(s *Session) {
	if len(s.Pedestrians) >= MaxPedestrians {
		return
	}
	vert, ok := simrand.Pick(s.rnd, s.Net.Vertices)
	if !ok {
		return
	}
	ptype, ok := simrand.WeightedChoice(s.rnd, s.Params.PedestrianTypeWeights)
	if !ok {
		ptype = agent.PedAdult
	}
	p := agent.NewPedestrian(s.rnd, ptype, vert.ID, s.Params.MeanPatienceS)
	s.Pedestrians = append(s.Pedestrians, p)
}

// moveVehicles advances every vehicle one tick in insertion order. Vehicles
// on blocked or vanished edges freeze in place. A vehicle reaching the end of
// its edge continues onto a random outgoing edge with probability 0.8,
// preferring edges of the same road kind and carrying its overflow distance;
// otherwise, or when there is nowhere to go, it completes its trip and leaves
// the network.
func (e *Engine) moveVehicles(s *Session, dt float64) {
	pce := pceLookup(s)
	kept := s.Vehicles[:0]
	for _, v := range s.Vehicles {
		edge, ok := s.Net.Edge(v.EdgeID)
		if !ok || edge.Blocked {
			v.Freeze(dt)
			kept = append(kept, v)
			continue
		}

		density := flow.Density(edge, pce)
		v.UpdateSpeed(density, edge.MaxSpeedKmh, dt)
		offset := v.Advance(dt)
		if offset < edge.LengthM {
			kept = append(kept, v)
			continue
		}

		overflow := offset - edge.LengthM
		if s.rnd.Float64() < continueProbability {
			if next, ok := chooseNextEdge(s, edge); ok {
				edge.RemoveVehicle(v.ID)
				next.AddVehicle(v.ID)
				v.EdgeID = next.ID
				v.OffsetM = overflow
				kept = append(kept, v)
				continue
			}
		}

		v.DestinationReached = true
		edge.RemoveVehicle(v.ID)
		s.CompletedVehicles++
		TrafficdCompletedTotal.WithLabelValues(s.ID, "vehicle").Inc()
	}
	s.Vehicles = kept
}

// chooseNextEdge picks an unblocked outgoing edge with free capacity at the
// end of cur, preferring edges of the same road kind when any qualify.
func chooseNextEdge(s *Session, cur *network.RoadSegment) (*network.RoadSegment, bool) {
	var all, sameKind []*network.RoadSegment
	for _, next := range s.Net.OutgoingEdges(cur.ToID) {
		if next.Blocked || next.VehicleCount() >= MaxVehiclesPerEdge {
			continue
		}
		all = append(all, next)
		if next.Kind == cur.Kind {
			sameKind = append(sameKind, next)
		}
	}
	if len(sameKind) > 0 {
		return simrand.Pick(s.rnd, sameKind)
	}
	return simrand.Pick(s.rnd, all)
}

// movePedestrians advances every pedestrian one tick in insertion order. Each
// tick a pedestrian arrives with a flat 2% chance; otherwise it attempts to
// cross an adjacent edge, gated by a randomized density threshold that 10% of
// attempts ignore, and waits (accruing panic past its patience) when the
// crossing is unsafe.
func (e *Engine) movePedestrians(s *Session, dt float64) {
	kept := s.Pedestrians[:0]
	for _, p := range s.Pedestrians {
		if s.rnd.Float64() < pedArrivalChance {
			p.DestinationReached = true
			s.CompletedPedestrians++
			TrafficdCompletedTotal.WithLabelValues(s.ID, "pedestrian").Inc()
			continue
		}

		crossing, ok := chooseCrossing(s, p.VertexID)
		if !ok {
			p.Wait(dt)
			kept = append(kept, p)
			continue
		}

		threshold := crossingThresholdBase + crossingThresholdSpan*s.rnd.Float64()
		if crossing.Density < threshold || s.rnd.Float64() < pedRiskChance {
			p.Crossed(otherEnd(crossing, p.VertexID))
		} else {
			p.Wait(dt)
		}
		kept = append(kept, p)
	}
	s.Pedestrians = kept
}

// chooseCrossing picks a random unblocked edge touching the vertex.
func chooseCrossing(s *Session, vertexID string) (*network.RoadSegment, bool) {
	var candidates []*network.RoadSegment
	for _, edge := range s.Net.OutgoingEdges(vertexID) {
		if !edge.Blocked {
			candidates = append(candidates, edge)
		}
	}
	for _, edge := range s.Net.IncomingEdges(vertexID) {
		if !edge.Blocked {
			candidates = append(candidates, edge)
		}
	}
	return simrand.Pick(s.rnd, candidates)
}

func otherEnd(e *network.RoadSegment, vertexID string) string {
	if e.FromID == vertexID {
		return e.ToID
	}
	return e.FromID
}

// advanceTrafficLights drives every signalized vertex through a fixed
// four-phase cycle derived from the simulation clock, rotating the green
// grant round-robin over the vertex's outgoing edges.
func advanceTrafficLights(s *Session) {
	phase := int((s.CurrentTime / lightPhaseDurationS) % lightPhases)
	for _, vert := range s.Net.Vertices {
		if !vert.HasTrafficLights {
			continue
		}
		vert.LightPhase = phase
		if len(vert.Outgoing) > 0 {
			vert.GreenEdgeID = vert.Outgoing[phase%len(vert.Outgoing)]
		} else {
			vert.GreenEdgeID = ""
		}
	}
}

// runIncidents evaluates the stochastic incident model and applies the one
// consequence the model leaves to the engine: vehicles on a freshly blocked
// edge stop dead, their waiting clocks reset.
func (e *Engine) runIncidents(s *Session) []*incident.Incident {
	model := &incident.Model{
		AccidentFactor:   s.Params.AccidentProbabilityFactor,
		NoAccidentChance: s.Params.NoAccidentChance,
		BlockDurationS:   s.Params.BlockDurationS,
	}
	peds := s.pedestriansAt()
	fresh := model.Evaluate(s.Net, s.CurrentTime, func(vertexID string) int {
		return peds[vertexID]
	}, s.rnd)

	for _, inc := range fresh {
		TrafficdIncidentsTotal.WithLabelValues(s.ID, string(inc.Type)).Inc()
		if inc.Type != incident.TypeAccident {
			continue
		}
		for _, v := range s.Vehicles {
			if v.EdgeID == inc.EdgeID {
				v.SpeedKmh = 0
				v.WaitingTimeS = 0
			}
		}
	}

	s.Incidents = append(s.Incidents, fresh...)
	return fresh
}
