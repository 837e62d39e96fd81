package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/gridroad/trafficd/pkg/agent"
	"github.com/gridroad/trafficd/pkg/incident"
	"github.com/gridroad/trafficd/pkg/network"
	"github.com/gridroad/trafficd/pkg/store"
)

// testNetwork builds a small two-by-two grid with a signalized intersection.
func testNetwork(t *testing.T) *network.Network {
	t.Helper()
	net := network.New("test-grid")

	verts := []*network.Vertex{
		{ID: "a", X: 0, Y: 0, Kind: network.VertexTerminal},
		{ID: "b", X: 500, Y: 0, Kind: network.VertexIntersection, HasTrafficLights: true},
		{ID: "c", X: 500, Y: 500, Kind: network.VertexIntersection},
		{ID: "d", X: 0, Y: 500, Kind: network.VertexTerminal},
	}
	for _, v := range verts {
		if err := net.AddVertex(v); err != nil {
			t.Fatalf("add vertex %s: %v", v.ID, err)
		}
	}

	edges := []*network.RoadSegment{
		{ID: "ab", FromID: "a", ToID: "b", LengthM: 500, Lanes: 2, MaxSpeedKmh: 60, Kind: network.RoadUrban, HasCrosswalk: true},
		{ID: "ba", FromID: "b", ToID: "a", LengthM: 500, Lanes: 2, MaxSpeedKmh: 60, Kind: network.RoadUrban, HasCrosswalk: true},
		{ID: "bc", FromID: "b", ToID: "c", LengthM: 500, Lanes: 1, MaxSpeedKmh: 50, Kind: network.RoadUrban},
		{ID: "cb", FromID: "c", ToID: "b", LengthM: 500, Lanes: 1, MaxSpeedKmh: 50, Kind: network.RoadUrban},
		{ID: "cd", FromID: "c", ToID: "d", LengthM: 700, Lanes: 2, MaxSpeedKmh: 90, Kind: network.RoadHighway},
		{ID: "dc", FromID: "d", ToID: "c", LengthM: 700, Lanes: 2, MaxSpeedKmh: 90, Kind: network.RoadHighway},
	}
	for _, e := range edges {
		if err := net.AddEdge(e); err != nil {
			t.Fatalf("add edge %s: %v", e.ID, err)
		}
	}
	return net
}

// newTestEngine wires an engine over in-memory repositories with the test
// network already saved. The huge tick interval keeps background loops idle
// so tests drive ticks synchronously through Step.
func newTestEngine(t *testing.T) (*Engine, string) {
	t.Helper()
	mem := store.NewMemory()
	net := testNetwork(t)
	if err := mem.SaveNetwork(context.Background(), net); err != nil {
		t.Fatalf("save network: %v", err)
	}
	e := NewEngine(mem, mem, WithTickInterval(time.Hour))
	return e, net.ID
}

func testParams(seed uint64) Params {
	p := DefaultParams()
	p.InitialVehicles = 15
	p.InitialPedestrians = 25
	p.Seed = seed
	return p
}

func TestCreateSessionSeedsAgents(t *testing.T) {
	e, netID := newTestEngine(t)
	ctx := context.Background()

	s, err := e.CreateSession(ctx, "rush hour", netID, testParams(42))
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if s.State != StateStopped {
		t.Fatalf("new session state = %s, want %s", s.State, StateStopped)
	}
	if s.CurrentTime != 0 || s.StepCount != 0 {
		t.Fatalf("new session clock = (%d, %d), want (0, 0)", s.CurrentTime, s.StepCount)
	}
	if len(s.Vehicles) != 15 {
		t.Fatalf("initial vehicles = %d, want 15", len(s.Vehicles))
	}
	if len(s.Pedestrians) != 25 {
		t.Fatalf("initial pedestrians = %d, want 25", len(s.Pedestrians))
	}
	for _, v := range s.Vehicles {
		edge, ok := s.Net.Edge(v.EdgeID)
		if !ok {
			t.Fatalf("vehicle %s on unknown edge %s", v.ID, v.EdgeID)
		}
		if _, occ := edge.Vehicles[v.ID]; !occ {
			t.Fatalf("vehicle %s missing from occupancy of edge %s", v.ID, edge.ID)
		}
	}

	rec, err := e.sessions.GetSession(ctx, s.ID)
	if err != nil {
		t.Fatalf("session not persisted: %v", err)
	}
	if rec.State != string(StateStopped) {
		t.Fatalf("persisted state = %s, want %s", rec.State, StateStopped)
	}
}

func TestCreateSessionUnknownNetwork(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.CreateSession(context.Background(), "ghost", "no-such-network", testParams(1))
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCreateSessionRejectsBadParams(t *testing.T) {
	e, netID := newTestEngine(t)
	p := testParams(1)
	p.TimeStepS = 0
	if _, err := e.CreateSession(context.Background(), "bad", netID, p); err == nil {
		t.Fatal("expected validation error for zero time step")
	}
	if _, err := e.CreateSession(context.Background(), "", netID, testParams(1)); err == nil {
		t.Fatal("expected validation error for empty name")
	}
}

func TestStateMachineGuards(t *testing.T) {
	e, netID := newTestEngine(t)
	ctx := context.Background()
	s, err := e.CreateSession(ctx, "guards", netID, testParams(7))
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	if e.Pause(ctx, s.ID) {
		t.Fatal("Pause succeeded on a stopped session")
	}
	if e.Resume(ctx, s.ID) {
		t.Fatal("Resume succeeded on a stopped session")
	}

	if !e.Start(ctx, s.ID) {
		t.Fatal("Start failed on a stopped session")
	}
	if e.Start(ctx, s.ID) {
		t.Fatal("Start succeeded on a running session")
	}
	if e.Resume(ctx, s.ID) {
		t.Fatal("Resume succeeded on a running session")
	}

	if !e.Pause(ctx, s.ID) {
		t.Fatal("Pause failed on a running session")
	}
	if e.Pause(ctx, s.ID) {
		t.Fatal("Pause succeeded twice")
	}
	if e.Start(ctx, s.ID) {
		t.Fatal("Start succeeded on a paused session; Resume is the only way back")
	}

	if !e.Resume(ctx, s.ID) {
		t.Fatal("Resume failed on a paused session")
	}

	if !e.Stop(ctx, s.ID) {
		t.Fatal("Stop failed on a running session")
	}
	if !e.Stop(ctx, s.ID) {
		t.Fatal("Stop is not idempotent")
	}
	if s.WallEnd == nil {
		t.Fatal("Stop did not set the wall-clock end time")
	}
	if e.Stop(ctx, "missing-session") {
		t.Fatal("Stop succeeded for an unknown session")
	}
}

func TestStepAdvancesClockMonotonically(t *testing.T) {
	e, netID := newTestEngine(t)
	ctx := context.Background()
	s, err := e.CreateSession(ctx, "clock", netID, testParams(11))
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	for i := 1; i <= 5; i++ {
		if err := e.Step(ctx, s.ID); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if s.StepCount != int64(i) {
			t.Fatalf("after step %d: StepCount = %d", i, s.StepCount)
		}
		if s.CurrentTime != int64(i)*s.Params.TimeStepS {
			t.Fatalf("after step %d: CurrentTime = %d", i, s.CurrentTime)
		}
	}

	hist, err := e.MetricsHistory(ctx, s.ID)
	if err != nil {
		t.Fatalf("metrics history: %v", err)
	}
	if len(hist) != 5 {
		t.Fatalf("metric rows = %d, want 5", len(hist))
	}
	for i := 1; i < len(hist); i++ {
		if hist[i].SimTime <= hist[i-1].SimTime {
			t.Fatalf("metric history out of order at %d: %d <= %d", i, hist[i].SimTime, hist[i-1].SimTime)
		}
	}
}

func TestAutoStopAtDuration(t *testing.T) {
	e, netID := newTestEngine(t)
	ctx := context.Background()
	p := testParams(3)
	p.TimeStepS = 5
	p.DurationS = 10
	s, err := e.CreateSession(ctx, "short run", netID, p)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if !e.Start(ctx, s.ID) {
		t.Fatal("start failed")
	}

	if err := e.Step(ctx, s.ID); err != nil {
		t.Fatalf("step 1: %v", err)
	}
	if s.State != StateRunning {
		t.Fatalf("state after step 1 = %s, want %s", s.State, StateRunning)
	}
	if err := e.Step(ctx, s.ID); err != nil {
		t.Fatalf("step 2: %v", err)
	}
	if s.State != StateStopped {
		t.Fatalf("state after reaching duration = %s, want %s", s.State, StateStopped)
	}
	if s.WallEnd == nil {
		t.Fatal("auto-stop did not set the wall-clock end time")
	}

	// Auto-stop must also tear the run loop down, leaving the session ready
	// for a clean restart.
	e.mu.RLock()
	h := e.active[s.ID]
	e.mu.RUnlock()
	h.mu.Lock()
	cancelled := h.cancel == nil
	h.mu.Unlock()
	if !cancelled {
		t.Fatal("auto-stop left the run loop cancellation in place")
	}
	if !e.Start(ctx, s.ID) {
		t.Fatal("start failed after auto-stop")
	}
	if !e.Stop(ctx, s.ID) {
		t.Fatal("stop failed after restart")
	}
}

func TestReproducibleRuns(t *testing.T) {
	run := func() (*Session, []*store.Metric) {
		e, netID := newTestEngine(t)
		ctx := context.Background()
		s, err := e.CreateSession(ctx, "replay", netID, testParams(12345))
		if err != nil {
			t.Fatalf("create session: %v", err)
		}
		for i := 0; i < 20; i++ {
			if err := e.Step(ctx, s.ID); err != nil {
				t.Fatalf("step %d: %v", i, err)
			}
		}
		hist, err := e.MetricsHistory(ctx, s.ID)
		if err != nil {
			t.Fatalf("metrics history: %v", err)
		}
		return s, hist
	}

	s1, h1 := run()
	s2, h2 := run()

	if len(s1.Vehicles) != len(s2.Vehicles) {
		t.Fatalf("vehicle counts diverged: %d vs %d", len(s1.Vehicles), len(s2.Vehicles))
	}
	for i := range s1.Vehicles {
		a, b := s1.Vehicles[i], s2.Vehicles[i]
		if a.Type != b.Type || a.EdgeID != b.EdgeID || a.OffsetM != b.OffsetM || a.SpeedKmh != b.SpeedKmh {
			t.Fatalf("vehicle %d diverged: %+v vs %+v", i, a, b)
		}
	}
	if len(s1.Pedestrians) != len(s2.Pedestrians) {
		t.Fatalf("pedestrian counts diverged: %d vs %d", len(s1.Pedestrians), len(s2.Pedestrians))
	}
	if len(h1) != len(h2) {
		t.Fatalf("metric history lengths diverged: %d vs %d", len(h1), len(h2))
	}
	for i := range h1 {
		if h1[i].AvgVehicleSpeedKmh != h2[i].AvgVehicleSpeedKmh ||
			h1[i].NetworkCongestion != h2[i].NetworkCongestion ||
			h1[i].ActiveVehicles != h2[i].ActiveVehicles ||
			h1[i].TotalIncidents != h2[i].TotalIncidents {
			t.Fatalf("metric %d diverged: %+v vs %+v", i, h1[i], h2[i])
		}
	}
}

func TestAddAgentsManually(t *testing.T) {
	e, netID := newTestEngine(t)
	ctx := context.Background()
	p := testParams(9)
	p.InitialVehicles = 0
	p.InitialPedestrians = 0
	s, err := e.CreateSession(ctx, "manual", netID, p)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	v, err := e.AddVehicle(ctx, s.ID, agent.VehicleBus, agent.StyleCautious)
	if err != nil {
		t.Fatalf("add vehicle: %v", err)
	}
	if v.Type != agent.VehicleBus {
		t.Fatalf("vehicle type = %s, want bus", v.Type)
	}
	edge, ok := s.Net.Edge(v.EdgeID)
	if !ok {
		t.Fatalf("vehicle placed on unknown edge %s", v.EdgeID)
	}
	if _, occ := edge.Vehicles[v.ID]; !occ {
		t.Fatal("vehicle not recorded in edge occupancy")
	}

	ped, err := e.AddPedestrian(ctx, s.ID, agent.PedChild)
	if err != nil {
		t.Fatalf("add pedestrian: %v", err)
	}
	if _, ok := s.Net.Vertex(ped.VertexID); !ok {
		t.Fatalf("pedestrian placed at unknown vertex %s", ped.VertexID)
	}
}

func TestResolveIncidentUnblocksEarly(t *testing.T) {
	e, netID := newTestEngine(t)
	ctx := context.Background()
	s, err := e.CreateSession(ctx, "resolver", netID, testParams(5))
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	edge, _ := s.Net.Edge("ab")
	inc := incident.Block(edge, s.CurrentTime, 600)
	s.Incidents = append(s.Incidents, inc)
	if !edge.Blocked {
		t.Fatal("block did not take effect")
	}

	if !e.ResolveIncident(ctx, s.ID, inc.ID) {
		t.Fatal("resolve failed for an active incident")
	}
	if edge.Blocked {
		t.Fatal("edge still blocked after resolve")
	}
	if inc.IsActive {
		t.Fatal("incident still active after resolve")
	}
	if e.ResolveIncident(ctx, s.ID, inc.ID) {
		t.Fatal("resolve succeeded twice")
	}
	if e.ResolveIncident(ctx, s.ID, "no-such-incident") {
		t.Fatal("resolve succeeded for an unknown incident")
	}
}

func TestNetworkCongestionIsLengthWeighted(t *testing.T) {
	e, netID := newTestEngine(t)
	ctx := context.Background()
	p := testParams(2)
	p.InitialVehicles = 0
	p.InitialPedestrians = 0
	s, err := e.CreateSession(ctx, "weighting", netID, p)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	totalLen, weighted := 0.0, 0.0
	for i, edge := range s.Net.Edges {
		edge.Congestion = float64(i) * 0.1
		totalLen += edge.LengthM
		weighted += edge.Congestion * edge.LengthM
	}
	want := weighted / totalLen

	got, err := e.NetworkCongestion(ctx, s.ID)
	if err != nil {
		t.Fatalf("network congestion: %v", err)
	}
	if diff := got - want; diff > 1e-12 || diff < -1e-12 {
		t.Fatalf("congestion = %v, want %v", got, want)
	}
}

func TestFindOptimalRouteAvoidsBlockedEdges(t *testing.T) {
	e, netID := newTestEngine(t)
	ctx := context.Background()
	p := testParams(4)
	p.InitialVehicles = 0
	p.InitialPedestrians = 0
	s, err := e.CreateSession(ctx, "router", netID, p)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	route, err := e.FindOptimalRoute(ctx, s.ID, "a", "d", agent.VehicleCar)
	if err != nil {
		t.Fatalf("find route: %v", err)
	}
	if len(route) != 3 {
		t.Fatalf("route length = %d, want 3 (a->b->c->d)", len(route))
	}

	edge, _ := s.Net.Edge("bc")
	edge.Blocked = true
	route, err = e.FindOptimalRoute(ctx, s.ID, "a", "d", agent.VehicleCar)
	if err != nil {
		t.Fatalf("find route with block: %v", err)
	}
	if route != nil {
		t.Fatalf("expected no route past blocked bc, got %d edges", len(route))
	}
}

func TestSessionReloadsFromStore(t *testing.T) {
	mem := store.NewMemory()
	net := testNetwork(t)
	ctx := context.Background()
	if err := mem.SaveNetwork(ctx, net); err != nil {
		t.Fatalf("save network: %v", err)
	}

	e1 := NewEngine(mem, mem, WithTickInterval(time.Hour))
	s, err := e1.CreateSession(ctx, "handover", net.ID, testParams(99))
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := e1.Step(ctx, s.ID); err != nil {
			t.Fatalf("step: %v", err)
		}
	}
	// Persist a running state to exercise the running-to-paused downgrade.
	s.State = StateRunning
	if err := e1.persist(ctx, s); err != nil {
		t.Fatalf("persist: %v", err)
	}

	e2 := NewEngine(mem, mem, WithTickInterval(time.Hour))
	if _, err := e2.CurrentMetrics(ctx, s.ID); err != nil {
		t.Fatalf("resolve on second engine: %v", err)
	}
	loaded := e2.Session(s.ID)
	if loaded == nil {
		t.Fatal("second engine did not register the session")
	}
	if loaded.State != StatePaused {
		t.Fatalf("loaded state = %s, want %s (a persisted running session has no loop)", loaded.State, StatePaused)
	}
	if loaded.StepCount != s.StepCount || loaded.CurrentTime != s.CurrentTime {
		t.Fatalf("loaded clock = (%d, %d), want (%d, %d)", loaded.StepCount, loaded.CurrentTime, s.StepCount, s.CurrentTime)
	}
	for _, v := range loaded.Vehicles {
		edge, ok := loaded.Net.Edge(v.EdgeID)
		if !ok {
			t.Fatalf("loaded vehicle %s on unknown edge %s", v.ID, v.EdgeID)
		}
		if _, occ := edge.Vehicles[v.ID]; !occ {
			t.Fatalf("occupancy for vehicle %s not rebuilt on load", v.ID)
		}
	}
}

func TestStepNotifications(t *testing.T) {
	e, netID := newTestEngine(t)
	ctx := context.Background()
	s, err := e.CreateSession(ctx, "events", netID, testParams(6))
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	steps := e.SubscribeSteps()
	states := e.SubscribeStateChanges()

	if err := e.Step(ctx, s.ID); err != nil {
		t.Fatalf("step: %v", err)
	}
	select {
	case ev := <-steps:
		if ev.SessionID != s.ID {
			t.Fatalf("step event for session %s, want %s", ev.SessionID, s.ID)
		}
		if ev.Metric == nil {
			t.Fatal("step event carries no metric")
		}
	default:
		t.Fatal("no step event published")
	}

	if !e.Start(ctx, s.ID) {
		t.Fatal("start failed")
	}
	defer e.Stop(ctx, s.ID)
	select {
	case ev := <-states:
		if ev.Previous != StateStopped || ev.New != StateRunning {
			t.Fatalf("state change %s->%s, want stopped->running", ev.Previous, ev.New)
		}
	default:
		t.Fatal("no state change published")
	}
}

func TestRunLoopTicksAndStops(t *testing.T) {
	mem := store.NewMemory()
	net := testNetwork(t)
	ctx := context.Background()
	if err := mem.SaveNetwork(ctx, net); err != nil {
		t.Fatalf("save network: %v", err)
	}
	e := NewEngine(mem, mem, WithTickInterval(5*time.Millisecond))

	p := testParams(8)
	s, err := e.CreateSession(ctx, "looper", net.ID, p)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	steps := e.SubscribeSteps()

	if !e.Start(ctx, s.ID) {
		t.Fatal("start failed")
	}
	select {
	case <-steps:
	case <-time.After(2 * time.Second):
		t.Fatal("run loop produced no tick within 2s")
	}
	if !e.Stop(ctx, s.ID) {
		t.Fatal("stop failed")
	}

	// The loop honors cancellation between ticks; shortly after Stop the
	// clock must settle.
	time.Sleep(50 * time.Millisecond)
	settled := s.StepCount
	time.Sleep(100 * time.Millisecond)
	if s.StepCount != settled {
		t.Fatalf("clock advanced after stop: %d -> %d", settled, s.StepCount)
	}
}

func TestSpawnRespectsPopulationBounds(t *testing.T) {
	e, netID := newTestEngine(t)
	ctx := context.Background()
	p := testParams(10)
	p.InitialVehicles = 0
	p.InitialPedestrians = 0
	p.VehicleSpawnIntensity = 0
	p.PedestrianSpawnIntensity = 0
	s, err := e.CreateSession(ctx, "bounds", netID, p)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	// Saturate every edge; the per-edge cap then forbids any spawn.
	for _, edge := range s.Net.Edges {
		for i := 0; i < MaxVehiclesPerEdge; i++ {
			edge.AddVehicle(fmt.Sprintf("filler-%s-%d", edge.ID, i))
		}
	}
	if _, err := e.AddVehicle(ctx, s.ID, agent.VehicleCar, agent.StyleNormal); err == nil {
		t.Fatal("expected spawn to fail with every edge at capacity")
	}
}

// A tick can die between writing its metric row and saving the session. The
// reloaded session then retries the same sim time, and the retry must
// overwrite the orphan row rather than fail the metrics unique key.
func TestStepRecoversFromOrphanMetric(t *testing.T) {
	st, err := store.NewStore(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()
	ctx := context.Background()
	net := testNetwork(t)
	if err := st.SaveNetwork(ctx, net); err != nil {
		t.Fatalf("save network: %v", err)
	}

	e1 := NewEngine(st, st, WithTickInterval(time.Hour))
	s, err := e1.CreateSession(ctx, "interrupted", net.ID, testParams(13))
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	orphan := &store.Metric{
		SessionID: s.ID, SimTime: s.CurrentTime, Step: s.StepCount,
		CreatedAt: time.Now().UTC(), ActiveVehicles: len(s.Vehicles),
	}
	if err := st.AppendMetric(ctx, orphan); err != nil {
		t.Fatalf("seed orphan metric: %v", err)
	}

	e2 := NewEngine(st, st, WithTickInterval(time.Hour))
	for i := 1; i <= 3; i++ {
		if err := e2.Step(ctx, s.ID); err != nil {
			t.Fatalf("step %d after reload: %v", i, err)
		}
	}
	loaded := e2.Session(s.ID)
	if loaded.StepCount != 3 {
		t.Fatalf("StepCount = %d, want 3", loaded.StepCount)
	}
	hist, err := st.MetricHistory(ctx, s.ID)
	if err != nil {
		t.Fatalf("metric history: %v", err)
	}
	if len(hist) != 3 {
		t.Fatalf("metric rows = %d, want 3 (orphan overwritten, not duplicated)", len(hist))
	}
}

func TestAccidentStopsVehiclesOnEdge(t *testing.T) {
	e, netID := newTestEngine(t)
	ctx := context.Background()
	p := testParams(17)
	p.InitialVehicles = 0
	p.InitialPedestrians = 0
	p.VehicleSpawnIntensity = 0
	p.PedestrianSpawnIntensity = 0
	p.AccidentProbabilityFactor = 1
	p.NoAccidentChance = 0
	s, err := e.CreateSession(ctx, "pileup", netID, p)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	// Edge ab is 500 m with 2 lanes, so three cars put its density at 3.0,
	// past the accident eligibility bound.
	edge, _ := s.Net.Edge("ab")
	for i := 0; i < 3; i++ {
		v := agent.NewVehicle(s.rnd, agent.VehicleCar, agent.StyleNormal, edge.ID)
		v.WaitingTimeS = 30
		edge.AddVehicle(v.ID)
		s.Vehicles = append(s.Vehicles, v)
	}

	if err := e.Step(ctx, s.ID); err != nil {
		t.Fatalf("step: %v", err)
	}

	if !edge.Blocked {
		t.Fatal("edge not blocked after forced accident")
	}
	accidents := 0
	for _, inc := range s.Incidents {
		if inc.Type == incident.TypeAccident && inc.EdgeID == edge.ID {
			accidents++
		}
	}
	if accidents != 1 {
		t.Fatalf("accidents on edge = %d, want 1", accidents)
	}
	for _, v := range s.Vehicles {
		if v.EdgeID != edge.ID {
			continue
		}
		if v.SpeedKmh != 0 {
			t.Errorf("vehicle %s speed = %v after accident, want 0", v.ID, v.SpeedKmh)
		}
		if v.WaitingTimeS != 0 {
			t.Errorf("vehicle %s waiting time = %v after accident, want reset to 0", v.ID, v.WaitingTimeS)
		}
	}
}
