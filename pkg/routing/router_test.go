package routing

import (
	"math"
	"testing"

	"github.com/gridroad/trafficd/pkg/agent"
	"github.com/gridroad/trafficd/pkg/network"
)

// pathGraph builds A->B->C with free-flow travel times 10s and 20s.
func pathGraph(t *testing.T) *network.Network {
	t.Helper()
	n := network.New("path")
	for _, id := range []string{"a", "b", "c"} {
		if err := n.AddVertex(&network.Vertex{ID: id}); err != nil {
			t.Fatal(err)
		}
	}
	// 50 km/h is 13.888 m/s: 138.88m takes 10s, 277.77m takes 20s.
	ms := 50.0 / 3.6
	edges := []*network.RoadSegment{
		{ID: "ab", FromID: "a", ToID: "b", LengthM: 10 * ms, Lanes: 1, MaxSpeedKmh: 50},
		{ID: "bc", FromID: "b", ToID: "c", LengthM: 20 * ms, Lanes: 1, MaxSpeedKmh: 50},
	}
	for _, e := range edges {
		if err := n.AddEdge(e); err != nil {
			t.Fatal(err)
		}
	}
	return n
}

func TestFindRoutePathGraph(t *testing.T) {
	n := pathGraph(t)

	route := FindRoute(n, "a", "c", agent.VehicleCar)
	if len(route) != 2 || route[0].ID != "ab" || route[1].ID != "bc" {
		t.Fatalf("route = %v, want [ab bc]", ids(route))
	}
	if w := RouteWeight(route, agent.VehicleCar); math.Abs(w-30) > 1e-9 {
		t.Errorf("total weight = %v, want 30", w)
	}
}

func TestFindRouteBlockedEdge(t *testing.T) {
	n := pathGraph(t)
	bc, _ := n.Edge("bc")
	bc.Blocked = true

	if route := FindRoute(n, "a", "c", agent.VehicleCar); len(route) != 0 {
		t.Errorf("route through blocked edge: %v", ids(route))
	}
	// a->b is still reachable.
	if route := FindRoute(n, "a", "b", agent.VehicleCar); len(route) != 1 {
		t.Errorf("a->b should survive the block, got %v", ids(route))
	}
}

func TestFindRouteUnknownEndpoints(t *testing.T) {
	n := pathGraph(t)
	if route := FindRoute(n, "x", "c", agent.VehicleCar); len(route) != 0 {
		t.Errorf("unknown start returned %v", ids(route))
	}
	if route := FindRoute(n, "a", "x", agent.VehicleCar); len(route) != 0 {
		t.Errorf("unknown end returned %v", ids(route))
	}
}

func TestFindRouteSameVertex(t *testing.T) {
	n := pathGraph(t)
	route := FindRoute(n, "a", "a", agent.VehicleCar)
	if len(route) != 0 {
		t.Errorf("a->a route = %v, want empty", ids(route))
	}
}

func TestCongestionShiftsRoute(t *testing.T) {
	// Two parallel routes a->c: direct (30s free flow) and via b (40s free
	// flow). Congesting the direct edge to level 1 triples its weight, so the
	// detour wins.
	n := network.New("parallel")
	for _, id := range []string{"a", "b", "c"} {
		if err := n.AddVertex(&network.Vertex{ID: id}); err != nil {
			t.Fatal(err)
		}
	}
	ms := 50.0 / 3.6
	edges := []*network.RoadSegment{
		{ID: "ac", FromID: "a", ToID: "c", LengthM: 30 * ms, Lanes: 1, MaxSpeedKmh: 50},
		{ID: "ab", FromID: "a", ToID: "b", LengthM: 20 * ms, Lanes: 1, MaxSpeedKmh: 50},
		{ID: "bc", FromID: "b", ToID: "c", LengthM: 20 * ms, Lanes: 1, MaxSpeedKmh: 50},
	}
	for _, e := range edges {
		if err := n.AddEdge(e); err != nil {
			t.Fatal(err)
		}
	}

	route := FindRoute(n, "a", "c", agent.VehicleCar)
	if len(route) != 1 || route[0].ID != "ac" {
		t.Fatalf("uncongested route = %v, want [ac]", ids(route))
	}

	ac, _ := n.Edge("ac")
	ac.Congestion = 1.0 // weight 30 -> 90
	route = FindRoute(n, "a", "c", agent.VehicleCar)
	if len(route) != 2 || route[0].ID != "ab" || route[1].ID != "bc" {
		t.Errorf("congested route = %v, want [ab bc]", ids(route))
	}
}

func TestBicyclePenalty(t *testing.T) {
	e := &network.RoadSegment{ID: "e", LengthM: 1000, Lanes: 1, MaxSpeedKmh: 90}
	car := EdgeWeight(e, agent.VehicleCar)
	bike := EdgeWeight(e, agent.VehicleBicycle)
	if math.Abs(bike-car*1.5) > 1e-9 {
		t.Errorf("bicycle weight %v, want 1.5x car weight %v", bike, car)
	}

	slow := &network.RoadSegment{ID: "s", LengthM: 1000, Lanes: 1, MaxSpeedKmh: 50}
	if EdgeWeight(slow, agent.VehicleBicycle) != EdgeWeight(slow, agent.VehicleCar) {
		t.Error("no bicycle penalty expected at 50 km/h")
	}
}

func ids(route []*network.RoadSegment) []string {
	out := make([]string, len(route))
	for i, e := range route {
		out[i] = e.ID
	}
	return out
}
