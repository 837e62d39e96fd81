package incident

import (
	"testing"

	"github.com/gridroad/trafficd/pkg/network"
	"github.com/gridroad/trafficd/pkg/simrand"
)

func denseNetwork(t *testing.T, density float64, crosswalk bool) *network.Network {
	t.Helper()
	n := network.New("test")
	if err := n.AddVertex(&network.Vertex{ID: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := n.AddVertex(&network.Vertex{ID: "b"}); err != nil {
		t.Fatal(err)
	}
	e := &network.RoadSegment{
		ID: "ab", FromID: "a", ToID: "b",
		LengthM: 1000, Lanes: 1, MaxSpeedKmh: 50,
		HasCrosswalk: crosswalk,
	}
	if err := n.AddEdge(e); err != nil {
		t.Fatal(err)
	}
	e.Density = density
	return n
}

func noPeds(string) int { return 0 }
func onePed(string) int { return 1 }

func TestAccidentForcedFire(t *testing.T) {
	n := denseNetwork(t, 1.2, false)
	m := &Model{AccidentFactor: 1.0, NoAccidentChance: 0.0, BlockDurationS: 300}
	rnd := simrand.New(4)

	incidents := m.Evaluate(n, 100, noPeds, rnd)
	if len(incidents) != 1 {
		t.Fatalf("got %d incidents, want exactly 1", len(incidents))
	}
	inc := incidents[0]
	if inc.Type != TypeAccident {
		t.Errorf("type = %s, want accident", inc.Type)
	}
	if inc.Severity != SeverityMedium {
		t.Errorf("severity at density 1.2 = %s, want medium", inc.Severity)
	}
	if !inc.IsActive {
		t.Error("fresh accident should be active")
	}

	e, _ := n.Edge("ab")
	if !e.Blocked || e.BlockedUntil != 400 {
		t.Errorf("edge block state = %v until %d, want blocked until 400", e.Blocked, e.BlockedUntil)
	}
	if e.AccidentCount != 1 {
		t.Errorf("accident count = %d, want 1", e.AccidentCount)
	}
}

func TestAccidentHighSeverity(t *testing.T) {
	n := denseNetwork(t, 1.6, false)
	m := &Model{AccidentFactor: 1.0, NoAccidentChance: 0.0, BlockDurationS: 300}

	incidents := m.Evaluate(n, 0, noPeds, simrand.New(4))
	if len(incidents) != 1 || incidents[0].Severity != SeverityHigh {
		t.Fatalf("density 1.6 should yield one high-severity accident, got %+v", incidents)
	}
}

func TestAccidentSuppressedByNoAccidentChance(t *testing.T) {
	n := denseNetwork(t, 1.2, false)
	m := &Model{AccidentFactor: 1.0, NoAccidentChance: 1.0, BlockDurationS: 300}

	// The second draw can never exceed 1.0, so no accident can ever fire.
	for i := 0; i < 50; i++ {
		if incs := m.Evaluate(n, int64(i), noPeds, simrand.New(uint64(i))); len(incs) != 0 {
			t.Fatalf("accident fired despite NoAccidentChance=1: %+v", incs)
		}
	}
}

func TestAccidentIneligibleBelowDensity(t *testing.T) {
	n := denseNetwork(t, 0.9, false)
	m := &Model{AccidentFactor: 1.0, NoAccidentChance: 0.0, BlockDurationS: 300}
	if incs := m.Evaluate(n, 0, noPeds, simrand.New(1)); len(incs) != 0 {
		t.Errorf("accident fired below eligible density: %+v", incs)
	}
}

func TestBlockedEdgeNotEligible(t *testing.T) {
	n := denseNetwork(t, 1.2, false)
	e, _ := n.Edge("ab")
	e.Blocked = true
	e.BlockedUntil = 1000
	m := &Model{AccidentFactor: 1.0, NoAccidentChance: 0.0, BlockDurationS: 300}
	if incs := m.Evaluate(n, 0, noPeds, simrand.New(1)); len(incs) != 0 {
		t.Errorf("already-blocked edge produced incidents: %+v", incs)
	}
}

func TestUnblockSweep(t *testing.T) {
	n := denseNetwork(t, 0.0, false)
	e, _ := n.Edge("ab")
	e.Density = 0
	e.Blocked = true
	e.BlockedUntil = 400
	m := &Model{AccidentFactor: 0, NoAccidentChance: 0, BlockDurationS: 300}

	// Before expiry: nothing.
	if incs := m.Evaluate(n, 399, noPeds, simrand.New(1)); len(incs) != 0 {
		t.Fatalf("unexpected incidents before expiry: %+v", incs)
	}
	// At expiry: exactly one RoadUnblocked, inactive, low severity.
	incs := m.Evaluate(n, 400, noPeds, simrand.New(1))
	if len(incs) != 1 {
		t.Fatalf("got %d incidents at expiry, want 1", len(incs))
	}
	inc := incs[0]
	if inc.Type != TypeRoadUnblocked || inc.Severity != SeverityLow || inc.IsActive {
		t.Errorf("unblock incident wrong: %+v", inc)
	}
	if e.Blocked {
		t.Error("edge still blocked after sweep")
	}
	// Next tick: no duplicate unblock.
	if incs := m.Evaluate(n, 401, noPeds, simrand.New(1)); len(incs) != 0 {
		t.Errorf("duplicate unblock incidents: %+v", incs)
	}
}

func TestConflictRequiresCrosswalkAndPedestrians(t *testing.T) {
	m := &Model{AccidentFactor: 0, NoAccidentChance: 1.0}

	// Crosswalk but no pedestrians.
	n := denseNetwork(t, 0.9, true)
	if incs := m.Evaluate(n, 0, noPeds, simrand.New(2)); len(incs) != 0 {
		t.Errorf("conflict without pedestrians: %+v", incs)
	}

	// Pedestrians but no crosswalk.
	n = denseNetwork(t, 0.9, false)
	if incs := m.Evaluate(n, 0, onePed, simrand.New(2)); len(incs) != 0 {
		t.Errorf("conflict without crosswalk: %+v", incs)
	}

	// Density too low.
	n = denseNetwork(t, 0.2, true)
	if incs := m.Evaluate(n, 0, onePed, simrand.New(2)); len(incs) != 0 {
		t.Errorf("conflict below density threshold: %+v", incs)
	}
}

func TestConflictFiresAndDoesNotBlock(t *testing.T) {
	m := &Model{AccidentFactor: 0, NoAccidentChance: 1.0}
	fired := 0
	for i := 0; i < 200; i++ {
		n := denseNetwork(t, 0.9, true)
		incs := m.Evaluate(n, 0, onePed, simrand.New(uint64(i)))
		for _, inc := range incs {
			if inc.Type != TypePedConflict {
				t.Fatalf("unexpected incident type %s", inc.Type)
			}
			if inc.Severity != SeverityMedium {
				t.Errorf("severity at density 0.9 = %s, want medium", inc.Severity)
			}
			fired++
			e, _ := n.Edge("ab")
			if e.Blocked {
				t.Error("conflict must not block the edge")
			}
		}
	}
	// p = min(0.8, 0.1 + 0.27 + 0.2) = 0.57; expect roughly that fraction.
	if fired < 60 || fired > 180 {
		t.Errorf("conflict fired %d/200 times, want ~114", fired)
	}
}

func TestResolveUnblocksEarly(t *testing.T) {
	n := denseNetwork(t, 1.2, false)
	m := &Model{AccidentFactor: 1.0, NoAccidentChance: 0.0, BlockDurationS: 600}
	incs := m.Evaluate(n, 0, noPeds, simrand.New(4))
	if len(incs) != 1 {
		t.Fatalf("setup: expected one accident, got %d", len(incs))
	}

	Resolve(incs[0], n)
	if incs[0].IsActive {
		t.Error("incident still active after resolve")
	}
	e, _ := n.Edge("ab")
	if e.Blocked {
		t.Error("edge still blocked after resolve")
	}

	// Resolving twice is harmless.
	Resolve(incs[0], n)
}

func TestOperatorBlock(t *testing.T) {
	n := denseNetwork(t, 0, false)
	e, _ := n.Edge("ab")

	inc := Block(e, 100, 300)
	if inc.Type != TypeRoadBlocked || !inc.IsActive {
		t.Errorf("operator block incident wrong: %+v", inc)
	}
	if !e.Blocked || e.BlockedUntil != 400 {
		t.Errorf("edge not blocked until 400: %v/%d", e.Blocked, e.BlockedUntil)
	}
}
