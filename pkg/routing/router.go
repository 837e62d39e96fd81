// Package routing answers congestion-aware shortest-path queries over the
// road network. Routes are recomputed on demand, never cached: congestion
// changes every tick.
package routing

import (
	"container/heap"

	"github.com/gridroad/trafficd/pkg/agent"
	"github.com/gridroad/trafficd/pkg/network"
)

// bicyclePenalty applies to bicycles routed onto fast roads.
const (
	bicyclePenalty         = 1.5
	bicyclePenaltySpeedKmh = 50
)

// EdgeWeight is the estimated travel time of an edge in seconds, inflated by
// congestion: (length / free-flow speed) × (1 + 2×congestion). Bicycles pay a
// further ×1.5 on edges faster than 50 km/h.
func EdgeWeight(e *network.RoadSegment, vehicleType agent.VehicleType) float64 {
	travelTime := e.LengthM / (e.MaxSpeedKmh / 3.6)
	w := travelTime * (1 + 2*e.Congestion)
	if vehicleType == agent.VehicleBicycle && e.MaxSpeedKmh > bicyclePenaltySpeedKmh {
		w *= bicyclePenalty
	}
	return w
}

// FindRoute runs Dijkstra from start to end over unblocked edges and returns
// the ordered edge sequence, or an empty slice when either endpoint is
// unknown or the goal is unreachable. Ties in the frontier break by discovery
// order.
func FindRoute(net *network.Network, startID, endID string, vehicleType agent.VehicleType) []*network.RoadSegment {
	if _, ok := net.Vertex(startID); !ok {
		return nil
	}
	if _, ok := net.Vertex(endID); !ok {
		return nil
	}
	if startID == endID {
		return []*network.RoadSegment{}
	}

	dist := map[string]float64{startID: 0}
	prevEdge := map[string]*network.RoadSegment{}
	visited := map[string]bool{}

	pq := &frontier{}
	heap.Init(pq)
	seq := 0
	heap.Push(pq, &candidate{vertexID: startID, priority: 0, seq: seq})

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(*candidate)
		if visited[cur.vertexID] {
			continue
		}
		visited[cur.vertexID] = true
		if cur.vertexID == endID {
			break
		}
		for _, e := range net.OutgoingEdges(cur.vertexID) {
			if e.Blocked {
				continue
			}
			alt := dist[cur.vertexID] + EdgeWeight(e, vehicleType)
			if best, seen := dist[e.ToID]; !seen || alt < best {
				dist[e.ToID] = alt
				prevEdge[e.ToID] = e
				seq++
				heap.Push(pq, &candidate{vertexID: e.ToID, priority: alt, seq: seq})
			}
		}
	}

	if _, reached := dist[endID]; !reached || !visited[endID] {
		return nil
	}

	var path []*network.RoadSegment
	for at := endID; at != startID; {
		e := prevEdge[at]
		if e == nil {
			return nil
		}
		path = append(path, e)
		at = e.FromID
	}
	// Reverse into start-to-end order.
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// RouteWeight sums the weights of a route for the given vehicle type.
func RouteWeight(route []*network.RoadSegment, vehicleType agent.VehicleType) float64 {
	total := 0.0
	for _, e := range route {
		total += EdgeWeight(e, vehicleType)
	}
	return total
}

// candidate is one frontier entry. seq preserves discovery order so that
// equal priorities pop stably.
type candidate struct {
	vertexID string
	priority float64
	seq      int
}

type frontier []*candidate

func (f frontier) Len() int { return len(f) }
func (f frontier) Less(i, j int) bool {
	if f[i].priority != f[j].priority {
		return f[i].priority < f[j].priority
	}
	return f[i].seq < f[j].seq
}
func (f frontier) Swap(i, j int) { f[i], f[j] = f[j], f[i] }
func (f *frontier) Push(x any)   { *f = append(*f, x.(*candidate)) }
func (f *frontier) Pop() any {
	old := *f
	n := len(old)
	it := old[n-1]
	*f = old[:n-1]
	return it
}
