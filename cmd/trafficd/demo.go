package main

import (
	"fmt"

	"github.com/gridroad/trafficd/pkg/network"
)

// demoNetwork builds a three-by-three urban grid with a highway ring on the
// outside, signalized inner intersections, and crosswalks on the urban
// streets. It exists so the daemon runs out of the box against an empty
// database.
func demoNetwork(id string) (*network.Network, error) {
	const (
		size     = 3
		blockM   = 400.0
		urbanKmh = 50.0
		ringKmh  = 90.0
	)

	net := network.New("demo grid")
	net.ID = id

	vid := func(row, col int) string { return fmt.Sprintf("v-%d-%d", row, col) }

	for row := 0; row < size; row++ {
		for col := 0; col < size; col++ {
			kind := network.VertexIntersection
			if (row == 0 || row == size-1) && (col == 0 || col == size-1) {
				kind = network.VertexTerminal
			}
			v := &network.Vertex{
				ID:               vid(row, col),
				X:                float64(col) * blockM,
				Y:                float64(row) * blockM,
				Kind:             kind,
				HasTrafficLights: kind == network.VertexIntersection,
				GroupID:          fmt.Sprintf("row-%d", row),
			}
			if err := net.AddVertex(v); err != nil {
				return nil, err
			}
		}
	}

	addPair := func(from, to string, lengthM, speedKmh float64, kind network.RoadKind, crosswalk bool) error {
		forward := &network.RoadSegment{
			ID: from + ">" + to, FromID: from, ToID: to,
			LengthM: lengthM, Lanes: 2, MaxSpeedKmh: speedKmh,
			Kind: kind, HasCrosswalk: crosswalk, Bidirectional: true,
		}
		if err := net.AddEdge(forward); err != nil {
			return err
		}
		reverse := &network.RoadSegment{
			ID: to + ">" + from, FromID: to, ToID: from,
			LengthM: lengthM, Lanes: 2, MaxSpeedKmh: speedKmh,
			Kind: kind, HasCrosswalk: crosswalk, Bidirectional: true,
		}
		return net.AddEdge(reverse)
	}

	// Inner grid streets.
	for row := 0; row < size; row++ {
		for col := 0; col < size; col++ {
			if col+1 < size {
				if err := addPair(vid(row, col), vid(row, col+1), blockM, urbanKmh, network.RoadUrban, true); err != nil {
					return nil, err
				}
			}
			if row+1 < size {
				if err := addPair(vid(row, col), vid(row+1, col), blockM, urbanKmh, network.RoadUrban, true); err != nil {
					return nil, err
				}
			}
		}
	}

	// Highway ring over the corner terminals.
	ring := [][2]string{
		{vid(0, 0), vid(0, size - 1)},
		{vid(0, size - 1), vid(size - 1, size - 1)},
		{vid(size - 1, size - 1), vid(size - 1, 0)},
		{vid(size - 1, 0), vid(0, 0)},
	}
	for _, pair := range ring {
		if err := addPair(pair[0], pair[1], blockM*float64(size), ringKmh, network.RoadHighway, false); err != nil {
			return nil, err
		}
	}

	if err := net.Validate(); err != nil {
		return nil, fmt.Errorf("demo network invalid: %w", err)
	}
	return net, nil
}
