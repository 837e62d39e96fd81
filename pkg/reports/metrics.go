// Package reports renders session history into CSV for offline analysis.
package reports

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// MetricsReport generates a CSV report over the per-tick metric history of a
// session, one row per tick in simulation time order.
type MetricsReport struct {
	source MetricSource
}

// NewMetricsReport creates a new MetricsReport generator.
func NewMetricsReport(s MetricSource) *MetricsReport {
	return &MetricsReport{source: s}
}

// Generate renders the session's metric history as CSV.
func (r *MetricsReport) Generate(ctx context.Context, sessionID string) (io.Reader, error) {
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)

	headers := []string{
		"sim_time", "step",
		"active_vehicles", "active_pedestrians",
		"completed_vehicles", "completed_pedestrians",
		"avg_vehicle_speed_kmh", "network_congestion", "congested_edges",
		"active_incidents", "total_incidents",
	}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write headers: %w", err)
	}

	history, err := r.source.MetricHistory(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query metric history: %w", err)
	}

	for _, m := range history {
		row := []string{
			strconv.FormatInt(m.SimTime, 10),
			strconv.FormatInt(m.Step, 10),
			strconv.Itoa(m.ActiveVehicles),
			strconv.Itoa(m.ActivePedestrians),
			strconv.Itoa(m.CompletedVehicles),
			strconv.Itoa(m.CompletedPedestrians),
			strconv.FormatFloat(m.AvgVehicleSpeedKmh, 'f', 3, 64),
			strconv.FormatFloat(m.NetworkCongestion, 'f', 4, 64),
			strconv.Itoa(m.CongestedEdges),
			strconv.Itoa(m.ActiveIncidents),
			strconv.Itoa(m.TotalIncidents),
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush writer: %w", err)
	}

	return buf, nil
}
