package reports

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// IncidentsReport generates a CSV report over the incident log of a session,
// one row per incident in creation order.
type IncidentsReport struct {
	source IncidentSource
}

// NewIncidentsReport creates a new IncidentsReport generator.
func NewIncidentsReport(s IncidentSource) *IncidentsReport {
	return &IncidentsReport{source: s}
}

// Generate renders the session's incident log as CSV.
func (r *IncidentsReport) Generate(ctx context.Context, sessionID string) (io.Reader, error) {
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)

	headers := []string{"sim_time", "type", "edge_id", "severity", "active", "description"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write headers: %w", err)
	}

	incidents, err := r.source.Incidents(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query incidents: %w", err)
	}

	for _, inc := range incidents {
		row := []string{
			strconv.FormatInt(inc.SimTime, 10),
			string(inc.Type),
			inc.EdgeID,
			string(inc.Severity),
			strconv.FormatBool(inc.IsActive),
			inc.Description,
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
