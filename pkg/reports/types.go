package reports

import (
	"context"
	"io"

	"github.com/gridroad/trafficd/pkg/incident"
	"github.com/gridroad/trafficd/pkg/store"
)

type ReportType string

const (
	ReportTypeMetrics   ReportType = "metrics"
	ReportTypeIncidents ReportType = "incidents"
)

// MetricSource is the data access surface the metrics report needs.
type MetricSource interface {
	MetricHistory(ctx context.Context, sessionID string) ([]*store.Metric, error)
}

// IncidentSource is the data access surface the incidents report needs.
type IncidentSource interface {
	Incidents(ctx context.Context, sessionID string) ([]*incident.Incident, error)
}

type Generator interface {
	Generate(ctx context.Context, sessionID string) (io.Reader, error)
}
