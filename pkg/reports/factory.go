package reports

import (
	"fmt"
)

// Sources bundles the data access a generator might need.
type Sources struct {
	Metrics   MetricSource
	Incidents IncidentSource
}

// NewReportGenerator creates a report generator based on the report type.
func NewReportGenerator(reportType ReportType, src Sources) (Generator, error) {
	switch reportType {
	case ReportTypeMetrics:
		return NewMetricsReport(src.Metrics), nil
	case ReportTypeIncidents:
		return NewIncidentsReport(src.Incidents), nil
	default:
		return nil, fmt.Errorf("unknown report type: %s", reportType)
	}
}
