package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gridroad/trafficd/pkg/store"
)

var (
	// TrafficdActiveVehicles tracks the active vehicle count per session
	TrafficdActiveVehicles = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trafficd_active_vehicles",
			Help: "Number of vehicles currently on the network",
		},
		[]string{"session_id"},
	)

	// TrafficdActivePedestrians tracks the active pedestrian count per session
	TrafficdActivePedestrians = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trafficd_active_pedestrians",
			Help: "Number of pedestrians currently on the network",
		},
		[]string{"session_id"},
	)

	// TrafficdAvgSpeed tracks the mean vehicle speed per session
	TrafficdAvgSpeed = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trafficd_avg_vehicle_speed_kmh",
			Help: "Mean speed of active vehicles in km/h",
		},
		[]string{"session_id"},
	)

	// TrafficdNetworkCongestion tracks the length-weighted mean congestion
	TrafficdNetworkCongestion = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trafficd_network_congestion",
			Help: "Length-weighted mean congestion level over all edges",
		},
		[]string{"session_id"},
	)

	// TrafficdIncidentsTotal counts incidents by type
	TrafficdIncidentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trafficd_incidents_total",
			Help: "Total incidents created, by type",
		},
		[]string{"session_id", "type"},
	)

	// TrafficdTicksTotal counts completed simulation steps
	TrafficdTicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trafficd_ticks_total",
			Help: "Total completed simulation steps",
		},
		[]string{"session_id"},
	)

	// TrafficdCompletedTotal counts agents that reached their destination
	TrafficdCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trafficd_completed_agents_total",
			Help: "Total agents that completed their journey, by kind",
		},
		[]string{"session_id", "kind"},
	)
)

func init() {
	// Register metrics with the default registry
	prometheus.MustRegister(TrafficdActiveVehicles)
	prometheus.MustRegister(TrafficdActivePedestrians)
	prometheus.MustRegister(TrafficdAvgSpeed)
	prometheus.MustRegister(TrafficdNetworkCongestion)
	prometheus.MustRegister(TrafficdIncidentsTotal)
	prometheus.MustRegister(TrafficdTicksTotal)
	prometheus.MustRegister(TrafficdCompletedTotal)
}

// collectMetric snapshots the session into one per-tick metric row. The
// caller holds the session's handle lock.
func (e *Engine) collectMetric(s *Session) *store.Metric {
	m := &store.Metric{
		SessionID:            s.ID,
		SimTime:              s.CurrentTime,
		Step:                 s.StepCount,
		CreatedAt:            time.Now().UTC(),
		ActiveVehicles:       len(s.Vehicles),
		ActivePedestrians:    len(s.Pedestrians),
		CompletedVehicles:    s.CompletedVehicles,
		CompletedPedestrians: s.CompletedPedestrians,
		ActiveIncidents:      s.activeIncidents(),
		TotalIncidents:       len(s.Incidents),
	}

	if len(s.Vehicles) > 0 {
		total := 0.0
		for _, v := range s.Vehicles {
			total += v.SpeedKmh
		}
		m.AvgVehicleSpeedKmh = total / float64(len(s.Vehicles))
	}

	m.NetworkCongestion = networkCongestion(s.Net)
	for _, edge := range s.Net.Edges {
		if edge.Congestion > s.Params.CongestionThreshold {
			m.CongestedEdges++
		}
	}
	return m
}

// exportMetric pushes a collected snapshot to the Prometheus gauges and
// counters. Incident counters are bumped at creation time in the tick, not
// here, to keep per-type attribution.
func (e *Engine) exportMetric(s *Session, m *store.Metric) {
	TrafficdActiveVehicles.WithLabelValues(s.ID).Set(float64(m.ActiveVehicles))
	TrafficdActivePedestrians.WithLabelValues(s.ID).Set(float64(m.ActivePedestrians))
	TrafficdAvgSpeed.WithLabelValues(s.ID).Set(m.AvgVehicleSpeedKmh)
	TrafficdNetworkCongestion.WithLabelValues(s.ID).Set(m.NetworkCongestion)
	TrafficdTicksTotal.WithLabelValues(s.ID).Inc()
}
