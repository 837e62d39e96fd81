package engine

import (
	"fmt"

	"github.com/gridroad/trafficd/pkg/agent"
	"github.com/gridroad/trafficd/pkg/simrand"
)

// Population and occupancy bounds enforced at spawn time.
const (
	MaxVehicles        = 1000
	MaxPedestrians     = 500
	MaxVehiclesPerEdge = 50
)

// Params is the immutable-during-a-run configuration of a session. Weight
// tables are ordered slices: selection subtracts weights in entry order, so
// a fixed seed reproduces every draw. Weights need not sum to 1.
type Params struct {
	InitialVehicles    int `json:"initial_vehicles"`
	InitialPedestrians int `json:"initial_pedestrians"`

	// Spawn intensities are expected new agents per tick, before the
	// time-of-day multiplier.
	VehicleSpawnIntensity    float64 `json:"vehicle_spawn_intensity"`
	PedestrianSpawnIntensity float64 `json:"pedestrian_spawn_intensity"`

	VehicleTypeWeights    []simrand.Weighted[agent.VehicleType]    `json:"vehicle_type_weights"`
	DriverStyleWeights    []simrand.Weighted[agent.DriverStyle]    `json:"driver_style_weights"`
	PedestrianTypeWeights []simrand.Weighted[agent.PedestrianType] `json:"pedestrian_type_weights"`

	AccidentProbabilityFactor float64 `json:"accident_probability_factor"`
	NoAccidentChance          float64 `json:"no_accident_chance"`
	BlockDurationS            int64   `json:"block_duration_s"`

	// CongestionThreshold classifies an edge as congested for metrics.
	CongestionThreshold float64 `json:"congestion_threshold"`

	TimeStepS int64 `json:"time_step_s"`
	DurationS int64 `json:"duration_s"`

	// MeanPatienceS parameterizes the exponential patience draw of new
	// pedestrians.
	MeanPatienceS float64 `json:"mean_patience_s"`

	// TimeOfDayMultipliers scale spawn intensities by simulated hour.
	TimeOfDayMultipliers [24]float64 `json:"time_of_day_multipliers"`

	// Seed fixes the session's random source; 0 asks the engine to pick one.
	Seed uint64 `json:"seed"`
}

// DefaultParams returns a runnable parameter set: a five-second step, one
// simulated hour, mixed urban traffic, flat time-of-day profile.
func DefaultParams() Params {
	p := Params{
		InitialVehicles:          20,
		InitialPedestrians:       10,
		VehicleSpawnIntensity:    2.0,
		PedestrianSpawnIntensity: 1.0,
		VehicleTypeWeights: []simrand.Weighted[agent.VehicleType]{
			{Value: agent.VehicleCar, Weight: 0.55},
			{Value: agent.VehicleNoviceCar, Weight: 0.15},
			{Value: agent.VehicleBus, Weight: 0.1},
			{Value: agent.VehicleTruck, Weight: 0.1},
			{Value: agent.VehicleSpecial, Weight: 0.05},
			{Value: agent.VehicleBicycle, Weight: 0.05},
		},
		DriverStyleWeights: []simrand.Weighted[agent.DriverStyle]{
			{Value: agent.StyleNormal, Weight: 0.6},
			{Value: agent.StyleAggressive, Weight: 0.2},
			{Value: agent.StyleCautious, Weight: 0.2},
		},
		PedestrianTypeWeights: []simrand.Weighted[agent.PedestrianType]{
			{Value: agent.PedAdult, Weight: 0.6},
			{Value: agent.PedChild, Weight: 0.15},
			{Value: agent.PedElderly, Weight: 0.15},
			{Value: agent.PedDisabled, Weight: 0.1},
		},
		AccidentProbabilityFactor: 0.01,
		NoAccidentChance:          0.3,
		BlockDurationS:            300,
		CongestionThreshold:       0.5,
		TimeStepS:                 5,
		DurationS:                 3600,
		MeanPatienceS:             60,
	}
	for i := range p.TimeOfDayMultipliers {
		p.TimeOfDayMultipliers[i] = 1.0
	}
	return p
}

// Validate rejects malformed parameters before a session is created.
func (p Params) Validate() error {
	if p.TimeStepS <= 0 {
		return fmt.Errorf("time step must be positive, got %d", p.TimeStepS)
	}
	if p.DurationS <= 0 {
		return fmt.Errorf("duration must be positive, got %d", p.DurationS)
	}
	if p.InitialVehicles < 0 || p.InitialVehicles > MaxVehicles {
		return fmt.Errorf("initial vehicles %d outside [0, %d]", p.InitialVehicles, MaxVehicles)
	}
	if p.InitialPedestrians < 0 || p.InitialPedestrians > MaxPedestrians {
		return fmt.Errorf("initial pedestrians %d outside [0, %d]", p.InitialPedestrians, MaxPedestrians)
	}
	if p.VehicleSpawnIntensity < 0 || p.PedestrianSpawnIntensity < 0 {
		return fmt.Errorf("spawn intensities must be non-negative")
	}
	if p.AccidentProbabilityFactor < 0 {
		return fmt.Errorf("accident probability factor must be non-negative, got %v", p.AccidentProbabilityFactor)
	}
	if p.NoAccidentChance < 0 || p.NoAccidentChance > 1 {
		return fmt.Errorf("no-accident chance %v outside [0, 1]", p.NoAccidentChance)
	}
	if p.BlockDurationS < 0 {
		return fmt.Errorf("block duration must be non-negative, got %d", p.BlockDurationS)
	}
	if p.CongestionThreshold < 0 || p.CongestionThreshold > 1 {
		return fmt.Errorf("congestion threshold %v outside [0, 1]", p.CongestionThreshold)
	}
	if p.MeanPatienceS < 0 {
		return fmt.Errorf("mean patience must be non-negative, got %v", p.MeanPatienceS)
	}
	for i, m := range p.TimeOfDayMultipliers {
		if m < 0 {
			return fmt.Errorf("time-of-day multiplier for hour %d is negative", i)
		}
	}
	return nil
}
