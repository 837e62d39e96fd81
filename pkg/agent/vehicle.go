// Package agent models the simulated population: vehicles travelling along
// road segments and pedestrians occupying vertices. Speed updates are built
// on the flow model; all randomness comes from an explicit simrand source.
package agent

import (
	"math"

	"github.com/google/uuid"

	"github.com/gridroad/trafficd/pkg/flow"
	"github.com/gridroad/trafficd/pkg/simrand"
)

// VehicleType fixes a vehicle's base max speed, acceleration, and
// passenger-car-equivalent weight.
type VehicleType string

const (
	VehicleCar       VehicleType = "car"
	VehicleNoviceCar VehicleType = "novice_car"
	VehicleBus       VehicleType = "bus"
	VehicleTruck     VehicleType = "truck"
	VehicleSpecial   VehicleType = "special"
	VehicleBicycle   VehicleType = "bicycle"
)

// DriverStyle multiplies a vehicle's desired speed.
type DriverStyle string

const (
	StyleAggressive DriverStyle = "aggressive"
	StyleNormal     DriverStyle = "normal"
	StyleCautious   DriverStyle = "cautious"
)

// vehicleSpec holds the per-type physical constants.
type vehicleSpec struct {
	maxSpeedKmh float64
	accel       float64 // m/s^2
	pce         float64
}

var vehicleSpecs = map[VehicleType]vehicleSpec{
	VehicleCar:       {maxSpeedKmh: 120, accel: 2.5, pce: 1.0},
	VehicleNoviceCar: {maxSpeedKmh: 100, accel: 2.0, pce: 1.1},
	VehicleBus:       {maxSpeedKmh: 80, accel: 1.2, pce: 2.5},
	VehicleTruck:     {maxSpeedKmh: 90, accel: 1.0, pce: 3.0},
	VehicleSpecial:   {maxSpeedKmh: 100, accel: 1.8, pce: 1.8},
	VehicleBicycle:   {maxSpeedKmh: 25, accel: 0.8, pce: 0.5},
}

// PCE returns the passenger-car-equivalent weight of a vehicle type. Unknown
// types count as one passenger car.
func PCE(t VehicleType) float64 {
	if s, ok := vehicleSpecs[t]; ok {
		return s.pce
	}
	return 1.0
}

// MaxSpeed returns the base max speed (km/h) of a vehicle type.
func MaxSpeed(t VehicleType) float64 {
	if s, ok := vehicleSpecs[t]; ok {
		return s.maxSpeedKmh
	}
	return vehicleSpecs[VehicleCar].maxSpeedKmh
}

// Acceleration returns the nominal acceleration (m/s^2) of a vehicle type.
func Acceleration(t VehicleType) float64 {
	if s, ok := vehicleSpecs[t]; ok {
		return s.accel
	}
	return vehicleSpecs[VehicleCar].accel
}

// Reaction time draw: log-normal, clamped to a plausible human range.
const (
	reactionMu      = 0.0
	reactionSigma   = 0.35
	minReactionSecs = 0.3
	maxReactionSecs = 3.0
)

// Vehicle is one simulated vehicle. It is created on spawn, mutated every
// tick it exists, and removed from the active set once it falls off the
// network.
type Vehicle struct {
	ID    string      `json:"id"`
	Type  VehicleType `json:"type"`
	Style DriverStyle `json:"style"`

	EdgeID  string  `json:"edge_id"`
	OffsetM float64 `json:"offset_m"`

	SpeedKmh      float64 `json:"speed_kmh"`
	StyleFactor   float64 `json:"style_factor"`
	ReactionTimeS float64 `json:"reaction_time_s"`

	DelayHours   float64 `json:"delay_hours"`
	DistanceM    float64 `json:"distance_m"`
	TravelTimeS  float64 `json:"travel_time_s"`
	WaitingTimeS float64 `json:"waiting_time_s"`

	DestinationReached bool `json:"destination_reached"`
}

// NewVehicle mints a vehicle of the given type and style on the given edge.
// The reaction time and the driver-style speed multiplier are drawn once at
// creation: they are characteristics of the driver, not of the tick.
func NewVehicle(rnd *simrand.Source, t VehicleType, style DriverStyle, edgeID string) *Vehicle {
	reaction := rnd.LogNormal(reactionMu, reactionSigma)
	if reaction < minReactionSecs {
		reaction = minReactionSecs
	}
	if reaction > maxReactionSecs {
		reaction = maxReactionSecs
	}

	var factor float64
	switch style {
	case StyleAggressive:
		factor = rnd.Normal(1.15, 0.05)
	case StyleCautious:
		factor = rnd.Normal(0.85, 0.05)
	default:
		factor = rnd.Normal(1.0, 0.03)
	}
	if factor < 0.1 {
		factor = 0.1
	}

	return &Vehicle{
		ID:            uuid.NewString(),
		Type:          t,
		Style:         style,
		EdgeID:        edgeID,
		StyleFactor:   factor,
		ReactionTimeS: reaction,
	}
}

// UpdateSpeed advances the vehicle's speed one step of dt seconds against the
// given edge density and road speed limit, accruing delay against free flow.
func (v *Vehicle) UpdateSpeed(density, roadMaxKmh, dt float64) {
	desired := flow.VehicleDesiredSpeed(density, roadMaxKmh, MaxSpeed(v.Type)) * v.StyleFactor
	v.SpeedKmh = flow.VehicleSpeedStep(v.SpeedKmh, desired, Acceleration(v.Type), v.ReactionTimeS, dt)
	freeFlow := math.Min(MaxSpeed(v.Type), roadMaxKmh)
	v.DelayHours += flow.DelayHours(freeFlow, v.SpeedKmh, dt)
}

// Advance moves the vehicle along its edge for dt seconds and returns the new
// offset. Speed is km/h, offsets are meters.
func (v *Vehicle) Advance(dt float64) float64 {
	step := v.SpeedKmh * dt / 3.6
	v.OffsetM += step
	v.DistanceM += step
	v.TravelTimeS += dt
	return v.OffsetM
}

// Freeze zeroes the vehicle's speed and accrues dt seconds of waiting time.
// Used when the vehicle's edge is blocked or missing.
func (v *Vehicle) Freeze(dt float64) {
	v.SpeedKmh = 0
	v.WaitingTimeS += dt
	v.TravelTimeS += dt
}
