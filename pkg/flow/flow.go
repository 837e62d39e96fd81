// Package flow holds the macroscopic flow model: pure functions mapping edge
// occupancy to density, congestion level, and agent speed. Incident
// probability and routing both read these outputs, so the thresholds and
// exponents here are load-bearing constants, not tunables.
package flow

import (
	"math"

	"github.com/gridroad/trafficd/pkg/network"
	"github.com/gridroad/trafficd/pkg/simrand"
)

// Vehicle flow constants. Densities are in passenger-car equivalents per km
// per lane, speeds in km/h.
const (
	// CongestionCriticalDensity is where congestion starts ramping from 0.
	CongestionCriticalDensity = 0.7
	// JamDensity is where congestion saturates at 1.
	JamDensity = 1.8
	// SpeedCriticalDensity is where vehicle desired speed starts degrading.
	SpeedCriticalDensity = 0.25
	// speedDegradeExponent shapes the power-law speed drop above critical.
	speedDegradeExponent = 1.5
	// minSpeedFactor is the floor of the free-flow multiplier under jam.
	minSpeedFactor = 0.05
	// BrakingFactor scales nominal acceleration when decelerating.
	BrakingFactor = 2.5
)

// Pedestrian flow constants. Densities are pedestrians per cell, speeds m/s.
const (
	PedCriticalDensity  = 3.5
	PedJamDensity       = 5.0
	pedDegradeExponent  = 1.8
	pedJamSpeedFraction = 0.1
)

// Density computes the passenger-car-equivalent density of an edge: the sum
// of per-vehicle PCE weights divided by length in km and by lane count. An
// edge with no vehicles has density 0. As a documented side effect the edge's
// stored Density and Congestion are updated; callers rely on reading them
// back within the same tick.
func Density(edge *network.RoadSegment, pceOf func(vehicleID string) float64) float64 {
	d := 0.0
	if len(edge.Vehicles) > 0 {
		pce := 0.0
		for id := range edge.Vehicles {
			pce += pceOf(id)
		}
		d = pce / (edge.LengthM / 1000.0) / float64(edge.Lanes)
	}
	edge.Density = d
	edge.Congestion = CongestionLevel(d)
	return d
}

// CongestionLevel maps density to a congestion level in [0, 1]: zero at or
// below the critical density, then a linear ramp saturating at jam density.
func CongestionLevel(density float64) float64 {
	if density <= CongestionCriticalDensity {
		return 0
	}
	return math.Min(1, (density-CongestionCriticalDensity)/(JamDensity-CongestionCriticalDensity))
}

// VehicleDesiredSpeed returns the density-limited desired speed in km/h
// before the driver-style multiplier is applied. Below the critical density
// the vehicle runs free-flow at min(vehicle max, road max); above it the
// free-flow speed degrades by a power law, floored at 5% of free flow.
func VehicleDesiredSpeed(density, roadMaxKmh, vehicleMaxKmh float64) float64 {
	freeFlow := math.Min(vehicleMaxKmh, roadMaxKmh)
	if density <= SpeedCriticalDensity {
		return freeFlow
	}
	ratio := (density - SpeedCriticalDensity) / (JamDensity - SpeedCriticalDensity)
	factor := math.Max(minSpeedFactor, 1-math.Pow(ratio, speedDegradeExponent))
	return freeFlow * factor
}

// VehicleSpeedStep moves the current speed toward the desired speed over one
// time step of dt seconds. The approach rate is governed by the vehicle's
// acceleration and reaction time; deceleration is BrakingFactor times faster
// than acceleration. The result is clamped to [0, desired].
func VehicleSpeedStep(currentKmh, desiredKmh, accel, reactionTime, dt float64) float64 {
	effectiveAccel := accel
	if desiredKmh < currentKmh {
		effectiveAccel = accel * BrakingFactor
	}
	if effectiveAccel <= 0 || reactionTime <= 0 {
		return math.Max(0, math.Min(desiredKmh, currentKmh))
	}
	next := currentKmh + (desiredKmh-currentKmh)*dt/(effectiveAccel*reactionTime)
	if next < 0 {
		return 0
	}
	if next > desiredKmh {
		return desiredKmh
	}
	return next
}

// DelayHours accrues the vehicle-hours lost in one step of dt seconds when
// travelling below free-flow speed.
func DelayHours(freeFlowKmh, currentKmh, dt float64) float64 {
	return math.Max(0, freeFlowKmh-currentKmh) * dt / 3600.0
}

// PedestrianDesiredSpeed returns a pedestrian's desired walking speed in m/s
// given the local vertex density, the type base speed, and the panic level.
// Below the critical local density the speed is base times a small normal
// perturbation; above it the speed ramps down by a power law toward 10% of
// base at jam density. Panic amplifies speed through a logistic term. The
// result is clamped to [0.1×base, 1.5×base].
func PedestrianDesiredSpeed(localDensity, baseSpeed, panicLevel float64, rnd *simrand.Source) float64 {
	var speed float64
	if localDensity <= PedCriticalDensity {
		speed = baseSpeed * rnd.Normal(0.95, 0.08)
	} else {
		ratio := (localDensity - PedCriticalDensity) / (PedJamDensity - PedCriticalDensity)
		if ratio > 1 {
			ratio = 1
		}
		factor := 1 - (1-pedJamSpeedFraction)*math.Pow(ratio, pedDegradeExponent)
		speed = baseSpeed * factor
	}

	panicBoost := 1 + 0.6/(1+math.Exp(-10*(panicLevel-0.5)))
	speed *= panicBoost

	lo, hi := 0.1*baseSpeed, 1.5*baseSpeed
	if speed < lo {
		return lo
	}
	if speed > hi {
		return hi
	}
	return speed
}
