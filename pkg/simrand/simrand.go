// Package simrand provides the single source of randomness for a simulation
// run. Every stochastic decision (spawn selection, driver style, incident
// rolls) draws from one seeded Source, so a fixed seed reproduces an entire
// run, incident timing included.
package simrand

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// Source wraps a seeded PRNG and the distributions the simulation draws from.
type Source struct {
	rng *rand.Rand
	src rand.Source
}

// New returns a Source seeded with the given value.
func New(seed uint64) *Source {
	src := rand.NewPCG(seed, seed)
	return &Source{
		rng: rand.New(src),
		src: src,
	}
}

// Float64 returns a uniform draw in [0, 1).
func (s *Source) Float64() float64 {
	return s.rng.Float64()
}

// IntN returns a uniform draw in [0, n).
func (s *Source) IntN(n int) int {
	return s.rng.IntN(n)
}

// Normal returns a draw from N(mean, sigma).
func (s *Source) Normal(mean, sigma float64) float64 {
	return distuv.Normal{Mu: mean, Sigma: sigma, Src: s.src}.Rand()
}

// LogNormal returns a draw from LogNormal(mu, sigma).
func (s *Source) LogNormal(mu, sigma float64) float64 {
	return distuv.LogNormal{Mu: mu, Sigma: sigma, Src: s.src}.Rand()
}

// Exp returns a draw from an exponential distribution with the given mean.
func (s *Source) Exp(mean float64) float64 {
	if mean <= 0 {
		return 0
	}
	return distuv.Exponential{Rate: 1 / mean, Src: s.src}.Rand()
}

// Weighted is one entry of an ordered weight table. Order matters: selection
// subtracts weights in entry order, so callers define the table as a slice,
// not a map.
type Weighted[T any] struct {
	Value  T       `json:"value"`
	Weight float64 `json:"weight"`
}

// WeightedChoice normalizes the table implicitly by drawing uniformly in
// [0, totalWeight) and subtracting weights in entry order until the remainder
// goes non-positive. Weights need not sum to 1. If floating error leaves the
// remainder positive after the last entry, the first entry wins. Entries with
// non-positive weight are skipped. The second return is false only for an
// empty or all-non-positive table.
func WeightedChoice[T any](s *Source, entries []Weighted[T]) (T, bool) {
	var zero T
	total := 0.0
	for _, e := range entries {
		if e.Weight > 0 {
			total += e.Weight
		}
	}
	if total <= 0 {
		return zero, false
	}

	r := s.Float64() * total
	first := -1
	for i, e := range entries {
		if e.Weight <= 0 {
			continue
		}
		if first < 0 {
			first = i
		}
		r -= e.Weight
		if r <= 0 {
			return e.Value, true
		}
	}
	return entries[first].Value, true
}

// Pick returns a uniformly chosen element of the slice, or false if empty.
func Pick[T any](s *Source, items []T) (T, bool) {
	var zero T
	if len(items) == 0 {
		return zero, false
	}
	return items[s.IntN(len(items))], true
}
