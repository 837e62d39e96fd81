package agent

import (
	"github.com/google/uuid"

	"github.com/gridroad/trafficd/pkg/simrand"
)

// PedestrianType fixes a pedestrian's base walking speed.
type PedestrianType string

const (
	PedAdult    PedestrianType = "adult"
	PedChild    PedestrianType = "child"
	PedElderly  PedestrianType = "elderly"
	PedDisabled PedestrianType = "disabled"
)

var pedestrianBaseSpeed = map[PedestrianType]float64{
	PedAdult:    1.4,
	PedChild:    1.1,
	PedElderly:  0.9,
	PedDisabled: 0.6,
}

// BaseSpeed returns the base walking speed (m/s) of a pedestrian type.
func BaseSpeed(t PedestrianType) float64 {
	if s, ok := pedestrianBaseSpeed[t]; ok {
		return s
	}
	return pedestrianBaseSpeed[PedAdult]
}

// Pedestrian is one simulated pedestrian. Pedestrians occupy vertices, not
// edge offsets; movement is vertex hopping gated by crosswalk safety.
type Pedestrian struct {
	ID   string         `json:"id"`
	Type PedestrianType `json:"type"`

	VertexID string `json:"vertex_id"`

	// PanicLevel is in [0, 1] and never decreases except on a successful
	// crossing.
	PanicLevel   float64 `json:"panic_level"`
	WaitingTimeS float64 `json:"waiting_time_s"`
	PatienceS    float64 `json:"patience_s"`
	IsMoving     bool    `json:"is_moving"`

	DestinationReached bool `json:"destination_reached"`
}

// NewPedestrian mints a pedestrian at the given vertex. Patience is an
// exponential draw around the configured mean.
func NewPedestrian(rnd *simrand.Source, t PedestrianType, vertexID string, meanPatienceS float64) *Pedestrian {
	return &Pedestrian{
		ID:        uuid.NewString(),
		Type:      t,
		VertexID:  vertexID,
		PatienceS: rnd.Exp(meanPatienceS),
	}
}

// Wait accrues dt seconds of waiting and, once waiting exceeds patience,
// raises panic. Panic is monotone non-decreasing here.
func (p *Pedestrian) Wait(dt float64) {
	p.IsMoving = false
	p.WaitingTimeS += dt
	if p.WaitingTimeS > p.PatienceS {
		p.PanicLevel += 0.05
		if p.PanicLevel > 1 {
			p.PanicLevel = 1
		}
	}
}

// Crossed records a successful crossing to the given vertex: waiting resets
// and panic relaxes. This is the only transition allowed to lower panic.
func (p *Pedestrian) Crossed(toVertexID string) {
	p.VertexID = toVertexID
	p.IsMoving = true
	p.WaitingTimeS = 0
	p.PanicLevel *= 0.5
}
