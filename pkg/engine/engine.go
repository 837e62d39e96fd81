// Package engine drives the simulation: it owns the session registry, the
// per-session state machine, and the tick loop that advances agents, lights,
// incidents, and metrics over a road network.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gridroad/trafficd/pkg/agent"
	"github.com/gridroad/trafficd/pkg/flow"
	"github.com/gridroad/trafficd/pkg/incident"
	"github.com/gridroad/trafficd/pkg/network"
	"github.com/gridroad/trafficd/pkg/routing"
	"github.com/gridroad/trafficd/pkg/simrand"
	"github.com/gridroad/trafficd/pkg/store"
)

// leaseTTL bounds how long a dead engine process can hold a session.
const leaseTTL = 30 * time.Second

// handle pairs a session with the mutex enforcing its single-writer tick
// discipline and the cancellation of its current run loop, if any.
type handle struct {
	mu     sync.Mutex
	sess   *Session
	cancel context.CancelFunc
}

// Engine is the simulation engine. All mutable session state lives behind
// per-session handles; repository calls are fallible I/O at the boundary.
type Engine struct {
	networks store.NetworkRepository
	sessions store.SessionRepository
	leases   store.LeaseStore
	holderID string

	// tickInterval overrides wall-clock pacing of the run loop. Zero means
	// one tick per TimeStepS wall seconds (real-time simulation).
	tickInterval time.Duration

	notifier

	mu     sync.RWMutex
	active map[string]*handle
}

// Option configures an Engine.
type Option func(*Engine)

// WithLeaseStore makes the engine guard session ownership through leases.
func WithLeaseStore(ls store.LeaseStore) Option {
	return func(e *Engine) { e.leases = ls }
}

// WithTickInterval decouples the run loop's pacing from the simulated time
// step, e.g. to run faster than real time.
func WithTickInterval(d time.Duration) Option {
	return func(e *Engine) { e.tickInterval = d }
}

// NewEngine builds an engine over the given repositories.
func NewEngine(networks store.NetworkRepository, sessions store.SessionRepository, opts ...Option) *Engine {
	e := &Engine{
		networks: networks,
		sessions: sessions,
		holderID: fmt.Sprintf("engine-%s", uuid.NewString()[:8]),
		active:   make(map[string]*handle),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateSession loads the network, builds a session in Stopped state with the
// clock at zero, runs initial agent seeding, and persists the result.
func (e *Engine) CreateSession(ctx context.Context, name, networkID string, params Params) (*Session, error) {
	if name == "" {
		return nil, errors.New("session name must not be empty")
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}

	net, err := e.networks.GetNetwork(ctx, networkID)
	if err != nil {
		return nil, fmt.Errorf("network %s: %w", networkID, err)
	}
	if err := net.Validate(); err != nil {
		return nil, fmt.Errorf("network %s invalid: %w", networkID, err)
	}

	if params.Seed == 0 {
		params.Seed = uint64(time.Now().UnixNano())
	}

	s := &Session{
		ID:        uuid.NewString(),
		Name:      name,
		NetworkID: networkID,
		Net:       net,
		Params:    params,
		WallStart: time.Now().UTC(),
		State:     StateStopped,
		rnd:       simrand.New(params.Seed),
	}

	for i := 0; i < params.InitialVehicles; i++ {
		e.spawnVehicle(s)
	}
	for i := 0; i < params.InitialPedestrians; i++ {
		e.spawnPedestrian(s)
	}

	if err := e.persist(ctx, s); err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.active[s.ID] = &handle{sess: s}
	e.mu.Unlock()
	return s, nil
}

// resolve returns the in-memory handle for a session, loading it from the
// repositories if this engine instance has not seen it yet.
func (e *Engine) resolve(ctx context.Context, sessionID string) (*handle, error) {
	e.mu.RLock()
	h, ok := e.active[sessionID]
	e.mu.RUnlock()
	if ok {
		return h, nil
	}

	rec, err := e.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	net, err := e.networks.GetNetwork(ctx, rec.NetworkID)
	if err != nil {
		return nil, fmt.Errorf("network %s for session %s: %w", rec.NetworkID, sessionID, err)
	}
	sess, err := sessionFromRecord(rec, net)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if existing, ok := e.active[sessionID]; ok {
		return existing, nil
	}
	h = &handle{sess: sess}
	e.active[sessionID] = h
	return h, nil
}

// Session returns the in-memory session for inspection, or nil.
func (e *Engine) Session(sessionID string) *Session {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if h, ok := e.active[sessionID]; ok {
		return h.sess
	}
	return nil
}

// Start moves a Stopped session to Running and launches its run loop. It
// returns false when the session cannot be resolved, is not Stopped, or its
// ownership lease cannot be acquired; these are expected outcomes of racing
// callers, not errors.
func (e *Engine) Start(ctx context.Context, sessionID string) bool {
	h, err := e.resolve(ctx, sessionID)
	if err != nil {
		log.Printf("start %s: %v", sessionID, err)
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sess.State != StateStopped {
		return false
	}
	if !e.acquireLease(ctx, sessionID) {
		return false
	}

	e.transitionLocked(ctx, h, StateRunning)
	e.startLoopLocked(h)
	return true
}

// Pause moves a Running session to Paused. A tick in progress completes
// before the transition takes effect.
func (e *Engine) Pause(ctx context.Context, sessionID string) bool {
	e.mu.RLock()
	h, ok := e.active[sessionID]
	e.mu.RUnlock()
	if !ok {
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sess.State != StateRunning {
		return false
	}
	e.transitionLocked(ctx, h, StatePaused)
	e.cancelLoopLocked(h)
	return true
}

// Resume moves a Paused session back to Running under a fresh run loop with
// a fresh cancellation signal; a stale signal from a prior loop cannot touch
// the new one.
func (e *Engine) Resume(ctx context.Context, sessionID string) bool {
	h, err := e.resolve(ctx, sessionID)
	if err != nil {
		log.Printf("resume %s: %v", sessionID, err)
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sess.State != StatePaused {
		return false
	}
	if !e.acquireLease(ctx, sessionID) {
		return false
	}
	e.transitionLocked(ctx, h, StateRunning)
	e.startLoopLocked(h)
	return true
}

// Stop halts a session from any state, sets its end time, and persists it.
// Stopping is idempotent: it succeeds whenever the session exists.
func (e *Engine) Stop(ctx context.Context, sessionID string) bool {
	h, err := e.resolve(ctx, sessionID)
	if err != nil {
		log.Printf("stop %s: %v", sessionID, err)
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sess.State != StateStopped {
		now := time.Now().UTC()
		h.sess.WallEnd = &now
		e.transitionLocked(ctx, h, StateStopped)
	}
	e.cancelLoopLocked(h)
	e.releaseLease(ctx, sessionID)
	return true
}

// Step executes one synchronous tick under the session's single-writer lock.
// Unlike the loop, it propagates tick and persistence failures to the caller.
func (e *Engine) Step(ctx context.Context, sessionID string) error {
	h, err := e.resolve(ctx, sessionID)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return e.performStep(ctx, h)
}

// transitionLocked flips the session state and notifies subscribers. The
// caller holds h.mu. Persistence failures are logged, never fatal to the
// in-memory state.
func (e *Engine) transitionLocked(ctx context.Context, h *handle, next State) {
	prev := h.sess.State
	h.sess.State = next
	if err := e.persist(ctx, h.sess); err != nil {
		log.Printf("persist session %s on %s->%s: %v", h.sess.ID, prev, next, err)
	}
	e.publishStateChange(StateChange{
		SessionID: h.sess.ID,
		Previous:  prev,
		New:       next,
		At:        time.Now().UTC(),
	})
}

func (e *Engine) startLoopLocked(h *handle) {
	loopCtx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go e.runLoop(loopCtx, h)
}

func (e *Engine) cancelLoopLocked(h *handle) {
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

func (e *Engine) acquireLease(ctx context.Context, sessionID string) bool {
	if e.leases == nil {
		return true
	}
	ok, err := e.leases.Acquire(ctx, "session:"+sessionID, e.holderID, leaseTTL)
	if err != nil {
		log.Printf("lease acquire for session %s: %v", sessionID, err)
		return false
	}
	if !ok {
		log.Printf("session %s is owned by another engine instance", sessionID)
	}
	return ok
}

func (e *Engine) releaseLease(ctx context.Context, sessionID string) {
	if e.leases == nil {
		return
	}
	if err := e.leases.Release(ctx, "session:"+sessionID, e.holderID); err != nil {
		log.Printf("lease release for session %s: %v", sessionID, err)
	}
}

func (e *Engine) renewLease(ctx context.Context, sessionID string) {
	if e.leases == nil {
		return
	}
	if err := e.leases.Renew(ctx, "session:"+sessionID, e.holderID, leaseTTL); err != nil {
		log.Printf("lease renew for session %s: %v", sessionID, err)
	}
}

// persist saves the session snapshot. In-memory state is never touched on
// failure.
func (e *Engine) persist(ctx context.Context, s *Session) error {
	rec, err := s.toRecord()
	if err != nil {
		return err
	}
	if err := e.sessions.SaveSession(ctx, rec); err != nil {
		return fmt.Errorf("failed to save session %s: %w", s.ID, err)
	}
	return nil
}

// runLoop is the cooperative background task driving a Running session. It
// polls wall-clock elapsed time against the pacing interval, invokes a tick
// when due, and otherwise yields. Cancellation is honored between ticks,
// never mid-tick; a failing tick backs the loop off rather than killing it.
func (e *Engine) runLoop(ctx context.Context, h *handle) {
	const (
		pollSleep    = 20 * time.Millisecond
		failureSleep = 1 * time.Second
	)

	interval := e.tickInterval
	if interval <= 0 {
		h.mu.Lock()
		interval = time.Duration(h.sess.Params.TimeStepS) * time.Second
		h.mu.Unlock()
	}

	log.Printf("run loop started for session %s (interval %s)", h.sess.ID, interval)
	last := time.Now()

	for {
		if ctx.Err() != nil {
			log.Printf("run loop for session %s cancelled", h.sess.ID)
			return
		}
		if time.Since(last) < interval {
			time.Sleep(pollSleep)
			continue
		}

		h.mu.Lock()
		if h.sess.State != StateRunning {
			h.mu.Unlock()
			log.Printf("run loop for session %s exiting in state %s", h.sess.ID, h.sess.State)
			return
		}
		err := e.performStep(ctx, h)
		h.mu.Unlock()
		last = time.Now()

		if err != nil {
			log.Printf("tick failed for session %s: %v", h.sess.ID, err)
			time.Sleep(failureSleep)
			continue
		}
		e.renewLease(ctx, h.sess.ID)
	}
}

// CurrentMetrics computes a metric snapshot from the session's live state.
func (e *Engine) CurrentMetrics(ctx context.Context, sessionID string) (*store.Metric, error) {
	h, err := e.resolve(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return e.collectMetric(h.sess), nil
}

// MetricsHistory returns the persisted per-tick metric history in simulation
// time order.
func (e *Engine) MetricsHistory(ctx context.Context, sessionID string) ([]*store.Metric, error) {
	return e.sessions.MetricHistory(ctx, sessionID)
}

// Incidents returns a copy of the session's incident log.
func (e *Engine) Incidents(ctx context.Context, sessionID string) ([]*incident.Incident, error) {
	h, err := e.resolve(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*incident.Incident, len(h.sess.Incidents))
	copy(out, h.sess.Incidents)
	return out, nil
}

// ResolveIncident deactivates an incident early, unblocking its edge. Returns
// false when the session or incident is unknown or already inactive.
func (e *Engine) ResolveIncident(ctx context.Context, sessionID, incidentID string) bool {
	h, err := e.resolve(ctx, sessionID)
	if err != nil {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, inc := range h.sess.Incidents {
		if inc.ID == incidentID && inc.IsActive {
			incident.Resolve(inc, h.sess.Net)
			return true
		}
	}
	return false
}

// AddVehicle spawns one vehicle of the given type and style onto a random
// unblocked edge.
func (e *Engine) AddVehicle(ctx context.Context, sessionID string, t agent.VehicleType, style agent.DriverStyle) (*agent.Vehicle, error) {
	h, err := e.resolve(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.sess
	if len(s.Vehicles) >= MaxVehicles {
		return nil, fmt.Errorf("session %s is at the %d-vehicle bound", sessionID, MaxVehicles)
	}
	edge, ok := pickSpawnEdge(s)
	if !ok {
		return nil, fmt.Errorf("session %s has no spawnable edge", sessionID)
	}
	v := agent.NewVehicle(s.rnd, t, style, edge.ID)
	edge.AddVehicle(v.ID)
	s.Vehicles = append(s.Vehicles, v)
	return v, nil
}

// AddPedestrian spawns one pedestrian of the given type onto a random vertex.
func (e *Engine) AddPedestrian(ctx context.Context, sessionID string, t agent.PedestrianType) (*agent.Pedestrian, error) {
	h, err := e.resolve(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.sess
	if len(s.Pedestrians) >= MaxPedestrians {
		return nil, fmt.Errorf("session %s is at the %d-pedestrian bound", sessionID, MaxPedestrians)
	}
	vert, ok := simrand.Pick(s.rnd, s.Net.Vertices)
	if !ok {
		return nil, fmt.Errorf("session %s network has no vertices", sessionID)
	}
	p := agent.NewPedestrian(s.rnd, t, vert.ID, s.Params.MeanPatienceS)
	s.Pedestrians = append(s.Pedestrians, p)
	return p, nil
}

// EdgeDensity recomputes and returns the current density of an edge.
func (e *Engine) EdgeDensity(ctx context.Context, sessionID, edgeID string) (float64, error) {
	h, err := e.resolve(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	edge, ok := h.sess.Net.Edge(edgeID)
	if !ok {
		return 0, fmt.Errorf("edge %s: %w", edgeID, store.ErrNotFound)
	}
	return flow.Density(edge, pceLookup(h.sess)), nil
}

// NetworkCongestion returns the length-weighted mean congestion level over
// all edges of the session's network.
func (e *Engine) NetworkCongestion(ctx context.Context, sessionID string) (float64, error) {
	h, err := e.resolve(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return networkCongestion(h.sess.Net), nil
}

// FindOptimalRoute answers a congestion-aware shortest path query under the
// network's live congestion. Routes are recomputed on every call.
func (e *Engine) FindOptimalRoute(ctx context.Context, sessionID, fromVertexID, toVertexID string, t agent.VehicleType) ([]*network.RoadSegment, error) {
	h, err := e.resolve(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return routing.FindRoute(h.sess.Net, fromVertexID, toVertexID, t), nil
}

func networkCongestion(net *network.Network) float64 {
	totalLen, weighted := 0.0, 0.0
	for _, e := range net.Edges {
		totalLen += e.LengthM
		weighted += e.Congestion * e.LengthM
	}
	if totalLen == 0 {
		return 0
	}
	return weighted / totalLen
}
