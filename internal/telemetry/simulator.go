package telemetry

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"espresso_rig/internal/models"
)

// Shot model constants.
const (
	peakFlowGPerS   = 2.6
	flowRampSeconds = 4.0
	decayFloor      = 0.2
	targetOvershoot = 1.1 // flow tapers as weight approaches 110% of target
	flowJitter      = 0.1
	pressureBaseBar = 2.0
	pressureSpanBar = 8.0
	pressureJitter  = 0.3

	idleFlowDecay     = 0.9
	idleWeightDecay   = 0.999
	idleWeightEpsilon = 0.05
	idlePressureDecay = 0.8

	initialBoilerC = 94.0
	initialGroupC  = 93.0
	boilerDriftC   = 0.02
	groupDriftC    = 0.015

	minStep = time.Millisecond
)

// SimulatedNote labels every simulated reading.
const SimulatedNote = "Simulated"

// SimOptions configures a SimulatedSource.
type SimOptions struct {
	TargetWeightG float64
	// Seed for the jitter source; 0 seeds from the clock.
	Seed uint64
	// Speed multiplies elapsed time fed into the model; values <= 0 mean 1.
	Speed float64
	// Now defaults to time.Now.
	Now func() time.Time
}

// SimulatedSource approximates a shot from paddle transitions and wall-clock deltas.
type SimulatedSource struct {
	target float64
	speed  float64
	now    func() time.Time

	mu        sync.Mutex
	rng       *rand.Rand
	active    bool
	shotStart time.Time
	lastTick  time.Time
	weight    float64
	flow      float64
	pressure  float64
	boilerC   float64
	groupC    float64
}

// NewSimulatedSource returns an idle simulator.
func NewSimulatedSource(opts SimOptions) *SimulatedSource {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	speed := opts.Speed
	if speed <= 0 {
		speed = 1
	}
	seed := opts.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &SimulatedSource{
		target:   opts.TargetWeightG,
		speed:    speed,
		now:      now,
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		lastTick: now(),
		boilerC:  initialBoilerC,
		groupC:   initialGroupC,
	}
}

func (s *SimulatedSource) Name() string { return NameSimulated }

// Notify starts a shot on a paddle close and ends it on a paddle open.
func (s *SimulatedSource) Notify(status models.DeviceStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case status.PaddleClosed() && !s.active:
		now := s.now()
		s.active = true
		s.shotStart = now
		s.lastTick = now
		s.weight = 0
		s.flow = 0
	case !status.PaddleClosed() && s.active:
		s.active = false
		s.flow = 0
	}
}

// Snapshot advances the model to now and returns a rounded reading.
func (s *SimulatedSource) Snapshot() models.TelemetrySnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.tick(now)

	snap := models.TelemetrySnapshot{
		WeightG:        math.Max(0, round(s.weight, 1)),
		FlowGPerS:      math.Max(0, round(s.flow, 2)),
		TargetWeightG:  s.target,
		PressureBar:    math.Max(0, round(s.pressure, 2)),
		BoilerTempC:    round(s.boilerC, 1),
		GroupTempC:     round(s.groupC, 1),
		BrewState:      models.BrewStateIdle,
		ScaleConnected: true,
		Notes:          SimulatedNote,
	}
	if s.active {
		snap.BrewState = models.BrewStateBrewing
		snap.ShotTimeMs = s.scaled(now.Sub(s.shotStart)).Milliseconds()
	}
	return snap
}

func (s *SimulatedSource) tick(now time.Time) {
	dt := max(minStep, now.Sub(s.lastTick))
	s.lastTick = now
	step := s.scaled(dt).Seconds()

	if s.active {
		elapsed := s.scaled(now.Sub(s.shotStart)).Seconds()
		ramp := math.Min(1, elapsed/flowRampSeconds)
		decay := math.Max(decayFloor, 1-s.weight/math.Max(1, s.target*targetOvershoot))

		s.flow = math.Max(0, peakFlowGPerS*ramp*decay+s.jitter(flowJitter))
		s.weight += s.flow * step
		s.pressure = pressureBaseBar + pressureSpanBar*ramp*decay + s.jitter(pressureJitter)
	} else {
		s.flow *= idleFlowDecay
		s.weight *= idleWeightDecay
		if s.weight < idleWeightEpsilon {
			s.weight = 0
		}
		s.pressure *= idlePressureDecay
	}

	s.boilerC += s.jitter(boilerDriftC)
	s.groupC += s.jitter(groupDriftC)
}

func (s *SimulatedSource) scaled(d time.Duration) time.Duration {
	return time.Duration(float64(d) * s.speed)
}

// jitter is uniform in [-amp, amp).
func (s *SimulatedSource) jitter(amp float64) float64 {
	return (s.rng.Float64()*2 - 1) * amp
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
