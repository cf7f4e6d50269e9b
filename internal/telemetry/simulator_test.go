package telemetry

import (
	"testing"
	"time"

	"espresso_rig/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is advanced by hand.
type fakeClock struct{ t time.Time }

func newFakeClock() *fakeClock { return &fakeClock{t: time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)} }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

var (
	paddleClosed = models.DeviceStatus{Paddle: 1}
	paddleOpen   = models.DeviceStatus{Paddle: 0}
)

func newTestSim(clock *fakeClock, speed float64) *SimulatedSource {
	return NewSimulatedSource(SimOptions{TargetWeightG: 36, Seed: 42, Speed: speed, Now: clock.Now})
}

func TestSimulated_IdleBeforeShot(t *testing.T) {
	clock := newFakeClock()
	sim := newTestSim(clock, 1)

	clock.Advance(200 * time.Millisecond)
	snap := sim.Snapshot()

	assert.Equal(t, models.BrewStateIdle, snap.BrewState)
	assert.Zero(t, snap.WeightG)
	assert.Zero(t, snap.ShotTimeMs)
	assert.Equal(t, 36.0, snap.TargetWeightG)
	assert.Equal(t, SimulatedNote, snap.Notes)
	assert.True(t, snap.ScaleConnected)
	assert.InDelta(t, 94.0, snap.BoilerTempC, 0.1)
	assert.InDelta(t, 93.0, snap.GroupTempC, 0.1)
}

func TestSimulated_ShotStartIsImmediate(t *testing.T) {
	clock := newFakeClock()
	sim := newTestSim(clock, 1)

	clock.Advance(5 * time.Second)
	sim.Notify(paddleOpen)
	sim.Notify(paddleClosed)
	snap := sim.Snapshot()

	assert.Equal(t, models.BrewStateBrewing, snap.BrewState)
	assert.Zero(t, snap.WeightG)
	assert.Less(t, snap.ShotTimeMs, int64(10))
}

func TestSimulated_WeightNonDecreasingDuringShot(t *testing.T) {
	clock := newFakeClock()
	sim := newTestSim(clock, 1)
	sim.Notify(paddleClosed)

	prev := 0.0
	steps := []time.Duration{time.Millisecond, 50 * time.Millisecond, 200 * time.Millisecond, 1500 * time.Millisecond}
	for i := 0; i < 200; i++ {
		clock.Advance(steps[i%len(steps)])
		sim.Notify(paddleClosed)
		snap := sim.Snapshot()
		require.GreaterOrEqual(t, snap.WeightG, prev, "tick %d", i)
		require.GreaterOrEqual(t, snap.FlowGPerS, 0.0)
		require.GreaterOrEqual(t, snap.PressureBar, 0.0)
		prev = snap.WeightG
	}
	assert.Greater(t, prev, 30.0)
}

func TestSimulated_IdleDecayAfterShot(t *testing.T) {
	clock := newFakeClock()
	sim := newTestSim(clock, 1)
	sim.Notify(paddleClosed)
	for i := 0; i < 50; i++ {
		clock.Advance(200 * time.Millisecond)
		sim.Snapshot()
	}

	sim.Notify(paddleOpen)
	last := sim.Snapshot()
	assert.Equal(t, models.BrewStateIdle, last.BrewState)
	assert.Zero(t, last.ShotTimeMs)
	assert.Zero(t, last.FlowGPerS)

	for i := 0; i < 100; i++ {
		clock.Advance(200 * time.Millisecond)
		snap := sim.Snapshot()
		require.LessOrEqual(t, snap.WeightG, last.WeightG)
		require.LessOrEqual(t, snap.FlowGPerS, last.FlowGPerS)
		require.LessOrEqual(t, snap.PressureBar, last.PressureBar)
		last = snap
	}
}

func TestSimulated_IdleWeightClampsToZero(t *testing.T) {
	clock := newFakeClock()
	sim := newTestSim(clock, 1)
	sim.weight = 0.06

	clock.Advance(time.Millisecond)
	assert.InDelta(t, 0.1, sim.Snapshot().WeightG, 1e-9)
	sim.weight = 0.05
	clock.Advance(time.Millisecond)
	assert.Zero(t, sim.Snapshot().WeightG)
}

func TestSimulated_SpeedScalesShotTime(t *testing.T) {
	clock := newFakeClock()
	sim := newTestSim(clock, 4)
	sim.Notify(paddleClosed)

	clock.Advance(time.Second)
	assert.Equal(t, int64(4000), sim.Snapshot().ShotTimeMs)
}

func TestSimulated_SameSeedSameStream(t *testing.T) {
	run := func() []models.TelemetrySnapshot {
		clock := newFakeClock()
		sim := newTestSim(clock, 1)
		sim.Notify(paddleClosed)
		var out []models.TelemetrySnapshot
		for i := 0; i < 20; i++ {
			clock.Advance(200 * time.Millisecond)
			out = append(out, sim.Snapshot())
		}
		return out
	}
	assert.Equal(t, run(), run())
}

func TestSimulated_Name(t *testing.T) {
	assert.Equal(t, NameSimulated, newTestSim(newFakeClock(), 1).Name())
}
