package service

import (
	"context"
	"sync"
	"time"

	"espresso_rig/internal/config"
	"espresso_rig/internal/logger"
	"espresso_rig/internal/models"
	"espresso_rig/internal/telemetry"
)

// DeviceClient is the controller side of a poll cycle. FetchStatus never fails;
// errors are reported in DeviceStatus.LastError.
type DeviceClient interface {
	FetchStatus(ctx context.Context) models.DeviceStatus
	SendOverride(ctx context.Context, value string)
}

// CycleObserver is told about every published state.
type CycleObserver interface {
	ObserveCycle(took time.Duration, st models.CombinedState)
}

// CoordinatorOptions tunes a Coordinator.
type CoordinatorOptions struct {
	// Interval between cycles, floored at config.MinRefreshInterval.
	Interval time.Duration
	// Initial is published until the first cycle completes, e.g. a restored checkpoint.
	Initial  *models.CombinedState
	Observer CycleObserver
	Now      func() time.Time
}

// Coordinator polls the controller and the telemetry source on a fixed cadence and
// owns the single published CombinedState.
type Coordinator struct {
	device   DeviceClient
	source   telemetry.Source
	log      *logger.Logger
	interval time.Duration
	observer CycleObserver
	now      func() time.Time

	mu    sync.RWMutex
	state models.CombinedState

	// cycleMu serializes cycles so Run and RefreshOnce never interleave device reads.
	cycleMu     sync.Mutex
	deviceError bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewCoordinator wires a coordinator; call Run to start polling.
func NewCoordinator(device DeviceClient, source telemetry.Source, log *logger.Logger, opts CoordinatorOptions) *Coordinator {
	interval := opts.Interval
	if interval < config.MinRefreshInterval {
		interval = config.MinRefreshInterval
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	initial := models.CombinedState{
		Device: models.DefaultDeviceStatus(),
		Shot:   models.TelemetrySnapshot{BrewState: models.BrewStateIdle},
	}
	if opts.Initial != nil {
		initial = opts.Initial.Clone()
	}

	return &Coordinator{
		device:   device,
		source:   source,
		log:      logger.OrNop(log),
		interval: interval,
		observer: opts.Observer,
		now:      now,
		state:    initial,
		stopCh:   make(chan struct{}),
	}
}

// Interval is the effective cadence after flooring.
func (c *Coordinator) Interval() time.Duration { return c.interval }

// SourceName names the active telemetry source.
func (c *Coordinator) SourceName() string { return c.source.Name() }

// Run polls until ctx is canceled or Stop is called. The first cycle runs immediately.
func (c *Coordinator) Run(ctx context.Context) {
	c.log.Infow("coordinator_started", "interval", c.interval.String(), "source", c.source.Name())
	defer c.log.Infow("coordinator_stopped")

	t := time.NewTicker(c.interval)
	defer t.Stop()
	for {
		if c.stopped(ctx) {
			return
		}
		c.RefreshOnce(ctx)

		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-t.C:
		}
	}
}

func (c *Coordinator) stopped(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-c.stopCh:
		return true
	default:
		return false
	}
}

// RefreshOnce runs one cycle: device fetch, notify, snapshot, publish. It returns the published state.
func (c *Coordinator) RefreshOnce(ctx context.Context) models.CombinedState {
	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()

	start := time.Now()
	status := c.device.FetchStatus(ctx)
	c.source.Notify(status)
	shot := c.source.Snapshot()

	next := models.CombinedState{
		Timestamp: c.now(),
		Device:    status,
		Shot:      shot,
	}
	c.publish(next)
	c.logTransition(status)

	if c.observer != nil {
		c.observer.ObserveCycle(time.Since(start), next)
	}
	return next.Clone()
}

func (c *Coordinator) publish(st models.CombinedState) {
	c.mu.Lock()
	c.state = st
	c.mu.Unlock()
}

// logTransition logs controller errors once when they start and once when they clear.
func (c *Coordinator) logTransition(st models.DeviceStatus) {
	failing := st.LastError != ""
	switch {
	case failing && !c.deviceError:
		c.log.Warnw("device_fetch_failed", "error", st.LastError)
	case !failing && c.deviceError:
		c.log.Infow("device_fetch_recovered", "mode", st.Mode)
	}
	c.deviceError = failing
}

// Latest returns a copy of the most recently published state. It never waits on I/O.
func (c *Coordinator) Latest() models.CombinedState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Clone()
}

// Stop ends Run after its current cycle and stops the telemetry source's own loop, if any.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		if s, ok := c.source.(telemetry.Stopper); ok {
			s.Stop()
		}
	})
}

// SendOverride relays an override command to the controller.
func (c *Coordinator) SendOverride(ctx context.Context, value string) {
	c.device.SendOverride(ctx, value)
}
