// Package telemetry produces shot and scale readings, either simulated or from the cloud dashboard.
package telemetry

import "espresso_rig/internal/models"

// Source is polled once per coordinator cycle, after the controller status was read.
type Source interface {
	// Notify hands the source the controller status of the current cycle.
	Notify(status models.DeviceStatus)
	// Snapshot returns the reading for the current cycle. It must not block on I/O.
	Snapshot() models.TelemetrySnapshot
	Name() string
}

// Stopper is implemented by sources that own a background loop.
type Stopper interface {
	Stop()
}

// Source names, reported by Name and exported as a metrics label.
const (
	NameSimulated = "simulated"
	NameCloud     = "cloud"
)
