package telemetry

import (
	"errors"

	"espresso_rig/internal/config"
	"espresso_rig/internal/logger"
)

// ErrMissingCredentials is logged when cloud mode is on but a credential field is empty.
var ErrMissingCredentials = errors.New("cloud enabled but credentials incomplete")

// Select builds the simulator and, when cloud mode is enabled with complete and valid
// credentials, wraps it in a RemoteSource. Any failure falls back to the simulator.
func Select(cfg *config.Config, log *logger.Logger) Source {
	log = logger.OrNop(log)
	sim := NewSimulatedSource(SimOptions{
		TargetWeightG: cfg.Shot.TargetWeightG,
		Seed:          cfg.Shot.Seed,
		Speed:         cfg.Shot.Speed,
	})

	lm := cfg.LaMarzocco
	if !lm.EnableCloud {
		return sim
	}
	if !lm.HasCredentials() {
		log.Warnw("cloud_source_unavailable", "error", ErrMissingCredentials, "fallback", NameSimulated)
		return sim
	}
	remote, err := NewRemoteSource(lm, sim, log)
	if err != nil {
		log.Warnw("cloud_source_unavailable", "error", err, "fallback", NameSimulated)
		return sim
	}
	return remote
}
