package service

import (
	"context"
	"errors"
	"strings"

	"espresso_rig/internal/logger"
	"espresso_rig/internal/models"
)

// ErrInvalidOverride is returned for values other than 1, 0 or off.
var ErrInvalidOverride = errors.New("invalid override: must be 1, 0 or off")

// OverrideSender relays an override to the controller; delivery is not confirmed.
type OverrideSender interface {
	SendOverride(ctx context.Context, value string)
}

// ControlService validates override commands before they reach the controller.
type ControlService struct {
	sender OverrideSender
	log    *logger.Logger
}

func NewControlService(sender OverrideSender, log *logger.Logger) *ControlService {
	return &ControlService{sender: sender, log: logger.OrNop(log)}
}

// SetOverride sends value after normalizing it ("on" is accepted as "1").
func (s *ControlService) SetOverride(ctx context.Context, value string) (string, error) {
	v, err := NormalizeOverride(value)
	if err != nil {
		return "", err
	}
	s.sender.SendOverride(ctx, v)
	s.log.Infow("override_sent", "value", v)
	return v, nil
}

// NormalizeOverride maps user input onto the controller's override values.
func NormalizeOverride(value string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case models.OverrideOn, "on":
		return models.OverrideOn, nil
	case models.OverrideForceOff:
		return models.OverrideForceOff, nil
	case models.OverrideDisabled:
		return models.OverrideDisabled, nil
	default:
		return "", ErrInvalidOverride
	}
}
