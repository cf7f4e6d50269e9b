package service

import (
	"context"

	"espresso_rig/internal/logger"
	"espresso_rig/internal/models"
)

// Authorization signs in the operator and checks bearer tokens.
type Authorization interface {
	GenerateToken(username, password string) (string, error)
	ParseToken(accessToken string) (string, error)
}

// Monitoring exposes the published state to the display layer.
type Monitoring interface {
	Latest() models.CombinedState
	SourceName() string
}

// Control relays validated override commands.
type Control interface {
	SetOverride(ctx context.Context, value string) (string, error)
}

//
// Root Service aggregates all sub-services.
//

type Service struct {
	Monitoring
	Control
	Authorization
}

// NewService exposes the coordinator and auth service through the handler-facing interfaces.
func NewService(coord *Coordinator, auth *AuthService, log *logger.Logger) *Service {
	return &Service{
		Monitoring:    coord,
		Control:       NewControlService(coord, log),
		Authorization: auth,
	}
}
