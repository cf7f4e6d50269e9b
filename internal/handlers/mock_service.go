package handlers

import (
	"context"
	"net/http"
	"sync"

	"espresso_rig/internal/models"
	"espresso_rig/internal/service"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockAuth struct {
	genTokenToken string
	genTokenErr   error
	parseName     string
	parseErr      error

	lastGenUsername string
	lastGenPassword string
	lastParseToken  string
}

func (m *mockAuth) GenerateToken(username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) ParseToken(token string) (string, error) {
	m.lastParseToken = token
	return m.parseName, m.parseErr
}

type mockMonitoring struct {
	mu     sync.Mutex
	state  models.CombinedState
	source string
}

func (m *mockMonitoring) Latest() models.CombinedState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}
func (m *mockMonitoring) SourceName() string { return m.source }

func (m *mockMonitoring) set(st models.CombinedState) {
	m.mu.Lock()
	m.state = st
	m.mu.Unlock()
}

type mockControl struct {
	calls []string
}

func (m *mockControl) SetOverride(_ context.Context, value string) (string, error) {
	m.calls = append(m.calls, value)
	return service.NormalizeOverride(value)
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service, opts Options) *gin.Engine {
	h := NewHandler(s, nil, opts)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}
