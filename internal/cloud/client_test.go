package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCloud struct {
	registers atomic.Int32
	signIns   atomic.Int32
	token     string
	failAuth  bool
}

func (f *fakeCloud) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+registerPath, func(w http.ResponseWriter, r *http.Request) {
		f.registers.Add(1)
		if r.Header.Get("X-App-Installation-Id") == "" || r.Header.Get("X-Request-Proof") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body["pk"] == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST "+signInPath, func(w http.ResponseWriter, r *http.Request) {
		f.signIns.Add(1)
		if f.failAuth {
			http.Error(w, "bad credentials", http.StatusUnauthorized)
			return
		}
		if r.Header.Get("X-Request-Signature") == "" || r.Header.Get("X-Nonce") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(signInResponse{AccessToken: f.token})
	})
	mux.HandleFunc("GET /things/GS01234/dashboard", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+f.token {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"serialNumber":"GS01234","widgets":[{"code":"CMMachineStatus","widget_type":"CM_MACHINE_STATUS","output":{"status":"StandBy"}}]}`))
	})
	return mux
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("cloud-side-secret"))
	require.NoError(t, err)
	return tok
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	secret, key := testKeyMaterial(t)
	k, err := ParseInstallationKey("inst-1", secret, key)
	require.NoError(t, err)
	return NewClient(baseURL, k, Credentials{Username: "u", Password: "p", SerialNumber: "GS01234"}, time.Second)
}

func TestClient_RegisterTokenDashboard(t *testing.T) {
	fc := &fakeCloud{token: signedToken(t, time.Now().Add(time.Hour))}
	srv := httptest.NewServer(fc.handler(t))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	ctx := context.Background()

	require.NoError(t, c.Register(ctx))

	dash, err := c.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, "StandBy", dash.Output(MachineStatusWidget)["status"])

	_, err = c.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), fc.signIns.Load(), "valid token must be reused")
}

func TestClient_TokenRefreshedNearExpiry(t *testing.T) {
	now := time.Now()
	fc := &fakeCloud{token: signedToken(t, now.Add(30*time.Minute))}
	srv := httptest.NewServer(fc.handler(t))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	c.now = func() time.Time { return now }
	ctx := context.Background()
	require.NoError(t, c.Register(ctx))

	_, err := c.AccessToken(ctx)
	require.NoError(t, err)

	c.now = func() time.Time { return now.Add(29*time.Minute + 30*time.Second) }
	_, err = c.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), fc.signIns.Load())
}

func TestClient_TokenBeforeRegister(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1")
	_, err := c.AccessToken(context.Background())
	assert.True(t, errors.Is(err, ErrNotRegistered))
}

func TestClient_SignInRejected(t *testing.T) {
	fc := &fakeCloud{failAuth: true}
	srv := httptest.NewServer(fc.handler(t))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	require.NoError(t, c.Register(context.Background()))

	_, err := c.AccessToken(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr), "got %v", err)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Contains(t, apiErr.Error(), "bad credentials")
}

func TestTokenExpiry(t *testing.T) {
	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	exp := now.Add(2 * time.Hour)

	assert.True(t, tokenExpiry(signedToken(t, exp), now).Equal(exp.Truncate(time.Second)))
	assert.Equal(t, now.Add(fallbackTokenTTL), tokenExpiry("opaque-token", now))
}
