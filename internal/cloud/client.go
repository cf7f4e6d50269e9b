// Package cloud is a small client for the machine vendor's customer-app API.
package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	registerPath     = "/auth/init"
	signInPath       = "/auth/signin"
	dashboardPathFmt = "/things/%s/dashboard"

	// tokenRefreshMargin re-signs-in before the access token actually expires.
	tokenRefreshMargin = time.Minute
	// fallbackTokenTTL applies when the access token carries no readable exp claim.
	fallbackTokenTTL = 10 * time.Minute

	maxResponseBytes = 1 << 20
)

// ErrNotRegistered is returned when the token is requested before Register succeeded.
var ErrNotRegistered = errors.New("installation not registered")

// Credentials are the account and machine the client acts for.
type Credentials struct {
	Username     string
	Password     string
	SerialNumber string
}

// Client calls the cloud API on behalf of one installation.
type Client struct {
	baseURL string
	http    *http.Client
	key     InstallationKey
	creds   Credentials
	now     func() time.Time

	mu          sync.Mutex
	registered  bool
	accessToken string
	tokenExpiry time.Time
}

// NewClient builds a client. The timeout bounds each request.
func NewClient(baseURL string, key InstallationKey, creds Credentials, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		key:     key,
		creds:   creds,
		now:     time.Now,
	}
}

// Register announces the installation's public key to the cloud.
func (c *Client) Register(ctx context.Context) error {
	pub, err := c.key.PublicKeyB64()
	if err != nil {
		return fmt.Errorf("encode public key: %w", err)
	}
	proof, err := c.key.RequestProof()
	if err != nil {
		return fmt.Errorf("request proof: %w", err)
	}

	headers := http.Header{}
	headers.Set("X-App-Installation-Id", c.key.ID)
	headers.Set("X-Request-Proof", proof)

	if err := c.do(ctx, http.MethodPost, registerPath, headers, map[string]string{"pk": pub}, nil); err != nil {
		return fmt.Errorf("register client: %w", err)
	}

	c.mu.Lock()
	c.registered = true
	c.mu.Unlock()
	return nil
}

type signInResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// AccessToken returns a cached token, signing in again when it is close to expiry.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	if !c.registered {
		c.mu.Unlock()
		return "", ErrNotRegistered
	}
	if c.accessToken != "" && c.now().Add(tokenRefreshMargin).Before(c.tokenExpiry) {
		tok := c.accessToken
		c.mu.Unlock()
		return tok, nil
	}
	c.mu.Unlock()

	headers, err := c.signedHeaders()
	if err != nil {
		return "", err
	}
	var resp signInResponse
	body := map[string]string{"username": c.creds.Username, "password": c.creds.Password}
	if err := c.do(ctx, http.MethodPost, signInPath, headers, body, &resp); err != nil {
		return "", fmt.Errorf("sign in: %w", err)
	}
	if resp.AccessToken == "" {
		return "", errors.New("sign in: empty access token")
	}

	expiry := tokenExpiry(resp.AccessToken, c.now())
	c.mu.Lock()
	c.accessToken = resp.AccessToken
	c.tokenExpiry = expiry
	c.mu.Unlock()
	return resp.AccessToken, nil
}

// Dashboard fetches the dashboard of the configured machine.
func (c *Client) Dashboard(ctx context.Context) (Dashboard, error) {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	headers, err := c.signedHeaders()
	if err != nil {
		return Dashboard{}, err
	}
	headers.Set("Authorization", "Bearer "+token)

	var dash Dashboard
	path := fmt.Sprintf(dashboardPathFmt, url.PathEscape(c.creds.SerialNumber))
	if err := c.do(ctx, http.MethodGet, path, headers, nil, &dash); err != nil {
		return Dashboard{}, fmt.Errorf("get dashboard: %w", err)
	}
	return dash, nil
}

func (c *Client) signedHeaders() (http.Header, error) {
	nonce := uuid.NewString()
	ts := strconv.FormatInt(c.now().UnixMilli(), 10)
	sig, err := c.key.Sign(nonce, ts)
	if err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}
	h := http.Header{}
	h.Set("X-App-Installation-Id", c.key.ID)
	h.Set("X-Timestamp", ts)
	h.Set("X-Nonce", nonce)
	h.Set("X-Request-Signature", sig)
	return h, nil
}

// APIError is a non-2xx answer from the cloud.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("cloud api status %d", e.Status)
	}
	return fmt.Sprintf("cloud api status %d: %s", e.Status, e.Body)
}

func (c *Client) do(ctx context.Context, method, path string, headers http.Header, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for k, vv := range headers {
		for _, v := range vv {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// tokenExpiry reads exp from the access token without verifying it; the cloud is the verifier.
func tokenExpiry(token string, now time.Time) time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil || claims.ExpiresAt == nil {
		return now.Add(fallbackTokenTTL)
	}
	return claims.ExpiresAt.Time
}
