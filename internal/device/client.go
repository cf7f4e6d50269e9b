// Package device talks to the paddle controller's HTTP interface.
package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"espresso_rig/internal/models"

	"github.com/sony/gobreaker"
)

const (
	statusPath   = "/status"
	overridePath = "/override"

	// maxBodyBytes caps the controller response; /status is a few hundred bytes.
	maxBodyBytes = 64 << 10
)

// Error categories written to DeviceStatus.LastError.
const (
	errPrefixHTTP       = "HTTP error: "
	errPrefixDecode     = "Decode error: "
	errPrefixUnexpected = "Unexpected: "
)

// Options tunes a Client.
type Options struct {
	Timeout time.Duration
	// BreakerFailures consecutive transport failures open the breaker; 0 disables it.
	BreakerFailures int
	BreakerOpenFor  time.Duration
	HTTPClient      *http.Client
}

// Client fetches the controller status and relays override commands.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewClient builds a client for baseURL (e.g. http://192.168.0.177).
func NewClient(baseURL string, opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 600 * time.Millisecond
		}
		hc = &http.Client{Timeout: timeout}
	}

	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    hc,
	}
	if opts.BreakerFailures > 0 {
		failures := uint32(opts.BreakerFailures)
		c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "device-status",
			Timeout: opts.BreakerOpenFor,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
			// Only transport failures count; a controller that answers garbage is still reachable.
			IsSuccessful: func(err error) bool {
				var te *transportError
				return err == nil || !errors.As(err, &te)
			},
		})
	}
	return c
}

// BaseURL returns the controller root this client targets.
func (c *Client) BaseURL() string { return c.baseURL }

// transportError marks failures of the request itself (dial, timeout, non-2xx).
type transportError struct{ err error }

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

// decodeError marks a response that arrived but could not be decoded.
type decodeError struct{ err error }

func (e *decodeError) Error() string { return e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

// FetchStatus performs one GET /status. It never fails: any problem is reported in LastError
// and every other field keeps its default.
func (c *Client) FetchStatus(ctx context.Context) (status models.DeviceStatus) {
	status = models.DefaultDeviceStatus()

	defer func() {
		if r := recover(); r != nil {
			status = models.DefaultDeviceStatus()
			status.LastError = fmt.Sprintf("%s%v", errPrefixUnexpected, r)
		}
	}()

	data, err := c.fetchPayload(ctx)
	if err != nil {
		status.LastError = categorize(err)
		return status
	}
	return parseStatus(data)
}

func (c *Client) fetchPayload(ctx context.Context) (map[string]any, error) {
	if c.breaker == nil {
		return c.getStatus(ctx)
	}
	out, err := c.breaker.Execute(func() (any, error) {
		return c.getStatus(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &transportError{err: err}
		}
		return nil, err
	}
	return out.(map[string]any), nil
}

func (c *Client) getStatus(ctx context.Context) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+statusPath, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &transportError{err: reason(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, &transportError{err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &transportError{err: err}
	}

	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, &decodeError{err: err}
	}
	if data == nil {
		return nil, &decodeError{err: errors.New("expected a JSON object, got null")}
	}
	return data, nil
}

// SendOverride issues GET /override?set=value. Errors are swallowed: the next status poll shows
// whether the controller accepted it.
func (c *Client) SendOverride(ctx context.Context, value string) {
	u := c.baseURL + overridePath + "?set=" + url.QueryEscape(value)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
	_ = resp.Body.Close()
}

// categorize maps an error to the LastError wording shown on the display.
func categorize(err error) string {
	var te *transportError
	var de *decodeError
	switch {
	case errors.As(err, &te):
		return errPrefixHTTP + te.Error()
	case errors.As(err, &de):
		return errPrefixDecode + de.Error()
	default:
		return errPrefixUnexpected + err.Error()
	}
}

// reason strips the method and URL that net/http prepends, keeping the cause.
func reason(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) && ue.Err != nil {
		return ue.Err
	}
	return err
}
