package telemetry

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"espresso_rig/internal/cloud"
	"espresso_rig/internal/config"
	"espresso_rig/internal/logger"
	"espresso_rig/internal/models"

	"github.com/cenkalti/backoff/v4"
)

// Notes published by the cloud source.
const (
	ConnectingNote    = "Connecting to cloud..."
	WaitingNote       = "Waiting for cloud..."
	CloudNote         = "Cloud dashboard"
	NoDashboardNote   = "No dashboard data yet"
	DisabledPrefix    = "Cloud disabled: "
	CloudErrorPrefix  = "Cloud error: "
	defaultRetryDelay = 500 * time.Millisecond
)

// cloudAPI is the part of cloud.Client the source needs.
type cloudAPI interface {
	Register(ctx context.Context) error
	AccessToken(ctx context.Context) (string, error)
	Dashboard(ctx context.Context) (cloud.Dashboard, error)
}

// RemoteOptions tunes the background loop.
type RemoteOptions struct {
	PollInterval time.Duration
	// SetupRetries is how many times registration and sign-in are retried before the feed is disabled.
	SetupRetries int
	// RetryDelay is the first backoff step between setup attempts.
	RetryDelay time.Duration
	Now        func() time.Time
}

// RemoteSource polls the cloud dashboard in the background. Until setup finished it reports
// ConnectingNote; after a setup failure it delegates to the fallback source.
type RemoteSource struct {
	api      cloudAPI
	fallback Source
	log      *logger.Logger
	opts     RemoteOptions

	mu     sync.Mutex
	latest models.TelemetrySnapshot

	ready     chan struct{}
	readyOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
	stopOnce  sync.Once
}

// NewRemoteSource decodes the installation key and starts the background loop.
// Bad key material fails here with cloud.ErrInvalidKeyMaterial.
func NewRemoteSource(cfg config.LaMarzoccoConfig, fallback Source, log *logger.Logger) (*RemoteSource, error) {
	key, err := cloud.ParseInstallationKey(cfg.InstallationID, cfg.InstallationSecretB64, cfg.InstallationPrivateKeyB64)
	if err != nil {
		return nil, err
	}
	client := cloud.NewClient(cfg.BaseURL, key, cloud.Credentials{
		Username:     cfg.Username,
		Password:     cfg.Password,
		SerialNumber: cfg.SerialNumber,
	}, cfg.RequestTimeout())

	return newRemoteSource(client, fallback, log, RemoteOptions{
		PollInterval: cfg.PollInterval(),
		SetupRetries: cfg.SetupRetries,
	}), nil
}

func newRemoteSource(api cloudAPI, fallback Source, log *logger.Logger, opts RemoteOptions) *RemoteSource {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.SetupRetries < 0 {
		opts.SetupRetries = 0
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &RemoteSource{
		api:      api,
		fallback: fallback,
		log:      logger.OrNop(log),
		opts:     opts,
		latest:   models.TelemetrySnapshot{BrewState: models.BrewStateIdle, Notes: WaitingNote},
		ready:    make(chan struct{}),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go r.run(ctx)
	return r
}

func (r *RemoteSource) Name() string { return NameCloud }

// Notify keeps the fallback simulator warm.
func (r *RemoteSource) Notify(status models.DeviceStatus) {
	r.fallback.Notify(status)
}

// Snapshot returns the last dashboard reading.
func (r *RemoteSource) Snapshot() models.TelemetrySnapshot {
	if !r.isReady() {
		return models.TelemetrySnapshot{BrewState: models.BrewStateIdle, Notes: ConnectingNote}
	}
	r.mu.Lock()
	latest := r.latest
	r.mu.Unlock()

	if strings.HasPrefix(latest.Notes, DisabledPrefix) {
		return r.fallback.Snapshot()
	}
	return latest
}

// Stop ends the background loop and waits for it to exit.
func (r *RemoteSource) Stop() {
	r.stopOnce.Do(func() {
		r.cancel()
		<-r.done
	})
}

// Ready is closed once setup finished, successfully or not.
func (r *RemoteSource) Ready() <-chan struct{} { return r.ready }

func (r *RemoteSource) isReady() bool {
	select {
	case <-r.ready:
		return true
	default:
		return false
	}
}

func (r *RemoteSource) markReady() {
	r.readyOnce.Do(func() { close(r.ready) })
}

func (r *RemoteSource) setLatest(s models.TelemetrySnapshot) {
	r.mu.Lock()
	r.latest = s
	r.mu.Unlock()
}

func (r *RemoteSource) previous() models.TelemetrySnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latest
}

func (r *RemoteSource) run(ctx context.Context) {
	defer close(r.done)

	if err := r.setup(ctx); err != nil {
		r.log.Warnw("cloud_setup_failed", "error", err)
		r.setLatest(models.TelemetrySnapshot{BrewState: models.BrewStateIdle, Notes: DisabledPrefix + err.Error()})
		r.markReady()
		return
	}
	r.log.Infow("cloud_ready")
	r.markReady()

	t := time.NewTicker(r.opts.PollInterval)
	defer t.Stop()
	failing := false
	for {
		if err := r.pollOnce(ctx); err != nil {
			if !failing {
				r.log.Warnw("cloud_poll_failed", "error", err)
			}
			failing = true
		} else if failing {
			r.log.Infow("cloud_poll_recovered")
			failing = false
		}

		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// setup registers the installation and acquires the first token, retrying with backoff.
func (r *RemoteSource) setup(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.opts.RetryDelay
	bo.MaxElapsedTime = 0
	bo.Reset()

	registered := false
	op := func() error {
		if !registered {
			if err := r.api.Register(ctx); err != nil {
				return classify(err)
			}
			registered = true
		}
		_, err := r.api.AccessToken(ctx)
		return classify(err)
	}
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(r.opts.SetupRetries)), ctx))
}

// classify stops retrying on answers that another attempt cannot change.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *cloud.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Status {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return backoff.Permanent(err)
		}
	}
	return err
}

// pollOnce fetches the dashboard and records either the parsed reading or an error note.
func (r *RemoteSource) pollOnce(ctx context.Context) error {
	prev := r.previous()
	dash, err := r.api.Dashboard(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		errSnap := prev
		errSnap.Notes = CloudErrorPrefix + err.Error()
		r.setLatest(errSnap)
		return err
	}
	r.setLatest(parseDashboard(dash, prev, r.opts.Now()))
	return nil
}
