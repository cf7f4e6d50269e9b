package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"espresso_rig/internal/config"
	"espresso_rig/internal/device"
	"espresso_rig/internal/handlers"
	"espresso_rig/internal/logger"
	"espresso_rig/internal/metrics"
	"espresso_rig/internal/mirror"
	"espresso_rig/internal/repository"
	"espresso_rig/internal/repository/db"
	"espresso_rig/internal/server"
	"espresso_rig/internal/service"
	"espresso_rig/internal/telemetry"

	"golang.org/x/time/rate"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to config.yml (default ./configs/config.yml)")
	hashPassword := flag.String("hash-password", "", "print the bcrypt hash of the given operator password and exit")
	flag.Parse()

	if *hashPassword != "" {
		hash, err := service.HashPassword(*hashPassword)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	// load config.yml
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}

	// init logger
	log := logger.Get(cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	// open DB
	conn, err := openDB(cfg.DB, log)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()
	repos := repository.NewRepository(conn)

	// context for background goroutines
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// wire dependencies
	deviceClient := device.NewClient(cfg.Device.BaseURL(), device.Options{
		Timeout:         cfg.Device.Timeout(),
		BreakerFailures: cfg.Device.BreakerFailures,
		BreakerOpenFor:  time.Duration(cfg.Device.BreakerOpenMs) * time.Millisecond,
	})
	source := telemetry.Select(cfg, log)
	collector := metrics.New(source.Name())

	coord := service.NewCoordinator(deviceClient, source, log, service.CoordinatorOptions{
		Interval: cfg.RefreshInterval(),
		Initial:  service.RestoreState(ctx, repos.StateRepo, log),
		Observer: collector,
	})

	auth, err := service.NewAuthService(cfg.Auth)
	if err != nil {
		log.Fatalw("failed to init auth", "err", err)
	}
	services := service.NewService(coord, auth, log)

	// ctx is not passed to the coordinator; stopBackground ends it first.
	coordDone := make(chan struct{})
	go func() {
		defer close(coordDone)
		coord.Run(context.Background())
	}()

	var wg sync.WaitGroup
	runBackground(&wg, func() {
		service.NewPersister(repos.StateRepo, coord, cfg.DB.CheckpointInterval(), log).Run(ctx)
	})
	if cfg.MQTT.Enabled {
		runBackground(&wg, func() { runMirror(ctx, cfg.MQTT, coord, log) })
	}

	apiHandler := handlers.NewHandler(services, log, handlers.Options{
		WSInterval:    cfg.HTTP.WSInterval(),
		OverrideRate:  rate.Limit(cfg.HTTP.OverrideRatePerSec),
		OverrideBurst: cfg.HTTP.OverrideBurst,
		Metrics:       collector.Handler(),
	})

	// start HTTP server
	srv := server.New(cfg.HTTP.Port, apiHandler.InitRoutes())
	runHTTPServer(srv, log)
	log.Infow("espressod started",
		"addr", srv.Addr(),
		"device", deviceClient.BaseURL(),
		"telemetry", source.Name(),
		"refresh", coord.Interval(),
	)

	// graceful shutdown
	waitForShutdown(srv, log)
	stopBackground(coord, coordDone, cancel, &wg)
}

// openDB initializes the SQLite checkpoint database.
func openDB(cfg config.DBConfig, log *logger.Logger) (*sql.DB, error) {
	path := cfg.Path
	if path == "" {
		log.Infow("db.path not set in config; using default file", "default", "espresso.db")
		path = "espresso.db"
	}
	return db.InitDB(path)
}

// stopBackground ends the coordinator and waits for its last cycle to publish, then
// cancels the persister and mirror so their final write sees that state.
func stopBackground(coord interface{ Stop() }, coordDone <-chan struct{}, cancel context.CancelFunc, wg *sync.WaitGroup) {
	coord.Stop()
	<-coordDone
	cancel()
	wg.Wait()
}

func runBackground(wg *sync.WaitGroup, fn func()) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		fn()
	}()
}

// runMirror connects to the broker and publishes until ctx is canceled.
// A broker that stays unreachable only disables the mirror.
func runMirror(ctx context.Context, cfg config.MQTTConfig, reader mirror.StateReader, log *logger.Logger) {
	pub, err := mirror.Connect(ctx, cfg, log)
	if err != nil {
		log.Warnw("mqtt_mirror_disabled", "err", err)
		return
	}
	mirror.New(pub, reader, cfg.Topic, cfg.PublishInterval(), log).Run(ctx)
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, log *logger.Logger) {
	go func() {
		if err := srv.Run(); err != nil {
			log.Fatalw("error starting server", "err", err)
		}
	}()
}

// waitForShutdown blocks until SIGINT/SIGTERM, then drains in-flight requests.
func waitForShutdown(srv *server.Server, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("server forced to shutdown", "err", err)
	}
}
