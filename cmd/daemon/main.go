// SPDX-License-Identifier: MIT

// Command daemon runs the streamgate HTTP service: the gated resolution
// routes in front of the debrid backends, plus probes and metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/streamvault/streamgate/internal/api"
	"github.com/streamvault/streamgate/internal/config"
	"github.com/streamvault/streamgate/internal/health"
	"github.com/streamvault/streamgate/internal/lock"
	xglog "github.com/streamvault/streamgate/internal/log"
	"github.com/streamvault/streamgate/internal/provider"
	"github.com/streamvault/streamgate/internal/provider/debridlink"
	"github.com/streamvault/streamgate/internal/provider/realdebrid"
	"github.com/streamvault/streamgate/internal/provider/torbox"
	"github.com/streamvault/streamgate/internal/ratelimit"
	"github.com/streamvault/streamgate/internal/rescache"
	"github.com/streamvault/streamgate/internal/resolve"
	"github.com/streamvault/streamgate/internal/session"
	"github.com/streamvault/streamgate/internal/stream"
	"github.com/streamvault/streamgate/internal/worker"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

// restartExitCode tells the process manager the exit was a requested recycle,
// not a crash.
const restartExitCode = 3

func main() {
	os.Exit(run())
}

func run() int {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("streamgate %s (commit: %s, built: %s)\n", version, commit, buildDate)
		return 0
	}

	cfg := config.Load()

	xglog.Configure(xglog.Config{
		Level:   cfg.LogLevel,
		Service: cfg.LogService,
		Version: version,
	})
	logger := xglog.WithComponent("daemon")

	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Str("event", "config.invalid").Msg("refusing to start")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer func() { _ = rdb.Close() }()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Error().Err(err).Str("addr", cfg.RedisAddr).Msg("shared store unreachable")
		return 1
	}

	codec, err := session.NewCodec(cfg.SecretKey)
	if err != nil {
		logger.Error().Err(err).Msg("failed to build session codec")
		return 1
	}

	streams, err := stream.NewSQLiteStore(cfg.StreamDBPath)
	if err != nil {
		logger.Error().Err(err).Str("path", cfg.StreamDBPath).Msg("failed to open stream store")
		return 1
	}
	defer func() { _ = streams.Close() }()

	registry := provider.NewRegistry("debridlink")
	registry.Register(debridlink.NewResolver())
	registry.Register(realdebrid.NewResolver())
	registry.Register(torbox.NewResolver())
	logger.Info().Strs("services", registry.Services()).Msg("providers registered")

	coord := resolve.New(codec, streams, rescache.New(rdb), lock.NewManager(rdb), registry, cfg.HostURL)

	healthMgr := health.NewManager(version)
	healthMgr.RegisterChecker(health.NewRedisChecker(rdb))

	supervisor := worker.NewSupervisor(int64(cfg.MaxResolutions))

	var staticFS http.FileSystem
	if info, err := os.Stat(cfg.StaticDir); err == nil && info.IsDir() {
		staticFS = http.Dir(cfg.StaticDir)
	} else {
		logger.Warn().Str("dir", cfg.StaticDir).Msg("static directory missing, fallback videos disabled")
	}

	server := api.New(api.Deps{
		Config:     cfg,
		Codec:      codec,
		Coord:      coord,
		Limiter:    ratelimit.New(rdb, cfg.EnableRateLimit),
		Health:     healthMgr,
		Supervisor: supervisor,
		StaticFS:   staticFS,
	})

	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	restartRequested := false
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", cfg.Listen).Str("version", version).Msg("listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		select {
		case <-ctx.Done():
		case <-supervisor.Restart():
			restartRequested = true
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("daemon exited with error")
		return 1
	}

	if restartRequested {
		logger.Info().Int("exit_code", restartExitCode).Msg("restart requested, exiting for recycle")
		return restartExitCode
	}
	logger.Info().Msg("daemon stopped")
	return 0
}
