// SPDX-License-Identifier: MIT

// Command vds-server is the composition root: it wires the catalog, the
// remote backend, the manifest poller, and the content HTTP surface, then
// runs until SIGINT/SIGTERM triggers a graceful shutdown.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/vds-project/vds/internal/catalog"
	"github.com/vds-project/vds/internal/command"
	"github.com/vds-project/vds/internal/config"
	"github.com/vds-project/vds/internal/downloader"
	"github.com/vds-project/vds/internal/httpapi"
	vdslog "github.com/vds-project/vds/internal/log"
	"github.com/vds-project/vds/internal/poller"
	"github.com/vds-project/vds/internal/remote"
)

var version = "dev"

func main() {
	cfg := config.Default()

	flag.StringVar(&cfg.DB.RuntimePath, "runtime-path", cfg.DB.RuntimePath, "directory for the catalog database and persisted manifest")
	flag.StringVar(&cfg.Downloader.ContentPath, "content-path", cfg.Downloader.ContentPath, "directory downloaded video files are written to")
	flag.StringVar(&cfg.Downloader.RemoteServer, "remote-server", cfg.Downloader.RemoteServer, "remote manifest source URI (file://... or s3://bucket)")
	listenAddress := flag.String("listen-address", cfg.HTTP.ListenAddress, "HTTP listen address")
	listenPort := flag.Int("listen-port", cfg.HTTP.ListenPort, "HTTP listen port")
	debug := flag.Bool("debug", cfg.Debug, "enable debug-level logging")
	flag.Parse()
	cfg.HTTP.ListenAddress = *listenAddress
	cfg.HTTP.ListenPort = *listenPort
	cfg.Debug = *debug

	level := "info"
	if cfg.Debug {
		level = "debug"
	}
	vdslog.Configure(vdslog.Config{Level: level, Service: "vds-server", Version: version})
	logger := vdslog.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("vds-server exited with an error")
	}
}

// run wires the five moving parts and blocks until ctx is cancelled or the
// HTTP server exits on its own.
func run(parent context.Context, cfg config.Config, logger zerolog.Logger) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	cat, err := catalog.Open(ctx, catalog.Config{
		RuntimePath: cfg.DB.RuntimePath,
		BusyTimeout: cfg.DB.BusyTimeout,
		PoolSize:    cfg.DB.PoolSize,
	})
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer func() {
		if err := cat.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close catalog")
		}
	}()

	backend, err := remote.New(ctx, remote.Config{
		RemoteServer: cfg.Downloader.RemoteServer,
		S3: remote.S3Config{
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			Region:          cfg.AWS.Region,
		},
	})
	if err != nil {
		return fmt.Errorf("construct remote backend: %w", err)
	}

	if err := os.MkdirAll(cfg.Downloader.ContentPath, 0o755); err != nil {
		return fmt.Errorf("create content path: %w", err)
	}

	var ready atomic.Bool
	ready.Store(true) // Open returned successfully; catalog migrations and manifest load are done.

	commands := command.New()
	pl := poller.New(backend, cat, commands, poller.Config{
		UpdateInterval: cfg.Downloader.UpdateInterval,
		ContentPath:    cfg.Downloader.ContentPath,
		Downloader: downloader.Config{
			ConcurrentDownloads: cfg.Downloader.ConcurrentDownloads,
			Retry: downloader.RetryConfig{
				InitialBackoff: cfg.Downloader.Retry.InitialBackoff,
				BackoffFactor:  cfg.Downloader.Retry.BackoffFactor,
				MaxBackoff:     cfg.Downloader.Retry.MaxBackoff,
			},
		},
	})

	srv := httpapi.New(cat, commands, cfg.Downloader.ContentPath, ready.Load)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.HTTP.ListenAddress, cfg.HTTP.ListenPort),
		Handler: srv.Router(),
	}

	pollerDone := make(chan struct{})
	go func() {
		defer close(pollerDone)
		pl.Run(ctx)
	}()

	httpErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- err
			return
		}
		httpErr <- nil
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-httpErr:
		if err != nil {
			logger.Error().Err(err).Msg("http server failed")
		}
		cancel()
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http server shutdown did not complete cleanly")
	}

	<-pollerDone
	return nil
}
