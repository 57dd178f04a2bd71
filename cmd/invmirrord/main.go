// SPDX-License-Identifier: MIT

// invmirrord mirrors an InVision workspace to disk and serves the archive.
//
// With no flags it starts the read API over the docs root; /scrape triggers
// runs on demand. -scrape performs a run before serving, -oneshot performs a
// run and exits with 0 (complete), 1 (fatal) or 2 (partial). The positional
// argument selects the run option ("update" or "overwrite").
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

	"golang.org/x/sync/errgroup"

	"github.com/mirrorlab/invmirror/internal/api"
	"github.com/mirrorlab/invmirror/internal/config"
	"github.com/mirrorlab/invmirror/internal/log"
	"github.com/mirrorlab/invmirror/internal/mirror"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

const (
	exitFatal   = 1
	exitPartial = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	listen := flag.String("listen", "", "override the API listen address")
	scrape := flag.Bool("scrape", false, "run one mirror pass before serving")
	oneshot := flag.Bool("oneshot", false, "run one mirror pass and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		return 0
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger := log.WithComponent("daemon")
		logger.Error().
			Err(err).
			Str(log.FieldEvent, "config.load_failed").
			Msg("failed to load configuration")
		return exitFatal
	}
	if *listen != "" {
		cfg.Listen = *listen
	}

	log.Configure(log.Config{Level: cfg.LogLevel, Service: "invmirror"})
	logger := log.WithComponent("daemon")

	mode, err := mirror.ParseMode(flag.Arg(0))
	if err != nil {
		logger.Error().Err(err).Str(log.FieldEvent, "option.invalid").Msg("invalid run option")
		return exitFatal
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info().
		Str(log.FieldEvent, "startup").
		Str("version", version).
		Str("commit", commit).
		Str("build_date", buildDate).
		Str(log.FieldDocsRoot, cfg.DocsRoot).
		Msg("starting invmirrord")

	srv := api.New(cfg)

	if *oneshot || *scrape {
		runCfg, err := mirror.FromAppConfig(cfg, mode)
		if err != nil {
			logger.Error().Err(err).Str(log.FieldEvent, "run.config_failed").Msg("cannot build run configuration")
			return exitFatal
		}
		status, err := mirror.Run(ctx, runCfg)
		if err != nil {
			logger.Error().Err(err).Str(log.FieldEvent, "run.fatal").Msg("mirror run failed")
			if *oneshot {
				return exitFatal
			}
		} else {
			srv.SetStatus(status)
			if *oneshot {
				if status.Failed > 0 {
					return exitPartial
				}
				return 0
			}
		}
	}

	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str(log.FieldEvent, "http.listen").Str("addr", cfg.Listen).Msg("serving archive")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Str(log.FieldEvent, "http.failed").Msg("server error")
		return exitFatal
	}
	logger.Info().Str(log.FieldEvent, "shutdown").Msg("server exiting")
	return 0
}
