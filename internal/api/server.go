// SPDX-License-Identifier: MIT

// Package api serves the mirrored archive over HTTP: JSON documents through
// typed routes, asset files through a hardened file server, and a trigger
// endpoint that starts mirror runs.
package api

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mirrorlab/invmirror/internal/config"
	"github.com/mirrorlab/invmirror/internal/mirror"
	"github.com/mirrorlab/invmirror/internal/storage"
)

// scrapeLimit caps trigger requests per client IP; runs are expensive and the
// endpoint needs no more than a handful of calls per window.
const (
	scrapeLimit       = 5
	scrapeLimitWindow = time.Minute
)

// RunFunc executes one mirror run; swapped out in tests.
type RunFunc func(ctx context.Context, cfg mirror.Config) (*mirror.Status, error)

// Server holds the archive serving state. At most one mirror run executes at
// a time; the flag is the only cross-request synchronisation the trigger
// endpoint needs.
type Server struct {
	cfg    config.Config
	layout storage.Layout
	run    RunFunc

	scraping atomic.Bool

	mu      sync.Mutex
	status  *mirror.Status
	started time.Time
}

// New builds a Server running real mirror runs.
func New(cfg config.Config) *Server {
	return NewWithRunner(cfg, mirror.Run)
}

// NewWithRunner builds a Server with a custom run function.
func NewWithRunner(cfg config.Config, run RunFunc) *Server {
	return &Server{
		cfg:     cfg,
		layout:  storage.NewLayout(cfg.DocsRoot),
		run:     run,
		started: time.Now(),
	}
}

// SetStatus seeds the last-run status, e.g. from a startup run.
func (s *Server) SetStatus(st *mirror.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = st
}

func (s *Server) lastStatus() *mirror.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Router wires all routes. Anything that matches no JSON route falls through
// to the file server over the docs root, which is how mirrored documents
// reference their assets.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(recoverer)
	r.Use(requestID)
	r.Use(accessLog)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/status", s.handleStatus)
	r.Method("GET", "/metrics", promhttp.Handler())

	r.Get("/projects", s.handleProjects)
	r.Get("/projects/{projectID}", s.handleProject)
	r.Get("/projects/{projectID}/screens", s.handleScreens)
	r.Get("/projects/{projectID}/screens/{screenID}", s.handleScreen)
	r.Get("/projects/{projectID}/screens/{screenID}/inspect", s.handleInspect)
	r.Get("/projects/{projectID}/screens/{screenID}/history", s.handleHistory)
	r.Get("/tags", s.handleTags)
	r.Get("/share/{shareKey}", s.handleShare)

	r.Group(func(r chi.Router) {
		r.Use(httprate.Limit(
			scrapeLimit,
			scrapeLimitWindow,
			httprate.WithKeyFuncs(httprate.KeyByIP),
		))
		r.Get("/scrape", s.handleScrape)
		r.Get("/scrape/{option}", s.handleScrape)
		r.Post("/scrape", s.handleScrape)
		r.Post("/scrape/{option}", s.handleScrape)
	})

	r.NotFound(s.fileServer())
	return r
}
