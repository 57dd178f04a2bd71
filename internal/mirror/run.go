// SPDX-License-Identifier: MIT

// Package mirror orchestrates a full mirroring run: login, project listing,
// per-project traversal and reconciliation against the on-disk archive.
// Projects are processed sequentially; screens within a project fan out to a
// bounded worker pool.
package mirror

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mirrorlab/invmirror/internal/assets"
	"github.com/mirrorlab/invmirror/internal/invision"
	"github.com/mirrorlab/invmirror/internal/log"
	"github.com/mirrorlab/invmirror/internal/metrics"
	"github.com/mirrorlab/invmirror/internal/storage"
)

// mirroredType is the only project type the archive carries.
const mirroredType = "prototype"

// Run executes one mirroring run against the production upstream.
// A nil error with Status.Failed > 0 is a partial run; callers map that to
// their own exit code.
func Run(ctx context.Context, cfg Config) (*Status, error) {
	if cfg.Email == "" || cfg.Password == "" {
		return nil, ErrMissingCredentials
	}

	opts := cfg.Upstream
	opts.Email = cfg.Email
	opts.Password = cfg.Password
	cl, err := invision.New(opts)
	if err != nil {
		return nil, fmt.Errorf("mirror: build client: %w", err)
	}
	return runWithClient(ctx, cfg, cl)
}

func runWithClient(ctx context.Context, cfg Config, cl Client) (*Status, error) {
	layout := storage.NewLayout(cfg.DocsRoot)

	switch cfg.Mode {
	case ModeOverwrite:
		if err := layout.RemoveRoot(); err != nil {
			return nil, err
		}
	case ModeUpdate:
	default:
		nonEmpty, err := storage.DirNonEmpty(layout.Root())
		if err != nil {
			return nil, err
		}
		if nonEmpty {
			return nil, ErrDocsRootConflict
		}
	}

	status := &Status{
		RunID:     uuid.NewString(),
		Mode:      cfg.Mode.String(),
		StartedAt: time.Now().UTC(),
	}
	logger := log.WithComponent("mirror").With().
		Str(log.FieldRunID, status.RunID).
		Str(log.FieldMode, status.Mode).
		Logger()

	metrics.SetRunInProgress(true)
	defer metrics.SetRunInProgress(false)

	fatal := func(err error) (*Status, error) {
		metrics.RecordRun("fatal", time.Since(status.StartedAt))
		return nil, err
	}

	logger.Info().Str(log.FieldEvent, "run.start").Str(log.FieldDocsRoot, layout.Root()).Msg("mirror run starting")

	if err := cl.Login(ctx); err != nil {
		return fatal(fmt.Errorf("mirror: login: %w", err))
	}

	projects, err := listProjects(ctx, cl)
	if err != nil {
		return fatal(fmt.Errorf("mirror: list projects: %w", err))
	}
	if cfg.TestMode {
		projects = onePerType(projects)
	}
	projects = filterType(projects, mirroredType)

	tagsRaw, tags, err := cl.Tags(ctx)
	if err != nil {
		return fatal(fmt.Errorf("mirror: fetch tags: %w", err))
	}
	if err := storage.WriteJSON(layout.TagsPath(), tagsRaw); err != nil {
		return fatal(err)
	}

	t := &task{
		cl:     cl,
		layout: layout,
		loc:    assets.New(layout, cl),
		cfg:    cfg,
		log:    logger,
	}

	for _, p := range projects {
		if err := ctx.Err(); err != nil {
			return fatal(fmt.Errorf("mirror: run aborted: %w", err))
		}
		res := t.runProject(ctx, p, tags)
		status.record(res)
		logProject(logger, res)
	}

	status.DurationMS = time.Since(status.StartedAt).Milliseconds()
	metrics.RecordRun(status.Outcome(), time.Since(status.StartedAt))
	metrics.AddProjectOutcomes(status.Successful, status.Ignored, status.Failed)

	logger.Info().
		Str(log.FieldEvent, "run.done").
		Str(log.FieldOutcome, status.Outcome()).
		Int("successful", status.Successful).
		Int("ignored", status.Ignored).
		Int("failed", status.Failed).
		Int64("duration_ms", status.DurationMS).
		Msg("mirror run finished")

	return status, nil
}

// listProjects concatenates the live and archived project listings; both come
// from the same paginated-free endpoint filtered by the archive flag.
func listProjects(ctx context.Context, cl Client) ([]invision.Project, error) {
	live, err := cl.Projects(ctx, false)
	if err != nil {
		return nil, err
	}
	archived, err := cl.Projects(ctx, true)
	if err != nil {
		return nil, err
	}
	return append(live, archived...), nil
}

// onePerType keeps exactly one project per type for smoke runs. The last
// project of each type wins; the output preserves first-appearance type order.
func onePerType(projects []invision.Project) []invision.Project {
	index := make(map[string]int)
	var out []invision.Project
	for _, p := range projects {
		if i, ok := index[p.Type]; ok {
			out[i] = p
			continue
		}
		index[p.Type] = len(out)
		out = append(out, p)
	}
	return out
}

func filterType(projects []invision.Project, typ string) []invision.Project {
	out := projects[:0]
	for _, p := range projects {
		if p.Type == typ {
			out = append(out, p)
		}
	}
	return out
}

func logProject(logger zerolog.Logger, res ProjectResult) {
	ev := logger.Info()
	if res.Outcome == OutcomeFailed {
		ev = logger.Error()
	}
	ev.Str(log.FieldEvent, "project.done").
		Str(log.FieldProjectID, res.ID).
		Str(log.FieldOutcome, string(res.Outcome)).
		Int("screens", res.Screens).
		Int("archived_screens", res.ArchivedScreens).
		Msg(res.Name)
}
