// SPDX-License-Identifier: MIT

package mirror

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mirrorlab/invmirror/internal/invision"
	"github.com/mirrorlab/invmirror/internal/log"
	"github.com/mirrorlab/invmirror/internal/metrics"
	"github.com/mirrorlab/invmirror/internal/storage"
)

// runScreens mirrors a project's screens on a bounded pool and returns how
// many completed. Every goroutine reports exactly one result, so the counter
// loop terminates once the pool drains.
func (t *task) runScreens(ctx context.Context, projectID string, screens []invision.Screen) int {
	workers := t.cfg.Workers
	if workers < 1 {
		workers = 1
	}

	sem := make(chan struct{}, workers)
	results := make(chan bool)
	var wg sync.WaitGroup

	for _, s := range screens {
		wg.Add(1)
		go func(s invision.Screen) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results <- t.runScreen(ctx, projectID, s)
		}(s)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	done := 0
	for ok := range results {
		if ok {
			done++
		}
	}
	return done
}

// runScreen mirrors one screen: detail document, then inspect data and
// version history for live screens. A complete local screen directory
// short-circuits without any network calls, which is what makes interrupted
// runs resumable.
func (t *task) runScreen(ctx context.Context, projectID string, s invision.Screen) bool {
	lg := t.log.With().
		Str(log.FieldProjectID, projectID).
		Str(log.FieldScreenID, s.ID).
		Logger()

	if screenComplete(t.layout, projectID, s) {
		metrics.IncScreenOutcome("skipped")
		lg.Debug().Str(log.FieldEvent, "screen.skip").Msg("screen already complete")
		return true
	}
	if ctx.Err() != nil {
		metrics.IncScreenOutcome("failure")
		return false
	}

	detail, err := t.cl.ScreenDetails(ctx, s.ID, s.IsArchived)
	if err != nil {
		return screenFailed(lg, "fetch screen details", err)
	}
	detail, err = t.loc.Localize(ctx, detail, projectID, s.ID)
	if err != nil {
		return screenFailed(lg, "localise screen details", err)
	}
	if err := storage.WriteJSON(t.layout.ScreenJSON(projectID, s.ID), detail); err != nil {
		return screenFailed(lg, "write screen details", err)
	}

	// Archived screens only serve the quick-view document; inspect and
	// history endpoints reject them.
	if !s.IsArchived {
		inspect, err := t.cl.ScreenInspect(ctx, s.ID)
		if err != nil {
			return screenFailed(lg, "fetch inspect data", err)
		}
		inspect, err = t.loc.Localize(ctx, inspect, projectID, s.ID)
		if err != nil {
			return screenFailed(lg, "localise inspect data", err)
		}
		if err := storage.WriteJSON(t.layout.InspectJSON(projectID, s.ID), inspect); err != nil {
			return screenFailed(lg, "write inspect data", err)
		}

		history, err := t.cl.ScreenHistory(ctx, s.ID)
		if err != nil {
			return screenFailed(lg, "fetch screen history", err)
		}
		history, err = t.loc.Localize(ctx, history, projectID, s.ID)
		if err != nil {
			return screenFailed(lg, "localise screen history", err)
		}
		if err := storage.WriteJSON(t.layout.HistoryJSON(projectID, s.ID), history); err != nil {
			return screenFailed(lg, "write screen history", err)
		}
	}

	metrics.IncScreenOutcome("success")
	lg.Debug().Str(log.FieldEvent, "screen.done").Msg("screen mirrored")
	return true
}

func screenFailed(lg zerolog.Logger, msg string, err error) bool {
	metrics.IncScreenOutcome("failure")
	lg.Error().Err(err).Str(log.FieldEvent, "screen.failed").Msg(msg)
	return false
}
