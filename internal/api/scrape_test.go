// SPDX-License-Identifier: MIT

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/mirrorlab/invmirror/internal/config"
	"github.com/mirrorlab/invmirror/internal/mirror"
)

func scrapeServer(run RunFunc) *Server {
	cfg := config.Defaults()
	cfg.Email = "user@example.com"
	cfg.Password = "hunter2"
	return NewWithRunner(cfg, run)
}

func TestScrapeRunsAndReportsStatus(t *testing.T) {
	var gotMode mirror.Mode
	s := scrapeServer(func(_ context.Context, cfg mirror.Config) (*mirror.Status, error) {
		gotMode = cfg.Mode
		return &mirror.Status{RunID: "r-42", Successful: 3}, nil
	})

	rec := get(t, s, "/scrape/update")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, mirror.ModeUpdate, gotMode)
	assert.Equal(t, "r-42", gjson.GetBytes(rec.Body.Bytes(), "run_id").String())

	// The run result is retained for /status.
	st := s.lastStatus()
	require.NotNil(t, st)
	assert.Equal(t, "r-42", st.RunID)
}

func TestScrapeQueryOverridesPathOption(t *testing.T) {
	var gotMode mirror.Mode
	s := scrapeServer(func(_ context.Context, cfg mirror.Config) (*mirror.Status, error) {
		gotMode = cfg.Mode
		return &mirror.Status{}, nil
	})

	rec := get(t, s, "/scrape/overwrite?option=update")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, mirror.ModeUpdate, gotMode)
}

func TestScrapeRejectsUnknownOption(t *testing.T) {
	s := scrapeServer(func(context.Context, mirror.Config) (*mirror.Status, error) {
		return &mirror.Status{}, nil
	})

	rec := get(t, s, "/scrape/wipe")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, gjson.GetBytes(rec.Body.Bytes(), "error").String(), "invalid option")
}

func TestScrapeConflictWhileRunning(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	s := scrapeServer(func(context.Context, mirror.Config) (*mirror.Status, error) {
		close(started)
		<-release
		return &mirror.Status{}, nil
	})

	firstDone := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		rec := httptest.NewRecorder()
		s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/scrape", nil))
		firstDone <- rec
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("first scrape never started")
	}

	rec := get(t, s, "/scrape")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "scrape already running", gjson.GetBytes(rec.Body.Bytes(), "error").String())

	close(release)
	require.Equal(t, http.StatusOK, (<-firstDone).Code)
}

func TestScrapeFatalRunIsServerError(t *testing.T) {
	s := scrapeServer(func(context.Context, mirror.Config) (*mirror.Status, error) {
		return nil, errors.New("login refused")
	})

	rec := get(t, s, "/scrape")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, gjson.GetBytes(rec.Body.Bytes(), "error").String(), "login refused")

	// The guard is released for the next attempt.
	assert.False(t, s.scraping.Load())
}
