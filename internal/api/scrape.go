// SPDX-License-Identifier: MIT

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mirrorlab/invmirror/internal/log"
	"github.com/mirrorlab/invmirror/internal/mirror"
)

// handleScrape triggers a mirror run and blocks until it finishes. The run
// option comes from the path, overridable by the option query parameter.
// Only one run executes at a time; a second trigger answers 409.
func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	option := chi.URLParam(r, "option")
	if q := r.URL.Query().Get("option"); q != "" {
		option = q
	}
	mode, err := mirror.ParseMode(option)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !s.scraping.CompareAndSwap(false, true) {
		writeError(w, http.StatusConflict, "scrape already running")
		return
	}
	defer s.scraping.Store(false)

	cfg, err := mirror.FromAppConfig(s.cfg, mode)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	logger := log.WithComponentFromContext(r.Context(), "api")
	logger.Info().Str(log.FieldEvent, "scrape.start").Str(log.FieldMode, mode.String()).Msg("mirror run triggered")

	status, err := s.run(r.Context(), cfg)
	if err != nil {
		logger.Error().Err(err).Str(log.FieldEvent, "scrape.failed").Msg("mirror run failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.SetStatus(status)
	writeValue(w, status)
}
