// SPDX-License-Identifier: MIT

package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/tidwall/gjson"

	"github.com/mirrorlab/invmirror/internal/log"
	"github.com/mirrorlab/invmirror/internal/mirror"
	"github.com/mirrorlab/invmirror/internal/storage"
)

func writeDoc(w http.ResponseWriter, doc []byte) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(doc)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func writeValue(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// serveStored streams a stored archive document or answers 404.
func (s *Server) serveStored(w http.ResponseWriter, r *http.Request, path string) {
	doc, err := storage.ReadJSON(path)
	if err != nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeDoc(w, doc)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeValue(w, map[string]string{"status": "ok"})
}

type statusResponse struct {
	Scraping      bool           `json:"scraping"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	LastRun       *mirror.Status `json:"last_run,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeValue(w, statusResponse{
		Scraping:      s.scraping.Load(),
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		LastRun:       s.lastStatus(),
	})
}

// handleProjects aggregates every stored project.json into one array, in the
// lexical order of the project directories. Unreadable entries are skipped so
// one broken directory cannot take down the listing.
func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	ids, err := s.layout.ProjectIDs()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "cannot list projects")
		return
	}

	var buf bytes.Buffer
	buf.WriteByte('[')
	first := true
	for _, id := range ids {
		doc, err := storage.ReadJSON(s.layout.ProjectJSON(id))
		if err != nil {
			logger := log.WithComponentFromContext(r.Context(), "api")
			logger.Warn().
				Err(err).
				Str(log.FieldProjectID, id).
				Msg("skipping unreadable project")
			continue
		}
		if !first {
			buf.WriteByte(',')
		}
		buf.Write(doc)
		first = false
	}
	buf.WriteByte(']')
	writeDoc(w, buf.Bytes())
}

func (s *Server) handleProject(w http.ResponseWriter, r *http.Request) {
	pid := chi.URLParam(r, "projectID")
	s.serveStored(w, r, s.layout.ProjectJSON(pid))
}

func (s *Server) handleScreens(w http.ResponseWriter, r *http.Request) {
	pid := chi.URLParam(r, "projectID")
	s.serveStored(w, r, s.layout.ScreensJSON(pid))
}

func (s *Server) handleScreen(w http.ResponseWriter, r *http.Request) {
	pid := chi.URLParam(r, "projectID")
	sid := chi.URLParam(r, "screenID")
	s.serveStored(w, r, s.layout.ScreenJSON(pid, sid))
}

func (s *Server) handleInspect(w http.ResponseWriter, r *http.Request) {
	pid := chi.URLParam(r, "projectID")
	sid := chi.URLParam(r, "screenID")
	s.serveStored(w, r, s.layout.InspectJSON(pid, sid))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	pid := chi.URLParam(r, "projectID")
	sid := chi.URLParam(r, "screenID")
	s.serveStored(w, r, s.layout.HistoryJSON(pid, sid))
}

func (s *Server) handleTags(w http.ResponseWriter, r *http.Request) {
	s.serveStored(w, r, s.layout.TagsPath())
}

// handleShare resolves a share key to its project. Keys are matched case
// insensitively because shared links circulate in both spellings.
func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "shareKey")

	ids, err := s.layout.ProjectIDs()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "cannot list projects")
		return
	}
	for _, id := range ids {
		doc, err := storage.ReadJSON(s.layout.SharesJSON(id))
		if err != nil {
			continue
		}
		for _, share := range gjson.GetBytes(doc, "shares").Array() {
			if strings.EqualFold(share.Get("key").String(), key) {
				writeValue(w, map[string]string{"project_id": id})
				return
			}
		}
	}
	writeError(w, http.StatusNotFound, "unknown share key")
}
