// SPDX-License-Identifier: MIT

package api

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/text/unicode/norm"

	"github.com/mirrorlab/invmirror/internal/log"
)

var fileRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "invmirror_http_file_requests_total",
	Help: "Archive file requests by outcome",
}, []string{"outcome"}) // outcome=allowed|denied|not_found|cache_hit

// fileServer serves the archive below the docs root. It refuses anything but
// GET/HEAD, blocks traversal and symlink escapes, never lists directories and
// answers conditional requests with a weak ETag.
func (s *Server) fileServer() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.WithComponentFromContext(r.Context(), "api")

		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			fileRequestsTotal.WithLabelValues("denied").Inc()
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		path := r.URL.Path
		if isPathTraversal(path) {
			logger.Warn().Str(log.FieldEvent, "file.denied").Str(log.FieldPath, path).Msg("traversal sequence in request path")
			fileRequestsTotal.WithLabelValues("denied").Inc()
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		if path == "" || strings.HasSuffix(path, "/") {
			fileRequestsTotal.WithLabelValues("denied").Inc()
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		absRoot, err := filepath.Abs(s.layout.Root())
		if err != nil {
			fileRequestsTotal.WithLabelValues("denied").Inc()
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		realPath, err := filepath.EvalSymlinks(filepath.Join(absRoot, path))
		if err != nil {
			if os.IsNotExist(err) {
				fileRequestsTotal.WithLabelValues("not_found").Inc()
				http.Error(w, "Not found", http.StatusNotFound)
				return
			}
			fileRequestsTotal.WithLabelValues("denied").Inc()
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		realRoot, err := filepath.EvalSymlinks(absRoot)
		if err != nil {
			fileRequestsTotal.WithLabelValues("denied").Inc()
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		// Containment after symlink resolution; Rel catches escapes that
		// string prefixes miss.
		rel, err := filepath.Rel(realRoot, realPath)
		if err != nil || strings.HasPrefix(rel, "..") || filepath.IsAbs(rel) {
			logger.Warn().Str(log.FieldEvent, "file.denied").Str(log.FieldPath, path).Msg("resolved path escapes docs root")
			fileRequestsTotal.WithLabelValues("denied").Inc()
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		// #nosec G304 -- realPath is contained in the docs root
		f, err := os.Open(realPath)
		if err != nil {
			fileRequestsTotal.WithLabelValues("denied").Inc()
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		defer func() { _ = f.Close() }()

		info, err := f.Stat()
		if err != nil {
			fileRequestsTotal.WithLabelValues("denied").Inc()
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if info.IsDir() {
			fileRequestsTotal.WithLabelValues("denied").Inc()
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		etag := fmt.Sprintf(`W/"%x-%x"`, info.ModTime().UnixNano(), info.Size())
		w.Header().Set("ETag", etag)
		w.Header().Set("Cache-Control", "public, max-age=3600")
		if r.Header.Get("If-None-Match") == etag {
			fileRequestsTotal.WithLabelValues("cache_hit").Inc()
			w.WriteHeader(http.StatusNotModified)
			return
		}

		if strings.HasSuffix(strings.ToLower(info.Name()), ".json") {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
		}

		fileRequestsTotal.WithLabelValues("allowed").Inc()
		http.ServeContent(w, r, info.Name(), info.ModTime(), f)
	}
}

// isPathTraversal decodes the path repeatedly to catch nested encodings,
// normalises it and looks for parent-directory and NUL sequences.
func isPathTraversal(p string) bool {
	decoded := p
	for i := 0; i < 3; i++ {
		prev := decoded
		if d, err := url.PathUnescape(decoded); err == nil {
			decoded = d
		} else if d, err := url.QueryUnescape(decoded); err == nil {
			decoded = d
		}
		if decoded == prev {
			break
		}
	}

	lower := strings.ToLower(decoded)
	for _, pat := range []string{"..", "%00", "%c0%ae", "%e0%80%ae"} {
		if strings.Contains(lower, pat) {
			return true
		}
	}
	if strings.IndexByte(decoded, 0x00) >= 0 {
		return true
	}

	normalized := strings.ToLower(norm.NFC.String(decoded))
	return strings.Contains(normalized, "..")
}
