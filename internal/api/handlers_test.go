// SPDX-License-Identifier: MIT

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/mirrorlab/invmirror/internal/config"
	"github.com/mirrorlab/invmirror/internal/mirror"
	"github.com/mirrorlab/invmirror/internal/storage"
)

// seedArchive writes a small archive: two projects, one screen with its
// documents and image, a share link and the tag list.
func seedArchive(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	layout := storage.NewLayout(root)

	require.NoError(t, storage.WriteJSON(layout.TagsPath(), []byte(`[{"id":1,"name":"design"}]`)))
	require.NoError(t, storage.WriteJSON(layout.ProjectJSON("1001"), []byte(`{"id":1001,"data":{"name":"App"}}`)))
	require.NoError(t, storage.WriteJSON(layout.ProjectJSON("2002"), []byte(`{"id":2002,"data":{"name":"Web"}}`)))
	require.NoError(t, storage.WriteJSON(layout.ScreensJSON("1001"), []byte(`{"screens":[{"id":12001}]}`)))
	require.NoError(t, storage.WriteJSON(layout.SharesJSON("1001"), []byte(`{"shares":[{"id":21,"key":"AbCd"}]}`)))
	require.NoError(t, storage.WriteJSON(layout.ScreenJSON("1001", "12001"), []byte(`{"id":12001}`)))
	require.NoError(t, storage.WriteJSON(layout.InspectJSON("1001", "12001"), []byte(`{"layers":[]}`)))
	require.NoError(t, storage.WriteJSON(layout.HistoryJSON("1001", "12001"), []byte(`{"versions":[]}`)))

	img := layout.ScreenImagePath("1001", "12001", ".png")
	require.NoError(t, os.MkdirAll(filepath.Dir(img), 0o755))
	require.NoError(t, os.WriteFile(img, []byte("png-bytes"), 0o644))

	return root
}

func newTestServer(t *testing.T, root string) *Server {
	t.Helper()
	cfg := config.Defaults()
	cfg.DocsRoot = root
	return NewWithRunner(cfg, func(context.Context, mirror.Config) (*mirror.Status, error) {
		t.Fatal("unexpected mirror run")
		return nil, nil
	})
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestProjectsAggregate(t *testing.T) {
	root := seedArchive(t)
	// A project directory without a readable project.json must not break
	// the listing.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "projects", "3003"), 0o755))
	s := newTestServer(t, root)

	rec := get(t, s, "/projects")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.Bytes()
	require.True(t, gjson.ValidBytes(body))
	arr := gjson.ParseBytes(body).Array()
	require.Len(t, arr, 2)
	assert.Equal(t, "App", arr[0].Get("data.name").String())
	assert.Equal(t, "Web", arr[1].Get("data.name").String())
}

func TestProjectDocumentRoutes(t *testing.T) {
	s := newTestServer(t, seedArchive(t))

	tests := []struct {
		path   string
		status int
		check  string // gjson path expected to exist on 200
	}{
		{path: "/projects/1001", status: http.StatusOK, check: "data.name"},
		{path: "/projects/9999", status: http.StatusNotFound},
		{path: "/projects/1001/screens", status: http.StatusOK, check: "screens"},
		{path: "/projects/1001/screens/12001", status: http.StatusOK, check: "id"},
		{path: "/projects/1001/screens/12001/inspect", status: http.StatusOK, check: "layers"},
		{path: "/projects/1001/screens/12001/history", status: http.StatusOK, check: "versions"},
		{path: "/projects/1001/screens/99999", status: http.StatusNotFound},
		{path: "/tags", status: http.StatusOK, check: "0.name"},
	}
	for _, tt := range tests {
		rec := get(t, s, tt.path)
		require.Equal(t, tt.status, rec.Code, tt.path)
		if tt.check != "" {
			assert.True(t, gjson.GetBytes(rec.Body.Bytes(), tt.check).Exists(), tt.path)
		}
	}
}

func TestShareLookupIsCaseInsensitive(t *testing.T) {
	s := newTestServer(t, seedArchive(t))

	rec := get(t, s, "/share/ABCD")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1001", gjson.GetBytes(rec.Body.Bytes(), "project_id").String())

	rec = get(t, s, "/share/nope")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFileServerServesArchiveAssets(t *testing.T) {
	s := newTestServer(t, seedArchive(t))

	rec := get(t, s, "/projects/1001/screens/12001/image.png")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "png-bytes", rec.Body.String())
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)

	// Conditional revalidation.
	req := httptest.NewRequest(http.MethodGet, "/projects/1001/screens/12001/image.png", nil)
	req.Header.Set("If-None-Match", etag)
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotModified, rec.Code)
}

func TestFileServerRejectsTraversalAndDirectories(t *testing.T) {
	root := seedArchive(t)
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(root), "secret.txt"), []byte("x"), 0o644))
	s := newTestServer(t, root)

	for _, path := range []string{
		"/../secret.txt",
		"/..%2fsecret.txt",
		"/%2e%2e/secret.txt",
		"/projects/1001/screens/",
	} {
		rec := get(t, s, path)
		assert.Equal(t, http.StatusForbidden, rec.Code, path)
	}

	rec := get(t, s, "/projects/1001/missing.bin")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthzAndStatus(t *testing.T) {
	s := newTestServer(t, seedArchive(t))

	rec := get(t, s, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", gjson.GetBytes(rec.Body.Bytes(), "status").String())

	rec = get(t, s, "/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, gjson.GetBytes(rec.Body.Bytes(), "scraping").Bool())
	assert.False(t, gjson.GetBytes(rec.Body.Bytes(), "last_run").Exists())

	s.SetStatus(&mirror.Status{RunID: "r-1", Successful: 2})
	rec = get(t, s, "/status")
	assert.Equal(t, "r-1", gjson.GetBytes(rec.Body.Bytes(), "last_run.run_id").String())
}

func TestMetricsEndpointExposed(t *testing.T) {
	s := newTestServer(t, seedArchive(t))
	rec := get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
