// SPDX-License-Identifier: MIT

// Package assets localises upstream documents: every string field referencing
// a file on the upstream asset host is downloaded into the archive and
// rewritten to the local path the serving layer exposes.
package assets

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/mirrorlab/invmirror/internal/log"
	"github.com/mirrorlab/invmirror/internal/metrics"
	"github.com/mirrorlab/invmirror/internal/storage"
)

// assetHost is the substring that marks a URL as an upstream asset reference.
const assetHost = "invisionapp.com"

// Downloader fetches asset bytes; implemented by the upstream client.
type Downloader interface {
	DownloadAsset(ctx context.Context, url string) (io.ReadCloser, error)
}

// Localizer rewrites documents and downloads the assets they reference.
// It is safe to use concurrently on disjoint (project, screen) pairs: writes
// are atomic renames and existing destinations are skipped, so the shared
// avatar pool tolerates concurrent writers.
type Localizer struct {
	layout storage.Layout
	dl     Downloader
}

func New(layout storage.Layout, dl Downloader) *Localizer {
	return &Localizer{layout: layout, dl: dl}
}

type replacement struct {
	path  string // gjson/sjson path into the document
	local string // rewritten field value
}

// Localize walks doc depth-first, downloads every asset reference it finds
// and returns the document with those fields rewritten to local paths.
// screenID may be empty for project-level documents; version images then fall
// back to the generic assets rule.
//
// The walk records replacements and applies them afterwards, so the document
// is never mutated while being traversed.
func (l *Localizer) Localize(ctx context.Context, doc []byte, projectID, screenID string) ([]byte, error) {
	var reps []replacement
	if err := l.walk(ctx, "", gjson.ParseBytes(doc), projectID, screenID, &reps); err != nil {
		return nil, err
	}

	out := doc
	var err error
	for _, rep := range reps {
		out, err = sjson.SetBytes(out, rep.path, rep.local)
		if err != nil {
			return nil, fmt.Errorf("assets: rewrite %s: %w", rep.path, err)
		}
	}
	return out, nil
}

// walk recurses through objects and arrays. Only object entry values are
// rewritten; bare strings inside arrays are left alone.
func (l *Localizer) walk(ctx context.Context, prefix string, v gjson.Result, projectID, screenID string, reps *[]replacement) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var walkErr error
	switch {
	case v.IsObject():
		v.ForEach(func(key, val gjson.Result) bool {
			p := joinPath(prefix, escapeKey(key.String()))
			if val.Type == gjson.String && isAssetURL(val.Str) {
				local, err := l.fetch(ctx, val.Str, projectID, screenID)
				if err != nil {
					walkErr = err
					return false
				}
				*reps = append(*reps, replacement{path: p, local: local})
				return true
			}
			if val.IsObject() || val.IsArray() {
				if err := l.walk(ctx, p, val, projectID, screenID, reps); err != nil {
					walkErr = err
					return false
				}
			}
			return true
		})
	case v.IsArray():
		for i, item := range v.Array() {
			if !item.IsObject() && !item.IsArray() {
				continue
			}
			p := joinPath(prefix, fmt.Sprintf("%d", i))
			if err := l.walk(ctx, p, item, projectID, screenID, reps); err != nil {
				walkErr = err
				break
			}
		}
	}
	return walkErr
}

// fetch resolves the destination for one asset reference, downloads it when
// absent and returns the slash-rooted path the document should carry.
func (l *Localizer) fetch(ctx context.Context, rawURL, projectID, screenID string) (string, error) {
	dest, ok := l.destination(rawURL, projectID, screenID)
	if !ok {
		// Host matched but the URL carries no usable path; leave the
		// field alone by rewriting it to itself.
		return rawURL, nil
	}

	if storage.Exists(dest) {
		metrics.IncAssetSkipped()
	} else {
		// Download with the original URL, query string included; signed
		// URLs stop working without their parameters.
		rc, err := l.dl.DownloadAsset(ctx, rawURL)
		if err != nil {
			return "", fmt.Errorf("assets: download %s: %w", rawURL, err)
		}
		n, err := storage.WriteFile(dest, rc)
		_ = rc.Close()
		if err != nil {
			return "", err
		}
		metrics.RecordAssetDownload(int(n))
		logger := log.WithComponent("assets")
		logger.Debug().
			Str(log.FieldEvent, "asset.downloaded").
			Str(log.FieldURL, rawURL).
			Str(log.FieldPath, dest).
			Int64("bytes", n).
			Msg("asset downloaded")
	}

	return l.layout.Rel(dest)
}

// destination classifies the asset by its upstream path and maps it into the
// archive. The order matters: avatars are pooled, version images live under
// the owning screen, and screen images/thumbnails are renamed after their
// role because both upstream endpoints emit files named <screenId>.<ext>.
func (l *Localizer) destination(rawURL, projectID, screenID string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", false
	}
	u.RawQuery = ""
	u.Fragment = ""

	stripped := u.String()
	idx := strings.Index(stripped, assetHost+"/")
	if idx < 0 {
		return "", false
	}
	after := stripped[idx+len(assetHost)+1:]
	dir, file := path.Split(after)
	dir = strings.Trim(dir, "/")
	if file == "" {
		return "", false
	}

	switch {
	case strings.Contains(dir, "avatars"):
		return l.layout.AvatarPath(file), true

	case strings.Contains(dir, "versions/files") && screenID != "":
		return l.layout.VersionPath(projectID, screenID, file), true

	case strings.Contains(dir, "screens/thumbnails") || strings.Contains(dir, "screens/files"):
		ext := path.Ext(file)
		stem := strings.TrimSuffix(file, ext)
		if stem != "" {
			if strings.Contains(dir, "thumbnails") {
				return l.layout.ScreenThumbnailPath(projectID, stem, ext), true
			}
			return l.layout.ScreenImagePath(projectID, stem, ext), true
		}
	}

	return l.layout.AssetPath(projectID, dir, file), true
}

func isAssetURL(s string) bool {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, assetHost) {
		return false
	}
	u, err := url.Parse(s)
	return err == nil && u.Scheme != "" && u.Host != ""
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// escapeKey protects sjson path metacharacters inside document keys.
func escapeKey(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch r {
		case '.', '*', '?', '\\', '|', '#', '@':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
