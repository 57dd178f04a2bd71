// SPDX-License-Identifier: MIT

// Package storage owns the on-disk layout of the mirrored archive and every
// write into it. Path construction is centralised here so the engine, the
// reconciler and the serving layer agree on one scheme:
//
//	common/tags.json
//	common/avatars/<file>
//	projects/<pid>/project.json
//	projects/<pid>/screens.json
//	projects/<pid>/shares.json
//	projects/<pid>/assets/<dir>/<file>
//	projects/<pid>/screens/<sid>/screen.json
//	projects/<pid>/screens/<sid>/inspect.json
//	projects/<pid>/screens/<sid>/history.json
//	projects/<pid>/screens/<sid>/image.<ext>
//	projects/<pid>/screens/<sid>/thumbnail.<ext>
//	projects/<pid>/screens/<sid>/versions/<file>
package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// Layout maps mirror entities to paths under a single docs root.
type Layout struct {
	root string
}

// NewLayout returns a Layout rooted at root.
func NewLayout(root string) Layout {
	return Layout{root: filepath.Clean(root)}
}

// Root returns the docs root directory.
func (l Layout) Root() string { return l.root }

func (l Layout) CommonDir() string  { return filepath.Join(l.root, "common") }
func (l Layout) TagsPath() string   { return filepath.Join(l.CommonDir(), "tags.json") }
func (l Layout) AvatarsDir() string { return filepath.Join(l.CommonDir(), "avatars") }

func (l Layout) ProjectsDir() string { return filepath.Join(l.root, "projects") }

func (l Layout) ProjectDir(pid string) string { return filepath.Join(l.ProjectsDir(), pid) }

func (l Layout) ProjectJSON(pid string) string {
	return filepath.Join(l.ProjectDir(pid), "project.json")
}

func (l Layout) ScreensJSON(pid string) string {
	return filepath.Join(l.ProjectDir(pid), "screens.json")
}

func (l Layout) SharesJSON(pid string) string {
	return filepath.Join(l.ProjectDir(pid), "shares.json")
}

// AssetPath places a generic project asset, preserving the upstream directory
// structure below assets/.
func (l Layout) AssetPath(pid, dir, file string) string {
	return filepath.Join(l.ProjectDir(pid), "assets", filepath.FromSlash(dir), file)
}

func (l Layout) AvatarPath(file string) string {
	return filepath.Join(l.AvatarsDir(), file)
}

func (l Layout) ScreenDir(pid, sid string) string {
	return filepath.Join(l.ProjectDir(pid), "screens", sid)
}

func (l Layout) ScreenJSON(pid, sid string) string {
	return filepath.Join(l.ScreenDir(pid, sid), "screen.json")
}

func (l Layout) InspectJSON(pid, sid string) string {
	return filepath.Join(l.ScreenDir(pid, sid), "inspect.json")
}

func (l Layout) HistoryJSON(pid, sid string) string {
	return filepath.Join(l.ScreenDir(pid, sid), "history.json")
}

// ScreenImagePath keeps the upstream file extension; the basename is fixed so
// thumbnail and image files of one screen cannot collide.
func (l Layout) ScreenImagePath(pid, sid, ext string) string {
	return filepath.Join(l.ScreenDir(pid, sid), "image"+ext)
}

func (l Layout) ScreenThumbnailPath(pid, sid, ext string) string {
	return filepath.Join(l.ScreenDir(pid, sid), "thumbnail"+ext)
}

func (l Layout) VersionsDir(pid, sid string) string {
	return filepath.Join(l.ScreenDir(pid, sid), "versions")
}

func (l Layout) VersionPath(pid, sid, file string) string {
	return filepath.Join(l.VersionsDir(pid, sid), file)
}

// Rel converts an absolute layout path into the slash-separated path the
// mirrored JSON documents reference, rooted at "/".
func (l Layout) Rel(path string) (string, error) {
	rel, err := filepath.Rel(l.root, path)
	if err != nil {
		return "", fmt.Errorf("storage: path %s outside docs root: %w", path, err)
	}
	return "/" + filepath.ToSlash(rel), nil
}

// RemoveProject deletes a project directory and everything below it.
func (l Layout) RemoveProject(pid string) error {
	if err := os.RemoveAll(l.ProjectDir(pid)); err != nil {
		return fmt.Errorf("storage: remove project %s: %w", pid, err)
	}
	return nil
}

// RemoveScreen deletes a single screen directory.
func (l Layout) RemoveScreen(pid, sid string) error {
	if err := os.RemoveAll(l.ScreenDir(pid, sid)); err != nil {
		return fmt.Errorf("storage: remove screen %s/%s: %w", pid, sid, err)
	}
	return nil
}

// RemoveRoot deletes the whole docs root (overwrite mode).
func (l Layout) RemoveRoot() error {
	if err := os.RemoveAll(l.root); err != nil {
		return fmt.Errorf("storage: remove docs root: %w", err)
	}
	return nil
}
