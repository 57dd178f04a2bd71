// SPDX-License-Identifier: MIT

package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLayoutPaths(t *testing.T) {
	l := NewLayout("/data/docs")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"tags", l.TagsPath(), "/data/docs/common/tags.json"},
		{"avatar", l.AvatarPath("u1.png"), "/data/docs/common/avatars/u1.png"},
		{"project json", l.ProjectJSON("42"), "/data/docs/projects/42/project.json"},
		{"screens json", l.ScreensJSON("42"), "/data/docs/projects/42/screens.json"},
		{"shares json", l.SharesJSON("42"), "/data/docs/projects/42/shares.json"},
		{"asset", l.AssetPath("42", "static/img", "logo.svg"), "/data/docs/projects/42/assets/static/img/logo.svg"},
		{"screen json", l.ScreenJSON("42", "7"), "/data/docs/projects/42/screens/7/screen.json"},
		{"inspect", l.InspectJSON("42", "7"), "/data/docs/projects/42/screens/7/inspect.json"},
		{"history", l.HistoryJSON("42", "7"), "/data/docs/projects/42/screens/7/history.json"},
		{"image", l.ScreenImagePath("42", "7", ".png"), "/data/docs/projects/42/screens/7/image.png"},
		{"thumbnail", l.ScreenThumbnailPath("42", "7", ".jpg"), "/data/docs/projects/42/screens/7/thumbnail.jpg"},
		{"version", l.VersionPath("42", "7", "123.png"), "/data/docs/projects/42/screens/7/versions/123.png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != filepath.FromSlash(tt.want) {
				t.Errorf("got %s, want %s", tt.got, tt.want)
			}
		})
	}
}

func TestLayoutRel(t *testing.T) {
	l := NewLayout("/data/docs")

	rel, err := l.Rel(l.ScreenImagePath("42", "7", ".png"))
	if err != nil {
		t.Fatalf("Rel() failed: %v", err)
	}
	if rel != "/projects/42/screens/7/image.png" {
		t.Errorf("Rel() = %s, want /projects/42/screens/7/image.png", rel)
	}
}

func TestWriteJSONPrettyPrints(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "doc.json")

	if err := WriteJSON(path, []byte(`{"id":1,"data":{"name":"a"}}`)); err != nil {
		t.Fatalf("WriteJSON() failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	want := "{\n    \"id\": 1,\n    \"data\": {\n        \"name\": \"a\"\n    }\n}"
	if string(data) != want {
		t.Errorf("formatted output mismatch:\ngot:  %q\nwant: %q", data, want)
	}
}

func TestWriteJSONRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	if err := WriteJSON(path, []byte(`{"broken":`)); err == nil {
		t.Fatal("expected error for invalid JSON, got nil")
	}
	if Exists(path) {
		t.Error("invalid document must not be written")
	}
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "assets", "img.png")
	payload := "binary-ish payload"

	n, err := WriteFile(path, strings.NewReader(payload))
	if err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	if n != int64(len(payload)) {
		t.Errorf("WriteFile() wrote %d bytes, want %d", n, len(payload))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != payload {
		t.Errorf("content mismatch: got %q", data)
	}
}

func TestGlobExists(t *testing.T) {
	dir := t.TempDir()
	if GlobExists(dir, "image") {
		t.Error("GlobExists() = true for empty dir")
	}
	if err := os.WriteFile(filepath.Join(dir, "image.png"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !GlobExists(dir, "image") {
		t.Error("GlobExists() = false, want true")
	}
	if GlobExists(dir, "thumbnail") {
		t.Error("GlobExists() matched the wrong basename")
	}
}

func TestCountEntries(t *testing.T) {
	dir := t.TempDir()

	n, err := CountEntries(filepath.Join(dir, "missing"))
	if err != nil || n != 0 {
		t.Errorf("CountEntries(missing) = (%d, %v), want (0, nil)", n, err)
	}

	sub := filepath.Join(dir, "versions")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, f := range []string{"1.png", "2.png"} {
		if err := os.WriteFile(filepath.Join(sub, f), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	n, err = CountEntries(sub)
	if err != nil || n != 2 {
		t.Errorf("CountEntries() = (%d, %v), want (2, nil)", n, err)
	}
}

func TestDirNonEmpty(t *testing.T) {
	dir := t.TempDir()

	nonEmpty, err := DirNonEmpty(filepath.Join(dir, "missing"))
	if err != nil || nonEmpty {
		t.Errorf("DirNonEmpty(missing) = (%v, %v), want (false, nil)", nonEmpty, err)
	}

	nonEmpty, err = DirNonEmpty(dir)
	if err != nil || nonEmpty {
		t.Errorf("DirNonEmpty(empty) = (%v, %v), want (false, nil)", nonEmpty, err)
	}

	if err := os.WriteFile(filepath.Join(dir, "f"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	nonEmpty, err = DirNonEmpty(dir)
	if err != nil || !nonEmpty {
		t.Errorf("DirNonEmpty(populated) = (%v, %v), want (true, nil)", nonEmpty, err)
	}
}

func TestRemoveScreenAndProject(t *testing.T) {
	root := t.TempDir()
	l := NewLayout(root)

	if err := WriteJSON(l.ScreenJSON("1", "2"), []byte(`{}`)); err != nil {
		t.Fatal(err)
	}
	if err := WriteJSON(l.ProjectJSON("1"), []byte(`{}`)); err != nil {
		t.Fatal(err)
	}

	if err := l.RemoveScreen("1", "2"); err != nil {
		t.Fatalf("RemoveScreen() failed: %v", err)
	}
	if Exists(l.ScreenDir("1", "2")) {
		t.Error("screen dir still present after RemoveScreen")
	}
	if !Exists(l.ProjectJSON("1")) {
		t.Error("RemoveScreen must not touch the project document")
	}

	if err := l.RemoveProject("1"); err != nil {
		t.Fatalf("RemoveProject() failed: %v", err)
	}
	if Exists(l.ProjectDir("1")) {
		t.Error("project dir still present after RemoveProject")
	}
}

func TestProjectIDs(t *testing.T) {
	root := t.TempDir()
	l := NewLayout(root)

	ids, err := l.ProjectIDs()
	if err != nil || len(ids) != 0 {
		t.Errorf("ProjectIDs(empty) = (%v, %v), want ([], nil)", ids, err)
	}

	for _, pid := range []string{"7", "3"} {
		if err := WriteJSON(l.ProjectJSON(pid), []byte(`{}`)); err != nil {
			t.Fatal(err)
		}
	}
	ids, err = l.ProjectIDs()
	if err != nil {
		t.Fatalf("ProjectIDs() failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != "3" || ids[1] != "7" {
		t.Errorf("ProjectIDs() = %v, want [3 7]", ids)
	}
}
