// SPDX-License-Identifier: MIT

package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"

	"github.com/mirrorlab/invmirror/internal/log"
)

// jsonIndent matches the archive's historical formatting; the serving layer
// and external consumers diff these files, so it stays stable.
const jsonIndent = "    "

// WriteJSON pretty-prints a raw JSON document and writes it atomically.
// renameio gives temp-file + fsync + rename, so readers never observe a
// partial document and a crash cannot corrupt an existing one.
func WriteJSON(path string, doc []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, doc, "", jsonIndent); err != nil {
		return fmt.Errorf("storage: indent %s: %w", path, err)
	}

	if err := ensureParent(path); err != nil {
		return err
	}

	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("storage: create pending file for %s: %w", path, err)
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			logger := log.WithComponent("storage")
			logger.Debug().Err(err).Str(log.FieldPath, path).Msg("cleanup pending file")
		}
	}()

	if _, err := pending.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("storage: write %s: %w", path, err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("storage: replace %s: %w", path, err)
	}
	return nil
}

// MarshalJSON writes a Go value as a pretty-printed JSON document.
func MarshalJSON(path string, v any) error {
	doc, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("storage: marshal %s: %w", path, err)
	}
	return WriteJSON(path, doc)
}

// WriteFile streams binary content (an asset payload) to path atomically and
// reports the number of bytes written.
func WriteFile(path string, r io.Reader) (int64, error) {
	if err := ensureParent(path); err != nil {
		return 0, err
	}

	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return 0, fmt.Errorf("storage: create pending file for %s: %w", path, err)
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			logger := log.WithComponent("storage")
			logger.Debug().Err(err).Str(log.FieldPath, path).Msg("cleanup pending file")
		}
	}()

	n, err := io.Copy(pending, r)
	if err != nil {
		return 0, fmt.Errorf("storage: write %s: %w", path, err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return 0, fmt.Errorf("storage: replace %s: %w", path, err)
	}
	return n, nil
}

// ReadJSON loads a stored document.
func ReadJSON(path string) ([]byte, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- paths come from Layout
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", path, err)
	}
	return data, nil
}

func ensureParent(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("storage: mkdir %s: %w", filepath.Dir(path), err)
	}
	return nil
}
