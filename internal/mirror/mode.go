// SPDX-License-Identifier: MIT

package mirror

import (
	"fmt"
	"strings"
)

// Mode controls how a run treats an existing archive.
type Mode string

const (
	// ModeNone refuses to touch a non-empty docs root.
	ModeNone Mode = ""
	// ModeOverwrite removes the docs root before mirroring.
	ModeOverwrite Mode = "overwrite"
	// ModeUpdate keeps the archive and reconciles it against the upstream.
	ModeUpdate Mode = "update"
)

// ParseMode validates a run option. The empty string is a valid mode; any
// other unknown value is a configuration error caught before network I/O.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeNone:
		return ModeNone, nil
	case ModeOverwrite:
		return ModeOverwrite, nil
	case ModeUpdate:
		return ModeUpdate, nil
	default:
		return ModeNone, fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

func (m Mode) String() string { return string(m) }
