// SPDX-License-Identifier: MIT

package mirror

import "errors"

var (
	// ErrMissingCredentials means no upstream email/password were configured.
	ErrMissingCredentials = errors.New("mirror: INVISION_EMAIL and INVISION_PASSWORD must be set")

	// ErrDocsRootConflict means the docs root already holds data and no
	// overwrite/update option was given.
	ErrDocsRootConflict = errors.New("mirror: docs root already exists, expected 'overwrite' or 'update' option")

	// ErrInvalidMode means the run option was neither empty nor a known mode.
	ErrInvalidMode = errors.New("mirror: invalid option, use 'update' or 'overwrite'")
)
