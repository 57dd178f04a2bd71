// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldRunID     = "run_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldOutcome   = "outcome"
	FieldMode      = "mode"

	// Mirror entity fields
	FieldProjectID = "project_id"
	FieldScreenID  = "screen_id"
	FieldShareKey  = "share_key"

	// Transport fields
	FieldURL     = "url"
	FieldStatus  = "status"
	FieldAttempt = "attempt"

	// Path fields
	FieldPath     = "path"
	FieldDocsRoot = "docs_root"
)
