// SPDX-License-Identifier: MIT

package invision

import (
	"errors"
	"fmt"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrStatus           = errors.New("invision: unexpected upstream status")
	ErrRetriesExhausted = errors.New("invision: retries exhausted")
	ErrAuthFailed       = errors.New("invision: authentication failed")
	ErrDecode           = errors.New("invision: malformed upstream payload")
)

// UpstreamError wraps a sentinel with the operation and HTTP context that
// produced it.
type UpstreamError struct {
	Sentinel error
	Op       string
	Status   int
	Body     string
	Err      error // nested lower-level error (e.g. net.Error)
}

func (e *UpstreamError) Error() string {
	msg := fmt.Sprintf("invision: %s: %v", e.Op, e.Sentinel)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Body != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Body)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *UpstreamError) Unwrap() error {
	return e.Sentinel
}
