// SPDX-License-Identifier: MIT

package mirror

import (
	"github.com/mirrorlab/invmirror/internal/config"
	"github.com/mirrorlab/invmirror/internal/invision"
)

// Config holds everything one run needs.
type Config struct {
	Email    string
	Password string
	DocsRoot string
	Mode     Mode

	// TestMode restricts the run to one project per type.
	TestMode bool

	// Workers caps concurrent screen tasks within a project.
	Workers int

	// Upstream tunes the client; credentials are copied in by Run.
	Upstream invision.Options
}

// FromAppConfig maps the daemon configuration onto a run configuration.
func FromAppConfig(c config.Config, mode Mode) (Config, error) {
	caFile, err := c.CAFilePath()
	if err != nil {
		return Config{}, err
	}
	return Config{
		Email:    c.Email,
		Password: c.Password,
		DocsRoot: c.DocsRoot,
		Mode:     mode,
		TestMode: c.TestMode,
		Workers:  c.Workers,
		Upstream: invision.Options{
			UserAgent:         c.UserAgent,
			MaxRetries:        c.MaxRetries,
			RetryWait:         c.RetryWait,
			RetryMaxWait:      c.RetryMaxWait,
			RequestsPerSecond: c.RequestsPerSecond,
			CAFile:            caFile,
		},
	}, nil
}
