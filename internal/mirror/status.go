// SPDX-License-Identifier: MIT

package mirror

import "time"

// Outcome is the final state of one project in a run. The three outcomes are
// disjoint: every project ends in exactly one of them.
type Outcome string

const (
	OutcomeSuccessful Outcome = "successful"
	OutcomeIgnored    Outcome = "ignored"
	OutcomeFailed     Outcome = "failed"
)

// ProjectResult records how one project fared.
type ProjectResult struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Outcome         Outcome `json:"outcome"`
	Screens         int     `json:"screens"`
	ArchivedScreens int     `json:"archived_screens"`
	Error           string  `json:"error,omitempty"`
}

// Status summarises a completed run.
type Status struct {
	RunID      string          `json:"run_id"`
	Mode       string          `json:"mode,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	DurationMS int64           `json:"duration_ms"`
	Successful int             `json:"successful"`
	Ignored    int             `json:"ignored"`
	Failed     int             `json:"failed"`
	Projects   []ProjectResult `json:"projects"`
}

// Outcome classifies the whole run; a run is successful iff nothing failed.
func (s *Status) Outcome() string {
	if s.Failed > 0 {
		return "partial"
	}
	return "success"
}

func (s *Status) record(res ProjectResult) {
	s.Projects = append(s.Projects, res)
	switch res.Outcome {
	case OutcomeSuccessful:
		s.Successful++
	case OutcomeIgnored:
		s.Ignored++
	default:
		s.Failed++
	}
}
