// SPDX-License-Identifier: MIT
package metrics_test

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mirrorlab/invmirror/internal/metrics"
)

func TestPromhttpExposure(t *testing.T) {
	metrics.IncUpstreamRequest("projects", "success")
	metrics.IncUpstreamRetry()
	metrics.RecordAssetDownload(1024)
	metrics.IncAssetSkipped()
	metrics.RecordRun("success", 3*time.Second)
	metrics.SetRunInProgress(false)
	metrics.AddProjectOutcomes(1, 2, 0)
	metrics.IncScreenOutcome("success")

	srv := httptest.NewServer(promhttp.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{
		"invmirror_upstream_requests_total",
		"invmirror_assets_downloaded_total",
		"invmirror_runs_total",
		"invmirror_projects_total",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics exposition missing %s", want)
		}
	}
}
