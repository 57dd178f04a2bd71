// SPDX-License-Identifier: MIT
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	upstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "invmirror_upstream_requests_total",
		Help: "Upstream API requests by endpoint and outcome",
	}, []string{"endpoint", "outcome"}) // outcome=success|failure

	upstreamRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "invmirror_upstream_retries_total",
		Help: "Total number of retried upstream requests",
	})

	assetsDownloadedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "invmirror_assets_downloaded_total",
		Help: "Total number of asset files downloaded",
	})

	assetBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "invmirror_asset_bytes_total",
		Help: "Total bytes of asset payloads written to disk",
	})

	assetsSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "invmirror_assets_skipped_total",
		Help: "Asset downloads skipped because the destination already exists",
	})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "invmirror_runs_total",
		Help: "Mirror runs by outcome",
	}, []string{"outcome"}) // outcome=success|partial|fatal

	runDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "invmirror_run_duration_seconds",
		Help:    "Wall-clock duration of mirror runs",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10),
	})

	runInProgress = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "invmirror_run_in_progress",
		Help: "Whether a mirror run is currently executing (1) or not (0)",
	})

	projectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "invmirror_projects_total",
		Help: "Projects processed by outcome",
	}, []string{"outcome"}) // outcome=successful|ignored|failed

	screensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "invmirror_screens_total",
		Help: "Screen tasks by outcome",
	}, []string{"outcome"}) // outcome=success|failure|skipped
)

func IncUpstreamRequest(endpoint, outcome string) {
	upstreamRequestsTotal.WithLabelValues(endpoint, outcome).Inc()
}

func IncUpstreamRetry() { upstreamRetriesTotal.Inc() }

func RecordAssetDownload(bytes int) {
	assetsDownloadedTotal.Inc()
	assetBytesTotal.Add(float64(bytes))
}

func IncAssetSkipped() { assetsSkippedTotal.Inc() }

func RecordRun(outcome string, duration time.Duration) {
	runsTotal.WithLabelValues(outcome).Inc()
	runDurationSeconds.Observe(duration.Seconds())
}

func SetRunInProgress(active bool) {
	if active {
		runInProgress.Set(1)
		return
	}
	runInProgress.Set(0)
}

func AddProjectOutcomes(successful, ignored, failed int) {
	projectsTotal.WithLabelValues("successful").Add(float64(successful))
	projectsTotal.WithLabelValues("ignored").Add(float64(ignored))
	projectsTotal.WithLabelValues("failed").Add(float64(failed))
}

func IncScreenOutcome(outcome string) {
	screensTotal.WithLabelValues(outcome).Inc()
}
