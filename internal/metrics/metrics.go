package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AcquisitionsTotal counts acquisitions by source and outcome.
	AcquisitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cin_acquisitions_total",
			Help: "Total number of image acquisitions.",
		},
		[]string{"source", "outcome"}, // outcome: ok, permission_denied, error
	)

	// CropsTotal counts crop attempts by outcome.
	CropsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cin_crops_total",
			Help: "Total number of guide frame crops.",
		},
		[]string{"outcome"}, // outcome: cropped, skipped_geometry, failed
	)

	// SubmissionsTotal counts submissions by outcome.
	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cin_submissions_total",
			Help: "Total number of document submissions.",
		},
		[]string{"outcome"}, // outcome: ok, rejected, failed, no_image
	)

	// SubmissionDuration observes the extractor round-trip.
	SubmissionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cin_submission_duration_seconds",
			Help:    "Duration of document submissions.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	// HTTPRequestsTotal counts admin server requests.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cin_admin_http_requests_total",
			Help: "Total number of admin HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
)
