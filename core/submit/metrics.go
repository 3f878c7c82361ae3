// Copyright © 2024-2026 Threshnet Inc. Licensed under the terms of a Business Source License 1.1

package submit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	pathDirect     = "direct"
	pathAggregated = "aggregated"

	outcomeSuccess = "success"
	outcomeError   = "error"
	outcomeDryRun  = "dry_run"
)

var (
	submissionsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attestor",
		Subsystem: "submit",
		Name:      "submissions_total",
		Help:      "Total number of job result submissions by path and outcome",
	}, []string{"path", "outcome"})

	endpointErrorsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attestor",
		Subsystem: "submit",
		Name:      "endpoint_errors_total",
		Help:      "Total number of aggregation endpoint submission errors by endpoint",
	}, []string{"endpoint"})
)
