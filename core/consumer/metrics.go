// Copyright © 2024-2026 Threshnet Inc. Licensed under the terms of a Business Source License 1.1

package consumer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	resultsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attestor",
		Subsystem: "consumer",
		Name:      "results_total",
		Help:      "Total number of job results received by intake outcome",
	}, []string{"outcome"})

	processedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attestor",
		Subsystem: "consumer",
		Name:      "processed_total",
		Help:      "Total number of buffered job results processed by outcome",
	}, []string{"outcome"})

	queueGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "attestor",
		Subsystem: "consumer",
		Name:      "queue_length",
		Help:      "Current number of job results buffered awaiting submission",
	})
)
