// Copyright © 2024-2026 Threshnet Inc. Licensed under the terms of a Business Source License 1.1

package confcache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	hitsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attestor",
		Subsystem: "confcache",
		Name:      "hits_total",
		Help:      "Total number of config cache hits by entry kind",
	}, []string{"kind"})

	missesCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attestor",
		Subsystem: "confcache",
		Name:      "misses_total",
		Help:      "Total number of config cache misses by entry kind",
	}, []string{"kind"})
)
