// Copyright © 2024-2026 Threshnet Inc. Licensed under the terms of a Business Source License 1.1

package core

import "github.com/threshnet/attestor/app/errors"

// Submission workflow error taxonomy. Callers branch on these sentinels with
// errors.Is; underlying causes are attached as structured fields when wrapping.
var (
	// ErrClient indicates a generic upstream query or communication failure.
	ErrClient = errors.NewSentinel("upstream client failure")

	// ErrInvalidMetadata indicates a job result carrying a routing metadata field
	// that is present but not parseable. Note results with routing metadata absent
	// entirely are silently discarded at intake instead.
	ErrInvalidMetadata = errors.NewSentinel("invalid job result metadata")

	// ErrTransaction indicates an on-chain call failed or reverted.
	ErrTransaction = errors.NewSentinel("transaction failed")

	// ErrAggregation indicates a lower-level aggregation protocol failure.
	ErrAggregation = errors.NewSentinel("aggregation failure")

	// ErrAggregationService indicates an aggregation-service endpoint failure.
	ErrAggregationService = errors.NewSentinel("aggregation service failure")

	// ErrBls indicates malformed cryptographic material.
	ErrBls = errors.NewSentinel("malformed bls material")

	// ErrAggregationNotConfigured indicates a job requires aggregation but no
	// aggregation service is configured. Fatal, not retried.
	ErrAggregationNotConfigured = errors.NewSentinel("aggregation required but not configured")
)
