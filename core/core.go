// Copyright © 2024-2026 Threshnet Inc. Licensed under the terms of a Business Source License 1.1

// Package core defines the attestor workflow's domain model: job results produced
// by the job runtime, the submission payloads derived from them, and the interfaces
// of the external collaborators (the on-chain ledger and the aggregation services).
//
// The workflow consists of the following components:
//   - consumer: buffers finished job results and drives them, one at a time,
//     through the appropriate submission path.
//   - confcache: TTL cache fronting the ledger's per-service configuration.
//   - threshold: resolves quorum requirements from on-chain threshold policy.
//   - submit: signs, fans out to aggregation services and finalises on chain.
//   - aggsvc: HTTP client for aggregation-service endpoints.
package core
