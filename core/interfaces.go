// Copyright © 2024-2026 Threshnet Inc. Licensed under the terms of a Business Source License 1.1

package core

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Ledger is the client interface to the on-chain services contract.
// Implementations with DryRun set must short-circuit all state-mutating
// calls into logged no-op successes.
type Ledger interface {
	// SubmitResult submits a non-aggregated job result.
	SubmitResult(ctx context.Context, serviceID, callID uint64, output []byte) (SubmitReceipt, error)

	// SubmitAggregatedResult submits an aggregated job result with its BLS proof.
	SubmitAggregatedResult(ctx context.Context, result AggregatedResult) (SubmitReceipt, error)

	// AggregationConfig returns the aggregation policy of the (service, job) pair.
	AggregationConfig(ctx context.Context, serviceID uint64, jobIndex uint8) (AggregationConfig, error)

	// ServiceOperators returns the registered operator roster of the service.
	ServiceOperators(ctx context.Context, serviceID uint64) ([]common.Address, error)

	// OperatorWeight returns the weight record of one operator in the service.
	OperatorWeight(ctx context.Context, serviceID uint64, operator common.Address) (OperatorWeight, error)

	// OperatorMetadata returns the reachability metadata an operator registered
	// for the blueprint.
	OperatorMetadata(ctx context.Context, blueprintID uint64, operator common.Address) (OperatorMetadata, error)

	// DryRun returns true if state-mutating calls are disabled.
	DryRun() bool
}

// AggregationService is the client interface to one aggregation-service endpoint.
type AggregationService interface {
	// Address returns the endpoint base URL, for logging.
	Address() string

	// InitTask initialises an aggregation task. Best effort; the task may
	// already exist from another operator.
	InitTask(ctx context.Context, serviceID, callID uint64, output []byte, operatorCount uint32, plan ThresholdPlan) error

	// SubmitSignature submits this operator's partial signature and returns the
	// service's collection progress.
	SubmitSignature(ctx context.Context, sub SignatureSubmission) (SubmissionStatus, error)

	// AggregatedResult returns the aggregated proof if threshold is met, or nil.
	AggregatedResult(ctx context.Context, serviceID, callID uint64) (*AggregateProof, error)

	// MarkSubmitted marks the task as finalised on chain. Best effort.
	MarkSubmitted(ctx context.Context, serviceID, callID uint64) error
}
