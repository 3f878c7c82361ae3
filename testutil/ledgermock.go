// Copyright © 2024-2026 Threshnet Inc. Licensed under the terms of a Business Source License 1.1

package testutil

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/threshnet/attestor/core"
)

// LedgerMock is a mock implementation of core.Ledger.
// Overwrite the function fields to define behaviour; unset fields default to
// empty successful responses.
type LedgerMock struct {
	SubmitResultFunc           func(ctx context.Context, serviceID, callID uint64, output []byte) (core.SubmitReceipt, error)
	SubmitAggregatedResultFunc func(ctx context.Context, result core.AggregatedResult) (core.SubmitReceipt, error)
	AggregationConfigFunc      func(ctx context.Context, serviceID uint64, jobIndex uint8) (core.AggregationConfig, error)
	ServiceOperatorsFunc       func(ctx context.Context, serviceID uint64) ([]common.Address, error)
	OperatorWeightFunc         func(ctx context.Context, serviceID uint64, operator common.Address) (core.OperatorWeight, error)
	OperatorMetadataFunc       func(ctx context.Context, blueprintID uint64, operator common.Address) (core.OperatorMetadata, error)
	DryRunFlag                 bool
}

func (m *LedgerMock) SubmitResult(ctx context.Context, serviceID, callID uint64, output []byte) (core.SubmitReceipt, error) {
	if m.SubmitResultFunc == nil {
		return core.SubmitReceipt{Success: true}, nil
	}

	return m.SubmitResultFunc(ctx, serviceID, callID, output)
}

func (m *LedgerMock) SubmitAggregatedResult(ctx context.Context, result core.AggregatedResult) (core.SubmitReceipt, error) {
	if m.SubmitAggregatedResultFunc == nil {
		return core.SubmitReceipt{Success: true}, nil
	}

	return m.SubmitAggregatedResultFunc(ctx, result)
}

func (m *LedgerMock) AggregationConfig(ctx context.Context, serviceID uint64, jobIndex uint8) (core.AggregationConfig, error) {
	if m.AggregationConfigFunc == nil {
		return core.AggregationConfig{}, nil
	}

	return m.AggregationConfigFunc(ctx, serviceID, jobIndex)
}

func (m *LedgerMock) ServiceOperators(ctx context.Context, serviceID uint64) ([]common.Address, error) {
	if m.ServiceOperatorsFunc == nil {
		return nil, nil
	}

	return m.ServiceOperatorsFunc(ctx, serviceID)
}

func (m *LedgerMock) OperatorWeight(ctx context.Context, serviceID uint64, operator common.Address) (core.OperatorWeight, error) {
	if m.OperatorWeightFunc == nil {
		return core.OperatorWeight{}, nil
	}

	return m.OperatorWeightFunc(ctx, serviceID, operator)
}

func (m *LedgerMock) OperatorMetadata(ctx context.Context, blueprintID uint64, operator common.Address) (core.OperatorMetadata, error) {
	if m.OperatorMetadataFunc == nil {
		return core.OperatorMetadata{}, nil
	}

	return m.OperatorMetadataFunc(ctx, blueprintID, operator)
}

func (m *LedgerMock) DryRun() bool {
	return m.DryRunFlag
}
