// Copyright © 2024-2026 Threshnet Inc. Licensed under the terms of a Business Source License 1.1

package testutil

import (
	"context"

	"github.com/threshnet/attestor/core"
)

// AggServiceMock is a mock implementation of core.AggregationService.
// Overwrite the function fields to define behaviour; unset fields default to
// empty successful responses.
type AggServiceMock struct {
	Addr                 string
	InitTaskFunc         func(ctx context.Context, serviceID, callID uint64, output []byte, operatorCount uint32, plan core.ThresholdPlan) error
	SubmitSignatureFunc  func(ctx context.Context, sub core.SignatureSubmission) (core.SubmissionStatus, error)
	AggregatedResultFunc func(ctx context.Context, serviceID, callID uint64) (*core.AggregateProof, error)
	MarkSubmittedFunc    func(ctx context.Context, serviceID, callID uint64) error
}

func (m *AggServiceMock) Address() string {
	if m.Addr == "" {
		return "http://mock-aggsvc"
	}

	return m.Addr
}

func (m *AggServiceMock) InitTask(ctx context.Context, serviceID, callID uint64, output []byte,
	operatorCount uint32, plan core.ThresholdPlan,
) error {
	if m.InitTaskFunc == nil {
		return nil
	}

	return m.InitTaskFunc(ctx, serviceID, callID, output, operatorCount, plan)
}

func (m *AggServiceMock) SubmitSignature(ctx context.Context, sub core.SignatureSubmission) (core.SubmissionStatus, error) {
	if m.SubmitSignatureFunc == nil {
		return core.SubmissionStatus{}, nil
	}

	return m.SubmitSignatureFunc(ctx, sub)
}

func (m *AggServiceMock) AggregatedResult(ctx context.Context, serviceID, callID uint64) (*core.AggregateProof, error) {
	if m.AggregatedResultFunc == nil {
		return nil, nil
	}

	return m.AggregatedResultFunc(ctx, serviceID, callID)
}

func (m *AggServiceMock) MarkSubmitted(ctx context.Context, serviceID, callID uint64) error {
	if m.MarkSubmittedFunc == nil {
		return nil
	}

	return m.MarkSubmittedFunc(ctx, serviceID, callID)
}
