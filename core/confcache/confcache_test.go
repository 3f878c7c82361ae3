// Copyright © 2024-2026 Threshnet Inc. Licensed under the terms of a Business Source License 1.1

package confcache_test

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/threshnet/attestor/app/errors"
	"github.com/threshnet/attestor/core"
	"github.com/threshnet/attestor/core/confcache"
	"github.com/threshnet/attestor/testutil"
)

func TestAggregationConfigTTL(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()

	var fetches int
	ledger := &testutil.LedgerMock{
		AggregationConfigFunc: func(context.Context, uint64, uint8) (core.AggregationConfig, error) {
			fetches++
			return core.AggregationConfig{Required: true, ThresholdBps: 6700}, nil
		},
	}

	cache := confcache.New(ledger, confcache.WithTTL(time.Minute), confcache.WithClock(clock))

	config, err := cache.AggregationConfig(ctx, 1, 0)
	require.NoError(t, err)
	require.True(t, config.Required)
	require.Equal(t, 1, fetches)

	// Fresh entry served from cache.
	_, err = cache.AggregationConfig(ctx, 1, 0)
	require.NoError(t, err)
	require.Equal(t, 1, fetches)

	// Different job index is an independent key.
	_, err = cache.AggregationConfig(ctx, 1, 1)
	require.NoError(t, err)
	require.Equal(t, 2, fetches)

	// Expired entry is refetched, never served.
	clock.Advance(time.Minute + time.Second)
	_, err = cache.AggregationConfig(ctx, 1, 0)
	require.NoError(t, err)
	require.Equal(t, 3, fetches)
}

func TestAggregationConfigFetchError(t *testing.T) {
	ledger := &testutil.LedgerMock{
		AggregationConfigFunc: func(context.Context, uint64, uint8) (core.AggregationConfig, error) {
			return core.AggregationConfig{}, errors.New("rpc down")
		},
	}

	cache := confcache.New(ledger)

	_, err := cache.AggregationConfig(context.Background(), 1, 0)
	require.ErrorIs(t, err, core.ErrClient)
}

func TestOperatorWeightsSkipsInactiveAndFailures(t *testing.T) {
	ctx := context.Background()

	ops := []common.Address{
		testutil.RandomAddress(t),
		testutil.RandomAddress(t),
		testutil.RandomAddress(t),
	}

	ledger := &testutil.LedgerMock{
		ServiceOperatorsFunc: func(context.Context, uint64) ([]common.Address, error) {
			return ops, nil
		},
		OperatorWeightFunc: func(_ context.Context, _ uint64, operator common.Address) (core.OperatorWeight, error) {
			switch operator {
			case ops[0]:
				return core.OperatorWeight{ExposureBps: 5000, Active: true}, nil
			case ops[1]:
				return core.OperatorWeight{ExposureBps: 3000, Active: false}, nil
			default:
				return core.OperatorWeight{}, errors.New("lookup failed")
			}
		},
	}

	cache := confcache.New(ledger)

	weights, err := cache.OperatorWeights(ctx, 7)
	require.NoError(t, err)
	require.Len(t, weights.Weights, 1)
	require.Equal(t, uint16(5000), weights.Weights[ops[0]])
	require.Equal(t, uint64(5000), weights.TotalExposure)
}

func TestServiceOperatorsRoster(t *testing.T) {
	ctx := context.Background()

	ops := []common.Address{testutil.RandomAddress(t), testutil.RandomAddress(t)}
	ledger := &testutil.LedgerMock{
		ServiceOperatorsFunc: func(context.Context, uint64) ([]common.Address, error) {
			return ops, nil
		},
	}

	cache := confcache.New(ledger)

	roster, err := cache.ServiceOperators(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 2, roster.Len())

	idx, ok := roster.IndexOf(ops[1])
	require.True(t, ok)
	require.Equal(t, 1, idx)

	_, ok = roster.IndexOf(testutil.RandomAddress(t))
	require.False(t, ok)
}

func TestPrepopulateAndInvalidate(t *testing.T) {
	ctx := context.Background()

	var fetches int
	ledger := &testutil.LedgerMock{
		AggregationConfigFunc: func(context.Context, uint64, uint8) (core.AggregationConfig, error) {
			fetches++
			return core.AggregationConfig{}, nil
		},
	}

	cache := confcache.New(ledger)
	cache.SetAggregationConfig(1, 0, core.AggregationConfig{Required: true})

	config, err := cache.AggregationConfig(ctx, 1, 0)
	require.NoError(t, err)
	require.True(t, config.Required)
	require.Zero(t, fetches)

	cache.InvalidateService(1)

	config, err = cache.AggregationConfig(ctx, 1, 0)
	require.NoError(t, err)
	require.False(t, config.Required)
	require.Equal(t, 1, fetches)
}

func TestServiceOperatorMetadata(t *testing.T) {
	ctx := context.Background()

	ops := []common.Address{testutil.RandomAddress(t), testutil.RandomAddress(t)}
	ledger := &testutil.LedgerMock{
		ServiceOperatorsFunc: func(context.Context, uint64) ([]common.Address, error) {
			return ops, nil
		},
		OperatorMetadataFunc: func(_ context.Context, _ uint64, operator common.Address) (core.OperatorMetadata, error) {
			return core.OperatorMetadata{RPCEndpoint: "http://" + operator.Hex()}, nil
		},
	}

	cache := confcache.New(ledger)

	meta, err := cache.ServiceOperatorMetadata(ctx, 9, 1)
	require.NoError(t, err)
	require.Len(t, meta, 2)
	require.Equal(t, "http://"+ops[0].Hex(), meta[ops[0]].RPCEndpoint)
}
