// Copyright © 2024-2026 Threshnet Inc. Licensed under the terms of a Business Source License 1.1

package threshold_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/threshnet/attestor/core"
	"github.com/threshnet/attestor/core/threshold"
)

func TestRequiredSignersCountBased(t *testing.T) {
	tests := []struct {
		name     string
		total    int
		bps      uint16
		required int
	}{
		{name: "67% of 3", total: 3, bps: 6700, required: 2},
		{name: "50% of 4", total: 4, bps: 5000, required: 2},
		{name: "100% of 5", total: 5, bps: 10000, required: 5},
		{name: "1% of 10 still requires one", total: 10, bps: 100, required: 1},
		{name: "single operator", total: 1, bps: 6700, required: 1},
		{name: "67% of 100", total: 100, bps: 6700, required: 67},
		{name: "zero threshold", total: 5, bps: 0, required: 1},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := threshold.RequiredSigners(test.total, test.bps, core.ThresholdCountBased, nil)
			require.Equal(t, test.required, got)
		})
	}
}

func TestRequiredSignersBounds(t *testing.T) {
	for total := 1; total <= 20; total++ {
		for bps := uint16(0); bps <= 10000; bps += 500 {
			got := threshold.RequiredSigners(total, bps, core.ThresholdCountBased, nil)
			require.GreaterOrEqual(t, got, 1)
			require.LessOrEqual(t, got, total)

			expected := total * int(bps) / 10000
			if expected < 1 {
				expected = 1
			}
			require.Equal(t, expected, got)
		}
	}
}

func TestRequiredSignersStakeWeighted(t *testing.T) {
	tests := []struct {
		name     string
		total    int
		bps      uint16
		stakes   []uint64
		required int
	}{
		{name: "nil stakes falls back to count", total: 3, bps: 6700, stakes: nil, required: 2},
		{name: "all-zero stakes falls back to count", total: 3, bps: 6700, stakes: []uint64{0, 0, 0}, required: 2},
		{name: "equal stakes", total: 3, bps: 6700, stakes: []uint64{10, 10, 10}, required: 2},
		{name: "unequal stakes", total: 3, bps: 6700, stakes: []uint64{5, 3, 2}, required: 2},
		{name: "dominant stake", total: 4, bps: 5000, stakes: []uint64{70, 10, 10, 10}, required: 1},
		{name: "low threshold still requires one", total: 3, bps: 100, stakes: []uint64{100, 100, 100}, required: 1},
		{name: "full threshold requires all", total: 3, bps: 10000, stakes: []uint64{5, 3, 2}, required: 3},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := threshold.RequiredSigners(test.total, test.bps, core.ThresholdStakeWeighted, test.stakes)
			require.Equal(t, test.required, got)
		})
	}
}

func TestStakeWeightedGreedyCover(t *testing.T) {
	// total_stake=10, required_stake=floor(10*0.67)=6, sorted desc [5,3,2],
	// 5 < 6 then 5+3 >= 6, so exactly two signers.
	got := threshold.RequiredSigners(3, 6700, core.ThresholdStakeWeighted, []uint64{2, 5, 3})
	require.Equal(t, 2, got)
}

func TestStakeWeightedEqualsCountOnNoStakes(t *testing.T) {
	for total := 1; total <= 10; total++ {
		for bps := uint16(0); bps <= 10000; bps += 1000 {
			count := threshold.RequiredSigners(total, bps, core.ThresholdCountBased, nil)
			stake := threshold.RequiredSigners(total, bps, core.ThresholdStakeWeighted, make([]uint64, total))
			require.Equal(t, count, stake)
		}
	}
}

func TestPlan(t *testing.T) {
	roster := core.NewServiceOperators([]common.Address{
		common.HexToAddress("0x01"),
		common.HexToAddress("0x02"),
		common.HexToAddress("0x03"),
	})

	t.Run("count based", func(t *testing.T) {
		plan := threshold.Plan(core.AggregationConfig{
			Required:      true,
			ThresholdBps:  6700,
			ThresholdType: core.ThresholdCountBased,
		}, roster, core.OperatorWeights{})

		require.Equal(t, core.ThresholdCountBased, plan.Type)
		require.Equal(t, uint32(2), plan.RequiredSigners)
	})

	t.Run("stake weighted", func(t *testing.T) {
		weights := core.OperatorWeights{
			Weights: map[common.Address]uint16{
				common.HexToAddress("0x01"): 5000,
				common.HexToAddress("0x02"): 3000,
				common.HexToAddress("0x03"): 2000,
			},
			TotalExposure: 10000,
		}

		plan := threshold.Plan(core.AggregationConfig{
			Required:      true,
			ThresholdBps:  6700,
			ThresholdType: core.ThresholdStakeWeighted,
		}, roster, weights)

		require.Equal(t, core.ThresholdStakeWeighted, plan.Type)
		require.Equal(t, uint32(6700), plan.ThresholdBps)
		require.Len(t, plan.Stakes, 3)
		require.Equal(t, core.OperatorStake{OperatorIndex: 0, Stake: 5000}, plan.Stakes[0])
		require.Equal(t, core.OperatorStake{OperatorIndex: 2, Stake: 2000}, plan.Stakes[2])
	})

	t.Run("stake weighted without weights degrades to count", func(t *testing.T) {
		plan := threshold.Plan(core.AggregationConfig{
			Required:      true,
			ThresholdBps:  6700,
			ThresholdType: core.ThresholdStakeWeighted,
		}, roster, core.OperatorWeights{})

		require.Equal(t, core.ThresholdCountBased, plan.Type)
		require.Equal(t, uint32(2), plan.RequiredSigners)
	})
}
