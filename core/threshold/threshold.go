// Copyright © 2024-2026 Threshnet Inc. Licensed under the terms of a Business Source License 1.1

// Package threshold resolves on-chain threshold policy into concrete quorum
// requirements. It is pure computation; fetching rosters and weights is the
// caller's concern.
package threshold

import (
	"sort"

	"github.com/threshnet/attestor/core"
)

// bpsDenominator is the basis point denominator, 100% == 10000bps.
const bpsDenominator = 10000

// RequiredSigners returns the number of signers required to meet thresholdBps
// given total operators and the weighting policy. The result is always in [1, total].
//
// For stake weighting, stakes are consumed largest first until the required
// stake is covered, so the result is the minimal greedy cover with a
// reproducible tie-break. Empty or all-zero stakes fall back to count-based.
func RequiredSigners(total int, thresholdBps uint16, typ core.ThresholdType, stakes []uint64) int {
	if typ != core.ThresholdStakeWeighted {
		return countBased(total, thresholdBps)
	}

	if allZero(stakes) {
		return countBased(total, thresholdBps)
	}

	var totalStake uint64
	for _, stake := range stakes {
		totalStake += stake
	}

	requiredStake := totalStake * uint64(thresholdBps) / bpsDenominator
	if requiredStake == 0 {
		requiredStake = 1
	}

	sorted := make([]uint64, len(stakes))
	copy(sorted, stakes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] > sorted[j] })

	var (
		accumulated uint64
		required    int
	)
	for _, stake := range sorted {
		required++
		accumulated += stake
		if accumulated >= requiredStake {
			break
		}
	}

	return clamp(required, total)
}

// countBased returns floor(total*bps/10000) clamped to [1, total].
func countBased(total int, thresholdBps uint16) int {
	if total == 0 {
		return 1
	}

	required := int(uint64(total) * uint64(thresholdBps) / bpsDenominator)

	return clamp(required, total)
}

func clamp(required, total int) int {
	if required < 1 {
		required = 1
	}
	if total >= 1 && required > total {
		required = total
	}

	return required
}

func allZero(stakes []uint64) bool {
	for _, stake := range stakes {
		if stake != 0 {
			return false
		}
	}

	return true
}

// Plan resolves the threshold plan sent to aggregation services when
// initialising a task. Stake-weighted policy degrades to a count-based plan
// when the service has no usable weights.
func Plan(config core.AggregationConfig, roster core.ServiceOperators, weights core.OperatorWeights) core.ThresholdPlan {
	if config.ThresholdType != core.ThresholdStakeWeighted {
		return core.CountPlan(uint32(countBased(roster.Len(), config.ThresholdBps)))
	}

	stakes := weights.Stakes(roster)
	if allZero(stakes) {
		return core.CountPlan(uint32(countBased(roster.Len(), config.ThresholdBps)))
	}

	operatorStakes := make([]core.OperatorStake, 0, len(stakes))
	for idx, stake := range stakes {
		operatorStakes = append(operatorStakes, core.OperatorStake{
			OperatorIndex: uint32(idx),
			Stake:         stake,
		})
	}

	return core.StakePlan(uint32(config.ThresholdBps), operatorStakes)
}
