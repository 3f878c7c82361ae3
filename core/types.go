// Copyright © 2024-2026 Threshnet Inc. Licensed under the terms of a Business Source License 1.1

package core

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/prysmaticlabs/go-bitfield"

	"github.com/threshnet/attestor/tbls"
)

// Metadata keys of job results produced by the job runtime.
const (
	MetadataCallID    = "X-TANGLE-CALL-ID"
	MetadataServiceID = "X-TANGLE-SERVICE-ID"
	MetadataJobIndex  = "X-TANGLE-JOB-INDEX"
)

// JobResult is a finished job outcome as produced by the job runtime.
// Err is set when the job itself failed; such results are discarded at intake.
type JobResult struct {
	Err      error             `json:"-"`
	Error    string            `json:"error,omitempty"`
	Metadata map[string]string `json:"metadata"`
	Output   hexutil.Bytes     `json:"output"`
}

// Failed returns true if the job outcome carries an error marker.
func (r JobResult) Failed() bool {
	return r.Err != nil || r.Error != ""
}

// PendingJobResult is a job result with parsed routing metadata, owned by the
// consumer's buffer until its submission attempt completes.
type PendingJobResult struct {
	ServiceID uint64
	CallID    uint64
	JobIndex  uint8
	Output    []byte
}

// ThresholdType defines how the signing quorum for a job is weighted.
type ThresholdType int

const (
	// ThresholdCountBased requires a fraction of the operator count to sign.
	ThresholdCountBased ThresholdType = iota
	// ThresholdStakeWeighted requires a fraction of the total operator stake to sign.
	ThresholdStakeWeighted
)

func (t ThresholdType) String() string {
	switch t {
	case ThresholdCountBased:
		return "count_based"
	case ThresholdStakeWeighted:
		return "stake_weighted"
	default:
		return "unknown"
	}
}

// AggregationConfig is the on-chain aggregation policy of a (service, job) pair.
type AggregationConfig struct {
	// Required indicates whether results of this job must be aggregated.
	Required bool
	// ThresholdBps is the signing threshold in basis points (0..=10000).
	ThresholdBps uint16
	// ThresholdType selects the weighting policy of the threshold.
	ThresholdType ThresholdType
}

// ServiceOperators is the ordered operator roster of a service.
type ServiceOperators struct {
	Operators []common.Address
	indexes   map[common.Address]int
}

// NewServiceOperators returns a roster with operator indexes assigned in list order.
func NewServiceOperators(operators []common.Address) ServiceOperators {
	indexes := make(map[common.Address]int, len(operators))
	for i, addr := range operators {
		indexes[addr] = i
	}

	return ServiceOperators{
		Operators: operators,
		indexes:   indexes,
	}
}

// IndexOf returns the roster index of the operator used in signer bitmaps.
func (o ServiceOperators) IndexOf(operator common.Address) (int, bool) {
	idx, ok := o.indexes[operator]
	return idx, ok
}

// Len returns the number of operators in the roster.
func (o ServiceOperators) Len() int {
	return len(o.Operators)
}

// IsEmpty returns true if the roster has no operators.
func (o ServiceOperators) IsEmpty() bool {
	return len(o.Operators) == 0
}

// OperatorWeight is the on-chain weight record of one operator in a service.
type OperatorWeight struct {
	ExposureBps uint16
	Active      bool
}

// OperatorWeights maps a service's operators to their stake exposure.
type OperatorWeights struct {
	Weights       map[common.Address]uint16
	TotalExposure uint64
}

// IsEmpty returns true if no operator weights are known.
func (w OperatorWeights) IsEmpty() bool {
	return len(w.Weights) == 0
}

// Stakes returns the per-operator stakes in roster order, zero for operators
// without a weight record.
func (w OperatorWeights) Stakes(roster ServiceOperators) []uint64 {
	stakes := make([]uint64, 0, roster.Len())
	for _, operator := range roster.Operators {
		stakes = append(stakes, uint64(w.Weights[operator]))
	}

	return stakes
}

// OperatorMetadata is the off-chain reachability record an operator registers on chain.
type OperatorMetadata struct {
	RPCEndpoint string
}

// OperatorStake pairs a roster index with that operator's stake.
type OperatorStake struct {
	OperatorIndex uint32 `json:"operator_index"`
	Stake         uint64 `json:"stake"`
}

// ThresholdPlan is a resolved quorum requirement sent to aggregation services.
// Either RequiredSigners (count based) or ThresholdBps plus Stakes (stake weighted)
// is populated, selected by Type.
type ThresholdPlan struct {
	Type            ThresholdType
	RequiredSigners uint32
	ThresholdBps    uint32
	Stakes          []OperatorStake
}

// CountPlan returns a count-based threshold plan.
func CountPlan(requiredSigners uint32) ThresholdPlan {
	return ThresholdPlan{
		Type:            ThresholdCountBased,
		RequiredSigners: requiredSigners,
	}
}

// StakePlan returns a stake-weighted threshold plan.
func StakePlan(thresholdBps uint32, stakes []OperatorStake) ThresholdPlan {
	return ThresholdPlan{
		Type:         ThresholdStakeWeighted,
		ThresholdBps: thresholdBps,
		Stakes:       stakes,
	}
}

// SignatureSubmission is one operator's partial signature over a job result,
// submitted to an aggregation service.
type SignatureSubmission struct {
	ServiceID     uint64
	CallID        uint64
	OperatorIndex uint32
	Output        []byte
	Signature     []byte
	PublicKey     []byte
}

// SubmissionStatus reports an aggregation service's collection progress after
// accepting a signature submission.
type SubmissionStatus struct {
	SignaturesCollected int
	ThresholdRequired   int
	ThresholdMet        bool
}

// AggregateProof is the raw aggregated result returned by an aggregation service
// once threshold is met. Signature and public key are compressed curve points,
// parsed only at on-chain submission time.
type AggregateProof struct {
	ServiceID           uint64
	CallID              uint64
	Output              []byte
	SignerBitmap        []byte
	AggregatedSignature []byte
	AggregatedPublicKey []byte
}

// AggregatedResult is the payload submitted to the ledger's aggregated-result
// acceptance entry point.
type AggregatedResult struct {
	ServiceID    uint64
	CallID       uint64
	Output       []byte
	SignerBitmap bitfield.Bitlist
	Signature    tbls.Signature
	PublicKey    tbls.PublicKey
}

// SubmitReceipt is the outcome of an on-chain submission attempt.
type SubmitReceipt struct {
	Success bool
	TxHash  common.Hash
}
