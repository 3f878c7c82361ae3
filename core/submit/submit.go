// Copyright © 2024-2026 Threshnet Inc. Licensed under the terms of a Business Source License 1.1

// Package submit implements the job result submission workflow: direct on-chain
// submission for non-aggregated jobs, and the BLS aggregation flow for jobs
// with an on-chain quorum requirement. Multiple operators race to finalise an
// aggregated result on chain, so chain submission failures after the quorum is
// met are tolerated.
package submit

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/jonboulle/clockwork"
	"github.com/prysmaticlabs/go-bitfield"

	"github.com/threshnet/attestor/app/errors"
	"github.com/threshnet/attestor/app/log"
	"github.com/threshnet/attestor/app/z"
	"github.com/threshnet/attestor/core"
	"github.com/threshnet/attestor/core/confcache"
	"github.com/threshnet/attestor/core/threshold"
	"github.com/threshnet/attestor/tbls"
)

const (
	// DefaultThresholdTimeout bounds waiting for an aggregation quorum.
	DefaultThresholdTimeout = time.Minute
	// DefaultPollInterval is the delay between aggregated result polls.
	DefaultPollInterval = time.Second
)

// ServiceConfig configures the aggregation side of the submission workflow.
type ServiceConfig struct {
	// Clients are the aggregation-service endpoints, fanned out in order.
	Clients []core.AggregationService
	// Secret is this operator's BLS signing key.
	Secret tbls.PrivateKey
	// Public is the public key of Secret.
	Public tbls.PublicKey
	// OperatorIndex is this operator's index in the service roster.
	OperatorIndex uint32
	// WaitForThreshold blocks submission until the quorum is met.
	WaitForThreshold bool
	// ThresholdTimeout bounds the wait for the quorum.
	ThresholdTimeout time.Duration
	// PollInterval is the delay between aggregated result polls.
	PollInterval time.Duration
	// SubmitToChain enables on-chain finalisation of aggregated results.
	SubmitToChain bool
}

// NewServiceConfig returns an aggregation config with the public key derived
// from the secret and defaults applied.
func NewServiceConfig(clients []core.AggregationService, secret tbls.PrivateKey, operatorIndex uint32) (*ServiceConfig, error) {
	public, err := tbls.SecretToPublicKey(secret)
	if err != nil {
		return nil, errors.Wrap(core.ErrBls, "derive public key", z.Err(err))
	}

	return &ServiceConfig{
		Clients:          clients,
		Secret:           secret,
		Public:           public,
		OperatorIndex:    operatorIndex,
		ThresholdTimeout: DefaultThresholdTimeout,
		PollInterval:     DefaultPollInterval,
		SubmitToChain:    true,
	}, nil
}

// Option configures the submitter.
type Option func(*Submitter)

// WithClock overrides the clock, for testing.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Submitter) {
		s.clock = clock
	}
}

// Submitter submits finished job results, routing each through the direct or
// aggregated path according to the job's on-chain aggregation policy.
type Submitter struct {
	ledger core.Ledger
	cache  *confcache.Cache
	agg    *ServiceConfig
	clock  clockwork.Clock
}

// New returns a submitter. agg may be nil, in which case jobs requiring
// aggregation fail with ErrAggregationNotConfigured.
func New(ledger core.Ledger, cache *confcache.Cache, agg *ServiceConfig, opts ...Option) *Submitter {
	s := &Submitter{
		ledger: ledger,
		cache:  cache,
		agg:    agg,
		clock:  clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// SigningMessage returns the canonical 48 byte message operators sign over a
// job result: big-endian service ID and call ID followed by the keccak256
// digest of the output.
func SigningMessage(serviceID, callID uint64, output []byte) []byte {
	msg := make([]byte, 0, 48)
	msg = binary.BigEndian.AppendUint64(msg, serviceID)
	msg = binary.BigEndian.AppendUint64(msg, callID)
	msg = append(msg, crypto.Keccak256(output)...)

	return msg
}

// Submit submits the pending job result, blocking until the attempt completes.
func (s *Submitter) Submit(ctx context.Context, pending core.PendingJobResult) error {
	ctx = log.WithTopic(ctx, "submit")

	config, err := s.cache.AggregationConfig(ctx, pending.ServiceID, pending.JobIndex)
	if err != nil {
		return err
	}

	if !config.Required {
		return s.submitDirect(ctx, pending)
	}

	if s.agg == nil {
		return errors.Wrap(core.ErrAggregationNotConfigured, "job requires aggregation",
			z.U64("service_id", pending.ServiceID),
			z.U64("call_id", pending.CallID),
			z.U8("job_index", pending.JobIndex))
	}

	return s.submitAggregated(ctx, pending, config)
}

// submitDirect submits a non-aggregated result straight to the ledger.
func (s *Submitter) submitDirect(ctx context.Context, pending core.PendingJobResult) error {
	log.Debug(ctx, "Submitting job result directly",
		z.U64("service_id", pending.ServiceID),
		z.U64("call_id", pending.CallID))

	if s.ledger.DryRun() {
		log.Info(ctx, "Dry run, skipping direct result submission",
			z.U64("service_id", pending.ServiceID),
			z.U64("call_id", pending.CallID))

		submissionsCounter.WithLabelValues(pathDirect, outcomeDryRun).Inc()

		return nil
	}

	receipt, err := s.ledger.SubmitResult(ctx, pending.ServiceID, pending.CallID, pending.Output)
	if err != nil {
		submissionsCounter.WithLabelValues(pathDirect, outcomeError).Inc()
		return errors.Wrap(core.ErrTransaction, "submit result", z.Err(err),
			z.U64("service_id", pending.ServiceID), z.U64("call_id", pending.CallID))
	}

	if !receipt.Success {
		submissionsCounter.WithLabelValues(pathDirect, outcomeError).Inc()
		return errors.Wrap(core.ErrTransaction, "submit result reverted",
			z.U64("service_id", pending.ServiceID),
			z.U64("call_id", pending.CallID),
			z.Str("tx", receipt.TxHash.Hex()))
	}

	log.Info(ctx, "Submitted job result",
		z.U64("service_id", pending.ServiceID),
		z.U64("call_id", pending.CallID),
		z.Str("tx", receipt.TxHash.Hex()))

	submissionsCounter.WithLabelValues(pathDirect, outcomeSuccess).Inc()

	return nil
}

// submitAggregated signs the result, fans the signature out to all aggregation
// endpoints and optionally finalises the aggregated result on chain.
func (s *Submitter) submitAggregated(ctx context.Context, pending core.PendingJobResult,
	config core.AggregationConfig,
) error {
	roster, plan, err := s.prepareTask(ctx, pending, config)
	if err != nil {
		return err
	}

	msg := SigningMessage(pending.ServiceID, pending.CallID, pending.Output)

	sig, err := tbls.Sign(s.agg.Secret, msg)
	if err != nil {
		return errors.Wrap(core.ErrBls, "sign result", z.Err(err))
	}

	sub := core.SignatureSubmission{
		ServiceID:     pending.ServiceID,
		CallID:        pending.CallID,
		OperatorIndex: s.agg.OperatorIndex,
		Output:        pending.Output,
		Signature:     sig[:],
		PublicKey:     s.agg.Public[:],
	}

	var (
		successes  int
		lastStatus core.SubmissionStatus
	)

	for _, client := range s.agg.Clients {
		// Best effort, another operator may have initialised the task already.
		if err := client.InitTask(ctx, pending.ServiceID, pending.CallID, pending.Output,
			uint32(roster.Len()), plan); err != nil {
			log.Debug(ctx, "Init task not accepted", z.Err(err), z.Str("endpoint", client.Address()))
		}

		status, err := client.SubmitSignature(ctx, sub)
		if err != nil {
			log.Warn(ctx, "Failed to submit signature to aggregation endpoint", err,
				z.Str("endpoint", client.Address()),
				z.U64("service_id", pending.ServiceID),
				z.U64("call_id", pending.CallID))

			endpointErrorsCounter.WithLabelValues(client.Address()).Inc()

			continue
		}

		successes++
		lastStatus = status
	}

	if successes == 0 {
		submissionsCounter.WithLabelValues(pathAggregated, outcomeError).Inc()
		return errors.Wrap(core.ErrClient, "submit failed to all aggregation endpoints",
			z.U64("service_id", pending.ServiceID),
			z.U64("call_id", pending.CallID),
			z.Int("endpoints", len(s.agg.Clients)))
	}

	log.Debug(ctx, "Signature accepted by aggregation endpoints",
		z.Int("endpoints", successes),
		z.Int("signatures_collected", lastStatus.SignaturesCollected),
		z.Int("threshold_required", lastStatus.ThresholdRequired),
		z.Bool("threshold_met", lastStatus.ThresholdMet))

	if !s.agg.SubmitToChain {
		submissionsCounter.WithLabelValues(pathAggregated, outcomeSuccess).Inc()
		return nil
	}

	if lastStatus.ThresholdMet {
		// Another operator may finalise first, failures here are tolerated.
		if err := s.fetchAndSubmitProof(ctx, pending); err != nil {
			log.Debug(ctx, "Aggregated chain submission failed, another operator may have won the race",
				z.Err(err), z.U64("service_id", pending.ServiceID), z.U64("call_id", pending.CallID))
		}

		submissionsCounter.WithLabelValues(pathAggregated, outcomeSuccess).Inc()

		return nil
	}

	if s.agg.WaitForThreshold {
		proof, err := s.waitForThreshold(ctx, pending)
		if err != nil {
			submissionsCounter.WithLabelValues(pathAggregated, outcomeError).Inc()
			return err
		}

		if err := s.submitProof(ctx, proof); err != nil {
			log.Debug(ctx, "Aggregated chain submission failed, another operator may have won the race",
				z.Err(err), z.U64("service_id", pending.ServiceID), z.U64("call_id", pending.CallID))
		}
	}

	submissionsCounter.WithLabelValues(pathAggregated, outcomeSuccess).Inc()

	return nil
}

// prepareTask resolves the roster and threshold plan of the task.
func (s *Submitter) prepareTask(ctx context.Context, pending core.PendingJobResult,
	config core.AggregationConfig,
) (core.ServiceOperators, core.ThresholdPlan, error) {
	roster, err := s.cache.ServiceOperators(ctx, pending.ServiceID)
	if err != nil {
		return core.ServiceOperators{}, core.ThresholdPlan{}, err
	}

	if roster.IsEmpty() {
		return core.ServiceOperators{}, core.ThresholdPlan{}, errors.Wrap(core.ErrClient,
			"no operators registered for service", z.U64("service_id", pending.ServiceID))
	}

	var weights core.OperatorWeights

	if config.ThresholdType == core.ThresholdStakeWeighted {
		weights, err = s.cache.OperatorWeights(ctx, pending.ServiceID)
		if err != nil {
			return core.ServiceOperators{}, core.ThresholdPlan{}, err
		}

		if weights.IsEmpty() {
			log.Warn(ctx, "No operator stakes available, falling back to count-based threshold", nil,
				z.U64("service_id", pending.ServiceID))
		}
	}

	return roster, threshold.Plan(config, roster, weights), nil
}

// waitForThreshold polls the aggregation endpoints round-robin until one
// returns the aggregated proof or the timeout elapses.
func (s *Submitter) waitForThreshold(ctx context.Context, pending core.PendingJobResult) (*core.AggregateProof, error) {
	timeout := s.clock.After(s.agg.ThresholdTimeout)

	for {
		if proof := s.fetchProof(ctx, pending); proof != nil {
			return proof, nil
		}

		select {
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), "waiting for aggregation threshold")
		case <-timeout:
			return nil, errors.Wrap(core.ErrClient, "timed out waiting for aggregation threshold",
				z.U64("service_id", pending.ServiceID),
				z.U64("call_id", pending.CallID),
				z.Duration("timeout", s.agg.ThresholdTimeout))
		case <-s.clock.After(s.agg.PollInterval):
		}
	}
}

// fetchProof returns the first aggregated proof any endpoint has available, or nil.
func (s *Submitter) fetchProof(ctx context.Context, pending core.PendingJobResult) *core.AggregateProof {
	for _, client := range s.agg.Clients {
		proof, err := client.AggregatedResult(ctx, pending.ServiceID, pending.CallID)
		if err != nil {
			log.Debug(ctx, "Failed to fetch aggregated result", z.Err(err), z.Str("endpoint", client.Address()))
			continue
		}
		if proof != nil {
			return proof
		}
	}

	return nil
}

// fetchAndSubmitProof fetches the aggregated proof and finalises it on chain.
func (s *Submitter) fetchAndSubmitProof(ctx context.Context, pending core.PendingJobResult) error {
	proof := s.fetchProof(ctx, pending)
	if proof == nil {
		return errors.Wrap(core.ErrAggregation, "no endpoint returned the aggregated result",
			z.U64("service_id", pending.ServiceID), z.U64("call_id", pending.CallID))
	}

	return s.submitProof(ctx, proof)
}

// submitProof finalises an aggregated proof on chain and marks the task
// submitted on all endpoints.
func (s *Submitter) submitProof(ctx context.Context, proof *core.AggregateProof) error {
	if s.ledger.DryRun() {
		log.Info(ctx, "Dry run, skipping aggregated result submission",
			z.U64("service_id", proof.ServiceID),
			z.U64("call_id", proof.CallID))

		return nil
	}

	sig, err := tbls.ParseSignature(proof.AggregatedSignature)
	if err != nil {
		return errors.Wrap(core.ErrBls, "parse aggregated signature", z.Err(err))
	}

	pubkey, err := tbls.ParsePublicKey(proof.AggregatedPublicKey)
	if err != nil {
		return errors.Wrap(core.ErrBls, "parse aggregated public key", z.Err(err))
	}

	receipt, err := s.ledger.SubmitAggregatedResult(ctx, core.AggregatedResult{
		ServiceID:    proof.ServiceID,
		CallID:       proof.CallID,
		Output:       proof.Output,
		SignerBitmap: bitfield.Bitlist(proof.SignerBitmap),
		Signature:    sig,
		PublicKey:    pubkey,
	})
	if err != nil {
		return errors.Wrap(core.ErrTransaction, "submit aggregated result", z.Err(err))
	}

	if !receipt.Success {
		return errors.Wrap(core.ErrTransaction, "submit aggregated result reverted",
			z.U64("service_id", proof.ServiceID),
			z.U64("call_id", proof.CallID),
			z.Str("tx", receipt.TxHash.Hex()))
	}

	log.Info(ctx, "Submitted aggregated job result",
		z.U64("service_id", proof.ServiceID),
		z.U64("call_id", proof.CallID),
		z.Str("tx", receipt.TxHash.Hex()))

	for _, client := range s.agg.Clients {
		if err := client.MarkSubmitted(ctx, proof.ServiceID, proof.CallID); err != nil {
			log.Debug(ctx, "Failed to mark task submitted", z.Err(err), z.Str("endpoint", client.Address()))
		}
	}

	return nil
}
