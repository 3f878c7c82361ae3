// Copyright © 2024-2026 Threshnet Inc. Licensed under the terms of a Business Source License 1.1

// Package consumer buffers finished job results and drives them through the
// submission workflow one at a time in arrival order. Results without routing
// metadata are dropped at intake; a failed submission destroys only the result
// being attempted, buffered results are retained.
package consumer

import (
	"context"
	"strconv"
	"sync"

	"github.com/threshnet/attestor/app/errors"
	"github.com/threshnet/attestor/app/log"
	"github.com/threshnet/attestor/app/z"
	"github.com/threshnet/attestor/core"
)

// Submitter submits one pending job result, blocking until the attempt completes.
type Submitter interface {
	Submit(ctx context.Context, pending core.PendingJobResult) error
}

// Consumer is an aggregation-aware job result consumer. It is safe for
// concurrent use; submission attempts are serialised.
type Consumer struct {
	submitter Submitter

	// driveMu serialises submission attempts, at most one in flight.
	driveMu sync.Mutex

	mu      sync.Mutex
	buffer  []core.PendingJobResult
	emptyCh chan struct{} // Closed when the buffer transitions to empty.
}

// New returns a consumer submitting via the provided submitter.
func New(submitter Submitter) *Consumer {
	emptyCh := make(chan struct{})
	close(emptyCh)

	return &Consumer{
		submitter: submitter,
		emptyCh:   emptyCh,
	}
}

// Send accepts a finished job result into the buffer. Failed results and
// results without routing metadata are dropped. Results with unparseable
// call or service IDs return ErrInvalidMetadata.
func (c *Consumer) Send(ctx context.Context, result core.JobResult) error {
	if result.Failed() {
		log.Debug(ctx, "Dropping failed job result", z.Str("error", result.Error))
		resultsCounter.WithLabelValues("dropped_failed").Inc()

		return nil
	}

	pending, ok, err := parseMetadata(result)
	if err != nil {
		resultsCounter.WithLabelValues("invalid_metadata").Inc()
		return err
	}

	if !ok {
		log.Debug(ctx, "Dropping job result without routing metadata")
		resultsCounter.WithLabelValues("dropped_missing_metadata").Inc()

		return nil
	}

	c.push(pending)
	resultsCounter.WithLabelValues("accepted").Inc()

	return nil
}

// Flush pops the oldest buffered result and submits it, blocking until the
// attempt completes or ctx is cancelled. A failed attempt destroys the popped
// result and returns the error; the rest of the buffer is retained. Flush is
// a no-op on an empty buffer.
func (c *Consumer) Flush(ctx context.Context) error {
	c.driveMu.Lock()
	defer c.driveMu.Unlock()

	pending, ok := c.pop()
	if !ok {
		return nil
	}

	done := make(chan error, 1)
	go func() {
		done <- c.submitter.Submit(ctx, pending)
	}()

	select {
	case err := <-done:
		if err != nil {
			processedCounter.WithLabelValues("failed").Inc()
			return err
		}

		processedCounter.WithLabelValues("submitted").Inc()

		return nil
	case <-ctx.Done():
		processedCounter.WithLabelValues("failed").Inc()

		return errors.Wrap(ctx.Err(), "submission cancelled",
			z.U64("service_id", pending.ServiceID), z.U64("call_id", pending.CallID))
	}
}

// Close blocks until the buffer is empty or ctx is cancelled. It does not
// drive submissions itself, a concurrent Run or Flush loop must drain the buffer.
func (c *Consumer) Close(ctx context.Context) error {
	for {
		c.mu.Lock()
		empty := len(c.buffer) == 0
		emptyCh := c.emptyCh
		c.mu.Unlock()

		if empty {
			return nil
		}

		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "closing with results still buffered", z.Int("pending", c.Len()))
		case <-emptyCh:
		}
	}
}

// Run consumes results from the channel until it closes or ctx is cancelled,
// draining the buffer after each accepted result. Submission failures are
// logged and the loop continues.
func (c *Consumer) Run(ctx context.Context, results <-chan core.JobResult) error {
	ctx = log.WithTopic(ctx, "consumer")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case result, ok := <-results:
			if !ok {
				return c.drain(ctx)
			}

			if err := c.Send(ctx, result); err != nil {
				log.Error(ctx, "Discarding job result with invalid metadata", err)
				continue
			}

			if err := c.drain(ctx); err != nil {
				return err
			}
		}
	}
}

// Len returns the number of buffered results.
func (c *Consumer) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.buffer)
}

// drain flushes until the buffer is empty, logging submission failures.
// It only returns an error when ctx is cancelled.
func (c *Consumer) drain(ctx context.Context) error {
	for c.Len() > 0 {
		if err := c.Flush(ctx); err != nil {
			if ctx.Err() != nil {
				return err
			}

			log.Error(ctx, "Failed to submit job result", err)
		}
	}

	return nil
}

func (c *Consumer) push(pending core.PendingJobResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.buffer) == 0 {
		c.emptyCh = make(chan struct{})
	}

	c.buffer = append(c.buffer, pending)
	queueGauge.Set(float64(len(c.buffer)))
}

func (c *Consumer) pop() (core.PendingJobResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.buffer) == 0 {
		return core.PendingJobResult{}, false
	}

	pending := c.buffer[0]
	c.buffer = c.buffer[1:]
	queueGauge.Set(float64(len(c.buffer)))

	if len(c.buffer) == 0 {
		close(c.emptyCh)
	}

	return pending, true
}

// parseMetadata extracts routing metadata from a job result. Results missing
// the call or service ID entirely are not routable (ok false); IDs present but
// unparseable are an error. A missing or unparseable job index defaults to zero.
func parseMetadata(result core.JobResult) (core.PendingJobResult, bool, error) {
	callStr, ok := result.Metadata[core.MetadataCallID]
	if !ok {
		return core.PendingJobResult{}, false, nil
	}

	serviceStr, ok := result.Metadata[core.MetadataServiceID]
	if !ok {
		return core.PendingJobResult{}, false, nil
	}

	callID, err := strconv.ParseUint(callStr, 10, 64)
	if err != nil {
		return core.PendingJobResult{}, false, errors.Wrap(core.ErrInvalidMetadata,
			"parse call id", z.Str("value", callStr))
	}

	serviceID, err := strconv.ParseUint(serviceStr, 10, 64)
	if err != nil {
		return core.PendingJobResult{}, false, errors.Wrap(core.ErrInvalidMetadata,
			"parse service id", z.Str("value", serviceStr))
	}

	var jobIndex uint8
	if indexStr, ok := result.Metadata[core.MetadataJobIndex]; ok {
		if v, err := strconv.ParseUint(indexStr, 10, 8); err == nil {
			jobIndex = uint8(v)
		}
	}

	return core.PendingJobResult{
		ServiceID: serviceID,
		CallID:    callID,
		JobIndex:  jobIndex,
		Output:    result.Output,
	}, true, nil
}
