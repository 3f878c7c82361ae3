// Copyright © 2024-2026 Threshnet Inc. Licensed under the terms of a Business Source License 1.1

// Package confcache provides a TTL cache fronting the ledger's per-service
// configuration: aggregation policy, operator rosters, operator weights and
// operator metadata. Expired entries are never served; they are refreshed from
// the ledger on access. The cache is safe for concurrent use by multiple
// consumers and is coherent at cache-key granularity.
package confcache

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jonboulle/clockwork"

	"github.com/threshnet/attestor/app/errors"
	"github.com/threshnet/attestor/app/log"
	"github.com/threshnet/attestor/app/z"
	"github.com/threshnet/attestor/core"
)

// DefaultTTL is the default staleness window of cached entries.
const DefaultTTL = 5 * time.Minute

// Option configures the cache.
type Option func(*Cache)

// WithTTL overrides the default entry TTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		c.ttl = ttl
	}
}

// WithClock overrides the clock, for testing.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Cache) {
		c.clock = clock
	}
}

// New returns a new cache fronting the provided ledger.
func New(ledger core.Ledger, opts ...Option) *Cache {
	c := &Cache{
		ledger:     ledger,
		ttl:        DefaultTTL,
		clock:      clockwork.NewRealClock(),
		aggConfigs: make(map[aggKey]entry[core.AggregationConfig]),
		operators:  make(map[uint64]entry[core.ServiceOperators]),
		weights:    make(map[uint64]entry[core.OperatorWeights]),
		metadata:   make(map[metaKey]entry[core.OperatorMetadata]),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

type aggKey struct {
	ServiceID uint64
	JobIndex  uint8
}

type metaKey struct {
	BlueprintID uint64
	Operator    common.Address
}

// entry is a cached value with its population time.
type entry[T any] struct {
	value    T
	cachedAt time.Time
}

func (e entry[T]) expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.cachedAt) > ttl
}

// Cache is a TTL cache of per-service on-chain configuration.
type Cache struct {
	ledger core.Ledger
	ttl    time.Duration
	clock  clockwork.Clock

	mu         sync.RWMutex
	aggConfigs map[aggKey]entry[core.AggregationConfig]
	operators  map[uint64]entry[core.ServiceOperators]
	weights    map[uint64]entry[core.OperatorWeights]
	metadata   map[metaKey]entry[core.OperatorMetadata]
}

// TTL returns the staleness window of cached entries.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// AggregationConfig returns the aggregation policy of the (service, job) pair,
// from cache when fresh, from the ledger otherwise.
func (c *Cache) AggregationConfig(ctx context.Context, serviceID uint64, jobIndex uint8) (core.AggregationConfig, error) {
	key := aggKey{ServiceID: serviceID, JobIndex: jobIndex}

	c.mu.RLock()
	cached, ok := c.aggConfigs[key]
	c.mu.RUnlock()

	if ok && !cached.expired(c.clock.Now(), c.ttl) {
		hitsCounter.WithLabelValues("aggregation_config").Inc()
		return cached.value, nil
	}
	missesCounter.WithLabelValues("aggregation_config").Inc()

	log.Debug(ctx, "Aggregation config cache miss, fetching from ledger",
		z.U64("service", serviceID), z.U8("job", jobIndex))

	config, err := c.ledger.AggregationConfig(ctx, serviceID, jobIndex)
	if err != nil {
		return core.AggregationConfig{}, errors.Wrap(core.ErrClient, "fetch aggregation config", z.Err(err))
	}

	c.mu.Lock()
	c.aggConfigs[key] = entry[core.AggregationConfig]{value: config, cachedAt: c.clock.Now()}
	c.mu.Unlock()

	return config, nil
}

// SetAggregationConfig pre-populates the aggregation config of a (service, job) pair.
func (c *Cache) SetAggregationConfig(serviceID uint64, jobIndex uint8, config core.AggregationConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aggConfigs[aggKey{ServiceID: serviceID, JobIndex: jobIndex}] = entry[core.AggregationConfig]{
		value:    config,
		cachedAt: c.clock.Now(),
	}
}

// ServiceOperators returns the operator roster of the service.
func (c *Cache) ServiceOperators(ctx context.Context, serviceID uint64) (core.ServiceOperators, error) {
	c.mu.RLock()
	cached, ok := c.operators[serviceID]
	c.mu.RUnlock()

	if ok && !cached.expired(c.clock.Now(), c.ttl) {
		hitsCounter.WithLabelValues("service_operators").Inc()
		return cached.value, nil
	}
	missesCounter.WithLabelValues("service_operators").Inc()

	log.Debug(ctx, "Service operators cache miss, fetching from ledger", z.U64("service", serviceID))

	addrs, err := c.ledger.ServiceOperators(ctx, serviceID)
	if err != nil {
		return core.ServiceOperators{}, errors.Wrap(core.ErrClient, "fetch service operators", z.Err(err))
	}

	roster := core.NewServiceOperators(addrs)

	c.mu.Lock()
	c.operators[serviceID] = entry[core.ServiceOperators]{value: roster, cachedAt: c.clock.Now()}
	c.mu.Unlock()

	return roster, nil
}

// SetServiceOperators pre-populates the operator roster of a service.
func (c *Cache) SetServiceOperators(serviceID uint64, roster core.ServiceOperators) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.operators[serviceID] = entry[core.ServiceOperators]{value: roster, cachedAt: c.clock.Now()}
}

// OperatorWeights returns the stake weights of the service's operators.
// Inactive operators are excluded; per-operator lookup failures are logged
// and skipped so one unreachable record does not fail the whole set.
func (c *Cache) OperatorWeights(ctx context.Context, serviceID uint64) (core.OperatorWeights, error) {
	c.mu.RLock()
	cached, ok := c.weights[serviceID]
	c.mu.RUnlock()

	if ok && !cached.expired(c.clock.Now(), c.ttl) {
		hitsCounter.WithLabelValues("operator_weights").Inc()
		return cached.value, nil
	}
	missesCounter.WithLabelValues("operator_weights").Inc()

	log.Debug(ctx, "Operator weights cache miss, fetching from ledger", z.U64("service", serviceID))

	roster, err := c.ServiceOperators(ctx, serviceID)
	if err != nil {
		return core.OperatorWeights{}, err
	}

	weights := core.OperatorWeights{Weights: make(map[common.Address]uint16)}
	for _, operator := range roster.Operators {
		weight, err := c.ledger.OperatorWeight(ctx, serviceID, operator)
		if err != nil {
			log.Warn(ctx, "Failed to fetch operator weight", err,
				z.U64("service", serviceID), z.Str("operator", operator.Hex()))
			continue
		}
		if !weight.Active {
			continue
		}

		weights.Weights[operator] = weight.ExposureBps
		weights.TotalExposure += uint64(weight.ExposureBps)
	}

	c.mu.Lock()
	c.weights[serviceID] = entry[core.OperatorWeights]{value: weights, cachedAt: c.clock.Now()}
	c.mu.Unlock()

	return weights, nil
}

// SetOperatorWeights pre-populates the operator weights of a service.
func (c *Cache) SetOperatorWeights(serviceID uint64, weights core.OperatorWeights) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.weights[serviceID] = entry[core.OperatorWeights]{value: weights, cachedAt: c.clock.Now()}
}

// OperatorMetadata returns the metadata one operator registered for the blueprint.
func (c *Cache) OperatorMetadata(ctx context.Context, blueprintID uint64, operator common.Address) (core.OperatorMetadata, error) {
	key := metaKey{BlueprintID: blueprintID, Operator: operator}

	c.mu.RLock()
	cached, ok := c.metadata[key]
	c.mu.RUnlock()

	if ok && !cached.expired(c.clock.Now(), c.ttl) {
		hitsCounter.WithLabelValues("operator_metadata").Inc()
		return cached.value, nil
	}
	missesCounter.WithLabelValues("operator_metadata").Inc()

	meta, err := c.ledger.OperatorMetadata(ctx, blueprintID, operator)
	if err != nil {
		return core.OperatorMetadata{}, errors.Wrap(core.ErrClient, "fetch operator metadata", z.Err(err))
	}

	c.mu.Lock()
	c.metadata[key] = entry[core.OperatorMetadata]{value: meta, cachedAt: c.clock.Now()}
	c.mu.Unlock()

	return meta, nil
}

// ServiceOperatorMetadata returns the metadata of all operators in the service.
func (c *Cache) ServiceOperatorMetadata(ctx context.Context, blueprintID, serviceID uint64) (map[common.Address]core.OperatorMetadata, error) {
	roster, err := c.ServiceOperators(ctx, serviceID)
	if err != nil {
		return nil, err
	}

	resp := make(map[common.Address]core.OperatorMetadata, roster.Len())
	for _, operator := range roster.Operators {
		meta, err := c.OperatorMetadata(ctx, blueprintID, operator)
		if err != nil {
			return nil, err
		}
		resp[operator] = meta
	}

	return resp, nil
}

// InvalidateService drops all cached data of the service. Call it when the
// service's configuration is known to have changed (operator joined or left,
// threshold changed).
func (c *Cache) InvalidateService(serviceID uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.aggConfigs {
		if key.ServiceID == serviceID {
			delete(c.aggConfigs, key)
		}
	}
	delete(c.operators, serviceID)
	delete(c.weights, serviceID)
}
