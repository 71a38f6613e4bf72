package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wakefeed/wake/internal/activity"
	"github.com/wakefeed/wake/internal/aggregate"
	"github.com/wakefeed/wake/internal/propagation"
	"github.com/wakefeed/wake/internal/registry"
	"github.com/wakefeed/wake/internal/store"
)

// Engine is the activity poster and its single-writer delivery worker.
//
// PostActivity validates and enqueues; the Run loop consumes seeds one at
// a time and drives each through entity production, routing, propagation
// and aggregation to completion before starting the next. Deliveries to
// the same bucket from one process therefore apply in posting order.
// Cross-process safety comes from the storage adapter's conditional
// writes, not from locks here.
//
// Thread-safety model:
//   - PostActivity: safe from any goroutine
//   - Run: must be called from exactly one goroutine
//   - Feed, CollectAll, CollectStreams, ResetAggregation, PruneEntries:
//     safe from any goroutine
type Engine struct {
	registry   *registry.Registry
	store      store.Adapter
	aggregator *aggregate.Aggregator
	resolver   *propagation.Resolver
	directory  propagation.TenantDirectory
	sink       TransientSink
	queue      *seedQueue
	clock      aggregate.Clock
	ids        aggregate.IDGenerator
	logger     *slog.Logger
	cfg        Config
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig replaces the default configuration.
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithClock replaces the wall clock. Used by tests and the scenario
// runner.
func WithClock(c aggregate.Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithIDGenerator replaces the entry ID source.
func WithIDGenerator(g aggregate.IDGenerator) Option {
	return func(e *Engine) {
		if g != nil {
			e.ids = g
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithTenantDirectory wires the platform's tenant interaction directory.
// The default allows all tenant pairs.
func WithTenantDirectory(d propagation.TenantDirectory) Option {
	return func(e *Engine) { e.directory = d }
}

// New creates an Engine over a sealed-at-startup registry, a storage
// adapter and a transient sink. A nil sink discards transient deliveries.
func New(reg *registry.Registry, st store.Adapter, sink TransientSink, opts ...Option) *Engine {
	e := &Engine{
		registry: reg,
		store:    st,
		sink:     sink,
		queue:    newSeedQueue(),
		clock:    aggregate.SystemClock{},
		ids:      aggregate.UUIDv7Generator{},
		logger:   slog.Default(),
		cfg:      DefaultConfig(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.sink == nil {
		e.sink = discardSink{logger: e.logger}
	}
	e.resolver = propagation.NewResolver(e.directory)
	e.aggregator = aggregate.New(st,
		aggregate.WithClock(e.clock),
		aggregate.WithIDGenerator(e.ids),
		aggregate.WithLogger(e.logger),
		aggregate.WithIdleExpiry(e.cfg.IdleExpiry()),
		aggregate.WithMaxExpiry(e.cfg.MaxExpiry()),
		aggregate.WithProcessingBuckets(e.cfg.ProcessingBuckets),
		aggregate.WithBatchSize(e.cfg.CollectionBatchSize),
		aggregate.WithBudget(e.cfg.Budget()),
		aggregate.WithMaxConcurrent(e.cfg.MaxConcurrentCollections),
	)
	return e
}

// PostActivity validates the seed and hands it to the delivery worker.
// Callers only ever see validation errors or success; delivery failures
// past this point are logged, never surfaced. When activity processing is
// disabled the call is a silent no-op.
//
// Thread-safe: may be called from any goroutine.
func (e *Engine) PostActivity(ctx context.Context, seed *activity.Seed) error {
	if !e.registry.Sealed() {
		return &SeedError{
			Code:    ErrCodeRegistryUnsealed,
			Message: "posting before registration finished",
		}
	}
	if err := activity.ValidateSeed(seed); err != nil {
		return &SeedError{
			Code:    ErrCodeInvalidSeed,
			Message: "seed validation failed",
			Err:     err,
		}
	}
	if _, ok := e.registry.ActivityType(seed.ActivityType); !ok {
		return &SeedError{
			Code:         ErrCodeUnknownActivityType,
			Message:      "activity type not registered",
			ActivityType: seed.ActivityType,
		}
	}

	if !e.cfg.ProcessActivityJobs {
		e.logger.Debug("activity processing disabled, dropping seed",
			"type", seed.ActivityType, "verb", seed.Verb)
		return nil
	}

	if !e.queue.Enqueue(seed) {
		return &SeedError{
			Code:         ErrCodeEngineStopped,
			Message:      "engine is no longer accepting activities",
			ActivityType: seed.ActivityType,
		}
	}
	return nil
}

// Run starts the delivery worker and the background collection loop.
// Blocks until ctx is cancelled or Stop is called. Must be called from
// exactly one goroutine.
//
// Seed processing failures are logged with the seed context and the loop
// continues; a failed seed is dropped, not retried.
func (e *Engine) Run(ctx context.Context) error {
	if !e.registry.Sealed() {
		return fmt.Errorf("run: registry must be sealed first")
	}

	if !e.cfg.ProcessActivityJobs {
		e.logger.Info("activity processing disabled, worker idle")
		<-ctx.Done()
		return ctx.Err()
	}

	e.logger.Info("engine starting",
		"idle_expiry", e.cfg.IdleExpiry(),
		"max_expiry", e.cfg.MaxExpiry(),
		"polling", e.cfg.PollingFrequency())

	ticker := time.NewTicker(e.cfg.PollingFrequency())
	defer ticker.Stop()

	for {
		// Drain seeds before waiting.
		seed, ok := e.queue.TryDequeue()
		if ok {
			e.processSeed(ctx, seed)
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()

		case <-ticker.C:
			e.collectPass(ctx)

		case <-e.queue.Wait():
			// A stale coalesced signal can fire with nothing queued;
			// only a closed and drained queue ends the loop.
			if e.queue.Closed() && e.queue.Len() == 0 {
				e.logger.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop gracefully shuts down the engine: no further seeds are accepted,
// and Run returns once the backlog is drained.
func (e *Engine) Stop() {
	e.queue.Close()
}

// Drain synchronously processes every seed queued so far, then returns.
// It is the worker loop without the blocking wait, for one-shot operator
// tooling and the scenario harness. Must not run concurrently with Run.
func (e *Engine) Drain(ctx context.Context) error {
	if !e.registry.Sealed() {
		return fmt.Errorf("drain: registry must be sealed first")
	}
	for {
		seed, ok := e.queue.TryDequeue()
		if !ok {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		e.processSeed(ctx, seed)
	}
}

// collectPass runs one background collection pass plus retention work.
func (e *Engine) collectPass(ctx context.Context) {
	if _, err := e.aggregator.CollectAll(ctx); err != nil {
		e.logger.Error("collection pass failed", "error", err)
		return
	}

	if ttl := e.cfg.ActivityTTL(); ttl > 0 {
		cutoff := e.clock.Now().Add(-ttl)
		n, err := e.store.DeleteEntriesBefore(ctx, cutoff.UnixMilli())
		if err != nil {
			e.logger.Error("entry ttl prune failed", "error", err)
		} else if n > 0 {
			e.logger.Info("expired feed entries pruned", "entries", n, "ttl", ttl)
		}
	}

	// Window state idle past every expiry belongs to buckets that can
	// never merge again.
	cutoff := e.clock.Now().Add(-(e.cfg.MaxExpiry() + e.cfg.IdleExpiry()))
	n, err := e.aggregator.PruneWindows(ctx, cutoff)
	if err != nil {
		e.logger.Error("window prune failed", "error", err)
	} else if n > 0 {
		e.logger.Info("abandoned aggregation windows pruned", "windows", n)
	}
}

// Feed returns one page of the named stream, newest first, plus the token
// for the next page. Transient streams always read empty. The stream
// type's authorizer, when present, gates the read.
func (e *Engine) Feed(ctx context.Context, principalID, streamID, startToken string, limit int) ([]*activity.FeedEntry, string, error) {
	resourceID, streamType, err := activity.ParseStreamID(streamID)
	if err != nil {
		return nil, "", err
	}
	st, ok := e.registry.StreamType(streamType)
	if !ok {
		return nil, "", fmt.Errorf("feed %s: stream type %q not registered", streamID, streamType)
	}
	if st.Authorizer != nil {
		if err := st.Authorizer(ctx, principalID, resourceID); err != nil {
			return nil, "", fmt.Errorf("feed %s: %w", streamID, err)
		}
	}
	if st.Transient {
		return []*activity.FeedEntry{}, "", nil
	}
	return e.store.FeedPage(ctx, streamID, startToken, limit)
}

// CollectAll runs one collection pass over every active bucket.
func (e *Engine) CollectAll(ctx context.Context) (aggregate.CollectStats, error) {
	return e.aggregator.CollectAll(ctx)
}

// CollectStreams runs one collection pass over the named streams only.
func (e *Engine) CollectStreams(ctx context.Context, streamIDs []string) (aggregate.CollectStats, error) {
	return e.aggregator.CollectStreams(ctx, streamIDs)
}

// ResetAggregation discards pending aggregation state for the named
// streams. Persisted entries and other streams' buckets are untouched.
func (e *Engine) ResetAggregation(ctx context.Context, streamIDs []string) error {
	return e.aggregator.Reset(ctx, streamIDs)
}

// PruneEntries deletes persisted feed entries older than ttl and sweeps
// abandoned window state. Returns how many entries were deleted.
func (e *Engine) PruneEntries(ctx context.Context, ttl time.Duration) (int64, error) {
	cutoff := e.clock.Now().Add(-ttl)
	n, err := e.store.DeleteEntriesBefore(ctx, cutoff.UnixMilli())
	if err != nil {
		return 0, err
	}
	windowCutoff := e.clock.Now().Add(-(e.cfg.MaxExpiry() + e.cfg.IdleExpiry()))
	if _, err := e.aggregator.PruneWindows(ctx, windowCutoff); err != nil {
		e.logger.Error("window prune failed", "error", err)
	}
	return n, nil
}
