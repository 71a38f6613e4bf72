package aggregate

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wakefeed/wake/internal/store"
)

// CollectStats summarizes one collection pass.
type CollectStats struct {
	Processed int // claimed keys processed to completion
	Closed    int // processed buckets whose window was over
	Skipped   int // keys another collector claimed first
	Deferred  int // keys left for the next pass (batch cap or budget)
	Failed    int // keys that errored; they stay (or were re-marked) active
}

func (s *CollectStats) merge(o CollectStats) {
	s.Processed += o.Processed
	s.Closed += o.Closed
	s.Skipped += o.Skipped
	s.Deferred += o.Deferred
	s.Failed += o.Failed
}

// CollectAll runs one collection pass over every active bucket.
func (a *Aggregator) CollectAll(ctx context.Context) (CollectStats, error) {
	return a.collect(ctx, nil)
}

// CollectStreams runs one collection pass over the active buckets of the
// given streams only. Used for collect-on-read. No streams, no work.
func (a *Aggregator) CollectStreams(ctx context.Context, streamIDs []string) (CollectStats, error) {
	if len(streamIDs) == 0 {
		return CollectStats{}, nil
	}
	return a.collect(ctx, streamIDs)
}

// collect claims and processes active keys, partitioned by stream hash so
// one stream's buckets never collect concurrently with each other. A nil
// streamIDs means all streams.
//
// Only the initial active-key scan can fail the pass; everything after is
// per-bucket work that is logged, counted and retried on the next pass.
func (a *Aggregator) collect(ctx context.Context, streamIDs []string) (CollectStats, error) {
	var stats CollectStats

	active, err := a.store.ActiveAggregateKeys(ctx, streamIDs)
	if err != nil {
		return stats, fmt.Errorf("collect: %w", err)
	}
	if len(active) == 0 {
		return stats, nil
	}

	// Batch cap: take the front, leave the rest active for the next pass.
	if a.batchSize > 0 && len(active) > a.batchSize {
		stats.Deferred += len(active) - a.batchSize
		active = active[:a.batchSize]
	}

	if a.budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.budget)
		defer cancel()
	}

	// Partition by stream so a stream's buckets stay on one worker.
	partitions := make([][]store.ActiveKey, a.buckets)
	for _, ak := range active {
		i := int(streamPartition(ak.StreamID, a.buckets))
		partitions[i] = append(partitions[i], ak)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.maxConcurrent)

	var mu sync.Mutex
	for _, part := range partitions {
		if len(part) == 0 {
			continue
		}
		g.Go(func() error {
			local := a.collectPartition(gctx, part)
			mu.Lock()
			stats.merge(local)
			mu.Unlock()
			return nil
		})
	}
	// Partitions never return errors; failures are counted per bucket.
	_ = g.Wait()

	if stats.Processed+stats.Failed+stats.Skipped+stats.Deferred > 0 {
		a.logger.Info("collection pass finished",
			"processed", stats.Processed, "closed", stats.Closed,
			"skipped", stats.Skipped, "deferred", stats.Deferred, "failed", stats.Failed)
	}
	return stats, nil
}

// collectPartition claims and processes one partition's keys in order.
func (a *Aggregator) collectPartition(ctx context.Context, keys []store.ActiveKey) CollectStats {
	var stats CollectStats
	for i, ak := range keys {
		if ctx.Err() != nil {
			// Budget spent or caller gone. Unclaimed keys stay active.
			stats.Deferred += len(keys) - i
			return stats
		}

		claimed, err := a.store.ClaimActiveAggregateKey(ctx, ak.Key)
		if err != nil {
			a.logger.Error("aggregate claim failed",
				"stream", ak.StreamID, "error", err)
			stats.Failed++
			continue
		}
		if !claimed {
			stats.Skipped++
			continue
		}

		closed, err := a.collectBucket(ctx, ak)
		if err != nil {
			a.logger.Error("bucket collect failed, re-marking for retry",
				"stream", ak.StreamID, "error", err)
			// Re-mark outside the (possibly spent) budget so the bucket
			// is not stranded without a marker.
			remarkCtx := context.WithoutCancel(ctx)
			if merr := a.store.MarkAggregateActive(remarkCtx, ak.Key, ak.StreamID); merr != nil {
				a.logger.Error("re-mark failed; bucket reactivates on next delivery",
					"stream", ak.StreamID, "error", merr)
			}
			stats.Failed++
			continue
		}

		stats.Processed++
		if closed {
			stats.Closed++
		}
	}
	return stats
}

// collectBucket publishes one claimed bucket's current state as a feed
// entry, then closes the bucket if its window is over. Returns whether the
// bucket closed.
func (a *Aggregator) collectBucket(ctx context.Context, ak store.ActiveKey) (bool, error) {
	statuses, err := a.store.AggregateStatuses(ctx, []string{ak.Key})
	if err != nil {
		return false, err
	}
	st, ok := statuses[ak.Key]
	if !ok {
		// A reset raced the claim; the bucket is already gone.
		return false, nil
	}

	if err := a.flushWindow(ctx, ak.Key, ak.StreamID, st); err != nil {
		return false, err
	}

	if !a.expired(st, a.clock.Now()) {
		// Still accumulating; the next delivery re-marks the key.
		return false, nil
	}

	// Window over: close the bucket. Status goes first so a crash in
	// between leaves orphaned entities, which the next fresh delivery
	// clears, rather than a status pointing at vanished entities.
	if err := a.store.RemoveAggregateStatuses(ctx, []string{ak.Key}); err != nil {
		return false, err
	}
	if err := a.store.RemoveAggregatedEntities(ctx, []string{ak.Key}); err != nil {
		return false, err
	}
	return true, nil
}

// PruneWindows drops closed-and-forgotten window state: buckets whose last
// activity predates before and that no marker keeps alive. Safe whenever
// before is at least maxExpiry in the past, since such windows can never
// merge again. Returns how many windows were dropped.
func (a *Aggregator) PruneWindows(ctx context.Context, before time.Time) (int64, error) {
	return a.store.PruneAggregates(ctx, before.UnixMilli())
}

// streamPartition hashes a stream ID onto a partition index.
func streamPartition(streamID string, buckets int) uint32 {
	h := fnv.New32a()
	h.Write([]byte(streamID))
	return h.Sum32() % uint32(buckets)
}
