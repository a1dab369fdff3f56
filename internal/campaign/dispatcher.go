// Package campaign holds the telephony layer's contract with the campaign
// batch-dialing subsystem: releasing concurrency-limited dialing slots and
// publishing call lifecycle events. The campaign scheduler's queueing
// algorithm lives elsewhere; only these two surfaces are consumed here.
package campaign

import (
	"context"
	"errors"
	"fmt"

	"github.com/jperram92/dograh/pkg/logger"
	"github.com/jperram92/dograh/pkg/redis"
	"go.uber.org/zap"
)

// Dispatcher releases the dialing slot a workflow run holds so the campaign
// scheduler can place its next call.
type Dispatcher interface {
	ReleaseCallSlot(ctx context.Context, workflowRunID string) error
}

// RedisDispatcher tracks dialing slots in Redis. Acquisition is done by the
// campaign scheduler; this side only releases. A slot is a marker key
// (run ID -> campaign ID) plus a per-campaign active-call counter.
type RedisDispatcher struct {
	redis redis.RedisServiceInterface
}

// NewRedisDispatcher creates a Redis-backed slot dispatcher.
func NewRedisDispatcher(svc redis.RedisServiceInterface) *RedisDispatcher {
	return &RedisDispatcher{redis: svc}
}

// ReleaseCallSlot deletes the run's slot marker and decrements the owning
// campaign's active-call counter. Releasing a slot that no longer exists is a
// no-op: the carrier redelivers terminal callbacks and a second release must
// not drive the counter negative.
func (d *RedisDispatcher) ReleaseCallSlot(ctx context.Context, workflowRunID string) error {
	slotKey := d.redis.GenerateKey(redis.CAMPAIGN_CALL_SLOT, workflowRunID)

	campaignID, err := d.redis.GetValue(ctx, slotKey)
	if err != nil {
		if errors.Is(err, redis.ErrKeyNotExist) {
			logger.Base().Debug("no dialing slot held for run, nothing to release",
				zap.String("workflow_run_id", workflowRunID))
			return nil
		}
		return fmt.Errorf("failed to look up dialing slot: %w", err)
	}

	if err := d.redis.DelValue(ctx, slotKey); err != nil {
		return fmt.Errorf("failed to delete dialing slot: %w", err)
	}

	counterKey := d.redis.GenerateKey(redis.CAMPAIGN_ACTIVE_CALLS, campaignID)
	remaining, err := d.redis.Decr(ctx, counterKey)
	if err != nil {
		return fmt.Errorf("failed to decrement active call count: %w", err)
	}

	logger.Base().Info("released campaign dialing slot",
		zap.String("workflow_run_id", workflowRunID),
		zap.String("campaign_id", campaignID),
		zap.Int64("active_calls", remaining),
	)
	return nil
}
