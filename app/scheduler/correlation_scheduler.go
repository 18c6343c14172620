// Package scheduler runs periodic background jobs
package scheduler

import (
	"context"
	"time"

	"github.com/amirphl/orochi-attribution/app/dto"
	businessflow "github.com/amirphl/orochi-attribution/business_flow"
	"github.com/sirupsen/logrus"
)

// CorrelationScheduler periodically correlates recent orders for each configured seller
type CorrelationScheduler struct {
	flow      businessflow.CorrelationFlow
	sellerIDs []string
	interval  time.Duration
	timeout   time.Duration
	logger    *logrus.Entry
}

func NewCorrelationScheduler(flow businessflow.CorrelationFlow, sellerIDs []string, interval time.Duration, logger *logrus.Entry) *CorrelationScheduler {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &CorrelationScheduler{
		flow:      flow,
		sellerIDs: sellerIDs,
		interval:  interval,
		timeout:   2 * time.Minute,
		logger:    logger,
	}
}

// Start runs once immediately and then on every tick. The returned func stops the loop.
func (s *CorrelationScheduler) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.runOnce(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runOnce(ctx)
			}
		}
	}()

	return cancel
}

func (s *CorrelationScheduler) runOnce(ctx context.Context) {
	for _, sellerID := range s.sellerIDs {
		if ctx.Err() != nil {
			return
		}
		runCtx, cancel := context.WithTimeout(ctx, s.timeout)
		res, err := s.flow.CorrelateConversions(runCtx, &dto.CorrelateConversionsRequest{SellerID: sellerID})
		cancel()

		entry := s.logger.WithField("seller_id", sellerID)
		if err != nil {
			if businessflow.IsCorrelationAlreadyRunning(err) {
				entry.Info("scheduler: correlation already running, skipping tick")
				return
			}
			entry.WithError(err).Warn("scheduler: correlation run failed")
			continue
		}
		entry.WithFields(logrus.Fields{
			"orders_processed":  res.OrdersProcessed,
			"clicks_correlated": res.ClicksCorrelated,
			"orphans_recorded":  res.OrphansRecorded,
		}).Info("scheduler: correlation run finished")
	}
}
