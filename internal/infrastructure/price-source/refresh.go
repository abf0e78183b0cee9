package pricesource

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/price-publisher/internal/infrastructure/metrics"
)

// RunRefreshLoop calls refreshFn right away and then again every interval,
// until ctx is canceled. Cycles never overlap: a cycle that takes longer than
// interval delays the next one.
// Errors returned by refreshFn are logged and do not stop the loop.
func RunRefreshLoop(
	ctx context.Context, source string, interval time.Duration,
	refreshFn func(ctx context.Context) error,
) {
	logger := log.WithField("source", source)
	logger.Debug("refresh loop started")

	for {
		start := time.Now()
		err := refreshFn(ctx)
		metrics.SourceRefreshDuration.WithLabelValues(source).Observe(
			time.Since(start).Seconds(),
		)

		if err != nil {
			metrics.SourceRefreshTotal.WithLabelValues(source, metrics.OutcomeFailure).Inc()
			logger.WithError(err).Warn("failed to refresh prices")
		} else {
			metrics.SourceRefreshTotal.WithLabelValues(source, metrics.OutcomeSuccess).Inc()
		}

		select {
		case <-ctx.Done():
			logger.Debug("refresh loop stopped")
			return
		case <-time.After(interval):
		}
	}
}
