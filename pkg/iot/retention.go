package iot

import (
	"context"
	"time"

	"go.uber.org/zap"
	"liyu1981.xyz/crib-monitor-service/pkg/common"
	"liyu1981.xyz/crib-monitor-service/pkg/observability"
)

// RetentionSweeper deletes readings older than the retention window. Queries already
// hide expired rows; the sweeper only reclaims space.
type RetentionSweeper struct {
	Reading  IReading
	Interval time.Duration
	now      func() time.Time
}

func NewRetentionSweeper(reading IReading, interval time.Duration) *RetentionSweeper {
	if interval <= 0 {
		interval = common.DefaultRetentionSweepInterval
	}
	return &RetentionSweeper{Reading: reading, Interval: interval, now: time.Now}
}

// Run sweeps once immediately, then every Interval until ctx is done.
func (s *RetentionSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

func (s *RetentionSweeper) Sweep(ctx context.Context) (int64, error) {
	logger := common.GetLoggerWith(
		common.LoggerNameIOTCore,
		zap.String(common.LoggerFieldIOTCategory, common.LoggerCategoryIOTRetention),
	)

	deleted, err := s.Reading.DeleteExpired(ctx, s.now())
	if err != nil {
		logger.Warn("Retention sweep failed", zap.Error(err))
		return 0, err
	}
	if deleted > 0 {
		observability.RetentionDeleted.Add(float64(deleted))
		logger.Info("Deleted expired readings", zap.Int64("deleted", deleted))
	}
	return deleted, nil
}
