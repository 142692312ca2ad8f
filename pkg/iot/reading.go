package iot

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"liyu1981.xyz/crib-monitor-service/pkg/common"
	"liyu1981.xyz/crib-monitor-service/pkg/models"
)

const (
	DefaultHistoryHours = 1
	DefaultHistoryLimit = 100
	MaxHistoryLimit     = 1000
)

func normalizeHistory(q models.HistoryQuery) models.HistoryQuery {
	if q.Hours <= 0 {
		q.Hours = DefaultHistoryHours
	}
	if maxHours := int(models.RetentionWindow / time.Hour); q.Hours > maxHours {
		q.Hours = maxHours
	}
	if q.Limit <= 0 {
		q.Limit = DefaultHistoryLimit
	}
	if q.Limit > MaxHistoryLimit {
		q.Limit = MaxHistoryLimit
	}
	if q.Now.IsZero() {
		q.Now = time.Now()
	}
	q.Now = q.Now.UTC()
	return q
}

func retentionCutoff(now time.Time) time.Time {
	return now.UTC().Add(-models.RetentionWindow)
}

func readingLogger() *zap.Logger {
	return common.GetLoggerWith(
		common.LoggerNameIOTCore,
		zap.String(common.LoggerFieldIOTCategory, common.LoggerCategoryIOTReading),
	)
}

func (i *IOT) appendReading(ctx context.Context, reading *models.Reading) error {
	if reading.ID == "" {
		reading.ID = uuid.NewString()
	}
	if reading.Timestamp.IsZero() {
		reading.Timestamp = time.Now()
	}
	// sqlite compares timestamps as text, so every stored value shares one zone
	reading.Timestamp = reading.Timestamp.UTC()
	if reading.Alerts == nil {
		reading.Alerts = []models.Alert{}
	}

	storeCtx, cancel := i.storeContext(ctx)
	defer cancel()

	if err := i.Db.Conn.WithContext(storeCtx).Create(reading).Error; err != nil {
		return storeError("append reading", err)
	}

	if i.Cache != nil {
		i.refreshCache(storeCtx, *reading)
	}
	return nil
}

// refreshCache pushes a stored reading into the latest cache. When that fails the
// cached entries are older than the database, so they are evicted; if even eviction
// fails the device is marked stale and reads bypass the cache until a later put works.
func (i *IOT) refreshCache(ctx context.Context, reading models.Reading) {
	logger := readingLogger().With(zap.String("device_id", reading.DeviceID))

	err := i.Cache.Put(ctx, reading)
	if err == nil {
		i.staleCache.clear(reading.DeviceID)
		return
	}
	logger.Warn("Failed to refresh latest reading cache", zap.Error(err))

	if err := i.Cache.Evict(ctx, reading.DeviceID); err != nil {
		logger.Warn("Failed to evict latest reading cache, bypassing it", zap.Error(err))
		i.staleCache.mark(reading.DeviceID)
	}
}

// staleSet tracks devices whose cached latest reading may be behind the database.
type staleSet struct {
	mu      sync.Mutex
	devices map[string]struct{}
}

func newStaleSet() *staleSet {
	return &staleSet{devices: make(map[string]struct{})}
}

func (s *staleSet) mark(deviceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[deviceID] = struct{}{}
}

func (s *staleSet) clear(deviceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.devices, deviceID)
}

// has reports whether deviceID is stale; "" asks about the overall entry, which is
// stale while any device is.
func (s *staleSet) has(deviceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if deviceID == "" {
		return len(s.devices) > 0
	}
	_, ok := s.devices[deviceID]
	return ok
}

func (i *IOT) latestReading(ctx context.Context, deviceID string) (*models.Reading, error) {
	cutoff := retentionCutoff(time.Now())

	storeCtx, cancel := i.storeContext(ctx)
	defer cancel()

	if i.Cache != nil && !i.staleCache.has(deviceID) {
		cached, err := i.Cache.Latest(storeCtx, deviceID)
		switch {
		case err == nil && cached != nil && !cached.Timestamp.Before(cutoff):
			return cached, nil
		case err != nil && !errors.Is(err, ErrNotFound):
			readingLogger().Debug("Latest reading cache unavailable", zap.Error(err))
		}
	}

	query := i.Db.Conn.WithContext(storeCtx).Where("timestamp >= ?", cutoff)
	if deviceID != "" {
		query = query.Where("device_id = ?", deviceID)
	}

	var reading models.Reading
	err := query.Order("timestamp desc").Order("id desc").First(&reading).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeError("latest reading", err)
	}
	return &reading, nil
}

func (i *IOT) readingHistory(ctx context.Context, q models.HistoryQuery) ([]models.Reading, error) {
	q = normalizeHistory(q)
	since := q.Now.Add(-time.Duration(q.Hours) * time.Hour)
	if cutoff := retentionCutoff(q.Now); since.Before(cutoff) {
		since = cutoff
	}

	storeCtx, cancel := i.storeContext(ctx)
	defer cancel()

	query := i.Db.Conn.WithContext(storeCtx).Where("timestamp > ?", since)
	if q.DeviceID != "" {
		query = query.Where("device_id = ?", q.DeviceID)
	}

	readings := []models.Reading{}
	if err := query.Order("timestamp desc").Order("id desc").Limit(q.Limit).Find(&readings).Error; err != nil {
		return nil, storeError("reading history", err)
	}
	return readings, nil
}

func (i *IOT) deleteExpiredReadings(ctx context.Context, now time.Time) (int64, error) {
	storeCtx, cancel := i.storeContext(ctx)
	defer cancel()

	result := i.Db.Conn.WithContext(storeCtx).
		Where("timestamp < ?", retentionCutoff(now)).
		Delete(&models.Reading{})
	if result.Error != nil {
		return 0, storeError("delete expired readings", result.Error)
	}
	return result.RowsAffected, nil
}

type IReadingImpl struct {
	iot *IOT
}

func (ir *IReadingImpl) Append(ctx context.Context, reading *models.Reading) error {
	return ir.iot.appendReading(ctx, reading)
}

func (ir *IReadingImpl) Latest(ctx context.Context, deviceID string) (*models.Reading, error) {
	return ir.iot.latestReading(ctx, deviceID)
}

func (ir *IReadingImpl) History(ctx context.Context, q models.HistoryQuery) ([]models.Reading, error) {
	return ir.iot.readingHistory(ctx, q)
}

func (ir *IReadingImpl) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return ir.iot.deleteExpiredReadings(ctx, now)
}

func (i *IOT) GetIReading() IReading {
	return &IReadingImpl{iot: i}
}
