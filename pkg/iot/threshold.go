package iot

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"liyu1981.xyz/crib-monitor-service/pkg/common"
	"liyu1981.xyz/crib-monitor-service/pkg/models"
	"liyu1981.xyz/crib-monitor-service/pkg/observability"
)

func thresholdLogger() *zap.Logger {
	return common.GetLoggerWith(
		common.LoggerNameIOTCore,
		zap.String(common.LoggerFieldIOTCategory, common.LoggerCategoryIOTThreshold),
	)
}

func (i *IOT) getThresholds(ctx context.Context, deviceID string) models.ThresholdSettings {
	settings, err := i.lookupThresholds(ctx, deviceID)
	if err == nil {
		return *settings
	}

	thresholdLogger().Warn("Threshold store failed, using fallback thresholds",
		zap.String("device_id", deviceID), zap.Error(err))
	observability.ThresholdFallbacks.Inc()

	now := time.Now().UTC()
	return models.ThresholdSettings{
		DeviceID:   deviceID,
		Thresholds: models.FallbackThresholds(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// lookupThresholds reads the settings row, inserting the default row first when the
// device has none. Concurrent first reads race on the insert; ON CONFLICT DO NOTHING
// lets exactly one win and every caller re-reads the winner's row.
func (i *IOT) lookupThresholds(ctx context.Context, deviceID string) (*models.ThresholdSettings, error) {
	if cached, ok := i.thresholdCache.Get(deviceID); ok {
		settings := cached.(models.ThresholdSettings)
		return &settings, nil
	}

	ctx, cancel := i.storeContext(ctx)
	defer cancel()
	conn := i.Db.Conn.WithContext(ctx)

	var settings models.ThresholdSettings
	err := conn.First(&settings, "device_id = ?", deviceID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		defaults := models.ThresholdSettings{DeviceID: deviceID, Thresholds: models.DefaultThresholds()}
		if err := conn.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "device_id"}},
			DoNothing: true,
		}).Create(&defaults).Error; err != nil {
			return nil, storeError("create default thresholds", err)
		}
		err = conn.First(&settings, "device_id = ?", deviceID).Error
	}
	if err != nil {
		return nil, storeError("read thresholds", err)
	}

	i.thresholdCache.SetDefault(deviceID, settings)
	return &settings, nil
}

func (i *IOT) updateThresholds(ctx context.Context, deviceID string, thresholds models.Thresholds) (*models.ThresholdSettings, error) {
	logger := thresholdLogger()

	deviceID, err := ValidateDeviceID(deviceID)
	if err != nil {
		return nil, err
	}
	if err := ValidateThresholds(thresholds); err != nil {
		logger.Info("Rejected thresholds for device", zap.String("device_id", deviceID), zap.Error(err))
		return nil, err
	}

	settings := models.ThresholdSettings{DeviceID: deviceID, Thresholds: thresholds}
	logger.Info("Received thresholds for device", zap.Reflect("settings", settings))

	ctx, cancel := i.storeContext(ctx)
	defer cancel()
	conn := i.Db.Conn.WithContext(ctx)

	if err := conn.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "device_id"}},
		UpdateAll: true,
	}).Create(&settings).Error; err != nil {
		return nil, storeError("upsert thresholds", err)
	}

	var stored models.ThresholdSettings
	if err := conn.First(&stored, "device_id = ?", deviceID).Error; err != nil {
		return nil, storeError("read thresholds", err)
	}

	i.thresholdCache.SetDefault(deviceID, stored)
	logger.Info("Upserted thresholds for device", zap.Reflect("settings", stored))
	return &stored, nil
}

type IThresholdImpl struct {
	iot *IOT
}

func (it *IThresholdImpl) Get(ctx context.Context, deviceID string) models.ThresholdSettings {
	return it.iot.getThresholds(ctx, deviceID)
}

func (it *IThresholdImpl) Lookup(ctx context.Context, deviceID string) (*models.ThresholdSettings, error) {
	return it.iot.lookupThresholds(ctx, deviceID)
}

func (it *IThresholdImpl) Update(ctx context.Context, deviceID string, thresholds models.Thresholds) (*models.ThresholdSettings, error) {
	return it.iot.updateThresholds(ctx, deviceID, thresholds)
}

func (i *IOT) GetIThreshold() IThreshold {
	return &IThresholdImpl{iot: i}
}
