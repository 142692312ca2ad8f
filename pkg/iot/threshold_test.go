package iot

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"liyu1981.xyz/crib-monitor-service/pkg/common"
	"liyu1981.xyz/crib-monitor-service/pkg/models"
	_ "liyu1981.xyz/crib-monitor-service/pkg/testing"
)

func storedThresholds(t *testing.T, iotObj *IOT, deviceID string) models.ThresholdSettings {
	t.Helper()
	var s models.ThresholdSettings
	require.NoError(t, iotObj.Db.Conn.First(&s, "device_id = ?", deviceID).Error)
	return s
}

func TestThresholdGet_CreatesDefaults(t *testing.T) {
	common.SetTestLoggerNop()
	iotObj := newTestIOT(t)
	deviceID := uuid.NewString()

	settings := iotObj.Threshold.Get(context.Background(), deviceID)

	assert.Equal(t, deviceID, settings.DeviceID)
	assert.Equal(t, models.DefaultThresholds(), settings.Thresholds)
	assert.Equal(t, models.DefaultThresholds(), storedThresholds(t, iotObj, deviceID).Thresholds)
}

func TestThresholdGet_ConcurrentFirstCalls(t *testing.T) {
	common.SetTestLoggerNop()
	iotObj := newTestIOT(t)
	deviceID := uuid.NewString()

	const callers = 20
	var wg sync.WaitGroup
	results := make(chan models.ThresholdSettings, callers)

	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- iotObj.Threshold.Get(context.Background(), deviceID)
		}()
	}
	wg.Wait()
	close(results)

	var first *models.ThresholdSettings
	for r := range results {
		if first == nil {
			first = &r
			continue
		}
		assert.Equal(t, first.Thresholds, r.Thresholds)
		assert.True(t, first.CreatedAt.Equal(r.CreatedAt), "all callers must see the winner's row")
	}

	var count int64
	require.NoError(t, iotObj.Db.Conn.Model(&models.ThresholdSettings{}).Where("device_id = ?", deviceID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestThresholdUpdate(t *testing.T) {
	common.SetTestLoggerNop()
	iotObj := newTestIOT(t)
	deviceID := uuid.NewString()
	ctx := context.Background()

	created := iotObj.Threshold.Get(ctx, deviceID)

	updated, err := iotObj.Threshold.Update(ctx, deviceID, cribThresholds())
	require.NoError(t, err)
	assert.Equal(t, cribThresholds(), updated.Thresholds)
	assert.True(t, created.CreatedAt.Equal(updated.CreatedAt), "createdAt survives an update")
	assert.False(t, updated.UpdatedAt.Before(created.UpdatedAt))

	assert.Equal(t, cribThresholds(), iotObj.Threshold.Get(ctx, deviceID).Thresholds)
	assert.Equal(t, cribThresholds(), storedThresholds(t, iotObj, deviceID).Thresholds)
}

func TestThresholdUpdate_CreatesWhenAbsent(t *testing.T) {
	common.SetTestLoggerNop()
	iotObj := newTestIOT(t)
	deviceID := uuid.NewString()

	updated, err := iotObj.Threshold.Update(context.Background(), "  "+deviceID+" ", cribThresholds())
	require.NoError(t, err)
	assert.Equal(t, deviceID, updated.DeviceID)
	assert.Equal(t, cribThresholds(), storedThresholds(t, iotObj, deviceID).Thresholds)
}

func TestThresholdUpdate_RejectsInvertedRange(t *testing.T) {
	common.SetTestLoggerNop()
	iotObj := newTestIOT(t)
	deviceID := uuid.NewString()
	ctx := context.Background()

	_, err := iotObj.Threshold.Update(ctx, deviceID, cribThresholds())
	require.NoError(t, err)

	bad := cribThresholds()
	bad.Temperature = models.ThresholdRange{Min: 26, Max: 20}
	bad.Humidity = models.ThresholdRange{Min: 40, Max: 40}

	_, err = iotObj.Threshold.Update(ctx, deviceID, bad)
	ve, ok := IsValidationError(err)
	require.True(t, ok, "expected validation error, got %v", err)
	assert.Equal(t, []FieldIssue{
		{Field: "thresholds.temperature", Message: "temperature min must be less than max"},
		{Field: "thresholds.humidity", Message: "humidity min must be less than max"},
	}, ve.Issues)

	assert.Equal(t, cribThresholds(), storedThresholds(t, iotObj, deviceID).Thresholds)
	assert.Equal(t, cribThresholds(), iotObj.Threshold.Get(ctx, deviceID).Thresholds)
}

func TestThresholdUpdate_Bounds(t *testing.T) {
	common.SetTestLoggerNop()
	iotObj := newTestIOT(t)
	ctx := context.Background()

	fever := cribThresholds()
	fever.BodyTemperature = models.ThresholdRange{Min: 36, Max: 60}
	_, err := iotObj.Threshold.Update(ctx, uuid.NewString(), fever)
	assert.NoError(t, err)

	tooHot := cribThresholds()
	tooHot.BodyTemperature = models.ThresholdRange{Min: 36, Max: 61}
	_, err = iotObj.Threshold.Update(ctx, uuid.NewString(), tooHot)
	_, ok := IsValidationError(err)
	assert.True(t, ok)

	tooCold := cribThresholds()
	tooCold.Temperature = models.ThresholdRange{Min: -11, Max: 20}
	_, err = iotObj.Threshold.Update(ctx, uuid.NewString(), tooCold)
	_, ok = IsValidationError(err)
	assert.True(t, ok)

	_, err = iotObj.Threshold.Update(ctx, "   ", cribThresholds())
	ve, ok := IsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, "deviceId", ve.Issues[0].Field)
}

func TestThresholdGet_FallbackWhenStoreUnavailable(t *testing.T) {
	var buf bytes.Buffer
	common.SetTestCaptureLogger(&buf, zapcore.DebugLevel)
	defer common.SetTestLoggerNop()

	iotObj := newUnavailableIOT(t)

	settings := iotObj.Threshold.Get(context.Background(), DefaultTestDeviceID)
	assert.Equal(t, models.FallbackThresholds(), settings.Thresholds)
	assert.Equal(t, DefaultTestDeviceID, settings.DeviceID)

	logs := ParseLogs(&buf)
	var found bool
	for _, entry := range logs {
		m := entry.(map[string]any)
		if m["msg"] == "Threshold store failed, using fallback thresholds" {
			found = true
			assert.Equal(t, "warn", m["level"])
			assert.Equal(t, common.LoggerNameIOTCore, m["logger"])
			assert.Equal(t, common.LoggerCategoryIOTThreshold, m["category"])
		}
	}
	assert.True(t, found, "expected a fallback warning in logs")
}

func TestThresholdLookupAndUpdate_PropagateStoreErrors(t *testing.T) {
	common.SetTestLoggerNop()
	iotObj := newUnavailableIOT(t)
	ctx := context.Background()

	_, err := iotObj.Threshold.Lookup(ctx, DefaultTestDeviceID)
	assert.True(t, errors.Is(err, ErrStoreUnavailable))

	_, err = iotObj.Threshold.Update(ctx, DefaultTestDeviceID, cribThresholds())
	assert.True(t, errors.Is(err, ErrStoreUnavailable))
}

func TestThresholdGet_ServedFromCache(t *testing.T) {
	common.SetTestLoggerNop()
	iotObj := newTestIOT(t)
	deviceID := uuid.NewString()
	ctx := context.Background()

	_, err := iotObj.Threshold.Update(ctx, deviceID, cribThresholds())
	require.NoError(t, err)

	// a row changed behind the store's back stays invisible until the entry expires
	require.NoError(t, iotObj.Db.Conn.Model(&models.ThresholdSettings{}).
		Where("device_id = ?", deviceID).
		Update("body_temperature_max", 40.0).Error)

	assert.Equal(t, cribThresholds(), iotObj.Threshold.Get(ctx, deviceID).Thresholds)
	assert.Equal(t, 40.0, storedThresholds(t, iotObj, deviceID).Thresholds.BodyTemperature.Max)
}
