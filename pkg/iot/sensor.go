package iot

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"liyu1981.xyz/crib-monitor-service/pkg/common"
	"liyu1981.xyz/crib-monitor-service/pkg/models"
	"liyu1981.xyz/crib-monitor-service/pkg/observability"
)

type transportKey struct{}

// WithTransport tags ctx with the transport a reading arrived on, for metrics.
func WithTransport(ctx context.Context, transport string) context.Context {
	return context.WithValue(ctx, transportKey{}, transport)
}

func transportOf(ctx context.Context) string {
	if t, ok := ctx.Value(transportKey{}).(string); ok {
		return t
	}
	return "direct"
}

// ingest runs validate, thresholds, evaluate, append, publish. The reading is published
// only after it is stored, and readings of one device are stored and published in the
// order their ingests acquire the device lock.
func (i *IOT) ingest(ctx context.Context, input models.ReadingInput) (*models.Reading, error) {
	ctx, span := observability.Tracer().Start(ctx, "iot.Ingest")
	defer span.End()

	logger := common.GetLoggerWith(
		common.LoggerNameIOTCore,
		zap.String(common.LoggerFieldIOTCategory, common.LoggerCategoryIOTIngest),
	)
	transport := transportOf(ctx)
	start := time.Now()

	in, err := ValidateReadingInput(input)
	if err != nil {
		logger.Info("Rejected reading", zap.String("device_id", input.DeviceID), zap.Error(err))
		observability.IngestTotal.WithLabelValues(transport, "invalid").Inc()
		span.SetStatus(codes.Error, "invalid reading")
		return nil, err
	}
	span.SetAttributes(attribute.String("device.id", in.DeviceID))

	logger.Debug("Received reading for device", zap.Reflect("input", in))

	unlock := i.deviceLocks.Lock(in.DeviceID)
	defer unlock()

	settings := i.Threshold.Get(ctx, in.DeviceID)
	alerts := EvaluateAlerts(valuesOf(in), settings.Thresholds)

	reading := &models.Reading{
		DeviceID:        in.DeviceID,
		Timestamp:       time.Now().UTC(),
		Temperature:     in.Temperature,
		Humidity:        in.Humidity,
		BodyTemperature: in.BodyTemperature,
		Alerts:          alerts,
	}

	if err := i.Reading.Append(ctx, reading); err != nil {
		logger.Error("Failed to store reading", zap.String("device_id", in.DeviceID), zap.Error(err))
		observability.IngestTotal.WithLabelValues(transport, "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "store failed")
		return nil, err
	}

	if len(alerts) > 0 {
		alertLogger := common.GetLoggerWith(
			common.LoggerNameIOTCore,
			zap.String(common.LoggerFieldIOTCategory, common.LoggerCategoryIOTAlert),
		)
		alertLogger.Info("Alerts raised for reading",
			zap.String("device_id", reading.DeviceID),
			zap.String("reading_id", reading.ID),
			zap.Reflect("alerts", alerts))
		for _, a := range alerts {
			observability.AlertsRaised.WithLabelValues(string(a.Type)).Inc()
		}
	}
	span.SetAttributes(attribute.Int("alerts.count", len(alerts)))

	if i.Publisher != nil {
		i.Publisher.Publish(*reading)
	}

	observability.IngestTotal.WithLabelValues(transport, "accepted").Inc()
	observability.IngestDuration.Observe(time.Since(start).Seconds())
	logger.Info("Stored reading for device",
		zap.String("device_id", reading.DeviceID), zap.String("reading_id", reading.ID))
	return reading, nil
}

type ISensorImpl struct {
	iot *IOT
}

func (is *ISensorImpl) Ingest(ctx context.Context, input models.ReadingInput) (*models.Reading, error) {
	return is.iot.ingest(ctx, input)
}

func (i *IOT) GetISensor() ISensor {
	return &ISensorImpl{iot: i}
}
