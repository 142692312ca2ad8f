package grpc

import (
	"context"
	"time"

	z "github.com/Oudwins/zog"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
	"liyu1981.xyz/crib-monitor-service/pkg/iot"
	"liyu1981.xyz/crib-monitor-service/pkg/models"
)

func (s *SensorServer) PostReading(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	in, err := iot.ParseReadingInput(req.AsMap())
	if err != nil {
		return nil, toStatus(err)
	}

	reading, err := s.Iot.Sensor.Ingest(iot.WithTransport(ctx, "grpc"), in)
	if err != nil {
		return nil, toStatus(err)
	}

	return structpb.NewStruct(map[string]any{
		"id":        reading.ID,
		"timestamp": reading.Timestamp.Format(time.RFC3339Nano),
	})
}

func (s *SensorServer) GetLatest(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	reading, err := s.Iot.Reading.Latest(ctx, req.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(reading)
}

func thresholdsStruct(settings *models.ThresholdSettings) (*structpb.Struct, error) {
	return toStruct(map[string]any{
		"deviceId":   settings.DeviceID,
		"thresholds": settings.Thresholds,
		"updatedAt":  settings.UpdatedAt,
	})
}

func (s *SensorServer) GetThresholds(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	deviceID, err := iot.ValidateDeviceID(s.defaultDevice(req.GetValue()))
	if err != nil {
		return nil, toStatus(err)
	}

	settings, err := s.Iot.Threshold.Lookup(ctx, deviceID)
	if err != nil {
		return nil, toStatus(err)
	}
	return thresholdsStruct(settings)
}

func (s *SensorServer) UpdateThresholds(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()

	raw, ok := fields["thresholds"]
	if !ok || raw.GetStructValue() == nil {
		return nil, toStatus(&iot.ValidationError{Issues: []iot.FieldIssue{{Field: "thresholds", Message: "thresholds is required"}}})
	}
	thresholds, err := iot.ParseThresholds(raw.GetStructValue().AsMap())
	if err != nil {
		return nil, toStatus(err)
	}

	settings, err := s.Iot.Threshold.Update(ctx, s.defaultDevice(fields["deviceId"].GetStringValue()), thresholds)
	if err != nil {
		return nil, toStatus(err)
	}
	return thresholdsStruct(settings)
}

type limiterRequest struct {
	DeviceID string  `zog:"deviceId"`
	Rate     float64 `zog:"rate"`
	Burst    float64 `zog:"burst"`
}

var limiterRequestSchema = z.Struct(z.Shape{
	"DeviceID": z.String().Trim().Required(),
	"Rate":     z.Float64().Required().GT(0),
	"Burst":    z.Float64().Required().GTE(1).LTE(iot.MaxLimiterBurst),
})

func (s *SensorServer) SetLimiter(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var r limiterRequest
	if issues := limiterRequestSchema.Parse(req.AsMap(), &r); issues != nil {
		return nil, toStatus(iot.NewValidationError(issues, ""))
	}

	if s.RateLimiterStore == nil {
		return structpb.NewStruct(map[string]any{
			"success": false,
			"message": "rate limiting is disabled, no effect",
		})
	}

	s.RateLimiterStore.SetLimiter(r.DeviceID, rate.Limit(r.Rate), int(r.Burst))
	return structpb.NewStruct(map[string]any{"success": true, "message": "OK"})
}

// Subscribe streams readings for the requested device, or every device when empty,
// starting with the latest known reading.
func (s *SensorServer) Subscribe(req *wrapperspb.StringValue, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	if s.Broadcaster == nil {
		return status.Error(codes.Unavailable, "real-time channel unavailable")
	}

	ctx := stream.Context()
	sub, err := s.Broadcaster.Subscribe(ctx, req.GetValue())
	if err != nil {
		return toStatus(err)
	}
	defer s.Broadcaster.Unsubscribe(sub)
	logger().Info("Stream client subscribed", zap.String("device_id", sub.DeviceID))

	for {
		select {
		case <-ctx.Done():
			return nil
		case reading, ok := <-sub.C:
			if !ok {
				return status.Error(codes.Unavailable, "subscription ended")
			}
			msg, err := toStruct(reading)
			if err != nil {
				return toStatus(err)
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
	}
}
