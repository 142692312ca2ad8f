package grpc

import (
	"encoding/json"
	"errors"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"liyu1981.xyz/crib-monitor-service/pkg/broadcast"
	"liyu1981.xyz/crib-monitor-service/pkg/common"
	"liyu1981.xyz/crib-monitor-service/pkg/iot"
)

type SensorServer struct {
	Iot              *iot.IOT
	RateLimiterStore *iot.RateLimiterStore
	Broadcaster      *broadcast.Broadcaster
	// DefaultDeviceID answers threshold calls that name no device.
	DefaultDeviceID string
	UnimplementedSensorServiceServer
}

func logger() *zap.Logger {
	return common.GetLoggerWith(common.LoggerNameGrpcServer)
}

func (s *SensorServer) CheckDeviceLimiter(deviceID string) bool {
	return s.RateLimiterStore.Allow(deviceID)
}

func (s *SensorServer) defaultDevice(deviceID string) string {
	if strings.TrimSpace(deviceID) != "" {
		return deviceID
	}
	if s.DefaultDeviceID != "" {
		return s.DefaultDeviceID
	}
	return common.DefaultDeviceID
}

// toStatus maps domain errors onto gRPC codes.
func toStatus(err error) error {
	if ve, ok := iot.IsValidationError(err); ok {
		msgs := common.Mapper(ve.Issues, func(i iot.FieldIssue) string {
			return i.Field + ": " + i.Message
		})
		return status.Errorf(codes.InvalidArgument, "validation error: %s", strings.Join(msgs, "; "))
	}
	if errors.Is(err, iot.ErrNotFound) {
		return status.Error(codes.NotFound, "no data found")
	}
	if errors.Is(err, broadcast.ErrClosed) {
		return status.Error(codes.Unavailable, "real-time channel closed")
	}
	logger().Error("Request failed", zap.Error(err))
	return status.Error(codes.Internal, "internal server error")
}

// toStruct converts any JSON-serialisable value into a protobuf Struct using its json tags.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}
