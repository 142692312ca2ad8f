package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
	"liyu1981.xyz/crib-monitor-service/pkg/common"
)

// deviceIDOf finds the device a request is about: the deviceId field of a Struct or
// the value of a StringValue.
func deviceIDOf(req any) (string, bool) {
	switch r := req.(type) {
	case *structpb.Struct:
		v, ok := r.GetFields()["deviceId"]
		if !ok {
			return "", false
		}
		return v.GetStringValue(), true
	case *wrapperspb.StringValue:
		return r.GetValue(), true
	}
	return "", false
}

// CreateRateLimitInterceptor applies the per-device limiter to the listed unary methods.
func (s *SensorServer) CreateRateLimitInterceptor(targetMethods []string) grpc.UnaryServerInterceptor {
	targetMethodMap := common.Reducer(targetMethods,
		func(m map[string]bool, method string) map[string]bool {
			m[method] = true
			return m
		},
		map[string]bool{},
	)

	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if _, ok := targetMethodMap[info.FullMethod]; ok {
			if deviceID, ok := deviceIDOf(req); ok {
				if !s.CheckDeviceLimiter(deviceID) {
					return nil, status.Errorf(codes.ResourceExhausted, "rate limit exceeded")
				}
			}
		}

		return handler(ctx, req)
	}
}
