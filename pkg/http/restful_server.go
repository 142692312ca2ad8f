package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/time/rate"
	"liyu1981.xyz/crib-monitor-service/pkg/broadcast"
	"liyu1981.xyz/crib-monitor-service/pkg/common"
	"liyu1981.xyz/crib-monitor-service/pkg/iot"
	"liyu1981.xyz/crib-monitor-service/pkg/observability"
)

type RestfulServer struct {
	Server           *gin.Engine
	Iot              *iot.IOT
	RateLimiterStore *iot.RateLimiterStore
	Broadcaster      *broadcast.Broadcaster
	// DefaultDeviceID answers settings requests that name no device.
	DefaultDeviceID string
	// CorsOrigin is the viewer origin allowed to call the API; empty allows any.
	CorsOrigin string

	upgrader websocket.Upgrader
}

func (rs *RestfulServer) CheckDeviceLimiter(deviceID string) bool {
	return rs.RateLimiterStore.Allow(deviceID)
}

func (rs *RestfulServer) SetLimiter(deviceID string, deviceRate float64, deviceBurst int) {
	if rs.RateLimiterStore == nil {
		return
	}
	rs.RateLimiterStore.SetLimiter(deviceID, rate.Limit(deviceRate), deviceBurst)
}

func (rs *RestfulServer) defaultDevice() string {
	if rs.DefaultDeviceID == "" {
		return common.DefaultDeviceID
	}
	return rs.DefaultDeviceID
}

func (rs *RestfulServer) allowedOrigins() []string {
	if rs.CorsOrigin == "" {
		return []string{"*"}
	}
	return []string{rs.CorsOrigin}
}

func (rs *RestfulServer) Setup() {
	rs.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     rs.checkOrigin,
	}

	rs.Server.Use(metricsAndTracing())

	rs.Server.GET("/health", rs.HealthCheck)
	rs.Server.GET("/healthz", rs.HealthCheck)
	rs.Server.GET("/metrics", gin.WrapH(promhttp.Handler()))
	rs.Server.GET("/v1/values", rs.GetValues)
	rs.Server.GET("/ws", rs.ServeWS)

	api := rs.Server.Group("/api")
	{
		api.POST("/sensors", rs.PostSensorData)
		api.GET("/sensors/latest", rs.GetLatest)
		api.GET("/sensors/history", rs.GetHistory)
		api.GET("/settings/thresholds", rs.GetThresholds)
		api.PUT("/settings/thresholds", rs.PutThresholds)
		api.POST("/devices/:deviceId/limiter", rs.PostLimiter)
	}
}

// Handler is the engine wrapped with CORS handling; serve this rather than Server.
func (rs *RestfulServer) Handler() http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: rs.allowedOrigins(),
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	})(rs.Server)
}

func (rs *RestfulServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || rs.CorsOrigin == "" || rs.CorsOrigin == "*" {
		return true
	}
	return origin == rs.CorsOrigin
}

func metricsAndTracing() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		if route == "/metrics" {
			c.Next()
			return
		}

		method := c.Request.Method
		ctx := otel.GetTextMapPropagator().Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := observability.Tracer().Start(ctx, method+" "+route)
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(
			attribute.String("http.method", method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
		)
		observability.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	}
}
