package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"liyu1981.xyz/crib-monitor-service/pkg/common"
	"liyu1981.xyz/crib-monitor-service/pkg/iot"
	"liyu1981.xyz/crib-monitor-service/pkg/models"

	z "github.com/Oudwins/zog"
	"github.com/Oudwins/zog/zhttp"
)

func logger() *zap.Logger {
	return common.GetLoggerWith(common.LoggerNameRestfulServer)
}

// writeError maps domain errors onto status codes. Store failures are logged here and
// reported to the client without detail.
func writeError(c *gin.Context, err error) {
	if ve, ok := iot.IsValidationError(err); ok {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "errors": ve.Issues})
		return
	}
	if errors.Is(err, iot.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "no data found"})
		return
	}
	logger().Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "internal server error"})
}

func (rs *RestfulServer) PostSensorData(c *gin.Context) {
	var in models.ReadingInput
	if issues := iot.ReadingSchema.Parse(zhttp.Request(c.Request), &in); issues != nil {
		writeError(c, iot.NewValidationError(issues, ""))
		return
	}

	if !rs.CheckDeviceLimiter(in.DeviceID) {
		c.JSON(http.StatusTooManyRequests, gin.H{"success": false, "message": "rate limit exceeded"})
		return
	}

	reading, err := rs.Iot.Sensor.Ingest(iot.WithTransport(c.Request.Context(), "http"), in)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "Sensor data stored",
		"data":    gin.H{"id": reading.ID, "timestamp": reading.Timestamp},
	})
}

func (rs *RestfulServer) GetLatest(c *gin.Context) {
	reading, err := rs.Iot.Reading.Latest(c.Request.Context(), c.Query("deviceId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": reading})
}

type HistoryRequest struct {
	DeviceID string `zog:"deviceId"`
	Limit    int    `zog:"limit"`
	Hours    int    `zog:"hours"`
}

var historyRequestSchema = z.Struct(z.Shape{
	"DeviceID": z.String().Trim(),
	"Limit":    z.Int().GT(0, z.Message("limit must be a positive integer")),
	"Hours":    z.Int().GT(0, z.Message("hours must be a positive integer")),
})

func (rs *RestfulServer) GetHistory(c *gin.Context) {
	var req HistoryRequest
	if issues := historyRequestSchema.Parse(zhttp.Request(c.Request), &req); issues != nil {
		writeError(c, iot.NewValidationError(issues, ""))
		return
	}

	readings, err := rs.Iot.Reading.History(c.Request.Context(), models.HistoryQuery{
		DeviceID: req.DeviceID,
		Hours:    req.Hours,
		Limit:    req.Limit,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(readings), "data": readings})
}

// GetValues serves the flat latest-values shape older dashboards poll.
func (rs *RestfulServer) GetValues(c *gin.Context) {
	reading, err := rs.Iot.Reading.Latest(c.Request.Context(), c.Query("deviceId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"temperature":     reading.Temperature,
		"humidity":        reading.Humidity,
		"bodyTemperature": reading.BodyTemperature,
		"timestamp":       reading.Timestamp,
	})
}

func thresholdsResponse(s *models.ThresholdSettings) gin.H {
	return gin.H{
		"deviceId":   s.DeviceID,
		"thresholds": s.Thresholds,
		"updatedAt":  s.UpdatedAt,
	}
}

func (rs *RestfulServer) GetThresholds(c *gin.Context) {
	deviceID := c.DefaultQuery("deviceId", rs.defaultDevice())
	deviceID, err := iot.ValidateDeviceID(deviceID)
	if err != nil {
		writeError(c, err)
		return
	}

	settings, err := rs.Iot.Threshold.Lookup(c.Request.Context(), deviceID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": thresholdsResponse(settings)})
}

func (rs *RestfulServer) PutThresholds(c *gin.Context) {
	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, &iot.ValidationError{Issues: []iot.FieldIssue{{Field: "body", Message: "body must be a JSON object"}}})
		return
	}

	deviceID := rs.defaultDevice()
	if raw, ok := body["deviceId"]; ok {
		s, ok := raw.(string)
		if !ok {
			writeError(c, &iot.ValidationError{Issues: []iot.FieldIssue{{Field: "deviceId", Message: "deviceId must be a string"}}})
			return
		}
		deviceID = s
	}

	raw, ok := body["thresholds"].(map[string]any)
	if !ok {
		writeError(c, &iot.ValidationError{Issues: []iot.FieldIssue{{Field: "thresholds", Message: "thresholds is required"}}})
		return
	}
	thresholds, err := iot.ParseThresholds(raw)
	if err != nil {
		writeError(c, err)
		return
	}

	settings, err := rs.Iot.Threshold.Update(c.Request.Context(), deviceID, thresholds)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Thresholds updated",
		"data":    thresholdsResponse(settings),
	})
}

type LimiterRequest struct {
	Rate  float64 `json:"rate"`
	Burst int     `json:"burst"`
}

var limiterRequestSchema = z.Struct(z.Shape{
	"rate":  z.Float64().Required().GT(0),
	"burst": z.Int().Required().GT(0).LTE(iot.MaxLimiterBurst),
})

func (rs *RestfulServer) PostLimiter(c *gin.Context) {
	deviceID, err := iot.ValidateDeviceID(c.Param("deviceId"))
	if err != nil {
		writeError(c, err)
		return
	}

	var req LimiterRequest
	if issues := limiterRequestSchema.Parse(zhttp.Request(c.Request), &req); issues != nil {
		writeError(c, iot.NewValidationError(issues, ""))
		return
	}

	if rs.RateLimiterStore == nil {
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "rate limiting is disabled, no effect"})
		return
	}

	rs.SetLimiter(deviceID, req.Rate, req.Burst)
	limit, burst := rs.RateLimiterStore.Limits(deviceID)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"deviceId": deviceID, "rate": float64(limit), "burst": burst},
	})
}

func (rs *RestfulServer) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
}
