package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"liyu1981.xyz/crib-monitor-service/pkg/broadcast"
	"liyu1981.xyz/crib-monitor-service/pkg/models"
)

const (
	wsWriteWait  = 5 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 25 * time.Second
	wsReadLimit  = 1024

	EventSensorData        = "sensorData"
	EventRequestLatestData = "requestLatestData"
)

type wsFrame struct {
	Event string          `json:"event"`
	Data  *models.Reading `json:"data,omitempty"`
}

// ServeWS upgrades to a WebSocket and streams readings for the optional deviceId query.
// The first frame is the latest known reading, if any.
func (rs *RestfulServer) ServeWS(c *gin.Context) {
	if rs.Broadcaster == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "message": "real-time channel unavailable"})
		return
	}

	conn, err := rs.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger().Debug("WebSocket upgrade failed", zap.Error(err))
		return
	}

	deviceID := c.Query("deviceId")
	sub, err := rs.Broadcaster.Subscribe(c.Request.Context(), deviceID)
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, err.Error()),
			time.Now().Add(wsWriteWait))
		_ = conn.Close()
		return
	}
	logger().Info("WebSocket client connected", zap.String("device_id", deviceID))

	done := make(chan struct{})
	go rs.wsWritePump(conn, sub, done)
	rs.wsReadPump(c.Request.Context(), conn, sub)
	close(done)
	logger().Info("WebSocket client disconnected", zap.String("device_id", deviceID))
}

func (rs *RestfulServer) wsReadPump(ctx context.Context, conn *websocket.Conn, sub *broadcast.Subscription) {
	defer rs.Broadcaster.Unsubscribe(sub)

	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var frame wsFrame
		if err := json.Unmarshal(msg, &frame); err != nil {
			continue
		}
		if frame.Event == EventRequestLatestData {
			if err := rs.Broadcaster.RequestLatest(ctx, sub); err != nil {
				return
			}
		}
	}
}

func (rs *RestfulServer) wsWritePump(conn *websocket.Conn, sub *broadcast.Subscription, done <-chan struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case reading, ok := <-sub.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(wsFrame{Event: EventSensorData, Data: &reading}); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
