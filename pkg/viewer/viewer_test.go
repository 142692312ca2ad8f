package viewer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"liyu1981.xyz/crib-monitor-service/pkg/models"
)

func TestSeverityOf(t *testing.T) {
	assert.Equal(t, SeverityHigh, SeverityOf(models.AlertTypeBodyTempHigh))
	assert.Equal(t, SeverityHigh, SeverityOf(models.AlertTypeBodyTempLow))
	assert.Equal(t, SeverityMedium, SeverityOf(models.AlertTypeTemperatureHigh))
	assert.Equal(t, SeverityMedium, SeverityOf(models.AlertTypeHumidityLow))
}

func TestAlertLine(t *testing.T) {
	line := AlertLine(models.Alert{
		Type:      models.AlertTypeBodyTempHigh,
		Value:     38,
		Threshold: models.ThresholdRange{Min: 36, Max: 37.5},
	})
	assert.Equal(t, "[high] Body temperature too high: 38.0 (allowed 36.0 to 37.5)", line)
}

func TestBackOffPolicy(t *testing.T) {
	b := NewStream("ws://unused").newBackOff()
	var got []time.Duration
	for range 5 {
		got = append(got, b.NextBackOff())
	}
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}, got)
}

func reading(id, deviceID string, alerts ...models.Alert) models.Reading {
	return models.Reading{
		ID:              id,
		DeviceID:        deviceID,
		Timestamp:       time.Now().UTC(),
		Temperature:     24,
		Humidity:        50,
		BodyTemperature: 36.5,
		Alerts:          alerts,
	}
}

func TestModelUpdate(t *testing.T) {
	m := New(nil, "d1")
	assert.Contains(t, m.View(), "Waiting for data")
	assert.Contains(t, m.View(), "idle")

	next, _ := m.Update(StateMsg{State: StateConnected})
	m = next.(Model)
	assert.Contains(t, m.View(), "connected")

	high := models.Alert{Type: models.AlertTypeBodyTempHigh, Value: 38, Threshold: models.ThresholdRange{Min: 36, Max: 37.5}}
	next, _ = m.Update(ReadingMsg{Reading: reading("r1", "d1", high)})
	m = next.(Model)
	view := m.View()
	assert.Contains(t, view, "36.5 °C")
	assert.Contains(t, view, "Body temperature too high")

	// other devices are ignored
	next, _ = m.Update(ReadingMsg{Reading: reading("r2", "d2")})
	m = next.(Model)
	assert.Equal(t, "r1", m.latest.ID)

	// a replayed reading does not duplicate its alerts
	next, _ = m.Update(ReadingMsg{Reading: reading("r1", "d1", high)})
	m = next.(Model)
	assert.Len(t, m.alerts, 1)

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("c")})
	m = next.(Model)
	assert.Empty(t, m.alerts)

	next, _ = m.Update(StateMsg{State: StateDisconnected, RetryIn: 2 * time.Second})
	m = next.(Model)
	assert.Contains(t, m.View(), "retrying in 2s")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestModelKeepsRecentAlerts(t *testing.T) {
	m := New(nil, "")
	low := models.Alert{Type: models.AlertTypeHumidityLow, Value: 10, Threshold: models.ThresholdRange{Min: 40, Max: 60}}
	for i := range maxAlertLines + 5 {
		m = m.applyReading(reading(strings.Repeat("r", i+1), "d1", low))
	}
	assert.Len(t, m.alerts, maxAlertLines)
}

func TestStreamReconnects(t *testing.T) {
	var connections atomic.Int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		n := connections.Add(1)
		_ = conn.WriteJSON(map[string]any{"event": "sensorData", "data": reading("r"+string(rune('0'+n)), "d1")})
		if n == 1 {
			// drop the first client to force a reconnect
			return
		}
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err == nil && msg["event"] == "requestLatestData" {
			_ = conn.WriteJSON(map[string]any{"event": "sensorData", "data": reading("r9", "d1")})
		}
		time.Sleep(time.Second)
	}))
	defer srv.Close()

	stream := NewStream("ws" + strings.TrimPrefix(srv.URL, "http"))
	stream.InitialInterval = 10 * time.Millisecond
	stream.MaxInterval = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan any, 32)
	done := make(chan struct{})
	go func() {
		stream.Run(ctx, out)
		close(done)
	}()

	next := func() any {
		select {
		case msg := <-out:
			return msg
		case <-time.After(3 * time.Second):
			t.Fatal("no message from stream")
			return nil
		}
	}
	nextReading := func() models.Reading {
		for {
			if msg, ok := next().(ReadingMsg); ok {
				return msg.Reading
			}
		}
	}

	assert.Equal(t, StateMsg{State: StateConnecting}, next())
	assert.Equal(t, StateMsg{State: StateConnected}, next())
	assert.Equal(t, "r1", nextReading().ID)

	var sawDisconnect bool
	for !sawDisconnect {
		if msg, ok := next().(StateMsg); ok && msg.State == StateDisconnected {
			sawDisconnect = true
			assert.Equal(t, 10*time.Millisecond, msg.RetryIn)
		}
	}

	assert.Equal(t, "r2", nextReading().ID)
	stream.RequestLatest()
	assert.Equal(t, "r9", nextReading().ID)

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("stream did not stop")
	}
}
