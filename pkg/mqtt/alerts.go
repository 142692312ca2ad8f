package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"liyu1981.xyz/crib-monitor-service/pkg/broadcast"
	"liyu1981.xyz/crib-monitor-service/pkg/common"
	"liyu1981.xyz/crib-monitor-service/pkg/models"
)

type AlertMessage struct {
	ReadingID string         `json:"readingId"`
	DeviceID  string         `json:"deviceId"`
	Timestamp time.Time      `json:"timestamp"`
	Alerts    []models.Alert `json:"alerts"`
}

// AlertRepublisher forwards readings that raised alerts to <prefix>/<deviceId>/alerts.
type AlertRepublisher struct {
	Broadcaster *broadcast.Broadcaster
	Publisher   Publisher
	Prefix      string

	now func() time.Time
}

func NewAlertRepublisher(b *broadcast.Broadcaster, publisher Publisher, prefix string) *AlertRepublisher {
	if prefix == "" {
		prefix = common.DefaultMqttTopicPrefix
	}
	return &AlertRepublisher{
		Broadcaster: b,
		Publisher:   publisher,
		Prefix:      strings.TrimSuffix(prefix, "/"),
		now:         time.Now,
	}
}

func (r *AlertRepublisher) AlertsTopic(deviceID string) string {
	return r.Prefix + "/" + deviceID + "/alerts"
}

// Run republishes until ctx is done or the broadcaster closes. A subscription dropped
// for falling behind is renewed.
func (r *AlertRepublisher) Run(ctx context.Context) error {
	var lastID string
	for {
		since := r.now()
		sub, err := r.Broadcaster.Subscribe(ctx, "")
		if errors.Is(err, broadcast.ErrClosed) {
			return nil
		}
		if err != nil {
			return err
		}

		lastID = r.drain(ctx, sub, since, lastID)
		r.Broadcaster.Unsubscribe(sub)
		if ctx.Err() != nil {
			return nil
		}
		logger().Warn("Alert subscription ended, resubscribing")
	}
}

// drain consumes sub until it closes or ctx ends and returns the last forwarded reading id.
func (r *AlertRepublisher) drain(ctx context.Context, sub *broadcast.Subscription, since time.Time, lastID string) string {
	for {
		select {
		case <-ctx.Done():
			return lastID
		case reading, ok := <-sub.C:
			if !ok {
				return lastID
			}
			// the replayed latest reading predates this subscription
			if reading.Timestamp.Before(since) || reading.ID == lastID {
				continue
			}
			if err := r.Forward(reading); err != nil {
				logger().Warn("Failed to republish alerts",
					zap.String("device_id", reading.DeviceID), zap.Error(err))
			}
			lastID = reading.ID
		}
	}
}

// Forward publishes the reading's alerts, if it has any.
func (r *AlertRepublisher) Forward(reading models.Reading) error {
	alerts := reading.AlertList()
	if len(alerts) == 0 {
		return nil
	}

	payload, err := json.Marshal(AlertMessage{
		ReadingID: reading.ID,
		DeviceID:  reading.DeviceID,
		Timestamp: reading.Timestamp,
		Alerts:    alerts,
	})
	if err != nil {
		return err
	}
	return r.Publisher.Publish(r.AlertsTopic(reading.DeviceID), QoSAtLeastOnce, false, payload)
}
