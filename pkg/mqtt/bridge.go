package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"liyu1981.xyz/crib-monitor-service/pkg/common"
	"liyu1981.xyz/crib-monitor-service/pkg/iot"
	"liyu1981.xyz/crib-monitor-service/pkg/models"
)

// Bridge ingests readings that devices publish to <prefix>/<deviceId>/readings.
type Bridge struct {
	Sensor iot.ISensor
	Prefix string
}

func NewBridge(sensor iot.ISensor, prefix string) *Bridge {
	if prefix == "" {
		prefix = common.DefaultMqttTopicPrefix
	}
	return &Bridge{Sensor: sensor, Prefix: strings.TrimSuffix(prefix, "/")}
}

func (b *Bridge) ReadingsTopic() string {
	return b.Prefix + "/+/readings"
}

// DeviceFromTopic extracts the device segment of a readings topic.
func (b *Bridge) DeviceFromTopic(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, b.Prefix+"/")
	if !ok {
		return "", false
	}
	deviceID, ok := strings.CutSuffix(rest, "/readings")
	if !ok || deviceID == "" || strings.Contains(deviceID, "/") {
		return "", false
	}
	return deviceID, true
}

// Handle ingests one message. Bad topics and payloads are logged and dropped since
// MQTT has no way to answer the sender.
func (b *Bridge) Handle(ctx context.Context, msg Message) (*models.Reading, error) {
	topicDevice, ok := b.DeviceFromTopic(msg.Topic())
	if !ok {
		logger().Info("Dropped message on unexpected topic", zap.String("topic", msg.Topic()))
		return nil, fmt.Errorf("unexpected topic %q", msg.Topic())
	}

	var data map[string]any
	if err := json.Unmarshal(msg.Payload(), &data); err != nil || data == nil {
		logger().Info("Dropped malformed payload", zap.String("topic", msg.Topic()), zap.Error(err))
		return nil, &iot.ValidationError{Issues: []iot.FieldIssue{{Field: "body", Message: "payload must be a JSON object"}}}
	}
	if _, ok := data["deviceId"]; !ok {
		data["deviceId"] = topicDevice
	}

	in, err := iot.ParseReadingInput(data)
	if err != nil {
		logger().Info("Dropped invalid reading", zap.String("topic", msg.Topic()), zap.Error(err))
		return nil, err
	}

	reading, err := b.Sensor.Ingest(iot.WithTransport(ctx, "mqtt"), in)
	if err != nil {
		logger().Warn("Failed to ingest reading", zap.String("topic", msg.Topic()), zap.Error(err))
		return nil, err
	}
	return reading, nil
}

type subscriber interface {
	Subscribe(topic string, qos byte, handler func(Message)) error
}

// Start subscribes the bridge on client. Messages are handled with ctx.
func (b *Bridge) Start(ctx context.Context, client subscriber) error {
	topic := b.ReadingsTopic()
	if err := client.Subscribe(topic, QoSAtLeastOnce, func(msg Message) {
		_, _ = b.Handle(ctx, msg)
	}); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	logger().Info("MQTT bridge subscribed", zap.String("topic", topic))
	return nil
}
