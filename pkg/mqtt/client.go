package mqtt

import (
	"fmt"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
	"liyu1981.xyz/crib-monitor-service/pkg/common"
)

const (
	QoSAtMostOnce  byte = 0
	QoSAtLeastOnce byte = 1

	connectTimeout    = 15 * time.Second
	disconnectQuiesce = 1000
)

// Message is the part of an incoming MQTT message the bridge reads.
type Message interface {
	Topic() string
	Payload() []byte
}

// Publisher sends a payload to a topic.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

func logger() *zap.Logger {
	return common.GetLoggerWith(common.LoggerNameMqttBridge)
}

type Client struct {
	client pahomqtt.Client
}

// brokerURL accepts mqtt:// as an alias for tcp://.
func brokerURL(url string) string {
	url = strings.TrimSpace(url)
	if rest, ok := strings.CutPrefix(url, "mqtt://"); ok {
		return "tcp://" + rest
	}
	return url
}

func Connect(url, clientID string) (*Client, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("mqtt broker url is empty")
	}
	if strings.TrimSpace(clientID) == "" {
		clientID = "crib-monitor-" + time.Now().Format("150405.000")
	}

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(brokerURL(url))
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.OnConnectionLost = func(_ pahomqtt.Client, err error) {
		logger().Warn("MQTT connection lost", zap.Error(err))
	}
	opts.OnConnect = func(_ pahomqtt.Client) {
		logger().Info("MQTT connected", zap.String("broker", url))
	}

	c := pahomqtt.NewClient(opts)
	tok := c.Connect()
	if ok := tok.WaitTimeout(connectTimeout); !ok {
		return nil, fmt.Errorf("mqtt connect to %s timed out", url)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", url, err)
	}
	return &Client{client: c}, nil
}

func (c *Client) Subscribe(topic string, qos byte, handler func(Message)) error {
	tok := c.client.Subscribe(topic, qos, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		handler(msg)
	})
	tok.Wait()
	return tok.Error()
}

func (c *Client) Publish(topic string, qos byte, retained bool, payload []byte) error {
	tok := c.client.Publish(topic, qos, retained, payload)
	tok.Wait()
	return tok.Error()
}

func (c *Client) Close() {
	if c == nil || c.client == nil {
		return
	}
	c.client.Disconnect(disconnectQuiesce)
}
