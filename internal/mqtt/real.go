package mqtt

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// ActivityWindowMillis is how long the data-activity indicator stays lit
// after a publish or a received message.
const ActivityWindowMillis = 500

const defaultBufferCapacity = 64

// Options configures the real client.
type Options struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topics   Topics

	// OnCommand receives raw payloads from the commands topic. Required.
	OnCommand CommandHandler

	// BufferCapacity bounds the offline replay buffer. Non-positive selects
	// the default.
	BufferCapacity int

	// RSSI optionally reports the link RSSI in dBm for the signal strength
	// icon. Nil means unknown (zero bars metadata, not an error).
	RSSI func() int
}

// RealClient talks to an actual MQTT broker. Events published while the
// broker is unreachable are held in a ring buffer and replayed on
// reconnection, oldest first.
type RealClient struct {
	client paho.Client
	topics Topics
	logger *zap.Logger
	rssi   func() int

	lastActivityMillis atomic.Int64

	mu     sync.Mutex
	buffer *ringBuffer
}

// NewRealClient creates a client and starts connecting to the broker. A
// broker that is down at startup is not an error: the client keeps retrying
// in the background and buffers outgoing events meanwhile.
func NewRealClient(o Options, logger *zap.Logger) (*RealClient, error) {
	if o.OnCommand == nil {
		return nil, fmt.Errorf("OnCommand handler is required")
	}
	capacity := o.BufferCapacity
	if capacity <= 0 {
		capacity = defaultBufferCapacity
	}

	c := &RealClient{
		topics: o.Topics,
		logger: logger,
		rssi:   o.RSSI,
		buffer: newRingBuffer(capacity),
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetUsername(o.Username).
		SetPassword(o.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(func(client paho.Client) {
			c.onConnect(client, o.OnCommand)
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.Warn("broker connection lost", zap.Error(err))
		})

	c.client = paho.NewClient(opts)

	token := c.client.Connect()
	if token.WaitTimeout(10 * time.Second) {
		if err := token.Error(); err != nil {
			return nil, fmt.Errorf("connect to broker: %w", err)
		}
	} else {
		logger.Warn("broker not reachable yet, continuing with buffered publishing",
			zap.String("broker", o.Broker))
	}
	return c, nil
}

// onConnect runs on every (re)connection: re-subscribe and replay whatever
// accumulated while offline.
func (c *RealClient) onConnect(client paho.Client, handler CommandHandler) {
	c.logger.Info("broker connected", zap.String("commands_topic", c.topics.Commands))

	token := client.Subscribe(c.topics.Commands, 1, func(_ paho.Client, msg paho.Message) {
		c.touchActivity()
		handler(msg.Payload())
	})
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		c.logger.Error("subscribe failed", zap.Error(token.Error()))
	}

	c.mu.Lock()
	pending := c.buffer.drainAll()
	c.mu.Unlock()
	if len(pending) == 0 {
		return
	}

	c.logger.Info("replaying buffered events", zap.Int("count", len(pending)))
	for _, msg := range pending {
		t := client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
		if t.WaitTimeout(5*time.Second) && t.Error() != nil {
			c.logger.Warn("buffered event replay failed", zap.Error(t.Error()))
		}
	}
}

func (c *RealClient) touchActivity() {
	c.lastActivityMillis.Store(time.Now().UnixMilli())
}

// PublishPour sends a pour lifecycle event. QoS 1 — billing events must not
// be silently lost.
func (c *RealClient) PublishPour(event PourEvent) error {
	payload, err := FormatPourPayload(event)
	if err != nil {
		return fmt.Errorf("format pour payload: %w", err)
	}
	return c.publish(c.topics.Events, 1, false, payload)
}

// PublishSystem sends a system lifecycle event. QoS 1 so shutdown events
// are delivered.
func (c *RealClient) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return c.publish(c.topics.System, 1, event.Retained, payload)
}

func (c *RealClient) publish(topic string, qos byte, retained bool, payload []byte) error {
	c.touchActivity()

	if !c.client.IsConnectionOpen() {
		c.bufferMsg(topic, qos, retained, payload)
		return nil
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		c.bufferMsg(topic, qos, retained, payload)
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		c.bufferMsg(topic, qos, retained, payload)
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

func (c *RealClient) bufferMsg(topic string, qos byte, retained bool, payload []byte) {
	c.mu.Lock()
	dropped := c.buffer.push(bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained})
	n := c.buffer.len()
	c.mu.Unlock()
	if dropped {
		c.logger.Warn("offline buffer full, dropped oldest event", zap.Int("capacity", n))
	}
	c.logger.Debug("event buffered while offline", zap.String("topic", topic), zap.Int("buffered", n))
}

// IsConnected reports whether the broker connection is open.
func (c *RealClient) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

// SignalStrength returns the link RSSI in dBm, or 0 when unknown.
func (c *RealClient) SignalStrength() int {
	if c.rssi == nil {
		return 0
	}
	return c.rssi()
}

// HasRecentActivity reports TX/RX within the activity window.
func (c *RealClient) HasRecentActivity() bool {
	last := c.lastActivityMillis.Load()
	return last != 0 && time.Now().UnixMilli()-last <= ActivityWindowMillis
}

// Close disconnects from the broker.
func (c *RealClient) Close() error {
	c.client.Disconnect(1000) // 1 second timeout
	return nil
}
