package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// Defaults for RealPublisher options.
const (
	DefaultClientID       = "gpio-controller"
	DefaultBufferSize     = 256
	DefaultConnectTimeout = 10 * time.Second
	publishTimeout        = 5 * time.Second
)

// Options configures a RealPublisher.
type Options struct {
	Broker      string
	ClientID    string
	TopicPrefix string

	// BufferSize is how many messages are kept for replay while the broker
	// is unreachable. The oldest are dropped first.
	BufferSize int

	// ConnectTimeout bounds the initial connection attempt. The client keeps
	// retrying in the background after it elapses.
	ConnectTimeout time.Duration

	Log *zap.SugaredLogger
}

// RealPublisher publishes to an actual MQTT broker. Messages published while
// disconnected are buffered and replayed in order on reconnect.
type RealPublisher struct {
	client      paho.Client
	workerTopic string
	systemTopic string
	log         *zap.SugaredLogger

	mu        sync.Mutex
	buf       *replayQueue
	connected bool // has connected at least once
}

// NewRealPublisher creates a publisher for the given broker. A broker that is
// not reachable yet is not an error; messages are buffered until it is.
func NewRealPublisher(opts Options) (*RealPublisher, error) {
	if opts.ClientID == "" {
		opts.ClientID = DefaultClientID
	}
	if opts.TopicPrefix == "" {
		opts.TopicPrefix = DefaultTopicPrefix
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop().Sugar()
	}

	p := &RealPublisher{
		workerTopic: WorkerTopic(opts.TopicPrefix),
		systemTopic: SystemTopic(opts.TopicPrefix),
		log:         opts.Log,
		buf:         newReplayQueue(opts.BufferSize),
	}

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	clientOpts := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(p.systemTopic, will, 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			p.log.Warnf("mqtt: connection lost: %v", err)
		})

	p.client = paho.NewClient(clientOpts)
	token := p.client.Connect()
	if !token.WaitTimeout(opts.ConnectTimeout) {
		p.log.Warnf("mqtt: broker %s not reachable after %v, buffering until connected", opts.Broker, opts.ConnectTimeout)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

// onConnect replays buffered messages. paho calls it on its own goroutine
// for the first connection and every reconnection.
func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	reconnect := p.connected
	p.connected = true
	pending, dropped := p.buf.drainAll()
	p.mu.Unlock()

	if dropped > 0 {
		p.log.Warnf("mqtt: %d messages were dropped while disconnected", dropped)
	}
	if reconnect {
		p.log.Infof("mqtt: reconnected, replaying %d buffered messages", len(pending))
		payload, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"})
		c.Publish(p.systemTopic, 1, false, payload)
	} else {
		p.log.Infof("mqtt: connected, replaying %d buffered messages", len(pending))
	}
	for _, m := range pending {
		c.Publish(m.topic, m.qos, m.retained, m.payload)
	}
}

// PublishWorker sends a worker transition to the broker.
func (p *RealPublisher) PublishWorker(event WorkerEvent) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 0 (at-most-once), not retained
	return p.publish(bufferedMsg{topic: p.workerTopic, payload: payload})
}

// PublishSystem sends a system lifecycle event to the broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) for lifecycle events - we want to ensure delivery
	return p.publish(bufferedMsg{topic: p.systemTopic, payload: payload, qos: 1, retained: event.Retained})
}

func (p *RealPublisher) publish(m bufferedMsg) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		if p.buf.push(m) {
			p.log.Warnf("mqtt: buffer full (%d messages), dropping worker events first", p.buf.capacity)
		}
		p.mu.Unlock()
		return nil
	}

	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s: timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", m.topic, err)
	}
	return nil
}

// IsConnected reports whether the client currently has an open connection.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
