package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sweeney/lora-node/internal/logic"
)

// DefaultBufferSize is how many messages are held while disconnected.
const DefaultBufferSize = 256

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

var errPublishTimeout = errors.New("publish timeout")

// Option configures a RealPublisher.
type Option func(*RealPublisher)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(p *RealPublisher) { p.log = l }
}

// WithBufferSize sets the offline buffer capacity.
func WithBufferSize(n int) Option {
	return func(p *RealPublisher) { p.size = n }
}

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the connection is down are buffered and replayed on reconnect.
type RealPublisher struct {
	client paho.Client
	log    zerolog.Logger
	size   int
	now    func() time.Time

	mu        sync.Mutex
	buffer    *ringBuffer
	connected bool // at least one successful connect
}

func newPublisher(opts ...Option) *RealPublisher {
	p := &RealPublisher{
		log:  zerolog.Nop(),
		size: DefaultBufferSize,
		now:  time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	if p.size < 1 {
		p.size = 1
	}
	p.buffer = newRingBuffer(p.size, p.log)
	return p
}

// ClientID appends a random suffix to base so two nodes sharing a config do
// not kick each other off the broker.
func ClientID(base string) string {
	return fmt.Sprintf("%s-%s", base, uuid.NewString()[:8])
}

// NewRealPublisher creates a publisher for the given broker. It does not fail
// when the broker is unreachable at start; paho keeps retrying and messages
// are buffered meanwhile.
func NewRealPublisher(broker, clientID string, opts ...Option) (*RealPublisher, error) {
	p := newPublisher(opts...)

	o := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(ClientID(clientID)).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(TopicSystem, string(WillPayload(p.now())), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)

	p.client = paho.NewClient(o)
	token := p.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		p.log.Warn().Str("broker", broker).Msg("mqtt broker not reachable yet, buffering")
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	msgs := p.buffer.drainAll()
	reconnect := p.connected
	p.connected = true
	p.mu.Unlock()

	if reconnect {
		payload, _ := FormatSystemPayload(SystemEvent{Timestamp: p.now(), Event: "RECONNECTED"})
		c.Publish(TopicSystem, 1, false, payload)
		p.log.Info().Int("replayed", len(msgs)).Msg("mqtt reconnected")
	}
	for _, m := range msgs {
		c.Publish(m.topic, m.qos, m.retained, m.payload)
	}
}

func (p *RealPublisher) onConnectionLost(_ paho.Client, err error) {
	p.log.Warn().Err(err).Msg("mqtt connection lost")
}

func (p *RealPublisher) publish(topic string, qos byte, retained bool, payload []byte) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		p.buffer.push(bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained})
		p.mu.Unlock()
		return nil
	}
	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return errPublishTimeout
	}
	return token.Error()
}

// Publish sends a node event to the broker.
func (p *RealPublisher) Publish(event logic.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 0 (at-most-once), not retained
	if err := p.publish(Topic, 0, false, payload); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// PublishSystem sends a system lifecycle event to the broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 for lifecycle events
	if err := p.publish(TopicSystem, 1, event.Retained, payload); err != nil {
		return fmt.Errorf("publish system: %w", err)
	}
	return nil
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffer.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second quiesce
	return nil
}
