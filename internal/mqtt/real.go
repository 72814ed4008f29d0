package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// bufferCapacity bounds the lines kept while the broker is unreachable.
const bufferCapacity = 256

// RealPublisher publishes to an actual MQTT broker.
type RealPublisher struct {
	client paho.Client
	topic  string

	mu  sync.Mutex
	buf *ringBuffer
}

// NewRealPublisher starts connecting to broker in the background. Lines
// published before the first connection are buffered and replayed.
func NewRealPublisher(broker, clientID, topic string) *RealPublisher {
	p := &RealPublisher{topic: topic, buf: newRingBuffer(bufferCapacity)}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(func(paho.Client) { p.replay() })

	// With connect-retry enabled the token only completes once connected,
	// so it is not waited on.
	p.client = paho.NewClient(opts)
	p.client.Connect()

	return p
}

// Publish sends line at QoS 0, or buffers it while disconnected.
func (p *RealPublisher) Publish(line []byte) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		p.buf.push(line)
		p.mu.Unlock()
		return nil
	}
	p.client.Publish(p.topic, 0, false, line)
	return nil
}

// replay flushes buffered lines after (re)connecting.
func (p *RealPublisher) replay() {
	p.mu.Lock()
	lines, dropped := p.buf.drain()
	p.mu.Unlock()

	if dropped > 0 {
		p.client.Publish(p.topic, 0, false, []byte(fmt.Sprintf("mqtt: %d diagnostic lines dropped while disconnected", dropped)))
	}
	for _, line := range lines {
		p.client.Publish(p.topic, 0, false, line)
	}
}

// IsConnected reports whether the broker connection is open.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
