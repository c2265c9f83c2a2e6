package mqtt

import (
	"context"
	"fmt"
	"log"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// RealClient talks to an actual MQTT broker. Auto-reconnect is off: a lost
// session surfaces as an error from CheckMsg or Ping and the device
// restarts instead.
type RealClient struct {
	client paho.Client
	opts   Options

	inbox chan Message
	lost  chan error
	done  chan struct{}
	once  sync.Once
}

// NewRealClient creates a client for opts.Broker. It does not connect.
func NewRealClient(opts Options) *RealClient {
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = DefaultKeepAlive
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = DefaultPublishTimeout
	}

	c := &RealClient{
		opts:  opts,
		inbox: make(chan Message, 32),
		lost:  make(chan error, 1),
		done:  make(chan struct{}),
	}

	po := paho.NewClientOptions().
		AddBroker(ResolveBroker(opts.Broker)).
		SetClientID(opts.ClientID).
		SetKeepAlive(opts.KeepAlive).
		SetConnectTimeout(opts.ConnectTimeout).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetOrderMatters(false).
		SetConnectionLostHandler(c.onLost)
	if opts.Username != "" {
		po.SetUsername(opts.Username)
		po.SetPassword(opts.Password)
	}

	c.client = paho.NewClient(po)
	return c
}

// Connect opens the session.
func (c *RealClient) Connect(ctx context.Context) error {
	token := c.client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		// the connect attempt may still complete in the background
		c.client.Disconnect(0)
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect to broker: %w", err)
	}
	log.Printf("mqtt: connected to %s as %s", ResolveBroker(c.opts.Broker), c.opts.ClientID)
	return nil
}

// Subscribe registers topic at QoS 0. Deliveries queue for CheckMsg.
func (c *RealClient) Subscribe(topic string) error {
	token := c.client.Subscribe(topic, 0, c.onMessage)
	if !token.WaitTimeout(c.opts.PublishTimeout) {
		return fmt.Errorf("subscribe %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

// Publish sends payload at QoS 0 (at-most-once), not retained.
func (c *RealClient) Publish(topic string, payload []byte) error {
	token := c.client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(c.opts.PublishTimeout) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// CheckMsg returns a queued message, or the connection-lost error.
func (c *RealClient) CheckMsg() (Message, bool, error) {
	select {
	case err := <-c.lost:
		return Message{}, false, err
	default:
	}
	select {
	case m := <-c.inbox:
		return m, true, nil
	default:
		return Message{}, false, nil
	}
}

// Ping checks the session. paho sends the PINGREQ frames itself on the
// keep-alive schedule; a session it has given up on reports as closed.
func (c *RealClient) Ping() error {
	select {
	case err := <-c.lost:
		return err
	default:
	}
	if !c.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports whether the session is open.
func (c *RealClient) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (c *RealClient) Close() error {
	c.once.Do(func() { close(c.done) })
	c.client.Disconnect(250)
	return nil
}

func (c *RealClient) onMessage(_ paho.Client, m paho.Message) {
	select {
	case c.inbox <- Message{Topic: m.Topic(), Payload: m.Payload()}:
	case <-c.done:
	}
}

func (c *RealClient) onLost(_ paho.Client, err error) {
	log.Printf("mqtt: connection lost: %v", err)
	select {
	case c.lost <- fmt.Errorf("%w: %v", ErrNotConnected, err):
	default:
	}
}
