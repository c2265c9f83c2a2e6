// Package mqtt provides the device's state channel over MQTT, with a
// client abstraction for testing.
package mqtt

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"
)

// Topic suffixes appended to the client ID.
const (
	SetSuffix   = "/set"
	StateSuffix = "/state"
)

// Defaults for the channel's timing.
const (
	DefaultKeepAlive      = 60 * time.Second
	DefaultPumpInterval   = 20 * time.Millisecond
	DefaultConnectTimeout = 10 * time.Second
	DefaultPublishTimeout = 5 * time.Second
)

// ErrNotConnected is returned when the broker session is gone.
var ErrNotConnected = errors.New("mqtt: not connected")

// Topics are the two per-device topics, derived once from the client ID.
type Topics struct {
	// Set carries inbound commands.
	Set string
	// State carries outbound state snapshots.
	State string
}

// NewTopics derives the topics for clientID.
func NewTopics(clientID string) Topics {
	return Topics{
		Set:   clientID + SetSuffix,
		State: clientID + StateSuffix,
	}
}

// Message is an inbound publication on a subscribed topic.
type Message struct {
	Topic   string
	Payload []byte
}

// Client is the broker connection used by the channel. Every method that
// does I/O returns an error the caller treats as fatal.
type Client interface {
	// Connect opens the session, bounded by the client's connect timeout.
	Connect(ctx context.Context) error

	// Subscribe registers interest in topic at QoS 0.
	Subscribe(topic string) error

	// Publish sends payload to topic at QoS 0, not retained.
	Publish(topic string, payload []byte) error

	// CheckMsg returns the next pending inbound message without blocking.
	// ok is false when nothing is pending.
	CheckMsg() (msg Message, ok bool, err error)

	// Ping verifies the session is alive (the transport owns PINGREQ).
	Ping() error

	// IsConnected reports whether the session is open.
	IsConnected() bool

	// Close disconnects from the broker.
	Close() error
}

// Options configures a RealClient.
type Options struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
}

// ResolveBroker turns a bare host or host:port into a broker URL,
// defaulting to tcp and port 1883. URLs with a scheme pass through.
func ResolveBroker(host string) string {
	if strings.Contains(host, "://") {
		return host
	}
	u := url.URL{Scheme: "tcp", Host: host}
	if u.Port() == "" {
		u.Host = host + ":1883"
	}
	return u.String()
}
