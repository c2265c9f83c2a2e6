package mqtt

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sweeney/letterbox/internal/logic"
	"github.com/sweeney/letterbox/internal/status"
)

// Channel is the device's state channel: it publishes state snapshots,
// applies commands from the set topic, and keeps the session alive.
type Channel struct {
	client    Client
	topics    Topics
	tracker   *status.Tracker
	keepalive time.Duration
	pump      time.Duration
	now       func() time.Time

	// effects drives indicator outputs after a command is applied.
	effects func(status.Snapshot)

	// mu makes "apply command, then echo" atomic with respect to the
	// periodic publisher.
	mu       sync.Mutex
	lastPing time.Time
}

// NewChannel creates a Channel. Zero durations select the defaults.
func NewChannel(client Client, topics Topics, tracker *status.Tracker, keepalive, pump time.Duration) *Channel {
	if keepalive <= 0 {
		keepalive = DefaultKeepAlive
	}
	if pump <= 0 {
		pump = DefaultPumpInterval
	}
	return &Channel{
		client:    client,
		topics:    topics,
		tracker:   tracker,
		keepalive: keepalive,
		pump:      pump,
		now:       time.Now,
		effects:   func(status.Snapshot) {},
	}
}

// OnApply sets the function called with the new snapshot after each
// command, before the echo is published.
func (c *Channel) OnApply(fn func(status.Snapshot)) {
	c.effects = fn
}

// Topics returns the channel's topics.
func (c *Channel) Topics() Topics { return c.topics }

// Open connects to the broker and subscribes to the set topic. On failure
// the session is closed, so a failed boot leaves nothing connected.
func (c *Channel) Open(ctx context.Context) error {
	if err := c.client.Connect(ctx); err != nil {
		c.client.Close()
		return err
	}
	if err := c.client.Subscribe(c.topics.Set); err != nil {
		c.client.Close()
		return err
	}
	c.tracker.SetMQTTConnected(true)
	c.lastPing = c.now()
	log.Printf("mqtt: subscribed to %s", c.topics.Set)
	return nil
}

// PublishState publishes the current snapshot to the state topic.
func (c *Channel) PublishState() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.publish(c.tracker.Snapshot())
}

func (c *Channel) publish(snap status.Snapshot) error {
	if err := c.client.Publish(c.topics.State, status.FormatState(snap)); err != nil {
		c.tracker.SetMQTTConnected(false)
		return fmt.Errorf("publish state: %w", err)
	}
	return nil
}

// HandleMessage is the inbound message callback. Malformed payloads are
// logged and dropped; only a failed echo publish returns an error.
func (c *Channel) HandleMessage(msg Message) error {
	if msg.Topic != c.topics.Set {
		return nil
	}

	cmd, err := logic.ParseCommand(msg.Payload)
	if err != nil {
		log.Printf("mqtt: %s: %v", msg.Topic, err)
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	snap := c.tracker.Apply(cmd)
	log.Printf("mqtt: command applied: enabled=%v on=%v", snap.Enabled, snap.On)
	c.effects(snap)
	return c.publish(snap)
}

// Poll services every pending inbound message and pings the broker when
// the keep-alive interval is 80% spent.
func (c *Channel) Poll() error {
	for {
		msg, ok, err := c.client.CheckMsg()
		if err != nil {
			c.tracker.SetMQTTConnected(false)
			return fmt.Errorf("check messages: %w", err)
		}
		if !ok {
			break
		}
		if err := c.HandleMessage(msg); err != nil {
			return err
		}
	}

	now := c.now()
	if logic.PingDue(now.Sub(c.lastPing), c.keepalive) {
		if err := c.client.Ping(); err != nil {
			c.tracker.SetMQTTConnected(false)
			return fmt.Errorf("ping: %w", err)
		}
		c.lastPing = now
	}
	return nil
}

// Service polls every pump interval until ctx is done or I/O fails.
func (c *Channel) Service(ctx context.Context) error {
	ticker := time.NewTicker(c.pump)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := c.Poll(); err != nil {
				return err
			}
		}
	}
}

// Close disconnects from the broker.
func (c *Channel) Close() error {
	c.tracker.SetMQTTConnected(false)
	return c.client.Close()
}
