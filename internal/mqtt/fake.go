package mqtt

import (
	"context"
	"sync"
)

// FakeClient records broker traffic for test assertions.
type FakeClient struct {
	mu sync.Mutex

	// Subscriptions contains every subscribed topic.
	Subscriptions []string

	// Published contains every published message, in order.
	Published []Message

	// Pings counts successful Ping calls.
	Pings int

	// Connected controls the return value of IsConnected and is set by Connect.
	Connected bool

	// Closed tracks if Close was called.
	Closed bool

	// Errors returned by the corresponding methods, if set.
	ConnectError   error
	SubscribeError error
	PublishError   error
	CheckError     error
	PingError      error

	inbox []Message
}

// NewFakeClient creates a FakeClient for testing.
func NewFakeClient() *FakeClient {
	return &FakeClient{}
}

// Connect marks the client connected.
func (f *FakeClient) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ConnectError != nil {
		return f.ConnectError
	}
	f.Connected = true
	return nil
}

// Subscribe records topic.
func (f *FakeClient) Subscribe(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SubscribeError != nil {
		return f.SubscribeError
	}
	f.Subscriptions = append(f.Subscriptions, topic)
	return nil
}

// Publish records the message.
func (f *FakeClient) Publish(topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Published = append(f.Published, Message{Topic: topic, Payload: append([]byte(nil), payload...)})
	return nil
}

// Deliver queues an inbound message for CheckMsg.
func (f *FakeClient) Deliver(topic string, payload []byte) {
	f.mu.Lock()
	f.inbox = append(f.inbox, Message{Topic: topic, Payload: payload})
	f.mu.Unlock()
}

// CheckMsg pops the oldest delivered message.
func (f *FakeClient) CheckMsg() (Message, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CheckError != nil {
		return Message{}, false, f.CheckError
	}
	if len(f.inbox) == 0 {
		return Message{}, false, nil
	}
	m := f.inbox[0]
	f.inbox = f.inbox[1:]
	return m, true, nil
}

// Ping counts the call.
func (f *FakeClient) Ping() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PingError != nil {
		return f.PingError
	}
	f.Pings++
	return nil
}

// IsConnected reports Connected.
func (f *FakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// Close marks the client closed and disconnected.
func (f *FakeClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	f.Connected = false
	return nil
}

// PublishedTo returns the messages published to topic.
func (f *FakeClient) PublishedTo(topic string) []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Message
	for _, m := range f.Published {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}

// SetPublishError sets PublishError under the lock.
func (f *FakeClient) SetPublishError(err error) {
	f.mu.Lock()
	f.PublishError = err
	f.mu.Unlock()
}
