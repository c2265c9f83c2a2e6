// Package wifi joins and supervises the network link.
// Real stations drive NetworkManager or read pi-helper state; the fake
// station allows testing without a radio.
package wifi

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// Status is the link state as seen by the supervisor.
type Status int

const (
	Disconnected Status = iota
	Connecting
	Connected
)

func (s Status) String() string {
	switch s {
	case Connecting:
		return "CONNECTING"
	case Connected:
		return "CONNECTED"
	default:
		return "DISCONNECTED"
	}
}

var (
	// ErrJoinFailed is returned when no credential set produced a link.
	ErrJoinFailed = errors.New("wifi: join failed")

	// ErrLinkLost is returned by Guard when an established link drops.
	ErrLinkLost = errors.New("wifi: link lost")
)

// Station is the network interface being joined.
type Station interface {
	// Connect starts associating with ssid. It need not wait for the link.
	Connect(ctx context.Context, ssid, password string) error

	// Disconnect drops any current or pending association.
	Disconnect(ctx context.Context) error

	// Status samples the link. A non-nil error means the attempt has
	// definitively failed and polling can stop.
	Status(ctx context.Context) (Status, error)

	// Addr returns the assigned address once connected.
	Addr(ctx context.Context) string
}

// Credentials is one SSID/password pair.
type Credentials struct {
	SSID     string
	Password string
}

// Options controls join polling.
type Options struct {
	// Timeout bounds each credential attempt.
	Timeout time.Duration
	// Poll is the status sampling interval during a join.
	Poll time.Duration
}

// DefaultOptions polls once a second for up to 30 seconds.
var DefaultOptions = Options{Timeout: 30 * time.Second, Poll: time.Second}

// Supervisor owns the link state.
type Supervisor struct {
	station Station
	opts    Options
	sleep   func(ctx context.Context, d time.Duration) error

	mu     sync.RWMutex
	status Status
	addr   string
}

// NewSupervisor creates a Supervisor for station.
func NewSupervisor(station Station, opts Options) *Supervisor {
	if opts.Poll <= 0 {
		opts.Poll = DefaultOptions.Poll
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions.Timeout
	}
	return &Supervisor{station: station, opts: opts, sleep: sleepCtx}
}

// Join tries primary, then fallback if one is configured. It returns
// Connected, or Disconnected with ErrJoinFailed.
func (s *Supervisor) Join(ctx context.Context, primary Credentials, fallback *Credentials) (Status, error) {
	if s.attempt(ctx, primary) {
		return Connected, nil
	}
	if fallback != nil && fallback.SSID != "" {
		log.Printf("wifi: %q did not connect, trying fallback %q", primary.SSID, fallback.SSID)
		if err := s.station.Disconnect(ctx); err != nil {
			log.Printf("wifi: disconnect: %v", err)
		}
		if s.attempt(ctx, *fallback) {
			return Connected, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return Disconnected, err
	}
	return Disconnected, ErrJoinFailed
}

// attempt connects with creds and polls until connected, failed, or the
// attempt budget runs out.
func (s *Supervisor) attempt(ctx context.Context, creds Credentials) bool {
	s.set(Connecting, "")
	log.Printf("wifi: connecting to %q", creds.SSID)

	if err := s.station.Connect(ctx, creds.SSID, creds.Password); err != nil {
		log.Printf("wifi: connect %q: %v", creds.SSID, err)
		s.set(Disconnected, "")
		return false
	}

	attempts := int(s.opts.Timeout / s.opts.Poll)
	if attempts < 1 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		st, err := s.station.Status(ctx)
		if err != nil {
			log.Printf("wifi: %q failed: %v", creds.SSID, err)
			break
		}
		if st == Connected {
			addr := s.station.Addr(ctx)
			s.set(Connected, addr)
			log.Printf("wifi: connected to %q, address %s", creds.SSID, addr)
			return true
		}
		if err := s.sleep(ctx, s.opts.Poll); err != nil {
			break
		}
	}

	s.set(Disconnected, "")
	return false
}

// Guard samples the link every interval. It returns ErrLinkLost the first
// time the link is seen down after having been connected, or ctx's error.
func (s *Supervisor) Guard(ctx context.Context, interval time.Duration) error {
	for {
		if err := s.sleep(ctx, interval); err != nil {
			return err
		}
		st, err := s.station.Status(ctx)
		if err == nil && st == Connected {
			if !s.Connected() {
				s.set(Connected, s.station.Addr(ctx))
			}
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if s.Connected() {
			s.set(Disconnected, "")
			if err != nil {
				return fmt.Errorf("%w: %v", ErrLinkLost, err)
			}
			return ErrLinkLost
		}
	}
}

// Status returns the current link state.
func (s *Supervisor) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Connected is the boolean projection of Status.
func (s *Supervisor) Connected() bool {
	return s.Status() == Connected
}

// Addr returns the address assigned at join time.
func (s *Supervisor) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

func (s *Supervisor) set(st Status, addr string) {
	s.mu.Lock()
	s.status = st
	s.addr = addr
	s.mu.Unlock()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
