// Package ntp synchronizes the persistent clock from an NTP server using a
// bare client-mode request.
package ntp

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"time"

	"github.com/sweeney/letterbox/internal/clock"
)

// Wire constants for the client request and reply.
const (
	PacketSize      = 48
	requestHeader   = 0x1B // LI=0, VN=3, Mode=3 (client)
	transmitOffset  = 40
	DefaultPort     = 123
	DefaultTimeout  = time.Second
	Delta1970 int64 = 2208988800 // 1900-01-01 to 1970-01-01
	Delta2000 int64 = 3155673600 // 1900-01-01 to 2000-01-01
)

// ErrShortReply is returned when the reply cannot hold a transmit timestamp.
var ErrShortReply = errors.New("ntp: short reply")

// EpochDelta returns the seconds between the NTP epoch and a platform epoch
// whose zero time falls in zeroYear.
func EpochDelta(zeroYear int) int64 {
	if zeroYear == 2000 {
		return Delta2000
	}
	return Delta1970
}

// PlatformZeroYear reports the calendar year of this runtime's zero Unix time.
func PlatformZeroYear() int {
	return time.Unix(0, 0).UTC().Year()
}

// NewRequest builds a 48-byte client request.
func NewRequest() []byte {
	req := make([]byte, PacketSize)
	req[0] = requestHeader
	return req
}

// Decode extracts the transmit timestamp from reply and converts it to
// epoch seconds using delta. The result is clamped to be non-negative.
func Decode(reply []byte, delta int64) (int64, error) {
	if len(reply) < transmitOffset+4 {
		return 0, fmt.Errorf("%w: %d bytes", ErrShortReply, len(reply))
	}
	secs := int64(binary.BigEndian.Uint32(reply[transmitOffset : transmitOffset+4]))
	if v := secs - delta; v > 0 {
		return v, nil
	}
	return 0, nil
}

// Client queries a single NTP host.
type Client struct {
	Host    string
	Port    int
	Timeout time.Duration
	Delta   int64
}

// NewClient creates a client for host with the platform's epoch delta.
func NewClient(host string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		Host:    host,
		Port:    DefaultPort,
		Timeout: timeout,
		Delta:   EpochDelta(PlatformZeroYear()),
	}
}

// Query sends one request and waits at most Timeout for the reply.
// Resolution, I/O and timeout failures are all returned as errors.
func (c *Client) Query(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", net.JoinHostPort(c.Host, strconv.Itoa(c.Port)))
	if err != nil {
		return 0, fmt.Errorf("dial %s: %w", c.Host, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	if _, err := conn.Write(NewRequest()); err != nil {
		return 0, fmt.Errorf("send request: %w", err)
	}

	buf := make([]byte, PacketSize)
	n, err := conn.Read(buf)
	if err != nil {
		return 0, fmt.Errorf("read reply: %w", err)
	}
	return Decode(buf[:n], c.Delta)
}

// Querier returns the current epoch seconds from a time source.
type Querier interface {
	Query(ctx context.Context) (int64, error)
}

// Synchronizer writes NTP time into the persistent clock.
type Synchronizer struct {
	source Querier
	rtc    clock.RTC
	offset time.Duration
}

// NewSynchronizer creates a Synchronizer. offset is added to UTC before the
// value is stored; zero stores UTC.
func NewSynchronizer(source Querier, rtc clock.RTC, offset time.Duration) *Synchronizer {
	return &Synchronizer{source: source, rtc: rtc, offset: offset}
}

// Sync queries the source and stores the result. It reports false, keeping
// the previous clock value, if the query fails or yields zero.
func (s *Synchronizer) Sync(ctx context.Context) bool {
	secs, err := s.source.Query(ctx)
	if err != nil {
		log.Printf("ntp: %v", err)
		return false
	}
	if secs == 0 {
		log.Printf("ntp: server returned zero time")
		return false
	}

	ct := clock.FromUnix(secs, s.offset)
	if err := s.rtc.SetDateTime(ct); err != nil {
		log.Printf("ntp: store time: %v", err)
		return false
	}
	log.Printf("ntp: clock set to %s", ct)
	return true
}
