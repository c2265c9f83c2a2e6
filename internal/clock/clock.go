// Package clock holds the calendar-time representation used by the
// device's persistent clock and the RTC implementations that store it.
package clock

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// CalendarTime is a broken-down time in persistent-clock field order.
// Weekday counts from Monday=0.
type CalendarTime struct {
	Year      int
	Month     int
	Day       int
	Weekday   int
	Hour      int
	Minute    int
	Second    int
	Subsecond int
}

// FromUnix breaks sec (Unix seconds, UTC) down after shifting it by offset.
// A zero offset keeps the value in UTC.
func FromUnix(sec int64, offset time.Duration) CalendarTime {
	return FromTime(time.Unix(sec, 0).UTC().Add(offset))
}

// FromTime breaks t down using its wall-clock fields as given.
func FromTime(t time.Time) CalendarTime {
	return CalendarTime{
		Year:    t.Year(),
		Month:   int(t.Month()),
		Day:     t.Day(),
		Weekday: MondayWeekday(t.Weekday()),
		Hour:    t.Hour(),
		Minute:  t.Minute(),
		Second:  t.Second(),
	}
}

// MondayWeekday converts Go's Sunday=0 weekday to the Monday=0 convention.
func MondayWeekday(wd time.Weekday) int {
	return (int(wd) + 6) % 7
}

// Time reassembles c as a UTC time.Time. The weekday field is ignored.
func (c CalendarTime) Time() time.Time {
	return time.Date(c.Year, time.Month(c.Month), c.Day, c.Hour, c.Minute, c.Second, 0, time.UTC)
}

// IsZero reports whether c was never set.
func (c CalendarTime) IsZero() bool {
	return c == CalendarTime{}
}

func (c CalendarTime) String() string {
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d (wd %d)", c.Year, c.Month, c.Day, c.Hour, c.Minute, c.Second, c.Weekday)
}

// MarshalJSON encodes c as the 8-element tuple
// [year, month, day, weekday, hour, minute, second, subsecond].
func (c CalendarTime) MarshalJSON() ([]byte, error) {
	return json.Marshal([8]int{c.Year, c.Month, c.Day, c.Weekday, c.Hour, c.Minute, c.Second, c.Subsecond})
}

// UnmarshalJSON decodes the tuple form written by MarshalJSON.
func (c *CalendarTime) UnmarshalJSON(data []byte) error {
	var f [8]int
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("calendar time: %w", err)
	}
	*c = CalendarTime{f[0], f[1], f[2], f[3], f[4], f[5], f[6], f[7]}
	return nil
}

// RTC is the device's persistent clock.
type RTC interface {
	// SetDateTime stores c as the current time.
	SetDateTime(c CalendarTime) error

	// DateTime returns the current time as held by the clock.
	DateTime() (CalendarTime, error)
}

// SoftRTC keeps time as an offset over the system clock. Until it is set
// it reports the system clock in UTC.
type SoftRTC struct {
	mu     sync.Mutex
	now    func() time.Time
	offset time.Duration
}

// NewSoftRTC creates a SoftRTC. A nil now uses time.Now.
func NewSoftRTC(now func() time.Time) *SoftRTC {
	if now == nil {
		now = time.Now
	}
	return &SoftRTC{now: now}
}

// SetDateTime records the offset between c and the system clock.
func (r *SoftRTC) SetDateTime(c CalendarTime) error {
	r.mu.Lock()
	r.offset = c.Time().Sub(r.now().UTC())
	r.mu.Unlock()
	return nil
}

// DateTime returns the system clock shifted by the stored offset.
func (r *SoftRTC) DateTime() (CalendarTime, error) {
	r.mu.Lock()
	off := r.offset
	r.mu.Unlock()
	return FromTime(r.now().UTC().Add(off)), nil
}
