//go:build linux

package clock

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// LinuxRTC reads and writes a kernel RTC character device (e.g. /dev/rtc0).
type LinuxRTC struct {
	path string
}

// NewLinuxRTC returns an RTC backed by the device at path. The device is
// opened per call so a missing RTC fails only the operation that needs it.
func NewLinuxRTC(path string) *LinuxRTC {
	return &LinuxRTC{path: path}
}

// SetDateTime writes c to the hardware clock.
func (r *LinuxRTC) SetDateTime(c CalendarTime) error {
	f, err := os.OpenFile(r.path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("open rtc: %w", err)
	}
	defer f.Close()

	if err := unix.IoctlSetRTCTime(int(f.Fd()), toRTCTime(c)); err != nil {
		return fmt.Errorf("set rtc: %w", err)
	}
	return nil
}

// DateTime reads the hardware clock.
func (r *LinuxRTC) DateTime() (CalendarTime, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return CalendarTime{}, fmt.Errorf("open rtc: %w", err)
	}
	defer f.Close()

	t, err := unix.IoctlGetRTCTime(int(f.Fd()))
	if err != nil {
		return CalendarTime{}, fmt.Errorf("read rtc: %w", err)
	}
	return fromRTCTime(t), nil
}

// The kernel counts months from 0, years from 1900 and weekdays from Sunday.
func toRTCTime(c CalendarTime) *unix.RTCTime {
	return &unix.RTCTime{
		Sec:  int32(c.Second),
		Min:  int32(c.Minute),
		Hour: int32(c.Hour),
		Mday: int32(c.Day),
		Mon:  int32(c.Month - 1),
		Year: int32(c.Year - 1900),
		Wday: int32((c.Weekday + 1) % 7),
	}
}

func fromRTCTime(t *unix.RTCTime) CalendarTime {
	return CalendarTime{
		Year:    int(t.Year) + 1900,
		Month:   int(t.Mon) + 1,
		Day:     int(t.Mday),
		Weekday: (int(t.Wday) + 6) % 7,
		Hour:    int(t.Hour),
		Minute:  int(t.Min),
		Second:  int(t.Sec),
	}
}
