//go:build !linux

package clock

import "errors"

// LinuxRTC is not available on non-Linux platforms.
type LinuxRTC struct{}

// NewLinuxRTC returns an RTC whose operations always fail.
func NewLinuxRTC(path string) *LinuxRTC {
	return &LinuxRTC{}
}

// SetDateTime is not implemented on non-Linux platforms.
func (r *LinuxRTC) SetDateTime(c CalendarTime) error {
	return errors.New("rtc: not supported on this platform (requires Linux)")
}

// DateTime is not implemented on non-Linux platforms.
func (r *LinuxRTC) DateTime() (CalendarTime, error) {
	return CalendarTime{}, errors.New("rtc: not supported on this platform (requires Linux)")
}
