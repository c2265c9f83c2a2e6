// Package logic contains the pure rules of the letterbox device.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time / time.Duration parameters.
package logic

// DeviceState is the mutable snapshot published on the state topic.
// The timestamp lives with the tracker; logic only handles the flags.
type DeviceState struct {
	Enabled bool
	On      bool
}

// Command is a decoded message from the set topic.
// A nil field means the key was absent and the flag is left untouched.
type Command struct {
	Enabled *bool
	On      *bool
}

// Empty reports whether the command carries no recognised field.
func (c Command) Empty() bool {
	return c.Enabled == nil && c.On == nil
}

// Apply returns s with the command's fields written in.
func (c Command) Apply(s DeviceState) DeviceState {
	if c.Enabled != nil {
		s.Enabled = *c.Enabled
	}
	if c.On != nil {
		s.On = *c.On
	}
	return s
}
