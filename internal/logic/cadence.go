package logic

import "time"

// Remainder returns how long a fixed-rate loop should sleep after a cycle
// whose work took elapsed: period - elapsed, floored at zero.
func Remainder(period, elapsed time.Duration) time.Duration {
	rem := period - elapsed
	if rem < 0 {
		return 0
	}
	return rem
}

// PingDue reports whether a keep-alive ping should be sent. Pings go out
// once more than 80% of the keep-alive interval has passed since the last.
func PingDue(sinceLast, keepalive time.Duration) bool {
	if keepalive <= 0 {
		return false
	}
	return sinceLast > keepalive*8/10
}
