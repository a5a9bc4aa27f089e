// Package clock provides the NTP-corrected wall clock used for upstream
// timestamps. The correction delta is maintained by the /ntp/sync route;
// everything else in the process reads through Now.
package clock

import (
	"sync/atomic"
	"time"
)

// skewMillis is the signed correction applied to the local clock,
// in milliseconds. Positive means the local clock is behind.
var skewMillis atomic.Int64

// Now returns the corrected wall-clock time.
func Now() time.Time {
	return time.Now().Add(time.Duration(skewMillis.Load()) * time.Millisecond)
}

// NowSecs returns the corrected time as Unix seconds.
func NowSecs() uint64 {
	return uint64(Now().Unix())
}

// SetSkew replaces the correction delta.
func SetSkew(d time.Duration) {
	skewMillis.Store(d.Milliseconds())
}

// Skew returns the current correction delta.
func Skew() time.Duration {
	return time.Duration(skewMillis.Load()) * time.Millisecond
}

// LocalTimestamp formats the corrected time in RFC 3339 with millisecond
// precision, the format the upstream expects in environment_info.
func LocalTimestamp() string {
	return Now().Format("2006-01-02T15:04:05.000Z07:00")
}
