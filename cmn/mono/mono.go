// Package mono gives the communicator a monotonic clock independent of
// wall-clock adjustments, for round timers and idle detection.
package mono

import "time"

var start = time.Now()

// NanoTime returns nanoseconds elapsed since process start.
func NanoTime() int64 { return time.Since(start).Nanoseconds() }

// Since returns the duration elapsed since a NanoTime() reading.
func Since(ts int64) time.Duration { return time.Duration(NanoTime() - ts) }
