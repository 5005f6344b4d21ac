package clock

import "time"

// Backoff returns the exponential delay before the next retry, doubling from
// base for each completed attempt. Attempt 1 yields base, attempt 2 yields
// twice base, and so on. The result never exceeds max.
func Backoff(base time.Duration, attempt int, max time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}

	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max || d <= 0 {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
