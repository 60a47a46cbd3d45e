package connection

import "time"

// reconnectDelay returns the wait before reconnect attempt n (1-based).
// Fixed strategy always waits the base interval. Exponential doubles from
// the base interval up to max.
func reconnectDelay(strategy BackoffStrategy, base, max time.Duration, n int) time.Duration {
	if base <= 0 {
		base = DefaultManagerConfig().ReconnectInterval
	}
	if strategy != BackoffExponential || n <= 1 {
		return base
	}
	if max < base {
		max = base
	}

	// 2^30 * base is far past any sane cap
	shift := n - 1
	if shift > 30 {
		return max
	}

	delay := base * time.Duration(1<<shift)
	if delay > max || delay <= 0 {
		return max
	}
	return delay
}
