package reliability

import "time"

// IsRetryableHTTPStatus reports whether an HTTP status code is worth
// retrying for an idempotent request.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// Backoff hands out capped exponential delays for retry and reconnect
// loops. The zero value is unusable; set Base and Cap.
type Backoff struct {
	Base time.Duration
	Cap  time.Duration

	attempt int
}

// Next returns the delay for the current attempt and advances.
func (b *Backoff) Next() time.Duration {
	d := b.Base
	for i := 0; i < b.attempt; i++ {
		d *= 2
		if d >= b.Cap {
			d = b.Cap
			break
		}
	}
	b.attempt++
	return d
}

// Reset starts the schedule over, typically after a healthy exchange.
func (b *Backoff) Reset() {
	b.attempt = 0
}
