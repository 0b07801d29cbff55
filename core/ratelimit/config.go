package ratelimit

import "time"

// Config holds the per-channel rate limiting parameters.
// Designed for environment-based configuration using popular env parsing libraries.
type Config struct {
	// Ceiling is the maximum number of acquisitions per window.
	Ceiling int `env:"RATELIMIT_CEILING" envDefault:"100"`

	// Window is the fixed accounting window length.
	Window time.Duration `env:"RATELIMIT_WINDOW" envDefault:"1s"`

	// BackoffBase is the base unit of the exponential penalty.
	BackoffBase time.Duration `env:"RATELIMIT_BACKOFF_BASE" envDefault:"1s"`

	// BackoffCap bounds the penalty regardless of overflow size.
	BackoffCap time.Duration `env:"RATELIMIT_BACKOFF_CAP" envDefault:"30s"`
}

// DefaultConfig returns sensible defaults for production use.
func DefaultConfig() Config {
	return Config{
		Ceiling:     100,
		Window:      time.Second,
		BackoffBase: time.Second,
		BackoffCap:  30 * time.Second,
	}
}

// Validate checks that all parameters are usable.
func (c Config) Validate() error {
	if c.Ceiling <= 0 || c.Window <= 0 || c.BackoffBase <= 0 || c.BackoffCap < c.BackoffBase {
		return ErrInvalidConfig
	}
	return nil
}

// backoffFor computes the penalty for a window count that exceeded the
// ceiling: base doubled once per unit of overflow, bounded by the cap.
func (c Config) backoffFor(count int) time.Duration {
	backoff := c.BackoffBase
	for i := 0; i < count-c.Ceiling && backoff < c.BackoffCap; i++ {
		backoff *= 2
	}
	return min(backoff, c.BackoffCap)
}
