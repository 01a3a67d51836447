package session

import "time"

const (
	defaultMaxAttempts = 5
	defaultBaseDelay   = time.Second
	defaultMaxDelay    = 10 * time.Second
)

// Config controls the reconnect policy.
type Config struct {
	// MaxAttempts is the number of consecutive unexpected closes after which the session fails.
	MaxAttempts int
	// BaseDelay is multiplied by the attempt number to get the retry delay.
	BaseDelay time.Duration
	// MaxDelay caps the retry delay.
	MaxDelay time.Duration
	// ResumeRecording re-sends start_recording after a reconnect while the recording flag is set.
	ResumeRecording bool
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = defaultBaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = defaultMaxDelay
	}
	if c.MaxDelay < c.BaseDelay {
		c.MaxDelay = c.BaseDelay
	}
	return c
}

// retryDelay is linear in the attempt number and capped at MaxDelay.
func (c Config) retryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if time.Duration(attempt) > c.MaxDelay/c.BaseDelay {
		return c.MaxDelay
	}
	return c.BaseDelay * time.Duration(attempt)
}
