package client

import (
	"time"

	"streamhub/pkg/config"
	"streamhub/pkg/retry"
)

// ReconnectState counts reconnect attempts since the last authenticated
// connection and computes the delay before the next one.
type ReconnectState struct {
	attempts int
	max      int
	backoff  retry.Config
}

func NewReconnectState(initial, maxDelay time.Duration, factor float64, maxAttempts int) ReconnectState {
	return ReconnectState{
		max: maxAttempts,
		backoff: retry.Config{
			InitialDelay: initial,
			MaxDelay:     maxDelay,
			Multiplier:   factor,
		},
	}
}

// Next advances the attempt counter and returns the delay to wait before
// that attempt. ok is false once the maximum has been used up; the
// counter is not advanced past it.
func (r *ReconnectState) Next() (delay time.Duration, ok bool) {
	if r.attempts >= r.max {
		return 0, false
	}
	r.attempts++
	return retry.Backoff(r.backoff, r.attempts), true
}

// Reset is called only after a fully authenticated connection.
func (r *ReconnectState) Reset() { r.attempts = 0 }

func (r *ReconnectState) Attempts() int { return r.attempts }

func (r *ReconnectState) Exhausted() bool { return r.attempts >= r.max }

// Config drives one Client.
type Config struct {
	URL               string
	Token             string
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	ConnectTimeout    time.Duration
	ReconnectDelay    time.Duration
	ReconnectMaxDelay time.Duration
	ReconnectFactor   float64
	MaxReconnects     int
}

// ConfigFrom takes the client section of the application config.
func ConfigFrom(cfg *config.Config, token string) Config {
	c := cfg.Client
	return Config{
		URL:               c.URL,
		Token:             token,
		HeartbeatInterval: c.HeartbeatInterval,
		HeartbeatTimeout:  c.HeartbeatTimeout,
		ConnectTimeout:    c.ConnectTimeout,
		ReconnectDelay:    c.ReconnectDelay,
		ReconnectMaxDelay: c.ReconnectMaxDelay,
		ReconnectFactor:   c.ReconnectFactor,
		MaxReconnects:     c.MaxReconnects,
	}
}
