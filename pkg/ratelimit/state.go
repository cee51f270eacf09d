// Package ratelimit tracks the rate limit budget a server advertises through
// X-RateLimit-Remaining and X-RateLimit-Reset headers and gates requests when
// the budget runs low. State is kept per host in Redis so every client
// instance sharing that Redis sees the same budget.
package ratelimit

import (
	"strings"
	"time"
)

// Header names parsed from responses.
const (
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"
)

// Redis key suffixes; the full key is paged:rate_limit:<host>:<suffix>.
const (
	redisKeyRemaining  = "remaining"
	redisKeyResetAt    = "reset_timestamp"
	redisKeyLastUpdate = "last_update"
)

// Thresholds for rate limit decisions.
const (
	// ThresholdCritical blocks all requests when the remaining budget falls below this value.
	ThresholdCritical = 5

	// ThresholdWarning applies throttling when the remaining budget falls below this value.
	ThresholdWarning = 20

	// ThresholdHealthy indicates normal operation.
	ThresholdHealthy = 50
)

// ThrottleDelay is how long a throttled request waits before being sent.
const ThrottleDelay = time.Second

// RedisKey returns the Redis key holding one field of a host's state.
func RedisKey(host, field string) string {
	return "paged:rate_limit:" + strings.ToLower(host) + ":" + field
}

// RateLimitState represents the rate limit state of one host.
type RateLimitState struct {
	// Host the budget applies to.
	Host string `json:"host"`

	// Remaining is the number of requests left in the current window.
	Remaining int `json:"remaining"`

	// ResetAt is when the window resets, derived from X-RateLimit-Reset
	// (seconds until reset).
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when this state was last updated.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true when Remaining >= ThresholdHealthy.
	IsHealthy bool `json:"is_healthy"`
}

// IsStale returns true if the state data is older than the given duration.
func (s *RateLimitState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// NeedsCriticalBlock returns true if requests should be blocked.
func (s *RateLimitState) NeedsCriticalBlock() bool {
	return s.Remaining < ThresholdCritical && s.TimeUntilReset() > 0
}

// NeedsThrottling returns true if requests should be slowed down.
func (s *RateLimitState) NeedsThrottling() bool {
	return s.Remaining < ThresholdWarning && !s.NeedsCriticalBlock() && s.TimeUntilReset() > 0
}

// TimeUntilReset returns the duration until the window resets.
// Returns 0 if the reset time has already passed.
func (s *RateLimitState) TimeUntilReset() time.Duration {
	duration := time.Until(s.ResetAt)
	if duration < 0 {
		return 0
	}
	return duration
}

// UpdateHealth updates the IsHealthy field based on current Remaining.
func (s *RateLimitState) UpdateHealth() {
	s.IsHealthy = s.Remaining >= ThresholdHealthy
}
