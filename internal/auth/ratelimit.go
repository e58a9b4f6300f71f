package auth

import (
	"math"
	"os"
	"strconv"
	"sync"
	"time"
)

// RateLimitConfig configures the exponential-backoff per-client-IP request
// throttle applied to authenticated routes.
type RateLimitConfig struct {
	RequestsPerMinute int
	CleanupInterval   time.Duration
	BackoffMultiplier float64
	MaxBackoffMinutes int
}

// DefaultRateLimitConfig returns sane defaults, overridable via
// AUTH_RL_PER_MIN for load testing or constrained environments.
func DefaultRateLimitConfig() *RateLimitConfig {
	requestsPerMin := 1000
	if env := os.Getenv("AUTH_RL_PER_MIN"); env != "" {
		if parsed, err := strconv.Atoi(env); err == nil && parsed > 0 {
			requestsPerMin = parsed
		}
	}

	return &RateLimitConfig{
		RequestsPerMinute: requestsPerMin,
		CleanupInterval:   5 * time.Minute,
		BackoffMultiplier: 2.0,
		MaxBackoffMinutes: 60,
	}
}

// RateLimiter tracks request rates per client IP and applies exponential
// backoff once the per-minute budget is exceeded.
type RateLimiter struct {
	config   *RateLimitConfig
	requests map[string]*ipRequestTracker
	mutex    sync.RWMutex
}

type ipRequestTracker struct {
	requests     []time.Time
	failures     int
	backoffUntil time.Time
}

// NewRateLimiter creates a RateLimiter and starts its background cleanup.
func NewRateLimiter(config *RateLimitConfig) *RateLimiter {
	limiter := &RateLimiter{
		config:   config,
		requests: make(map[string]*ipRequestTracker),
	}
	go limiter.cleanup()
	return limiter
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for range ticker.C {
		rl.mutex.Lock()
		cutoff := time.Now().Add(-2 * time.Minute)
		for ip, tracker := range rl.requests {
			var recent []time.Time
			for _, reqTime := range tracker.requests {
				if reqTime.After(cutoff) {
					recent = append(recent, reqTime)
				}
			}
			tracker.requests = recent
			if len(tracker.requests) == 0 && time.Now().After(tracker.backoffUntil) {
				delete(rl.requests, ip)
			}
		}
		rl.mutex.Unlock()
	}
}

// IsAllowed reports whether a request from ip may proceed, and if not, how
// long the caller should wait before retrying.
func (rl *RateLimiter) IsAllowed(ip string) (bool, time.Duration) {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := time.Now()
	tracker, exists := rl.requests[ip]
	if !exists {
		tracker = &ipRequestTracker{requests: make([]time.Time, 0)}
		rl.requests[ip] = tracker
	}

	if now.Before(tracker.backoffUntil) {
		return false, tracker.backoffUntil.Sub(now)
	}

	cutoff := now.Add(-1 * time.Minute)
	var recent []time.Time
	for _, reqTime := range tracker.requests {
		if reqTime.After(cutoff) {
			recent = append(recent, reqTime)
		}
	}
	tracker.requests = recent

	if len(tracker.requests) >= rl.config.RequestsPerMinute {
		tracker.failures++
		backoffMinutes := int(math.Min(
			math.Pow(rl.config.BackoffMultiplier, float64(tracker.failures)),
			float64(rl.config.MaxBackoffMinutes),
		))
		tracker.backoffUntil = now.Add(time.Duration(backoffMinutes) * time.Minute)
		return false, tracker.backoffUntil.Sub(now)
	}

	tracker.requests = append(tracker.requests, now)
	return true, 0
}

// RecordSuccess clears ip's failure count and any active backoff.
func (rl *RateLimiter) RecordSuccess(ip string) {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()
	if tracker, exists := rl.requests[ip]; exists {
		tracker.failures = 0
		tracker.backoffUntil = time.Time{}
	}
}
