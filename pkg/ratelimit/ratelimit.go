package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// LimitType selects the request budget for a route class
type LimitType string

const (
	LimitTypeDefault LimitType = "default"
	LimitTypeHealth  LimitType = "health"
	LimitTypeAuth    LimitType = "auth"
	LimitTypeBooking LimitType = "booking"
	// LimitTypeOrder covers the critical mutations: step advances and
	// order placement, which hit the carrier backend
	LimitTypeOrder LimitType = "order"
)

// Config holds the per-class request budgets within one sliding window
type Config struct {
	Enabled         bool
	WindowDuration  time.Duration
	DefaultRequests int
	HealthRequests  int
	AuthRequests    int
	BookingRequests int
	OrderRequests   int
}

// Result is the outcome of one rate limit check
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetTime int64
}

// Limiter throttles clients with a redis-backed sliding window
type Limiter struct {
	client *redis.Client
	config *Config
	now    func() time.Time
}

func NewLimiter(client *redis.Client, config *Config) *Limiter {
	return &Limiter{
		client: client,
		config: config,
		now:    time.Now,
	}
}

// atomic sliding window: drop entries older than the window, count what
// remains, and record the request only when under the limit
const slidingWindowScript = `
	local key = KEYS[1]
	local window_start = tonumber(ARGV[1])
	local now = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local window_seconds = tonumber(ARGV[4])

	redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
	local current_count = redis.call('ZCARD', key)

	if current_count >= limit then
		redis.call('EXPIRE', key, window_seconds)
		return {current_count, limit - current_count}
	end

	redis.call('ZADD', key, now, now)
	redis.call('EXPIRE', key, window_seconds)
	return {current_count + 1, limit - current_count - 1}
`

// IsAllowed checks one request from clientIP against the budget of the
// given route class.
func (l *Limiter) IsAllowed(ctx context.Context, clientIP string, limitType LimitType) (*Result, error) {
	limit := l.limitFor(limitType)
	if !l.config.Enabled {
		return &Result{
			Allowed:   true,
			Limit:     limit,
			Remaining: limit,
			ResetTime: l.now().Add(l.config.WindowDuration).Unix(),
		}, nil
	}

	key := fmt.Sprintf("busline:ratelimit:%s:%s", clientIP, limitType)
	now := l.now()
	windowStart := now.Add(-l.config.WindowDuration)

	raw, err := l.client.Eval(ctx, slidingWindowScript, []string{key},
		windowStart.Unix(),
		now.Unix(),
		int64(limit),
		int64(l.config.WindowDuration.Seconds())).Result()
	if err != nil {
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}

	values, ok := raw.([]interface{})
	if !ok || len(values) != 2 {
		return nil, fmt.Errorf("unexpected redis response: %v", raw)
	}
	count := toInt(values[0])
	remaining := toInt(values[1])
	if remaining < 0 {
		remaining = 0
	}

	return &Result{
		Allowed:   count <= limit,
		Limit:     limit,
		Remaining: remaining,
		ResetTime: now.Add(l.config.WindowDuration).Unix(),
	}, nil
}

func (l *Limiter) limitFor(limitType LimitType) int {
	switch limitType {
	case LimitTypeHealth:
		return l.config.HealthRequests
	case LimitTypeAuth:
		return l.config.AuthRequests
	case LimitTypeBooking:
		return l.config.BookingRequests
	case LimitTypeOrder:
		return l.config.OrderRequests
	default:
		return l.config.DefaultRequests
	}
}

func toInt(v interface{}) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	}
	return 0
}
