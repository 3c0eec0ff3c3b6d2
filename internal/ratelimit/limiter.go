package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/marinapark/booking-backend/internal/clock"
	"github.com/marinapark/booking-backend/internal/domain"
	"github.com/marinapark/booking-backend/internal/logger"
	"github.com/marinapark/booking-backend/internal/redisx"
)

// Attempt is one rate limit dimension to check for a single request.
// Key identifies the counter, Max is the attempt budget per Window.
type Attempt struct {
	Dimension string
	Key       string
	Max       int
	Window    time.Duration
}

// Limiter gates booking attempts across several dimensions at once.
// Allow either admits the request and counts it against every
// dimension, or rejects it without consuming any budget.
type Limiter interface {
	Allow(ctx context.Context, attempts []Attempt) error
}

// checkAndCountScript checks every counter first and only increments
// when all of them have budget left. Each counter is a hash holding
// the fixed window start and the count; a counter whose window has
// elapsed is treated as empty and restarted on increment.
//
// KEYS[i]          counter key for dimension i
// ARGV[1]          current unix time in seconds
// ARGV[2i], ARGV[2i+1]  max attempts and window seconds for dimension i
//
// Returns 0 when admitted, or the 1-based index of the first exhausted
// dimension.
const checkAndCountScript = `
local now = tonumber(ARGV[1])
for i = 1, #KEYS do
  local max = tonumber(ARGV[2 * i])
  local window = tonumber(ARGV[2 * i + 1])
  local data = redis.call("HMGET", KEYS[i], "window_start", "count")
  local start = tonumber(data[1])
  local count = tonumber(data[2]) or 0
  if start == nil or now - start >= window then
    count = 0
  end
  if count >= max then
    return i
  end
end
for i = 1, #KEYS do
  local window = tonumber(ARGV[2 * i + 1])
  local data = redis.call("HMGET", KEYS[i], "window_start", "count")
  local start = tonumber(data[1])
  if start == nil or now - start >= window then
    redis.call("HSET", KEYS[i], "window_start", now, "count", 1)
  else
    redis.call("HINCRBY", KEYS[i], "count", 1)
  end
  redis.call("EXPIRE", KEYS[i], window)
end
return 0
`

const scriptName = "rate_limit_check_and_count"

type redisLimiter struct {
	client *redisx.Client
	prefix string
	clk    clock.Clock
	log    *zap.Logger
}

// NewRedisLimiter returns a Limiter backed by a single Redis Lua script,
// so the check and the increments are atomic across all dimensions.
func NewRedisLimiter(client *redisx.Client, prefix string, clk clock.Clock) Limiter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	if clk == nil {
		clk = clock.New()
	}
	return &redisLimiter{
		client: client,
		prefix: prefix,
		clk:    clk,
		log:    logger.Get(),
	}
}

func (l *redisLimiter) Allow(ctx context.Context, attempts []Attempt) error {
	if len(attempts) == 0 {
		return nil
	}

	keys := make([]string, 0, len(attempts))
	args := make([]interface{}, 0, 1+2*len(attempts))
	args = append(args, l.clk.Now().Unix())
	for _, a := range attempts {
		keys = append(keys, fmt.Sprintf("%s:%s:%s", l.prefix, a.Dimension, a.Key))
		args = append(args, a.Max, int(a.Window.Seconds()))
	}

	result, err := l.client.EvalWithFallback(ctx, scriptName, checkAndCountScript, keys, args...).Int()
	if err != nil {
		// Redis being down should not take bookings down with it.
		l.log.Warn("rate limit check failed, allowing request",
			zap.Error(err))
		return nil
	}

	if result > 0 && result <= len(attempts) {
		dim := attempts[result-1].Dimension
		return fmt.Errorf("%w: %s limit reached", domain.ErrRateLimited, dim)
	}

	return nil
}

// HashKey derives a stable counter key from sensitive material such as
// an email address or IP, so raw values never appear in Redis.
func HashKey(value string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(value))))
	return hex.EncodeToString(sum[:])[:16]
}
