package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const rateLimitScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
if current > tonumber(ARGV[2]) then
  return 0
end
return 1
`

// Redis is a fixed-window limiter shared by every backend instance.
// It fails open: when Redis is unreachable requests are allowed.
type Redis struct {
	client redis.Scripter
	limit  int
	window time.Duration
	prefix string
	script *redis.Script
	log    *logrus.Logger
}

// NewRedis returns nil when client is nil; a nil *Redis allows everything.
func NewRedis(client redis.Scripter, limit int, window time.Duration, prefix string, log *logrus.Logger) *Redis {
	if client == nil {
		return nil
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Redis{
		client: client,
		limit:  limit,
		window: window,
		prefix: prefix,
		script: redis.NewScript(rateLimitScript),
		log:    log,
	}
}

func (l *Redis) Allow(ctx context.Context, key string) bool {
	if l == nil || l.client == nil {
		return true
	}
	if l.limit <= 0 || l.window <= 0 || key == "" {
		return true
	}
	redisKey := key
	if l.prefix != "" {
		redisKey = l.prefix + ":" + key
	}
	ttl := l.window.Milliseconds()
	if ttl <= 0 {
		ttl = 1
	}
	ctx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
	defer cancel()
	allowed, err := l.script.Run(ctx, l.client, []string{redisKey}, ttl, l.limit).Int64()
	if err != nil {
		l.log.WithError(err).Warn("rate limit check failed, allowing request")
		return true
	}
	return allowed == 1
}
