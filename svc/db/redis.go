package db

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"lingopaste/cfg"
)

// Redis caches translation text in one hash per paste and backs the
// rate-limit and daily-quota counters.
type Redis struct {
	client  *redis.Client
	timeout time.Duration
	ttl     time.Duration
}

var rateLimitScript = redis.NewScript(`
	local current = redis.call("GET", KEYS[1])
	if current == false then
		current = 0
	else
		current = tonumber(current)
	end
	if current >= tonumber(ARGV[2]) then
		return current + 1
	end
	local new_val = redis.call("INCR", KEYS[1])
	if new_val == 1 then
		redis.call("PEXPIRE", KEYS[1], ARGV[1])
	end
	return new_val
`)

func NewRedis(url string, c *cfg.Cfg) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	opt.PoolSize = 50
	opt.MinIdleConns = 10
	opt.PoolTimeout = 4 * time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute
	opt.MaxRetries = 3
	opt.MinRetryBackoff = 8 * time.Millisecond
	opt.MaxRetryBackoff = 512 * time.Millisecond
	if c.RedisPassword.Value() != "" {
		opt.Password = c.RedisPassword.Value()
	}
	client := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, errors.Wrap(err, "ping redis")
	}
	return NewRedisFromClient(client, c.RedisTimeout, c.TranslationTTL), nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client *redis.Client, timeout, ttl time.Duration) *Redis {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Redis{client: client, timeout: timeout, ttl: ttl}
}
func translationsKey(id string) string {
	return "translations:" + id
}
func (r *Redis) CacheTranslation(ctx context.Context, id, lang, text string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	key := translationsKey(id)
	if err := r.client.HSet(ctx, key, lang, text).Err(); err != nil {
		return errors.Wrap(err, "hset translation")
	}
	if r.ttl > 0 {
		if err := r.client.Expire(ctx, key, r.ttl).Err(); err != nil {
			return errors.Wrap(err, "expire translations")
		}
	}
	return nil
}

// GetTranslation reports ok=false on a miss.
func (r *Redis) GetTranslation(ctx context.Context, id, lang string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	text, err := r.client.HGet(ctx, translationsKey(id), lang).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "hget translation")
	}
	return text, true, nil
}
func (r *Redis) Translations(ctx context.Context, id string) (map[string]string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	m, err := r.client.HGetAll(ctx, translationsKey(id)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "hgetall translations")
	}
	return m, nil
}

// RateLimit increments key within window and returns the usage. A usage
// above limit means the call was rejected and the counter left alone.
func (r *Redis) RateLimit(ctx context.Context, key string, limit int, window time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	usage, err := rateLimitScript.Run(ctx, r.client, []string{key}, int(window.Milliseconds()), limit).Int()
	if err != nil {
		return 0, errors.Wrap(err, "rate limit lua")
	}
	return usage, nil
}

// DailyQuota counts paste creations for ipHash on the current UTC day.
func (r *Redis) DailyQuota(ctx context.Context, ipHash string, limit int, now time.Time) (bool, error) {
	day := now.UTC().Format("2006-01-02")
	usage, err := r.RateLimit(ctx, "daily:"+ipHash+":"+day, limit, 24*time.Hour)
	if err != nil {
		return false, err
	}
	return usage <= limit, nil
}
func (r *Redis) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}
