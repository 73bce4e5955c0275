package lim

import (
	"context"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
	"lingopaste/svc/db"
	"lingopaste/svc/util"
)

const (
	maxLimiters     = 10000
	cleanupInterval = 5 * time.Minute
	limiterTTL      = 30 * time.Minute
	adaptiveWindow  = 60 * time.Second
)

// Limiter enforces per-client request rates. With Redis configured the
// counters are shared across instances; otherwise, or when Redis fails, a
// local token bucket per client and endpoint is used.
type Limiter struct {
	rdb               *db.Redis
	trustedProxies    []string
	detector          *AnomalyDetector
	adaptiveModeUntil int64
	translateUntil    int64
	localLimiters     map[string]*limiterEntry
	mu                sync.Mutex
	rpm               int
	burst             int
	conservativeLimit int
	quit              chan struct{}
	stopOnce          sync.Once
	evictionSem       chan struct{}
}
type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}
type RateLimitResult struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

func New(rpm, burst, conservativeLimit int, rdb *db.Redis, trustedProxies []string) *Limiter {
	l := &Limiter{
		rdb:               rdb,
		trustedProxies:    trustedProxies,
		localLimiters:     make(map[string]*limiterEntry),
		rpm:               rpm,
		burst:             burst,
		conservativeLimit: conservativeLimit,
		quit:              make(chan struct{}),
		evictionSem:       make(chan struct{}, 1),
	}
	l.detector = NewAnomalyDetector(l.TriggerAdaptiveMode)
	l.detector.Start()
	go l.cleanupLoop()
	return l
}
func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.evictExpiredLimiters()
		case <-l.quit:
			return
		}
	}
}
func (l *Limiter) evictExpiredLimiters() {
	now := time.Now()
	l.mu.Lock()
	evicted := 0
	for key, entry := range l.localLimiters {
		if now.Sub(entry.lastAccess) > limiterTTL {
			delete(l.localLimiters, key)
			evicted++
		}
	}
	remaining := len(l.localLimiters)
	l.mu.Unlock()
	if evicted > 0 {
		util.Debug().Int("evicted", evicted).Int("remaining", remaining).Msg("rate limiter cleanup")
	}
}
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() {
		close(l.quit)
		l.detector.Stop()
	})
}
// TriggerAdaptiveMode halves limits for adaptiveWindow. A translate signal
// only throttles the translate endpoint, sparing creates and reads while
// the provider is failing.
func (l *Limiter) TriggerAdaptiveMode(sig Signal) {
	until := time.Now().Add(adaptiveWindow).Unix()
	if sig == SignalTranslate {
		atomic.StoreInt64(&l.translateUntil, until)
		return
	}
	atomic.StoreInt64(&l.adaptiveModeUntil, until)
}
func (l *Limiter) isAdaptiveMode(endpoint string) bool {
	now := time.Now().Unix()
	if now < atomic.LoadInt64(&l.adaptiveModeUntil) {
		return true
	}
	return endpoint == "translate" && now < atomic.LoadInt64(&l.translateUntil)
}

// RecordRequest feeds one API response into the detector.
func (l *Limiter) RecordRequest(failed bool) {
	l.detector.Record(SignalHTTP, failed)
}

// RecordTranslation feeds one translate outcome into the detector.
func (l *Limiter) RecordTranslation(failed bool) {
	l.detector.Record(SignalTranslate, failed)
}
func halve(n int) int {
	n /= 2
	if n < 1 {
		return 1
	}
	return n
}

// CheckLimit counts one request from the client behind r against endpoint.
func (l *Limiter) CheckLimit(r *http.Request, endpoint string) *RateLimitResult {
	ip := GetRealIP(r, l.trustedProxies)
	now := time.Now()
	limit := l.rpm
	if l.isAdaptiveMode(endpoint) {
		limit = halve(limit)
	}
	if l.rdb != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 100*time.Millisecond)
		defer cancel()
		usage, err := l.rdb.RateLimit(ctx, "rl:"+endpoint+":"+util.HashIP(ip, nil), limit, time.Minute)
		if err == nil {
			remaining := limit - usage
			if remaining < 0 {
				remaining = 0
			}
			return &RateLimitResult{
				Allowed:   usage <= limit,
				Limit:     limit,
				Remaining: remaining,
				Reset:     now.Add(time.Minute),
			}
		}
		util.Warn().Err(err).Msg("redis rate limit unavailable, using local fallback")
		limit = l.conservativeLimit
		if l.isAdaptiveMode(endpoint) {
			limit = halve(limit)
		}
	}
	return l.local(ip, endpoint, limit)
}
func (l *Limiter) local(ip, endpoint string, limit int) *RateLimitResult {
	reset := time.Now().Add(time.Minute)
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.localLimiters) >= (maxLimiters*9)/10 {
		if toEvict := len(l.localLimiters) / 10; toEvict > 0 {
			select {
			case l.evictionSem <- struct{}{}:
				go func() {
					defer func() { <-l.evictionSem }()
					l.asyncEvictOldest(toEvict)
				}()
			default:
			}
		}
	}
	key := ip + ":" + endpoint
	entry, exists := l.localLimiters[key]
	if !exists {
		if len(l.localLimiters) >= maxLimiters {
			util.Warn().
				Int("limiters", len(l.localLimiters)).
				Str("ip", util.RedactIP(ip)).
				Msg("rate limiter at capacity, rejecting request")
			return &RateLimitResult{Allowed: false, Limit: limit, Reset: reset}
		}
		burst := l.burst
		if burst <= 0 || burst > limit {
			burst = limit
		}
		entry = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(float64(limit)/60.0), burst)}
		l.localLimiters[key] = entry
	}
	entry.lastAccess = time.Now()
	if !entry.limiter.Allow() {
		return &RateLimitResult{Allowed: false, Limit: limit, Reset: reset}
	}
	remaining := int(entry.limiter.Tokens())
	if remaining < 0 {
		remaining = 0
	}
	return &RateLimitResult{Allowed: true, Limit: limit, Remaining: remaining, Reset: reset}
}
func (l *Limiter) asyncEvictOldest(count int) {
	type kv struct {
		key        string
		lastAccess time.Time
	}
	l.mu.Lock()
	entries := make([]kv, 0, len(l.localLimiters))
	for k, v := range l.localLimiters {
		entries = append(entries, kv{k, v.lastAccess})
	}
	l.mu.Unlock()
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].lastAccess.Before(entries[j].lastAccess)
	})
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := 0; i < count && i < len(entries); i++ {
		delete(l.localLimiters, entries[i].key)
	}
	util.Debug().Int("evicted", count).Msg("async limiter eviction completed")
}

// GetRealIP walks X-Forwarded-For from the right and returns the first
// address that is not a trusted proxy. Headers are ignored unless the
// direct peer is itself trusted.
func GetRealIP(r *http.Request, trustedProxies []string) string {
	remoteIP := stripPort(r.RemoteAddr)
	if len(trustedProxies) == 0 || !isTrustedProxy(remoteIP, trustedProxies) {
		return remoteIP
	}
	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		return remoteIP
	}
	const maxIPsToParse = 100
	parts := strings.Split(xff, ",")
	for i, n := len(parts)-1, 0; i >= 0 && n < maxIPsToParse; i, n = i-1, n+1 {
		ipStr := strings.TrimSpace(parts[i])
		if net.ParseIP(ipStr) == nil {
			continue
		}
		if !isTrustedProxy(ipStr, trustedProxies) {
			return ipStr
		}
	}
	return remoteIP
}
func isTrustedProxy(ip string, trustedProxies []string) bool {
	parsedIP := net.ParseIP(ip)
	for _, proxy := range trustedProxies {
		if ip == proxy {
			return true
		}
		if strings.Contains(proxy, "/") && parsedIP != nil {
			if _, subnet, err := net.ParseCIDR(proxy); err == nil && subnet.Contains(parsedIP) {
				return true
			}
		}
	}
	return false
}
func stripPort(ip string) string {
	if host, _, err := net.SplitHostPort(ip); err == nil {
		return host
	}
	return ip
}
