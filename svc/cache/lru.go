package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"lingopaste/metrics"
	"lingopaste/pkg/domain"
)

// LRU holds recently read pastes. Translations are not stored here; they
// change independently and live in Redis / SQLite.
type LRU struct {
	c   *lru.Cache[string, item]
	ttl time.Duration
	mu  sync.Mutex
}
type item struct {
	paste *domain.Paste
	exp   time.Time
}

func NewLRU(size int, ttl time.Duration) (*LRU, error) {
	if size <= 0 {
		return nil, errors.New("cache size must be positive")
	}
	if size > 100000 {
		return nil, errors.New("cache size too large")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	c, err := lru.New[string, item](size)
	if err != nil {
		return nil, err
	}
	return &LRU{c: c, ttl: ttl}, nil
}
func (l *LRU) Get(ctx context.Context, id string) *domain.Paste {
	select {
	case <-ctx.Done():
		return nil
	default:
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	it, ok := l.c.Get(id)
	if !ok {
		metrics.CacheMisses.WithLabelValues("lru").Inc()
		return nil
	}
	if time.Now().After(it.exp) {
		l.c.Remove(id)
		metrics.CacheMisses.WithLabelValues("lru").Inc()
		return nil
	}
	metrics.CacheHits.WithLabelValues("lru").Inc()
	cp := *it.paste
	cp.Languages = append([]string(nil), it.paste.Languages...)
	return &cp
}
func (l *LRU) Set(p *domain.Paste) {
	cp := *p
	cp.Languages = append([]string(nil), p.Languages...)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.c.Add(p.ID, item{
		paste: &cp,
		exp:   time.Now().Add(l.ttl),
	})
}

// AddLanguage records a newly translated language on a cached paste, if
// present, so the next Get does not report a stale language list.
func (l *LRU) AddLanguage(id, lang string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	it, ok := l.c.Peek(id)
	if !ok {
		return
	}
	for _, have := range it.paste.Languages {
		if have == lang {
			return
		}
	}
	cp := *it.paste
	cp.Languages = append(append([]string(nil), it.paste.Languages...), lang)
	l.c.Add(id, item{paste: &cp, exp: it.exp})
}
func (l *LRU) Delete(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.c.Remove(id)
}
func (l *LRU) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.c.Len()
}
