package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
	"lingopaste/metrics"
	"lingopaste/pkg/domain"
	"lingopaste/svc/client"
	"lingopaste/svc/util"
)

const DefaultTranslateTimeout = 60 * time.Second

type Stats struct {
	Hits      uint64
	Misses    uint64
	Coalesced uint64
	Failures  uint64
}

// Cache owns one loaded paste record and fills in translations on demand.
// At most one translator call per language is in flight; concurrent
// requests for that language share its result.
type Cache struct {
	tr      client.Translator
	timeout time.Duration

	mu      sync.Mutex
	rec     *domain.PasteRecord
	pending map[string]struct{}
	closed  bool
	stats   Stats

	group   singleflight.Group
	ctx     context.Context
	cancel  context.CancelFunc
	onMerge func(lang string)
}

func NewCache(rec *domain.PasteRecord, tr client.Translator, timeout time.Duration) *Cache {
	if timeout <= 0 {
		timeout = DefaultTranslateTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Cache{
		tr:      tr,
		timeout: timeout,
		rec:     rec.Clone(),
		pending: make(map[string]struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// EnsureTranslation returns the text of the paste in lang, calling the
// translator only when lang is neither the original nor already cached.
func (c *Cache) EnsureTranslation(ctx context.Context, lang string) (string, error) {
	lang = domain.NormalizeLanguage(lang)
	if lang == "" {
		return "", domain.ErrLanguageRequired
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", domain.ErrSessionClosed
	}
	if text, ok := c.rec.Text(lang); ok {
		c.stats.Hits++
		c.mu.Unlock()
		metrics.CacheHits.WithLabelValues("session").Inc()
		return text, nil
	}
	c.stats.Misses++
	id := c.rec.ID
	c.mu.Unlock()
	metrics.CacheMisses.WithLabelValues("session").Inc()

	leader := false
	ch := c.group.DoChan(lang, func() (interface{}, error) {
		leader = true
		return c.fetch(id, lang)
	})
	select {
	case res := <-ch:
		if res.Shared && !leader {
			c.mu.Lock()
			c.stats.Coalesced++
			c.mu.Unlock()
			metrics.TranslationsCoalesced.WithLabelValues("session").Inc()
		}
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", errors.Wrap(domain.ErrTransport.WithMsg("stopped waiting for translation"), ctx.Err().Error())
	}
}

// fetch runs once per in-flight language. It is detached from any caller
// context so one waiter giving up does not fail the others.
func (c *Cache) fetch(id, lang string) (string, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", domain.ErrSessionClosed
	}
	if text, ok := c.rec.Text(lang); ok {
		c.mu.Unlock()
		return text, nil
	}
	c.pending[lang] = struct{}{}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(c.ctx, c.timeout)
	defer cancel()
	start := time.Now()
	res, err := c.tr.Translate(ctx, id, lang)
	if err != nil && domain.KindOf(err) == domain.KindInternal && ctx.Err() != nil {
		err = errors.Wrap(domain.ErrTransport.WithMsg("translation timed out"), err.Error())
	}

	c.mu.Lock()
	delete(c.pending, lang)
	if c.closed {
		c.mu.Unlock()
		return "", domain.ErrSessionClosed
	}
	if err != nil {
		c.stats.Failures++
		c.mu.Unlock()
		util.Warn().Err(err).Str("paste_id", id).Str("lang", lang).
			Str("kind", domain.KindOf(err).String()).Msg("translation failed")
		return "", errors.Wrap(err, "translate "+lang)
	}
	c.rec.Merge(lang, res.TranslatedText)
	onMerge := c.onMerge
	c.mu.Unlock()
	util.Debug().Str("paste_id", id).Str("lang", lang).
		Dur("took", time.Since(start)).Msg("translation cached")
	if onMerge != nil {
		onMerge(lang)
	}
	return res.TranslatedText, nil
}

// OnMerge registers fn to run, without the cache lock held, after each
// translation lands. It also fires when every waiter has given up.
func (c *Cache) OnMerge(fn func(lang string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMerge = fn
}

// Lookup never triggers a fetch.
func (c *Cache) Lookup(lang string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rec.Text(domain.NormalizeLanguage(lang))
}

// Record returns a deep copy of the current record.
func (c *Cache) Record() *domain.PasteRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rec.Clone()
}
func (c *Cache) Pending() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.pending))
	for lang := range c.pending {
		out = append(out, lang)
	}
	sort.Strings(out)
	return out
}
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Close cancels outstanding translator calls. Results that still arrive
// are dropped.
func (c *Cache) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	c.cancel()
}
