package svc

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/unicode/norm"
	"lingopaste/cfg"
	"lingopaste/metrics"
	"lingopaste/pkg/domain"
	"lingopaste/svc/cache"
	"lingopaste/svc/db"
	"lingopaste/svc/lim"
	"lingopaste/svc/provider"
	"lingopaste/svc/util"
)

const cacheWorkers = 4

type cacheJob struct {
	id, lang, text string
}

// Paste creates, loads and translates pastes. Translations for one
// (paste, language) pair are produced at most once at a time; concurrent
// requests share the provider call.
type Paste struct {
	db          *db.SQLite
	lru         *cache.LRU
	rdb         *db.Redis
	prov        provider.Provider
	quota       *lim.Quota
	cfg         *cfg.Cfg
	group       singleflight.Group
	cacheQueue  chan cacheJob
	cacheWg     sync.WaitGroup
	shutdownCtx context.Context
	shutdownFn  context.CancelFunc
	shutdown    atomic.Bool
	opWg        sync.WaitGroup
}

func NewPaste(sqlDB *db.SQLite, lru *cache.LRU, rdb *db.Redis, prov provider.Provider, quota *lim.Quota, c *cfg.Cfg) *Paste {
	if sqlDB == nil || lru == nil || prov == nil || c == nil {
		panic("paste service: nil dependency (sqlDB, lru, provider or cfg)")
	}
	shutdownCtx, shutdownFn := context.WithCancel(context.Background())
	p := &Paste{
		db:          sqlDB,
		lru:         lru,
		rdb:         rdb,
		prov:        prov,
		quota:       quota,
		cfg:         c,
		shutdownCtx: shutdownCtx,
		shutdownFn:  shutdownFn,
	}
	if rdb != nil {
		p.cacheQueue = make(chan cacheJob, cacheWorkers*100)
		for i := 0; i < cacheWorkers; i++ {
			p.cacheWg.Add(1)
			go p.cacheWorker()
		}
	}
	return p
}

// cacheWorker copies fresh translations into Redis off the request path.
func (p *Paste) cacheWorker() {
	defer p.cacheWg.Done()
	defer func() {
		if r := recover(); r != nil {
			util.Error().Interface("panic", r).Msg("cacheWorker panicked")
		}
	}()
	for job := range p.cacheQueue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := p.rdb.CacheTranslation(ctx, job.id, job.lang, job.text); err != nil {
			util.Warn().Err(err).Str("id", job.id).Str("lang", job.lang).Msg("failed to cache translation in redis")
		}
		cancel()
	}
}
func (p *Paste) enqueueCache(id, lang, text string) {
	if p.cacheQueue == nil || p.shutdown.Load() {
		return
	}
	select {
	case p.cacheQueue <- cacheJob{id: id, lang: lang, text: text}:
	default:
		util.Warn().Str("id", id).Msg("cache queue full, dropping redis write")
	}
}
func (p *Paste) Shutdown() {
	if p.shutdown.Swap(true) {
		return
	}
	p.shutdownFn()
	p.opWg.Wait()
	if p.cacheQueue != nil {
		close(p.cacheQueue)
		done := make(chan struct{})
		go func() {
			p.cacheWg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			util.Warn().Msg("cache workers didn't stop in time")
		}
	}
	util.Debug().Msg("paste service shutdown complete")
}
func (p *Paste) begin() error {
	if p.shutdown.Load() {
		return errors.Wrap(domain.ErrInternalServer, "service shutting down")
	}
	p.opWg.Add(1)
	return nil
}
func (p *Paste) Create(ctx context.Context, params domain.CreateParams) (*domain.Paste, error) {
	if err := p.begin(); err != nil {
		return nil, err
	}
	defer p.opWg.Done()
	content := sanitizeContent(params.Content)
	if strings.TrimSpace(content) == "" {
		return nil, domain.ErrContentRequired
	}
	count := utf8.RuneCountInString(content)
	if count > p.cfg.MaxPasteLength {
		return nil, domain.ErrPasteTooLarge
	}
	tone := params.Tone
	if tone == "" {
		tone = domain.ToneDefault
	}
	if ok, err := p.quota.Allow(ctx, params.ClientIPHash); err != nil {
		util.Warn().Err(err).Msg("daily quota check failed, allowing")
	} else if !ok {
		return nil, domain.ErrDailyLimitExceeded
	}
	detectCtx, cancel := context.WithTimeout(ctx, p.cfg.OpenAI.Timeout)
	lang, err := p.prov.DetectLanguage(detectCtx, content)
	cancel()
	if err != nil {
		util.Warn().Err(err).Msg("language detection failed")
		return nil, errors.Wrap(domain.ErrDetectionFailed, err.Error())
	}
	id, err := util.GenID(func(id string) (bool, error) {
		return p.db.Exists(ctx, id)
	})
	if err != nil {
		util.Error().Err(err).Msg("id generation failed")
		return nil, domain.ErrIDGenerationFailed
	}
	paste := &domain.Paste{
		ID:               id,
		OriginalLanguage: lang,
		Tone:             tone,
		Content:          content,
		CharacterCount:   count,
		CreatorIPHash:    params.ClientIPHash,
		CreatedAt:        time.Now().UTC(),
		Languages:        []string{lang},
	}
	if err := p.db.Create(ctx, paste); err != nil {
		return nil, errors.Wrap(err, "create paste")
	}
	p.lru.Set(paste)
	metrics.PasteCreated.Inc()
	return paste, nil
}

// Get returns the paste and every known translation keyed by language,
// including the original text under the original language.
func (p *Paste) Get(ctx context.Context, id string) (*domain.Paste, map[string]string, error) {
	paste, err := p.load(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	translations := p.translations(ctx, paste)
	translations[paste.OriginalLanguage] = paste.Content
	seen := make(map[string]bool, len(paste.Languages))
	for _, l := range paste.Languages {
		seen[l] = true
	}
	for l := range translations {
		if !seen[l] {
			seen[l] = true
			paste.Languages = append(paste.Languages, l)
		}
	}
	metrics.PasteRetrieved.Inc()
	return paste, translations, nil
}
func (p *Paste) load(ctx context.Context, id string) (*domain.Paste, error) {
	if !util.ValidID(id) {
		return nil, domain.ErrPasteNotFound
	}
	if paste := p.lru.Get(ctx, id); paste != nil {
		return paste, nil
	}
	paste, err := p.db.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrPasteNotFound) {
			return nil, domain.ErrPasteNotFound
		}
		return nil, errors.Wrap(err, "get paste")
	}
	p.lru.Set(paste)
	return paste, nil
}
func (p *Paste) translations(ctx context.Context, paste *domain.Paste) map[string]string {
	want := len(paste.Languages) - 1
	if p.rdb != nil && want > 0 {
		m, err := p.rdb.Translations(ctx, paste.ID)
		if err != nil {
			util.Warn().Err(err).Str("id", paste.ID).Msg("redis translations unavailable")
		} else if len(m) >= want {
			metrics.CacheHits.WithLabelValues("redis").Inc()
			return m
		}
		metrics.CacheMisses.WithLabelValues("redis").Inc()
	}
	m, err := p.db.Translations(ctx, paste.ID)
	if err != nil {
		util.Warn().Err(err).Str("id", paste.ID).Msg("failed to load translations")
		return map[string]string{}
	}
	for lang, text := range m {
		p.enqueueCache(paste.ID, lang, text)
	}
	return m
}

// Translate returns paste id rendered in lang, calling the provider only
// when no stored translation exists.
func (p *Paste) Translate(ctx context.Context, id, lang string) (string, error) {
	lang = domain.NormalizeLanguage(lang)
	if lang == "" {
		return "", domain.ErrLanguageRequired
	}
	if !domain.IsSupported(lang) {
		return "", domain.ErrUnsupportedLanguage
	}
	paste, err := p.load(ctx, id)
	if err != nil {
		return "", err
	}
	if lang == paste.OriginalLanguage {
		return paste.Content, nil
	}
	if text, ok := p.stored(ctx, id, lang); ok {
		return text, nil
	}
	ch := p.group.DoChan(id+":"+lang, func() (interface{}, error) {
		if err := p.begin(); err != nil {
			return "", err
		}
		defer p.opWg.Done()
		return p.translate(paste, lang)
	})
	select {
	case res := <-ch:
		if res.Shared {
			metrics.TranslationsCoalesced.WithLabelValues("server").Inc()
		}
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", errors.Wrap(ctx.Err(), "translate wait")
	}
}
func (p *Paste) stored(ctx context.Context, id, lang string) (string, bool) {
	if p.rdb != nil {
		text, ok, err := p.rdb.GetTranslation(ctx, id, lang)
		if err != nil {
			util.Warn().Err(err).Str("id", id).Msg("redis translation lookup failed")
		} else if ok {
			metrics.CacheHits.WithLabelValues("redis").Inc()
			return text, true
		}
	}
	text, ok, err := p.db.GetTranslation(ctx, id, lang)
	if err != nil {
		util.Warn().Err(err).Str("id", id).Msg("db translation lookup failed")
		return "", false
	}
	if ok {
		metrics.CacheHits.WithLabelValues("db").Inc()
		p.enqueueCache(id, lang, text)
	}
	return text, ok
}

// translate runs detached from any single request so that a client
// disconnecting does not abort work other waiters are sharing.
func (p *Paste) translate(paste *domain.Paste, lang string) (string, error) {
	ctx, cancel := context.WithTimeout(p.shutdownCtx, p.cfg.OpenAI.Timeout)
	defer cancel()
	if text, ok, err := p.db.GetTranslation(ctx, paste.ID, lang); err == nil && ok {
		return text, nil
	}
	start := time.Now()
	text, err := p.prov.Translate(ctx, paste.Content, lang, paste.Tone)
	if err != nil {
		metrics.Translations.WithLabelValues(lang, "error").Inc()
		util.Error().Err(err).
			Str("id", paste.ID).
			Str("lang", lang).
			Dur("duration", time.Since(start)).
			Msg("translation failed")
		return "", errors.Wrap(domain.ErrTranslationFailed, lang)
	}
	metrics.Translations.WithLabelValues(lang, "ok").Inc()
	if err := p.db.SaveTranslation(ctx, paste.ID, lang, text); err != nil {
		util.Error().Err(err).Str("id", paste.ID).Str("lang", lang).Msg("failed to persist translation")
	}
	p.lru.AddLanguage(paste.ID, lang)
	p.enqueueCache(paste.ID, lang, text)
	util.Info().
		Str("id", paste.ID).
		Str("lang", lang).
		Str("tone", string(paste.Tone)).
		Dur("duration", time.Since(start)).
		Msg("paste translated")
	return text, nil
}

// sanitizeContent NFC-normalizes s and drops invalid UTF-8 and control
// characters other than tab and newlines.
func sanitizeContent(s string) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	s = norm.NFC.String(s)
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return r
		}
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, s)
}
