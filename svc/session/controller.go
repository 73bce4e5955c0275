package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"lingopaste/pkg/domain"
	"lingopaste/svc/client"
	"lingopaste/svc/util"
)

type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "idle"
	}
}

// Notice is a transient, per-language translation failure. The view stays
// usable and the language can be selected again to retry.
type Notice struct {
	Language string
	Err      error
}

func (n *Notice) Kind() domain.Kind { return domain.KindOf(n.Err) }

// Snapshot is an immutable copy of the view state.
type Snapshot struct {
	Version          uint64
	State            State
	Selection        domain.ViewSelection
	Record           *domain.PasteRecord
	Err              error
	Notice           *Notice
	SelectorDisabled bool
}

// clone gives each reader its own record and pending list.
func (s Snapshot) clone() Snapshot {
	if s.Record != nil {
		s.Record = s.Record.Clone()
	}
	s.Selection.Pending = append([]string(nil), s.Selection.Pending...)
	if s.Notice != nil {
		n := *s.Notice
		s.Notice = &n
	}
	return s
}

type Display struct {
	Primary           string
	Secondary         string
	MachineTranslated bool
}

// Display resolves what the view shows for the current selection and mode.
// A missing translation falls back to the original text.
func (s Snapshot) Display() Display {
	if s.Record == nil {
		return Display{}
	}
	orig := s.Record.OriginalText
	sel := s.Selection.SelectedLanguage
	text, translated := s.Record.Translations[sel]
	switch s.Selection.Mode {
	case domain.ModeOriginal:
		return Display{Primary: orig}
	case domain.ModeSideBySide:
		if !translated {
			return Display{Primary: orig, Secondary: orig}
		}
		return Display{Primary: text, Secondary: orig, MachineTranslated: true}
	default:
		if !translated {
			return Display{Primary: orig}
		}
		return Display{Primary: text, MachineTranslated: true}
	}
}

type Option func(*Controller)

// WithPreferredLanguage sets the language picked on entry when the paste
// has it. Accepts a tag, a POSIX locale or an Accept-Language list.
func WithPreferredLanguage(pref string) Option {
	return func(c *Controller) { c.preferred = pref }
}
func WithTranslateTimeout(d time.Duration) Option {
	return func(c *Controller) { c.timeout = d }
}

// Controller drives one view of one paste.
type Controller struct {
	store     client.PasteStore
	tr        client.Translator
	preferred string
	timeout   time.Duration

	mu      sync.Mutex
	state   State
	entered bool
	cache   *Cache
	sel     domain.ViewSelection
	pending map[string]int
	notice  *Notice
	err     error
	version uint64
	current Snapshot
	subs    map[int]chan Snapshot
	nextSub int
}

func NewController(store client.PasteStore, tr client.Translator, opts ...Option) *Controller {
	c := &Controller{
		store:   store,
		tr:      tr,
		timeout: DefaultTranslateTimeout,
		pending: make(map[string]int),
		subs:    make(map[int]chan Snapshot),
	}
	for _, o := range opts {
		o(c)
	}
	c.current = Snapshot{State: StateIdle}
	return c
}

// Enter loads the paste. It may be called once; a failed load is terminal.
func (c *Controller) Enter(ctx context.Context, pasteID string) error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return domain.ErrSessionClosed
	}
	if c.entered {
		c.mu.Unlock()
		return domain.ErrAlreadyEntered
	}
	c.entered = true
	c.state = StateLoading
	c.publish()
	c.mu.Unlock()

	res, err := c.store.Get(ctx, pasteID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return domain.ErrSessionClosed
	}
	if err != nil {
		c.state = StateFailed
		c.err = err
		c.publish()
		util.Warn().Err(err).Str("paste_id", pasteID).Msg("paste load failed")
		return errors.Wrap(err, "enter view")
	}
	rec := res.ToRecord()
	c.cache = NewCache(rec, c.tr, c.timeout)
	c.cache.OnMerge(c.translationLanded)
	lang, ok := domain.PreferredLanguage(c.preferred, rec.AvailableLanguages)
	if !ok {
		lang = rec.OriginalLanguage
	}
	c.sel = domain.ViewSelection{SelectedLanguage: lang, Mode: domain.ModeTranslation}
	c.state = StateReady
	c.publish()
	util.Debug().Str("paste_id", rec.ID).Str("lang", lang).Msg("view ready")
	return nil
}

// SelectLanguage switches the view to lang, fetching a translation if
// needed. The selection is published before the fetch starts. A failed
// fetch leaves the view ready with a notice and returns the error.
func (c *Controller) SelectLanguage(ctx context.Context, lang string) error {
	lang = domain.NormalizeLanguage(lang)

	c.mu.Lock()
	if err := c.readyLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if lang == "" {
		c.mu.Unlock()
		return domain.ErrLanguageRequired
	}
	c.sel.SelectedLanguage = lang
	if lang == c.cache.rec.OriginalLanguage {
		c.sel.Mode = domain.ModeTranslation
	}
	c.notice = nil
	if _, ok := c.cache.Lookup(lang); ok {
		c.publish()
		c.mu.Unlock()
		return nil
	}
	c.pending[lang]++
	c.publish()
	cache := c.cache
	c.mu.Unlock()

	_, err := cache.EnsureTranslation(ctx, lang)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending[lang]--; c.pending[lang] <= 0 {
		delete(c.pending, lang)
	}
	if c.state == StateClosed {
		return domain.ErrSessionClosed
	}
	if err != nil {
		if _, ok := cache.Lookup(lang); ok {
			// landed while this caller was giving up
			err = nil
		} else {
			c.notice = &Notice{Language: lang, Err: err}
		}
	}
	c.publish()
	return err
}

// translationLanded publishes a translation nobody is waiting on any more,
// such as one whose caller cancelled before the shared call finished.
func (c *Controller) translationLanded(lang string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateReady || c.pending[lang] > 0 {
		return
	}
	if c.notice != nil && c.notice.Language == lang {
		c.notice = nil
	}
	c.publish()
}

// SetMode is a no-op for original and side-by-side while the original
// language is selected.
func (c *Controller) SetMode(m domain.ViewMode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.readyLocked(); err != nil {
		return err
	}
	if m != domain.ModeTranslation && c.sel.SelectedLanguage == c.cache.rec.OriginalLanguage {
		return nil
	}
	if c.sel.Mode == m {
		return nil
	}
	c.sel.Mode = m
	c.publish()
	return nil
}
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current.clone()
}

// Subscribe returns a channel that receives the current snapshot and then
// every later one. A slow reader only sees the latest.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan Snapshot, 1)
	if c.state == StateClosed {
		ch <- c.current.clone()
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- c.current.clone()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
}

// Leave discards the view. Outstanding fetches are cancelled and their
// results ignored.
func (c *Controller) Leave() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return
	}
	if c.cache != nil {
		c.cache.Close()
	}
	c.state = StateClosed
	c.publish()
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
}

// Stats reports translation cache counters; zero before the paste loads.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	cache := c.cache
	c.mu.Unlock()
	if cache == nil {
		return Stats{}
	}
	return cache.Stats()
}
func (c *Controller) readyLocked() error {
	switch c.state {
	case StateReady:
		return nil
	case StateClosed:
		return domain.ErrSessionClosed
	default:
		return domain.ErrNotReady.WithMsg("view is " + c.state.String())
	}
}

// publish must be called with c.mu held.
func (c *Controller) publish() {
	c.version++
	s := Snapshot{
		Version: c.version,
		State:   c.state,
		Err:     c.err,
		Notice:  c.notice,
	}
	if c.cache != nil {
		s.Record = c.cache.Record()
		sel := c.sel
		sel.Pending = make([]string, 0, len(c.pending))
		for lang := range c.pending {
			sel.Pending = append(sel.Pending, lang)
		}
		sort.Strings(sel.Pending)
		s.Selection = sel
		s.SelectorDisabled = len(sel.Pending) > 0
	}
	c.current = s
	for _, ch := range c.subs {
		cp := s.clone()
		select {
		case ch <- cp:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- cp:
			default:
			}
		}
	}
}
