package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"lingopaste/pkg/domain"
	"lingopaste/svc/client"
)

type call struct {
	id   string
	lang string
}

type fakeTranslator struct {
	mu    sync.Mutex
	calls []call
	texts map[string]string
	errs  map[string][]error
	gate  chan struct{}
}

func newFakeTranslator() *fakeTranslator {
	return &fakeTranslator{
		texts: map[string]string{"fr": "Bonjour", "de": "Hallo", "es": "Hola"},
		errs:  make(map[string][]error),
	}
}

// failNext queues err for the next call for lang.
func (f *fakeTranslator) failNext(lang string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[lang] = append(f.errs[lang], err)
}

// block makes calls wait until the returned func is called.
func (f *fakeTranslator) block() func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	gate := make(chan struct{})
	f.gate = gate
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}
func (f *fakeTranslator) Translate(ctx context.Context, id, lang string) (*client.TranslateResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{id: id, lang: lang})
	var err error
	if q := f.errs[lang]; len(q) > 0 {
		err, f.errs[lang] = q[0], q[1:]
	}
	gate := f.gate
	text, ok := f.texts[lang]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		text = "[" + lang + "] Hello"
	}
	return &client.TranslateResult{Language: lang, TranslatedText: text}, nil
}
func (f *fakeTranslator) callCount(lang string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.lang == lang {
			n++
		}
	}
	return n
}
func (f *fakeTranslator) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeStore struct {
	mu    sync.Mutex
	res   *client.GetResult
	err   error
	calls int
}

func (f *fakeStore) Create(ctx context.Context, content string, tone domain.Tone) (*client.CreateResult, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeStore) Get(ctx context.Context, id string) (*client.GetResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.res == nil || f.res.PasteID != id {
		return nil, domain.ErrPasteNotFound
	}
	return f.res, nil
}

func helloPaste(translations map[string]string, available ...string) *client.GetResult {
	if len(available) == 0 {
		available = []string{"en"}
	}
	return &client.GetResult{
		PasteID:               "p1",
		OriginalLanguage:      "en",
		Tone:                  domain.ToneDefault,
		CreatedAt:             time.Unix(1700000000, 0),
		OriginalText:          "Hello",
		Translations:          translations,
		AvailableTranslations: available,
	}
}

var upstreamErr = errors.Wrap(domain.ErrTranslationFailed.WithMsg("Translation failed: provider overloaded"), "translate de")

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
