package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"lingopaste/pkg/domain"
)

func newTestCache(tr *fakeTranslator) *Cache {
	return NewCache(helloPaste(nil).ToRecord(), tr, time.Second)
}

func TestEnsureTranslation_MissThenMerge(t *testing.T) {
	tr := newFakeTranslator()
	c := newTestCache(tr)

	text, err := c.EnsureTranslation(context.Background(), "fr")
	if err != nil {
		t.Fatalf("EnsureTranslation failed: %v", err)
	}
	if text != "Bonjour" {
		t.Errorf("expected Bonjour, got %q", text)
	}
	if len(tr.calls) != 1 || tr.calls[0] != (call{id: "p1", lang: "fr"}) {
		t.Errorf("expected one call (p1, fr), got %v", tr.calls)
	}

	rec := c.Record()
	if len(rec.Translations) != 1 || rec.Translations["fr"] != "Bonjour" {
		t.Errorf("expected {fr: Bonjour}, got %v", rec.Translations)
	}
	if len(rec.AvailableLanguages) != 2 || rec.AvailableLanguages[0] != "en" || rec.AvailableLanguages[1] != "fr" {
		t.Errorf("expected [en fr], got %v", rec.AvailableLanguages)
	}
}

func TestEnsureTranslation_OriginalShortCircuit(t *testing.T) {
	tr := newFakeTranslator()
	c := newTestCache(tr)

	for _, lang := range []string{"en", "EN", "en-GB"} {
		text, err := c.EnsureTranslation(context.Background(), lang)
		if err != nil {
			t.Fatalf("%s: unexpected error %v", lang, err)
		}
		if text != "Hello" {
			t.Errorf("%s: expected original text, got %q", lang, text)
		}
	}
	if tr.totalCalls() != 0 {
		t.Errorf("original language must not reach the translator, got %d calls", tr.totalCalls())
	}
	if len(c.Record().Translations) != 0 {
		t.Errorf("original language must not be merged into translations")
	}
}

func TestEnsureTranslation_Idempotent(t *testing.T) {
	tr := newFakeTranslator()
	c := newTestCache(tr)

	first, err := c.EnsureTranslation(context.Background(), "de")
	if err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	second, err := c.EnsureTranslation(context.Background(), "de")
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if first != second {
		t.Errorf("expected identical text, got %q and %q", first, second)
	}
	if tr.callCount("de") != 1 {
		t.Errorf("expected 1 translator call, got %d", tr.callCount("de"))
	}
	st := c.Stats()
	if st.Hits != 1 || st.Misses != 1 {
		t.Errorf("expected 1 hit and 1 miss, got %+v", st)
	}
}

func TestEnsureTranslation_PersistedTranslationsAreHits(t *testing.T) {
	tr := newFakeTranslator()
	rec := helloPaste(map[string]string{"en": "Hello", "ja": "こんにちは"}, "en", "ja").ToRecord()
	c := NewCache(rec, tr, time.Second)

	text, err := c.EnsureTranslation(context.Background(), "ja")
	if err != nil || text != "こんにちは" {
		t.Fatalf("expected stored translation, got %q (%v)", text, err)
	}
	if tr.totalCalls() != 0 {
		t.Errorf("stored translation should not be fetched")
	}
}

func TestEnsureTranslation_Coalesces(t *testing.T) {
	tr := newFakeTranslator()
	release := tr.block()
	c := newTestCache(tr)

	const callers = 5
	var wg sync.WaitGroup
	results := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.EnsureTranslation(context.Background(), "fr")
		}(i)
	}

	eventually(t, func() bool { return c.Stats().Misses == callers && len(c.Pending()) == 1 })
	if p := c.Pending(); p[0] != "fr" {
		t.Errorf("expected fr pending, got %v", p)
	}
	// let the counted callers reach the flight before it completes
	time.Sleep(20 * time.Millisecond)
	release()
	wg.Wait()

	if tr.callCount("fr") != 1 {
		t.Errorf("expected exactly 1 translator call, got %d", tr.callCount("fr"))
	}
	for i := 0; i < callers; i++ {
		if errs[i] != nil || results[i] != "Bonjour" {
			t.Errorf("caller %d: got %q (%v)", i, results[i], errs[i])
		}
	}
	if len(c.Pending()) != 0 {
		t.Errorf("pending should be empty, got %v", c.Pending())
	}
	if got := c.Stats().Coalesced; got != callers-1 {
		t.Errorf("expected %d coalesced callers, got %d", callers-1, got)
	}
}

func TestEnsureTranslation_DistinctLanguagesDoNotBlock(t *testing.T) {
	tr := newFakeTranslator()
	release := tr.block()
	defer release()
	c := newTestCache(tr)

	done := make(chan struct{})
	go func() {
		c.EnsureTranslation(context.Background(), "fr")
		close(done)
	}()
	eventually(t, func() bool { return tr.callCount("fr") == 1 })

	tr.mu.Lock()
	tr.gate = nil
	tr.mu.Unlock()

	text, err := c.EnsureTranslation(context.Background(), "de")
	if err != nil || text != "Hallo" {
		t.Fatalf("de should resolve while fr is in flight, got %q (%v)", text, err)
	}
	select {
	case <-done:
		t.Fatal("fr resolved before its translator call was released")
	default:
	}
	release()
	<-done
}

func TestEnsureTranslation_NoNegativeCaching(t *testing.T) {
	tr := newFakeTranslator()
	tr.failNext("de", upstreamErr)
	c := newTestCache(tr)

	_, err := c.EnsureTranslation(context.Background(), "de")
	if err == nil {
		t.Fatal("expected upstream error")
	}
	if domain.KindOf(err) != domain.KindUpstream {
		t.Errorf("expected upstream kind, got %v", domain.KindOf(err))
	}
	if _, ok := c.Record().Translations["de"]; ok {
		t.Errorf("failed language must not be cached")
	}
	if c.Record().IsAvailable("de") {
		t.Errorf("failed language must not become available")
	}
	if len(c.Pending()) != 0 {
		t.Errorf("pending should be empty after failure, got %v", c.Pending())
	}

	text, err := c.EnsureTranslation(context.Background(), "de")
	if err != nil || text != "Hallo" {
		t.Fatalf("retry should succeed, got %q (%v)", text, err)
	}
	if tr.callCount("de") != 2 {
		t.Errorf("retry should issue a new call, got %d calls", tr.callCount("de"))
	}
	if c.Stats().Failures != 1 {
		t.Errorf("expected 1 failure, got %+v", c.Stats())
	}
}

func TestEnsureTranslation_FailureSharedByWaiters(t *testing.T) {
	tr := newFakeTranslator()
	for i := 0; i < 3; i++ {
		tr.failNext("de", upstreamErr)
	}
	release := tr.block()
	c := newTestCache(tr)

	var wg sync.WaitGroup
	kinds := make([]domain.Kind, 3)
	for i := range kinds {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := c.EnsureTranslation(context.Background(), "de")
			kinds[i] = domain.KindOf(err)
		}(i)
	}
	eventually(t, func() bool { return c.Stats().Misses == 3 })
	release()
	wg.Wait()

	for i, k := range kinds {
		if k != domain.KindUpstream {
			t.Errorf("waiter %d: expected upstream kind, got %v", i, k)
		}
	}
	if _, ok := c.Lookup("de"); ok {
		t.Errorf("failed language must not be cached")
	}
}

func TestEnsureTranslation_AdditiveMerge(t *testing.T) {
	tr := newFakeTranslator()
	tr.failNext("ja", upstreamErr)
	c := newTestCache(tr)

	want := map[string]string{}
	for _, lang := range []string{"fr", "ja", "de", "fr", "es", "it", "de"} {
		text, err := c.EnsureTranslation(context.Background(), lang)
		if err == nil {
			want[lang] = text
		}
	}

	rec := c.Record()
	if len(rec.Translations) != len(want) {
		t.Fatalf("expected %d translations, got %v", len(want), rec.Translations)
	}
	for lang, text := range want {
		if rec.Translations[lang] != text {
			t.Errorf("%s: expected %q, got %q", lang, text, rec.Translations[lang])
		}
		if !rec.IsAvailable(lang) {
			t.Errorf("%s should be available", lang)
		}
	}
	if rec.OriginalText != "Hello" || rec.OriginalLanguage != "en" {
		t.Errorf("original fields changed: %+v", rec)
	}
}

func TestEnsureTranslation_InvalidLanguage(t *testing.T) {
	c := newTestCache(newFakeTranslator())

	if _, err := c.EnsureTranslation(context.Background(), "  "); domain.KindOf(err) != domain.KindInvalid {
		t.Errorf("expected invalid kind for empty language, got %v", err)
	}
}

func TestEnsureTranslation_NormalizesLanguage(t *testing.T) {
	tr := newFakeTranslator()
	c := newTestCache(tr)

	if _, err := c.EnsureTranslation(context.Background(), "fr-CA"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := c.Lookup("fr"); !ok {
		t.Errorf("expected fr cached under its base code")
	}
	if tr.calls[0].lang != "fr" {
		t.Errorf("translator should receive base code, got %q", tr.calls[0].lang)
	}
}

func TestEnsureTranslation_WaiterCancelKeepsSharedCall(t *testing.T) {
	tr := newFakeTranslator()
	release := tr.block()
	c := newTestCache(tr)

	ctx, cancel := context.WithCancel(context.Background())
	cancelled := make(chan error, 1)
	go func() {
		_, err := c.EnsureTranslation(ctx, "fr")
		cancelled <- err
	}()
	staying := make(chan string, 1)
	go func() {
		text, _ := c.EnsureTranslation(context.Background(), "fr")
		staying <- text
	}()
	eventually(t, func() bool { return c.Stats().Misses == 2 })

	cancel()
	if err := <-cancelled; domain.KindOf(err) != domain.KindTransport {
		t.Errorf("expected transport kind for abandoned wait, got %v", err)
	}
	release()
	if text := <-staying; text != "Bonjour" {
		t.Errorf("remaining waiter should get the result, got %q", text)
	}
	if _, ok := c.Lookup("fr"); !ok {
		t.Errorf("shared call result should be cached")
	}
}

func TestCache_OnMergeFiresAfterWaitersLeave(t *testing.T) {
	tr := newFakeTranslator()
	release := tr.block()
	c := newTestCache(tr)
	merged := make(chan string, 1)
	c.OnMerge(func(lang string) { merged <- lang })

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := c.EnsureTranslation(ctx, "fr")
		errc <- err
	}()
	eventually(t, func() bool { return tr.callCount("fr") == 1 })
	cancel()
	<-errc
	release()

	select {
	case lang := <-merged:
		if lang != "fr" {
			t.Errorf("expected merge for fr, got %q", lang)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("merge callback not called")
	}
	if text, ok := c.Lookup("fr"); !ok || text != "Bonjour" {
		t.Errorf("expected fr cached, got %q (%v)", text, ok)
	}
}

func TestEnsureTranslation_Timeout(t *testing.T) {
	tr := newFakeTranslator()
	release := tr.block()
	defer release()
	c := NewCache(helloPaste(nil).ToRecord(), tr, 20*time.Millisecond)

	_, err := c.EnsureTranslation(context.Background(), "fr")
	if domain.KindOf(err) != domain.KindTransport {
		t.Errorf("expected transport kind on timeout, got %v (%v)", domain.KindOf(err), err)
	}
	if len(c.Pending()) != 0 {
		t.Errorf("pending should be cleared after timeout")
	}
}

func TestCache_CloseDropsLateResults(t *testing.T) {
	tr := newFakeTranslator()
	release := tr.block()
	defer release()
	c := newTestCache(tr)

	errc := make(chan error, 1)
	go func() {
		_, err := c.EnsureTranslation(context.Background(), "fr")
		errc <- err
	}()
	eventually(t, func() bool { return len(c.Pending()) == 1 })

	c.Close()
	if err := <-errc; domain.KindOf(err) != domain.KindClosed {
		t.Errorf("expected closed kind, got %v", err)
	}
	if _, ok := c.Lookup("fr"); ok {
		t.Errorf("closed cache must not be mutated")
	}
	if _, err := c.EnsureTranslation(context.Background(), "de"); domain.KindOf(err) != domain.KindClosed {
		t.Errorf("expected closed kind after Close, got %v", err)
	}
	c.Close()
}

func TestCache_RecordIsCopy(t *testing.T) {
	c := newTestCache(newFakeTranslator())

	rec := c.Record()
	rec.Merge("fr", "tampered")
	if _, ok := c.Lookup("fr"); ok {
		t.Errorf("mutating a returned record must not affect the cache")
	}
}
