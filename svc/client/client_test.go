package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"lingopaste/pkg/domain"
)

func newFakeAPI(t *testing.T) (*httptest.Server, *int32) {
	t.Helper()
	var translateCalls int32
	r := chi.NewRouter()
	r.Post("/api/pastes", func(w http.ResponseWriter, r *http.Request) {
		var req domain.CreatePasteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Content == "" {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(domain.ErrorBody{Error: "content required", Code: "CONTENT_REQUIRED"})
			return
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(domain.CreatePasteResponse{
			PasteID: "abc12345", OriginalLanguage: "en", AvailableLanguages: []string{"en"},
		})
	})
	r.Get("/api/pastes/{id}", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "id") != "abc12345" {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(domain.ErrorBody{Error: "Paste not found", Code: "PASTE_NOT_FOUND"})
			return
		}
		json.NewEncoder(w).Encode(domain.GetPasteResponse{
			PasteID: "abc12345", OriginalLanguage: "en", Tone: "friendly", CreatedAt: 1700000000,
			Original:              "Hello",
			Translations:          map[string]string{"en": "Hello", "fr": "Bonjour"},
			AvailableTranslations: []string{"en", "fr"},
		})
	})
	r.Get("/api/pastes/{id}/translate", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&translateCalls, 1)
		switch r.URL.Query().Get("lang") {
		case "de":
			json.NewEncoder(w).Encode(domain.TranslateResponse{Language: "de", Translation: "Hallo"})
		case "ja":
			w.WriteHeader(http.StatusBadGateway)
			json.NewEncoder(w).Encode(domain.ErrorBody{Error: "Translation failed: quota", Code: "TRANSLATION_FAILED"})
		case "xx":
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte("<html>bad gateway</html>"))
		case "slow":
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, &translateCalls
}

func TestPasteClient_CreateAndGet(t *testing.T) {
	srv, _ := newFakeAPI(t)
	c, err := NewPasteClient(srv.URL+"/api/", nil)
	if err != nil {
		t.Fatalf("NewPasteClient failed: %v", err)
	}

	created, err := c.Create(context.Background(), "Hello", domain.ToneFriendly)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.PasteID != "abc12345" || created.OriginalLanguage != "en" {
		t.Errorf("unexpected create result %+v", created)
	}

	got, err := c.Get(context.Background(), created.PasteID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Tone != domain.ToneFriendly {
		t.Errorf("expected friendly tone, got %q", got.Tone)
	}
	if !got.CreatedAt.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("unexpected created_at %v", got.CreatedAt)
	}

	rec := got.ToRecord()
	if rec.OriginalText != "Hello" {
		t.Errorf("expected original text, got %q", rec.OriginalText)
	}
	if _, ok := rec.Translations["en"]; ok {
		t.Errorf("original language leaked into translations")
	}
	if text, _ := rec.Text("fr"); text != "Bonjour" {
		t.Errorf("expected fr translation, got %q", text)
	}
}

func TestPasteClient_Errors(t *testing.T) {
	srv, _ := newFakeAPI(t)
	c, _ := NewPasteClient(srv.URL+"/api", nil)

	_, err := c.Get(context.Background(), "missing1")
	if domain.KindOf(err) != domain.KindNotFound {
		t.Errorf("expected not found kind, got %v (%v)", domain.KindOf(err), err)
	}
	if !errors.Is(err, domain.ErrPasteNotFound) {
		t.Errorf("expected ErrPasteNotFound, got %v", err)
	}

	_, err = c.Create(context.Background(), "", domain.ToneDefault)
	if !errors.Is(err, domain.ErrContentRequired) {
		t.Errorf("expected ErrContentRequired, got %v", err)
	}

	if _, err := c.Get(context.Background(), " "); domain.KindOf(err) != domain.KindInvalid {
		t.Errorf("expected invalid kind for blank id, got %v", err)
	}
}

func TestPasteClient_Unreachable(t *testing.T) {
	srv, _ := newFakeAPI(t)
	url := srv.URL
	srv.Close()

	c, _ := NewPasteClient(url+"/api", nil)
	_, err := c.Get(context.Background(), "abc12345")
	if domain.KindOf(err) != domain.KindTransport {
		t.Errorf("expected transport kind, got %v (%v)", domain.KindOf(err), err)
	}
}

func TestNewPasteClient_InvalidURL(t *testing.T) {
	if _, err := NewPasteClient("localhost", nil); err == nil {
		t.Error("expected error for url without scheme")
	}
}

func TestTranslateClient_Translate(t *testing.T) {
	srv, calls := newFakeAPI(t)
	c, err := NewTranslateClient(srv.URL+"/api", nil, WithRPM(0))
	if err != nil {
		t.Fatalf("NewTranslateClient failed: %v", err)
	}

	res, err := c.Translate(context.Background(), "abc12345", "de")
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if res.Language != "de" || res.TranslatedText != "Hallo" {
		t.Errorf("unexpected result %+v", res)
	}
	if atomic.LoadInt32(calls) != 1 {
		t.Errorf("expected 1 call, got %d", atomic.LoadInt32(calls))
	}
}

func TestTranslateClient_ErrorMapping(t *testing.T) {
	srv, _ := newFakeAPI(t)
	c, _ := NewTranslateClient(srv.URL+"/api", nil)

	tests := []struct {
		lang string
		kind domain.Kind
	}{
		{"ja", domain.KindUpstream},
		{"xx", domain.KindUpstream},
		{"it", domain.KindTransport},
	}
	for _, tt := range tests {
		_, err := c.Translate(context.Background(), "abc12345", tt.lang)
		if err == nil {
			t.Errorf("%s: expected error", tt.lang)
			continue
		}
		if domain.KindOf(err) != tt.kind {
			t.Errorf("%s: expected kind %v, got %v (%v)", tt.lang, tt.kind, domain.KindOf(err), err)
		}
	}

	_, err := c.Translate(context.Background(), "abc12345", "ja")
	var de *domain.Err
	if !errors.As(err, &de) || de.Msg != "Translation failed: quota" {
		t.Errorf("expected server message to be kept, got %v", err)
	}
}

func TestTranslateClient_Timeout(t *testing.T) {
	srv, _ := newFakeAPI(t)
	c, _ := NewTranslateClient(srv.URL+"/api", nil, WithTimeout(50*time.Millisecond))

	start := time.Now()
	_, err := c.Translate(context.Background(), "abc12345", "slow")
	if domain.KindOf(err) != domain.KindTransport {
		t.Errorf("expected transport kind on timeout, got %v (%v)", domain.KindOf(err), err)
	}
	if time.Since(start) > time.Second {
		t.Errorf("timeout not enforced, took %v", time.Since(start))
	}
}

func TestTranslateClient_CallerCancel(t *testing.T) {
	srv, _ := newFakeAPI(t)
	c, _ := NewTranslateClient(srv.URL+"/api", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Translate(ctx, "abc12345", "de"); domain.KindOf(err) != domain.KindTransport {
		t.Errorf("expected transport kind for cancelled ctx, got %v", err)
	}
}
