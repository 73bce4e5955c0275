package domain

import (
	"testing"
	"time"
)

func TestNewPasteRecord_StripsOriginalFromTranslations(t *testing.T) {
	r := NewPasteRecord("p1", "en", ToneDefault, time.Now(), "Hello",
		map[string]string{"en": "Hello", "fr": "Bonjour"},
		[]string{"en"},
	)

	if _, ok := r.Translations["en"]; ok {
		t.Errorf("original language must not be a translation key")
	}
	if r.Translations["fr"] != "Bonjour" {
		t.Errorf("expected fr translation to be kept, got %q", r.Translations["fr"])
	}
	if !r.IsAvailable("en") || !r.IsAvailable("fr") {
		t.Errorf("expected en and fr available, got %v", r.AvailableLanguages)
	}
}

func TestNewPasteRecord_OriginalAlwaysAvailable(t *testing.T) {
	r := NewPasteRecord("p1", "EN", ToneFriendly, time.Now(), "Hello", nil, nil)

	if r.OriginalLanguage != "en" {
		t.Errorf("expected normalized original language, got %q", r.OriginalLanguage)
	}
	if len(r.AvailableLanguages) != 1 || r.AvailableLanguages[0] != "en" {
		t.Errorf("expected [en], got %v", r.AvailableLanguages)
	}
}

func TestPasteRecord_MergeIsAdditive(t *testing.T) {
	r := NewPasteRecord("p1", "en", ToneDefault, time.Now(), "Hello", nil, []string{"en"})

	r.Merge("fr", "Bonjour")
	r.Merge("de", "Hallo")
	r.Merge("fr", "Bonjour")
	r.Merge("en", "ignored")

	if len(r.Translations) != 2 {
		t.Fatalf("expected 2 translations, got %v", r.Translations)
	}
	if len(r.AvailableLanguages) != 3 {
		t.Errorf("expected 3 available languages, got %v", r.AvailableLanguages)
	}
	if text, _ := r.Text("en"); text != "Hello" {
		t.Errorf("original text changed: %q", text)
	}
}

func TestPasteRecord_CloneIsIndependent(t *testing.T) {
	r := NewPasteRecord("p1", "en", ToneDefault, time.Now(), "Hello", map[string]string{"fr": "Bonjour"}, nil)
	c := r.Clone()
	c.Merge("de", "Hallo")

	if _, ok := r.Translations["de"]; ok {
		t.Errorf("clone mutation leaked into source record")
	}
	if r.IsAvailable("de") {
		t.Errorf("clone availability leaked into source record")
	}
}

func TestParseTone(t *testing.T) {
	tests := []struct {
		in      string
		want    Tone
		wantErr bool
	}{
		{"", ToneDefault, false},
		{"professional", ToneProfessional, false},
		{"brusque", ToneBrusque, false},
		{"sarcastic", "", true},
	}
	for _, tt := range tests {
		got, err := ParseTone(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseTone(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseTone(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeLanguage(t *testing.T) {
	tests := map[string]string{
		"fr":          "fr",
		" EN ":        "en",
		"fr-CA":       "fr",
		"pt_BR":       "pt",
		"de_DE.UTF-8": "de",
		"zh-Hant":     "zh",
		"nb":          "no",
		"und":         "und",
		"":            "",
	}
	for in, want := range tests {
		if got := NormalizeLanguage(in); got != want {
			t.Errorf("NormalizeLanguage(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPreferredLanguage(t *testing.T) {
	available := []string{"en", "fr"}

	if got, ok := PreferredLanguage("fr-CA", available); !ok || got != "fr" {
		t.Errorf("expected fr, got %q (%v)", got, ok)
	}
	if got, ok := PreferredLanguage("de-DE,fr;q=0.8", available); !ok || got != "fr" {
		t.Errorf("expected fr from accept list, got %q (%v)", got, ok)
	}
	if got, ok := PreferredLanguage("xx,fr;q=0.8", available); !ok || got != "fr" {
		t.Errorf("unknown tag should not hide later entries, got %q (%v)", got, ok)
	}
	if got, ok := PreferredLanguage("fr;q=0.5, en;q=0.9", available); !ok || got != "en" {
		t.Errorf("expected highest q to win, got %q (%v)", got, ok)
	}
	if got, ok := PreferredLanguage("fr_FR.UTF-8", available); !ok || got != "fr" {
		t.Errorf("expected fr from POSIX locale, got %q (%v)", got, ok)
	}
	if _, ok := PreferredLanguage("fr;q=0", available); ok {
		t.Errorf("q=0 should exclude the entry")
	}
	if _, ok := PreferredLanguage("ja", available); ok {
		t.Errorf("expected no match for ja")
	}
	if _, ok := PreferredLanguage("", available); ok {
		t.Errorf("expected no match for empty preference")
	}
}
