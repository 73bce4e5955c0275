package domain

import (
	"sort"
	"time"
)

type Tone string

const (
	ToneDefault      Tone = "default"
	ToneProfessional Tone = "professional"
	ToneFriendly     Tone = "friendly"
	ToneBrusque      Tone = "brusque"
)

// ParseTone maps an empty value to ToneDefault and rejects anything else
// outside the four known tones.
func ParseTone(s string) (Tone, error) {
	switch Tone(s) {
	case "":
		return ToneDefault, nil
	case ToneDefault, ToneProfessional, ToneFriendly, ToneBrusque:
		return Tone(s), nil
	}
	return "", ErrInvalidTone
}

// Paste is the server-side row for a stored paste. Translations live in
// their own table and are joined in by the service.
type Paste struct {
	ID               string    `json:"id"`
	OriginalLanguage string    `json:"original_language"`
	Tone             Tone      `json:"tone"`
	Content          string    `json:"content"`
	CharacterCount   int       `json:"character_count"`
	CreatorIPHash    string    `json:"-"`
	CreatedAt        time.Time `json:"created_at"`
	Languages        []string  `json:"available_translations"`
}

type CreateParams struct {
	Content      string
	Tone         Tone
	ClientIPHash string
}

// PasteRecord is the client-side view of a paste once loaded. The original
// language is never a key of Translations.
type PasteRecord struct {
	ID                 string
	OriginalLanguage   string
	Tone               Tone
	CreatedAt          time.Time
	OriginalText       string
	Translations       map[string]string
	AvailableLanguages []string
}

// NewPasteRecord builds a record that satisfies the availability
// invariants regardless of what the server sent: the original language is
// stripped from translations, and every translated or original language is
// listed as available.
func NewPasteRecord(id, originalLang string, tone Tone, createdAt time.Time, original string, translations map[string]string, available []string) *PasteRecord {
	originalLang = NormalizeLanguage(originalLang)
	r := &PasteRecord{
		ID:               id,
		OriginalLanguage: originalLang,
		Tone:             tone,
		CreatedAt:        createdAt,
		OriginalText:     original,
		Translations:     make(map[string]string, len(translations)),
	}
	seen := map[string]bool{originalLang: true}
	r.AvailableLanguages = append(r.AvailableLanguages, originalLang)
	for _, lang := range available {
		lang = NormalizeLanguage(lang)
		if lang == "" || seen[lang] {
			continue
		}
		seen[lang] = true
		r.AvailableLanguages = append(r.AvailableLanguages, lang)
	}
	keys := make([]string, 0, len(translations))
	for lang := range translations {
		keys = append(keys, lang)
	}
	sort.Strings(keys)
	for _, raw := range keys {
		lang := NormalizeLanguage(raw)
		if lang == "" || lang == originalLang {
			continue
		}
		r.Translations[lang] = translations[raw]
		if !seen[lang] {
			seen[lang] = true
			r.AvailableLanguages = append(r.AvailableLanguages, lang)
		}
	}
	return r
}

func (r *PasteRecord) IsAvailable(lang string) bool {
	for _, l := range r.AvailableLanguages {
		if l == lang {
			return true
		}
	}
	return false
}

// Text returns the text for lang if it is the original or already
// translated.
func (r *PasteRecord) Text(lang string) (string, bool) {
	if lang == r.OriginalLanguage {
		return r.OriginalText, true
	}
	t, ok := r.Translations[lang]
	return t, ok
}

// Merge adds a translation. It is a no-op for the original language.
func (r *PasteRecord) Merge(lang, text string) {
	if lang == r.OriginalLanguage {
		return
	}
	r.Translations[lang] = text
	if !r.IsAvailable(lang) {
		r.AvailableLanguages = append(r.AvailableLanguages, lang)
	}
}

func (r *PasteRecord) Clone() *PasteRecord {
	c := *r
	c.Translations = make(map[string]string, len(r.Translations))
	for k, v := range r.Translations {
		c.Translations[k] = v
	}
	c.AvailableLanguages = append([]string(nil), r.AvailableLanguages...)
	return &c
}
