package provider

import (
	"context"
	"sync"

	"lingopaste/pkg/domain"
)

// Mock is a deterministic Provider for tests and offline development. Texts
// without a configured translation come back as "[lang] text".
type Mock struct {
	mu           sync.Mutex
	Language     string
	Translations map[string]string
	Err          error
	Delay        chan struct{}
	calls        map[string]int
}

func NewMock(language string) *Mock {
	return &Mock{
		Language:     language,
		Translations: map[string]string{},
		calls:        map[string]int{},
	}
}
func (m *Mock) DetectLanguage(ctx context.Context, text string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["detect"]++
	return m.Language, nil
}
func (m *Mock) Translate(ctx context.Context, text, targetLang string, tone domain.Tone) (string, error) {
	m.mu.Lock()
	m.calls[targetLang]++
	delay, err := m.Delay, m.Err
	out, ok := m.Translations[targetLang]
	m.mu.Unlock()
	if delay != nil {
		select {
		case <-delay:
		case <-ctx.Done():
			return "", &Error{Op: "translate", Cause: ctx.Err(), Retryable: true}
		}
	}
	if err != nil {
		return "", err
	}
	if !ok {
		out = "[" + targetLang + "] " + text
	}
	return out, nil
}

// Calls returns how many times key ("detect" or a language) was requested.
func (m *Mock) Calls(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[key]
}

var _ Provider = (*Mock)(nil)
