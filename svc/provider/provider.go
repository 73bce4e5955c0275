package provider

import (
	"context"
	"fmt"

	"lingopaste/pkg/domain"
)

// Provider detects the language of a paste and translates it. One call
// translates the whole text into one language.
type Provider interface {
	DetectLanguage(ctx context.Context, text string) (string, error)
	Translate(ctx context.Context, text, targetLang string, tone domain.Tone) (string, error)
}

// Error is returned for any provider failure. Retryable marks rate limits,
// timeouts and 5xx responses.
type Error struct {
	Op        string
	Cause     error
	Retryable bool
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("provider %s: %v", e.Op, e.Cause)
	}
	return "provider " + e.Op + " failed"
}
func (e *Error) Unwrap() error {
	return e.Cause
}
