package domain

// JSON bodies exchanged between the paste service and its clients.

type CreatePasteRequest struct {
	Content string `json:"content"`
	Tone    string `json:"tone,omitempty"`
}
type CreatePasteResponse struct {
	PasteID            string   `json:"paste_id"`
	OriginalLanguage   string   `json:"original_language"`
	AvailableLanguages []string `json:"available_languages"`
}
type GetPasteResponse struct {
	PasteID               string            `json:"paste_id"`
	OriginalLanguage      string            `json:"original_language"`
	Tone                  string            `json:"tone"`
	CreatedAt             int64             `json:"created_at"`
	Original              string            `json:"original"`
	Translations          map[string]string `json:"translations"`
	AvailableTranslations []string          `json:"available_translations"`
}
type TranslateResponse struct {
	Language    string `json:"language"`
	Translation string `json:"translation"`
}

// ErrorBody is written for every non-2xx API response.
type ErrorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

var codeIndex = map[string]*Err{}

func init() {
	for _, e := range []*Err{
		ErrPasteNotFound, ErrContentRequired, ErrPasteTooLarge, ErrInvalidTone,
		ErrInvalidRequest, ErrLanguageRequired, ErrUnsupportedLanguage,
		ErrTranslationFailed, ErrDetectionFailed, ErrRateLimitExceeded,
		ErrDailyLimitExceeded, ErrUnauthorized, ErrInternalServer,
		ErrIDGenerationFailed,
	} {
		codeIndex[e.Code] = e
	}
}

// ErrFromCode returns the sentinel registered for a wire code.
func ErrFromCode(code string) (*Err, bool) {
	e, ok := codeIndex[code]
	return e, ok
}
