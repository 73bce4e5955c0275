package domain

import (
	"net/http"

	"github.com/pkg/errors"
)

// Kind groups errors by how the view reacts to them.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindTransport
	KindUpstream
	KindInvalid
	KindInvalidState
	KindClosed
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindTransport:
		return "transport"
	case KindUpstream:
		return "upstream"
	case KindInvalid:
		return "invalid"
	case KindInvalidState:
		return "invalid_state"
	case KindClosed:
		return "closed"
	default:
		return "internal"
	}
}

var (
	ErrPasteNotFound       = NewErr("PASTE_NOT_FOUND", "paste not found", http.StatusNotFound, KindNotFound)
	ErrContentRequired     = NewErr("CONTENT_REQUIRED", "content required", http.StatusBadRequest, KindInvalid)
	ErrPasteTooLarge       = NewErr("PASTE_TOO_LARGE", "paste too large", http.StatusBadRequest, KindInvalid)
	ErrInvalidTone         = NewErr("INVALID_TONE", "invalid tone, must be: default, professional, friendly, or brusque", http.StatusBadRequest, KindInvalid)
	ErrInvalidRequest      = NewErr("INVALID_REQUEST", "invalid request", http.StatusBadRequest, KindInvalid)
	ErrLanguageRequired    = NewErr("LANGUAGE_REQUIRED", "language required", http.StatusBadRequest, KindInvalid)
	ErrUnsupportedLanguage = NewErr("UNSUPPORTED_LANGUAGE", "unsupported language", http.StatusBadRequest, KindUpstream)
	ErrTranslationFailed   = NewErr("TRANSLATION_FAILED", "translation failed", http.StatusBadGateway, KindUpstream)
	ErrDetectionFailed     = NewErr("DETECTION_FAILED", "failed to detect language", http.StatusBadGateway, KindUpstream)
	ErrRateLimitExceeded   = NewErr("RATE_LIMIT_EXCEEDED", "rate limit exceeded", http.StatusTooManyRequests, KindTransport)
	ErrDailyLimitExceeded  = NewErr("DAILY_LIMIT_EXCEEDED", "daily paste limit exceeded", http.StatusTooManyRequests, KindTransport)
	ErrUnauthorized        = NewErr("UNAUTHORIZED", "unauthorized", http.StatusUnauthorized, KindInvalid)
	ErrInternalServer      = NewErr("INTERNAL_ERROR", "internal error", http.StatusInternalServerError, KindTransport)
	ErrIDGenerationFailed  = NewErr("ID_GENERATION_FAILED", "id generation failed", http.StatusInternalServerError, KindInternal)
	ErrTransport           = NewErr("TRANSPORT_ERROR", "paste service unreachable", http.StatusServiceUnavailable, KindTransport)
	ErrNotReady            = NewErr("NOT_READY", "view is not ready", http.StatusConflict, KindInvalidState)
	ErrAlreadyEntered      = NewErr("ALREADY_ENTERED", "view already entered", http.StatusConflict, KindInvalidState)
	ErrSessionClosed       = NewErr("SESSION_CLOSED", "view session closed", http.StatusGone, KindClosed)
)

type Err struct {
	Code   string `json:"code"`
	Msg    string `json:"message"`
	Status int    `json:"-"`
	Kind   Kind   `json:"-"`
}

func (e *Err) Error() string { return e.Msg }

// Is matches on Code so that errors rebuilt from a wire response still
// compare equal to the package sentinels.
func (e *Err) Is(target error) bool {
	t, ok := target.(*Err)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func NewErr(code, msg string, status int, kind Kind) *Err {
	return &Err{Code: code, Msg: msg, Status: status, Kind: kind}
}

// WithMsg copies e with a more specific message.
func (e *Err) WithMsg(msg string) *Err {
	return &Err{Code: e.Code, Msg: msg, Status: e.Status, Kind: e.Kind}
}

type ErrResp struct {
	Error ErrDetail `json:"error"`
}
type ErrDetail struct {
	Code string                 `json:"code"`
	Msg  string                 `json:"message"`
	Meta map[string]interface{} `json:"meta,omitempty"`
}

func asErr(err error) (*Err, bool) {
	if err == nil {
		return nil, false
	}
	if e, ok := err.(*Err); ok {
		return e, true
	}
	if e, ok := errors.Cause(err).(*Err); ok {
		return e, true
	}
	var e *Err
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func ToResp(err error) ErrResp {
	if e, ok := asErr(err); ok {
		return ErrResp{Error: ErrDetail{Code: e.Code, Msg: e.Msg}}
	}
	return ErrResp{Error: ErrDetail{Code: "INTERNAL_ERROR", Msg: "internal error"}}
}
func Status(err error) int {
	if e, ok := asErr(err); ok {
		return e.Status
	}
	return http.StatusInternalServerError
}

// KindOf reports the Kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	if e, ok := asErr(err); ok {
		return e.Kind
	}
	return KindInternal
}
