package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"
	"lingopaste/pkg/domain"
	"lingopaste/svc/util"
)

// PasteStore creates and fetches pastes. It never caches.
type PasteStore interface {
	Create(ctx context.Context, content string, tone domain.Tone) (*CreateResult, error)
	Get(ctx context.Context, id string) (*GetResult, error)
}

// Translator performs one translation of one paste into one language.
type Translator interface {
	Translate(ctx context.Context, id, lang string) (*TranslateResult, error)
}

type CreateResult struct {
	PasteID            string
	OriginalLanguage   string
	AvailableLanguages []string
}
type GetResult struct {
	PasteID               string
	OriginalLanguage      string
	Tone                  domain.Tone
	CreatedAt             time.Time
	OriginalText          string
	Translations          map[string]string
	AvailableTranslations []string
}

// ToRecord builds the in-memory record the translation cache owns.
func (g *GetResult) ToRecord() *domain.PasteRecord {
	return domain.NewPasteRecord(g.PasteID, g.OriginalLanguage, g.Tone, g.CreatedAt,
		g.OriginalText, g.Translations, g.AvailableTranslations)
}

type TranslateResult struct {
	Language       string
	TranslatedText string
}

const maxResponseSize = 4 << 20

type base struct {
	baseURL *url.URL
	http    *http.Client
}

func newBase(apiURL string, hc *http.Client) (base, error) {
	u, err := url.Parse(strings.TrimSuffix(apiURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return base{}, errors.Errorf("invalid api url %q", apiURL)
	}
	if hc == nil {
		hc = &http.Client{}
	}
	return base{baseURL: u, http: hc}, nil
}
func (b base) endpoint(parts ...string) string {
	u := *b.baseURL
	for _, p := range parts {
		u.Path += "/" + url.PathEscape(p)
	}
	return u.String()
}

// do sends req and decodes a 2xx JSON body into out. Every failure comes
// back as a *domain.Err (wrapped) so callers can branch on domain.KindOf.
func (b base) do(req *http.Request, out interface{}) error {
	requestID := util.NewRequestID()
	req.Header.Set("Accept", "application/json")
	req.Header.Set(util.RequestIDHeader, requestID)
	resp, err := b.http.Do(req)
	if err != nil {
		util.Debug().Err(err).Str("request_id", requestID).Str("path", req.URL.Path).Msg("request failed")
		return transportErr(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return transportErr(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		util.Debug().Str("request_id", requestID).Str("path", req.URL.Path).
			Int("status", resp.StatusCode).Msg("paste service returned error")
		return decodeErr(resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(domain.ErrTransport.WithMsg("malformed response from paste service"), err.Error())
	}
	return nil
}
func transportErr(err error) error {
	msg := "paste service unreachable"
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		msg = "request timed out"
	} else if errors.Is(err, context.Canceled) {
		msg = "request cancelled"
	}
	return errors.Wrap(domain.ErrTransport.WithMsg(msg), err.Error())
}

// decodeErr maps an error response to a domain error: a known code wins,
// otherwise the status decides.
func decodeErr(status int, body []byte) error {
	var eb domain.ErrorBody
	_ = json.Unmarshal(body, &eb)
	if known, ok := domain.ErrFromCode(eb.Code); ok {
		if eb.Error != "" {
			return known.WithMsg(eb.Error)
		}
		return known
	}
	msg := eb.Error
	if msg == "" {
		msg = http.StatusText(status)
	}
	switch {
	case status == http.StatusNotFound:
		return domain.ErrPasteNotFound.WithMsg(msg)
	case status == http.StatusBadGateway:
		return domain.ErrTranslationFailed.WithMsg(msg)
	default:
		e := domain.ErrTransport.WithMsg(msg)
		e.Status = status
		return e
	}
}

type PasteClient struct {
	base
}

func NewPasteClient(apiURL string, hc *http.Client) (*PasteClient, error) {
	b, err := newBase(apiURL, hc)
	if err != nil {
		return nil, err
	}
	return &PasteClient{base: b}, nil
}
func (c *PasteClient) Create(ctx context.Context, content string, tone domain.Tone) (*CreateResult, error) {
	payload, err := json.Marshal(domain.CreatePasteRequest{Content: content, Tone: string(tone)})
	if err != nil {
		return nil, errors.Wrap(err, "marshal create request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("pastes"), bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "build create request")
	}
	req.Header.Set("Content-Type", "application/json")
	var out domain.CreatePasteResponse
	if err := c.do(req, &out); err != nil {
		return nil, errors.Wrap(err, "create paste")
	}
	return &CreateResult{
		PasteID:            out.PasteID,
		OriginalLanguage:   out.OriginalLanguage,
		AvailableLanguages: out.AvailableLanguages,
	}, nil
}
func (c *PasteClient) Get(ctx context.Context, id string) (*GetResult, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.ErrInvalidRequest.WithMsg("paste id required")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("pastes", id), nil)
	if err != nil {
		return nil, errors.Wrap(err, "build get request")
	}
	var out domain.GetPasteResponse
	if err := c.do(req, &out); err != nil {
		return nil, errors.Wrap(err, "get paste "+id)
	}
	tone, err := domain.ParseTone(out.Tone)
	if err != nil {
		tone = domain.ToneDefault
	}
	return &GetResult{
		PasteID:               out.PasteID,
		OriginalLanguage:      out.OriginalLanguage,
		Tone:                  tone,
		CreatedAt:             time.Unix(out.CreatedAt, 0).UTC(),
		OriginalText:          out.Original,
		Translations:          out.Translations,
		AvailableTranslations: out.AvailableTranslations,
	}, nil
}

// TranslateClient bounds every call with timeout and spaces calls with a
// token bucket so a user flicking through languages cannot flood the
// service.
type TranslateClient struct {
	base
	timeout time.Duration
	limiter *rate.Limiter
}

type TranslateOption func(*TranslateClient)

func WithTimeout(d time.Duration) TranslateOption {
	return func(c *TranslateClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRPM limits calls per minute; zero disables the limiter.
func WithRPM(rpm int) TranslateOption {
	return func(c *TranslateClient) {
		if rpm <= 0 {
			c.limiter = nil
			return
		}
		burst := rpm / 10
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(float64(rpm)/60.0), burst)
	}
}
func NewTranslateClient(apiURL string, hc *http.Client, opts ...TranslateOption) (*TranslateClient, error) {
	b, err := newBase(apiURL, hc)
	if err != nil {
		return nil, err
	}
	c := &TranslateClient{base: b, timeout: 60 * time.Second}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}
func (c *TranslateClient) Translate(ctx context.Context, id, lang string) (*TranslateResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, transportErr(err)
		}
	}
	u := c.endpoint("pastes", id, "translate") + "?" + url.Values{"lang": {lang}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build translate request")
	}
	var out domain.TranslateResponse
	if err := c.do(req, &out); err != nil {
		return nil, errors.Wrap(err, "translate "+lang)
	}
	got := domain.NormalizeLanguage(out.Language)
	if got == "" {
		got = lang
	}
	return &TranslateResult{Language: got, TranslatedText: out.Translation}, nil
}

var (
	_ PasteStore = (*PasteClient)(nil)
	_ Translator = (*TranslateClient)(nil)
)
