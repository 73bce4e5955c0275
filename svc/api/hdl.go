package api

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/hlog"
	"lingopaste/cfg"
	"lingopaste/pkg/domain"
	"lingopaste/svc/lim"
	"lingopaste/svc/svc"
	"lingopaste/svc/util"
)

type Hdl struct {
	paste *svc.Paste
	cfg   *cfg.Cfg
}

func (h *Hdl) CreatePaste(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	contentType := r.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType != "application/json" {
		log.Warn().
			Str("content_type", contentType).
			Str("request_id", requestID).
			Msg("invalid Content-Type header")
		writeErr(w, domain.ErrInvalidRequest.WithMsg("expected Content-Type: application/json"), requestID)
		return
	}
	if ce := r.Header.Get("Content-Encoding"); ce != "" {
		log.Warn().Str("content_encoding", ce).Msg("compressed content not allowed")
		writeErr(w, domain.ErrInvalidRequest, requestID)
		return
	}
	// four bytes per character plus JSON escaping headroom
	limit := int64(h.cfg.MaxPasteLength)*8 + 1024
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	var req domain.CreatePasteRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var mbe *http.MaxBytesError
		switch {
		case err == io.EOF:
			log.Warn().Msg("empty request body")
		case errors.As(err, &mbe):
			writeErr(w, domain.ErrPasteTooLarge, requestID)
			return
		default:
			log.Warn().Err(err).Msg("invalid request")
		}
		writeErr(w, domain.ErrInvalidRequest, requestID)
		return
	}
	tone, err := domain.ParseTone(req.Tone)
	if err != nil {
		writeErr(w, err, requestID)
		return
	}
	realIP := lim.GetRealIP(r, h.cfg.TrustedProxies)
	paste, err := h.paste.Create(r.Context(), domain.CreateParams{
		Content:      req.Content,
		Tone:         tone,
		ClientIPHash: util.HashIP(realIP, []byte(h.cfg.IPHashSalt.Value())),
	})
	if err != nil {
		log.Warn().Err(err).Str("content", util.RedactPasteContent(req.Content)).Msg("failed to create paste")
		writeErr(w, err, requestID)
		return
	}
	log.Info().
		Str("paste_id", paste.ID).
		Str("original_language", paste.OriginalLanguage).
		Str("tone", string(paste.Tone)).
		Int("characters", paste.CharacterCount).
		Msg("paste created")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(domain.CreatePasteResponse{
		PasteID:            paste.ID,
		OriginalLanguage:   paste.OriginalLanguage,
		AvailableLanguages: paste.Languages,
	})
}
func (h *Hdl) GetPaste(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	id := chi.URLParam(r, "id")
	paste, translations, err := h.paste.Get(r.Context(), id)
	if err != nil {
		log.Warn().Err(err).Str("paste_id", id).Msg("get failed")
		writeErr(w, err, requestID)
		return
	}
	log.Info().
		Str("paste_id", id).
		Int("translations", len(translations)-1).
		Msg("paste retrieved")
	json.NewEncoder(w).Encode(domain.GetPasteResponse{
		PasteID:               paste.ID,
		OriginalLanguage:      paste.OriginalLanguage,
		Tone:                  string(paste.Tone),
		CreatedAt:             paste.CreatedAt.Unix(),
		Original:              paste.Content,
		Translations:          translations,
		AvailableTranslations: paste.Languages,
	})
}
func (h *Hdl) TranslatePaste(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	id := chi.URLParam(r, "id")
	lang := r.URL.Query().Get("lang")
	text, err := h.paste.Translate(r.Context(), id, lang)
	if err != nil {
		log.Warn().Err(err).Str("paste_id", id).Str("lang", lang).Msg("translate failed")
		writeErr(w, err, requestID)
		return
	}
	json.NewEncoder(w).Encode(domain.TranslateResponse{
		Language:    domain.NormalizeLanguage(lang),
		Translation: text,
	})
}
func (h *Hdl) Languages(w http.ResponseWriter, r *http.Request) {
	type language struct {
		Code string `json:"code"`
		Name string `json:"name"`
	}
	out := make([]language, 0, len(domain.SupportedLanguages))
	for _, code := range domain.SupportedLanguages {
		out = append(out, language{Code: code, Name: domain.LanguageName(code)})
	}
	json.NewEncoder(w).Encode(out)
}
func writeErr(w http.ResponseWriter, err error, requestID string) {
	statusCode := domain.Status(err)
	resp := domain.ToResp(err).Error
	msg := resp.Msg
	if statusCode >= 500 && statusCode != http.StatusBadGateway {
		msg = "internal server error"
		util.Error().
			Err(err).
			Str("request_id", requestID).
			Msg("internal error with detailed info")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(domain.ErrorBody{
		Error:     msg,
		Code:      resp.Code,
		RequestID: requestID,
	})
}
