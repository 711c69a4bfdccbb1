package api

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"
	"golang.org/x/text/unicode/norm"

	"cinderbin/cfg"
	"cinderbin/pkg/domain"
	"cinderbin/svc/svc"
	"cinderbin/svc/util"
)

type Hdl struct {
	paste  *svc.Paste
	reaper *svc.Reaper
	cfg    *cfg.Cfg
}

type CreateReq struct {
	Content        string   `json:"content"`
	EnablePassword bool     `json:"enable_password"`
	Password       string   `json:"password,omitempty"`
	EnableExpiry   bool     `json:"enable_expiry"`
	ExpiryMinutes  int      `json:"expiry_minutes,omitempty"`
	EnableMaxViews bool     `json:"enable_max_views"`
	MaxViews       int      `json:"max_views,omitempty"`
	BurnOnce       bool     `json:"burn_once,omitempty"`
	FileIDs        []string `json:"file_ids,omitempty"`
}

type CreateResp struct {
	ID        string    `json:"id"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *Hdl) CreatePaste(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	contentType := r.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType != "application/json" {
		log.Warn().Str("content_type", contentType).Msg("invalid Content-Type header")
		writeErr(w, domain.Invalid("body", "expected Content-Type: application/json"), requestID)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxPasteSize*2)
	var req CreateReq
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		if err == io.EOF {
			log.Warn().Msg("empty request body")
		} else {
			log.Warn().Err(err).Msg("invalid request body")
		}
		writeErr(w, domain.Invalid("body", "invalid request body"), requestID)
		return
	}
	if req.EnableExpiry && req.ExpiryMinutes <= 0 {
		writeErr(w, domain.Invalid("expiry_minutes", "expiry must be positive"), requestID)
		return
	}
	params := domain.CreateParams{
		Content:        sanitizeContent(req.Content),
		EnablePassword: req.EnablePassword,
		Password:       req.Password,
		EnableMaxViews: req.EnableMaxViews,
		MaxViews:       req.MaxViews,
		BurnOnce:       req.BurnOnce,
		FileIDs:        req.FileIDs,
	}
	if req.EnableExpiry {
		params.ExpiryMinutes = req.ExpiryMinutes
	}
	paste, err := h.paste.Create(r.Context(), params)
	if err != nil {
		log.Warn().Err(err).Msg("create failed")
		writeErr(w, err, requestID)
		return
	}
	log.Info().
		Str("paste_id", paste.ID).
		Time("expires_at", paste.ExpiresAt).
		Bool("password_protected", req.EnablePassword).
		Bool("burn_once", req.BurnOnce).
		Msg("paste created")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(CreateResp{ID: paste.ID, ExpiresAt: paste.ExpiresAt})
}

// GetPasteMeta reports the access state without consuming a view. Content
// and filenames stay hidden until a reveal.
func (h *Hdl) GetPasteMeta(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	id := chi.URLParam(r, "id")
	meta, err := h.paste.Meta(r.Context(), id)
	if err != nil {
		log.Warn().Err(err).Str("paste_id", id).Msg("meta lookup failed")
		writeErr(w, err, requestID)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(meta)
}

func (h *Hdl) RevealPaste(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	id := chi.URLParam(r, "id")
	reveal, err := h.paste.Reveal(r.Context(), id)
	if err != nil {
		log.Warn().Err(err).Str("paste_id", id).Msg("reveal failed")
		writeErr(w, err, requestID)
		return
	}
	log.Info().Str("paste_id", id).Msg("paste revealed")
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(reveal)
}

type UnlockReq struct {
	Password string `json:"password"`
}

func (h *Hdl) UnlockPaste(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	id := chi.URLParam(r, "id")
	var req UnlockReq
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil && err != io.EOF {
		writeErr(w, domain.Invalid("body", "invalid request body"), requestID)
		return
	}
	reveal, err := h.paste.Unlock(r.Context(), id, req.Password)
	if err != nil {
		if err == domain.ErrInvalidPassword {
			log.Warn().Str("paste_id", id).Msg("failed password attempt")
		} else {
			log.Warn().Err(err).Str("paste_id", id).Msg("unlock failed")
		}
		writeErr(w, err, requestID)
		return
	}
	log.Info().Str("paste_id", id).Msg("paste unlocked")
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(reveal)
}

// Cleanup triggers one reaper sweep. When a cleanup token is configured the
// caller must present it as a bearer token.
func (h *Hdl) Cleanup(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	if token := h.cfg.CleanupToken.Value(); token != "" {
		got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{
				"error":      "invalid cleanup token",
				"request_id": requestID,
			})
			return
		}
	}
	report, err := h.reaper.Sweep(r.Context(), time.Now())
	if err != nil {
		log.Error().Err(err).Msg("sweep failed")
		writeErr(w, domain.ErrStorageUnavailable, requestID)
		return
	}
	log.Info().
		Int("deleted_uploads", report.DeletedUploads).
		Int("deleted_pastes", report.DeletedPastes).
		Int("blob_errors", len(report.BlobErrors)).
		Msg("cleanup sweep completed")
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}

func writeErr(w http.ResponseWriter, err error, requestID string) {
	statusCode := domain.Status(err)
	resp := domain.ToResp(err)
	if statusCode >= 500 {
		resp = domain.ToResp(domain.ErrInternalServer)
		util.Error().
			Err(err).
			Str("request_id", requestID).
			Msg("internal error")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(struct {
		Error     domain.ErrDetail `json:"error"`
		RequestID string           `json:"request_id"`
	}{Error: resp.Error, RequestID: requestID})
}

// sanitizeContent normalizes to NFC and strips control characters except
// whitespace. Content is otherwise stored verbatim.
func sanitizeContent(s string) string {
	s = norm.NFC.String(s)
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for _, r := range s {
			if r != utf8.RuneError {
				v = append(v, r)
			}
		}
		s = string(v)
	}
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return r
		}
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, s)
}
