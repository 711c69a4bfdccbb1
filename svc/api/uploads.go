package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"cinderbin/pkg/domain"
	"cinderbin/svc/svc"
	"cinderbin/svc/util"
)

// StoreUploads accepts a multipart form with one or more "files" parts and
// stores each one. Uploads are unattached until a paste claims them.
func (h *Hdl) StoreUploads(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.UploadMaxTotalBytes+1<<20)
	if err := r.ParseMultipartForm(h.cfg.UploadMaxTotalBytes); err != nil {
		log.Warn().Err(err).Msg("invalid multipart form")
		writeErr(w, domain.Invalid("files", "invalid multipart form or body too large"), requestID)
		return
	}
	defer r.MultipartForm.RemoveAll()

	parts := r.MultipartForm.File["files"]
	if len(parts) == 0 {
		writeErr(w, domain.Invalid("files", "select at least one file"), requestID)
		return
	}
	files := make([]svc.FileInput, 0, len(parts))
	for _, p := range parts {
		f, err := p.Open()
		if err != nil {
			writeErr(w, domain.Invalid("files", "unreadable file part"), requestID)
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			writeErr(w, domain.Invalid("files", "unreadable file part"), requestID)
			return
		}
		files = append(files, svc.FileInput{
			Name: p.Filename,
			Mime: p.Header.Get("Content-Type"),
			Data: data,
		})
	}

	uploads, err := h.paste.StoreFiles(r.Context(), files)
	if err != nil {
		log.Warn().Err(err).Int("files", len(files)).Msg("upload failed")
		writeErr(w, err, requestID)
		return
	}
	log.Info().Int("files", len(uploads)).Msg("files stored")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(struct {
		Uploads []domain.Upload `json:"uploads"`
	}{Uploads: uploads})
}

// DownloadUpload redirects to the blob URL with attachment hints. The record
// is the source of truth; an expired upload answers 410 even if the blob
// still exists.
func (h *Hdl) DownloadUpload(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	id := chi.URLParam(r, "id")
	u, err := h.paste.Download(r.Context(), id)
	if err != nil {
		log.Warn().Err(err).Str("upload_id", id).Msg("download lookup failed")
		writeErr(w, err, requestID)
		return
	}
	target := u.URL
	sep := "?"
	if strings.Contains(target, "?") {
		sep = "&"
	}
	target += sep + "download=1&filename=" + url.QueryEscape(u.Filename)
	http.Redirect(w, r, target, http.StatusFound)
}
