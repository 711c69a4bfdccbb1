package svc

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/unicode/norm"

	"cinderbin/cfg"
	"cinderbin/metrics"
	"cinderbin/pkg/domain"
	"cinderbin/svc/auth"
	"cinderbin/svc/blob"
	"cinderbin/svc/cache"
	"cinderbin/svc/db"
	"cinderbin/svc/util"
)

// Paste implements creation, access evaluation and file intake. All state
// lives in the record store; handlers may run in any number of processes.
type Paste struct {
	store  *db.Store
	blobs  blob.Store
	lru    *cache.LRU
	rdb    *db.Redis
	hasher *auth.Hasher
	cfg    *cfg.Cfg
}

func NewPaste(store *db.Store, blobs blob.Store, lru *cache.LRU, rdb *db.Redis, h *auth.Hasher, c *cfg.Cfg) *Paste {
	if store == nil || blobs == nil || lru == nil || h == nil || c == nil {
		panic("paste service: nil dependency")
	}
	return &Paste{store: store, blobs: blobs, lru: lru, rdb: rdb, hasher: h, cfg: c}
}

// Meta is the locked/metadata view of a paste. Content never travels here.
type Meta struct {
	RequiresPassword bool `json:"requires_password"`
	Expired          bool `json:"expired"`
	RemainingViews   *int `json:"remaining_views"`
	HasFiles         bool `json:"has_files"`
}

// Reveal is a granted view: content plus live attachments.
type Reveal struct {
	Content        string          `json:"content"`
	Files          []domain.Upload `json:"files"`
	RemainingViews *int            `json:"remaining_views"`
}

// Create validates the submission, applies expiry and view-limit defaults,
// persists the paste and claims any referenced uploads. Claiming a missing
// or already-claimed upload id is a silent no-op.
func (p *Paste) Create(ctx context.Context, params domain.CreateParams) (*domain.Paste, error) {
	if strings.TrimSpace(params.Content) == "" && len(params.FileIDs) == 0 {
		return nil, domain.Invalid("content", "text or at least one file is required")
	}
	if len(params.FileIDs) > p.cfg.UploadMaxFiles {
		return nil, domain.Invalid("file_ids", fmt.Sprintf("at most %d files per paste", p.cfg.UploadMaxFiles))
	}
	if int64(len(params.Content)) > p.cfg.MaxPasteSize {
		return nil, domain.Invalid("content", "content too large")
	}
	if params.ExpiryMinutes < 0 {
		return nil, domain.Invalid("expiry_minutes", "expiry must be positive")
	}

	var pwHash, pwSalt, pwParams *string
	if params.EnablePassword {
		if len(params.Password) < p.cfg.MinPasswordLen {
			return nil, domain.Invalid("password", fmt.Sprintf("password must be at least %d characters", p.cfg.MinPasswordLen))
		}
		salt, hash, paramsJSON, err := p.hasher.Hash(params.Password)
		if err != nil {
			return nil, errors.Wrap(err, "hash password")
		}
		pwSalt, pwHash, pwParams = &salt, &hash, &paramsJSON
	}

	now := time.Now()
	// Every paste gets an expiry: the explicit minutes when supplied,
	// otherwise the configured default (7 days out of the box).
	expiresAt := now.Add(p.cfg.DefaultPasteExpiry)
	if params.ExpiryMinutes > 0 {
		expiresAt = now.Add(time.Duration(params.ExpiryMinutes) * time.Minute)
	}

	// Burn-once wins over any explicit view limit.
	var maxViews *int
	if params.BurnOnce {
		one := 1
		maxViews = &one
	} else if params.EnableMaxViews {
		if params.MaxViews <= 0 {
			return nil, domain.Invalid("max_views", "view limit must be positive")
		}
		mv := params.MaxViews
		maxViews = &mv
	}

	id, err := util.GenID(func(id string) (bool, error) {
		return p.store.PasteExists(ctx, id)
	})
	if err != nil {
		return nil, domain.ErrIDGenerationFailed
	}

	paste := &domain.Paste{
		ID:        id,
		Content:   params.Content,
		PwHash:    pwHash,
		PwSalt:    pwSalt,
		PwParams:  pwParams,
		ExpiresAt: expiresAt,
		MaxViews:  maxViews,
		Views:     0,
		CreatedAt: now,
	}
	if err := p.store.CreatePaste(ctx, paste); err != nil {
		return nil, errors.Wrap(err, "create paste")
	}

	if len(params.FileIDs) > 0 {
		claimed, err := p.store.ClaimUploads(ctx, id, params.FileIDs)
		if err != nil {
			return nil, errors.Wrap(err, "claim uploads")
		}
		if int(claimed) < len(params.FileIDs) {
			util.Warn().
				Str("paste_id", id).
				Int64("claimed", claimed).
				Int("requested", len(params.FileIDs)).
				Msg("some file ids were stale or already claimed")
		}
	}

	metrics.PasteCreated.Inc()
	return paste, nil
}

// Meta returns the metadata view. It never consumes a view and never leaks
// content; an expired paste reports expired=true before anything else.
func (p *Paste) Meta(ctx context.Context, id string) (*Meta, error) {
	paste, err := p.store.GetPaste(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Meta{
		RequiresPassword: paste.Protected(),
		Expired:          paste.Expired(time.Now()),
		RemainingViews:   paste.RemainingViews(),
		HasFiles:         len(paste.Uploads) > 0,
	}, nil
}

// Reveal grants content for pastes without a password, consuming one view.
func (p *Paste) Reveal(ctx context.Context, id string) (*Reveal, error) {
	paste, err := p.store.GetPaste(ctx, id)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if paste.Expired(now) {
		return nil, domain.ErrPasteExpired
	}
	if paste.Protected() {
		return nil, domain.ErrPasswordRequired
	}
	return p.grant(ctx, paste, now)
}

// Unlock verifies the password and grants content, consuming one view.
// Expiry is evaluated before the password state so an expired paste answers
// the same way whether or not the password is right.
func (p *Paste) Unlock(ctx context.Context, id, password string) (*Reveal, error) {
	paste, err := p.store.GetPaste(ctx, id)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if paste.Expired(now) {
		return nil, domain.ErrPasteExpired
	}
	if !paste.Protected() {
		return nil, domain.Invalid("password", "paste has no password")
	}
	if password == "" {
		return nil, domain.Invalid("password", "password is required")
	}
	ok, err := p.hasher.Verify(password, *paste.PwSalt, *paste.PwHash, *paste.PwParams)
	if err != nil {
		return nil, errors.Wrap(err, "verify password")
	}
	if !ok {
		metrics.UnlockFailed.Inc()
		return nil, domain.ErrInvalidPassword
	}
	return p.grant(ctx, paste, now)
}

// grant couples the reveal to the conditional view increment: if the update
// matches no row the paste ran out of views (or expired) under our feet and
// the caller sees the same terminal expiry state a later request would.
func (p *Paste) grant(ctx context.Context, paste *domain.Paste, now time.Time) (*Reveal, error) {
	consumed, err := p.store.ConsumeView(ctx, paste.ID, now)
	if err != nil {
		return nil, errors.Wrap(err, "consume view")
	}
	if !consumed {
		return nil, domain.ErrPasteExpired
	}
	paste.Views++
	files := make([]domain.Upload, 0, len(paste.Uploads))
	for _, u := range paste.Uploads {
		if !u.Expired(now) {
			files = append(files, u)
		}
	}
	metrics.PasteRevealed.Inc()
	return &Reveal{
		Content:        paste.Content,
		Files:          files,
		RemainingViews: paste.RemainingViews(),
	}, nil
}

// FileInput is one file from a multipart submission.
type FileInput struct {
	Name string
	Mime string
	Data []byte
}

var unsafeNameChars = regexp.MustCompile(`[^\w.\-]`)

// StoreFiles validates the batch, then uploads blobs and inserts records
// concurrently. There is no rollback: files stored before a failure stay
// stored, and the error is surfaced to the caller.
func (p *Paste) StoreFiles(ctx context.Context, files []FileInput) ([]domain.Upload, error) {
	if len(files) == 0 {
		return nil, domain.Invalid("files", "select at least one file")
	}
	if len(files) > p.cfg.UploadMaxFiles {
		return nil, domain.Invalid("files", fmt.Sprintf("at most %d files per upload", p.cfg.UploadMaxFiles))
	}
	var total int64
	for _, f := range files {
		if p.cfg.UploadAllowedTypes == "text" && !isTextLike(f.Name, f.Mime) {
			return nil, domain.ErrUnsupportedType
		}
		total += int64(len(f.Data))
	}
	if total > p.cfg.UploadMaxTotalBytes {
		return nil, domain.Invalid("files", fmt.Sprintf("total size must not exceed %d bytes", p.cfg.UploadMaxTotalBytes))
	}

	expiresAt := time.Now().Add(p.cfg.UploadTTL)
	results := make([]domain.Upload, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			mime := f.Mime
			if mime == "" {
				mime = "text/plain"
			}
			safeName := unsafeNameChars.ReplaceAllString(norm.NFC.String(f.Name), "_")
			if safeName == "" {
				safeName = "file"
			}
			key := fmt.Sprintf("uploads/%d-%s-%s", time.Now().UnixMilli(), uuid.New().String()[:8], safeName)
			put, err := p.blobs.Put(gctx, key, f.Data, mime)
			if err != nil {
				return errors.Wrap(err, "store blob")
			}
			id, err := util.NewID()
			if err != nil {
				return errors.Wrap(err, "upload id")
			}
			u := domain.Upload{
				ID:        id,
				Filename:  f.Name,
				URL:       put.URL,
				BlobPath:  put.Pathname,
				Size:      put.Size,
				Mime:      mime,
				ExpiresAt: expiresAt,
				CreatedAt: time.Now(),
			}
			if err := p.store.CreateUpload(gctx, &u); err != nil {
				return errors.Wrap(err, "record upload")
			}
			results[i] = u
			metrics.UploadStored.Inc()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Download resolves an upload for the redirect path, cache tiers first.
// Expiry is always re-checked against the wall clock, so serving from cache
// cannot outlive the record.
func (p *Paste) Download(ctx context.Context, id string) (*domain.Upload, error) {
	now := time.Now()
	if u := p.lru.Get(id); u != nil {
		metrics.CacheHits.Inc()
		if u.Expired(now) {
			return nil, domain.ErrUploadExpired
		}
		return u, nil
	}
	if p.rdb != nil {
		if u, err := p.rdb.GetUpload(ctx, id); err == nil && u != nil {
			metrics.CacheHits.Inc()
			p.lru.Set(u, time.Until(u.ExpiresAt))
			if u.Expired(now) {
				return nil, domain.ErrUploadExpired
			}
			return u, nil
		}
	}
	metrics.CacheMisses.Inc()
	u, err := p.store.GetUpload(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.Expired(now) {
		return nil, domain.ErrUploadExpired
	}
	ttl := time.Until(u.ExpiresAt)
	p.lru.Set(u, ttl)
	if p.rdb != nil {
		if err := p.rdb.CacheUpload(ctx, u, ttl); err != nil {
			util.Warn().Err(err).Str("id", id).Msg("failed to cache upload in redis")
		}
	}
	return u, nil
}

var textExtensions = map[string]bool{
	"txt": true, "md": true, "markdown": true, "csv": true, "tsv": true,
	"json": true, "jsonl": true, "log": true, "xml": true,
	"yaml": true, "yml": true, "ini": true, "conf": true, "cfg": true,
	"properties": true, "env": true,
	"sh": true, "bash": true, "zsh": true, "bat": true, "cmd": true, "ps1": true,
	"py": true, "js": true, "ts": true, "tsx": true, "jsx": true, "mjs": true, "cjs": true,
	"java": true, "kt": true, "go": true, "rs": true, "rb": true, "php": true,
	"c": true, "h": true, "cpp": true, "hpp": true, "cs": true, "swift": true,
	"sql": true,
}

func isTextLike(filename, mime string) bool {
	lower := strings.ToLower(mime)
	if strings.HasPrefix(lower, "text/") {
		return true
	}
	if lower == "application/json" || lower == "application/xml" {
		return true
	}
	idx := strings.LastIndex(filename, ".")
	if idx < 0 || idx == len(filename)-1 {
		return false
	}
	return textExtensions[strings.ToLower(filename[idx+1:])]
}
