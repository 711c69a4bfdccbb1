package db

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"cinderbin/pkg/domain"
)

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.queryTimeout)
}

func (s *Store) CreatePaste(ctx context.Context, p *domain.Paste) error {
	qctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.db.WithContext(qctx).Omit("Uploads").Create(p).Error; err != nil {
		return errors.Wrap(err, "create paste")
	}
	return nil
}

func (s *Store) GetPaste(ctx context.Context, id string) (*domain.Paste, error) {
	qctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var p domain.Paste
	err := s.db.WithContext(qctx).Preload("Uploads").First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrPasteNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get paste")
	}
	return &p, nil
}

func (s *Store) PasteExists(ctx context.Context, id string) (bool, error) {
	qctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var n int64
	if err := s.db.WithContext(qctx).Model(&domain.Paste{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, errors.Wrap(err, "paste exists")
	}
	return n > 0, nil
}

// ConsumeView is the access decision for a reveal: a single conditional
// increment. Zero rows affected means the paste expired (by time or views)
// between the caller's check and this update, or never existed.
func (s *Store) ConsumeView(ctx context.Context, id string, now time.Time) (bool, error) {
	qctx, cancel := s.withTimeout(ctx)
	defer cancel()
	tx := s.db.WithContext(qctx).Model(&domain.Paste{}).
		Where("id = ? AND expires_at > ? AND (max_views IS NULL OR views < max_views)", id, now).
		UpdateColumn("views", gorm.Expr("views + 1"))
	if tx.Error != nil {
		return false, errors.Wrap(tx.Error, "consume view")
	}
	return tx.RowsAffected > 0, nil
}

// ClaimUploads reassigns unclaimed upload rows to the paste. Missing or
// already-claimed ids are skipped silently.
func (s *Store) ClaimUploads(ctx context.Context, pasteID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	qctx, cancel := s.withTimeout(ctx)
	defer cancel()
	tx := s.db.WithContext(qctx).Model(&domain.Upload{}).
		Where("id IN ? AND paste_id IS NULL", ids).
		Update("paste_id", pasteID)
	if tx.Error != nil {
		return 0, errors.Wrap(tx.Error, "claim uploads")
	}
	return tx.RowsAffected, nil
}

// DeletePaste removes the paste row; attached upload rows go with it via the
// storage-layer cascade.
func (s *Store) DeletePaste(ctx context.Context, id string) error {
	qctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.db.WithContext(qctx).Delete(&domain.Paste{}, "id = ?", id).Error; err != nil {
		return errors.Wrap(err, "delete paste")
	}
	return nil
}

func (s *Store) ExpiredPastes(ctx context.Context, now time.Time, limit int) ([]domain.Paste, error) {
	qctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var out []domain.Paste
	err := s.db.WithContext(qctx).Preload("Uploads").
		Where("expires_at <= ?", now).
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, errors.Wrap(err, "list expired pastes")
	}
	return out, nil
}

func (s *Store) CreateUpload(ctx context.Context, u *domain.Upload) error {
	qctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.db.WithContext(qctx).Create(u).Error; err != nil {
		return errors.Wrap(err, "create upload")
	}
	return nil
}

func (s *Store) GetUpload(ctx context.Context, id string) (*domain.Upload, error) {
	qctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var u domain.Upload
	err := s.db.WithContext(qctx).First(&u, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrUploadNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get upload")
	}
	return &u, nil
}

func (s *Store) DeleteUpload(ctx context.Context, id string) error {
	qctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.db.WithContext(qctx).Delete(&domain.Upload{}, "id = ?", id).Error; err != nil {
		return errors.Wrap(err, "delete upload")
	}
	return nil
}

func (s *Store) ExpiredUploads(ctx context.Context, now time.Time, limit int) ([]domain.Upload, error) {
	qctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var out []domain.Upload
	err := s.db.WithContext(qctx).
		Where("expires_at <= ?", now).
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, errors.Wrap(err, "list expired uploads")
	}
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
