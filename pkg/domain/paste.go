package domain

import (
	"time"
)

// Paste is a shareable text/file bundle with an access policy. Content is
// stored in plaintext; the password material only gates access.
type Paste struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	Content   string    `json:"content"`
	PwHash    *string   `json:"-"`
	PwSalt    *string   `json:"-"`
	PwParams  *string   `json:"-"`
	ExpiresAt time.Time `gorm:"index" json:"expires_at"`
	MaxViews  *int      `json:"max_views,omitempty"`
	Views     int       `gorm:"not null;default:0" json:"views"`
	CreatedAt time.Time `json:"created_at"`
	Uploads   []Upload  `gorm:"foreignKey:PasteID;constraint:OnDelete:CASCADE" json:"-"`
}

// Upload is a single stored file. It expires on its own clock, independent
// of any paste it is attached to.
type Upload struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	Filename  string    `json:"filename"`
	URL       string    `json:"url"`
	BlobPath  string    `json:"-"`
	Size      int64     `json:"size"`
	Mime      string    `json:"mime"`
	ExpiresAt time.Time `gorm:"index" json:"expires_at"`
	PasteID   *string   `gorm:"index" json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

type CreateParams struct {
	Content        string
	EnablePassword bool
	Password       string
	ExpiryMinutes  int
	EnableMaxViews bool
	MaxViews       int
	BurnOnce       bool
	FileIDs        []string
}

// Protected reports whether the paste requires a password. The three
// password columns are written together, so checking the hash is enough.
func (p *Paste) Protected() bool {
	return p.PwHash != nil && *p.PwHash != ""
}

func (p *Paste) ExpiredByTime(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && !p.ExpiresAt.After(now)
}

func (p *Paste) ExpiredByViews() bool {
	return p.MaxViews != nil && p.Views >= *p.MaxViews
}

func (p *Paste) Expired(now time.Time) bool {
	return p.ExpiredByTime(now) || p.ExpiredByViews()
}

// RemainingViews returns max_views minus views clamped to zero, or nil when
// the paste has no view limit.
func (p *Paste) RemainingViews() *int {
	if p.MaxViews == nil {
		return nil
	}
	r := *p.MaxViews - p.Views
	if r < 0 {
		r = 0
	}
	return &r
}

func (u *Upload) Expired(now time.Time) bool {
	return !u.ExpiresAt.IsZero() && !u.ExpiresAt.After(now)
}
