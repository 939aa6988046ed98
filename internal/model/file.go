// Package model defines database models
package model

import "time"

// File is one upload event. Several files may point at the same stored
// object when their content is identical.
type File struct {
	ID      uint   `gorm:"primaryKey;autoIncrement" json:"-"`
	ShortID string `gorm:"size:16;uniqueIndex:uniq_short_id;not null" json:"id"`

	// Hex encoded SHA-256 of the exact uploaded bytes
	ContentDigest string `gorm:"size:64;index:idx_content_digest;not null" json:"sha256"`

	// Key of the object in the bucket. Always <ContentDigest><ext> of the
	// first upload of this content, later duplicates inherit it
	StorageKey string `gorm:"index:idx_storage_key;not null" json:"storageKey"`

	OriginalName string `json:"originalName"`
	Extension    string `json:"extension"`
	MimeType     string `json:"mimeType"`
	Size         int64  `gorm:"index:idx_size" json:"size"`

	IsTemporary bool       `json:"isTemporary"`
	ExpiresAt   *time.Time `gorm:"index:idx_expires_at" json:"expiresAt"`
	IsDuplicate bool       `gorm:"index:idx_duplicate_created,priority:1" json:"isDuplicate"`

	DownloadCount int64     `gorm:"not null;default:0" json:"downloadCount"`
	CreatedAt     time.Time `gorm:"not null;index:idx_duplicate_created,priority:2;index:idx_created_at" json:"createdAt"`
}

// Expired reports whether the file is past its expiry at the given time.
// Files without an expiry never expire.
func (f *File) Expired(now time.Time) bool {
	return f.ExpiresAt != nil && !now.Before(*f.ExpiresAt)
}
