package service

import (
	"context"
	"fmt"

	"bitwise74/tmpfile-api/internal/model"

	"gorm.io/gorm"
)

const maxListLimit = 100

var sortColumns = map[string]string{
	"createdAt":     "created_at",
	"size":          "size",
	"downloadCount": "download_count",
	"expiresAt":     "expires_at",
}

// ListFilter narrows down an admin listing. Nil fields are ignored.
type ListFilter struct {
	IsTemporary *bool
	IsDuplicate *bool
	Expired     *bool
	MinSize     *int64
	MaxSize     *int64

	Page      int
	Limit     int
	SortBy    string
	Ascending bool
}

type ListPage struct {
	Files      []model.File `json:"files"`
	Total      int64        `json:"total"`
	Page       int          `json:"page"`
	Limit      int          `json:"limit"`
	TotalPages int          `json:"totalPages"`
}

// List returns one page of records matching f, newest first by default
func (m *RecordManager) List(ctx context.Context, f ListFilter) (*ListPage, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 || f.Limit > maxListLimit {
		f.Limit = 20
	}

	q := m.db.WithContext(ctx).Model(&model.File{})

	if f.IsTemporary != nil {
		q = q.Where("is_temporary = ?", *f.IsTemporary)
	}
	if f.IsDuplicate != nil {
		q = q.Where("is_duplicate = ?", *f.IsDuplicate)
	}
	if f.Expired != nil {
		now := m.now().UTC()
		if *f.Expired {
			q = q.Where("expires_at IS NOT NULL AND expires_at <= ?", now)
		} else {
			q = q.Where("(expires_at IS NULL OR expires_at > ?)", now)
		}
	}
	if f.MinSize != nil {
		q = q.Where("size >= ?", *f.MinSize)
	}
	if f.MaxSize != nil {
		q = q.Where("size <= ?", *f.MaxSize)
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count files, %w", err)
	}

	col, ok := sortColumns[f.SortBy]
	if !ok {
		col = "created_at"
	}
	dir := "DESC"
	if f.Ascending {
		dir = "ASC"
	}

	files := []model.File{}
	err := q.
		Session(&gorm.Session{}).
		Order(col + " " + dir).
		Offset((f.Page - 1) * f.Limit).
		Limit(f.Limit).
		Find(&files).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to list files, %w", err)
	}

	return &ListPage{
		Files:      files,
		Total:      total,
		Page:       f.Page,
		Limit:      f.Limit,
		TotalPages: int((total + int64(f.Limit) - 1) / int64(f.Limit)),
	}, nil
}
