package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"bitwise74/tmpfile-api/internal/model"

	"github.com/sourcegraph/conc/pool"
)

type Overview struct {
	TotalFiles        int64   `json:"totalFiles"`
	TotalStorageBytes int64   `json:"totalStorageBytes"`
	DuplicateUploads  int64   `json:"duplicateUploads"`
	DuplicateRatio    float64 `json:"duplicateRatio"`
	TemporaryFiles    int64   `json:"temporaryFiles"`
	PermanentFiles    int64   `json:"permanentFiles"`
}

type DailyUploads struct {
	Date             string `json:"date"`
	TotalUploads     int64  `json:"totalUploads"`
	UniqueUploads    int64  `json:"uniqueUploads"`
	DuplicateUploads int64  `json:"duplicateUploads"`
}

type DailyDownloads struct {
	Date            string `json:"date"`
	TotalDownloads  int64  `json:"totalDownloads"`
	FilesDownloaded int64  `json:"filesDownloaded"`
}

type DuplicatedContent struct {
	ContentDigest  string `json:"sha256"`
	DuplicateCount int64  `json:"duplicateCount"`
	OriginalName   string `json:"originalName"`
	Size           int64  `json:"size"`
	StorageKey     string `json:"storageKey"`
}

type TopFiles struct {
	MostDownloaded []model.File        `json:"mostDownloaded"`
	Largest        []model.File        `json:"largest"`
	MostDuplicated []DuplicatedContent `json:"mostDuplicated"`
}

// Overview aggregates over every record. Sizes are logical, duplicates count
// once per upload even though they share one object.
func (m *RecordManager) Overview(ctx context.Context) (*Overview, error) {
	var row struct {
		Total int64
		Size  int64
		Dups  int64
		Temps int64
	}

	err := m.db.
		WithContext(ctx).
		Model(&model.File{}).
		Select(`COUNT(*) AS total,
			COALESCE(SUM(size), 0) AS size,
			COALESCE(SUM(CASE WHEN is_duplicate THEN 1 ELSE 0 END), 0) AS dups,
			COALESCE(SUM(CASE WHEN is_temporary THEN 1 ELSE 0 END), 0) AS temps`).
		Scan(&row).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate file stats, %w", err)
	}

	o := &Overview{
		TotalFiles:        row.Total,
		TotalStorageBytes: row.Size,
		DuplicateUploads:  row.Dups,
		TemporaryFiles:    row.Temps,
		PermanentFiles:    row.Total - row.Temps,
	}

	if row.Total > 0 {
		o.DuplicateRatio = float64(row.Dups) / float64(row.Total)
	}

	return o, nil
}

// UploadsPerDay buckets the uploads of the last days by UTC day. Bucketing
// happens here instead of in SQL since sqlite and postgres disagree on date
// formatting.
func (m *RecordManager) UploadsPerDay(ctx context.Context, days int) ([]DailyUploads, error) {
	var rows []struct {
		CreatedAt   time.Time
		IsDuplicate bool
	}

	err := m.db.
		WithContext(ctx).
		Model(&model.File{}).
		Select("created_at", "is_duplicate").
		Where("created_at >= ?", m.since(days)).
		Scan(&rows).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to query upload stats, %w", err)
	}

	buckets := make(map[string]*DailyUploads)
	for _, r := range rows {
		day := r.CreatedAt.UTC().Format(time.DateOnly)

		b, ok := buckets[day]
		if !ok {
			b = &DailyUploads{Date: day}
			buckets[day] = b
		}

		b.TotalUploads++
		if r.IsDuplicate {
			b.DuplicateUploads++
		} else {
			b.UniqueUploads++
		}
	}

	out := make([]DailyUploads, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })

	return out, nil
}

// DownloadsPerDay sums download counts of files uploaded in the last days,
// grouped by upload day
func (m *RecordManager) DownloadsPerDay(ctx context.Context, days int) ([]DailyDownloads, error) {
	var rows []struct {
		CreatedAt     time.Time
		DownloadCount int64
	}

	err := m.db.
		WithContext(ctx).
		Model(&model.File{}).
		Select("created_at", "download_count").
		Where("created_at >= ? AND download_count > 0", m.since(days)).
		Scan(&rows).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to query download stats, %w", err)
	}

	buckets := make(map[string]*DailyDownloads)
	for _, r := range rows {
		day := r.CreatedAt.UTC().Format(time.DateOnly)

		b, ok := buckets[day]
		if !ok {
			b = &DailyDownloads{Date: day}
			buckets[day] = b
		}

		b.TotalDownloads += r.DownloadCount
		b.FilesDownloaded++
	}

	out := make([]DailyDownloads, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })

	return out, nil
}

func (m *RecordManager) since(days int) time.Time {
	if days < 1 {
		days = 30
	}

	return m.now().UTC().AddDate(0, 0, -days)
}

// Top runs the three leaderboards concurrently
func (m *RecordManager) Top(ctx context.Context, limit int) (*TopFiles, error) {
	if limit < 1 || limit > maxListLimit {
		limit = 10
	}

	top := &TopFiles{
		MostDownloaded: []model.File{},
		Largest:        []model.File{},
		MostDuplicated: []DuplicatedContent{},
	}

	p := pool.New().WithContext(ctx).WithCancelOnError()

	p.Go(func(ctx context.Context) error {
		return m.db.
			WithContext(ctx).
			Where("download_count > 0").
			Order("download_count DESC").
			Limit(limit).
			Find(&top.MostDownloaded).
			Error
	})

	p.Go(func(ctx context.Context) error {
		return m.db.
			WithContext(ctx).
			Order("size DESC").
			Limit(limit).
			Find(&top.Largest).
			Error
	})

	p.Go(func(ctx context.Context) error {
		return m.db.
			WithContext(ctx).
			Model(&model.File{}).
			Select(`content_digest,
				COUNT(*) AS duplicate_count,
				MIN(original_name) AS original_name,
				MAX(size) AS size,
				MIN(storage_key) AS storage_key`).
			Group("content_digest").
			Having("COUNT(*) > 1").
			Order("duplicate_count DESC").
			Limit(limit).
			Scan(&top.MostDuplicated).
			Error
	})

	if err := p.Wait(); err != nil {
		return nil, fmt.Errorf("failed to query top files, %w", err)
	}

	return top, nil
}
