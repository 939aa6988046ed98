package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitwise74/tmpfile-api/internal/model"
	"bitwise74/tmpfile-api/internal/storage"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RecordManager owns the file records and decides when a stored object is
// no longer referenced and may be removed from the bucket.
type RecordManager struct {
	db    *gorm.DB
	store storage.Store
	ids   *ShortIDAllocator
	now   func() time.Time
}

func NewRecordManager(db *gorm.DB, store storage.Store) (*RecordManager, error) {
	if db == nil {
		return nil, notInitialized("database handle")
	}
	if store == nil {
		return nil, notInitialized("object store")
	}

	m := &RecordManager{db: db, store: store, now: time.Now}
	m.ids = NewShortIDAllocator(m.ShortIDExists)

	return m, nil
}

// ShortIDExists reports whether any record, expired or not, uses id
func (m *RecordManager) ShortIDExists(ctx context.Context, id string) (bool, error) {
	var n int64
	err := m.db.
		WithContext(ctx).
		Model(&model.File{}).
		Where("short_id = ?", id).
		Count(&n).
		Error
	if err != nil {
		return false, err
	}

	return n > 0, nil
}

// Create allocates a short ID for f and inserts it. A unique index on the
// short ID backs the existence check, losing an insert race just triggers
// another allocation.
func (m *RecordManager) Create(ctx context.Context, f *model.File) error {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = m.now().UTC()
	}

	for range maxShortIDAttempts {
		id, err := m.ids.Allocate(ctx)
		if err != nil {
			return err
		}

		f.ShortID = id
		f.ID = 0

		err = m.db.WithContext(ctx).Create(f).Error
		if err == nil {
			return nil
		}

		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("failed to create file record, %w", err)
		}

		zap.L().Debug("Short id taken on insert, retrying", zap.String("short_id", id))
	}

	return fmt.Errorf("%w, every insert collided", ErrIDAllocationExhausted)
}

// ByShortID returns ErrNotFound for unknown IDs. Expiry is not checked here.
func (m *RecordManager) ByShortID(ctx context.Context, id string) (*model.File, error) {
	return m.first(ctx, "short_id = ?", id)
}

// ByStorageKey returns the longest lived record pointing at key. Records
// without an expiry come first, then the latest expiry, so an expired row
// only comes back when every record of the key is expired.
func (m *RecordManager) ByStorageKey(ctx context.Context, key string) (*model.File, error) {
	var f model.File

	err := m.db.
		WithContext(ctx).
		Where("storage_key = ?", key).
		Order("expires_at IS NULL DESC").
		Order("expires_at DESC").
		Order("created_at DESC").
		First(&f).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("failed to query by storage key, %w", err)
	}

	return &f, nil
}

// ByDigest returns the most recent record with the given content digest or
// nil if the content was never seen before
func (m *RecordManager) ByDigest(ctx context.Context, digest string) (*model.File, error) {
	var f model.File

	err := m.db.
		WithContext(ctx).
		Where("content_digest = ?", digest).
		Order("created_at DESC").
		First(&f).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to query by digest, %w", err)
	}

	return &f, nil
}

func (m *RecordManager) first(ctx context.Context, query string, arg any) (*model.File, error) {
	var f model.File

	err := m.db.
		WithContext(ctx).
		Where(query, arg).
		First(&f).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("failed to fetch file record, %w", err)
	}

	return &f, nil
}

// IncrementDownloads bumps the download counter by one
func (m *RecordManager) IncrementDownloads(ctx context.Context, id string) error {
	res := m.db.
		WithContext(ctx).
		Model(&model.File{}).
		Where("short_id = ?", id).
		Update("download_count", gorm.Expr("download_count + ?", 1))
	if res.Error != nil {
		return fmt.Errorf("failed to increment download count, %w", res.Error)
	}

	if res.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// ForceExpire sets the expiry to now. The sweeper removes the record later.
func (m *RecordManager) ForceExpire(ctx context.Context, id string) error {
	res := m.db.
		WithContext(ctx).
		Model(&model.File{}).
		Where("short_id = ?", id).
		Update("expires_at", m.now().UTC())
	if res.Error != nil {
		return fmt.Errorf("failed to expire file, %w", res.Error)
	}

	if res.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// References counts the records pointing at a storage key
func (m *RecordManager) References(ctx context.Context, key string) (int64, error) {
	var n int64

	err := m.db.
		WithContext(ctx).
		Model(&model.File{}).
		Where("storage_key = ?", key).
		Count(&n).
		Error
	if err != nil {
		return 0, fmt.Errorf("failed to count storage key references, %w", err)
	}

	return n, nil
}

// Delete removes the record and, if it was the last one referencing its
// storage key, the stored object too. The record goes first and references
// are counted afterwards: a reference created in between keeps the object
// alive, the worst case is a dangling object, never a missing one.
func (m *RecordManager) Delete(ctx context.Context, id string) (*model.File, error) {
	f, err := m.ByShortID(ctx, id)
	if err != nil {
		return nil, err
	}

	res := m.db.
		WithContext(ctx).
		Where("short_id = ?", id).
		Delete(&model.File{})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to delete file record, %w", res.Error)
	}

	// Someone else got here first, they own the object release
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}

	m.ReleaseObject(ctx, f.StorageKey)
	return f, nil
}

// ReleaseObject deletes the object under key when no record references it
// anymore. Failures are logged and swallowed since the metadata change is
// the operation of record. Returns whether the object was deleted.
func (m *RecordManager) ReleaseObject(ctx context.Context, key string) bool {
	refs, err := m.References(ctx, key)
	if err != nil {
		zap.L().Warn("Failed to count references, leaving object in place",
			zap.String("key", key),
			zap.Error(err))
		return false
	}

	if refs > 0 {
		zap.L().Debug("Object still referenced", zap.String("key", key), zap.Int64("refs", refs))
		return false
	}

	if err := m.store.Delete(ctx, key); err != nil {
		zap.L().Error("Failed to delete unreferenced object", zap.String("key", key), zap.Error(err))
		return false
	}

	zap.L().Debug("Deleted unreferenced object", zap.String("key", key))
	return true
}

// ListExpired returns up to limit records whose expiry has passed, oldest
// expiry first
func (m *RecordManager) ListExpired(ctx context.Context, limit int) ([]model.File, error) {
	var files []model.File

	err := m.db.
		WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at <= ?", m.now().UTC()).
		Order("expires_at ASC").
		Limit(limit).
		Find(&files).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to query expired files, %w", err)
	}

	return files, nil
}
