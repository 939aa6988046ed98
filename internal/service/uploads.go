package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"bitwise74/tmpfile-api/internal/model"
	"bitwise74/tmpfile-api/internal/storage"

	"go.uber.org/zap"
)

// Config holds the tunables of the upload pipeline
type Config struct {
	Limits     Limits
	MaxStorage int64
	TempDir    string
}

// UploadRequest is a single inbound upload as handed over by the HTTP layer
type UploadRequest struct {
	Body         io.Reader
	OriginalName string
	MimeType     string
	// Defaults to the class matching Temporary
	Class     SizeClass
	Temporary bool
	// Zero means the file never expires
	ExpiresIn time.Duration
}

// Usage is the current bucket usage against its capacity
type Usage struct {
	Used int64 `json:"used"`
	Max  int64 `json:"max"`
}

// UploadService ties the pipeline together: ingest, dedup, quota, store,
// record. It holds no mutable state of its own besides its collaborators.
type UploadService struct {
	ingest  *Ingestor
	dedup   *DedupResolver
	quota   *QuotaGuard
	records *RecordManager
	store   storage.Store
	counter *DownloadCounter
	now     func() time.Time
}

func NewUploadService(records *RecordManager, store storage.Store, cfg Config) (*UploadService, error) {
	if records == nil {
		return nil, notInitialized("record manager")
	}
	if store == nil {
		return nil, notInitialized("object store")
	}

	if cfg.Limits == (Limits{}) {
		cfg.Limits = DefaultLimits
	}

	return &UploadService{
		ingest:  NewIngestor(cfg.Limits, cfg.TempDir),
		dedup:   NewDedupResolver(records),
		quota:   NewQuotaGuard(store, cfg.MaxStorage),
		records: records,
		store:   store,
		now:     time.Now,
	}, nil
}

// UseDownloadCounter routes download count increments through c instead of
// doing them inline
func (s *UploadService) UseDownloadCounter(c *DownloadCounter) {
	s.counter = c
}

// Records exposes the record manager for read-only admin queries
func (s *UploadService) Records() *RecordManager {
	return s.records
}

// CreateUpload runs the full upload pipeline. The stream is consumed once;
// a confirmed duplicate skips both the quota check and the object write
// unless its object turns out to be missing.
func (s *UploadService) CreateUpload(ctx context.Context, req UploadRequest) (*model.File, error) {
	class := req.Class
	if class == "" {
		class = ClassFor(req.Temporary)
	}

	ing, err := s.ingest.Ingest(ctx, req.Body, class, req.OriginalName, req.MimeType)
	if err != nil {
		return nil, err
	}
	defer ing.Close()

	res, err := s.dedup.Resolve(ctx, ing.ContentDigest, ing.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve duplicates, %w", err)
	}

	wrote := false
	if !res.Duplicate {
		if err := s.quota.Admit(ctx, ing.Size); err != nil {
			return nil, err
		}

		body, err := ing.Reader()
		if err != nil {
			return nil, err
		}

		if err := s.store.Put(ctx, res.StorageKey, body, ing.MimeType, ing.Size); err != nil {
			return nil, &StorageError{Op: "put", Key: res.StorageKey, Err: err}
		}
		wrote = true
	}

	now := s.now().UTC()
	f := &model.File{
		ContentDigest: ing.ContentDigest,
		StorageKey:    res.StorageKey,
		OriginalName:  ing.OriginalName,
		Extension:     ing.Extension,
		MimeType:      ing.MimeType,
		Size:          ing.Size,
		IsTemporary:   req.Temporary,
		IsDuplicate:   res.Duplicate,
		CreatedAt:     now,
	}

	if req.ExpiresIn > 0 {
		exp := now.Add(req.ExpiresIn)
		f.ExpiresAt = &exp
	}

	if err := s.records.Create(ctx, f); err != nil {
		// The object we just wrote has no owner now. Drop it unless a
		// concurrent upload of the same content already claimed it.
		if wrote {
			s.records.ReleaseObject(context.WithoutCancel(ctx), res.StorageKey)
		}

		return nil, err
	}

	// The matched record may have lost its object out of band or to a
	// concurrent delete. Our record already counts as a reference here.
	if res.Duplicate {
		if err := s.restoreObject(ctx, ing, res.StorageKey); err != nil {
			if _, derr := s.records.Delete(context.WithoutCancel(ctx), f.ShortID); derr != nil {
				zap.L().Warn("Failed to roll back upload record", zap.String("short_id", f.ShortID), zap.Error(derr))
			}

			return nil, err
		}
	}

	zap.L().Info("Upload stored",
		zap.String("short_id", f.ShortID),
		zap.String("key", f.StorageKey),
		zap.Int64("size", f.Size),
		zap.Bool("duplicate", f.IsDuplicate))

	return f, nil
}

// restoreObject writes the spooled content under key if the store lost it
func (s *UploadService) restoreObject(ctx context.Context, ing *Ingested, key string) error {
	_, err := s.store.Stat(ctx, key)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrObjectNotFound) {
		return &StorageError{Op: "stat", Key: key, Err: err}
	}

	zap.L().Warn("Duplicate points at a missing object, storing it again", zap.String("key", key))

	if err := s.quota.Admit(ctx, ing.Size); err != nil {
		return err
	}

	body, err := ing.Reader()
	if err != nil {
		return err
	}

	if err := s.store.Put(ctx, key, body, ing.MimeType, ing.Size); err != nil {
		return &StorageError{Op: "put", Key: key, Err: err}
	}

	return nil
}

// Info returns the record behind a short ID without touching the object.
// Expired records yield an *ExpiredError even if they weren't swept yet.
func (s *UploadService) Info(ctx context.Context, id string) (*model.File, error) {
	f, err := s.records.ByShortID(ctx, id)
	if err != nil {
		return nil, err
	}

	return s.checkExpiry(f)
}

// InfoByStorageKey looks a record up through its storage key
func (s *UploadService) InfoByStorageKey(ctx context.Context, key string) (*model.File, error) {
	f, err := s.records.ByStorageKey(ctx, key)
	if err != nil {
		return nil, err
	}

	return s.checkExpiry(f)
}

func (s *UploadService) checkExpiry(f *model.File) (*model.File, error) {
	if f.Expired(s.now()) {
		return nil, &ExpiredError{ShortID: f.ShortID, ExpiresAt: *f.ExpiresAt}
	}

	return f, nil
}

// Fetch returns the record and a stream of its content. The caller closes
// the stream.
func (s *UploadService) Fetch(ctx context.Context, id string) (*model.File, io.ReadCloser, error) {
	f, err := s.Info(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	rc, err := s.store.Get(ctx, f.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			zap.L().Warn("Record points at a missing object", zap.String("short_id", id), zap.String("key", f.StorageKey))
			return nil, nil, fmt.Errorf("%w, object missing from storage", ErrNotFound)
		}

		return nil, nil, &StorageError{Op: "get", Key: f.StorageKey, Err: err}
	}

	s.countDownload(ctx, f.ShortID)
	return f, rc, nil
}

func (s *UploadService) countDownload(ctx context.Context, id string) {
	if s.counter != nil {
		_ = s.counter.Enqueue(id)
		return
	}

	if err := s.records.IncrementDownloads(ctx, id); err != nil {
		zap.L().Error("Failed to increment download count", zap.String("short_id", id), zap.Error(err))
	}
}

// Delete removes a record and releases its object if nothing else uses it
func (s *UploadService) Delete(ctx context.Context, id string) error {
	f, err := s.records.Delete(ctx, id)
	if err != nil {
		return err
	}

	zap.L().Info("File deleted", zap.String("short_id", f.ShortID), zap.String("key", f.StorageKey))
	return nil
}

// ForceExpire makes a file unreachable right away
func (s *UploadService) ForceExpire(ctx context.Context, id string) error {
	if err := s.records.ForceExpire(ctx, id); err != nil {
		return err
	}

	zap.L().Info("File force expired", zap.String("short_id", id))
	return nil
}

// Usage walks the bucket, see QuotaGuard.Usage
func (s *UploadService) Usage(ctx context.Context) (*Usage, error) {
	used, err := s.quota.Usage(ctx)
	if err != nil {
		return nil, err
	}

	return &Usage{Used: used, Max: s.quota.Max()}, nil
}

// SweepExpired deletes expired records in batches until none are left.
// Each deletion goes through the reference counted path.
func (s *UploadService) SweepExpired(ctx context.Context, batch int) (int, error) {
	if batch < 1 {
		batch = 500
	}

	var swept int
	for {
		expired, err := s.records.ListExpired(ctx, batch)
		if err != nil {
			return swept, err
		}

		for _, f := range expired {
			if _, err := s.records.Delete(ctx, f.ShortID); err != nil {
				if errors.Is(err, ErrNotFound) {
					continue
				}

				return swept, err
			}
			swept++
		}

		if len(expired) < batch {
			return swept, nil
		}
	}
}
