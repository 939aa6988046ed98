package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"bitwise74/tmpfile-api/internal/model"
	"bitwise74/tmpfile-api/internal/storage"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&model.File{}))

	t.Cleanup(func() { sqlDB.Close() })
	return db
}

type testEnv struct {
	db      *gorm.DB
	store   *storage.MemoryStore
	records *RecordManager
	svc     *UploadService
	clock   *fakeClock
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()

	db := newTestDB(t)
	store := storage.NewMemoryStore()

	records, err := NewRecordManager(db, store)
	require.NoError(t, err)

	if cfg.MaxStorage == 0 {
		cfg.MaxStorage = 1 << 30
	}
	if cfg.TempDir == "" {
		cfg.TempDir = t.TempDir()
	}

	svc, err := NewUploadService(records, store, cfg)
	require.NoError(t, err)

	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	records.now = clock.Now
	svc.now = clock.Now

	return &testEnv{db: db, store: store, records: records, svc: svc, clock: clock}
}

func (e *testEnv) upload(t *testing.T, body []byte, name string, temporary bool, expiresIn time.Duration) *model.File {
	t.Helper()

	f, err := e.svc.CreateUpload(context.Background(), UploadRequest{
		Body:         strings.NewReader(string(body)),
		OriginalName: name,
		Temporary:    temporary,
		ExpiresIn:    expiresIn,
	})
	require.NoError(t, err)

	return f
}

// sizedStore reports fixed object sizes without holding any data
type sizedStore struct {
	objects []storage.Object
	walkErr error
}

func (s *sizedStore) Put(context.Context, string, io.Reader, string, int64) error { return nil }

func (s *sizedStore) Get(context.Context, string) (io.ReadCloser, error) {
	return nil, storage.ErrObjectNotFound
}

func (s *sizedStore) Stat(_ context.Context, key string) (storage.Object, error) {
	for _, o := range s.objects {
		if o.Key == key {
			return o, nil
		}
	}

	return storage.Object{}, storage.ErrObjectNotFound
}

func (s *sizedStore) Delete(context.Context, string) error { return nil }

func (s *sizedStore) Walk(_ context.Context, fn func(storage.Object) error) error {
	if s.walkErr != nil {
		return s.walkErr
	}

	for _, o := range s.objects {
		if err := fn(o); err != nil {
			return err
		}
	}

	return nil
}
