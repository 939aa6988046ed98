package service

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"bitwise74/tmpfile-api/internal/model"
	"bitwise74/tmpfile-api/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()

	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)

	return b
}

func objectCount(t *testing.T, s storage.Store) int {
	t.Helper()

	var n int
	require.NoError(t, s.Walk(context.Background(), func(storage.Object) error {
		n++
		return nil
	}))

	return n
}

func TestNewUploadServiceRequiresDependencies(t *testing.T) {
	_, err := NewUploadService(nil, storage.NewMemoryStore(), Config{})
	require.ErrorIs(t, err, ErrNotInitialized)

	_, err = NewRecordManager(nil, storage.NewMemoryStore())
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestUploadRoundTrip(t *testing.T) {
	env := newTestEnv(t, Config{})
	data := randomBytes(t, 256<<10)

	f := env.upload(t, data, "notes.txt", false, 0)
	assert.Len(t, f.ShortID, ShortIDLength)
	assert.False(t, f.IsDuplicate)
	assert.Nil(t, f.ExpiresAt)

	got, rc, err := env.svc.Fetch(context.Background(), f.ShortID)
	require.NoError(t, err)
	defer rc.Close()

	body, err := io.ReadAll(rc)
	require.NoError(t, err)

	sum := sha256.Sum256(body)
	assert.Equal(t, f.ContentDigest, hex.EncodeToString(sum[:]))
	assert.Equal(t, data, body)
	assert.Equal(t, f.StorageKey, got.StorageKey)

	// No counter attached, the increment happened inline
	info, err := env.svc.Info(context.Background(), f.ShortID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, info.DownloadCount)
}

func TestUploadDeduplicates(t *testing.T) {
	env := newTestEnv(t, Config{})
	data := randomBytes(t, 10<<20)

	first := env.upload(t, data, "a.bin", false, 0)
	second := env.upload(t, data, "a.bin", false, 0)

	assert.NotEqual(t, first.ShortID, second.ShortID)
	assert.Equal(t, first.StorageKey, second.StorageKey)
	assert.False(t, first.IsDuplicate)
	assert.True(t, second.IsDuplicate)
	assert.Equal(t, 1, objectCount(t, env.store))

	usage, err := env.svc.Usage(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 10<<20, usage.Used)
}

func TestDuplicateInheritsFirstKey(t *testing.T) {
	env := newTestEnv(t, Config{})
	data := []byte("same bytes, different names")

	first := env.upload(t, data, "one.txt", false, 0)
	second := env.upload(t, data, "two.md", false, 0)

	assert.Equal(t, first.StorageKey, second.StorageKey)
	assert.Equal(t, ".md", second.Extension)
	assert.Equal(t, "two.md", second.OriginalName)
}

func TestDuplicateSkipsQuota(t *testing.T) {
	env := newTestEnv(t, Config{MaxStorage: 1 << 20})
	data := randomBytes(t, 600<<10)

	env.upload(t, data, "a.bin", false, 0)

	// A second distinct object wouldn't fit, the same content does
	dup := env.upload(t, data, "b.bin", false, 0)
	assert.True(t, dup.IsDuplicate)

	_, err := env.svc.CreateUpload(context.Background(), UploadRequest{
		Body:         bytes.NewReader(randomBytes(t, 600<<10)),
		OriginalName: "c.bin",
	})
	require.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Equal(t, 1, objectCount(t, env.store))
}

func TestUploadTooLargeStoresNothing(t *testing.T) {
	env := newTestEnv(t, Config{Limits: Limits{Temporary: 2048, Permanent: 1024}})

	_, err := env.svc.CreateUpload(context.Background(), UploadRequest{
		Body:         bytes.NewReader(make([]byte, 1500)),
		OriginalName: "big.bin",
	})
	require.ErrorIs(t, err, ErrUploadTooLarge)

	var n int64
	require.NoError(t, env.db.Model(&model.File{}).Count(&n).Error)
	assert.Zero(t, n)
	assert.Zero(t, objectCount(t, env.store))

	// Same size is fine for the temporary class
	env.upload(t, make([]byte, 1500), "big.bin", true, time.Hour)
}

func TestDeleteKeepsSharedObject(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()
	data := randomBytes(t, 10<<20)

	a := env.upload(t, data, "a.bin", false, 0)
	b := env.upload(t, data, "a.bin", false, 0)
	assert.False(t, a.IsDuplicate)
	assert.True(t, b.IsDuplicate)
	assert.Equal(t, a.StorageKey, b.StorageKey)

	require.NoError(t, env.svc.Delete(ctx, a.ShortID))
	assert.Equal(t, 1, objectCount(t, env.store))

	_, rc, err := env.svc.Fetch(ctx, b.ShortID)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, data, got)

	require.NoError(t, env.svc.Delete(ctx, b.ShortID))
	assert.Zero(t, objectCount(t, env.store))

	_, _, err = env.svc.Fetch(ctx, b.ShortID)
	require.ErrorIs(t, err, ErrNotFound)

	err = env.svc.Delete(ctx, b.ShortID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDuplicateRestoresMissingObject(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()
	data := randomBytes(t, 64<<10)

	first := env.upload(t, data, "x.bin", false, 0)
	require.NoError(t, env.store.Delete(ctx, first.StorageKey))

	second := env.upload(t, data, "x.bin", false, 0)
	assert.True(t, second.IsDuplicate)
	assert.Equal(t, first.StorageKey, second.StorageKey)

	_, rc, err := env.svc.Fetch(ctx, second.ShortID)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, data, got)

	// The first record shares the key and is served again too
	_, rc, err = env.svc.Fetch(ctx, first.ShortID)
	require.NoError(t, err)
	rc.Close()
}

func TestDuplicateRestoreRespectsQuota(t *testing.T) {
	env := newTestEnv(t, Config{MaxStorage: 1 << 20})
	ctx := context.Background()
	data := randomBytes(t, 600<<10)

	first := env.upload(t, data, "x.bin", false, 0)
	require.NoError(t, env.store.Delete(ctx, first.StorageKey))

	filler := randomBytes(t, 600<<10)
	require.NoError(t, env.store.Put(ctx, "filler", bytes.NewReader(filler), "", int64(len(filler))))

	_, err := env.svc.CreateUpload(ctx, UploadRequest{
		Body:         bytes.NewReader(data),
		OriginalName: "x.bin",
	})
	require.ErrorIs(t, err, ErrQuotaExceeded)

	var n int64
	require.NoError(t, env.db.Model(&model.File{}).Count(&n).Error)
	assert.EqualValues(t, 1, n)

	_, err = env.store.Stat(ctx, first.StorageKey)
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)
}

func TestExpiredIsUnreachable(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	f := env.upload(t, []byte("short lived"), "tmp.txt", true, time.Minute)
	require.NotNil(t, f.ExpiresAt)

	_, err := env.svc.Info(ctx, f.ShortID)
	require.NoError(t, err)

	env.clock.Advance(time.Minute)

	_, err = env.svc.Info(ctx, f.ShortID)
	require.ErrorIs(t, err, ErrExpired)

	_, _, err = env.svc.Fetch(ctx, f.ShortID)
	require.ErrorIs(t, err, ErrExpired)

	var ee *ExpiredError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, f.ShortID, ee.ShortID)
}

func TestForceExpire(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	f := env.upload(t, []byte("permanent"), "p.txt", false, 0)
	require.NoError(t, env.svc.ForceExpire(ctx, f.ShortID))

	_, _, err := env.svc.Fetch(ctx, f.ShortID)
	require.ErrorIs(t, err, ErrExpired)

	require.ErrorIs(t, env.svc.ForceExpire(ctx, "nope0"), ErrNotFound)
}

func TestFetchUnknown(t *testing.T) {
	env := newTestEnv(t, Config{})

	_, _, err := env.svc.Fetch(context.Background(), "zzzzz")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFetchMissingObject(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	f := env.upload(t, []byte("gone"), "g.txt", false, 0)
	require.NoError(t, env.store.Delete(ctx, f.StorageKey))

	_, _, err := env.svc.Fetch(ctx, f.ShortID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestInfoByStorageKey(t *testing.T) {
	env := newTestEnv(t, Config{})

	f := env.upload(t, []byte("by key"), "k.txt", false, 0)

	got, err := env.svc.InfoByStorageKey(context.Background(), f.StorageKey)
	require.NoError(t, err)
	assert.Equal(t, f.ShortID, got.ShortID)
}

func TestInfoByStorageKeyPrefersLiveRecord(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()
	data := []byte("shared between an expired and a live record")

	short := env.upload(t, data, "s.txt", true, time.Minute)
	long := env.upload(t, data, "s.txt", true, time.Hour)
	require.Equal(t, short.StorageKey, long.StorageKey)

	env.clock.Advance(2 * time.Minute)

	got, err := env.svc.InfoByStorageKey(ctx, short.StorageKey)
	require.NoError(t, err)
	assert.Equal(t, long.ShortID, got.ShortID)

	env.clock.Advance(2 * time.Hour)

	_, err = env.svc.InfoByStorageKey(ctx, short.StorageKey)
	require.ErrorIs(t, err, ErrExpired)
}

func TestConcurrentUploadsGetDistinctIDs(t *testing.T) {
	env := newTestEnv(t, Config{})

	const n = 20
	ids := make(chan string, n)

	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()

			f, err := env.svc.CreateUpload(context.Background(), UploadRequest{
				Body:         bytes.NewReader([]byte{byte(i)}),
				OriginalName: "c.bin",
			})
			if assert.NoError(t, err) {
				ids <- f.ShortID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		assert.False(t, seen[id], "duplicate short id %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
}

func TestCreateRetriesOnInsertCollision(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	existing := &model.File{ShortID: "AAAAA", ContentDigest: "d", StorageKey: "d", CreatedAt: env.clock.Now()}
	require.NoError(t, env.db.Create(existing).Error)

	candidates := []string{"AAAAA", "BBBBB"}
	var calls int
	env.records.ids = &ShortIDAllocator{
		// Pretend the lookup raced with the existing insert
		exists: func(context.Context, string) (bool, error) { return false, nil },
		generate: func() (string, error) {
			id := candidates[calls%len(candidates)]
			calls++
			return id, nil
		},
		attempts: 1,
	}

	f := &model.File{ContentDigest: "e", StorageKey: "e"}
	require.NoError(t, env.records.Create(ctx, f))
	assert.Equal(t, "BBBBB", f.ShortID)
}

func TestOrphanReleasedWhenRecordFails(t *testing.T) {
	env := newTestEnv(t, Config{})

	env.records.ids = &ShortIDAllocator{
		exists:   func(context.Context, string) (bool, error) { return true, nil },
		generate: func() (string, error) { return "XXXXX", nil },
		attempts: 3,
	}

	_, err := env.svc.CreateUpload(context.Background(), UploadRequest{
		Body:         bytes.NewReader([]byte("orphan")),
		OriginalName: "o.txt",
	})
	require.ErrorIs(t, err, ErrIDAllocationExhausted)
	assert.Zero(t, objectCount(t, env.store))
}

type failingStore struct {
	*storage.MemoryStore
}

func (failingStore) Put(context.Context, string, io.Reader, string, int64) error {
	return errors.New("bucket unreachable")
}

func TestStorageFailureLeavesNoRecord(t *testing.T) {
	db := newTestDB(t)
	store := failingStore{storage.NewMemoryStore()}

	records, err := NewRecordManager(db, store)
	require.NoError(t, err)
	svc, err := NewUploadService(records, store, Config{MaxStorage: 1 << 30, TempDir: t.TempDir()})
	require.NoError(t, err)

	_, err = svc.CreateUpload(context.Background(), UploadRequest{
		Body:         bytes.NewReader([]byte("x")),
		OriginalName: "x.txt",
	})
	require.ErrorIs(t, err, ErrStorageBackend)

	var n int64
	require.NoError(t, db.Model(&model.File{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestSweepExpired(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()
	shared := []byte("shared between a temp and a permanent file")

	keep := env.upload(t, shared, "keep.txt", false, 0)
	env.upload(t, shared, "temp.txt", true, time.Minute)
	env.upload(t, []byte("alone"), "alone.txt", true, time.Minute)
	env.upload(t, []byte("later"), "later.txt", true, time.Hour)

	env.clock.Advance(2 * time.Minute)

	n, err := env.svc.SweepExpired(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var left int64
	require.NoError(t, env.db.Model(&model.File{}).Count(&left).Error)
	assert.EqualValues(t, 2, left)
	assert.Equal(t, 2, objectCount(t, env.store))

	_, rc, err := env.svc.Fetch(ctx, keep.ShortID)
	require.NoError(t, err)
	rc.Close()
}

func TestList(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	env.upload(t, []byte("1"), "a.txt", false, 0)
	env.clock.Advance(time.Second)
	env.upload(t, []byte("22"), "b.txt", true, time.Minute)
	env.clock.Advance(time.Second)
	env.upload(t, []byte("22"), "c.txt", true, time.Hour)
	env.clock.Advance(2 * time.Minute)

	page, err := env.records.List(ctx, ListFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, page.Total)
	require.Len(t, page.Files, 3)
	assert.Equal(t, "c.txt", page.Files[0].OriginalName)

	yes := true
	page, err = env.records.List(ctx, ListFilter{IsDuplicate: &yes})
	require.NoError(t, err)
	require.Len(t, page.Files, 1)
	assert.Equal(t, "c.txt", page.Files[0].OriginalName)

	page, err = env.records.List(ctx, ListFilter{Expired: &yes})
	require.NoError(t, err)
	require.Len(t, page.Files, 1)
	assert.Equal(t, "b.txt", page.Files[0].OriginalName)

	minSize := int64(2)
	page, err = env.records.List(ctx, ListFilter{MinSize: &minSize, SortBy: "createdAt", Ascending: true, Limit: 1})
	require.NoError(t, err)
	assert.EqualValues(t, 2, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Files, 1)
	assert.Equal(t, "b.txt", page.Files[0].OriginalName)
}
