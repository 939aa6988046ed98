package service

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrUploadTooLarge        = errors.New("upload exceeds maximum allowed size")
	ErrQuotaExceeded         = errors.New("storage quota exceeded")
	ErrIDAllocationExhausted = errors.New("failed to allocate a unique file id")
	ErrNotFound              = errors.New("file not found")
	ErrExpired               = errors.New("file has expired")
	ErrStorageBackend        = errors.New("storage backend failure")
	ErrNotInitialized        = errors.New("dependency not initialized")
)

// UploadTooLargeError is returned the moment an inbound stream crosses the
// ceiling of its size class
type UploadTooLargeError struct {
	Class SizeClass
	Limit int64
}

func (e *UploadTooLargeError) Error() string {
	return fmt.Sprintf("%s upload exceeds %d MiB limit", e.Class, e.Limit>>20)
}

func (e *UploadTooLargeError) Is(target error) bool { return target == ErrUploadTooLarge }

// QuotaExceededError carries the usage figures the admission was rejected with
type QuotaExceededError struct {
	Current  int64
	Max      int64
	Incoming int64
}

func (e *QuotaExceededError) Error() string {
	const gib = float64(1 << 30)
	return fmt.Sprintf("storage quota exceeded. Current: %.2fGB, Max: %.2fGB",
		float64(e.Current)/gib, float64(e.Max)/gib)
}

func (e *QuotaExceededError) Is(target error) bool { return target == ErrQuotaExceeded }

// ExpiredError means the record still exists but must be treated as gone
type ExpiredError struct {
	ShortID   string
	ExpiresAt time.Time
}

func (e *ExpiredError) Error() string {
	return fmt.Sprintf("file %s expired at %s", e.ShortID, e.ExpiresAt.Format(time.RFC3339))
}

func (e *ExpiredError) Is(target error) bool { return target == ErrExpired }

// StorageError wraps an opaque object store failure. It's never retried here.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("storage %s failed, %v", e.Op, e.Err)
	}

	return fmt.Sprintf("storage %s %q failed, %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorageBackend }

func notInitialized(what string) error {
	return fmt.Errorf("%s, %w", what, ErrNotInitialized)
}
