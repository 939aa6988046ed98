package service

import (
	"context"
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	ShortIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	ShortIDLength   = 5

	maxShortIDAttempts = 10
)

// ExistsFunc reports whether a short ID is already taken
type ExistsFunc func(ctx context.Context, id string) (bool, error)

// ShortIDAllocator hands out random public IDs. 62^5 leaves room for
// collisions, so every candidate is checked before it's handed out.
type ShortIDAllocator struct {
	exists   ExistsFunc
	generate func() (string, error)
	attempts int
}

func NewShortIDAllocator(exists ExistsFunc) *ShortIDAllocator {
	return &ShortIDAllocator{
		exists:   exists,
		generate: func() (string, error) { return gonanoid.Generate(ShortIDAlphabet, ShortIDLength) },
		attempts: maxShortIDAttempts,
	}
}

// Allocate returns an unused short ID or ErrIDAllocationExhausted once every
// attempt collided
func (a *ShortIDAllocator) Allocate(ctx context.Context) (string, error) {
	if a == nil || a.exists == nil {
		return "", notInitialized("short id allocator")
	}

	for range a.attempts {
		id, err := a.generate()
		if err != nil {
			return "", fmt.Errorf("failed to generate short id, %w", err)
		}

		taken, err := a.exists(ctx, id)
		if err != nil {
			return "", fmt.Errorf("failed to check short id, %w", err)
		}

		if !taken {
			return id, nil
		}
	}

	return "", fmt.Errorf("%w after %d attempts", ErrIDAllocationExhausted, a.attempts)
}
