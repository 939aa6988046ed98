package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocateFormat(t *testing.T) {
	a := NewShortIDAllocator(func(context.Context, string) (bool, error) { return false, nil })

	for range 100 {
		id, err := a.Allocate(context.Background())
		require.NoError(t, err)
		require.Len(t, id, ShortIDLength)

		for _, r := range id {
			assert.Contains(t, ShortIDAlphabet, string(r))
		}
	}
}

func TestAllocateSkipsTakenIDs(t *testing.T) {
	taken := map[string]bool{"aaaaa": true, "bbbbb": true}
	candidates := []string{"aaaaa", "bbbbb", "ccccc"}

	var calls int
	a := &ShortIDAllocator{
		exists: func(_ context.Context, id string) (bool, error) { return taken[id], nil },
		generate: func() (string, error) {
			id := candidates[calls]
			calls++
			return id, nil
		},
		attempts: maxShortIDAttempts,
	}

	id, err := a.Allocate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ccccc", id)
	assert.Equal(t, 3, calls)
}

func TestAllocateExhausted(t *testing.T) {
	var calls int
	a := &ShortIDAllocator{
		exists: func(context.Context, string) (bool, error) { return true, nil },
		generate: func() (string, error) {
			calls++
			return "AAAAA", nil
		},
		attempts: maxShortIDAttempts,
	}

	_, err := a.Allocate(context.Background())
	require.ErrorIs(t, err, ErrIDAllocationExhausted)
	assert.Equal(t, maxShortIDAttempts, calls)
}

func TestAllocateLookupFailure(t *testing.T) {
	boom := errors.New("db down")
	a := NewShortIDAllocator(func(context.Context, string) (bool, error) { return false, boom })

	_, err := a.Allocate(context.Background())
	require.ErrorIs(t, err, boom)
}

func TestAllocateNotInitialized(t *testing.T) {
	var a *ShortIDAllocator

	_, err := a.Allocate(context.Background())
	require.ErrorIs(t, err, ErrNotInitialized)
}
