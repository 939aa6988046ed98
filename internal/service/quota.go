package service

import (
	"context"

	"bitwise74/tmpfile-api/internal/storage"

	"go.uber.org/zap"
)

// QuotaGuard admits new objects against a global capacity. Usage is
// recomputed by walking the whole bucket on every call so out of band
// deletions never cause drift. The check is not atomic with the write that
// follows it, concurrent uploads may overshoot the cap.
type QuotaGuard struct {
	store storage.Store
	max   int64
}

func NewQuotaGuard(store storage.Store, maxBytes int64) *QuotaGuard {
	return &QuotaGuard{store: store, max: maxBytes}
}

// Max returns the configured capacity in bytes
func (q *QuotaGuard) Max() int64 {
	return q.max
}

// Usage sums the size of every stored object
func (q *QuotaGuard) Usage(ctx context.Context) (int64, error) {
	if q == nil || q.store == nil {
		return 0, notInitialized("quota guard")
	}

	var total int64
	err := q.store.Walk(ctx, func(o storage.Object) error {
		total += o.Size
		return nil
	})
	if err != nil {
		return 0, &StorageError{Op: "list", Err: err}
	}

	return total, nil
}

// Admit fails with a *QuotaExceededError when storing incoming more bytes
// would go over capacity
func (q *QuotaGuard) Admit(ctx context.Context, incoming int64) error {
	current, err := q.Usage(ctx)
	if err != nil {
		return err
	}

	if current+incoming > q.max {
		zap.L().Warn("Upload rejected by quota",
			zap.Int64("current", current),
			zap.Int64("incoming", incoming),
			zap.Int64("max", q.max))

		return &QuotaExceededError{Current: current, Max: q.max, Incoming: incoming}
	}

	return nil
}
