package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	errCounterQueueFull = errors.New("download counter queue full")
	errCounterClosed    = errors.New("download counter closed")
)

// DownloadCounter bumps download counts in the background so a slow
// metadata store never holds up a download. Increments are best-effort,
// when the queue is full they're dropped.
type DownloadCounter struct {
	records *RecordManager
	jobs    chan string
	workers int
	pending atomic.Int32
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewDownloadCounter initializes a counter with a bounded queue
func NewDownloadCounter(records *RecordManager, workers, queueSize int) *DownloadCounter {
	if workers < 1 {
		workers = 1
	}

	zap.L().Debug("Initializing download counter", zap.Int("workers", workers), zap.Int("queue_size", queueSize))

	return &DownloadCounter{
		records: records,
		jobs:    make(chan string, queueSize),
		workers: workers,
	}
}

func (d *DownloadCounter) StartWorkerPool() {
	for range d.workers {
		d.wg.Add(1)
		go d.worker()
	}
}

func (d *DownloadCounter) worker() {
	defer d.wg.Done()

	for id := range d.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := d.records.IncrementDownloads(ctx, id)
		cancel()

		d.pending.Add(-1)

		if err != nil && !errors.Is(err, ErrNotFound) {
			zap.L().Error("Failed to increment download count", zap.String("short_id", id), zap.Error(err))
		}
	}
}

// Enqueue never blocks
func (d *DownloadCounter) Enqueue(id string) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return errCounterClosed
	}

	d.pending.Add(1)
	select {
	case d.jobs <- id:
		return nil
	default:
		d.pending.Add(-1)
		zap.L().Warn("Download counter queue is full, dropping increment", zap.String("short_id", id))
		return errCounterQueueFull
	}
}

// Pending returns the number of queued, unprocessed increments
func (d *DownloadCounter) Pending() int32 {
	return d.pending.Load()
}

// Close stops accepting increments and waits for queued ones to finish
func (d *DownloadCounter) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.mu.Unlock()

	d.wg.Wait()
}
