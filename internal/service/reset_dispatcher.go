package service

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	defaultResetQueueSize = 100
	resetJobTimeout       = 30 * time.Second
)

// ResetDispatcher runs PasswordService.RequestReset off the request path, so
// the forgot-password response takes the same time whether or not an email
// is sent. Nothing account-dependent ever runs on the caller's goroutine.
type ResetDispatcher struct {
	passwords PasswordService
	logger    *slog.Logger
	queue     chan string

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewResetDispatcher creates a dispatcher and starts its worker.
func NewResetDispatcher(passwords PasswordService, logger *slog.Logger, queueSize int) *ResetDispatcher {
	if queueSize <= 0 {
		queueSize = defaultResetQueueSize
	}
	d := &ResetDispatcher{
		passwords: passwords,
		logger:    logger,
		queue:     make(chan string, queueSize),
	}
	d.wg.Add(1)
	go d.worker()
	return d
}

func (d *ResetDispatcher) worker() {
	defer d.wg.Done()
	for email := range d.queue {
		d.process(context.Background(), email)
	}
}

func (d *ResetDispatcher) process(ctx context.Context, email string) {
	ctx, cancel := context.WithTimeout(ctx, resetJobTimeout)
	defer cancel()
	if err := d.passwords.RequestReset(ctx, email); err != nil {
		d.logger.ErrorContext(ctx, "password reset request failed", "err", err)
	}
}

// Enqueue schedules a reset request for email and never waits for it. When
// the queue is full or the dispatcher is closed the request is dropped and
// Enqueue reports false. The request context only carries log attributes; the
// worker runs detached from it.
func (d *ResetDispatcher) Enqueue(ctx context.Context, email string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.logger.ErrorContext(ctx, "reset dispatcher closed, dropping request")
		return false
	}
	select {
	case d.queue <- email:
		return true
	default:
		d.logger.ErrorContext(ctx, "reset queue full, dropping request", "capacity", cap(d.queue))
		return false
	}
}

// Close stops accepting work and waits for queued requests to finish.
func (d *ResetDispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}
