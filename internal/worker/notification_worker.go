package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/notify"
	"github.com/spec-kit/helpdesk/internal/observability"
)

// ErrQueueFull is returned by Enqueue when the buffer is saturated.
var ErrQueueFull = errors.New("notification queue full")

// ErrStopped is returned by Enqueue after Stop.
var ErrStopped = errors.New("notification worker stopped")

const sendTimeout = 30 * time.Second

// NotificationWorker delivers emails on a fixed pool of goroutines.
type NotificationWorker struct {
	mailer  notify.Mailer
	logger  *zap.Logger
	metrics *observability.Metrics
	workers int

	queue   chan notify.Message
	wg      sync.WaitGroup
	mu      sync.RWMutex
	stopped bool
}

// NewNotificationWorker builds a worker; call Start before enqueueing.
func NewNotificationWorker(mailer notify.Mailer, workers, queueSize int, logger *zap.Logger, metrics *observability.Metrics) *NotificationWorker {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	return &NotificationWorker{
		mailer:  mailer,
		logger:  logger,
		metrics: metrics,
		workers: workers,
		queue:   make(chan notify.Message, queueSize),
	}
}

// Start launches the pool.
func (w *NotificationWorker) Start() {
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.run()
	}
	w.logger.Info("notification worker started", zap.Int("workers", w.workers))
}

func (w *NotificationWorker) run() {
	defer w.wg.Done()
	for msg := range w.queue {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		err := w.mailer.Send(ctx, msg)
		cancel()
		if err != nil {
			w.metrics.RecordNotification("failed")
			w.logger.Error("notification delivery failed",
				zap.String("to", msg.To),
				zap.String("subject", msg.Subject),
				zap.Error(err))
			continue
		}
		w.metrics.RecordNotification("sent")
	}
}

// Enqueue hands msg to the pool without blocking.
func (w *NotificationWorker) Enqueue(msg notify.Message) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return ErrStopped
	}
	select {
	case w.queue <- msg:
		return nil
	default:
		w.metrics.RecordNotification("dropped")
		return ErrQueueFull
	}
}

// Stop drains queued messages and waits for the pool to exit.
func (w *NotificationWorker) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	close(w.queue)
	w.mu.Unlock()

	w.wg.Wait()
	w.logger.Info("notification worker stopped")
}
