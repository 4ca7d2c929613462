package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/purchase-workflow/internal/application/port"
	"github.com/garyjia/purchase-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/purchase-workflow/internal/domain/workflow"
)

// OverdueNotifier delivers a reminder for a request that waited too long
type OverdueNotifier interface {
	NotifyOverdue(ctx context.Context, req *entity.PurchaseRequest, waited time.Duration) error
}

// ReminderWorkerConfig holds configuration for the urgency reminder worker
type ReminderWorkerConfig struct {
	Interval    time.Duration
	UrgentAfter time.Duration
}

// DefaultReminderWorkerConfig returns default configuration
func DefaultReminderWorkerConfig() ReminderWorkerConfig {
	return ReminderWorkerConfig{
		Interval:    time.Hour,
		UrgentAfter: 72 * time.Hour,
	}
}

// ReminderWorker periodically reminds stage owners about requests stuck before approval.
// A request is reminded once per version; any save re-arms it.
type ReminderWorker struct {
	config      ReminderWorkerConfig
	requestRepo port.RequestRepository
	notifier    OverdueNotifier
	logger      *zap.Logger
	now         func() time.Time

	mu            sync.RWMutex
	ctx           context.Context
	cancel        context.CancelFunc
	done          chan struct{}
	isRunning     bool
	reminded      map[int64]int64
	remindedCount int
	failedCount   int
	lastRun       time.Time
	lastError     error
}

// NewReminderWorker creates a new urgency reminder worker
func NewReminderWorker(
	config ReminderWorkerConfig,
	requestRepo port.RequestRepository,
	notifier OverdueNotifier,
	logger *zap.Logger,
) *ReminderWorker {
	defaults := DefaultReminderWorkerConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.UrgentAfter <= 0 {
		config.UrgentAfter = defaults.UrgentAfter
	}

	return &ReminderWorker{
		config:      config,
		requestRepo: requestRepo,
		notifier:    notifier,
		logger:      logger,
		now:         time.Now,
		reminded:    make(map[int64]int64),
	}
}

// Start begins the reminder loop
func (w *ReminderWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.isRunning {
		w.mu.Unlock()
		return fmt.Errorf("reminder worker already running")
	}

	w.ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	w.isRunning = true
	w.mu.Unlock()

	w.logger.Info("ReminderWorker started",
		zap.Duration("interval", w.config.Interval),
		zap.Duration("urgent_after", w.config.UrgentAfter))

	go w.pollLoop()

	return nil
}

// Stop terminates the loop and waits for an in-flight sweep
func (w *ReminderWorker) Stop() error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}

	w.isRunning = false
	done := w.done
	w.mu.Unlock()

	if w.cancel != nil {
		w.cancel()
	}
	<-done

	w.mu.RLock()
	w.logger.Info("ReminderWorker stopped",
		zap.Int("reminded_count", w.remindedCount),
		zap.Int("failed_count", w.failedCount))
	w.mu.RUnlock()

	return nil
}

// Name returns the worker name for identification
func (w *ReminderWorker) Name() string {
	return "ReminderWorker"
}

func (w *ReminderWorker) pollLoop() {
	defer close(w.done)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			w.logger.Debug("Reminder loop context cancelled")
			return

		case <-ticker.C:
			if err := w.RunOnce(w.ctx); err != nil {
				w.logger.Error("Failed to send overdue reminders", zap.Error(err))
			}
		}
	}
}

// RunOnce performs a single sweep over overdue requests
func (w *ReminderWorker) RunOnce(ctx context.Context) error {
	now := w.now()
	cutoff := now.Add(-w.config.UrgentAfter)

	requests, err := w.requestRepo.ListCreatedBefore(ctx, overdueStates(), cutoff)
	if err != nil {
		err = fmt.Errorf("failed to list overdue requests: %w", err)
		w.mu.Lock()
		w.lastError = err
		w.mu.Unlock()
		return err
	}

	w.mu.Lock()
	w.lastRun = now
	w.lastError = nil
	w.mu.Unlock()

	if len(requests) > 0 {
		w.logger.Debug("Processing overdue requests", zap.Int("count", len(requests)))
	}

	seen := make(map[int64]bool, len(requests))
	for _, req := range requests {
		seen[req.ID] = true

		w.mu.RLock()
		version, done := w.reminded[req.ID]
		w.mu.RUnlock()
		if done && version == req.Version {
			continue
		}

		if err := w.notifier.NotifyOverdue(ctx, req, now.Sub(req.CreatedAt)); err != nil {
			w.logger.Warn("Failed to remind about overdue request",
				zap.Int64("request_id", req.ID),
				zap.String("status", req.Status.String()),
				zap.Error(err))

			w.mu.Lock()
			w.failedCount++
			w.mu.Unlock()
			continue
		}

		w.mu.Lock()
		w.reminded[req.ID] = req.Version
		w.remindedCount++
		w.mu.Unlock()
	}

	// forget requests that left the overdue set
	w.mu.Lock()
	for id := range w.reminded {
		if !seen[id] {
			delete(w.reminded, id)
		}
	}
	w.mu.Unlock()

	return nil
}

// Stats returns counters for health reporting
func (w *ReminderWorker) Stats() (reminded, failed int, lastRun time.Time, lastErr error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.remindedCount, w.failedCount, w.lastRun, w.lastError
}

// Status summarises the counters for health reporting
func (w *ReminderWorker) Status() string {
	reminded, failed, lastRun, lastErr := w.Stats()
	status := fmt.Sprintf("reminded=%d failed=%d", reminded, failed)
	if !lastRun.IsZero() {
		status += " last_run=" + lastRun.UTC().Format(time.RFC3339)
	}
	if lastErr != nil {
		status += " last_error=" + lastErr.Error()
	}
	return status
}

// overdueStates lists the states counted by the urgency check
func overdueStates() []domainwf.State {
	states := make([]domainwf.State, 0, 3)
	for _, s := range domainwf.AllStates {
		if s.IsPreApproval() {
			states = append(states, s)
		}
	}
	return states
}
