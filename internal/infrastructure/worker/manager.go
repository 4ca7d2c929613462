package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Worker defines the interface for background workers
type Worker interface {
	Start(ctx context.Context) error
	Stop() error
	Name() string
}

// StatusReporter is implemented by workers that can describe their progress
type StatusReporter interface {
	Status() string
}

// WorkerStatus is a point-in-time view of one registered worker
type WorkerStatus struct {
	Name    string `json:"name"`
	Running bool   `json:"running"`
	Detail  string `json:"detail,omitempty"`
}

// WorkerManager starts registered workers together and stops the ones that started
type WorkerManager struct {
	logger *zap.Logger

	mu      sync.RWMutex
	workers []Worker
	started map[Worker]bool
	running bool
	cancel  context.CancelFunc
}

// NewWorkerManager creates a new worker manager
func NewWorkerManager(logger *zap.Logger) *WorkerManager {
	return &WorkerManager{
		logger:  logger,
		started: make(map[Worker]bool),
	}
}

// Register adds a worker; workers registered while running are started on the next StartAll
func (m *WorkerManager) Register(w Worker) {
	m.mu.Lock()
	m.workers = append(m.workers, w)
	total := len(m.workers)
	m.mu.Unlock()

	m.logger.Info("Worker registered",
		zap.String("worker_name", w.Name()),
		zap.Int("total_workers", total))
}

// StartAll starts every registered worker. A worker that fails to start is logged
// and skipped; the others keep running.
func (m *WorkerManager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("workers already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	m.logger.Info("Starting workers", zap.Int("count", len(m.workers)))

	for _, w := range m.workers {
		if err := w.Start(runCtx); err != nil {
			m.logger.Error("Failed to start worker",
				zap.String("worker_name", w.Name()),
				zap.Error(err))
			continue
		}
		m.started[w] = true
		m.logger.Info("Worker started", zap.String("worker_name", w.Name()))
	}

	return nil
}

// StopAll stops the started workers in reverse registration order
func (m *WorkerManager) StopAll() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	m.cancel()

	toStop := make([]Worker, 0, len(m.started))
	for i := len(m.workers) - 1; i >= 0; i-- {
		if m.started[m.workers[i]] {
			toStop = append(toStop, m.workers[i])
		}
	}
	m.started = make(map[Worker]bool)
	m.mu.Unlock()

	var errs []error
	for _, w := range toStop {
		if err := w.Stop(); err != nil {
			m.logger.Error("Failed to stop worker",
				zap.String("worker_name", w.Name()),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", w.Name(), err))
			continue
		}
		m.logger.Info("Worker stopped", zap.String("worker_name", w.Name()))
	}

	if len(errs) > 0 {
		return fmt.Errorf("failed to stop %d workers: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

// GetWorkerCount returns the number of registered workers
func (m *WorkerManager) GetWorkerCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.workers)
}

// IsRunning returns whether StartAll has been called without a matching StopAll
func (m *WorkerManager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// Statuses reports every registered worker in registration order
func (m *WorkerManager) Statuses() []WorkerStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	statuses := make([]WorkerStatus, 0, len(m.workers))
	for _, w := range m.workers {
		st := WorkerStatus{Name: w.Name(), Running: m.started[w]}
		if r, ok := w.(StatusReporter); ok {
			st.Detail = r.Status()
		}
		statuses = append(statuses, st)
	}
	return statuses
}
