package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/garyjia/purchase-workflow/internal/application/dispatcher"
	"github.com/garyjia/purchase-workflow/internal/application/port"
	"github.com/garyjia/purchase-workflow/internal/domain/entity"
	"github.com/garyjia/purchase-workflow/internal/domain/event"
	domainwf "github.com/garyjia/purchase-workflow/internal/domain/workflow"
)

// memoryStore is an in-memory implementation of the request, history and attachment
// repositories plus a transaction manager that restores a snapshot on failure.
type memoryStore struct {
	txMu sync.Mutex

	mu          sync.Mutex
	nextID      int64
	requests    map[int64]entity.PurchaseRequest
	history     []entity.ApprovalHistory
	attachments map[int64]entity.Attachment

	saveErr   error
	appendErr error
	getErr    error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		requests:    make(map[int64]entity.PurchaseRequest),
		attachments: make(map[int64]entity.Attachment),
	}
}

type snapshot struct {
	nextID      int64
	requests    map[int64]entity.PurchaseRequest
	history     []entity.ApprovalHistory
	attachments map[int64]entity.Attachment
}

func (s *memoryStore) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := snapshot{
		nextID:      s.nextID,
		requests:    make(map[int64]entity.PurchaseRequest, len(s.requests)),
		history:     append([]entity.ApprovalHistory{}, s.history...),
		attachments: make(map[int64]entity.Attachment, len(s.attachments)),
	}
	for k, v := range s.requests {
		snap.requests[k] = v
	}
	for k, v := range s.attachments {
		snap.attachments[k] = v
	}
	return snap
}

func (s *memoryStore) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID = snap.nextID
	s.requests = snap.requests
	s.history = snap.history
	s.attachments = snap.attachments
}

// WithTransaction serializes units of work and rolls back on error
func (s *memoryStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	if err := fn(ctx); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *memoryStore) Create(ctx context.Context, req *entity.PurchaseRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	req.ID = s.nextID
	req.Version = 1
	s.requests[req.ID] = *req
	return nil
}

func (s *memoryStore) GetByID(ctx context.Context, id int64) (*entity.PurchaseRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	req, ok := s.requests[id]
	if !ok {
		return nil, domainwf.ErrNotFound
	}
	return &req, nil
}

func (s *memoryStore) Save(ctx context.Context, req *entity.PurchaseRequest, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	stored, ok := s.requests[req.ID]
	if !ok {
		return domainwf.ErrNotFound
	}
	if stored.Version != expectedVersion {
		return domainwf.ErrConflict
	}
	req.Version = expectedVersion + 1
	s.requests[req.ID] = *req
	return nil
}

func (s *memoryStore) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[id]; !ok {
		return domainwf.ErrNotFound
	}
	delete(s.requests, id)

	kept := s.history[:0]
	for _, h := range s.history {
		if h.RequestID != id {
			kept = append(kept, h)
		}
	}
	s.history = kept

	for attID, att := range s.attachments {
		if att.RequestID == id {
			delete(s.attachments, attID)
		}
	}
	return nil
}

func (s *memoryStore) List(ctx context.Context, filter port.RequestFilter) ([]*entity.PurchaseRequest, error) {
	return nil, errors.New("not implemented")
}

func (s *memoryStore) ListCreatedBefore(ctx context.Context, statuses []domainwf.State, cutoff time.Time) ([]*entity.PurchaseRequest, error) {
	return nil, errors.New("not implemented")
}

func (s *memoryStore) request(id int64) entity.PurchaseRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[id]
}

// historyRepo adapts the store to port.HistoryRepository
type historyRepo struct{ s *memoryStore }

func (h historyRepo) Append(ctx context.Context, entry *entity.ApprovalHistory) error {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	if h.s.appendErr != nil {
		return h.s.appendErr
	}
	entry.ID = int64(len(h.s.history) + 1)
	h.s.history = append(h.s.history, *entry)
	return nil
}

func (h historyRepo) ListByRequestID(ctx context.Context, requestID int64) ([]*entity.ApprovalHistory, error) {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	var result []*entity.ApprovalHistory
	for i := range h.s.history {
		if h.s.history[i].RequestID == requestID {
			entry := h.s.history[i]
			result = append(result, &entry)
		}
	}
	return result, nil
}

// attachmentRepo adapts the store to port.AttachmentRepository
type attachmentRepo struct{ s *memoryStore }

func (a attachmentRepo) Create(ctx context.Context, att *entity.Attachment) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	att.ID = int64(len(a.s.attachments) + 1)
	a.s.attachments[att.ID] = *att
	return nil
}

func (a attachmentRepo) GetByID(ctx context.Context, id int64) (*entity.Attachment, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	att, ok := a.s.attachments[id]
	if !ok {
		return nil, domainwf.ErrNotFound
	}
	return &att, nil
}

func (a attachmentRepo) ListByRequestID(ctx context.Context, requestID int64) ([]*entity.Attachment, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	var result []*entity.Attachment
	for _, att := range a.s.attachments {
		if att.RequestID == requestID {
			att := att
			result = append(result, &att)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (a attachmentRepo) Delete(ctx context.Context, id int64) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	delete(a.s.attachments, id)
	return nil
}

// fileStorageMock records deletions
// budgetRepo serves a fixed set of budgets; err simulates an unavailable store
type budgetRepo struct {
	budgets map[int64]entity.Budget
	err     error
}

func (b *budgetRepo) GetByID(ctx context.Context, id int64) (*entity.Budget, error) {
	if b.err != nil {
		return nil, b.err
	}
	budget, ok := b.budgets[id]
	if !ok {
		return nil, fmt.Errorf("budget %d: %w", id, domainwf.ErrNotFound)
	}
	return &budget, nil
}

type fileStorageMock struct {
	mu      sync.Mutex
	deleted []string
}

func (f *fileStorageMock) Save(ctx context.Context, path string, content []byte) error { return nil }
func (f *fileStorageMock) Read(ctx context.Context, path string) ([]byte, error)      { return nil, nil }
func (f *fileStorageMock) Exists(ctx context.Context, path string) bool               { return false }
func (f *fileStorageMock) GetFullPath(relativePath string) string                     { return relativePath }

func (f *fileStorageMock) Delete(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, path)
	return nil
}

// mockDispatcher records events synchronously
type mockDispatcher struct {
	mu     sync.Mutex
	events []*event.Event
}

func (m *mockDispatcher) Subscribe(eventType event.Type, handler dispatcher.Handler) {}

func (m *mockDispatcher) SubscribeNamed(eventType event.Type, name string, handler dispatcher.Handler) {
}

func (m *mockDispatcher) Unsubscribe(eventType event.Type, name string) {}

func (m *mockDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	m.DispatchAsync(ctx, evt)
	return nil
}

func (m *mockDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
}

func (m *mockDispatcher) ListHandlers(eventType event.Type) []dispatcher.HandlerInfo {
	return nil
}

func (m *mockDispatcher) Close() error {
	return nil
}

func (m *mockDispatcher) types() []event.Type {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]event.Type, len(m.events))
	for i, evt := range m.events {
		types[i] = evt.Type
	}
	return types
}
