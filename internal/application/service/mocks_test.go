package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/garyjia/purchase-workflow/internal/application/dispatcher"
	"github.com/garyjia/purchase-workflow/internal/application/port"
	"github.com/garyjia/purchase-workflow/internal/domain/entity"
	"github.com/garyjia/purchase-workflow/internal/domain/event"
	domainwf "github.com/garyjia/purchase-workflow/internal/domain/workflow"
)

type nopLogger struct{}

func (nopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (nopLogger) Error(msg string, keysAndValues ...interface{}) {}

type mockRequestRepo struct {
	requests map[int64]*entity.PurchaseRequest
	listFunc func(ctx context.Context, filter port.RequestFilter) ([]*entity.PurchaseRequest, error)
	getErr   error
}

func newMockRequestRepo(reqs ...*entity.PurchaseRequest) *mockRequestRepo {
	m := &mockRequestRepo{requests: make(map[int64]*entity.PurchaseRequest)}
	for _, r := range reqs {
		m.requests[r.ID] = r
	}
	return m
}

func (m *mockRequestRepo) Create(ctx context.Context, req *entity.PurchaseRequest) error {
	req.ID = int64(len(m.requests) + 1)
	req.Version = 1
	m.requests[req.ID] = req
	return nil
}

func (m *mockRequestRepo) GetByID(ctx context.Context, id int64) (*entity.PurchaseRequest, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	req, ok := m.requests[id]
	if !ok {
		return nil, fmt.Errorf("purchase request %d: %w", id, domainwf.ErrNotFound)
	}
	clone := *req
	return &clone, nil
}

func (m *mockRequestRepo) Save(ctx context.Context, req *entity.PurchaseRequest, expectedVersion int64) error {
	m.requests[req.ID] = req
	return nil
}

func (m *mockRequestRepo) Delete(ctx context.Context, id int64) error {
	delete(m.requests, id)
	return nil
}

func (m *mockRequestRepo) List(ctx context.Context, filter port.RequestFilter) ([]*entity.PurchaseRequest, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, filter)
	}
	return nil, nil
}

func (m *mockRequestRepo) ListCreatedBefore(ctx context.Context, statuses []domainwf.State, cutoff time.Time) ([]*entity.PurchaseRequest, error) {
	return nil, nil
}

type mockHistoryRepo struct {
	records []*entity.ApprovalHistory
	err     error
}

func (m *mockHistoryRepo) Append(ctx context.Context, entry *entity.ApprovalHistory) error {
	m.records = append(m.records, entry)
	return nil
}

func (m *mockHistoryRepo) ListByRequestID(ctx context.Context, requestID int64) ([]*entity.ApprovalHistory, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []*entity.ApprovalHistory
	for _, r := range m.records {
		if r.RequestID == requestID {
			out = append(out, r)
		}
	}
	return out, nil
}

type mockBudgetRepo struct {
	getByIDFunc func(ctx context.Context, id int64) (*entity.Budget, error)
}

func (m *mockBudgetRepo) GetByID(ctx context.Context, id int64) (*entity.Budget, error) {
	return m.getByIDFunc(ctx, id)
}

type mockAttachmentRepo struct {
	nextID    int64
	items     map[int64]*entity.Attachment
	createErr error
}

func newMockAttachmentRepo() *mockAttachmentRepo {
	return &mockAttachmentRepo{items: make(map[int64]*entity.Attachment)}
}

func (m *mockAttachmentRepo) Create(ctx context.Context, att *entity.Attachment) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.nextID++
	att.ID = m.nextID
	m.items[att.ID] = att
	return nil
}

func (m *mockAttachmentRepo) GetByID(ctx context.Context, id int64) (*entity.Attachment, error) {
	att, ok := m.items[id]
	if !ok {
		return nil, fmt.Errorf("attachment %d: %w", id, domainwf.ErrNotFound)
	}
	return att, nil
}

func (m *mockAttachmentRepo) ListByRequestID(ctx context.Context, requestID int64) ([]*entity.Attachment, error) {
	var out []*entity.Attachment
	for id := int64(1); id <= m.nextID; id++ {
		if att, ok := m.items[id]; ok && att.RequestID == requestID {
			out = append(out, att)
		}
	}
	return out, nil
}

func (m *mockAttachmentRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := m.items[id]; !ok {
		return fmt.Errorf("attachment %d: %w", id, domainwf.ErrNotFound)
	}
	delete(m.items, id)
	return nil
}

type mockCommentRepo struct {
	nextID int64
	items  map[int64]*entity.Comment
}

func newMockCommentRepo() *mockCommentRepo {
	return &mockCommentRepo{items: make(map[int64]*entity.Comment)}
}

func (m *mockCommentRepo) Create(ctx context.Context, c *entity.Comment) error {
	m.nextID++
	c.ID = m.nextID
	m.items[c.ID] = c
	return nil
}

func (m *mockCommentRepo) GetByID(ctx context.Context, id int64) (*entity.Comment, error) {
	c, ok := m.items[id]
	if !ok {
		return nil, fmt.Errorf("comment %d: %w", id, domainwf.ErrNotFound)
	}
	return c, nil
}

func (m *mockCommentRepo) ListByRequestID(ctx context.Context, requestID int64) ([]*entity.Comment, error) {
	var out []*entity.Comment
	for id := int64(1); id <= m.nextID; id++ {
		if c, ok := m.items[id]; ok && c.RequestID == requestID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockCommentRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := m.items[id]; !ok {
		return fmt.Errorf("comment %d: %w", id, domainwf.ErrNotFound)
	}
	delete(m.items, id)
	return nil
}

type mockStorage struct {
	files     map[string][]byte
	saveErr   error
	deleteErr error
	deleted   []string
}

func newMockStorage() *mockStorage {
	return &mockStorage{files: make(map[string][]byte)}
}

func (m *mockStorage) Save(ctx context.Context, path string, content []byte) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.files[path] = content
	return nil
}

func (m *mockStorage) Read(ctx context.Context, path string) ([]byte, error) {
	content, ok := m.files[path]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", path)
	}
	return content, nil
}

func (m *mockStorage) Exists(ctx context.Context, path string) bool {
	_, ok := m.files[path]
	return ok
}

func (m *mockStorage) Delete(ctx context.Context, path string) error {
	m.deleted = append(m.deleted, path)
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.files, path)
	return nil
}

func (m *mockStorage) GetFullPath(relativePath string) string {
	return "/tmp/" + relativePath
}

type mockNotifier struct {
	mu         sync.Mutex
	messages   []port.Message
	notifyFunc func(ctx context.Context, msg port.Message) error
}

func (m *mockNotifier) Notify(ctx context.Context, msg port.Message) error {
	m.mu.Lock()
	m.messages = append(m.messages, msg)
	m.mu.Unlock()
	if m.notifyFunc != nil {
		return m.notifyFunc(ctx, msg)
	}
	return nil
}

// recordingDispatcher captures events synchronously
type recordingDispatcher struct {
	mu       sync.Mutex
	events   []*event.Event
	handlers map[event.Type][]string
}

func (d *recordingDispatcher) Subscribe(eventType event.Type, handler dispatcher.Handler) {
	d.SubscribeNamed(eventType, "", handler)
}

func (d *recordingDispatcher) SubscribeNamed(eventType event.Type, name string, handler dispatcher.Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handlers == nil {
		d.handlers = make(map[event.Type][]string)
	}
	d.handlers[eventType] = append(d.handlers[eventType], name)
}

func (d *recordingDispatcher) Unsubscribe(eventType event.Type, name string) {}

func (d *recordingDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	d.DispatchAsync(ctx, evt)
	return nil
}

func (d *recordingDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, evt)
}

func (d *recordingDispatcher) ListHandlers(eventType event.Type) []dispatcher.HandlerInfo {
	return nil
}

func (d *recordingDispatcher) Close() error { return nil }

func (d *recordingDispatcher) types() []event.Type {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]event.Type, 0, len(d.events))
	for _, e := range d.events {
		out = append(out, e.Type)
	}
	return out
}
