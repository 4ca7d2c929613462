package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/garyjia/purchase-workflow/internal/domain/event"
)

// Dispatcher routes events to registered handlers
type Dispatcher interface {
	// Subscribe registers a handler for an event type. AnyType receives every event.
	Subscribe(eventType event.Type, handler Handler)

	// SubscribeNamed registers a handler with a name for debugging
	SubscribeNamed(eventType event.Type, name string, handler Handler)

	// Unsubscribe removes a handler by name
	Unsubscribe(eventType event.Type, name string)

	// Dispatch sends event to all registered handlers synchronously.
	// Returns first error encountered (handlers run in order).
	Dispatch(ctx context.Context, evt *event.Event) error

	// DispatchAsync hands event to a background lane keyed by request id.
	// Events of one request reach handlers in dispatch order; handlers outlive
	// the caller's context cancellation but keep its values.
	DispatchAsync(ctx context.Context, evt *event.Event)

	// ListHandlers returns registered handlers for an event type
	ListHandlers(eventType event.Type) []HandlerInfo

	// Close shuts down the dispatcher and waits for async handlers
	Close() error
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type eventDispatcher struct {
	mu       sync.RWMutex
	handlers map[event.Type][]HandlerInfo
	logger   Logger
	timeout  time.Duration

	lanesMu sync.Mutex
	lanes   map[int64]*lane

	wg     sync.WaitGroup
	closed atomic.Bool
}

// lane serialises async deliveries for one request
type lane struct {
	pending []asyncJob
}

type asyncJob struct {
	ctx      context.Context
	evt      *event.Event
	handlers []HandlerInfo
}

// Option configures the dispatcher
type Option func(*eventDispatcher)

// WithLogger sets a logger for the dispatcher
func WithLogger(logger Logger) Option {
	return func(d *eventDispatcher) {
		d.logger = logger
	}
}

// WithAsyncTimeout bounds how long a single async handler may run
func WithAsyncTimeout(timeout time.Duration) Option {
	return func(d *eventDispatcher) {
		d.timeout = timeout
	}
}

// NewDispatcher creates a new event dispatcher
func NewDispatcher(opts ...Option) Dispatcher {
	d := &eventDispatcher{
		handlers: make(map[event.Type][]HandlerInfo),
		lanes:    make(map[int64]*lane),
		timeout:  30 * time.Second,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Subscribe registers a handler for an event type with a generated name
func (d *eventDispatcher) Subscribe(eventType event.Type, handler Handler) {
	d.mu.RLock()
	name := fmt.Sprintf("%s-handler-%d", eventType, len(d.handlers[eventType]))
	d.mu.RUnlock()

	d.SubscribeNamed(eventType, name, handler)
}

// SubscribeNamed registers a handler with a specific name for debugging
func (d *eventDispatcher) SubscribeNamed(eventType event.Type, name string, handler Handler) {
	d.mu.Lock()
	d.handlers[eventType] = append(d.handlers[eventType], HandlerInfo{
		Name:      name,
		EventType: eventType,
		Handler:   handler,
	})
	d.mu.Unlock()

	if d.logger != nil {
		d.logger.Info("Handler registered",
			"event_type", eventType,
			"handler_name", name,
		)
	}
}

// Unsubscribe removes a handler by name
func (d *eventDispatcher) Unsubscribe(eventType event.Type, name string) {
	d.mu.Lock()
	handlers := d.handlers[eventType]
	filtered := make([]HandlerInfo, 0, len(handlers))
	for _, h := range handlers {
		if h.Name != name {
			filtered = append(filtered, h)
		}
	}
	d.handlers[eventType] = filtered
	d.mu.Unlock()

	if d.logger != nil {
		d.logger.Info("Handler unregistered",
			"event_type", eventType,
			"handler_name", name,
		)
	}
}

// handlersFor returns the type-specific handlers followed by the catch-all ones
func (d *eventDispatcher) handlersFor(eventType event.Type) []HandlerInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	specific := d.handlers[eventType]
	wildcard := d.handlers[AnyType]

	result := make([]HandlerInfo, 0, len(specific)+len(wildcard))
	result = append(result, specific...)
	if eventType != AnyType {
		result = append(result, wildcard...)
	}
	return result
}

// Dispatch sends event to all registered handlers synchronously
func (d *eventDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	if d.closed.Load() {
		return fmt.Errorf("dispatcher is closed")
	}

	handlers := d.handlersFor(evt.Type)

	for _, info := range handlers {
		if err := d.safeExecute(ctx, evt, info); err != nil {
			if d.logger != nil {
				d.logger.Error("Handler error",
					"event_type", evt.Type,
					"event_id", evt.ID,
					"request_id", evt.RequestID,
					"handler_name", info.Name,
					"error", err,
				)
			}
			return fmt.Errorf("handler %s failed: %w", info.Name, err)
		}
	}

	return nil
}

// DispatchAsync queues event behind earlier events of the same request.
// It is safe to call concurrently with Close; events that lose the race are dropped.
func (d *eventDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	if d.closed.Load() {
		d.logDropped(evt)
		return
	}

	handlers := d.handlersFor(evt.Type)
	if len(handlers) == 0 {
		return
	}

	// The caller usually returns (and cancels its context) before handlers finish.
	job := asyncJob{ctx: context.WithoutCancel(ctx), evt: evt, handlers: handlers}

	// closed is rechecked under lanesMu so wg.Add never overlaps Close's wg.Wait
	d.lanesMu.Lock()
	if d.closed.Load() {
		d.lanesMu.Unlock()
		d.logDropped(evt)
		return
	}
	l, busy := d.lanes[evt.RequestID]
	if !busy {
		l = &lane{}
		d.lanes[evt.RequestID] = l
		d.wg.Add(1)
	}
	l.pending = append(l.pending, job)
	d.lanesMu.Unlock()

	if !busy {
		go d.drain(evt.RequestID, l)
	}
}

func (d *eventDispatcher) logDropped(evt *event.Event) {
	if d.logger != nil {
		d.logger.Error("Cannot dispatch async event, dispatcher is closed",
			"event_type", evt.Type,
			"event_id", evt.ID,
		)
	}
}

// drain delivers a lane's jobs in order and retires the lane once it is empty
func (d *eventDispatcher) drain(requestID int64, l *lane) {
	defer d.wg.Done()

	for {
		d.lanesMu.Lock()
		if len(l.pending) == 0 {
			delete(d.lanes, requestID)
			d.lanesMu.Unlock()
			return
		}
		job := l.pending[0]
		l.pending = l.pending[1:]
		d.lanesMu.Unlock()

		for _, h := range job.handlers {
			d.runAsync(job.ctx, job.evt, h)
		}
	}
}

func (d *eventDispatcher) runAsync(ctx context.Context, evt *event.Event, h HandlerInfo) {
	hctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.safeExecute(hctx, evt, h); err != nil && d.logger != nil {
		d.logger.Error("Async handler error",
			"event_type", evt.Type,
			"event_id", evt.ID,
			"request_id", evt.RequestID,
			"handler_name", h.Name,
			"error", err,
		)
	}
}

// ListHandlers returns registered handlers for an event type
func (d *eventDispatcher) ListHandlers(eventType event.Type) []HandlerInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	handlers := d.handlers[eventType]
	result := make([]HandlerInfo, len(handlers))

	for i, h := range handlers {
		result[i] = HandlerInfo{
			Name:        h.Name,
			EventType:   h.EventType,
			Description: h.Description,
		}
	}

	return result
}

// Close shuts down the dispatcher and waits for async handlers to complete
func (d *eventDispatcher) Close() error {
	d.lanesMu.Lock()
	swapped := d.closed.CompareAndSwap(false, true)
	d.lanesMu.Unlock()
	if !swapped {
		return fmt.Errorf("dispatcher already closed")
	}

	if d.logger != nil {
		d.logger.Info("Closing dispatcher, waiting for async handlers")
	}

	d.wg.Wait()

	if d.logger != nil {
		d.logger.Info("Dispatcher closed")
	}

	return nil
}

// safeExecute runs a handler with panic recovery
func (d *eventDispatcher) safeExecute(ctx context.Context, evt *event.Event, info HandlerInfo) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
			if d.logger != nil {
				d.logger.Error("Handler panic recovered",
					"event_type", evt.Type,
					"event_id", evt.ID,
					"handler_name", info.Name,
					"panic", r,
				)
			}
		}
	}()

	return info.Handler(ctx, evt)
}
