package container

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/purchase-workflow/internal/application/dispatcher"
	"github.com/garyjia/purchase-workflow/internal/application/port"
	"github.com/garyjia/purchase-workflow/internal/application/service"
	"github.com/garyjia/purchase-workflow/internal/application/workflow"
	"github.com/garyjia/purchase-workflow/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/purchase-workflow/internal/infrastructure/realtime"
	"github.com/garyjia/purchase-workflow/internal/infrastructure/worker"
	httpapi "github.com/garyjia/purchase-workflow/internal/interfaces/http"
	"github.com/garyjia/purchase-workflow/pkg/database"
)

// hubShutdownTimeout bounds the wait for websocket clients to be disconnected
const hubShutdownTimeout = 5 * time.Second

// Container manages all application dependencies and lifecycle.
// Components start in dependency order and are torn down in reverse.
type Container struct {
	config *Config
	logger *zap.Logger

	// Infrastructure - Data
	db           *database.DB
	txManager    *sqlite.DB
	repositories *RepositoryBundle

	// Infrastructure - External and storage
	notifier    port.Notifier
	fileStorage port.FileStorage
	hub         *realtime.Hub

	// Application
	dispatcher dispatcher.Dispatcher
	workflow   workflow.WorkflowEngine
	services   *ServiceBundle

	// Workers
	workers *worker.WorkerManager

	// Lifecycle
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Request    port.RequestRepository
	History    port.HistoryRepository
	Attachment port.AttachmentRepository
	Comment    port.CommentRepository
	Budget     port.BudgetRepository
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Query        service.QueryService
	Attachment   service.AttachmentService
	Comment      service.CommentService
	Notification service.NotificationService
	Export       service.ExportService
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components and begins background processing:
// 1. Database (migrations) and repositories
// 2. Notifier and attachment storage
// 3. Dispatcher, workflow engine and services
// 4. Event subscriptions and the realtime hub
// 5. Workers
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization")

	if err := c.initDatabase(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.logger.Info("Database initialized")

	if err := c.initExternal(); err != nil {
		c.db.Close()
		return fmt.Errorf("failed to initialize external clients: %w", err)
	}
	c.logger.Info("Notifier and storage initialized")

	if err := c.initApplication(); err != nil {
		c.db.Close()
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	c.logger.Info("Dispatcher, workflow engine and services initialized")

	c.initSubscriptions()
	c.logger.Info("Event subscriptions registered")

	if err := c.initWorkers(); err != nil {
		c.cancel()
		c.dispatcher.Close()
		c.db.Close()
		return fmt.Errorf("failed to initialize workers: %w", err)
	}
	c.logger.Info("Workers initialized and started")

	c.ready.Store(true)
	c.logger.Info("Container started successfully")

	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")

	var errs []error

	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			c.logger.Error("Failed to stop workers", zap.Error(err))
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		} else {
			c.logger.Info("Workers stopped")
		}
	}

	// stops the hub
	if c.cancel != nil {
		c.cancel()
	}
	if c.hub != nil {
		select {
		case <-c.hub.Done():
			c.logger.Info("Realtime hub stopped")
		case <-time.After(hubShutdownTimeout):
			c.logger.Error("Timed out waiting for realtime hub")
			errs = append(errs, fmt.Errorf("stop realtime hub: timeout"))
		}
	}

	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		} else {
			c.logger.Info("Dispatcher closed")
		}
	}

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		} else {
			c.logger.Info("Database closed")
		}
	}

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors: %w", len(errs), errors.Join(errs...))
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// Ready reports whether Start completed
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health reports per-component health
func (c *Container) Health() *HealthStatus {
	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}

	set := func(name string, healthy bool, msg string) {
		status.Components[name] = ComponentHealth{Healthy: healthy, Message: msg}
		if !healthy {
			status.Overall = false
		}
	}

	switch {
	case c.db == nil:
		set("database", false, "not initialized")
	default:
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := c.db.Check(ctx)
		cancel()
		if err != nil {
			set("database", false, fmt.Sprintf("check failed: %v", err))
		} else {
			set("database", true, "")
		}
	}

	if c.workers != nil {
		set("workers", c.workers.IsRunning(), fmt.Sprintf("worker count: %d", c.workers.GetWorkerCount()))
		for _, st := range c.workers.Statuses() {
			set("worker."+st.Name, st.Running, st.Detail)
		}
	} else {
		set("workers", false, "not initialized")
	}

	if c.dispatcher != nil {
		set("dispatcher", true, "")
	} else {
		set("dispatcher", false, "not initialized")
	}

	if c.hub != nil {
		set("realtime", true, fmt.Sprintf("clients: %d", c.hub.ClientCount()))
	} else {
		set("realtime", false, "not initialized")
	}

	return status
}

func (c *Container) initDatabase() error {
	dbBundle, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return err
	}

	c.db = dbBundle.DB
	c.txManager = dbBundle.TransactionMgr

	repos, err := ProvideRepositories(c.db.DB, c.logger)
	if err != nil {
		c.db.Close()
		return err
	}

	c.repositories = repos
	return nil
}

func (c *Container) initExternal() error {
	notifier, err := ProvideNotifier(&c.config.Lark, c.logger.Named("lark"))
	if err != nil {
		return err
	}
	c.notifier = notifier

	fileStorage, err := ProvideStorage(&c.config.Storage, c.logger)
	if err != nil {
		return err
	}
	c.fileStorage = fileStorage

	c.hub = realtime.NewHub(c.logger.Named("realtime"))
	return nil
}

func (c *Container) initApplication() error {
	disp, err := ProvideDispatcher(c.logger)
	if err != nil {
		return err
	}
	c.dispatcher = disp

	engine, err := ProvideWorkflowEngine(&WorkflowDeps{
		Repos:      c.repositories,
		TxManager:  c.txManager,
		Storage:    c.fileStorage,
		Dispatcher: c.dispatcher,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}
	c.workflow = engine

	services, err := ProvideServices(&ServiceDeps{
		Repos:       c.repositories,
		Storage:     c.fileStorage,
		Notifier:    c.notifier,
		Dispatcher:  c.dispatcher,
		StorageCfg:  &c.config.Storage,
		WorkflowCfg: &c.config.Workflow,
		Logger:      c.logger,
	})
	if err != nil {
		return err
	}
	c.services = services

	return nil
}

// initSubscriptions wires the side channels: notification on lifecycle events and
// websocket broadcast on every event
func (c *Container) initSubscriptions() {
	c.services.Notification.Register(c.dispatcher)
	c.dispatcher.SubscribeNamed(dispatcher.AnyType, "realtime.broadcast", c.hub.Publish)

	go c.hub.Run(c.ctx)
}

func (c *Container) initWorkers() error {
	workers, err := ProvideWorkers(&WorkerDeps{
		Repos:        c.repositories,
		Notification: c.services.Notification,
		WorkflowCfg:  &c.config.Workflow,
		Logger:       c.logger,
	})
	if err != nil {
		return err
	}
	c.workers = workers

	if err := c.workers.StartAll(c.ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}

	return nil
}

// HTTPServer builds the HTTP adapter over the started container
func (c *Container) HTTPServer() (*httpapi.Server, error) {
	if !c.ready.Load() {
		return nil, fmt.Errorf("container not started")
	}

	return httpapi.NewServer(
		httpapi.ServerConfig{
			Host:           c.config.Server.Host,
			Port:           c.config.Server.Port,
			ReadTimeout:    c.config.Server.ReadTimeout,
			WriteTimeout:   c.config.Server.WriteTimeout,
			MaxUploadBytes: c.config.Storage.MaxUploadBytes,
		},
		httpapi.Services{
			Engine:      c.workflow,
			Query:       c.services.Query,
			Attachments: c.services.Attachment,
			Comments:    c.services.Comment,
			Export:      c.services.Export,
			Realtime:    c.hub,
		},
		&zapLoggerAdapter{logger: c.logger.Named("http")},
	), nil
}

// TransactionManager returns the transaction manager
func (c *Container) TransactionManager() port.TransactionManager {
	return c.txManager
}

// Repositories returns the repository bundle
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Workflow returns the workflow engine
func (c *Container) Workflow() workflow.WorkflowEngine {
	return c.workflow
}

// Services returns the application services
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Dispatcher returns the event dispatcher
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// zapLoggerAdapter adapts zap.Logger to the key/value Logger interfaces of the
// application and interface layers.
type zapLoggerAdapter struct {
	logger *zap.Logger
}

func (a *zapLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, convertToZapFields(keysAndValues...)...)
}

func (a *zapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, convertToZapFields(keysAndValues...)...)
}

// convertToZapFields converts alternating keys and values to zap fields; non-string keys are skipped.
func convertToZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		if err, ok := keysAndValues[i+1].(error); ok {
			fields = append(fields, zap.NamedError(key, err))
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
