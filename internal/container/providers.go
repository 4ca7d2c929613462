package container

import (
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/purchase-workflow/internal/application/dispatcher"
	"github.com/garyjia/purchase-workflow/internal/application/port"
	"github.com/garyjia/purchase-workflow/internal/application/service"
	"github.com/garyjia/purchase-workflow/internal/application/workflow"
	"github.com/garyjia/purchase-workflow/internal/infrastructure/export"
	infraLark "github.com/garyjia/purchase-workflow/internal/infrastructure/external/lark"
	"github.com/garyjia/purchase-workflow/internal/infrastructure/persistence/repository"
	"github.com/garyjia/purchase-workflow/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/purchase-workflow/internal/infrastructure/storage"
	"github.com/garyjia/purchase-workflow/internal/infrastructure/worker"
	"github.com/garyjia/purchase-workflow/pkg/database"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	DB             *database.DB
	TransactionMgr *sqlite.DB
}

// ProvideDatabase opens the database and applies pending migrations when configured to.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		BusyTimeout:     cfg.BusyTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		applied, err := database.NewMigrator(db, logger).RunMigrations()
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		logger.Info("Migrations applied", zap.Int("count", applied))
	}

	return &DatabaseBundle{
		DB:             db,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories from a database connection.
func ProvideRepositories(sqlDB *sql.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if sqlDB == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Request:    repository.NewRequestRepository(sqlDB, logger),
		History:    repository.NewHistoryRepository(sqlDB, logger),
		Attachment: repository.NewAttachmentRepository(sqlDB, logger),
		Comment:    repository.NewCommentRepository(sqlDB, logger),
		Budget:     repository.NewBudgetRepository(sqlDB, logger),
	}, nil
}

// ProvideNotifier creates the Lark notifier. With lark disabled no SDK client is built
// and messages are only logged.
func ProvideNotifier(cfg *LarkConfig, logger *zap.Logger) (port.Notifier, error) {
	if cfg == nil {
		return nil, fmt.Errorf("lark config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	notifierCfg := infraLark.NotifierConfig{
		Enabled:    cfg.Enabled,
		RoleChats:  cfg.RoleChats,
		UserIDType: cfg.UserIDType,
	}

	if !cfg.Enabled {
		logger.Info("Lark delivery disabled, notifications will be logged only")
		return infraLark.NewNotifier(nil, notifierCfg, logger), nil
	}

	client := infraLark.NewSDKClient(infraLark.Config{
		AppID:     cfg.AppID,
		AppSecret: cfg.AppSecret,
		BaseURL:   cfg.BaseURL,
		Timeout:   cfg.APITimeout,
	}, logger)

	return infraLark.NewNotifier(infraLark.NewMessenger(client, logger), notifierCfg, logger), nil
}

// ProvideStorage creates the attachment blob store.
func ProvideStorage(cfg *StorageConfig, logger *zap.Logger) (port.FileStorage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("storage config is required")
	}

	fs, err := storage.NewLocalFileStorage(cfg.AttachmentDir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create attachment storage: %w", err)
	}
	return fs, nil
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return dispatcher.NewDispatcher(
		dispatcher.WithLogger(&zapLoggerAdapter{logger: logger.Named("dispatcher")}),
	), nil
}

// WorkflowDeps holds dependencies required for creating the workflow engine.
type WorkflowDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Storage    port.FileStorage
	Dispatcher dispatcher.Dispatcher
	Logger     *zap.Logger
}

// ProvideWorkflowEngine creates the workflow engine.
func ProvideWorkflowEngine(deps *WorkflowDeps) (workflow.WorkflowEngine, error) {
	if deps == nil {
		return nil, fmt.Errorf("workflow dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}

	return workflow.NewEngine(
		deps.Repos.Request,
		deps.Repos.History,
		deps.TxManager,
		workflow.WithDispatcher(deps.Dispatcher),
		workflow.WithLogger(&zapLoggerAdapter{logger: deps.Logger.Named("workflow")}),
		workflow.WithAttachmentCleanup(deps.Repos.Attachment, deps.Storage),
		workflow.WithBudgets(deps.Repos.Budget),
	), nil
}

// ServiceDeps holds dependencies required for creating application services.
type ServiceDeps struct {
	Repos       *RepositoryBundle
	Storage     port.FileStorage
	Notifier    port.Notifier
	Dispatcher  dispatcher.Dispatcher
	StorageCfg  *StorageConfig
	WorkflowCfg *WorkflowConfig
	Logger      *zap.Logger
}

// ProvideServices creates all application services.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.Storage == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if deps.Notifier == nil {
		return nil, fmt.Errorf("notifier is required")
	}
	if deps.StorageCfg == nil || deps.WorkflowCfg == nil {
		return nil, fmt.Errorf("storage and workflow config are required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	serviceLogger := &zapLoggerAdapter{logger: deps.Logger.Named("service")}

	loc, err := time.LoadLocation(deps.WorkflowCfg.ExportTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid workflow.export_timezone: %w", err)
	}

	return &ServiceBundle{
		Query: service.NewQueryService(
			deps.Repos.Request,
			deps.Repos.History,
			deps.Repos.Budget,
			serviceLogger,
			service.WithUrgentAfter(deps.WorkflowCfg.UrgentAfter),
		),
		Attachment: service.NewAttachmentService(
			deps.Repos.Request,
			deps.Repos.Attachment,
			deps.Storage,
			deps.Dispatcher,
			deps.StorageCfg.MaxUploadBytes,
			serviceLogger,
		),
		Comment: service.NewCommentService(
			deps.Repos.Request,
			deps.Repos.Comment,
			deps.Dispatcher,
			serviceLogger,
		),
		Notification: service.NewNotificationService(deps.Notifier, serviceLogger),
		Export: service.NewExportService(
			deps.Repos.Request,
			deps.Repos.History,
			export.NewHistoryExporter(loc, deps.Logger),
			serviceLogger,
		),
	}, nil
}

// WorkerDeps holds dependencies required for creating workers.
type WorkerDeps struct {
	Repos        *RepositoryBundle
	Notification service.NotificationService
	WorkflowCfg  *WorkflowConfig
	Logger       *zap.Logger
}

// ProvideWorkers creates and registers all background workers.
// Returns *worker.WorkerManager with all workers registered but not started.
func ProvideWorkers(deps *WorkerDeps) (*worker.WorkerManager, error) {
	if deps == nil {
		return nil, fmt.Errorf("worker dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.Notification == nil {
		return nil, fmt.Errorf("notification service is required")
	}
	if deps.WorkflowCfg == nil {
		return nil, fmt.Errorf("workflow config is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	manager := worker.NewWorkerManager(deps.Logger)

	if deps.WorkflowCfg.ReminderInterval > 0 {
		manager.Register(worker.NewReminderWorker(
			worker.ReminderWorkerConfig{
				Interval:    deps.WorkflowCfg.ReminderInterval,
				UrgentAfter: deps.WorkflowCfg.UrgentAfter,
			},
			deps.Repos.Request,
			deps.Notification,
			deps.Logger.Named("reminder"),
		))
	}

	return manager, nil
}
