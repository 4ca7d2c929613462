// Package container provides dependency injection and lifecycle management
// for the purchase workflow service.
package container

import (
	"fmt"
	"time"

	domainwf "github.com/garyjia/purchase-workflow/internal/domain/workflow"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	Database DatabaseConfig
	Storage  StorageConfig
	Workflow WorkflowConfig
	Lark     LarkConfig
	Server   ServerConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// BusyTimeout is how long SQLite waits on a locked database before returning BUSY
	BusyTimeout time.Duration

	// AutoMigrate applies pending embedded migrations on start
	AutoMigrate bool
}

// StorageConfig holds attachment storage settings.
type StorageConfig struct {
	// AttachmentDir is the base directory for attachment blobs
	AttachmentDir string

	// MaxUploadBytes caps a single attachment
	MaxUploadBytes int64
}

// WorkflowConfig holds urgency and reminder settings.
type WorkflowConfig struct {
	// UrgentAfter is how long a request may wait before approval until it is flagged urgent
	UrgentAfter time.Duration

	// ReminderInterval is how often the reminder worker sweeps; zero disables it
	ReminderInterval time.Duration

	// ExportTimezone is the IANA zone used for timestamps in exported workbooks
	ExportTimezone string
}

// LarkConfig holds Lark API settings.
type LarkConfig struct {
	// Enabled turns on delivery; when false notifications are only logged
	Enabled bool

	AppID     string
	AppSecret string
	BaseURL   string

	// RoleChats maps a workflow role to the chat id of its group
	RoleChats map[domainwf.Role]string

	// UserIDType tells Lark how to read requester ids (user_id, open_id or email)
	UserIDType string

	APITimeout time.Duration
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:            "data/purchase.db",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			BusyTimeout:     5 * time.Second,
			AutoMigrate:     true,
		},
		Storage: StorageConfig{
			AttachmentDir:  "data/attachments",
			MaxUploadBytes: 10 << 20,
		},
		Workflow: WorkflowConfig{
			UrgentAfter:      72 * time.Hour,
			ReminderInterval: time.Hour,
			ExportTimezone:   "UTC",
		},
		Lark: LarkConfig{
			RoleChats:  make(map[domainwf.Role]string),
			UserIDType: "user_id",
			APITimeout: 30 * time.Second,
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Storage.AttachmentDir == "" {
		return fmt.Errorf("storage.attachment_dir is required")
	}
	if c.Storage.MaxUploadBytes <= 0 {
		return fmt.Errorf("storage.max_upload_bytes must be positive")
	}

	if c.Workflow.UrgentAfter <= 0 {
		return fmt.Errorf("workflow.urgent_after must be positive")
	}
	if c.Workflow.ReminderInterval < 0 {
		return fmt.Errorf("workflow.reminder_interval must not be negative")
	}

	if c.Lark.Enabled {
		if c.Lark.AppID == "" {
			return fmt.Errorf("lark.app_id is required when lark is enabled")
		}
		if c.Lark.AppSecret == "" {
			return fmt.Errorf("lark.app_secret is required when lark is enabled")
		}
	}
	for role := range c.Lark.RoleChats {
		if !role.IsValid() {
			return fmt.Errorf("lark.role_chats: unknown role %q", role)
		}
	}

	return nil
}
