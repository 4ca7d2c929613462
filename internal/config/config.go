package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/garyjia/purchase-workflow/pkg/utils"
)

// EnvPrefix namespaces environment overrides, e.g. PURCHASE_SERVER_PORT
const EnvPrefix = "PURCHASE"

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Workflow WorkflowConfig `mapstructure:"workflow"`
	Lark     LarkConfig     `mapstructure:"lark"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	BusyTimeout     time.Duration `mapstructure:"busy_timeout"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// StorageConfig holds attachment storage configuration
type StorageConfig struct {
	AttachmentDir  string `mapstructure:"attachment_dir"`
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes"`
}

// WorkflowConfig holds urgency and reminder configuration
type WorkflowConfig struct {
	UrgentAfter      time.Duration `mapstructure:"urgent_after"`
	ReminderInterval time.Duration `mapstructure:"reminder_interval"`
	ExportTimezone   string        `mapstructure:"export_timezone"`
}

// LarkConfig holds Lark API configuration
type LarkConfig struct {
	Enabled    bool              `mapstructure:"enabled"`
	AppID      string            `mapstructure:"app_id"`
	AppSecret  string            `mapstructure:"app_secret"`
	BaseURL    string            `mapstructure:"base_url"`
	RoleChats  map[string]string `mapstructure:"role_chats"`
	UserIDType string            `mapstructure:"user_id_type"`
	APITimeout time.Duration     `mapstructure:"api_timeout"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from an optional .env file, the YAML file and environment variables.
// An empty configPath uses defaults and the environment only.
func Load(configPath string) (*Config, error) {
	// .env never overrides variables already set in the process environment
	if err := gotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindEnvVars(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	v.SetDefault("database.path", "data/purchase.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.busy_timeout", 5*time.Second)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("storage.attachment_dir", "data/attachments")
	v.SetDefault("storage.max_upload_bytes", 10<<20)

	v.SetDefault("workflow.urgent_after", 72*time.Hour)
	v.SetDefault("workflow.reminder_interval", time.Hour)
	v.SetDefault("workflow.export_timezone", "UTC")

	v.SetDefault("lark.enabled", false)
	v.SetDefault("lark.user_id_type", "user_id")
	v.SetDefault("lark.api_timeout", 30*time.Second)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// bindEnvVars binds the conventional names of secrets in addition to the prefixed ones
func bindEnvVars(v *viper.Viper) {
	_ = v.BindEnv("lark.app_id", EnvPrefix+"_LARK_APP_ID", "LARK_APP_ID")
	_ = v.BindEnv("lark.app_secret", EnvPrefix+"_LARK_APP_SECRET", "LARK_APP_SECRET")
	_ = v.BindEnv("database.path", EnvPrefix+"_DATABASE_PATH", "DATABASE_PATH")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := utils.ValidatePort(c.Server.Port); err != nil {
		return fmt.Errorf("server.port: %w", err)
	}
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
	if _, err := time.LoadLocation(c.Workflow.ExportTimezone); err != nil {
		return fmt.Errorf("workflow.export_timezone: %w", err)
	}

	if err := utils.ValidateOneOf("lark.user_id_type", c.Lark.UserIDType, "user_id", "open_id", "email"); err != nil {
		return err
	}
	if c.Lark.Enabled {
		if c.Lark.AppID == "" {
			return fmt.Errorf("lark.app_id is required when lark is enabled")
		}
		if c.Lark.AppSecret == "" {
			return fmt.Errorf("lark.app_secret is required when lark is enabled")
		}
		for role, chatID := range c.Lark.RoleChats {
			if chatID == "" {
				continue
			}
			if err := utils.ValidateChatID(chatID); err != nil {
				return fmt.Errorf("lark.role_chats.%s: %w", role, err)
			}
		}
	}

	if err := utils.ValidateOneOf("logger.format", c.Logger.Format, "json", "console"); err != nil {
		return err
	}

	return nil
}

// LoggerSettings returns the logger configuration in the form pkg/utils expects
func (c *Config) LoggerSettings() utils.LoggerConfig {
	return utils.LoggerConfig{
		Level:      c.Logger.Level,
		OutputPath: c.Logger.OutputPath,
		Format:     c.Logger.Format,
	}
}
