package config

import (
	"strings"

	"github.com/garyjia/purchase-workflow/internal/container"
	domainwf "github.com/garyjia/purchase-workflow/internal/domain/workflow"
)

// ToContainerConfig converts the file-based Config into the container's configuration.
func (c *Config) ToContainerConfig() *container.Config {
	roleChats := make(map[domainwf.Role]string, len(c.Lark.RoleChats))
	for role, chatID := range c.Lark.RoleChats {
		if chatID == "" {
			continue
		}
		roleChats[domainwf.Role(strings.ToLower(role))] = chatID
	}

	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
			BusyTimeout:     c.Database.BusyTimeout,
			AutoMigrate:     c.Database.AutoMigrate,
		},
		Storage: container.StorageConfig{
			AttachmentDir:  c.Storage.AttachmentDir,
			MaxUploadBytes: c.Storage.MaxUploadBytes,
		},
		Workflow: container.WorkflowConfig{
			UrgentAfter:      c.Workflow.UrgentAfter,
			ReminderInterval: c.Workflow.ReminderInterval,
			ExportTimezone:   c.Workflow.ExportTimezone,
		},
		Lark: container.LarkConfig{
			Enabled:    c.Lark.Enabled,
			AppID:      c.Lark.AppID,
			AppSecret:  c.Lark.AppSecret,
			BaseURL:    c.Lark.BaseURL,
			RoleChats:  roleChats,
			UserIDType: c.Lark.UserIDType,
			APITimeout: c.Lark.APITimeout,
		},
		Server: container.ServerConfig{
			Host:         c.Server.Host,
			Port:         c.Server.Port,
			ReadTimeout:  c.Server.ReadTimeout,
			WriteTimeout: c.Server.WriteTimeout,
		},
	}
}
