package lark

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/purchase-workflow/internal/application/port"
	domainwf "github.com/garyjia/purchase-workflow/internal/domain/workflow"
)

// NotifierConfig routes workflow messages to Lark
type NotifierConfig struct {
	Enabled bool
	// RoleChats maps a workflow role to the group chat that works its queue
	RoleChats map[domainwf.Role]string
	// UserIDType is how requester ids are interpreted (open_id, user_id or email)
	UserIDType string
}

// Notifier implements port.Notifier with Lark IM post messages.
// When disabled it only logs what would have been sent.
type Notifier struct {
	sender MessageSender
	cfg    NotifierConfig
	logger *zap.Logger
}

// NewNotifier creates a notifier; sender may be nil when cfg.Enabled is false
func NewNotifier(sender MessageSender, cfg NotifierConfig, logger *zap.Logger) *Notifier {
	if cfg.UserIDType == "" {
		cfg.UserIDType = ReceiveIDTypeUserID
	}
	return &Notifier{
		sender: sender,
		cfg:    cfg,
		logger: logger,
	}
}

// Notify delivers msg to the role chat and/or the user named in it
func (n *Notifier) Notify(ctx context.Context, msg port.Message) error {
	content, err := postContent(msg.Title, msg.Body)
	if err != nil {
		return err
	}

	var errs []error
	if msg.Role != "" {
		chatID, ok := n.cfg.RoleChats[msg.Role]
		if !ok || chatID == "" {
			n.logger.Warn("No chat configured for role",
				zap.String("role", string(msg.Role)),
				zap.Int64("request_id", msg.RequestID))
		} else if err := n.send(ctx, ReceiveIDTypeChatID, chatID, content, msg); err != nil {
			errs = append(errs, err)
		}
	}
	if msg.UserID != "" {
		if err := n.send(ctx, n.cfg.UserIDType, msg.UserID, content, msg); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (n *Notifier) send(ctx context.Context, idType, receiveID, content string, msg port.Message) error {
	if !n.cfg.Enabled || n.sender == nil {
		n.logger.Info("Lark disabled, notification not sent",
			zap.String("receive_id_type", idType),
			zap.String("receive_id", receiveID),
			zap.Int64("request_id", msg.RequestID),
			zap.String("title", msg.Title))
		return nil
	}

	messageID, err := n.sender.SendMessage(ctx, idType, receiveID, "post", content)
	if err != nil {
		return fmt.Errorf("lark %s %s: %w", idType, receiveID, err)
	}

	n.logger.Info("Notification sent",
		zap.String("message_id", messageID),
		zap.String("receive_id_type", idType),
		zap.Int64("request_id", msg.RequestID))
	return nil
}

type postElement struct {
	Tag  string `json:"tag"`
	Text string `json:"text"`
}

type postBody struct {
	Title   string          `json:"title"`
	Content [][]postElement `json:"content"`
}

// postContent builds the JSON content of a "post" message
func postContent(title, body string) (string, error) {
	data, err := json.Marshal(map[string]postBody{
		"en_us": {
			Title:   title,
			Content: [][]postElement{{{Tag: "text", Text: body}}},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode message: %w", err)
	}
	return string(data), nil
}

// Verify interface compliance
var _ port.Notifier = (*Notifier)(nil)
