package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/purchase-workflow/internal/application/dispatcher"
	"github.com/garyjia/purchase-workflow/internal/application/port"
	"github.com/garyjia/purchase-workflow/internal/domain/entity"
	"github.com/garyjia/purchase-workflow/internal/domain/event"
	domainwf "github.com/garyjia/purchase-workflow/internal/domain/workflow"
)

// NotificationService turns committed workflow events into messages for the next
// actor and the requester
type NotificationService interface {
	// Register subscribes the service to request lifecycle events
	Register(d dispatcher.Dispatcher)

	// HandleEvent builds and delivers the messages for one event
	HandleEvent(ctx context.Context, evt *event.Event) error

	// NotifyOverdue reminds the stage owner that a request has waited too long
	NotifyOverdue(ctx context.Context, req *entity.PurchaseRequest, waited time.Duration) error
}

type notificationServiceImpl struct {
	notifier port.Notifier
	logger   Logger
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(notifier port.Notifier, logger Logger) NotificationService {
	return &notificationServiceImpl{
		notifier: notifier,
		logger:   logger,
	}
}

// Register subscribes to created and transitioned events
func (s *notificationServiceImpl) Register(d dispatcher.Dispatcher) {
	d.SubscribeNamed(event.TypeRequestCreated, "notification.created", s.HandleEvent)
	d.SubscribeNamed(event.TypeRequestTransitioned, "notification.transitioned", s.HandleEvent)
}

// HandleEvent delivers the messages derived from evt. Delivery failures are logged and returned
// to the dispatcher; they never affect the committed transition.
func (s *notificationServiceImpl) HandleEvent(ctx context.Context, evt *event.Event) error {
	if evt.Request == nil {
		return nil
	}

	messages := s.buildMessages(evt)
	var errs []error
	for _, msg := range messages {
		if err := s.notifier.Notify(ctx, msg); err != nil {
			s.logger.Error("Failed to deliver notification",
				"error", err,
				"request_id", msg.RequestID,
				"role", msg.Role,
				"user_id", msg.UserID,
			)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify request %d: %w", evt.RequestID, errors.Join(errs...))
	}

	s.logger.Info("Notifications sent", "request_id", evt.RequestID, "event_type", evt.Type, "count", len(messages))
	return nil
}

// NotifyOverdue reminds the role owning the current stage
func (s *notificationServiceImpl) NotifyOverdue(ctx context.Context, req *entity.PurchaseRequest, waited time.Duration) error {
	role, ok := domainwf.NextActorRole(req.Status)
	if !ok {
		return nil
	}

	msg := port.Message{
		Role:      role,
		Title:     "Purchase request overdue",
		Body:      fmt.Sprintf("%s has been waiting %s in %s.", describe(req), waited.Round(time.Hour), req.Status),
		RequestID: req.ID,
	}
	if err := s.notifier.Notify(ctx, msg); err != nil {
		s.logger.Error("Failed to deliver overdue reminder", "error", err, "request_id", req.ID, "role", role)
		return fmt.Errorf("remind %s about request %d: %w", role, req.ID, err)
	}
	return nil
}

func (s *notificationServiceImpl) buildMessages(evt *event.Event) []port.Message {
	req := evt.Request
	var messages []port.Message

	if role, ok := domainwf.NextActorRole(req.Status); ok {
		messages = append(messages, port.Message{
			Role:      role,
			Title:     "Purchase request awaiting action",
			Body:      fmt.Sprintf("%s is waiting in %s.", describe(req), req.Status),
			RequestID: req.ID,
		})
	}

	// the requester hears about changes made by someone else
	if evt.Type == event.TypeRequestTransitioned && evt.ActorID != req.RequesterID {
		body := fmt.Sprintf("%s moved from %s to %s",
			describe(req), evt.GetPayloadString(event.KeyFrom), req.Status)
		if by := evt.GetPayloadString(event.KeyActorName); by != "" {
			body += " by " + by
		}
		body += "."
		if req.RejectionReason != nil {
			body += " Reason: " + *req.RejectionReason
		}
		messages = append(messages, port.Message{
			UserID:    req.RequesterID,
			Title:     "Purchase request updated",
			Body:      body,
			RequestID: req.ID,
		})
	}

	return messages
}

func describe(req *entity.PurchaseRequest) string {
	return fmt.Sprintf("Request #%d %q (%d x %s, est. %s)",
		req.ID, req.Title, req.Quantity, req.ItemType, req.EstimatedCost.StringFixed(2))
}
