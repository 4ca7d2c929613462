package port

import (
	"context"

	"github.com/garyjia/purchase-workflow/internal/domain/entity"
	"github.com/garyjia/purchase-workflow/internal/domain/event"
	"github.com/garyjia/purchase-workflow/internal/domain/workflow"
)

// Message is a notification addressed to a role channel, a user, or both
type Message struct {
	Role      workflow.Role
	UserID    string
	Title     string
	Body      string
	RequestID int64
}

// Notifier delivers notifications. Delivery is fire-and-forget from the workflow's point of view.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Broadcaster pushes change events to real-time subscribers of a request
type Broadcaster interface {
	Publish(ctx context.Context, evt *event.Event) error
}

// HistoryRenderer renders a request and its approval trail into a downloadable document
type HistoryRenderer interface {
	Render(req *entity.PurchaseRequest, history []*entity.ApprovalHistory) ([]byte, error)
	ContentType() string
	Extension() string
}
