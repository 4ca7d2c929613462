package workflow

import (
	"context"

	"github.com/garyjia/purchase-workflow/internal/domain/entity"
)

// Command identifies who acts on which request
type Command struct {
	Actor     entity.Actor
	RequestID int64
	Remark    string
	// ExpectedVersion is the version the caller last read. Zero means the version loaded
	// inside the unit of work; a non-zero stale value fails with ErrConflict.
	ExpectedVersion int64
}

// WorkflowEngine drives purchase requests through the approval stages.
// Every method returns a typed failure from the domain workflow package
// (ErrNotFound, ErrInvalidTransition, ErrForbidden, ErrValidation, ErrConflict, ErrDependency).
type WorkflowEngine interface {
	// Create persists a new request owned by actor and queues it for first approval
	Create(ctx context.Context, actor entity.Actor, fields entity.RequestFields) (*entity.PurchaseRequest, error)

	// Submit moves a draft into the first approval queue
	Submit(ctx context.Context, cmd Command) (*entity.PurchaseRequest, error)

	// ApproveFirst approves the first stage; the request lands in the second approval queue
	ApproveFirst(ctx context.Context, cmd Command) (*entity.PurchaseRequest, error)

	// ApproveSecond approves the second stage; the request lands in procurement
	ApproveSecond(ctx context.Context, cmd Command) (*entity.PurchaseRequest, error)

	MarkPurchased(ctx context.Context, cmd Command) (*entity.PurchaseRequest, error)
	MarkDelivered(ctx context.Context, cmd Command) (*entity.PurchaseRequest, error)

	// Reject ends the request (forCorrection=false) or returns it to the requester
	Reject(ctx context.Context, cmd Command, reason string, forCorrection bool) (*entity.PurchaseRequest, error)

	// Resubmit applies corrected fields and requeues a returned request
	Resubmit(ctx context.Context, cmd Command, fields entity.RequestFields) (*entity.PurchaseRequest, error)

	// Duplicate copies the descriptive fields into a new draft
	Duplicate(ctx context.Context, cmd Command) (*entity.PurchaseRequest, error)

	// Edit changes descriptive fields without moving the request
	Edit(ctx context.Context, cmd Command, fields entity.RequestFields) (*entity.PurchaseRequest, error)

	// Delete removes the request with its history, comments and attachments
	Delete(ctx context.Context, cmd Command) error
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}
