package port

import (
	"context"
	"time"

	"github.com/garyjia/purchase-workflow/internal/domain/entity"
	"github.com/garyjia/purchase-workflow/internal/domain/workflow"
)

// RequestFilter narrows a request listing. Empty fields do not filter.
type RequestFilter struct {
	Statuses    []workflow.State
	RequesterID string
	Limit       int
	Offset      int
}

// RequestRepository defines persistence operations for the PurchaseRequest aggregate
type RequestRepository interface {
	// Create inserts the request, assigning ID and Version (1)
	Create(ctx context.Context, req *entity.PurchaseRequest) error

	// GetByID loads a request; workflow.ErrNotFound when absent
	GetByID(ctx context.Context, id int64) (*entity.PurchaseRequest, error)

	// Save persists the request only if the stored version equals expectedVersion.
	// On success req.Version is advanced; otherwise workflow.ErrConflict (or ErrNotFound).
	Save(ctx context.Context, req *entity.PurchaseRequest, expectedVersion int64) error

	// Delete removes the request and, through cascade, its history, comments and attachment rows
	Delete(ctx context.Context, id int64) error

	// List returns requests matching the filter, newest first
	List(ctx context.Context, filter RequestFilter) ([]*entity.PurchaseRequest, error)

	// ListCreatedBefore returns requests in the given states created before cutoff, oldest first
	ListCreatedBefore(ctx context.Context, statuses []workflow.State, cutoff time.Time) ([]*entity.PurchaseRequest, error)
}

// HistoryRepository is the append-only approval trail
type HistoryRepository interface {
	Append(ctx context.Context, entry *entity.ApprovalHistory) error
	ListByRequestID(ctx context.Context, requestID int64) ([]*entity.ApprovalHistory, error)
}

// AttachmentRepository defines persistence operations for Attachment metadata
type AttachmentRepository interface {
	Create(ctx context.Context, att *entity.Attachment) error
	GetByID(ctx context.Context, id int64) (*entity.Attachment, error)
	ListByRequestID(ctx context.Context, requestID int64) ([]*entity.Attachment, error)
	Delete(ctx context.Context, id int64) error
}

// CommentRepository defines persistence operations for Comment
type CommentRepository interface {
	Create(ctx context.Context, comment *entity.Comment) error
	GetByID(ctx context.Context, id int64) (*entity.Comment, error)
	ListByRequestID(ctx context.Context, requestID int64) ([]*entity.Comment, error)
	Delete(ctx context.Context, id int64) error
}

// BudgetRepository is the read-only budget ledger
type BudgetRepository interface {
	GetByID(ctx context.Context, id int64) (*entity.Budget, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
