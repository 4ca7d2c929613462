package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/purchase-workflow/internal/application/port"
	"github.com/garyjia/purchase-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/purchase-workflow/internal/domain/workflow"
	"github.com/garyjia/purchase-workflow/internal/infrastructure/persistence/sqlite"
)

const requestColumns = `
	id, title, description, justification, item_type, quantity, estimated_cost,
	requester_id, requester_name, status, rejection_reason, rejection_count,
	budget_id, version, created_at, updated_at`

// RequestRepository implements port.RequestRepository
type RequestRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRequestRepository creates a new purchase request repository
func NewRequestRepository(db *sql.DB, logger *zap.Logger) *RequestRepository {
	return &RequestRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new request at version 1
func (r *RequestRepository) Create(ctx context.Context, req *entity.PurchaseRequest) error {
	query := `
		INSERT INTO purchase_requests (
			title, description, justification, item_type, quantity, estimated_cost,
			requester_id, requester_name, status, rejection_reason, rejection_count,
			budget_id, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
	`

	now := time.Now().UTC()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	if req.UpdatedAt.IsZero() {
		req.UpdatedAt = req.CreatedAt
	}

	result, err := executorFor(ctx, r.db).ExecContext(ctx, query,
		req.Title,
		req.Description,
		req.Justification,
		string(req.ItemType),
		req.Quantity,
		req.EstimatedCost,
		req.RequesterID,
		req.RequesterName,
		string(req.Status),
		nullString(req.RejectionReason),
		req.RejectionCount,
		nullInt64(req.BudgetID),
		req.CreatedAt.UTC(),
		req.UpdatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create purchase request", zap.Error(err))
		return fmt.Errorf("failed to create purchase request: %w", sqlite.TranslateError(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	req.ID = id
	req.Version = 1
	return nil
}

// GetByID retrieves a request by ID
func (r *RequestRepository) GetByID(ctx context.Context, id int64) (*entity.PurchaseRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM purchase_requests WHERE id = ?`

	req, err := scanRequest(executorFor(ctx, r.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("purchase request %d: %w", id, domainwf.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("Failed to get purchase request", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get purchase request: %w", sqlite.TranslateError(err))
	}

	return req, nil
}

// Save writes every mutable column when the stored version still equals expectedVersion
func (r *RequestRepository) Save(ctx context.Context, req *entity.PurchaseRequest, expectedVersion int64) error {
	query := `
		UPDATE purchase_requests SET
			title = ?, description = ?, justification = ?, item_type = ?, quantity = ?,
			estimated_cost = ?, status = ?, rejection_reason = ?, rejection_count = ?,
			budget_id = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?
	`

	exec := executorFor(ctx, r.db)
	result, err := exec.ExecContext(ctx, query,
		req.Title,
		req.Description,
		req.Justification,
		string(req.ItemType),
		req.Quantity,
		req.EstimatedCost,
		string(req.Status),
		nullString(req.RejectionReason),
		req.RejectionCount,
		nullInt64(req.BudgetID),
		req.UpdatedAt.UTC(),
		req.ID,
		expectedVersion,
	)
	if err != nil {
		r.logger.Error("Failed to save purchase request", zap.Int64("id", req.ID), zap.Error(err))
		return fmt.Errorf("failed to save purchase request: %w", sqlite.TranslateError(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		var current int64
		err := exec.QueryRowContext(ctx, `SELECT version FROM purchase_requests WHERE id = ?`, req.ID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("purchase request %d: %w", req.ID, domainwf.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to read purchase request version: %w", sqlite.TranslateError(err))
		}
		r.logger.Info("Optimistic version check failed",
			zap.Int64("id", req.ID),
			zap.Int64("expected_version", expectedVersion),
			zap.Int64("current_version", current))
		return fmt.Errorf("purchase request %d is at version %d, expected %d: %w",
			req.ID, current, expectedVersion, domainwf.ErrConflict)
	}

	req.Version = expectedVersion + 1
	return nil
}

// Delete removes a request; history, comments and attachments cascade
func (r *RequestRepository) Delete(ctx context.Context, id int64) error {
	result, err := executorFor(ctx, r.db).ExecContext(ctx, `DELETE FROM purchase_requests WHERE id = ?`, id)
	if err != nil {
		r.logger.Error("Failed to delete purchase request", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete purchase request: %w", sqlite.TranslateError(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("purchase request %d: %w", id, domainwf.ErrNotFound)
	}

	return nil
}

// List returns requests matching the filter, newest first
func (r *RequestRepository) List(ctx context.Context, filter port.RequestFilter) ([]*entity.PurchaseRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM purchase_requests WHERE 1 = 1`
	var args []interface{}

	if len(filter.Statuses) > 0 {
		query += ` AND status IN (` + placeholders(len(filter.Statuses)) + `)`
		for _, s := range filter.Statuses {
			args = append(args, string(s))
		}
	}
	if filter.RequesterID != "" {
		query += ` AND requester_id = ?`
		args = append(args, filter.RequesterID)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)

	return r.query(ctx, query, args...)
}

// ListCreatedBefore returns requests in the given states created before cutoff, oldest first
func (r *RequestRepository) ListCreatedBefore(ctx context.Context, statuses []domainwf.State, cutoff time.Time) ([]*entity.PurchaseRequest, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	query := `SELECT ` + requestColumns + ` FROM purchase_requests
		WHERE status IN (` + placeholders(len(statuses)) + `) AND created_at < ?
		ORDER BY created_at ASC, id ASC`

	args := make([]interface{}, 0, len(statuses)+1)
	for _, s := range statuses {
		args = append(args, string(s))
	}
	args = append(args, cutoff.UTC())

	return r.query(ctx, query, args...)
}

func (r *RequestRepository) query(ctx context.Context, query string, args ...interface{}) ([]*entity.PurchaseRequest, error) {
	rows, err := executorFor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list purchase requests", zap.Error(err))
		return nil, fmt.Errorf("failed to list purchase requests: %w", sqlite.TranslateError(err))
	}
	defer rows.Close()

	var requests []*entity.PurchaseRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan purchase request: %w", err)
		}
		requests = append(requests, req)
	}

	return requests, rows.Err()
}

func scanRequest(s scanner) (*entity.PurchaseRequest, error) {
	var (
		req      entity.PurchaseRequest
		itemType string
		status   string
		reason   sql.NullString
		budgetID sql.NullInt64
	)

	err := s.Scan(
		&req.ID,
		&req.Title,
		&req.Description,
		&req.Justification,
		&itemType,
		&req.Quantity,
		&req.EstimatedCost,
		&req.RequesterID,
		&req.RequesterName,
		&status,
		&reason,
		&req.RejectionCount,
		&budgetID,
		&req.Version,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	req.ItemType = entity.ItemType(itemType)
	req.Status = domainwf.State(status)
	if reason.Valid {
		req.RejectionReason = &reason.String
	}
	if budgetID.Valid {
		req.BudgetID = &budgetID.Int64
	}

	return &req, nil
}

// Verify interface compliance
var _ port.RequestRepository = (*RequestRepository)(nil)
