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

// CommentRepository implements port.CommentRepository
type CommentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewCommentRepository creates a new comment repository
func NewCommentRepository(db *sql.DB, logger *zap.Logger) *CommentRepository {
	return &CommentRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a comment
func (r *CommentRepository) Create(ctx context.Context, comment *entity.Comment) error {
	query := `
		INSERT INTO comments (request_id, author_id, author_name, body, is_internal, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now()
	}

	result, err := executorFor(ctx, r.db).ExecContext(ctx, query,
		comment.RequestID,
		comment.AuthorID,
		comment.AuthorName,
		comment.Body,
		comment.IsInternal,
		comment.CreatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create comment", zap.Int64("request_id", comment.RequestID), zap.Error(err))
		return fmt.Errorf("failed to create comment: %w", sqlite.TranslateError(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	comment.ID = id
	return nil
}

// GetByID retrieves a comment by ID
func (r *CommentRepository) GetByID(ctx context.Context, id int64) (*entity.Comment, error) {
	query := `
		SELECT id, request_id, author_id, author_name, body, is_internal, created_at
		FROM comments
		WHERE id = ?
	`

	comment, err := scanComment(executorFor(ctx, r.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("comment %d: %w", id, domainwf.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("Failed to get comment", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get comment: %w", sqlite.TranslateError(err))
	}

	return comment, nil
}

// ListByRequestID returns comments of a request in posting order
func (r *CommentRepository) ListByRequestID(ctx context.Context, requestID int64) ([]*entity.Comment, error) {
	query := `
		SELECT id, request_id, author_id, author_name, body, is_internal, created_at
		FROM comments
		WHERE request_id = ?
		ORDER BY created_at ASC, id ASC
	`

	rows, err := executorFor(ctx, r.db).QueryContext(ctx, query, requestID)
	if err != nil {
		r.logger.Error("Failed to list comments", zap.Int64("request_id", requestID), zap.Error(err))
		return nil, fmt.Errorf("failed to list comments: %w", sqlite.TranslateError(err))
	}
	defer rows.Close()

	var comments []*entity.Comment
	for rows.Next() {
		comment, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		comments = append(comments, comment)
	}

	return comments, rows.Err()
}

// Delete removes a comment
func (r *CommentRepository) Delete(ctx context.Context, id int64) error {
	result, err := executorFor(ctx, r.db).ExecContext(ctx, `DELETE FROM comments WHERE id = ?`, id)
	if err != nil {
		r.logger.Error("Failed to delete comment", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete comment: %w", sqlite.TranslateError(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("comment %d: %w", id, domainwf.ErrNotFound)
	}
	return nil
}

func scanComment(s scanner) (*entity.Comment, error) {
	var comment entity.Comment
	err := s.Scan(
		&comment.ID,
		&comment.RequestID,
		&comment.AuthorID,
		&comment.AuthorName,
		&comment.Body,
		&comment.IsInternal,
		&comment.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &comment, nil
}

// Verify interface compliance
var _ port.CommentRepository = (*CommentRepository)(nil)
