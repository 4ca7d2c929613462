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

// AttachmentRepository implements port.AttachmentRepository
type AttachmentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAttachmentRepository creates a new attachment repository
func NewAttachmentRepository(db *sql.DB, logger *zap.Logger) *AttachmentRepository {
	return &AttachmentRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new attachment record
func (r *AttachmentRepository) Create(ctx context.Context, att *entity.Attachment) error {
	query := `
		INSERT INTO attachments (
			request_id, file_name, original_name, mime_type, size_bytes,
			storage_ref, uploader_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	if att.CreatedAt.IsZero() {
		att.CreatedAt = time.Now()
	}

	result, err := executorFor(ctx, r.db).ExecContext(ctx, query,
		att.RequestID,
		att.FileName,
		att.OriginalName,
		att.MimeType,
		att.SizeBytes,
		att.StorageRef,
		att.UploaderID,
		att.CreatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create attachment", zap.Int64("request_id", att.RequestID), zap.Error(err))
		return fmt.Errorf("failed to create attachment: %w", sqlite.TranslateError(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	att.ID = id
	return nil
}

// GetByID retrieves an attachment by ID
func (r *AttachmentRepository) GetByID(ctx context.Context, id int64) (*entity.Attachment, error) {
	query := `
		SELECT id, request_id, file_name, original_name, mime_type, size_bytes,
			storage_ref, uploader_id, created_at
		FROM attachments
		WHERE id = ?
	`

	att, err := scanAttachment(executorFor(ctx, r.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("attachment %d: %w", id, domainwf.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("Failed to get attachment", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get attachment: %w", sqlite.TranslateError(err))
	}

	return att, nil
}

// ListByRequestID retrieves all attachments of a request in upload order
func (r *AttachmentRepository) ListByRequestID(ctx context.Context, requestID int64) ([]*entity.Attachment, error) {
	query := `
		SELECT id, request_id, file_name, original_name, mime_type, size_bytes,
			storage_ref, uploader_id, created_at
		FROM attachments
		WHERE request_id = ?
		ORDER BY created_at ASC, id ASC
	`

	rows, err := executorFor(ctx, r.db).QueryContext(ctx, query, requestID)
	if err != nil {
		r.logger.Error("Failed to list attachments", zap.Int64("request_id", requestID), zap.Error(err))
		return nil, fmt.Errorf("failed to list attachments: %w", sqlite.TranslateError(err))
	}
	defer rows.Close()

	var attachments []*entity.Attachment
	for rows.Next() {
		att, err := scanAttachment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		attachments = append(attachments, att)
	}

	return attachments, rows.Err()
}

// Delete removes an attachment record
func (r *AttachmentRepository) Delete(ctx context.Context, id int64) error {
	result, err := executorFor(ctx, r.db).ExecContext(ctx, `DELETE FROM attachments WHERE id = ?`, id)
	if err != nil {
		r.logger.Error("Failed to delete attachment", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete attachment: %w", sqlite.TranslateError(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("attachment %d: %w", id, domainwf.ErrNotFound)
	}
	return nil
}

func scanAttachment(s scanner) (*entity.Attachment, error) {
	var att entity.Attachment
	err := s.Scan(
		&att.ID,
		&att.RequestID,
		&att.FileName,
		&att.OriginalName,
		&att.MimeType,
		&att.SizeBytes,
		&att.StorageRef,
		&att.UploaderID,
		&att.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &att, nil
}

// Verify interface compliance
var _ port.AttachmentRepository = (*AttachmentRepository)(nil)
