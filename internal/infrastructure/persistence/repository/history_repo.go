package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/purchase-workflow/internal/application/port"
	"github.com/garyjia/purchase-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/purchase-workflow/internal/domain/workflow"
	"github.com/garyjia/purchase-workflow/internal/infrastructure/persistence/sqlite"
)

// HistoryRepository implements port.HistoryRepository
type HistoryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *sql.DB, logger *zap.Logger) *HistoryRepository {
	return &HistoryRepository{
		db:     db,
		logger: logger,
	}
}

// Append records one history entry. Entries are never updated.
func (r *HistoryRepository) Append(ctx context.Context, entry *entity.ApprovalHistory) error {
	query := `
		INSERT INTO approval_history (
			request_id, actor_id, actor_name, actor_role, action,
			previous_status, intermediate_status, new_status, remark, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	result, err := executorFor(ctx, r.db).ExecContext(ctx, query,
		entry.RequestID,
		entry.ActorID,
		entry.ActorName,
		string(entry.ActorRole),
		string(entry.Action),
		string(entry.PreviousStatus),
		string(entry.IntermediateStatus),
		string(entry.NewStatus),
		nullString(entry.Remark),
		entry.Timestamp.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to append history record",
			zap.Int64("request_id", entry.RequestID),
			zap.Error(err))
		return fmt.Errorf("failed to append history: %w", sqlite.TranslateError(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	entry.ID = id
	return nil
}

// ListByRequestID returns the trail of a request ordered by timestamp, then id
func (r *HistoryRepository) ListByRequestID(ctx context.Context, requestID int64) ([]*entity.ApprovalHistory, error) {
	query := `
		SELECT id, request_id, actor_id, actor_name, actor_role, action,
			previous_status, intermediate_status, new_status, remark, timestamp
		FROM approval_history
		WHERE request_id = ?
		ORDER BY timestamp ASC, id ASC
	`

	rows, err := executorFor(ctx, r.db).QueryContext(ctx, query, requestID)
	if err != nil {
		r.logger.Error("Failed to get history by request ID", zap.Int64("request_id", requestID), zap.Error(err))
		return nil, fmt.Errorf("failed to get history: %w", sqlite.TranslateError(err))
	}
	defer rows.Close()

	var records []*entity.ApprovalHistory
	for rows.Next() {
		var (
			record       entity.ApprovalHistory
			role         string
			action       string
			previous     string
			intermediate string
			next         string
			remark       sql.NullString
		)
		err := rows.Scan(
			&record.ID,
			&record.RequestID,
			&record.ActorID,
			&record.ActorName,
			&role,
			&action,
			&previous,
			&intermediate,
			&next,
			&remark,
			&record.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history record: %w", err)
		}

		record.ActorRole = domainwf.Role(role)
		record.Action = domainwf.Trigger(action)
		record.PreviousStatus = domainwf.State(previous)
		record.IntermediateStatus = domainwf.State(intermediate)
		record.NewStatus = domainwf.State(next)
		if remark.Valid {
			record.Remark = &remark.String
		}
		records = append(records, &record)
	}

	return records, rows.Err()
}

// Verify interface compliance
var _ port.HistoryRepository = (*HistoryRepository)(nil)
