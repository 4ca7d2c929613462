package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/purchase-workflow/internal/application/port"
	"github.com/garyjia/purchase-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/purchase-workflow/internal/domain/workflow"
	"github.com/garyjia/purchase-workflow/internal/infrastructure/persistence/sqlite"
)

// BudgetRepository implements port.BudgetRepository. Budgets are maintained outside
// the workflow; Create exists for provisioning and tests.
type BudgetRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewBudgetRepository creates a new budget repository
func NewBudgetRepository(db *sql.DB, logger *zap.Logger) *BudgetRepository {
	return &BudgetRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a budget
func (r *BudgetRepository) Create(ctx context.Context, budget *entity.Budget) error {
	result, err := executorFor(ctx, r.db).ExecContext(ctx,
		`INSERT INTO budgets (name, total_amount, used_amount) VALUES (?, ?, ?)`,
		budget.Name, budget.TotalAmount, budget.UsedAmount,
	)
	if err != nil {
		return fmt.Errorf("failed to create budget: %w", sqlite.TranslateError(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	budget.ID = id
	return nil
}

// GetByID retrieves a budget by ID
func (r *BudgetRepository) GetByID(ctx context.Context, id int64) (*entity.Budget, error) {
	var budget entity.Budget
	err := executorFor(ctx, r.db).QueryRowContext(ctx,
		`SELECT id, name, total_amount, used_amount FROM budgets WHERE id = ?`, id,
	).Scan(&budget.ID, &budget.Name, &budget.TotalAmount, &budget.UsedAmount)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("budget %d: %w", id, domainwf.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("Failed to get budget", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get budget: %w", sqlite.TranslateError(err))
	}

	return &budget, nil
}

// Verify interface compliance
var _ port.BudgetRepository = (*BudgetRepository)(nil)
