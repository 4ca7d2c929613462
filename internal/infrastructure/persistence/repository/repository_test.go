package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/purchase-workflow/internal/application/port"
	"github.com/garyjia/purchase-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/purchase-workflow/internal/domain/workflow"
	"github.com/garyjia/purchase-workflow/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/purchase-workflow/pkg/database"
)

func setupDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.New(database.Config{
		Path:         filepath.Join(t.TempDir(), "workflow.db"),
		MaxOpenConns: 1,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = database.NewMigrator(db, zap.NewNop()).RunMigrations()
	require.NoError(t, err)
	return db
}

func newRequest(requester string, status domainwf.State, createdAt time.Time) *entity.PurchaseRequest {
	return &entity.PurchaseRequest{
		Title:         "Standing desk",
		Description:   "Electric sit/stand desk",
		Justification: "Ergonomics",
		ItemType:      entity.ItemTypeAppliance,
		Quantity:      1,
		EstimatedCost: decimal.RequireFromString("499.90"),
		RequesterID:   requester,
		RequesterName: "Alex",
		Status:        status,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}
}

func TestRequestRepository_CreateAndGet(t *testing.T) {
	db := setupDB(t)
	repo := NewRequestRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	budgetRepo := NewBudgetRepository(db.DB, zap.NewNop())
	budget := &entity.Budget{Name: "IT", TotalAmount: decimal.NewFromInt(1000), UsedAmount: decimal.NewFromInt(800)}
	require.NoError(t, budgetRepo.Create(ctx, budget))

	req := newRequest("u-1", domainwf.StatePendingFirstApproval, time.Now())
	req.BudgetID = &budget.ID
	require.NoError(t, repo.Create(ctx, req))
	assert.NotZero(t, req.ID)
	assert.Equal(t, int64(1), req.Version)

	got, err := repo.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, "Standing desk", got.Title)
	assert.Equal(t, entity.ItemTypeAppliance, got.ItemType)
	assert.True(t, decimal.RequireFromString("499.90").Equal(got.EstimatedCost))
	assert.Equal(t, domainwf.StatePendingFirstApproval, got.Status)
	assert.Nil(t, got.RejectionReason)
	require.NotNil(t, got.BudgetID)
	assert.Equal(t, budget.ID, *got.BudgetID)
	assert.WithinDuration(t, req.CreatedAt, got.CreatedAt, time.Millisecond)

	storedBudget, err := budgetRepo.GetByID(ctx, budget.ID)
	require.NoError(t, err)
	assert.True(t, storedBudget.Remaining().Equal(decimal.NewFromInt(200)))
	assert.True(t, got.ExceedsBudget(storedBudget))
}

func TestRequestRepository_GetMissing(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	_, err := NewRequestRepository(db.DB, zap.NewNop()).GetByID(ctx, 42)
	assert.ErrorIs(t, err, domainwf.ErrNotFound)

	_, err = NewBudgetRepository(db.DB, zap.NewNop()).GetByID(ctx, 42)
	assert.ErrorIs(t, err, domainwf.ErrNotFound)

	_, err = NewAttachmentRepository(db.DB, zap.NewNop()).GetByID(ctx, 42)
	assert.ErrorIs(t, err, domainwf.ErrNotFound)

	_, err = NewCommentRepository(db.DB, zap.NewNop()).GetByID(ctx, 42)
	assert.ErrorIs(t, err, domainwf.ErrNotFound)
}

func TestRequestRepository_SaveChecksVersion(t *testing.T) {
	db := setupDB(t)
	repo := NewRequestRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	req := newRequest("u-1", domainwf.StatePendingFirstApproval, time.Now())
	require.NoError(t, repo.Create(ctx, req))

	reason := "too expensive"
	req.Status = domainwf.StateReturnedForCorrection
	req.RejectionReason = &reason
	req.RejectionCount = 1
	require.NoError(t, repo.Save(ctx, req, 1))
	assert.Equal(t, int64(2), req.Version)

	got, err := repo.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, domainwf.StateReturnedForCorrection, got.Status)
	require.NotNil(t, got.RejectionReason)
	assert.Equal(t, reason, *got.RejectionReason)
	assert.Equal(t, 1, got.RejectionCount)

	// a writer still holding version 1 loses
	stale := newRequest("u-1", domainwf.StateRejected, req.CreatedAt)
	stale.ID = req.ID
	err = repo.Save(ctx, stale, 1)
	assert.ErrorIs(t, err, domainwf.ErrConflict)

	got, err = repo.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domainwf.StateReturnedForCorrection, got.Status)

	missing := newRequest("u-1", domainwf.StateRejected, req.CreatedAt)
	missing.ID = 9999
	assert.ErrorIs(t, repo.Save(ctx, missing, 1), domainwf.ErrNotFound)
}

func TestRequestRepository_List(t *testing.T) {
	db := setupDB(t)
	repo := NewRequestRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	fixtures := []struct {
		requester string
		status    domainwf.State
		age       time.Duration
	}{
		{"u-1", domainwf.StatePendingFirstApproval, 72 * time.Hour},
		{"u-1", domainwf.StatePendingSecondApproval, 48 * time.Hour},
		{"u-2", domainwf.StatePendingFirstApproval, 24 * time.Hour},
		{"u-2", domainwf.StateDelivered, time.Hour},
	}
	ids := make([]int64, len(fixtures))
	for i, f := range fixtures {
		req := newRequest(f.requester, f.status, base.Add(-f.age))
		require.NoError(t, repo.Create(ctx, req))
		ids[i] = req.ID
	}

	all, err := repo.List(ctx, port.RequestFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, ids[3], all[0].ID, "newest first")
	assert.Equal(t, ids[0], all[3].ID)

	pending, err := repo.List(ctx, port.RequestFilter{
		Statuses: []domainwf.State{domainwf.StatePendingFirstApproval},
	})
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, ids[2], pending[0].ID)

	mine, err := repo.List(ctx, port.RequestFilter{RequesterID: "u-1", Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, ids[0], mine[0].ID)

	stale, err := repo.ListCreatedBefore(ctx,
		[]domainwf.State{domainwf.StatePendingFirstApproval, domainwf.StatePendingSecondApproval},
		base.Add(-36*time.Hour))
	require.NoError(t, err)
	require.Len(t, stale, 2)
	assert.Equal(t, ids[0], stale[0].ID, "oldest first")
	assert.Equal(t, ids[1], stale[1].ID)

	none, err := repo.ListCreatedBefore(ctx, nil, base)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestHistoryRepository_AppendOnlyAndOrdered(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	requests := NewRequestRepository(db.DB, zap.NewNop())
	history := NewHistoryRepository(db.DB, zap.NewNop())

	req := newRequest("u-1", domainwf.StatePendingFirstApproval, time.Now())
	require.NoError(t, requests.Create(ctx, req))

	ts := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	remark := "looks fine"
	first := &entity.ApprovalHistory{
		RequestID:          req.ID,
		ActorID:            "m-1",
		ActorName:          "Morgan",
		ActorRole:          domainwf.RoleFirstApprover,
		Action:             domainwf.TriggerApproveFirst,
		PreviousStatus:     domainwf.StatePendingFirstApproval,
		IntermediateStatus: domainwf.StateFirstApproved,
		NewStatus:          domainwf.StatePendingSecondApproval,
		Remark:             &remark,
		Timestamp:          ts,
	}
	second := &entity.ApprovalHistory{
		RequestID:      req.ID,
		ActorID:        "d-1",
		ActorRole:      domainwf.RoleSecondApprover,
		Action:         domainwf.TriggerReject,
		PreviousStatus: domainwf.StatePendingSecondApproval,
		NewStatus:      domainwf.StateRejected,
		Timestamp:      ts,
	}
	require.NoError(t, history.Append(ctx, first))
	require.NoError(t, history.Append(ctx, second))

	records, err := history.ListByRequestID(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, first.ID, records[0].ID, "equal timestamps fall back to insertion order")
	assert.Equal(t, domainwf.StateFirstApproved, records[0].IntermediateStatus)
	require.NotNil(t, records[0].Remark)
	assert.Equal(t, remark, *records[0].Remark)
	assert.Nil(t, records[1].Remark)
	assert.Equal(t, domainwf.State(""), records[1].IntermediateStatus)

	_, err = db.Exec(`UPDATE approval_history SET remark = 'edited' WHERE id = ?`, first.ID)
	assert.Error(t, err)
}

func TestRequestRepository_DeleteCascades(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	requests := NewRequestRepository(db.DB, zap.NewNop())
	history := NewHistoryRepository(db.DB, zap.NewNop())
	attachments := NewAttachmentRepository(db.DB, zap.NewNop())
	comments := NewCommentRepository(db.DB, zap.NewNop())

	req := newRequest("u-1", domainwf.StateRejected, time.Now())
	require.NoError(t, requests.Create(ctx, req))

	require.NoError(t, history.Append(ctx, &entity.ApprovalHistory{
		RequestID: req.ID, ActorID: "m-1", ActorRole: domainwf.RoleFirstApprover,
		Action: domainwf.TriggerReject, PreviousStatus: domainwf.StatePendingFirstApproval,
		NewStatus: domainwf.StateRejected,
	}))
	att := &entity.Attachment{
		RequestID: req.ID, FileName: "quote.pdf", OriginalName: "Quote.pdf",
		MimeType: "application/pdf", SizeBytes: 12, StorageRef: "requests/1/quote.pdf", UploaderID: "u-1",
	}
	require.NoError(t, attachments.Create(ctx, att))
	comment := &entity.Comment{RequestID: req.ID, AuthorID: "m-1", Body: "need a second quote", IsInternal: true}
	require.NoError(t, comments.Create(ctx, comment))

	listed, err := comments.ListByRequestID(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.True(t, listed[0].IsInternal)

	require.NoError(t, requests.Delete(ctx, req.ID))
	assert.ErrorIs(t, requests.Delete(ctx, req.ID), domainwf.ErrNotFound)

	records, err := history.ListByRequestID(ctx, req.ID)
	require.NoError(t, err)
	assert.Empty(t, records)

	atts, err := attachments.ListByRequestID(ctx, req.ID)
	require.NoError(t, err)
	assert.Empty(t, atts)

	_, err = comments.GetByID(ctx, comment.ID)
	assert.ErrorIs(t, err, domainwf.ErrNotFound)
}

func TestAttachmentAndCommentRepository_Delete(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	requests := NewRequestRepository(db.DB, zap.NewNop())
	attachments := NewAttachmentRepository(db.DB, zap.NewNop())
	comments := NewCommentRepository(db.DB, zap.NewNop())

	req := newRequest("u-1", domainwf.StatePendingFirstApproval, time.Now())
	require.NoError(t, requests.Create(ctx, req))

	att := &entity.Attachment{
		RequestID: req.ID, FileName: "a.png", OriginalName: "a.png",
		MimeType: "image/png", StorageRef: "requests/1/a.png", UploaderID: "u-1",
	}
	require.NoError(t, attachments.Create(ctx, att))

	dup := *att
	dup.ID = 0
	assert.Error(t, attachments.Create(ctx, &dup), "storage refs are unique")

	got, err := attachments.GetByID(ctx, att.ID)
	require.NoError(t, err)
	assert.Equal(t, "requests/1/a.png", got.StorageRef)

	require.NoError(t, attachments.Delete(ctx, att.ID))
	assert.ErrorIs(t, attachments.Delete(ctx, att.ID), domainwf.ErrNotFound)

	comment := &entity.Comment{RequestID: req.ID, AuthorID: "u-1", Body: "ping"}
	require.NoError(t, comments.Create(ctx, comment))
	require.NoError(t, comments.Delete(ctx, comment.ID))
	assert.ErrorIs(t, comments.Delete(ctx, comment.ID), domainwf.ErrNotFound)

	assert.Error(t, comments.Create(ctx, &entity.Comment{RequestID: req.ID, AuthorID: "u-1", Body: "   "}))
}

func TestRepositories_JoinTransaction(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	tm := sqlite.NewDB(db.DB, zap.NewNop())
	requests := NewRequestRepository(db.DB, zap.NewNop())
	history := NewHistoryRepository(db.DB, zap.NewNop())

	req := newRequest("u-1", domainwf.StatePendingFirstApproval, time.Now())
	require.NoError(t, requests.Create(ctx, req))

	err := tm.WithTransaction(ctx, func(txCtx context.Context) error {
		req.Status = domainwf.StatePendingSecondApproval
		if err := requests.Save(txCtx, req, 1); err != nil {
			return err
		}
		// no such request: the foreign key fails and the save above must roll back
		return history.Append(txCtx, &entity.ApprovalHistory{
			RequestID: req.ID + 100, ActorID: "m-1", ActorRole: domainwf.RoleFirstApprover,
			Action: domainwf.TriggerApproveFirst, PreviousStatus: domainwf.StatePendingFirstApproval,
			NewStatus: domainwf.StatePendingSecondApproval,
		})
	})
	require.Error(t, err)

	got, err := requests.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domainwf.StatePendingFirstApproval, got.Status)
	assert.Equal(t, int64(1), got.Version)
}
