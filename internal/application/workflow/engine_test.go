package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/purchase-workflow/internal/domain/entity"
	"github.com/garyjia/purchase-workflow/internal/domain/event"
	domainwf "github.com/garyjia/purchase-workflow/internal/domain/workflow"
)

var (
	requester   = entity.Actor{ID: "u-100", Name: "Rina", Role: domainwf.RoleRequester}
	stranger    = entity.Actor{ID: "u-200", Name: "Sam", Role: domainwf.RoleRequester}
	firstAppr   = entity.Actor{ID: "u-300", Name: "Fei", Role: domainwf.RoleFirstApprover}
	secondAppr  = entity.Actor{ID: "u-400", Name: "Sol", Role: domainwf.RoleSecondApprover}
	procurement = entity.Actor{ID: "u-500", Name: "Pat", Role: domainwf.RoleProcurement}
	admin       = entity.Actor{ID: "u-900", Name: "Ada", Role: domainwf.RoleAdmin}
)

type engineFixture struct {
	engine     WorkflowEngine
	store      *memoryStore
	history    historyRepo
	files      *fileStorageMock
	budgets    *budgetRepo
	dispatcher *mockDispatcher
}

func newEngineFixture() *engineFixture {
	store := newMemoryStore()
	files := &fileStorageMock{}
	d := &mockDispatcher{}
	budgets := &budgetRepo{budgets: map[int64]entity.Budget{
		7: {ID: 7, Name: "IT hardware", TotalAmount: decimal.NewFromInt(10000000)},
	}}
	clock := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

	engine := NewEngine(store, historyRepo{store}, store,
		WithDispatcher(d),
		WithAttachmentCleanup(attachmentRepo{store}, files),
		WithBudgets(budgets),
		WithClock(func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		}),
	)

	return &engineFixture{
		engine:     engine,
		store:      store,
		history:    historyRepo{store},
		files:      files,
		budgets:    budgets,
		dispatcher: d,
	}
}

func sampleFields() entity.RequestFields {
	return entity.RequestFields{
		Title:         "Laptop refresh",
		Description:   "Two laptops for the new hires",
		Justification: "onboarding",
		ItemType:      entity.ItemTypePeripheral,
		Quantity:      2,
		EstimatedCost: decimal.NewFromInt(500000),
	}
}

func (f *engineFixture) create(t *testing.T) *entity.PurchaseRequest {
	t.Helper()
	req, err := f.engine.Create(context.Background(), requester, sampleFields())
	require.NoError(t, err)
	return req
}

func (f *engineFixture) historyOf(t *testing.T, id int64) []*entity.ApprovalHistory {
	t.Helper()
	entries, err := f.history.ListByRequestID(context.Background(), id)
	require.NoError(t, err)
	return entries
}

func cmd(actor entity.Actor, id int64) Command {
	return Command{Actor: actor, RequestID: id}
}

func TestBuildPurchaseStateMachine(t *testing.T) {
	tests := []struct {
		from    domainwf.State
		trigger domainwf.Trigger
		want    domainwf.State
	}{
		{domainwf.StateRequested, domainwf.TriggerSubmit, domainwf.StatePendingFirstApproval},
		{domainwf.StatePendingFirstApproval, domainwf.TriggerApproveFirst, domainwf.StateFirstApproved},
		{domainwf.StateFirstApproved, domainwf.TriggerAdvance, domainwf.StatePendingSecondApproval},
		{domainwf.StatePendingSecondApproval, domainwf.TriggerApproveSecond, domainwf.StateSecondApproved},
		{domainwf.StateSecondApproved, domainwf.TriggerAdvance, domainwf.StateInProcurement},
		{domainwf.StateInProcurement, domainwf.TriggerMarkPurchased, domainwf.StatePurchased},
		{domainwf.StatePurchased, domainwf.TriggerMarkDelivered, domainwf.StateDelivered},
		{domainwf.StatePendingFirstApproval, domainwf.TriggerReject, domainwf.StateRejected},
		{domainwf.StatePendingSecondApproval, domainwf.TriggerReturnForCorrection, domainwf.StateReturnedForCorrection},
		{domainwf.StateInProcurement, domainwf.TriggerReject, domainwf.StateRejected},
		{domainwf.StateReturnedForCorrection, domainwf.TriggerResubmit, domainwf.StatePendingFirstApproval},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.trigger), func(t *testing.T) {
			machine := BuildPurchaseStateMachine(tt.from)
			require.NoError(t, machine.Fire(context.Background(), tt.trigger))
			assert.Equal(t, tt.want, machine.State())
		})
	}

	t.Run("approvals settle in the next queue", func(t *testing.T) {
		step, err := BuildPurchaseStateMachine(domainwf.StatePendingFirstApproval).
			Transit(context.Background(), domainwf.TriggerApproveFirst)
		require.NoError(t, err)
		assert.Equal(t, []domainwf.State{domainwf.StateFirstApproved}, step.Through)
		assert.Equal(t, domainwf.StatePendingSecondApproval, step.To)

		step, err = BuildPurchaseStateMachine(domainwf.StatePendingSecondApproval).
			Transit(context.Background(), domainwf.TriggerApproveSecond)
		require.NoError(t, err)
		assert.Equal(t, domainwf.StateSecondApproved, step.Intermediate())
		assert.Equal(t, domainwf.StateInProcurement, step.To)

		step, err = BuildPurchaseStateMachine(domainwf.StateInProcurement).
			Transit(context.Background(), domainwf.TriggerMarkPurchased)
		require.NoError(t, err)
		assert.Empty(t, step.Through)
		assert.Equal(t, domainwf.StatePurchased, step.To)
	})

	t.Run("terminal states have no triggers", func(t *testing.T) {
		assert.Empty(t, BuildPurchaseStateMachine(domainwf.StateDelivered).PermittedTriggers())
		assert.Empty(t, BuildPurchaseStateMachine(domainwf.StateRejected).PermittedTriggers())
	})
}

func TestEngineCreate(t *testing.T) {
	f := newEngineFixture()

	req := f.create(t)

	assert.NotZero(t, req.ID)
	assert.Equal(t, domainwf.StatePendingFirstApproval, req.Status)
	assert.Equal(t, requester.ID, req.RequesterID)
	assert.Equal(t, int64(1), req.Version)
	assert.Zero(t, req.RejectionCount)
	assert.Nil(t, req.RejectionReason)
	assert.Empty(t, f.historyOf(t, req.ID))
	assert.Equal(t, []event.Type{event.TypeRequestCreated}, f.dispatcher.types())

	t.Run("invalid fields", func(t *testing.T) {
		fields := sampleFields()
		fields.Quantity = 0

		_, err := f.engine.Create(context.Background(), requester, fields)

		var verr *domainwf.ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, "quantity", verr.Field)
	})
}

// create -> approve first -> approve second -> purchased -> delivered
func TestEngineScenarioFullApproval(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	req := f.create(t)

	req, err := f.engine.ApproveFirst(ctx, cmd(firstAppr, req.ID))
	require.NoError(t, err)
	assert.Equal(t, domainwf.StatePendingSecondApproval, req.Status)
	assert.Len(t, f.historyOf(t, req.ID), 1)

	req, err = f.engine.ApproveSecond(ctx, cmd(secondAppr, req.ID))
	require.NoError(t, err)
	assert.Equal(t, domainwf.StateInProcurement, req.Status)
	assert.Len(t, f.historyOf(t, req.ID), 2)

	req, err = f.engine.MarkPurchased(ctx, cmd(procurement, req.ID))
	require.NoError(t, err)
	assert.Equal(t, domainwf.StatePurchased, req.Status)

	req, err = f.engine.MarkDelivered(ctx, cmd(procurement, req.ID))
	require.NoError(t, err)
	assert.Equal(t, domainwf.StateDelivered, req.Status)

	entries := f.historyOf(t, req.ID)
	require.Len(t, entries, 4)

	assert.Equal(t, domainwf.TriggerApproveFirst, entries[0].Action)
	assert.Equal(t, domainwf.StatePendingFirstApproval, entries[0].PreviousStatus)
	assert.Equal(t, domainwf.StateFirstApproved, entries[0].IntermediateStatus)
	assert.Equal(t, domainwf.StatePendingSecondApproval, entries[0].NewStatus)
	assert.Equal(t, firstAppr.Name, entries[0].ActorName)

	assert.Equal(t, domainwf.StateSecondApproved, entries[1].IntermediateStatus)
	assert.Empty(t, entries[2].IntermediateStatus)
	assert.Equal(t, int64(5), req.Version)

	assertValidWalk(t, entries)
}

// create -> return for correction -> resubmit
func TestEngineScenarioCorrectionCycle(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	req := f.create(t)

	req, err := f.engine.Reject(ctx, cmd(firstAppr, req.ID), "missing justification", true)
	require.NoError(t, err)
	assert.Equal(t, domainwf.StateReturnedForCorrection, req.Status)
	require.NotNil(t, req.RejectionReason)
	assert.Equal(t, "missing justification", *req.RejectionReason)
	assert.Equal(t, 0, req.RejectionCount)
	require.Len(t, f.historyOf(t, req.ID), 1)
	require.NotNil(t, f.historyOf(t, req.ID)[0].Remark)
	assert.Equal(t, "missing justification", *f.historyOf(t, req.ID)[0].Remark)

	corrected := sampleFields()
	corrected.Justification = "two engineers start on Monday"

	req, err = f.engine.Resubmit(ctx, cmd(requester, req.ID), corrected)
	require.NoError(t, err)
	assert.Equal(t, domainwf.StatePendingFirstApproval, req.Status)
	assert.Equal(t, 1, req.RejectionCount)
	assert.Nil(t, req.RejectionReason)
	assert.Equal(t, corrected.Justification, req.Justification)
	assert.Len(t, f.historyOf(t, req.ID), 2)

	// a second cycle keeps counting
	_, err = f.engine.Reject(ctx, cmd(admin, req.ID), "wrong vendor", true)
	require.NoError(t, err)
	req, err = f.engine.Resubmit(ctx, cmd(requester, req.ID), corrected)
	require.NoError(t, err)
	assert.Equal(t, 2, req.RejectionCount)

	assertValidWalk(t, f.historyOf(t, req.ID))
}

// final rejection at the second stage
func TestEngineScenarioFinalRejection(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	req := f.create(t)

	_, err := f.engine.ApproveFirst(ctx, cmd(firstAppr, req.ID))
	require.NoError(t, err)

	req, err = f.engine.Reject(ctx, cmd(secondAppr, req.ID), "over budget", false)
	require.NoError(t, err)
	assert.Equal(t, domainwf.StateRejected, req.Status)
	historyLen := len(f.historyOf(t, req.ID))

	ops := map[string]func() error{
		"submit":         func() error { _, err := f.engine.Submit(ctx, cmd(requester, req.ID)); return err },
		"approve first":  func() error { _, err := f.engine.ApproveFirst(ctx, cmd(admin, req.ID)); return err },
		"approve second": func() error { _, err := f.engine.ApproveSecond(ctx, cmd(admin, req.ID)); return err },
		"purchase":       func() error { _, err := f.engine.MarkPurchased(ctx, cmd(admin, req.ID)); return err },
		"deliver":        func() error { _, err := f.engine.MarkDelivered(ctx, cmd(admin, req.ID)); return err },
		"reject":         func() error { _, err := f.engine.Reject(ctx, cmd(admin, req.ID), "again", false); return err },
		"resubmit":       func() error { _, err := f.engine.Resubmit(ctx, cmd(requester, req.ID), sampleFields()); return err },
		"edit":           func() error { _, err := f.engine.Edit(ctx, cmd(requester, req.ID), sampleFields()); return err },
	}

	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			err := op()
			assert.ErrorIs(t, err, domainwf.ErrInvalidTransition)

			var te *domainwf.TransitionError
			require.True(t, errors.As(err, &te))
			assert.Equal(t, domainwf.StateRejected, te.Current)
		})
	}

	assert.Len(t, f.historyOf(t, req.ID), historyLen)

	require.NoError(t, f.engine.Delete(ctx, cmd(requester, req.ID)))
	_, err = f.store.GetByID(ctx, req.ID)
	assert.ErrorIs(t, err, domainwf.ErrNotFound)
}

func TestEngineReject_RequiresReason(t *testing.T) {
	f := newEngineFixture()
	req := f.create(t)

	for _, reason := range []string{"", "   ", "\n\t"} {
		_, err := f.engine.Reject(context.Background(), cmd(firstAppr, req.ID), reason, false)

		var verr *domainwf.ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, "reason", verr.Field)
	}

	stored := f.store.request(req.ID)
	assert.Equal(t, domainwf.StatePendingFirstApproval, stored.Status)
	assert.Nil(t, stored.RejectionReason)
	assert.Empty(t, f.historyOf(t, req.ID))
}

func TestEngineGuards(t *testing.T) {
	ctx := context.Background()

	t.Run("wrong role is forbidden regardless of payload", func(t *testing.T) {
		f := newEngineFixture()
		req := f.create(t)

		_, err := f.engine.Reject(ctx, cmd(secondAppr, req.ID), "", false)
		assert.ErrorIs(t, err, domainwf.ErrForbidden)

		_, err = f.engine.ApproveFirst(ctx, cmd(requester, req.ID))
		assert.ErrorIs(t, err, domainwf.ErrForbidden)

		_, err = f.engine.ApproveFirst(ctx, cmd(procurement, req.ID))
		assert.ErrorIs(t, err, domainwf.ErrForbidden)

		assert.Empty(t, f.historyOf(t, req.ID))
	})

	t.Run("only the owner resubmits", func(t *testing.T) {
		f := newEngineFixture()
		req := f.create(t)
		_, err := f.engine.Reject(ctx, cmd(firstAppr, req.ID), "fix it", true)
		require.NoError(t, err)

		_, err = f.engine.Resubmit(ctx, cmd(stranger, req.ID), sampleFields())
		assert.ErrorIs(t, err, domainwf.ErrForbidden)

		_, err = f.engine.Resubmit(ctx, cmd(admin, req.ID), sampleFields())
		assert.ErrorIs(t, err, domainwf.ErrForbidden)
	})

	t.Run("resubmit validates corrected fields", func(t *testing.T) {
		f := newEngineFixture()
		req := f.create(t)
		_, err := f.engine.Reject(ctx, cmd(firstAppr, req.ID), "fix it", true)
		require.NoError(t, err)

		bad := sampleFields()
		bad.Title = ""
		_, err = f.engine.Resubmit(ctx, cmd(requester, req.ID), bad)
		assert.ErrorIs(t, err, domainwf.ErrValidation)

		stored := f.store.request(req.ID)
		assert.Equal(t, 0, stored.RejectionCount)
		assert.Equal(t, domainwf.StateReturnedForCorrection, stored.Status)
	})

	t.Run("procurement may reject during procurement", func(t *testing.T) {
		f := newEngineFixture()
		req := f.create(t)
		_, err := f.engine.ApproveFirst(ctx, cmd(firstAppr, req.ID))
		require.NoError(t, err)
		_, err = f.engine.ApproveSecond(ctx, cmd(secondAppr, req.ID))
		require.NoError(t, err)

		_, err = f.engine.Reject(ctx, cmd(firstAppr, req.ID), "no stock", true)
		assert.ErrorIs(t, err, domainwf.ErrForbidden)

		req, err = f.engine.Reject(ctx, cmd(procurement, req.ID), "no stock", true)
		require.NoError(t, err)
		assert.Equal(t, domainwf.StateReturnedForCorrection, req.Status)
	})
}

func TestEngineMarkDelivered_Idempotence(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	req := f.create(t)

	for _, step := range []func() (*entity.PurchaseRequest, error){
		func() (*entity.PurchaseRequest, error) { return f.engine.ApproveFirst(ctx, cmd(admin, req.ID)) },
		func() (*entity.PurchaseRequest, error) { return f.engine.ApproveSecond(ctx, cmd(admin, req.ID)) },
		func() (*entity.PurchaseRequest, error) { return f.engine.MarkPurchased(ctx, cmd(admin, req.ID)) },
		func() (*entity.PurchaseRequest, error) { return f.engine.MarkDelivered(ctx, cmd(admin, req.ID)) },
	} {
		_, err := step()
		require.NoError(t, err)
	}

	_, err := f.engine.MarkDelivered(ctx, cmd(admin, req.ID))
	assert.ErrorIs(t, err, domainwf.ErrInvalidTransition)
	assert.Len(t, f.historyOf(t, req.ID), 4)
}

func TestEngineConcurrentApprovals(t *testing.T) {
	f := newEngineFixture()
	req := f.create(t)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)

	start := make(chan struct{})
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.engine.ApproveFirst(context.Background(), Command{
				Actor:           firstAppr,
				RequestID:       req.ID,
				ExpectedVersion: req.Version,
			})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, domainwf.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, conflicts)
	assert.Len(t, f.historyOf(t, req.ID), 1)
}

func TestEngineDuplicate(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	source := f.create(t)
	_, err := f.engine.Reject(ctx, cmd(firstAppr, source.ID), "too expensive", false)
	require.NoError(t, err)

	dup, err := f.engine.Duplicate(ctx, cmd(requester, source.ID))
	require.NoError(t, err)

	assert.NotEqual(t, source.ID, dup.ID)
	assert.Equal(t, domainwf.StateRequested, dup.Status)
	assert.Equal(t, int64(1), dup.Version)
	assert.Zero(t, dup.RejectionCount)
	assert.Nil(t, dup.RejectionReason)
	assert.Equal(t, source.Fields(), dup.Fields())
	assert.Empty(t, f.historyOf(t, dup.ID))

	_, err = f.engine.Duplicate(ctx, cmd(stranger, source.ID))
	assert.ErrorIs(t, err, domainwf.ErrForbidden)

	_, err = f.engine.Duplicate(ctx, cmd(requester, 9999))
	assert.ErrorIs(t, err, domainwf.ErrNotFound)

	// the draft moves on with Submit
	submitted, err := f.engine.Submit(ctx, cmd(requester, dup.ID))
	require.NoError(t, err)
	assert.Equal(t, domainwf.StatePendingFirstApproval, submitted.Status)
	assert.Len(t, f.historyOf(t, dup.ID), 1)
}

func TestEngineEdit(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	source := f.create(t)

	draft, err := f.engine.Duplicate(ctx, cmd(requester, source.ID))
	require.NoError(t, err)

	fields := sampleFields()
	fields.Title = "Laptop refresh (revised)"
	fields.Quantity = 3

	edited, err := f.engine.Edit(ctx, cmd(requester, draft.ID), fields)
	require.NoError(t, err)
	assert.Equal(t, "Laptop refresh (revised)", edited.Title)
	assert.Equal(t, 3, edited.Quantity)
	assert.Equal(t, domainwf.StateRequested, edited.Status)
	assert.Equal(t, int64(2), edited.Version)
	assert.Empty(t, f.historyOf(t, draft.ID))

	_, err = f.engine.Edit(ctx, cmd(admin, draft.ID), fields)
	assert.ErrorIs(t, err, domainwf.ErrForbidden)

	_, err = f.engine.Edit(ctx, cmd(requester, source.ID), fields)
	assert.ErrorIs(t, err, domainwf.ErrInvalidTransition)

	_, err = f.engine.Edit(ctx, Command{Actor: requester, RequestID: draft.ID, ExpectedVersion: 1}, fields)
	assert.ErrorIs(t, err, domainwf.ErrConflict)
}

func TestEngineBudgetReference(t *testing.T) {
	ctx := context.Background()
	known, unknown := int64(7), int64(9999)

	assertBudgetField := func(t *testing.T, err error) {
		t.Helper()
		require.Error(t, err)
		assert.ErrorIs(t, err, domainwf.ErrValidation)
		assert.NotErrorIs(t, err, domainwf.ErrDependency)
		var verr *domainwf.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "budget_id", verr.Field)
	}

	t.Run("create", func(t *testing.T) {
		f := newEngineFixture()
		fields := sampleFields()

		fields.BudgetID = &known
		req, err := f.engine.Create(ctx, requester, fields)
		require.NoError(t, err)
		require.NotNil(t, req.BudgetID)
		assert.Equal(t, known, *req.BudgetID)

		fields.BudgetID = &unknown
		_, err = f.engine.Create(ctx, requester, fields)
		assertBudgetField(t, err)
		assert.Len(t, f.store.requests, 1)
	})

	t.Run("resubmit", func(t *testing.T) {
		f := newEngineFixture()
		req := f.create(t)
		_, err := f.engine.Reject(ctx, cmd(firstAppr, req.ID), "wrong budget", true)
		require.NoError(t, err)

		fields := sampleFields()
		fields.BudgetID = &unknown
		_, err = f.engine.Resubmit(ctx, cmd(requester, req.ID), fields)
		assertBudgetField(t, err)

		stored := f.store.request(req.ID)
		assert.Equal(t, domainwf.StateReturnedForCorrection, stored.Status)
		assert.Len(t, f.historyOf(t, req.ID), 1)
	})

	t.Run("edit", func(t *testing.T) {
		f := newEngineFixture()
		draft, err := f.engine.Duplicate(ctx, cmd(requester, f.create(t).ID))
		require.NoError(t, err)

		fields := sampleFields()
		fields.BudgetID = &unknown
		_, err = f.engine.Edit(ctx, cmd(requester, draft.ID), fields)
		assertBudgetField(t, err)
		assert.Equal(t, draft.Version, f.store.request(draft.ID).Version)
	})

	t.Run("lookup failure stays a dependency failure", func(t *testing.T) {
		f := newEngineFixture()
		f.budgets.err = errors.New("disk I/O error")

		fields := sampleFields()
		fields.BudgetID = &known
		_, err := f.engine.Create(ctx, requester, fields)
		assert.ErrorIs(t, err, domainwf.ErrDependency)
	})
}

func TestEngineDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("removes rows and blobs", func(t *testing.T) {
		f := newEngineFixture()
		req := f.create(t)
		require.NoError(t, attachmentRepo{f.store}.Create(ctx, &entity.Attachment{RequestID: req.ID, StorageRef: "1/a.pdf"}))

		require.NoError(t, f.engine.Delete(ctx, cmd(requester, req.ID)))

		list, err := attachmentRepo{f.store}.ListByRequestID(ctx, req.ID)
		require.NoError(t, err)
		assert.Empty(t, list)
		assert.Equal(t, []string{"1/a.pdf"}, f.files.deleted)
		assert.Contains(t, f.dispatcher.types(), event.TypeRequestDeleted)
	})

	t.Run("not deletable in procurement", func(t *testing.T) {
		f := newEngineFixture()
		req := f.create(t)
		_, err := f.engine.ApproveFirst(ctx, cmd(admin, req.ID))
		require.NoError(t, err)

		err = f.engine.Delete(ctx, cmd(admin, req.ID))
		assert.ErrorIs(t, err, domainwf.ErrInvalidTransition)
	})

	t.Run("stranger cannot delete", func(t *testing.T) {
		f := newEngineFixture()
		req := f.create(t)

		err := f.engine.Delete(ctx, cmd(stranger, req.ID))
		assert.ErrorIs(t, err, domainwf.ErrForbidden)
	})

	t.Run("admin deletes pending request", func(t *testing.T) {
		f := newEngineFixture()
		req := f.create(t)

		require.NoError(t, f.engine.Delete(ctx, cmd(admin, req.ID)))
	})
}

func TestEngineNotFound(t *testing.T) {
	f := newEngineFixture()

	_, err := f.engine.ApproveFirst(context.Background(), cmd(firstAppr, 42))
	assert.ErrorIs(t, err, domainwf.ErrNotFound)

	err = f.engine.Delete(context.Background(), cmd(admin, 42))
	assert.ErrorIs(t, err, domainwf.ErrNotFound)
}

func TestEnginePersistenceFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("save failure emits nothing", func(t *testing.T) {
		f := newEngineFixture()
		req := f.create(t)
		eventsBefore := len(f.dispatcher.types())
		f.store.saveErr = errors.New("disk I/O error")

		_, err := f.engine.ApproveFirst(ctx, cmd(firstAppr, req.ID))
		assert.ErrorIs(t, err, domainwf.ErrDependency)

		assert.Empty(t, f.historyOf(t, req.ID))
		assert.Len(t, f.dispatcher.types(), eventsBefore)
		assert.Equal(t, domainwf.StatePendingFirstApproval, f.store.request(req.ID).Status)
	})

	t.Run("history failure rolls the status back", func(t *testing.T) {
		f := newEngineFixture()
		req := f.create(t)
		eventsBefore := len(f.dispatcher.types())
		f.store.appendErr = errors.New("database is locked")

		_, err := f.engine.ApproveFirst(ctx, cmd(firstAppr, req.ID))
		assert.ErrorIs(t, err, domainwf.ErrDependency)

		stored := f.store.request(req.ID)
		assert.Equal(t, domainwf.StatePendingFirstApproval, stored.Status)
		assert.Equal(t, int64(1), stored.Version)
		assert.Len(t, f.dispatcher.types(), eventsBefore)
	})

	t.Run("load failure is a dependency failure", func(t *testing.T) {
		f := newEngineFixture()
		req := f.create(t)
		f.store.getErr = errors.New("unable to open database file")

		_, err := f.engine.MarkPurchased(ctx, cmd(procurement, req.ID))
		assert.ErrorIs(t, err, domainwf.ErrDependency)
	})
}

func TestEngineTransitionEvent(t *testing.T) {
	f := newEngineFixture()
	req := f.create(t)

	_, err := f.engine.ApproveFirst(context.Background(), Command{Actor: firstAppr, RequestID: req.ID, Remark: "ok"})
	require.NoError(t, err)

	f.dispatcher.mu.Lock()
	evt := f.dispatcher.events[len(f.dispatcher.events)-1]
	f.dispatcher.mu.Unlock()

	assert.Equal(t, event.TypeRequestTransitioned, evt.Type)
	assert.Equal(t, req.ID, evt.RequestID)
	assert.Equal(t, "PENDING_FIRST_APPROVAL", evt.GetPayloadString(event.KeyFrom))
	assert.Equal(t, "PENDING_SECOND_APPROVAL", evt.GetPayloadString(event.KeyTo))
	assert.Equal(t, "FIRST_APPROVED", evt.GetPayloadString(event.KeyIntermediate))
	assert.Equal(t, "ok", evt.GetPayloadString(event.KeyRemark))
	require.NotNil(t, evt.Request)
	assert.Equal(t, domainwf.StatePendingSecondApproval, evt.Request.Status)
}

// assertValidWalk checks that each recorded step is permitted by the transition table
func assertValidWalk(t *testing.T, entries []*entity.ApprovalHistory) {
	t.Helper()
	for i, entry := range entries {
		step, err := BuildPurchaseStateMachine(entry.PreviousStatus).Transit(context.Background(), entry.Action)
		require.NoError(t, err, "entry %d", i)
		assert.Equal(t, entry.IntermediateStatus, step.Intermediate(), "entry %d", i)
		assert.Equal(t, entry.NewStatus, step.To, "entry %d", i)
		assert.True(t, entry.NewStatus.IsValid())
		if i > 0 {
			assert.Equal(t, entries[i-1].NewStatus, entry.PreviousStatus, "entry %d", i)
		}
	}
}
