package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/purchase-workflow/internal/application/dispatcher"
	"github.com/garyjia/purchase-workflow/internal/application/port"
	"github.com/garyjia/purchase-workflow/internal/domain/entity"
	"github.com/garyjia/purchase-workflow/internal/domain/event"
	domainwf "github.com/garyjia/purchase-workflow/internal/domain/workflow"
)

// engineImpl is the concrete implementation of WorkflowEngine
type engineImpl struct {
	requestRepo    port.RequestRepository
	historyRepo    port.HistoryRepository
	attachmentRepo port.AttachmentRepository
	fileStorage    port.FileStorage
	budgetRepo     port.BudgetRepository
	txManager      port.TransactionManager
	dispatcher     dispatcher.Dispatcher
	logger         Logger
	now            func() time.Time
}

// EngineOption configures the workflow engine
type EngineOption func(*engineImpl)

// WithDispatcher sets the event dispatcher for emitting events
func WithDispatcher(d dispatcher.Dispatcher) EngineOption {
	return func(e *engineImpl) {
		e.dispatcher = d
	}
}

// WithLogger sets the engine logger
func WithLogger(logger Logger) EngineOption {
	return func(e *engineImpl) {
		e.logger = logger
	}
}

// WithAttachmentCleanup lets Delete remove attachment blobs once the request is gone
func WithAttachmentCleanup(repo port.AttachmentRepository, storage port.FileStorage) EngineOption {
	return func(e *engineImpl) {
		e.attachmentRepo = repo
		e.fileStorage = storage
	}
}

// WithBudgets makes Create, Edit and Resubmit reject a budget_id with no budget behind it
func WithBudgets(repo port.BudgetRepository) EngineOption {
	return func(e *engineImpl) {
		e.budgetRepo = repo
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.now = now
	}
}

// NewEngine creates a new workflow engine
func NewEngine(
	requestRepo port.RequestRepository,
	historyRepo port.HistoryRepository,
	txManager port.TransactionManager,
	opts ...EngineOption,
) WorkflowEngine {
	e := &engineImpl{
		requestRepo: requestRepo,
		historyRepo: historyRepo,
		txManager:   txManager,
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// transition describes one state-changing operation
type transition struct {
	trigger domainwf.Trigger
	remark  string
	// mutate validates the payload and applies it; called after state and guard checks
	mutate func(ctx context.Context, req *entity.PurchaseRequest) error
}

// Create persists a new request owned by actor and queues it for first approval
func (e *engineImpl) Create(ctx context.Context, actor entity.Actor, fields entity.RequestFields) (*entity.PurchaseRequest, error) {
	if err := domainwf.Authorize(domainwf.TriggerCreate, "", actor.Principal(), actor.ID); err != nil {
		return nil, err
	}
	if err := fields.Validate(); err != nil {
		return nil, err
	}

	now := e.now()
	req := &entity.PurchaseRequest{
		RequesterID:   actor.ID,
		RequesterName: actor.Name,
		Status:        domainwf.StateRequested,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	req.ApplyFields(fields)

	// A new request is queued immediately; the draft state is only kept by Duplicate.
	step, err := BuildPurchaseStateMachine(req.Status).Transit(ctx, domainwf.TriggerSubmit)
	if err != nil {
		return nil, err
	}
	req.Status = step.To

	err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := e.checkBudget(txCtx, req.BudgetID); err != nil {
			return err
		}
		if err := e.requestRepo.Create(txCtx, req); err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, asWorkflowError(err)
	}

	e.log("Request created", "request_id", req.ID, "actor_id", actor.ID, "status", req.Status)
	e.emit(ctx, event.NewEvent(event.TypeRequestCreated, req.ID, actor.ID, map[string]interface{}{
		event.KeyTo:        req.Status,
		event.KeyActorName: actor.Name,
		event.KeyActorRole: actor.Role,
	}).WithRequest(req))

	return req, nil
}

// Submit moves a draft into the first approval queue
func (e *engineImpl) Submit(ctx context.Context, cmd Command) (*entity.PurchaseRequest, error) {
	return e.fire(ctx, cmd, transition{trigger: domainwf.TriggerSubmit, remark: cmd.Remark})
}

// ApproveFirst approves the first stage
func (e *engineImpl) ApproveFirst(ctx context.Context, cmd Command) (*entity.PurchaseRequest, error) {
	return e.fire(ctx, cmd, transition{trigger: domainwf.TriggerApproveFirst, remark: cmd.Remark})
}

// ApproveSecond approves the second stage
func (e *engineImpl) ApproveSecond(ctx context.Context, cmd Command) (*entity.PurchaseRequest, error) {
	return e.fire(ctx, cmd, transition{trigger: domainwf.TriggerApproveSecond, remark: cmd.Remark})
}

// MarkPurchased records that procurement bought the items
func (e *engineImpl) MarkPurchased(ctx context.Context, cmd Command) (*entity.PurchaseRequest, error) {
	return e.fire(ctx, cmd, transition{trigger: domainwf.TriggerMarkPurchased, remark: cmd.Remark})
}

// MarkDelivered records delivery to the requester
func (e *engineImpl) MarkDelivered(ctx context.Context, cmd Command) (*entity.PurchaseRequest, error) {
	return e.fire(ctx, cmd, transition{trigger: domainwf.TriggerMarkDelivered, remark: cmd.Remark})
}

// Reject ends the request or returns it for correction
func (e *engineImpl) Reject(ctx context.Context, cmd Command, reason string, forCorrection bool) (*entity.PurchaseRequest, error) {
	trigger := domainwf.TriggerReject
	if forCorrection {
		trigger = domainwf.TriggerReturnForCorrection
	}

	reason = strings.TrimSpace(reason)

	return e.fire(ctx, cmd, transition{
		trigger: trigger,
		remark:  reason,
		mutate: func(_ context.Context, req *entity.PurchaseRequest) error {
			if reason == "" {
				return domainwf.NewValidationError("reason", "is required")
			}
			req.RejectionReason = &reason
			return nil
		},
	})
}

// Resubmit applies corrected fields and requeues a returned request
func (e *engineImpl) Resubmit(ctx context.Context, cmd Command, fields entity.RequestFields) (*entity.PurchaseRequest, error) {
	return e.fire(ctx, cmd, transition{
		trigger: domainwf.TriggerResubmit,
		remark:  cmd.Remark,
		mutate: func(txCtx context.Context, req *entity.PurchaseRequest) error {
			if err := fields.Validate(); err != nil {
				return err
			}
			if err := e.checkBudget(txCtx, fields.BudgetID); err != nil {
				return err
			}
			req.ApplyFields(fields)
			req.RejectionCount++
			req.RejectionReason = nil
			return nil
		},
	})
}

// fire runs one transition as a single unit of work:
// load, version check, state check, guard, payload, mutate, save, history, commit, then dispatch.
func (e *engineImpl) fire(ctx context.Context, cmd Command, t transition) (*entity.PurchaseRequest, error) {
	var (
		result *entity.PurchaseRequest
		entry  *entity.ApprovalHistory
	)

	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		req, err := e.load(txCtx, cmd)
		if err != nil {
			return err
		}

		machine := BuildPurchaseStateMachine(req.Status)
		if !machine.CanFire(t.trigger) {
			return &domainwf.TransitionError{Trigger: t.trigger, Current: req.Status}
		}

		if err := domainwf.Authorize(t.trigger, req.Status, cmd.Actor.Principal(), req.RequesterID); err != nil {
			return err
		}

		if t.mutate != nil {
			if err := t.mutate(txCtx, req); err != nil {
				return err
			}
		}

		step, err := machine.Transit(txCtx, t.trigger)
		if err != nil {
			return err
		}

		now := e.now()
		req.Status = step.To
		req.UpdatedAt = now

		if err := e.requestRepo.Save(txCtx, req, req.Version); err != nil {
			return fmt.Errorf("failed to save request %d: %w", req.ID, err)
		}

		entry = &entity.ApprovalHistory{
			RequestID:          req.ID,
			ActorID:            cmd.Actor.ID,
			ActorName:          cmd.Actor.Name,
			ActorRole:          cmd.Actor.Role,
			Action:             t.trigger,
			PreviousStatus:     step.From,
			IntermediateStatus: step.Intermediate(),
			NewStatus:          req.Status,
			Remark:             optionalString(t.remark),
			Timestamp:          now,
		}
		if err := e.historyRepo.Append(txCtx, entry); err != nil {
			return fmt.Errorf("failed to append history for request %d: %w", req.ID, err)
		}

		result = req
		return nil
	})
	if err != nil {
		return nil, asWorkflowError(err)
	}

	e.log("Request transitioned",
		"request_id", result.ID,
		"trigger", t.trigger,
		"from", entry.PreviousStatus,
		"to", entry.NewStatus,
		"actor_id", cmd.Actor.ID,
	)

	payload := map[string]interface{}{
		event.KeyTrigger:   t.trigger,
		event.KeyFrom:      entry.PreviousStatus,
		event.KeyTo:        entry.NewStatus,
		event.KeyActorName: cmd.Actor.Name,
		event.KeyActorRole: cmd.Actor.Role,
	}
	if entry.IntermediateStatus != "" {
		payload[event.KeyIntermediate] = entry.IntermediateStatus
	}
	if entry.Remark != nil {
		payload[event.KeyRemark] = *entry.Remark
	}
	e.emit(ctx, event.NewEvent(event.TypeRequestTransitioned, result.ID, cmd.Actor.ID, payload).WithRequest(result))

	return result, nil
}

// Duplicate copies the descriptive fields into a new draft owned by the caller
func (e *engineImpl) Duplicate(ctx context.Context, cmd Command) (*entity.PurchaseRequest, error) {
	var copyReq *entity.PurchaseRequest

	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		source, err := e.requestRepo.GetByID(txCtx, cmd.RequestID)
		if err != nil {
			return fmt.Errorf("failed to load request %d: %w", cmd.RequestID, err)
		}

		if err := domainwf.Authorize(domainwf.TriggerDuplicate, source.Status, cmd.Actor.Principal(), source.RequesterID); err != nil {
			return err
		}

		now := e.now()
		copyReq = &entity.PurchaseRequest{
			RequesterID:   cmd.Actor.ID,
			RequesterName: cmd.Actor.Name,
			Status:        domainwf.StateRequested,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		copyReq.ApplyFields(source.Fields())

		if err := e.requestRepo.Create(txCtx, copyReq); err != nil {
			return fmt.Errorf("failed to create duplicate of request %d: %w", source.ID, err)
		}
		return nil
	})
	if err != nil {
		return nil, asWorkflowError(err)
	}

	e.log("Request duplicated", "request_id", copyReq.ID, "source_id", cmd.RequestID, "actor_id", cmd.Actor.ID)
	e.emit(ctx, event.NewEvent(event.TypeRequestCreated, copyReq.ID, cmd.Actor.ID, map[string]interface{}{
		event.KeyTo:        copyReq.Status,
		event.KeyActorName: cmd.Actor.Name,
		event.KeyActorRole: cmd.Actor.Role,
		"source_id":        cmd.RequestID,
	}).WithRequest(copyReq))

	return copyReq, nil
}

// Edit changes descriptive fields without moving the request; no history entry is written
func (e *engineImpl) Edit(ctx context.Context, cmd Command, fields entity.RequestFields) (*entity.PurchaseRequest, error) {
	var result *entity.PurchaseRequest

	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		req, err := e.load(txCtx, cmd)
		if err != nil {
			return err
		}

		if err := domainwf.Authorize(domainwf.TriggerEdit, req.Status, cmd.Actor.Principal(), req.RequesterID); err != nil {
			return err
		}
		if err := fields.Validate(); err != nil {
			return err
		}
		if err := e.checkBudget(txCtx, fields.BudgetID); err != nil {
			return err
		}

		req.ApplyFields(fields)
		req.UpdatedAt = e.now()

		if err := e.requestRepo.Save(txCtx, req, req.Version); err != nil {
			return fmt.Errorf("failed to save request %d: %w", req.ID, err)
		}

		result = req
		return nil
	})
	if err != nil {
		return nil, asWorkflowError(err)
	}

	e.log("Request edited", "request_id", result.ID, "actor_id", cmd.Actor.ID)
	e.emit(ctx, event.NewEvent(event.TypeRequestUpdated, result.ID, cmd.Actor.ID, map[string]interface{}{
		event.KeyActorName: cmd.Actor.Name,
	}).WithRequest(result))

	return result, nil
}

// Delete removes the request. Rows cascade in the transaction; blobs go after commit.
func (e *engineImpl) Delete(ctx context.Context, cmd Command) error {
	var (
		deleted *entity.PurchaseRequest
		blobs   []string
	)

	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		req, err := e.load(txCtx, cmd)
		if err != nil {
			return err
		}

		if err := domainwf.Authorize(domainwf.TriggerDelete, req.Status, cmd.Actor.Principal(), req.RequesterID); err != nil {
			return err
		}

		if e.attachmentRepo != nil {
			attachments, err := e.attachmentRepo.ListByRequestID(txCtx, req.ID)
			if err != nil {
				return fmt.Errorf("failed to list attachments of request %d: %w", req.ID, err)
			}
			for _, att := range attachments {
				blobs = append(blobs, att.StorageRef)
			}
		}

		if err := e.requestRepo.Delete(txCtx, req.ID); err != nil {
			return fmt.Errorf("failed to delete request %d: %w", req.ID, err)
		}

		deleted = req
		return nil
	})
	if err != nil {
		return asWorkflowError(err)
	}

	if e.fileStorage != nil {
		for _, ref := range blobs {
			if err := e.fileStorage.Delete(ctx, ref); err != nil {
				e.logError("Failed to delete attachment blob", "request_id", deleted.ID, "storage_ref", ref, "error", err)
			}
		}
	}

	e.log("Request deleted", "request_id", deleted.ID, "actor_id", cmd.Actor.ID)
	e.emit(ctx, event.NewEvent(event.TypeRequestDeleted, deleted.ID, cmd.Actor.ID, map[string]interface{}{
		event.KeyFrom:      deleted.Status,
		event.KeyActorName: cmd.Actor.Name,
	}).WithRequest(deleted))

	return nil
}

// load reads the aggregate and rejects a stale caller version up front
func (e *engineImpl) load(ctx context.Context, cmd Command) (*entity.PurchaseRequest, error) {
	req, err := e.requestRepo.GetByID(ctx, cmd.RequestID)
	if err != nil {
		return nil, fmt.Errorf("failed to load request %d: %w", cmd.RequestID, err)
	}

	if cmd.ExpectedVersion != 0 && cmd.ExpectedVersion != req.Version {
		return nil, fmt.Errorf("request %d is at version %d, caller expected %d: %w",
			req.ID, req.Version, cmd.ExpectedVersion, domainwf.ErrConflict)
	}

	return req, nil
}

func (e *engineImpl) emit(ctx context.Context, evt *event.Event) {
	if e.dispatcher == nil {
		return
	}
	e.dispatcher.DispatchAsync(ctx, evt)
}

func (e *engineImpl) log(msg string, keysAndValues ...interface{}) {
	if e.logger != nil {
		e.logger.Info(msg, keysAndValues...)
	}
}

func (e *engineImpl) logError(msg string, keysAndValues ...interface{}) {
	if e.logger != nil {
		e.logger.Error(msg, keysAndValues...)
	}
}

// checkBudget reports a budget_id with no budget row as a validation error
func (e *engineImpl) checkBudget(ctx context.Context, budgetID *int64) error {
	if budgetID == nil || e.budgetRepo == nil {
		return nil
	}
	if _, err := e.budgetRepo.GetByID(ctx, *budgetID); err != nil {
		if errors.Is(err, domainwf.ErrNotFound) {
			return domainwf.NewValidationError("budget_id", fmt.Sprintf("refers to unknown budget %d", *budgetID))
		}
		return fmt.Errorf("failed to look up budget %d: %w", *budgetID, err)
	}
	return nil
}

// asWorkflowError classifies anything outside the domain taxonomy as a dependency failure
func asWorkflowError(err error) error {
	return domainwf.Classify(err)
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
