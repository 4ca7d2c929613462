package service

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/purchase-workflow/internal/application/port"
	"github.com/garyjia/purchase-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/purchase-workflow/internal/domain/workflow"
)

// DefaultUrgentAfter is how long a request may wait for approval before it is flagged urgent
const DefaultUrgentAfter = 72 * time.Hour

// RequestView is a request plus the advisory flags and actions computed for one viewer
type RequestView struct {
	Request          *entity.PurchaseRequest `json:"request"`
	IsUrgent         bool                    `json:"is_urgent"`
	ExceedsBudget    bool                    `json:"exceeds_budget"`
	Budget           *entity.Budget          `json:"budget,omitempty"`
	AvailableActions []domainwf.Trigger      `json:"available_actions"`
}

// ListQuery selects which requests a viewer wants to see
type ListQuery struct {
	// Statuses filters by state; empty means the viewer's work queue
	Statuses []domainwf.State
	// Mine restricts the listing to requests the viewer created
	Mine   bool
	Limit  int
	Offset int
}

// QueryService answers read-side questions about requests
type QueryService interface {
	Get(ctx context.Context, actor entity.Actor, requestID int64) (*RequestView, error)
	List(ctx context.Context, actor entity.Actor, query ListQuery) ([]*RequestView, error)
	History(ctx context.Context, actor entity.Actor, requestID int64) ([]*entity.ApprovalHistory, error)
}

type queryServiceImpl struct {
	requestRepo port.RequestRepository
	historyRepo port.HistoryRepository
	budgetRepo  port.BudgetRepository
	urgentAfter time.Duration
	now         func() time.Time
	logger      Logger
}

// QueryOption configures the query service
type QueryOption func(*queryServiceImpl)

// WithUrgentAfter sets the urgency threshold
func WithUrgentAfter(d time.Duration) QueryOption {
	return func(s *queryServiceImpl) {
		if d > 0 {
			s.urgentAfter = d
		}
	}
}

// WithQueryClock overrides the time source used for urgency
func WithQueryClock(now func() time.Time) QueryOption {
	return func(s *queryServiceImpl) {
		s.now = now
	}
}

// NewQueryService creates a new QueryService. budgetRepo may be nil.
func NewQueryService(
	requestRepo port.RequestRepository,
	historyRepo port.HistoryRepository,
	budgetRepo port.BudgetRepository,
	logger Logger,
	opts ...QueryOption,
) QueryService {
	s := &queryServiceImpl{
		requestRepo: requestRepo,
		historyRepo: historyRepo,
		budgetRepo:  budgetRepo,
		urgentAfter: DefaultUrgentAfter,
		now:         time.Now,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns one request with its flags, if the actor may view it
func (s *queryServiceImpl) Get(ctx context.Context, actor entity.Actor, requestID int64) (*RequestView, error) {
	req, err := loadViewable(ctx, s.requestRepo, actor, requestID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, actor, req), nil
}

// List returns the actor's queue, own requests, or a status filtered listing.
// Requesters only ever see their own requests.
func (s *queryServiceImpl) List(ctx context.Context, actor entity.Actor, query ListQuery) ([]*RequestView, error) {
	if !actor.Role.IsValid() {
		return nil, &domainwf.ForbiddenError{Trigger: domainwf.TriggerView, Role: actor.Role, Reason: "unknown role"}
	}
	for _, st := range query.Statuses {
		if !st.IsValid() {
			return nil, domainwf.NewValidationError("status", fmt.Sprintf("unknown status %q", st))
		}
	}

	filter := port.RequestFilter{
		Statuses: query.Statuses,
		Limit:    query.Limit,
		Offset:   query.Offset,
	}

	switch {
	case query.Mine || !actor.IsElevated():
		filter.RequesterID = actor.ID
	case len(filter.Statuses) == 0:
		filter.Statuses = domainwf.QueueStates(actor.Role)
	}

	requests, err := s.requestRepo.List(ctx, filter)
	if err != nil {
		s.logger.Error("Failed to list requests", "error", err, "actor_id", actor.ID)
		return nil, domainwf.Classify(err)
	}

	views := make([]*RequestView, 0, len(requests))
	for _, req := range requests {
		views = append(views, s.view(ctx, actor, req))
	}
	return views, nil
}

// History returns the approval trail, ordered oldest first
func (s *queryServiceImpl) History(ctx context.Context, actor entity.Actor, requestID int64) ([]*entity.ApprovalHistory, error) {
	if _, err := loadViewable(ctx, s.requestRepo, actor, requestID); err != nil {
		return nil, err
	}

	records, err := s.historyRepo.ListByRequestID(ctx, requestID)
	if err != nil {
		s.logger.Error("Failed to list history", "error", err, "request_id", requestID)
		return nil, domainwf.Classify(err)
	}
	return records, nil
}

func (s *queryServiceImpl) view(ctx context.Context, actor entity.Actor, req *entity.PurchaseRequest) *RequestView {
	v := &RequestView{
		Request:          req,
		IsUrgent:         req.IsUrgent(s.now(), s.urgentAfter),
		AvailableActions: domainwf.AvailableTriggers(req.Status, actor.Principal(), req.RequesterID),
	}
	if v.AvailableActions == nil {
		v.AvailableActions = []domainwf.Trigger{}
	}

	if req.BudgetID != nil && s.budgetRepo != nil {
		budget, err := s.budgetRepo.GetByID(ctx, *req.BudgetID)
		if err != nil {
			// advisory only
			s.logger.Error("Failed to load budget", "error", err, "request_id", req.ID, "budget_id", *req.BudgetID)
		} else {
			v.Budget = budget
			v.ExceedsBudget = req.ExceedsBudget(budget)
		}
	}

	return v
}
