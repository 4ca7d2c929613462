package service

import (
	"context"

	"github.com/garyjia/purchase-workflow/internal/application/port"
	"github.com/garyjia/purchase-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/purchase-workflow/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// loadViewable loads a request and applies the VIEW guard
func loadViewable(ctx context.Context, repo port.RequestRepository, actor entity.Actor, requestID int64) (*entity.PurchaseRequest, error) {
	req, err := repo.GetByID(ctx, requestID)
	if err != nil {
		return nil, domainwf.Classify(err)
	}
	if err := domainwf.Authorize(domainwf.TriggerView, req.Status, actor.Principal(), req.RequesterID); err != nil {
		return nil, err
	}
	return req, nil
}
