package service

import (
	"context"
	"fmt"

	"github.com/garyjia/purchase-workflow/internal/application/port"
	"github.com/garyjia/purchase-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/purchase-workflow/internal/domain/workflow"
)

// ExportedFile is a rendered document ready for download
type ExportedFile struct {
	FileName    string
	ContentType string
	Content     []byte
}

// ExportService renders a request's approval trail for download
type ExportService interface {
	ExportHistory(ctx context.Context, actor entity.Actor, requestID int64) (*ExportedFile, error)
}

type exportServiceImpl struct {
	requestRepo port.RequestRepository
	historyRepo port.HistoryRepository
	renderer    port.HistoryRenderer
	logger      Logger
}

// NewExportService creates a new ExportService
func NewExportService(
	requestRepo port.RequestRepository,
	historyRepo port.HistoryRepository,
	renderer port.HistoryRenderer,
	logger Logger,
) ExportService {
	return &exportServiceImpl{
		requestRepo: requestRepo,
		historyRepo: historyRepo,
		renderer:    renderer,
		logger:      logger,
	}
}

// ExportHistory applies the VIEW guard and renders the request with its history
func (s *exportServiceImpl) ExportHistory(ctx context.Context, actor entity.Actor, requestID int64) (*ExportedFile, error) {
	req, err := loadViewable(ctx, s.requestRepo, actor, requestID)
	if err != nil {
		return nil, err
	}

	history, err := s.historyRepo.ListByRequestID(ctx, requestID)
	if err != nil {
		return nil, domainwf.Classify(err)
	}

	content, err := s.renderer.Render(req, history)
	if err != nil {
		s.logger.Error("Failed to render history export", "error", err, "request_id", requestID)
		return nil, fmt.Errorf("render history of request %d: %w", requestID, err)
	}

	s.logger.Info("History exported", "request_id", requestID, "entries", len(history), "actor_id", actor.ID)

	return &ExportedFile{
		FileName:    fmt.Sprintf("purchase-request-%d-history%s", requestID, s.renderer.Extension()),
		ContentType: s.renderer.ContentType(),
		Content:     content,
	}, nil
}
