package service

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/purchase-workflow/internal/application/dispatcher"
	"github.com/garyjia/purchase-workflow/internal/application/port"
	"github.com/garyjia/purchase-workflow/internal/domain/entity"
	"github.com/garyjia/purchase-workflow/internal/domain/event"
	domainwf "github.com/garyjia/purchase-workflow/internal/domain/workflow"
)

// DefaultMaxUploadBytes caps a single attachment
const DefaultMaxUploadBytes int64 = 10 << 20

// AttachmentService manages files attached to requests. It never changes request status.
type AttachmentService interface {
	Upload(ctx context.Context, actor entity.Actor, requestID int64, file *entity.AttachmentFile) (*entity.Attachment, error)
	List(ctx context.Context, actor entity.Actor, requestID int64) ([]*entity.Attachment, error)
	Download(ctx context.Context, actor entity.Actor, requestID, attachmentID int64) (*entity.Attachment, []byte, error)
	Remove(ctx context.Context, actor entity.Actor, requestID, attachmentID int64) error
}

type attachmentServiceImpl struct {
	requestRepo    port.RequestRepository
	attachmentRepo port.AttachmentRepository
	storage        port.FileStorage
	dispatcher     dispatcher.Dispatcher
	maxBytes       int64
	logger         Logger
}

// NewAttachmentService creates a new AttachmentService. d may be nil; maxBytes <= 0 uses the default.
func NewAttachmentService(
	requestRepo port.RequestRepository,
	attachmentRepo port.AttachmentRepository,
	storage port.FileStorage,
	d dispatcher.Dispatcher,
	maxBytes int64,
	logger Logger,
) AttachmentService {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &attachmentServiceImpl{
		requestRepo:    requestRepo,
		attachmentRepo: attachmentRepo,
		storage:        storage,
		dispatcher:     d,
		maxBytes:       maxBytes,
		logger:         logger,
	}
}

// Upload stores the blob under <requestID>/<uuid><ext> and records its metadata
func (s *attachmentServiceImpl) Upload(ctx context.Context, actor entity.Actor, requestID int64, file *entity.AttachmentFile) (*entity.Attachment, error) {
	req, err := s.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, domainwf.Classify(err)
	}
	if err := domainwf.AuthorizeAttachmentWrite(req.Status, actor.Principal(), req.RequesterID); err != nil {
		return nil, err
	}

	if file == nil || len(file.Content) == 0 {
		return nil, domainwf.NewValidationError("file", "is required")
	}
	if int64(len(file.Content)) > s.maxBytes {
		return nil, domainwf.NewValidationError("file", fmt.Sprintf("exceeds the %d byte limit", s.maxBytes))
	}

	originalName := filepath.Base(strings.TrimSpace(file.FileName))
	if originalName == "." || originalName == string(filepath.Separator) || originalName == "" {
		return nil, domainwf.NewValidationError("file", "name is required")
	}

	ext := strings.ToLower(filepath.Ext(originalName))
	storedName := uuid.NewString() + ext
	mimeType := file.MimeType
	if mimeType == "" {
		mimeType = mime.TypeByExtension(ext)
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	att := &entity.Attachment{
		RequestID:    requestID,
		FileName:     storedName,
		OriginalName: originalName,
		MimeType:     mimeType,
		SizeBytes:    int64(len(file.Content)),
		StorageRef:   fmt.Sprintf("%d/%s", requestID, storedName),
		UploaderID:   actor.ID,
		CreatedAt:    time.Now(),
	}

	if err := s.storage.Save(ctx, att.StorageRef, file.Content); err != nil {
		s.logger.Error("Failed to store attachment", "error", err, "request_id", requestID)
		return nil, domainwf.Classify(fmt.Errorf("store attachment: %w", err))
	}

	if err := s.attachmentRepo.Create(ctx, att); err != nil {
		s.logger.Error("Failed to record attachment", "error", err, "request_id", requestID)
		if delErr := s.storage.Delete(ctx, att.StorageRef); delErr != nil {
			s.logger.Error("Failed to remove orphaned blob", "error", delErr, "storage_ref", att.StorageRef)
		}
		return nil, domainwf.Classify(fmt.Errorf("record attachment: %w", err))
	}

	s.logger.Info("Attachment uploaded",
		"request_id", requestID,
		"attachment_id", att.ID,
		"size_bytes", att.SizeBytes,
		"actor_id", actor.ID,
	)
	s.emit(ctx, event.NewEvent(event.TypeAttachmentAdded, requestID, actor.ID, map[string]interface{}{
		event.KeyAttachmentID: att.ID,
		event.KeyActorName:    actor.Name,
	}))

	return att, nil
}

// List returns attachment metadata of a viewable request
func (s *attachmentServiceImpl) List(ctx context.Context, actor entity.Actor, requestID int64) ([]*entity.Attachment, error) {
	if _, err := loadViewable(ctx, s.requestRepo, actor, requestID); err != nil {
		return nil, err
	}

	attachments, err := s.attachmentRepo.ListByRequestID(ctx, requestID)
	if err != nil {
		return nil, domainwf.Classify(err)
	}
	return attachments, nil
}

// Download returns the metadata and content of one attachment
func (s *attachmentServiceImpl) Download(ctx context.Context, actor entity.Actor, requestID, attachmentID int64) (*entity.Attachment, []byte, error) {
	if _, err := loadViewable(ctx, s.requestRepo, actor, requestID); err != nil {
		return nil, nil, err
	}

	att, err := s.find(ctx, requestID, attachmentID)
	if err != nil {
		return nil, nil, err
	}

	content, err := s.storage.Read(ctx, att.StorageRef)
	if err != nil {
		s.logger.Error("Failed to read attachment", "error", err, "attachment_id", attachmentID)
		return nil, nil, domainwf.Classify(fmt.Errorf("read attachment: %w", err))
	}
	return att, content, nil
}

// Remove deletes the metadata, then the blob on a best-effort basis
func (s *attachmentServiceImpl) Remove(ctx context.Context, actor entity.Actor, requestID, attachmentID int64) error {
	req, err := s.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		return domainwf.Classify(err)
	}
	if err := domainwf.AuthorizeAttachmentWrite(req.Status, actor.Principal(), req.RequesterID); err != nil {
		return err
	}

	att, err := s.find(ctx, requestID, attachmentID)
	if err != nil {
		return err
	}

	if err := s.attachmentRepo.Delete(ctx, att.ID); err != nil {
		return domainwf.Classify(err)
	}
	if err := s.storage.Delete(ctx, att.StorageRef); err != nil {
		s.logger.Error("Failed to delete attachment blob", "error", err, "storage_ref", att.StorageRef)
	}

	s.logger.Info("Attachment removed", "request_id", requestID, "attachment_id", att.ID, "actor_id", actor.ID)
	s.emit(ctx, event.NewEvent(event.TypeAttachmentRemoved, requestID, actor.ID, map[string]interface{}{
		event.KeyAttachmentID: att.ID,
		event.KeyActorName:    actor.Name,
	}))
	return nil
}

// find loads an attachment and checks it belongs to the request
func (s *attachmentServiceImpl) find(ctx context.Context, requestID, attachmentID int64) (*entity.Attachment, error) {
	att, err := s.attachmentRepo.GetByID(ctx, attachmentID)
	if err != nil {
		return nil, domainwf.Classify(err)
	}
	if att.RequestID != requestID {
		return nil, fmt.Errorf("attachment %d of request %d: %w", attachmentID, requestID, domainwf.ErrNotFound)
	}
	return att, nil
}

func (s *attachmentServiceImpl) emit(ctx context.Context, evt *event.Event) {
	if s.dispatcher != nil {
		s.dispatcher.DispatchAsync(ctx, evt)
	}
}
