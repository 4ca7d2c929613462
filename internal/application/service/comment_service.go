package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/purchase-workflow/internal/application/dispatcher"
	"github.com/garyjia/purchase-workflow/internal/application/port"
	"github.com/garyjia/purchase-workflow/internal/domain/entity"
	"github.com/garyjia/purchase-workflow/internal/domain/event"
	domainwf "github.com/garyjia/purchase-workflow/internal/domain/workflow"
)

// CommentService manages remarks posted on requests. Comments are never edited.
type CommentService interface {
	Add(ctx context.Context, actor entity.Actor, requestID int64, body string, internal bool) (*entity.Comment, error)
	List(ctx context.Context, actor entity.Actor, requestID int64) ([]*entity.Comment, error)
	Remove(ctx context.Context, actor entity.Actor, requestID, commentID int64) error
}

type commentServiceImpl struct {
	requestRepo port.RequestRepository
	commentRepo port.CommentRepository
	dispatcher  dispatcher.Dispatcher
	logger      Logger
}

// NewCommentService creates a new CommentService. d may be nil.
func NewCommentService(
	requestRepo port.RequestRepository,
	commentRepo port.CommentRepository,
	d dispatcher.Dispatcher,
	logger Logger,
) CommentService {
	return &commentServiceImpl{
		requestRepo: requestRepo,
		commentRepo: commentRepo,
		dispatcher:  d,
		logger:      logger,
	}
}

// Add posts a comment. Internal comments are reserved for elevated roles.
func (s *commentServiceImpl) Add(ctx context.Context, actor entity.Actor, requestID int64, body string, internal bool) (*entity.Comment, error) {
	if _, err := loadViewable(ctx, s.requestRepo, actor, requestID); err != nil {
		return nil, err
	}
	if internal && !actor.IsElevated() {
		return nil, &domainwf.ForbiddenError{Role: actor.Role, Reason: "internal comments require a reviewer role"}
	}

	body = strings.TrimSpace(body)
	if body == "" {
		return nil, domainwf.NewValidationError("body", "is required")
	}

	comment := &entity.Comment{
		RequestID:  requestID,
		AuthorID:   actor.ID,
		AuthorName: actor.Name,
		Body:       body,
		IsInternal: internal,
		CreatedAt:  time.Now(),
	}
	if err := s.commentRepo.Create(ctx, comment); err != nil {
		s.logger.Error("Failed to create comment", "error", err, "request_id", requestID)
		return nil, domainwf.Classify(err)
	}

	s.logger.Info("Comment added", "request_id", requestID, "comment_id", comment.ID, "internal", internal)
	s.emit(ctx, event.NewEvent(event.TypeCommentAdded, requestID, actor.ID, map[string]interface{}{
		event.KeyCommentID: comment.ID,
		event.KeyInternal:  internal,
		event.KeyActorName: actor.Name,
	}))
	return comment, nil
}

// List returns the comments the actor may see, oldest first
func (s *commentServiceImpl) List(ctx context.Context, actor entity.Actor, requestID int64) ([]*entity.Comment, error) {
	if _, err := loadViewable(ctx, s.requestRepo, actor, requestID); err != nil {
		return nil, err
	}

	comments, err := s.commentRepo.ListByRequestID(ctx, requestID)
	if err != nil {
		return nil, domainwf.Classify(err)
	}

	elevated := actor.IsElevated()
	visible := make([]*entity.Comment, 0, len(comments))
	for _, c := range comments {
		if c.VisibleTo(elevated) {
			visible = append(visible, c)
		}
	}
	return visible, nil
}

// Remove deletes a comment; only its author or an admin may do so
func (s *commentServiceImpl) Remove(ctx context.Context, actor entity.Actor, requestID, commentID int64) error {
	if _, err := loadViewable(ctx, s.requestRepo, actor, requestID); err != nil {
		return err
	}

	comment, err := s.commentRepo.GetByID(ctx, commentID)
	if err != nil {
		return domainwf.Classify(err)
	}
	if comment.RequestID != requestID || !comment.VisibleTo(actor.IsElevated()) {
		return fmt.Errorf("comment %d of request %d: %w", commentID, requestID, domainwf.ErrNotFound)
	}
	if comment.AuthorID != actor.ID && actor.Role != domainwf.RoleAdmin {
		return &domainwf.ForbiddenError{Role: actor.Role, Reason: "only the author or an admin may delete a comment"}
	}

	if err := s.commentRepo.Delete(ctx, commentID); err != nil {
		return domainwf.Classify(err)
	}

	s.logger.Info("Comment removed", "request_id", requestID, "comment_id", commentID, "actor_id", actor.ID)
	s.emit(ctx, event.NewEvent(event.TypeCommentRemoved, requestID, actor.ID, map[string]interface{}{
		event.KeyCommentID: commentID,
		event.KeyActorName: actor.Name,
	}))
	return nil
}

func (s *commentServiceImpl) emit(ctx context.Context, evt *event.Event) {
	if s.dispatcher != nil {
		s.dispatcher.DispatchAsync(ctx, evt)
	}
}
