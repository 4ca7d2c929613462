package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/purchase-workflow/internal/application/service"
	"github.com/garyjia/purchase-workflow/internal/application/workflow"
	"github.com/garyjia/purchase-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/purchase-workflow/internal/domain/workflow"
	"github.com/garyjia/purchase-workflow/pkg/utils"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	services       Services
	maxUploadBytes int64
	logger         Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(services Services, maxUploadBytes int64, logger Logger) *Handlers {
	if maxUploadBytes <= 0 {
		maxUploadBytes = service.DefaultMaxUploadBytes
	}
	return &Handlers{
		services:       services,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success       bool        `json:"success"`
	Data          interface{} `json:"data,omitempty"`
	Error         string      `json:"error,omitempty"`
	Field         string      `json:"field,omitempty"`
	CurrentStatus string      `json:"current_status,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// ListRequestsQuery represents query parameters for listing requests
type ListRequestsQuery struct {
	Status []string `form:"status"`
	Mine   bool     `form:"mine"`
	Limit  int      `form:"limit"`
	Offset int      `form:"offset"`
}

// ActionRequest carries the optional remark of a transition
type ActionRequest struct {
	Remark string `json:"remark"`
}

// RejectRequest carries the reason of a reject or return for correction
type RejectRequest struct {
	Reason        string `json:"reason"`
	ForCorrection bool   `json:"for_correction"`
}

// CommentRequest is the body of POST /comments
type CommentRequest struct {
	Body     string `json:"body"`
	Internal bool   `json:"internal"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   "1.0.0",
		},
	})
}

// ListRequests handles GET /api/requests
func (h *Handlers) ListRequests(c *gin.Context) {
	actor, _ := actorFrom(c)

	var q ListRequestsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, "invalid query parameters")
		return
	}

	if q.Limit <= 0 {
		q.Limit = defaultListLimit
	}
	if q.Limit > maxListLimit {
		q.Limit = maxListLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	query := service.ListQuery{Mine: q.Mine, Limit: q.Limit, Offset: q.Offset}
	for _, raw := range q.Status {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				query.Statuses = append(query.Statuses, domainwf.State(strings.ToUpper(s)))
			}
		}
	}

	views, err := h.services.Query.List(c.Request.Context(), actor, query)
	if err != nil {
		h.writeError(c, "list requests", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: views})
}

// CreateRequest handles POST /api/requests
func (h *Handlers) CreateRequest(c *gin.Context) {
	actor, _ := actorFrom(c)

	var fields entity.RequestFields
	if err := c.ShouldBindJSON(&fields); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	req, err := h.services.Engine.Create(c.Request.Context(), actor, fields)
	if err != nil {
		h.writeError(c, "create request", err)
		return
	}

	setETag(c, req.Version)
	c.JSON(http.StatusCreated, Response{Success: true, Data: req})
}

// GetRequest handles GET /api/requests/:id
func (h *Handlers) GetRequest(c *gin.Context) {
	actor, _ := actorFrom(c)
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	view, err := h.services.Query.Get(c.Request.Context(), actor, id)
	if err != nil {
		h.writeError(c, "get request", err)
		return
	}

	setETag(c, view.Request.Version)
	c.JSON(http.StatusOK, Response{Success: true, Data: view})
}

// EditRequest handles PUT /api/requests/:id
func (h *Handlers) EditRequest(c *gin.Context) {
	cmd, ok := h.command(c)
	if !ok {
		return
	}

	var fields entity.RequestFields
	if err := c.ShouldBindJSON(&fields); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	req, err := h.services.Engine.Edit(c.Request.Context(), cmd, fields)
	h.respondRequest(c, "edit request", req, err)
}

// DeleteRequest handles DELETE /api/requests/:id
func (h *Handlers) DeleteRequest(c *gin.Context) {
	cmd, ok := h.command(c)
	if !ok {
		return
	}

	if err := h.services.Engine.Delete(c.Request.Context(), cmd); err != nil {
		h.writeError(c, "delete request", err)
		return
	}

	c.Status(http.StatusNoContent)
}

// Submit handles POST /api/requests/:id/submit
func (h *Handlers) Submit(c *gin.Context) {
	h.transition(c, "submit", h.services.Engine.Submit)
}

// ApproveFirst handles POST /api/requests/:id/approve-first
func (h *Handlers) ApproveFirst(c *gin.Context) {
	h.transition(c, "approve first", h.services.Engine.ApproveFirst)
}

// ApproveSecond handles POST /api/requests/:id/approve-second
func (h *Handlers) ApproveSecond(c *gin.Context) {
	h.transition(c, "approve second", h.services.Engine.ApproveSecond)
}

// MarkPurchased handles POST /api/requests/:id/purchase
func (h *Handlers) MarkPurchased(c *gin.Context) {
	h.transition(c, "mark purchased", h.services.Engine.MarkPurchased)
}

// MarkDelivered handles POST /api/requests/:id/deliver
func (h *Handlers) MarkDelivered(c *gin.Context) {
	h.transition(c, "mark delivered", h.services.Engine.MarkDelivered)
}

// Duplicate handles POST /api/requests/:id/duplicate
func (h *Handlers) Duplicate(c *gin.Context) {
	cmd, ok := h.command(c)
	if !ok {
		return
	}

	req, err := h.services.Engine.Duplicate(c.Request.Context(), cmd)
	if err != nil {
		h.writeError(c, "duplicate request", err)
		return
	}

	setETag(c, req.Version)
	c.JSON(http.StatusCreated, Response{Success: true, Data: req})
}

// Reject handles POST /api/requests/:id/reject
func (h *Handlers) Reject(c *gin.Context) {
	cmd, ok := h.command(c)
	if !ok {
		return
	}

	var body RejectRequest
	if err := bindOptionalJSON(c, &body); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	reason := utils.SanitizeText(body.Reason)
	cmd.Remark = reason

	req, err := h.services.Engine.Reject(c.Request.Context(), cmd, reason, body.ForCorrection)
	h.respondRequest(c, "reject", req, err)
}

// Resubmit handles POST /api/requests/:id/resubmit
func (h *Handlers) Resubmit(c *gin.Context) {
	cmd, ok := h.command(c)
	if !ok {
		return
	}

	var fields entity.RequestFields
	if err := c.ShouldBindJSON(&fields); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	req, err := h.services.Engine.Resubmit(c.Request.Context(), cmd, fields)
	h.respondRequest(c, "resubmit", req, err)
}

// GetHistory handles GET /api/requests/:id/history
func (h *Handlers) GetHistory(c *gin.Context) {
	actor, _ := actorFrom(c)
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	history, err := h.services.Query.History(c.Request.Context(), actor, id)
	if err != nil {
		h.writeError(c, "get history", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: history})
}

// ExportHistory handles GET /api/requests/:id/history/export
func (h *Handlers) ExportHistory(c *gin.Context) {
	actor, _ := actorFrom(c)
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	file, err := h.services.Export.ExportHistory(c.Request.Context(), actor, id)
	if err != nil {
		h.writeError(c, "export history", err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.FileName))
	c.Data(http.StatusOK, file.ContentType, file.Content)
}

// ListAttachments handles GET /api/requests/:id/attachments
func (h *Handlers) ListAttachments(c *gin.Context) {
	actor, _ := actorFrom(c)
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	attachments, err := h.services.Attachments.List(c.Request.Context(), actor, id)
	if err != nil {
		h.writeError(c, "list attachments", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: attachments})
}

// UploadAttachment handles POST /api/requests/:id/attachments (multipart field "file")
func (h *Handlers) UploadAttachment(c *gin.Context) {
	actor, _ := actorFrom(c)
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "multipart field \"file\" is required")
		return
	}
	if header.Size > h.maxUploadBytes {
		h.writeError(c, "upload attachment",
			domainwf.NewValidationError("file", fmt.Sprintf("exceeds the %d byte limit", h.maxUploadBytes)))
		return
	}

	content, err := readUpload(header, h.maxUploadBytes)
	if err != nil {
		badRequest(c, "failed to read uploaded file")
		return
	}

	att, err := h.services.Attachments.Upload(c.Request.Context(), actor, id, &entity.AttachmentFile{
		Content:  content,
		FileName: header.Filename,
		MimeType: header.Header.Get("Content-Type"),
		Size:     header.Size,
	})
	if err != nil {
		h.writeError(c, "upload attachment", err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: att})
}

// DownloadAttachment handles GET /api/requests/:id/attachments/:attachmentId/download
func (h *Handlers) DownloadAttachment(c *gin.Context) {
	actor, _ := actorFrom(c)
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	attachmentID, ok := pathID(c, "attachmentId")
	if !ok {
		return
	}

	att, content, err := h.services.Attachments.Download(c.Request.Context(), actor, id, attachmentID)
	if err != nil {
		h.writeError(c, "download attachment", err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", att.OriginalName))
	c.Data(http.StatusOK, att.MimeType, content)
}

// RemoveAttachment handles DELETE /api/requests/:id/attachments/:attachmentId
func (h *Handlers) RemoveAttachment(c *gin.Context) {
	actor, _ := actorFrom(c)
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	attachmentID, ok := pathID(c, "attachmentId")
	if !ok {
		return
	}

	if err := h.services.Attachments.Remove(c.Request.Context(), actor, id, attachmentID); err != nil {
		h.writeError(c, "remove attachment", err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ListComments handles GET /api/requests/:id/comments
func (h *Handlers) ListComments(c *gin.Context) {
	actor, _ := actorFrom(c)
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	comments, err := h.services.Comments.List(c.Request.Context(), actor, id)
	if err != nil {
		h.writeError(c, "list comments", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: comments})
}

// AddComment handles POST /api/requests/:id/comments
func (h *Handlers) AddComment(c *gin.Context) {
	actor, _ := actorFrom(c)
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var body CommentRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	comment, err := h.services.Comments.Add(c.Request.Context(), actor, id, utils.SanitizeText(body.Body), body.Internal)
	if err != nil {
		h.writeError(c, "add comment", err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: comment})
}

// RemoveComment handles DELETE /api/requests/:id/comments/:commentId
func (h *Handlers) RemoveComment(c *gin.Context) {
	actor, _ := actorFrom(c)
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	commentID, ok := pathID(c, "commentId")
	if !ok {
		return
	}

	if err := h.services.Comments.Remove(c.Request.Context(), actor, id, commentID); err != nil {
		h.writeError(c, "remove comment", err)
		return
	}

	c.Status(http.StatusNoContent)
}

// Subscribe handles GET /api/requests/:id/ws
func (h *Handlers) Subscribe(c *gin.Context) {
	actor, _ := actorFrom(c)
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if h.services.Realtime == nil {
		c.JSON(http.StatusServiceUnavailable, Response{Success: false, Error: "real-time updates are disabled"})
		return
	}

	// VIEW guard before upgrading
	if _, err := h.services.Query.Get(c.Request.Context(), actor, id); err != nil {
		h.writeError(c, "subscribe", err)
		return
	}

	// the upgrader has already written its own response on failure
	if err := h.services.Realtime.ServeWS(c.Writer, c.Request, id, actor.ID); err != nil {
		h.logger.Error("Websocket upgrade failed", "error", err, "request_id", id, "actor_id", actor.ID)
	}
}

// transition runs a remark-only engine operation
func (h *Handlers) transition(
	c *gin.Context,
	op string,
	fn func(ctx context.Context, cmd workflow.Command) (*entity.PurchaseRequest, error),
) {
	cmd, ok := h.command(c)
	if !ok {
		return
	}

	var body ActionRequest
	if err := bindOptionalJSON(c, &body); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	cmd.Remark = utils.SanitizeText(body.Remark)

	req, err := fn(c.Request.Context(), cmd)
	h.respondRequest(c, op, req, err)
}

func (h *Handlers) respondRequest(c *gin.Context, op string, req *entity.PurchaseRequest, err error) {
	if err != nil {
		h.writeError(c, op, err)
		return
	}
	setETag(c, req.Version)
	c.JSON(http.StatusOK, Response{Success: true, Data: req})
}

// command builds an engine command from the actor, the path id and If-Match
func (h *Handlers) command(c *gin.Context) (workflow.Command, bool) {
	actor, _ := actorFrom(c)
	id, ok := pathID(c, "id")
	if !ok {
		return workflow.Command{}, false
	}

	version, ok := expectedVersion(c)
	if !ok {
		badRequest(c, "invalid If-Match header")
		return workflow.Command{}, false
	}

	return workflow.Command{Actor: actor, RequestID: id, ExpectedVersion: version}, true
}

func pathID(c *gin.Context, name string) (int64, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, fmt.Sprintf("invalid %s", name))
		return 0, false
	}
	return id, true
}

// bindOptionalJSON binds a JSON body when one was sent
func bindOptionalJSON(c *gin.Context, obj interface{}) error {
	if err := c.ShouldBindJSON(obj); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func readUpload(header *multipart.FileHeader, limit int64) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return io.ReadAll(io.LimitReader(f, limit+1))
}
