package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/purchase-workflow/internal/domain/entity"
)

// Payload keys shared by publishers and subscribers
const (
	KeyTrigger      = "trigger"
	KeyFrom         = "from"
	KeyTo           = "to"
	KeyIntermediate = "intermediate"
	KeyRemark       = "remark"
	KeyActorName    = "actor_name"
	KeyActorRole    = "actor_role"
	KeyAttachmentID = "attachment_id"
	KeyCommentID    = "comment_id"
	KeyInternal     = "internal"
)

// Event represents a domain event emitted after a committed change
type Event struct {
	ID            string                  `json:"id"`
	Type          Type                    `json:"type"`
	RequestID     int64                   `json:"request_id"`
	ActorID       string                  `json:"actor_id"`
	Request       *entity.PurchaseRequest `json:"request,omitempty"`
	Payload       map[string]interface{}  `json:"payload"`
	Timestamp     time.Time               `json:"timestamp"`
	CorrelationID string                  `json:"correlation_id"`
}

// NewEvent creates a new domain event with generated ID and timestamp
func NewEvent(eventType Type, requestID int64, actorID string, payload map[string]interface{}) *Event {
	id := uuid.NewString()
	if payload == nil {
		payload = make(map[string]interface{})
	}
	return &Event{
		ID:            id,
		Type:          eventType,
		RequestID:     requestID,
		ActorID:       actorID,
		Payload:       payload,
		Timestamp:     time.Now(),
		CorrelationID: id,
	}
}

// WithRequest returns a copy of the event carrying a snapshot of the request
func (e *Event) WithRequest(req *entity.PurchaseRequest) *Event {
	clone := *e
	if req != nil {
		snapshot := *req
		clone.Request = &snapshot
	}
	return &clone
}

// WithPayload returns a new Event with an added payload key-value pair
func (e *Event) WithPayload(key string, value interface{}) *Event {
	newPayload := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		newPayload[k] = v
	}
	newPayload[key] = value

	clone := *e
	clone.Payload = newPayload
	return &clone
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if val, ok := e.Payload[key]; ok {
		switch v := val.(type) {
		case string:
			return v
		case interface{ String() string }:
			return v.String()
		}
	}
	return ""
}

// GetPayloadInt retrieves an int64 value from the payload
func (e *Event) GetPayloadInt(key string) int64 {
	if val, ok := e.Payload[key]; ok {
		switch v := val.(type) {
		case int64:
			return v
		case int:
			return int64(v)
		case float64:
			return int64(v)
		}
	}
	return 0
}

// GetPayloadBool retrieves a bool value from the payload
func (e *Event) GetPayloadBool(key string) bool {
	if val, ok := e.Payload[key]; ok {
		if b, ok := val.(bool); ok {
			return b
		}
	}
	return false
}
