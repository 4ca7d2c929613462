package event

// Type identifies the type of domain event
type Type string

const (
	TypeRequestCreated      Type = "request.created"
	TypeRequestTransitioned Type = "request.transitioned"
	TypeRequestUpdated      Type = "request.updated"
	TypeRequestDeleted      Type = "request.deleted"
	TypeAttachmentAdded     Type = "attachment.added"
	TypeAttachmentRemoved   Type = "attachment.removed"
	TypeCommentAdded        Type = "comment.added"
	TypeCommentRemoved      Type = "comment.removed"
)

// AllTypes lists every event type
var AllTypes = []Type{
	TypeRequestCreated,
	TypeRequestTransitioned,
	TypeRequestUpdated,
	TypeRequestDeleted,
	TypeAttachmentAdded,
	TypeAttachmentRemoved,
	TypeCommentAdded,
	TypeCommentRemoved,
}

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	for _, known := range AllTypes {
		if t == known {
			return true
		}
	}
	return false
}
