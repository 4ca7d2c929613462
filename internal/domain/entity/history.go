package entity

import (
	"time"

	"github.com/garyjia/purchase-workflow/internal/domain/workflow"
)

// ApprovalHistory is one immutable entry of a request's audit trail
type ApprovalHistory struct {
	ID             int64            `json:"id"`
	RequestID      int64            `json:"request_id"`
	ActorID        string           `json:"actor_id"`
	ActorName      string           `json:"actor_name"`
	ActorRole      workflow.Role    `json:"actor_role"`
	Action         workflow.Trigger `json:"action"`
	PreviousStatus workflow.State   `json:"previous_status"`
	// IntermediateStatus is the approved state passed through on auto-advance, empty otherwise
	IntermediateStatus workflow.State `json:"intermediate_status,omitempty"`
	NewStatus          workflow.State `json:"new_status"`
	Remark             *string        `json:"remark,omitempty"`
	Timestamp          time.Time      `json:"timestamp"`
}
