package workflow

// Trigger represents an operation that can cause a state transition
type Trigger string

const (
	TriggerSubmit              Trigger = "SUBMIT"
	TriggerApproveFirst        Trigger = "APPROVE_FIRST"
	TriggerApproveSecond       Trigger = "APPROVE_SECOND"
	TriggerMarkPurchased       Trigger = "MARK_PURCHASED"
	TriggerMarkDelivered       Trigger = "MARK_DELIVERED"
	TriggerReject              Trigger = "REJECT"
	TriggerReturnForCorrection Trigger = "RETURN_FOR_CORRECTION"
	TriggerResubmit            Trigger = "RESUBMIT"

	// TriggerAdvance moves an approved state into the next pending queue.
	// It is fired by the engine, never by a caller.
	TriggerAdvance Trigger = "ADVANCE"
)

// Operations that do not move the state but are still checked by the guard table
const (
	TriggerCreate    Trigger = "CREATE"
	TriggerEdit      Trigger = "EDIT"
	TriggerDuplicate Trigger = "DUPLICATE"
	TriggerDelete    Trigger = "DELETE"
	TriggerView      Trigger = "VIEW"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
