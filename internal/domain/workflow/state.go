package workflow

// State represents a purchase request status in the approval lifecycle
type State string

const (
	StateRequested             State = "REQUESTED"
	StatePendingFirstApproval  State = "PENDING_FIRST_APPROVAL"
	StateFirstApproved         State = "FIRST_APPROVED"
	StatePendingSecondApproval State = "PENDING_SECOND_APPROVAL"
	StateSecondApproved        State = "SECOND_APPROVED"
	StateInProcurement         State = "IN_PROCUREMENT"
	StatePurchased             State = "PURCHASED"
	StateDelivered             State = "DELIVERED"
	StateRejected              State = "REJECTED"
	StateReturnedForCorrection State = "RETURNED_FOR_CORRECTION"
)

// AllStates lists every valid state in lifecycle order
var AllStates = []State{
	StateRequested,
	StatePendingFirstApproval,
	StateFirstApproved,
	StatePendingSecondApproval,
	StateSecondApproved,
	StateInProcurement,
	StatePurchased,
	StateDelivered,
	StateRejected,
	StateReturnedForCorrection,
}

var validStates = map[State]bool{
	StateRequested:             true,
	StatePendingFirstApproval:  true,
	StateFirstApproved:         true,
	StatePendingSecondApproval: true,
	StateSecondApproved:        true,
	StateInProcurement:         true,
	StatePurchased:             true,
	StateDelivered:             true,
	StateRejected:              true,
	StateReturnedForCorrection: true,
}

var terminalStates = map[State]bool{
	StateDelivered: true,
	StateRejected:  true,
}

// preApprovalStates are the states counted by the urgency check
var preApprovalStates = map[State]bool{
	StateRequested:             true,
	StatePendingFirstApproval:  true,
	StatePendingSecondApproval: true,
}

// IsTerminal returns true if the state is a terminal state (no further transitions allowed)
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// IsPreApproval returns true while the request still waits for an approval decision
func (s State) IsPreApproval() bool {
	return preApprovalStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a valid workflow state
func (s State) IsValid() bool {
	return validStates[s]
}
