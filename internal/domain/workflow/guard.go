package workflow

import "sort"

// Role is the workflow role of an acting user
type Role string

const (
	RoleRequester      Role = "requester"
	RoleFirstApprover  Role = "first_approver"
	RoleSecondApprover Role = "second_approver"
	RoleProcurement    Role = "procurement"
	RoleAdmin          Role = "admin"
)

// pseudo-roles resolved against the principal rather than compared by name
const (
	roleOwner    Role = "owner"
	roleElevated Role = "elevated"
	roleAnyone   Role = "anyone"
)

var validRoles = map[Role]bool{
	RoleRequester:      true,
	RoleFirstApprover:  true,
	RoleSecondApprover: true,
	RoleProcurement:    true,
	RoleAdmin:          true,
}

// IsValid reports whether r is a known role
func (r Role) IsValid() bool {
	return validRoles[r]
}

// IsElevated reports whether r holds a privileged role (sees internal comments, manages attachments)
func (r Role) IsElevated() bool {
	return r.IsValid() && r != RoleRequester
}

func (r Role) String() string {
	return string(r)
}

// Principal is the identity a guard is evaluated against
type Principal struct {
	UserID string
	Role   Role
}

// guardTable maps (operation, current state) to the roles allowed to perform it.
// A missing (operation, state) pair means the operation is not legal from that state.
var guardTable = map[Trigger]map[State][]Role{
	TriggerSubmit: {
		StateRequested: {roleOwner},
	},
	TriggerApproveFirst: {
		StatePendingFirstApproval: {RoleFirstApprover, RoleAdmin},
	},
	TriggerApproveSecond: {
		StatePendingSecondApproval: {RoleSecondApprover, RoleAdmin},
	},
	TriggerMarkPurchased: {
		StateInProcurement: {RoleProcurement, RoleAdmin},
	},
	TriggerMarkDelivered: {
		StatePurchased: {RoleProcurement, RoleAdmin},
	},
	TriggerReject:              stageOwners,
	TriggerReturnForCorrection: stageOwners,
	TriggerResubmit: {
		StateReturnedForCorrection: {roleOwner},
	},
	TriggerEdit: {
		StateRequested:             {roleOwner},
		StateReturnedForCorrection: {roleOwner},
	},
	TriggerDelete: {
		StateRequested:            {roleOwner, RoleAdmin},
		StatePendingFirstApproval: {roleOwner, RoleAdmin},
		StateRejected:             {roleOwner, RoleAdmin},
	},
}

// stageOwners lists, for each pending stage, the role that owns the decision
var stageOwners = map[State][]Role{
	StatePendingFirstApproval:  {RoleFirstApprover, RoleAdmin},
	StatePendingSecondApproval: {RoleSecondApprover, RoleAdmin},
	StateInProcurement:         {RoleProcurement, RoleAdmin},
}

// statelessGuards apply regardless of the current state
var statelessGuards = map[Trigger][]Role{
	TriggerCreate:    {roleAnyone},
	TriggerDuplicate: {roleOwner},
	TriggerView:      {roleOwner, roleElevated},
}

// queueTriggers are the forward operations that define "waiting for my action"
var queueTriggers = []Trigger{
	TriggerApproveFirst,
	TriggerApproveSecond,
	TriggerMarkPurchased,
	TriggerMarkDelivered,
}

// Authorize evaluates the guard for an operation against the current state and the actor.
// It returns a *TransitionError when the operation is not legal from the state and a
// *ForbiddenError when the actor does not satisfy the guard.
func Authorize(trigger Trigger, current State, p Principal, ownerID string) error {
	roles, ok := statelessGuards[trigger]
	if !ok {
		byState, known := guardTable[trigger]
		if !known {
			return &TransitionError{Trigger: trigger, Current: current}
		}
		roles, ok = byState[current]
		if !ok {
			return &TransitionError{Trigger: trigger, Current: current}
		}
	}

	if !p.Role.IsValid() {
		return &ForbiddenError{Trigger: trigger, Role: p.Role, Reason: "unknown role"}
	}

	for _, role := range roles {
		if satisfies(role, p, ownerID) {
			return nil
		}
	}

	return &ForbiddenError{Trigger: trigger, Role: p.Role}
}

func satisfies(role Role, p Principal, ownerID string) bool {
	switch role {
	case roleAnyone:
		return true
	case roleOwner:
		return p.UserID != "" && p.UserID == ownerID
	case roleElevated:
		return p.Role.IsElevated()
	default:
		return role == p.Role
	}
}

// AvailableTriggers lists the caller-facing operations the principal may perform now, sorted
func AvailableTriggers(current State, p Principal, ownerID string) []Trigger {
	var triggers []Trigger
	for trigger := range guardTable {
		if Authorize(trigger, current, p, ownerID) == nil {
			triggers = append(triggers, trigger)
		}
	}
	if Authorize(TriggerDuplicate, current, p, ownerID) == nil {
		triggers = append(triggers, TriggerDuplicate)
	}
	sort.Slice(triggers, func(i, j int) bool { return triggers[i] < triggers[j] })
	return triggers
}

// QueueStates returns the states in which a role is expected to act next.
// Admin sees every open state. The requester role has no queue; it works from its own requests instead.
func QueueStates(role Role) []State {
	if role == RoleAdmin {
		var open []State
		for _, s := range AllStates {
			if !s.IsTerminal() && s != StateFirstApproved && s != StateSecondApproved {
				open = append(open, s)
			}
		}
		return open
	}

	seen := make(map[State]bool)
	var states []State
	for _, trigger := range queueTriggers {
		for state, roles := range guardTable[trigger] {
			for _, r := range roles {
				if r == role && !seen[state] {
					seen[state] = true
					states = append(states, state)
				}
			}
		}
	}
	sort.Slice(states, func(i, j int) bool { return stateOrder(states[i]) < stateOrder(states[j]) })
	return states
}

// StageRole returns the non-admin role owning a pending stage, if any
func StageRole(state State) (Role, bool) {
	roles, ok := stageOwners[state]
	if !ok {
		return "", false
	}
	return roles[0], true
}

func stateOrder(s State) int {
	for i, candidate := range AllStates {
		if candidate == s {
			return i
		}
	}
	return len(AllStates)
}

// attachmentOwnerStates are the states in which the owner may still change attachments
var attachmentOwnerStates = map[State]bool{
	StateRequested:             true,
	StatePendingFirstApproval:  true,
	StateReturnedForCorrection: true,
}

// AuthorizeAttachmentWrite checks upload and removal of attachments.
// Elevated roles may always write; the owner only before review starts or while correcting.
func AuthorizeAttachmentWrite(current State, p Principal, ownerID string) error {
	if !p.Role.IsValid() {
		return &ForbiddenError{Role: p.Role, Reason: "unknown role"}
	}
	if p.Role.IsElevated() {
		return nil
	}
	if !satisfies(roleOwner, p, ownerID) {
		return &ForbiddenError{Role: p.Role, Reason: "only the requester or a reviewer may change attachments"}
	}
	if !attachmentOwnerStates[current] {
		return &ForbiddenError{Role: p.Role, Reason: "attachments are locked in state " + string(current)}
	}
	return nil
}

// NextActorRole returns the non-admin role expected to act on a request in state
func NextActorRole(state State) (Role, bool) {
	for _, role := range []Role{RoleFirstApprover, RoleSecondApprover, RoleProcurement} {
		for _, s := range QueueStates(role) {
			if s == state {
				return role, true
			}
		}
	}
	return "", false
}
