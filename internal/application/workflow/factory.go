package workflow

import (
	domainwf "github.com/garyjia/purchase-workflow/internal/domain/workflow"
)

// BuildPurchaseStateMachine creates a state machine configured for the purchase approval workflow
func BuildPurchaseStateMachine(initialState domainwf.State) domainwf.StateMachine {
	builder := domainwf.NewBuilder()

	builder.Configure(domainwf.StateRequested).
		Permit(domainwf.TriggerSubmit, domainwf.StatePendingFirstApproval)

	builder.Configure(domainwf.StatePendingFirstApproval).
		Permit(domainwf.TriggerApproveFirst, domainwf.StateFirstApproved).
		Permit(domainwf.TriggerReject, domainwf.StateRejected).
		Permit(domainwf.TriggerReturnForCorrection, domainwf.StateReturnedForCorrection)

	// Approved states are transient and never persisted
	builder.Configure(domainwf.StateFirstApproved).
		AdvanceTo(domainwf.StatePendingSecondApproval)

	builder.Configure(domainwf.StatePendingSecondApproval).
		Permit(domainwf.TriggerApproveSecond, domainwf.StateSecondApproved).
		Permit(domainwf.TriggerReject, domainwf.StateRejected).
		Permit(domainwf.TriggerReturnForCorrection, domainwf.StateReturnedForCorrection)

	builder.Configure(domainwf.StateSecondApproved).
		AdvanceTo(domainwf.StateInProcurement)

	builder.Configure(domainwf.StateInProcurement).
		Permit(domainwf.TriggerMarkPurchased, domainwf.StatePurchased).
		Permit(domainwf.TriggerReject, domainwf.StateRejected).
		Permit(domainwf.TriggerReturnForCorrection, domainwf.StateReturnedForCorrection)

	builder.Configure(domainwf.StatePurchased).
		Permit(domainwf.TriggerMarkDelivered, domainwf.StateDelivered)

	builder.Configure(domainwf.StateReturnedForCorrection).
		Permit(domainwf.TriggerResubmit, domainwf.StatePendingFirstApproval)

	// DELIVERED and REJECTED are terminal states - no outgoing transitions

	return builder.Build(initialState)
}
