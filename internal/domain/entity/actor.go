package entity

import "github.com/garyjia/purchase-workflow/internal/domain/workflow"

// Actor is the authenticated user performing an operation
type Actor struct {
	ID   string        `json:"id"`
	Name string        `json:"name"`
	Role workflow.Role `json:"role"`
}

// Principal returns the identity used by guard evaluation
func (a Actor) Principal() workflow.Principal {
	return workflow.Principal{UserID: a.ID, Role: a.Role}
}

// IsElevated reports whether the actor holds a privileged role
func (a Actor) IsElevated() bool {
	return a.Role.IsElevated()
}
