package entity

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/purchase-workflow/internal/domain/workflow"
)

// ItemType classifies what is being purchased
type ItemType string

const (
	ItemTypePeripheral ItemType = "peripheral"
	ItemTypeAppliance  ItemType = "appliance"
	ItemTypeSoftware   ItemType = "software"
	ItemTypeOther      ItemType = "other"
)

// IsValid reports whether t is a known item type
func (t ItemType) IsValid() bool {
	switch t {
	case ItemTypePeripheral, ItemTypeAppliance, ItemTypeSoftware, ItemTypeOther:
		return true
	}
	return false
}

// PurchaseRequest is the aggregate driven through the approval workflow
type PurchaseRequest struct {
	ID              int64           `json:"id"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	Justification   string          `json:"justification"`
	ItemType        ItemType        `json:"item_type"`
	Quantity        int             `json:"quantity"`
	EstimatedCost   decimal.Decimal `json:"estimated_cost"`
	RequesterID     string          `json:"requester_id"`
	RequesterName   string          `json:"requester_name"`
	Status          workflow.State  `json:"status"`
	RejectionReason *string         `json:"rejection_reason,omitempty"`
	RejectionCount  int             `json:"rejection_count"`
	BudgetID        *int64          `json:"budget_id,omitempty"`
	Version         int64           `json:"version"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// RequestFields carries the descriptive, requester-editable part of a request
type RequestFields struct {
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	Justification string          `json:"justification"`
	ItemType      ItemType        `json:"item_type"`
	Quantity      int             `json:"quantity"`
	EstimatedCost decimal.Decimal `json:"estimated_cost"`
	BudgetID      *int64          `json:"budget_id,omitempty"`
}

// Validate returns a *workflow.ValidationError for the first offending field
func (f RequestFields) Validate() error {
	if strings.TrimSpace(f.Title) == "" {
		return workflow.NewValidationError("title", "is required")
	}
	if !f.ItemType.IsValid() {
		return workflow.NewValidationError("item_type", "must be one of peripheral, appliance, software, other")
	}
	if f.Quantity <= 0 {
		return workflow.NewValidationError("quantity", "must be a positive integer")
	}
	if f.EstimatedCost.IsNegative() {
		return workflow.NewValidationError("estimated_cost", "must not be negative")
	}
	return nil
}

// Fields returns the descriptive fields of the request
func (r *PurchaseRequest) Fields() RequestFields {
	var budgetID *int64
	if r.BudgetID != nil {
		id := *r.BudgetID
		budgetID = &id
	}
	return RequestFields{
		Title:         r.Title,
		Description:   r.Description,
		Justification: r.Justification,
		ItemType:      r.ItemType,
		Quantity:      r.Quantity,
		EstimatedCost: r.EstimatedCost,
		BudgetID:      budgetID,
	}
}

// ApplyFields overwrites the descriptive fields. Workflow fields are untouched.
func (r *PurchaseRequest) ApplyFields(f RequestFields) {
	r.Title = strings.TrimSpace(f.Title)
	r.Description = f.Description
	r.Justification = f.Justification
	r.ItemType = f.ItemType
	r.Quantity = f.Quantity
	r.EstimatedCost = f.EstimatedCost
	r.BudgetID = f.BudgetID
}

// IsUrgent reports whether the request has waited longer than threshold before approval
func (r *PurchaseRequest) IsUrgent(now time.Time, threshold time.Duration) bool {
	if !r.Status.IsPreApproval() {
		return false
	}
	return now.Sub(r.CreatedAt) > threshold
}

// ExceedsBudget reports whether the estimated cost is larger than what remains of the budget.
// Advisory only; a nil budget never exceeds.
func (r *PurchaseRequest) ExceedsBudget(b *Budget) bool {
	if b == nil {
		return false
	}
	return r.EstimatedCost.GreaterThan(b.Remaining())
}

// IsOwnedBy reports whether userID created the request
func (r *PurchaseRequest) IsOwnedBy(userID string) bool {
	return userID != "" && r.RequesterID == userID
}
