package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Reimbursement is a single reimbursement request as seen by the application.
// Status, Type, Author and Resolver carry lookup names, never surrogate ids.
type Reimbursement struct {
	ID          int64           `json:"id"`
	Amount      decimal.Decimal `json:"amount"`
	SubmittedAt time.Time       `json:"submitted_at"`
	ResolvedAt  *time.Time      `json:"resolved_at,omitempty"`
	ReceiptRef  *string         `json:"receipt_ref,omitempty"`
	Description string          `json:"description"`
	Author      string          `json:"author"`
	Resolver    *string         `json:"resolver,omitempty"`
	Status      string          `json:"status"`
	Type        string          `json:"type"`
}

// IsResolved reports whether a decision has been recorded on the request
func (r *Reimbursement) IsResolved() bool {
	return r.Status == StatusApproved || r.Status == StatusDenied
}

// Clone returns a deep copy so callers can mutate without aliasing pointers
func (r *Reimbursement) Clone() *Reimbursement {
	if r == nil {
		return nil
	}
	c := *r
	if r.ResolvedAt != nil {
		t := *r.ResolvedAt
		c.ResolvedAt = &t
	}
	if r.ReceiptRef != nil {
		s := *r.ReceiptRef
		c.ReceiptRef = &s
	}
	if r.Resolver != nil {
		s := *r.Resolver
		c.Resolver = &s
	}
	return &c
}
