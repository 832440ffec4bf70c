package port

import (
	"context"

	"github.com/garyjia/ers-reimbursement/internal/domain/entity"
)

// ReimbursementRepository defines persistence operations for Reimbursement.
// Implementations translate status, type and username fields to foreign keys.
type ReimbursementRepository interface {
	// ListAll returns every reimbursement ordered by id
	ListAll(ctx context.Context) ([]*entity.Reimbursement, error)

	// GetByID returns nil, nil when no row matches
	GetByID(ctx context.Context, id int64) (*entity.Reimbursement, error)

	// ListByAuthorID takes an internal user id, not a username
	ListByAuthorID(ctx context.Context, userID int64) ([]*entity.Reimbursement, error)

	// GetByUniqueKey returns the first match on an allow-listed key, or nil, nil
	GetByUniqueKey(ctx context.Context, key entity.LookupKey, value string) (*entity.Reimbursement, error)

	// ListByFilter narrows by status and/or type name; with neither it returns an empty slice
	ListByFilter(ctx context.Context, status, reimbType string) ([]*entity.Reimbursement, error)

	// Create forces the pending defaults and sets r.ID
	Create(ctx context.Context, r *entity.Reimbursement) (*entity.Reimbursement, error)

	// Update overwrites every mutable column; existed is false when no row matched
	Update(ctx context.Context, r *entity.Reimbursement) (existed bool, err error)

	// Transition writes status, resolver and resolved time only while the row
	// is still in status from; matched is false otherwise
	Transition(ctx context.Context, r *entity.Reimbursement, from string) (matched bool, err error)

	// UpdateReceipt sets the receipt reference only while the row is in status while
	UpdateReceipt(ctx context.Context, id int64, ref, while string) (matched bool, err error)

	// DeleteByID removes a row; existed is false when no row matched
	DeleteByID(ctx context.Context, id int64) (existed bool, err error)
}

// UserRepository resolves usernames for callers that hold only a principal name
type UserRepository interface {
	GetByUsername(ctx context.Context, username string) (*entity.User, error)
}

