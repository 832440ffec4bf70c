package entity

// Reimbursement status lookup names (ers_reimb_statuses.reimb_status)
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusDenied   = "denied"
)

// Reimbursement type lookup names (ers_reimb_types.reimb_type)
const (
	TypeLodging = "lodging"
	TypeTravel  = "travel"
	TypeFood    = "food"
	TypeOther   = "other"
)

// User roles
const (
	RoleEmployee = "employee"
	RoleAdmin    = "admin"
)

// LookupKey names a column that GetByUniqueKey may match on
type LookupKey string

// Permitted lookup keys
const (
	LookupKeyID       LookupKey = "id"
	LookupKeyAuthor   LookupKey = "author"
	LookupKeyResolver LookupKey = "resolver"
	LookupKeyStatus   LookupKey = "status"
	LookupKeyType     LookupKey = "type"
	LookupKeyReceipt  LookupKey = "receipt"
)
