package entity

// User is the subset of ers_users the reimbursement service reads
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// IsAdmin reports whether the user may review requests
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}
