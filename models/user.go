package models

import "time"

// Role is the access level of an account.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User represents a library member or an administrator.
// It maps to the `users` table in SQLite.
type User struct {
	ID                    int64      `db:"id" json:"id"`
	Email                 string     `db:"email" json:"email"`
	PasswordHash          string     `db:"password_hash" json:"-"`
	FirstName             string     `db:"first_name" json:"firstName"`
	LastName              string     `db:"last_name" json:"lastName"`
	Role                  Role       `db:"role" json:"role"`
	FailedAttempts        int        `db:"failed_attempts" json:"failedAttempts"`
	IsLocked              bool       `db:"is_locked" json:"isLocked"`
	LastLogin             *time.Time `db:"last_login" json:"lastLogin,omitempty"`
	ActiveBorrowingsCount int        `db:"active_borrowings_count" json:"activeBorrowingsCount"`
	CreatedAt             time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt             time.Time  `db:"updated_at" json:"updatedAt"`
}

// IsAdmin reports whether the user holds the ADMIN role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}
