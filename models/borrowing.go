package models

import "time"

// BorrowingStatus represents the lifecycle state of a loan.
type BorrowingStatus string

const (
	BorrowingStatusActive   BorrowingStatus = "ACTIVE"
	BorrowingStatusReturned BorrowingStatus = "RETURNED"
	BorrowingStatusOverdue  BorrowingStatus = "OVERDUE"
)

// Valid reports whether s is a known status.
func (s BorrowingStatus) Valid() bool {
	switch s {
	case BorrowingStatusActive, BorrowingStatusReturned, BorrowingStatusOverdue:
		return true
	}
	return false
}

// Held reports whether a borrowing in this status keeps its copy unavailable
// and counts against the borrower's limit.
func (s BorrowingStatus) Held() bool {
	return s == BorrowingStatusActive || s == BorrowingStatusOverdue
}

// Borrowing is a loan of one Copy to one User.
// Borrowings are never deleted; they end in RETURNED.
type Borrowing struct {
	ID           int64           `db:"id" json:"id"`
	UserID       int64           `db:"user_id" json:"userId"`
	CopyID       int64           `db:"copy_id" json:"copyId"`
	BorrowedAt   time.Time       `db:"borrowed_at" json:"borrowedAt"`
	DueDate      time.Time       `db:"due_date" json:"dueDate"`
	ReturnedAt   *time.Time      `db:"returned_at" json:"returnedAt,omitempty"`
	Status       BorrowingStatus `db:"status" json:"status"`
	RenewalCount int             `db:"renewal_count" json:"renewalCount"`
	Comments     *string         `db:"comments" json:"comments,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updatedAt"`

	Copy *Copy        `db:"-" json:"copy,omitempty"`
	User *UserSummary `db:"-" json:"user,omitempty"`
}

// UserSummary is the borrower projection embedded in admin listings.
type UserSummary struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}
