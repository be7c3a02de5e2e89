package models

import "time"

// ContactStatus tracks how far a contact request has been handled.
type ContactStatus string

const (
	ContactStatusNew        ContactStatus = "NEW"
	ContactStatusInProgress ContactStatus = "IN_PROGRESS"
	ContactStatusClosed     ContactStatus = "CLOSED"
)

// Valid reports whether s is a known contact status.
func (s ContactStatus) Valid() bool {
	return s == ContactStatusNew || s == ContactStatusInProgress || s == ContactStatusClosed
}

// ContactRequest is a message sent through the public contact form.
type ContactRequest struct {
	ID        int64         `db:"id" json:"id"`
	Name      string        `db:"name" json:"name"`
	Email     string        `db:"email" json:"email"`
	Subject   string        `db:"subject" json:"subject"`
	Message   string        `db:"message" json:"message"`
	Status    ContactStatus `db:"status" json:"status"`
	CreatedAt time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time     `db:"updated_at" json:"updatedAt"`
}
