package models

import "time"

// Copy is a physical, lendable item of a Resource.
// Available is owned by the borrowing workflow: it is false exactly while an
// ACTIVE or OVERDUE borrowing references the copy.
type Copy struct {
	ID         int64     `db:"id" json:"id"`
	ResourceID int64     `db:"resource_id" json:"resourceId"`
	Available  bool      `db:"available" json:"available"`
	Condition  string    `db:"condition" json:"condition"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time `db:"updated_at" json:"updatedAt"`

	Resource *Resource `db:"-" json:"resource,omitempty"`
}
