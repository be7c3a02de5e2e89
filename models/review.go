package models

import "time"

// Review is a user's rating of a resource. A user reviews a resource at most once.
type Review struct {
	ID         int64     `db:"id" json:"id"`
	UserID     int64     `db:"user_id" json:"userId"`
	ResourceID int64     `db:"resource_id" json:"resourceId"`
	Rating     int       `db:"rating" json:"rating"`
	Comment    *string   `db:"comment" json:"comment,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time `db:"updated_at" json:"updatedAt"`

	Author *UserSummary `db:"-" json:"author,omitempty"`
}
