package models

import "time"

// ResourceType classifies a catalog entry.
type ResourceType string

const (
	ResourceTypeBook      ResourceType = "BOOK"
	ResourceTypeDVD       ResourceType = "DVD"
	ResourceTypeGame      ResourceType = "GAME"
	ResourceTypeMagazine  ResourceType = "MAGAZINE"
	ResourceTypeAudiobook ResourceType = "AUDIOBOOK"
	ResourceTypeOther     ResourceType = "OTHER"
)

// ResourceTypes lists every accepted resource type.
var ResourceTypes = []ResourceType{
	ResourceTypeBook,
	ResourceTypeDVD,
	ResourceTypeGame,
	ResourceTypeMagazine,
	ResourceTypeAudiobook,
	ResourceTypeOther,
}

// Valid reports whether t is a known resource type.
func (t ResourceType) Valid() bool {
	for _, v := range ResourceTypes {
		if v == t {
			return true
		}
	}
	return false
}

// Resource is a catalog entry (a title) that owns one or more physical copies.
type Resource struct {
	ID            int64        `db:"id" json:"id"`
	Title         string       `db:"title" json:"title"`
	Type          ResourceType `db:"type" json:"type"`
	Author        *string      `db:"author" json:"author,omitempty"`
	Publisher     *string      `db:"publisher" json:"publisher,omitempty"`
	Year          *int         `db:"year" json:"year,omitempty"`
	ISBN          *string      `db:"isbn" json:"isbn,omitempty"`
	Description   *string      `db:"description" json:"description,omitempty"`
	Genre         *string      `db:"genre" json:"genre,omitempty"`
	CoverImageURL *string      `db:"cover_image_url" json:"coverImageUrl,omitempty"`
	CreatedAt     time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time    `db:"updated_at" json:"updatedAt"`
}

// ResourceDetails is a resource together with its copies and aggregates.
type ResourceDetails struct {
	Resource
	Copies          []Copy  `json:"copies"`
	TotalCopies     int     `json:"totalCopies"`
	AvailableCopies int     `json:"availableCopies"`
	AverageRating   float64 `json:"averageRating"`
	ReviewCount     int     `json:"reviewCount"`
}
