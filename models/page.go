package models

// Page is a slice of a larger, offset-paginated result set.
type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Skip  int `json:"skip"`
	Take  int `json:"take"`
}
