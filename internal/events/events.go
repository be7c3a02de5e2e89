// Package events publishes lending domain events after the changes they
// describe have been committed.
package events

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Type names a lending event.
type Type string

const (
	BorrowingCreated  Type = "borrowing.created"
	BorrowingReturned Type = "borrowing.returned"
	BorrowingRenewed  Type = "borrowing.renewed"
	BorrowingsOverdue Type = "borrowings.overdue"
)

// Event is the payload written to the event topic.
type Event struct {
	ID          string     `json:"id"`
	Type        Type       `json:"type"`
	OccurredAt  time.Time  `json:"occurredAt"`
	BorrowingID int64      `json:"borrowingId,omitempty"`
	UserID      int64      `json:"userId,omitempty"`
	CopyID      int64      `json:"copyId,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Count       int64      `json:"count,omitempty"`
}

// New stamps an event of type t with a fresh id.
func New(t Type, at time.Time) Event {
	return Event{ID: uuid.NewString(), Type: t, OccurredAt: at.UTC()}
}

// Key is the partition key: events of one borrowing stay ordered.
func (e Event) Key() string {
	if e.BorrowingID != 0 {
		return "borrowing-" + strconv.FormatInt(e.BorrowingID, 10)
	}
	return string(e.Type)
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop discards every event. It is used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }
