package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaPublisher(w, "lending.events", zaptest.NewLogger(t))

	at := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	due := at.Add(14 * 24 * time.Hour)
	e := New(BorrowingCreated, at)
	e.BorrowingID, e.UserID, e.CopyID, e.DueDate = 7, 3, 11, &due

	require.NoError(t, p.Publish(context.Background(), e))
	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "lending.events", msg.Topic)
	assert.Equal(t, "borrowing-7", string(msg.Key))
	assert.Equal(t, at, msg.Time)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "borrowing.created", string(msg.Headers[0].Value))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "borrowing.created", decoded["type"])
	assert.EqualValues(t, 7, decoded["borrowingId"])
	assert.Equal(t, "2026-04-15T08:00:00Z", decoded["dueDate"])
	assert.NotContains(t, decoded, "count")

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := newKafkaPublisher(w, "t", zaptest.NewLogger(t))

	err := p.Publish(context.Background(), New(BorrowingsOverdue, time.Now()))
	assert.ErrorContains(t, err, "broker down")
}

func TestEventKey(t *testing.T) {
	assert.Equal(t, "borrowings.overdue", New(BorrowingsOverdue, time.Now()).Key())
	assert.NotEqual(t, New(BorrowingCreated, time.Now()).ID, New(BorrowingCreated, time.Now()).ID)
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.Publish(context.Background(), Event{}))
	assert.NoError(t, p.Close())
}
