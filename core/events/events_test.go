package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/relabs-tech/garage/core"
	"github.com/relabs-tech/garage/core/logger"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaNotifier(t *testing.T) {
	w := &fakeWriter{}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	n := &KafkaNotifier{writer: w, now: func() time.Time { return now }}

	id := uuid.New()
	ctx := logger.ContextWithRequestID(context.Background(), "req-1")
	err := n.Notify(ctx, core.ResourceUser, core.OperationCreate, id, []byte(`{"username":"alice"}`))
	require.NoError(t, err)
	require.Len(t, w.messages, 1)

	msg := w.messages[0]
	assert.Equal(t, id.String(), string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "logger", msg.Headers[0].Key)
	assert.JSONEq(t, `{"requestID":"req-1"}`, string(msg.Headers[0].Value))

	var notification Notification
	require.NoError(t, json.Unmarshal(msg.Value, &notification))
	assert.Equal(t, core.ResourceUser, notification.Resource)
	assert.Equal(t, core.OperationCreate, notification.Operation)
	assert.Equal(t, id, notification.ResourceID)
	assert.JSONEq(t, `{"username":"alice"}`, string(notification.Payload))
	assert.True(t, now.Equal(notification.Timestamp))

	require.NoError(t, n.Close())
	assert.True(t, w.closed)
}

func TestKafkaNotifierWriteError(t *testing.T) {
	failure := errors.New("broker down")
	n := &KafkaNotifier{writer: &fakeWriter{err: failure}, now: time.Now}

	err := n.Notify(context.Background(), core.ResourceUser, core.OperationDelete, uuid.New(), nil)
	assert.ErrorIs(t, err, failure)
}

func TestLogNotifier(t *testing.T) {
	var n core.Notifier = LogNotifier{}
	assert.NoError(t, n.Notify(context.Background(), core.ResourceCar, core.OperationCreate, uuid.New(), []byte(`{}`)))
}
