// Package events publishes notifications about committed changes.
//
// The KafkaNotifier writes one message per change to a Kafka topic, keyed by
// the resource identifier so all changes of one resource land in the same
// partition. The LogNotifier only logs and is used when no brokers are
// configured.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/relabs-tech/garage/core"
	"github.com/relabs-tech/garage/core/logger"
	"github.com/segmentio/kafka-go"
)

// DefaultTopic is the topic notifications are written to unless configured otherwise
const DefaultTopic = "resource_notification"

// header carrying the serialized logger context of the originating request
const loggerHeader = "logger"

// Notification is the message body of a notification
type Notification struct {
	Resource   string          `json:"resource"`
	Operation  core.Operation  `json:"operation"`
	ResourceID uuid.UUID       `json:"resource_id"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier implements core.Notifier on top of a kafka writer
type KafkaNotifier struct {
	writer messageWriter
	now    func() time.Time
}

// NewKafkaNotifier returns a notifier writing to topic on brokers
func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	if topic == "" {
		topic = DefaultTopic
	}
	logger.Default().Infoln("kafka notifications to topic", topic, "on", brokers)
	return &KafkaNotifier{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
			BatchTimeout:           10 * time.Millisecond,
		},
		now: time.Now,
	}
}

// Notify implements core.Notifier
func (n *KafkaNotifier) Notify(ctx context.Context, resource string, operation core.Operation, resourceID uuid.UUID, payload []byte) error {
	value, err := json.Marshal(Notification{
		Resource:   resource,
		Operation:  operation,
		ResourceID: resourceID,
		Payload:    payload,
		Timestamp:  n.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(resourceID.String()),
		Value: value,
		Headers: []kafka.Header{
			{Key: loggerHeader, Value: logger.SerializeLoggerContext(ctx)},
		},
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write notification for %s %s: %w", resource, resourceID, err)
	}
	return nil
}

// Close flushes pending messages and closes the writer
func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}

// LogNotifier implements core.Notifier by logging every notification
type LogNotifier struct{}

// Notify implements core.Notifier
func (LogNotifier) Notify(ctx context.Context, resource string, operation core.Operation, resourceID uuid.UUID, payload []byte) error {
	logger.FromContext(ctx).WithField("resource", resource).
		WithField("operation", operation).
		WithField("id", resourceID.String()).
		Debugln("notification", string(payload))
	return nil
}
