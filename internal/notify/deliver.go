package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/lazypower/tether/internal/suggest"
)

// Notification is one hand-off to the delivery collaborator. Delay is
// advisory: the deliverer shows it at or after DeliverAt.
type Notification struct {
	Suggestion   suggest.Suggestion `json:"suggestion"`
	DelayMinutes int                `json:"delay_minutes"`
	DeliverAt    time.Time          `json:"deliver_at"`
}

// Deliverer hands notifications to the device delivery mechanism.
type Deliverer interface {
	Deliver(ctx context.Context, n Notification) error
}

// LogDeliverer only logs notifications. Used when no broker is configured.
type LogDeliverer struct {
	log *zap.Logger
}

// NewLogDeliverer creates a LogDeliverer.
func NewLogDeliverer(log *zap.Logger) *LogDeliverer {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogDeliverer{log: log}
}

func (d *LogDeliverer) Deliver(_ context.Context, n Notification) error {
	d.log.Info("notification scheduled",
		zap.String("suggestion_id", n.Suggestion.ID),
		zap.String("urgency", string(n.Suggestion.Urgency)),
		zap.String("title", n.Suggestion.Title),
		zap.Int("delay_minutes", n.DelayMinutes),
		zap.Time("deliver_at", n.DeliverAt),
	)
	return nil
}

// messageWriter is the part of kafka.Writer the deliverer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaDeliverer publishes notifications as JSON to a topic, keyed by
// relationship id, for a push gateway to consume.
type KafkaDeliverer struct {
	writer messageWriter
	topic  string
	log    *zap.Logger
}

// NewKafkaDeliverer creates a deliverer writing to topic on brokers.
func NewKafkaDeliverer(brokers []string, topic string, log *zap.Logger) *KafkaDeliverer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return newKafkaDeliverer(w, topic, log)
}

func newKafkaDeliverer(w messageWriter, topic string, log *zap.Logger) *KafkaDeliverer {
	if log == nil {
		log = zap.NewNop()
	}
	return &KafkaDeliverer{writer: w, topic: topic, log: log}
}

func (d *KafkaDeliverer) Deliver(ctx context.Context, n Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(n.Suggestion.RelationshipID),
		Value: data,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "suggestion_id", Value: []byte(n.Suggestion.ID)},
			{Key: "urgency", Value: []byte(n.Suggestion.Urgency)},
		},
	}
	if err := d.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish notification to %s: %w", d.topic, err)
	}
	d.log.Debug("notification published", zap.String("topic", d.topic), zap.String("suggestion_id", n.Suggestion.ID))
	return nil
}

// Close flushes and closes the underlying writer.
func (d *KafkaDeliverer) Close() error {
	return d.writer.Close()
}
