package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/tether/internal/suggest"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaDeliverer(t *testing.T) {
	w := &fakeWriter{}
	d := newKafkaDeliverer(w, "tether.notifications", nil)

	n := Notification{
		Suggestion:   suggest.Suggestion{ID: "deepen:r1", RelationshipID: "r1", Urgency: suggest.UrgencyLow},
		DelayMinutes: 125,
		DeliverAt:    time.Date(2026, 6, 15, 12, 5, 0, 0, time.UTC),
	}
	require.NoError(t, d.Deliver(context.Background(), n))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "r1", string(msg.Key))
	var got Notification
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, 125, got.DelayMinutes)
	assert.Equal(t, "deepen:r1", got.Suggestion.ID)

	require.NoError(t, d.Close())
	assert.True(t, w.closed)
}

func TestKafkaDelivererError(t *testing.T) {
	d := newKafkaDeliverer(&fakeWriter{err: errors.New("broker down")}, "t", nil)
	err := d.Deliver(context.Background(), Notification{})
	assert.ErrorContains(t, err, "broker down")
}

func TestLogDeliverer(t *testing.T) {
	assert.NoError(t, NewLogDeliverer(nil).Deliver(context.Background(), Notification{}))
}
