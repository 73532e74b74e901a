package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func TestNewKafkaPublisher_Validation(t *testing.T) {
	_, err := NewKafkaPublisher(nil, "user_events")
	assert.Error(t, err)

	_, err = NewKafkaPublisher([]string{"localhost:9092"}, "")
	assert.Error(t, err)

	p, err := NewKafkaPublisher([]string{"localhost:9092"}, "user_events")
	require.NoError(t, err)
	require.NoError(t, p.Close())
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &recordingWriter{}
	p := &KafkaPublisher{w: w}

	require.NoError(t, p.Publish(context.Background(), Event{
		Type:   TypeSessionsRevoked,
		UserID: "u-1",
		Reason: "ban",
	}))

	require.Len(t, w.msgs, 1)
	assert.Equal(t, []byte("u-1"), w.msgs[0].Key)

	var got Event
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, TypeSessionsRevoked, got.Type)
	assert.Equal(t, "ban", got.Reason)
	assert.False(t, got.At.IsZero())
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	p := &KafkaPublisher{w: &recordingWriter{err: errors.New("broker down")}}

	err := p.Publish(context.Background(), Event{Type: TypeUserLoggedIn, UserID: "u-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user_logged_in")
}
