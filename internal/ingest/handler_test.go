package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/commitcollect/internal/consumer"
	"example.com/commitcollect/internal/storage/storetest"
	"example.com/commitcollect/internal/strava"
)

func TestKafkaHandlerDecodesAndProcesses(t *testing.T) {
	store := storetest.NewMemoryStore()
	provider := &stubProvider{activities: map[int64]strava.Activity{
		42: {ID: 42, SportType: "Ride", Distance: 1000},
	}}
	connectAthlete(t, store, "user-a", 7, time.Now().Add(24*time.Hour).Unix())
	handler := NewKafkaHandler(newTestPipeline(t, store, provider))

	err := handler.Handle(context.Background(), consumer.Message{
		EventType: "activity.create",
		Payload:   []byte(`{"source":"STRAVA","object_type":"activity","object_id":42,"aspect_type":"create","owner_id":7,"event_time":1700000000}`),
	})
	require.NoError(t, err)

	require.NotNil(t, loadWorkout(t, store, "user-a", 42))
}

func TestKafkaHandlerDropsUndecodablePayload(t *testing.T) {
	store := storetest.NewMemoryStore()
	handler := NewKafkaHandler(newTestPipeline(t, store, &stubProvider{}))

	// Valid JSON whose fields mismatch the event shape can never decode on
	// redelivery; the handler must report success so the message is
	// committed past.
	err := handler.Handle(context.Background(), consumer.Message{
		Payload: []byte(`{"source":"STRAVA","object_type":"activity","object_id":"not-a-number","aspect_type":"create","owner_id":7,"event_time":1700000000}`),
	})
	require.NoError(t, err)
	require.Zero(t, store.Len())
}
