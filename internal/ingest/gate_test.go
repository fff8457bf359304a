package ingest

import (
	"context"
	"errors"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/commitcollect/internal/storage"
	"example.com/commitcollect/internal/storage/storetest"
)

func TestGateAdmitsFirstDelivery(t *testing.T) {
	store := storetest.NewMemoryStore()
	gate := NewGate(store, 7*24*time.Hour, testLogger(t))

	require.True(t, gate.Admit(context.Background(), "STRAVA#EVT#activity#create#42#1700000000"))
	require.Equal(t, 1, store.Len())
}

func TestGateRejectsReplay(t *testing.T) {
	store := storetest.NewMemoryStore()
	gate := NewGate(store, 7*24*time.Hour, testLogger(t))
	ctx := context.Background()

	fp := "STRAVA#EVT#activity#create#42#1700000000"
	require.True(t, gate.Admit(ctx, fp))
	require.False(t, gate.Admit(ctx, fp))
	require.False(t, gate.Admit(ctx, fp))
}

func TestGateDistinguishesEventTimes(t *testing.T) {
	store := storetest.NewMemoryStore()
	gate := NewGate(store, 7*24*time.Hour, testLogger(t))
	ctx := context.Background()

	require.True(t, gate.Admit(ctx, "STRAVA#EVT#activity#update#42#1700000000"))
	require.True(t, gate.Admit(ctx, "STRAVA#EVT#activity#update#42#1700000300"))
}

func TestGateFailsOpenOnStoreError(t *testing.T) {
	store := &failingPutStore{MemoryStore: storetest.NewMemoryStore()}
	gate := NewGate(store, 7*24*time.Hour, testLogger(t))

	require.True(t, gate.Admit(context.Background(), "STRAVA#EVT#activity#create#42#1700000000"))
}

type failingPutStore struct {
	*storetest.MemoryStore
}

func (s *failingPutStore) Put(context.Context, storage.Item, storage.Condition) error {
	return errors.New("throttled")
}

func testLogger(t *testing.T) *log.Logger {
	return log.New(logWriter{t}, "", 0)
}

type logWriter struct {
	t *testing.T
}

func (w logWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}
