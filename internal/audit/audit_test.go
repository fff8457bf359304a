package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/stretchr/testify/require"

	"example.com/commitcollect/internal/domain"
	"example.com/commitcollect/internal/storage"
	"example.com/commitcollect/internal/storage/storetest"
)

func TestRecordWritesEvent(t *testing.T) {
	store := storetest.NewMemoryStore()
	sink := NewSink(store)
	ctx := context.Background()

	sink.Record(ctx, "user-a", ActionConnectStrava, "athlete 1001")

	page, err := store.Query(ctx, storage.QueryInput{Partition: domain.UserPK("user-a")})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)

	var event Event
	require.NoError(t, attributevalue.UnmarshalMap(page.Items[0], &event))
	require.Equal(t, ActionConnectStrava, event.Action)
	require.Equal(t, "athlete 1001", event.Detail)
	require.Equal(t, domain.EntityAuditEvent, event.EntityType)
	// TTL sits 90 days out.
	require.Equal(t, event.OccurredAt+int64((90*24*time.Hour).Seconds()), event.TTLEpoch)
}

func TestRecordSwallowsStoreFailure(t *testing.T) {
	sink := NewSink(failingStore{})

	// Must not panic or propagate.
	sink.Record(context.Background(), "user-a", ActionLogin, "")
}

type failingStore struct{}

func (failingStore) Get(context.Context, storage.Key, bool) (storage.Item, error) {
	return nil, errors.New("down")
}

func (failingStore) Put(context.Context, storage.Item, storage.Condition) error {
	return errors.New("down")
}

func (failingStore) Delete(context.Context, storage.Key, storage.Condition) error {
	return errors.New("down")
}

func (failingStore) Query(context.Context, storage.QueryInput) (storage.QueryPage, error) {
	return storage.QueryPage{}, errors.New("down")
}

func (failingStore) BatchDelete(context.Context, []storage.Key) ([]storage.Key, error) {
	return nil, errors.New("down")
}

func (failingStore) TransactWrite(context.Context, []storage.TransactOp) error {
	return errors.New("down")
}
