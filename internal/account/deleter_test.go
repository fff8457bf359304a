package account

import (
	"context"
	"log"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/stretchr/testify/require"

	"example.com/commitcollect/internal/domain"
	"example.com/commitcollect/internal/storage"
	"example.com/commitcollect/internal/storage/storetest"
)

func seedItems(t *testing.T, store *storetest.MemoryStore, userID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		w := domain.Workout{
			PK:         domain.UserPK(userID),
			SK:         domain.WorkoutSK(int64(i + 1)),
			EntityType: domain.EntityWorkout,
			ActivityID: int64(i + 1),
		}
		item, err := attributevalue.MarshalMap(w)
		require.NoError(t, err)
		require.NoError(t, store.Put(context.Background(), item, storage.Unconditional()))
	}
}

func newTestDeleter(store storage.Store, maxRetries int) *Deleter {
	d := NewDeleter(store, 25, maxRetries, time.Millisecond, log.New(log.Writer(), "[test] ", 0))
	d.sleep = func(context.Context, time.Duration) error { return nil }
	return d
}

func TestDeleteAllForOwnerChunksBatches(t *testing.T) {
	store := storetest.NewMemoryStore()
	seedItems(t, store, "user-a", 60)

	summary, err := newTestDeleter(store, 3).DeleteAllForOwner(context.Background(), "user-a")
	require.NoError(t, err)

	require.Equal(t, 60, summary.Deleted)
	require.Equal(t, 3, summary.Batches) // 25 + 25 + 10
	require.False(t, summary.PartialFailure())
	require.Zero(t, store.Len())
}

func TestDeleteAllForOwnerRetriesUnprocessed(t *testing.T) {
	store := storetest.NewMemoryStore()
	seedItems(t, store, "user-a", 30)

	// Full-size submissions bounce half their keys; the smaller retry
	// submissions pass.
	store.BatchHook = func(keys []storage.Key) []storage.Key {
		if len(keys) < 13 {
			return nil
		}
		return keys[:len(keys)/2]
	}

	summary, err := newTestDeleter(store, 3).DeleteAllForOwner(context.Background(), "user-a")
	require.NoError(t, err)
	require.Equal(t, 30, summary.Deleted)
	require.False(t, summary.PartialFailure())
	require.Zero(t, store.Len())
}

func TestDeleteAllForOwnerPartialFailure(t *testing.T) {
	store := storetest.NewMemoryStore()
	seedItems(t, store, "user-a", 10)

	poison := storage.Key{PK: domain.UserPK("user-a"), SK: domain.WorkoutSK(3)}
	store.BatchHook = func(keys []storage.Key) []storage.Key {
		for _, key := range keys {
			if key == poison {
				return []storage.Key{poison}
			}
		}
		return nil
	}

	summary, err := newTestDeleter(store, 2).DeleteAllForOwner(context.Background(), "user-a")
	require.NoError(t, err)

	require.True(t, summary.PartialFailure())
	require.Equal(t, 9, summary.Deleted)
	require.Equal(t, []storage.Key{poison}, summary.Unprocessed)
	require.Equal(t, 1, store.Len())
}

func TestDeleteAllForOwnerEmptyPartition(t *testing.T) {
	store := storetest.NewMemoryStore()

	summary, err := newTestDeleter(store, 3).DeleteAllForOwner(context.Background(), "user-a")
	require.NoError(t, err)
	require.Zero(t, summary.Deleted)
	require.Zero(t, summary.Batches)
	require.False(t, summary.PartialFailure())
}

func TestDeleteAllForOwnerLeavesOtherUsersAlone(t *testing.T) {
	store := storetest.NewMemoryStore()
	seedItems(t, store, "user-a", 5)
	seedItems(t, store, "user-b", 5)

	summary, err := newTestDeleter(store, 3).DeleteAllForOwner(context.Background(), "user-a")
	require.NoError(t, err)
	require.Equal(t, 5, summary.Deleted)
	require.Equal(t, 5, store.Len())
}

func TestProfileEnsureIsCreateOnly(t *testing.T) {
	store := storetest.NewMemoryStore()
	profiles := NewProfiles(store)
	ctx := context.Background()

	first, err := profiles.Ensure(ctx, "user-a", "a@example.com")
	require.NoError(t, err)
	require.Equal(t, "free", first.Plan)

	// A second login must not clobber the original anchor.
	again, err := profiles.Ensure(ctx, "user-a", "changed@example.com")
	require.NoError(t, err)
	require.Equal(t, "a@example.com", again.Email)
	require.Equal(t, first.CreatedAt, again.CreatedAt)
}

func TestProfileGetMissing(t *testing.T) {
	store := storetest.NewMemoryStore()
	_, err := NewProfiles(store).Get(context.Background(), "ghost")
	require.ErrorIs(t, err, domain.ErrProfileNotFound)
}
