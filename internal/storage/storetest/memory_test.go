package storetest

import (
	"context"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"example.com/commitcollect/internal/storage"
)

func item(pk, sk string, extra map[string]string) storage.Item {
	out := storage.Item{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
	for k, v := range extra {
		out[k] = &types.AttributeValueMemberS{Value: v}
	}
	return out
}

func TestQueryPaginatesInSortOrder(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 9; i >= 0; i-- {
		require.NoError(t, store.Put(ctx, item("P", fmt.Sprintf("ITEM#%02d", i), nil), storage.Unconditional()))
	}

	var collected []string
	var token storage.PageToken
	pages := 0
	for {
		page, err := store.Query(ctx, storage.QueryInput{Partition: "P", Limit: 3, StartToken: token})
		require.NoError(t, err)
		pages++
		for _, it := range page.Items {
			collected = append(collected, it["SK"].(*types.AttributeValueMemberS).Value)
		}
		if page.NextToken == nil {
			break
		}
		token = page.NextToken
	}

	require.Equal(t, 4, pages)
	require.Len(t, collected, 10)
	require.IsIncreasing(t, collected)
}

func TestQuerySortPrefixFilters(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, item("P", "A#1", nil), storage.Unconditional()))
	require.NoError(t, store.Put(ctx, item("P", "B#1", nil), storage.Unconditional()))
	require.NoError(t, store.Put(ctx, item("P", "B#2", nil), storage.Unconditional()))

	page, err := store.Query(ctx, storage.QueryInput{Partition: "P", SortPrefix: "B#"})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
}

func TestQueryByIndexMatchesIndexAttribute(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, item("USER#a", "CONN", map[string]string{"GSI1PK": "ATH#1"}), storage.Unconditional()))
	require.NoError(t, store.Put(ctx, item("USER#b", "CONN", map[string]string{"GSI1PK": "ATH#2"}), storage.Unconditional()))

	page, err := store.Query(ctx, storage.QueryInput{Partition: "ATH#2", Index: "GSI1"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.Equal(t, "USER#b", page.Items[0]["PK"].(*types.AttributeValueMemberS).Value)
}

func TestTransactWriteIsAtomic(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, item("P", "EXISTING", nil), storage.Unconditional()))

	err := store.TransactWrite(ctx, []storage.TransactOp{
		{Put: &storage.TransactPut{Item: item("P", "NEW", nil), Condition: storage.Unconditional()}},
		{Put: &storage.TransactPut{Item: item("P", "EXISTING", nil), Condition: storage.IfNotExists()}},
	})
	require.ErrorIs(t, err, storage.ErrConditionFailed)

	// The passing op must not have been applied.
	got, err := store.Get(ctx, storage.Key{PK: "P", SK: "NEW"}, true)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestConditionalPutEquals(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, item("P", "S", map[string]string{"owner": "a"}), storage.Unconditional()))

	err := store.Put(ctx, item("P", "S", map[string]string{"owner": "b"}), storage.IfAttributeEquals("owner", storage.StringValue("zzz")))
	require.ErrorIs(t, err, storage.ErrConditionFailed)

	require.NoError(t, store.Put(ctx, item("P", "S", map[string]string{"owner": "b"}), storage.IfAttributeEquals("owner", storage.StringValue("a"))))
}
