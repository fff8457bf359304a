package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"
)

type stubDynamo struct {
	putInput      *dynamodb.PutItemInput
	putErr        error
	deleteInput   *dynamodb.DeleteItemInput
	queryInput    *dynamodb.QueryInput
	queryOutput   *dynamodb.QueryOutput
	batchInput    *dynamodb.BatchWriteItemInput
	batchOutput   *dynamodb.BatchWriteItemOutput
	transactInput *dynamodb.TransactWriteItemsInput
	transactErr   error
}

func (s *stubDynamo) GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return &dynamodb.GetItemOutput{}, nil
}

func (s *stubDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	s.putInput = in
	return &dynamodb.PutItemOutput{}, s.putErr
}

func (s *stubDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	s.deleteInput = in
	return &dynamodb.DeleteItemOutput{}, nil
}

func (s *stubDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	s.queryInput = in
	if s.queryOutput != nil {
		return s.queryOutput, nil
	}
	return &dynamodb.QueryOutput{}, nil
}

func (s *stubDynamo) BatchWriteItem(_ context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	s.batchInput = in
	if s.batchOutput != nil {
		return s.batchOutput, nil
	}
	return &dynamodb.BatchWriteItemOutput{}, nil
}

func (s *stubDynamo) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	s.transactInput = in
	return &dynamodb.TransactWriteItemsOutput{}, s.transactErr
}

func testItem(pk, sk string) Item {
	return Item{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

func TestPutRendersNotExistsCondition(t *testing.T) {
	stub := &stubDynamo{}
	store := NewDynamoStore(stub, "main")

	require.NoError(t, store.Put(context.Background(), testItem("USER#1", "PROFILE"), IfNotExists()))
	require.Equal(t, "attribute_not_exists(PK) AND attribute_not_exists(SK)", aws.ToString(stub.putInput.ConditionExpression))
}

func TestPutRendersOwnershipClaimCondition(t *testing.T) {
	stub := &stubDynamo{}
	store := NewDynamoStore(stub, "main")

	cond := IfNotExistsOrEquals("userId", StringValue("user-a"))
	require.NoError(t, store.Put(context.Background(), testItem("STRAVA#ATHLETE#1", "OWNER"), cond))

	require.Equal(t, "attribute_not_exists(PK) OR #cond = :cond", aws.ToString(stub.putInput.ConditionExpression))
	require.Equal(t, "userId", stub.putInput.ExpressionAttributeNames["#cond"])
	require.Equal(t, &types.AttributeValueMemberS{Value: "user-a"}, stub.putInput.ExpressionAttributeValues[":cond"])
}

func TestPutMapsConditionalFailure(t *testing.T) {
	stub := &stubDynamo{putErr: &types.ConditionalCheckFailedException{}}
	store := NewDynamoStore(stub, "main")

	err := store.Put(context.Background(), testItem("USER#1", "PROFILE"), IfNotExists())
	require.ErrorIs(t, err, ErrConditionFailed)
}

func TestTransactMapsCancellationReason(t *testing.T) {
	stub := &stubDynamo{transactErr: &types.TransactionCanceledException{
		CancellationReasons: []types.CancellationReason{
			{Code: aws.String("None")},
			{Code: aws.String("ConditionalCheckFailed")},
		},
	}}
	store := NewDynamoStore(stub, "main")

	err := store.TransactWrite(context.Background(), []TransactOp{
		{Put: &TransactPut{Item: testItem("USER#1", "M#1"), Condition: IfAttributeEquals("version", NumberValue(3))}},
	})
	require.ErrorIs(t, err, ErrConditionFailed)

	put := stub.transactInput.TransactItems[0].Put
	require.Equal(t, "attribute_exists(PK) AND #cond = :cond", aws.ToString(put.ConditionExpression))
	require.Equal(t, &types.AttributeValueMemberN{Value: "3"}, put.ExpressionAttributeValues[":cond"])
}

func TestTransactOtherCancellationIsNotConflict(t *testing.T) {
	stub := &stubDynamo{transactErr: &types.TransactionCanceledException{
		CancellationReasons: []types.CancellationReason{
			{Code: aws.String("TransactionConflict")},
		},
	}}
	store := NewDynamoStore(stub, "main")

	err := store.TransactWrite(context.Background(), []TransactOp{
		{Delete: &TransactDelete{Key: Key{PK: "USER#1", SK: "PROFILE"}, Condition: Unconditional()}},
	})
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrConditionFailed))
}

func TestQueryRoutesThroughIndex(t *testing.T) {
	stub := &stubDynamo{}
	store := NewDynamoStore(stub, "main")

	_, err := store.Query(context.Background(), QueryInput{
		Partition: "STRAVA#ATHLETE#1",
		Index:     "GSI1",
		Limit:     1,
	})
	require.NoError(t, err)

	require.Equal(t, "GSI1", aws.ToString(stub.queryInput.IndexName))
	require.Equal(t, "GSI1PK", stub.queryInput.ExpressionAttributeNames["#pk"])
	require.Nil(t, stub.queryInput.ConsistentRead)
}

func TestQueryRendersSortPrefix(t *testing.T) {
	stub := &stubDynamo{}
	store := NewDynamoStore(stub, "main")

	_, err := store.Query(context.Background(), QueryInput{
		Partition:  "USER#1",
		SortPrefix: "WORKOUT#STRAVA#",
		Consistent: true,
	})
	require.NoError(t, err)

	require.Equal(t, "#pk = :pk AND begins_with(#sk, :skPrefix)", aws.ToString(stub.queryInput.KeyConditionExpression))
	require.True(t, aws.ToBool(stub.queryInput.ConsistentRead))
}

func TestQueryMapsScannedCountAndNextToken(t *testing.T) {
	lastKey := map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: "USER#1"},
		"SK": &types.AttributeValueMemberS{Value: "WORKOUT#STRAVA#5"},
	}
	stub := &stubDynamo{queryOutput: &dynamodb.QueryOutput{
		Items:            []map[string]types.AttributeValue{testItem("USER#1", "WORKOUT#STRAVA#5")},
		ScannedCount:     7,
		LastEvaluatedKey: lastKey,
	}}
	store := NewDynamoStore(stub, "main")

	page, err := store.Query(context.Background(), QueryInput{Partition: "USER#1"})
	require.NoError(t, err)
	require.Equal(t, 7, page.Scanned)
	require.Equal(t, PageToken(lastKey), page.NextToken)
	require.Len(t, page.Items, 1)
}

func TestQueryUnknownIndex(t *testing.T) {
	store := NewDynamoStore(&stubDynamo{}, "main")
	_, err := store.Query(context.Background(), QueryInput{Partition: "p", Index: "GSI9"})
	require.Error(t, err)
}

func TestBatchDeleteMapsUnprocessed(t *testing.T) {
	stub := &stubDynamo{batchOutput: &dynamodb.BatchWriteItemOutput{
		UnprocessedItems: map[string][]types.WriteRequest{
			"main": {{DeleteRequest: &types.DeleteRequest{Key: map[string]types.AttributeValue{
				"PK": &types.AttributeValueMemberS{Value: "USER#1"},
				"SK": &types.AttributeValueMemberS{Value: "WORKOUT#STRAVA#3"},
			}}}},
		},
	}}
	store := NewDynamoStore(stub, "main")

	unprocessed, err := store.BatchDelete(context.Background(), []Key{
		{PK: "USER#1", SK: "WORKOUT#STRAVA#1"},
		{PK: "USER#1", SK: "WORKOUT#STRAVA#3"},
	})
	require.NoError(t, err)
	require.Equal(t, []Key{{PK: "USER#1", SK: "WORKOUT#STRAVA#3"}}, unprocessed)
	require.Len(t, stub.batchInput.RequestItems["main"], 2)
}

func TestBatchDeleteEmptyKeys(t *testing.T) {
	stub := &stubDynamo{}
	store := NewDynamoStore(stub, "main")

	unprocessed, err := store.BatchDelete(context.Background(), nil)
	require.NoError(t, err)
	require.Nil(t, unprocessed)
	require.Nil(t, stub.batchInput)
}
