package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoAPI is the minimal DynamoDB client interface used by DynamoStore.
type DynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, opts ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// DynamoStore implements Store against a single DynamoDB table.
type DynamoStore struct {
	client DynamoAPI
	table  string
}

// NewDynamoStore builds a store bound to the given table.
func NewDynamoStore(client DynamoAPI, table string) *DynamoStore {
	return &DynamoStore{client: client, table: table}
}

// Index partition-key attributes by index name. The table's only secondary
// index maps external athlete ids to their owning user.
var indexPartitionAttr = map[string]string{
	"GSI1": "GSI1PK",
}

// Get returns the item at key, or nil when absent.
func (s *DynamoStore) Get(ctx context.Context, key Key, consistent bool) (Item, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            keyAttributes(key),
		ConsistentRead: aws.Bool(consistent),
	})
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", key.PK, key.SK, err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	return out.Item, nil
}

// Put writes the item, guarded by cond.
func (s *DynamoStore) Put(ctx context.Context, item Item, cond Condition) error {
	in := &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	}
	applyCondition(cond, &in.ConditionExpression, &in.ExpressionAttributeNames, &in.ExpressionAttributeValues)

	if _, err := s.client.PutItem(ctx, in); err != nil {
		if isConditionalCheckFailed(err) {
			return ErrConditionFailed
		}
		return fmt.Errorf("put: %w", err)
	}
	return nil
}

// Delete removes the item at key, guarded by cond.
func (s *DynamoStore) Delete(ctx context.Context, key Key, cond Condition) error {
	in := &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       keyAttributes(key),
	}
	applyCondition(cond, &in.ConditionExpression, &in.ExpressionAttributeNames, &in.ExpressionAttributeValues)

	if _, err := s.client.DeleteItem(ctx, in); err != nil {
		if isConditionalCheckFailed(err) {
			return ErrConditionFailed
		}
		return fmt.Errorf("delete %s/%s: %w", key.PK, key.SK, err)
	}
	return nil
}

// Query returns one page of a partition query.
func (s *DynamoStore) Query(ctx context.Context, in QueryInput) (QueryPage, error) {
	names := map[string]string{"#pk": "PK"}
	values := map[string]types.AttributeValue{
		":pk": &types.AttributeValueMemberS{Value: in.Partition},
	}

	keyCond := "#pk = :pk"
	if in.Index != "" {
		attr, ok := indexPartitionAttr[in.Index]
		if !ok {
			return QueryPage{}, fmt.Errorf("unknown index: %s", in.Index)
		}
		names["#pk"] = attr
	}
	if in.SortPrefix != "" {
		names["#sk"] = "SK"
		values[":skPrefix"] = &types.AttributeValueMemberS{Value: in.SortPrefix}
		keyCond += " AND begins_with(#sk, :skPrefix)"
	}

	req := &dynamodb.QueryInput{
		TableName:                 aws.String(s.table),
		KeyConditionExpression:    aws.String(keyCond),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ExclusiveStartKey:         in.StartToken,
	}
	if in.Index != "" {
		req.IndexName = aws.String(in.Index)
	} else {
		// Consistent reads are only valid against the base table.
		req.ConsistentRead = aws.Bool(in.Consistent)
	}
	if in.Limit > 0 {
		req.Limit = aws.Int32(in.Limit)
	}
	if len(in.Attributes) > 0 {
		parts := make([]string, 0, len(in.Attributes))
		for i, attr := range in.Attributes {
			alias := fmt.Sprintf("#a%d", i)
			names[alias] = attr
			parts = append(parts, alias)
		}
		req.ProjectionExpression = aws.String(strings.Join(parts, ", "))
	}

	out, err := s.client.Query(ctx, req)
	if err != nil {
		return QueryPage{}, fmt.Errorf("query %s: %w", in.Partition, err)
	}

	page := QueryPage{Items: out.Items, Scanned: int(out.ScannedCount)}
	if len(out.LastEvaluatedKey) > 0 {
		page.NextToken = out.LastEvaluatedKey
	}
	return page, nil
}

// BatchDelete removes the keys in one BatchWriteItem call and returns any the
// store left unprocessed.
func (s *DynamoStore) BatchDelete(ctx context.Context, keys []Key) ([]Key, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	writes := make([]types.WriteRequest, 0, len(keys))
	for _, key := range keys {
		writes = append(writes, types.WriteRequest{
			DeleteRequest: &types.DeleteRequest{Key: keyAttributes(key)},
		})
	}

	out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
		RequestItems: map[string][]types.WriteRequest{s.table: writes},
	})
	if err != nil {
		return nil, fmt.Errorf("batch delete: %w", err)
	}

	var unprocessed []Key
	for _, req := range out.UnprocessedItems[s.table] {
		if req.DeleteRequest == nil {
			continue
		}
		unprocessed = append(unprocessed, keyFromAttributes(req.DeleteRequest.Key))
	}
	return unprocessed, nil
}

// TransactWrite commits the ops atomically.
func (s *DynamoStore) TransactWrite(ctx context.Context, ops []TransactOp) error {
	items := make([]types.TransactWriteItem, 0, len(ops))
	for _, op := range ops {
		switch {
		case op.Put != nil:
			put := &types.Put{
				TableName: aws.String(s.table),
				Item:      op.Put.Item,
			}
			applyCondition(op.Put.Condition, &put.ConditionExpression, &put.ExpressionAttributeNames, &put.ExpressionAttributeValues)
			items = append(items, types.TransactWriteItem{Put: put})
		case op.Delete != nil:
			del := &types.Delete{
				TableName: aws.String(s.table),
				Key:       keyAttributes(op.Delete.Key),
			}
			applyCondition(op.Delete.Condition, &del.ConditionExpression, &del.ExpressionAttributeNames, &del.ExpressionAttributeValues)
			items = append(items, types.TransactWriteItem{Delete: del})
		default:
			return errors.New("transact op has no operation set")
		}
	}

	if _, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items}); err != nil {
		if isConditionalCheckFailed(err) {
			return ErrConditionFailed
		}
		return fmt.Errorf("transact write: %w", err)
	}
	return nil
}

func keyAttributes(key Key) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: key.PK},
		"SK": &types.AttributeValueMemberS{Value: key.SK},
	}
}

func keyFromAttributes(attrs map[string]types.AttributeValue) Key {
	var key Key
	if pk, ok := attrs["PK"].(*types.AttributeValueMemberS); ok {
		key.PK = pk.Value
	}
	if sk, ok := attrs["SK"].(*types.AttributeValueMemberS); ok {
		key.SK = sk.Value
	}
	return key
}

func applyCondition(cond Condition, expr **string, names *map[string]string, values *map[string]types.AttributeValue) {
	switch cond.Kind {
	case ConditionNone:
		return
	case ConditionNotExists:
		*expr = aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)")
	case ConditionAttributeEquals:
		*expr = aws.String("attribute_exists(PK) AND #cond = :cond")
	case ConditionNotExistsOrAttributeEquals:
		*expr = aws.String("attribute_not_exists(PK) OR #cond = :cond")
	}
	if cond.Kind == ConditionAttributeEquals || cond.Kind == ConditionNotExistsOrAttributeEquals {
		if *names == nil {
			*names = map[string]string{}
		}
		if *values == nil {
			*values = map[string]types.AttributeValue{}
		}
		(*names)["#cond"] = cond.Attribute
		(*values)[":cond"] = cond.Value
	}
}

// isConditionalCheckFailed reports whether err is a failed conditional write,
// either directly or as the cancellation reason of a transaction.
func isConditionalCheckFailed(err error) bool {
	var condFailed *types.ConditionalCheckFailedException
	if errors.As(err, &condFailed) {
		return true
	}
	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) {
		for _, reason := range canceled.CancellationReasons {
			if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
				return true
			}
		}
	}
	return false
}

func formatInt(n int64) string {
	return strconv.FormatInt(n, 10)
}
