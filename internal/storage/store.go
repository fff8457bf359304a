// Package storage exposes the narrow key-value capability surface the rest of
// the service is built on: conditional single-item writes, paginated partition
// queries, chunked batch deletes, and small all-or-nothing transactions.
//
// The generic attribute map stays behind this boundary; callers marshal typed
// entities in and out with the attributevalue codec.
package storage

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Item is the store's loosely typed attribute map.
type Item = map[string]types.AttributeValue

// Key identifies an item by partition and sort key.
type Key struct {
	PK string
	SK string
}

// PageToken carries query pagination state. A nil token means "start from the
// beginning" on input and "no more pages" on output.
type PageToken = map[string]types.AttributeValue

// ErrConditionFailed is returned when a conditional write's predicate does not
// hold, including transactions canceled by a conditional check. Callers map it
// to their domain conflict.
var ErrConditionFailed = errors.New("conditional write failed")

// ConditionKind enumerates the predicate shapes supported by the store.
type ConditionKind int

const (
	// ConditionNone applies no predicate (blind overwrite).
	ConditionNone ConditionKind = iota
	// ConditionNotExists requires the item to be absent.
	ConditionNotExists
	// ConditionAttributeEquals requires the item to exist with an attribute
	// equal to the given value.
	ConditionAttributeEquals
	// ConditionNotExistsOrAttributeEquals passes when the item is absent OR
	// the attribute equals the given value.
	ConditionNotExistsOrAttributeEquals
)

// Condition is a boolean predicate over an item's attributes, evaluated
// atomically with the write it guards.
type Condition struct {
	Kind      ConditionKind
	Attribute string
	Value     types.AttributeValue
}

// Unconditional returns the no-op condition.
func Unconditional() Condition { return Condition{Kind: ConditionNone} }

// IfNotExists requires the target item to be absent.
func IfNotExists() Condition { return Condition{Kind: ConditionNotExists} }

// IfAttributeEquals requires an existing item whose attribute equals value.
func IfAttributeEquals(attribute string, value types.AttributeValue) Condition {
	return Condition{Kind: ConditionAttributeEquals, Attribute: attribute, Value: value}
}

// IfNotExistsOrEquals passes for an absent item or one whose attribute equals
// value. This is the ownership-claim predicate.
func IfNotExistsOrEquals(attribute string, value types.AttributeValue) Condition {
	return Condition{Kind: ConditionNotExistsOrAttributeEquals, Attribute: attribute, Value: value}
}

// StringValue wraps a string as a store attribute value.
func StringValue(s string) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: s}
}

// NumberValue wraps an integer as a store attribute value.
func NumberValue(n int64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: formatInt(n)}
}

// QueryInput describes one page of a partition query. Callers must drain
// pages until NextToken is nil.
type QueryInput struct {
	Partition  string
	SortPrefix string
	// Index selects a secondary index by name; the partition then matches the
	// index partition key instead of the table's.
	Index      string
	Limit      int32
	StartToken PageToken
	Consistent bool
	// Attributes optionally projects a subset of attributes.
	Attributes []string
}

// QueryPage is one page of query results.
type QueryPage struct {
	Items     []Item
	NextToken PageToken
	// Scanned counts items the store inspected for this page, which can
	// exceed len(Items) under projection or filtering.
	Scanned int
}

// TransactPut is a conditional put inside a transaction.
type TransactPut struct {
	Item      Item
	Condition Condition
}

// TransactDelete is a conditional delete inside a transaction.
type TransactDelete struct {
	Key       Key
	Condition Condition
}

// TransactOp is one operation of a transactional write. Exactly one field
// must be set.
type TransactOp struct {
	Put    *TransactPut
	Delete *TransactDelete
}

// Store is the capability surface over the underlying key-value table.
// Implementations must provide per-item strong consistency for conditional
// writes and atomicity for TransactWrite.
type Store interface {
	// Get returns the item at key, or nil when absent.
	Get(ctx context.Context, key Key, consistent bool) (Item, error)

	// Put writes item (attributes must include PK and SK), guarded by cond.
	Put(ctx context.Context, item Item, cond Condition) error

	// Delete removes the item at key, guarded by cond.
	Delete(ctx context.Context, key Key, cond Condition) error

	// Query returns one page of items in a partition, optionally narrowed by
	// a sort-key prefix or routed through a secondary index.
	Query(ctx context.Context, in QueryInput) (QueryPage, error)

	// BatchDelete removes up to 25 keys and returns the subset the store did
	// not process; callers retry those.
	BatchDelete(ctx context.Context, keys []Key) ([]Key, error)

	// TransactWrite commits all ops atomically, or none of them. A failed
	// condition on any op surfaces as ErrConditionFailed.
	TransactWrite(ctx context.Context, ops []TransactOp) error
}
