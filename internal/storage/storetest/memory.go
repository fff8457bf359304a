// Package storetest provides an in-memory Store with the same conditional
// write semantics as the DynamoDB implementation, for use in unit tests.
package storetest

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"example.com/commitcollect/internal/storage"
)

// MemoryStore implements storage.Store over a mutex-guarded map. Conditions
// are evaluated atomically with their writes, so optimistic-concurrency races
// behave like the real table.
type MemoryStore struct {
	mu    sync.Mutex
	items map[storage.Key]storage.Item

	// BatchHook, when set, decides which keys of a BatchDelete call are left
	// unprocessed. It runs before any deletion happens for those keys.
	BatchHook func(keys []storage.Key) (unprocessed []storage.Key)

	// BatchCalls counts BatchDelete invocations.
	BatchCalls int
}

// NewMemoryStore builds an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[storage.Key]storage.Item)}
}

// Len reports the number of stored items.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Get returns a copy of the item at key, or nil when absent.
func (s *MemoryStore) Get(_ context.Context, key storage.Key, _ bool) (storage.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[key]
	if !ok {
		return nil, nil
	}
	return cloneItem(item), nil
}

// Put writes item, guarded by cond.
func (s *MemoryStore) Put(_ context.Context, item storage.Item, cond storage.Condition) error {
	key := itemKey(item)
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.conditionHolds(key, cond) {
		return storage.ErrConditionFailed
	}
	s.items[key] = cloneItem(item)
	return nil
}

// Delete removes the item at key, guarded by cond.
func (s *MemoryStore) Delete(_ context.Context, key storage.Key, cond storage.Condition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.conditionHolds(key, cond) {
		return storage.ErrConditionFailed
	}
	delete(s.items, key)
	return nil
}

// Query returns one page of a partition query, ordered by sort key.
func (s *MemoryStore) Query(_ context.Context, in storage.QueryInput) (storage.QueryPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []storage.Key
	for key, item := range s.items {
		if in.Index != "" {
			if stringAttr(item, "GSI1PK") != in.Partition {
				continue
			}
		} else if key.PK != in.Partition {
			continue
		}
		if in.SortPrefix != "" && !strings.HasPrefix(key.SK, in.SortPrefix) {
			continue
		}
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].PK != keys[j].PK {
			return keys[i].PK < keys[j].PK
		}
		return keys[i].SK < keys[j].SK
	})

	start := 0
	if in.StartToken != nil {
		after := keyFromToken(in.StartToken)
		for i, key := range keys {
			if key == after {
				start = i + 1
				break
			}
		}
	}

	var page storage.QueryPage
	for i := start; i < len(keys); i++ {
		if in.Limit > 0 && len(page.Items) == int(in.Limit) {
			page.NextToken = tokenFromKey(keys[i-1])
			return page, nil
		}
		item := cloneItem(s.items[keys[i]])
		if len(in.Attributes) > 0 {
			item = projectItem(item, in.Attributes)
		}
		page.Items = append(page.Items, item)
		page.Scanned++
	}
	return page, nil
}

// BatchDelete removes the given keys, honoring BatchHook for simulated
// partial failures.
func (s *MemoryStore) BatchDelete(_ context.Context, keys []storage.Key) ([]storage.Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.BatchCalls++

	skip := map[storage.Key]bool{}
	var unprocessed []storage.Key
	if s.BatchHook != nil {
		unprocessed = s.BatchHook(keys)
		for _, key := range unprocessed {
			skip[key] = true
		}
	}

	for _, key := range keys {
		if skip[key] {
			continue
		}
		delete(s.items, key)
	}
	return unprocessed, nil
}

// TransactWrite applies all ops atomically; any failed condition leaves the
// store untouched.
func (s *MemoryStore) TransactWrite(_ context.Context, ops []storage.TransactOp) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, op := range ops {
		switch {
		case op.Put != nil:
			if !s.conditionHolds(itemKey(op.Put.Item), op.Put.Condition) {
				return storage.ErrConditionFailed
			}
		case op.Delete != nil:
			if !s.conditionHolds(op.Delete.Key, op.Delete.Condition) {
				return storage.ErrConditionFailed
			}
		}
	}

	for _, op := range ops {
		switch {
		case op.Put != nil:
			s.items[itemKey(op.Put.Item)] = cloneItem(op.Put.Item)
		case op.Delete != nil:
			delete(s.items, op.Delete.Key)
		}
	}
	return nil
}

func (s *MemoryStore) conditionHolds(key storage.Key, cond storage.Condition) bool {
	existing, exists := s.items[key]
	switch cond.Kind {
	case storage.ConditionNone:
		return true
	case storage.ConditionNotExists:
		return !exists
	case storage.ConditionAttributeEquals:
		return exists && attrEqual(existing[cond.Attribute], cond.Value)
	case storage.ConditionNotExistsOrAttributeEquals:
		return !exists || attrEqual(existing[cond.Attribute], cond.Value)
	}
	return false
}

func itemKey(item storage.Item) storage.Key {
	return storage.Key{PK: stringAttr(item, "PK"), SK: stringAttr(item, "SK")}
}

func stringAttr(item storage.Item, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func attrEqual(a, b types.AttributeValue) bool {
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		return ok && av.Value == bv.Value
	case *types.AttributeValueMemberN:
		bv, ok := b.(*types.AttributeValueMemberN)
		return ok && av.Value == bv.Value
	case *types.AttributeValueMemberBOOL:
		bv, ok := b.(*types.AttributeValueMemberBOOL)
		return ok && av.Value == bv.Value
	}
	return false
}

func cloneItem(item storage.Item) storage.Item {
	out := make(storage.Item, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

func projectItem(item storage.Item, attrs []string) storage.Item {
	out := make(storage.Item, len(attrs))
	for _, attr := range attrs {
		if v, ok := item[attr]; ok {
			out[attr] = v
		}
	}
	return out
}

func tokenFromKey(key storage.Key) storage.PageToken {
	return storage.PageToken{
		"PK": &types.AttributeValueMemberS{Value: key.PK},
		"SK": &types.AttributeValueMemberS{Value: key.SK},
	}
}

func keyFromToken(token storage.PageToken) storage.Key {
	var key storage.Key
	if pk, ok := token["PK"].(*types.AttributeValueMemberS); ok {
		key.PK = pk.Value
	}
	if sk, ok := token["SK"].(*types.AttributeValueMemberS); ok {
		key.SK = sk.Value
	}
	return key
}
