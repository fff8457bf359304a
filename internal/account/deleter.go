// Package account implements cascading deletion of everything a user owns.
package account

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"example.com/commitcollect/internal/domain"
	"example.com/commitcollect/internal/observability"
	"example.com/commitcollect/internal/storage"
)

// Summary reports the outcome of a cascading delete. A non-empty Unprocessed
// slice is a partial failure: the listed keys survived every retry and the
// caller must surface that instead of reporting success.
type Summary struct {
	Deleted     int
	Batches     int
	Unprocessed []storage.Key
}

// PartialFailure reports whether any keys were left behind.
func (s Summary) PartialFailure() bool { return len(s.Unprocessed) > 0 }

// Deleter removes a user's partition in bounded batches.
type Deleter struct {
	store      storage.Store
	batchSize  int
	maxRetries int
	backoff    time.Duration
	logger     *log.Logger
	sleep      func(context.Context, time.Duration) error
}

// NewDeleter builds a deleter with the given batch size and retry policy.
func NewDeleter(store storage.Store, batchSize, maxRetries int, backoff time.Duration, logger *log.Logger) *Deleter {
	return &Deleter{
		store:      store,
		batchSize:  batchSize,
		maxRetries: maxRetries,
		backoff:    backoff,
		logger:     logger,
		sleep:      sleepCtx,
	}
}

// DeleteAllForOwner enumerates every item in the user's partition and deletes
// them in batches. Keys the store reports unprocessed are resubmitted with a
// short backoff up to the retry ceiling.
func (d *Deleter) DeleteAllForOwner(ctx context.Context, userID string) (Summary, error) {
	keys, err := d.collectKeys(ctx, userID)
	if err != nil {
		return Summary{}, err
	}

	var summary Summary
	for start := 0; start < len(keys); start += d.batchSize {
		end := start + d.batchSize
		if end > len(keys) {
			end = len(keys)
		}
		batch := keys[start:end]
		summary.Batches++

		leftover, err := d.deleteBatch(ctx, batch)
		if err != nil {
			return summary, err
		}
		summary.Deleted += len(batch) - len(leftover)
		summary.Unprocessed = append(summary.Unprocessed, leftover...)
	}

	if summary.PartialFailure() {
		d.logger.Printf("account %s deletion incomplete: %d key(s) unprocessed after %d batches", userID, len(summary.Unprocessed), summary.Batches)
	} else {
		observability.RecordAccountDeletion(summary.Deleted)
	}
	return summary, nil
}

func (d *Deleter) collectKeys(ctx context.Context, userID string) ([]storage.Key, error) {
	var keys []storage.Key
	var token storage.PageToken
	for {
		page, err := d.store.Query(ctx, storage.QueryInput{
			Partition:  domain.UserPK(userID),
			StartToken: token,
			Consistent: true,
			Attributes: []string{"PK", "SK"},
		})
		if err != nil {
			return nil, fmt.Errorf("enumerate account items: %w", err)
		}
		for _, item := range page.Items {
			keys = append(keys, itemKey(item))
		}
		if page.NextToken == nil {
			return keys, nil
		}
		token = page.NextToken
	}
}

// deleteBatch submits one batch and retries its unprocessed remainder. The
// keys still standing after the last attempt are returned to the caller.
func (d *Deleter) deleteBatch(ctx context.Context, batch []storage.Key) ([]storage.Key, error) {
	pending := batch
	for attempt := 0; ; attempt++ {
		unprocessed, err := d.store.BatchDelete(ctx, pending)
		if err != nil {
			return nil, fmt.Errorf("batch delete: %w", err)
		}
		if len(unprocessed) == 0 {
			return nil, nil
		}
		if attempt >= d.maxRetries {
			return unprocessed, nil
		}
		if err := d.sleep(ctx, d.backoff); err != nil {
			return unprocessed, err
		}
		pending = unprocessed
	}
}

func itemKey(item storage.Item) storage.Key {
	var key storage.Key
	if pk, ok := item["PK"].(*types.AttributeValueMemberS); ok {
		key.PK = pk.Value
	}
	if sk, ok := item["SK"].(*types.AttributeValueMemberS); ok {
		key.SK = sk.Value
	}
	return key
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
