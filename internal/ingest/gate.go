// Package ingest turns verified provider events into workout projections.
package ingest

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"

	"example.com/commitcollect/internal/domain"
	"example.com/commitcollect/internal/storage"
)

// Gate is the idempotency barrier in front of the pipeline. Each event
// fingerprint is admitted at most once per marker lifetime.
type Gate struct {
	store  storage.Store
	ttl    time.Duration
	logger *log.Logger
	now    func() time.Time
}

// NewGate builds a gate writing markers with the given TTL.
func NewGate(store storage.Store, ttl time.Duration, logger *log.Logger) *Gate {
	return &Gate{store: store, ttl: ttl, logger: logger, now: time.Now}
}

// Admit attempts to claim the fingerprint. It returns false only when a live
// marker already exists. Infrastructure failures admit the event anyway; a
// rare duplicate is preferable to dropping a real one, and downstream writes
// are idempotent.
func (g *Gate) Admit(ctx context.Context, fingerprint string) bool {
	now := g.now().UTC()
	marker := domain.IdempotencyMarker{
		PK:         domain.MarkerPK(fingerprint),
		SK:         domain.SKMarker,
		EntityType: domain.EntityIdempotency,
		CreatedAt:  now.Unix(),
		TTLEpoch:   now.Add(g.ttl).Unix(),
	}

	item, err := attributevalue.MarshalMap(marker)
	if err != nil {
		g.logger.Printf("marshal idempotency marker: %v", err)
		return true
	}

	err = g.store.Put(ctx, item, storage.IfNotExists())
	if err == nil {
		return true
	}
	if errors.Is(err, storage.ErrConditionFailed) {
		return false
	}
	g.logger.Printf("idempotency marker write failed, admitting event: %v", err)
	return true
}
