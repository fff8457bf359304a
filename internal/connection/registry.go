// Package connection manages provider connections and the ownership locks
// that keep each external athlete bound to at most one user.
package connection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"

	"example.com/commitcollect/internal/domain"
	"example.com/commitcollect/internal/storage"
)

// Registry persists connections and enforces athlete ownership.
type Registry struct {
	store storage.Store
	now   func() time.Time
}

// NewRegistry builds a registry over the main table's store.
func NewRegistry(store storage.Store) *Registry {
	return &Registry{store: store, now: time.Now}
}

// Claim binds the athlete to the user and stores the credential bundle in one
// transaction. The lock write passes only when no lock exists or the existing
// lock already names this user, so reconnects overwrite and takeovers fail
// with ErrAlreadyConnected.
func (r *Registry) Claim(ctx context.Context, userID string, athleteID int64, tokens domain.Connection) (domain.Connection, error) {
	now := r.now().UTC().Unix()

	conn := tokens
	conn.PK = domain.UserPK(userID)
	conn.SK = domain.SKConnection
	conn.EntityType = domain.EntityConnection
	conn.Status = "CONNECTED"
	conn.Source = domain.SourceStrava
	conn.AthleteID = athleteID
	conn.UpdatedAt = now
	conn.GSI1PK = domain.AthleteIndexPK(athleteID)
	conn.GSI1SK = domain.UserPK(userID)

	lock := domain.OwnershipLock{
		PK:         domain.AthleteLockPK(athleteID),
		SK:         domain.SKOwner,
		EntityType: domain.EntityAthleteOwnership,
		Source:     domain.SourceStrava,
		AthleteID:  athleteID,
		UserID:     userID,
		UpdatedAt:  now,
	}

	connItem, err := attributevalue.MarshalMap(conn)
	if err != nil {
		return domain.Connection{}, fmt.Errorf("marshal connection: %w", err)
	}
	lockItem, err := attributevalue.MarshalMap(lock)
	if err != nil {
		return domain.Connection{}, fmt.Errorf("marshal ownership lock: %w", err)
	}

	err = r.store.TransactWrite(ctx, []storage.TransactOp{
		{Put: &storage.TransactPut{
			Item:      lockItem,
			Condition: storage.IfNotExistsOrEquals("userId", storage.StringValue(userID)),
		}},
		{Put: &storage.TransactPut{Item: connItem, Condition: storage.Unconditional()}},
	})
	if err != nil {
		if errors.Is(err, storage.ErrConditionFailed) {
			return domain.Connection{}, domain.ErrAlreadyConnected
		}
		return domain.Connection{}, fmt.Errorf("claim athlete %d: %w", athleteID, err)
	}
	return conn, nil
}

// Release removes the user's connection and the athlete lock. The lock
// delete is conditioned on this user still owning it; when that fails the
// lock is already gone or re-claimed, which counts as done, and only the
// connection item is removed.
func (r *Registry) Release(ctx context.Context, userID string, athleteID int64) error {
	connKey := storage.Key{PK: domain.UserPK(userID), SK: domain.SKConnection}
	lockKey := storage.Key{PK: domain.AthleteLockPK(athleteID), SK: domain.SKOwner}

	err := r.store.TransactWrite(ctx, []storage.TransactOp{
		{Delete: &storage.TransactDelete{
			Key:       lockKey,
			Condition: storage.IfAttributeEquals("userId", storage.StringValue(userID)),
		}},
		{Delete: &storage.TransactDelete{Key: connKey, Condition: storage.Unconditional()}},
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, storage.ErrConditionFailed) {
		if err := r.store.Delete(ctx, connKey, storage.Unconditional()); err != nil {
			return fmt.Errorf("release connection: %w", err)
		}
		return nil
	}
	return fmt.Errorf("release athlete %d: %w", athleteID, err)
}

// Get loads the user's connection, or ErrNoConnection when absent.
func (r *Registry) Get(ctx context.Context, userID string) (domain.Connection, error) {
	item, err := r.store.Get(ctx, storage.Key{PK: domain.UserPK(userID), SK: domain.SKConnection}, true)
	if err != nil {
		return domain.Connection{}, fmt.Errorf("load connection: %w", err)
	}
	if item == nil {
		return domain.Connection{}, domain.ErrNoConnection
	}

	var conn domain.Connection
	if err := attributevalue.UnmarshalMap(item, &conn); err != nil {
		return domain.Connection{}, fmt.Errorf("unmarshal connection: %w", err)
	}
	return conn, nil
}

// FindByAthlete resolves the user owning the given athlete via the secondary
// index, or ErrNoConnection when nobody owns it.
func (r *Registry) FindByAthlete(ctx context.Context, athleteID int64) (domain.Connection, error) {
	page, err := r.store.Query(ctx, storage.QueryInput{
		Partition: domain.AthleteIndexPK(athleteID),
		Index:     "GSI1",
		Limit:     1,
	})
	if err != nil {
		return domain.Connection{}, fmt.Errorf("resolve athlete %d: %w", athleteID, err)
	}
	if len(page.Items) == 0 {
		return domain.Connection{}, domain.ErrNoConnection
	}

	var conn domain.Connection
	if err := attributevalue.UnmarshalMap(page.Items[0], &conn); err != nil {
		return domain.Connection{}, fmt.Errorf("unmarshal connection: %w", err)
	}
	return conn, nil
}

// UpdateTokens overwrites the credential bundle after a refresh. The write is
// conditioned on the connection still belonging to the same athlete so a
// concurrent disconnect cannot be resurrected; that race maps to
// ErrNoConnection.
func (r *Registry) UpdateTokens(ctx context.Context, conn domain.Connection, accessToken, refreshToken string, expiresAt int64) (domain.Connection, error) {
	conn.AccessToken = accessToken
	conn.RefreshToken = refreshToken
	conn.ExpiresAt = expiresAt
	conn.UpdatedAt = r.now().UTC().Unix()

	item, err := attributevalue.MarshalMap(conn)
	if err != nil {
		return domain.Connection{}, fmt.Errorf("marshal connection: %w", err)
	}
	err = r.store.Put(ctx, item, storage.IfAttributeEquals("athleteId", storage.NumberValue(conn.AthleteID)))
	if err != nil {
		if errors.Is(err, storage.ErrConditionFailed) {
			return domain.Connection{}, domain.ErrNoConnection
		}
		return domain.Connection{}, fmt.Errorf("update tokens: %w", err)
	}
	return conn, nil
}
