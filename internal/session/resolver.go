// Package session maps opaque cookie values to authenticated users via the
// sessions table.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/google/uuid"

	"example.com/commitcollect/internal/domain"
	"example.com/commitcollect/internal/storage"
)

// CookieName is the session cookie set on login.
const CookieName = "cc_session"

// Manager creates, resolves and revokes sessions.
type Manager struct {
	store storage.Store
	ttl   time.Duration
	now   func() time.Time
}

// NewManager builds a manager over the sessions table's store.
func NewManager(store storage.Store, ttl time.Duration) *Manager {
	return &Manager{store: store, ttl: ttl, now: time.Now}
}

// Create mints a new session for the user and returns its opaque id.
func (m *Manager) Create(ctx context.Context, userID, email, refreshToken string) (domain.Session, error) {
	now := m.now().UTC()
	sess := domain.Session{
		SessionID:    uuid.NewString(),
		EntityType:   domain.EntitySession,
		UserID:       userID,
		Email:        email,
		RefreshToken: refreshToken,
		CreatedAt:    now.Unix(),
		ExpiresAt:    now.Add(m.ttl).Unix(),
	}
	sess.PK = domain.SessionPK(sess.SessionID)
	sess.SK = domain.SKSessionMeta

	item, err := attributevalue.MarshalMap(sess)
	if err != nil {
		return domain.Session{}, fmt.Errorf("marshal session: %w", err)
	}
	if err := m.store.Put(ctx, item, storage.Unconditional()); err != nil {
		return domain.Session{}, fmt.Errorf("store session: %w", err)
	}
	return sess, nil
}

// Resolve returns the session for the given cookie value, or nil when the
// session is absent or expired. Expiry is checked here as well because table
// TTL deletion lags the expiry timestamp.
func (m *Manager) Resolve(ctx context.Context, sessionID string) (*domain.Session, error) {
	if sessionID == "" {
		return nil, nil
	}
	item, err := m.store.Get(ctx, storage.Key{PK: domain.SessionPK(sessionID), SK: domain.SKSessionMeta}, false)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if item == nil {
		return nil, nil
	}

	var sess domain.Session
	if err := attributevalue.UnmarshalMap(item, &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	if sess.ExpiresAt <= m.now().UTC().Unix() {
		return nil, nil
	}
	return &sess, nil
}

// Revoke deletes the session. Revoking an unknown session is a no-op.
func (m *Manager) Revoke(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	err := m.store.Delete(ctx, storage.Key{PK: domain.SessionPK(sessionID), SK: domain.SKSessionMeta}, storage.Unconditional())
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}
