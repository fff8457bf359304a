// Package audit records security-relevant actions to a dedicated table with a
// retention TTL. Audit writes never fail the operation they describe.
package audit

import (
	"context"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/google/uuid"

	"example.com/commitcollect/internal/domain"
	"example.com/commitcollect/internal/storage"
)

// Retention before audit items expire via the table TTL.
const retention = 90 * 24 * time.Hour

// Event is one audit record.
type Event struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	EntityType string `dynamodbav:"entityType"`
	UserID     string `dynamodbav:"userId"`
	Action     string `dynamodbav:"action"`
	Detail     string `dynamodbav:"detail"`
	OccurredAt int64  `dynamodbav:"occurredAtUtc"`
	TTLEpoch   int64  `dynamodbav:"ttlEpoch"`
}

// Actions recorded by the service.
const (
	ActionLogin            = "LOGIN"
	ActionLogout           = "LOGOUT"
	ActionConnectStrava    = "CONNECT_STRAVA"
	ActionDisconnectStrava = "DISCONNECT_STRAVA"
	ActionMilestoneCreate  = "MILESTONE_CREATE"
	ActionAccountDelete    = "ACCOUNT_DELETE"
)

// Sink writes audit events.
type Sink struct {
	store  storage.Store
	logger *log.Logger
	now    func() time.Time
}

// NewSink builds a sink over the audit table's store.
func NewSink(store storage.Store) *Sink {
	return &Sink{
		store:  store,
		logger: log.New(log.Writer(), "[audit] ", log.LstdFlags),
		now:    time.Now,
	}
}

// Record writes one audit event. Failures are logged and swallowed so the
// audited operation is never blocked.
func (s *Sink) Record(ctx context.Context, userID, action, detail string) {
	now := s.now().UTC()
	event := Event{
		PK:         domain.UserPK(userID),
		SK:         domain.AuditSK(now.Unix(), uuid.NewString()),
		EntityType: domain.EntityAuditEvent,
		UserID:     userID,
		Action:     action,
		Detail:     detail,
		OccurredAt: now.Unix(),
		TTLEpoch:   now.Add(retention).Unix(),
	}

	item, err := attributevalue.MarshalMap(event)
	if err != nil {
		s.logger.Printf("marshal audit event: %v", err)
		return
	}
	if err := s.store.Put(ctx, item, storage.Unconditional()); err != nil {
		s.logger.Printf("write audit event (user=%s, action=%s): %v", userID, action, err)
	}
}
