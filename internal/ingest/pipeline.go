package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"

	"example.com/commitcollect/internal/domain"
	"example.com/commitcollect/internal/observability"
	"example.com/commitcollect/internal/storage"
	"example.com/commitcollect/internal/strava"
)

// ProviderClient is the outbound surface the pipeline needs from the
// provider API.
type ProviderClient interface {
	Refresh(ctx context.Context, refreshToken string) (strava.TokenSet, error)
	FetchActivity(ctx context.Context, accessToken string, activityID int64) (strava.Activity, error)
}

// Connections resolves event owners and persists refreshed credentials.
type Connections interface {
	FindByAthlete(ctx context.Context, athleteID int64) (domain.Connection, error)
	UpdateTokens(ctx context.Context, conn domain.Connection, accessToken, refreshToken string, expiresAt int64) (domain.Connection, error)
}

// Pipeline processes admitted provider events into workout items.
type Pipeline struct {
	store         storage.Store
	gate          *Gate
	connections   Connections
	provider      ProviderClient
	refreshMargin time.Duration
	logger        *log.Logger
	now           func() time.Time
}

// NewPipeline wires the pipeline's collaborators.
func NewPipeline(store storage.Store, gate *Gate, connections Connections, provider ProviderClient, refreshMargin time.Duration, logger *log.Logger) *Pipeline {
	return &Pipeline{
		store:         store,
		gate:          gate,
		connections:   connections,
		provider:      provider,
		refreshMargin: refreshMargin,
		logger:        logger,
		now:           time.Now,
	}
}

// Process runs one event through admission, owner resolution and projection.
// Events for unknown athletes or unsupported shapes are absorbed, not
// retried; only infrastructure failures return an error.
func (p *Pipeline) Process(ctx context.Context, event domain.ProviderEvent) error {
	if !event.Supported() {
		observability.RecordEvent(event.AspectType, observability.OutcomeSkipped)
		return nil
	}

	if !p.gate.Admit(ctx, event.Fingerprint()) {
		observability.RecordEvent(event.AspectType, observability.OutcomeDuplicate)
		return nil
	}

	conn, err := p.connections.FindByAthlete(ctx, event.OwnerID)
	if err != nil {
		if errors.Is(err, domain.ErrNoConnection) {
			p.logger.Printf("event for unconnected athlete %d dropped", event.OwnerID)
			observability.RecordEvent(event.AspectType, observability.OutcomeOrphaned)
			return nil
		}
		observability.RecordEvent(event.AspectType, observability.OutcomeFailed)
		return fmt.Errorf("resolve owner: %w", err)
	}

	if event.AspectType == domain.AspectDelete {
		if err := p.markDeleted(ctx, conn.UserID(), event); err != nil {
			observability.RecordEvent(event.AspectType, observability.OutcomeFailed)
			return err
		}
		observability.RecordEvent(event.AspectType, observability.OutcomeDeleted)
		return nil
	}

	conn, err = p.ensureFreshToken(ctx, conn)
	if err != nil {
		if errors.Is(err, domain.ErrNoConnection) {
			// Disconnected between resolution and refresh.
			observability.RecordEvent(event.AspectType, observability.OutcomeOrphaned)
			return nil
		}
		observability.RecordEvent(event.AspectType, observability.OutcomeFailed)
		return err
	}

	activity, err := p.provider.FetchActivity(ctx, conn.AccessToken, event.ObjectID)
	if err != nil {
		if errors.Is(err, strava.ErrActivityNotFound) {
			// Deleted upstream before we could fetch it.
			if err := p.markDeleted(ctx, conn.UserID(), event); err != nil {
				observability.RecordEvent(event.AspectType, observability.OutcomeFailed)
				return err
			}
			observability.RecordEvent(event.AspectType, observability.OutcomeDeleted)
			return nil
		}
		observability.RecordEvent(event.AspectType, observability.OutcomeFailed)
		return fmt.Errorf("fetch activity: %w", err)
	}

	if err := p.persist(ctx, conn.UserID(), event, activity); err != nil {
		observability.RecordEvent(event.AspectType, observability.OutcomeFailed)
		return err
	}
	observability.RecordEvent(event.AspectType, observability.OutcomePersisted)
	return nil
}

// ensureFreshToken refreshes the credential bundle when it expires within the
// refresh margin.
func (p *Pipeline) ensureFreshToken(ctx context.Context, conn domain.Connection) (domain.Connection, error) {
	if conn.ExpiresAt-p.now().UTC().Unix() > int64(p.refreshMargin.Seconds()) {
		return conn, nil
	}

	tokens, err := p.provider.Refresh(ctx, conn.RefreshToken)
	if err != nil {
		return domain.Connection{}, fmt.Errorf("refresh token for athlete %d: %w", conn.AthleteID, err)
	}
	updated, err := p.connections.UpdateTokens(ctx, conn, tokens.AccessToken, tokens.RefreshToken, tokens.ExpiresAt)
	if err != nil {
		return domain.Connection{}, err
	}
	return updated, nil
}

// markDeleted soft-deletes the workout projection. The tombstone is written
// even when no projection exists yet, so a delete arriving before its create
// still wins: the later create upsert is guarded by checking for it.
func (p *Pipeline) markDeleted(ctx context.Context, userID string, event domain.ProviderEvent) error {
	now := p.now().UTC().Unix()
	key := storage.Key{PK: domain.UserPK(userID), SK: domain.WorkoutSK(event.ObjectID)}

	existing, err := p.store.Get(ctx, key, true)
	if err != nil {
		return fmt.Errorf("load workout for delete: %w", err)
	}

	workout := domain.Workout{
		PK:         key.PK,
		SK:         key.SK,
		EntityType: domain.EntityWorkout,
		Source:     domain.SourceStrava,
		AthleteID:  event.OwnerID,
		ActivityID: event.ObjectID,
		AspectType: domain.AspectDelete,
		EventTime:  event.EventTime,
		Status:     domain.WorkoutStatusDeleted,
		IngestedAt: now,
		UpdatedAt:  now,
	}
	if existing != nil {
		if err := attributevalue.UnmarshalMap(existing, &workout); err != nil {
			return fmt.Errorf("unmarshal workout: %w", err)
		}
		workout.AspectType = domain.AspectDelete
		workout.EventTime = event.EventTime
		workout.Status = domain.WorkoutStatusDeleted
		workout.UpdatedAt = now
	}

	item, err := attributevalue.MarshalMap(workout)
	if err != nil {
		return fmt.Errorf("marshal workout: %w", err)
	}
	if err := p.store.Put(ctx, item, storage.Unconditional()); err != nil {
		return fmt.Errorf("store workout tombstone: %w", err)
	}
	return nil
}

// persist upserts the workout projection from the fetched activity. A
// projection already soft-deleted stays deleted; create and update events
// never resurrect a tombstone.
func (p *Pipeline) persist(ctx context.Context, userID string, event domain.ProviderEvent, activity strava.Activity) error {
	now := p.now().UTC().Unix()
	key := storage.Key{PK: domain.UserPK(userID), SK: domain.WorkoutSK(event.ObjectID)}

	existing, err := p.store.Get(ctx, key, true)
	if err != nil {
		return fmt.Errorf("load workout: %w", err)
	}
	if existing != nil {
		var prior domain.Workout
		if err := attributevalue.UnmarshalMap(existing, &prior); err != nil {
			return fmt.Errorf("unmarshal workout: %w", err)
		}
		if prior.Status == domain.WorkoutStatusDeleted {
			p.logger.Printf("activity %d already deleted, ignoring %s", event.ObjectID, event.AspectType)
			return nil
		}
	}

	payload, err := json.Marshal(activity)
	if err != nil {
		return fmt.Errorf("marshal activity payload: %w", err)
	}

	workout := domain.Workout{
		PK:         key.PK,
		SK:         key.SK,
		EntityType: domain.EntityWorkout,
		Source:     domain.SourceStrava,
		AthleteID:  event.OwnerID,
		ActivityID: event.ObjectID,

		AspectType: event.AspectType,
		EventTime:  event.EventTime,
		Status:     domain.WorkoutStatusActive,

		PayloadJSON: string(payload),

		SportType:           domain.NormSport(activity.SportType),
		DistanceMeters:      int64(activity.Distance),
		MovingTimeSec:       activity.MovingTime,
		ElapsedTimeSec:      activity.ElapsedTime,
		ElevationGainMeters: int64(activity.TotalElevationGain),
		StartDateUTC:        activity.StartUnix(),

		IngestedAt: now,
		UpdatedAt:  now,
	}

	item, err := attributevalue.MarshalMap(workout)
	if err != nil {
		return fmt.Errorf("marshal workout: %w", err)
	}
	if err := p.store.Put(ctx, item, storage.Unconditional()); err != nil {
		return fmt.Errorf("store workout: %w", err)
	}
	observability.RecordWorkoutPersisted(time.Unix(now, 0))
	return nil
}
