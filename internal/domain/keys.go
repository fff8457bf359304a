// Package domain defines the typed entities stored in the CommitCollect table
// and the key builders for its single-table layout.
package domain

import "fmt"

// Entity type discriminators stored on every item.
const (
	EntityUserProfile      = "UserProfile"
	EntityConnection       = "StravaConnection"
	EntityAthleteOwnership = "AthleteOwnership"
	EntityWorkout          = "Workout"
	EntityMilestone        = "Milestone"
	EntityMilestoneAward   = "MilestoneAward"
	EntityMilestoneModel   = "MilestoneModel"
	EntitySession          = "Session"
	EntityAuditEvent       = "AuditEvent"
	EntityIdempotency      = "IdempotencyMarker"
)

// Fixed sort keys.
const (
	SKProfile     = "PROFILE"
	SKConnection  = "STRAVA#CONNECTION"
	SKOwner       = "OWNER"
	SKModelMeta   = "META"
	SKSessionMeta = "META"
	SKMarker      = "MARKER"
)

// SourceStrava identifies the external fitness provider.
const SourceStrava = "STRAVA"

// UserPK builds the partition key owning all of a user's items.
func UserPK(userID string) string { return "USER#" + userID }

// AthleteLockPK builds the partition key of the ownership lock for an athlete.
// Lock items are deliberately not indexed.
func AthleteLockPK(athleteID int64) string {
	return fmt.Sprintf("STRAVA#ATHLETE#%d", athleteID)
}

// AthleteIndexPK is the GSI1 partition key that maps an athlete to its owning
// user; only connection items carry it.
func AthleteIndexPK(athleteID int64) string {
	return fmt.Sprintf("STRAVA#ATHLETE#%d", athleteID)
}

// WorkoutSK builds the sort key for a provider activity.
func WorkoutSK(activityID int64) string {
	return fmt.Sprintf("WORKOUT#STRAVA#%d", activityID)
}

// WorkoutSKPrefix is the sort-key prefix covering all Strava workouts.
const WorkoutSKPrefix = "WORKOUT#STRAVA#"

// MilestoneSK builds the sort key of a milestone root item.
func MilestoneSK(milestoneID string) string { return "MILESTONE#" + milestoneID }

// AwardSK builds the sort key of an award item. The zero-padded part index
// keeps awards sorted directly behind their milestone root.
func AwardSK(milestoneID string, partIndex int) string {
	return fmt.Sprintf("MILESTONE#%s#AWARD#%02d", milestoneID, partIndex)
}

// ModelPK builds the partition key of a milestone model's reference data.
func ModelPK(modelID string) string { return "MODEL#" + modelID }

// ModelPartSK builds the sort key of a model part's static metadata.
func ModelPartSK(partIndex int) string { return fmt.Sprintf("PART#%02d", partIndex) }

// SessionPK builds the partition key of a session item in the sessions table.
func SessionPK(sessionID string) string { return "SESSION#" + sessionID }

// MarkerPK builds the partition key of an idempotency marker.
func MarkerPK(fingerprint string) string { return "EVT#" + fingerprint }

// AuditSK builds the sort key of an audit event.
func AuditSK(occurredAt int64, requestID string) string {
	return fmt.Sprintf("AUDIT#%d#%s", occurredAt, requestID)
}

// EventFingerprint derives the idempotency fingerprint for a provider event.
// Identical redeliveries always collide; distinct logical events never do.
func EventFingerprint(objectType, aspectType string, objectID, eventTime int64) string {
	return fmt.Sprintf("STRAVA#EVT#%s#%s#%d#%d", objectType, aspectType, objectID, eventTime)
}
