package domain

// UserProfile is the immutable identity anchor created at first login.
type UserProfile struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	EntityType string `dynamodbav:"entityType"`
	UserID     string `dynamodbav:"userId"`
	Email      string `dynamodbav:"email"`
	Plan       string `dynamodbav:"plan"`
	Role       string `dynamodbav:"role"`
	CreatedAt  int64  `dynamodbav:"createdAtUtc"`
}

// NewUserProfile builds a profile item for its first conditional write.
func NewUserProfile(userID, email string, now int64) UserProfile {
	return UserProfile{
		PK:         UserPK(userID),
		SK:         SKProfile,
		EntityType: EntityUserProfile,
		UserID:     userID,
		Email:      email,
		Plan:       "free",
		Role:       "member",
		CreatedAt:  now,
	}
}

// Connection stores the provider credentials for a user. It is the only
// entity projected into GSI1 (athlete -> user resolution).
type Connection struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	EntityType string `dynamodbav:"entityType"`
	Status     string `dynamodbav:"status"`
	Source     string `dynamodbav:"source"`
	AthleteID  int64  `dynamodbav:"athleteId"`

	AccessToken  string `dynamodbav:"accessToken"`
	RefreshToken string `dynamodbav:"refreshToken"`
	ExpiresAt    int64  `dynamodbav:"expiresAtUtc"`
	Scope        string `dynamodbav:"scope"`
	UpdatedAt    int64  `dynamodbav:"updatedAtUtc"`

	GSI1PK string `dynamodbav:"GSI1PK"`
	GSI1SK string `dynamodbav:"GSI1SK"`
}

// UserID derives the owning user from the partition key.
func (c Connection) UserID() string {
	const prefix = "USER#"
	if len(c.PK) > len(prefix) && c.PK[:len(prefix)] == prefix {
		return c.PK[len(prefix):]
	}
	return ""
}

// OwnershipLock is the uniqueness anchor enforcing the 1:1 athlete-user
// mapping. At most one exists per athlete id.
type OwnershipLock struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	EntityType string `dynamodbav:"entityType"`
	Source     string `dynamodbav:"source"`
	AthleteID  int64  `dynamodbav:"athleteId"`
	UserID     string `dynamodbav:"userId"`
	UpdatedAt  int64  `dynamodbav:"updatedAtUtc"`
}

// Workout statuses. Absence of a status means the workout is active.
const (
	WorkoutStatusActive  = "ACTIVE"
	WorkoutStatusDeleted = "DELETED"
)

// Workout is the versioned projection of a provider activity, upserted by
// ingestion and soft-deleted by delete-aspect events.
type Workout struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	EntityType string `dynamodbav:"entityType"`
	Source     string `dynamodbav:"source"`
	AthleteID  int64  `dynamodbav:"athleteId"`
	ActivityID int64  `dynamodbav:"activityId"`

	AspectType string `dynamodbav:"aspectType"`
	EventTime  int64  `dynamodbav:"eventTimeUtc"`
	Status     string `dynamodbav:"status"`

	PayloadJSON string `dynamodbav:"payloadJson"`

	SportType           string `dynamodbav:"sportType"`
	DistanceMeters      int64  `dynamodbav:"distanceMeters"`
	MovingTimeSec       int64  `dynamodbav:"movingTimeSec"`
	ElapsedTimeSec      int64  `dynamodbav:"elapsedTimeSec"`
	ElevationGainMeters int64  `dynamodbav:"elevationGainMeters"`
	StartDateUTC        int64  `dynamodbav:"startDateUtc"`

	IngestedAt int64 `dynamodbav:"ingestedAtUtc"`
	UpdatedAt  int64 `dynamodbav:"updatedAtUtc"`
}

// IdempotencyMarker records that an event fingerprint has been admitted.
// Existence implies "already processed"; markers expire via the TTL attribute.
type IdempotencyMarker struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	EntityType string `dynamodbav:"entityType"`
	CreatedAt  int64  `dynamodbav:"createdAtUtc"`
	TTLEpoch   int64  `dynamodbav:"ttlEpoch"`
}

// Milestone statuses.
const (
	MilestoneStatusActive    = "ACTIVE"
	MilestoneStatusCompleted = "COMPLETED"
)

// Milestone target types.
const (
	TargetDistanceMeters  = "DISTANCE_METERS"
	TargetElevationMeters = "ELEVATION_METERS"
)

// Milestone is the aggregate mutated only by the progress engine. Version
// strictly increases by one on every successful commit; partsAwardedCount and
// COMPLETED status are monotonic ratchets.
type Milestone struct {
	PK          string `dynamodbav:"PK"`
	SK          string `dynamodbav:"SK"`
	EntityType  string `dynamodbav:"entityType"`
	MilestoneID string `dynamodbav:"milestoneId"`
	ModelID     string `dynamodbav:"modelId"`

	Sport      string `dynamodbav:"sport"`
	TargetType string `dynamodbav:"targetType"`

	TotalTarget   int64  `dynamodbav:"totalTarget"`
	Period        string `dynamodbav:"period"`
	PeriodStartAt int64  `dynamodbav:"periodStartAtUtc"`

	PartsTotal int   `dynamodbav:"partsTotal"`
	PartTarget int64 `dynamodbav:"partTarget"`

	Status string `dynamodbav:"status"`

	ProgressValue     int64 `dynamodbav:"progressValue"`
	ProgressUpdatedAt int64 `dynamodbav:"progressUpdatedAtUtc"`

	PartsAwardedCount int   `dynamodbav:"partsAwardedCount"`
	LastAwardedAt     int64 `dynamodbav:"lastAwardedAtUtc"`
	CompletedAt       int64 `dynamodbav:"completedAtUtc"`

	CreatedAt int64 `dynamodbav:"createdAtUtc"`
	UpdatedAt int64 `dynamodbav:"updatedAtUtc"`

	Version int64 `dynamodbav:"version"`
}

// MilestoneAward is minted exactly once per earned part. Creation is a
// one-way ratchet; awards are never mutated.
type MilestoneAward struct {
	PK          string `dynamodbav:"PK"`
	SK          string `dynamodbav:"SK"`
	EntityType  string `dynamodbav:"entityType"`
	MilestoneID string `dynamodbav:"milestoneId"`
	ModelID     string `dynamodbav:"modelId"`

	PartIndex int `dynamodbav:"partIndex"`

	PartName    string `dynamodbav:"partName"`
	MeshFile    string `dynamodbav:"meshFile"`
	AttachPoint string `dynamodbav:"attachPoint"`

	AwardedAt            int64 `dynamodbav:"awardedAtUtc"`
	ProgressValueAtAward int64 `dynamodbav:"progressValueAtAward"`
}

// ModelMeta is read-only reference data describing a milestone model.
type ModelMeta struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	EntityType string `dynamodbav:"entityType"`
	ModelID    string `dynamodbav:"modelId"`
	IsActive   bool   `dynamodbav:"isActive"`
	PartsTotal int    `dynamodbav:"partsTotal"`
}

// ModelPart holds the static metadata denormalized into awards.
type ModelPart struct {
	PK          string `dynamodbav:"PK"`
	SK          string `dynamodbav:"SK"`
	EntityType  string `dynamodbav:"entityType"`
	PartIndex   int    `dynamodbav:"partIndex"`
	PartName    string `dynamodbav:"partName"`
	MeshFile    string `dynamodbav:"meshFile"`
	AttachPoint string `dynamodbav:"attachPoint"`
}

// Session maps an opaque cookie value to a user, stored in the sessions table.
type Session struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	EntityType string `dynamodbav:"entityType"`
	SessionID  string `dynamodbav:"sessionId"`
	UserID     string `dynamodbav:"userId"`
	Email      string `dynamodbav:"email"`

	RefreshToken string `dynamodbav:"refreshToken"`
	CreatedAt    int64  `dynamodbav:"createdAtUtc"`
	ExpiresAt    int64  `dynamodbav:"ttlEpoch"`
}
