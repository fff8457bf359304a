package domain

import "strings"

// Provider event aspects.
const (
	AspectCreate = "create"
	AspectUpdate = "update"
	AspectDelete = "delete"
)

// ObjectTypeActivity is the only provider object type ingested.
const ObjectTypeActivity = "activity"

// ProviderEvent is the normalized webhook tuple handed to the ingestion
// pipeline. The transport has already verified authenticity.
type ProviderEvent struct {
	Source     string `json:"source"`
	ObjectType string `json:"object_type"`
	ObjectID   int64  `json:"object_id"`
	AspectType string `json:"aspect_type"`
	OwnerID    int64  `json:"owner_id"`
	EventTime  int64  `json:"event_time"`
}

// Fingerprint derives the event's idempotency fingerprint.
func (e ProviderEvent) Fingerprint() string {
	return EventFingerprint(e.ObjectType, e.AspectType, e.ObjectID, e.EventTime)
}

// Supported reports whether the event is one the pipeline ingests.
func (e ProviderEvent) Supported() bool {
	if !strings.EqualFold(e.ObjectType, ObjectTypeActivity) {
		return false
	}
	switch strings.ToLower(e.AspectType) {
	case AspectCreate, AspectUpdate, AspectDelete:
		return true
	}
	return false
}

// NormSport canonicalizes sport identifiers for comparison.
func NormSport(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
