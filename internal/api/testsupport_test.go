package api

import (
	"context"
	"fmt"
	"log"
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/stretchr/testify/require"

	"example.com/commitcollect/internal/domain"
	"example.com/commitcollect/internal/storage"
	"example.com/commitcollect/internal/storage/storetest"
)

func seedModelItems(t *testing.T, store *storetest.MemoryStore, modelID string, partsTotal int) {
	t.Helper()
	ctx := context.Background()

	meta := domain.ModelMeta{
		PK:         domain.ModelPK(modelID),
		SK:         domain.SKModelMeta,
		EntityType: domain.EntityMilestoneModel,
		ModelID:    modelID,
		IsActive:   true,
		PartsTotal: partsTotal,
	}
	item, err := attributevalue.MarshalMap(meta)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, item, storage.Unconditional()))

	for i := 1; i <= partsTotal; i++ {
		part := domain.ModelPart{
			PK:          domain.ModelPK(modelID),
			SK:          domain.ModelPartSK(i),
			EntityType:  domain.EntityMilestoneModel,
			PartIndex:   i,
			PartName:    fmt.Sprintf("part-%02d", i),
			MeshFile:    fmt.Sprintf("meshes/part_%02d.glb", i),
			AttachPoint: fmt.Sprintf("socket_%02d", i),
		}
		partItem, err := attributevalue.MarshalMap(part)
		require.NoError(t, err)
		require.NoError(t, store.Put(ctx, partItem, storage.Unconditional()))
	}
}

func seedWorkoutItem(t *testing.T, store *storetest.MemoryStore, userID string, activityID, distance int64) {
	t.Helper()
	w := domain.Workout{
		PK:             domain.UserPK(userID),
		SK:             domain.WorkoutSK(activityID),
		EntityType:     domain.EntityWorkout,
		Source:         domain.SourceStrava,
		ActivityID:     activityID,
		Status:         domain.WorkoutStatusActive,
		SportType:      "RIDE",
		DistanceMeters: distance,
	}
	item, err := attributevalue.MarshalMap(w)
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), item, storage.Unconditional()))
}

func testLogger(t *testing.T) *log.Logger {
	return log.New(logWriter{t}, "", 0)
}

type logWriter struct {
	t *testing.T
}

func (w logWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}
