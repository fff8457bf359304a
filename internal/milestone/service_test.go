package milestone

import (
	"context"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/stretchr/testify/require"

	"example.com/commitcollect/internal/domain"
	"example.com/commitcollect/internal/storage"
	"example.com/commitcollect/internal/storage/storetest"
)

func seedModel(t *testing.T, store *storetest.MemoryStore, modelID string, partsTotal int, active bool) {
	t.Helper()
	ctx := context.Background()

	meta := domain.ModelMeta{
		PK:         domain.ModelPK(modelID),
		SK:         domain.SKModelMeta,
		EntityType: domain.EntityMilestoneModel,
		ModelID:    modelID,
		IsActive:   active,
		PartsTotal: partsTotal,
	}
	item, err := attributevalue.MarshalMap(meta)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, item, storage.Unconditional()))

	for i := 1; i <= partsTotal; i++ {
		seedModelPart(t, store, modelID, i)
	}
}

func seedModelPart(t *testing.T, store *storetest.MemoryStore, modelID string, index int) {
	t.Helper()
	part := domain.ModelPart{
		PK:          domain.ModelPK(modelID),
		SK:          domain.ModelPartSK(index),
		EntityType:  domain.EntityMilestoneModel,
		PartIndex:   index,
		PartName:    fmt.Sprintf("part-%02d", index),
		MeshFile:    fmt.Sprintf("meshes/part_%02d.glb", index),
		AttachPoint: fmt.Sprintf("socket_%02d", index),
	}
	item, err := attributevalue.MarshalMap(part)
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), item, storage.Unconditional()))
}

func TestCreateComputesPartTarget(t *testing.T) {
	store := storetest.NewMemoryStore()
	seedModel(t, store, "bike-v1", 3, true)
	svc := NewService(store)

	m, err := svc.Create(context.Background(), "user-a", CreateInput{
		ModelID:     "bike-v1",
		Sport:       "ride",
		TargetType:  "distance_meters",
		TotalTarget: 250,
	})
	require.NoError(t, err)

	require.NotEmpty(t, m.MilestoneID)
	require.Equal(t, "RIDE", m.Sport)
	require.Equal(t, domain.TargetDistanceMeters, m.TargetType)
	require.Equal(t, 3, m.PartsTotal)
	// Ceiling division: 250/3 rounds up.
	require.Equal(t, int64(84), m.PartTarget)
	require.Equal(t, domain.MilestoneStatusActive, m.Status)
	require.Equal(t, int64(1), m.Version)
}

func TestCreateValidation(t *testing.T) {
	store := storetest.NewMemoryStore()
	seedModel(t, store, "bike-v1", 3, true)
	svc := NewService(store)
	ctx := context.Background()

	_, err := svc.Create(ctx, "user-a", CreateInput{ModelID: "bike-v1", Sport: "rowing", TargetType: "DISTANCE_METERS", TotalTarget: 100})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Create(ctx, "user-a", CreateInput{ModelID: "bike-v1", Sport: "RUN", TargetType: "CALORIES", TotalTarget: 100})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Create(ctx, "user-a", CreateInput{ModelID: "bike-v1", Sport: "RUN", TargetType: "DISTANCE_METERS", TotalTarget: 0})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestCreateRequiresActiveModel(t *testing.T) {
	store := storetest.NewMemoryStore()
	seedModel(t, store, "retired-v1", 3, false)
	svc := NewService(store)
	ctx := context.Background()

	_, err := svc.Create(ctx, "user-a", CreateInput{ModelID: "missing", Sport: "RIDE", TargetType: "DISTANCE_METERS", TotalTarget: 100})
	require.ErrorIs(t, err, domain.ErrModelNotFound)

	_, err = svc.Create(ctx, "user-a", CreateInput{ModelID: "retired-v1", Sport: "RIDE", TargetType: "DISTANCE_METERS", TotalTarget: 100})
	require.ErrorIs(t, err, domain.ErrModelNotActive)
}

func TestGetReturnsMilestoneWithAwards(t *testing.T) {
	store := storetest.NewMemoryStore()
	seedModel(t, store, "bike-v1", 10, true)
	svc := NewService(store)
	engine := NewEngine(store, 200, 3000, testLogger(t))
	ctx := context.Background()

	m, err := svc.Create(ctx, "user-a", CreateInput{
		ModelID: "bike-v1", Sport: "RIDE", TargetType: "DISTANCE_METERS", TotalTarget: 1000,
	})
	require.NoError(t, err)

	seedWorkout(t, store, "user-a", 1, "RIDE", 250, 0, 100)

	_, err = engine.Recompute(ctx, "user-a", m.MilestoneID)
	require.NoError(t, err)

	view, err := svc.Get(ctx, "user-a", m.MilestoneID)
	require.NoError(t, err)
	require.Equal(t, int64(250), view.Milestone.ProgressValue)
	require.Len(t, view.Awards, 2)
	require.Equal(t, "part-01", view.Awards[0].PartName)
	require.Equal(t, int64(750), view.Remaining)
	require.InDelta(t, 25.0, view.PercentDone, 0.01)
	require.Equal(t, int64(300), view.NextPartTarget)
}

func TestGetUnknownMilestone(t *testing.T) {
	store := storetest.NewMemoryStore()
	svc := NewService(store)

	_, err := svc.Get(context.Background(), "user-a", "nope")
	require.ErrorIs(t, err, domain.ErrMilestoneNotFound)
}
