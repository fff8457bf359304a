// Package milestone implements milestone lifecycle and the progress engine
// that converts workout history into awards.
package milestone

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"example.com/commitcollect/internal/domain"
	"example.com/commitcollect/internal/storage"
)

// Sports a milestone can target.
var supportedSports = map[string]bool{
	"RIDE": true,
	"RUN":  true,
	"SWIM": true,
}

// ErrInvalidInput wraps validation failures on milestone creation.
var ErrInvalidInput = errors.New("invalid milestone input")

// CreateInput carries the caller-supplied milestone parameters.
type CreateInput struct {
	ModelID       string
	Sport         string
	TargetType    string
	TotalTarget   int64
	Period        string
	PeriodStartAt int64
}

// View is a milestone with its awards and derived progress figures.
type View struct {
	Milestone domain.Milestone
	Awards    []domain.MilestoneAward

	Remaining      int64
	PercentDone    float64
	NextPartTarget int64
}

// Service creates and reads milestones.
type Service struct {
	store storage.Store
	now   func() time.Time
}

// NewService builds a service over the main table's store.
func NewService(store storage.Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Create validates the input against the referenced model's reference data
// and writes the milestone root item. The per-part target is the ceiling
// division of the total so every part is reachable.
func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (domain.Milestone, error) {
	sport := domain.NormSport(in.Sport)
	if !supportedSports[sport] {
		return domain.Milestone{}, fmt.Errorf("%w: unsupported sport %q", ErrInvalidInput, in.Sport)
	}
	targetType := strings.ToUpper(strings.TrimSpace(in.TargetType))
	if targetType != domain.TargetDistanceMeters && targetType != domain.TargetElevationMeters {
		return domain.Milestone{}, fmt.Errorf("%w: unsupported target type %q", ErrInvalidInput, in.TargetType)
	}
	if in.TotalTarget <= 0 {
		return domain.Milestone{}, fmt.Errorf("%w: total target must be positive", ErrInvalidInput)
	}
	if in.ModelID == "" {
		return domain.Milestone{}, fmt.Errorf("%w: model id required", ErrInvalidInput)
	}

	meta, err := s.loadModelMeta(ctx, in.ModelID)
	if err != nil {
		return domain.Milestone{}, err
	}
	if !meta.IsActive {
		return domain.Milestone{}, domain.ErrModelNotActive
	}
	if meta.PartsTotal <= 0 {
		return domain.Milestone{}, fmt.Errorf("model %s has no parts", in.ModelID)
	}

	now := s.now().UTC().Unix()
	m := domain.Milestone{
		EntityType:  domain.EntityMilestone,
		MilestoneID: uuid.NewString(),
		ModelID:     in.ModelID,

		Sport:      sport,
		TargetType: targetType,

		TotalTarget:   in.TotalTarget,
		Period:        in.Period,
		PeriodStartAt: in.PeriodStartAt,

		PartsTotal: meta.PartsTotal,
		PartTarget: ceilDiv(in.TotalTarget, int64(meta.PartsTotal)),

		Status:    domain.MilestoneStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}
	m.PK = domain.UserPK(userID)
	m.SK = domain.MilestoneSK(m.MilestoneID)

	item, err := attributevalue.MarshalMap(m)
	if err != nil {
		return domain.Milestone{}, fmt.Errorf("marshal milestone: %w", err)
	}
	if err := s.store.Put(ctx, item, storage.IfNotExists()); err != nil {
		return domain.Milestone{}, fmt.Errorf("store milestone: %w", err)
	}
	return m, nil
}

// Get loads a milestone with its awards in one prefix query. The zero-padded
// award sort keys collate directly behind the root item.
func (s *Service) Get(ctx context.Context, userID, milestoneID string) (View, error) {
	var view View
	token := storage.PageToken(nil)
	for {
		page, err := s.store.Query(ctx, storage.QueryInput{
			Partition:  domain.UserPK(userID),
			SortPrefix: domain.MilestoneSK(milestoneID),
			StartToken: token,
			Consistent: true,
		})
		if err != nil {
			return View{}, fmt.Errorf("query milestone %s: %w", milestoneID, err)
		}
		for _, item := range page.Items {
			switch entityType(item) {
			case domain.EntityMilestone:
				if err := attributevalue.UnmarshalMap(item, &view.Milestone); err != nil {
					return View{}, fmt.Errorf("unmarshal milestone: %w", err)
				}
			case domain.EntityMilestoneAward:
				var award domain.MilestoneAward
				if err := attributevalue.UnmarshalMap(item, &award); err != nil {
					return View{}, fmt.Errorf("unmarshal award: %w", err)
				}
				view.Awards = append(view.Awards, award)
			}
		}
		if page.NextToken == nil {
			break
		}
		token = page.NextToken
	}

	if view.Milestone.MilestoneID == "" {
		return View{}, domain.ErrMilestoneNotFound
	}
	return Derive(view.Milestone, view.Awards), nil
}

// Derive computes the presentation figures for a milestone.
func Derive(m domain.Milestone, awards []domain.MilestoneAward) View {
	view := View{Milestone: m, Awards: awards}
	if remaining := m.TotalTarget - m.ProgressValue; remaining > 0 {
		view.Remaining = remaining
	}
	if m.TotalTarget > 0 {
		view.PercentDone = min(100, float64(m.ProgressValue)/float64(m.TotalTarget)*100)
	}
	view.NextPartTarget = nextPartTarget(m)
	return view
}

func (s *Service) loadModelMeta(ctx context.Context, modelID string) (domain.ModelMeta, error) {
	item, err := s.store.Get(ctx, storage.Key{PK: domain.ModelPK(modelID), SK: domain.SKModelMeta}, false)
	if err != nil {
		return domain.ModelMeta{}, fmt.Errorf("load model %s: %w", modelID, err)
	}
	if item == nil {
		return domain.ModelMeta{}, domain.ErrModelNotFound
	}
	var meta domain.ModelMeta
	if err := attributevalue.UnmarshalMap(item, &meta); err != nil {
		return domain.ModelMeta{}, fmt.Errorf("unmarshal model meta: %w", err)
	}
	return meta, nil
}

// nextPartTarget is the threshold of the first unawarded part, zero once all
// parts are awarded.
func nextPartTarget(m domain.Milestone) int64 {
	if m.PartsAwardedCount >= m.PartsTotal {
		return 0
	}
	return partThreshold(m, m.PartsAwardedCount+1)
}

// partThreshold returns the cumulative progress required for the 1-based part
// index. Ceiling division can push the last part past the total, so the final
// threshold is capped at the total target.
func partThreshold(m domain.Milestone, index int) int64 {
	threshold := int64(index) * m.PartTarget
	if threshold > m.TotalTarget {
		return m.TotalTarget
	}
	return threshold
}

func ceilDiv(a, b int64) int64 {
	return (a + b - 1) / b
}

func entityType(item storage.Item) string {
	if v, ok := item["entityType"].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}
