package milestone

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"

	"example.com/commitcollect/internal/domain"
	"example.com/commitcollect/internal/observability"
	"example.com/commitcollect/internal/storage"
)

// Engine recomputes milestone progress from the workout history and mints
// awards. All milestone mutation flows through here.
type Engine struct {
	store      storage.Store
	pageSize   int
	maxInspect int
	logger     *log.Logger
	now        func() time.Time
}

// NewEngine builds an engine with the given scan page size and inspection
// ceiling.
func NewEngine(store storage.Store, pageSize, maxInspect int, logger *log.Logger) *Engine {
	return &Engine{
		store:      store,
		pageSize:   pageSize,
		maxInspect: maxInspect,
		logger:     logger,
		now:        time.Now,
	}
}

// Result summarizes one recompute commit.
type Result struct {
	ProgressValue     int64
	PartsAwardedCount int
	NewAwards         int
	Status            string
	Version           int64
}

// Recompute rebuilds the milestone's progress from its user's workouts and
// commits the new state in one transaction conditioned on the version read at
// the start. A concurrent commit surfaces as ErrVersionConflict; callers
// reload and retry.
//
// Progress follows the workout history up or down, but awarded parts and
// COMPLETED status never revert.
func (e *Engine) Recompute(ctx context.Context, userID, milestoneID string) (Result, error) {
	current, err := e.load(ctx, userID, milestoneID)
	if err != nil {
		return Result{}, err
	}

	progress, err := e.accumulate(ctx, userID, current)
	if err != nil {
		return Result{}, err
	}

	awardedCount := ratchet(current.PartsAwardedCount, partsEarned(current, progress))

	now := e.now().UTC().Unix()
	next := current
	next.ProgressValue = progress
	next.ProgressUpdatedAt = now
	next.UpdatedAt = now
	next.Version = current.Version + 1

	newAwards := awardedCount - current.PartsAwardedCount
	if newAwards > 0 {
		next.PartsAwardedCount = awardedCount
		next.LastAwardedAt = now
	}
	if progress >= current.TotalTarget && next.Status != domain.MilestoneStatusCompleted {
		next.Status = domain.MilestoneStatusCompleted
		next.CompletedAt = now
	}

	ops, err := e.commitOps(ctx, current, next, progress, now)
	if err != nil {
		return Result{}, err
	}

	if err := e.store.TransactWrite(ctx, ops); err != nil {
		if errors.Is(err, storage.ErrConditionFailed) {
			observability.RecordRecomputeConflict()
			return Result{}, domain.ErrVersionConflict
		}
		return Result{}, fmt.Errorf("commit recompute: %w", err)
	}

	if newAwards > 0 {
		e.logger.Printf("milestone %s minted %d award(s), progress=%d", milestoneID, newAwards, progress)
		observability.RecordAwardsMinted(newAwards)
	}
	return Result{
		ProgressValue:     next.ProgressValue,
		PartsAwardedCount: next.PartsAwardedCount,
		NewAwards:         newAwards,
		Status:            next.Status,
		Version:           next.Version,
	}, nil
}

func (e *Engine) load(ctx context.Context, userID, milestoneID string) (domain.Milestone, error) {
	item, err := e.store.Get(ctx, storage.Key{PK: domain.UserPK(userID), SK: domain.MilestoneSK(milestoneID)}, true)
	if err != nil {
		return domain.Milestone{}, fmt.Errorf("load milestone %s: %w", milestoneID, err)
	}
	if item == nil {
		return domain.Milestone{}, domain.ErrMilestoneNotFound
	}
	var m domain.Milestone
	if err := attributevalue.UnmarshalMap(item, &m); err != nil {
		return domain.Milestone{}, fmt.Errorf("unmarshal milestone: %w", err)
	}
	return m, nil
}

// accumulate sums the qualifying metric over the user's workouts, page by
// page. Crossing the inspection ceiling aborts with ErrRecomputeTooLarge
// rather than holding the caller for an unbounded scan.
func (e *Engine) accumulate(ctx context.Context, userID string, m domain.Milestone) (int64, error) {
	var progress int64
	var inspected int
	var token storage.PageToken

	for {
		page, err := e.store.Query(ctx, storage.QueryInput{
			Partition:  domain.UserPK(userID),
			SortPrefix: domain.WorkoutSKPrefix,
			Limit:      int32(e.pageSize),
			StartToken: token,
			Consistent: true,
			Attributes: []string{"status", "sportType", "startDateUtc", "distanceMeters", "elevationGainMeters"},
		})
		if err != nil {
			return 0, fmt.Errorf("scan workouts: %w", err)
		}

		inspected += len(page.Items)
		if inspected > e.maxInspect {
			return 0, domain.ErrRecomputeTooLarge
		}

		for _, item := range page.Items {
			var w domain.Workout
			if err := attributevalue.UnmarshalMap(item, &w); err != nil {
				return 0, fmt.Errorf("unmarshal workout: %w", err)
			}
			if !qualifies(m, w) {
				continue
			}
			switch m.TargetType {
			case domain.TargetDistanceMeters:
				progress += w.DistanceMeters
			case domain.TargetElevationMeters:
				progress += w.ElevationGainMeters
			}
		}

		if page.NextToken == nil {
			return progress, nil
		}
		token = page.NextToken
	}
}

func qualifies(m domain.Milestone, w domain.Workout) bool {
	if w.Status == domain.WorkoutStatusDeleted {
		return false
	}
	if domain.NormSport(w.SportType) != m.Sport {
		return false
	}
	if w.StartDateUTC < m.PeriodStartAt {
		return false
	}
	return true
}

// ratchet never lets an awarded count regress. Any new recompute input must
// flow through this, not raw assignment.
func ratchet(awarded, earned int) int {
	if earned > awarded {
		return earned
	}
	return awarded
}

// partsEarned counts the part thresholds the progress has crossed. The final
// threshold is capped at the total target, so completing the milestone earns
// every remaining part even when ceiling division pushed the last threshold
// past the total.
func partsEarned(m domain.Milestone, progress int64) int {
	if m.PartTarget <= 0 {
		return 0
	}
	earned := 0
	for i := 1; i <= m.PartsTotal; i++ {
		if progress < partThreshold(m, i) {
			break
		}
		earned = i
	}
	return earned
}

// commitOps builds the transaction: the milestone put conditioned on the
// version read at load time, plus one create-only put per newly earned
// award. Part metadata must exist for every new award or the recompute
// aborts with ErrModelPartMissing.
func (e *Engine) commitOps(ctx context.Context, current, next domain.Milestone, progress, now int64) ([]storage.TransactOp, error) {
	milestoneItem, err := attributevalue.MarshalMap(next)
	if err != nil {
		return nil, fmt.Errorf("marshal milestone: %w", err)
	}

	ops := []storage.TransactOp{
		{Put: &storage.TransactPut{
			Item:      milestoneItem,
			Condition: storage.IfAttributeEquals("version", storage.NumberValue(current.Version)),
		}},
	}

	for idx := current.PartsAwardedCount + 1; idx <= next.PartsAwardedCount; idx++ {
		part, err := e.loadPart(ctx, next.ModelID, idx)
		if err != nil {
			return nil, err
		}
		award := domain.MilestoneAward{
			PK:          next.PK,
			SK:          domain.AwardSK(next.MilestoneID, idx),
			EntityType:  domain.EntityMilestoneAward,
			MilestoneID: next.MilestoneID,
			ModelID:     next.ModelID,

			PartIndex:   idx,
			PartName:    part.PartName,
			MeshFile:    part.MeshFile,
			AttachPoint: part.AttachPoint,

			AwardedAt:            now,
			ProgressValueAtAward: progress,
		}
		awardItem, err := attributevalue.MarshalMap(award)
		if err != nil {
			return nil, fmt.Errorf("marshal award: %w", err)
		}
		ops = append(ops, storage.TransactOp{Put: &storage.TransactPut{
			Item:      awardItem,
			Condition: storage.IfNotExists(),
		}})
	}
	return ops, nil
}

func (e *Engine) loadPart(ctx context.Context, modelID string, partIndex int) (domain.ModelPart, error) {
	item, err := e.store.Get(ctx, storage.Key{PK: domain.ModelPK(modelID), SK: domain.ModelPartSK(partIndex)}, false)
	if err != nil {
		return domain.ModelPart{}, fmt.Errorf("load model part %d: %w", partIndex, err)
	}
	if item == nil {
		return domain.ModelPart{}, fmt.Errorf("%w: model %s part %d", domain.ErrModelPartMissing, modelID, partIndex)
	}
	var part domain.ModelPart
	if err := attributevalue.UnmarshalMap(item, &part); err != nil {
		return domain.ModelPart{}, fmt.Errorf("unmarshal model part: %w", err)
	}
	return part, nil
}
