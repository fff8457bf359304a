package api

import "example.com/commitcollect/internal/milestone"

type viewerResponse struct {
	UserID    string `json:"userId"`
	Email     string `json:"email"`
	Plan      string `json:"plan"`
	Role      string `json:"role"`
	CreatedAt int64  `json:"createdAtUtc"`
}

type connectionStatus struct {
	Connected bool   `json:"connected"`
	AthleteID int64  `json:"athleteId,omitempty"`
	Scope     string `json:"scope,omitempty"`
	ExpiresAt int64  `json:"expiresAtUtc,omitempty"`
}

type createMilestoneRequest struct {
	ModelID       string `json:"modelId"`
	Sport         string `json:"sport"`
	TargetType    string `json:"targetType"`
	TotalTarget   int64  `json:"totalTarget"`
	Period        string `json:"period"`
	PeriodStartAt int64  `json:"periodStartAtUtc"`
}

type milestoneView struct {
	MilestoneID string `json:"milestoneId"`
	ModelID     string `json:"modelId"`
	Sport       string `json:"sport"`
	TargetType  string `json:"targetType"`

	TotalTarget   int64  `json:"totalTarget"`
	Period        string `json:"period,omitempty"`
	PeriodStartAt int64  `json:"periodStartAtUtc"`

	PartsTotal int   `json:"partsTotal"`
	PartTarget int64 `json:"partTarget"`

	Status            string `json:"status"`
	ProgressValue     int64  `json:"progressValue"`
	PartsAwardedCount int    `json:"partsAwardedCount"`
	CompletedAt       int64  `json:"completedAtUtc,omitempty"`
	Version           int64  `json:"version"`

	Remaining      int64   `json:"remaining"`
	PercentDone    float64 `json:"percentDone"`
	NextPartTarget int64   `json:"nextPartTarget"`

	Awards []awardView `json:"awards"`
}

type awardView struct {
	PartIndex            int    `json:"partIndex"`
	PartName             string `json:"partName"`
	MeshFile             string `json:"meshFile"`
	AttachPoint          string `json:"attachPoint"`
	AwardedAt            int64  `json:"awardedAtUtc"`
	ProgressValueAtAward int64  `json:"progressValueAtAward"`
}

type recomputeResponse struct {
	ProgressValue     int64  `json:"progressValue"`
	PartsAwardedCount int    `json:"partsAwardedCount"`
	NewAwards         int    `json:"newAwards"`
	Status            string `json:"status"`
	Version           int64  `json:"version"`
}

type deleteResponse struct {
	Deleted     int  `json:"deleted"`
	Unprocessed int  `json:"unprocessed,omitempty"`
	Complete    bool `json:"complete"`
}

func toMilestoneView(derived milestone.View) milestoneView {
	m := derived.Milestone
	awards := derived.Awards
	view := milestoneView{
		MilestoneID: m.MilestoneID,
		ModelID:     m.ModelID,
		Sport:       m.Sport,
		TargetType:  m.TargetType,

		TotalTarget:   m.TotalTarget,
		Period:        m.Period,
		PeriodStartAt: m.PeriodStartAt,

		PartsTotal: m.PartsTotal,
		PartTarget: m.PartTarget,

		Status:            m.Status,
		ProgressValue:     m.ProgressValue,
		PartsAwardedCount: m.PartsAwardedCount,
		CompletedAt:       m.CompletedAt,
		Version:           m.Version,

		Remaining:      derived.Remaining,
		PercentDone:    derived.PercentDone,
		NextPartTarget: derived.NextPartTarget,

		Awards: make([]awardView, 0, len(awards)),
	}
	for _, a := range awards {
		view.Awards = append(view.Awards, awardView{
			PartIndex:            a.PartIndex,
			PartName:             a.PartName,
			MeshFile:             a.MeshFile,
			AttachPoint:          a.AttachPoint,
			AwardedAt:            a.AwardedAt,
			ProgressValueAtAward: a.ProgressValueAtAward,
		})
	}
	return view
}
