// Package scoring computes lead scores from source, budget, timeline, and
// engagement signals. The model is additive across four independently capped
// buckets; the result is clamped to 0-100.
package scoring

import (
	"context"
	"time"

	"estatedesk_backend/internal/leads/domain"
	"estatedesk_backend/internal/leads/repository"
	"estatedesk_backend/platform/logger"

	"github.com/google/uuid"
)

const (
	// scoreVersion tracks the scoring model for debugging and analysis.
	// Bump this when changing scoring logic significantly.
	scoreVersion = "2026-v1"

	// bucketCap bounds each factor bucket.
	bucketCap = 25

	// hotThreshold is the score at which the recommendation flips to Hot.
	hotThreshold = 70
)

// Input is the snapshot of lead fields the score derives from. Build it with
// InputFromLead; fields are expected to hold canonical (normalized) values.
type Input struct {
	Source                string
	BudgetMin             *float64
	BudgetMax             *float64
	Timeline              string
	HasProperty           bool
	MessageLength         int
	HasPreferredLocations bool
	HasPropertyTypes      bool
	CommunicationCount    int
}

// InputFromLead builds a scoring input from a lead aggregate and its
// communication count.
func InputFromLead(lead *domain.Lead, commCount int) Input {
	return Input{
		Source:                lead.Source,
		BudgetMin:             lead.BudgetMin,
		BudgetMax:             lead.BudgetMax,
		Timeline:              lead.Timeline,
		HasProperty:           lead.PropertyID != nil,
		MessageLength:         len(lead.Message),
		HasPreferredLocations: len(lead.PreferredLocations) > 0,
		HasPropertyTypes:      len(lead.PropertyTypes) > 0,
		CommunicationCount:    commCount,
	}
}

// Result holds scoring output, the per-factor breakdown, and the priority
// recommendation derived purely from the score.
type Result struct {
	Score    int
	Details  domain.ScoreDetails
	Priority string
	Version  string
}

// Compute runs the scoring model over the input. Pure and bounded-time.
func Compute(in Input) Result {
	src := scoreSource(in.Source)
	budget := scoreBudget(in.BudgetMin, in.BudgetMax)
	timeline := scoreTimeline(in.Timeline)
	engagement := scoreEngagement(in)

	total := clampScore(src + budget + timeline + engagement)

	return Result{
		Score: total,
		Details: domain.ScoreDetails{
			SourceScore:     src,
			BudgetScore:     budget,
			TimelineScore:   timeline,
			EngagementScore: engagement,
			Total:           total,
			CalculatedAt:    time.Now().UTC(),
		},
		Priority: RecommendPriority(total),
		Version:  scoreVersion,
	}
}

// RecommendPriority maps a score to a priority recommendation. Scores never
// recommend Cold or Not_interested; those are reachable only through an
// explicit user choice.
func RecommendPriority(score int) string {
	if score >= hotThreshold {
		return domain.PriorityHot
	}
	return domain.PriorityWarm
}

// scoreSource looks up the acquisition channel quality. Inputs are expected
// to be canonical; anything else contributes nothing.
func scoreSource(source string) int {
	switch source {
	case domain.SourceReferral:
		return 25
	case domain.SourceWalkIn:
		return 20
	case domain.SourcePhone:
		return 18
	case domain.SourceEmail:
		return 15
	case domain.SourceWebsite:
		return 12
	case domain.SourceSocialMedia:
		return 10
	case domain.SourceOther:
		return 5
	default:
		return 0
	}
}

// scoreBudget derives a representative budget value (average of min/max when
// both present, else whichever is set) and applies tiered thresholds.
// Non-positive bounds are treated as absent.
func scoreBudget(min, max *float64) int {
	value := representativeBudget(min, max)
	switch {
	case value >= 1_000_000:
		return 25
	case value >= 500_000:
		return 20
	case value >= 250_000:
		return 15
	case value >= 100_000:
		return 10
	case value >= 50_000:
		return 5
	case value > 0:
		return 2
	default:
		return 0
	}
}

func representativeBudget(min, max *float64) float64 {
	var minV, maxV float64
	if min != nil && *min > 0 {
		minV = *min
	}
	if max != nil && *max > 0 {
		maxV = *max
	}
	switch {
	case minV > 0 && maxV > 0:
		return (minV + maxV) / 2
	case minV > 0:
		return minV
	default:
		return maxV
	}
}

// scoreTimeline looks up purchase urgency.
func scoreTimeline(timeline string) int {
	switch timeline {
	case domain.TimelineImmediate:
		return 25
	case domain.TimelineOneMonth:
		return 20
	case domain.TimelineThreeMonths:
		return 15
	case domain.TimelineSixMonths:
		return 10
	case domain.TimelineOneYear:
		return 5
	case domain.TimelineFlexible:
		return 3
	default:
		return 0
	}
}

// scoreEngagement sums five independent +5 signals. The cap is a safety
// bound; five signals sum to exactly 25.
func scoreEngagement(in Input) int {
	score := 0
	if in.HasProperty {
		score += 5
	}
	if in.MessageLength > 50 {
		score += 5
	}
	if in.HasPreferredLocations {
		score += 5
	}
	if in.HasPropertyTypes {
		score += 5
	}
	if in.CommunicationCount > 0 {
		score += 5
	}
	if score > bucketCap {
		score = bucketCap
	}
	return score
}

func clampScore(value int) int {
	if value < 0 {
		return 0
	}
	if value > 100 {
		return 100
	}
	return value
}

// Service recomputes scores from persisted lead state.
type Service struct {
	repo repository.ScoreReader
	log  *logger.Logger
}

// New creates a new scoring service.
func New(repo repository.ScoreReader, log *logger.Logger) *Service {
	return &Service{repo: repo, log: log}
}

// Recalculate loads the lead and computes a fresh score. The caller decides
// whether and how to persist the result (including the priority rules around
// caller-supplied priorities).
func (s *Service) Recalculate(ctx context.Context, leadID, agencyID uuid.UUID) (*Result, error) {
	lead, err := s.repo.GetByID(ctx, leadID, agencyID)
	if err != nil {
		return nil, err
	}

	commCount, err := s.repo.CountCommunications(ctx, leadID)
	if err != nil {
		// A miscounted engagement signal must not block rescoring.
		if s.log != nil {
			s.log.Warn("communication count unavailable for scoring", "leadId", leadID, "error", err.Error())
		}
		commCount = 0
	}

	result := Compute(InputFromLead(&lead, commCount))
	return &result, nil
}
