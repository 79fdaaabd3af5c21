package scoring

import (
	"testing"

	"estatedesk_backend/internal/leads/domain"
)

func floatPtr(v float64) *float64 { return &v }

func TestComputeSocialMediaImmediateScenario(t *testing.T) {
	// source "fb" normalizes to social_media before scoring: 10 (source)
	// + 0 (budget) + 25 (timeline) + 0 (engagement) = 35 -> Warm.
	in := Input{
		Source:   domain.NormalizeSource("fb"),
		Timeline: domain.TimelineImmediate,
	}
	result := Compute(in)

	if result.Score != 35 {
		t.Fatalf("score = %d, want 35 (breakdown %+v)", result.Score, result.Details)
	}
	if result.Details.SourceScore != 10 || result.Details.TimelineScore != 25 {
		t.Fatalf("unexpected breakdown %+v", result.Details)
	}
	if result.Priority != domain.PriorityWarm {
		t.Fatalf("priority = %q, want Warm", result.Priority)
	}
}

func TestComputeSourceTable(t *testing.T) {
	cases := []struct {
		source string
		want   int
	}{
		{domain.SourceReferral, 25},
		{domain.SourceWalkIn, 20},
		{domain.SourcePhone, 18},
		{domain.SourceEmail, 15},
		{domain.SourceWebsite, 12},
		{domain.SourceSocialMedia, 10},
		{domain.SourceOther, 5},
		{"unrecognized", 0},
	}
	for _, tc := range cases {
		if got := scoreSource(tc.source); got != tc.want {
			t.Errorf("scoreSource(%q) = %d, want %d", tc.source, got, tc.want)
		}
	}
}

func TestComputeBudgetTiers(t *testing.T) {
	cases := []struct {
		name     string
		min, max *float64
		want     int
	}{
		{"both present uses average", floatPtr(800_000), floatPtr(1_200_000), 25},
		{"only min", floatPtr(600_000), nil, 20},
		{"only max", nil, floatPtr(250_000), 15},
		{"six figures", floatPtr(100_000), nil, 10},
		{"fifty k", floatPtr(50_000), nil, 5},
		{"small but positive", floatPtr(10_000), nil, 2},
		{"absent", nil, nil, 0},
		{"non-positive treated as absent", floatPtr(-5), floatPtr(0), 0},
		{"negative min ignored, max used", floatPtr(-5), floatPtr(500_000), 20},
	}
	for _, tc := range cases {
		if got := scoreBudget(tc.min, tc.max); got != tc.want {
			t.Errorf("%s: scoreBudget = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestComputeTimelineTable(t *testing.T) {
	cases := []struct {
		timeline string
		want     int
	}{
		{domain.TimelineImmediate, 25},
		{domain.TimelineOneMonth, 20},
		{domain.TimelineThreeMonths, 15},
		{domain.TimelineSixMonths, 10},
		{domain.TimelineOneYear, 5},
		{domain.TimelineFlexible, 3},
		{"", 0},
		{"someday", 0},
	}
	for _, tc := range cases {
		if got := scoreTimeline(tc.timeline); got != tc.want {
			t.Errorf("scoreTimeline(%q) = %d, want %d", tc.timeline, got, tc.want)
		}
	}
}

func TestComputeEngagementSignals(t *testing.T) {
	full := Input{
		HasProperty:           true,
		MessageLength:         51,
		HasPreferredLocations: true,
		HasPropertyTypes:      true,
		CommunicationCount:    2,
	}
	if got := scoreEngagement(full); got != 25 {
		t.Errorf("all five signals should score 25, got %d", got)
	}

	if got := scoreEngagement(Input{MessageLength: 50}); got != 0 {
		t.Errorf("message of exactly 50 chars must not count, got %d", got)
	}

	partial := Input{HasProperty: true, CommunicationCount: 1}
	if got := scoreEngagement(partial); got != 10 {
		t.Errorf("two signals should score 10, got %d", got)
	}
}

func TestComputeBounds(t *testing.T) {
	maxed := Input{
		Source:                domain.SourceReferral,
		BudgetMin:             floatPtr(2_000_000),
		Timeline:              domain.TimelineImmediate,
		HasProperty:           true,
		MessageLength:         200,
		HasPreferredLocations: true,
		HasPropertyTypes:      true,
		CommunicationCount:    5,
	}
	result := Compute(maxed)
	if result.Score != 100 {
		t.Fatalf("fully loaded lead should score 100, got %d", result.Score)
	}
	if result.Priority != domain.PriorityHot {
		t.Fatalf("expected Hot at score 100, got %q", result.Priority)
	}

	empty := Compute(Input{})
	if empty.Score != 0 {
		t.Fatalf("empty lead should score 0, got %d", empty.Score)
	}
	if empty.Priority != domain.PriorityWarm {
		t.Fatalf("expected Warm at score 0, got %q", empty.Priority)
	}
}

func TestRecommendPriorityThreshold(t *testing.T) {
	if got := RecommendPriority(70); got != domain.PriorityHot {
		t.Errorf("score 70 should recommend Hot, got %q", got)
	}
	if got := RecommendPriority(69); got != domain.PriorityWarm {
		t.Errorf("score 69 should recommend Warm, got %q", got)
	}
	// Derived priority is never Cold or Not_interested.
	for score := 0; score <= 100; score += 10 {
		p := RecommendPriority(score)
		if p != domain.PriorityHot && p != domain.PriorityWarm {
			t.Fatalf("score %d recommended %q", score, p)
		}
	}
}
