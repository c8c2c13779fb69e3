package engagement

import (
	"math"
	"testing"
	"time"

	"github.com/ashureev/attention-labs/internal/domain"
)

func classified(attention *float64) domain.Sample {
	return domain.Sample{Timestamp: t0, Attention: attention, Level: domain.Classify(attention)}
}

func f(v float64) *float64 { return &v }

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestAnalyze_AverageIgnoresAbsent(t *testing.T) {
	got := Analyze(AnalyticsInput{
		History: []domain.Sample{classified(f(0.9)), classified(f(0.3)), classified(nil)},
	})
	if got.AverageAttention == nil || !approx(*got.AverageAttention, 0.6) {
		t.Fatalf("AverageAttention = %v, want 0.6", got.AverageAttention)
	}
}

func TestAnalyze_LowOrMediumRatio(t *testing.T) {
	got := Analyze(AnalyticsInput{
		History: []domain.Sample{
			classified(f(0.9)),
			classified(f(0.5)),
			classified(f(0.2)),
			classified(nil),
		},
	})
	if got.LowOrMediumRatio == nil || !approx(*got.LowOrMediumRatio, 0.5) {
		t.Fatalf("LowOrMediumRatio = %v, want 0.5", got.LowOrMediumRatio)
	}
	want := map[string]int{"High": 1, "Medium": 1, "Low": 1, "Unknown": 1}
	for k, v := range want {
		if got.LevelCounts[k] != v {
			t.Errorf("LevelCounts[%s] = %d, want %d", k, got.LevelCounts[k], v)
		}
	}
}

func TestAnalyze_EmptyHistoryIsAbsent(t *testing.T) {
	got := Analyze(AnalyticsInput{})
	if got.AverageAttention != nil {
		t.Errorf("AverageAttention = %v, want nil", *got.AverageAttention)
	}
	if got.LowOrMediumRatio != nil {
		t.Errorf("LowOrMediumRatio = %v, want nil", *got.LowOrMediumRatio)
	}
	if got.DurationSeconds != nil {
		t.Errorf("DurationSeconds = %v, want nil", *got.DurationSeconds)
	}
	if got.SampleCount != 0 {
		t.Errorf("SampleCount = %d", got.SampleCount)
	}
}

func TestAnalyze_OnlyAbsentAttention(t *testing.T) {
	got := Analyze(AnalyticsInput{History: []domain.Sample{classified(nil), classified(nil)}})
	if got.AverageAttention != nil {
		t.Errorf("AverageAttention = %v, want nil", *got.AverageAttention)
	}
	if got.LowOrMediumRatio == nil || *got.LowOrMediumRatio != 0 {
		t.Errorf("LowOrMediumRatio = %v, want 0", got.LowOrMediumRatio)
	}
}

func TestAnalyze_DurationAndOffsets(t *testing.T) {
	start := t0
	end := t0.Add(5*time.Minute + 30*time.Second)

	got := Analyze(AnalyticsInput{
		SessionID: "s1",
		Timing:    domain.SessionTiming{StartedAt: &start, EndedAt: &end},
		Markers: []domain.SessionMarker{
			{Time: t0.Add(75 * time.Second), Offset: 75 * time.Second},
			{Time: t0.Add(-time.Second), Offset: -time.Second},
		},
		Notes: []domain.SessionSummaryNote{
			{Time: t0.Add(4 * time.Minute), Offset: 4*time.Minute + 5*time.Second, Text: "got it"},
		},
	})

	if got.DurationSeconds == nil || *got.DurationSeconds != 330 {
		t.Fatalf("DurationSeconds = %v, want 330", got.DurationSeconds)
	}
	if got.SessionID != "s1" {
		t.Errorf("SessionID = %q", got.SessionID)
	}
	if len(got.Markers) != 2 || got.Markers[0].Relative != "1:15" || got.Markers[1].Relative != "0:00" {
		t.Fatalf("markers = %+v", got.Markers)
	}
	if len(got.Notes) != 1 || got.Notes[0].Relative != "4:05" || got.Notes[0].Text != "got it" {
		t.Fatalf("notes = %+v", got.Notes)
	}
}
