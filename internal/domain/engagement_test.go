package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func ptr(v float64) *float64 { return &v }

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		attention *float64
		want      EngagementLevel
	}{
		{"absent", nil, LevelUnknown},
		{"zero", ptr(0), LevelLow},
		{"low boundary", ptr(0.4), LevelLow},
		{"just above low", ptr(0.4000001), LevelMedium},
		{"medium boundary", ptr(0.7), LevelMedium},
		{"just above medium", ptr(0.7000001), LevelHigh},
		{"one", ptr(1), LevelHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.attention); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassifyMonotonic(t *testing.T) {
	prev := Classify(ptr(0))
	for i := 1; i <= 1000; i++ {
		a := float64(i) / 1000
		got := Classify(ptr(a))
		if got.Rank() < prev.Rank() {
			t.Fatalf("classify(%v) = %v ranks below previous %v", a, got, prev)
		}
		prev = got
	}
}

func TestNeedsHelp(t *testing.T) {
	cases := map[EngagementLevel]bool{
		LevelUnknown: false,
		LevelLow:     true,
		LevelMedium:  true,
		LevelHigh:    false,
	}
	for level, want := range cases {
		if got := level.NeedsHelp(); got != want {
			t.Errorf("%v.NeedsHelp() = %v, want %v", level, got, want)
		}
	}
}

func TestEngagementLevelJSON(t *testing.T) {
	data, err := json.Marshal(LevelMedium)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"Medium"` {
		t.Fatalf("unexpected encoding %s", data)
	}

	var got EngagementLevel
	if err := json.Unmarshal([]byte(`"High"`), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got != LevelHigh {
		t.Fatalf("got %v, want High", got)
	}

	if err := json.Unmarshal([]byte(`"Sleepy"`), &got); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestParseRotation(t *testing.T) {
	rot, err := ParseRotation("poll, summary,break,recap")
	if err != nil {
		t.Fatalf("ParseRotation: %v", err)
	}
	want := []PromptType{PromptPoll, PromptSummary, PromptBreak, PromptRecap}
	if len(rot) != len(want) {
		t.Fatalf("got %v, want %v", rot, want)
	}
	for i := range want {
		if rot[i] != want[i] {
			t.Fatalf("rotation[%d] = %v, want %v", i, rot[i], want[i])
		}
	}

	for _, bad := range []string{"", " , ", "poll,poll", "poll,nap"} {
		if _, err := ParseRotation(bad); err == nil {
			t.Errorf("ParseRotation(%q) expected error", bad)
		}
	}
}

func TestPromptTemplateCoversAllTypes(t *testing.T) {
	for _, pt := range []PromptType{PromptPoll, PromptBreak, PromptRecap, PromptSummary} {
		tpl := PromptTemplate(pt)
		if tpl.Title == "" || tpl.Message == "" {
			t.Errorf("missing template for %v", pt)
		}
	}
}

func TestFormatOffset(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0:00"},
		{-5 * time.Second, "0:00"},
		{9 * time.Second, "0:09"},
		{65 * time.Second, "1:05"},
		{61*time.Minute + 500*time.Millisecond, "61:00"},
	}
	for _, tt := range tests {
		if got := FormatOffset(tt.in); got != tt.want {
			t.Errorf("FormatOffset(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSessionTimingDuration(t *testing.T) {
	var timing SessionTiming
	if _, ok := timing.Duration(); ok {
		t.Fatal("expected no duration before start")
	}

	start := time.Unix(1000, 0)
	end := start.Add(90 * time.Second)
	timing.StartedAt = &start
	if _, ok := timing.Duration(); ok {
		t.Fatal("expected no duration before end")
	}
	timing.EndedAt = &end
	d, ok := timing.Duration()
	if !ok || d != 90*time.Second {
		t.Fatalf("Duration() = %v, %v", d, ok)
	}
}
