package config

import (
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default("journey-1")
	if cfg.Journey.ID != "journey-1" {
		t.Fatalf("journey id not set: %+v", cfg.Journey)
	}
	if len(cfg.Review.OffsetsDays) != 3 || cfg.Review.OffsetsDays[0] != 1 || cfg.Review.OffsetsDays[2] != 30 {
		t.Fatalf("unexpected review offsets: %v", cfg.Review.OffsetsDays)
	}
	if cfg.Quota.FreeDailyQuizzes != 3 {
		t.Fatalf("unexpected free quota: %d", cfg.Quota.FreeDailyQuizzes)
	}
	if cfg.AI.QuizQuestions != 5 {
		t.Fatalf("unexpected quiz question count: %d", cfg.AI.QuizQuestions)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}

func TestValidateOffsets(t *testing.T) {
	base := `journey:
  id: j1
review:
  offsets_days: [%s]
`
	cases := []struct {
		offsets string
		ok      bool
	}{
		{"1, 7, 30", true},
		{"2, 5", true},
		{"7, 1", false},  // must ascend
		{"1, 1", false},  // strictly
		{"0, 7", false},  // positive only
		{"-1, 7", false},
	}
	for _, c := range cases {
		yaml := strings.Replace(base, "%s", c.offsets, 1)
		_, err := FromYAML([]byte(yaml))
		if c.ok && err != nil {
			t.Fatalf("offsets %q should validate: %v", c.offsets, err)
		}
		if !c.ok && err == nil {
			t.Fatalf("offsets %q should fail", c.offsets)
		}
	}
}

func TestValidateRequiresJourneyID(t *testing.T) {
	_, err := FromYAML([]byte("review:\n  offsets_days: [1]\n"))
	if err == nil {
		t.Fatalf("missing journey id should fail")
	}
}

func TestGenerateDefaultRoundTrips(t *testing.T) {
	raw := GenerateDefault("my-journey")
	cfg, err := FromYAML([]byte(raw))
	if err != nil {
		t.Fatalf("generated config must parse: %v", err)
	}
	if cfg.Journey.ID != "my-journey" {
		t.Fatalf("unexpected id %q", cfg.Journey.ID)
	}
}
