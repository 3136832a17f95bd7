package catalog

import (
	"context"
	"strings"
	"testing"

	"veloskill/internal/progression"
	"veloskill/internal/store"
)

const sample = `
challenges:
  - id: ventoux
    name: Mont Ventoux
    rider: Le Géant
    type: elevation
    target: 1600
    level_required: 3
    reward: "+1000 XP"
  - id: tour-week
    slug: tour
    type: distance
    target: 500
    start_at: 2024-07-01T00:00:00Z
    end_at: 2024-07-08T00:00:00Z
    active: false
masteries:
  - id: climber
    name: Climber
    category: explosivity
    condition:
      type: total
      metric: elevation_m
      thresholds: [1000, 10000, 50000]
  - id: globetrotter
    category: strategy
    condition:
      type: geo
      thresholds: [2, 5]
`

func TestParse(t *testing.T) {
	c, err := Parse(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(c.Challenges) != 2 || len(c.Masteries) != 2 {
		t.Fatalf("got %d challenges and %d masteries", len(c.Challenges), len(c.Masteries))
	}
	if c.Challenges[1].StartAt == nil || c.Challenges[1].StartAt.Day() != 1 {
		t.Errorf("StartAt = %v", c.Challenges[1].StartAt)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name        string
		yaml        string
		errContains string
	}{
		{"unknown type", "challenges:\n  - {id: a, type: watts, target: 1}", "type must be"},
		{"no target", "challenges:\n  - {id: a, type: time}", "target"},
		{"duplicate", "challenges:\n  - {id: a, type: time, target: 1}\n  - {id: a, type: time, target: 2}", "duplicate"},
		{"half window", "challenges:\n  - id: a\n    type: time\n    target: 1\n    start_at: 2024-07-01T00:00:00Z", "together"},
		{"bad condition", "masteries:\n  - {id: m, condition: {type: total, thresholds: [1]}}", "metric"},
		{"unknown field", "challenges:\n  - {id: a, type: time, target: 1, colour: red}", "colour"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("error %q should contain %q", err, tt.errContains)
			}
		})
	}
}

func TestParse_Empty(t *testing.T) {
	c, err := Parse(strings.NewReader(""))
	if err != nil {
		t.Fatalf("Parse(empty) error = %v", err)
	}
	if len(c.Challenges) != 0 {
		t.Errorf("expected empty catalog")
	}
}

func TestImport(t *testing.T) {
	s, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory() error = %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	c, err := Parse(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if err := c.Import(ctx, s); err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	// re-import converges
	if err := c.Import(ctx, s); err != nil {
		t.Fatalf("Import() second call error = %v", err)
	}

	active, err := s.ListActiveChallenges(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 || active[0].ID != "ventoux" || active[0].Slug != "ventoux" {
		t.Errorf("active challenges = %+v, want ventoux only", active)
	}

	masteries, err := s.ListMasteries(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(masteries) != 2 {
		t.Fatalf("got %d masteries, want 2", len(masteries))
	}
	for _, m := range masteries {
		if _, err := progression.ParseCondition(m.Condition); err != nil {
			t.Errorf("stored condition of %s does not parse: %v", m.ID, err)
		}
	}
}
