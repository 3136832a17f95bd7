// Package catalog loads challenge and mastery definitions from YAML.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"veloskill/internal/progression"
	"veloskill/internal/store"
)

// Catalog is the content of a catalog file
type Catalog struct {
	Challenges []Challenge `yaml:"challenges"`
	Masteries  []Mastery   `yaml:"masteries"`
}

// Challenge is a boss definition
type Challenge struct {
	ID            string     `yaml:"id"`
	Slug          string     `yaml:"slug"`
	Name          string     `yaml:"name"`
	Rider         string     `yaml:"rider"`
	Type          string     `yaml:"type"`
	Target        float64    `yaml:"target"`
	LevelRequired int        `yaml:"level_required"`
	Reward        string     `yaml:"reward"`
	StartAt       *time.Time `yaml:"start_at"`
	EndAt         *time.Time `yaml:"end_at"`
	Active        *bool      `yaml:"active"` // defaults to true
}

// Mastery is a skill unlock definition
type Mastery struct {
	ID        string    `yaml:"id"`
	Name      string    `yaml:"name"`
	Category  string    `yaml:"category"`
	Condition Condition `yaml:"condition"`
}

// Condition mirrors progression.Condition in YAML form
type Condition struct {
	Type       string    `yaml:"type"`
	Metric     string    `yaml:"metric"`
	Thresholds []float64 `yaml:"thresholds"`
}

// Load reads and validates the catalog file at path
func Load(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}
	defer f.Close()

	return Parse(f)
}

// Parse decodes and validates a catalog
func Parse(r io.Reader) (*Catalog, error) {
	var c Catalog
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decoding catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks ids, challenge types, targets, windows and mastery conditions
func (c *Catalog) Validate() error {
	seen := make(map[string]bool)
	for i, ch := range c.Challenges {
		if ch.ID == "" {
			return fmt.Errorf("challenge #%d: id is required", i+1)
		}
		if seen["c:"+ch.ID] {
			return fmt.Errorf("challenge %s: duplicate id", ch.ID)
		}
		seen["c:"+ch.ID] = true

		switch store.ChallengeType(ch.Type) {
		case store.ChallengeDistance, store.ChallengeElevation, store.ChallengeTime:
		default:
			return fmt.Errorf("challenge %s: type must be distance, elevation or time, got %q", ch.ID, ch.Type)
		}
		if ch.Target <= 0 {
			return fmt.Errorf("challenge %s: target must be positive", ch.ID)
		}
		if (ch.StartAt == nil) != (ch.EndAt == nil) {
			return fmt.Errorf("challenge %s: start_at and end_at must be set together", ch.ID)
		}
		if ch.StartAt != nil && !ch.EndAt.After(*ch.StartAt) {
			return fmt.Errorf("challenge %s: end_at must be after start_at", ch.ID)
		}
	}

	for i, m := range c.Masteries {
		if m.ID == "" {
			return fmt.Errorf("mastery #%d: id is required", i+1)
		}
		if seen["m:"+m.ID] {
			return fmt.Errorf("mastery %s: duplicate id", m.ID)
		}
		seen["m:"+m.ID] = true

		if err := m.condition().Validate(); err != nil {
			return fmt.Errorf("mastery %s: %w", m.ID, err)
		}
	}
	return nil
}

func (m Mastery) condition() progression.Condition {
	return progression.Condition{
		Type:       progression.ConditionType(m.Condition.Type),
		Metric:     m.Condition.Metric,
		Thresholds: m.Condition.Thresholds,
	}
}

// Writer is the part of the store the catalog is imported into
type Writer interface {
	UpsertChallenge(ctx context.Context, c *store.Challenge) error
	UpsertMastery(ctx context.Context, m *store.Mastery) error
}

// Import upserts every challenge and mastery
func (c *Catalog) Import(ctx context.Context, w Writer) error {
	for _, ch := range c.Challenges {
		active := true
		if ch.Active != nil {
			active = *ch.Active
		}
		slug := ch.Slug
		if slug == "" {
			slug = ch.ID
		}
		level := ch.LevelRequired
		if level < 1 {
			level = 1
		}

		if err := w.UpsertChallenge(ctx, &store.Challenge{
			ID:            ch.ID,
			Slug:          slug,
			Name:          ch.Name,
			Rider:         ch.Rider,
			Type:          store.ChallengeType(ch.Type),
			Target:        ch.Target,
			LevelRequired: level,
			Reward:        ch.Reward,
			StartAt:       ch.StartAt,
			EndAt:         ch.EndAt,
			Active:        active,
		}); err != nil {
			return fmt.Errorf("importing challenge %s: %w", ch.ID, err)
		}
	}

	for _, m := range c.Masteries {
		cond, err := json.Marshal(m.condition())
		if err != nil {
			return fmt.Errorf("encoding condition of %s: %w", m.ID, err)
		}
		if err := w.UpsertMastery(ctx, &store.Mastery{
			ID:        m.ID,
			Name:      m.Name,
			Category:  m.Category,
			Condition: string(cond),
		}); err != nil {
			return fmt.Errorf("importing mastery %s: %w", m.ID, err)
		}
	}
	return nil
}
