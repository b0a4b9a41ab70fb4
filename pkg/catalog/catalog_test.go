package catalog_test

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/aretw0/feelflow/pkg/catalog"
	"github.com/aretw0/feelflow/pkg/domain"
	"github.com/aretw0/feelflow/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allResponses(t *testing.T, track domain.Track) []string {
	t.Helper()
	data, err := os.ReadFile("responses.yaml")
	require.NoError(t, err)
	tables, err := catalog.Parse(data, "yaml")
	require.NoError(t, err)

	cats := tables.Feeling
	if track == domain.TrackGoal {
		cats = tables.Goal
	}
	var out []string
	for _, c := range cats {
		out = append(out, c.Responses...)
	}
	return out
}

func TestLookup_FirstMatchingCategory(t *testing.T) {
	c := catalog.Default(catalog.WithRand(ports.NewSeededRandom(1)))

	cat, matched := c.Match("I feel ANXIOUS and tired", domain.TrackFeeling)
	assert.True(t, matched)
	// "tired" is declared after "anxious"; declared order wins, not position in the text.
	assert.Equal(t, "anxious", cat.Name)

	got := c.Lookup("I feel ANXIOUS and tired", domain.TrackFeeling)
	assert.Contains(t, cat.Responses, got)
}

func TestLookup_SubstringMatch(t *testing.T) {
	c := catalog.Default()

	cat, matched := c.Match("unhappiness", domain.TrackFeeling)
	assert.True(t, matched)
	assert.Equal(t, "happy", cat.Name, "substring of 'unhappiness' hits 'happy' first in declared order")
}

func TestLookup_DefaultCategory(t *testing.T) {
	c := catalog.Default(catalog.WithRand(ports.NewSeededRandom(7)))

	cat, matched := c.Match("banana", domain.TrackGoal)
	assert.False(t, matched)
	assert.True(t, cat.Default)
	assert.Contains(t, cat.Responses, c.Lookup("banana", domain.TrackGoal))
}

func TestLookup_TracksDoNotLeak(t *testing.T) {
	c := catalog.Default(catalog.WithRand(ports.NewSeededRandom(3)))
	goal := allResponses(t, domain.TrackGoal)
	feeling := allResponses(t, domain.TrackFeeling)

	for _, text := range []string{"career", "health", "calm", "banana", "I want to travel"} {
		got := c.Lookup(text, domain.TrackFeeling)
		assert.Contains(t, feeling, got, text)
		assert.False(t, slices.Contains(goal, got), "feeling lookup for %q returned a goal response", text)
	}
}

func TestLookup_DeterministicWithSeed(t *testing.T) {
	a := catalog.Default(catalog.WithRand(ports.NewSeededRandom(42)))
	b := catalog.Default(catalog.WithRand(ports.NewSeededRandom(42)))

	for i := 0; i < 10; i++ {
		assert.Equal(t, a.Lookup("calm", domain.TrackFeeling), b.Lookup("calm", domain.TrackFeeling))
	}
}

func TestLoad_JSONAndYAML(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "custom.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{
		"feeling": [{"name": "calm", "keywords": ["Calm"], "responses": ["stay calm"]},
		            {"name": "default", "default": true, "responses": ["f-default"]}],
		"goal":    [{"name": "default", "default": true, "responses": ["g-default"]}]
	}`), 0o644))

	c, err := catalog.Load(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "stay calm", c.Lookup("so calm today", domain.TrackFeeling))
	assert.Equal(t, "f-default", c.Lookup("meh", domain.TrackFeeling))
	assert.Equal(t, "g-default", c.Lookup("calm", domain.TrackGoal))

	yamlPath := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
feeling:
  - name: default
    default: true
    responses: ["only"]
goal:
  - name: default
    default: true
    responses: ["goal-only"]
`), 0o644))

	c, err = catalog.Load(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "only", c.Lookup("anything", domain.TrackFeeling))
}

func TestNew_Validation(t *testing.T) {
	_, err := catalog.New(catalog.Tables{
		Feeling: []catalog.Category{{Name: "default", Default: true, Responses: []string{"x"}}},
	})
	assert.ErrorIs(t, err, catalog.ErrMissingDefault)

	_, err = catalog.New(catalog.Tables{
		Feeling: []catalog.Category{{Name: "empty", Keywords: []string{"a"}}},
		Goal:    []catalog.Category{{Name: "default", Default: true, Responses: []string{"x"}}},
	})
	assert.ErrorIs(t, err, catalog.ErrEmptyCategory)
}
