package catalog

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/feelflow/pkg/domain"
	"github.com/aretw0/feelflow/pkg/ports"
	"gopkg.in/yaml.v3"
)

//go:embed responses.yaml
var builtin []byte

// Fallback is returned only if a track somehow has no usable default category.
const Fallback = "Thank you for sharing. Your journey matters, and each step you take is meaningful."

var (
	// ErrMissingDefault is returned when a track has no default category with responses.
	ErrMissingDefault = errors.New("track has no default category")
	// ErrEmptyCategory is returned when a category declares no responses.
	ErrEmptyCategory = errors.New("category has no responses")
)

// Category groups the keywords that trigger a set of responses.
type Category struct {
	Name      string   `yaml:"name" json:"name"`
	Keywords  []string `yaml:"keywords" json:"keywords"`
	Responses []string `yaml:"responses" json:"responses"`
	Default   bool     `yaml:"default" json:"default"`
}

// Tables is the file layout: categories per track, in match order.
type Tables struct {
	Feeling []Category `yaml:"feeling" json:"feeling"`
	Goal    []Category `yaml:"goal" json:"goal"`
}

// Catalog answers reflection lookups. Safe for concurrent use if its Random is.
type Catalog struct {
	tracks map[domain.Track][]Category
	rand   ports.Random
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithRand sets the source used to pick among a category's responses.
func WithRand(r ports.Random) Option {
	return func(c *Catalog) {
		c.rand = r
	}
}

// New builds a catalog from validated tables.
func New(t Tables, opts ...Option) (*Catalog, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	c := &Catalog{
		tracks: map[domain.Track][]Category{
			domain.TrackFeeling: normalize(t.Feeling),
			domain.TrackGoal:    normalize(t.Goal),
		},
		rand: ports.DefaultRandom,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Default returns the catalog built from the embedded tables.
func Default(opts ...Option) *Catalog {
	t, err := Parse(builtin, "yaml")
	if err != nil {
		panic(fmt.Sprintf("catalog: embedded tables are invalid: %v", err))
	}
	c, err := New(t, opts...)
	if err != nil {
		panic(fmt.Sprintf("catalog: embedded tables are invalid: %v", err))
	}
	return c
}

// Load reads tables from a YAML or JSON file (chosen by extension) and builds a catalog.
func Load(path string, opts ...Option) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	format := "yaml"
	if strings.EqualFold(filepath.Ext(path), ".json") {
		format = "json"
	}
	t, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return New(t, opts...)
}

// Parse decodes tables in the given format ("yaml" or "json").
func Parse(data []byte, format string) (Tables, error) {
	var t Tables
	switch format {
	case "json":
		if err := json.Unmarshal(data, &t); err != nil {
			return Tables{}, err
		}
	default:
		if err := yaml.Unmarshal(data, &t); err != nil {
			return Tables{}, err
		}
	}
	return t, nil
}

// Validate checks that every category has responses and every track has a default.
func (t Tables) Validate() error {
	for track, cats := range map[domain.Track][]Category{
		domain.TrackFeeling: t.Feeling,
		domain.TrackGoal:    t.Goal,
	} {
		hasDefault := false
		for _, c := range cats {
			if len(c.Responses) == 0 {
				return fmt.Errorf("%w: %s/%s", ErrEmptyCategory, track, c.Name)
			}
			if c.Default {
				hasDefault = true
			}
		}
		if !hasDefault {
			return fmt.Errorf("%w: %s", ErrMissingDefault, track)
		}
	}
	return nil
}

func normalize(cats []Category) []Category {
	out := make([]Category, len(cats))
	for i, c := range cats {
		kws := make([]string, 0, len(c.Keywords))
		for _, k := range c.Keywords {
			if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
				kws = append(kws, k)
			}
		}
		c.Keywords = kws
		out[i] = c
	}
	return out
}

// Match returns the category that answers text on track: the first keyword match
// in declared order, otherwise the default category.
func (c *Catalog) Match(text string, track domain.Track) (Category, bool) {
	lower := strings.ToLower(text)
	cats := c.tracks[track]

	for _, cat := range cats {
		if cat.Default {
			continue
		}
		for _, kw := range cat.Keywords {
			if strings.Contains(lower, kw) {
				return cat, true
			}
		}
	}

	for _, cat := range cats {
		if cat.Default {
			return cat, false
		}
	}
	return Category{}, false
}

// Lookup returns a reflection for text on the given track. It never fails.
func (c *Catalog) Lookup(text string, track domain.Track) string {
	cat, _ := c.Match(text, track)
	if r := ports.Pick(c.rand, cat.Responses); r != "" {
		return r
	}
	return Fallback
}
