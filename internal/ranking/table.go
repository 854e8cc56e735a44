// Package ranking scores posts and picks publishing candidates.
package ranking

import (
	_ "embed"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed keywords.yaml
var defaultTable []byte

type Category struct {
	Name  string   `yaml:"name"`
	Bonus int      `yaml:"bonus"`
	Terms []string `yaml:"terms"`
}

type RecencyTier struct {
	Within time.Duration `yaml:"within"`
	Bonus  int           `yaml:"bonus"`
}

// Table holds every weight the scorer uses.
type Table struct {
	Engagement struct {
		UpvoteWeight  int `yaml:"upvote_weight"`
		CommentWeight int `yaml:"comment_weight"`
	} `yaml:"engagement"`
	Recency    []RecencyTier `yaml:"recency"`
	Categories []Category    `yaml:"categories"`
	ShortBody  struct {
		MinLength int `yaml:"min_length"`
		Penalty   int `yaml:"penalty"`
	} `yaml:"short_body"`
	Communities struct {
		Bonus int      `yaml:"bonus"`
		Names []string `yaml:"names"`
	} `yaml:"communities"`
}

// ParseTable decodes a YAML scoring table.
func ParseTable(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("ranking: parse table: %w", err)
	}
	if err := t.validate(); err != nil {
		return nil, fmt.Errorf("ranking: %w", err)
	}
	t.normalize()
	return &t, nil
}

// DefaultTable returns the embedded table. It panics if the embedded file is
// broken, which only a bad build can cause.
func DefaultTable() *Table {
	t, err := ParseTable(defaultTable)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Table) validate() error {
	if len(t.Categories) == 0 {
		return fmt.Errorf("table has no keyword categories")
	}
	for _, c := range t.Categories {
		if len(c.Terms) == 0 {
			return fmt.Errorf("category %q has no terms", c.Name)
		}
	}
	for i := 1; i < len(t.Recency); i++ {
		if t.Recency[i].Within <= t.Recency[i-1].Within {
			return fmt.Errorf("recency tiers must be increasing")
		}
	}
	return nil
}

func (t *Table) normalize() {
	for i := range t.Categories {
		for j, term := range t.Categories[i].Terms {
			t.Categories[i].Terms[j] = strings.ToLower(term)
		}
	}
	for i, n := range t.Communities.Names {
		t.Communities.Names[i] = strings.ToLower(n)
	}
}
