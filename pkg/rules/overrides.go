package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/CodeMonkeyCybersecurity/safelink/pkg/types"
)

// Overrides adjust a catalogue without code changes. Penalties replace a
// rule's penalty with a constant, Disabled removes rules and Caps replace
// category caps.
type Overrides struct {
	Version   string             `yaml:"version"`
	Penalties map[string]float64 `yaml:"penalties"`
	Disabled  []string           `yaml:"disabled"`
	Caps      map[string]float64 `yaml:"caps"`
}

// LoadOverrides reads a YAML overrides file.
func LoadOverrides(path string) (*Overrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule overrides: %w", err)
	}
	return ParseOverrides(data)
}

func ParseOverrides(data []byte) (*Overrides, error) {
	var o Overrides
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("failed to parse rule overrides: %w", err)
	}
	return &o, nil
}

// Apply returns a new catalogue with the overrides applied. The receiver is
// left untouched. Referencing an unknown rule id or category is an error.
func (c *Catalogue) Apply(o *Overrides) (*Catalogue, error) {
	if o == nil {
		return c, nil
	}

	disabled := make(map[string]bool, len(o.Disabled))
	for _, id := range o.Disabled {
		if _, ok := c.Lookup(id); !ok {
			return nil, fmt.Errorf("cannot disable unknown rule %q", id)
		}
		disabled[id] = true
	}
	for id, p := range o.Penalties {
		if _, ok := c.Lookup(id); !ok {
			return nil, fmt.Errorf("cannot override penalty of unknown rule %q", id)
		}
		if p < 0 {
			return nil, fmt.Errorf("penalty for %q is negative", id)
		}
	}

	out := &Catalogue{
		Version: c.Version,
		Caps:    make(map[Category]float64, len(c.Caps)),
		Rules:   make([]Rule, 0, len(c.Rules)),
	}
	for cat, limit := range c.Caps {
		out.Caps[cat] = limit
	}
	for name, limit := range o.Caps {
		out.Caps[Category(name)] = limit
	}

	for _, r := range c.Rules {
		if disabled[r.ID] {
			continue
		}
		if p, ok := o.Penalties[r.ID]; ok {
			r.Penalty = fixed(p)
		}
		out.Rules = append(out.Rules, r)
	}

	if o.Version != "" {
		out.Version = c.Version + "+" + o.Version
	}

	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

// Load returns the default catalogue, with overrides from path applied when
// path is non-empty.
func Load(path string) (*Catalogue, error) {
	cat := Default()
	if path == "" {
		return cat, nil
	}
	o, err := LoadOverrides(path)
	if err != nil {
		return nil, err
	}
	return cat.Apply(o)
}

// Describe returns one line per rule for listings.
func (c *Catalogue) Describe(v types.FeatureVector) []RuleInfo {
	infos := make([]RuleInfo, 0, len(c.Rules))
	for _, r := range c.Rules {
		info := RuleInfo{ID: r.ID, Category: r.Category, Description: r.Description}
		if limit, ok := c.Caps[r.Category]; ok {
			info.CategoryCap = limit
			info.Capped = true
		}
		info.Penalty = r.Penalty(v)
		infos = append(infos, info)
	}
	return infos
}

// RuleInfo is a printable view of a rule.
type RuleInfo struct {
	ID          string   `json:"id"`
	Category    Category `json:"category"`
	Description string   `json:"description"`
	Penalty     float64  `json:"penalty"`
	CategoryCap float64  `json:"category_cap,omitempty"`
	Capped      bool     `json:"capped"`
}
