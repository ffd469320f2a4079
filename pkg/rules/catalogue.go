// Package rules scores a feature vector against a declarative, versioned
// table of penalties.
package rules

import (
	"fmt"
	"math"
	"sort"

	"github.com/CodeMonkeyCybersecurity/safelink/pkg/types"
)

type Category string

const (
	CategoryStructure Category = "structure"
	CategoryDomain    Category = "domain"
	CategoryTLS       Category = "tls"
	CategoryBlacklist Category = "blacklist"
	CategoryRedirect  Category = "redirect"
)

// Categories lists every category in report order.
var Categories = []Category{
	CategoryStructure,
	CategoryDomain,
	CategoryTLS,
	CategoryBlacklist,
	CategoryRedirect,
}

// Rule is one row of the catalogue. When and Penalty must be pure functions
// of the vector.
type Rule struct {
	ID          string
	Category    Category
	Description string
	When        func(v types.FeatureVector) bool
	Penalty     func(v types.FeatureVector) float64
}

// Catalogue is immutable after construction; Evaluate may be called from any
// number of goroutines.
type Catalogue struct {
	Version string
	Rules   []Rule
	// Caps bound each category's summed penalty. A category without an
	// entry is uncapped.
	Caps map[Category]float64
}

// Evaluate fires every rule independently, sums penalties per category,
// caps each category and clamps the total to [0, 100]. Triggered rules are
// reported in definition order; a rule whose penalty works out to zero is
// not reported.
func (c *Catalogue) Evaluate(v types.FeatureVector) types.RuleResult {
	result := types.RuleResult{CatalogueVersion: c.Version}
	totals := make(map[Category]float64, len(Categories))

	for _, r := range c.Rules {
		if !r.When(v) {
			continue
		}
		penalty := r.Penalty(v)
		if penalty <= 0 {
			continue
		}
		totals[r.Category] += penalty
		result.Triggered = append(result.Triggered, types.TriggeredRule{
			ID:          r.ID,
			Category:    string(r.Category),
			Description: r.Description,
			Penalty:     penalty,
		})
	}

	// Summed in category order so float rounding is the same on every call.
	var score float64
	for _, cat := range Categories {
		total := totals[cat]
		if limit, ok := c.Caps[cat]; ok {
			total = math.Min(total, limit)
		}
		score += total
	}
	result.Score = clamp(score, 0, 100)

	return result
}

// CategoryTotals returns the capped per-category totals of a result.
func (c *Catalogue) CategoryTotals(res types.RuleResult) map[Category]float64 {
	sums := make(map[Category]float64)
	for _, t := range res.Triggered {
		sums[Category(t.Category)] += t.Penalty
	}
	totals := make(map[Category]float64, len(sums))
	for _, cat := range Categories {
		total, ok := sums[cat]
		if !ok {
			continue
		}
		if limit, ok := c.Caps[cat]; ok {
			total = math.Min(total, limit)
		}
		totals[cat] = total
	}
	return totals
}

// Lookup returns the rule with id.
func (c *Catalogue) Lookup(id string) (Rule, bool) {
	for _, r := range c.Rules {
		if r.ID == id {
			return r, true
		}
	}
	return Rule{}, false
}

// Validate rejects duplicate ids, unknown categories and incomplete rules.
func (c *Catalogue) Validate() error {
	known := make(map[Category]bool, len(Categories))
	for _, cat := range Categories {
		known[cat] = true
	}

	seen := make(map[string]bool, len(c.Rules))
	for _, r := range c.Rules {
		if r.ID == "" {
			return fmt.Errorf("rule with empty id")
		}
		if seen[r.ID] {
			return fmt.Errorf("duplicate rule id %q", r.ID)
		}
		seen[r.ID] = true
		if !known[r.Category] {
			return fmt.Errorf("rule %q has unknown category %q", r.ID, r.Category)
		}
		if r.When == nil || r.Penalty == nil {
			return fmt.Errorf("rule %q is missing a predicate or penalty", r.ID)
		}
	}
	for cat, limit := range c.Caps {
		if !known[cat] {
			return fmt.Errorf("cap for unknown category %q", cat)
		}
		if limit < 0 {
			return fmt.Errorf("cap for %q is negative", cat)
		}
	}
	return nil
}

// IDs returns every rule id sorted alphabetically.
func (c *Catalogue) IDs() []string {
	ids := make([]string, 0, len(c.Rules))
	for _, r := range c.Rules {
		ids = append(ids, r.ID)
	}
	sort.Strings(ids)
	return ids
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

func fixed(p float64) func(types.FeatureVector) float64 {
	return func(types.FeatureVector) float64 { return p }
}
