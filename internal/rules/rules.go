// Package rules holds the versioned catalog of scoring rules.
//
// A catalog is an explicit, ordered rule table per score dimension. Additive
// rules (merchant keyword or category name) contribute signed deltas to the
// baseline; category overrides replace the baseline outright and silence the
// additive rules of their dimension. Magnitude tiers penalise large amounts,
// with only the highest crossed tier applying.
package rules

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"lifescore/internal/core"
)

// Baseline is the starting score of every dimension.
const Baseline = 50

// Dimension identifies one of the three independent scores.
type Dimension int

const (
	Financial Dimension = iota
	Health
	Eco
)

// Dimensions lists every dimension in canonical order.
var Dimensions = []Dimension{Financial, Health, Eco}

func (d Dimension) String() string {
	switch d {
	case Financial:
		return "financial"
	case Health:
		return "health"
	case Eco:
		return "eco"
	default:
		return fmt.Sprintf("dimension(%d)", int(d))
	}
}

// ParseDimension maps a dimension name to its value.
func ParseDimension(s string) (Dimension, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "financial":
		return Financial, nil
	case "health":
		return Health, nil
	case "eco":
		return Eco, nil
	default:
		return 0, fmt.Errorf("unknown dimension %q", s)
	}
}

// Rule is one additive entry of the catalog.
type Rule interface {
	Name() string
	Dimension() Dimension
	Delta() int
	Matches(tx core.Transaction) bool
}

// MerchantRule fires when the lower-cased merchant contains Keyword.
type MerchantRule struct {
	Dim     Dimension
	Keyword string
	Points  int
}

func (r MerchantRule) Name() string         { return "merchant:" + r.Keyword }
func (r MerchantRule) Dimension() Dimension { return r.Dim }
func (r MerchantRule) Delta() int           { return r.Points }

func (r MerchantRule) Matches(tx core.Transaction) bool {
	merchant := strings.ToLower(strings.TrimSpace(tx.Merchant))
	if merchant == "" {
		return false
	}
	return strings.Contains(merchant, r.Keyword)
}

// CategoryRule fires when the category name equals Category, ignoring case.
type CategoryRule struct {
	Dim      Dimension
	Category string
	Points   int
}

func (r CategoryRule) Name() string         { return "category:" + r.Category }
func (r CategoryRule) Dimension() Dimension { return r.Dim }
func (r CategoryRule) Delta() int           { return r.Points }

func (r CategoryRule) Matches(tx core.Transaction) bool {
	name := strings.TrimSpace(tx.Category.Name)
	return name != "" && strings.EqualFold(name, r.Category)
}

// Override replaces the baseline of Dimension with Value for an exact
// category match.
type Override struct {
	Dimension Dimension
	Category  string
	Value     int
}

// MagnitudeTier subtracts Penalty points from Dimension once the absolute
// amount is strictly above Above.
type MagnitudeTier struct {
	Dimension Dimension
	Above     decimal.Decimal
	Penalty   int
}

// Catalog is the read-only rule table. Build it with New; the zero value is
// not usable.
type Catalog struct {
	version   int
	rules     [3][]Rule
	overrides [3]map[string]int
	tiers     [3][]MagnitudeTier // descending by Above
}

// New validates and assembles a catalog. Rules keep their declared order
// within each dimension.
func New(version int, rules []Rule, overrides []Override, tiers []MagnitudeTier) (*Catalog, error) {
	c := &Catalog{version: version}
	var problems []string

	for i, r := range rules {
		if !validDimension(r.Dimension()) {
			problems = append(problems, fmt.Sprintf("rule %d: unknown dimension %d", i, r.Dimension()))
			continue
		}
		switch v := r.(type) {
		case MerchantRule:
			v.Keyword = strings.ToLower(strings.TrimSpace(v.Keyword))
			if v.Keyword == "" {
				problems = append(problems, fmt.Sprintf("rule %d: empty merchant keyword", i))
				continue
			}
			r = v
		case CategoryRule:
			v.Category = strings.TrimSpace(v.Category)
			if v.Category == "" {
				problems = append(problems, fmt.Sprintf("rule %d: empty category", i))
				continue
			}
			r = v
		}
		c.rules[r.Dimension()] = append(c.rules[r.Dimension()], r)
	}

	for i := range c.overrides {
		c.overrides[i] = make(map[string]int)
	}
	for _, o := range overrides {
		if !validDimension(o.Dimension) {
			problems = append(problems, fmt.Sprintf("override %q: unknown dimension %d", o.Category, o.Dimension))
			continue
		}
		key := categoryKey(o.Category)
		if key == "" {
			problems = append(problems, "override with empty category")
			continue
		}
		if o.Value < core.MinScore || o.Value > core.MaxScore {
			problems = append(problems, fmt.Sprintf("override %s/%s: value %d outside [0,100]", o.Dimension, o.Category, o.Value))
			continue
		}
		if prev, ok := c.overrides[o.Dimension][key]; ok && prev != o.Value {
			problems = append(problems, fmt.Sprintf("override %s/%s: conflicting values %d and %d", o.Dimension, o.Category, prev, o.Value))
			continue
		}
		c.overrides[o.Dimension][key] = o.Value
	}

	for _, t := range tiers {
		if !validDimension(t.Dimension) {
			problems = append(problems, fmt.Sprintf("magnitude tier %s: unknown dimension %d", t.Above, t.Dimension))
			continue
		}
		if !t.Above.IsPositive() || t.Penalty < 0 {
			problems = append(problems, fmt.Sprintf("magnitude tier %s: threshold must be positive and penalty non-negative", t.Above))
			continue
		}
		c.tiers[t.Dimension] = append(c.tiers[t.Dimension], t)
	}
	for d := range c.tiers {
		tiers := c.tiers[d]
		sort.Slice(tiers, func(i, j int) bool { return tiers[i].Above.GreaterThan(tiers[j].Above) })
		// Higher thresholds must never be milder than lower ones.
		for i := 1; i < len(tiers); i++ {
			if tiers[i-1].Penalty < tiers[i].Penalty {
				problems = append(problems, fmt.Sprintf("magnitude tier %s: penalty %d is milder than tier %s (%d)",
					tiers[i-1].Above, tiers[i-1].Penalty, tiers[i].Above, tiers[i].Penalty))
			}
		}
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("invalid rule catalog v%d:\n- %s", version, strings.Join(problems, "\n- "))
	}
	return c, nil
}

// Version identifies the catalog revision. It is informational: stored
// scores carry it so stale rows can be found and re-scored.
func (c *Catalog) Version() int { return c.version }

// Rules returns the additive rules of a dimension in priority order.
func (c *Catalog) Rules(d Dimension) []Rule {
	if !validDimension(d) {
		return nil
	}
	return append([]Rule(nil), c.rules[d]...)
}

// Override returns the hard override for a category, if any.
func (c *Catalog) Override(d Dimension, category string) (int, bool) {
	if !validDimension(d) {
		return 0, false
	}
	key := categoryKey(category)
	if key == "" {
		return 0, false
	}
	v, ok := c.overrides[d][key]
	return v, ok
}

// Penalty returns the points subtracted for an amount of the given
// magnitude. Only the highest crossed tier counts.
func (c *Catalog) Penalty(d Dimension, amount decimal.Decimal) int {
	if !validDimension(d) {
		return 0
	}
	abs := amount.Abs()
	for _, t := range c.tiers[d] {
		if abs.GreaterThan(t.Above) {
			return t.Penalty
		}
	}
	return 0
}

// Stats summarises the catalog for diagnostics.
type Stats struct {
	Version   int            `json:"version"`
	Rules     map[string]int `json:"rules"`
	Overrides map[string]int `json:"overrides"`
	Tiers     map[string]int `json:"magnitude_tiers"`
}

// Stats counts rules, overrides and tiers per dimension.
func (c *Catalog) Stats() Stats {
	s := Stats{
		Version:   c.version,
		Rules:     map[string]int{},
		Overrides: map[string]int{},
		Tiers:     map[string]int{},
	}
	for _, d := range Dimensions {
		s.Rules[d.String()] = len(c.rules[d])
		s.Overrides[d.String()] = len(c.overrides[d])
		s.Tiers[d.String()] = len(c.tiers[d])
	}
	return s
}

func validDimension(d Dimension) bool {
	return d >= Financial && d <= Eco
}

func categoryKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
