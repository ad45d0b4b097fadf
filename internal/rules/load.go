package rules

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"
)

// catalogFile is the TOML layout of a catalog:
//
//	version = 2
//
//	[[rule]]
//	dimension = "financial"
//	merchant = "casino"
//	delta = -30
//
//	[[override]]
//	dimension = "health"
//	category = "Fitness"
//	value = 90
//
//	[[magnitude]]
//	dimension = "financial"
//	above = "500"
//	penalty = 25
type catalogFile struct {
	Version   int             `toml:"version"`
	Rules     []ruleEntry     `toml:"rule"`
	Overrides []overrideEntry `toml:"override"`
	Magnitude []tierEntry     `toml:"magnitude"`
}

type ruleEntry struct {
	Dimension string `toml:"dimension"`
	Merchant  string `toml:"merchant"`
	Category  string `toml:"category"`
	Delta     int    `toml:"delta"`
}

type overrideEntry struct {
	Dimension string `toml:"dimension"`
	Category  string `toml:"category"`
	Value     int    `toml:"value"`
}

type tierEntry struct {
	Dimension string `toml:"dimension"`
	Above     string `toml:"above"`
	Penalty   int    `toml:"penalty"`
}

// LoadFile reads a TOML catalog from disk.
func LoadFile(path string) (*Catalog, error) {
	var f catalogFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("decode catalog %s: %w", path, err)
	}
	return f.build()
}

// Parse reads a TOML catalog from a string.
func Parse(data string) (*Catalog, error) {
	var f catalogFile
	if _, err := toml.Decode(data, &f); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return f.build()
}

func (f catalogFile) build() (*Catalog, error) {
	if f.Version <= 0 {
		return nil, fmt.Errorf("catalog version must be positive, got %d", f.Version)
	}

	rules := make([]Rule, 0, len(f.Rules))
	for i, e := range f.Rules {
		dim, err := ParseDimension(e.Dimension)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		merchant, category := strings.TrimSpace(e.Merchant), strings.TrimSpace(e.Category)
		switch {
		case merchant != "" && category != "":
			return nil, fmt.Errorf("rule %d: set either merchant or category, not both", i)
		case merchant != "":
			rules = append(rules, MerchantRule{Dim: dim, Keyword: merchant, Points: e.Delta})
		case category != "":
			rules = append(rules, CategoryRule{Dim: dim, Category: category, Points: e.Delta})
		default:
			return nil, fmt.Errorf("rule %d: merchant or category is required", i)
		}
	}

	overrides := make([]Override, 0, len(f.Overrides))
	for i, e := range f.Overrides {
		dim, err := ParseDimension(e.Dimension)
		if err != nil {
			return nil, fmt.Errorf("override %d: %w", i, err)
		}
		overrides = append(overrides, Override{Dimension: dim, Category: e.Category, Value: e.Value})
	}

	tiers := make([]MagnitudeTier, 0, len(f.Magnitude))
	for i, e := range f.Magnitude {
		dim, err := ParseDimension(e.Dimension)
		if err != nil {
			return nil, fmt.Errorf("magnitude %d: %w", i, err)
		}
		above, err := decimal.NewFromString(strings.TrimSpace(e.Above))
		if err != nil {
			return nil, fmt.Errorf("magnitude %d: invalid threshold %q: %w", i, e.Above, err)
		}
		tiers = append(tiers, MagnitudeTier{Dimension: dim, Above: above, Penalty: e.Penalty})
	}

	return New(f.Version, rules, overrides, tiers)
}
