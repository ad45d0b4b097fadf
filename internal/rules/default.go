package rules

import "github.com/shopspring/decimal"

// DefaultVersion is the revision of the built-in catalog. Bump it whenever
// a constant below changes so stored scores get re-computed.
const DefaultVersion = 1

// Default returns the calibrated built-in catalog.
func Default() *Catalog {
	c, err := New(DefaultVersion, defaultRules(), defaultOverrides(), defaultTiers())
	if err != nil {
		// The table below is static; failing here is a programming error.
		panic(err)
	}
	return c
}

func defaultRules() []Rule {
	return []Rule{
		// Financial: essentials lift, impulse and leisure merchants drag.
		CategoryRule{Dim: Financial, Category: "Groceries", Points: 20},
		CategoryRule{Dim: Financial, Category: "Utilities", Points: 15},
		CategoryRule{Dim: Financial, Category: "Rent", Points: 10},
		CategoryRule{Dim: Financial, Category: "Savings", Points: 30},
		CategoryRule{Dim: Financial, Category: "Education", Points: 10},
		MerchantRule{Dim: Financial, Keyword: "casino", Points: -30},
		MerchantRule{Dim: Financial, Keyword: "lottery", Points: -25},
		MerchantRule{Dim: Financial, Keyword: "doordash", Points: -15},
		MerchantRule{Dim: Financial, Keyword: "uber eats", Points: -15},
		MerchantRule{Dim: Financial, Keyword: "starbucks", Points: -10},
		MerchantRule{Dim: Financial, Keyword: "amazon", Points: -10},
		MerchantRule{Dim: Financial, Keyword: "netflix", Points: -5},
		MerchantRule{Dim: Financial, Keyword: "spotify", Points: -5},
		MerchantRule{Dim: Financial, Keyword: "vending", Points: -5},

		// Health
		MerchantRule{Dim: Health, Keyword: "gym", Points: 25},
		MerchantRule{Dim: Health, Keyword: "pharmacy", Points: 10},
		MerchantRule{Dim: Health, Keyword: "salad", Points: 15},
		MerchantRule{Dim: Health, Keyword: "organic", Points: 10},
		MerchantRule{Dim: Health, Keyword: "juice", Points: 5},
		MerchantRule{Dim: Health, Keyword: "mcdonald", Points: -25},
		MerchantRule{Dim: Health, Keyword: "burger", Points: -20},
		MerchantRule{Dim: Health, Keyword: "kfc", Points: -25},
		MerchantRule{Dim: Health, Keyword: "pizza", Points: -15},
		MerchantRule{Dim: Health, Keyword: "liquor", Points: -25},
		MerchantRule{Dim: Health, Keyword: "tobacco", Points: -30},
		MerchantRule{Dim: Health, Keyword: "vape", Points: -30},
		MerchantRule{Dim: Health, Keyword: "soda", Points: -10},
		MerchantRule{Dim: Health, Keyword: "candy", Points: -10},
		MerchantRule{Dim: Health, Keyword: "doordash", Points: -10},

		// Eco
		MerchantRule{Dim: Eco, Keyword: "shell", Points: -25},
		MerchantRule{Dim: Eco, Keyword: "chevron", Points: -25},
		MerchantRule{Dim: Eco, Keyword: "exxon", Points: -25},
		MerchantRule{Dim: Eco, Keyword: "airline", Points: -30},
		MerchantRule{Dim: Eco, Keyword: "airways", Points: -30},
		MerchantRule{Dim: Eco, Keyword: "uber", Points: -10},
		MerchantRule{Dim: Eco, Keyword: "lyft", Points: -10},
		MerchantRule{Dim: Eco, Keyword: "transit", Points: 30},
		MerchantRule{Dim: Eco, Keyword: "metro", Points: 30},
		MerchantRule{Dim: Eco, Keyword: "bike", Points: 20},
		MerchantRule{Dim: Eco, Keyword: "thrift", Points: 25},
		MerchantRule{Dim: Eco, Keyword: "goodwill", Points: 25},
		MerchantRule{Dim: Eco, Keyword: "farmers market", Points: 20},
		MerchantRule{Dim: Eco, Keyword: "amazon", Points: -15},
		MerchantRule{Dim: Eco, Keyword: "shein", Points: -20},
		MerchantRule{Dim: Eco, Keyword: "zara", Points: -10},
		MerchantRule{Dim: Eco, Keyword: "patagonia", Points: 15},
	}
}

func defaultOverrides() []Override {
	return []Override{
		{Dimension: Health, Category: "Groceries", Value: 70},
		{Dimension: Health, Category: "Healthcare", Value: 85},
		{Dimension: Health, Category: "Fitness", Value: 90},
		{Dimension: Health, Category: "Fast Food", Value: 20},
		{Dimension: Health, Category: "Alcohol", Value: 15},

		{Dimension: Eco, Category: "Groceries", Value: 60},
		{Dimension: Eco, Category: "Transportation", Value: 40},
		{Dimension: Eco, Category: "Travel", Value: 25},
		{Dimension: Eco, Category: "Utilities", Value: 45},
	}
}

func defaultTiers() []MagnitudeTier {
	return []MagnitudeTier{
		{Dimension: Financial, Above: decimal.NewFromInt(100), Penalty: 10},
		{Dimension: Financial, Above: decimal.NewFromInt(200), Penalty: 15},
		{Dimension: Financial, Above: decimal.NewFromInt(500), Penalty: 25},
	}
}
