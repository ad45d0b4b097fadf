// Package aggregate reduces scored transactions into calendar buckets.
//
// This file implements the Strategy Pattern for bucketing. Each policy
// (daily, weekly, monthly) maps a date onto the start of its containing
// calendar window and a display key.
package aggregate

import (
	"fmt"
	"strings"
	"time"
)

const (
	Daily   Policy = "daily"
	Weekly  Policy = "weekly"
	Monthly Policy = "monthly"
)

// Policy names a bucketing strategy.
type Policy string

// ParsePolicy maps a policy name to a Policy, rejecting unknown names.
func ParsePolicy(s string) (Policy, error) {
	p := Policy(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := bucketers[p]; !ok {
		return "", fmt.Errorf("unknown bucketing policy %q", s)
	}
	return p, nil
}

// Bucketer is the strategy interface for calendar bucketing.
type Bucketer interface {
	// Start returns the first instant of the bucket containing t, in UTC.
	Start(t time.Time) time.Time
	// Key returns the display key of the bucket starting at start.
	Key(start time.Time) string
}

// DayBucketer groups by calendar day.
type DayBucketer struct{}

func (DayBucketer) Start(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (DayBucketer) Key(start time.Time) string {
	return start.Format("2006-01-02")
}

// WeekBucketer groups by ISO week; weeks start on Monday.
type WeekBucketer struct{}

func (WeekBucketer) Start(t time.Time) time.Time {
	day := DayBucketer{}.Start(t)
	offset := (int(day.Weekday()) + 6) % 7 // Monday = 0
	return day.AddDate(0, 0, -offset)
}

func (WeekBucketer) Key(start time.Time) string {
	year, week := start.ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

// MonthBucketer groups by calendar month.
type MonthBucketer struct{}

func (MonthBucketer) Start(t time.Time) time.Time {
	y, m, _ := t.UTC().Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

func (MonthBucketer) Key(start time.Time) string {
	return start.Format("2006-01")
}

// bucketers maps policies to their strategies.
var bucketers = map[Policy]Bucketer{
	Daily:   DayBucketer{},
	Weekly:  WeekBucketer{},
	Monthly: MonthBucketer{},
}

// GetBucketer returns the strategy for a policy.
func GetBucketer(p Policy) (Bucketer, error) {
	b, ok := bucketers[p]
	if !ok {
		return nil, fmt.Errorf("unknown bucketing policy %q", p)
	}
	return b, nil
}

// Policies lists the supported policies.
func Policies() []Policy {
	return []Policy{Daily, Weekly, Monthly}
}
