package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusCompleted Status = "completed"
	StatusPending   Status = "pending"
	StatusFailed    Status = "failed"
)

type (
	Status string

	Date struct {
		time.Time
	}

	// Category carries the display color alongside the name; only the name
	// takes part in scoring.
	Category struct {
		Name  string
		Color string
	}

	Transaction struct {
		ID        string
		AccountID string
		Merchant  string
		Category  Category
		Amount    decimal.Decimal // negative = outflow
		Date      Date
		Status    Status
	}

	// Account is context only: balances anchor the net worth series but
	// accounts are never scored.
	Account struct {
		ID       string
		Name     string
		Balance  decimal.Decimal
		Currency string
	}
)

var (
	ErrInvalidDate   = errors.New("invalid date")
	ErrInvalidStatus = errors.New("invalid status")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrEmptyID       = errors.New("empty id")
)

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return d.Format("2006-01-02")
}

// MarshalJSON writes the date as "YYYY-MM-DD", or null when zero.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON accepts "YYYY-MM-DD" or null.
func (d *Date) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(strings.Trim(s, `"`))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (s Status) Validate() error {
	switch s {
	case StatusCompleted, StatusPending, StatusFailed:
		return nil
	default:
		return ErrInvalidStatus
	}
}

// Outflow reports whether the transaction moves money out of the account.
func (t Transaction) Outflow() bool {
	return t.Amount.IsNegative()
}

// Missing lists the optional fields that are blank. Scoring still works
// without them, with the affected rules not firing.
func (t Transaction) Missing() []string {
	var missing []string
	if strings.TrimSpace(t.Category.Name) == "" {
		missing = append(missing, "category")
	}
	if strings.TrimSpace(t.Merchant) == "" {
		missing = append(missing, "merchant")
	}
	return missing
}

// Validate checks the structural contract data-access collaborators must
// honor. Missing merchant or category is tolerated.
func (t Transaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return ErrEmptyID
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if err := t.Status.Validate(); err != nil {
		return err
	}
	if len(t.Merchant) > 200 {
		return errors.New("merchant too long (max 200 characters)")
	}
	return nil
}
