package core

import (
	"errors"
	"fmt"
	"strings"
)

// InputError reports a structurally invalid call: mismatched series, an
// unknown bucketing policy, an inverted window. It is always surfaced to the
// caller and never corrected silently.
type InputError struct {
	Op     string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("%s: invalid input: %s", e.Op, e.Reason)
}

// NewInputError builds an InputError with a formatted reason.
func NewInputError(op, format string, args ...any) error {
	return &InputError{Op: op, Reason: fmt.Sprintf(format, args...)}
}

// IsInputError reports whether err wraps an InputError.
func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}

// DegradedInputWarning flags a transaction that was scored without some
// optional field. It is informational and never aborts a batch.
type DegradedInputWarning struct {
	TransactionID string   `json:"transaction_id"`
	Missing       []string `json:"missing"`
}

func (w DegradedInputWarning) String() string {
	return fmt.Sprintf("transaction %s scored without %s", w.TransactionID, strings.Join(w.Missing, ", "))
}
