package backend

import (
	"context"

	"lifescore/internal/amqp"
	"lifescore/internal/services"
	"lifescore/internal/sources"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the store, the optional broker client and a
// cleanup function releasing both.
type BackendResult struct {
	Store sources.Store
	// Publisher is nil when no broker is configured. It is never a typed
	// nil, so callers can compare it against nil.
	Publisher services.Publisher
	// AMQP is the same client as Publisher, for consumers. It may be nil.
	AMQP    *amqp.Client
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// SeedFile fills the memory backend, or an empty SQLite database.
	SeedFile string

	// Broker, optional for every backend
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
