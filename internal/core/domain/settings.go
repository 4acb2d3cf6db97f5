package domain

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Settings is the configuration surface consumed by the pipeline.
// It is built once at startup and passed into each component.
type Settings struct {
	// DefaultNamespace is used when a command names no namespace.
	DefaultNamespace string `json:"default_namespace"`

	// PageSize is the number of ids per batch.
	PageSize int `json:"page_size"`

	// BulkSize is the number of write operations per bulk request.
	BulkSize int `json:"bulk_size"`

	// MaxRetries bounds re-deliveries of a failing task.
	MaxRetries int `json:"max_retries"`

	// RetryDelay is the delay before the first re-delivery.
	RetryDelay time.Duration `json:"retry_delay"`

	// MaxRetryDelay caps the exponential retry delay.
	MaxRetryDelay time.Duration `json:"max_retry_delay"`

	// RetryOnConflict is the per-item store-level retry budget for conflicts.
	RetryOnConflict int `json:"retry_on_conflict"`

	// TimestampField is stamped on every written document.
	TimestampField string `json:"timestamp_field"`

	// Reindex makes full-document replace the default write mode.
	Reindex bool `json:"reindex"`

	// Concurrency is the number of queue workers.
	Concurrency int `json:"concurrency"`

	// PollInterval is how often durable queue workers look for due tasks.
	PollInterval time.Duration `json:"poll_interval"`

	// DispatchRate limits task submissions per second. Zero means unlimited.
	DispatchRate float64 `json:"dispatch_rate"`

	// LoadIDField names the record field used as document id when loading.
	LoadIDField string `json:"load_id_field"`
}

// DefaultSettings returns sensible defaults for the pipeline.
func DefaultSettings() Settings {
	return Settings{
		DefaultNamespace: "documents",
		PageSize:         1000,
		BulkSize:         500,
		MaxRetries:       3,
		RetryDelay:       30 * time.Second,
		MaxRetryDelay:    10 * time.Minute,
		RetryOnConflict:  3,
		TimestampField:   DefaultTimestampField,
		Concurrency:      4,
		PollInterval:     time.Second,
		LoadIDField:      "id",
	}
}

// DefaultMode returns the write mode implied by the Reindex switch.
func (s Settings) DefaultMode() WriteMode {
	if s.Reindex {
		return ModeReindex
	}
	return ModeUpdate
}

// Validate checks that the settings are usable.
func (s Settings) Validate() error {
	switch {
	case s.PageSize <= 0:
		return fmt.Errorf("%w: page_size must be positive", ErrInvalidInput)
	case s.BulkSize <= 0:
		return fmt.Errorf("%w: bulk_size must be positive", ErrInvalidInput)
	case s.MaxRetries < 0:
		return fmt.Errorf("%w: max_retries must not be negative", ErrInvalidInput)
	case s.RetryDelay < 0 || s.MaxRetryDelay < 0:
		return fmt.Errorf("%w: retry delays must not be negative", ErrInvalidInput)
	case s.RetryOnConflict < 0:
		return fmt.Errorf("%w: retry_on_conflict must not be negative", ErrInvalidInput)
	case s.TimestampField == IDField:
		return fmt.Errorf("%w: timestamp_field cannot be %s", ErrInvalidInput, IDField)
	case s.Concurrency <= 0:
		return fmt.Errorf("%w: concurrency must be positive", ErrInvalidInput)
	case s.DispatchRate < 0:
		return fmt.Errorf("%w: dispatch_rate must not be negative", ErrInvalidInput)
	}
	return nil
}

// SettingsProvider hands out the current settings and allows them to be
// swapped at runtime, e.g. when the config file changes under a worker.
type SettingsProvider struct {
	v atomic.Pointer[Settings]
}

// NewSettingsProvider creates a provider holding s.
func NewSettingsProvider(s Settings) *SettingsProvider {
	p := &SettingsProvider{}
	p.Store(s)
	return p
}

// Load returns the current settings.
func (p *SettingsProvider) Load() Settings {
	if s := p.v.Load(); s != nil {
		return *s
	}
	return DefaultSettings()
}

// Store replaces the current settings.
func (p *SettingsProvider) Store(s Settings) {
	p.v.Store(&s)
}
