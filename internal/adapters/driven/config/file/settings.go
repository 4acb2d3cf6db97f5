package file

import (
	"fmt"

	"github.com/custodia-labs/derivex/internal/core/domain"
	"github.com/custodia-labs/derivex/internal/core/ports/driven"
)

// Configuration keys.
const (
	KeyDefaultNamespace = "pipeline.default_namespace"
	KeyPageSize         = "pipeline.page_size"
	KeyBulkSize         = "pipeline.bulk_size"
	KeyTimestampField   = "pipeline.timestamp_field"
	KeyReindex          = "pipeline.reindex"
	KeyLoadIDField      = "pipeline.load_id_field"

	KeyMaxRetries    = "queue.max_retries"
	KeyRetryDelay    = "queue.retry_delay"
	KeyMaxRetryDelay = "queue.max_retry_delay"
	KeyConcurrency   = "queue.concurrency"
	KeyPollInterval  = "queue.poll_interval"
	KeyDispatchRate  = "queue.dispatch_rate"

	KeyRetryOnConflict = "store.retry_on_conflict"
	KeyStoreDriver     = "store.driver"
	KeyDataDir         = "store.data_dir"

	KeyMetricsAddr = "metrics.addr"
)

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// LoadSettings overlays the configured keys onto domain defaults and
// validates the result. Keys that are absent keep their default.
func LoadSettings(store driven.ConfigStore) (domain.Settings, error) {
	s := domain.DefaultSettings()

	has := func(key string) bool {
		_, ok := store.Get(key)
		return ok
	}

	if has(KeyDefaultNamespace) {
		s.DefaultNamespace = store.GetString(KeyDefaultNamespace)
	}
	if has(KeyPageSize) {
		s.PageSize = store.GetInt(KeyPageSize)
	}
	if has(KeyBulkSize) {
		s.BulkSize = store.GetInt(KeyBulkSize)
	}
	if has(KeyTimestampField) {
		s.TimestampField = store.GetString(KeyTimestampField)
	}
	if has(KeyReindex) {
		s.Reindex = store.GetBool(KeyReindex)
	}
	if has(KeyLoadIDField) {
		s.LoadIDField = store.GetString(KeyLoadIDField)
	}
	if has(KeyMaxRetries) {
		s.MaxRetries = store.GetInt(KeyMaxRetries)
	}
	if has(KeyRetryDelay) {
		s.RetryDelay = store.GetDuration(KeyRetryDelay)
	}
	if has(KeyMaxRetryDelay) {
		s.MaxRetryDelay = store.GetDuration(KeyMaxRetryDelay)
	}
	if has(KeyConcurrency) {
		s.Concurrency = store.GetInt(KeyConcurrency)
	}
	if has(KeyPollInterval) {
		s.PollInterval = store.GetDuration(KeyPollInterval)
	}
	if has(KeyDispatchRate) {
		s.DispatchRate = store.GetFloat(KeyDispatchRate)
	}
	if has(KeyRetryOnConflict) {
		s.RetryOnConflict = store.GetInt(KeyRetryOnConflict)
	}

	if err := s.Validate(); err != nil {
		return domain.Settings{}, fmt.Errorf("invalid configuration in %s: %w", store.Path(), err)
	}
	return s, nil
}

// StoreDriver returns the configured store driver, sqlite by default.
func StoreDriver(store driven.ConfigStore) (string, error) {
	switch d := store.GetString(KeyStoreDriver); d {
	case "", DriverSQLite:
		return DriverSQLite, nil
	case DriverMemory:
		return DriverMemory, nil
	default:
		return "", fmt.Errorf("%w: unknown store driver %q", domain.ErrInvalidInput, d)
	}
}
