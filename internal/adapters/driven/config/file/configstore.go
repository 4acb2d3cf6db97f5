package file

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/custodia-labs/derivex/internal/core/ports/driven"
	"github.com/custodia-labs/derivex/internal/logger"
)

// Ensure ConfigStore implements the interface.
var _ driven.ConfigStore = (*ConfigStore)(nil)

// EnvPrefix prefixes environment variables that override file values.
// The key "pipeline.page_size" is overridden by DERIVEX_PIPELINE_PAGE_SIZE.
const EnvPrefix = "DERIVEX_"

// ConfigStore is a file-based implementation of driven.ConfigStore using TOML.
// Configuration is stored in a TOML file within the derivex config directory.
type ConfigStore struct {
	mu       sync.RWMutex
	filePath string
	data     map[string]any
}

// NewConfigStore creates a new TOML-based config store.
// If configDir is empty, defaults to ~/.derivex/config.toml.
func NewConfigStore(configDir string) (*ConfigStore, error) {
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		configDir = filepath.Join(home, ".derivex")
	}

	// Ensure directory exists
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return nil, err
	}

	s := &ConfigStore{
		filePath: filepath.Join(configDir, "config.toml"),
		data:     make(map[string]any),
	}

	// Load existing data if file exists
	if err := s.Load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	return s, nil
}

// LoadDotEnv reads .env files into the process environment. Variables that
// are already set win. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// EnvKey returns the environment variable that overrides key.
func EnvKey(key string) string {
	return EnvPrefix + strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(key))
}

// Get retrieves a configuration value by key.
// An environment override is returned as a string.
func (s *ConfigStore) Get(key string) (any, bool) {
	if v, ok := os.LookupEnv(EnvKey(key)); ok {
		return v, true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	val, ok := s.data[key]
	return val, ok
}

// GetString retrieves a string configuration value.
func (s *ConfigStore) GetString(key string) string {
	val, ok := s.Get(key)
	if !ok {
		return ""
	}

	str, ok := val.(string)
	if !ok {
		return ""
	}
	return str
}

// GetInt retrieves an integer configuration value.
func (s *ConfigStore) GetInt(key string) int {
	val, ok := s.Get(key)
	if !ok {
		return 0
	}

	// TOML integers are parsed as int64
	switch v := val.(type) {
	case int64:
		return int(v)
	case int:
		return v
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

// GetFloat retrieves a numeric configuration value.
func (s *ConfigStore) GetFloat(key string) float64 {
	val, ok := s.Get(key)
	if !ok {
		return 0
	}

	switch v := val.(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// GetBool retrieves a boolean configuration value.
func (s *ConfigStore) GetBool(key string) bool {
	val, ok := s.Get(key)
	if !ok {
		return false
	}

	switch v := val.(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		return err == nil && b
	default:
		return false
	}
}

// GetDuration retrieves a duration. Strings use time.ParseDuration syntax;
// bare integers are seconds.
func (s *ConfigStore) GetDuration(key string) time.Duration {
	val, ok := s.Get(key)
	if !ok {
		return 0
	}

	switch v := val.(type) {
	case string:
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return 0
		}
		return d
	case int64:
		return time.Duration(v) * time.Second
	case int:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v * float64(time.Second))
	default:
		return 0
	}
}

// GetStringSlice retrieves a string slice configuration value.
// An environment override is split on commas.
func (s *ConfigStore) GetStringSlice(key string) []string {
	val, ok := s.Get(key)
	if !ok {
		return nil
	}

	// TOML arrays are parsed as []any
	switch v := val.(type) {
	case []string:
		return v
	case []any:
		result := make([]string, 0, len(v))
		for _, item := range v {
			if str, ok := item.(string); ok {
				result = append(result, str)
			}
		}
		return result
	case string:
		var result []string
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				result = append(result, part)
			}
		}
		return result
	default:
		return nil
	}
}

// Set stores a configuration value and persists immediately.
func (s *ConfigStore) Set(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = value
	return s.save()
}

// Save persists the current configuration to disk.
func (s *ConfigStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save()
}

// save writes configuration to the TOML file (caller must hold lock).
func (s *ConfigStore) save() error {
	data, err := toml.Marshal(unflattenMap(s.data))
	if err != nil {
		return err
	}

	// Write with restricted permissions
	return os.WriteFile(s.filePath, data, 0600)
}

// Load reads configuration from the TOML file.
func (s *ConfigStore) Load() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			// No config file yet, start empty
			s.mu.Lock()
			s.data = make(map[string]any)
			s.mu.Unlock()
			return nil
		}
		return err
	}

	flat, err := parseConfig(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.data = flat
	s.mu.Unlock()
	return nil
}

// errEmptyConfig marks a file read while it was being rewritten.
var errEmptyConfig = errors.New("config file is empty")

// reload re-reads the file for Watch. Unlike Load, an empty, missing or
// unparsable file leaves the current values in place: those are the states
// a file passes through while an editor or Save rewrites it.
func (s *ConfigStore) reload() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return errEmptyConfig
	}

	flat, err := parseConfig(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.data = flat
	s.mu.Unlock()
	return nil
}

// parseConfig decodes TOML and flattens it into dot-notation keys.
func parseConfig(data []byte) (map[string]any, error) {
	var loaded map[string]any
	if err := toml.Unmarshal(data, &loaded); err != nil {
		return nil, err
	}
	if loaded == nil {
		loaded = make(map[string]any)
	}
	return flattenMap(loaded, ""), nil
}

// watchDebounce is how long Watch waits after the last event before reloading.
const watchDebounce = 100 * time.Millisecond

// Watch reloads the file whenever it changes and calls onChange after each
// successful reload. Bursts of events are coalesced so a rewrite is read
// once it settles. The directory is watched so that editors replacing the
// file by rename are seen. Blocks until ctx is cancelled.
func (s *ConfigStore) Watch(ctx context.Context, onChange func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(s.filePath)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(s.filePath), err)
	}

	settle := time.NewTimer(watchDebounce)
	settle.Stop()
	defer settle.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(s.filePath) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			settle.Reset(watchDebounce)
		case <-settle.C:
			if err := s.reload(); err != nil {
				logger.Warn("config: reloading %s: %v", s.filePath, err)
				continue
			}
			logger.Debug("config: reloaded %s", s.filePath)
			if onChange != nil {
				onChange()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config: watcher: %v", err)
		}
	}
}

// FlattenMap converts nested maps to dot-notation keys.
// E.g., {"a": {"b": 1}} becomes {"a.b": 1}.
func flattenMap(m map[string]any, prefix string) map[string]any {
	result := make(map[string]any)

	for key, value := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}

		if nested, ok := value.(map[string]any); ok {
			// Recursively flatten nested maps
			for k, v := range flattenMap(nested, fullKey) {
				result[k] = v
			}
		} else {
			result[fullKey] = value
		}
	}

	return result
}

// unflattenMap reverses flattenMap so saved files keep TOML tables.
func unflattenMap(flat map[string]any) map[string]any {
	result := make(map[string]any)

	for key, value := range flat {
		parts := strings.Split(key, ".")
		node := result
		for _, part := range parts[:len(parts)-1] {
			child, ok := node[part].(map[string]any)
			if !ok {
				child = make(map[string]any)
				node[part] = child
			}
			node = child
		}
		node[parts[len(parts)-1]] = value
	}

	return result
}

// Path returns the configuration file path.
func (s *ConfigStore) Path() string {
	return s.filePath
}
