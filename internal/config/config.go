package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// DefaultFile is looked up in the working directory when no path is given.
const DefaultFile = "feelflow.yaml"

// EnvPrefix namespaces environment overrides: FEELFLOW_STORE_REDIS_ADDR sets store.redis.addr.
const EnvPrefix = "FEELFLOW_"

// Config is the process configuration shared by every command.
type Config struct {
	TypingDelay             time.Duration `mapstructure:"typing_delay"`
	CreateDebounce          time.Duration `mapstructure:"create_debounce"`
	AutoCreateAfterFarewell bool          `mapstructure:"auto_create_after_farewell"`
	Seed                    uint64        `mapstructure:"seed"` // 0 means unseeded
	Catalog                 string        `mapstructure:"catalog"`

	Input   InputConfig   `mapstructure:"input"`
	Log     LogConfig     `mapstructure:"log"`
	Store   StoreConfig   `mapstructure:"store"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Trace   TraceConfig   `mapstructure:"trace"`
}

type InputConfig struct {
	MaxSize int `mapstructure:"max_size"` // bytes per user message
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

type StoreConfig struct {
	Backend string      `mapstructure:"backend"` // memory | redis
	Redis   RedisConfig `mapstructure:"redis"`

	// EncryptionKey is a base64 AES-256 key; when set, sessions are sealed at rest.
	EncryptionKey string   `mapstructure:"encryption_key"`
	FallbackKeys  []string `mapstructure:"fallback_keys"`

	// Redact masks e-mail addresses and phone numbers before sessions are stored.
	// RedactPatterns replaces the built-in patterns when not empty.
	Redact         bool     `mapstructure:"redact"`
	RedactPatterns []string `mapstructure:"redact_patterns"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type HTTPConfig struct {
	Port int `mapstructure:"port"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type TraceConfig struct {
	File string `mapstructure:"file"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		TypingDelay:    time.Second,
		CreateDebounce: 300 * time.Millisecond,
		Input:          InputConfig{MaxSize: 4096},
		Log:            LogConfig{Level: "info"},
		Store: StoreConfig{
			Backend: "memory",
			Redis:   RedisConfig{Addr: "localhost:6379", Prefix: "feelflow:session:", TTL: 24 * time.Hour},
		},
		HTTP:    HTTPConfig{Port: 8080},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// Load reads the file at path (YAML, or JSON by extension), overlays FEELFLOW_*
// environment variables and decodes the result over Default().
// An empty path tries DefaultFile and tolerates its absence.
func Load(path string) (Config, error) {
	return load(path, os.Environ())
}

func load(path string, environ []string) (Config, error) {
	raw := map[string]any{}

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := unmarshal(path, data, &raw); err != nil {
			return Config{}, err
		}
	case os.IsNotExist(err) && !explicit:
		// no file: defaults plus environment
	default:
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		setPath(raw, envPath(strings.TrimPrefix(key, EnvPrefix)), value)
	}

	cfg := Default()
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return Config{}, err
	}
	if err := dec.Decode(raw); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, cfg.Validate()
}

func unmarshal(path string, data []byte, out *map[string]any) error {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
		return nil
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// Validate checks value ranges that decoding cannot.
func (c Config) Validate() error {
	if c.TypingDelay < 0 {
		return fmt.Errorf("typing_delay must not be negative")
	}
	if c.CreateDebounce < 0 {
		return fmt.Errorf("create_debounce must not be negative")
	}
	if c.Input.MaxSize <= 0 {
		return fmt.Errorf("input.max_size must be positive")
	}
	switch c.Store.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown store backend %q (want memory or redis)", c.Store.Backend)
	}
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port out of range: %d", c.HTTP.Port)
	}
	return nil
}

// Sections whose keys contain underscores, so env names split unambiguously.
var envSections = []string{"store_redis", "store", "input", "log", "http", "metrics", "trace"}

// envPath maps STORE_REDIS_ADDR to [store redis addr] and TYPING_DELAY to [typing_delay].
func envPath(name string) []string {
	name = strings.ToLower(name)
	for _, section := range envSections {
		if rest, ok := strings.CutPrefix(name, section+"_"); ok {
			return append(strings.Split(section, "_"), rest)
		}
	}
	return []string{name}
}

func setPath(m map[string]any, path []string, value string) {
	for _, key := range path[:len(path)-1] {
		next, ok := m[key].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[key] = next
		}
		m = next
	}
	m[path[len(path)-1]] = value
}
