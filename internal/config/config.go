// Package config loads Baton configuration from defaults, a YAML file and
// environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/fentz26/baton/internal/invoker/command"
	"github.com/fentz26/baton/internal/logging"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	envPrefix = "BATON_"
)

// Provider names accepted by invocation.provider.
const (
	ProviderMock      = "mock"
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderCommand   = "command"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config is the full daemon configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Store       StoreConfig       `koanf:"store"`
	Logging     logging.Config    `koanf:"logging"`
	Invocation  InvocationConfig  `koanf:"invocation"`
	Coordinator CoordinatorConfig `koanf:"coordinator"`
	Violations  ViolationsConfig  `koanf:"violations"`
	Scheduler   SchedulerConfig   `koanf:"scheduler"`
	NATS        NATSConfig        `koanf:"nats"`
	Agents      AgentsConfig      `koanf:"agents"`
}

// ServerConfig configures the HTTP control plane.
type ServerConfig struct {
	Addr            string   `koanf:"addr"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// StoreConfig configures the SQLite database.
type StoreConfig struct {
	Path string `koanf:"path"`
}

// InvocationConfig selects and tunes the agent invoker.
type InvocationConfig struct {
	Provider   string   `koanf:"provider"`
	APIKey     Secret   `koanf:"api_key"`
	Model      string   `koanf:"model"`
	BaseURL    string   `koanf:"base_url"`
	Timeout    Duration `koanf:"timeout"`
	MaxRetries int      `koanf:"max_retries"`
	RateLimit  float64  `koanf:"rate_limit"`
	Burst      int      `koanf:"burst"`
	// Command is the CLI backend for provider "command". Empty means detect.
	Command string `koanf:"command"`
}

// CoordinatorConfig tunes the workflow state machine.
type CoordinatorConfig struct {
	AutoApprove     bool   `koanf:"auto_approve"`
	MaxHandoffDepth int    `koanf:"max_handoff_depth"`
	DefaultAgent    string `koanf:"default_agent"`
}

// ViolationsConfig tunes the violation tracker.
type ViolationsConfig struct {
	Window Duration `koanf:"window"`
}

// SchedulerConfig tunes the housekeeping loop.
type SchedulerConfig struct {
	Interval  Duration `koanf:"interval"`
	Retention Duration `koanf:"retention"`
}

// NATSConfig enables escalation publishing. Empty URL disables it.
type NATSConfig struct {
	URL           string `koanf:"url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// AgentsConfig points at an optional role overlay file.
type AgentsConfig struct {
	RulesFile string `koanf:"rules_file"`
}

const defaults = `
server:
  addr: ":3001"
  shutdown_timeout: 30s
store:
  path: ""
logging:
  level: info
  format: json
invocation:
  provider: mock
  model: ""
  base_url: ""
  timeout: 5m
  max_retries: 3
  rate_limit: 0.8333
  burst: 5
  command: ""
coordinator:
  auto_approve: false
  max_handoff_depth: 10
  default_agent: crystal
violations:
  window: 10m
scheduler:
  interval: 1m
  retention: 720h
nats:
  url: ""
  subject_prefix: baton.escalations
agents:
  rules_file: ""
`

// legacyEnv maps environment names used by earlier deployments.
var legacyEnv = map[string]string{
	"LLM_PROVIDER": "invocation.provider",
	"LLM_API_KEY":  "invocation.api_key",
	"LLM_MODEL":    "invocation.model",
	"AUTO_APPROVE": "coordinator.auto_approve",
	"MAX_RETRIES":  "invocation.max_retries",
	"TIMEOUT":      "invocation.timeout",
	"PORT":         "server.addr",
}

// DefaultPath returns ~/.baton/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".baton", "config.yaml")
	}
	return filepath.Join(home, ".baton", "config.yaml")
}

// DefaultStorePath returns ~/.baton/baton.db.
func DefaultStorePath() string {
	return filepath.Join(filepath.Dir(DefaultPath()), "baton.db")
}

// Load reads configuration.
//
// Precedence (highest to lowest):
//  1. BATON_ environment variables (BATON_SERVER_ADDR -> server.addr)
//  2. Legacy variables (LLM_PROVIDER, AUTO_APPROVE, PORT, ...)
//  3. YAML file at path, or DefaultPath() when empty; a missing file is fine
//  4. Built-in defaults
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(rawbytes.Provider([]byte(defaults)), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = DefaultPath()
	}
	content, err := readConfigFile(path)
	if err != nil {
		return nil, err
	}
	if content != nil {
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue("", ".", legacyKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load legacy environment: %w", err)
	}

	// Split on first underscore only (section.field_name pattern):
	//   BATON_COORDINATOR_MAX_HANDOFF_DEPTH -> coordinator.max_handoff_depth
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = DefaultStorePath()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("config path %s is a directory", path)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// legacyKey translates a legacy variable, or returns "" to skip it.
func legacyKey(key, value string) (string, interface{}) {
	target, ok := legacyEnv[key]
	if !ok || value == "" {
		return "", nil
	}
	switch key {
	case "TIMEOUT":
		ms, err := strconv.Atoi(value)
		if err != nil {
			return "", nil
		}
		return target, strconv.Itoa(ms) + "ms"
	case "PORT":
		return target, ":" + value
	case "LLM_PROVIDER":
		return target, strings.ToLower(value)
	}
	return target, value
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	switch c.Invocation.Provider {
	case ProviderMock, ProviderCommand:
	case ProviderAnthropic, ProviderOpenAI:
		if !c.Invocation.APIKey.IsSet() {
			errs = append(errs, fmt.Errorf("invocation.api_key is required for provider %q", c.Invocation.Provider))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown invocation.provider %q", c.Invocation.Provider))
	}
	if c.Invocation.Provider == ProviderCommand && c.Invocation.Command != "" && !command.IsAllowed(c.Invocation.Command) {
		errs = append(errs, fmt.Errorf("invocation.command %q is not one of %v", c.Invocation.Command, command.Backends()))
	}
	if c.Invocation.Timeout <= 0 {
		errs = append(errs, errors.New("invocation.timeout must be positive"))
	}
	if c.Invocation.RateLimit < 0 || c.Invocation.Burst < 0 {
		errs = append(errs, errors.New("invocation.rate_limit and invocation.burst must be non-negative"))
	}
	if c.Coordinator.MaxHandoffDepth <= 0 {
		errs = append(errs, fmt.Errorf("coordinator.max_handoff_depth must be positive, got %d", c.Coordinator.MaxHandoffDepth))
	}
	if c.Violations.Window <= 0 {
		errs = append(errs, errors.New("violations.window must be positive"))
	}
	if c.Scheduler.Interval <= 0 {
		errs = append(errs, errors.New("scheduler.interval must be positive"))
	}
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}
